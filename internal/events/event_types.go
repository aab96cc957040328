package events

import (
	"time"

	"github.com/spec-kit/rumi-monitor/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventMonitorStarted      EventType = "monitor.started"
	EventMonitorStopped      EventType = "monitor.stopped"
	EventMonitorCircuitPause EventType = "monitor.circuit_paused"
	EventTicketProcessed     EventType = "ticket.processed"
)

// Event is emitted by the monitor and processor for external refresh.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  int64       `json:"ticket_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// MonitorStartedPayload payload.
type MonitorStartedPayload struct {
	ViewIDs      []int64 `json:"view_ids"`
	IntervalSecs float64 `json:"interval_seconds"`
	DryRun       bool    `json:"dry_run"`
	BaselineSize int     `json:"baseline_size"`
}

// MonitorStoppedPayload payload.
type MonitorStoppedPayload struct {
	Checks    int64 `json:"checks"`
	Processed int   `json:"processed"`
}

// CircuitPausedPayload payload.
type CircuitPausedPayload struct {
	ConsecutiveErrors int       `json:"consecutive_errors"`
	ResumeAt          time.Time `json:"resume_at"`
	NextIntervalSecs  float64   `json:"next_interval_seconds"`
}

// TicketProcessedPayload payload.
type TicketProcessedPayload struct {
	Entry domain.HistoryEntry `json:"entry"`
}
