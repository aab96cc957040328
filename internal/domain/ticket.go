package domain

import (
	"strconv"
	"strings"
	"time"
)

// TicketStatus mirrors the helpdesk's ticket status values.
type TicketStatus string

const (
	TicketStatusNew     TicketStatus = "new"
	TicketStatusOpen    TicketStatus = "open"
	TicketStatusPending TicketStatus = "pending"
	TicketStatusHold    TicketStatus = "hold"
	TicketStatusSolved  TicketStatus = "solved"
	TicketStatusClosed  TicketStatus = "closed"
	// TicketStatusUnknown is used when the status check could not be made.
	TicketStatusUnknown TicketStatus = "unknown"
)

// TicketPriority mirrors the helpdesk's priority values.
type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "low"
	TicketPriorityNormal TicketPriority = "normal"
	TicketPriorityHigh   TicketPriority = "high"
	TicketPriorityUrgent TicketPriority = "urgent"
)

// Ticket is the subset of helpdesk ticket fields the monitor reads.
type Ticket struct {
	ID        int64          `json:"id"`
	Subject   string         `json:"subject"`
	Status    TicketStatus   `json:"status"`
	Priority  TicketPriority `json:"priority"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// TicketIdentifier is implemented by values that carry a ticket ID.
type TicketIdentifier interface {
	TicketID() int64
}

// TicketID implements TicketIdentifier.
func (t Ticket) TicketID() int64 { return t.ID }

// NormalizeTicketID accepts a raw identifier (integer or numeric string) or
// a value exposing one. The second return is false when no positive ID can
// be resolved.
func NormalizeTicketID(input any) (int64, bool) {
	var id int64
	switch v := input.(type) {
	case int:
		id = int64(v)
	case int32:
		id = int64(v)
	case int64:
		id = v
	case float64:
		if v != float64(int64(v)) {
			return 0, false
		}
		id = int64(v)
	case string:
		parsed, err := strconv.ParseInt(strings.TrimPrefix(strings.TrimSpace(v), "#"), 10, 64)
		if err != nil {
			return 0, false
		}
		id = parsed
	case *Ticket:
		if v == nil {
			return 0, false
		}
		id = v.ID
	case TicketIdentifier:
		id = v.TicketID()
	default:
		return 0, false
	}
	if id <= 0 {
		return 0, false
	}
	return id, true
}
