package observability

import (
	"strconv"
	"sync"
	"time"
)

// Metrics provides basic in-memory counters for the control API and the
// monitoring loop.
type Metrics struct {
	mu           sync.Mutex
	requestCount map[string]int64
	errorCount   map[string]int64
	cycles       int64
	cyclesSkip   int64
	processed    int64
	dryRun       int64
	ticketErrors int64
	lastCycle    time.Time
}

// MonitorCounters is the snapshot rendered by the status endpoint.
type MonitorCounters struct {
	Cycles           int64     `json:"cycles"`
	CyclesSkipped    int64     `json:"cycles_skipped"`
	TicketsProcessed int64     `json:"tickets_processed"`
	DryRunProcessed  int64     `json:"dry_run_processed"`
	TicketErrors     int64     `json:"ticket_errors"`
	LastCycleAt      time.Time `json:"last_cycle_at,omitempty"`
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		requestCount: make(map[string]int64),
		errorCount:   make(map[string]int64),
	}
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	key := pathKey(path, method, status)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount[key]++
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	key := path + "|" + method + "|" + code
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorCount[key]++
}

// RecordCycle counts a polling cycle; skipped cycles are circuit pauses.
func (m *Metrics) RecordCycle(at time.Time, skipped bool) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if skipped {
		m.cyclesSkip++
		return
	}
	m.cycles++
	m.lastCycle = at
}

// RecordProcessed counts a ticket transition (real or dry run).
func (m *Metrics) RecordProcessed(dryRun bool) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if dryRun {
		m.dryRun++
		return
	}
	m.processed++
}

// RecordTicketError counts a per-ticket failure.
func (m *Metrics) RecordTicketError() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ticketErrors++
}

// Monitor returns the loop counters.
func (m *Metrics) Monitor() MonitorCounters {
	if m == nil {
		return MonitorCounters{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return MonitorCounters{
		Cycles:           m.cycles,
		CyclesSkipped:    m.cyclesSkip,
		TicketsProcessed: m.processed,
		DryRunProcessed:  m.dryRun,
		TicketErrors:     m.ticketErrors,
		LastCycleAt:      m.lastCycle,
	}
}

// RequestCounts copies the per-route counters.
func (m *Metrics) RequestCounts() map[string]int64 {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int64, len(m.requestCount))
	for k, v := range m.requestCount {
		out[k] = v
	}
	return out
}

func pathKey(path, method string, status int) string {
	return path + "|" + method + "|" + strconv.Itoa(status)
}
