package governor

import (
	"net/http"
	"sync"
	"time"

	"github.com/spec-kit/rumi-monitor/internal/clock"
)

// FailureKind classifies a failed call for breaker accounting.
type FailureKind int

const (
	// FailureRateLimited is an HTTP 429. Never counts toward the breaker.
	FailureRateLimited FailureKind = iota
	// FailureClient is any other 4xx. Never counts toward the breaker.
	FailureClient
	// FailureServer covers 5xx and transport errors.
	FailureServer
)

func (k FailureKind) String() string {
	switch k {
	case FailureRateLimited:
		return "rate_limited"
	case FailureClient:
		return "client_error"
	default:
		return "server_error"
	}
}

// ClassifyStatus maps an HTTP status to a FailureKind.
func ClassifyStatus(status int) FailureKind {
	switch {
	case status == http.StatusTooManyRequests:
		return FailureRateLimited
	case status >= 400 && status < 500:
		return FailureClient
	default:
		return FailureServer
	}
}

// Config tunes the governor.
type Config struct {
	RateLimitPerMinute int
	Headroom           float64
	Window             time.Duration
	MinWait            time.Duration
	CircuitThreshold   int
}

// DefaultConfig mirrors the helpdesk's published limits with 50% headroom.
func DefaultConfig() Config {
	return Config{
		RateLimitPerMinute: 400,
		Headroom:           0.5,
		Window:             time.Minute,
		MinWait:            5 * time.Second,
		CircuitThreshold:   5,
	}
}

// State is a point-in-time copy of the governor counters.
type State struct {
	Calls             int       `json:"calls"`
	Budget            int       `json:"budget"`
	WindowStart       time.Time `json:"window_start"`
	ConsecutiveErrors int       `json:"consecutive_errors"`
	Tripped           bool      `json:"tripped"`
}

// Governor tracks call volume in a rolling window and consecutive failures.
// Every request path mutates it, so all access goes through mu.
type Governor struct {
	mu                sync.Mutex
	cfg               Config
	clock             clock.Clock
	calls             int
	windowStart       time.Time
	consecutiveErrors int
}

// New builds a governor. Zero config fields fall back to DefaultConfig.
func New(cfg Config, clk clock.Clock) *Governor {
	def := DefaultConfig()
	if cfg.RateLimitPerMinute <= 0 {
		cfg.RateLimitPerMinute = def.RateLimitPerMinute
	}
	if cfg.Headroom <= 0 || cfg.Headroom > 1 {
		cfg.Headroom = def.Headroom
	}
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	if cfg.MinWait <= 0 {
		cfg.MinWait = def.MinWait
	}
	if cfg.CircuitThreshold <= 0 {
		cfg.CircuitThreshold = def.CircuitThreshold
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &Governor{cfg: cfg, clock: clk, windowStart: clk.Now()}
}

// Budget is the effective number of calls allowed per window.
func (g *Governor) Budget() int {
	b := int(float64(g.cfg.RateLimitPerMinute) * g.cfg.Headroom)
	if b < 1 {
		return 1
	}
	return b
}

// Threshold returns the consecutive-error count that trips the breaker.
func (g *Governor) Threshold() int {
	return g.cfg.CircuitThreshold
}

// Acquire reserves one call in the current window. It fails, without
// counting, once the budget is spent.
func (g *Governor) Acquire() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rollover()
	if g.calls >= g.Budget() {
		return false
	}
	g.calls++
	return true
}

// RecordSuccess clears the consecutive-error count.
func (g *Governor) RecordSuccess() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rollover()
	g.consecutiveErrors = 0
}

// RecordFailure counts server-class failures and reports whether the
// breaker is tripped afterwards.
func (g *Governor) RecordFailure(kind FailureKind) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rollover()
	if kind == FailureServer {
		g.consecutiveErrors++
	}
	return g.consecutiveErrors >= g.cfg.CircuitThreshold
}

// MayProceed is false while the breaker is tripped or the window budget is spent.
func (g *Governor) MayProceed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rollover()
	if g.consecutiveErrors >= g.cfg.CircuitThreshold {
		return false
	}
	return g.calls < g.Budget()
}

// RemainingBudget returns calls left in the current window.
func (g *Governor) RemainingBudget() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rollover()
	if rem := g.Budget() - g.calls; rem > 0 {
		return rem
	}
	return 0
}

// Tripped reports whether the circuit breaker is open.
func (g *Governor) Tripped() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rollover()
	return g.consecutiveErrors >= g.cfg.CircuitThreshold
}

// WaitDuration is how long a caller must wait for the window to roll over,
// never less than the configured floor.
func (g *Governor) WaitDuration() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	wait := g.windowStart.Add(g.cfg.Window).Sub(g.clock.Now())
	if wait < g.cfg.MinWait {
		return g.cfg.MinWait
	}
	return wait
}

// ConsecutiveErrors returns the current breaker count.
func (g *Governor) ConsecutiveErrors() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rollover()
	return g.consecutiveErrors
}

// ResetErrors clears the breaker count, e.g. after a cooldown.
func (g *Governor) ResetErrors() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.consecutiveErrors = 0
}

// Reset starts a fresh window with no errors.
func (g *Governor) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = 0
	g.consecutiveErrors = 0
	g.windowStart = g.clock.Now()
}

// Snapshot copies the counters.
func (g *Governor) Snapshot() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rollover()
	return State{
		Calls:             g.calls,
		Budget:            g.Budget(),
		WindowStart:       g.windowStart,
		ConsecutiveErrors: g.consecutiveErrors,
		Tripped:           g.consecutiveErrors >= g.cfg.CircuitThreshold,
	}
}

// rollover must be called with mu held.
func (g *Governor) rollover() {
	now := g.clock.Now()
	if now.Sub(g.windowStart) < g.cfg.Window {
		return
	}
	g.calls = 0
	g.windowStart = now
	if g.consecutiveErrors > 0 {
		g.consecutiveErrors = 0
	}
}
