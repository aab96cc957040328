package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/spec-kit/rumi-monitor/internal/clock"
	"github.com/spec-kit/rumi-monitor/internal/domain"
	"github.com/spec-kit/rumi-monitor/internal/events"
	"github.com/spec-kit/rumi-monitor/internal/governor"
	"github.com/spec-kit/rumi-monitor/internal/observability"
	"github.com/spec-kit/rumi-monitor/internal/repository"
	"github.com/spec-kit/rumi-monitor/internal/trigger"
)

const (
	requiredAgent = int64(99)
	customer      = int64(7)
	triggerPhrase = "Waiting for your reply"
)

type ticketUpdate struct {
	id     int64
	fields map[string]any
}

// fakeHelpdesk stands in for the helpdesk client.
type fakeHelpdesk struct {
	mu        sync.Mutex
	tickets   map[int64]domain.Ticket
	comments  map[int64][]domain.Comment
	views     []domain.View
	viewIDs   map[int64][]int64
	viewErr   map[int64]error
	probeErr  error
	getErr    error
	updateErr error
	updates   []ticketUpdate
	viewCalls int

	// When gate is set, TicketComments signals entered and blocks until
	// gate is closed.
	gate    chan struct{}
	entered chan struct{}
}

func newFakeHelpdesk() *fakeHelpdesk {
	return &fakeHelpdesk{
		tickets:  map[int64]domain.Ticket{},
		comments: map[int64][]domain.Comment{},
		viewIDs:  map[int64][]int64{},
		viewErr:  map[int64]error{},
	}
}

// addTriggered registers a ticket whose newest comment is the trigger phrase
// from the required agent.
func (f *fakeHelpdesk) addTriggered(id int64, status domain.TicketStatus, priority domain.TicketPriority) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tickets[id] = domain.Ticket{ID: id, Status: status, Priority: priority}
	f.comments[id] = []domain.Comment{
		{ID: id*10 + 1, AuthorID: requiredAgent, Body: "Hello, " + triggerPhrase + "."},
		{ID: id * 10, AuthorID: customer, Body: "My order is late"},
	}
}

func (f *fakeHelpdesk) setView(id int64, ids []int64, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.viewIDs[id] = ids
	if err != nil {
		f.viewErr[id] = err
	} else {
		delete(f.viewErr, id)
	}
}

func (f *fakeHelpdesk) Probe(context.Context) (domain.User, error) {
	if f.probeErr != nil {
		return domain.User{}, f.probeErr
	}
	return domain.User{ID: 1, Role: "admin"}, nil
}

func (f *fakeHelpdesk) ListViews(context.Context) ([]domain.View, error) {
	return f.views, nil
}

func (f *fakeHelpdesk) ViewTicketIDs(_ context.Context, viewID int64) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.viewCalls++
	if err := f.viewErr[viewID]; err != nil {
		return nil, err
	}
	return append([]int64(nil), f.viewIDs[viewID]...), nil
}

func (f *fakeHelpdesk) GetTicket(_ context.Context, id int64) (domain.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return domain.Ticket{}, f.getErr
	}
	t, ok := f.tickets[id]
	if !ok {
		return domain.Ticket{}, errors.New("not found")
	}
	return t, nil
}

func (f *fakeHelpdesk) TicketComments(_ context.Context, id int64) ([]domain.Comment, error) {
	f.mu.Lock()
	gate, entered := f.gate, f.entered
	f.mu.Unlock()
	if gate != nil {
		entered <- struct{}{}
		<-gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.comments[id], nil
}

func (f *fakeHelpdesk) UpdateTicket(_ context.Context, id int64, fields map[string]any) (domain.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return domain.Ticket{}, f.updateErr
	}
	f.updates = append(f.updates, ticketUpdate{id: id, fields: fields})
	t := f.tickets[id]
	if s, ok := fields["status"].(string); ok {
		t.Status = domain.TicketStatus(s)
	}
	f.tickets[id] = t
	return t, nil
}

func (f *fakeHelpdesk) GetUser(_ context.Context, id int64) (domain.User, error) {
	switch id {
	case requiredAgent:
		return domain.User{ID: id, Role: "agent"}, nil
	case customer:
		return domain.User{ID: id, Role: "end-user"}, nil
	}
	return domain.User{}, errors.New("unknown user")
}

func (f *fakeHelpdesk) updateCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.updates)
}

func (f *fakeHelpdesk) viewCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.viewCalls
}

type fixture struct {
	api        *fakeHelpdesk
	clock      *clock.FakeClock
	gov        *governor.Governor
	history    repository.TicketHistoryRepository
	dispatcher events.Dispatcher
	processor  *TicketProcessor
	monitor    *Monitor

	mu     sync.Mutex
	events []events.Event
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	fx := &fixture{
		api:        newFakeHelpdesk(),
		clock:      clock.Fake(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)),
		history:    repository.NewTicketHistoryRepository(),
		dispatcher: events.NewInMemoryDispatcher(),
	}
	fx.gov = governor.New(governor.Config{CircuitThreshold: 5}, fx.clock)
	for _, et := range []events.EventType{
		events.EventMonitorStarted, events.EventMonitorStopped,
		events.EventMonitorCircuitPause, events.EventTicketProcessed,
	} {
		fx.dispatcher.Subscribe(et, func(_ context.Context, e events.Event) error {
			fx.mu.Lock()
			defer fx.mu.Unlock()
			fx.events = append(fx.events, e)
			return nil
		})
	}

	metrics := observability.NewMetrics()
	fx.processor = NewTicketProcessor(ProcessorDependencies{
		API:        fx.api,
		Analyzer:   trigger.NewAnalyzer(fx.api, []string{triggerPhrase}, requiredAgent, nil),
		History:    fx.history,
		Dispatcher: fx.dispatcher,
		Metrics:    metrics,
		Clock:      fx.clock,
		Rule: StatusRule{
			TargetStatus:       domain.TicketStatusPending,
			ViewMarkers:        []string{"SSOC - Egypt", "SSOC - GCC"},
			ElevatedPriorities: []domain.TicketPriority{domain.TicketPriorityUrgent, domain.TicketPriorityHigh},
			DowngradePriority:  domain.TicketPriorityNormal,
		},
	})
	fx.monitor = NewMonitor(MonitorDependencies{
		API:        fx.api,
		Governor:   fx.gov,
		Processor:  fx.processor,
		History:    fx.history,
		Dispatcher: fx.dispatcher,
		Metrics:    metrics,
		Clock:      fx.clock,
		Phrases:    []string{triggerPhrase},
		Config: MonitorSettings{
			Interval:          20 * time.Second,
			MinInterval:       10 * time.Second,
			MaxInterval:       60 * time.Second,
			MaxBackoff:        40 * time.Second,
			BackoffMultiplier: 1.5,
			Cooldown:          10 * time.Second,
			TestConcurrency:   2,
		},
	})
	t.Cleanup(func() {
		if fx.monitor.Status().State != StateStopped {
			fx.monitor.Stop()
		}
	})
	return fx
}

func (fx *fixture) eventTypes() []events.EventType {
	fx.mu.Lock()
	defer fx.mu.Unlock()
	out := make([]events.EventType, len(fx.events))
	for i, e := range fx.events {
		out[i] = e.Type
	}
	return out
}
