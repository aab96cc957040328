package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spec-kit/rumi-monitor/internal/clock"
	"github.com/spec-kit/rumi-monitor/internal/config"
	"github.com/spec-kit/rumi-monitor/internal/domain"
	"github.com/spec-kit/rumi-monitor/internal/events"
	"github.com/spec-kit/rumi-monitor/internal/governor"
	"github.com/spec-kit/rumi-monitor/internal/helpdesk"
	"github.com/spec-kit/rumi-monitor/internal/observability"
	"github.com/spec-kit/rumi-monitor/internal/repository"
	"github.com/spec-kit/rumi-monitor/pkg/util"
)

// MonitorState is the lifecycle state of the polling loop.
type MonitorState string

const (
	StateStopped       MonitorState = "stopped"
	StateStarting      MonitorState = "starting"
	StateMonitoring    MonitorState = "monitoring"
	StateCircuitPaused MonitorState = "circuit-paused"
)

// ManualTestView is the view name recorded for operator-initiated tests.
const ManualTestView = "Manual test"

// ViewAPI is the part of the helpdesk client the monitor needs.
type ViewAPI interface {
	Probe(ctx context.Context) (domain.User, error)
	ListViews(ctx context.Context) ([]domain.View, error)
	ViewTicketIDs(ctx context.Context, viewID int64) ([]int64, error)
}

// MonitorSettings are the timing knobs of the loop.
type MonitorSettings struct {
	Interval          time.Duration
	MinInterval       time.Duration
	MaxInterval       time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
	Cooldown          time.Duration
	TicketDelay       time.Duration
	TestConcurrency   int
}

// SettingsFromConfig converts the env-driven monitor section.
func SettingsFromConfig(cfg config.MonitorConfig) MonitorSettings {
	return MonitorSettings{
		Interval:          time.Duration(cfg.PollIntervalSeconds) * time.Second,
		MinInterval:       time.Duration(cfg.MinPollIntervalSeconds) * time.Second,
		MaxInterval:       time.Duration(cfg.MaxPollIntervalSeconds) * time.Second,
		MaxBackoff:        time.Duration(cfg.MaxBackoffSeconds) * time.Second,
		BackoffMultiplier: cfg.BackoffMultiplier,
		Cooldown:          time.Duration(cfg.CircuitCooldownSeconds) * time.Second,
		TicketDelay:       time.Duration(cfg.TicketDelayMillis) * time.Millisecond,
		TestConcurrency:   cfg.TestConcurrency,
	}
}

// MonitorDependencies bundles collaborators for the view monitor.
type MonitorDependencies struct {
	API              ViewAPI
	Governor         *governor.Governor
	Processor        *TicketProcessor
	History          repository.TicketHistoryRepository
	Settings         repository.SettingsRepository
	Dispatcher       events.Dispatcher
	Metrics          *observability.Metrics
	Clock            clock.Clock
	Logger           *zap.Logger
	Catalog          []domain.View
	Phrases          []string
	RequiredAuthorID int64
	Config           MonitorSettings
}

// MonitorSession is the state of one start..stop span.
type MonitorSession struct {
	State       MonitorState
	Views       []domain.View
	Baseline    map[int64]map[int64]struct{}
	Interval    time.Duration
	Checks      int64
	StartedAt   time.Time
	PausedUntil time.Time

	generation uint64
	cancel     context.CancelFunc
	ticker     *clock.Ticker
	resume     *clock.Timer
}

// MonitorStatus is a read-only snapshot for operators.
type MonitorStatus struct {
	State           MonitorState                  `json:"state"`
	Views           []domain.View                 `json:"views"`
	SelectedViews   []domain.View                 `json:"selected_views"`
	IntervalSeconds float64                       `json:"interval_seconds"`
	Checks          int64                         `json:"checks"`
	Processed       int                           `json:"processed"`
	DryRun          bool                          `json:"dry_run"`
	StartedAt       *time.Time                    `json:"started_at,omitempty"`
	PausedUntil     *time.Time                    `json:"paused_until,omitempty"`
	BaselineSizes   map[int64]int                 `json:"baseline_sizes,omitempty"`
	Governor        governor.State                `json:"governor"`
	Counters        observability.MonitorCounters `json:"counters"`
}

// TestResult is the outcome of one manually tested ticket.
type TestResult struct {
	Input  any           `json:"input"`
	Result ProcessResult `json:"result"`
	Error  string        `json:"error,omitempty"`
}

// HistoryExport is the structured history document with the active config.
type HistoryExport struct {
	ExportedAt       time.Time             `json:"exported_at"`
	Entries          []domain.HistoryEntry `json:"entries"`
	Phrases          []string              `json:"phrases"`
	RequiredAuthorID int64                 `json:"required_author_id"`
	Views            []domain.View         `json:"views"`
	IntervalSeconds  float64               `json:"interval_seconds"`
	DryRun           bool                  `json:"dry_run"`
}

type viewFetch struct {
	ids []int64
	err error
}

// Monitor polls the selected views and feeds new tickets to the processor.
type Monitor struct {
	api        ViewAPI
	gov        *governor.Governor
	processor  *TicketProcessor
	history    repository.TicketHistoryRepository
	settings   repository.SettingsRepository
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	clock      clock.Clock
	logger     *zap.Logger
	catalog    []domain.View
	phrases    []string
	authorID   int64
	cfg        MonitorSettings

	mu         sync.Mutex
	selected   []domain.View
	interval   time.Duration
	session    MonitorSession
	generation uint64
}

// NewMonitor wires the monitor in the stopped state.
func NewMonitor(deps MonitorDependencies) *Monitor {
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Settings == nil {
		deps.Settings = repository.NewMemorySettingsRepository()
	}
	cfg := deps.Config
	if cfg.BackoffMultiplier <= 1 {
		cfg.BackoffMultiplier = 1.5
	}
	if cfg.TestConcurrency <= 0 {
		cfg.TestConcurrency = 5
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Second
	}
	if cfg.MaxBackoff < cfg.Interval {
		cfg.MaxBackoff = cfg.Interval
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 2 * time.Minute
	}
	return &Monitor{
		api:        deps.API,
		gov:        deps.Governor,
		processor:  deps.Processor,
		history:    deps.History,
		settings:   deps.Settings,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		clock:      deps.Clock,
		logger:     deps.Logger,
		catalog:    deps.Catalog,
		phrases:    deps.Phrases,
		authorID:   deps.RequiredAuthorID,
		cfg:        cfg,
		interval:   cfg.Interval,
		session:    MonitorSession{State: StateStopped},
	}
}

// Views returns the helpdesk view catalog. The configured catalog is used
// when the helpdesk cannot be reached.
func (m *Monitor) Views(ctx context.Context) ([]domain.View, error) {
	views, err := m.api.ListViews(ctx)
	if err == nil {
		return views, nil
	}
	if len(m.catalog) > 0 {
		m.logger.Warn("view list failed, using configured catalog", zap.Error(err))
		return append([]domain.View(nil), m.catalog...), nil
	}
	return nil, err
}

// SelectViews validates and persists the views to monitor on next start.
func (m *Monitor) SelectViews(ctx context.Context, ids []int64) ([]domain.View, error) {
	if len(ids) == 0 {
		return nil, util.NewValidationError("select at least one view", nil)
	}
	if m.running() {
		return nil, util.NewConflict("stop monitoring before changing views", nil)
	}
	catalog, err := m.Views(ctx)
	if err != nil {
		return nil, err
	}
	views, missing := resolveViews(catalog, ids)
	if len(missing) > 0 {
		return nil, util.NewValidationError("unknown view ids", map[string]any{"view_ids": missing})
	}
	if err := m.settings.SaveMonitoredViews(ctx, ids); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.selected = views
	m.mu.Unlock()
	m.logger.Info("monitored views selected", zap.Int64s("view_ids", ids))
	return views, nil
}

// ClearViews forgets the selection.
func (m *Monitor) ClearViews(ctx context.Context) error {
	if m.running() {
		return util.NewConflict("stop monitoring before changing views", nil)
	}
	if err := m.settings.ClearMonitoredViews(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	m.selected = nil
	m.mu.Unlock()
	return nil
}

// RestoreViews reloads the persisted selection. Unknown IDs are dropped.
func (m *Monitor) RestoreViews(ctx context.Context) ([]domain.View, error) {
	ids, err := m.settings.MonitoredViews(ctx)
	if err != nil || len(ids) == 0 {
		return nil, err
	}
	catalog, err := m.Views(ctx)
	if err != nil {
		return nil, err
	}
	views, missing := resolveViews(catalog, ids)
	if len(missing) > 0 {
		m.logger.Warn("saved views no longer available", zap.Int64s("view_ids", missing))
	}
	m.mu.Lock()
	m.selected = views
	m.mu.Unlock()
	return views, nil
}

// Start validates the selection, checks connectivity, snapshots every view
// as the baseline and begins polling.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.session.State != StateStopped {
		state := m.session.State
		m.mu.Unlock()
		return util.NewConflict("monitor already running", map[string]any{"state": state})
	}
	views := append([]domain.View(nil), m.selected...)
	if len(views) == 0 {
		m.mu.Unlock()
		return util.NewValidationError("no views selected", nil)
	}
	m.generation++
	gen := m.generation
	m.interval = m.cfg.Interval
	m.session = MonitorSession{State: StateStarting, Views: views, generation: gen}
	m.mu.Unlock()

	fail := func(err error) error {
		m.mu.Lock()
		if m.session.generation == gen {
			m.session.State = StateStopped
		}
		m.mu.Unlock()
		return err
	}

	if m.gov != nil {
		m.gov.Reset()
	}
	m.processor.Processed().Reset()

	if _, err := m.api.Probe(ctx); err != nil {
		m.logger.Error("connectivity check failed", zap.Error(err))
		var ce *helpdesk.ConnectivityError
		if !errors.As(err, &ce) {
			err = &helpdesk.ConnectivityError{Err: err}
		}
		return fail(err)
	}

	baseline, err := m.snapshot(ctx, views)
	if err != nil {
		m.logger.Error("baseline failed", zap.Error(err))
		return fail(err)
	}

	m.mu.Lock()
	if m.session.generation != gen || m.session.State != StateStarting {
		m.mu.Unlock()
		return util.NewConflict("monitor stopped while starting", nil)
	}
	loopCtx, cancel := context.WithCancel(context.Background())
	ticker := m.clock.NewTicker(m.interval)
	m.session.State = StateMonitoring
	m.session.Baseline = baseline
	m.session.Interval = m.interval
	m.session.StartedAt = m.clock.Now()
	m.session.cancel = cancel
	m.session.ticker = ticker
	interval := m.interval
	m.mu.Unlock()

	go m.run(loopCtx, ticker)

	size := 0
	for _, ids := range baseline {
		size += len(ids)
	}
	m.logger.Info("monitoring started",
		zap.Int("views", len(views)),
		zap.Int("baseline_tickets", size),
		zap.Duration("interval", interval),
		zap.Bool("dry_run", m.processor.DryRun()))
	m.publishEvent(ctx, events.Event{
		Type: events.EventMonitorStarted,
		Payload: events.MonitorStartedPayload{
			ViewIDs:      viewIDs(views),
			IntervalSecs: interval.Seconds(),
			DryRun:       m.processor.DryRun(),
			BaselineSize: size,
		},
	})
	return nil
}

// Stop ends the session. Stopping an already stopped monitor only warns.
func (m *Monitor) Stop() bool {
	m.mu.Lock()
	if m.session.State == StateStopped {
		m.mu.Unlock()
		m.logger.Warn("stop requested but monitor is not running")
		return false
	}
	s := m.session
	if s.cancel != nil {
		s.cancel()
	}
	if s.ticker != nil {
		s.ticker.Stop()
	}
	if s.resume != nil {
		s.resume.Stop()
	}
	m.generation++
	m.session = MonitorSession{State: StateStopped, generation: m.generation}
	m.mu.Unlock()

	processed := m.processor.Processed().Len()
	m.processor.Processed().Reset()
	m.logger.Info("monitoring stopped", zap.Int64("checks", s.Checks), zap.Int("processed", processed))
	m.publishEvent(context.Background(), events.Event{
		Type:    events.EventMonitorStopped,
		Payload: events.MonitorStoppedPayload{Checks: s.Checks, Processed: processed},
	})
	return true
}

func (m *Monitor) run(ctx context.Context, ticker *clock.Ticker) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.CheckViews(ctx)
		}
	}
}

// CheckViews runs one polling cycle. Every view is fetched concurrently and
// nothing is processed until all fetches have settled.
func (m *Monitor) CheckViews(ctx context.Context) {
	m.mu.Lock()
	switch m.session.State {
	case StateMonitoring:
	case StateCircuitPaused:
		m.mu.Unlock()
		m.metrics.RecordCycle(m.clock.Now(), true)
		m.logger.Debug("cycle skipped while circuit is open")
		return
	default:
		m.mu.Unlock()
		return
	}
	if m.gov != nil && m.gov.Tripped() {
		event := m.pauseLocked()
		m.mu.Unlock()
		m.metrics.RecordCycle(m.clock.Now(), true)
		m.publishEvent(ctx, event)
		return
	}
	m.session.Checks++
	gen := m.session.generation
	views := m.session.Views
	baseline := m.session.Baseline
	m.mu.Unlock()

	results := m.fetchViews(ctx, views)

	if ctx.Err() != nil || !m.current(gen) {
		m.logger.Debug("cycle results discarded after stop")
		return
	}

	if tripped := m.account(results); tripped {
		m.mu.Lock()
		var event events.Event
		if m.session.generation == gen && m.session.State == StateMonitoring {
			event = m.pauseLocked()
		}
		m.mu.Unlock()
		if event.Type != "" {
			m.publishEvent(ctx, event)
		}
		m.metrics.RecordCycle(m.clock.Now(), false)
		return
	}

	for i, view := range views {
		if results[i].err != nil {
			continue
		}
		m.processNew(ctx, gen, view, baseline[view.ID], results[i].ids)
		if ctx.Err() != nil || !m.current(gen) {
			return
		}
	}
	m.metrics.RecordCycle(m.clock.Now(), false)
}

func (m *Monitor) fetchViews(ctx context.Context, views []domain.View) []viewFetch {
	results := make([]viewFetch, len(views))
	g, gctx := errgroup.WithContext(ctx)
	for i, view := range views {
		i, view := i, view
		g.Go(func() error {
			ids, err := m.api.ViewTicketIDs(gctx, view.ID)
			results[i] = viewFetch{ids: ids, err: err}
			if err != nil {
				m.logger.Warn("view fetch failed",
					zap.Int64("view_id", view.ID),
					zap.String("view", view.Title),
					zap.String("category", helpdesk.Classify(err).String()),
					zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// account records the cycle against the breaker once: any success clears
// the error count, otherwise a server-class failure counts one error.
// Rate limits and other client errors are ignored.
func (m *Monitor) account(results []viewFetch) bool {
	if m.gov == nil {
		return false
	}
	var anySuccess, anyServer bool
	for _, r := range results {
		switch {
		case r.err == nil:
			anySuccess = true
		case helpdesk.IsCircuitOpen(r.err), errors.Is(r.err, context.Canceled):
		case helpdesk.Classify(r.err) == governor.FailureServer:
			anyServer = true
		}
	}
	switch {
	case anySuccess:
		m.gov.RecordSuccess()
	case anyServer:
		tripped := m.gov.RecordFailure(governor.FailureServer)
		m.logger.Warn("polling cycle failed",
			zap.Int("consecutive_errors", m.gov.ConsecutiveErrors()),
			zap.Int("threshold", m.gov.Threshold()))
		return tripped
	}
	return false
}

func (m *Monitor) processNew(ctx context.Context, gen uint64, view domain.View, base map[int64]struct{}, ids []int64) {
	processed := m.processor.Processed()
	for _, id := range ids {
		if _, known := base[id]; known || processed.Has(id) {
			continue
		}
		if !m.current(gen) {
			return
		}
		res, err := m.processor.ProcessTicket(ctx, id, view.Title)
		switch {
		case err != nil:
			m.metrics.RecordTicketError()
			m.logger.Error("ticket processing failed",
				zap.Int64("ticket_id", id),
				zap.Int64("view_id", view.ID),
				zap.String("category", helpdesk.Classify(err).String()),
				zap.Error(err))
		case !res.Processed:
			m.logger.Debug("ticket skipped", zap.Int64("ticket_id", id), zap.String("reason", res.Reason))
		}
		if !m.sleep(ctx, m.cfg.TicketDelay) {
			return
		}
	}
}

// pauseLocked enters circuit-paused, schedules the single resume and backs
// the interval off. m.mu must be held.
func (m *Monitor) pauseLocked() events.Event {
	gen := m.session.generation
	next := time.Duration(float64(m.interval) * m.cfg.BackoffMultiplier)
	if next > m.cfg.MaxBackoff {
		next = m.cfg.MaxBackoff
	}
	m.interval = next
	m.session.Interval = next
	m.session.State = StateCircuitPaused
	m.session.PausedUntil = m.clock.Now().Add(m.cfg.Cooldown)
	if m.session.ticker != nil {
		m.session.ticker.Reset(next)
	}
	if m.session.resume != nil {
		m.session.resume.Stop()
	}
	m.session.resume = m.clock.AfterFunc(m.cfg.Cooldown, func() { m.resume(gen) })

	errs := 0
	if m.gov != nil {
		errs = m.gov.ConsecutiveErrors()
	}
	m.logger.Warn("circuit open, pausing polling",
		zap.Int("consecutive_errors", errs),
		zap.Duration("cooldown", m.cfg.Cooldown),
		zap.Duration("next_interval", next))
	return events.Event{
		Type: events.EventMonitorCircuitPause,
		Payload: events.CircuitPausedPayload{
			ConsecutiveErrors: errs,
			ResumeAt:          m.session.PausedUntil,
			NextIntervalSecs:  next.Seconds(),
		},
	}
}

func (m *Monitor) resume(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session.generation != gen || m.session.State != StateCircuitPaused {
		return
	}
	if m.gov != nil {
		m.gov.ResetErrors()
	}
	m.session.State = StateMonitoring
	m.session.PausedUntil = time.Time{}
	m.session.resume = nil
	m.logger.Info("circuit cooldown elapsed, polling resumed", zap.Duration("interval", m.interval))
}

// Status snapshots the session.
func (m *Monitor) Status() MonitorStatus {
	m.mu.Lock()
	s := m.session
	st := MonitorStatus{
		State:           s.State,
		Views:           append([]domain.View(nil), s.Views...),
		SelectedViews:   append([]domain.View(nil), m.selected...),
		IntervalSeconds: m.interval.Seconds(),
		Checks:          s.Checks,
	}
	if !s.StartedAt.IsZero() {
		t := s.StartedAt
		st.StartedAt = &t
	}
	if !s.PausedUntil.IsZero() {
		t := s.PausedUntil
		st.PausedUntil = &t
	}
	if len(s.Baseline) > 0 {
		st.BaselineSizes = make(map[int64]int, len(s.Baseline))
		for id, set := range s.Baseline {
			st.BaselineSizes[id] = len(set)
		}
	}
	m.mu.Unlock()

	st.Processed = m.processor.Processed().Len()
	st.DryRun = m.processor.DryRun()
	if m.gov != nil {
		st.Governor = m.gov.Snapshot()
	}
	st.Counters = m.metrics.Monitor()
	return st
}

// SetInterval changes the poll interval within the configured bounds. A
// running ticker picks it up immediately.
func (m *Monitor) SetInterval(d time.Duration) error {
	if d <= 0 || d < m.cfg.MinInterval || (m.cfg.MaxInterval > 0 && d > m.cfg.MaxInterval) {
		return util.NewValidationError("interval out of range", map[string]any{
			"min_seconds": m.cfg.MinInterval.Seconds(),
			"max_seconds": m.cfg.MaxInterval.Seconds(),
		})
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg.Interval = d
	if m.cfg.MaxBackoff < d {
		m.cfg.MaxBackoff = d
	}
	m.interval = d
	if m.session.State != StateStopped {
		m.session.Interval = d
		if m.session.ticker != nil {
			m.session.ticker.Reset(d)
		}
	}
	m.logger.Info("poll interval changed", zap.Duration("interval", d))
	return nil
}

// SetDryRun toggles dry-run mode.
func (m *Monitor) SetDryRun(enabled bool) {
	m.processor.SetDryRun(enabled)
	m.logger.Info("dry run toggled", zap.Bool("dry_run", enabled))
}

// TestTickets processes operator-supplied tickets concurrently. Duplicate IDs
// are collapsed and tickets already handled this session are skipped.
// Failures are reported per ticket, never as an error of the batch.
func (m *Monitor) TestTickets(ctx context.Context, inputs []any) ([]TestResult, error) {
	if len(inputs) == 0 {
		return nil, util.NewValidationError("provide at least one ticket id", nil)
	}
	// The same ticket written two ways ("60", "#60") is tested once.
	seen := make(map[int64]bool, len(inputs))
	batch := make([]any, 0, len(inputs))
	for _, input := range inputs {
		if id, ok := domain.NormalizeTicketID(input); ok {
			if seen[id] {
				m.logger.Debug("duplicate ticket in test batch", zap.Int64("ticket_id", id))
				continue
			}
			seen[id] = true
		}
		batch = append(batch, input)
	}

	results := make([]TestResult, len(batch))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.cfg.TestConcurrency)
	for i, input := range batch {
		i, input := i, input
		g.Go(func() error {
			res, err := m.processor.ProcessTicket(gctx, input, ManualTestView)
			results[i] = TestResult{Input: input, Result: res}
			if err != nil {
				results[i].Error = err.Error()
				m.metrics.RecordTicketError()
				m.logger.Error("manual ticket test failed", zap.Any("input", input), zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()
	return results, nil
}

// ResetProcessed clears the processed set so tickets may be handled again.
func (m *Monitor) ResetProcessed() int {
	n := m.processor.Processed().Len()
	m.processor.Processed().Reset()
	m.logger.Info("processed set cleared", zap.Int("tickets", n))
	return n
}

// History lists the ledger, optionally for one ticket.
func (m *Monitor) History(ctx context.Context, ticketID int64) ([]domain.HistoryEntry, error) {
	if ticketID > 0 {
		return m.history.ListByTicket(ctx, ticketID)
	}
	return m.history.List(ctx)
}

// ClearHistory empties the ledger.
func (m *Monitor) ClearHistory(ctx context.Context) (int, error) {
	n, err := m.history.Clear(ctx)
	if err != nil {
		return 0, err
	}
	m.logger.Info("history cleared", zap.Int("entries", n))
	return n, nil
}

// ExportHistory bundles the ledger with the active configuration.
func (m *Monitor) ExportHistory(ctx context.Context) (HistoryExport, error) {
	entries, err := m.history.List(ctx)
	if err != nil {
		return HistoryExport{}, fmt.Errorf("list history: %w", err)
	}
	m.mu.Lock()
	views := append([]domain.View(nil), m.selected...)
	interval := m.interval
	m.mu.Unlock()
	return HistoryExport{
		ExportedAt:       m.clock.Now().UTC(),
		Entries:          entries,
		Phrases:          append([]string(nil), m.phrases...),
		RequiredAuthorID: m.authorID,
		Views:            views,
		IntervalSeconds:  interval.Seconds(),
		DryRun:           m.processor.DryRun(),
	}, nil
}

func (m *Monitor) snapshot(ctx context.Context, views []domain.View) (map[int64]map[int64]struct{}, error) {
	sets := make([]map[int64]struct{}, len(views))
	g, gctx := errgroup.WithContext(ctx)
	for i, view := range views {
		i, view := i, view
		g.Go(func() error {
			ids, err := m.api.ViewTicketIDs(gctx, view.ID)
			if err != nil {
				return fmt.Errorf("baseline for view %q: %w", view.Title, err)
			}
			set := make(map[int64]struct{}, len(ids))
			for _, id := range ids {
				set[id] = struct{}{}
			}
			sets[i] = set
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	baseline := make(map[int64]map[int64]struct{}, len(views))
	for i, view := range views {
		baseline[view.ID] = sets[i]
	}
	return baseline, nil
}

func (m *Monitor) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	select {
	case <-ctx.Done():
		return false
	case <-m.clock.After(d):
		return true
	}
}

func (m *Monitor) running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session.State != StateStopped
}

func (m *Monitor) current(gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session.generation == gen && m.session.State != StateStopped
}

func (m *Monitor) publishEvent(ctx context.Context, event events.Event) {
	if m.dispatcher == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = m.clock.Now().UTC()
	}
	if err := m.dispatcher.Publish(ctx, event); err != nil {
		m.logger.Warn("event delivery failed", zap.String("event_type", string(event.Type)), zap.Error(err))
	}
}

func resolveViews(catalog []domain.View, ids []int64) ([]domain.View, []int64) {
	byID := make(map[int64]domain.View, len(catalog))
	for _, v := range catalog {
		byID[v.ID] = v
	}
	var views []domain.View
	var missing []int64
	seen := make(map[int64]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if v, ok := byID[id]; ok {
			views = append(views, v)
		} else {
			missing = append(missing, id)
		}
	}
	sort.Slice(missing, func(i, j int) bool { return missing[i] < missing[j] })
	return views, missing
}

func viewIDs(views []domain.View) []int64 {
	ids := make([]int64, len(views))
	for i, v := range views {
		ids[i] = v.ID
	}
	return ids
}
