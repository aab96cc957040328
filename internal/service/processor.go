package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/rumi-monitor/internal/clock"
	"github.com/spec-kit/rumi-monitor/internal/domain"
	"github.com/spec-kit/rumi-monitor/internal/events"
	"github.com/spec-kit/rumi-monitor/internal/observability"
	"github.com/spec-kit/rumi-monitor/internal/repository"
	"github.com/spec-kit/rumi-monitor/internal/trigger"
)

// Skip reasons reported by ProcessTicket.
const (
	ReasonInvalidInput   = "Invalid input"
	ReasonNoMatch        = "No matching comment"
	ReasonAlreadyPending = "Already pending"
	// A ticket is handled at most once per session, whichever path sees it first.
	ReasonAlreadyProcessed = "Already processed"
	ReasonInProgress       = "Already in progress"
)

// TicketAPI is the part of the helpdesk client the processor needs.
type TicketAPI interface {
	GetTicket(ctx context.Context, id int64) (domain.Ticket, error)
	TicketComments(ctx context.Context, id int64) ([]domain.Comment, error)
	UpdateTicket(ctx context.Context, id int64, fields map[string]any) (domain.Ticket, error)
}

// CommentAnalyzer decides whether a comment thread should trigger.
type CommentAnalyzer interface {
	AnalyzeLatestComment(ctx context.Context, comments []domain.Comment) trigger.Analysis
}

// UpdateResult describes an applied (or, in dry run, intended) update.
type UpdateResult struct {
	Ticket       *domain.Ticket      `json:"ticket,omitempty"`
	Fields       map[string]any      `json:"fields"`
	Hypothetical bool                `json:"hypothetical"`
	Entry        domain.HistoryEntry `json:"entry"`
}

// ProcessResult is the outcome of one ProcessTicket call. Skips are
// results, not errors.
type ProcessResult struct {
	TicketID  int64         `json:"ticket_id,omitempty"`
	Processed bool          `json:"processed"`
	Reason    string        `json:"reason,omitempty"`
	Result    *UpdateResult `json:"result,omitempty"`
}

// StatusRule is the view-scoped priority downgrade applied with the pending
// transition.
type StatusRule struct {
	TargetStatus       domain.TicketStatus
	ViewMarkers        []string
	ElevatedPriorities []domain.TicketPriority
	DowngradePriority  domain.TicketPriority
}

// ProcessorDependencies bundles collaborators for the ticket processor.
type ProcessorDependencies struct {
	API        TicketAPI
	Analyzer   CommentAnalyzer
	History    repository.TicketHistoryRepository
	Processed  *repository.ProcessedTicketSet
	Dispatcher events.Dispatcher
	Metrics    *observability.Metrics
	Clock      clock.Clock
	Logger     *zap.Logger
	Rule       StatusRule
	DryRun     bool
}

// TicketProcessor moves a matching ticket to pending at most once.
type TicketProcessor struct {
	api        TicketAPI
	analyzer   CommentAnalyzer
	history    repository.TicketHistoryRepository
	processed  *repository.ProcessedTicketSet
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	clock      clock.Clock
	logger     *zap.Logger
	rule       StatusRule
	dryRun     atomic.Bool

	mu       sync.Mutex
	inflight map[int64]struct{}
}

// NewTicketProcessor wires the processor.
func NewTicketProcessor(deps ProcessorDependencies) *TicketProcessor {
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Processed == nil {
		deps.Processed = repository.NewProcessedTicketSet()
	}
	if deps.Rule.TargetStatus == "" {
		deps.Rule.TargetStatus = domain.TicketStatusPending
	}
	p := &TicketProcessor{
		api:        deps.API,
		analyzer:   deps.Analyzer,
		history:    deps.History,
		processed:  deps.Processed,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		clock:      deps.Clock,
		logger:     deps.Logger,
		rule:       deps.Rule,
		inflight:   make(map[int64]struct{}),
	}
	p.dryRun.Store(deps.DryRun)
	return p
}

// SetDryRun toggles suppression of mutating calls.
func (p *TicketProcessor) SetDryRun(enabled bool) {
	p.dryRun.Store(enabled)
}

// DryRun reports whether mutating calls are suppressed.
func (p *TicketProcessor) DryRun() bool {
	return p.dryRun.Load()
}

// Processed exposes the session's processed set.
func (p *TicketProcessor) Processed() *repository.ProcessedTicketSet {
	return p.processed
}

// ProcessTicket runs one ticket through comments, analysis, the status
// guard and the update. Errors from fetching comments or from the update
// itself are returned to the caller.
func (p *TicketProcessor) ProcessTicket(ctx context.Context, input any, viewName string) (ProcessResult, error) {
	ticketID, ok := domain.NormalizeTicketID(input)
	if !ok {
		p.logger.Warn("invalid ticket input", zap.Any("input", input), zap.String("view", viewName))
		return ProcessResult{Reason: ReasonInvalidInput}, nil
	}
	log := p.logger.With(zap.Int64("ticket_id", ticketID), zap.String("view", viewName))

	if !p.claim(ticketID) {
		log.Debug("ticket is being processed elsewhere")
		return ProcessResult{TicketID: ticketID, Reason: ReasonInProgress}, nil
	}
	defer p.release(ticketID)
	if p.processed.Has(ticketID) {
		log.Debug("ticket already processed this session")
		return ProcessResult{TicketID: ticketID, Reason: ReasonAlreadyProcessed}, nil
	}

	comments, err := p.api.TicketComments(ctx, ticketID)
	if err != nil {
		return ProcessResult{TicketID: ticketID}, fmt.Errorf("fetch comments for ticket %d: %w", ticketID, err)
	}

	analysis := p.analyzer.AnalyzeLatestComment(ctx, comments)
	if !analysis.Matches {
		log.Debug("no trigger in comment thread", zap.Int("comments", len(comments)))
		return ProcessResult{TicketID: ticketID, Reason: ReasonNoMatch}, nil
	}

	current, haveTicket := p.currentTicket(ctx, log, ticketID)
	if current.Status == p.rule.TargetStatus {
		log.Info("ticket already pending")
		return ProcessResult{TicketID: ticketID, Reason: ReasonAlreadyPending}, nil
	}

	fields := map[string]any{"status": string(p.rule.TargetStatus)}
	if p.appliesDowngrade(viewName) {
		priority, ok := current.Priority, haveTicket
		if !ok {
			// The status fetch already failed; one more attempt for the priority.
			if t, err := p.api.GetTicket(ctx, ticketID); err == nil {
				priority, ok = t.Priority, true
			} else {
				log.Warn("priority fetch failed, updating status only", zap.Error(err))
			}
		}
		if ok && p.isElevated(priority) {
			fields["priority"] = string(p.rule.DowngradePriority)
		}
	}

	dryRun := p.DryRun()
	result := &UpdateResult{Fields: fields, Hypothetical: dryRun}
	if dryRun {
		log.Info("dry run: ticket would be updated", zap.Any("fields", fields))
	} else {
		updated, err := p.api.UpdateTicket(ctx, ticketID, fields)
		if err != nil {
			return ProcessResult{TicketID: ticketID}, fmt.Errorf("update ticket %d: %w", ticketID, err)
		}
		result.Ticket = &updated
	}

	entry := domain.HistoryEntry{
		ID:             uuid.NewString(),
		TicketID:       ticketID,
		Timestamp:      p.clock.Now().UTC(),
		ViewName:       viewName,
		Phrase:         analysis.Phrase,
		PreviousStatus: current.Status,
		TriggerReason:  analysis.TriggerReason,
		DryRun:         dryRun,
		UpdatedFields:  fields,
	}
	if analysis.Comment != nil {
		entry.TriggerCommentID = analysis.Comment.ID
	}
	if analysis.LatestComment != nil {
		entry.LatestCommentID = analysis.LatestComment.ID
	}
	if p.history != nil {
		if err := p.history.Append(ctx, &entry); err != nil {
			log.Error("history append failed", zap.Error(err))
		}
	}
	p.processed.Add(ticketID)
	p.metrics.RecordProcessed(dryRun)
	result.Entry = entry

	log.Info("ticket processed",
		zap.String("phrase", analysis.Phrase),
		zap.String("trigger_reason", string(analysis.TriggerReason)),
		zap.String("previous_status", string(current.Status)),
		zap.Bool("fallback", analysis.Fallback),
		zap.Bool("dry_run", dryRun))

	p.publishEvent(ctx, events.Event{
		Type:     events.EventTicketProcessed,
		TicketID: ticketID,
		Payload:  events.TicketProcessedPayload{Entry: entry},
	})

	return ProcessResult{TicketID: ticketID, Processed: true, Result: result}, nil
}

// claim marks id as in flight. It fails while another caller holds it.
func (p *TicketProcessor) claim(id int64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, busy := p.inflight[id]; busy {
		return false
	}
	p.inflight[id] = struct{}{}
	return true
}

func (p *TicketProcessor) release(id int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.inflight, id)
}

// currentTicket is best effort: a failed fetch yields an unknown status.
func (p *TicketProcessor) currentTicket(ctx context.Context, log *zap.Logger, id int64) (domain.Ticket, bool) {
	t, err := p.api.GetTicket(ctx, id)
	if err != nil {
		log.Warn("status fetch failed, continuing with unknown status", zap.Error(err))
		return domain.Ticket{ID: id, Status: domain.TicketStatusUnknown}, false
	}
	if t.Status == "" {
		t.Status = domain.TicketStatusUnknown
	}
	return t, true
}

func (p *TicketProcessor) appliesDowngrade(viewName string) bool {
	if p.rule.TargetStatus != domain.TicketStatusPending || p.rule.DowngradePriority == "" {
		return false
	}
	for _, marker := range p.rule.ViewMarkers {
		if marker != "" && strings.Contains(viewName, marker) {
			return true
		}
	}
	return false
}

func (p *TicketProcessor) isElevated(priority domain.TicketPriority) bool {
	for _, e := range p.rule.ElevatedPriorities {
		if strings.EqualFold(string(e), string(priority)) {
			return true
		}
	}
	return false
}

func (p *TicketProcessor) publishEvent(ctx context.Context, event events.Event) {
	if p.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = p.clock.Now().UTC()
	}
	if err := p.dispatcher.Publish(ctx, event); err != nil {
		p.logger.Warn("event delivery failed", zap.String("event_type", string(event.Type)), zap.Error(err))
	}
}
