package repository

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/rumi-monitor/internal/domain"
)

// TicketHistoryRepository is the append-only processed-history ledger.
type TicketHistoryRepository interface {
	Append(ctx context.Context, entry *domain.HistoryEntry) error
	List(ctx context.Context) ([]domain.HistoryEntry, error)
	ListByTicket(ctx context.Context, ticketID int64) ([]domain.HistoryEntry, error)
	Clear(ctx context.Context) (int, error)
}

type memoryHistoryRepository struct {
	mu      sync.RWMutex
	entries []domain.HistoryEntry
	now     func() time.Time
}

// NewTicketHistoryRepository builds the in-memory ledger.
func NewTicketHistoryRepository() TicketHistoryRepository {
	return &memoryHistoryRepository{now: time.Now}
}

func (r *memoryHistoryRepository) Append(_ context.Context, entry *domain.HistoryEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = r.now().UTC()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, *entry)
	return nil
}

func (r *memoryHistoryRepository) List(_ context.Context) ([]domain.HistoryEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.HistoryEntry, len(r.entries))
	copy(out, r.entries)
	return out, nil
}

func (r *memoryHistoryRepository) ListByTicket(_ context.Context, ticketID int64) ([]domain.HistoryEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.HistoryEntry
	for _, e := range r.entries {
		if e.TicketID == ticketID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *memoryHistoryRepository) Clear(_ context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.entries)
	r.entries = nil
	return n, nil
}
