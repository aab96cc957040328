package repository

import (
	"sort"
	"sync"
)

// ProcessedTicketSet holds the IDs processed in the current session.
type ProcessedTicketSet struct {
	mu  sync.RWMutex
	ids map[int64]struct{}
}

// NewProcessedTicketSet returns an empty set.
func NewProcessedTicketSet() *ProcessedTicketSet {
	return &ProcessedTicketSet{ids: make(map[int64]struct{})}
}

// Add returns false if id was already present.
func (s *ProcessedTicketSet) Add(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ids[id]; ok {
		return false
	}
	s.ids[id] = struct{}{}
	return true
}

// Has reports membership.
func (s *ProcessedTicketSet) Has(id int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.ids[id]
	return ok
}

// Len returns the set size.
func (s *ProcessedTicketSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ids)
}

// IDs returns the members in ascending order.
func (s *ProcessedTicketSet) IDs() []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]int64, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Reset empties the set.
func (s *ProcessedTicketSet) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids = make(map[int64]struct{})
}
