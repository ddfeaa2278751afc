// Package memory provides the in-memory audit sink used in tests and in
// deployments without a broker.
package memory

import (
	"context"
	"sync"

	"flowledger/internal/audit"
	"flowledger/pkg/domain"
)

// Store keeps events in an append-only slice per institution plus a global
// log preserving emission order.
type Store struct {
	mu     sync.RWMutex
	all    []audit.Event
	byInst map[domain.InstitutionID][]audit.Event
}

func New() *Store {
	return &Store{byInst: make(map[domain.InstitutionID][]audit.Event)}
}

func (s *Store) Append(_ context.Context, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.all = append(s.all, event)
	if !event.Institution.IsZero() {
		s.byInst[event.Institution] = append(s.byInst[event.Institution], event)
	}
	return nil
}

func (s *Store) ListByInstitution(_ context.Context, id domain.InstitutionID) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	events := s.byInst[id]
	out := make([]audit.Event, len(events))
	copy(out, events)
	return out, nil
}

// All returns every event in emission order. Test helper.
func (s *Store) All() []audit.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]audit.Event, len(s.all))
	copy(out, s.all)
	return out
}
