package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	audit "credence/pkg/platform/audit"
	"credence/pkg/platform/tx"
)

type InMemoryStore struct {
	mu     sync.RWMutex
	events []audit.Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
}

func (s *InMemoryStore) Append(ctx context.Context, event audit.Event) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Category == "" {
		event.Category = audit.AuditEvent(event.Action).Category()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	tx.OnRollback(ctx, func() { s.remove(event.ID) })
	return nil
}

func (s *InMemoryStore) remove(eventID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, e := range s.events {
		if e.ID == eventID {
			s.events = append(s.events[:i], s.events[i+1:]...)
			return
		}
	}
}

// List returns matching events, most recent first.
func (s *InMemoryStore) List(_ context.Context, f audit.Filter) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []audit.Event
	for i := len(s.events) - 1; i >= 0; i-- {
		e := s.events[i]
		if !f.TenantID.IsNil() && e.TenantID != f.TenantID {
			continue
		}
		if f.Category != "" && e.Category != f.Category {
			continue
		}
		if f.Action != "" && e.Action != f.Action {
			continue
		}
		out = append(out, e)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}
