package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"credence/internal/delivery"
	"credence/pkg/platform/sentinel"
)

const defaultListLimit = 100

// InMemoryStore keeps dead letters in process memory.
type InMemoryStore struct {
	mu      sync.RWMutex
	letters map[uuid.UUID]delivery.DeadLetter
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{letters: make(map[uuid.UUID]delivery.DeadLetter)}
}

func (s *InMemoryStore) Add(_ context.Context, dl delivery.DeadLetter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.letters {
		if existing.ReplayedAt == nil && existing.Consumer == dl.Consumer && existing.IdempotencyKey == dl.IdempotencyKey {
			return nil
		}
	}
	s.letters[dl.ID] = dl
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, id uuid.UUID) (*delivery.DeadLetter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	dl, ok := s.letters[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &dl, nil
}

func (s *InMemoryStore) List(_ context.Context, f delivery.ListFilter) ([]delivery.DeadLetter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []delivery.DeadLetter{}
	for _, dl := range s.letters {
		if !f.TenantID.IsNil() && dl.Envelope.TenantID != f.TenantID {
			continue
		}
		if f.Consumer != "" && dl.Consumer != f.Consumer {
			continue
		}
		if !f.IncludeReplayed && dl.ReplayedAt != nil {
			continue
		}
		out = append(out, dl)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].DeadLetteredAt.Before(out[j].DeadLetteredAt)
	})
	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryStore) MarkReplayed(_ context.Context, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	dl, ok := s.letters[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	if dl.ReplayedAt != nil {
		return sentinel.ErrConflict
	}
	dl.ReplayedAt = &at
	s.letters[id] = dl
	return nil
}
