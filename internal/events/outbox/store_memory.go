package outbox

import (
	"context"
	"sync"
	"time"

	"credence/internal/events"
	"credence/pkg/platform/tx"
)

// InMemoryStore is an outbox for development and tests. Adds made inside a
// tx.KeyedRunner unit are undone if the unit fails.
type InMemoryStore struct {
	mu      sync.Mutex
	entries []Entry
	keys    map[string]struct{}
	next    int64
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{keys: make(map[string]struct{})}
}

func (s *InMemoryStore) Add(ctx context.Context, env events.Envelope) error {
	key := env.IdempotencyKey()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.keys[key]; ok {
		return nil
	}
	s.next++
	pos := s.next
	s.entries = append(s.entries, Entry{Position: pos, Envelope: env})
	s.keys[key] = struct{}{}
	tx.OnRollback(ctx, func() { s.remove(pos, key) })
	return nil
}

func (s *InMemoryStore) remove(pos int64, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, e := range s.entries {
		if e.Position == pos {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			break
		}
	}
	delete(s.keys, key)
}

func (s *InMemoryStore) Pending(_ context.Context, limit int) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []Entry{}
	for _, e := range s.entries {
		if e.PublishedAt != nil {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *InMemoryStore) MarkPublished(_ context.Context, positions []int64, at time.Time) error {
	marked := make(map[int64]struct{}, len(positions))
	for _, p := range positions {
		marked[p] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.entries {
		if _, ok := marked[s.entries[i].Position]; ok && s.entries[i].PublishedAt == nil {
			t := at
			s.entries[i].PublishedAt = &t
		}
	}
	return nil
}

// Entries returns a snapshot of all entries, published or not.
func (s *InMemoryStore) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Entry(nil), s.entries...)
}
