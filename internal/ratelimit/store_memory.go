package ratelimit

import (
	"context"
	"sync"
	"time"
)

// InMemoryStore keeps a sliding window of request timestamps per key.
// Counts are local to the process.
type InMemoryStore struct {
	mu      sync.Mutex
	windows map[string][]time.Time
	now     func() time.Time
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		windows: make(map[string][]time.Time),
		now:     time.Now,
	}
}

func (s *InMemoryStore) Allow(_ context.Context, key string, limit Limit) (*Result, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	stamps := trim(s.windows[key], now.Add(-limit.Window))
	if len(stamps) >= limit.Requests {
		s.windows[key] = stamps
		return deny(limit, stamps[0], now), nil
	}
	stamps = append(stamps, now)
	s.windows[key] = stamps
	return &Result{
		Allowed:   true,
		Limit:     limit.Requests,
		Remaining: limit.Requests - len(stamps),
		ResetAt:   stamps[0].Add(limit.Window),
	}, nil
}

// trim drops timestamps at or before cutoff.
func trim(stamps []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for ; i < len(stamps); i++ {
		if stamps[i].After(cutoff) {
			break
		}
	}
	if i == len(stamps) {
		return nil
	}
	return stamps[i:]
}
