package delivery

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const processedKeyPrefix = "credence:processed:"

// ProcessedStore remembers which idempotency keys a consumer has completed.
type ProcessedStore interface {
	Seen(ctx context.Context, consumer, key string) (bool, error)
	MarkProcessed(ctx context.Context, consumer, key string) error
}

// InMemoryProcessed is a ProcessedStore for single-process deployments and tests.
type InMemoryProcessed struct {
	mu   sync.Mutex
	ttl  time.Duration
	now  func() time.Time
	keys map[string]time.Time
}

// NewInMemoryProcessed forgets keys after ttl. A zero ttl keeps them forever.
func NewInMemoryProcessed(ttl time.Duration) *InMemoryProcessed {
	return &InMemoryProcessed{ttl: ttl, now: time.Now, keys: make(map[string]time.Time)}
}

func (s *InMemoryProcessed) Seen(_ context.Context, consumer, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	expires, ok := s.keys[consumer+":"+key]
	if !ok {
		return false, nil
	}
	if !expires.IsZero() && s.now().After(expires) {
		delete(s.keys, consumer+":"+key)
		return false, nil
	}
	return true, nil
}

func (s *InMemoryProcessed) MarkProcessed(_ context.Context, consumer, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var expires time.Time
	if s.ttl > 0 {
		expires = s.now().Add(s.ttl)
	}
	s.keys[consumer+":"+key] = expires
	return nil
}

// RedisProcessed shares processed keys across replicas of a consumer group.
type RedisProcessed struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisProcessed stores keys with ttl. A zero ttl keeps them forever.
func NewRedisProcessed(client *redis.Client, ttl time.Duration) *RedisProcessed {
	return &RedisProcessed{client: client, ttl: ttl}
}

func (s *RedisProcessed) Seen(ctx context.Context, consumer, key string) (bool, error) {
	n, err := s.client.Exists(ctx, processedKeyPrefix+consumer+":"+key).Result()
	if err != nil {
		return false, fmt.Errorf("check processed key: %w", err)
	}
	return n > 0, nil
}

func (s *RedisProcessed) MarkProcessed(ctx context.Context, consumer, key string) error {
	if err := s.client.Set(ctx, processedKeyPrefix+consumer+":"+key, "1", s.ttl).Err(); err != nil {
		return fmt.Errorf("mark processed key: %w", err)
	}
	return nil
}
