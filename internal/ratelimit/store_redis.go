package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "credence:ratelimit:"

// RedisStore keeps each window in a sorted set scored by request time, so all
// replicas share one budget per key.
type RedisStore struct {
	client *redis.Client
	now    func() time.Time
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, now: time.Now}
}

func (s *RedisStore) Allow(ctx context.Context, key string, limit Limit) (*Result, error) {
	now := s.now()
	rkey := redisKeyPrefix + key
	cutoff := strconv.FormatInt(now.Add(-limit.Window).UnixMicro(), 10)

	var oldest *redis.ZSliceCmd
	var count *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZRemRangeByScore(ctx, rkey, "-inf", cutoff)
		count = p.ZCard(ctx, rkey)
		oldest = p.ZRangeWithScores(ctx, rkey, 0, 0)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("rate limit window %s: %w", key, err)
	}

	first := now
	if z := oldest.Val(); len(z) > 0 {
		first = time.UnixMicro(int64(z[0].Score))
	}
	used := int(count.Val())
	if used >= limit.Requests {
		return deny(limit, first, now), nil
	}

	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZAdd(ctx, rkey, redis.Z{Score: float64(now.UnixMicro()), Member: uuid.NewString()})
		p.PExpire(ctx, rkey, limit.Window)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("rate limit record %s: %w", key, err)
	}
	return &Result{
		Allowed:   true,
		Limit:     limit.Requests,
		Remaining: limit.Requests - used - 1,
		ResetAt:   first.Add(limit.Window),
	}, nil
}
