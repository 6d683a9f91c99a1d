//go:build integration

package delivery_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"credence/internal/delivery"
	"credence/internal/ratelimit"
	"credence/pkg/testutil/containers"
)

// RedisSuite runs the Redis-backed idempotency and rate-limit stores against a
// real server.
type RedisSuite struct {
	suite.Suite
	redis *containers.RedisContainer
}

func TestRedisSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisSuite))
}

func (s *RedisSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
}

func (s *RedisSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisSuite) TestProcessedMarkersArePerConsumer() {
	ctx := context.Background()
	store := delivery.NewRedisProcessed(s.redis.Client, time.Hour)

	s.Require().NoError(store.MarkProcessed(ctx, "credential-issuer", "a:activity.verified:2"))

	seen, err := store.Seen(ctx, "credential-issuer", "a:activity.verified:2")
	s.Require().NoError(err)
	s.True(seen)

	seen, err = store.Seen(ctx, "notifications", "a:activity.verified:2")
	s.Require().NoError(err)
	s.False(seen)
}

func (s *RedisSuite) TestProcessedMarkersExpire() {
	ctx := context.Background()
	store := delivery.NewRedisProcessed(s.redis.Client, time.Second)

	s.Require().NoError(store.MarkProcessed(ctx, "notifications", "b:activity.rejected:3"))

	s.Eventually(func() bool {
		seen, err := store.Seen(ctx, "notifications", "b:activity.rejected:3")
		return err == nil && !seen
	}, 5*time.Second, 100*time.Millisecond)
}

func (s *RedisSuite) TestRateLimitWindowIsShared() {
	ctx := context.Background()
	limit := ratelimit.Limit{Requests: 3, Window: time.Minute}
	replicaA := ratelimit.NewRedisStore(s.redis.Client)
	replicaB := ratelimit.NewRedisStore(s.redis.Client)

	for _, store := range []*ratelimit.RedisStore{replicaA, replicaB, replicaA} {
		res, err := store.Allow(ctx, "tenant:shared", limit)
		s.Require().NoError(err)
		s.True(res.Allowed)
	}

	res, err := replicaB.Allow(ctx, "tenant:shared", limit)
	s.Require().NoError(err)
	s.False(res.Allowed)
	s.Positive(res.RetryAfter)
}
