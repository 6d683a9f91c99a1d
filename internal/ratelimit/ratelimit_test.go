package ratelimit

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var perMinute = Limit{Requests: 2, Window: time.Minute}

func exerciseWindow(t *testing.T, store Store, advance func(time.Duration)) {
	t.Helper()
	ctx := context.Background()

	first, err := store.Allow(ctx, "tenant:a", perMinute)
	require.NoError(t, err)
	assert.True(t, first.Allowed)
	assert.Equal(t, 1, first.Remaining)
	assert.Equal(t, 2, first.Limit)

	second, err := store.Allow(ctx, "tenant:a", perMinute)
	require.NoError(t, err)
	assert.True(t, second.Allowed)
	assert.Equal(t, 0, second.Remaining)

	third, err := store.Allow(ctx, "tenant:a", perMinute)
	require.NoError(t, err)
	assert.False(t, third.Allowed)
	assert.Equal(t, time.Minute, third.RetryAfter)

	other, err := store.Allow(ctx, "tenant:b", perMinute)
	require.NoError(t, err)
	assert.True(t, other.Allowed, "keys have independent budgets")

	advance(time.Minute + time.Second)
	again, err := store.Allow(ctx, "tenant:a", perMinute)
	require.NoError(t, err)
	assert.True(t, again.Allowed)
	assert.Equal(t, 1, again.Remaining)
}

func TestInMemoryStore(t *testing.T) {
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	store := NewInMemoryStore()
	store.now = func() time.Time { return now }

	exerciseWindow(t, store, func(d time.Duration) { now = now.Add(d) })
}

func TestRedisStore(t *testing.T) {
	server, err := miniredis.Run()
	require.NoError(t, err)
	defer server.Close()

	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	defer client.Close()

	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	store := NewRedisStore(client)
	store.now = func() time.Time { return now }

	exerciseWindow(t, store, func(d time.Duration) { now = now.Add(d) })
}

func TestRedisStoreUnavailable(t *testing.T) {
	server, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: server.Addr(), MaxRetries: -1})
	defer client.Close()
	server.Close()

	_, err = NewRedisStore(client).Allow(context.Background(), "tenant:a", perMinute)

	require.Error(t, err)
}

func TestLimitEnabled(t *testing.T) {
	assert.True(t, perMinute.Enabled())
	assert.False(t, Limit{}.Enabled())
	assert.False(t, Limit{Requests: 10}.Enabled())
}
