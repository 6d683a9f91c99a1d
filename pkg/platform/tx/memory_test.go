package tx

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "credence/pkg/domain-errors"
)

func TestKeyedRunner_SerializesSameKey(t *testing.T) {
	r := NewKeyedRunner(time.Second)
	ctx := WithLockKey(context.Background(), "activity-1")

	var inFlight, maxInFlight int32
	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := r.RunInTx(ctx, func(context.Context) error {
				n := atomic.AddInt32(&inFlight, 1)
				for {
					m := atomic.LoadInt32(&maxInFlight)
					if n <= m || atomic.CompareAndSwapInt32(&maxInFlight, m, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				atomic.AddInt32(&inFlight, -1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxInFlight)
}

func TestKeyedRunner_TimesOutWaitingForLock(t *testing.T) {
	r := NewKeyedRunner(50 * time.Millisecond)
	ctx := WithLockKey(context.Background(), "activity-1")

	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = r.RunInTx(ctx, func(context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	err := r.RunInTx(ctx, func(context.Context) error { return nil })
	close(release)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeTimeout))
}

func TestKeyedRunner_RollsBackOnError(t *testing.T) {
	r := NewKeyedRunner(time.Second)
	state := []string{"a"}

	err := r.RunInTx(context.Background(), func(ctx context.Context) error {
		prev := state
		state = append(append([]string{}, state...), "b")
		OnRollback(ctx, func() { state = prev })
		return errors.New("boom")
	})
	require.Error(t, err)
	assert.Equal(t, []string{"a"}, state)
}

func TestKeyedRunner_NestedJoinsOuter(t *testing.T) {
	r := NewKeyedRunner(100 * time.Millisecond)
	ctx := WithLockKey(context.Background(), "k")

	err := r.RunInTx(ctx, func(ctx context.Context) error {
		return r.RunInTx(ctx, func(context.Context) error { return nil })
	})
	assert.NoError(t, err)
}

func TestKeyedRunner_DifferentKeysNeverWait(t *testing.T) {
	// These two keys hash to the same bucket under FNV-32a mod 128; an
	// exact-key lock must still let them run side by side.
	r := NewKeyedRunner(50 * time.Millisecond)
	slow := WithLockKey(context.Background(), "activity-a")
	other := WithLockKey(context.Background(), "activity-232")

	release := make(chan struct{})
	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- r.RunInTx(slow, func(context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	err := r.RunInTx(other, func(context.Context) error { return nil })
	close(release)
	require.NoError(t, err)
	require.NoError(t, <-done)
}

func TestKeyedRunner_ForgetsIdleKeys(t *testing.T) {
	r := NewKeyedRunner(20 * time.Millisecond)
	ctx := WithLockKey(context.Background(), "activity-1")

	require.NoError(t, r.RunInTx(ctx, func(context.Context) error { return nil }))
	assert.Zero(t, r.held())

	release := make(chan struct{})
	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- r.RunInTx(ctx, func(context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	err := r.RunInTx(ctx, func(context.Context) error { return nil })
	assert.True(t, dErrors.HasCode(err, dErrors.CodeTimeout), "waiter gives up at its deadline")
	assert.Equal(t, 1, r.held(), "holder keeps the key")

	close(release)
	require.NoError(t, <-done)
	assert.Zero(t, r.held())
}
