package tx

import (
	"context"
	"sync"
	"time"

	dErrors "credence/pkg/domain-errors"
)

const defaultTimeout = 5 * time.Second

type journalKey struct{}

// journal collects compensations registered by in-memory stores during a unit.
type journal struct {
	undo []func()
}

// OnRollback registers a compensation that restores in-memory state if the
// surrounding unit fails. Outside a memory unit it is a no-op.
func OnRollback(ctx context.Context, undo func()) {
	if j, ok := ctx.Value(journalKey{}).(*journal); ok {
		j.undo = append(j.undo, undo)
	}
}

// KeyedRunner serializes units of work that share a lock key. Units with
// different keys never wait on each other.
//
// Waiting honours the context deadline so a unit that cannot start in time
// fails with CodeTimeout instead of blocking indefinitely.
type KeyedRunner struct {
	mu      sync.Mutex
	locks   map[string]*keyLock
	timeout time.Duration
}

// keyLock is a one-slot semaphore shared by every unit holding or waiting on
// a key; refs counts them so the entry is dropped when the key goes idle.
type keyLock struct {
	sem  chan struct{}
	refs int
}

// NewKeyedRunner creates a runner. A zero timeout uses the 5s default.
func NewKeyedRunner(timeout time.Duration) *KeyedRunner {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &KeyedRunner{locks: make(map[string]*keyLock), timeout: timeout}
}

func (r *KeyedRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	// Nested units join the outer one.
	if _, ok := ctx.Value(journalKey{}).(*journal); ok {
		return fn(ctx)
	}
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	release, err := r.acquire(ctx, LockKey(ctx))
	if err != nil {
		return err
	}
	defer release()

	j := &journal{}
	defer func() {
		if err != nil {
			for i := len(j.undo) - 1; i >= 0; i-- {
				j.undo[i]()
			}
		}
	}()
	return fn(context.WithValue(ctx, journalKey{}, j))
}

func (r *KeyedRunner) acquire(ctx context.Context, key string) (func(), error) {
	r.mu.Lock()
	l, ok := r.locks[key]
	if !ok {
		l = &keyLock{sem: make(chan struct{}, 1)}
		r.locks[key] = l
	}
	l.refs++
	r.mu.Unlock()

	select {
	case l.sem <- struct{}{}:
		return func() {
			<-l.sem
			r.unref(key, l)
		}, nil
	case <-ctx.Done():
		r.unref(key, l)
		return nil, dErrors.Wrap(ctx.Err(), dErrors.CodeTimeout, "transaction aborted: lock wait exceeded")
	}
}

func (r *KeyedRunner) unref(key string, l *keyLock) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(r.locks, key)
	}
}

// held reports how many keys currently have holders or waiters.
func (r *KeyedRunner) held() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.locks)
}
