// Package bus is an in-process event transport. Each consumer group receives
// every envelope; envelopes of one activity are handled in publish order by a
// single worker of the group.
package bus

import (
	"context"
	"errors"
	"hash/fnv"
	"log/slog"
	"sync"

	"credence/internal/events"
)

const (
	defaultShards    = 16
	defaultQueueSize = 256
)

var ErrClosed = errors.New("bus closed")

type group struct {
	name   string
	queues []chan events.Envelope
}

// Bus implements events.Publisher and events.Subscriber in memory.
//
// Handler errors are logged and the envelope is dropped; wrap handlers in a
// delivery.Dispatcher for retries and dead-lettering.
type Bus struct {
	mu        sync.RWMutex
	groups    map[string]*group
	shards    int
	queueSize int
	closed    bool
	logger    *slog.Logger
}

type Option func(*Bus)

func WithShards(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.shards = n
		}
	}
}

func WithQueueSize(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.queueSize = n
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(b *Bus) { b.logger = logger }
}

func New(opts ...Option) *Bus {
	b := &Bus{
		groups:    make(map[string]*group),
		shards:    defaultShards,
		queueSize: defaultQueueSize,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Publish enqueues env for every registered group. It blocks while a target
// queue is full, honouring ctx.
func (b *Bus) Publish(ctx context.Context, env events.Envelope) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}
	shard := shardFor(env.ActivityID.String(), b.shards)
	for _, g := range b.groups {
		select {
		case g.queues[shard] <- env:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Register creates the group's queues so envelopes published before Subscribe
// starts are retained.
func (b *Bus) Register(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.registerLocked(name)
}

func (b *Bus) registerLocked(name string) *group {
	if g, ok := b.groups[name]; ok {
		return g
	}
	g := &group{name: name, queues: make([]chan events.Envelope, b.shards)}
	for i := range g.queues {
		g.queues[i] = make(chan events.Envelope, b.queueSize)
	}
	b.groups[name] = g
	return g
}

// Subscribe runs one worker per shard for the group until ctx is done.
func (b *Bus) Subscribe(ctx context.Context, name string, handler events.Handler) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	g := b.registerLocked(name)
	b.mu.Unlock()

	var wg sync.WaitGroup
	for _, q := range g.queues {
		wg.Add(1)
		go func(q <-chan events.Envelope) {
			defer wg.Done()
			b.work(ctx, name, q, handler)
		}(q)
	}
	wg.Wait()
	return ctx.Err()
}

func (b *Bus) work(ctx context.Context, name string, q <-chan events.Envelope, handler events.Handler) {
	for {
		select {
		case <-ctx.Done():
			return
		case env := <-q:
			if err := handler.Handle(ctx, env); err != nil {
				b.logger.ErrorContext(ctx, "event handler failed",
					"group", name,
					"type", env.Type,
					"activity_id", env.ActivityID,
					"error", err,
				)
			}
		}
	}
}

// Close rejects further publishes.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
}

func shardFor(key string, n int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(n))
}
