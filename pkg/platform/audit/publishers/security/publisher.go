// Package security provides a non-blocking audit publisher for security facts.
//
// Emit never fails the caller: events go into a bounded ring buffer that a
// background loop drains into the store. Under sustained store outage the
// oldest events are dropped and counted.
package security

import (
	"context"
	"log/slog"
	"time"

	audit "credence/pkg/platform/audit"
	"credence/pkg/requestcontext"
)

const (
	defaultFlushInterval = time.Second
	defaultBatchSize     = 256
)

type Publisher struct {
	store         audit.Store
	buffer        *RingBuffer
	logger        *slog.Logger
	flushInterval time.Duration
	batchSize     int
}

type Option func(*Publisher)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) { p.logger = logger }
}

func WithFlushInterval(d time.Duration) Option {
	return func(p *Publisher) {
		if d > 0 {
			p.flushInterval = d
		}
	}
}

func WithCapacity(n int) Option {
	return func(p *Publisher) { p.buffer = NewRingBuffer(n) }
}

func New(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{
		store:         store,
		buffer:        NewRingBuffer(0),
		flushInterval: defaultFlushInterval,
		batchSize:     defaultBatchSize,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Emit buffers event and logs it at WARN. It never blocks on the store.
func (p *Publisher) Emit(ctx context.Context, event audit.SecurityEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = requestcontext.Now(ctx)
	}
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}
	if event.IP == "" {
		event.IP = requestcontext.ClientIP(ctx)
	}
	if event.Severity == "" {
		event.Severity = audit.SeverityWarning
	}
	p.buffer.Enqueue(event)

	if p.logger != nil {
		p.logger.WarnContext(ctx, "security event",
			"action", event.Action,
			"subject", event.Subject,
			"reason", event.Reason,
			"tenant_id", event.TenantID.String(),
			"ip", event.IP,
			"request_id", event.RequestID,
		)
	}
}

// Run drains the buffer until ctx is cancelled, then flushes what remains.
func (p *Publisher) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			p.Flush(flushCtx)
			return nil
		case <-ticker.C:
			p.Flush(ctx)
		}
	}
}

// Flush persists buffered events. Events that fail to persist are re-queued.
func (p *Publisher) Flush(ctx context.Context) {
	for {
		batch := p.buffer.DequeueBatch(p.batchSize)
		if len(batch) == 0 {
			return
		}
		for i, event := range batch {
			if err := p.store.Append(ctx, event.ToEvent()); err != nil {
				p.buffer.Requeue(batch[i:])
				if p.logger != nil {
					p.logger.ErrorContext(ctx, "failed to persist security events",
						"pending", p.buffer.Len(),
						"error", err,
					)
				}
				return
			}
		}
	}
}

// Dropped reports how many events were discarded because the buffer was full.
func (p *Publisher) Dropped() int64 { return p.buffer.Dropped() }
