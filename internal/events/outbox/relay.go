package outbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"credence/internal/events"
)

const (
	defaultPollInterval = 500 * time.Millisecond
	defaultBatchSize    = 100
)

// Relay moves pending outbox entries to the bus in insertion order. An entry is
// marked published only after the transport accepted it, so a crash between the
// two causes a redelivery rather than a loss.
type Relay struct {
	store        Store
	publisher    events.Publisher
	logger       *slog.Logger
	pollInterval time.Duration
	batchSize    int
	newBackOff   func() backoff.BackOff
	now          func() time.Time
}

type RelayOption func(*Relay)

func WithLogger(logger *slog.Logger) RelayOption {
	return func(r *Relay) { r.logger = logger }
}

func WithPollInterval(d time.Duration) RelayOption {
	return func(r *Relay) {
		if d > 0 {
			r.pollInterval = d
		}
	}
}

func WithBatchSize(n int) RelayOption {
	return func(r *Relay) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

// WithBackOff replaces the backoff used after a failed publish.
func WithBackOff(factory func() backoff.BackOff) RelayOption {
	return func(r *Relay) { r.newBackOff = factory }
}

func NewRelay(store Store, publisher events.Publisher, opts ...RelayOption) *Relay {
	r := &Relay{
		store:        store,
		publisher:    publisher,
		logger:       slog.Default(),
		pollInterval: defaultPollInterval,
		batchSize:    defaultBatchSize,
		now:          time.Now,
	}
	r.newBackOff = func() backoff.BackOff {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = r.pollInterval
		b.MaxInterval = 30 * time.Second
		b.MaxElapsedTime = 0
		return b
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run relays until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	bo := backoff.WithContext(r.newBackOff(), ctx)
	for {
		n, err := r.RelayOnce(ctx)
		wait := r.pollInterval
		switch {
		case err != nil:
			wait = bo.NextBackOff()
			r.logger.WarnContext(ctx, "outbox relay failed, backing off",
				"error", err,
				"retry_in", wait,
			)
			if wait == backoff.Stop {
				return ctx.Err()
			}
		case n > 0:
			bo.Reset()
			continue
		default:
			bo.Reset()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// RelayOnce publishes one batch and returns how many entries were published.
// Publishing stops at the first failure so later entries never overtake it.
func (r *Relay) RelayOnce(ctx context.Context) (int, error) {
	entries, err := r.store.Pending(ctx, r.batchSize)
	if err != nil {
		return 0, err
	}

	published := make([]int64, 0, len(entries))
	var publishErr error
	for _, e := range entries {
		if err := r.publisher.Publish(ctx, e.Envelope); err != nil {
			publishErr = err
			break
		}
		published = append(published, e.Position)
	}

	if len(published) > 0 {
		if err := r.store.MarkPublished(ctx, published, r.now().UTC()); err != nil {
			return 0, err
		}
	}
	return len(published), publishErr
}
