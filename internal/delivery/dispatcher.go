package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	dmetrics "credence/internal/delivery/metrics"
	"credence/internal/events"
	dErrors "credence/pkg/domain-errors"
	audit "credence/pkg/platform/audit"
	"credence/pkg/platform/sentinel"
	"credence/pkg/requestcontext"
)

const (
	defaultMaxAttempts    = 5
	defaultInitialBackoff = 200 * time.Millisecond
	defaultMaxBackoff     = 10 * time.Second
)

type ComplianceEmitter interface {
	Emit(ctx context.Context, event audit.ComplianceEvent) error
}

// RetryPolicy bounds how long a consumer keeps retrying one envelope.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = defaultMaxAttempts
	}
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = defaultInitialBackoff
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = defaultMaxBackoff
	}
	return p
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialBackoff
	b.MaxInterval = p.MaxBackoff
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(p.MaxAttempts-1)), ctx)
}

// Manager owns the dispatchers of every consumer in the process and the
// operator view of their dead letters.
type Manager struct {
	deadLetters DeadLetterStore
	processed   ProcessedStore
	compliance  ComplianceEmitter
	policy      RetryPolicy
	logger      *slog.Logger
	metrics     *dmetrics.Metrics
	tracer      trace.Tracer

	mu          sync.RWMutex
	dispatchers map[string]*Dispatcher
}

type Option func(*Manager)

func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

func WithMetrics(metrics *dmetrics.Metrics) Option {
	return func(m *Manager) { m.metrics = metrics }
}

func WithComplianceEmitter(c ComplianceEmitter) Option {
	return func(m *Manager) { m.compliance = c }
}

func WithRetryPolicy(p RetryPolicy) Option {
	return func(m *Manager) { m.policy = p }
}

func NewManager(deadLetters DeadLetterStore, processed ProcessedStore, opts ...Option) *Manager {
	m := &Manager{
		deadLetters: deadLetters,
		processed:   processed,
		logger:      slog.Default(),
		tracer:      otel.Tracer("credence/internal/delivery"),
		dispatchers: make(map[string]*Dispatcher),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.policy = m.policy.withDefaults()
	return m
}

// Wrap returns the dispatcher for consumer, registering handler for replay.
func (m *Manager) Wrap(consumer string, handler events.Handler) *Dispatcher {
	d := &Dispatcher{consumer: consumer, handler: handler, m: m}
	m.mu.Lock()
	m.dispatchers[consumer] = d
	m.mu.Unlock()
	return d
}

// List returns dead letters matching filter, oldest first.
func (m *Manager) List(ctx context.Context, filter ListFilter) ([]DeadLetter, error) {
	dls, err := m.deadLetters.List(ctx, filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list dead letters")
	}
	return dls, nil
}

// Get returns one dead letter.
func (m *Manager) Get(ctx context.Context, id uuid.UUID) (*DeadLetter, error) {
	dl, err := m.deadLetters.Get(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "dead letter not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load dead letter")
	}
	return dl, nil
}

// Replay redelivers a dead letter to its consumer with a fresh retry budget.
// The entry stays open if the handler fails again.
func (m *Manager) Replay(ctx context.Context, id uuid.UUID, operator string) (*DeadLetter, error) {
	dl, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if dl.ReplayedAt != nil {
		return nil, dErrors.New(dErrors.CodeConflict, "dead letter was already replayed")
	}
	m.mu.RLock()
	d, ok := m.dispatchers[dl.Consumer]
	m.mu.RUnlock()
	if !ok {
		return nil, dErrors.New(dErrors.CodeNotFound, fmt.Sprintf("no consumer %q is running", dl.Consumer))
	}

	if seen, _ := m.seen(ctx, dl.Consumer, dl.IdempotencyKey); !seen {
		if _, err := d.attempt(ctx, dl.Envelope); err != nil {
			m.metrics.IncrementReplay(dl.Consumer, "error")
			m.logger.WarnContext(ctx, "dead letter replay failed",
				"dead_letter_id", dl.ID,
				"consumer", dl.Consumer,
				"error", err,
			)
			var de *dErrors.Error
			if errors.As(err, &de) {
				return nil, err
			}
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "replay failed; the dead letter remains open")
		}
		m.markProcessed(ctx, dl.Consumer, dl.IdempotencyKey)
	}

	now := requestcontext.Now(ctx)
	if err := m.deadLetters.MarkReplayed(ctx, dl.ID, now); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to close dead letter")
	}
	dl.ReplayedAt = &now
	m.metrics.IncrementReplay(dl.Consumer, "ok")
	m.emit(ctx, audit.ComplianceEvent{
		Timestamp: now,
		TenantID:  dl.Envelope.TenantID,
		Subject:   dl.Envelope.ActivityID.String(),
		Action:    audit.EventDeadLetterReplayed,
		Decision:  "replayed",
		Reason:    fmt.Sprintf("%s for %s", dl.IdempotencyKey, dl.Consumer),
		RequestID: requestcontext.RequestID(ctx),
		ActorID:   operator,
	})
	m.logger.InfoContext(ctx, "dead letter replayed",
		"dead_letter_id", dl.ID,
		"consumer", dl.Consumer,
		"idempotency_key", dl.IdempotencyKey,
	)
	return dl, nil
}

func (m *Manager) seen(ctx context.Context, consumer, key string) (bool, error) {
	seen, err := m.processed.Seen(ctx, consumer, key)
	if err != nil {
		// Handlers are idempotent; a lookup failure only costs a redundant run.
		m.logger.WarnContext(ctx, "processed key lookup failed", "consumer", consumer, "error", err)
		return false, err
	}
	return seen, nil
}

func (m *Manager) markProcessed(ctx context.Context, consumer, key string) {
	if err := m.processed.MarkProcessed(ctx, consumer, key); err != nil {
		m.logger.WarnContext(ctx, "failed to mark key processed", "consumer", consumer, "idempotency_key", key, "error", err)
	}
}

func (m *Manager) emit(ctx context.Context, event audit.ComplianceEvent) {
	if m.compliance == nil {
		return
	}
	if err := m.compliance.Emit(ctx, event); err != nil {
		m.logger.ErrorContext(ctx, "failed to record delivery audit fact", "action", event.Action, "error", err)
	}
}

// Dispatcher is an events.Handler that adds duplicate suppression, retries
// and dead-lettering around one consumer's handler.
type Dispatcher struct {
	consumer string
	handler  events.Handler
	m        *Manager
}

func (d *Dispatcher) Consumer() string { return d.consumer }

// Handle acknowledges the envelope once it was processed or dead-lettered.
// It returns an error only when neither could be recorded, so the transport
// redelivers.
func (d *Dispatcher) Handle(ctx context.Context, env events.Envelope) (err error) {
	key := env.IdempotencyKey()
	ctx, span := d.m.tracer.Start(ctx, "delivery.handle", trace.WithAttributes(
		attribute.String("consumer", d.consumer),
		attribute.String("event.type", string(env.Type)),
		attribute.String("event.idempotency_key", key),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "delivery failed")
		}
		span.End()
	}()

	if seen, _ := d.m.seen(ctx, d.consumer, key); seen {
		d.m.metrics.IncrementDuplicate(d.consumer)
		d.m.logger.DebugContext(ctx, "duplicate delivery skipped", "consumer", d.consumer, "idempotency_key", key)
		return nil
	}

	attempts, herr := d.attempt(ctx, env)
	if herr == nil {
		d.m.markProcessed(ctx, d.consumer, key)
		return nil
	}
	if ctx.Err() != nil {
		// Shutting down; leave the envelope for redelivery.
		return ctx.Err()
	}
	span.SetAttributes(attribute.Int("delivery.attempts", attempts))
	return d.deadLetter(ctx, env, attempts, herr)
}

// attempt runs the handler under the retry policy. Domain errors that a retry
// cannot fix stop the loop early.
func (d *Dispatcher) attempt(ctx context.Context, env events.Envelope) (int, error) {
	attempts := 0
	op := func() error {
		attempts++
		err := d.handler.Handle(ctx, env)
		if err == nil {
			d.m.metrics.IncrementDelivery(d.consumer, "ok")
			return nil
		}
		d.m.metrics.IncrementDelivery(d.consumer, "error")
		if permanent(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		d.m.logger.WarnContext(ctx, "delivery failed; retrying",
			"consumer", d.consumer,
			"event_type", env.Type,
			"activity_id", env.ActivityID,
			"attempt", attempts,
			"retry_in", wait,
			"error", err,
		)
	}
	err := backoff.RetryNotify(op, d.m.policy.backOff(ctx), notify)
	return attempts, err
}

func (d *Dispatcher) deadLetter(ctx context.Context, env events.Envelope, attempts int, cause error) error {
	now := requestcontext.Now(ctx)
	dl := DeadLetter{
		ID:             uuid.New(),
		Consumer:       d.consumer,
		IdempotencyKey: env.IdempotencyKey(),
		Envelope:       env,
		Attempts:       attempts,
		LastError:      cause.Error(),
		DeadLetteredAt: now,
	}
	if err := d.m.deadLetters.Add(ctx, dl); err != nil {
		d.m.logger.ErrorContext(ctx, "failed to dead-letter envelope",
			"consumer", d.consumer,
			"idempotency_key", dl.IdempotencyKey,
			"error", err,
		)
		return fmt.Errorf("dead-letter %s: %w", dl.IdempotencyKey, err)
	}

	d.m.metrics.IncrementDeadLettered(d.consumer)
	d.m.logger.ErrorContext(ctx, "envelope dead-lettered",
		"consumer", d.consumer,
		"dead_letter_id", dl.ID,
		"event_type", env.Type,
		"tenant_id", env.TenantID,
		"activity_id", env.ActivityID,
		"attempts", attempts,
		"error", cause,
	)
	d.m.emit(ctx, audit.ComplianceEvent{
		Timestamp: now,
		TenantID:  env.TenantID,
		Subject:   env.ActivityID.String(),
		Action:    audit.EventDeadLettered,
		Decision:  "dead_lettered",
		Reason:    fmt.Sprintf("%s for %s after %d attempts: %s", dl.IdempotencyKey, d.consumer, attempts, dErrors.MessageOf(cause)),
		ActorID:   "delivery:" + d.consumer,
	})
	return nil
}

// permanent reports errors a retry cannot fix: domain errors other than
// internal failures and the explicitly retryable codes.
func permanent(err error) bool {
	var de *dErrors.Error
	if !errors.As(err, &de) {
		return false
	}
	return de.Code != dErrors.CodeInternal && !dErrors.Retryable(err)
}
