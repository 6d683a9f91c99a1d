// Package compliance writes the audit facts an operation cannot succeed
// without: credential revocations, dead letters, replays and ledger
// inconsistencies. A write joins the unit of work carried by ctx, so the fact
// and the change it describes commit together.
package compliance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	audit "credence/pkg/platform/audit"
	"credence/pkg/requestcontext"
)

// ErrIncomplete is returned for events missing their action or subject.
var ErrIncomplete = errors.New("compliance event requires action and subject")

// Publisher persists compliance events synchronously.
type Publisher struct {
	store   audit.Store
	logger  *slog.Logger
	metrics *Metrics
}

type Option func(*Publisher)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		if logger != nil {
			p.logger = logger
		}
	}
}

func WithMetrics(m *Metrics) Option {
	return func(p *Publisher) { p.metrics = m }
}

func New(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{store: store, logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Emit records event. Callers abort their operation on error.
func (p *Publisher) Emit(ctx context.Context, event audit.ComplianceEvent) error {
	if event.Action == "" || event.Subject == "" {
		return ErrIncomplete
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = requestcontext.Now(ctx)
	}
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}

	start := time.Now()
	err := p.store.Append(ctx, event.ToEvent())
	p.metrics.ObservePersistDuration(time.Since(start).Seconds())
	if err != nil {
		p.metrics.IncPersistFailures()
		p.logger.ErrorContext(ctx, "compliance event not persisted",
			"action", event.Action,
			"subject", event.Subject,
			"tenant_id", event.TenantID.String(),
			"error", err,
		)
		return fmt.Errorf("persist compliance event %s: %w", event.Action, err)
	}
	p.metrics.IncEventsEmitted()
	return nil
}
