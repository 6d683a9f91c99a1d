// Package verification applies lifecycle transitions to activities. Every
// transition commits the activity change, its ledger record and its outbound
// event as one unit of work.
package verification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	actmodels "credence/internal/activity/models"
	"credence/internal/events"
	"credence/internal/ledger"
	"credence/internal/proof"
	vmetrics "credence/internal/verification/metrics"
	"credence/pkg/domain"
	dErrors "credence/pkg/domain-errors"
	audit "credence/pkg/platform/audit"
	"credence/pkg/platform/sentinel"
	"credence/pkg/platform/tx"
	"credence/pkg/requestcontext"
)

const (
	defaultTimeout  = 5 * time.Second
	maxCommentRunes = 2000
)

type ActivityStore interface {
	FindByID(ctx context.Context, tenantID domain.TenantID, id domain.ActivityID) (*actmodels.Activity, error)
	Update(ctx context.Context, a *actmodels.Activity, expectedVersion int64) error
}

type LedgerAppender interface {
	Append(ctx context.Context, rec ledger.Record) error
}

type ProofVerifier interface {
	Verify(ctx context.Context, refs []proof.Ref) error
}

type SecurityEmitter interface {
	Emit(ctx context.Context, event audit.SecurityEvent)
}

// Engine is the only writer of activity status after creation.
type Engine struct {
	activities ActivityStore
	ledger     LedgerAppender
	outbox     events.Outbox
	proofs     ProofVerifier
	tx         tx.Runner
	security   SecurityEmitter
	sanitizer  *bluemonday.Policy
	timeout    time.Duration
	logger     *slog.Logger
	metrics    *vmetrics.Metrics
	tracer     trace.Tracer

	bulkParallelism int
	bulkMaxItems    int
}

type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

func WithMetrics(m *vmetrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func WithTxRunner(r tx.Runner) Option {
	return func(e *Engine) { e.tx = r }
}

func WithSecurityEmitter(s SecurityEmitter) Option {
	return func(e *Engine) { e.security = s }
}

// WithTimeout bounds each transition, including lock wait and commit.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithBulkLimits bounds ApplyBulk concurrency and batch size.
func WithBulkLimits(parallelism, maxItems int) Option {
	return func(e *Engine) {
		if parallelism > 0 {
			e.bulkParallelism = parallelism
		}
		if maxItems > 0 {
			e.bulkMaxItems = maxItems
		}
	}
}

func New(activities ActivityStore, ledger LedgerAppender, outbox events.Outbox, proofs ProofVerifier, opts ...Option) *Engine {
	e := &Engine{
		activities:      activities,
		ledger:          ledger,
		outbox:          outbox,
		proofs:          proofs,
		sanitizer:       bluemonday.StrictPolicy(),
		timeout:         defaultTimeout,
		logger:          slog.Default(),
		tracer:          otel.Tracer("credence/internal/verification"),
		bulkParallelism: defaultBulkParallelism,
		bulkMaxItems:    defaultBulkMaxItems,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.tx == nil {
		e.tx = tx.NewKeyedRunner(e.timeout)
	}
	return e
}

// TransitionRequest asks for one lifecycle step. A non-zero ExpectedVersion
// must equal the activity's current version.
type TransitionRequest struct {
	ActivityID      domain.ActivityID
	Action          actmodels.Action
	Comment         string
	ExpectedVersion int64
}

// TransitionResult is the committed outcome.
type TransitionResult struct {
	ActivityID domain.ActivityID `json:"activity_id"`
	Status     actmodels.Status  `json:"status"`
	SequenceNo int64             `json:"sequence_no"`
	Version    int64             `json:"version"`
}

// Apply validates and commits one transition.
//
// Order of checks: concurrency token, authorization, lifecycle, preconditions.
// A stale token therefore reports ConcurrentModification even when the action
// is no longer legal from the newer status.
func (e *Engine) Apply(ctx context.Context, actor domain.Actor, req TransitionRequest) (result *TransitionResult, err error) {
	start := time.Now()
	ctx, span := e.tracer.Start(ctx, "verification.apply", trace.WithAttributes(
		attribute.String("activity.id", req.ActivityID.String()),
		attribute.String("transition.action", string(req.Action)),
		attribute.String("actor.role", string(actor.Role)),
	))
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = string(dErrors.CodeOf(err))
			span.RecordError(err)
			span.SetStatus(codes.Error, outcome)
		}
		span.End()
		e.metrics.ObserveTransition(string(req.Action), outcome, start)
	}()

	if err := actor.Validate(); err != nil {
		return nil, err
	}
	if _, err := actmodels.ParseAction(string(req.Action)); err != nil {
		return nil, err
	}
	comment, err := e.sanitizeComment(req.Comment)
	if err != nil {
		return nil, err
	}
	if req.Action == actmodels.ActionReject && comment == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "a comment is required when rejecting")
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	err = e.tx.RunInTx(tx.WithLockKey(ctx, actmodels.LockKey(req.ActivityID)), func(txCtx context.Context) error {
		a, err := e.activities.FindByID(txCtx, actor.TenantID, req.ActivityID)
		if err != nil {
			return wrapStoreErr(err)
		}
		if req.ExpectedVersion > 0 && a.Version != req.ExpectedVersion {
			return errConcurrent()
		}
		if err := Authorize(actor, SubjectOf(a), req.Action); err != nil {
			if dErrors.HasCode(err, dErrors.CodeUnauthorized) {
				e.emitDenied(txCtx, actor, a, req.Action, err)
			}
			return err
		}
		to, err := a.CanTransition(req.Action)
		if err != nil {
			return err
		}
		if req.Action == actmodels.ActionSubmit || req.Action == actmodels.ActionResubmit {
			if err := e.proofs.Verify(txCtx, a.ProofRefs); err != nil {
				if dErrors.HasCode(err, dErrors.CodeProofTampered) {
					e.emitTampered(txCtx, actor, a, err)
				}
				return err
			}
		}

		from, version := a.Status, a.Version
		now := requestcontext.Now(txCtx)
		a.ApplyTransition(to, a.SequenceNo+1, now)

		if err := e.activities.Update(txCtx, a, version); err != nil {
			return wrapStoreErr(err)
		}
		rec := ledger.NewRecord(a, actor, from, req.Action, comment)
		if err := rec.Validate(); err != nil {
			return err
		}
		if err := e.ledger.Append(txCtx, rec); err != nil {
			if errors.Is(err, sentinel.ErrInvalidState) {
				e.logger.ErrorContext(txCtx, "CRITICAL: ledger rejected transition sequence",
					"tenant_id", a.TenantID,
					"activity_id", a.ID,
					"sequence_no", a.SequenceNo,
				)
				return dErrors.New(dErrors.CodeLedgerInconsistency,
					fmt.Sprintf("ledger for activity has no sequence %d", a.SequenceNo-1))
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record transition")
		}
		typ, ok := events.ForAction(req.Action)
		if !ok {
			return dErrors.New(dErrors.CodeInvariantViolation, "no event for action")
		}
		env, err := events.ForActivity(typ, a, actor, from, comment, a.SequenceNo, now)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to build event")
		}
		if err := e.outbox.Add(txCtx, env); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record event")
		}

		result = &TransitionResult{
			ActivityID: a.ID,
			Status:     a.Status,
			SequenceNo: a.SequenceNo,
			Version:    a.Version,
		}
		return nil
	})
	if err != nil {
		if ctx.Err() != nil && !dErrors.HasCode(err, dErrors.CodeTimeout) {
			return nil, dErrors.Wrap(err, dErrors.CodeTimeout, "transition did not complete in time; retry")
		}
		return nil, err
	}

	span.SetAttributes(attribute.Int64("transition.sequence_no", result.SequenceNo))
	e.logger.InfoContext(ctx, "transition applied",
		"tenant_id", actor.TenantID,
		"activity_id", result.ActivityID,
		"action", req.Action,
		"status", result.Status,
		"sequence_no", result.SequenceNo,
	)
	return result, nil
}

// sanitizeComment strips markup and bounds length.
func (e *Engine) sanitizeComment(comment string) (string, error) {
	clean := strings.TrimSpace(e.sanitizer.Sanitize(comment))
	if len([]rune(clean)) > maxCommentRunes {
		return "", dErrors.New(dErrors.CodeValidation, fmt.Sprintf("comment must be %d characters or less", maxCommentRunes))
	}
	return clean, nil
}

func (e *Engine) emitDenied(ctx context.Context, actor domain.Actor, a *actmodels.Activity, action actmodels.Action, cause error) {
	e.logger.WarnContext(ctx, "transition denied",
		"tenant_id", a.TenantID,
		"activity_id", a.ID,
		"actor_id", actor.UserID,
		"role", actor.Role,
		"action", action,
	)
	if e.security == nil {
		return
	}
	e.security.Emit(ctx, audit.SecurityEvent{
		TenantID: a.TenantID,
		Subject:  a.ID.String(),
		Action:   audit.EventTransitionDenied,
		Reason:   fmt.Sprintf("%s: %s", action, dErrors.MessageOf(cause)),
		ActorID:  actor.UserID.String(),
		Severity: audit.SeverityWarning,
	})
}

func (e *Engine) emitTampered(ctx context.Context, actor domain.Actor, a *actmodels.Activity, cause error) {
	e.logger.WarnContext(ctx, "proof integrity check failed",
		"tenant_id", a.TenantID,
		"activity_id", a.ID,
		"error", cause,
	)
	if e.security == nil {
		return
	}
	e.security.Emit(ctx, audit.SecurityEvent{
		TenantID: a.TenantID,
		Subject:  a.ID.String(),
		Action:   audit.EventProofTamperDetected,
		Reason:   dErrors.MessageOf(cause),
		ActorID:  actor.UserID.String(),
		Severity: audit.SeverityCritical,
	})
}

func errConcurrent() error {
	return dErrors.New(dErrors.CodeConcurrentModification, "activity was modified; reload and retry")
}

func wrapStoreErr(err error) error {
	var de *dErrors.Error
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "activity not found")
	case errors.Is(err, sentinel.ErrConflict):
		return errConcurrent()
	case errors.As(err, &de):
		return err
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "activity store failure")
	}
}
