// Package credential turns verified activities into signed, externally
// verifiable credentials and revokes them when an activity is withdrawn.
package credential

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	actmodels "credence/internal/activity/models"
	cmetrics "credence/internal/credential/metrics"
	"credence/internal/credential/models"
	"credence/internal/credential/store"
	"credence/internal/events"
	"credence/internal/proof"
	"credence/pkg/domain"
	dErrors "credence/pkg/domain-errors"
	audit "credence/pkg/platform/audit"
	"credence/pkg/platform/sentinel"
	"credence/pkg/platform/tx"
	"credence/pkg/requestcontext"
)

type ActivityReader interface {
	FindByID(ctx context.Context, tenantID domain.TenantID, id domain.ActivityID) (*actmodels.Activity, error)
}

type ProofVerifier interface {
	Verify(ctx context.Context, refs []proof.Ref) error
}

type ComplianceEmitter interface {
	Emit(ctx context.Context, event audit.ComplianceEvent) error
}

type SecurityEmitter interface {
	Emit(ctx context.Context, event audit.SecurityEvent)
}

// Issuer consumes activity events. It is idempotent per activity: replaying
// activity.verified never yields a second unrevoked credential.
type Issuer struct {
	credentials store.Store
	activities  ActivityReader
	proofs      ProofVerifier
	keys        *Keyring
	outbox      events.Outbox
	tx          tx.Runner
	compliance  ComplianceEmitter
	security    SecurityEmitter
	logger      *slog.Logger
	metrics     *cmetrics.Metrics
	tracer      trace.Tracer
}

type Option func(*Issuer)

func WithLogger(logger *slog.Logger) Option {
	return func(i *Issuer) { i.logger = logger }
}

func WithMetrics(m *cmetrics.Metrics) Option {
	return func(i *Issuer) { i.metrics = m }
}

func WithTxRunner(r tx.Runner) Option {
	return func(i *Issuer) { i.tx = r }
}

func WithComplianceEmitter(c ComplianceEmitter) Option {
	return func(i *Issuer) { i.compliance = c }
}

func WithSecurityEmitter(s SecurityEmitter) Option {
	return func(i *Issuer) { i.security = s }
}

func NewIssuer(credentials store.Store, activities ActivityReader, proofs ProofVerifier, keys *Keyring, outbox events.Outbox, opts ...Option) *Issuer {
	i := &Issuer{
		credentials: credentials,
		activities:  activities,
		proofs:      proofs,
		keys:        keys,
		outbox:      outbox,
		logger:      slog.Default(),
		tracer:      otel.Tracer("credence/internal/credential"),
	}
	for _, opt := range opts {
		opt(i)
	}
	if i.tx == nil {
		i.tx = tx.NewKeyedRunner(0)
	}
	return i
}

// Handle routes verified activities to Issue and withdrawn ones to Revoke.
// Other event types are acknowledged untouched.
func (i *Issuer) Handle(ctx context.Context, env events.Envelope) error {
	switch env.Type {
	case events.TypeActivityVerified:
		_, err := i.Issue(ctx, env)
		return err
	case events.TypeActivityWithdrawn:
		return i.Revoke(ctx, env)
	default:
		return nil
	}
}

// Issue signs and records a credential for the verified activity in env.
// It returns the existing credential when one is already in force, and nil
// when the activity is no longer verified.
func (i *Issuer) Issue(ctx context.Context, env events.Envelope) (issued *models.Credential, err error) {
	ctx, span := i.tracer.Start(ctx, "credential.issue", trace.WithAttributes(
		attribute.String("activity.id", env.ActivityID.String()),
		attribute.Int64("event.sequence_no", env.SequenceNo),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
		}
		span.End()
	}()

	var payload events.ActivityPayload
	if err := env.Decode(&payload); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "activity.verified payload is malformed")
	}

	err = i.tx.RunInTx(tx.WithLockKey(ctx, actmodels.LockKey(env.ActivityID)), func(txCtx context.Context) error {
		existing, err := i.credentials.FindByActivity(txCtx, env.TenantID, env.ActivityID)
		switch {
		case err == nil && !existing.IsRevoked():
			i.metrics.IncrementSkipped("already_issued")
			issued = existing
			return nil
		case err == nil:
			i.metrics.IncrementSkipped("revoked")
			return nil
		case !errors.Is(err, sentinel.ErrNotFound):
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load credential")
		}

		a, err := i.activities.FindByID(txCtx, env.TenantID, env.ActivityID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "activity not found")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load activity")
		}
		if a.Status != actmodels.StatusVerified {
			i.metrics.IncrementSkipped("not_verified")
			i.logger.InfoContext(txCtx, "activity no longer verified; credential not issued",
				"tenant_id", a.TenantID,
				"activity_id", a.ID,
				"status", a.Status,
			)
			return nil
		}
		if err := i.proofs.Verify(txCtx, a.ProofRefs); err != nil {
			if dErrors.HasCode(err, dErrors.CodeProofTampered) {
				i.emitTampered(txCtx, a, err)
			}
			return err
		}
		key, err := i.keys.Signer(a.TenantID)
		if err != nil {
			return err
		}

		now := requestcontext.Now(txCtx)
		c, err := sign(a, payload.ActorID, key, now)
		if err != nil {
			return err
		}
		if err := i.credentials.Create(txCtx, c); err != nil {
			if errors.Is(err, sentinel.ErrAlreadyExists) {
				return dErrors.New(dErrors.CodeConcurrentModification, "credential issued concurrently")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to store credential")
		}
		out, err := events.New(events.TypeCredentialIssued, a.TenantID, a.ID, env.SequenceNo, now, events.CredentialPayload{
			CredentialID: c.ID,
			StudentID:    c.SubjectID,
			KeyID:        c.KeyID,
			PayloadHash:  c.PayloadHash.String(),
		})
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to build event")
		}
		if err := i.outbox.Add(txCtx, out); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record event")
		}
		if err := i.emit(txCtx, audit.ComplianceEvent{
			Timestamp: now,
			TenantID:  a.TenantID,
			Subject:   a.ID.String(),
			Action:    audit.EventCredentialIssued,
			Decision:  "issued",
			Reason:    c.ID.String(),
			ActorID:   "credential-issuer",
		}); err != nil {
			return err
		}
		issued = c
		i.metrics.IncrementIssued()
		i.logger.InfoContext(txCtx, "credential issued",
			"tenant_id", a.TenantID,
			"activity_id", a.ID,
			"credential_id", c.ID,
			"key_id", c.KeyID,
		)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return issued, nil
}

// Revoke revokes the credential of the withdrawn activity in env. Activities
// that never had a credential and credentials already revoked are no-ops.
func (i *Issuer) Revoke(ctx context.Context, env events.Envelope) error {
	var payload events.ActivityPayload
	if err := env.Decode(&payload); err != nil {
		return dErrors.Wrap(err, dErrors.CodeValidation, "activity.withdrawn payload is malformed")
	}

	return i.tx.RunInTx(tx.WithLockKey(ctx, actmodels.LockKey(env.ActivityID)), func(txCtx context.Context) error {
		c, err := i.credentials.FindByActivity(txCtx, env.TenantID, env.ActivityID)
		if errors.Is(err, sentinel.ErrNotFound) {
			i.metrics.IncrementSkipped("nothing_issued")
			return nil
		}
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load credential")
		}
		if c.IsRevoked() {
			i.metrics.IncrementSkipped("already_revoked")
			return nil
		}

		now := requestcontext.Now(txCtx)
		if err := i.credentials.Revoke(txCtx, c.TenantID, c.ID, now); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to revoke credential")
		}
		out, err := events.New(events.TypeCredentialRevoked, c.TenantID, c.ActivityID, env.SequenceNo, now, events.CredentialPayload{
			CredentialID: c.ID,
			StudentID:    c.SubjectID,
			KeyID:        c.KeyID,
			Reason:       payload.Comment,
		})
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to build event")
		}
		if err := i.outbox.Add(txCtx, out); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record event")
		}
		if err := i.emit(txCtx, audit.ComplianceEvent{
			Timestamp: now,
			TenantID:  c.TenantID,
			Subject:   c.ActivityID.String(),
			Action:    audit.EventCredentialRevoked,
			Decision:  "revoked",
			Reason:    payload.Comment,
			ActorID:   payload.ActorID.String(),
		}); err != nil {
			return err
		}
		i.metrics.IncrementRevoked()
		i.logger.InfoContext(txCtx, "credential revoked",
			"tenant_id", c.TenantID,
			"activity_id", c.ActivityID,
			"credential_id", c.ID,
		)
		return nil
	})
}

// Get returns the latest credential of an activity the actor can see.
func (i *Issuer) Get(ctx context.Context, actor domain.Actor, activityID domain.ActivityID) (*models.Credential, error) {
	a, err := i.activities.FindByID(ctx, actor.TenantID, activityID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "activity not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load activity")
	}
	if !a.VisibleTo(actor) {
		return nil, dErrors.New(dErrors.CodeNotFound, "activity not found")
	}
	c, err := i.credentials.FindByActivity(ctx, actor.TenantID, activityID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "no credential has been issued for this activity")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load credential")
	}
	return c, nil
}

// Verify checks the activity's credential against the tenant's public key.
func (i *Issuer) Verify(ctx context.Context, actor domain.Actor, activityID domain.ActivityID) (*models.VerifyResult, error) {
	c, err := i.Get(ctx, actor, activityID)
	if err != nil {
		return nil, err
	}
	pub, err := i.keys.PublicKey(c.TenantID, c.KeyID)
	if err != nil {
		return nil, err
	}
	result := VerifyCredential(c, pub)
	return &result, nil
}

func (i *Issuer) emit(ctx context.Context, event audit.ComplianceEvent) error {
	if i.compliance == nil {
		return nil
	}
	if err := i.compliance.Emit(ctx, event); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record audit fact")
	}
	return nil
}

func (i *Issuer) emitTampered(ctx context.Context, a *actmodels.Activity, cause error) {
	i.logger.ErrorContext(ctx, "proof integrity check failed at issuance",
		"tenant_id", a.TenantID,
		"activity_id", a.ID,
		"error", cause,
	)
	if i.security == nil {
		return
	}
	i.security.Emit(ctx, audit.SecurityEvent{
		TenantID: a.TenantID,
		Subject:  a.ID.String(),
		Action:   audit.EventProofTamperDetected,
		Reason:   dErrors.MessageOf(cause),
		ActorID:  "credential-issuer",
		Severity: audit.SeverityCritical,
	})
}
