// Package service implements the activity registry: creation, reads and proof
// attachment. Status changes after creation go through the verification engine.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	actmetrics "credence/internal/activity/metrics"
	"credence/internal/activity/models"
	"credence/internal/activity/store"
	"credence/internal/events"
	"credence/internal/ledger"
	"credence/internal/proof"
	"credence/pkg/domain"
	dErrors "credence/pkg/domain-errors"
	"credence/pkg/platform/sentinel"
	"credence/pkg/platform/tx"
	"credence/pkg/requestcontext"
)

type ActivityStore interface {
	Create(ctx context.Context, a *models.Activity) error
	FindByID(ctx context.Context, tenantID domain.TenantID, id domain.ActivityID) (*models.Activity, error)
	Update(ctx context.Context, a *models.Activity, expectedVersion int64) error
	List(ctx context.Context, f store.ListFilter) ([]*models.Activity, error)
}

type LedgerAppender interface {
	Append(ctx context.Context, rec ledger.Record) error
}

type ProofVerifier interface {
	Verify(ctx context.Context, refs []proof.Ref) error
}

type ProofUploader interface {
	Upload(ctx context.Context, uploader domain.UserID, data []byte) (proof.Ref, error)
}

// Service is the activity registry.
type Service struct {
	activities ActivityStore
	ledger     LedgerAppender
	outbox     events.Outbox
	proofs     ProofVerifier
	uploader   ProofUploader
	tx         tx.Runner
	logger     *slog.Logger
	metrics    *actmetrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *actmetrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithTxRunner sets the unit-of-work runner shared with the stores.
func WithTxRunner(r tx.Runner) Option {
	return func(s *Service) { s.tx = r }
}

func WithUploader(u ProofUploader) Option {
	return func(s *Service) { s.uploader = u }
}

func New(activities ActivityStore, ledger LedgerAppender, outbox events.Outbox, proofs ProofVerifier, opts ...Option) *Service {
	s := &Service{
		activities: activities,
		ledger:     ledger,
		outbox:     outbox,
		proofs:     proofs,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.tx == nil {
		s.tx = tx.NewKeyedRunner(0)
	}
	return s
}

// CreateRequest carries the inputs of Create. StudentID may be left empty by
// students creating their own activity.
type CreateRequest struct {
	StudentID          domain.UserID
	Type               string
	Title              string
	Description        string
	Department         string
	AssignedVerifierID domain.UserID
	ProofRefs          []proof.Ref
	ProofWaived        bool
	Submit             bool
}

// Create records a new activity in Draft, or in Pending when req.Submit is set.
// A submitted activity gets ledger sequence 1 in the same unit of work.
func (s *Service) Create(ctx context.Context, actor domain.Actor, req CreateRequest) (*models.Activity, error) {
	if err := actor.Validate(); err != nil {
		return nil, err
	}
	studentID, err := s.authorizeCreate(actor, req)
	if err != nil {
		return nil, err
	}
	activityType, err := models.ParseActivityType(req.Type)
	if err != nil {
		return nil, err
	}
	refs, err := normalizeRefs(req.ProofRefs)
	if err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	a, err := models.NewActivity(models.NewActivityParams{
		ID:                 domain.NewActivityID(),
		TenantID:           actor.TenantID,
		StudentID:          studentID,
		Type:               activityType,
		Title:              req.Title,
		Description:        req.Description,
		Department:         req.Department,
		AssignedVerifierID: req.AssignedVerifierID,
		ProofRefs:          refs,
		ProofWaived:        req.ProofWaived,
		CreatedBy:          actor.UserID,
	}, now)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
			return nil, dErrors.New(dErrors.CodeValidation, err.Error())
		}
		return nil, err
	}

	var to models.Status
	if req.Submit {
		if to, err = a.CanTransition(models.ActionSubmit); err != nil {
			return nil, err
		}
		if err := s.proofs.Verify(ctx, a.ProofRefs); err != nil {
			return nil, err
		}
	}

	created, err := events.ForActivity(events.TypeActivityCreated, a, actor, "", "", 0, now)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to build event")
	}

	err = s.tx.RunInTx(tx.WithLockKey(ctx, models.LockKey(a.ID)), func(txCtx context.Context) error {
		if req.Submit {
			a.ApplyTransition(to, 1, now)
			// Creation and submission are one write.
			a.Version = 1
		}
		if err := s.activities.Create(txCtx, a); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create activity")
		}
		if err := s.outbox.Add(txCtx, created); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record event")
		}
		if !req.Submit {
			return nil
		}
		rec := ledger.NewRecord(a, actor, models.StatusDraft, models.ActionSubmit, "")
		if err := s.ledger.Append(txCtx, rec); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record transition")
		}
		submitted, err := events.ForActivity(events.TypeActivitySubmitted, a, actor, models.StatusDraft, "", a.SequenceNo, now)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to build event")
		}
		if err := s.outbox.Add(txCtx, submitted); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record event")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncrementCreated(string(a.Type), string(a.Status))
	s.logger.InfoContext(ctx, "activity created",
		"tenant_id", a.TenantID,
		"activity_id", a.ID,
		"status", a.Status,
	)
	return a, nil
}

func (s *Service) authorizeCreate(actor domain.Actor, req CreateRequest) (domain.UserID, error) {
	if req.ProofWaived && actor.Role != domain.RoleAdmin && actor.Role != domain.RoleIntegration {
		return domain.UserID{}, dErrors.New(dErrors.CodeUnauthorized, "only administrators and integrations may waive proof")
	}
	switch actor.Role {
	case domain.RoleStudent:
		if !req.StudentID.IsNil() && req.StudentID != actor.UserID {
			return domain.UserID{}, dErrors.New(dErrors.CodeUnauthorized, "students may only create their own activities")
		}
		return actor.UserID, nil
	case domain.RoleAdmin, domain.RoleIntegration:
		if req.StudentID.IsNil() {
			return domain.UserID{}, dErrors.New(dErrors.CodeValidation, "student is required")
		}
		return req.StudentID, nil
	default:
		return domain.UserID{}, dErrors.New(dErrors.CodeUnauthorized, "role may not create activities")
	}
}

// Get returns an activity visible to actor. Activities of other tenants, and
// ones actor may not see, are reported as not found.
func (s *Service) Get(ctx context.Context, actor domain.Actor, id domain.ActivityID) (*models.Activity, error) {
	if err := actor.Validate(); err != nil {
		return nil, err
	}
	a, err := s.activities.FindByID(ctx, actor.TenantID, id)
	if err != nil {
		return nil, wrapStoreErr(err)
	}
	if !a.VisibleTo(actor) {
		return nil, errNotFound()
	}
	return a, nil
}

// ListRequest filters a page of activities. After is the last id of the
// previous page.
type ListRequest struct {
	Status string
	After  domain.ActivityID
	Limit  int
}

// ListPage is one page of activities. NextAfter is nil on the last page.
type ListPage struct {
	Activities []*models.Activity `json:"activities"`
	NextAfter  *domain.ActivityID `json:"next_after,omitempty"`
}

const maxListLimit = 200

func (s *Service) List(ctx context.Context, actor domain.Actor, req ListRequest) (*ListPage, error) {
	if err := actor.Validate(); err != nil {
		return nil, err
	}
	f := store.ListFilter{TenantID: actor.TenantID, AfterID: req.After, Limit: req.Limit}
	if f.Limit <= 0 || f.Limit > maxListLimit {
		f.Limit = 50
	}
	if strings.TrimSpace(req.Status) != "" {
		status, err := models.ParseStatus(req.Status)
		if err != nil {
			return nil, err
		}
		f.Status = status
	}
	if actor.Role == domain.RoleStudent {
		f.StudentID = actor.UserID
	}

	fetched, err := s.activities.List(ctx, f)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list activities")
	}
	page := &ListPage{Activities: make([]*models.Activity, 0, len(fetched))}
	for _, a := range fetched {
		if a.VisibleTo(actor) {
			page.Activities = append(page.Activities, a)
		}
	}
	if len(fetched) == f.Limit {
		last := fetched[len(fetched)-1].ID
		page.NextAfter = &last
	}
	return page, nil
}

// AttachProof appends ref to the activity. Only the owner may attach, and only
// while the activity is in draft or pending_info. A non-zero expectedVersion
// must match the stored version.
func (s *Service) AttachProof(ctx context.Context, actor domain.Actor, id domain.ActivityID, ref proof.Ref, expectedVersion int64) (*models.Activity, error) {
	if err := actor.Validate(); err != nil {
		return nil, err
	}
	hash, err := proof.ParseContentHash(string(ref.ContentHash))
	if err != nil {
		return nil, err
	}
	ref.ContentHash = hash

	var updated *models.Activity
	err = s.tx.RunInTx(tx.WithLockKey(ctx, models.LockKey(id)), func(txCtx context.Context) error {
		a, err := s.loadForProof(txCtx, actor, id, expectedVersion)
		if err != nil {
			return err
		}
		current := a.Version
		a.ApplyProof(ref)
		if err := s.activities.Update(txCtx, a, current); err != nil {
			return wrapStoreErr(err)
		}
		updated = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncrementProofsAttached()
	return updated, nil
}

// UploadProof stores data in the proof store and attaches the resulting ref.
func (s *Service) UploadProof(ctx context.Context, actor domain.Actor, id domain.ActivityID, data []byte, expectedVersion int64) (*models.Activity, error) {
	if s.uploader == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "proof upload is not configured")
	}
	if err := actor.Validate(); err != nil {
		return nil, err
	}
	// Reject early so unauthorized callers cannot write to the proof store.
	if _, err := s.loadForProof(ctx, actor, id, expectedVersion); err != nil {
		return nil, err
	}
	ref, err := s.uploader.Upload(ctx, actor.UserID, data)
	if err != nil {
		return nil, err
	}
	return s.AttachProof(ctx, actor, id, ref, expectedVersion)
}

func (s *Service) loadForProof(ctx context.Context, actor domain.Actor, id domain.ActivityID, expectedVersion int64) (*models.Activity, error) {
	a, err := s.activities.FindByID(ctx, actor.TenantID, id)
	if err != nil {
		return nil, wrapStoreErr(err)
	}
	if !a.VisibleTo(actor) {
		return nil, errNotFound()
	}
	if !a.IsOwner(actor.UserID) {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "only the owner may attach proofs")
	}
	if expectedVersion > 0 && a.Version != expectedVersion {
		return nil, dErrors.New(dErrors.CodeConcurrentModification, "activity was modified; reload and retry")
	}
	if err := a.CanAttachProof(); err != nil {
		return nil, err
	}
	return a, nil
}

func errNotFound() error {
	return dErrors.New(dErrors.CodeNotFound, "activity not found")
}

func wrapStoreErr(err error) error {
	var de *dErrors.Error
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return errNotFound()
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConcurrentModification, "activity was modified; reload and retry")
	case errors.As(err, &de):
		return err
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "activity store failure")
	}
}

// normalizeRefs returns refs with canonical content hashes, the form the proof
// store is keyed by.
func normalizeRefs(refs []proof.Ref) ([]proof.Ref, error) {
	if len(refs) == 0 {
		return refs, nil
	}
	out := make([]proof.Ref, len(refs))
	for i, ref := range refs {
		hash, err := proof.ParseContentHash(string(ref.ContentHash))
		if err != nil {
			return nil, err
		}
		ref.ContentHash = hash
		out[i] = ref
	}
	return out, nil
}
