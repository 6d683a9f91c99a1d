package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	actmodels "credence/internal/activity/models"
	actservice "credence/internal/activity/service"
	credmodels "credence/internal/credential/models"
	"credence/internal/delivery"
	"credence/internal/ledger"
	"credence/internal/verification"
	"credence/pkg/domain"
	dErrors "credence/pkg/domain-errors"
)

type ActivityService interface {
	Create(ctx context.Context, actor domain.Actor, req actservice.CreateRequest) (*actmodels.Activity, error)
	Get(ctx context.Context, actor domain.Actor, id domain.ActivityID) (*actmodels.Activity, error)
	List(ctx context.Context, actor domain.Actor, req actservice.ListRequest) (*actservice.ListPage, error)
	UploadProof(ctx context.Context, actor domain.Actor, id domain.ActivityID, data []byte, expectedVersion int64) (*actmodels.Activity, error)
}

type TransitionEngine interface {
	Apply(ctx context.Context, actor domain.Actor, req verification.TransitionRequest) (*verification.TransitionResult, error)
	ApplyBulk(ctx context.Context, actor domain.Actor, req verification.BulkRequest) ([]verification.BulkItemResult, error)
}

type LedgerService interface {
	History(ctx context.Context, actor domain.Actor, activityID domain.ActivityID, cursor ledger.Cursor) (*ledger.Page, error)
	VerifyConsistency(ctx context.Context, tenantID domain.TenantID, activityID domain.ActivityID) error
}

type CredentialService interface {
	Get(ctx context.Context, actor domain.Actor, activityID domain.ActivityID) (*credmodels.Credential, error)
	Verify(ctx context.Context, actor domain.Actor, activityID domain.ActivityID) (*credmodels.VerifyResult, error)
}

type DeadLetterService interface {
	List(ctx context.Context, filter delivery.ListFilter) ([]delivery.DeadLetter, error)
	Get(ctx context.Context, id uuid.UUID) (*delivery.DeadLetter, error)
	Replay(ctx context.Context, id uuid.UUID, operator string) (*delivery.DeadLetter, error)
}

const defaultMaxUploadBytes = 10 << 20

// Handler is the thin HTTP layer over the domain services. Authorization
// decisions stay in the services; handlers only parse and map.
type Handler struct {
	activities     ActivityService
	engine         TransitionEngine
	ledger         LedgerService
	credentials    CredentialService
	deadLetters    DeadLetterService
	logger         *slog.Logger
	maxUploadBytes int64
}

type Option func(*Handler)

func WithMaxUploadBytes(n int64) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxUploadBytes = n
		}
	}
}

func New(
	activities ActivityService,
	engine TransitionEngine,
	ledger LedgerService,
	credentials CredentialService,
	deadLetters DeadLetterService,
	logger *slog.Logger,
	opts ...Option,
) *Handler {
	h := &Handler{
		activities:     activities,
		engine:         engine,
		ledger:         ledger,
		credentials:    credentials,
		deadLetters:    deadLetters,
		logger:         logger,
		maxUploadBytes: defaultMaxUploadBytes,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts the authenticated routes. Callers install auth first.
func (h *Handler) Register(r chi.Router) {
	r.Route("/v1/activities", func(r chi.Router) {
		r.Post("/", h.handleCreateActivity)
		r.Get("/", h.handleListActivities)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.handleGetActivity)
			r.Post("/proofs", h.handleUploadProof)
			r.Post("/transitions", h.handleTransition)
			r.Get("/history", h.handleHistory)
			r.Get("/credential", h.handleGetCredential)
			r.Get("/credential/verify", h.handleVerifyCredential)
		})
	})
	r.Post("/v1/transitions/bulk", h.handleBulkTransition)
}

// RegisterAdmin mounts the operator routes. Callers restrict them to admins.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Get("/v1/admin/activities/{id}/consistency", h.handleConsistency)
	r.Get("/v1/admin/dead-letters", h.handleListDeadLetters)
	r.Post("/v1/admin/dead-letters/{id}/replay", h.handleReplayDeadLetter)
}

func activityIDParam(r *http.Request) (domain.ActivityID, error) {
	id, err := domain.ParseActivityID(chi.URLParam(r, "id"))
	if err != nil {
		return domain.ActivityID{}, dErrors.New(dErrors.CodeBadRequest, "invalid activity id")
	}
	return id, nil
}

func queryInt(r *http.Request, key string) (int64, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n < 0 {
		return 0, dErrors.New(dErrors.CodeBadRequest, "invalid "+key)
	}
	return n, nil
}
