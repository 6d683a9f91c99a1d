package integration

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v5"

	actmodels "credence/internal/activity/models"
	actservice "credence/internal/activity/service"
	"credence/internal/integration/metrics"
	"credence/pkg/domain"
	dErrors "credence/pkg/domain-errors"
	audit "credence/pkg/platform/audit"
	"credence/pkg/requestcontext"
)

// integrationNamespace seeds the per-tenant integration user IDs.
var integrationNamespace = uuid.MustParse("6f1c1f4e-2f7b-4f0e-9d8a-3c1b5e7a9d20")

type ActivityCreator interface {
	Create(ctx context.Context, actor domain.Actor, req actservice.CreateRequest) (*actmodels.Activity, error)
}

type SecurityEmitter interface {
	Emit(ctx context.Context, event audit.SecurityEvent)
}

// Request is one signed inbound call.
type Request struct {
	TenantID  string
	Timestamp string
	Signature string
	Body      []byte
}

type Service struct {
	verifier   *SignatureVerifier
	schema     *jsonschema.Schema
	activities ActivityCreator
	security   SecurityEmitter
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithSecurityEmitter(e SecurityEmitter) Option {
	return func(s *Service) { s.security = e }
}

func NewService(verifier *SignatureVerifier, activities ActivityCreator, opts ...Option) (*Service, error) {
	schema, err := compileActivitySchema()
	if err != nil {
		return nil, err
	}
	s := &Service{
		verifier:   verifier,
		schema:     schema,
		activities: activities,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// ActorFor returns the identity inbound activities of tenantID are created
// under. The user ID is stable per tenant.
func ActorFor(tenantID domain.TenantID) domain.Actor {
	return domain.Actor{
		TenantID: tenantID,
		UserID:   domain.UserID(uuid.NewSHA1(integrationNamespace, []byte(tenantID.String()))),
		Role:     domain.RoleIntegration,
	}
}

// Receive authenticates req and creates the activity it describes. Signature
// failures are returned as CodeInvalidSignature without detail and recorded
// as security events. They are never retried.
func (s *Service) Receive(ctx context.Context, req Request) (*actmodels.Activity, error) {
	tenantID, err := domain.ParseTenantID(req.TenantID)
	if err != nil {
		return nil, s.reject(ctx, domain.TenantID{}, req.TenantID, dErrors.New(dErrors.CodeInvalidSignature, "unknown tenant"))
	}
	if err := s.verifier.Verify(tenantID, req.Timestamp, req.Signature, req.Body, requestcontext.Now(ctx)); err != nil {
		return nil, s.reject(ctx, tenantID, req.TenantID, err)
	}

	payload, err := parsePayload(s.schema, req.Body)
	if err != nil {
		s.metrics.IncrementRequest("invalid_payload")
		return nil, err
	}
	actor := ActorFor(tenantID)
	createReq, err := payload.CreateRequest(actor.UserID, requestcontext.Now(ctx))
	if err != nil {
		s.metrics.IncrementRequest("invalid_payload")
		return nil, err
	}

	a, err := s.activities.Create(ctx, actor, createReq)
	if err != nil {
		s.metrics.IncrementRequest("rejected")
		return nil, err
	}
	s.metrics.IncrementRequest("accepted")
	s.logger.InfoContext(ctx, "inbound activity accepted",
		"tenant_id", tenantID,
		"activity_id", a.ID,
		"external_ref", payload.ExternalRef,
		"status", a.Status,
	)
	return a, nil
}

func (s *Service) reject(ctx context.Context, tenantID domain.TenantID, rawTenant string, cause error) error {
	s.metrics.IncrementRequest("invalid_signature")
	reason := dErrors.MessageOf(cause)
	s.logger.WarnContext(ctx, "inbound request rejected",
		"tenant", rawTenant,
		"reason", reason,
		"request_id", requestcontext.RequestID(ctx),
	)
	if s.security != nil {
		s.security.Emit(ctx, audit.SecurityEvent{
			TenantID: tenantID,
			Subject:  rawTenant,
			Action:   audit.EventInboundSignatureRejected,
			Reason:   reason,
			ActorID:  string(domain.RoleIntegration),
			Severity: audit.SeverityWarning,
		})
	}
	return dErrors.New(dErrors.CodeInvalidSignature, "request signature could not be verified")
}
