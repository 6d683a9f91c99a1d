package integration

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks ActivityCreator,SecurityEmitter

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	actmodels "credence/internal/activity/models"
	actservice "credence/internal/activity/service"
	"credence/internal/integration/metrics"
	"credence/internal/integration/mocks"
	"credence/internal/proof"
	"credence/pkg/domain"
	dErrors "credence/pkg/domain-errors"
	audit "credence/pkg/platform/audit"
	"credence/pkg/testutil"
)

// =============================================================================
// Inbound Integration Test Suite
// =============================================================================

type ServiceSuite struct {
	suite.Suite
	ctrl       *gomock.Controller
	activities *mocks.MockActivityCreator
	security   *mocks.MockSecurityEmitter
	metrics    *metrics.Metrics
	svc        *Service
	tenant     domain.TenantID
	now        time.Time
	ctx        context.Context
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

const testSecret = "lms-shared-secret"

func (s *ServiceSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.activities = mocks.NewMockActivityCreator(s.ctrl)
	s.security = mocks.NewMockSecurityEmitter(s.ctrl)
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.tenant = testutil.NewTenantID()
	s.now = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	s.ctx = testutil.FixedClock(context.Background(), s.now)

	verifier, err := NewSignatureVerifier(map[string]string{s.tenant.String(): testSecret}, time.Minute)
	s.Require().NoError(err)
	s.svc, err = NewService(verifier, s.activities,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithMetrics(s.metrics),
		WithSecurityEmitter(s.security),
	)
	s.Require().NoError(err)
}

func (s *ServiceSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *ServiceSuite) signed(body []byte) Request {
	ts := strconv.FormatInt(s.now.Unix(), 10)
	return Request{
		TenantID:  s.tenant.String(),
		Timestamp: ts,
		Signature: Sign([]byte(testSecret), ts, body),
		Body:      body,
	}
}

func (s *ServiceSuite) payload(mutate func(map[string]any)) []byte {
	p := map[string]any{
		"external_ref": "lms-4711",
		"student_id":   uuid.NewString(),
		"type":         "competition",
		"title":        "Regional robotics final",
		"department":   "Engineering",
	}
	if mutate != nil {
		mutate(p)
	}
	body, err := json.Marshal(p)
	s.Require().NoError(err)
	return body
}

func (s *ServiceSuite) TestAcceptsSignedRequest() {
	hash, err := proof.Compute(proof.AlgSHA256, []byte("scoresheet"))
	s.Require().NoError(err)
	studentID := uuid.New()
	body := s.payload(func(p map[string]any) {
		p["student_id"] = studentID.String()
		p["submit"] = true
		p["proof_refs"] = []map[string]any{{"content_hash": hash.String(), "media_type": "application/pdf", "size_bytes": 10}}
	})

	created := &actmodels.Activity{ID: domain.NewActivityID(), TenantID: s.tenant, Status: actmodels.StatusPending}
	s.activities.EXPECT().
		Create(gomock.Any(), ActorFor(s.tenant), gomock.Any()).
		DoAndReturn(func(_ context.Context, actor domain.Actor, req actservice.CreateRequest) (*actmodels.Activity, error) {
			s.Equal(domain.RoleIntegration, actor.Role)
			s.Equal(domain.UserID(studentID), req.StudentID)
			s.Equal("competition", req.Type)
			s.True(req.Submit)
			s.Require().Len(req.ProofRefs, 1)
			s.Equal(hash, req.ProofRefs[0].ContentHash)
			s.Equal(actor.UserID, req.ProofRefs[0].UploadedBy)
			s.Equal(s.now, req.ProofRefs[0].UploadedAt)
			return created, nil
		})

	a, err := s.svc.Receive(s.ctx, s.signed(body))
	s.Require().NoError(err)
	s.Equal(created.ID, a.ID)
	s.Equal(1.0, promtest.ToFloat64(s.metrics.Requests.WithLabelValues("accepted")))
}

func (s *ServiceSuite) TestRejectsBadSignature() {
	body := s.payload(nil)
	req := s.signed(body)
	req.Body = append([]byte(nil), body...)
	req.Body[len(req.Body)-2] = ' '

	s.security.EXPECT().Emit(gomock.Any(), gomock.Cond(func(e audit.SecurityEvent) bool {
		return e.Action == audit.EventInboundSignatureRejected &&
			e.TenantID == s.tenant &&
			e.Reason == "signature mismatch"
	}))

	_, err := s.svc.Receive(s.ctx, req)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidSignature))
	s.Equal("request signature could not be verified", dErrors.MessageOf(err))
	s.False(dErrors.Retryable(err))
	s.Equal(1.0, promtest.ToFloat64(s.metrics.Requests.WithLabelValues("invalid_signature")))
}

func (s *ServiceSuite) TestRejectsMalformedTenant() {
	req := s.signed(s.payload(nil))
	req.TenantID = "acme"

	s.security.EXPECT().Emit(gomock.Any(), gomock.Cond(func(e audit.SecurityEvent) bool {
		return e.Subject == "acme" && e.TenantID.IsNil()
	}))

	_, err := s.svc.Receive(s.ctx, req)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidSignature))
}

func (s *ServiceSuite) TestRejectsReplayOutsideWindow() {
	body := s.payload(nil)
	req := s.signed(body)

	s.security.EXPECT().Emit(gomock.Any(), gomock.Any())

	late := testutil.FixedClock(context.Background(), s.now.Add(10*time.Minute))
	_, err := s.svc.Receive(late, req)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidSignature))
}

func (s *ServiceSuite) TestSchemaViolations() {
	cases := map[string]func(map[string]any){
		"unknown type":    func(p map[string]any) { p["type"] = "party" },
		"missing title":   func(p map[string]any) { delete(p, "title") },
		"extra field":     func(p map[string]any) { p["grade"] = "A" },
		"bad student":     func(p map[string]any) { p["student_id"] = "42" },
		"bad proof hash":  func(p map[string]any) { p["proof_refs"] = []map[string]any{{"content_hash": "md5:abc"}} },
		"title too long":  func(p map[string]any) { p["title"] = string(make([]byte, 201)) },
		"wrong type kind": func(p map[string]any) { p["submit"] = "yes" },
	}
	for name, mutate := range cases {
		s.Run(name, func() {
			_, err := s.svc.Receive(s.ctx, s.signed(s.payload(mutate)))
			s.Require().Error(err)
			s.True(dErrors.HasCode(err, dErrors.CodeValidation), "got %v", err)
		})
	}
}

func (s *ServiceSuite) TestMalformedJSON() {
	_, err := s.svc.Receive(s.ctx, s.signed([]byte(`{"title":`)))
	s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
}

func (s *ServiceSuite) TestCreateFailurePropagates() {
	s.activities.EXPECT().Create(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(nil, dErrors.New(dErrors.CodeProofTampered, "proof sha256:aa does not match"))

	_, err := s.svc.Receive(s.ctx, s.signed(s.payload(func(p map[string]any) { p["submit"] = true })))
	s.True(dErrors.HasCode(err, dErrors.CodeProofTampered))
	s.Equal(1.0, promtest.ToFloat64(s.metrics.Requests.WithLabelValues("rejected")))
}

func (s *ServiceSuite) TestActorIsStablePerTenant() {
	s.Equal(ActorFor(s.tenant), ActorFor(s.tenant))
	s.NotEqual(ActorFor(s.tenant).UserID, ActorFor(testutil.NewTenantID()).UserID)
	s.NoError(ActorFor(s.tenant).Validate())
}
