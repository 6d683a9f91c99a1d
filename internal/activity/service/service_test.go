package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks ProofVerifier,ProofUploader

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"credence/internal/activity/models"
	"credence/internal/activity/service/mocks"
	actstore "credence/internal/activity/store"
	"credence/internal/events"
	"credence/internal/events/outbox"
	ledgerstore "credence/internal/ledger/store"
	"credence/internal/proof"
	"credence/pkg/domain"
	dErrors "credence/pkg/domain-errors"
	"credence/pkg/testutil"
)

// =============================================================================
// Activity Service Test Suite
// =============================================================================
// Stores are the in-memory implementations; proof verification is mocked so
// each case controls the integrity outcome.

type ServiceSuite struct {
	suite.Suite
	ctrl       *gomock.Controller
	verifier   *mocks.MockProofVerifier
	uploader   *mocks.MockProofUploader
	activities *actstore.InMemoryStore
	records    *ledgerstore.InMemoryStore
	outbox     *outbox.InMemoryStore
	service    *Service
	tenant     domain.TenantID
	student    domain.Actor
	admin      domain.Actor
	ctx        context.Context
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.verifier = mocks.NewMockProofVerifier(s.ctrl)
	s.uploader = mocks.NewMockProofUploader(s.ctrl)
	s.activities = actstore.NewInMemoryStore()
	s.records = ledgerstore.NewInMemoryStore()
	s.outbox = outbox.NewInMemoryStore()
	s.service = New(s.activities, s.records, s.outbox, s.verifier,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithUploader(s.uploader),
	)
	s.tenant = testutil.NewTenantID()
	s.student = testutil.NewActor(s.tenant, domain.RoleStudent)
	s.admin = testutil.NewActor(s.tenant, domain.RoleAdmin)
	s.ctx = testutil.FixedClock(context.Background(), time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
}

func (s *ServiceSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *ServiceSuite) ref(t string) proof.Ref {
	hash, err := proof.Compute(proof.AlgSHA256, []byte(t))
	s.Require().NoError(err)
	return proof.Ref{ContentHash: hash, MediaType: "text/plain", SizeBytes: int64(len(t)), UploadedBy: s.student.UserID}
}

func (s *ServiceSuite) outboxTypes() []events.Type {
	var types []events.Type
	for _, e := range s.outbox.Entries() {
		types = append(types, e.Envelope.Type)
	}
	return types
}

// =============================================================================
// Create
// =============================================================================

func (s *ServiceSuite) TestCreateDraft() {
	a, err := s.service.Create(s.ctx, s.student, CreateRequest{
		Type:  "certification",
		Title: "Kubernetes Administrator",
	})
	s.Require().NoError(err)

	s.Equal(models.StatusDraft, a.Status)
	s.Equal(s.student.UserID, a.StudentID)
	s.Equal(s.tenant, a.TenantID)
	s.Equal(int64(0), a.SequenceNo)

	recs, err := s.records.List(s.ctx, s.tenant, a.ID, 0, 0)
	s.Require().NoError(err)
	s.Empty(recs, "drafts have no ledger history")
	s.Equal([]events.Type{events.TypeActivityCreated}, s.outboxTypes())
}

func (s *ServiceSuite) TestCreateSubmitted() {
	ref := s.ref("certificate")
	s.verifier.EXPECT().Verify(gomock.Any(), []proof.Ref{ref}).Return(nil)

	a, err := s.service.Create(s.ctx, s.student, CreateRequest{
		Type:      "conference",
		Title:     "GopherCon talk",
		ProofRefs: []proof.Ref{ref},
		Submit:    true,
	})
	s.Require().NoError(err)

	s.Equal(models.StatusPending, a.Status)
	s.Equal(int64(1), a.SequenceNo)
	s.Equal(int64(1), a.Version)

	recs, err := s.records.List(s.ctx, s.tenant, a.ID, 0, 0)
	s.Require().NoError(err)
	s.Require().Len(recs, 1)
	s.Equal(models.StatusDraft, recs[0].FromStatus)
	s.Equal(models.StatusPending, recs[0].ToStatus)
	s.Equal(models.ActionSubmit, recs[0].Action)
	s.Equal([]events.Type{events.TypeActivityCreated, events.TypeActivitySubmitted}, s.outboxTypes())
}

func (s *ServiceSuite) TestCreateStoresCanonicalContentHash() {
	ref := s.ref("certificate")
	canonical := ref.ContentHash
	ref.ContentHash = proof.ContentHash("  sha256:" + strings.ToUpper(strings.TrimPrefix(string(canonical), "sha256:")) + " ")

	want := ref
	want.ContentHash = canonical
	s.verifier.EXPECT().Verify(gomock.Any(), []proof.Ref{want}).Return(nil)

	a, err := s.service.Create(s.ctx, s.student, CreateRequest{
		Type:      "certification",
		Title:     "CKA",
		ProofRefs: []proof.Ref{ref},
		Submit:    true,
	})
	s.Require().NoError(err)
	s.Require().Len(a.ProofRefs, 1)
	s.Equal(canonical, a.ProofRefs[0].ContentHash)

	stored, err := s.service.Get(s.ctx, s.student, a.ID)
	s.Require().NoError(err)
	s.Equal(canonical, stored.ProofRefs[0].ContentHash)
}

func (s *ServiceSuite) TestCreateSubmittedRejectsTamperedProof() {
	ref := s.ref("certificate")
	s.verifier.EXPECT().Verify(gomock.Any(), gomock.Any()).
		Return(dErrors.New(dErrors.CodeProofTampered, "proof does not match its content hash"))

	_, err := s.service.Create(s.ctx, s.student, CreateRequest{
		Type:      "club",
		Title:     "Chess club",
		ProofRefs: []proof.Ref{ref},
		Submit:    true,
	})
	s.True(dErrors.HasCode(err, dErrors.CodeProofTampered))
	s.Empty(s.outbox.Entries(), "nothing is recorded")
}

func (s *ServiceSuite) TestCreateSubmittedWithoutEvidence() {
	_, err := s.service.Create(s.ctx, s.student, CreateRequest{Type: "club", Title: "Chess club", Submit: true})
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))
}

func (s *ServiceSuite) TestCreateAuthorization() {
	s.Run("student cannot create for someone else", func() {
		other := testutil.NewActor(s.tenant, domain.RoleStudent)
		_, err := s.service.Create(s.ctx, s.student, CreateRequest{StudentID: other.UserID, Type: "club", Title: "x"})
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("student cannot waive proof", func() {
		_, err := s.service.Create(s.ctx, s.student, CreateRequest{Type: "club", Title: "x", ProofWaived: true})
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("verifier cannot create", func() {
		verifier := testutil.NewActor(s.tenant, domain.RoleVerifier)
		_, err := s.service.Create(s.ctx, verifier, CreateRequest{StudentID: s.student.UserID, Type: "club", Title: "x"})
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("admin may waive and submit on behalf of a student", func() {
		s.verifier.EXPECT().Verify(gomock.Any(), gomock.Any()).Return(nil)
		a, err := s.service.Create(s.ctx, s.admin, CreateRequest{
			StudentID:   s.student.UserID,
			Type:        "community_service",
			Title:       "Food bank",
			ProofWaived: true,
			Submit:      true,
		})
		s.Require().NoError(err)
		s.Equal(models.StatusPending, a.Status)
		s.Equal(s.admin.UserID, a.CreatedBy)
	})

	s.Run("admin must name the student", func() {
		_, err := s.service.Create(s.ctx, s.admin, CreateRequest{Type: "club", Title: "x"})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func (s *ServiceSuite) TestCreateValidation() {
	_, err := s.service.Create(s.ctx, s.student, CreateRequest{Type: "party", Title: "x"})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = s.service.Create(s.ctx, s.student, CreateRequest{Type: "club", Title: "   "})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = s.service.Create(s.ctx, s.student, CreateRequest{
		Type:      "club",
		Title:     "x",
		ProofRefs: []proof.Ref{{ContentHash: "md5:abc"}},
	})
	s.Error(err)
}

// =============================================================================
// Reads
// =============================================================================

func (s *ServiceSuite) TestGetIsTenantScoped() {
	a, err := s.service.Create(s.ctx, s.student, CreateRequest{Type: "club", Title: "Debate"})
	s.Require().NoError(err)

	got, err := s.service.Get(s.ctx, s.student, a.ID)
	s.Require().NoError(err)
	s.Equal(a.ID, got.ID)

	outsider := testutil.NewActor(testutil.NewTenantID(), domain.RoleAdmin)
	_, err = s.service.Get(s.ctx, outsider, a.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	classmate := testutil.NewActor(s.tenant, domain.RoleStudent)
	_, err = s.service.Get(s.ctx, classmate, a.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestListPagesAndFilters() {
	for i := 0; i < 3; i++ {
		_, err := s.service.Create(s.ctx, s.student, CreateRequest{Type: "club", Title: "Club"})
		s.Require().NoError(err)
	}
	other := testutil.NewActor(s.tenant, domain.RoleStudent)
	_, err := s.service.Create(s.ctx, other, CreateRequest{Type: "club", Title: "Other"})
	s.Require().NoError(err)

	first, err := s.service.List(s.ctx, s.student, ListRequest{Limit: 2})
	s.Require().NoError(err)
	s.Len(first.Activities, 2)
	s.Require().NotNil(first.NextAfter)

	second, err := s.service.List(s.ctx, s.student, ListRequest{Limit: 2, After: *first.NextAfter})
	s.Require().NoError(err)
	s.Len(second.Activities, 1)
	s.Nil(second.NextAfter)

	all, err := s.service.List(s.ctx, s.admin, ListRequest{Status: "draft"})
	s.Require().NoError(err)
	s.Len(all.Activities, 4)

	_, err = s.service.List(s.ctx, s.admin, ListRequest{Status: "archived"})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

// =============================================================================
// Proof attachment
// =============================================================================

func (s *ServiceSuite) TestAttachProof() {
	a, err := s.service.Create(s.ctx, s.student, CreateRequest{Type: "internship", Title: "Backend intern"})
	s.Require().NoError(err)

	s.Run("owner attaches in draft", func() {
		updated, err := s.service.AttachProof(s.ctx, s.student, a.ID, s.ref("offer letter"), a.Version)
		s.Require().NoError(err)
		s.Len(updated.ProofRefs, 1)
		s.Equal(a.Version+1, updated.Version)
	})

	s.Run("content hash is stored in canonical form", func() {
		current, err := s.service.Get(s.ctx, s.student, a.ID)
		s.Require().NoError(err)
		ref := s.ref("transcript")
		canonical := ref.ContentHash
		ref.ContentHash = proof.ContentHash("sha256:" + strings.ToUpper(strings.TrimPrefix(string(canonical), "sha256:")))

		updated, err := s.service.AttachProof(s.ctx, s.student, a.ID, ref, current.Version)
		s.Require().NoError(err)
		s.Equal(canonical, updated.ProofRefs[len(updated.ProofRefs)-1].ContentHash)
	})

	s.Run("stale version is a concurrent modification", func() {
		_, err := s.service.AttachProof(s.ctx, s.student, a.ID, s.ref("payslip"), a.Version)
		s.True(dErrors.HasCode(err, dErrors.CodeConcurrentModification))
	})

	s.Run("admin is not the owner", func() {
		_, err := s.service.AttachProof(s.ctx, s.admin, a.ID, s.ref("payslip"), 0)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})
}

func (s *ServiceSuite) TestAttachProofAfterSubmit() {
	ref := s.ref("certificate")
	s.verifier.EXPECT().Verify(gomock.Any(), gomock.Any()).Return(nil)
	a, err := s.service.Create(s.ctx, s.student, CreateRequest{Type: "club", Title: "Chess", ProofRefs: []proof.Ref{ref}, Submit: true})
	s.Require().NoError(err)

	_, err = s.service.AttachProof(s.ctx, s.student, a.ID, s.ref("late"), 0)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))
}

func (s *ServiceSuite) TestUploadProof() {
	a, err := s.service.Create(s.ctx, s.student, CreateRequest{Type: "volunteering", Title: "Beach cleanup"})
	s.Require().NoError(err)

	data := []byte("volunteer hours signed by coordinator")
	ref := s.ref(string(data))
	s.uploader.EXPECT().Upload(gomock.Any(), s.student.UserID, data).Return(ref, nil)

	updated, err := s.service.UploadProof(s.ctx, s.student, a.ID, data, 0)
	s.Require().NoError(err)
	s.Equal([]proof.Ref{ref}, updated.ProofRefs)

	s.Run("non-owner never reaches the proof store", func() {
		other := testutil.NewActor(s.tenant, domain.RoleStudent)
		_, err := s.service.UploadProof(s.ctx, other, a.ID, data, 0)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}
