//go:build integration

package store_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	actmodels "credence/internal/activity/models"
	actstore "credence/internal/activity/store"
	"credence/internal/ledger"
	"credence/internal/ledger/store"
	"credence/internal/platform/postgres"
	"credence/pkg/domain"
	"credence/pkg/platform/sentinel"
	"credence/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres   *containers.PostgresContainer
	store      *store.PostgresStore
	activities *actstore.PostgresStore
	activity   *actmodels.Activity
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
	s.activities = actstore.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	ctx := context.Background()
	s.Require().NoError(s.postgres.TruncateTables(ctx, "transition_records", "outbox", "credentials", "activities"))

	student := domain.UserID(uuid.New())
	a, err := actmodels.NewActivity(actmodels.NewActivityParams{
		ID:        domain.NewActivityID(),
		TenantID:  domain.TenantID(uuid.New()),
		StudentID: student,
		Type:      actmodels.TypeInternship,
		Title:     "Summer internship",
		CreatedBy: student,
	}, time.Now().UTC())
	s.Require().NoError(err)
	s.Require().NoError(s.activities.Create(ctx, a))
	s.activity = a
}

func (s *PostgresStoreSuite) record(seq int64, from, to actmodels.Status, action actmodels.Action) ledger.Record {
	return ledger.Record{
		ID:         domain.NewTransitionID(),
		TenantID:   s.activity.TenantID,
		ActivityID: s.activity.ID,
		ActorID:    domain.UserID(uuid.New()),
		ActorRole:  domain.RoleVerifier,
		FromStatus: from,
		ToStatus:   to,
		Action:     action,
		RecordedAt: time.Now().UTC().Truncate(time.Microsecond),
		SequenceNo: seq,
	}
}

func (s *PostgresStoreSuite) TestAppendIdempotentAndGapFree() {
	ctx := context.Background()

	s.ErrorIs(s.store.Append(ctx, s.record(2, actmodels.StatusPending, actmodels.StatusVerified, actmodels.ActionApprove)), sentinel.ErrInvalidState)

	first := s.record(1, actmodels.StatusDraft, actmodels.StatusPending, actmodels.ActionSubmit)
	s.Require().NoError(s.store.Append(ctx, first))
	s.Require().NoError(s.store.Append(ctx, first), "re-append is a no-op")

	second := s.record(2, actmodels.StatusPending, actmodels.StatusRejected, actmodels.ActionReject)
	second.Comment = "certificate is unsigned"
	s.Require().NoError(s.store.Append(ctx, second))

	recs, err := s.store.List(ctx, s.activity.TenantID, s.activity.ID, 0, 0)
	s.Require().NoError(err)
	s.Require().Len(recs, 2)
	s.Equal(first.ID, recs[0].ID)
	s.Equal("certificate is unsigned", recs[1].Comment)
	s.Equal(first.RecordedAt, recs[0].RecordedAt)

	got, err := s.store.Get(ctx, s.activity.TenantID, s.activity.ID, 2)
	s.Require().NoError(err)
	s.Equal(actmodels.StatusRejected, got.ToStatus)

	_, err = s.store.Get(ctx, domain.TenantID(uuid.New()), s.activity.ID, 2)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestRecordsAreImmutable() {
	ctx := context.Background()
	s.Require().NoError(s.store.Append(ctx, s.record(1, actmodels.StatusDraft, actmodels.StatusPending, actmodels.ActionSubmit)))

	_, err := s.postgres.DB.ExecContext(ctx, `UPDATE transition_records SET to_status = 'verified'`)
	s.Error(err)
	_, err = s.postgres.DB.ExecContext(ctx, `DELETE FROM transition_records`)
	s.Error(err)
}

func (s *PostgresStoreSuite) TestAppendJoinsTransaction() {
	ctx := context.Background()
	runner := postgres.NewTxRunner(s.postgres.DB, 5*time.Second)

	err := runner.RunInTx(ctx, func(txCtx context.Context) error {
		s.Require().NoError(s.store.Append(txCtx, s.record(1, actmodels.StatusDraft, actmodels.StatusPending, actmodels.ActionSubmit)))
		return sentinel.ErrConflict
	})
	s.ErrorIs(err, sentinel.ErrConflict)

	recs, err := s.store.List(ctx, s.activity.TenantID, s.activity.ID, 0, 0)
	s.Require().NoError(err)
	s.Empty(recs)
}

// TestConcurrentAppendSameSequence verifies that racing writers for one
// sequence number leave exactly one record.
func (s *PostgresStoreSuite) TestConcurrentAppendSameSequence() {
	ctx := context.Background()
	const goroutines = 20

	var wg sync.WaitGroup
	var failures atomic.Int32
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.store.Append(ctx, s.record(1, actmodels.StatusDraft, actmodels.StatusPending, actmodels.ActionSubmit)); err != nil {
				failures.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(0), failures.Load())
	recs, err := s.store.List(ctx, s.activity.TenantID, s.activity.ID, 0, 0)
	s.Require().NoError(err)
	s.Len(recs, 1)
}
