package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	actmodels "credence/internal/activity/models"
	"credence/internal/ledger"
	"credence/pkg/domain"
	"credence/pkg/platform/sentinel"
	"credence/pkg/platform/tx"
)

type InMemoryStoreSuite struct {
	suite.Suite
	store    *InMemoryStore
	tenant   domain.TenantID
	activity domain.ActivityID
}

func TestInMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryStoreSuite))
}

func (s *InMemoryStoreSuite) SetupTest() {
	s.store = NewInMemoryStore()
	s.tenant = domain.TenantID(domain.NewActivityID())
	s.activity = domain.NewActivityID()
}

func (s *InMemoryStoreSuite) record(seq int64, from, to actmodels.Status, action actmodels.Action) ledger.Record {
	return ledger.Record{
		ID:         domain.NewTransitionID(),
		TenantID:   s.tenant,
		ActivityID: s.activity,
		ActorID:    domain.UserID(domain.NewActivityID()),
		ActorRole:  domain.RoleVerifier,
		FromStatus: from,
		ToStatus:   to,
		Action:     action,
		RecordedAt: time.Now().UTC(),
		SequenceNo: seq,
	}
}

func (s *InMemoryStoreSuite) TestAppendIsIdempotent() {
	ctx := context.Background()
	first := s.record(1, actmodels.StatusDraft, actmodels.StatusPending, actmodels.ActionSubmit)
	s.Require().NoError(s.store.Append(ctx, first))

	dup := first
	dup.ID = domain.NewTransitionID()
	s.Require().NoError(s.store.Append(ctx, dup))

	recs, err := s.store.List(ctx, s.tenant, s.activity, 0, 0)
	s.Require().NoError(err)
	s.Require().Len(recs, 1)
	s.Equal(first.ID, recs[0].ID, "duplicate append must not replace the stored record")
}

func (s *InMemoryStoreSuite) TestAppendRejectsGaps() {
	ctx := context.Background()
	err := s.store.Append(ctx, s.record(2, actmodels.StatusPending, actmodels.StatusVerified, actmodels.ActionApprove))
	s.ErrorIs(err, sentinel.ErrInvalidState)

	s.Require().NoError(s.store.Append(ctx, s.record(1, actmodels.StatusDraft, actmodels.StatusPending, actmodels.ActionSubmit)))
	err = s.store.Append(ctx, s.record(3, actmodels.StatusVerified, actmodels.StatusWithdrawn, actmodels.ActionWithdraw))
	s.ErrorIs(err, sentinel.ErrInvalidState)
}

func (s *InMemoryStoreSuite) TestListPages() {
	ctx := context.Background()
	s.Require().NoError(s.store.Append(ctx, s.record(1, actmodels.StatusDraft, actmodels.StatusPending, actmodels.ActionSubmit)))
	s.Require().NoError(s.store.Append(ctx, s.record(2, actmodels.StatusPending, actmodels.StatusPendingInfo, actmodels.ActionRequestInfo)))
	s.Require().NoError(s.store.Append(ctx, s.record(3, actmodels.StatusPendingInfo, actmodels.StatusPending, actmodels.ActionResubmit)))

	page, err := s.store.List(ctx, s.tenant, s.activity, 1, 1)
	s.Require().NoError(err)
	s.Require().Len(page, 1)
	s.Equal(int64(2), page[0].SequenceNo)

	rest, err := s.store.List(ctx, s.tenant, s.activity, 2, 10)
	s.Require().NoError(err)
	s.Require().Len(rest, 1)
	s.Equal(int64(3), rest[0].SequenceNo)

	other, err := s.store.List(ctx, domain.TenantID(domain.NewActivityID()), s.activity, 0, 10)
	s.Require().NoError(err)
	s.Empty(other, "another tenant sees nothing")
}

func (s *InMemoryStoreSuite) TestGet() {
	ctx := context.Background()
	rec := s.record(1, actmodels.StatusDraft, actmodels.StatusPending, actmodels.ActionSubmit)
	s.Require().NoError(s.store.Append(ctx, rec))

	got, err := s.store.Get(ctx, s.tenant, s.activity, 1)
	s.Require().NoError(err)
	s.Equal(rec.ID, got.ID)

	_, err = s.store.Get(ctx, s.tenant, s.activity, 2)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *InMemoryStoreSuite) TestAppendRolledBackWithUnit() {
	runner := tx.NewKeyedRunner(time.Second)
	boom := errors.New("boom")

	err := runner.RunInTx(context.Background(), func(ctx context.Context) error {
		s.Require().NoError(s.store.Append(ctx, s.record(1, actmodels.StatusDraft, actmodels.StatusPending, actmodels.ActionSubmit)))
		return boom
	})
	s.ErrorIs(err, boom)

	recs, err := s.store.List(context.Background(), s.tenant, s.activity, 0, 0)
	s.Require().NoError(err)
	s.Empty(recs)
}

// Concurrent writers racing for the same sequence number leave exactly one record.
func TestInMemoryStore_ConcurrentAppendSameSequence(t *testing.T) {
	store := NewInMemoryStore()
	tenant := domain.TenantID(domain.NewActivityID())
	activity := domain.NewActivityID()

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = store.Append(context.Background(), ledger.Record{
				ID:         domain.NewTransitionID(),
				TenantID:   tenant,
				ActivityID: activity,
				ActorID:    domain.UserID(domain.NewActivityID()),
				FromStatus: actmodels.StatusDraft,
				ToStatus:   actmodels.StatusPending,
				Action:     actmodels.ActionSubmit,
				SequenceNo: 1,
			})
		}()
	}
	wg.Wait()

	recs, err := store.List(context.Background(), tenant, activity, 0, 0)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}
