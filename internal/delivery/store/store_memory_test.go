package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"credence/internal/delivery"
	"credence/pkg/platform/sentinel"
	"credence/pkg/testutil"
)

func deadLetter(consumer, key string, at time.Time) delivery.DeadLetter {
	return delivery.DeadLetter{
		ID:             uuid.New(),
		Consumer:       consumer,
		IdempotencyKey: key,
		Attempts:       5,
		LastError:      "boom",
		DeadLetteredAt: at,
	}
}

func TestInMemoryStore(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	t.Run("add is idempotent per open key", func(t *testing.T) {
		s := NewInMemoryStore()
		require.NoError(t, s.Add(ctx, deadLetter("issuer", "k1", base)))
		require.NoError(t, s.Add(ctx, deadLetter("issuer", "k1", base.Add(time.Minute))))
		require.NoError(t, s.Add(ctx, deadLetter("notifications", "k1", base)))

		all, err := s.List(ctx, delivery.ListFilter{})
		require.NoError(t, err)
		assert.Len(t, all, 2)

		issuer, err := s.List(ctx, delivery.ListFilter{Consumer: "issuer"})
		require.NoError(t, err)
		assert.Len(t, issuer, 1)
	})

	t.Run("list is oldest first and hides replayed", func(t *testing.T) {
		s := NewInMemoryStore()
		late := deadLetter("issuer", "k2", base.Add(time.Hour))
		early := deadLetter("issuer", "k1", base)
		require.NoError(t, s.Add(ctx, late))
		require.NoError(t, s.Add(ctx, early))

		open, err := s.List(ctx, delivery.ListFilter{})
		require.NoError(t, err)
		require.Len(t, open, 2)
		assert.Equal(t, early.ID, open[0].ID)

		require.NoError(t, s.MarkReplayed(ctx, early.ID, base.Add(2*time.Hour)))
		assert.ErrorIs(t, s.MarkReplayed(ctx, early.ID, base.Add(3*time.Hour)), sentinel.ErrConflict)

		open, err = s.List(ctx, delivery.ListFilter{})
		require.NoError(t, err)
		require.Len(t, open, 1)
		assert.Equal(t, late.ID, open[0].ID)

		all, err := s.List(ctx, delivery.ListFilter{IncludeReplayed: true, Limit: 1})
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})

	t.Run("replayed key can dead-letter again", func(t *testing.T) {
		s := NewInMemoryStore()
		first := deadLetter("issuer", "k1", base)
		require.NoError(t, s.Add(ctx, first))
		require.NoError(t, s.MarkReplayed(ctx, first.ID, base))
		require.NoError(t, s.Add(ctx, deadLetter("issuer", "k1", base.Add(time.Hour))))

		open, err := s.List(ctx, delivery.ListFilter{})
		require.NoError(t, err)
		assert.Len(t, open, 1)
	})

	t.Run("list filters by tenant", func(t *testing.T) {
		s := NewInMemoryStore()
		mine := deadLetter("issuer", "k1", base)
		mine.Envelope.TenantID = testutil.NewTenantID()
		theirs := deadLetter("issuer", "k2", base)
		theirs.Envelope.TenantID = testutil.NewTenantID()
		require.NoError(t, s.Add(ctx, mine))
		require.NoError(t, s.Add(ctx, theirs))

		got, err := s.List(ctx, delivery.ListFilter{TenantID: mine.Envelope.TenantID})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, mine.ID, got[0].ID)
	})

	t.Run("unknown id", func(t *testing.T) {
		s := NewInMemoryStore()
		_, err := s.Get(ctx, uuid.New())
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
		assert.ErrorIs(t, s.MarkReplayed(ctx, uuid.New(), base), sentinel.ErrNotFound)
	})
}
