package events

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	actmodels "credence/internal/activity/models"
	"credence/pkg/domain"
)

func TestEnvelope_IdempotencyKeyIsStableAcrossRedelivery(t *testing.T) {
	activity := domain.ActivityID(uuid.MustParse("6f1c2b8e-0d55-4c1a-9a0e-7b6f1d2c3e4f"))
	first, err := New(TypeActivityVerified, domain.TenantID(uuid.New()), activity, 2, time.Now(), nil)
	require.NoError(t, err)
	second, err := New(TypeActivityVerified, first.TenantID, activity, 2, time.Now().Add(time.Minute), nil)
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, "6f1c2b8e-0d55-4c1a-9a0e-7b6f1d2c3e4f:activity.verified:2", first.IdempotencyKey())
	assert.Equal(t, first.IdempotencyKey(), second.IdempotencyKey())
}

func TestForAction(t *testing.T) {
	typ, ok := ForAction(actmodels.ActionApprove)
	assert.True(t, ok)
	assert.Equal(t, TypeActivityVerified, typ)

	typ, ok = ForAction(actmodels.ActionWithdraw)
	assert.True(t, ok)
	assert.Equal(t, TypeActivityWithdrawn, typ)
}

func TestEnvelope_Decode(t *testing.T) {
	student := domain.UserID(uuid.New())
	env, err := New(TypeActivityRejected, domain.TenantID(uuid.New()), domain.NewActivityID(), 2, time.Now(),
		ActivityPayload{StudentID: student, Status: actmodels.StatusRejected, Comment: "blurry scan"})
	require.NoError(t, err)

	var p ActivityPayload
	require.NoError(t, env.Decode(&p))
	assert.Equal(t, student, p.StudentID)
	assert.Equal(t, "blurry scan", p.Comment)

	empty := Envelope{Type: TypeActivityCreated}
	assert.Error(t, empty.Decode(&p))
}

func TestRouter(t *testing.T) {
	var handled []Type
	record := HandlerFunc(func(_ context.Context, env Envelope) error {
		handled = append(handled, env.Type)
		return nil
	})

	r := NewRouter(slog.New(slog.NewTextHandler(io.Discard, nil)), nil)
	r.Register(TypeActivityVerified, record)

	require.NoError(t, r.Handle(context.Background(), Envelope{Type: TypeActivityVerified}))
	require.NoError(t, r.Handle(context.Background(), Envelope{Type: TypeActivityCreated}), "unrouted types are acknowledged")
	assert.Equal(t, []Type{TypeActivityVerified}, handled)

	withFallback := NewRouter(nil, record)
	require.NoError(t, withFallback.Handle(context.Background(), Envelope{Type: TypeCredentialIssued}))
	assert.Equal(t, []Type{TypeActivityVerified, TypeCredentialIssued}, handled)
}
