package kafkabus

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"credence/internal/events"
	"credence/internal/platform/kafka/consumer"
	"credence/internal/platform/kafka/producer"
	"credence/pkg/domain"
	audit "credence/pkg/platform/audit"
	"credence/pkg/testutil"
)

type fakeProducer struct {
	sent []producer.Message
	err  error
}

func (f *fakeProducer) Produce(_ context.Context, msg producer.Message) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

func verifiedEnvelope(t *testing.T) events.Envelope {
	t.Helper()
	env, err := events.New(events.TypeActivityVerified, testutil.NewTenantID(), domain.NewActivityID(), 2,
		time.Date(2026, 4, 2, 14, 0, 0, 0, time.UTC), map[string]string{"status": "verified"})
	require.NoError(t, err)
	return env
}

func TestPublisher(t *testing.T) {
	t.Run("keys by activity and carries type headers", func(t *testing.T) {
		fake := &fakeProducer{}
		env := verifiedEnvelope(t)

		require.NoError(t, NewPublisher(fake).Publish(context.Background(), env))

		require.Len(t, fake.sent, 1)
		msg := fake.sent[0]
		assert.Equal(t, env.ActivityID.String(), string(msg.Key))
		assert.Equal(t, "activity.verified", msg.Headers[headerType])
		assert.Equal(t, env.IdempotencyKey(), msg.Headers[headerIdempotencyKey])
		assert.JSONEq(t, `{"status":"verified"}`, string(decode(t, msg.Value).Payload))
	})

	t.Run("producer failure is returned", func(t *testing.T) {
		fake := &fakeProducer{err: errors.New("broker down")}

		err := NewPublisher(fake).Publish(context.Background(), verifiedEnvelope(t))

		require.Error(t, err)
	})
}

func decode(t *testing.T, value []byte) events.Envelope {
	t.Helper()
	var got events.Envelope
	h := &envelopeHandler{
		handler: events.HandlerFunc(func(_ context.Context, env events.Envelope) error {
			got = env
			return nil
		}),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	require.NoError(t, h.Handle(context.Background(), &consumer.Message{Value: value}))
	return got
}

func TestEnvelopeHandler(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("handler errors propagate for retry", func(t *testing.T) {
		fake := &fakeProducer{}
		require.NoError(t, NewPublisher(fake).Publish(context.Background(), verifiedEnvelope(t)))
		h := &envelopeHandler{
			handler: events.HandlerFunc(func(context.Context, events.Envelope) error {
				return errors.New("issuer unavailable")
			}),
			logger: logger,
		}

		err := h.Handle(context.Background(), &consumer.Message{Value: fake.sent[0].Value})

		require.Error(t, err)
	})

	t.Run("malformed records are quarantined then skipped", func(t *testing.T) {
		called := false
		facts := &recordingQuarantine{}
		h := &envelopeHandler{
			group: "credential-issuer",
			handler: events.HandlerFunc(func(context.Context, events.Envelope) error {
				called = true
				return nil
			}),
			quarantine: facts,
			logger:     logger,
		}

		err := h.Handle(context.Background(), &consumer.Message{
			Topic: "credence.events", Partition: 3, Offset: 42,
			Key: []byte("k"), Value: []byte("{not json"),
		})

		require.NoError(t, err)
		assert.False(t, called)
		require.Len(t, facts.events, 1)
		assert.Equal(t, audit.EventRecordUndecodable, facts.events[0].Action)
		assert.Equal(t, "credence.events/3/42", facts.events[0].Subject)
		assert.Equal(t, "credential-issuer", facts.events[0].ActorID)
		assert.NotEmpty(t, facts.events[0].Reason)
	})

	t.Run("malformed record is retried when it cannot be quarantined", func(t *testing.T) {
		h := &envelopeHandler{
			handler:    events.HandlerFunc(func(context.Context, events.Envelope) error { return nil }),
			quarantine: &recordingQuarantine{err: errors.New("audit store down")},
			logger:     logger,
		}

		err := h.Handle(context.Background(), &consumer.Message{Topic: "credence.events", Value: []byte("{not json")})

		require.Error(t, err)
		assert.Contains(t, err.Error(), "credence.events/0/0")
	})
}

type recordingQuarantine struct {
	events []audit.ComplianceEvent
	err    error
}

func (q *recordingQuarantine) Emit(_ context.Context, e audit.ComplianceEvent) error {
	if q.err != nil {
		return q.err
	}
	q.events = append(q.events, e)
	return nil
}
