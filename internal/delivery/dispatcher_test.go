package delivery_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"credence/internal/delivery"
	dmetrics "credence/internal/delivery/metrics"
	"credence/internal/delivery/store"
	"credence/internal/events"
	"credence/pkg/domain"
	dErrors "credence/pkg/domain-errors"
	audit "credence/pkg/platform/audit"
)

type recordingCompliance struct {
	mu     sync.Mutex
	events []audit.ComplianceEvent
}

func (r *recordingCompliance) Emit(_ context.Context, e audit.ComplianceEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingCompliance) actions() []audit.AuditEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []audit.AuditEvent{}
	for _, e := range r.events {
		out = append(out, e.Action)
	}
	return out
}

// scriptedHandler fails with the queued errors, then succeeds.
type scriptedHandler struct {
	mu    sync.Mutex
	errs  []error
	calls atomic.Int32
}

func (h *scriptedHandler) Handle(_ context.Context, _ events.Envelope) error {
	h.calls.Add(1)
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.errs) == 0 {
		return nil
	}
	err := h.errs[0]
	h.errs = h.errs[1:]
	return err
}

func (h *scriptedHandler) failWith(errs ...error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.errs = append(h.errs, errs...)
}

// =============================================================================
// Dispatcher Test Suite
// =============================================================================

type DispatcherSuite struct {
	suite.Suite
	letters    *store.InMemoryStore
	compliance *recordingCompliance
	metrics    *dmetrics.Metrics
	manager    *delivery.Manager
	handler    *scriptedHandler
	dispatcher *delivery.Dispatcher
	env        events.Envelope
}

func TestDispatcherSuite(t *testing.T) {
	suite.Run(t, new(DispatcherSuite))
}

func (s *DispatcherSuite) SetupTest() {
	s.letters = store.NewInMemoryStore()
	s.compliance = &recordingCompliance{}
	s.metrics = dmetrics.New(prometheus.NewRegistry())
	s.manager = delivery.NewManager(s.letters, delivery.NewInMemoryProcessed(0),
		delivery.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		delivery.WithMetrics(s.metrics),
		delivery.WithComplianceEmitter(s.compliance),
		delivery.WithRetryPolicy(delivery.RetryPolicy{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}),
	)
	s.handler = &scriptedHandler{}
	s.dispatcher = s.manager.Wrap("credential-issuer", s.handler)

	env, err := events.New(events.TypeActivityVerified, domain.TenantID(uuid.New()), domain.NewActivityID(), 2,
		time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC), events.ActivityPayload{})
	s.Require().NoError(err)
	s.env = env
}

func (s *DispatcherSuite) openLetters() []delivery.DeadLetter {
	dls, err := s.manager.List(context.Background(), delivery.ListFilter{})
	s.Require().NoError(err)
	return dls
}

// =============================================================================
// Delivery
// =============================================================================

func (s *DispatcherSuite) TestDuplicateDeliveryIsSkipped() {
	s.Require().NoError(s.dispatcher.Handle(context.Background(), s.env))
	s.Require().NoError(s.dispatcher.Handle(context.Background(), s.env))

	s.Equal(int32(1), s.handler.calls.Load())
	s.Equal(1.0, promtest.ToFloat64(s.metrics.Duplicates.WithLabelValues("credential-issuer")))
}

func (s *DispatcherSuite) TestTransientFailureIsRetried() {
	s.handler.failWith(errors.New("connection reset"))

	err := s.dispatcher.Handle(context.Background(), s.env)

	s.Require().NoError(err)
	s.Equal(int32(2), s.handler.calls.Load())
	s.Empty(s.openLetters())
}

func (s *DispatcherSuite) TestRetryableDomainErrorUsesFullBudget() {
	unavailable := dErrors.New(dErrors.CodeIssuanceUnavailable, "no signing key")
	s.handler.failWith(unavailable, unavailable, unavailable)

	err := s.dispatcher.Handle(context.Background(), s.env)

	s.Require().NoError(err)
	s.Equal(int32(3), s.handler.calls.Load())
	letters := s.openLetters()
	s.Require().Len(letters, 1)
	s.Equal(3, letters[0].Attempts)
	s.Equal(s.env.IdempotencyKey(), letters[0].IdempotencyKey)
	s.Equal("credential-issuer", letters[0].Consumer)
	s.Contains(letters[0].LastError, "no signing key")
	s.Equal([]audit.AuditEvent{audit.EventDeadLettered}, s.compliance.actions())
}

func (s *DispatcherSuite) TestPermanentErrorIsDeadLetteredImmediately() {
	s.handler.failWith(dErrors.New(dErrors.CodeValidation, "payload missing student"))

	err := s.dispatcher.Handle(context.Background(), s.env)

	s.Require().NoError(err)
	s.Equal(int32(1), s.handler.calls.Load())
	s.Len(s.openLetters(), 1)
}

func (s *DispatcherSuite) TestRedeliveryDoesNotDuplicateDeadLetter() {
	for range 6 {
		s.handler.failWith(errors.New("down"))
	}

	s.Require().NoError(s.dispatcher.Handle(context.Background(), s.env))
	s.Require().NoError(s.dispatcher.Handle(context.Background(), s.env))

	s.Len(s.openLetters(), 1)
}

func (s *DispatcherSuite) TestShutdownLeavesEnvelopeForRedelivery() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.handler.failWith(errors.New("down"), errors.New("down"), errors.New("down"))

	err := s.dispatcher.Handle(ctx, s.env)

	s.ErrorIs(err, context.Canceled)
	s.Empty(s.openLetters())
}

// =============================================================================
// Replay
// =============================================================================

func (s *DispatcherSuite) deadLetter() delivery.DeadLetter {
	s.handler.failWith(dErrors.New(dErrors.CodeValidation, "rejected"))
	s.Require().NoError(s.dispatcher.Handle(context.Background(), s.env))
	letters := s.openLetters()
	s.Require().Len(letters, 1)
	return letters[0]
}

func (s *DispatcherSuite) TestReplayRedeliversAndCloses() {
	dl := s.deadLetter()

	replayed, err := s.manager.Replay(context.Background(), dl.ID, "ops-admin")

	s.Require().NoError(err)
	s.NotNil(replayed.ReplayedAt)
	s.Equal(int32(2), s.handler.calls.Load())
	s.Empty(s.openLetters())
	s.Equal([]audit.AuditEvent{audit.EventDeadLettered, audit.EventDeadLetterReplayed}, s.compliance.actions())

	s.Run("replaying again conflicts", func() {
		_, err := s.manager.Replay(context.Background(), dl.ID, "ops-admin")
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("later redelivery is a duplicate", func() {
		s.Require().NoError(s.dispatcher.Handle(context.Background(), s.env))
		s.Equal(int32(2), s.handler.calls.Load())
	})
}

func (s *DispatcherSuite) TestFailedReplayKeepsLetterOpen() {
	dl := s.deadLetter()
	s.handler.failWith(dErrors.New(dErrors.CodeValidation, "still rejected"))

	_, err := s.manager.Replay(context.Background(), dl.ID, "ops-admin")

	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	s.Len(s.openLetters(), 1)
}

func (s *DispatcherSuite) TestReplayUnknownID() {
	_, err := s.manager.Replay(context.Background(), uuid.New(), "ops-admin")

	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *DispatcherSuite) TestReplayForStoppedConsumer() {
	orphan := delivery.DeadLetter{
		ID:             uuid.New(),
		Consumer:       "retired-consumer",
		IdempotencyKey: s.env.IdempotencyKey(),
		Envelope:       s.env,
		Attempts:       5,
		LastError:      "boom",
		DeadLetteredAt: time.Now(),
	}
	s.Require().NoError(s.letters.Add(context.Background(), orphan))

	_, err := s.manager.Replay(context.Background(), orphan.ID, "ops-admin")

	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}
