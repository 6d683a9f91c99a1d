//go:build integration

package kafkabus_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"credence/internal/events"
	"credence/internal/events/kafkabus"
	"credence/internal/platform/kafka"
	"credence/internal/platform/kafka/producer"
	"credence/pkg/domain"
	"credence/pkg/testutil"
	"credence/pkg/testutil/containers"
)

type KafkaBusSuite struct {
	suite.Suite
	redpanda *containers.RedpandaContainer
	topic    string
	producer *producer.Producer
	logger   *slog.Logger
}

func TestKafkaBusSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(KafkaBusSuite))
}

func (s *KafkaBusSuite) SetupSuite() {
	s.redpanda = containers.GetManager().GetRedpanda(s.T())
	s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
}

func (s *KafkaBusSuite) SetupTest() {
	s.topic = "credence-test-" + uuid.NewString()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	s.Require().NoError(kafka.EnsureTopic(ctx, s.redpanda.Brokers, s.topic, 3))

	p, err := producer.New(s.redpanda.Brokers, s.topic)
	s.Require().NoError(err)
	s.producer = p
}

func (s *KafkaBusSuite) TearDownTest() {
	s.producer.Close()
}

func (s *KafkaBusSuite) TestDeliversEnvelopesInActivityOrder() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	tenant := testutil.NewTenantID()
	activity := domain.NewActivityID()
	now := time.Date(2026, 4, 2, 14, 0, 0, 0, time.UTC)
	publisher := kafkabus.NewPublisher(s.producer)

	sent := []events.Type{events.TypeActivitySubmitted, events.TypeActivityVerified, events.TypeActivityWithdrawn}
	for i, typ := range sent {
		env, err := events.New(typ, tenant, activity, int64(i+1), now, nil)
		s.Require().NoError(err)
		s.Require().NoError(publisher.Publish(ctx, env))
	}

	received := make(chan events.Envelope, len(sent))
	subCtx, stop := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() {
		done <- kafkabus.NewSubscriber(s.redpanda.Brokers, s.topic, s.logger).Subscribe(subCtx, "ordering",
			events.HandlerFunc(func(_ context.Context, env events.Envelope) error {
				received <- env
				return nil
			}))
	}()

	for i, typ := range sent {
		select {
		case env := <-received:
			s.Equal(typ, env.Type)
			s.Equal(int64(i+1), env.SequenceNo)
			s.Equal(activity, env.ActivityID)
		case <-ctx.Done():
			s.FailNow("timed out waiting for envelope", "received %d of %d", i, len(sent))
		}
	}

	stop()
	<-done
}
