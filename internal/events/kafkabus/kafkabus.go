// Package kafkabus carries envelopes over a single Kafka topic keyed by
// activity id, which gives per-activity ordering through partition affinity.
package kafkabus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"credence/internal/events"
	"credence/internal/platform/kafka/consumer"
	"credence/internal/platform/kafka/producer"
	audit "credence/pkg/platform/audit"
)

const (
	headerType           = "event-type"
	headerIdempotencyKey = "idempotency-key"
)

type messageProducer interface {
	Produce(ctx context.Context, msg producer.Message) error
}

// Publisher implements events.Publisher.
type Publisher struct {
	producer messageProducer
}

func NewPublisher(p messageProducer) *Publisher {
	return &Publisher{producer: p}
}

func (p *Publisher) Publish(ctx context.Context, env events.Envelope) error {
	value, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	return p.producer.Produce(ctx, producer.Message{
		Key:   []byte(env.ActivityID.String()),
		Value: value,
		Headers: map[string]string{
			headerType:           string(env.Type),
			headerIdempotencyKey: env.IdempotencyKey(),
		},
	})
}

// Quarantine records records that cannot be decoded into an envelope. The
// compliance publisher satisfies it.
type Quarantine interface {
	Emit(ctx context.Context, event audit.ComplianceEvent) error
}

// Subscriber implements events.Subscriber with one consumer group per Subscribe call.
type Subscriber struct {
	brokers    []string
	topic      string
	logger     *slog.Logger
	quarantine Quarantine
}

type SubscriberOption func(*Subscriber)

// WithQuarantine records undecodable records as compliance facts before their
// offset is committed.
func WithQuarantine(q Quarantine) SubscriberOption {
	return func(s *Subscriber) { s.quarantine = q }
}

func NewSubscriber(brokers []string, topic string, logger *slog.Logger, opts ...SubscriberOption) *Subscriber {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Subscriber{brokers: brokers, topic: topic, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Subscriber) Subscribe(ctx context.Context, group string, handler events.Handler) error {
	c, err := consumer.New(s.brokers, s.topic, group, s.logger)
	if err != nil {
		return err
	}
	return c.Run(ctx, &envelopeHandler{
		group:      group,
		handler:    handler,
		quarantine: s.quarantine,
		logger:     s.logger,
	})
}

// envelopeHandler decodes records into envelopes.
type envelopeHandler struct {
	group      string
	handler    events.Handler
	quarantine Quarantine
	logger     *slog.Logger
}

func (h *envelopeHandler) Handle(ctx context.Context, msg *consumer.Message) error {
	var env events.Envelope
	if err := json.Unmarshal(msg.Value, &env); err != nil {
		return h.quarantineRecord(ctx, msg, err)
	}
	return h.handler.Handle(ctx, env)
}

// quarantineRecord keeps an undecodable record on file so the partition can
// move past it. If the fact cannot be written the record is retried.
func (h *envelopeHandler) quarantineRecord(ctx context.Context, msg *consumer.Message, decodeErr error) error {
	position := fmt.Sprintf("%s/%d/%d", msg.Topic, msg.Partition, msg.Offset)
	h.logger.ErrorContext(ctx, "CRITICAL: failed to decode event envelope",
		"position", position,
		"group", h.group,
		"key", string(msg.Key),
		"error", decodeErr,
	)
	if h.quarantine == nil {
		return nil
	}
	err := h.quarantine.Emit(ctx, audit.ComplianceEvent{
		Subject:  position,
		Action:   audit.EventRecordUndecodable,
		Decision: "skipped",
		Reason:   decodeErr.Error(),
		ActorID:  h.group,
	})
	if err != nil {
		return fmt.Errorf("quarantine record %s: %w", position, err)
	}
	return nil
}
