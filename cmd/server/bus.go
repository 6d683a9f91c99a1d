package main

import (
	"context"
	"log/slog"

	"credence/internal/events"
	"credence/internal/events/bus"
	"credence/internal/events/kafkabus"
	"credence/internal/platform/config"
	"credence/internal/platform/kafka"
	"credence/internal/platform/kafka/producer"
)

// eventBus pairs the publisher the outbox relay writes to with the subscriber
// consumer groups read from.
type eventBus struct {
	publisher  events.Publisher
	subscriber events.Subscriber
	close      func()
}

func (b *eventBus) Close() {
	if b.close != nil {
		b.close()
	}
}

func openBus(ctx context.Context, cfg config.Config, facts kafkabus.Quarantine, log *slog.Logger) (*eventBus, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		log.Warn("kafka brokers not set, using the in-memory event bus")
		b := bus.New(bus.WithLogger(log))
		// Groups exist before the relay starts so nothing published early is lost.
		b.Register(cfg.Kafka.IssuerGroup)
		b.Register(cfg.Kafka.NotificationGroup)
		return &eventBus{publisher: b, subscriber: b, close: b.Close}, nil
	}

	if err := kafka.EnsureTopic(ctx, cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.Partitions); err != nil {
		return nil, err
	}
	p, err := producer.New(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	if err != nil {
		return nil, err
	}
	log.Info("kafka event bus ready", "topic", cfg.Kafka.Topic, "brokers", cfg.Kafka.Brokers)
	return &eventBus{
		publisher:  kafkabus.NewPublisher(p),
		subscriber: kafkabus.NewSubscriber(cfg.Kafka.Brokers, cfg.Kafka.Topic, log,
			kafkabus.WithQuarantine(facts),
		),
		close:      p.Close,
	}, nil
}
