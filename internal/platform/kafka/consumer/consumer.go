package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Message is a consumed record.
type Message struct {
	Topic     string
	Partition int32
	Offset    int64
	Key       []byte
	Value     []byte
	Headers   map[string]string
}

// Handler processes one message. Returning an error blocks the partition and
// the message is retried after retryDelay.
type Handler interface {
	Handle(ctx context.Context, msg *Message) error
}

// Consumer reads a topic as a member of a consumer group and commits offsets
// only after records were handled.
type Consumer struct {
	client     *kgo.Client
	logger     *slog.Logger
	retryDelay time.Duration
}

func New(brokers []string, topic, group string, logger *slog.Logger, opts ...kgo.Opt) (*Consumer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	base := []kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.ConsumerGroup(group),
		kgo.ConsumeTopics(topic),
		kgo.DisableAutoCommit(),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
		kgo.BlockRebalanceOnPoll(),
	}
	client, err := kgo.NewClient(append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("create kafka consumer: %w", err)
	}
	return &Consumer{client: client, logger: logger, retryDelay: time.Second}, nil
}

// Run polls until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context, handler Handler) error {
	defer c.client.Close()
	for {
		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() || ctx.Err() != nil {
			c.client.AllowRebalance()
			return ctx.Err()
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			if !errors.Is(err, context.Canceled) {
				c.logger.ErrorContext(ctx, "kafka fetch error",
					"topic", topic,
					"partition", partition,
					"error", err,
				)
			}
		})

		var handled []*kgo.Record
		fetches.EachRecord(func(rec *kgo.Record) {
			if ctx.Err() != nil {
				return
			}
			msg := toMessage(rec)
			for {
				err := handler.Handle(ctx, msg)
				if err == nil {
					handled = append(handled, rec)
					return
				}
				c.logger.ErrorContext(ctx, "kafka handler failed, retrying",
					"topic", rec.Topic,
					"partition", rec.Partition,
					"offset", rec.Offset,
					"error", err,
				)
				select {
				case <-ctx.Done():
					return
				case <-time.After(c.retryDelay):
				}
			}
		})

		if len(handled) > 0 {
			if err := c.client.CommitRecords(context.WithoutCancel(ctx), handled...); err != nil {
				c.logger.ErrorContext(ctx, "kafka offset commit failed", "error", err)
			}
		}
		c.client.AllowRebalance()
	}
}

func toMessage(rec *kgo.Record) *Message {
	headers := make(map[string]string, len(rec.Headers))
	for _, h := range rec.Headers {
		headers[h.Key] = string(h.Value)
	}
	return &Message{
		Topic:     rec.Topic,
		Partition: rec.Partition,
		Offset:    rec.Offset,
		Key:       rec.Key,
		Value:     rec.Value,
		Headers:   headers,
	}
}
