package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"credence/internal/notification/metrics"
	"credence/pkg/platform/circuit"
)

const defaultSubjectPrefix = "credence.notifications"

// Publisher is the subset of *nats.Conn the notifier needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSNotifier publishes notifications on credence.notifications.<tenant>.
// Behind a circuit breaker it degrades to the fallback notifier.
type NATSNotifier struct {
	conn     Publisher
	prefix   string
	breaker  *circuit.Breaker
	fallback Notifier
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

type NATSOption func(*NATSNotifier)

func WithSubjectPrefix(prefix string) NATSOption {
	return func(n *NATSNotifier) {
		if prefix != "" {
			n.prefix = prefix
		}
	}
}

func WithBreaker(b *circuit.Breaker) NATSOption {
	return func(n *NATSNotifier) { n.breaker = b }
}

func WithMetrics(m *metrics.Metrics) NATSOption {
	return func(n *NATSNotifier) { n.metrics = m }
}

func NewNATSNotifier(conn Publisher, fallback Notifier, logger *slog.Logger, opts ...NATSOption) *NATSNotifier {
	n := &NATSNotifier{
		conn:     conn,
		prefix:   defaultSubjectPrefix,
		breaker:  circuit.New("nats-notifications"),
		fallback: fallback,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Subject returns the subject note is published on.
func (n *NATSNotifier) Subject(note Notification) string {
	return n.prefix + "." + note.TenantID.String()
}

func (n *NATSNotifier) Notify(ctx context.Context, note Notification) error {
	if !n.breaker.Allow() {
		return n.degrade(ctx, note)
	}
	data, err := json.Marshal(note)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	if err := n.conn.Publish(n.Subject(note), data); err != nil {
		_, change := n.breaker.RecordFailure()
		if change.Opened {
			n.logger.WarnContext(ctx, "notification breaker opened", "breaker", n.breaker.Name(), "error", err)
		}
		return n.degrade(ctx, note)
	}
	if _, change := n.breaker.RecordSuccess(); change.Closed {
		n.logger.InfoContext(ctx, "notification breaker closed", "breaker", n.breaker.Name())
	}
	n.metrics.IncrementSent("nats")
	return nil
}

func (n *NATSNotifier) degrade(ctx context.Context, note Notification) error {
	n.metrics.IncrementFallback()
	if n.fallback == nil {
		return fmt.Errorf("notification %s: primary unavailable and no fallback", note.ID)
	}
	return n.fallback.Notify(ctx, note)
}
