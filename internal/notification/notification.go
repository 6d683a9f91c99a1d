// Package notification tells students and verifiers about activity and
// credential changes. Delivery is best effort.
package notification

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"credence/internal/events"
	"credence/pkg/domain"
)

// Notification is one message for one recipient or audience.
type Notification struct {
	ID          string            `json:"id"`
	TenantID    domain.TenantID   `json:"tenant_id"`
	RecipientID domain.UserID     `json:"recipient_id,omitzero"`
	Audience    string            `json:"audience,omitempty"`
	Kind        events.Type       `json:"kind"`
	ActivityID  domain.ActivityID `json:"activity_id"`
	Subject     string            `json:"subject"`
	Body        string            `json:"body,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// Consumer maps bus events to notifications.
type Consumer struct {
	notifier Notifier
	logger   *slog.Logger
}

func NewConsumer(notifier Notifier, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{notifier: notifier, logger: logger}
}

func (c *Consumer) Handle(ctx context.Context, env events.Envelope) error {
	n, ok, err := Compose(env)
	if err != nil {
		// Content is best effort; a payload we cannot read is not worth a retry.
		c.logger.WarnContext(ctx, "notification skipped: unreadable payload",
			"event_type", env.Type,
			"activity_id", env.ActivityID,
			"error", err,
		)
		return nil
	}
	if !ok {
		return nil
	}
	return c.notifier.Notify(ctx, n)
}

// Compose builds the notification for env. ok is false for events nobody is
// told about.
func Compose(env events.Envelope) (n Notification, ok bool, err error) {
	n = Notification{
		ID:         env.IdempotencyKey(),
		TenantID:   env.TenantID,
		Kind:       env.Type,
		ActivityID: env.ActivityID,
		CreatedAt:  env.Timestamp,
	}

	switch env.Type {
	case events.TypeCredentialIssued, events.TypeCredentialRevoked:
		var p events.CredentialPayload
		if err := env.Decode(&p); err != nil {
			return n, false, err
		}
		n.RecipientID = p.StudentID
		if env.Type == events.TypeCredentialIssued {
			n.Subject = "Your credential is ready"
		} else {
			n.Subject = "Your credential was revoked"
			n.Body = p.Reason
		}
		return n, true, nil
	}

	var p events.ActivityPayload
	if err := env.Decode(&p); err != nil {
		return n, false, err
	}
	switch env.Type {
	case events.TypeActivitySubmitted, events.TypeActivityResubmitted:
		if !p.AssignedVerifierID.IsNil() {
			n.RecipientID = p.AssignedVerifierID
		} else if p.Department != "" {
			n.Audience = "department:" + p.Department
		} else {
			n.Audience = "verifiers"
		}
		n.Subject = fmt.Sprintf("%q is awaiting review", p.Title)
	case events.TypeActivityVerified:
		n.RecipientID = p.StudentID
		n.Subject = fmt.Sprintf("%q was verified", p.Title)
	case events.TypeActivityRejected:
		n.RecipientID = p.StudentID
		n.Subject = fmt.Sprintf("%q was rejected", p.Title)
		n.Body = p.Comment
	case events.TypeActivityInfoRequested:
		n.RecipientID = p.StudentID
		n.Subject = fmt.Sprintf("More information is needed for %q", p.Title)
		n.Body = p.Comment
	case events.TypeActivityWithdrawn:
		n.RecipientID = p.StudentID
		n.Subject = fmt.Sprintf("%q was withdrawn", p.Title)
		n.Body = p.Comment
	default:
		return n, false, nil
	}
	return n, true, nil
}

// LogNotifier writes notifications to the log. It is the fallback channel and
// the default when no broker is configured.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (l *LogNotifier) Notify(ctx context.Context, n Notification) error {
	l.logger.InfoContext(ctx, "notification",
		"id", n.ID,
		"tenant_id", n.TenantID,
		"recipient_id", n.RecipientID,
		"audience", n.Audience,
		"kind", n.Kind,
		"subject", n.Subject,
	)
	return nil
}
