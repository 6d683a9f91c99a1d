// Package delivery runs event consumers with at-least-once semantics:
// duplicate suppression, bounded retries and a dead-letter queue that
// operators can inspect and replay.
package delivery

import (
	"context"
	"time"

	"github.com/google/uuid"

	"credence/internal/events"
	"credence/pkg/domain"
)

// DeadLetter is an envelope a consumer gave up on after its retry budget.
type DeadLetter struct {
	ID             uuid.UUID       `json:"id"`
	Consumer       string          `json:"consumer"`
	IdempotencyKey string          `json:"idempotency_key"`
	Envelope       events.Envelope `json:"envelope"`
	Attempts       int             `json:"attempts"`
	LastError      string          `json:"last_error"`
	DeadLetteredAt time.Time       `json:"dead_lettered_at"`
	ReplayedAt     *time.Time      `json:"replayed_at,omitempty"`
}

// ListFilter selects dead letters. Zero values select all open entries.
type ListFilter struct {
	TenantID        domain.TenantID
	Consumer        string
	IncludeReplayed bool
	Limit           int
}

// DeadLetterStore persists dead letters. Add is idempotent per open
// (consumer, idempotency key) pair.
type DeadLetterStore interface {
	Add(ctx context.Context, dl DeadLetter) error
	Get(ctx context.Context, id uuid.UUID) (*DeadLetter, error)
	List(ctx context.Context, filter ListFilter) ([]DeadLetter, error)
	MarkReplayed(ctx context.Context, id uuid.UUID, at time.Time) error
}
