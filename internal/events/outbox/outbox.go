// Package outbox implements the transactional outbox: envelopes are stored in
// the same unit of work as the state change that produced them and relayed to
// the bus afterwards.
package outbox

import (
	"context"
	"time"

	"credence/internal/events"
)

// Entry is a stored envelope. Position orders entries by insertion.
type Entry struct {
	Position    int64
	Envelope    events.Envelope
	PublishedAt *time.Time
}

// Store persists outbox entries.
//
// Add is idempotent on the envelope's idempotency key. Pending returns
// unpublished entries in insertion order.
type Store interface {
	Add(ctx context.Context, env events.Envelope) error
	Pending(ctx context.Context, limit int) ([]Entry, error)
	MarkPublished(ctx context.Context, positions []int64, at time.Time) error
}
