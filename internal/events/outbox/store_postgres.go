package outbox

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"credence/internal/events"
	"credence/internal/platform/postgres"
	"credence/pkg/domain"
)

// PostgresStore keeps the outbox in the outbox table so entries commit with the
// transaction carried in ctx.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Add(ctx context.Context, env events.Envelope) error {
	payload := env.Payload
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}
	_, err := postgres.Conn(ctx, s.db).ExecContext(ctx, `
		INSERT INTO outbox (
			id, tenant_id, activity_id, event_type, sequence_no,
			idempotency_key, payload, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (idempotency_key) DO NOTHING
	`,
		env.ID,
		uuid.UUID(env.TenantID),
		uuid.UUID(env.ActivityID),
		string(env.Type),
		env.SequenceNo,
		env.IdempotencyKey(),
		[]byte(payload),
		env.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert outbox entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) Pending(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := postgres.Conn(ctx, s.db).QueryContext(ctx, `
		SELECT position, id, tenant_id, activity_id, event_type, sequence_no, payload, created_at
		FROM outbox
		WHERE published_at IS NULL
		ORDER BY position ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query pending outbox: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var (
			e               Entry
			tenantID, actID uuid.UUID
			eventType       string
			payload         []byte
		)
		if err := rows.Scan(&e.Position, &e.Envelope.ID, &tenantID, &actID, &eventType,
			&e.Envelope.SequenceNo, &payload, &e.Envelope.Timestamp); err != nil {
			return nil, fmt.Errorf("scan outbox entry: %w", err)
		}
		e.Envelope.TenantID = domain.TenantID(tenantID)
		e.Envelope.ActivityID = domain.ActivityID(actID)
		e.Envelope.Type = events.Type(eventType)
		e.Envelope.Timestamp = e.Envelope.Timestamp.UTC()
		e.Envelope.Payload = json.RawMessage(payload)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox entries: %w", err)
	}
	return entries, nil
}

func (s *PostgresStore) MarkPublished(ctx context.Context, positions []int64, at time.Time) error {
	if len(positions) == 0 {
		return nil
	}
	_, err := postgres.Conn(ctx, s.db).ExecContext(ctx, `
		UPDATE outbox SET published_at = $1
		WHERE position = ANY($2) AND published_at IS NULL
	`, at, pq.Array(positions))
	if err != nil {
		return fmt.Errorf("mark outbox published: %w", err)
	}
	return nil
}
