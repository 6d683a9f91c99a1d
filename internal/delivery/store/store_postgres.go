package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"credence/internal/delivery"
	"credence/internal/events"
	"credence/internal/platform/postgres"
	"credence/pkg/platform/sentinel"
)

// PostgresStore persists dead letters in the dead_letters table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Add(ctx context.Context, dl delivery.DeadLetter) error {
	envelope, err := json.Marshal(dl.Envelope)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	_, err = postgres.Conn(ctx, s.db).ExecContext(ctx, `
		INSERT INTO dead_letters (
			id, consumer, idempotency_key, tenant_id, activity_id,
			envelope, attempts, last_error, dead_lettered_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (consumer, idempotency_key) WHERE replayed_at IS NULL DO NOTHING
	`,
		dl.ID,
		dl.Consumer,
		dl.IdempotencyKey,
		uuid.UUID(dl.Envelope.TenantID),
		uuid.UUID(dl.Envelope.ActivityID),
		envelope,
		dl.Attempts,
		dl.LastError,
		dl.DeadLetteredAt,
	)
	if err != nil {
		return fmt.Errorf("insert dead letter: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (*delivery.DeadLetter, error) {
	row := postgres.Conn(ctx, s.db).QueryRowContext(ctx, `
		SELECT id, consumer, idempotency_key, envelope, attempts, last_error, dead_lettered_at, replayed_at
		FROM dead_letters
		WHERE id = $1
	`, id)
	dl, err := scanDeadLetter(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find dead letter: %w", err)
	}
	return dl, nil
}

func (s *PostgresStore) List(ctx context.Context, f delivery.ListFilter) ([]delivery.DeadLetter, error) {
	var (
		where []string
		args  []any
	)
	if !f.TenantID.IsNil() {
		args = append(args, uuid.UUID(f.TenantID))
		where = append(where, fmt.Sprintf("tenant_id = $%d", len(args)))
	}
	if f.Consumer != "" {
		args = append(args, f.Consumer)
		where = append(where, fmt.Sprintf("consumer = $%d", len(args)))
	}
	if !f.IncludeReplayed {
		where = append(where, "replayed_at IS NULL")
	}
	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	args = append(args, limit)

	query := `SELECT id, consumer, idempotency_key, envelope, attempts, last_error, dead_lettered_at, replayed_at FROM dead_letters`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY dead_lettered_at ASC, id ASC LIMIT $%d", len(args))

	rows, err := postgres.Conn(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list dead letters: %w", err)
	}
	defer rows.Close()

	out := []delivery.DeadLetter{}
	for rows.Next() {
		dl, err := scanDeadLetter(rows)
		if err != nil {
			return nil, fmt.Errorf("scan dead letter: %w", err)
		}
		out = append(out, *dl)
	}
	return out, rows.Err()
}

func (s *PostgresStore) MarkReplayed(ctx context.Context, id uuid.UUID, at time.Time) error {
	res, err := postgres.Conn(ctx, s.db).ExecContext(ctx, `
		UPDATE dead_letters SET replayed_at = $2 WHERE id = $1 AND replayed_at IS NULL
	`, id, at)
	if err != nil {
		return fmt.Errorf("mark dead letter replayed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark dead letter replayed: %w", err)
	}
	if n == 0 {
		if _, err := s.Get(ctx, id); err != nil {
			return err
		}
		return sentinel.ErrConflict
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDeadLetter(row scanner) (*delivery.DeadLetter, error) {
	var (
		dl         delivery.DeadLetter
		envelope   []byte
		replayedAt sql.NullTime
	)
	if err := row.Scan(&dl.ID, &dl.Consumer, &dl.IdempotencyKey, &envelope, &dl.Attempts,
		&dl.LastError, &dl.DeadLetteredAt, &replayedAt); err != nil {
		return nil, err
	}
	var env events.Envelope
	if err := json.Unmarshal(envelope, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	dl.Envelope = env
	if replayedAt.Valid {
		t := replayedAt.Time
		dl.ReplayedAt = &t
	}
	return &dl, nil
}
