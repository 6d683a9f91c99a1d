package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	actmodels "credence/internal/activity/models"
	"credence/internal/ledger"
	"credence/internal/platform/postgres"
	"credence/pkg/domain"
	"credence/pkg/platform/sentinel"
)

// PostgresStore persists transition records in the append-only transition_records table.
// A trigger on the table rejects UPDATE and DELETE.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Append inserts rec only when its predecessor exists (or it is the first record).
// A duplicate (activity, sequence) is ignored.
func (s *PostgresStore) Append(ctx context.Context, rec ledger.Record) error {
	conn := postgres.Conn(ctx, s.db)
	res, err := conn.ExecContext(ctx, `
		INSERT INTO transition_records (
			id, tenant_id, activity_id, actor_id, actor_role, from_status,
			to_status, action, comment, recorded_at, sequence_no
		)
		SELECT $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11
		WHERE $11::bigint = 1 OR EXISTS (
			SELECT 1 FROM transition_records
			WHERE activity_id = $3 AND sequence_no = $11::bigint - 1
		)
		ON CONFLICT (activity_id, sequence_no) DO NOTHING
	`,
		uuid.UUID(rec.ID),
		uuid.UUID(rec.TenantID),
		uuid.UUID(rec.ActivityID),
		uuid.UUID(rec.ActorID),
		string(rec.ActorRole),
		string(rec.FromStatus),
		string(rec.ToStatus),
		string(rec.Action),
		rec.Comment,
		rec.RecordedAt,
		rec.SequenceNo,
	)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return nil
		}
		return fmt.Errorf("append transition record: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}

	var exists bool
	if err := conn.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM transition_records WHERE activity_id = $1 AND sequence_no = $2
		)`, uuid.UUID(rec.ActivityID), rec.SequenceNo,
	).Scan(&exists); err != nil {
		return fmt.Errorf("check transition record: %w", err)
	}
	if exists {
		return nil
	}
	return sentinel.ErrInvalidState
}

func (s *PostgresStore) List(ctx context.Context, tenantID domain.TenantID, activityID domain.ActivityID, afterSeq int64, limit int) ([]ledger.Record, error) {
	query := `
		SELECT id, tenant_id, activity_id, actor_id, actor_role, from_status,
		       to_status, action, comment, recorded_at, sequence_no
		FROM transition_records
		WHERE tenant_id = $1 AND activity_id = $2 AND sequence_no > $3
		ORDER BY sequence_no ASC
	`
	args := []any{uuid.UUID(tenantID), uuid.UUID(activityID), afterSeq}
	if limit > 0 {
		query += " LIMIT $4"
		args = append(args, limit)
	}

	rows, err := postgres.Conn(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transition records: %w", err)
	}
	defer rows.Close()

	records := []ledger.Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transition records: %w", err)
	}
	return records, nil
}

func (s *PostgresStore) Get(ctx context.Context, tenantID domain.TenantID, activityID domain.ActivityID, seq int64) (*ledger.Record, error) {
	row := postgres.Conn(ctx, s.db).QueryRowContext(ctx, `
		SELECT id, tenant_id, activity_id, actor_id, actor_role, from_status,
		       to_status, action, comment, recorded_at, sequence_no
		FROM transition_records
		WHERE tenant_id = $1 AND activity_id = $2 AND sequence_no = $3
	`, uuid.UUID(tenantID), uuid.UUID(activityID), seq)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (ledger.Record, error) {
	var (
		rec                             ledger.Record
		id, tenantID, actID, actorID    uuid.UUID
		role, from, to, action, comment string
	)
	if err := row.Scan(&id, &tenantID, &actID, &actorID, &role, &from, &to, &action, &comment, &rec.RecordedAt, &rec.SequenceNo); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ledger.Record{}, err
		}
		return ledger.Record{}, fmt.Errorf("scan transition record: %w", err)
	}
	rec.ID = domain.TransitionID(id)
	rec.TenantID = domain.TenantID(tenantID)
	rec.ActivityID = domain.ActivityID(actID)
	rec.ActorID = domain.UserID(actorID)
	rec.ActorRole = domain.Role(role)
	rec.FromStatus = actmodels.Status(from)
	rec.ToStatus = actmodels.Status(to)
	rec.Action = actmodels.Action(action)
	rec.Comment = comment
	rec.RecordedAt = rec.RecordedAt.UTC()
	return rec, nil
}
