package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"credence/internal/activity/models"
	"credence/internal/platform/postgres"
	"credence/internal/proof"
	"credence/pkg/domain"
	"credence/pkg/platform/sentinel"
)

// PostgresStore persists activities in the activities table. Updates are
// compare-and-set on version.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const activityColumns = `
	id, tenant_id, student_id, type, title, description, department,
	assigned_verifier_id, proof_refs, proof_waived, status, created_by,
	created_at, last_transition_at, sequence_no, version, proofs_at_info_request`

func (s *PostgresStore) Create(ctx context.Context, a *models.Activity) error {
	refs, err := json.Marshal(nonNilRefs(a.ProofRefs))
	if err != nil {
		return fmt.Errorf("marshal proof refs: %w", err)
	}
	_, err = postgres.Conn(ctx, s.db).ExecContext(ctx, `
		INSERT INTO activities (`+activityColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`,
		uuid.UUID(a.ID),
		uuid.UUID(a.TenantID),
		uuid.UUID(a.StudentID),
		string(a.Type),
		a.Title,
		a.Description,
		a.Department,
		nullableUser(a.AssignedVerifierID),
		refs,
		a.ProofWaived,
		string(a.Status),
		uuid.UUID(a.CreatedBy),
		a.CreatedAt,
		a.LastTransitionAt,
		a.SequenceNo,
		a.Version,
		a.ProofsAtInfoRequest,
	)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return sentinel.ErrAlreadyExists
		}
		return fmt.Errorf("insert activity: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, tenantID domain.TenantID, id domain.ActivityID) (*models.Activity, error) {
	row := postgres.Conn(ctx, s.db).QueryRowContext(ctx, `
		SELECT `+activityColumns+`
		FROM activities
		WHERE tenant_id = $1 AND id = $2
	`, uuid.UUID(tenantID), uuid.UUID(id))
	a, err := scanActivity(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, err
	}
	return a, nil
}

func (s *PostgresStore) Update(ctx context.Context, a *models.Activity, expectedVersion int64) error {
	refs, err := json.Marshal(nonNilRefs(a.ProofRefs))
	if err != nil {
		return fmt.Errorf("marshal proof refs: %w", err)
	}
	conn := postgres.Conn(ctx, s.db)
	res, err := conn.ExecContext(ctx, `
		UPDATE activities SET
			proof_refs = $3,
			proof_waived = $4,
			status = $5,
			last_transition_at = $6,
			sequence_no = $7,
			version = $8,
			proofs_at_info_request = $9,
			assigned_verifier_id = $10
		WHERE tenant_id = $1 AND id = $2 AND version = $11
	`,
		uuid.UUID(a.TenantID),
		uuid.UUID(a.ID),
		refs,
		a.ProofWaived,
		string(a.Status),
		a.LastTransitionAt,
		a.SequenceNo,
		a.Version,
		a.ProofsAtInfoRequest,
		nullableUser(a.AssignedVerifierID),
		expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("update activity: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}

	var exists bool
	if err := conn.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM activities WHERE tenant_id = $1 AND id = $2)`,
		uuid.UUID(a.TenantID), uuid.UUID(a.ID),
	).Scan(&exists); err != nil {
		return fmt.Errorf("check activity: %w", err)
	}
	if !exists {
		return sentinel.ErrNotFound
	}
	return sentinel.ErrConflict
}

func (s *PostgresStore) List(ctx context.Context, f ListFilter) ([]*models.Activity, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	var (
		conds = []string{"tenant_id = $1"}
		args  = []any{uuid.UUID(f.TenantID)}
	)
	if f.Status != "" {
		args = append(args, string(f.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if !f.StudentID.IsNil() {
		args = append(args, uuid.UUID(f.StudentID))
		conds = append(conds, fmt.Sprintf("student_id = $%d", len(args)))
	}
	if !f.AfterID.IsNil() {
		args = append(args, uuid.UUID(f.AfterID))
		conds = append(conds, fmt.Sprintf("id > $%d", len(args)))
	}
	args = append(args, limit)
	query := fmt.Sprintf(`SELECT %s FROM activities WHERE %s ORDER BY id ASC LIMIT $%d`,
		activityColumns, strings.Join(conds, " AND "), len(args))

	rows, err := postgres.Conn(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}
	defer rows.Close()

	out := []*models.Activity{}
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate activities: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) ListKeys(ctx context.Context, afterID domain.ActivityID, limit int) ([]Key, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := postgres.Conn(ctx, s.db).QueryContext(ctx, `
		SELECT tenant_id, id FROM activities
		WHERE id > $1
		ORDER BY id ASC
		LIMIT $2
	`, uuid.UUID(afterID), limit)
	if err != nil {
		return nil, fmt.Errorf("list activity keys: %w", err)
	}
	defer rows.Close()

	keys := []Key{}
	for rows.Next() {
		var tenantID, id uuid.UUID
		if err := rows.Scan(&tenantID, &id); err != nil {
			return nil, fmt.Errorf("scan activity key: %w", err)
		}
		keys = append(keys, Key{TenantID: domain.TenantID(tenantID), ActivityID: domain.ActivityID(id)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate activity keys: %w", err)
	}
	return keys, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanActivity(row rowScanner) (*models.Activity, error) {
	var (
		a                                models.Activity
		id, tenantID, studentID, creator uuid.UUID
		verifier                         uuid.NullUUID
		typ, status                      string
		refs                             []byte
	)
	err := row.Scan(
		&id, &tenantID, &studentID, &typ, &a.Title, &a.Description, &a.Department,
		&verifier, &refs, &a.ProofWaived, &status, &creator,
		&a.CreatedAt, &a.LastTransitionAt, &a.SequenceNo, &a.Version, &a.ProofsAtInfoRequest,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan activity: %w", err)
	}
	if err := json.Unmarshal(refs, &a.ProofRefs); err != nil {
		return nil, fmt.Errorf("unmarshal proof refs: %w", err)
	}
	a.ID = domain.ActivityID(id)
	a.TenantID = domain.TenantID(tenantID)
	a.StudentID = domain.UserID(studentID)
	a.CreatedBy = domain.UserID(creator)
	if verifier.Valid {
		a.AssignedVerifierID = domain.UserID(verifier.UUID)
	}
	a.Type = models.ActivityType(typ)
	a.Status = models.Status(status)
	a.CreatedAt = a.CreatedAt.UTC()
	a.LastTransitionAt = a.LastTransitionAt.UTC()
	return &a, nil
}

func nullableUser(id domain.UserID) uuid.NullUUID {
	if id.IsNil() {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: uuid.UUID(id), Valid: true}
}

func nonNilRefs(refs []proof.Ref) []proof.Ref {
	if refs == nil {
		return []proof.Ref{}
	}
	return refs
}
