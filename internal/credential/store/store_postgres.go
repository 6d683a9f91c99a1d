package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"credence/internal/credential/models"
	"credence/internal/platform/postgres"
	"credence/internal/proof"
	"credence/pkg/domain"
	"credence/pkg/platform/sentinel"
)

// PostgresStore persists credentials in PostgreSQL. The partial unique index
// on activity_id enforces one unrevoked credential per activity.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, c *models.Credential) error {
	_, err := postgres.Conn(ctx, s.db).ExecContext(ctx, `
		INSERT INTO credentials (
			id, tenant_id, activity_id, subject_id, key_id,
			issued_at, payload, payload_hash, signature
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		uuid.UUID(c.ID),
		uuid.UUID(c.TenantID),
		uuid.UUID(c.ActivityID),
		uuid.UUID(c.SubjectID),
		c.KeyID,
		c.IssuedAt,
		c.Payload,
		c.PayloadHash.String(),
		c.Signature,
	)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return sentinel.ErrAlreadyExists
		}
		return fmt.Errorf("insert credential: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByActivity(ctx context.Context, tenantID domain.TenantID, activityID domain.ActivityID) (*models.Credential, error) {
	row := postgres.Conn(ctx, s.db).QueryRowContext(ctx, `
		SELECT id, tenant_id, activity_id, subject_id, key_id, issued_at,
		       payload, payload_hash, signature, revoked_at
		FROM credentials
		WHERE tenant_id = $1 AND activity_id = $2
		ORDER BY issued_at DESC
		LIMIT 1
	`, uuid.UUID(tenantID), uuid.UUID(activityID))

	var (
		c                             models.Credential
		id, tenant, activity, subject uuid.UUID
		payloadHash                   string
		revokedAt                     sql.NullTime
	)
	err := row.Scan(&id, &tenant, &activity, &subject, &c.KeyID, &c.IssuedAt,
		&c.Payload, &payloadHash, &c.Signature, &revokedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find credential by activity: %w", err)
	}
	c.ID = domain.CredentialID(id)
	c.TenantID = domain.TenantID(tenant)
	c.ActivityID = domain.ActivityID(activity)
	c.SubjectID = domain.UserID(subject)
	c.PayloadHash = proof.ContentHash(payloadHash)
	if revokedAt.Valid {
		t := revokedAt.Time
		c.RevokedAt = &t
	}
	return &c, nil
}

// Revoke is a no-op for an already revoked credential.
func (s *PostgresStore) Revoke(ctx context.Context, tenantID domain.TenantID, id domain.CredentialID, at time.Time) error {
	res, err := postgres.Conn(ctx, s.db).ExecContext(ctx, `
		UPDATE credentials SET revoked_at = $3
		WHERE tenant_id = $1 AND id = $2 AND revoked_at IS NULL
	`, uuid.UUID(tenantID), uuid.UUID(id), at)
	if err != nil {
		return fmt.Errorf("revoke credential: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("revoke credential: %w", err)
	}
	if n > 0 {
		return nil
	}
	var exists bool
	err = postgres.Conn(ctx, s.db).QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM credentials WHERE tenant_id = $1 AND id = $2)`,
		uuid.UUID(tenantID), uuid.UUID(id),
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("revoke credential: %w", err)
	}
	if !exists {
		return sentinel.ErrNotFound
	}
	return nil
}
