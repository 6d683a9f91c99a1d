package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	id "credence/pkg/domain"
	audit "credence/pkg/platform/audit"
	txcontext "credence/pkg/platform/tx"
)

// Store implements audit.Store on the audit_events table. Appends join the
// transaction carried in ctx so a fact commits with the change it describes.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// Append inserts an audit fact. Idempotent on event ID via ON CONFLICT DO NOTHING.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	// Always derive category from action - eventCategories map is the source of truth
	category := audit.AuditEvent(event.Action).Category()

	var tenantID *uuid.UUID
	if !event.TenantID.IsNil() {
		t := uuid.UUID(event.TenantID)
		tenantID = &t
	}

	query := `
		INSERT INTO audit_events (
			id, category, timestamp, tenant_id, subject, action,
			decision, reason, request_id, actor_id, ip, client, severity
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO NOTHING
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		event.ID,
		string(category),
		event.Timestamp,
		tenantID,
		event.Subject,
		event.Action,
		event.Decision,
		event.Reason,
		event.RequestID,
		event.ActorID,
		event.IP,
		event.Client,
		string(event.Severity),
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// List returns matching events, most recent first.
func (s *Store) List(ctx context.Context, f audit.Filter) ([]audit.Event, error) {
	var (
		where []string
		args  []any
	)
	if !f.TenantID.IsNil() {
		args = append(args, uuid.UUID(f.TenantID))
		where = append(where, fmt.Sprintf("tenant_id = $%d", len(args)))
	}
	if f.Category != "" {
		args = append(args, string(f.Category))
		where = append(where, fmt.Sprintf("category = $%d", len(args)))
	}
	if f.Action != "" {
		args = append(args, f.Action)
		where = append(where, fmt.Sprintf("action = $%d", len(args)))
	}
	limit := f.Limit
	if limit <= 0 || limit > 1000 {
		limit = 1000
	}
	args = append(args, limit)

	query := `
		SELECT id, category, timestamp, tenant_id, subject, action,
			   decision, reason, request_id, actor_id, ip, client, severity
		FROM audit_events`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY timestamp DESC LIMIT $%d", len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var events []audit.Event
	for rows.Next() {
		var (
			e        audit.Event
			category string
			severity string
			tenantID *uuid.UUID
		)
		if err := rows.Scan(
			&e.ID, &category, &e.Timestamp, &tenantID, &e.Subject, &e.Action,
			&e.Decision, &e.Reason, &e.RequestID, &e.ActorID, &e.IP, &e.Client, &severity,
		); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		e.Category = audit.EventCategory(category)
		e.Severity = audit.Severity(severity)
		if tenantID != nil {
			e.TenantID = id.TenantID(*tenantID)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}
