package ledger

import (
	"context"

	"credence/pkg/domain"
)

// Store persists transition records.
//
// Append is idempotent: a record whose (activity, sequence) already exists is
// treated as success and not duplicated. A record whose predecessor sequence is
// missing is rejected with sentinel.ErrInvalidState, keeping sequences gap-free.
type Store interface {
	Append(ctx context.Context, rec Record) error
	List(ctx context.Context, tenantID domain.TenantID, activityID domain.ActivityID, afterSeq int64, limit int) ([]Record, error)
	Get(ctx context.Context, tenantID domain.TenantID, activityID domain.ActivityID, seq int64) (*Record, error)
}
