package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	actmodels "credence/internal/activity/models"
	"credence/pkg/domain"
	dErrors "credence/pkg/domain-errors"
	"credence/pkg/platform/sentinel"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// ActivityReader loads the stored activity a ledger belongs to.
type ActivityReader interface {
	FindByID(ctx context.Context, tenantID domain.TenantID, id domain.ActivityID) (*actmodels.Activity, error)
}

// Service answers history and consistency queries over the ledger.
type Service struct {
	records    Store
	activities ActivityReader
	logger     *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func NewService(records Store, activities ActivityReader, opts ...Option) *Service {
	s := &Service{records: records, activities: activities, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// History returns one page of the activity's transitions in sequence order.
// Resume with the returned NextCursor; it is nil on the last page.
func (s *Service) History(ctx context.Context, actor domain.Actor, activityID domain.ActivityID, cursor Cursor) (*Page, error) {
	if err := actor.Validate(); err != nil {
		return nil, err
	}
	a, err := s.activities.FindByID(ctx, actor.TenantID, activityID)
	if err != nil {
		return nil, wrapActivityErr(err)
	}
	if !a.VisibleTo(actor) {
		return nil, dErrors.New(dErrors.CodeNotFound, "activity not found")
	}

	limit := cursor.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	after := max(cursor.AfterSeq, 0)

	records, err := s.records.List(ctx, actor.TenantID, activityID, after, limit+1)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read history")
	}
	page := &Page{Records: records}
	if len(records) > limit {
		page.Records = records[:limit]
		page.NextCursor = &Cursor{AfterSeq: page.Records[limit-1].SequenceNo, Limit: limit}
	}
	return page, nil
}

// VerifyConsistency folds the full history and compares the result with the
// stored activity. Any disagreement fails with CodeLedgerInconsistency. It is
// read-only: inconsistencies are reported, never repaired.
func (s *Service) VerifyConsistency(ctx context.Context, tenantID domain.TenantID, activityID domain.ActivityID) error {
	a, err := s.activities.FindByID(ctx, tenantID, activityID)
	if err != nil {
		return wrapActivityErr(err)
	}

	var steps []actmodels.Step
	var after int64
	for {
		batch, err := s.records.List(ctx, tenantID, activityID, after, maxPageSize)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to read history")
		}
		for _, rec := range batch {
			if rec.TenantID != tenantID || rec.ActivityID != activityID {
				return dErrors.New(dErrors.CodeLedgerInconsistency,
					fmt.Sprintf("sequence %d belongs to another activity", rec.SequenceNo))
			}
			steps = append(steps, rec.Step())
		}
		if len(batch) < maxPageSize {
			break
		}
		after = batch[len(batch)-1].SequenceNo
	}

	folded, err := actmodels.Replay(steps)
	if err != nil {
		return err
	}
	if folded != a.Status {
		return dErrors.New(dErrors.CodeLedgerInconsistency,
			fmt.Sprintf("ledger folds to %s but activity is %s", folded, a.Status))
	}
	if last := int64(len(steps)); last != a.SequenceNo {
		return dErrors.New(dErrors.CodeLedgerInconsistency,
			fmt.Sprintf("ledger ends at sequence %d but activity records %d", last, a.SequenceNo))
	}
	return nil
}

func wrapActivityErr(err error) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "activity not found")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load activity")
}
