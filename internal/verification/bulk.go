package verification

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	actmodels "credence/internal/activity/models"
	"credence/pkg/domain"
	dErrors "credence/pkg/domain-errors"
)

const (
	defaultBulkParallelism = 8
	defaultBulkMaxItems    = 200
)

// BulkRequest applies one action with one comment to many activities.
type BulkRequest struct {
	ActivityIDs []domain.ActivityID
	Action      actmodels.Action
	Comment     string
}

// BulkItemResult is the outcome for one activity. Exactly one of Result and
// Err is set.
type BulkItemResult struct {
	ActivityID domain.ActivityID
	Result     *TransitionResult
	Err        error
}

// ApplyBulk runs an independent Apply per activity. One failing item never
// rolls back or blocks the others. Results keep the input order.
func (e *Engine) ApplyBulk(ctx context.Context, actor domain.Actor, req BulkRequest) ([]BulkItemResult, error) {
	if len(req.ActivityIDs) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "at least one activity is required")
	}
	if len(req.ActivityIDs) > e.bulkMaxItems {
		return nil, dErrors.New(dErrors.CodeValidation,
			fmt.Sprintf("bulk requests are limited to %d activities", e.bulkMaxItems))
	}

	results := make([]BulkItemResult, len(req.ActivityIDs))
	// Items fail independently, so no shared cancellation.
	var g errgroup.Group
	g.SetLimit(e.bulkParallelism)
	for i, id := range req.ActivityIDs {
		g.Go(func() error {
			res, err := e.Apply(ctx, actor, TransitionRequest{
				ActivityID: id,
				Action:     req.Action,
				Comment:    req.Comment,
			})
			results[i] = BulkItemResult{ActivityID: id, Result: res, Err: err}
			if err != nil {
				e.metrics.IncrementBulkItem("error")
			} else {
				e.metrics.IncrementBulkItem("ok")
			}
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	e.logger.InfoContext(ctx, "bulk transition completed",
		"tenant_id", actor.TenantID,
		"action", req.Action,
		"items", len(results),
		"failed", failed,
	)
	return results, nil
}
