package httptransport

import (
	"net/http"

	actmodels "credence/internal/activity/models"
	"credence/internal/verification"
	"credence/pkg/domain"
	dErrors "credence/pkg/domain-errors"
	"credence/pkg/platform/httputil"
	"credence/pkg/requestcontext"
)

func (h *Handler) handleTransition(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := activityIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var req TransitionRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := validateRequest(&req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	action, err := actmodels.ParseAction(req.Action)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	result, err := h.engine.Apply(ctx, requestcontext.Actor(ctx), verification.TransitionRequest{
		ActivityID:      id,
		Action:          action,
		Comment:         req.Comment,
		ExpectedVersion: req.ExpectedVersion,
	})
	if err != nil {
		h.logFailure(r, "transition failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

// handleBulkTransition always answers 200 once the batch itself is valid;
// per-item failures are reported in the body.
func (h *Handler) handleBulkTransition(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req BulkTransitionRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := validateRequest(&req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	action, err := actmodels.ParseAction(req.Action)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	ids := make([]domain.ActivityID, 0, len(req.ActivityIDs))
	for _, raw := range req.ActivityIDs {
		id, err := domain.ParseActivityID(raw)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		ids = append(ids, id)
	}

	results, err := h.engine.ApplyBulk(ctx, requestcontext.Actor(ctx), verification.BulkRequest{
		ActivityIDs: ids,
		Action:      action,
		Comment:     req.Comment,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	out := make([]BulkItemResponse, len(results))
	for i, res := range results {
		item := BulkItemResponse{ActivityID: res.ActivityID.String()}
		if res.Err != nil {
			item.Error = string(dErrors.CodeOf(res.Err))
			if dErrors.CodeOf(res.Err) != dErrors.CodeInternal {
				item.Message = dErrors.MessageOf(res.Err)
			}
		} else {
			item.Status = string(res.Result.Status)
			item.SequenceNo = res.Result.SequenceNo
			item.Version = res.Result.Version
		}
		out[i] = item
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"results": out})
}
