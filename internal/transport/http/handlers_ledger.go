package httptransport

import (
	"net/http"

	"credence/internal/ledger"
	"credence/pkg/platform/httputil"
	"credence/pkg/requestcontext"
)

type HistoryResponse struct {
	Records   []ledger.Record `json:"records"`
	NextAfter *int64          `json:"next_after,omitempty"`
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := activityIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	after, err := queryInt(r, "after")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	page, err := h.ledger.History(ctx, requestcontext.Actor(ctx), id, ledger.Cursor{AfterSeq: after, Limit: int(limit)})
	if err != nil {
		h.logFailure(r, "history read failed", err)
		httputil.WriteError(w, err)
		return
	}
	resp := HistoryResponse{Records: page.Records}
	if resp.Records == nil {
		resp.Records = []ledger.Record{}
	}
	if page.NextCursor != nil {
		resp.NextAfter = &page.NextCursor.AfterSeq
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}
