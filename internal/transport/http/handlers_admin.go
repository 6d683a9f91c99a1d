package httptransport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"credence/internal/delivery"
	dErrors "credence/pkg/domain-errors"
	"credence/pkg/platform/httputil"
	"credence/pkg/requestcontext"
)

// handleConsistency folds the ledger of one activity. An inconsistency is a
// finding, not a request failure, so it is reported with 200.
func (h *Handler) handleConsistency(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := activityIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	actor := requestcontext.Actor(ctx)

	resp := ConsistencyResponse{ActivityID: id.String(), Consistent: true}
	if err := h.ledger.VerifyConsistency(ctx, actor.TenantID, id); err != nil {
		if !dErrors.HasCode(err, dErrors.CodeLedgerInconsistency) {
			h.logFailure(r, "consistency check failed", err)
			httputil.WriteError(w, err)
			return
		}
		h.logger.ErrorContext(ctx, "ledger inconsistency reported to operator",
			"tenant_id", actor.TenantID,
			"activity_id", id,
			"problem", dErrors.MessageOf(err),
		)
		resp.Consistent = false
		resp.Problem = dErrors.MessageOf(err)
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleListDeadLetters(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit, err := queryInt(r, "limit")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	q := r.URL.Query()
	dls, err := h.deadLetters.List(ctx, delivery.ListFilter{
		TenantID:        requestcontext.Actor(ctx).TenantID,
		Consumer:        q.Get("consumer"),
		IncludeReplayed: q.Get("include_replayed") == "true",
		Limit:           int(limit),
	})
	if err != nil {
		h.logFailure(r, "dead letter listing failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"dead_letters": dls})
}

func (h *Handler) handleReplayDeadLetter(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid dead letter id"))
		return
	}
	actor := requestcontext.Actor(ctx)

	dl, err := h.deadLetters.Get(ctx, id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if dl.Envelope.TenantID != actor.TenantID {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "dead letter not found"))
		return
	}

	replayed, err := h.deadLetters.Replay(ctx, id, actor.UserID.String())
	if err != nil {
		h.logFailure(r, "dead letter replay failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, replayed)
}
