package httptransport

import (
	"net/http"

	"credence/pkg/platform/httputil"
	"credence/pkg/requestcontext"
)

func (h *Handler) handleGetCredential(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := activityIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	c, err := h.credentials.Get(ctx, requestcontext.Actor(ctx), id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, c)
}

func (h *Handler) handleVerifyCredential(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := activityIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	res, err := h.credentials.Verify(ctx, requestcontext.Actor(ctx), id)
	if err != nil {
		h.logFailure(r, "credential verification failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}
