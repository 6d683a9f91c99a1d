package httptransport

import (
	"errors"
	"io"
	"net/http"

	actservice "credence/internal/activity/service"
	"credence/pkg/domain"
	dErrors "credence/pkg/domain-errors"
	"credence/pkg/platform/httputil"
	"credence/pkg/requestcontext"
)

func (h *Handler) handleCreateActivity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := requestcontext.Actor(ctx)

	var req CreateActivityRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := validateRequest(&req); err != nil {
		httputil.WriteError(w, err)
		return
	}

	studentID, err := parseOptionalUserID(req.StudentID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	verifierID, err := parseOptionalUserID(req.AssignedVerifierID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	createReq := actservice.CreateRequest{
		StudentID:          studentID,
		Type:               req.Type,
		Title:              req.Title,
		Description:        req.Description,
		Department:         req.Department,
		AssignedVerifierID: verifierID,
		ProofWaived:        req.ProofWaived,
		Submit:             req.Submit,
	}
	for _, in := range req.ProofRefs {
		ref, err := in.ref(actor.UserID)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		ref.UploadedAt = requestcontext.Now(ctx)
		createReq.ProofRefs = append(createReq.ProofRefs, ref)
	}

	a, err := h.activities.Create(ctx, actor, createReq)
	if err != nil {
		h.logFailure(r, "create activity failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, a)
}

func (h *Handler) handleListActivities(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	limit, err := queryInt(r, "limit")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req := actservice.ListRequest{Status: q.Get("status"), Limit: int(limit)}
	if after := q.Get("after"); after != "" {
		if req.After, err = domain.ParseActivityID(after); err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid after cursor"))
			return
		}
	}

	page, err := h.activities.List(ctx, requestcontext.Actor(ctx), req)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, page)
}

func (h *Handler) handleGetActivity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := activityIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	a, err := h.activities.Get(ctx, requestcontext.Actor(ctx), id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, a)
}

// handleUploadProof takes the raw proof bytes as the body. The optional
// expected_version query parameter guards against concurrent edits.
func (h *Handler) handleUploadProof(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := activityIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	expected, err := queryInt(r, "expected_version")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxUploadBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "proof exceeds the upload limit"))
			return
		}
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "failed to read proof"))
		return
	}
	if len(data) == 0 {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "proof body is empty"))
		return
	}

	a, err := h.activities.UploadProof(ctx, requestcontext.Actor(ctx), id, data, expected)
	if err != nil {
		h.logFailure(r, "proof upload failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, a)
}

// logFailure records server-side failures. Client errors are left to the
// access log.
func (h *Handler) logFailure(r *http.Request, msg string, err error) {
	if dErrors.CodeOf(err) != dErrors.CodeInternal {
		return
	}
	ctx := r.Context()
	h.logger.ErrorContext(ctx, msg,
		"path", r.URL.Path,
		"request_id", requestcontext.RequestID(ctx),
		"error", err,
	)
}
