package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	actmodels "credence/internal/activity/models"
	"credence/internal/integration"
	dErrors "credence/pkg/domain-errors"
	"credence/pkg/platform/httputil"
)

type Service interface {
	Receive(ctx context.Context, req integration.Request) (*actmodels.Activity, error)
}

// Handler serves signed inbound requests. It sits outside JWT auth; the
// signature is the credential.
type Handler struct {
	svc    Service
	logger *slog.Logger
}

func New(svc Service, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/v1/integrations/{tenant}/activities", h.handleCreateActivity)
}

func (h *Handler) handleCreateActivity(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, httputil.MaxJSONBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "request body too large"))
			return
		}
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "failed to read request body"))
		return
	}

	a, err := h.svc.Receive(r.Context(), integration.Request{
		TenantID:  chi.URLParam(r, "tenant"),
		Timestamp: r.Header.Get(integration.HeaderTimestamp),
		Signature: r.Header.Get(integration.HeaderSignature),
		Body:      body,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, a)
}
