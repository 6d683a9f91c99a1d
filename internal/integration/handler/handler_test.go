package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	actmodels "credence/internal/activity/models"
	actservice "credence/internal/activity/service"
	"credence/internal/integration"
	"credence/pkg/domain"
	"credence/pkg/testutil"
)

type stubCreator struct {
	calls int
}

func (c *stubCreator) Create(_ context.Context, actor domain.Actor, req actservice.CreateRequest) (*actmodels.Activity, error) {
	c.calls++
	return &actmodels.Activity{
		ID:        domain.NewActivityID(),
		TenantID:  actor.TenantID,
		StudentID: req.StudentID,
		Title:     req.Title,
		Status:    actmodels.StatusDraft,
	}, nil
}

func newRouter(t *testing.T, tenant domain.TenantID, creator *stubCreator) http.Handler {
	t.Helper()
	verifier, err := integration.NewSignatureVerifier(map[string]string{tenant.String(): "secret"}, time.Minute)
	require.NoError(t, err)
	svc, err := integration.NewService(verifier, creator)
	require.NoError(t, err)

	r := chi.NewRouter()
	New(svc, slog.New(slog.NewTextHandler(io.Discard, nil))).Register(r)
	return r
}

func TestCreateActivity(t *testing.T) {
	tenant := testutil.NewTenantID()
	body, err := json.Marshal(map[string]any{
		"student_id": uuid.NewString(),
		"type":       "volunteering",
		"title":      "Food bank",
	})
	require.NoError(t, err)
	ts := strconv.FormatInt(time.Now().Unix(), 10)

	t.Run("signed request creates activity", func(t *testing.T) {
		creator := &stubCreator{}
		req := httptest.NewRequest(http.MethodPost, "/v1/integrations/"+tenant.String()+"/activities", bytes.NewReader(body))
		req.Header.Set(integration.HeaderTimestamp, ts)
		req.Header.Set(integration.HeaderSignature, integration.Sign([]byte("secret"), ts, body))
		rec := httptest.NewRecorder()

		newRouter(t, tenant, creator).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, 1, creator.calls)
		var got actmodels.Activity
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
		assert.Equal(t, "Food bank", got.Title)
	})

	t.Run("unsigned request is rejected", func(t *testing.T) {
		creator := &stubCreator{}
		req := httptest.NewRequest(http.MethodPost, "/v1/integrations/"+tenant.String()+"/activities", bytes.NewReader(body))
		rec := httptest.NewRecorder()

		newRouter(t, tenant, creator).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Zero(t, creator.calls)
		var got map[string]string
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
		assert.Equal(t, "invalid_signature", got["error"])
	})
}
