package middleware

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"credence/internal/ratelimit"
	"credence/internal/ratelimit/metrics"
	"credence/pkg/platform/httputil"
	"credence/pkg/requestcontext"
)

type Middleware struct {
	store   ratelimit.Store
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Middleware)

func WithMetrics(m *metrics.Metrics) Option {
	return func(mw *Middleware) { mw.metrics = m }
}

func New(store ratelimit.Store, logger *slog.Logger, opts ...Option) *Middleware {
	m := &Middleware{store: store, logger: logger}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// PerTenant limits routes carrying a {tenant} path parameter. It must be
// mounted inline (Group/With) so the parameter is resolved.
func (m *Middleware) PerTenant(limit ratelimit.Limit) func(http.Handler) http.Handler {
	return m.limit("tenant", limit, func(r *http.Request) string {
		if tenant := chi.URLParam(r, "tenant"); tenant != "" {
			return "tenant:" + tenant
		}
		return "ip:" + requestcontext.ClientIP(r.Context())
	})
}

// PerActor limits authenticated routes by caller.
func (m *Middleware) PerActor(limit ratelimit.Limit) func(http.Handler) http.Handler {
	return m.limit("actor", limit, func(r *http.Request) string {
		actor := requestcontext.Actor(r.Context())
		if actor.IsZero() {
			return "ip:" + requestcontext.ClientIP(r.Context())
		}
		return "user:" + actor.TenantID.String() + ":" + actor.UserID.String()
	})
}

func (m *Middleware) limit(scope string, limit ratelimit.Limit, keyFor func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if m == nil || !limit.Enabled() {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			result, err := m.store.Allow(ctx, keyFor(r), limit)
			if err != nil {
				// Fail open.
				m.metrics.IncrementStoreError()
				m.logger.ErrorContext(ctx, "rate limit check failed", "scope", scope, "error", err)
				next.ServeHTTP(w, r)
				return
			}

			setHeaders(w, result)
			if !result.Allowed {
				m.metrics.IncrementRejected(scope)
				w.Header().Set("Retry-After", strconv.Itoa(retrySeconds(result)))
				httputil.WriteJSON(w, http.StatusTooManyRequests, map[string]string{
					"error":             "rate_limit_exceeded",
					"error_description": "too many requests, retry later",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func setHeaders(w http.ResponseWriter, result *ratelimit.Result) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
}

func retrySeconds(result *ratelimit.Result) int {
	return int(math.Ceil(result.RetryAfter.Seconds()))
}
