package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"credence/internal/platform/metrics"
	"credence/pkg/domain"
	"credence/pkg/platform/httputil"
	authmw "credence/pkg/platform/middleware/auth"
	"credence/pkg/platform/middleware/metadata"
	"credence/pkg/platform/middleware/request"
	"credence/pkg/platform/middleware/requesttime"
)

// Registrar mounts routes that carry their own authentication.
type Registrar interface {
	Register(r chi.Router)
}

type RouterConfig struct {
	Handler     *Handler
	Validator   authmw.JWTValidator
	Integration Registrar
	Gatherer    prometheus.Gatherer
	Metrics     *metrics.Metrics
	Logger      *slog.Logger

	// Readiness checks by dependency name, run by /readyz.
	Ready map[string]func(context.Context) error

	// Optional request budgets for inbound integration and authenticated routes.
	InboundLimit func(http.Handler) http.Handler
	ActorLimit   func(http.Handler) http.Handler
}

// NewRouter wires every public endpoint behind the shared middleware chain.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(request.Recover(cfg.Logger))
	r.Use(request.Logger(cfg.Logger))
	r.Use(metadata.ClientMetadata)
	r.Use(requesttime.Middleware)
	r.Use(cfg.Metrics.Middleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", readiness(cfg.Ready, cfg.Logger))
	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}
	if cfg.Integration != nil {
		r.Group(func(r chi.Router) {
			use(r, cfg.InboundLimit)
			cfg.Integration.Register(r)
		})
	}

	r.Group(func(r chi.Router) {
		r.Use(authmw.RequireAuth(cfg.Validator, cfg.Logger))
		use(r, cfg.ActorLimit)
		cfg.Handler.Register(r)

		r.Group(func(r chi.Router) {
			r.Use(authmw.RequireRole(cfg.Logger, domain.RoleAdmin))
			cfg.Handler.RegisterAdmin(r)
		})
	})
	return r
}

func use(r chi.Router, mw func(http.Handler) http.Handler) {
	if mw != nil {
		r.Use(mw)
	}
}

func readiness(checks map[string]func(context.Context) error, logger *slog.Logger) http.HandlerFunc {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		for _, name := range names {
			if err := checks[name](r.Context()); err != nil {
				logger.WarnContext(r.Context(), "readiness check failed", "dependency", name, "error", err)
				httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{
					"status":     "unavailable",
					"dependency": name,
				})
				return
			}
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}
