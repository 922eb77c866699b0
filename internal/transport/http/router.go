package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"unify/internal/platform/middleware"
)

// HealthChecker reports whether a backing resource is reachable.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// NewRouter wires the public endpoints. The handler layer stays thin and
// delegates to domain services so transport concerns remain isolated.
func NewRouter(identify *IdentifyHandler, logger *slog.Logger, checks map[string]HealthChecker) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(middleware.ContentTypeJSON)

	r.Post("/identify", identify.handleIdentify)

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		for name, check := range checks {
			if check == nil {
				continue
			}
			if err := check.Health(req.Context()); err != nil {
				logger.WarnContext(req.Context(), "health check failed",
					"dependency", name,
					"error", err.Error(),
				)
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{
					"status": "degraded",
					"failed": name,
				})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return r
}
