package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utafrali/StorefrontGo/pkg/health"
	"github.com/utafrali/StorefrontGo/pkg/middleware"
)

// NewRouter builds the ops HTTP surface: health probes and Prometheus
// metrics. It serves no storefront traffic.
func NewRouter(logger *slog.Logger, h *health.Handler) http.Handler {
	r := chi.NewRouter()

	// RequestLogger runs first so Recovery logs with the request scope.
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.Recovery(logger))

	r.Get("/health/live", h.LivenessHandler())
	r.Get("/health/ready", h.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())

	return r
}
