package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func NewRouter(handler *Handler, health *HealthHandler, identity IdentityResolver, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// Global middleware (applied to all routes)
	r.Use(RecoveryMiddleware(logger))
	r.Use(CORSMiddleware)
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger))

	// Health and metrics endpoints are registered BEFORE the rate limiter
	// so Kubernetes probes and Prometheus scrapes are never rejected under load.
	r.Get("/healthz", health.Liveness)
	r.Get("/readyz", health.Readiness)
	r.Handle("/metrics", promhttp.Handler())

	// Rate limiter only applies to API routes below
	r.Group(func(r chi.Router) {
		rl := NewRateLimiter(1000, logger)
		r.Use(rl.Middleware)
		r.Use(IdentityMiddleware(identity))

		searchRoutes := func(r chi.Router) {
			r.Get("/", handler.Search)
			r.Get("/suggestions", handler.Suggestions)
			r.Get("/trending", handler.Trending)
			r.Get("/history", handler.History)
			r.Delete("/history", handler.ClearHistory)
			r.Post("/track", handler.Track)
			r.Get("/analytics", handler.Analytics)
		}

		r.Route("/search", searchRoutes)
		r.Route("/api/v1/search", searchRoutes)
	})

	return r
}
