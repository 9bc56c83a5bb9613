// Package api serves entitlement checks and debits over HTTP.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/cosmiq-app/cosmiq/pkg/observability"
)

// RouterOptions are the collaborators of the API router. Only Entitlements is required.
type RouterOptions struct {
	Entitlements *EntitlementHandler
	Health       *observability.HealthRegistry
	Metrics      http.Handler
	Logger       *slog.Logger
}

// NewRouter mounts the probes, /metrics and the /v1 entitlement routes.
func NewRouter(opts RouterOptions) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	health := opts.Health
	if health == nil {
		health = observability.NewHealthRegistry()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, requestContext, requestLogger(logger), middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status": string(observability.HealthStatusHealthy),
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	})
	r.Get("/readyz", func(w http.ResponseWriter, req *http.Request) {
		report := health.GetOverallHealth(req.Context())
		status := http.StatusOK
		if report.Status == observability.HealthStatusUnhealthy {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, report)
	})
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	h := opts.Entitlements
	r.Route("/v1", func(r chi.Router) {
		r.Get("/entitlements", h.GetEntitlements)
		r.Get("/features/{feature}/access", h.CheckFeature)
		r.Post("/features/{feature}/consume", h.ConsumeFeature)
	})
	return r
}

// NewHTTPServer wraps handler with the API's timeouts.
func NewHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       time.Minute,
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Warn("encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, apiErr *APIError) {
	writeJSON(w, apiErr.Status, apiErr)
}
