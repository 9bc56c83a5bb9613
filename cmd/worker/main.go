// Command worker relays billing events from the outbox to the broker.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/cosmiq-app/cosmiq/internal/app"
	"github.com/cosmiq-app/cosmiq/internal/shared/infrastructure/outbox"
	"github.com/cosmiq-app/cosmiq/pkg/config"
	"github.com/cosmiq-app/cosmiq/pkg/observability"
)

const readinessTimeout = 2 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := observability.LoggerFromEnv().With("component", "worker")
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("worker exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if !cfg.HasStorage() {
		return errors.New("the outbox worker requires DATABASE_URL")
	}

	container, err := app.NewContainer(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer container.Close()

	processor := container.OutboxProcessor
	if err := processor.Start(ctx); err != nil {
		return err
	}
	defer processor.Stop()

	if cfg.WorkerHealthAddr != "" {
		srv := &http.Server{
			Addr:              cfg.WorkerHealthAddr,
			Handler:           healthRouter(container),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("health server listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("health server failed", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("health server shutdown", "error", err)
			}
		}()
	}

	logger.Info("worker running", "poll_interval", cfg.OutboxPollInterval, "batch_size", cfg.OutboxBatchSize)
	housekeeping(ctx, processor, cfg.OutboxCleanupInterval, cfg.OutboxStatsInterval, logger)
	logger.Info("worker shutting down")
	return nil
}

// housekeeping prunes published messages and logs delivery stats until ctx ends.
func housekeeping(ctx context.Context, processor *outbox.Processor, cleanupEvery, statsEvery time.Duration, logger *slog.Logger) {
	cleanup := time.NewTicker(positive(cleanupEvery, 24*time.Hour))
	defer cleanup.Stop()
	stats := time.NewTicker(positive(statsEvery, 30*time.Second))
	defer stats.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-cleanup.C:
			if _, err := processor.Cleanup(ctx); err != nil {
				logger.Error("outbox cleanup failed", "error", err)
			}
		case <-stats.C:
			s := processor.GetStats()
			logger.Info("outbox stats",
				"published", s.PublishedCount,
				"failed", s.FailedCount,
				"dead", s.DeadCount,
				"lag_seconds", s.LagSeconds,
				"last_error", s.LastError,
			)
		}
	}
}

func positive(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}

// healthRouter serves processor stats on /healthz, dependency checks on /readyz
// and Prometheus metrics on /metrics.
func healthRouter(container *app.Container) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		stats := container.OutboxProcessor.GetStats()
		writeJSON(w, http.StatusOK, map[string]any{
			"status":            "ok",
			"running":           stats.IsRunning,
			"published":         stats.PublishedCount,
			"failed":            stats.FailedCount,
			"dead":              stats.DeadCount,
			"lag_seconds":       stats.LagSeconds,
			"last_processed_at": stats.LastProcessedAt,
			"last_error_at":     stats.LastErrorAt,
			"last_error":        stats.LastError,
		})
	})

	r.Get("/readyz", func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), readinessTimeout)
		defer cancel()
		health := container.Health.GetOverallHealth(ctx)
		status := http.StatusOK
		if health.Status == observability.HealthStatusUnhealthy {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, health)
	})

	if container.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", container.Metrics.Handler())
	}
	return r
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
