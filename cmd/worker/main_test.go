package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cosmiq-app/cosmiq/internal/app"
	"github.com/cosmiq-app/cosmiq/pkg/config"
	"github.com/cosmiq-app/cosmiq/pkg/observability"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHealthRouter(t *testing.T) {
	container := app.NewInMemoryContainer(nil, quietLogger())
	defer container.Close()
	router := healthRouter(container)

	t.Run("healthz reports processor stats", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		var body map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "ok", body["status"])
		assert.Equal(t, false, body["running"])
		assert.EqualValues(t, 0, body["published"])
	})

	t.Run("readyz runs dependency checks", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		var health observability.OverallHealth
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
		assert.Equal(t, observability.HealthStatusHealthy, health.Status)
		assert.Contains(t, health.Checks, "breaker.subscriptions")
	})

	t.Run("readyz fails when a dependency is down", func(t *testing.T) {
		container.Health.Register("database", func(context.Context) observability.HealthCheckResult {
			return observability.HealthCheckResult{Status: observability.HealthStatusUnhealthy, Message: "connection refused"}
		})

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("metrics", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestRun_RequiresStorage(t *testing.T) {
	err := run(context.Background(), &config.Config{}, quietLogger())
	assert.ErrorContains(t, err, "DATABASE_URL")
}

func TestHousekeeping_StopsWithContext(t *testing.T) {
	container := app.NewInMemoryContainer(nil, quietLogger())
	defer container.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		housekeeping(ctx, container.OutboxProcessor, time.Millisecond, time.Millisecond, quietLogger())
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("housekeeping did not stop")
	}
}

func TestPositive(t *testing.T) {
	assert.Equal(t, time.Hour, positive(0, time.Hour))
	assert.Equal(t, time.Minute, positive(time.Minute, time.Hour))
}
