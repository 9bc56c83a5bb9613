package config

import (
	"testing"
	"time"

	"github.com/cosmiq-app/cosmiq/internal/billing/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks every cosmiq variable for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, v := range []string{
		"APP_ENV", "LOG_LEVEL", "LOG_FORMAT", "COSMIQ_USER_ID",
		"DATABASE_URL", "DATABASE_MAX_CONNS",
		"FREE_USAGE_BACKEND", "REDIS_URL", "RABBITMQ_URL",
		"FREE_ASK_LIMIT", "FREE_DETAIL_LIMIT", "FREE_SYNASTRY_LIMIT", "MONTHLY_SYNASTRY_ALLOWANCE",
		"BREAKER_ENABLED", "BREAKER_MAX_REQUESTS", "BREAKER_INTERVAL", "BREAKER_TIMEOUT", "BREAKER_FAILURE_THRESHOLD",
		"OUTBOX_POLL_INTERVAL", "OUTBOX_BATCH_SIZE", "OUTBOX_MAX_RETRIES",
		"OUTBOX_STATS_INTERVAL", "OUTBOX_RETENTION_DAYS", "OUTBOX_CLEANUP_INTERVAL",
		"OUTBOX_PROCESSOR_ENABLED",
		"HTTP_ADDR", "WORKER_HEALTH_ADDR", "MCP_ADDR", "MCP_AUTH_TOKEN",
	} {
		t.Setenv(v, "")
	}
}

func TestLoad_DefaultValues(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "development", cfg.AppEnv)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, "operator", cfg.UserID)

	// No database means fail-open mode.
	assert.Empty(t, cfg.DatabaseURL)
	assert.False(t, cfg.HasStorage())
	assert.Equal(t, 10, cfg.DatabaseMaxConns)
	assert.Equal(t, FreeUsageBackendSQL, cfg.FreeUsageBackend)

	assert.Equal(t, domain.DefaultLimits(), cfg.Limits())

	assert.True(t, cfg.BreakerEnabled)
	assert.Equal(t, uint32(3), cfg.BreakerMaxRequests)
	assert.Equal(t, 10*time.Second, cfg.BreakerInterval)
	assert.Equal(t, 30*time.Second, cfg.BreakerTimeout)
	assert.Equal(t, uint32(5), cfg.BreakerFailureThreshold)

	assert.Equal(t, time.Second, cfg.OutboxPollInterval)
	assert.Equal(t, 100, cfg.OutboxBatchSize)
	assert.Equal(t, 5, cfg.OutboxMaxRetries)
	assert.Equal(t, 30*time.Second, cfg.OutboxStatsInterval)
	assert.Equal(t, 7, cfg.OutboxRetentionDays)
	assert.Equal(t, 24*time.Hour, cfg.OutboxCleanupInterval)
	assert.False(t, cfg.OutboxProcessorEnabled)

	assert.Equal(t, "0.0.0.0:8080", cfg.HTTPAddr)
	assert.Equal(t, "0.0.0.0:8081", cfg.WorkerHealthAddr)
	assert.Equal(t, "0.0.0.0:8082", cfg.MCPAddr)
	assert.Empty(t, cfg.MCPAuthToken)
}

func TestLoad_WithCustomEnvVars(t *testing.T) {
	clearEnv(t)
	t.Setenv("APP_ENV", "production")
	t.Setenv("DATABASE_URL", "postgres://cosmiq@db:5432/cosmiq")
	t.Setenv("FREE_ASK_LIMIT", "5")
	t.Setenv("MONTHLY_SYNASTRY_ALLOWANCE", "10")
	t.Setenv("FREE_USAGE_BACKEND", "redis")
	t.Setenv("REDIS_URL", "redis://cache:6379/1")
	t.Setenv("BREAKER_TIMEOUT", "1m")
	t.Setenv("BREAKER_FAILURE_THRESHOLD", "9")
	t.Setenv("OUTBOX_PROCESSOR_ENABLED", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.True(t, cfg.HasStorage())
	assert.Equal(t, 5, cfg.Limits().FreeAsk)
	assert.Equal(t, 10, cfg.Limits().MonthlySynastryAllowance)
	assert.Equal(t, FreeUsageBackendRedis, cfg.FreeUsageBackend)
	assert.Equal(t, time.Minute, cfg.BreakerTimeout)
	assert.Equal(t, uint32(9), cfg.BreakerFailureThreshold)
	assert.True(t, cfg.OutboxProcessorEnabled)
}

func TestLoad_InvalidValuesFallBackToDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("FREE_DETAIL_LIMIT", "lots")
	t.Setenv("OUTBOX_POLL_INTERVAL", "soon")
	t.Setenv("BREAKER_ENABLED", "maybe")
	t.Setenv("BREAKER_MAX_REQUESTS", "-1")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 1, cfg.FreeDetailLimit)
	assert.Equal(t, time.Second, cfg.OutboxPollInterval)
	assert.True(t, cfg.BreakerEnabled)
	assert.Equal(t, uint32(3), cfg.BreakerMaxRequests)
}

func TestLoad_RejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"negative limit", map[string]string{"FREE_ASK_LIMIT": "-1"}, "limits must not be negative"},
		{"redis without url", map[string]string{"FREE_USAGE_BACKEND": "redis"}, "REDIS_URL is required"},
		{"unknown backend", map[string]string{"FREE_USAGE_BACKEND": "memcached"}, "unknown FREE_USAGE_BACKEND"},
		{"zero batch", map[string]string{"OUTBOX_BATCH_SIZE": "0"}, "OUTBOX_BATCH_SIZE"},
		{"zero retention", map[string]string{"OUTBOX_RETENTION_DAYS": "0"}, "OUTBOX_RETENTION_DAYS"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cfg, err := Load()

			require.Error(t, err)
			assert.Nil(t, cfg)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestConfig_IsDevelopment(t *testing.T) {
	tests := []struct {
		env  string
		want bool
	}{
		{"development", true},
		{"production", false},
		{"staging", false},
	}
	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			cfg := &Config{AppEnv: tt.env}
			assert.Equal(t, tt.want, cfg.IsDevelopment())
		})
	}
}
