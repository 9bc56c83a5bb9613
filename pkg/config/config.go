package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/cosmiq-app/cosmiq/internal/billing/domain"
	"github.com/joho/godotenv"
)

// Free-usage backends.
const (
	FreeUsageBackendSQL   = "sql"
	FreeUsageBackendRedis = "redis"
)

// Config holds application configuration.
type Config struct {
	// Application
	AppEnv    string
	LogLevel  string
	LogFormat string
	UserID    string

	// Database. An empty URL runs the service fail-open without storage.
	DatabaseURL      string
	DatabaseMaxConns int

	// Free usage
	FreeUsageBackend string
	RedisURL         string

	// RabbitMQ
	RabbitMQURL string

	// Limits
	FreeAskLimit             int
	FreeDetailLimit          int
	FreeSynastryLimit        int
	MonthlySynastryAllowance int

	// Store circuit breaker
	BreakerEnabled          bool
	BreakerMaxRequests      uint32
	BreakerInterval         time.Duration
	BreakerTimeout          time.Duration
	BreakerFailureThreshold uint32

	// Outbox
	OutboxPollInterval     time.Duration
	OutboxBatchSize        int
	OutboxMaxRetries       int
	OutboxStatsInterval    time.Duration
	OutboxRetentionDays    int
	OutboxCleanupInterval  time.Duration
	OutboxProcessorEnabled bool

	// Servers
	HTTPAddr         string
	WorkerHealthAddr string

	// MCP
	MCPAddr      string
	MCPAuthToken string
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	limits := domain.DefaultLimits()

	cfg := &Config{
		AppEnv:    getEnv("APP_ENV", "development"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
		UserID:    getEnv("COSMIQ_USER_ID", "operator"),

		DatabaseURL:      getEnv("DATABASE_URL", ""),
		DatabaseMaxConns: getIntEnv("DATABASE_MAX_CONNS", 10),

		FreeUsageBackend: getEnv("FREE_USAGE_BACKEND", FreeUsageBackendSQL),
		RedisURL:         getEnv("REDIS_URL", ""),
		RabbitMQURL:      getEnv("RABBITMQ_URL", ""),

		FreeAskLimit:             getIntEnv("FREE_ASK_LIMIT", limits.FreeAsk),
		FreeDetailLimit:          getIntEnv("FREE_DETAIL_LIMIT", limits.FreeDetail),
		FreeSynastryLimit:        getIntEnv("FREE_SYNASTRY_LIMIT", limits.FreeSynastry),
		MonthlySynastryAllowance: getIntEnv("MONTHLY_SYNASTRY_ALLOWANCE", limits.MonthlySynastryAllowance),

		BreakerEnabled:          getBoolEnv("BREAKER_ENABLED", true),
		BreakerMaxRequests:      getUint32Env("BREAKER_MAX_REQUESTS", 3),
		BreakerInterval:         getDurationEnv("BREAKER_INTERVAL", 10*time.Second),
		BreakerTimeout:          getDurationEnv("BREAKER_TIMEOUT", 30*time.Second),
		BreakerFailureThreshold: getUint32Env("BREAKER_FAILURE_THRESHOLD", 5),

		OutboxPollInterval:     getDurationEnv("OUTBOX_POLL_INTERVAL", time.Second),
		OutboxBatchSize:        getIntEnv("OUTBOX_BATCH_SIZE", 100),
		OutboxMaxRetries:       getIntEnv("OUTBOX_MAX_RETRIES", 5),
		OutboxStatsInterval:    getDurationEnv("OUTBOX_STATS_INTERVAL", 30*time.Second),
		OutboxRetentionDays:    getIntEnv("OUTBOX_RETENTION_DAYS", 7),
		OutboxCleanupInterval:  getDurationEnv("OUTBOX_CLEANUP_INTERVAL", 24*time.Hour),
		OutboxProcessorEnabled: getBoolEnv("OUTBOX_PROCESSOR_ENABLED", false),

		HTTPAddr:         getEnv("HTTP_ADDR", "0.0.0.0:8080"),
		WorkerHealthAddr: getEnv("WORKER_HEALTH_ADDR", "0.0.0.0:8081"),

		MCPAddr:      getEnv("MCP_ADDR", "0.0.0.0:8082"),
		MCPAuthToken: getEnv("MCP_AUTH_TOKEN", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Limits returns the configured free-tier and subscription allowances.
func (c *Config) Limits() domain.Limits {
	return domain.Limits{
		FreeAsk:                  c.FreeAskLimit,
		FreeDetail:               c.FreeDetailLimit,
		FreeSynastry:             c.FreeSynastryLimit,
		MonthlySynastryAllowance: c.MonthlySynastryAllowance,
	}
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if err := c.Limits().Validate(); err != nil {
		errs = append(errs, err)
	}
	switch c.FreeUsageBackend {
	case FreeUsageBackendSQL:
	case FreeUsageBackendRedis:
		if c.RedisURL == "" {
			errs = append(errs, errors.New("REDIS_URL is required when FREE_USAGE_BACKEND=redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown FREE_USAGE_BACKEND %q", c.FreeUsageBackend))
	}
	if c.OutboxBatchSize <= 0 {
		errs = append(errs, errors.New("OUTBOX_BATCH_SIZE must be positive"))
	}
	if c.OutboxRetentionDays <= 0 {
		errs = append(errs, errors.New("OUTBOX_RETENTION_DAYS must be positive"))
	}
	if c.DatabaseMaxConns <= 0 {
		errs = append(errs, errors.New("DATABASE_MAX_CONNS must be positive"))
	}
	return errors.Join(errs...)
}

// HasStorage reports whether a storage backend is configured.
func (c *Config) HasStorage() bool {
	return c.DatabaseURL != ""
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getUint32Env(key string, defaultValue uint32) uint32 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseUint(value, 10, 32); err == nil {
			return uint32(i)
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
