// Package app wires the entitlement service, its stores and the event pipeline.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cosmiq-app/cosmiq/internal/billing/application"
	"github.com/cosmiq-app/cosmiq/internal/billing/application/commands"
	"github.com/cosmiq-app/cosmiq/internal/billing/application/queries"
	"github.com/cosmiq-app/cosmiq/internal/billing/application/subscribers"
	"github.com/cosmiq-app/cosmiq/internal/billing/domain"
	"github.com/cosmiq-app/cosmiq/internal/billing/infrastructure/cache"
	billingPersistence "github.com/cosmiq-app/cosmiq/internal/billing/infrastructure/persistence"
	"github.com/cosmiq-app/cosmiq/internal/billing/infrastructure/resilience"
	sharedApplication "github.com/cosmiq-app/cosmiq/internal/shared/application"
	"github.com/cosmiq-app/cosmiq/internal/shared/infrastructure/database"
	_ "github.com/cosmiq-app/cosmiq/internal/shared/infrastructure/database/postgres"
	_ "github.com/cosmiq-app/cosmiq/internal/shared/infrastructure/database/sqlite"
	"github.com/cosmiq-app/cosmiq/internal/shared/infrastructure/eventbus"
	"github.com/cosmiq-app/cosmiq/internal/shared/infrastructure/migrations"
	"github.com/cosmiq-app/cosmiq/internal/shared/infrastructure/outbox"
	"github.com/cosmiq-app/cosmiq/pkg/config"
	"github.com/cosmiq-app/cosmiq/pkg/observability"
	"github.com/redis/go-redis/v9"
)

// ErrStorageRequired is returned by admin operations when no database is configured.
var ErrStorageRequired = errors.New("DATABASE_URL is required for this operation")

// Container holds all application dependencies.
type Container struct {
	Config  *config.Config
	Logger  *slog.Logger
	Metrics *observability.PrometheusMetrics
	Health  *observability.HealthRegistry

	// Infrastructure
	DB          database.Connection
	RedisClient *redis.Client

	// Stores
	Subscriptions SubscriptionLedger
	FreeUsage     domain.FreeUsageStore
	Breaker       *resilience.BreakerStore

	// Event pipeline
	OutboxRepo      outbox.Repository
	EventPublisher  eventbus.Publisher
	UnitOfWork      sharedApplication.UnitOfWork
	OutboxProcessor *outbox.Processor

	// Entitlements is the store-backed service, or the fail-open service without storage.
	Entitlements domain.EntitlementService

	// Admin handlers, nil without storage
	SetSubscriptionHandler *commands.SetSubscriptionHandler
	GrantCreditsHandler    *commands.GrantCreditsHandler
	RefundPurchaseHandler  *commands.RefundPurchaseHandler

	// Query handlers, nil without storage
	BillingStatusHandler *queries.GetBillingStatusHandler
}

// NewContainer creates a new dependency container.
// Without DATABASE_URL the entitlement service runs fail-open and nothing is persisted.
func NewContainer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Container, error) {
	c := &Container{
		Config:  cfg,
		Logger:  logger,
		Metrics: observability.NewPrometheusMetrics(),
		Health:  observability.NewHealthRegistry(),
	}

	if !cfg.HasStorage() {
		logger.Warn("DATABASE_URL not set, entitlements are fail-open and nothing is persisted")
		c.Entitlements = application.NewFailOpenService(cfg.Limits(), logger, c.Metrics)
		return c, nil
	}

	conn, err := database.NewConnection(ctx, database.Config{
		URL:      cfg.DatabaseURL,
		MaxConns: cfg.DatabaseMaxConns,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	c.DB = conn
	c.Health.Register("database", observability.PingHealthChecker("database", observability.HealthStatusUnhealthy, conn.Ping))
	logger.Info("connected to database", "driver", conn.Driver())

	// SQLite is migrated on open; PostgreSQL schemas are applied by `cosmiq migrate`.
	if conn.Driver() == database.DriverSQLite {
		if err := c.Migrate(ctx); err != nil {
			c.Close()
			return nil, err
		}
	}

	if err := c.initStores(ctx); err != nil {
		c.Close()
		return nil, err
	}

	if err := c.initPublisher(); err != nil {
		c.Close()
		return nil, err
	}

	c.UnitOfWork = database.NewUnitOfWork(conn)
	c.wireServices()

	return c, nil
}

// NewInMemoryContainer creates a container backed by in-memory stores.
// Nothing survives the process; it serves local tooling and tests.
func NewInMemoryContainer(cfg *config.Config, logger *slog.Logger) *Container {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg == nil {
		limits := domain.DefaultLimits()
		cfg = &config.Config{
			AppEnv:                   "development",
			FreeAskLimit:             limits.FreeAsk,
			FreeDetailLimit:          limits.FreeDetail,
			FreeSynastryLimit:        limits.FreeSynastry,
			MonthlySynastryAllowance: limits.MonthlySynastryAllowance,
			BreakerEnabled:           true,
		}
	}
	c := &Container{
		Config:  cfg,
		Logger:  logger,
		Metrics: observability.NewPrometheusMetrics(),
		Health:  observability.NewHealthRegistry(),
	}

	store := billingPersistence.NewMemoryStore()
	c.Subscriptions = store
	c.FreeUsage = store
	c.Breaker = resilience.NewBreakerStore(store, store, c.breakerConfig(), logger, c.Metrics)
	c.registerBreakerHealth()
	c.OutboxRepo = outbox.NewInMemoryRepository()
	c.EventPublisher = c.newInProcessBus()
	c.UnitOfWork = passthroughUnitOfWork{}
	c.wireServices()

	return c
}

// Migrate applies the schema migrations for the connected driver.
func (c *Container) Migrate(ctx context.Context) error {
	if c.DB == nil {
		return ErrStorageRequired
	}
	c.Logger.Info("running migrations", "driver", c.DB.Driver())
	if err := migrations.Run(ctx, c.DB); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	c.Logger.Info("migrations completed")
	return nil
}

// HasStorage reports whether admin operations are available.
func (c *Container) HasStorage() bool {
	return c.Subscriptions != nil
}

func (c *Container) initStores(ctx context.Context) error {
	stores, err := openStores(c.DB)
	if err != nil {
		return err
	}
	c.Subscriptions = stores.ledger
	c.FreeUsage = stores.freeUsage
	c.OutboxRepo = stores.outbox

	if c.Config.FreeUsageBackend == config.FreeUsageBackendRedis {
		client, err := c.connectRedis(ctx)
		if err != nil {
			if !c.Config.IsDevelopment() {
				return err
			}
			c.Logger.Warn("Redis not available, free usage stays in the database", "error", err)
		} else {
			c.RedisClient = client
			c.FreeUsage = cache.NewRedisFreeUsageStore(client, "cosmiq")
			c.Health.Register("redis", observability.PingHealthChecker("redis", observability.HealthStatusDegraded, func(ctx context.Context) error {
				return client.Ping(ctx).Err()
			}))
			c.Logger.Info("free usage stored in Redis")
		}
	}

	c.Breaker = resilience.NewBreakerStore(c.Subscriptions, c.FreeUsage, c.breakerConfig(), c.Logger, c.Metrics)
	c.registerBreakerHealth()
	return nil
}

func (c *Container) connectRedis(ctx context.Context) (*redis.Client, error) {
	opt, err := redis.ParseURL(c.Config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	c.Logger.Info("connected to Redis")
	return client, nil
}

func (c *Container) initPublisher() error {
	if c.Config.RabbitMQURL == "" {
		c.Logger.Info("RABBITMQ_URL not set, delivering events in process")
		c.EventPublisher = c.newInProcessBus()
		return nil
	}

	publisher, err := eventbus.NewRabbitMQPublisher(c.Config.RabbitMQURL, eventbus.ExchangeName, c.Logger)
	if err != nil {
		if !c.Config.IsDevelopment() {
			return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
		}
		c.Logger.Warn("RabbitMQ not available, delivering events in process", "error", err)
		c.EventPublisher = c.newInProcessBus()
		return nil
	}

	c.EventPublisher = publisher
	c.Health.Register("rabbitmq", observability.PingHealthChecker("rabbitmq", observability.HealthStatusDegraded, func(context.Context) error {
		if !publisher.Healthy() {
			return errors.New("channel closed")
		}
		return nil
	}))
	return nil
}

func (c *Container) newInProcessBus() *eventbus.InProcessBus {
	bus := eventbus.NewInProcessBus(c.Logger)
	bus.Subscribe(subscribers.NewUsageSubscriber(c.Logger, c.Metrics))
	return bus
}

// wireServices builds the entitlement service, admin handlers and outbox processor
// on top of the initialized stores.
func (c *Container) wireServices() {
	c.Entitlements = application.NewService(c.Breaker, c.Breaker, c.Config.Limits(),
		application.WithOutbox(c.OutboxRepo),
		application.WithLogger(c.Logger),
		application.WithMetrics(c.Metrics),
	)

	c.SetSubscriptionHandler = commands.NewSetSubscriptionHandler(c.Subscriptions, c.Subscriptions, c.OutboxRepo, c.UnitOfWork)
	c.GrantCreditsHandler = commands.NewGrantCreditsHandler(c.Subscriptions, c.OutboxRepo, c.UnitOfWork)
	c.RefundPurchaseHandler = commands.NewRefundPurchaseHandler(c.Subscriptions, c.Subscriptions, c.OutboxRepo, c.UnitOfWork)
	c.BillingStatusHandler = queries.NewGetBillingStatusHandler(c.Breaker)

	processorConfig := outbox.DefaultProcessorConfig()
	if c.Config.OutboxPollInterval > 0 {
		processorConfig.PollInterval = c.Config.OutboxPollInterval
	}
	if c.Config.OutboxBatchSize > 0 {
		processorConfig.BatchSize = c.Config.OutboxBatchSize
	}
	if c.Config.OutboxMaxRetries > 0 {
		processorConfig.MaxRetries = c.Config.OutboxMaxRetries
	}
	if c.Config.OutboxRetentionDays > 0 {
		processorConfig.RetentionDays = c.Config.OutboxRetentionDays
	}
	c.OutboxProcessor = outbox.NewProcessor(c.OutboxRepo, c.EventPublisher, processorConfig, c.Logger).
		WithMetrics(c.Metrics)
}

func (c *Container) registerBreakerHealth() {
	for _, store := range []string{resilience.StoreSubscriptions, resilience.StoreFreeUsage} {
		c.Health.Register("breaker."+store, observability.BreakerHealthChecker(func() string {
			return c.Breaker.State(store)
		}))
	}
}

func (c *Container) breakerConfig() resilience.BreakerConfig {
	return breakerConfig(c.Config)
}

// breakerConfig takes Enabled from cfg as is; zero numeric settings keep their defaults.
func breakerConfig(cfg *config.Config) resilience.BreakerConfig {
	bc := resilience.DefaultBreakerConfig()
	bc.Enabled = cfg.BreakerEnabled
	if cfg.BreakerMaxRequests > 0 {
		bc.MaxRequests = cfg.BreakerMaxRequests
	}
	if cfg.BreakerInterval > 0 {
		bc.Interval = cfg.BreakerInterval
	}
	if cfg.BreakerTimeout > 0 {
		bc.Timeout = cfg.BreakerTimeout
	}
	if cfg.BreakerFailureThreshold > 0 {
		bc.FailureThreshold = cfg.BreakerFailureThreshold
	}
	return bc
}

// Close cleans up all resources.
func (c *Container) Close() {
	if c.OutboxProcessor != nil {
		c.OutboxProcessor.Stop()
	}

	if c.EventPublisher != nil {
		if err := c.EventPublisher.Close(); err != nil {
			c.Logger.Warn("error closing event publisher", "error", err)
		}
	}

	if c.RedisClient != nil {
		if err := c.RedisClient.Close(); err != nil {
			c.Logger.Warn("error closing Redis connection", "error", err)
		} else {
			c.Logger.Info("Redis connection closed")
		}
	}

	if c.DB != nil {
		if err := c.DB.Close(); err != nil {
			c.Logger.Warn("error closing database connection", "error", err)
		} else {
			c.Logger.Info("database connection closed", "driver", c.DB.Driver())
		}
	}
}

// passthroughUnitOfWork runs work directly; the in-memory store applies each write atomically.
type passthroughUnitOfWork struct{}

func (passthroughUnitOfWork) Begin(ctx context.Context) (context.Context, error) { return ctx, nil }
func (passthroughUnitOfWork) Commit(context.Context) error                       { return nil }
func (passthroughUnitOfWork) Rollback(context.Context) error                     { return nil }
