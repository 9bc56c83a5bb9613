// Package resilience guards the entitlement stores with circuit breakers.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cosmiq-app/cosmiq/internal/billing/domain"
	"github.com/cosmiq-app/cosmiq/pkg/observability"
	"github.com/sony/gobreaker/v2"
)

// BreakerConfig configures the store circuit breakers.
type BreakerConfig struct {
	// Enabled turns the breakers on. Disabled stores are called directly.
	Enabled bool

	// MaxRequests is the maximum number of requests allowed in half-open state.
	MaxRequests uint32

	// Interval is the cyclic period of the closed state.
	Interval time.Duration

	// Timeout is the period of the open state.
	Timeout time.Duration

	// FailureThreshold is the number of consecutive failures that trips a breaker.
	FailureThreshold uint32
}

// DefaultBreakerConfig returns the defaults used when nothing is configured.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Enabled:          true,
		MaxRequests:      3,
		Interval:         10 * time.Second,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
	}
}

// Breaker names accepted by State.
const (
	StoreSubscriptions = "subscriptions"
	StoreFreeUsage     = "free_usage"
)

// BreakerStore decorates the subscription and free-usage stores.
// While a breaker is open calls fail fast with domain.ErrStoreUnavailable;
// storage errors in the closed state reach the caller unchanged.
type BreakerStore struct {
	subs domain.SubscriptionStore
	free domain.FreeUsageStore

	subsBreaker *gobreaker.CircuitBreaker[any]
	freeBreaker *gobreaker.CircuitBreaker[any]

	logger  *slog.Logger
	metrics observability.Metrics
}

// NewBreakerStore wraps subs and free. Either may be nil when unused.
func NewBreakerStore(subs domain.SubscriptionStore, free domain.FreeUsageStore, config BreakerConfig, logger *slog.Logger, metrics observability.Metrics) *BreakerStore {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = observability.NoopMetrics{}
	}
	s := &BreakerStore{
		subs:    subs,
		free:    free,
		logger:  logger,
		metrics: metrics,
	}
	if config.Enabled {
		s.subsBreaker = s.newBreaker(StoreSubscriptions, config)
		s.freeBreaker = s.newBreaker(StoreFreeUsage, config)
	}
	return s
}

func (s *BreakerStore) newBreaker(name string, config BreakerConfig) *gobreaker.CircuitBreaker[any] {
	threshold := config.FailureThreshold
	if threshold == 0 {
		threshold = DefaultBreakerConfig().FailureThreshold
	}

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// A caller giving up is not a storage fault.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			s.logger.Warn("store circuit breaker state changed",
				"store", name,
				"from", from.String(),
				"to", to.String(),
			)
			s.metrics.Gauge(observability.MetricStoreBreakerState, stateValue(to), observability.T("store", name))
		},
	}
	return gobreaker.NewCircuitBreaker[any](settings)
}

func stateValue(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// execute runs fn through breaker, translating rejections.
func execute[T any](s *BreakerStore, breaker *gobreaker.CircuitBreaker[any], operation string, fn func() (T, error)) (T, error) {
	if breaker == nil {
		return fn()
	}

	result, err := breaker.Execute(func() (any, error) {
		return fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		s.metrics.Counter(observability.MetricStoreRejected, 1,
			observability.T("store", breaker.Name()),
			observability.T("operation", operation),
		)
		var zero T
		return zero, domain.ErrStoreUnavailable
	}
	if err != nil {
		var zero T
		return zero, err
	}
	typed, _ := result.(T)
	return typed, nil
}

// State reports the state of the named breaker: "closed", "half-open", "open" or "disabled".
func (s *BreakerStore) State(store string) string {
	var b *gobreaker.CircuitBreaker[any]
	switch store {
	case StoreSubscriptions:
		b = s.subsBreaker
	case StoreFreeUsage:
		b = s.freeBreaker
	}
	if b == nil {
		return "disabled"
	}
	return b.State().String()
}

func (s *BreakerStore) GetSubscription(ctx context.Context, userID string) (*domain.Subscription, error) {
	return execute(s, s.subsBreaker, "get_subscription", func() (*domain.Subscription, error) {
		return s.subs.GetSubscription(ctx, userID)
	})
}

func (s *BreakerStore) GetAvailableCredits(ctx context.Context, userID string, product domain.ProductType) (int, error) {
	return execute(s, s.subsBreaker, "get_available_credits", func() (int, error) {
		return s.subs.GetAvailableCredits(ctx, userID, product)
	})
}

func (s *BreakerStore) GetCreditBalances(ctx context.Context, userID string, products []domain.ProductType) (map[domain.ProductType]int, error) {
	return execute(s, s.subsBreaker, "get_credit_balances", func() (map[domain.ProductType]int, error) {
		return s.subs.GetCreditBalances(ctx, userID, products)
	})
}

func (s *BreakerStore) GetPurchases(ctx context.Context, userID string) ([]domain.Purchase, error) {
	return execute(s, s.subsBreaker, "get_purchases", func() ([]domain.Purchase, error) {
		return s.subs.GetPurchases(ctx, userID)
	})
}

func (s *BreakerStore) PurchasedReportTypes(ctx context.Context, userID string) ([]string, error) {
	return execute(s, s.subsBreaker, "purchased_report_types", func() ([]string, error) {
		return s.subs.PurchasedReportTypes(ctx, userID)
	})
}

func (s *BreakerStore) ConsumeCredit(ctx context.Context, userID string, product domain.ProductType) (bool, error) {
	return execute(s, s.subsBreaker, "consume_credit", func() (bool, error) {
		return s.subs.ConsumeCredit(ctx, userID, product)
	})
}

func (s *BreakerStore) UseSynastryRead(ctx context.Context, userID string, allowance int) (bool, error) {
	return execute(s, s.subsBreaker, "use_synastry_read", func() (bool, error) {
		return s.subs.UseSynastryRead(ctx, userID, allowance)
	})
}

func (s *BreakerStore) ClaimMonthlyReport(ctx context.Context, userID string) (bool, error) {
	return execute(s, s.subsBreaker, "claim_monthly_report", func() (bool, error) {
		return s.subs.ClaimMonthlyReport(ctx, userID)
	})
}

func (s *BreakerStore) Get(ctx context.Context, fingerprint string) (*domain.FreeUsage, error) {
	return execute(s, s.freeBreaker, "get_free_usage", func() (*domain.FreeUsage, error) {
		return s.free.Get(ctx, fingerprint)
	})
}

func (s *BreakerStore) GetOrCreate(ctx context.Context, fingerprint, ip string) (*domain.FreeUsage, error) {
	return execute(s, s.freeBreaker, "get_or_create_free_usage", func() (*domain.FreeUsage, error) {
		return s.free.GetOrCreate(ctx, fingerprint, ip)
	})
}

func (s *BreakerStore) Increment(ctx context.Context, fingerprint string, counter domain.FreeCounter, limit int) (bool, error) {
	return execute(s, s.freeBreaker, "increment_free_usage", func() (bool, error) {
		return s.free.Increment(ctx, fingerprint, counter, limit)
	})
}

var (
	_ domain.SubscriptionStore = (*BreakerStore)(nil)
	_ domain.FreeUsageStore    = (*BreakerStore)(nil)
)
