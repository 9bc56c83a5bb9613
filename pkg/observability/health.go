package observability

import (
	"context"
	"sync"
	"time"
)

// HealthStatus represents the health state of a component.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// rank orders statuses so the worst one wins when aggregating.
func (s HealthStatus) rank() int {
	switch s {
	case HealthStatusUnhealthy:
		return 2
	case HealthStatusDegraded:
		return 1
	default:
		return 0
	}
}

// HealthCheckResult is the result of a single component check.
type HealthCheckResult struct {
	Status   HealthStatus  `json:"status"`
	Message  string        `json:"message,omitempty"`
	Duration time.Duration `json:"duration_ns"`
}

// HealthChecker checks one component.
type HealthChecker func(ctx context.Context) HealthCheckResult

// OverallHealth is the aggregated view served by readiness endpoints.
type OverallHealth struct {
	Status    HealthStatus                 `json:"status"`
	Timestamp time.Time                    `json:"timestamp"`
	Checks    map[string]HealthCheckResult `json:"checks"`
}

// HealthRegistry holds the checkers for the stores and brokers the process depends on.
type HealthRegistry struct {
	mu       sync.RWMutex
	checkers map[string]HealthChecker
}

// NewHealthRegistry creates an empty registry. With no checkers the process reports healthy.
func NewHealthRegistry() *HealthRegistry {
	return &HealthRegistry{checkers: make(map[string]HealthChecker)}
}

// Register adds or replaces the checker for a component.
func (r *HealthRegistry) Register(name string, checker HealthChecker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkers[name] = checker
}

// GetOverallHealth runs every checker concurrently and reports the worst status.
func (r *HealthRegistry) GetOverallHealth(ctx context.Context) OverallHealth {
	r.mu.RLock()
	checkers := make(map[string]HealthChecker, len(r.checkers))
	for name, checker := range r.checkers {
		checkers[name] = checker
	}
	r.mu.RUnlock()

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		overall = HealthStatusHealthy
		checks  = make(map[string]HealthCheckResult, len(checkers))
	)
	for name, checker := range checkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			start := time.Now()
			result := checker(ctx)
			result.Duration = time.Since(start)

			mu.Lock()
			defer mu.Unlock()
			checks[name] = result
			if result.Status.rank() > overall.rank() {
				overall = result.Status
			}
		}()
	}
	wg.Wait()

	return OverallHealth{Status: overall, Timestamp: time.Now().UTC(), Checks: checks}
}

// PingHealthChecker reports failing pings with the given status. The primary
// database is unhealthy when unreachable; caches and brokers only degrade the process.
func PingHealthChecker(component string, onFailure HealthStatus, ping func(ctx context.Context) error) HealthChecker {
	return func(ctx context.Context) HealthCheckResult {
		if err := ping(ctx); err != nil {
			return HealthCheckResult{Status: onFailure, Message: component + " unreachable: " + err.Error()}
		}
		return HealthCheckResult{Status: HealthStatusHealthy, Message: component + " reachable"}
	}
}

// BreakerHealthChecker maps a circuit breaker state to a status. An open breaker
// means entitlement reads are rejected, so the process is degraded until it recovers.
func BreakerHealthChecker(state func() string) HealthChecker {
	return func(context.Context) HealthCheckResult {
		switch s := state(); s {
		case "open":
			return HealthCheckResult{Status: HealthStatusDegraded, Message: "breaker open"}
		case "half-open":
			return HealthCheckResult{Status: HealthStatusDegraded, Message: "breaker probing"}
		default:
			return HealthCheckResult{Status: HealthStatusHealthy, Message: "breaker " + s}
		}
	}
}
