package observability

import (
	"strings"
	"sync"
	"time"
)

// Metrics records counters, gauges and distributions. Tags become labels.
type Metrics interface {
	Counter(name string, value int64, tags ...Tag)
	Gauge(name string, value float64, tags ...Tag)
	Histogram(name string, value float64, tags ...Tag)
	Timing(name string, duration time.Duration, tags ...Tag)
}

// Tag is one metric label.
type Tag struct {
	Key   string
	Value string
}

// T creates a Tag.
func T(key, value string) Tag {
	return Tag{Key: key, Value: value}
}

// NoopMetrics discards everything.
type NoopMetrics struct{}

func (NoopMetrics) Counter(string, int64, ...Tag)        {}
func (NoopMetrics) Gauge(string, float64, ...Tag)        {}
func (NoopMetrics) Histogram(string, float64, ...Tag)    {}
func (NoopMetrics) Timing(string, time.Duration, ...Tag) {}

// InMemoryMetrics keeps the latest counter and gauge values per name and tag
// set, and every histogram or timing sample. Timings are stored in seconds.
type InMemoryMetrics struct {
	mu       sync.RWMutex
	counters map[string]int64
	gauges   map[string]float64
	samples  map[string][]float64
}

// NewInMemoryMetrics creates an empty collector.
func NewInMemoryMetrics() *InMemoryMetrics {
	return &InMemoryMetrics{
		counters: make(map[string]int64),
		gauges:   make(map[string]float64),
		samples:  make(map[string][]float64),
	}
}

func (m *InMemoryMetrics) Counter(name string, value int64, tags ...Tag) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[formatKey(name, tags)] += value
}

func (m *InMemoryMetrics) Gauge(name string, value float64, tags ...Tag) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gauges[formatKey(name, tags)] = value
}

func (m *InMemoryMetrics) Histogram(name string, value float64, tags ...Tag) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := formatKey(name, tags)
	m.samples[key] = append(m.samples[key], value)
}

func (m *InMemoryMetrics) Timing(name string, duration time.Duration, tags ...Tag) {
	m.Histogram(name, duration.Seconds(), tags...)
}

// GetCounter returns the counter total for the exact tag set.
func (m *InMemoryMetrics) GetCounter(name string, tags ...Tag) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.counters[formatKey(name, tags)]
}

// GetGauge returns the last gauge value for the exact tag set.
func (m *InMemoryMetrics) GetGauge(name string, tags ...Tag) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.gauges[formatKey(name, tags)]
}

// Samples returns the recorded histogram or timing values for the exact tag set.
func (m *InMemoryMetrics) Samples(name string, tags ...Tag) []float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]float64(nil), m.samples[formatKey(name, tags)]...)
}

// formatKey joins name and tags in call order: name:k1=v1:k2=v2.
func formatKey(name string, tags []Tag) string {
	var b strings.Builder
	b.WriteString(name)
	for _, t := range tags {
		b.WriteString(":" + t.Key + "=" + t.Value)
	}
	return b.String()
}

// Standard metric names used throughout cosmiq.
const (
	// Operation metrics
	MetricOperationTotal    = "cosmiq.operation.total"
	MetricOperationDuration = "cosmiq.operation.duration"
	MetricOperationErrors   = "cosmiq.operation.errors"

	// Entitlement metrics
	MetricEntitlementDecisions = "cosmiq.entitlement.decisions"
	MetricEntitlementDebits    = "cosmiq.entitlement.debits"
	MetricEntitlementDenials   = "cosmiq.entitlement.consume_denied"

	// Store metrics
	MetricStoreBreakerState = "cosmiq.store.breaker_state"
	MetricStoreRejected     = "cosmiq.store.rejected"

	// Event bus metrics
	MetricEventsPublished   = "cosmiq.events.published"
	MetricEventsDeadLetters = "cosmiq.events.dead_lettered"
	MetricOutboxPending     = "cosmiq.outbox.pending"
	MetricEventsConsumed    = "cosmiq.events.consumed"

	// Usage metrics fed by billing events
	MetricFeatureUsage        = "cosmiq.usage.features"
	MetricCreditsGranted      = "cosmiq.usage.credits_granted"
	MetricSubscriptionUpdates = "cosmiq.usage.subscription_updates"
	MetricPurchaseRefunds     = "cosmiq.usage.refunds"
)
