package observability

import (
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// maxLabelLen is the maximum length for a metric label value
const maxLabelLen = 64

// sanitizeLabel keeps label values bounded and non-empty.
func sanitizeLabel(s string) string {
	if s == "" {
		return "unknown"
	}
	s = strings.ReplaceAll(s, " ", "_")
	if len(s) > maxLabelLen {
		s = s[:maxLabelLen]
	}
	return s
}

// promName turns a dotted metric name into a Prometheus identifier.
func promName(name string) string {
	return strings.NewReplacer(".", "_", "-", "_").Replace(name)
}

// PrometheusMetrics implements Metrics on a dedicated Prometheus registry.
// Vectors are created on first use; the label names of the first call for a
// metric fix its label set, later calls fill missing labels with "unknown".
type PrometheusMetrics struct {
	registry *prometheus.Registry

	mu         sync.Mutex
	counters   map[string]*labeled[*prometheus.CounterVec]
	gauges     map[string]*labeled[*prometheus.GaugeVec]
	histograms map[string]*labeled[*prometheus.HistogramVec]
}

type labeled[V any] struct {
	vec    V
	labels []string
}

// NewPrometheusMetrics creates a collector with Go runtime and process collectors registered.
func NewPrometheusMetrics() *PrometheusMetrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return &PrometheusMetrics{
		registry:   reg,
		counters:   make(map[string]*labeled[*prometheus.CounterVec]),
		gauges:     make(map[string]*labeled[*prometheus.GaugeVec]),
		histograms: make(map[string]*labeled[*prometheus.HistogramVec]),
	}
}

// Registry exposes the underlying registry.
func (m *PrometheusMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *PrometheusMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *PrometheusMetrics) Counter(name string, value int64, tags ...Tag) {
	m.mu.Lock()
	c, ok := m.counters[name]
	if !ok {
		labels := labelNames(tags)
		vec := prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: promName(name) + "_total",
			Help: "Counter " + name,
		}, labels)
		m.registry.MustRegister(vec)
		c = &labeled[*prometheus.CounterVec]{vec: vec, labels: labels}
		m.counters[name] = c
	}
	m.mu.Unlock()

	c.vec.WithLabelValues(labelValues(c.labels, tags)...).Add(float64(value))
}

func (m *PrometheusMetrics) Gauge(name string, value float64, tags ...Tag) {
	m.mu.Lock()
	g, ok := m.gauges[name]
	if !ok {
		labels := labelNames(tags)
		vec := prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: promName(name),
			Help: "Gauge " + name,
		}, labels)
		m.registry.MustRegister(vec)
		g = &labeled[*prometheus.GaugeVec]{vec: vec, labels: labels}
		m.gauges[name] = g
	}
	m.mu.Unlock()

	g.vec.WithLabelValues(labelValues(g.labels, tags)...).Set(value)
}

func (m *PrometheusMetrics) Histogram(name string, value float64, tags ...Tag) {
	m.histogram(name, "", value, tags)
}

// Timing records durations in seconds.
func (m *PrometheusMetrics) Timing(name string, duration time.Duration, tags ...Tag) {
	m.histogram(name, "_seconds", duration.Seconds(), tags)
}

func (m *PrometheusMetrics) histogram(name, suffix string, value float64, tags []Tag) {
	key := name + suffix
	m.mu.Lock()
	h, ok := m.histograms[key]
	if !ok {
		labels := labelNames(tags)
		vec := prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    promName(name) + suffix,
			Help:    "Distribution of " + name,
			Buckets: prometheus.DefBuckets,
		}, labels)
		m.registry.MustRegister(vec)
		h = &labeled[*prometheus.HistogramVec]{vec: vec, labels: labels}
		m.histograms[key] = h
	}
	m.mu.Unlock()

	h.vec.WithLabelValues(labelValues(h.labels, tags)...).Observe(value)
}

func labelNames(tags []Tag) []string {
	names := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		key := promName(t.Key)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		names = append(names, key)
	}
	sort.Strings(names)
	return names
}

func labelValues(names []string, tags []Tag) []string {
	byName := make(map[string]string, len(tags))
	for _, t := range tags {
		byName[promName(t.Key)] = t.Value
	}
	values := make([]string, len(names))
	for i, name := range names {
		values[i] = sanitizeLabel(byName[name])
	}
	return values
}

var _ Metrics = (*PrometheusMetrics)(nil)
