package observability

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusProvider implements MetricsProvider using the Prometheus client
// library. Metric vectors are created on first use, keyed by name and label
// set.
type PrometheusProvider struct {
	mu         sync.RWMutex
	registry   *prometheus.Registry
	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	histograms map[string]*prometheus.HistogramVec

	durationBuckets []float64
}

// PrometheusOption configures the Prometheus provider.
type PrometheusOption func(*PrometheusProvider)

// WithDurationBuckets sets custom buckets for histogram metrics.
func WithDurationBuckets(buckets []float64) PrometheusOption {
	return func(p *PrometheusProvider) { p.durationBuckets = buckets }
}

// WithPrometheusRegistry uses a custom Prometheus registry.
func WithPrometheusRegistry(registry *prometheus.Registry) PrometheusOption {
	return func(p *PrometheusProvider) { p.registry = registry }
}

// NewPrometheusProvider creates a Prometheus metrics provider. By default
// it creates its own registry and includes the Go runtime collectors.
func NewPrometheusProvider(opts ...PrometheusOption) *PrometheusProvider {
	p := &PrometheusProvider{
		counters:        make(map[string]*prometheus.CounterVec),
		gauges:          make(map[string]*prometheus.GaugeVec),
		histograms:      make(map[string]*prometheus.HistogramVec),
		durationBuckets: prometheus.DefBuckets,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.registry == nil {
		p.registry = prometheus.NewRegistry()
		p.registry.MustRegister(collectors.NewGoCollector())
		p.registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	return p
}

// Handler returns the HTTP handler serving the /metrics endpoint.
func (p *PrometheusProvider) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// Counter increments a counter metric by the given value.
func (p *PrometheusProvider) Counter(_ context.Context, name string, value int64, labels map[string]string) {
	keys, values := splitLabels(labels)
	p.counterVec(name, keys).WithLabelValues(values...).Add(float64(value))
}

// Gauge adds value to a gauge metric.
func (p *PrometheusProvider) Gauge(_ context.Context, name string, value float64, labels map[string]string) {
	keys, values := splitLabels(labels)
	p.gaugeVec(name, keys).WithLabelValues(values...).Add(value)
}

// Histogram records a value in a histogram metric.
func (p *PrometheusProvider) Histogram(_ context.Context, name string, value float64, labels map[string]string) {
	keys, values := splitLabels(labels)
	p.histogramVec(name, keys).WithLabelValues(values...).Observe(value)
}

// RecordDuration records a duration in seconds as a histogram.
func (p *PrometheusProvider) RecordDuration(ctx context.Context, name string, duration time.Duration, labels map[string]string) {
	p.Histogram(ctx, name, duration.Seconds(), labels)
}

func (p *PrometheusProvider) counterVec(name string, keys []string) *prometheus.CounterVec {
	id := vecID(name, keys)
	p.mu.RLock()
	vec, ok := p.counters[id]
	p.mu.RUnlock()
	if ok {
		return vec
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if vec, ok = p.counters[id]; ok {
		return vec
	}
	vec = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: name,
		Help: "Counter for " + name,
	}, keys)
	p.registry.MustRegister(vec)
	p.counters[id] = vec
	return vec
}

func (p *PrometheusProvider) gaugeVec(name string, keys []string) *prometheus.GaugeVec {
	id := vecID(name, keys)
	p.mu.RLock()
	vec, ok := p.gauges[id]
	p.mu.RUnlock()
	if ok {
		return vec
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if vec, ok = p.gauges[id]; ok {
		return vec
	}
	vec = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: name,
		Help: "Gauge for " + name,
	}, keys)
	p.registry.MustRegister(vec)
	p.gauges[id] = vec
	return vec
}

func (p *PrometheusProvider) histogramVec(name string, keys []string) *prometheus.HistogramVec {
	id := vecID(name, keys)
	p.mu.RLock()
	vec, ok := p.histograms[id]
	p.mu.RUnlock()
	if ok {
		return vec
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if vec, ok = p.histograms[id]; ok {
		return vec
	}
	vec = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    name,
		Help:    "Histogram for " + name,
		Buckets: p.durationBuckets,
	}, keys)
	p.registry.MustRegister(vec)
	p.histograms[id] = vec
	return vec
}

// splitLabels returns label keys sorted with their matching values, so the
// same label set always resolves to the same vector.
func splitLabels(labels map[string]string) ([]string, []string) {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	values := make([]string, len(keys))
	for i, k := range keys {
		values[i] = labels[k]
	}
	return keys, values
}

func vecID(name string, keys []string) string {
	return name + "{" + strings.Join(keys, ",") + "}"
}
