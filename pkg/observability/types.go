// Package observability provides metrics and distributed tracing for
// dataflow pipelines. It uses OpenTelemetry as the core tracing abstraction
// and Prometheus for metrics, behind small vendor-neutral interfaces.
package observability

import (
	"context"
	"time"
)

// MetricsProvider defines the interface for collecting and exposing
// metrics. Three metric families cover pipeline instrumentation:
//   - Counter: a value that only goes up (samples processed, samples dropped)
//   - Gauge: a value that can go up and down (prefetch queue depth)
//   - Histogram: a distribution (per-sample transform latency, batch sizes)
type MetricsProvider interface {
	// Counter increments a counter metric by the given value.
	Counter(ctx context.Context, name string, value int64, labels map[string]string)

	// Gauge adds value to a gauge metric; pass negative values to decrease.
	Gauge(ctx context.Context, name string, value float64, labels map[string]string)

	// Histogram records a value in a histogram metric.
	Histogram(ctx context.Context, name string, value float64, labels map[string]string)

	// RecordDuration records a duration in seconds as a histogram.
	RecordDuration(ctx context.Context, name string, duration time.Duration, labels map[string]string)
}

// TracerProvider defines the interface for distributed tracing. Each traced
// operation creates a span recording timing, status and attributes.
type TracerProvider interface {
	// StartSpan starts a new span with the given operation name. The
	// returned context carries the span for child operations.
	StartSpan(ctx context.Context, name string, opts ...SpanOption) (context.Context, Span)

	// Shutdown flushes and stops the provider.
	Shutdown(ctx context.Context) error
}

// Span is one traced operation.
type Span interface {
	// End finishes the span; a non-nil error marks it failed.
	End(err error)

	// SetAttribute adds a key-value attribute to the span.
	SetAttribute(key string, value any)

	// AddEvent records a point-in-time event within the span.
	AddEvent(name string, attrs map[string]any)
}

// spanConfig collects span start options.
type spanConfig struct {
	kind       SpanKind
	attributes map[string]any
}

// SpanOption configures StartSpan.
type SpanOption func(*spanConfig)

// SpanKind describes the relationship between the span, its parents and its
// children.
type SpanKind int

const (
	// SpanKindInternal is the default kind
	SpanKindInternal SpanKind = iota
	// SpanKindProducer marks spans on the producing side of a handoff
	SpanKindProducer
	// SpanKindConsumer marks spans on the consuming side of a handoff
	SpanKindConsumer
)

// WithSpanKind sets the kind of span.
func WithSpanKind(kind SpanKind) SpanOption {
	return func(cfg *spanConfig) { cfg.kind = kind }
}

// WithAttributes sets initial span attributes.
func WithAttributes(attrs map[string]any) SpanOption {
	return func(cfg *spanConfig) { cfg.attributes = attrs }
}
