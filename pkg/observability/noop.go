package observability

import (
	"context"
	"time"
)

// NoopMetricsProvider is a no-op implementation of MetricsProvider. Use
// when metrics are disabled.
type NoopMetricsProvider struct{}

// Counter does nothing
func (p *NoopMetricsProvider) Counter(_ context.Context, _ string, _ int64, _ map[string]string) {}

// Gauge does nothing
func (p *NoopMetricsProvider) Gauge(_ context.Context, _ string, _ float64, _ map[string]string) {}

// Histogram does nothing
func (p *NoopMetricsProvider) Histogram(_ context.Context, _ string, _ float64, _ map[string]string) {
}

// RecordDuration does nothing
func (p *NoopMetricsProvider) RecordDuration(_ context.Context, _ string, _ time.Duration, _ map[string]string) {
}

// NoopTracerProvider is a no-op implementation of TracerProvider. Use when
// tracing is disabled.
type NoopTracerProvider struct{}

// StartSpan returns a no-op span
func (p *NoopTracerProvider) StartSpan(ctx context.Context, _ string, _ ...SpanOption) (context.Context, Span) {
	return ctx, &noopSpan{}
}

// Shutdown does nothing
func (p *NoopTracerProvider) Shutdown(_ context.Context) error { return nil }

type noopSpan struct{}

func (s *noopSpan) End(_ error)                         {}
func (s *noopSpan) SetAttribute(_ string, _ any)        {}
func (s *noopSpan) AddEvent(_ string, _ map[string]any) {}
