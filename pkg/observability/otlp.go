package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// OTLPTracerProvider implements TracerProvider using the OpenTelemetry OTLP
// exporter. It can export pipeline spans to Jaeger, Grafana Tempo or any
// OTLP-compatible collector.
type OTLPTracerProvider struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// OTLPConfig configures the OTLP tracer provider. Most users only need
// ServiceName and Endpoint.
type OTLPConfig struct {
	// ServiceName identifies the loader in traces (e.g. "imagenet-loader").
	ServiceName string

	// ServiceVersion is shown alongside traces.
	ServiceVersion string

	// Endpoint is the OTLP collector address; 4317 is the standard gRPC
	// port, 4318 the HTTP one.
	Endpoint string

	// UseHTTP switches the exporter from gRPC to HTTP.
	UseHTTP bool

	// Insecure disables TLS; local development only.
	Insecure bool

	// SampleRate is the fraction of traces recorded in [0, 1].
	SampleRate float64

	// BatchTimeout is how long to wait before sending a batch of spans.
	BatchTimeout time.Duration
}

// DefaultOTLPConfig returns the default OTLP configuration.
func DefaultOTLPConfig(serviceName, endpoint string) OTLPConfig {
	return OTLPConfig{
		ServiceName:    serviceName,
		ServiceVersion: "unknown",
		Endpoint:       endpoint,
		Insecure:       true,
		SampleRate:     1.0,
		BatchTimeout:   5 * time.Second,
	}
}

// NewOTLPTracerProvider creates an OTLP tracer provider with defaults.
func NewOTLPTracerProvider(serviceName, endpoint string) (*OTLPTracerProvider, error) {
	return NewOTLPTracerProviderWithConfig(DefaultOTLPConfig(serviceName, endpoint))
}

// NewOTLPTracerProviderWithConfig creates an OTLP tracer provider from an
// explicit config.
func NewOTLPTracerProviderWithConfig(cfg OTLPConfig) (*OTLPTracerProvider, error) {
	ctx := context.Background()

	var client otlptrace.Client
	if cfg.UseHTTP {
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		client = otlptracehttp.NewClient(opts...)
	} else {
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		client = otlptracegrpc.NewClient(opts...)
	}

	exporter, err := otlptrace.New(ctx, client)
	if err != nil {
		return nil, fmt.Errorf("creating OTLP exporter: %w", err)
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
	))
	if err != nil {
		return nil, fmt.Errorf("building OTLP resource: %w", err)
	}

	sampler := sdktrace.AlwaysSample()
	if cfg.SampleRate < 1.0 {
		sampler = sdktrace.TraceIDRatioBased(cfg.SampleRate)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(cfg.BatchTimeout)),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)
	return &OTLPTracerProvider{
		provider: provider,
		tracer:   provider.Tracer("dataflow"),
	}, nil
}

// StartSpan starts a new span.
func (p *OTLPTracerProvider) StartSpan(ctx context.Context, name string, opts ...SpanOption) (context.Context, Span) {
	var cfg spanConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	startOpts := []trace.SpanStartOption{trace.WithSpanKind(toOtelKind(cfg.kind))}
	if len(cfg.attributes) > 0 {
		startOpts = append(startOpts, trace.WithAttributes(toOtelAttrs(cfg.attributes)...))
	}
	ctx, span := p.tracer.Start(ctx, name, startOpts...)
	return ctx, &otelSpan{span: span}
}

// Shutdown flushes and stops the provider.
func (p *OTLPTracerProvider) Shutdown(ctx context.Context) error {
	return p.provider.Shutdown(ctx)
}

type otelSpan struct {
	span trace.Span
}

func (s *otelSpan) End(err error) {
	if err != nil {
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, err.Error())
	}
	s.span.End()
}

func (s *otelSpan) SetAttribute(key string, value any) {
	s.span.SetAttributes(toOtelAttr(key, value))
}

func (s *otelSpan) AddEvent(name string, attrs map[string]any) {
	s.span.AddEvent(name, trace.WithAttributes(toOtelAttrs(attrs)...))
}

func toOtelKind(kind SpanKind) trace.SpanKind {
	switch kind {
	case SpanKindProducer:
		return trace.SpanKindProducer
	case SpanKindConsumer:
		return trace.SpanKindConsumer
	default:
		return trace.SpanKindInternal
	}
}

func toOtelAttrs(attrs map[string]any) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(attrs))
	for k, v := range attrs {
		out = append(out, toOtelAttr(k, v))
	}
	return out
}

func toOtelAttr(key string, value any) attribute.KeyValue {
	switch v := value.(type) {
	case string:
		return attribute.String(key, v)
	case int:
		return attribute.Int(key, v)
	case int64:
		return attribute.Int64(key, v)
	case float64:
		return attribute.Float64(key, v)
	case bool:
		return attribute.Bool(key, v)
	default:
		return attribute.String(key, fmt.Sprintf("%v", v))
	}
}
