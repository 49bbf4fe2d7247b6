package observability

import (
	"context"
	"time"

	"github.com/calque-ai/go-dataflow/pkg/dataflow"
)

// Metric names emitted by the pipeline instrumentation.
const (
	MetricSamples         = "dataflow_samples_total"
	MetricDroppedSamples  = "dataflow_dropped_samples_total"
	MetricTransformTime   = "dataflow_transform_duration_seconds"
	MetricTransformErrors = "dataflow_transform_errors_total"
)

// DropMetricsHook returns a dataflow.DropHook recording dropped samples as
// a counter labeled by operator:
//
//	dataflow.SetDropHook(observability.DropMetricsHook(provider))
func DropMetricsHook(metrics MetricsProvider) dataflow.DropHook {
	return func(op string, _ error) {
		metrics.Counter(context.Background(), MetricDroppedSamples, 1, map[string]string{"op": op})
	}
}

// InstrumentTransform wraps a per-sample transform with metrics: processed
// count, failure count and latency histogram, all labeled with name.
func InstrumentTransform(metrics MetricsProvider, name string, inner dataflow.Transform) dataflow.Transform {
	labels := map[string]string{"op": name}
	return dataflow.TransformFunc(func(ctx context.Context, s dataflow.Sample) (dataflow.Sample, error) {
		start := time.Now()
		out, err := inner.Apply(ctx, s)
		metrics.RecordDuration(ctx, MetricTransformTime, time.Since(start), labels)
		metrics.Counter(ctx, MetricSamples, 1, labels)
		if err != nil {
			metrics.Counter(ctx, MetricTransformErrors, 1, labels)
		}
		return out, err
	})
}

// TraceTransform wraps a per-sample transform in a span per sample. Keep it
// for coarse stages (decode, tokenize); a span per trivially cheap
// transform mostly measures the tracer.
func TraceTransform(tracer TracerProvider, name string, inner dataflow.Transform) dataflow.Transform {
	return dataflow.TransformFunc(func(ctx context.Context, s dataflow.Sample) (dataflow.Sample, error) {
		ctx, span := tracer.StartSpan(ctx, name, WithSpanKind(SpanKindInternal))
		out, err := inner.Apply(ctx, s)
		span.SetAttribute("keys", len(s))
		span.End(err)
		return out, err
	})
}
