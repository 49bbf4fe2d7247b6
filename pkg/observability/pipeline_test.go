package observability

import (
	"context"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/calque-ai/go-dataflow/pkg/dataflow"
)

func newTestProvider() (*PrometheusProvider, *prometheus.Registry) {
	registry := prometheus.NewRegistry()
	return NewPrometheusProvider(WithPrometheusRegistry(registry)), registry
}

func TestDropMetricsHook(t *testing.T) {
	provider, registry := newTestProvider()
	hook := DropMetricsHook(provider)
	hook("key_transform", dataflow.NewErr(dataflow.KindIO, "boom"))
	hook("key_transform", dataflow.NewErr(dataflow.KindIO, "boom"))

	want := `
# HELP dataflow_dropped_samples_total Counter for dataflow_dropped_samples_total
# TYPE dataflow_dropped_samples_total counter
dataflow_dropped_samples_total{op="key_transform"} 2
`
	if err := testutil.GatherAndCompare(registry, strings.NewReader(want), MetricDroppedSamples); err != nil {
		t.Error(err)
	}
}

func TestInstrumentTransform(t *testing.T) {
	provider, registry := newTestProvider()
	identity := dataflow.TransformFunc(func(_ context.Context, s dataflow.Sample) (dataflow.Sample, error) {
		return s, nil
	})
	tr := InstrumentTransform(provider, "decode", identity)
	for i := 0; i < 3; i++ {
		if _, err := tr.Apply(context.Background(), dataflow.Sample{"x": dataflow.Scalar(int64(1))}); err != nil {
			t.Fatal(err)
		}
	}

	count := testutil.ToFloat64(provider.counterVec(MetricSamples, []string{"op"}).WithLabelValues("decode"))
	if count != 3 {
		t.Errorf("sample counter = %v, want 3", count)
	}
	if n, err := testutil.GatherAndCount(registry, MetricTransformTime); err != nil || n == 0 {
		t.Errorf("latency histogram: n = %d, err = %v", n, err)
	}
}

func TestTraceTransformPassesThrough(t *testing.T) {
	tracer := &NoopTracerProvider{}
	identity := dataflow.TransformFunc(func(_ context.Context, s dataflow.Sample) (dataflow.Sample, error) {
		return s, nil
	})
	tr := TraceTransform(tracer, "stage", identity)
	out, err := tr.Apply(context.Background(), dataflow.Sample{"x": dataflow.Scalar(int64(7))})
	if err != nil {
		t.Fatal(err)
	}
	if v, _ := dataflow.Item[int64](out["x"]); v != 7 {
		t.Errorf("output = %d, want 7", v)
	}
}
