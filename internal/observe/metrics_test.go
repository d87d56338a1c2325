package observe

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// collect gathers all metric data from the reader.
func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

// findMetric searches for a metric by name across all scope metrics.
func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func TestNewMetrics_CreatesWithoutError(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestHistogramObservation(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.ModelCallDuration.Record(ctx, 1.2,
		metric.WithAttributes(attribute.String("provider", "gemini")),
	)

	rm := collect(t, reader)
	md := findMetric(rm, "orquesta.model.duration")
	if md == nil {
		t.Fatal("orquesta.model.duration not found")
	}
	hist, ok := md.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("unexpected data type %T", md.Data)
	}
	if len(hist.DataPoints) != 1 {
		t.Fatalf("got %d data points, want 1", len(hist.DataPoints))
	}
	if hist.DataPoints[0].Count != 1 {
		t.Errorf("Count = %d, want 1", hist.DataPoints[0].Count)
	}
}

func TestRecordModelRequest(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordModelRequest(ctx, "gemini", "generate", "ok")
	m.RecordModelRequest(ctx, "gemini", "generate", "ok")
	m.RecordModelRequest(ctx, "openai", "continue", "error")

	rm := collect(t, reader)
	md := findMetric(rm, "orquesta.model.requests")
	if md == nil {
		t.Fatal("orquesta.model.requests not found")
	}
	sum, ok := md.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("unexpected data type %T", md.Data)
	}
	if len(sum.DataPoints) != 2 {
		t.Fatalf("got %d data points, want 2", len(sum.DataPoints))
	}

	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	if total != 3 {
		t.Errorf("total = %d, want 3", total)
	}
}

func TestRecordToolCallAttributes(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordToolCall(ctx, "buscar_productos", "ok")
	m.RecordToolCall(ctx, "buscar_productos", "failed")

	rm := collect(t, reader)
	md := findMetric(rm, "orquesta.tool.calls")
	if md == nil {
		t.Fatal("orquesta.tool.calls not found")
	}
	sum := md.Data.(metricdata.Sum[int64])
	if len(sum.DataPoints) != 2 {
		t.Errorf("got %d series, want 2 (one per status)", len(sum.DataPoints))
	}
}

func TestRecordLoopIteration(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordLoopIteration(ctx, false)
	m.RecordLoopIteration(ctx, false)
	m.RecordLoopIteration(ctx, true)

	rm := collect(t, reader)
	md := findMetric(rm, "orquesta.loop.iterations")
	if md == nil {
		t.Fatal("orquesta.loop.iterations not found")
	}
	sum := md.Data.(metricdata.Sum[int64])

	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	if total != 3 {
		t.Errorf("total = %d, want 3", total)
	}
}

func TestActiveConversationsGauge(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.ActiveConversations.Add(ctx, 3)
	m.ActiveConversations.Add(ctx, -1)

	rm := collect(t, reader)
	md := findMetric(rm, "orquesta.active_conversations")
	if md == nil {
		t.Fatal("orquesta.active_conversations not found")
	}
	sum := md.Data.(metricdata.Sum[int64])
	if len(sum.DataPoints) != 1 || sum.DataPoints[0].Value != 2 {
		t.Errorf("gauge value = %+v, want 2", sum.DataPoints)
	}
}
