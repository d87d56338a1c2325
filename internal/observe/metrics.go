// Package observe provides application-wide observability primitives for
// Orquesta: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Orquesta metrics.
const meterName = "github.com/jmvillota/orquesta"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use, the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// ModelCallDuration tracks model generation latency per provider call.
	ModelCallDuration metric.Float64Histogram

	// ToolExecutionDuration tracks downstream tool execution latency.
	ToolExecutionDuration metric.Float64Histogram

	// TurnDuration tracks end-to-end answer turn latency, covering every
	// model call and tool execution inside the turn.
	TurnDuration metric.Float64Histogram

	// --- Counters ---

	// ModelRequests counts model API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("operation", ...), attribute.String("status", ...)
	ModelRequests metric.Int64Counter

	// ToolCalls counts tool invocations. Use with attributes:
	//   attribute.String("tool", ...), attribute.String("status", ...)
	ToolCalls metric.Int64Counter

	// LoopIterations counts tool loop rounds per answer turn. Use with
	// attribute: attribute.Bool("cap_hit", ...)
	LoopIterations metric.Int64Counter

	// --- Error counters ---

	// ModelErrors counts model provider errors. Use with attribute:
	//   attribute.String("provider", ...)
	ModelErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveConversations tracks the number of conversations currently held
	// in the store.
	ActiveConversations metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for model and tool round-trip latencies.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.ModelCallDuration, err = m.Float64Histogram("orquesta.model.duration",
		metric.WithDescription("Latency of individual model generation calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ToolExecutionDuration, err = m.Float64Histogram("orquesta.tool_execution.duration",
		metric.WithDescription("Latency of downstream tool execution."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TurnDuration, err = m.Float64Histogram("orquesta.turn.duration",
		metric.WithDescription("End-to-end answer turn latency."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.ModelRequests, err = m.Int64Counter("orquesta.model.requests",
		metric.WithDescription("Total model API requests by provider, operation, and status."),
	); err != nil {
		return nil, err
	}
	if met.ToolCalls, err = m.Int64Counter("orquesta.tool.calls",
		metric.WithDescription("Total tool invocations by tool name and status."),
	); err != nil {
		return nil, err
	}
	if met.LoopIterations, err = m.Int64Counter("orquesta.loop.iterations",
		metric.WithDescription("Total tool loop rounds, labelled by whether the iteration cap was hit."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.ModelErrors, err = m.Int64Counter("orquesta.model.errors",
		metric.WithDescription("Total model provider errors by provider."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveConversations, err = m.Int64UpDownCounter("orquesta.active_conversations",
		metric.WithDescription("Number of conversations currently held in memory."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("orquesta.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordModelRequest is a convenience method that records a model request
// counter increment with the standard attribute set.
func (m *Metrics) RecordModelRequest(ctx context.Context, provider, operation, status string) {
	m.ModelRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("operation", operation),
			attribute.String("status", status),
		),
	)
}

// RecordToolCall is a convenience method that records a tool call counter
// increment with the standard attribute set.
func (m *Metrics) RecordToolCall(ctx context.Context, tool, status string) {
	m.ToolCalls.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("tool", tool),
			attribute.String("status", status),
		),
	)
}

// RecordLoopIteration is a convenience method that records one tool loop
// round, labelled by whether the round ended because the cap was reached.
func (m *Metrics) RecordLoopIteration(ctx context.Context, capHit bool) {
	m.LoopIterations.Add(ctx, 1,
		metric.WithAttributes(attribute.Bool("cap_hit", capHit)),
	)
}

// RecordModelError is a convenience method that records a model provider
// error counter increment.
func (m *Metrics) RecordModelError(ctx context.Context, provider string) {
	m.ModelErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("provider", provider)),
	)
}
