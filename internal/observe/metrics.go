// Package observe provides application-wide observability primitives for
// kosmos: OpenTelemetry metrics, distributed tracing, and structured
// logging tying the two together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still
// be scraped via the standard /metrics endpoint. A package-level default
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

// meterName is the instrumentation scope name used for all kosmos metrics.
const meterName = "github.com/kosmos-research/kosmos"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// StorageOperationDuration tracks world-model Storage call latency. Use
	// with attributes: attribute.String("operation", ...), attribute.String("backend", ...).
	StorageOperationDuration metric.Float64Histogram

	// StorageOperations counts world-model Storage calls by operation and
	// outcome.
	StorageOperations metric.Int64Counter

	// SandboxRunDuration tracks sandbox executor round-trip latency.
	SandboxRunDuration metric.Float64Histogram

	// DirectorTransitions counts director state-machine transitions. Use
	// with attributes: attribute.String("from", ...), attribute.String("to", ...).
	DirectorTransitions metric.Int64Counter

	// DirectorCycles counts research loops that reached a terminal state:
	// one increment when the director converges or fails, tagged with
	// attribute "outcome" ("converged" or "failed"). Intermediate iterations
	// are not counted.
	DirectorCycles metric.Int64Counter

	// BusMessages counts agent-bus messages delivered, by sender and
	// message type.
	BusMessages metric.Int64Counter

	// ActiveWorldModels tracks the number of live world-model facade
	// singletons (0 or 1 in-process, but tracked the same way the teacher
	// tracks active session gauges).
	ActiveWorldModels metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) spanning
// in-memory map lookups through multi-second Postgres round-trips and
// sandboxed experiment runs.
var latencyBuckets = []float64{
	0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.StorageOperationDuration, err = m.Float64Histogram("kosmos.storage.operation.duration",
		metric.WithDescription("Latency of world-model Storage calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.StorageOperations, err = m.Int64Counter("kosmos.storage.operations",
		metric.WithDescription("Total world-model Storage calls by operation and outcome."),
	); err != nil {
		return nil, err
	}
	if met.SandboxRunDuration, err = m.Float64Histogram("kosmos.sandbox.run.duration",
		metric.WithDescription("Latency of sandbox executor round-trips."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.DirectorTransitions, err = m.Int64Counter("kosmos.director.transitions",
		metric.WithDescription("Total director state-machine transitions by from/to state."),
	); err != nil {
		return nil, err
	}
	if met.DirectorCycles, err = m.Int64Counter("kosmos.director.cycles",
		metric.WithDescription("Total research loops that reached a terminal state, by outcome."),
	); err != nil {
		return nil, err
	}
	if met.BusMessages, err = m.Int64Counter("kosmos.bus.messages",
		metric.WithDescription("Total agent-bus messages delivered by sender and type."),
	); err != nil {
		return nil, err
	}
	if met.ActiveWorldModels, err = m.Int64UpDownCounter("kosmos.worldmodel.active",
		metric.WithDescription("Number of live world-model facade singletons."),
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

// RecordStorageOperation records one Storage call's duration and outcome.
func (m *Metrics) RecordStorageOperation(ctx context.Context, operation, backend, outcome string, durationSeconds float64) {
	attrs := metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("backend", backend),
		attribute.String("outcome", outcome),
	)
	m.StorageOperationDuration.Record(ctx, durationSeconds, attrs)
	m.StorageOperations.Add(ctx, 1, attrs)
}

// RecordTransition records a director state-machine transition.
func (m *Metrics) RecordTransition(ctx context.Context, from, to string) {
	m.DirectorTransitions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("from", from),
			attribute.String("to", to),
		),
	)
}

// RecordBusMessage records one message delivered on the agent bus.
func (m *Metrics) RecordBusMessage(ctx context.Context, sender, msgType string) {
	m.BusMessages.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("sender", sender),
			attribute.String("type", msgType),
		),
	)
}
