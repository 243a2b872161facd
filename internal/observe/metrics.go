// Package observe provides application-wide observability primitives:
// OpenTelemetry metrics, distributed tracing, structured logging, and HTTP
// middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. [InitProvider]
// installs a Prometheus exporter as the meter provider's reader; no /metrics
// HTTP route is mounted by this package or by the server. A package-level default
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

// meterName is the instrumentation scope name used for all metrics.
const meterName = "github.com/speechgraph/core"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// STTDuration tracks speech-to-text transcription latency.
	STTDuration metric.Float64Histogram

	// ExtractionDuration tracks LLM entity/relation extraction latency.
	ExtractionDuration metric.Float64Histogram

	// SentenceDetectionDuration tracks sentence boundary detection latency.
	SentenceDetectionDuration metric.Float64Histogram

	// GraphApplyDuration tracks the latency of reconciling an extraction
	// result into a session graph.
	GraphApplyDuration metric.Float64Histogram

	// --- Counters ---

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// GraphEntitiesCreated counts new entities added to session graphs.
	GraphEntitiesCreated metric.Int64Counter

	// GraphRelationsCreated counts new relations added to session graphs.
	GraphRelationsCreated metric.Int64Counter

	// HeartbeatsSent counts heartbeat frames sent to clients.
	HeartbeatsSent metric.Int64Counter

	// MessagesDropped counts messages dropped due to backpressure. Use with
	// attribute.String("queue", ...).
	MessagesDropped metric.Int64Counter

	// --- Error counters ---

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live connections.
	ActiveSessions metric.Int64UpDownCounter

	// QueueDepth tracks the current depth of a bounded pipeline queue. Use
	// with attribute.String("queue", ...) for "audio", "text", "sentence",
	// or "outbound".
	QueueDepth metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for the real-time transcription-to-graph pipeline.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.STTDuration, err = m.Float64Histogram("speechgraph.stt.duration",
		metric.WithDescription("Latency of speech-to-text transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ExtractionDuration, err = m.Float64Histogram("speechgraph.extraction.duration",
		metric.WithDescription("Latency of LLM entity/relation extraction."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SentenceDetectionDuration, err = m.Float64Histogram("speechgraph.sentence.duration",
		metric.WithDescription("Latency of sentence boundary detection."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.GraphApplyDuration, err = m.Float64Histogram("speechgraph.graph.apply.duration",
		metric.WithDescription("Latency of applying an extraction result to a session graph."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.ProviderRequests, err = m.Int64Counter("speechgraph.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.GraphEntitiesCreated, err = m.Int64Counter("speechgraph.graph.entities_created",
		metric.WithDescription("Total entities created across session graphs."),
	); err != nil {
		return nil, err
	}
	if met.GraphRelationsCreated, err = m.Int64Counter("speechgraph.graph.relations_created",
		metric.WithDescription("Total relations created across session graphs."),
	); err != nil {
		return nil, err
	}
	if met.HeartbeatsSent, err = m.Int64Counter("speechgraph.heartbeats_sent",
		metric.WithDescription("Total heartbeat frames sent to clients."),
	); err != nil {
		return nil, err
	}
	if met.MessagesDropped, err = m.Int64Counter("speechgraph.messages_dropped",
		metric.WithDescription("Total messages dropped due to queue backpressure, by queue."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.ProviderErrors, err = m.Int64Counter("speechgraph.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("speechgraph.active_sessions",
		metric.WithDescription("Number of live client connections."),
	); err != nil {
		return nil, err
	}
	if met.QueueDepth, err = m.Int64UpDownCounter("speechgraph.queue.depth",
		metric.WithDescription("Current depth of a bounded pipeline queue, by queue name."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("speechgraph.http.request.duration",
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

// RecordProviderRequest is a convenience method that records a provider
// request counter increment with the standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError is a convenience method that records a provider error
// counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordMessageDropped is a convenience method that records a dropped-message
// counter increment for the named queue.
func (m *Metrics) RecordMessageDropped(ctx context.Context, queue string) {
	m.MessagesDropped.Add(ctx, 1,
		metric.WithAttributes(attribute.String("queue", queue)),
	)
}

// SetQueueDepth records the current depth of a named queue. Since
// [metric.Int64UpDownCounter] is additive, callers pass the delta from the
// previously recorded depth rather than an absolute value.
func (m *Metrics) SetQueueDepth(ctx context.Context, queue string, delta int64) {
	m.QueueDepth.Add(ctx, delta,
		metric.WithAttributes(attribute.String("queue", queue)),
	)
}
