// Package observe provides application-wide observability primitives for
// eMi: OpenTelemetry metrics, distributed tracing, structured logging, and
// HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. [InitProvider]
// bridges them into a Prometheus registry that is scraped via /metrics. A
// package-level default [Metrics] instance ([DefaultMetrics]) is provided for
// convenience; tests should use [NewMetrics] with a custom
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all eMi metrics.
const meterName = "github.com/MrWong99/emi"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// UtteranceLoadDuration tracks the time from a speak request to the
	// start of playback (asset fetch, decode or synthesis).
	UtteranceLoadDuration metric.Float64Histogram

	// TTSDuration tracks text-to-speech synthesis latency.
	TTSDuration metric.Float64Histogram

	// --- Counters ---

	// Utterances counts speak requests by outcome. Use with attribute:
	//   attribute.String("outcome", "completed"|"cancelled"|"failed")
	Utterances metric.Int64Counter

	// Transcripts counts delivered transcripts. Use with attribute:
	//   attribute.String("disposition", "evaluated"|"paused"|"speaking"|
	//   "not_listening"|"select_room"|"ignored")
	Transcripts metric.Int64Counter

	// Answers counts evaluated answers. Use with attributes:
	//   attribute.String("room", ...), attribute.String("result", "correct"|"wrong")
	Answers metric.Int64Counter

	// SideEffects counts dispatched side effects. Use with attribute:
	//   attribute.String("kind", ...)
	SideEffects metric.Int64Counter

	// MissingVisemeTargets counts mouth shapes requested by a timeline but
	// absent from the avatar model. Use with attribute:
	//   attribute.String("target", ...)
	MissingVisemeTargets metric.Int64Counter

	// --- Gauges ---

	// ActiveClients tracks the number of connected WebSocket clients.
	ActiveClients metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for asset loading and speech synthesis latencies.
var latencyBuckets = []float64{
	0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.UtteranceLoadDuration, err = m.Float64Histogram("emi.utterance.load.duration",
		metric.WithDescription("Latency from speak request to playback start."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TTSDuration, err = m.Float64Histogram("emi.tts.duration",
		metric.WithDescription("Latency of text-to-speech synthesis."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Utterances, err = m.Int64Counter("emi.utterances",
		metric.WithDescription("Total speak requests by outcome."),
	); err != nil {
		return nil, err
	}
	if met.Transcripts, err = m.Int64Counter("emi.transcripts",
		metric.WithDescription("Total delivered transcripts by disposition."),
	); err != nil {
		return nil, err
	}
	if met.Answers, err = m.Int64Counter("emi.answers",
		metric.WithDescription("Total evaluated answers by room and result."),
	); err != nil {
		return nil, err
	}
	if met.SideEffects, err = m.Int64Counter("emi.side_effects",
		metric.WithDescription("Total dispatched side effects by kind."),
	); err != nil {
		return nil, err
	}
	if met.MissingVisemeTargets, err = m.Int64Counter("emi.lipsync.missing_targets",
		metric.WithDescription("Mouth shapes requested but missing from the avatar model."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveClients, err = m.Int64UpDownCounter("emi.active_clients",
		metric.WithDescription("Number of connected WebSocket clients."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("emi.http.request.duration",
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

// RecordUtterance records a speak request outcome.
func (m *Metrics) RecordUtterance(ctx context.Context, outcome string) {
	m.Utterances.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordTranscript records whether a delivered transcript was evaluated or
// discarded.
func (m *Metrics) RecordTranscript(ctx context.Context, disposition string) {
	m.Transcripts.Add(ctx, 1, metric.WithAttributes(attribute.String("disposition", disposition)))
}

// RecordAnswer records an evaluated answer for room.
func (m *Metrics) RecordAnswer(ctx context.Context, room string, correct bool) {
	result := "wrong"
	if correct {
		result = "correct"
	}
	m.Answers.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("room", room),
			attribute.String("result", result),
		),
	)
}

// RecordSideEffect records one dispatched side effect.
func (m *Metrics) RecordSideEffect(ctx context.Context, kind string) {
	m.SideEffects.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordMissingTarget records a mouth shape missing from the avatar model.
func (m *Metrics) RecordMissingTarget(ctx context.Context, target string) {
	m.MissingVisemeTargets.Add(ctx, 1, metric.WithAttributes(attribute.String("target", target)))
}
