// Package observe provides observability primitives for pushtalk:
// OpenTelemetry metrics, tracing spans around recognition and injection,
// trace-aware structured logging, and HTTP middleware for the optional
// status listener.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is installed by [InitProvider] so that metrics can be
// scraped via /metrics. A package-level default [Metrics] instance
// ([DefaultMetrics]) is used when no listener is configured; tests should use
// [NewMetrics] with a custom [metric.MeterProvider] to avoid cross-test
// pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all pushtalk metrics.
const meterName = "github.com/MrWong99/pushtalk"

// Session end reasons, used as the "reason" attribute of [Metrics.Sessions].
const (
	EndReleased = "released"
	EndTimeout  = "timeout"
	EndShutdown = "shutdown"
)

// Transcription outcomes, used as the "outcome" attribute of
// [Metrics.Transcripts].
const (
	OutcomeInjected = "injected"
	OutcomeNoSpeech = "no_speech"
	OutcomeNoAudio  = "no_audio"
	OutcomeError    = "error"
)

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Hotkey ---

	// KeyEdges counts hotkey edges read from the devices. Attributes:
	//   attribute.String("kind", "pressed"|"released"|"repeat")
	KeyEdges metric.Int64Counter

	// DroppedRecords counts raw device records that could not be decoded.
	// Attribute: attribute.String("reason", ...)
	DroppedRecords metric.Int64Counter

	// DevicesLost counts input devices removed from the poll set.
	DevicesLost metric.Int64Counter

	// --- Recording ---

	// Sessions counts finished recording sessions. Attribute:
	//   attribute.String("reason", EndReleased|EndTimeout|EndShutdown)
	Sessions metric.Int64Counter

	// ForcedReleases counts sessions ended by the release timer.
	ForcedReleases metric.Int64Counter

	// ActiveSessions is 1 while a recording is in progress.
	ActiveSessions metric.Int64UpDownCounter

	// SessionDuration tracks how long the key was held.
	SessionDuration metric.Float64Histogram

	// AudioFrames counts captured audio frames.
	AudioFrames metric.Int64Counter

	// AudioReadErrors counts capture goroutines that ended on a read error.
	AudioReadErrors metric.Int64Counter

	// AudioOpenErrors counts failures to open the audio source on press.
	AudioOpenErrors metric.Int64Counter

	// --- Transcription ---

	// RecognitionDuration tracks AcceptWaveform+FinalResult latency.
	RecognitionDuration metric.Float64Histogram

	// InjectionDuration tracks text injection latency.
	InjectionDuration metric.Float64Histogram

	// Transcripts counts delivered sessions by outcome. Attribute:
	//   attribute.String("outcome", OutcomeInjected|OutcomeNoSpeech|...)
	Transcripts metric.Int64Counter

	// InjectionErrors counts failed text injections.
	InjectionErrors metric.Int64Counter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks status listener latency by mux route and
	// response status.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for
// recognition and injection latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// holdBuckets covers key hold durations from a tap to a long dictation.
var holdBuckets = []float64{
	0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Counters.
	if met.KeyEdges, err = m.Int64Counter("pushtalk.hotkey.edges",
		metric.WithDescription("Hotkey edges read from input devices by kind."),
	); err != nil {
		return nil, err
	}
	if met.DroppedRecords, err = m.Int64Counter("pushtalk.hotkey.dropped_records",
		metric.WithDescription("Raw input records discarded by reason."),
	); err != nil {
		return nil, err
	}
	if met.DevicesLost, err = m.Int64Counter("pushtalk.hotkey.devices_lost",
		metric.WithDescription("Input devices removed after a hang-up or read error."),
	); err != nil {
		return nil, err
	}
	if met.Sessions, err = m.Int64Counter("pushtalk.sessions",
		metric.WithDescription("Finished recording sessions by end reason."),
	); err != nil {
		return nil, err
	}
	if met.ForcedReleases, err = m.Int64Counter("pushtalk.forced_releases",
		metric.WithDescription("Sessions ended by the release timer."),
	); err != nil {
		return nil, err
	}
	if met.AudioFrames, err = m.Int64Counter("pushtalk.audio.frames",
		metric.WithDescription("Captured audio frames."),
	); err != nil {
		return nil, err
	}
	if met.AudioReadErrors, err = m.Int64Counter("pushtalk.audio.read_errors",
		metric.WithDescription("Capture loops ended by a read error."),
	); err != nil {
		return nil, err
	}
	if met.AudioOpenErrors, err = m.Int64Counter("pushtalk.audio.open_errors",
		metric.WithDescription("Failures to open the audio source."),
	); err != nil {
		return nil, err
	}
	if met.Transcripts, err = m.Int64Counter("pushtalk.transcripts",
		metric.WithDescription("Delivered sessions by outcome."),
	); err != nil {
		return nil, err
	}
	if met.InjectionErrors, err = m.Int64Counter("pushtalk.inject.errors",
		metric.WithDescription("Failed text injections."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("pushtalk.active_sessions",
		metric.WithDescription("1 while a recording is in progress."),
	); err != nil {
		return nil, err
	}

	// Histograms.
	if met.SessionDuration, err = m.Float64Histogram("pushtalk.session.duration",
		metric.WithDescription("Time between session start and stop."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(holdBuckets...),
	); err != nil {
		return nil, err
	}
	if met.RecognitionDuration, err = m.Float64Histogram("pushtalk.stt.duration",
		metric.WithDescription("Latency of speech recognition."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.InjectionDuration, err = m.Float64Histogram("pushtalk.inject.duration",
		metric.WithDescription("Latency of text injection."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("pushtalk.http.request.duration",
		metric.WithDescription("Status listener request latency by route and status."),
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

// RecordEdge increments the edge counter for kind.
func (m *Metrics) RecordEdge(ctx context.Context, kind string) {
	m.KeyEdges.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordDroppedRecord increments the dropped record counter.
func (m *Metrics) RecordDroppedRecord(ctx context.Context, reason string) {
	m.DroppedRecords.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordSessionStart marks a recording as active.
func (m *Metrics) RecordSessionStart(ctx context.Context) {
	m.ActiveSessions.Add(ctx, 1)
}

// RecordSessionEnd records the end of a recording: the end reason, the hold
// duration, the number of captured frames, and whether capture ended on a
// read error.
func (m *Metrics) RecordSessionEnd(ctx context.Context, reason string, held time.Duration, frames int, readErr bool) {
	m.ActiveSessions.Add(ctx, -1)
	m.Sessions.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
	if reason == EndTimeout {
		m.ForcedReleases.Add(ctx, 1)
	}
	m.SessionDuration.Record(ctx, held.Seconds())
	m.AudioFrames.Add(ctx, int64(frames))
	if readErr {
		m.AudioReadErrors.Add(ctx, 1)
	}
}

// RecordTranscript increments the transcript counter for outcome.
func (m *Metrics) RecordTranscript(ctx context.Context, outcome string) {
	m.Transcripts.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
