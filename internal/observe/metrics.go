// Package observe records capture metrics through the OpenTelemetry metrics
// API. Tests build [Metrics] from their own MeterProvider; the binary uses the
// Prometheus bridge from [InitProvider].
package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/petems/voxgate"

// Metrics holds the instruments used by the recorder and the app loop.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Recordings counts terminal outcomes. Attributes: outcome, reason.
	Recordings metric.Int64Counter

	// RecordingDuration observes finalized artifact length in seconds.
	RecordingDuration metric.Float64Histogram

	// Frames counts classified frames. Attribute: voiced.
	Frames metric.Int64Counter

	// CaptureErrors counts fatal capture failures. Attribute: kind.
	CaptureErrors metric.Int64Counter

	// TranscribeDuration observes transcription latency in seconds.
	TranscribeDuration metric.Float64Histogram
}

// NewMetrics creates all instruments from mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	meter := mp.Meter(meterName)
	m := &Metrics{}
	var err error

	if m.Recordings, err = meter.Int64Counter("voxgate.recordings",
		metric.WithDescription("Recordings by terminal outcome and stop reason."),
	); err != nil {
		return nil, err
	}
	if m.RecordingDuration, err = meter.Float64Histogram("voxgate.recording.duration",
		metric.WithDescription("Length of finalized recordings."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	if m.Frames, err = meter.Int64Counter("voxgate.frames",
		metric.WithDescription("Classified capture frames."),
	); err != nil {
		return nil, err
	}
	if m.CaptureErrors, err = meter.Int64Counter("voxgate.capture.errors",
		metric.WithDescription("Fatal capture failures by kind."),
	); err != nil {
		return nil, err
	}
	if m.TranscribeDuration, err = meter.Float64Histogram("voxgate.transcribe.duration",
		metric.WithDescription("Transcription latency."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	return m, nil
}

// Default builds Metrics on the global MeterProvider.
func Default() *Metrics {
	m, err := NewMetrics(otel.GetMeterProvider())
	if err != nil {
		return nil
	}
	return m
}

// RecordOutcome counts one terminal outcome and, for completed recordings,
// its duration.
func (m *Metrics) RecordOutcome(ctx context.Context, outcome, reason string, d time.Duration) {
	if m == nil {
		return
	}
	m.Recordings.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome),
		attribute.String("reason", reason),
	))
	if d > 0 {
		m.RecordingDuration.Record(ctx, d.Seconds())
	}
}

// RecordFrame counts one classified frame.
func (m *Metrics) RecordFrame(ctx context.Context, voiced bool) {
	if m == nil {
		return
	}
	m.Frames.Add(ctx, 1, metric.WithAttributes(attribute.Bool("voiced", voiced)))
}

// RecordCaptureError counts one fatal failure.
func (m *Metrics) RecordCaptureError(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.CaptureErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordTranscribe observes one transcription call.
func (m *Metrics) RecordTranscribe(ctx context.Context, d time.Duration) {
	if m == nil {
		return
	}
	m.TranscribeDuration.Record(ctx, d.Seconds())
}
