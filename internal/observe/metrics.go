// Package observe holds the OpenTelemetry instruments for the lighting
// pipeline and the Prometheus bridge that exposes them on /metrics.
//
// Components take a *Metrics explicitly. Tests build one with [NewMetrics]
// over a ManualReader; production code uses [DefaultMetrics] after
// [InitProvider] has installed the global provider.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "beatlight"

// Beat sources, used as the "source" attribute on BeatsProcessed.
const (
	SourceAudio  = "audio"
	SourceBPM    = "bpm"
	SourceManual = "manual"
)

// Metrics holds all metric instruments. The OTel types are safe for
// concurrent use.
type Metrics struct {
	// BeatsProcessed counts beats the lighting engine acted on, by "source".
	BeatsProcessed metric.Int64Counter

	// BeatsDetected counts onsets accepted by the detector.
	BeatsDetected metric.Int64Counter

	// AudioReadErrors counts dropped audio frames.
	AudioReadErrors metric.Int64Counter

	// AudioVolume is the peak level of the latest frame in [0,1].
	AudioVolume metric.Float64Gauge

	// PresetSwitches counts successful preset changes, by "preset".
	PresetSwitches metric.Int64Counter

	// FramesSent counts DMX frames handed to the sink, by "sink".
	FramesSent metric.Int64Counter

	// TransmitErrors counts failed sends, by "sink".
	TransmitErrors metric.Int64Counter

	// FrameOverruns counts transmit cycles that exceeded the frame period.
	FrameOverruns metric.Int64Counter

	// FrameDuration is the time spent framing and writing one frame.
	FrameDuration metric.Float64Histogram
}

// frameBuckets are in seconds; a 512-channel frame at 250 kbit/s takes ~23 ms.
var frameBuckets = []float64{
	0.0005, 0.001, 0.0025, 0.005, 0.01, 0.02, 0.025, 0.033, 0.05, 0.1,
}

// NewMetrics creates every instrument on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Detection.
	if met.BeatsProcessed, err = m.Int64Counter("beatlight.beats.processed",
		metric.WithDescription("Beats acted on by the lighting engine, by source."),
	); err != nil {
		return nil, err
	}
	if met.BeatsDetected, err = m.Int64Counter("beatlight.beats.detected",
		metric.WithDescription("Onsets accepted by the beat detector."),
	); err != nil {
		return nil, err
	}
	if met.AudioReadErrors, err = m.Int64Counter("beatlight.audio.read_errors",
		metric.WithDescription("Audio frames dropped because the read failed."),
	); err != nil {
		return nil, err
	}
	if met.AudioVolume, err = m.Float64Gauge("beatlight.audio.volume",
		metric.WithDescription("Peak level of the latest audio frame."),
		metric.WithUnit("1"),
	); err != nil {
		return nil, err
	}

	// Lighting.
	if met.PresetSwitches, err = m.Int64Counter("beatlight.preset.switches",
		metric.WithDescription("Successful preset switches, by preset."),
	); err != nil {
		return nil, err
	}

	// Transport.
	if met.FramesSent, err = m.Int64Counter("beatlight.dmx.frames",
		metric.WithDescription("DMX frames sent, by sink."),
	); err != nil {
		return nil, err
	}
	if met.TransmitErrors, err = m.Int64Counter("beatlight.dmx.errors",
		metric.WithDescription("Failed DMX frame sends, by sink."),
	); err != nil {
		return nil, err
	}
	if met.FrameOverruns, err = m.Int64Counter("beatlight.dmx.overruns",
		metric.WithDescription("Transmit cycles that ran past the frame period."),
	); err != nil {
		return nil, err
	}
	if met.FrameDuration, err = m.Float64Histogram("beatlight.dmx.frame.duration",
		metric.WithDescription("Time to frame and write one DMX frame."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(frameBuckets...),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level instance built on
// otel.GetMeterProvider. Panics if instrument creation fails.
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

// RecordBeat counts a beat the engine processed.
func (m *Metrics) RecordBeat(ctx context.Context, source string) {
	m.BeatsProcessed.Add(ctx, 1, metric.WithAttributes(attribute.String("source", source)))
}

// RecordPresetSwitch counts a preset change.
func (m *Metrics) RecordPresetSwitch(ctx context.Context, preset string) {
	m.PresetSwitches.Add(ctx, 1, metric.WithAttributes(attribute.String("preset", preset)))
}

// RecordFrame records one successful send and how long it took.
func (m *Metrics) RecordFrame(ctx context.Context, sink string, seconds float64) {
	m.FramesSent.Add(ctx, 1, metric.WithAttributes(attribute.String("sink", sink)))
	m.FrameDuration.Record(ctx, seconds)
}

// RecordTransmitError counts one failed send.
func (m *Metrics) RecordTransmitError(ctx context.Context, sink string) {
	m.TransmitErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("sink", sink)))
}
