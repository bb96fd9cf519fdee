// SPDX-License-Identifier: MIT
package analysis

import (
	"fmt"
	"math"
	"slices"
	"sync/atomic"
	"time"

	"beatlight/internal/log"

	"gonum.org/v1/gonum/stat"
)

// Method selects the onset signal.
type Method int

const (
	// SpectralFlux sums the positive frame-to-frame rise of log10(1+|X|)
	// over the band.
	SpectralFlux Method = iota
	// BandEnergy uses the mean band magnitude plus its positive rise.
	BandEnergy
)

// ParseMethod maps "flux" and "energy" to a Method.
func ParseMethod(name string) (Method, error) {
	switch name {
	case "", "flux":
		return SpectralFlux, nil
	case "energy":
		return BandEnergy, nil
	}
	return SpectralFlux, fmt.Errorf("unknown detection method %q", name)
}

// ThresholdStat selects the statistic over the onset history.
type ThresholdStat int

const (
	Median ThresholdStat = iota
	Mean
)

// ParseThresholdStat maps "median" and "mean" to a ThresholdStat.
func ParseThresholdStat(name string) (ThresholdStat, error) {
	switch name {
	case "", "median":
		return Median, nil
	case "mean":
		return Mean, nil
	}
	return Median, fmt.Errorf("unknown threshold statistic %q", name)
}

// BeatFunc receives the peak-aligned time of each accepted beat. It is
// called on the capture goroutine and must return quickly.
type BeatFunc func(at time.Time)

// BeatEvent is an accepted onset.
type BeatEvent struct {
	At       time.Time // Capture time plus the offset of the loudest sample.
	Strength float64   // Onset signal divided by the threshold it beat.
}

// DetectorConfig tunes a Detector.
type DetectorConfig struct {
	SampleRate    float64
	FrameSize     int
	Method        Method
	ThresholdStat ThresholdStat
	BandLowHz     float64
	BandHighHz    float64
	History       int // Onset values kept.
	MinHistory    int // Values required before detection starts.
	Multiplier    float64
	Floor         float64
	Refractory    time.Duration
	Window        WindowFunc
}

// DefaultDetectorConfig returns the tuning used for 44.1 kHz, 2048-sample
// frames.
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		SampleRate:    44100,
		FrameSize:     2048,
		Method:        SpectralFlux,
		ThresholdStat: Median,
		BandLowHz:     20,
		BandHighHz:    200,
		History:       40,
		MinHistory:    20,
		Multiplier:    2.5,
		Floor:         0.1,
		Refractory:    250 * time.Millisecond,
		Window:        Rectangular,
	}
}

// Detector turns a stream of frames into beat events and a volume level.
// PushFrame must be called from a single goroutine; CurrentVolume may be
// called from any.
type Detector struct {
	cfg      DetectorConfig
	spectrum *Spectrum
	lo, hi   int // Band bin range, inclusive.

	prevLog  []float64
	havePrev bool
	prevMean float64

	history []float64 // Ring buffer of onset values.
	filled  int
	next    int
	scratch []float64 // Sorted copy for the median.

	lastBeat time.Time
	haveBeat bool

	volume atomic.Uint64 // math.Float64bits of the latest peak level.
}

// NewDetector validates cfg and preallocates every buffer.
func NewDetector(cfg DetectorConfig) (*Detector, error) {
	if cfg.History <= 0 || cfg.MinHistory <= 0 || cfg.MinHistory > cfg.History {
		return nil, fmt.Errorf("min history %d must be in [1, %d]", cfg.MinHistory, cfg.History)
	}
	if cfg.Refractory <= 0 {
		return nil, fmt.Errorf("refractory interval must be positive, got %s", cfg.Refractory)
	}
	if cfg.Multiplier <= 0 {
		return nil, fmt.Errorf("threshold multiplier must be positive, got %f", cfg.Multiplier)
	}

	spectrum, err := NewSpectrum(cfg.FrameSize, cfg.SampleRate, cfg.Window)
	if err != nil {
		return nil, err
	}
	lo, hi, ok := spectrum.BandBins(cfg.BandLowHz, cfg.BandHighHz)
	if !ok {
		return nil, fmt.Errorf("band %.1f-%.1f Hz contains no FFT bins at size %d", cfg.BandLowHz, cfg.BandHighHz, spectrum.Size())
	}

	log.Infof("Analysis: beat detector on bins %d-%d (%.1f-%.1f Hz), history %d, refractory %s",
		lo, hi, spectrum.BinFrequency(lo), spectrum.BinFrequency(hi), cfg.History, cfg.Refractory)

	return &Detector{
		cfg:      cfg,
		spectrum: spectrum,
		lo:       lo,
		hi:       hi,
		prevLog:  make([]float64, hi-lo+1),
		history:  make([]float64, cfg.History),
		scratch:  make([]float64, 0, cfg.History),
	}, nil
}

// PushFrame analyses one frame captured at capturedAt. Empty frames are
// ignored. The returned event is valid only when ok is true.
func (d *Detector) PushFrame(samples []int16, capturedAt time.Time) (BeatEvent, bool) {
	if len(samples) == 0 {
		return BeatEvent{}, false
	}

	peakIdx, peak := peakSample(samples)
	d.volume.Store(math.Float64bits(float64(peak) / 32768.0))

	mags := d.spectrum.Compute(samples)
	signal := d.onset(mags[d.lo : d.hi+1])
	d.push(signal)

	if d.filled < d.cfg.MinHistory {
		return BeatEvent{}, false
	}

	threshold := d.threshold()
	if signal <= threshold {
		return BeatEvent{}, false
	}

	at := capturedAt.Add(time.Duration(float64(peakIdx) / d.cfg.SampleRate * float64(time.Second)))
	if d.haveBeat && at.Sub(d.lastBeat) <= d.cfg.Refractory {
		return BeatEvent{}, false
	}
	d.lastBeat = at
	d.haveBeat = true

	strength := math.Inf(1)
	if threshold > 0 {
		strength = signal / threshold
	}
	return BeatEvent{At: at, Strength: strength}, true
}

// CurrentVolume returns max|sample|/32768 of the latest non-empty frame.
func (d *Detector) CurrentVolume() float64 {
	return math.Float64frombits(d.volume.Load())
}

// Reset clears history and refractory state, for example after an input
// device change.
func (d *Detector) Reset() {
	d.havePrev = false
	d.prevMean = 0
	d.filled = 0
	d.next = 0
	d.haveBeat = false
	d.lastBeat = time.Time{}
}

func (d *Detector) onset(band []float64) float64 {
	switch d.cfg.Method {
	case BandEnergy:
		mean := stat.Mean(band, nil)
		signal := mean + max(0, mean-d.prevMean)
		if !d.havePrev {
			signal = mean
		}
		d.prevMean = mean
		d.havePrev = true
		return signal
	default:
		flux := 0.0
		for i, m := range band {
			lm := math.Log10(m + 1)
			if d.havePrev {
				flux += max(0, lm-d.prevLog[i])
			}
			d.prevLog[i] = lm
		}
		d.havePrev = true
		return flux
	}
}

func (d *Detector) push(v float64) {
	d.history[d.next] = v
	d.next = (d.next + 1) % len(d.history)
	if d.filled < len(d.history) {
		d.filled++
	}
}

func (d *Detector) threshold() float64 {
	values := d.history[:d.filled]
	var centre float64
	switch d.cfg.ThresholdStat {
	case Mean:
		centre = stat.Mean(values, nil)
	default:
		d.scratch = append(d.scratch[:0], values...)
		slices.Sort(d.scratch)
		centre = stat.Quantile(0.5, stat.Empirical, d.scratch, nil)
		if n := len(d.scratch); n%2 == 0 {
			centre = (centre + d.scratch[n/2]) / 2
		}
	}
	return centre*d.cfg.Multiplier + d.cfg.Floor
}

// peakSample returns the index and magnitude of the loudest sample.
func peakSample(samples []int16) (int, int32) {
	idx, peak := 0, int32(-1)
	for i, s := range samples {
		a := int32(s)
		// Branchless absolute value.
		mask := a >> 31
		a = (a ^ mask) - mask
		if a > peak {
			idx, peak = i, a
		}
	}
	return idx, peak
}
