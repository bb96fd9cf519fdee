// SPDX-License-Identifier: MIT

/*
Package app wires the show together and owns its lifecycle.

Loops, each on its own goroutine under one errgroup:
  - capture: audio source -> detector -> engine.OnBeat (optionally teeing to a recorder)
  - tick: engine.Update on a fixed interval
  - transmit: universe -> sink at the DMX frame rate
  - control: HTTP surface, mDNS, MIDI and TUI when enabled

Cancelling the context stops every loop; shutdown then blacks out the rig,
sends one last frame and closes the outputs.
*/
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"beatlight/internal/analysis"
	"beatlight/internal/audio"
	"beatlight/internal/config"
	"beatlight/internal/control"
	"beatlight/internal/dmx"
	"beatlight/internal/lighting"
	"beatlight/internal/log"
	"beatlight/internal/midi"
	"beatlight/internal/observe"
	"beatlight/internal/tui"
	"beatlight/pkg/build"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Options carries the dependencies that main resolves before New.
type Options struct {
	Metrics        *observe.Metrics
	MetricsHandler http.Handler // nil disables /metrics
	TUI            bool

	// Source overrides the configured audio input; tests use it.
	Source audio.Source
	// Sink overrides the configured DMX output; tests use it.
	Sink dmx.Sink
}

// App is the running show. It implements control.Controller.
type App struct {
	cfg      *config.Config
	metrics  *observe.Metrics
	instance string

	universe *dmx.Universe
	sink     dmx.Sink
	tx       *dmx.Transmitter
	engine   *lighting.Engine

	source   audio.Source
	detector *analysis.Detector
	recorder *audio.Recorder
	onBeat   analysis.BeatFunc

	server *control.Server
	mapper *midi.Mapper
	tui    bool

	audioErr  atomic.Value // string
	closeOnce sync.Once
	now       func() time.Time
}

var _ control.Controller = (*App)(nil)

// New builds every component from cfg. Only an output that cannot be
// opened is fatal; audio trouble leaves the show running on its BPM clock.
func New(cfg *config.Config, opts Options) (*App, error) {
	if opts.Metrics == nil {
		opts.Metrics = observe.DefaultMetrics()
	}
	a := &App{
		cfg:      cfg,
		metrics:  opts.Metrics,
		instance: uuid.NewString(),
		tui:      opts.TUI,
		now:      time.Now,
	}

	var err error
	if a.universe, err = dmx.NewUniverse(cfg.DMX.UniverseSize); err != nil {
		return nil, err
	}

	a.sink = opts.Sink
	if a.sink == nil {
		if a.sink, err = openSink(cfg.DMX); err != nil {
			return nil, err
		}
	}
	if a.tx, err = dmx.NewTransmitter(a.universe, a.sink, cfg.DMX.FrameRate, a.metrics); err != nil {
		a.sink.Close()
		return nil, err
	}

	if a.engine, err = newEngine(cfg.Lighting, a.universe, a.metrics); err != nil {
		a.sink.Close()
		return nil, err
	}
	a.onBeat = a.engine.OnBeat

	a.source = opts.Source
	if a.source == nil {
		a.source, err = openSource(cfg.Audio)
		if err != nil {
			log.Errorf("Audio: %v; continuing without audio input", err)
			a.audioErr.Store(err.Error())
		}
	}
	if a.source != nil {
		if err := a.setupAnalysis(); err != nil {
			a.closeOutputs()
			return nil, err
		}
	}

	if cfg.Control.ListenAddr != "" {
		var metricsHandler http.Handler
		if cfg.Control.Metrics {
			metricsHandler = opts.MetricsHandler
		}
		a.server = control.NewServer(a, control.Options{
			Addr:           cfg.Control.ListenAddr,
			StatusInterval: cfg.Control.StatusInterval,
			Metrics:        metricsHandler,
			Checkers:       a.checkers(),
		})
	}

	if cfg.MIDI.Enabled {
		if a.mapper, err = midi.NewMapper(a, cfg.MIDI.Mapping, cfg.MIDI.StrobeNote, cfg.Lighting.Preset); err != nil {
			a.closeOutputs()
			return nil, err
		}
	}

	return a, nil
}

func openSink(c config.DMXConfig) (dmx.Sink, error) {
	opts := dmx.SinkOptions{
		Port:    c.Port,
		Framing: c.Framing,
		Timing: dmx.Timing{
			Break:     c.BreakTime,
			MAB:       c.MABTime,
			BreakBaud: c.BreakBaud,
		},
		VirtualFallback: c.VirtualFallback,
	}
	if c.ArtNet.Enabled {
		opts.ArtNetTarget = c.ArtNet.Target
		opts.ArtNetUniverse = uint16(c.ArtNet.Universe)
	}
	return dmx.OpenSink(opts)
}

func newEngine(c config.LightingConfig, u *dmx.Universe, m *observe.Metrics) (*lighting.Engine, error) {
	fixtures := make([]lighting.Fixture, 0, len(c.Fixtures))
	for _, f := range c.Fixtures {
		kind, err := lighting.ParseFixtureKind(f.Kind)
		if err != nil {
			return nil, fmt.Errorf("fixture %s: %w", f.Name, err)
		}
		fixtures = append(fixtures, lighting.Fixture{Name: f.Name, Kind: kind, Address: f.Address})
	}
	return lighting.NewEngine(u, lighting.Options{
		Fixtures:      fixtures,
		Preset:        c.Preset,
		BPM:           c.BPM,
		AudioReactive: c.AudioReactive,
		Debounce:      c.Debounce,
		Metrics:       m,
	})
}

// openSource returns a nil interface on failure, never a typed nil pointer.
func openSource(c config.AudioConfig) (audio.Source, error) {
	if c.InputFile != "" {
		wav, err := audio.OpenWav(c.InputFile, audio.WavOptions{FrameSize: c.FramesPerBuffer, Pace: true})
		if err != nil {
			return nil, err
		}
		return wav, nil
	}
	capture, err := audio.OpenCapture(c.InputDevice, c.SampleRate, c.FramesPerBuffer, c.LowLatency)
	if err != nil {
		return nil, err
	}
	return capture, nil
}

func (a *App) setupAnalysis() error {
	dc, err := detectorConfig(a.cfg.Detector, a.source.SampleRate(), a.cfg.Audio.FramesPerBuffer)
	if err != nil {
		return err
	}
	if a.detector, err = analysis.NewDetector(dc); err != nil {
		return fmt.Errorf("detector: %w", err)
	}

	if a.cfg.Recording.Enabled {
		a.recorder, err = audio.StartRecording(a.cfg.Recording.OutputFile, int(a.source.SampleRate()), a.cfg.Audio.FramesPerBuffer)
		if err != nil {
			return err
		}
		log.Infof("Audio: recording input to %s", a.cfg.Recording.OutputFile)
	}
	return nil
}

func detectorConfig(c config.DetectorConfig, rate float64, frameSize int) (analysis.DetectorConfig, error) {
	method, err := analysis.ParseMethod(c.Method)
	if err != nil {
		return analysis.DetectorConfig{}, err
	}
	stat, err := analysis.ParseThresholdStat(c.ThresholdStat)
	if err != nil {
		return analysis.DetectorConfig{}, err
	}
	window, err := analysis.ParseWindowFunc(c.FFTWindow)
	if err != nil {
		return analysis.DetectorConfig{}, err
	}
	return analysis.DetectorConfig{
		SampleRate:    rate,
		FrameSize:     frameSize,
		Method:        method,
		ThresholdStat: stat,
		BandLowHz:     c.BandLowHz,
		BandHighHz:    c.BandHighHz,
		History:       c.History,
		MinHistory:    c.MinHistory,
		Multiplier:    c.Multiplier,
		Floor:         c.Floor,
		Refractory:    c.Refractory,
		Window:        window,
	}, nil
}

func (a *App) checkers() []control.Checker {
	return []control.Checker{
		{Name: "dmx", Check: func(context.Context) error {
			st := a.tx.Stats()
			if st.Frames == 0 && st.LastError != "" {
				return errors.New(st.LastError)
			}
			return nil
		}},
		{Name: "audio", Check: func(context.Context) error {
			if msg, _ := a.audioErr.Load().(string); msg != "" {
				return errors.New(msg)
			}
			return nil
		}},
	}
}

// Run blocks until ctx is cancelled, the TUI is closed, or a loop fails.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return a.tx.Run(ctx) })
	g.Go(func() error { return a.tickLoop(ctx) })
	if a.source != nil {
		g.Go(func() error { return a.captureLoop(ctx) })
	}

	if a.server != nil {
		if a.server.Port() == 0 {
			if err := a.server.Listen(); err != nil {
				cancel()
				g.Wait()
				a.shutdown()
				return err
			}
		}
		g.Go(func() error { return a.server.Run(ctx) })
		if a.cfg.Control.MDNS {
			g.Go(func() error {
				err := control.Advertise(ctx, control.Advertisement{
					Instance: a.instance,
					Port:     a.server.Port(),
					Version:  build.GetBuildFlags().Version,
				})
				if err != nil {
					log.Warnf("mDNS: %v", err)
				}
				return nil
			})
		}
	}

	if a.mapper != nil {
		listener := midi.NewListener(a.cfg.MIDI.PortMatch, a.mapper)
		g.Go(func() error {
			if err := listener.Run(ctx); err != nil {
				log.Warnf("MIDI: %v", err)
			}
			return nil
		})
	}

	if a.tui {
		g.Go(func() error {
			defer cancel()
			return tui.Run(ctx, a)
		})
	}

	err := g.Wait()
	a.shutdown()
	return err
}

func (a *App) tickLoop(ctx context.Context) error {
	ticker := time.NewTicker(a.cfg.Lighting.TickInterval)
	defer ticker.Stop()

	var failures uint64
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			if err := a.engine.Update(now); err != nil {
				failures++
				if failures == 1 || failures%100 == 0 {
					log.Warnf("Lighting: update failed (%d so far): %v", failures, err)
				}
			}
		}
	}
}

// captureLoop reads until the source ends, ctx is cancelled, or reads keep
// failing. None of those stop the show.
func (a *App) captureLoop(ctx context.Context) error {
	maxFailures := a.cfg.Audio.MaxConsecutiveFailures
	failures := 0

	for ctx.Err() == nil {
		frame, err := a.source.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				log.Infof("Audio: input finished")
				return nil
			}
			a.metrics.AudioReadErrors.Add(ctx, 1)
			failures++
			if errors.Is(err, audio.ErrDevice) || failures >= maxFailures {
				derr := &audio.DeviceError{Device: "input", Err: fmt.Errorf("%d consecutive read failures, last: %w", failures, err)}
				log.Errorf("Audio: %v; lights continue on the BPM clock", derr)
				a.audioErr.Store(derr.Error())
				return nil
			}
			log.Warnf("Audio: %v", err)
			continue
		}
		failures = 0
		a.processFrame(ctx, frame)
	}
	return nil
}

func (a *App) processFrame(ctx context.Context, frame audio.Frame) {
	if a.recorder != nil {
		if err := a.recorder.Write(frame.Samples); err != nil {
			log.Errorf("Audio: %v; recording stopped", err)
			a.recorder.Close()
			a.recorder = nil
		}
	}

	ev, ok := a.detector.PushFrame(frame.Samples, frame.CapturedAt)
	a.metrics.AudioVolume.Record(ctx, a.detector.CurrentVolume())
	if ok {
		a.metrics.BeatsDetected.Add(ctx, 1)
		log.Debugf("Beat: strength %.2f at %s", ev.Strength, ev.At.Format("15:04:05.000"))
		a.onBeat(ev.At)
	}
}

// shutdown blacks out the rig and releases every device. Safe to call twice.
func (a *App) shutdown() {
	a.closeOnce.Do(func() {
		a.universe.Blackout()
		if err := a.sink.Send(a.universe.Frame(nil)); err != nil {
			log.Warnf("DMX: final blackout frame: %v", err)
		}
		a.closeOutputs()
		log.Infof("Shutdown complete")
	})
}

func (a *App) closeOutputs() {
	if a.recorder != nil {
		if err := a.recorder.Close(); err != nil {
			log.Errorf("Audio: %v", err)
		} else {
			log.Infof("Audio: recording saved to %s (%d samples)", a.recorder.Filename(), a.recorder.Samples())
		}
		a.recorder = nil
	}
	if a.source != nil {
		if err := a.source.Close(); err != nil {
			log.Warnf("Audio: close: %v", err)
		}
	}
	if err := a.sink.Close(); err != nil {
		log.Warnf("DMX: close %s: %v", a.sink.Name(), err)
	}
}
