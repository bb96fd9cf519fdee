// SPDX-License-Identifier: MIT
package dmx

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"beatlight/internal/log"
	"beatlight/internal/observe"
)

const (
	// DefaultFrameRate is the transmit cadence in frames per second.
	DefaultFrameRate = 30.0

	// errorBackoff is the pause after a failed send.
	errorBackoff = 100 * time.Millisecond

	// stopTimeout bounds how long Stop waits for the loop to exit.
	stopTimeout = 2 * time.Second
)

// ErrStopTimeout is returned by Stop when the loop does not exit in time.
var ErrStopTimeout = errors.New("dmx: transmitter did not stop in time")

// Transmitter snapshots a Universe and sends it to a Sink at a fixed rate
// from its own goroutine. A cycle that overruns its period is followed
// immediately by the next one; later periods are never shortened to catch up.
type Transmitter struct {
	universe *Universe
	sink     Sink
	period   time.Duration
	metrics  *observe.Metrics

	// sleep is replaced in tests.
	sleep func(time.Duration)

	running  atomic.Bool // Cooperative stop flag checked at the top of each cycle.
	mu       sync.Mutex  // Protects done during Start/Stop.
	done     chan struct{}
	stopOnce sync.Once

	frames    atomic.Uint64
	errors    atomic.Uint64
	overruns  atomic.Uint64
	lastError atomic.Value // string
}

// NewTransmitter creates a transmitter at rate frames per second. A rate of
// zero or less selects DefaultFrameRate. metrics may be nil.
func NewTransmitter(u *Universe, sink Sink, rate float64, metrics *observe.Metrics) (*Transmitter, error) {
	if u == nil {
		return nil, fmt.Errorf("dmx: transmitter universe cannot be nil")
	}
	if sink == nil {
		return nil, fmt.Errorf("dmx: transmitter sink cannot be nil")
	}
	if rate <= 0 {
		rate = DefaultFrameRate
		log.Warnf("DMX: invalid frame rate, defaulting to %.0f Hz", rate)
	}
	return &Transmitter{
		universe: u,
		sink:     sink,
		period:   time.Duration(float64(time.Second) / rate),
		metrics:  metrics,
		sleep:    time.Sleep,
	}, nil
}

// Period returns the frame period.
func (t *Transmitter) Period() time.Duration { return t.period }

// Start launches the transmit goroutine. Calling Start on a running
// transmitter is a no-op.
func (t *Transmitter) Start() {
	t.mu.Lock()
	if t.running.Load() {
		t.mu.Unlock()
		log.Warnf("DMX: Start called but transmitter already running")
		return
	}
	t.running.Store(true)
	t.done = make(chan struct{})
	t.stopOnce = sync.Once{}
	done := t.done
	t.mu.Unlock()

	go func() {
		defer close(done)
		log.Infof("DMX: transmitting to %s every %s", t.sink.Name(), t.period)
		t.loop()
	}()
}

func (t *Transmitter) loop() {
	ctx := context.Background()
	frame := make([]byte, 0, t.universe.Size()+1)

	for t.running.Load() {
		start := time.Now()
		frame = t.universe.Frame(frame)

		if err := t.sink.Send(frame); err != nil {
			t.errors.Add(1)
			t.lastError.Store(err.Error())
			if t.metrics != nil {
				t.metrics.RecordTransmitError(ctx, t.sink.Name())
			}
			log.Warnf("DMX: send failed: %v", err)
			t.sleep(errorBackoff)
			continue
		}

		elapsed := time.Since(start)
		t.frames.Add(1)
		if t.metrics != nil {
			t.metrics.RecordFrame(ctx, t.sink.Name(), elapsed.Seconds())
		}

		if remaining := t.period - elapsed; remaining > 0 {
			t.sleep(remaining)
			continue
		}
		t.overruns.Add(1)
		if t.metrics != nil {
			t.metrics.FrameOverruns.Add(ctx, 1)
		}
		log.Warnf("DMX: frame overrun, took %s of %s budget", elapsed, t.period)
	}
}

// Stop clears the run flag and waits up to two seconds for the loop to
// finish its current cycle. It is safe to call more than once.
func (t *Transmitter) Stop() error {
	t.mu.Lock()
	done := t.done
	if done == nil {
		t.mu.Unlock()
		return nil
	}
	t.stopOnce.Do(func() {
		t.running.Store(false)
	})
	t.mu.Unlock()

	select {
	case <-done:
		log.Infof("DMX: transmitter stopped after %d frames", t.frames.Load())
		return nil
	case <-time.After(stopTimeout):
		return ErrStopTimeout
	}
}

// Run starts the transmitter and stops it when ctx is cancelled.
func (t *Transmitter) Run(ctx context.Context) error {
	t.Start()
	<-ctx.Done()
	return t.Stop()
}

// Stats is a point-in-time view of the transmit counters.
type Stats struct {
	Sink      string `json:"sink"`
	Frames    uint64 `json:"frames_sent"`
	Errors    uint64 `json:"transmit_errors"`
	Overruns  uint64 `json:"overruns"`
	LastError string `json:"last_error,omitempty"`
}

// Stats returns the current counters.
func (t *Transmitter) Stats() Stats {
	last, _ := t.lastError.Load().(string)
	return Stats{
		Sink:      t.sink.Name(),
		Frames:    t.frames.Load(),
		Errors:    t.errors.Load(),
		Overruns:  t.overruns.Load(),
		LastError: last,
	}
}
