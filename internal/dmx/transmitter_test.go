// SPDX-License-Identifier: MIT
package dmx

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"beatlight/internal/observe/observetest"

	"go.opentelemetry.io/otel/attribute"
)

// scriptedSink fails or stalls on selected calls.
type scriptedSink struct {
	calls  atomic.Int64
	failN  int64         // First failN sends return an error.
	stallN int64         // Sends numbered <= stallN block for stall.
	stall  time.Duration // How long a stalled send takes.
}

func (s *scriptedSink) Send(frame []byte) error {
	n := s.calls.Add(1)
	if n <= s.failN {
		return errors.New("usb adapter reset")
	}
	if n <= s.stallN {
		time.Sleep(s.stall)
	}
	return nil
}

func (s *scriptedSink) Close() error { return nil }
func (s *scriptedSink) Name() string { return "scripted" }

// sleepRecorder replaces time.Sleep and returns immediately.
type sleepRecorder struct {
	mu    sync.Mutex
	calls []time.Duration
}

func (r *sleepRecorder) sleep(d time.Duration) {
	r.mu.Lock()
	r.calls = append(r.calls, d)
	r.mu.Unlock()
	time.Sleep(time.Millisecond)
}

func (r *sleepRecorder) snapshot() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.calls...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestTransmitterFrames(t *testing.T) {
	u := newTestUniverse(t, 64)
	_ = u.SetChannel(10, 255)
	sink := NewVirtualSink()

	tx, err := NewTransmitter(u, sink, 44, nil)
	if err != nil {
		t.Fatal(err)
	}
	tx.Start()
	tx.Start() // no-op while running
	waitFor(t, func() bool { return sink.Frames() >= 3 })
	if err := tx.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	last := sink.Last()
	if len(last) != 65 || last[0] != StartCode || last[10] != 255 {
		t.Errorf("last frame len %d, start %#x, ch10 %d", len(last), last[0], last[10])
	}
	if err := tx.Stop(); err != nil {
		t.Errorf("second Stop: %v", err)
	}
}

func TestTransmitterOverrunDoesNotShortenLaterFrames(t *testing.T) {
	u := newTestUniverse(t, 8)
	const rate = 40.0 // 25 ms period
	sink := &scriptedSink{stallN: 1, stall: 40 * time.Millisecond}

	metrics, reader := observetest.New(t)
	tx, err := NewTransmitter(u, sink, rate, metrics)
	if err != nil {
		t.Fatal(err)
	}
	rec := &sleepRecorder{}
	tx.sleep = rec.sleep

	tx.Start()
	waitFor(t, func() bool { return len(rec.snapshot()) >= 4 })
	if err := tx.Stop(); err != nil {
		t.Fatal(err)
	}

	stats := tx.Stats()
	if stats.Overruns < 1 {
		t.Fatalf("overruns = %d, want at least 1", stats.Overruns)
	}
	// The stalled first cycle skips its sleep; every later cycle sleeps
	// close to a full period instead of compensating.
	for i, d := range rec.snapshot() {
		if d < tx.Period()/2 || d > tx.Period() {
			t.Errorf("sleep %d = %s, want about %s", i, d, tx.Period())
		}
	}
	if got := reader.Count("beatlight.dmx.overruns"); got != int64(stats.Overruns) {
		t.Errorf("overrun metric = %d, stats = %d", got, stats.Overruns)
	}
}

func TestTransmitterKeepsRunningAfterSendErrors(t *testing.T) {
	u := newTestUniverse(t, 8)
	sink := &scriptedSink{failN: 2}

	metrics, reader := observetest.New(t)
	tx, err := NewTransmitter(u, sink, 44, metrics)
	if err != nil {
		t.Fatal(err)
	}
	rec := &sleepRecorder{}
	tx.sleep = rec.sleep

	tx.Start()
	waitFor(t, func() bool { return tx.Stats().Frames >= 2 })
	if err := tx.Stop(); err != nil {
		t.Fatal(err)
	}

	stats := tx.Stats()
	if stats.Errors != 2 {
		t.Errorf("errors = %d, want 2", stats.Errors)
	}
	if stats.LastError == "" {
		t.Error("last error not recorded")
	}
	sleeps := rec.snapshot()
	if sleeps[0] != errorBackoff || sleeps[1] != errorBackoff {
		t.Errorf("first sleeps = %v, want two %s backoffs", sleeps[:2], errorBackoff)
	}
	if got := reader.Count("beatlight.dmx.errors", attribute.String("sink", "scripted")); got != 2 {
		t.Errorf("error metric = %d, want 2", got)
	}
}

func TestTransmitterStopBeforeStart(t *testing.T) {
	u := newTestUniverse(t, 8)
	tx, err := NewTransmitter(u, NewVirtualSink(), 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	if tx.Period() != time.Second/30 {
		t.Errorf("default period = %s", tx.Period())
	}
	if err := tx.Stop(); err != nil {
		t.Errorf("Stop before Start: %v", err)
	}
}
