// SPDX-License-Identifier: MIT
package dmx

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

type linkEvent struct {
	op   string
	baud int
	data []byte
	dur  time.Duration
	at   time.Time
}

// fakeLink records every call with the baud rate in force at the time.
type fakeLink struct {
	baud     int
	events   []linkEvent
	writeErr error
	closed   bool
}

func newFakeLink() *fakeLink { return &fakeLink{baud: BaudRate} }

func (l *fakeLink) record(ev linkEvent) {
	ev.baud = l.baud
	ev.at = time.Now()
	l.events = append(l.events, ev)
}

func (l *fakeLink) Write(p []byte) (int, error) {
	if l.writeErr != nil {
		return 0, l.writeErr
	}
	l.record(linkEvent{op: "write", data: append([]byte(nil), p...)})
	return len(p), nil
}

func (l *fakeLink) Break(d time.Duration) error {
	l.record(linkEvent{op: "break", dur: d})
	return nil
}

func (l *fakeLink) SetBaudRate(baud int) error {
	l.baud = baud
	l.record(linkEvent{op: "baud"})
	return nil
}

func (l *fakeLink) Drain() error {
	l.record(linkEvent{op: "drain"})
	return nil
}

func (l *fakeLink) Close() error {
	l.closed = true
	return nil
}

func (l *fakeLink) ops() []string {
	out := make([]string, len(l.events))
	for i, ev := range l.events {
		out[i] = ev.op
	}
	return out
}

func TestBreakFramerTiming(t *testing.T) {
	framer, err := NewFramer("break", DefaultTiming())
	if err != nil {
		t.Fatal(err)
	}
	link := newFakeLink()
	frame := []byte{StartCode, 1, 2, 3}

	if err := framer.Transmit(link, frame); err != nil {
		t.Fatalf("Transmit: %v", err)
	}

	want := []string{"break", "write", "drain"}
	if got := link.ops(); len(got) != len(want) || got[0] != want[0] || got[1] != want[1] || got[2] != want[2] {
		t.Fatalf("ops = %v, want %v", got, want)
	}
	brk, write := link.events[0], link.events[1]
	if brk.dur < MinBreak {
		t.Errorf("break %s below %s", brk.dur, MinBreak)
	}
	if gap := write.at.Sub(brk.at); gap < MinMAB {
		t.Errorf("mark after break %s below %s", gap, MinMAB)
	}
	if write.baud != BaudRate || string(write.data) != string(frame) {
		t.Errorf("frame written at %d baud as % x", write.baud, write.data)
	}
}

func TestBaudFramerRestoresRateBeforeData(t *testing.T) {
	framer, err := NewFramer("baud", DefaultTiming())
	if err != nil {
		t.Fatal(err)
	}
	link := newFakeLink()
	frame := make([]byte, 65)

	if err := framer.Transmit(link, frame); err != nil {
		t.Fatalf("Transmit: %v", err)
	}

	var writes []linkEvent
	for _, ev := range link.events {
		if ev.op == "write" {
			writes = append(writes, ev)
		}
	}
	if len(writes) != 2 {
		t.Fatalf("expected break byte and frame writes, got %d", len(writes))
	}
	if writes[0].baud != 9600 || len(writes[0].data) != 1 || writes[0].data[0] != 0 {
		t.Errorf("break write = %+v, want single 0x00 at 9600 baud", writes[0])
	}
	if writes[1].baud != BaudRate || len(writes[1].data) != 65 {
		t.Errorf("frame written at %d baud, want %d", writes[1].baud, BaudRate)
	}
	if link.baud != BaudRate {
		t.Errorf("link left at %d baud", link.baud)
	}
}

func TestNewFramerRejectsShortTiming(t *testing.T) {
	tests := []struct {
		name    string
		framing string
		timing  Timing
	}{
		{"short break", "break", Timing{Break: 50 * time.Microsecond, MAB: 16 * time.Microsecond}},
		{"short mab", "break", Timing{Break: 176 * time.Microsecond, MAB: 2 * time.Microsecond}},
		{"unknown framing", "rdm", DefaultTiming()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewFramer(tt.framing, tt.timing); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestSerialSinkSendAndClose(t *testing.T) {
	link := newFakeLink()
	sink := NewSerialSink("/dev/fake", link, &BreakFramer{Break: MinBreak, MAB: MinMAB})

	if err := sink.Send([]byte{0, 255}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	link.writeErr = errors.New("cable pulled")
	if err := sink.Send([]byte{0, 255}); err == nil {
		t.Error("expected write error to surface")
	}

	if err := sink.Close(); err != nil || !link.closed {
		t.Fatalf("Close: %v (closed=%v)", err, link.closed)
	}
	if err := sink.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if err := sink.Send([]byte{0}); err == nil {
		t.Error("Send after Close should fail")
	}
}

func TestOpenSinkFallback(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "ttyUSB9")

	sink, err := OpenSink(SinkOptions{Port: missing, Framing: "break", Timing: DefaultTiming(), VirtualFallback: true})
	if err != nil {
		t.Fatalf("OpenSink with fallback: %v", err)
	}
	if _, ok := sink.(*VirtualSink); !ok {
		t.Errorf("sink = %T, want *VirtualSink", sink)
	}

	_, err = OpenSink(SinkOptions{Port: missing, Framing: "break", Timing: DefaultTiming()})
	if !errors.Is(err, ErrDevice) {
		t.Errorf("OpenSink without fallback = %v, want ErrDevice", err)
	}

	sink, err = OpenSink(SinkOptions{})
	if err != nil || sink.Name() != "virtual" {
		t.Errorf("OpenSink with no port = %v, %v; want virtual", sink, err)
	}
}
