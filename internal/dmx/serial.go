// SPDX-License-Identifier: MIT
package dmx

import (
	"fmt"
	"sync"
	"time"

	"go.bug.st/serial"
)

// Line parameters fixed by DMX512: 250 kbit/s, 8 data bits, no parity,
// two stop bits.
const (
	BaudRate = 250000

	MinBreak = 88 * time.Microsecond
	MinMAB   = 8 * time.Microsecond
)

// Timing holds the reset sequence durations.
type Timing struct {
	Break     time.Duration // Line held low before the start code, >= 88µs.
	MAB       time.Duration // Mark after break, >= 8µs.
	BreakBaud int           // Bit rate used by the baud framer to fake a break.
}

// DefaultTiming doubles the protocol minimums.
func DefaultTiming() Timing {
	return Timing{Break: 176 * time.Microsecond, MAB: 16 * time.Microsecond, BreakBaud: 9600}
}

// Link is the subset of a serial port a Framer needs.
type Link interface {
	Write(p []byte) (int, error)
	Break(d time.Duration) error
	SetBaudRate(baud int) error
	Drain() error
	Close() error
}

// Framer writes one frame, reset sequence included, to a link.
type Framer interface {
	Transmit(link Link, frame []byte) error
}

// NewFramer returns the framer for a framing name ("break" or "baud").
func NewFramer(framing string, t Timing) (Framer, error) {
	if t.Break < MinBreak {
		return nil, fmt.Errorf("dmx: break %s below minimum %s", t.Break, MinBreak)
	}
	if t.MAB < MinMAB {
		return nil, fmt.Errorf("dmx: mark-after-break %s below minimum %s", t.MAB, MinMAB)
	}
	switch framing {
	case "", "break":
		return &BreakFramer{Break: t.Break, MAB: t.MAB}, nil
	case "baud":
		if t.BreakBaud <= 0 {
			t.BreakBaud = DefaultTiming().BreakBaud
		}
		return &BaudFramer{BreakBaud: t.BreakBaud}, nil
	default:
		return nil, fmt.Errorf("dmx: unknown framing %q", framing)
	}
}

// BreakFramer asserts a hardware break, holds the mark for MAB, then sends
// the frame and waits for the UART to empty.
type BreakFramer struct {
	Break time.Duration
	MAB   time.Duration
}

func (f *BreakFramer) Transmit(link Link, frame []byte) error {
	if err := link.Break(f.Break); err != nil {
		return fmt.Errorf("break: %w", err)
	}
	spinWait(f.MAB)
	if _, err := link.Write(frame); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	if err := link.Drain(); err != nil {
		return fmt.Errorf("drain: %w", err)
	}
	return nil
}

// BaudFramer is for adapters without break control. At BreakBaud a single
// 0x00 byte holds the line low for its start bit and eight data bits, which
// reads as a break at 250 kbit/s; its stop bits form the mark after break.
type BaudFramer struct {
	BreakBaud int
}

var zeroByte = []byte{0x00}

func (f *BaudFramer) Transmit(link Link, frame []byte) error {
	if err := link.SetBaudRate(f.BreakBaud); err != nil {
		return fmt.Errorf("set break baud: %w", err)
	}
	if _, err := link.Write(zeroByte); err != nil {
		return fmt.Errorf("write break: %w", err)
	}
	if err := link.Drain(); err != nil {
		return fmt.Errorf("drain break: %w", err)
	}
	if err := link.SetBaudRate(BaudRate); err != nil {
		return fmt.Errorf("restore baud: %w", err)
	}
	if _, err := link.Write(frame); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	if err := link.Drain(); err != nil {
		return fmt.Errorf("drain: %w", err)
	}
	return nil
}

// spinWait busy-waits for d. time.Sleep resolution is far coarser than the
// microsecond gaps the reset sequence needs.
func spinWait(d time.Duration) {
	for start := time.Now(); time.Since(start) < d; {
	}
}

// SerialSink drives a DMX line through a Link.
type SerialSink struct {
	port   string
	link   Link
	framer Framer

	mu     sync.Mutex // Serialises Send against Close.
	closed bool
}

// NewSerialSink wraps an open link.
func NewSerialSink(port string, link Link, framer Framer) *SerialSink {
	return &SerialSink{port: port, link: link, framer: framer}
}

func (s *SerialSink) Send(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("dmx: serial sink %s is closed", s.port)
	}
	if err := s.framer.Transmit(s.link, frame); err != nil {
		return fmt.Errorf("dmx: %s: %w", s.port, err)
	}
	return nil
}

func (s *SerialSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.link.Close(); err != nil {
		return fmt.Errorf("dmx: close %s: %w", s.port, err)
	}
	return nil
}

func (s *SerialSink) Name() string { return "serial:" + s.port }

// serialLink adapts a go.bug.st/serial port to Link.
type serialLink struct {
	port serial.Port
	mode serial.Mode
}

// OpenSerial opens name at 250000 baud 8N2.
func OpenSerial(name string) (Link, error) {
	mode := serial.Mode{
		BaudRate: BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.TwoStopBits,
	}
	port, err := serial.Open(name, &mode)
	if err != nil {
		return nil, &DeviceError{Port: name, Err: err}
	}
	return &serialLink{port: port, mode: mode}, nil
}

func (l *serialLink) Write(p []byte) (int, error) { return l.port.Write(p) }

func (l *serialLink) Break(d time.Duration) error { return l.port.Break(d) }

func (l *serialLink) Drain() error { return l.port.Drain() }

func (l *serialLink) Close() error { return l.port.Close() }

func (l *serialLink) SetBaudRate(baud int) error {
	if l.mode.BaudRate == baud {
		return nil
	}
	mode := l.mode
	mode.BaudRate = baud
	if err := l.port.SetMode(&mode); err != nil {
		return err
	}
	l.mode = mode
	return nil
}

// ListPorts returns the serial ports present on the system.
func ListPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}
	return ports, nil
}
