// SPDX-License-Identifier: MIT
package dmx

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"beatlight/internal/log"
)

// Sink puts complete frames (start code + channels) on some medium.
// Send is called from the transmitter goroutine only; Close may race with
// it during shutdown and must be safe to call more than once.
type Sink interface {
	Send(frame []byte) error
	Close() error
	Name() string
}

// ErrDevice is matched by every *DeviceError.
var ErrDevice = errors.New("dmx: output device unavailable")

// DeviceError reports an output that could not be opened or has failed for good.
type DeviceError struct {
	Port string
	Err  error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("dmx: device %s: %v", e.Port, e.Err)
}

func (e *DeviceError) Unwrap() error { return e.Err }

func (e *DeviceError) Is(target error) bool { return target == ErrDevice }

// VirtualSink accepts frames and transmits nothing. It keeps the last frame
// so the monitor and the tests can see what would have gone out.
type VirtualSink struct {
	frames atomic.Uint64
	mu     sync.Mutex
	last   []byte
}

// NewVirtualSink returns an empty virtual sink.
func NewVirtualSink() *VirtualSink {
	return &VirtualSink{}
}

func (s *VirtualSink) Send(frame []byte) error {
	s.mu.Lock()
	s.last = append(s.last[:0], frame...)
	s.mu.Unlock()
	s.frames.Add(1)
	return nil
}

func (s *VirtualSink) Close() error { return nil }

func (s *VirtualSink) Name() string { return "virtual" }

// Frames returns the number of frames accepted so far.
func (s *VirtualSink) Frames() uint64 {
	return s.frames.Load()
}

// Last returns a copy of the most recent frame, or nil before the first one.
func (s *VirtualSink) Last() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return nil
	}
	return append([]byte(nil), s.last...)
}

// SinkOptions selects and configures the output for OpenSink.
type SinkOptions struct {
	Port            string // Serial device; empty means no serial output.
	Framing         string // "break" or "baud".
	Timing          Timing
	VirtualFallback bool

	ArtNetTarget   string // Non-empty selects Art-Net instead of serial.
	ArtNetUniverse uint16
}

// OpenSink opens the configured output. Art-Net wins over serial when both
// are set. A serial port that cannot be opened falls back to a VirtualSink
// when VirtualFallback is true; otherwise the *DeviceError is returned.
func OpenSink(opts SinkOptions) (Sink, error) {
	if opts.ArtNetTarget != "" {
		return NewArtNetSink(opts.ArtNetTarget, opts.ArtNetUniverse)
	}
	if opts.Port == "" {
		log.Infof("DMX: no serial port configured, using virtual output")
		return NewVirtualSink(), nil
	}

	framer, err := NewFramer(opts.Framing, opts.Timing)
	if err != nil {
		return nil, err
	}

	link, err := OpenSerial(opts.Port)
	if err != nil {
		if opts.VirtualFallback {
			log.Warnf("DMX: %v; falling back to virtual output", err)
			return NewVirtualSink(), nil
		}
		return nil, err
	}
	log.Infof("DMX: opened %s (%s framing)", opts.Port, opts.Framing)
	return NewSerialSink(opts.Port, link, framer), nil
}
