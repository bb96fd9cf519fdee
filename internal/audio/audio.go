// SPDX-License-Identifier: MIT
/*
Package audio produces fixed-size mono 16-bit frames for the beat detector.

Sources:
- Capture reads a PortAudio input stream in blocking mode
- WavSource replays a WAV file, optionally paced to real time
- Recorder tees captured frames into a 16-bit WAV file

A Source owns its sample buffer; the slice in a returned Frame is only valid
until the next Read.
*/
package audio

import (
	"errors"
	"fmt"
	"time"
)

// Frame is one block of mono samples and the time its read began.
type Frame struct {
	Samples    []int16
	CapturedAt time.Time
}

// Source yields frames until it is closed or runs out.
type Source interface {
	// Read blocks until a full frame is available. Errors wrapping
	// ErrTransient mean the frame was dropped and reading may continue;
	// io.EOF means a finite source is exhausted.
	Read() (Frame, error)
	SampleRate() float64
	Close() error
}

// ErrTransient marks a read failure that costs one frame.
var ErrTransient = errors.New("audio: transient read failure")

// ErrDevice is matched by every *DeviceError.
var ErrDevice = errors.New("audio: input device unavailable")

// DeviceError reports an input that could not be opened or kept failing.
type DeviceError struct {
	Device string
	Err    error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("audio: device %s: %v", e.Device, e.Err)
}

func (e *DeviceError) Unwrap() error { return e.Err }

func (e *DeviceError) Is(target error) bool { return target == ErrDevice }
