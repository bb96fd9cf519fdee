// SPDX-License-Identifier: MIT
package audio

import (
	"fmt"
	"time"

	"beatlight/internal/log"

	"github.com/gordonklaus/portaudio"
)

// Capture reads mono frames from a PortAudio input in blocking mode.
// The stream writes straight into a preallocated buffer, so Read does not
// allocate.
type Capture struct {
	stream     *portaudio.Stream
	buffer     []int16
	sampleRate float64
	device     string
	overflows  uint64
}

// OpenCapture opens and starts a mono input stream on deviceID
// (MinDeviceID for the default input).
func OpenCapture(deviceID int, sampleRate float64, framesPerBuffer int, lowLatency bool) (*Capture, error) {
	dev, err := InputDevice(deviceID)
	if err != nil {
		return nil, err
	}

	latency := dev.DefaultHighInputLatency
	if lowLatency {
		latency = dev.DefaultLowInputLatency
	}

	buffer := make([]int16, framesPerBuffer)
	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   dev,
			Channels: 1,
			Latency:  latency,
		},
		FramesPerBuffer: framesPerBuffer,
		SampleRate:      sampleRate,
	}

	stream, err := portaudio.OpenStream(params, buffer)
	if err != nil {
		return nil, &DeviceError{Device: dev.Name, Err: fmt.Errorf("open stream: %w", err)}
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, &DeviceError{Device: dev.Name, Err: fmt.Errorf("start stream: %w", err)}
	}

	log.Infof("Audio: capturing from %q at %.0f Hz, %d samples per frame, latency %s",
		dev.Name, sampleRate, framesPerBuffer, latency)

	return &Capture{
		stream:     stream,
		buffer:     buffer,
		sampleRate: sampleRate,
		device:     dev.Name,
	}, nil
}

// Read blocks for one frame. An input overflow still yields the frame,
// since the buffer holds valid if late samples.
func (c *Capture) Read() (Frame, error) {
	capturedAt := time.Now()
	if err := c.stream.Read(); err != nil {
		if err != portaudio.InputOverflowed {
			return Frame{}, fmt.Errorf("%w: %s: %v", ErrTransient, c.device, err)
		}
		c.overflows++
		log.Debugf("Audio: input overflow on %s (%d so far)", c.device, c.overflows)
	}
	return Frame{Samples: c.buffer, CapturedAt: capturedAt}, nil
}

// SampleRate returns the stream rate in Hz.
func (c *Capture) SampleRate() float64 { return c.sampleRate }

// Device returns the input device name.
func (c *Capture) Device() string { return c.device }

// Close stops and releases the stream.
func (c *Capture) Close() error {
	if c.stream == nil {
		return nil
	}
	stopErr := c.stream.Stop()
	closeErr := c.stream.Close()
	c.stream = nil
	if stopErr != nil {
		return fmt.Errorf("stop stream: %w", stopErr)
	}
	if closeErr != nil {
		return fmt.Errorf("close stream: %w", closeErr)
	}
	return nil
}
