// SPDX-License-Identifier: MIT
package audio

import (
	"fmt"
	"io"
	"os"
	"time"

	"beatlight/internal/log"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WavSource replays a PCM WAV file as frames. Multi-channel files are mixed
// down to mono and 8/24/32-bit samples are rescaled to 16 bits.
type WavSource struct {
	path      string
	frameSize int
	pace      bool
	loop      bool

	file       *os.File
	decoder    *wav.Decoder
	sampleRate float64
	channels   int
	bitDepth   int

	raw    *audio.IntBuffer
	buffer []int16

	start  time.Time
	frames int64
	now    func() time.Time
	sleep  func(time.Duration)
}

// WavOptions controls replay.
type WavOptions struct {
	FrameSize int
	Pace      bool // Deliver frames at the file's real-time rate.
	Loop      bool // Rewind at end of file instead of returning io.EOF.
}

// OpenWav opens path for replay.
func OpenWav(path string, opts WavOptions) (*WavSource, error) {
	if opts.FrameSize <= 0 {
		return nil, fmt.Errorf("frame size must be positive, got %d", opts.FrameSize)
	}
	s := &WavSource{
		path:      path,
		frameSize: opts.FrameSize,
		pace:      opts.Pace,
		loop:      opts.Loop,
		buffer:    make([]int16, opts.FrameSize),
		now:       time.Now,
		sleep:     time.Sleep,
	}
	if err := s.open(); err != nil {
		return nil, err
	}
	s.raw = &audio.IntBuffer{
		Format: &audio.Format{NumChannels: s.channels, SampleRate: int(s.sampleRate)},
		Data:   make([]int, opts.FrameSize*s.channels),
	}

	log.Infof("Audio: replaying %s (%.0f Hz, %d channels, %d-bit)", path, s.sampleRate, s.channels, s.bitDepth)
	return s, nil
}

func (s *WavSource) open() error {
	f, err := os.Open(s.path)
	if err != nil {
		return &DeviceError{Device: s.path, Err: err}
	}
	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		f.Close()
		return &DeviceError{Device: s.path, Err: fmt.Errorf("not a valid WAV file")}
	}
	if d.WavAudioFormat != 1 {
		f.Close()
		return &DeviceError{Device: s.path, Err: fmt.Errorf("unsupported WAV format %d, want PCM", d.WavAudioFormat)}
	}

	s.file = f
	s.decoder = d
	s.sampleRate = float64(d.SampleRate)
	s.channels = int(d.NumChans)
	s.bitDepth = int(d.BitDepth)
	return nil
}

// Read returns the next frame. A short final frame is zero-padded.
func (s *WavSource) Read() (Frame, error) {
	if s.decoder == nil {
		return Frame{}, io.EOF
	}
	if s.start.IsZero() {
		s.start = s.now()
	}

	n, err := s.decoder.PCMBuffer(s.raw)
	if err != nil {
		return Frame{}, fmt.Errorf("%w: %s: %v", ErrTransient, s.path, err)
	}
	if n == 0 {
		if !s.loop {
			return Frame{}, io.EOF
		}
		s.file.Close()
		if err := s.open(); err != nil {
			return Frame{}, err
		}
		if n, err = s.decoder.PCMBuffer(s.raw); err != nil || n == 0 {
			return Frame{}, io.EOF
		}
	}

	s.mixdown(s.raw.Data[:n])

	at := s.start.Add(time.Duration(float64(s.frames*int64(s.frameSize)) / s.sampleRate * float64(time.Second)))
	s.frames++
	if s.pace {
		if wait := at.Sub(s.now()); wait > 0 {
			s.sleep(wait)
		}
	}
	return Frame{Samples: s.buffer, CapturedAt: at}, nil
}

func (s *WavSource) mixdown(data []int) {
	frames := len(data) / s.channels
	for i := range s.frameSize {
		if i >= frames {
			s.buffer[i] = 0
			continue
		}
		sum := 0
		for c := range s.channels {
			sum += data[i*s.channels+c]
		}
		s.buffer[i] = to16(sum/s.channels, s.bitDepth)
	}
}

func to16(v, depth int) int16 {
	switch {
	case depth == 8:
		return int16((v - 128) << 8)
	case depth > 16:
		return int16(v >> (depth - 16))
	default:
		return int16(v)
	}
}

// SampleRate returns the file's rate in Hz.
func (s *WavSource) SampleRate() float64 { return s.sampleRate }

// Close releases the file.
func (s *WavSource) Close() error {
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	s.decoder = nil
	return err
}
