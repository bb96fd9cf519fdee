// SPDX-License-Identifier: MIT
package audio

import (
	"fmt"
	"os"
	"sync"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Recorder writes frames to a 16-bit mono WAV file. Write and Close may be
// called from different goroutines.
type Recorder struct {
	mu        sync.Mutex
	filename  string
	file      *os.File
	encoder   *wav.Encoder
	sampleBuf *audio.IntBuffer
	samples   int64
}

// StartRecording creates filename and prepares an encoder for frames of up
// to frameSize samples.
func StartRecording(filename string, sampleRate, frameSize int) (*Recorder, error) {
	file, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create recording: %w", err)
	}

	return &Recorder{
		filename: filename,
		file:     file,
		encoder:  wav.NewEncoder(file, sampleRate, 16, 1, 1),
		sampleBuf: &audio.IntBuffer{
			Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
			Data:           make([]int, frameSize),
			SourceBitDepth: 16,
		},
	}, nil
}

// Write appends one frame.
func (r *Recorder) Write(samples []int16) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.encoder == nil {
		return fmt.Errorf("recording %s is closed", r.filename)
	}

	if cap(r.sampleBuf.Data) < len(samples) {
		r.sampleBuf.Data = make([]int, len(samples))
	}
	r.sampleBuf.Data = r.sampleBuf.Data[:len(samples)]
	for i, s := range samples {
		r.sampleBuf.Data[i] = int(s)
	}
	if err := r.encoder.Write(r.sampleBuf); err != nil {
		return fmt.Errorf("failed to write recording: %w", err)
	}
	r.samples += int64(len(samples))
	return nil
}

// Samples returns how many samples have been written.
func (r *Recorder) Samples() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.samples
}

// Filename returns the output path.
func (r *Recorder) Filename() string { return r.filename }

// Close finalises the WAV header and closes the file. Calling Close twice
// is a no-op.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.encoder == nil {
		return nil
	}
	encErr := r.encoder.Close()
	fileErr := r.file.Close()
	r.encoder = nil
	r.file = nil
	if encErr != nil {
		return fmt.Errorf("failed to finalise recording: %w", encErr)
	}
	return fileErr
}
