// SPDX-License-Identifier: MIT
package analysis

import (
	"fmt"
	"math/cmplx"
	"strings"

	"beatlight/internal/log"
	"beatlight/pkg/bitint"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
)

// WindowFunc selects the window applied before the FFT.
type WindowFunc int

const (
	Rectangular WindowFunc = iota
	BartlettHann
	Blackman
	BlackmanNuttall
	Hann
	Hamming
	Lanczos
	Nuttall
)

var windowNames = [...]string{"none", "bartletthann", "blackman", "blackmannuttall", "hann", "hamming", "lanczos", "nuttall"}

func (w WindowFunc) String() string {
	if int(w) < len(windowNames) {
		return windowNames[w]
	}
	return fmt.Sprintf("WindowFunc(%d)", int(w))
}

// ParseWindowFunc converts a name (case-insensitive) to a WindowFunc. Unknown
// names return Rectangular and an error.
func ParseWindowFunc(name string) (WindowFunc, error) {
	switch strings.ToLower(name) {
	case "", "none", "rectangular":
		return Rectangular, nil
	case "hanning":
		return Hann, nil
	}
	for i, n := range windowNames {
		if n == strings.ToLower(name) {
			return WindowFunc(i), nil
		}
	}
	return Rectangular, fmt.Errorf("unknown FFT window function name: '%s'", name)
}

// Spectrum computes magnitude spectra of 16-bit frames. Samples are used at
// their raw integer scale. All buffers are allocated up front; Compute does
// not allocate. A Spectrum is not safe for concurrent use.
type Spectrum struct {
	fft        *fourier.FFT
	size       int
	sampleRate float64

	input     []float64
	coeffs    []complex128
	magnitude []float64
	window    []float64
}

// NewSpectrum creates a Spectrum for frames of frameSize samples. The FFT
// length is frameSize rounded up to a power of two; shorter input is
// zero-padded.
func NewSpectrum(frameSize int, sampleRate float64, w WindowFunc) (*Spectrum, error) {
	if frameSize <= 0 {
		return nil, fmt.Errorf("frame size must be positive, got %d", frameSize)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %f", sampleRate)
	}

	size := bitint.NextPowerOfTwo(frameSize)
	coeffs := make([]float64, size)
	fillWindow(coeffs[:frameSize], w)

	log.Debugf("Analysis: spectrum size %d at %.1f Hz, window %s", size, sampleRate, w)

	return &Spectrum{
		fft:        fourier.NewFFT(size),
		size:       size,
		sampleRate: sampleRate,
		input:      make([]float64, size),
		coeffs:     make([]complex128, size/2+1),
		magnitude:  make([]float64, size/2+1),
		window:     coeffs,
	}, nil
}

// Compute returns |X_k| for k in [0, size/2]. The returned slice is reused by
// the next call.
func (s *Spectrum) Compute(samples []int16) []float64 {
	n := min(len(samples), s.size)
	for i := range n {
		s.input[i] = float64(samples[i]) * s.window[i]
	}
	clear(s.input[n:])

	s.fft.Coefficients(s.coeffs, s.input)
	for i, c := range s.coeffs {
		s.magnitude[i] = cmplx.Abs(c)
	}
	return s.magnitude
}

// Size returns the FFT length.
func (s *Spectrum) Size() int { return s.size }

// BinFrequency returns the centre frequency of bin k in Hz.
func (s *Spectrum) BinFrequency(k int) float64 {
	if k < 0 || k >= len(s.magnitude) {
		return 0
	}
	return float64(k) * s.sampleRate / float64(s.size)
}

// BandBins returns the first and last bin whose frequency lies in
// [lowHz, highHz]. ok is false when no bin does.
func (s *Spectrum) BandBins(lowHz, highHz float64) (first, last int, ok bool) {
	first, last = -1, -1
	for k := range s.magnitude {
		f := s.BinFrequency(k)
		if f < lowHz || f > highHz {
			continue
		}
		if first < 0 {
			first = k
		}
		last = k
	}
	return first, last, first >= 0
}

func fillWindow(coeffs []float64, w WindowFunc) {
	for i := range coeffs {
		coeffs[i] = 1.0
	}
	switch w {
	case Rectangular:
	case BartlettHann:
		window.BartlettHann(coeffs)
	case Blackman:
		window.Blackman(coeffs)
	case BlackmanNuttall:
		window.BlackmanNuttall(coeffs)
	case Hann:
		window.Hann(coeffs)
	case Hamming:
		window.Hamming(coeffs)
	case Lanczos:
		window.Lanczos(coeffs)
	case Nuttall:
		window.Nuttall(coeffs)
	default:
		log.Warnf("Analysis: unknown window function %d, using rectangular", w)
	}
}
