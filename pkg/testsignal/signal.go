// Package testsignal generates deterministic 16-bit mono test audio.
package testsignal

import (
	"math"
	"math/rand/v2"
)

// Sine returns size samples of a sine at frequency Hz with peak amplitude
// given as a fraction of full scale.
func Sine(size int, sampleRate, frequency, amplitude float64) []int16 {
	buffer := make([]int16, size)
	for i := range buffer {
		t := float64(i) / sampleRate
		buffer[i] = clip(math.Sin(2*math.Pi*frequency*t) * amplitude * math.MaxInt16)
	}
	return buffer
}

// Complex returns a 440 Hz fundamental with two harmonics.
func Complex(size int, sampleRate float64) []int16 {
	buffer := make([]int16, size)
	for i := range buffer {
		t := float64(i) / sampleRate
		signal := math.Sin(2*math.Pi*440*t)*0.5 +
			math.Sin(2*math.Pi*880*t)*0.3 +
			math.Sin(2*math.Pi*1320*t)*0.2
		buffer[i] = clip(signal * math.MaxInt16 * 0.9)
	}
	return buffer
}

// Noise returns seeded uniform noise with the given peak amplitude.
func Noise(size int, amplitude float64, seed uint64) []int16 {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	buffer := make([]int16, size)
	for i := range buffer {
		buffer[i] = clip((rng.Float64()*2 - 1) * amplitude * math.MaxInt16)
	}
	return buffer
}

// Kick writes a decaying 60 Hz burst into a frame of size samples, starting
// at offset. Samples before offset are silent.
func Kick(size int, sampleRate float64, offset int, amplitude float64) []int16 {
	buffer := make([]int16, size)
	for i := offset; i < size; i++ {
		t := float64(i-offset) / sampleRate
		env := math.Exp(-t * 30)
		buffer[i] = clip(math.Sin(2*math.Pi*60*t) * env * amplitude * math.MaxInt16)
	}
	return buffer
}

// PeakIndex returns the index of the sample with the largest magnitude.
func PeakIndex(samples []int16) int {
	peak, best := 0, int32(-1)
	for i, s := range samples {
		a := int32(s)
		if a < 0 {
			a = -a
		}
		if a > best {
			peak, best = i, a
		}
	}
	return peak
}

// FindPeakBin returns the bin with the largest magnitude in [startBin, endBin].
func FindPeakBin(magnitudes []float64, startBin, endBin int) int {
	if len(magnitudes) == 0 {
		return 0
	}
	if startBin < 0 {
		startBin = 0
	}
	if endBin >= len(magnitudes) {
		endBin = len(magnitudes) - 1
	}

	peakBin := startBin
	peakValue := magnitudes[startBin]
	for bin := startBin + 1; bin <= endBin; bin++ {
		if magnitudes[bin] > peakValue {
			peakValue = magnitudes[bin]
			peakBin = bin
		}
	}
	return peakBin
}

func clip(v float64) int16 {
	switch {
	case v > math.MaxInt16:
		return math.MaxInt16
	case v < math.MinInt16:
		return math.MinInt16
	}
	return int16(v)
}
