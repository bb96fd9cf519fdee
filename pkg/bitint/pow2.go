// Package bitint holds the power-of-two helpers used to size FFT buffers.
// Both functions are constant time and allocation-free.
package bitint

import "math/bits"

// NextPowerOfTwo returns the smallest power of two >= size, or 1 for
// size <= 0. Subtracting one first keeps exact powers unchanged:
// Len(8-1) = 3 gives 8, where Len(8) = 4 would double it.
//
//	Input  Output
//	4      4
//	5      8
//	2048   2048
//	0      1
func NextPowerOfTwo(size int) int {
	if size <= 0 {
		return 1
	}
	return 1 << bits.Len(uint(size-1))
}

// IsPowerOfTwo reports whether n is a positive power of two. A power of
// two has one bit set, so clearing its lowest set bit yields zero.
func IsPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// Log2 returns log2(n) for a power of two n, and -1 otherwise.
func Log2(n int) int {
	if !IsPowerOfTwo(n) {
		return -1
	}
	return bits.TrailingZeros(uint(n))
}
