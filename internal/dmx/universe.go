// SPDX-License-Identifier: MIT

// Package dmx holds the DMX512 channel buffer, the sinks that put frames on
// a wire (serial, Art-Net, virtual) and the fixed-rate transmitter loop.
package dmx

import (
	"errors"
	"fmt"
	"sync"
)

const (
	// StartCode leads every DMX512 frame and is not addressable.
	StartCode byte = 0x00

	// MaxChannels is the size of a full universe.
	MaxChannels = 512
)

// ErrValidation is matched by every *ValidationError.
var ErrValidation = errors.New("dmx: invalid channel write")

// ValidationError describes a rejected channel index or value. The buffer is
// never modified when one is returned.
type ValidationError struct {
	Channel int
	Value   int
	Size    int
	Reason  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("dmx: channel %d value %d: %s (universe size %d)", e.Channel, e.Value, e.Reason, e.Size)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Universe is a thread-safe buffer of channel values addressed 1..Size.
// Every mutation holds the lock for its whole duration, so a Frame snapshot
// never observes a partially applied batch.
type Universe struct {
	mu   sync.Mutex
	data []byte // data[0] is the start code
}

// NewUniverse creates a zeroed universe of size channels (1..512).
func NewUniverse(size int) (*Universe, error) {
	if size < 1 || size > MaxChannels {
		return nil, fmt.Errorf("dmx: universe size %d outside [1, %d]", size, MaxChannels)
	}
	return &Universe{data: make([]byte, size+1)}, nil
}

// Size returns the number of addressable channels.
func (u *Universe) Size() int {
	return len(u.data) - 1
}

func (u *Universe) check(ch, v int) error {
	switch {
	case ch < 1 || ch > u.Size():
		return &ValidationError{Channel: ch, Value: v, Size: u.Size(), Reason: "channel out of range"}
	case v < 0 || v > 255:
		return &ValidationError{Channel: ch, Value: v, Size: u.Size(), Reason: "value out of range"}
	}
	return nil
}

// SetChannel assigns one channel.
func (u *Universe) SetChannel(ch, v int) error {
	if err := u.check(ch, v); err != nil {
		return err
	}
	u.mu.Lock()
	u.data[ch] = byte(v)
	u.mu.Unlock()
	return nil
}

// SetChannels applies a batch atomically. All entries are validated before
// any is written; a single bad entry leaves the buffer untouched.
func (u *Universe) SetChannels(values map[int]int) error {
	for ch, v := range values {
		if err := u.check(ch, v); err != nil {
			return err
		}
	}
	u.mu.Lock()
	for ch, v := range values {
		u.data[ch] = byte(v)
	}
	u.mu.Unlock()
	return nil
}

// GetChannel reads one channel.
func (u *Universe) GetChannel(ch int) (int, error) {
	if err := u.check(ch, 0); err != nil {
		return 0, err
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	return int(u.data[ch]), nil
}

// SetAll assigns v to every channel.
func (u *Universe) SetAll(v int) error {
	if err := u.check(1, v); err != nil {
		return err
	}
	u.mu.Lock()
	for i := 1; i < len(u.data); i++ {
		u.data[i] = byte(v)
	}
	u.mu.Unlock()
	return nil
}

// Blackout zeroes every channel.
func (u *Universe) Blackout() {
	u.mu.Lock()
	clear(u.data[1:])
	u.mu.Unlock()
}

// Frame copies the start code and all channels into dst, growing it only
// when its capacity is short, and returns the filled slice.
func (u *Universe) Frame(dst []byte) []byte {
	n := len(u.data)
	if cap(dst) < n {
		dst = make([]byte, n)
	}
	dst = dst[:n]
	u.mu.Lock()
	copy(dst, u.data)
	u.mu.Unlock()
	dst[0] = StartCode
	return dst
}
