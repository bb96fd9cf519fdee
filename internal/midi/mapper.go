// SPDX-License-Identifier: MIT

// Package midi maps a keyboard controller onto lighting presets.
//
// Each mapped note switches preset on note-on. The strobe note is
// momentary: holding it strobes, releasing it returns to the preset that
// was active before.
package midi

import (
	"fmt"
	"sync"

	"beatlight/internal/log"
)

// DefaultStrobeNote is B4 on a 25-key controller.
const DefaultStrobeNote = 71

const strobePreset = "strobe_white"

// Presetter switches presets.
type Presetter interface {
	SetPreset(name string) error
}

// DefaultMapping is the layout for an Akai LPK25: white keys from C3 pick
// looks, C5 is blackout.
func DefaultMapping() map[int]string {
	return map[int]string{
		48: "techno_red",
		50: "acid_green",
		52: "industrial_amber",
		53: "berlin_white",
		55: "house_shuffle",
		57: "dance_rg",
		59: "alternating_kick",
		60: "minimal_glitch",
		62: "barbie_party",
		64: "vivid_pop",
		65: "sunset_slow",
		67: "pastel_dream",
		69: "alarm_flash",
		72: "blackout",
	}
}

// Mapper turns note events into preset switches. It is safe for concurrent
// use.
type Mapper struct {
	target     Presetter
	mapping    map[int]string
	strobeNote int

	mu     sync.Mutex
	last   string
	strobe bool
}

// NewMapper builds a mapper. A nil or empty mapping uses DefaultMapping;
// initial is the preset to return to if the strobe note is released before
// any other note was played.
func NewMapper(target Presetter, mapping map[int]string, strobeNote int, initial string) (*Mapper, error) {
	if len(mapping) == 0 {
		mapping = DefaultMapping()
	}
	if strobeNote < 0 || strobeNote > 127 {
		return nil, fmt.Errorf("midi: strobe note %d outside 0..127", strobeNote)
	}
	m := make(map[int]string, len(mapping))
	for note, preset := range mapping {
		if note < 0 || note > 127 {
			return nil, fmt.Errorf("midi: note %d outside 0..127", note)
		}
		if note == strobeNote {
			return nil, fmt.Errorf("midi: note %d is the strobe note", note)
		}
		m[note] = preset
	}
	return &Mapper{target: target, mapping: m, strobeNote: strobeNote, last: initial}, nil
}

// NoteOn handles a key press. Velocity zero is a release.
func (m *Mapper) NoteOn(note, velocity int) {
	if velocity == 0 {
		m.NoteOff(note)
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if note == m.strobeNote {
		m.strobe = true
		m.apply(strobePreset)
		return
	}
	preset, ok := m.mapping[note]
	if !ok {
		log.Debugf("MIDI: note %d not mapped", note)
		return
	}
	if m.apply(preset) {
		m.last = preset
	}
}

// NoteOff handles a key release. Only the strobe note reacts.
func (m *Mapper) NoteOff(note int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if note != m.strobeNote || !m.strobe {
		return
	}
	m.strobe = false
	m.apply(m.last)
}

func (m *Mapper) apply(preset string) bool {
	if err := m.target.SetPreset(preset); err != nil {
		log.Warnf("MIDI: %v", err)
		return false
	}
	return true
}

// Last returns the preset the strobe note reverts to.
func (m *Mapper) Last() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}
