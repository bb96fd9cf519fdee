// SPDX-License-Identifier: MIT
package midi

import (
	"errors"
	"reflect"
	"testing"

	gomidi "gitlab.com/gomidi/midi/v2"
)

type recorder struct {
	calls []string
	known map[string]bool
}

func (r *recorder) SetPreset(name string) error {
	if r.known != nil && !r.known[name] {
		return errors.New("unknown preset " + name)
	}
	r.calls = append(r.calls, name)
	return nil
}

func newTestMapper(t *testing.T, target Presetter) *Mapper {
	t.Helper()
	m, err := NewMapper(target, nil, DefaultStrobeNote, "techno_red")
	if err != nil {
		t.Fatalf("NewMapper: %v", err)
	}
	return m
}

func TestStrobeIsMomentary(t *testing.T) {
	rec := &recorder{}
	m := newTestMapper(t, rec)

	m.NoteOn(50, 100)               // acid_green
	m.NoteOn(DefaultStrobeNote, 90) // hold strobe
	m.NoteOff(DefaultStrobeNote)    // release

	want := []string{"acid_green", "strobe_white", "acid_green"}
	if !reflect.DeepEqual(rec.calls, want) {
		t.Errorf("calls = %v, want %v", rec.calls, want)
	}
}

func TestStrobeReleaseBeforeAnyNote(t *testing.T) {
	rec := &recorder{}
	m := newTestMapper(t, rec)
	m.NoteOn(DefaultStrobeNote, 64)
	m.NoteOn(DefaultStrobeNote, 0) // velocity zero releases
	if want := []string{"strobe_white", "techno_red"}; !reflect.DeepEqual(rec.calls, want) {
		t.Errorf("calls = %v, want %v", rec.calls, want)
	}
}

func TestNoteOffIgnoredForPresetKeys(t *testing.T) {
	rec := &recorder{}
	m := newTestMapper(t, rec)
	m.NoteOn(72, 127)
	m.NoteOff(72)
	m.NoteOff(DefaultStrobeNote) // release without press
	if want := []string{"blackout"}; !reflect.DeepEqual(rec.calls, want) {
		t.Errorf("calls = %v, want %v", rec.calls, want)
	}
}

func TestUnmappedAndRejectedNotes(t *testing.T) {
	rec := &recorder{known: map[string]bool{"strobe_white": true, "techno_red": true}}
	m := newTestMapper(t, rec)

	m.NoteOn(30, 100) // unmapped
	m.NoteOn(50, 100) // acid_green rejected by the target
	if m.Last() != "techno_red" {
		t.Errorf("last = %q; a rejected preset must not become the revert target", m.Last())
	}
	if len(rec.calls) != 0 {
		t.Errorf("calls = %v", rec.calls)
	}
}

func TestNewMapperValidation(t *testing.T) {
	tests := []struct {
		name    string
		mapping map[int]string
		strobe  int
	}{
		{name: "note out of range", mapping: map[int]string{128: "blackout"}, strobe: 71},
		{name: "strobe out of range", strobe: -1},
		{name: "mapping uses strobe note", mapping: map[int]string{71: "blackout"}, strobe: 71},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewMapper(&recorder{}, tt.mapping, tt.strobe, "techno_red"); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestCustomMapping(t *testing.T) {
	rec := &recorder{}
	m, err := NewMapper(rec, map[int]string{36: "vivid_pop"}, 37, "blackout")
	if err != nil {
		t.Fatal(err)
	}
	m.NoteOn(48, 100) // default layout no longer applies
	m.NoteOn(36, 100)
	m.NoteOn(37, 100)
	m.NoteOff(37)
	if want := []string{"vivid_pop", "strobe_white", "vivid_pop"}; !reflect.DeepEqual(rec.calls, want) {
		t.Errorf("calls = %v, want %v", rec.calls, want)
	}
}

func TestListenerDecodesMessages(t *testing.T) {
	rec := &recorder{}
	l := NewListener("LPK25", newTestMapper(t, rec))

	l.handle(gomidi.NoteOn(0, 64, 100))
	l.handle(gomidi.NoteOn(0, DefaultStrobeNote, 100))
	l.handle(gomidi.NoteOff(0, DefaultStrobeNote))
	l.handle(gomidi.ControlChange(0, 7, 100))

	if want := []string{"vivid_pop", "strobe_white", "vivid_pop"}; !reflect.DeepEqual(rec.calls, want) {
		t.Errorf("calls = %v, want %v", rec.calls, want)
	}
}
