// SPDX-License-Identifier: MIT
package lighting

import (
	"errors"
	"sort"
	"testing"
)

func TestPresetTable(t *testing.T) {
	presets := Presets()
	if len(presets) != 15 {
		t.Fatalf("got %d presets, want 15", len(presets))
	}
	for _, p := range presets {
		d := p.Descriptor()
		if d.Name == "" {
			t.Errorf("preset %d has no name", int(p))
			continue
		}
		got, err := ParsePreset(d.Name)
		if err != nil || got != p {
			t.Errorf("ParsePreset(%q) = %v, %v; want %v", d.Name, got, err, p)
		}
		if d.Divider < 1 {
			t.Errorf("%s: divider %d", d.Name, d.Divider)
		}
		if d.Kind == KindPalette && len(d.Palette) != 4 {
			t.Errorf("%s: palette has %d pairs, want 4", d.Name, len(d.Palette))
		}
	}

	names := PresetNames()
	if !sort.StringsAreSorted(names) || len(names) != len(presets) {
		t.Errorf("PresetNames = %v", names)
	}
}

func TestParsePresetUnknown(t *testing.T) {
	for _, name := range []string{"", "Techno_Red", "techno red", "strobe"} {
		if _, err := ParsePreset(name); !errors.Is(err, ErrUnknownPreset) {
			t.Errorf("ParsePreset(%q) = %v, want ErrUnknownPreset", name, err)
		}
	}
}

func TestStringers(t *testing.T) {
	tests := []struct {
		got, want string
	}{
		{TechnoRed.String(), "techno_red"},
		{Blackout.String(), "blackout"},
		{Preset(99).String(), "Preset(99)"},
		{KindCrossfade.String(), "crossfade"},
		{Kind(-1).String(), "Kind(-1)"},
		{RGB{255, 128, 0}.String(), "#ff8000"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("got %q, want %q", tt.got, tt.want)
		}
	}
}

func TestParseFixtureKind(t *testing.T) {
	for _, tt := range []struct {
		in       string
		want     FixtureKind
		channels int
		wantErr  bool
	}{
		{in: "panel", want: Panel, channels: 4},
		{in: "bar", want: Bar, channels: 14},
		{in: "par", wantErr: true},
	} {
		got, err := ParseFixtureKind(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseFixtureKind(%q) error = %v", tt.in, err)
			continue
		}
		if got != tt.want || got.Channels() != tt.channels {
			t.Errorf("ParseFixtureKind(%q) = %q (%d channels)", tt.in, got, got.Channels())
		}
	}
}
