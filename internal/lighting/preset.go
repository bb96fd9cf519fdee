// SPDX-License-Identifier: MIT
package lighting

import (
	"errors"
	"fmt"
	"sort"
)

// Preset identifies a named look.
type Preset int

const (
	TechnoRed Preset = iota
	AcidGreen
	IndustrialAmber
	BerlinWhite
	HouseShuffle
	DanceRG
	AlternatingKick
	MinimalGlitch
	BarbieParty
	VividPop
	SunsetSlow
	PastelDream
	AlarmFlash
	StrobeWhite
	Blackout
)

// Kind selects how a preset modulates brightness and color over time.
type Kind int

const (
	KindPulse       Kind = iota // brightness decays from 1.0 after each beat
	KindSine                    // slow breathing, period in beats
	KindRainbow                 // hue rotation, period in beats
	KindStrobe                  // 15 Hz white strobe
	KindGlitch                  // random sparse flashes
	KindAlternating             // one parity on, the other off, swapped on beat
	KindPalette                 // cycles through palette pairs every two beats
	KindTwoTone                 // swaps the two base colors on beat
	KindCrossfade               // sine mix between the two base colors
	KindBlackout
)

var kindNames = [...]string{
	KindPulse:       "pulse",
	KindSine:        "sine",
	KindRainbow:     "rainbow",
	KindStrobe:      "strobe",
	KindGlitch:      "glitch",
	KindAlternating: "alternating",
	KindPalette:     "palette",
	KindTwoTone:     "two_tone",
	KindCrossfade:   "crossfade",
	KindBlackout:    "blackout",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// RGB is an 8-bit color.
type RGB [3]uint8

// Pair holds the colors for even and odd fixture slots.
type Pair [2]RGB

// Descriptor is the immutable definition of a preset.
type Descriptor struct {
	Name    string
	Kind    Kind
	Colors  Pair
	Divider int // act on every Divider-th beat

	// Palette is cycled by KindPalette, or sampled per slot on beat when
	// Shuffle is set.
	Palette []Pair
	Shuffle bool

	// PeriodBeats sets the sine, rainbow and crossfade period in beats.
	PeriodBeats float64

	// Alternate masks a pulse preset so only one parity is lit per beat.
	Alternate bool

	// FlashHz strobes a two-tone preset at a fixed rate when non-zero.
	FlashHz float64
}

var (
	red     = RGB{255, 0, 0}
	green   = RGB{0, 255, 0}
	blue    = RGB{0, 0, 255}
	white   = RGB{255, 255, 255}
	yellow  = RGB{255, 255, 0}
	cyan    = RGB{0, 255, 255}
	magenta = RGB{255, 0, 255}
)

var descriptors = [...]Descriptor{
	TechnoRed:       {Name: "techno_red", Kind: KindPulse, Colors: Pair{red, red}},
	AcidGreen:       {Name: "acid_green", Kind: KindPulse, Colors: Pair{{50, 255, 0}, {200, 255, 0}}},
	IndustrialAmber: {Name: "industrial_amber", Kind: KindSine, Colors: Pair{{255, 100, 0}, {255, 50, 0}}, PeriodBeats: 16},
	BerlinWhite:     {Name: "berlin_white", Kind: KindPulse, Colors: Pair{white, white}},
	HouseShuffle:    {Name: "house_shuffle", Kind: KindPulse, Colors: Pair{yellow, cyan}, Alternate: true},
	DanceRG:         {Name: "dance_rg", Kind: KindTwoTone, Colors: Pair{red, green}},
	AlternatingKick: {Name: "alternating_kick", Kind: KindAlternating, Colors: Pair{red, blue}},
	MinimalGlitch:   {Name: "minimal_glitch", Kind: KindGlitch, Colors: Pair{white, {120, 0, 255}}},
	BarbieParty: {
		Name: "barbie_party", Kind: KindPulse,
		Colors:  Pair{{255, 20, 147}, {255, 105, 180}},
		Palette: []Pair{{{255, 20, 147}, {255, 20, 147}}, {{255, 105, 180}, {255, 105, 180}}, {magenta, magenta}},
		Shuffle: true,
	},
	VividPop:   {Name: "vivid_pop", Kind: KindRainbow, PeriodBeats: 32},
	SunsetSlow: {Name: "sunset_slow", Kind: KindCrossfade, Colors: Pair{{255, 80, 0}, {200, 0, 120}}, PeriodBeats: 32},
	PastelDream: {
		Name: "pastel_dream", Kind: KindPalette,
		Palette: []Pair{
			{{255, 182, 193}, {173, 216, 230}},
			{{221, 160, 221}, {152, 251, 152}},
			{{255, 218, 185}, {176, 224, 230}},
			{{230, 230, 250}, {255, 250, 205}},
		},
	},
	AlarmFlash:  {Name: "alarm_flash", Kind: KindTwoTone, Colors: Pair{red, blue}, Divider: 2, FlashHz: 4},
	StrobeWhite: {Name: "strobe_white", Kind: KindStrobe, Colors: Pair{white, white}},
	Blackout:    {Name: "blackout", Kind: KindBlackout},
}

var byName = func() map[string]Preset {
	m := make(map[string]Preset, len(descriptors))
	for p, d := range descriptors {
		m[d.Name] = Preset(p)
	}
	return m
}()

// Descriptor returns the preset's definition.
func (p Preset) Descriptor() Descriptor {
	d := descriptors[p]
	if d.Divider < 1 {
		d.Divider = 1
	}
	if d.Kind == KindPalette && len(d.Palette) > 0 {
		d.Colors = d.Palette[0]
	}
	return d
}

func (p Preset) String() string {
	if p < 0 || int(p) >= len(descriptors) {
		return fmt.Sprintf("Preset(%d)", int(p))
	}
	return descriptors[p].Name
}

// ErrUnknownPreset is matched by every *UnknownPresetError.
var ErrUnknownPreset = errors.New("lighting: unknown preset")

// UnknownPresetError reports a preset name not in the table.
type UnknownPresetError struct {
	Name string
}

func (e *UnknownPresetError) Error() string {
	return fmt.Sprintf("lighting: unknown preset %q", e.Name)
}

func (e *UnknownPresetError) Is(target error) bool { return target == ErrUnknownPreset }

// ParsePreset looks a preset up by name.
func ParsePreset(name string) (Preset, error) {
	p, ok := byName[name]
	if !ok {
		return 0, &UnknownPresetError{Name: name}
	}
	return p, nil
}

// Presets lists every preset in table order.
func Presets() []Preset {
	out := make([]Preset, len(descriptors))
	for i := range out {
		out[i] = Preset(i)
	}
	return out
}

// PresetNames returns the preset names sorted alphabetically.
func PresetNames() []string {
	names := make([]string, 0, len(byName))
	for n := range byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
