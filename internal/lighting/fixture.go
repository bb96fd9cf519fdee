// SPDX-License-Identifier: MIT
package lighting

import (
	"fmt"
)

// FixtureKind is the channel layout of a fixture.
type FixtureKind string

const (
	// Panel: dimmer, R, G, B.
	Panel FixtureKind = "panel"
	// Bar: dimmer, three RGB cells, strobe, program, speed, rotation.
	Bar FixtureKind = "bar"
)

const (
	panelChannels = 4
	barChannels   = 14
	barCells      = 3
)

// Channels returns the footprint of the layout.
func (k FixtureKind) Channels() int {
	switch k {
	case Panel:
		return panelChannels
	case Bar:
		return barChannels
	}
	return 0
}

// ParseFixtureKind accepts "panel" or "bar".
func ParseFixtureKind(s string) (FixtureKind, error) {
	switch k := FixtureKind(s); k {
	case Panel, Bar:
		return k, nil
	}
	return "", fmt.Errorf("unknown fixture kind %q", s)
}

// Fixture places one light in the universe.
type Fixture struct {
	Name    string      `json:"name"`
	Kind    FixtureKind `json:"kind"`
	Address int         `json:"address"`
}

// render writes the fixture's channels into dst. A bar's trailing control
// channels are always zero so its built-in programs stay off.
func (f Fixture) render(dst map[int]int, c RGB, b float64) {
	r, g, bl := scale(c[0], b), scale(c[1], b), scale(c[2], b)
	dst[f.Address] = 255
	switch f.Kind {
	case Panel:
		dst[f.Address+1] = r
		dst[f.Address+2] = g
		dst[f.Address+3] = bl
	case Bar:
		for cell := range barCells {
			base := f.Address + 1 + cell*3
			dst[base] = r
			dst[base+1] = g
			dst[base+2] = bl
		}
		for ch := f.Address + 1 + barCells*3; ch < f.Address+barChannels; ch++ {
			dst[ch] = 0
		}
	}
}

func scale(v uint8, b float64) int {
	switch {
	case b <= 0:
		return 0
	case b >= 1:
		return int(v)
	}
	return int(float64(v) * b)
}
