// SPDX-License-Identifier: MIT
package lighting

import (
	"math"

	colorful "github.com/lucasb-eyer/go-colorful"
)

// hsv returns the fully saturated color at hue h, in turns. h wraps.
func hsv(h float64) RGB {
	h = h - math.Floor(h)
	r, g, b := colorful.Hsv(h*360, 1, 1).Clamped().RGB255()
	return RGB{r, g, b}
}

// mix blends a toward b by m in [0,1] in linear RGB.
func mix(a, b RGB, m float64) RGB {
	ca := colorful.Color{R: float64(a[0]) / 255, G: float64(a[1]) / 255, B: float64(a[2]) / 255}
	cb := colorful.Color{R: float64(b[0]) / 255, G: float64(b[1]) / 255, B: float64(b[2]) / 255}
	r, g, bl := ca.BlendRgb(cb, m).Clamped().RGB255()
	return RGB{r, g, bl}
}

// String formats the color as a hex triplet.
func (c RGB) String() string {
	return colorful.Color{R: float64(c[0]) / 255, G: float64(c[1]) / 255, B: float64(c[2]) / 255}.Hex()
}
