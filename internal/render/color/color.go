// Package color holds the RGB/RGBA color types shared by the render target,
// the compositor kernels, and effect configuration decoding.
package color

import (
	"fmt"
	"strconv"
	"strings"
)

// RGB is a tightly packed 8-bit-per-channel color with no alpha. It is the
// wire format for set_leds: alpha is purely a composition concept.
type RGB struct {
	R, G, B uint8
}

// RGBA is a tightly packed 8-bit-per-channel color with alpha. Alpha is the
// source-over opacity used by Blend; it is discarded when a RenderTarget
// entry is committed to the wire as an RGB.
type RGBA struct {
	R, G, B, A uint8
}

// Opaque returns c as an RGBA with full alpha.
func (c RGB) Opaque() RGBA { return RGBA{c.R, c.G, c.B, 0xff} }

// RGB discards alpha.
func (c RGBA) RGB() RGB { return RGB{c.R, c.G, c.B} }

func (c RGB) String() string { return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B) }
func (c RGBA) String() string {
	return fmt.Sprintf("#%02x%02x%02x%02x", c.R, c.G, c.B, c.A)
}

// ParseRGB parses a "#rrggbb" or "rrggbb" string into an RGB value.
func ParseRGB(s string) (RGB, error) {
	s = strings.TrimPrefix(s, "#")
	if len(s) != 6 {
		return RGB{}, fmt.Errorf("color: %q is not a 6-digit hex color", s)
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return RGB{}, fmt.Errorf("color: %q: %w", s, err)
	}
	return RGB{
		R: uint8(v >> 16),
		G: uint8(v >> 8),
		B: uint8(v),
	}, nil
}

// ParseRGBA parses a "#rrggbb", "rrggbb", "#rrggbbaa" or "rrggbbaa" string.
// A missing alpha channel defaults to fully opaque.
func ParseRGBA(s string) (RGBA, error) {
	s = strings.TrimPrefix(s, "#")
	switch len(s) {
	case 6:
		rgb, err := ParseRGB(s)
		if err != nil {
			return RGBA{}, err
		}
		return rgb.Opaque(), nil
	case 8:
		v, err := strconv.ParseUint(s, 16, 32)
		if err != nil {
			return RGBA{}, fmt.Errorf("color: %q: %w", s, err)
		}
		return RGBA{
			R: uint8(v >> 24),
			G: uint8(v >> 16),
			B: uint8(v >> 8),
			A: uint8(v),
		}, nil
	default:
		return RGBA{}, fmt.Errorf("color: %q is not a 6 or 8-digit hex color", s)
	}
}
