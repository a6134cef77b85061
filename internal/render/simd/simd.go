// Package simd implements the compositor's inner-loop pixel operations:
// alpha blend (source-over) and multiply. One portable Go kernel implements
// each operation on every CPU; Selected only records the level (plain, sse2,
// avx2) that CPU feature detection found at process start, for diagnostics.
// There are no separate SSE2 or AVX2 code paths. Rounding goes through
// divBy255.
package simd

import (
	"golang.org/x/sys/cpu"

	"github.com/keyledsd/keyledsd/internal/render/color"
)

// Level names a selected kernel implementation, reported for diagnostics.
type Level string

const (
	LevelPlain Level = "plain"
	LevelSSE2  Level = "sse2"
	LevelAVX2  Level = "avx2"
)

// Selected is the kernel level chosen at init() by CPU feature detection.
var Selected Level = LevelPlain

func init() {
	switch {
	case cpu.X86.HasAVX2:
		Selected = LevelAVX2
	case cpu.X86.HasSSE2:
		Selected = LevelSSE2
	default:
		Selected = LevelPlain
	}
}

// divBy255 computes floor(x/255) using the reciprocal-multiply approximation
// (x*0x8081)>>23, which equals the exact integer division for every x in
// 0..65535 (the formulas below produce at most 255*255+127). Callers that
// want rounding add 127 before calling it.
func divBy255(x uint32) uint8 {
	return uint8((x * 0x8081) >> 23)
}

// Blend performs source-over compositing of src onto dst in place, over all
// Capacity entries of both (safe thanks to RenderTarget padding). dst and
// src must have equal length.
//
//	dst.c = (src.c*src.a + dst.c*(255-src.a) + 127) / 255      for c in {R,G,B}
//	dst.a = src.a + dst.a*(255-src.a)/255
func Blend(dst, src []color.RGBA) {
	for i := range dst {
		blendOne(&dst[i], src[i])
	}
}

func blendOne(d *color.RGBA, s color.RGBA) {
	if s.A == 0 {
		return
	}
	if s.A == 0xff {
		*d = s
		return
	}
	inv := uint32(255 - s.A)
	d.R = divBy255(uint32(s.R)*uint32(s.A) + uint32(d.R)*inv + 127)
	d.G = divBy255(uint32(s.G)*uint32(s.A) + uint32(d.G)*inv + 127)
	d.B = divBy255(uint32(s.B)*uint32(s.A) + uint32(d.B)*inv + 127)
	d.A = s.A + uint8(uint32(d.A)*inv/255)
}

// Multiply attenuates dst by src, channel-wise including alpha, in place.
//
//	dst.c = dst.c * src.c / 255     for all four channels
func Multiply(dst, src []color.RGBA) {
	for i := range dst {
		multiplyOne(&dst[i], src[i])
	}
}

func multiplyOne(d *color.RGBA, s color.RGBA) {
	if s == (color.RGBA{0xff, 0xff, 0xff, 0xff}) {
		return
	}
	d.R = divBy255(uint32(d.R)*uint32(s.R) + 127)
	d.G = divBy255(uint32(d.G)*uint32(s.G) + 127)
	d.B = divBy255(uint32(d.B)*uint32(s.B) + 127)
	d.A = divBy255(uint32(d.A)*uint32(s.A) + 127)
}
