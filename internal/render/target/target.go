// Package target implements the aligned RGBA render buffer every effect
// draws into, and the render loop diffs against device state each tick.
package target

import "github.com/keyledsd/keyledsd/internal/render/color"

// alignColors is the number of RGBA entries in one 32-byte SIMD vector
// (8 colors * 4 bytes = 32 bytes, the AVX2 register width).
const alignColors = 8

// align rounds size up to the next multiple of alignColors.
func align(size int) int {
	return (size + alignColors - 1) &^ (alignColors - 1)
}

// Target is an owned, contiguous RGBA buffer. Size tracks the logical
// number of keys; Capacity tracks the allocated length, always a multiple
// of 8 so the compositor kernels in internal/render/simd may safely read
// whole vectors past Size without touching unmapped memory. Entries in
// [Size, Capacity) are always zero.
//
// A zero-value Target is empty (Size==0, Capacity==0, Colors==nil) — the
// state of a moved-from target.
type Target struct {
	Colors   []color.RGBA
	size     int
}

// New allocates a Target able to hold size logical colors.
func New(size int) *Target {
	cap := align(size)
	return &Target{
		Colors: make([]color.RGBA, cap),
		size:   size,
	}
}

// Size returns the logical number of entries.
func (t *Target) Size() int { return t.size }

// Capacity returns the allocated number of entries (always size rounded up
// to a multiple of 8, >= Size).
func (t *Target) Capacity() int { return len(t.Colors) }

// Get returns the color at logical index i.
func (t *Target) Get(i int) color.RGBA { return t.Colors[i] }

// Set assigns the color at logical index i.
func (t *Target) Set(i int, c color.RGBA) { t.Colors[i] = c }

// Swap exchanges the contents of t and o in O(1) — no buffer is copied.
func Swap(t, o *Target) {
	t.Colors, o.Colors = o.Colors, t.Colors
	t.size, o.size = o.size, t.size
}

// Clear releases the backing buffer, leaving t empty (Size()==0).
func (t *Target) Clear() {
	t.Colors = nil
	t.size = 0
}

// Reset zeroes t in place and resizes it to size, reusing the existing
// backing array when it is already large enough. Unlike Clear, the
// backing array is only released (reallocated) when capacity is
// insufficient — this is what lets a pooled or per-tick buffer be reused
// across render passes without an allocation on the common path.
func (t *Target) Reset(size int) {
	needed := align(size)
	if cap(t.Colors) < needed {
		t.Colors = make([]color.RGBA, needed)
	} else {
		t.Colors = t.Colors[:needed]
		for i := range t.Colors {
			t.Colors[i] = color.RGBA{}
		}
	}
	t.size = size
}

// Clone returns a new, independent Target with the same contents.
func (t *Target) Clone() *Target {
	c := &Target{Colors: make([]color.RGBA, len(t.Colors)), size: t.size}
	copy(c.Colors, t.Colors)
	return c
}
