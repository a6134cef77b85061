// Package keydb holds the compiled key database: the map from a device's
// physical keys to render-target indices, input-event keycodes, and layout
// geometry, built once per device open.
package keydb

import "math"

// Rect is an integer bounding box in the keyboard-layout coordinate system.
type Rect struct {
	X0, Y0, X1, Y1 int
}

// Key describes one physical, addressable key.
type Key struct {
	Index   int    // offset into the device's RenderTarget
	KeyCode int     // Linux input event code
	Name    string  // ASCII label, case-sensitive
	Rect    Rect
}

// Database is an ordered, immutable sequence of keys. It outlives every
// KeyGroup derived from it; moving or discarding a Database invalidates
// groups built from it (in Go terms: don't keep using a KeyGroup after its
// Database has been replaced by a later device reopen).
type Database struct {
	keys   []Key
	bounds Rect
}

// New builds a Database from a flat key list, in device-reported order.
func New(keys []Key) *Database {
	d := &Database{keys: keys, bounds: computeBounds(keys)}
	return d
}

func computeBounds(keys []Key) Rect {
	if len(keys) == 0 {
		return Rect{}
	}
	b := keys[0].Rect
	for _, k := range keys[1:] {
		if k.Rect.X0 < b.X0 {
			b.X0 = k.Rect.X0
		}
		if k.Rect.Y0 < b.Y0 {
			b.Y0 = k.Rect.Y0
		}
		if k.Rect.X1 > b.X1 {
			b.X1 = k.Rect.X1
		}
		if k.Rect.Y1 > b.Y1 {
			b.Y1 = k.Rect.Y1
		}
	}
	return b
}

// Len returns the number of keys in the database.
func (d *Database) Len() int { return len(d.keys) }

// At returns the key at ordinal position i.
func (d *Database) At(i int) Key { return d.keys[i] }

// Keys returns the full ordered key slice. Callers must not mutate it.
func (d *Database) Keys() []Key { return d.keys }

// Bounds returns the bounding rectangle of every key's position.
func (d *Database) Bounds() Rect { return d.bounds }

// FindKeyCode returns the key with the given Linux input event code, and
// whether one was found.
func (d *Database) FindKeyCode(code int) (Key, bool) {
	for _, k := range d.keys {
		if k.KeyCode == code {
			return k, true
		}
	}
	return Key{}, false
}

// FindName returns the key with the given case-sensitive name.
func (d *Database) FindName(name string) (Key, bool) {
	for _, k := range d.keys {
		if k.Name == name {
			return k, true
		}
	}
	return Key{}, false
}

// center returns the geometric center of a key's rectangle.
func center(r Rect) (x, y float64) {
	return float64(r.X0+r.X1) / 2, float64(r.Y0+r.Y1) / 2
}

// Distance returns the Euclidean distance between two keys' centers, in
// layout units, rounded to the nearest integer.
func (d *Database) Distance(a, b Key) uint {
	ax, ay := center(a.Rect)
	bx, by := center(b.Rect)
	dx, dy := ax-bx, ay-by
	return uint(math.Round(math.Sqrt(dx*dx + dy*dy)))
}

// Angle returns the angle in radians from a to b, as the original library
// needs it for directional effects (wave, ripple).
func (d *Database) Angle(a, b Key) float64 {
	ax, ay := center(a.Rect)
	bx, by := center(b.Rect)
	return math.Atan2(by-ay, bx-ax)
}

// MakeGroup builds a KeyGroup out of the keys whose names are in names.
// Unknown names are silently skipped, matching the original library's
// templated makeGroup.
func (d *Database) MakeGroup(name string, names []string) KeyGroup {
	var keys []Key
	for _, n := range names {
		if k, ok := d.FindName(n); ok {
			keys = append(keys, k)
		}
	}
	return KeyGroup{Name: name, keys: keys}
}

// KeyGroup is a named subset of a Database's keys, referenced by effects
// and effect-group configuration. It holds copies of the matched Key
// values (Go values are immutable enough that no aliasing hazard exists
// the way the C++ original had to guard against with iterator stability).
type KeyGroup struct {
	Name string
	keys []Key
}

// Len returns the number of keys in the group.
func (g KeyGroup) Len() int { return len(g.keys) }

// At returns the i'th key in the group.
func (g KeyGroup) At(i int) Key { return g.keys[i] }

// Keys returns every key in the group, in group order.
func (g KeyGroup) Keys() []Key { return g.keys }
