// Package context implements the key/value Context that effects and the
// device manager use to decide which profile (and therefore which effects)
// is active at any moment. This is unrelated to the stdlib context.Context.
package context

import "strings"

// entry is one insertion-ordered key/value pair.
type entry struct {
	key, value string
}

// Context is an insertion-unordered set of (string,string) entries with
// unique keys. Merging another Context replaces values and deletes keys
// whose new value is the empty string.
type Context struct {
	entries []entry
}

// New builds a Context from the given key/value pairs, applied in order
// (later duplicate keys win, matching Merge's replace semantics).
func New(pairs ...[2]string) Context {
	var c Context
	for _, p := range pairs {
		c.Set(p[0], p[1])
	}
	return c
}

// Get returns the value for key, or "" if unset.
func (c *Context) Get(key string) string {
	for _, e := range c.entries {
		if e.key == key {
			return e.value
		}
	}
	return ""
}

// Set assigns key to value, deleting the key if value is empty. Existing
// keys keep their original position; new keys append.
func (c *Context) Set(key, value string) {
	for i, e := range c.entries {
		if e.key == key {
			if value == "" {
				c.entries = append(c.entries[:i], c.entries[i+1:]...)
				return
			}
			c.entries[i].value = value
			return
		}
	}
	if value != "" {
		c.entries = append(c.entries, entry{key, value})
	}
}

// Merge overlays other onto c: every key in other is Set on c, in other's
// iteration order.
func (c *Context) Merge(other Context) {
	for _, e := range other.entries {
		c.Set(e.key, e.value)
	}
}

// Len returns the number of entries.
func (c *Context) Len() int { return len(c.entries) }

// Keys returns the entry keys, in insertion order.
func (c *Context) Keys() []string {
	keys := make([]string, len(c.entries))
	for i, e := range c.entries {
		keys[i] = e.key
	}
	return keys
}

// Equal reports whether c and other hold the same entries in the same order.
func (c Context) Equal(other Context) bool {
	if len(c.entries) != len(other.entries) {
		return false
	}
	for i, e := range c.entries {
		if e != other.entries[i] {
			return false
		}
	}
	return true
}

// String renders the context as "key=value, key2=value2", for log lines.
func (c Context) String() string {
	var b strings.Builder
	for i, e := range c.entries {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(e.key)
		b.WriteByte('=')
		b.WriteString(e.value)
	}
	return b.String()
}

// Map returns the context's entries as a plain map, for handing to plugin
// code over the Effect capability interfaces (which know nothing of this
// package's ordered-set type).
func (c Context) Map() map[string]string {
	m := make(map[string]string, len(c.entries))
	for _, e := range c.entries {
		m[e.key] = e.value
	}
	return m
}

// Clone returns an independent copy of c.
func (c Context) Clone() Context {
	out := Context{entries: make([]entry, len(c.entries))}
	copy(out.entries, c.entries)
	return out
}
