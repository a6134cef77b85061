// Package config parses and represents the daemon's YAML configuration
// document: plugin search paths, device naming, key groups, effect
// groups, and context-dispatch profiles.
package config

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// Document is the root of a parsed configuration file.
type Document struct {
	Plugins     []string                  `yaml:"plugins"`
	PluginPaths []string                  `yaml:"plugin-paths"`
	Devices     map[string]string         `yaml:"devices"` // serial -> configured name
	Groups      map[string][]string       `yaml:"groups"`  // group name -> key names
	Effects     map[string]EffectGroupDef `yaml:"effects"`
	Profiles    []ProfileDef              `yaml:"profiles"`
}

// EffectGroupDef is one named, reusable bundle of plugin-backed effect
// instantiations, referenced by name from profiles.
type EffectGroupDef struct {
	Groups  map[string][]string `yaml:"groups"` // local key-group name -> key names, visible to this group's effects
	Colors  map[string]string   `yaml:"colors"` // named palette, visible to this group's effects
	Plugins []PluginRef         `yaml:"plugins"`
}

// PluginRef instantiates one effect from a plugin (or the registered
// effect name, when it differs from the library name), plus whatever
// free-form options that effect's configuration decoder understands.
type PluginRef struct {
	Plugin  string
	Effect  string
	Options map[string]any
}

// UnmarshalYAML decodes a plugin reference's fixed fields (plugin, effect)
// plus passes every other mapping key through to Options, since each
// plugin defines its own configuration shape.
func (p *PluginRef) UnmarshalYAML(node *yaml.Node) error {
	var raw map[string]any
	if err := node.Decode(&raw); err != nil {
		return err
	}
	p.Options = make(map[string]any, len(raw))
	for k, v := range raw {
		switch k {
		case "plugin":
			s, _ := v.(string)
			p.Plugin = s
		case "effect":
			s, _ := v.(string)
			p.Effect = s
		default:
			p.Options[k] = normalizeOption(v)
		}
	}
	if p.Effect == "" {
		p.Effect = p.Plugin
	}
	if p.Plugin == "" {
		return fmt.Errorf("config: plugin reference missing \"plugin\" key")
	}
	return nil
}

// normalizeOption coerces a YAML-decoded value into the two shapes the
// effect service's configuration decoder understands: a scalar string, or
// a string sequence. This keeps internal/plugin/service free of any
// knowledge of YAML's generic any-typed decode result.
func normalizeOption(v any) any {
	switch val := v.(type) {
	case []any:
		out := make([]string, len(val))
		for i, e := range val {
			out[i] = fmt.Sprint(e)
		}
		return out
	case string:
		return val
	default:
		return fmt.Sprint(val)
	}
}

// ProfileDef is one context-conditional selection of effect groups.
type ProfileDef struct {
	Name    string            `yaml:"name"`
	Devices []string          `yaml:"devices"`
	Lookup  map[string]string `yaml:"lookup"` // context key -> regex pattern
	Effects []string          `yaml:"effects"`
}

// Parse decodes a configuration document from r.
func Parse(r io.Reader) (*Document, error) {
	var doc Document
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(&doc); err != nil {
		return nil, &ParseError{Err: err}
	}
	return &doc, nil
}

// ParseError wraps a YAML decode failure. yaml.v3 embeds line information
// in the underlying *yaml.TypeError when available; ParseError surfaces it
// unchanged rather than reformatting it, so configuration errors keep
// carrying the offending line number.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string { return fmt.Sprintf("config: %v", e.Err) }
func (e *ParseError) Unwrap() error { return e.Err }
