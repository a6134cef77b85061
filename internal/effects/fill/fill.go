// Package fill implements the "fill" built-in effect: a flat background
// color plus optional per-group color overrides, ported from
// plugins/fill.cxx.
package fill

import (
	"github.com/keyledsd/keyledsd/internal/keydb"
	"github.com/keyledsd/keyledsd/internal/plugin"
	"github.com/keyledsd/keyledsd/internal/plugin/service"
	"github.com/keyledsd/keyledsd/internal/render/color"
	"github.com/keyledsd/keyledsd/internal/render/target"
)

func init() {
	plugin.Register("fill", New)
}

type rule struct {
	keys  keydb.KeyGroup
	color color.RGBA
}

type effect struct {
	fillColor color.RGBA
	rules     []rule
}

// New constructs the fill effect: conf["color"] sets the background (a
// zero-alpha default leaves existing buffer contents untouched), and any
// other configured key referring to a known group overrides that group's
// color.
func New(_ string, svc *service.Service) (plugin.Effect, error) {
	e := &effect{}
	if c, err := service.GetConfig[color.RGBA](svc, "color"); err == nil {
		e.fillColor = c
	}
	for name, g := range allGroups(svc) {
		if c, err := service.GetConfig[color.RGBA](svc, name); err == nil {
			e.rules = append(e.rules, rule{keys: g, color: c})
		}
	}
	return e, nil
}

// allGroups walks every group name the effect's configuration references
// (besides "color"), resolving each through the service.
func allGroups(svc *service.Service) map[string]keydb.KeyGroup {
	out := map[string]keydb.KeyGroup{}
	for _, key := range svc.OptionKeys() {
		if key == "color" {
			continue
		}
		if g, ok := svc.KeyGroup(key); ok {
			out[key] = g
		}
	}
	return out
}

func (e *effect) Render(elapsedMS int64, buf any) {
	t := buf.(*target.Target)
	if e.fillColor.A > 0 {
		for i := 0; i < t.Size(); i++ {
			t.Set(i, e.fillColor)
		}
	}
	for _, r := range e.rules {
		for i := 0; i < r.keys.Len(); i++ {
			t.Set(r.keys.At(i).Index, r.color)
		}
	}
}
