// Package devicemgr implements the device manager (component I): binding
// one physical device to its configuration, profile-driven context
// dispatch, and the lazily materialised effect-group cache.
package devicemgr

import (
	"fmt"
	"log/slog"
	"sync"

	ctxpkg "github.com/keyledsd/keyledsd/internal/context"
	"github.com/keyledsd/keyledsd/internal/config"
	"github.com/keyledsd/keyledsd/internal/keydb"
	"github.com/keyledsd/keyledsd/internal/plugin"
	"github.com/keyledsd/keyledsd/internal/plugin/service"
	"github.com/keyledsd/keyledsd/internal/render/color"
	"github.com/keyledsd/keyledsd/internal/render/loop"
)

// Identity is the device's static identifying information, surfaced to
// effects through their Service.
type Identity struct {
	Name   string // the configured display name, from devices: {serial: name}
	Model  string
	Serial string
}

// materializedGroup is one instantiated effect-group: its live effects
// (for dispatching context/key events) plus the release functions the
// plugin manager returned, so a later cache eviction can return use
// counts to zero cleanly.
type materializedGroup struct {
	effects  []plugin.Effect
	releases []func()
}

func (g *materializedGroup) renderers() []loop.Renderer {
	out := make([]loop.Renderer, len(g.effects))
	for i, e := range g.effects {
		out[i] = e
	}
	return out
}

// Manager binds a Device+KeyDatabase+RenderLoop and drives context
// dispatch across the configured profiles.
type Manager struct {
	identity  Identity
	keyDB     *keydb.Database
	loop      *loop.Loop
	pluginMgr *plugin.Manager
	logger    *slog.Logger
	dataPaths []string

	mu           sync.Mutex
	profiles     []config.CompiledProfile
	effectDefs   map[string]config.EffectGroupDef
	globalGroups map[string][]string
	materialized map[string]*materializedGroup
	current      ctxpkg.Context
}

// Config constructs a Manager.
type Config struct {
	Identity     Identity
	KeyDB        *keydb.Database
	Loop         *loop.Loop
	PluginMgr    *plugin.Manager
	Logger       *slog.Logger
	DataPaths    []string
	Profiles     []config.CompiledProfile
	Effects      map[string]config.EffectGroupDef
	GlobalGroups map[string][]string
}

// New constructs a Manager from cfg.
func New(cfg Config) *Manager {
	return &Manager{
		identity:     cfg.Identity,
		keyDB:        cfg.KeyDB,
		loop:         cfg.Loop,
		pluginMgr:    cfg.PluginMgr,
		logger:       cfg.Logger,
		dataPaths:    cfg.DataPaths,
		profiles:     cfg.Profiles,
		effectDefs:   cfg.Effects,
		globalGroups: cfg.GlobalGroups,
		materialized: make(map[string]*materializedGroup),
	}
}

// SetConfiguration replaces the profile/effect configuration and clears
// the materialised-effect cache, so the next SetContext rebuilds every
// effect from the new configuration instead of reusing stale instances.
func (m *Manager) SetConfiguration(profiles []config.CompiledProfile, effects map[string]config.EffectGroupDef, groups map[string][]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, g := range m.materialized {
		releaseGroup(g)
	}
	m.profiles = profiles
	m.effectDefs = effects
	m.globalGroups = groups
	m.materialized = make(map[string]*materializedGroup)
}

// SetContext runs the profile dispatch algorithm against the new window
// context and swaps the render loop's active renderer list.
func (m *Manager) SetContext(ctx ctxpkg.Context) error {
	m.mu.Lock()
	candidates := m.filterByDevice()
	selected := m.firstMatching(candidates, ctx)
	groupNames := m.effectiveGroupNames(candidates, selected)

	var renderers []loop.Renderer
	var effects []plugin.Effect
	for _, name := range groupNames {
		g, err := m.materializedGroupFor(name)
		if err != nil {
			if m.logger != nil {
				m.logger.Warn("skipping effect group", "group", name, "error", err)
			}
			continue
		}
		renderers = append(renderers, g.renderers()...)
		effects = append(effects, g.effects...)
	}
	m.current = ctx
	m.mu.Unlock()

	// The render-loop lock is held only for the swap itself (step 4);
	// handleContextChange calls happen outside it since they run
	// arbitrary plugin code.
	m.loop.SetRenderers(renderers)

	ctxMap := ctx.Map()
	for _, e := range effects {
		if h, ok := e.(plugin.ContextHandler); ok {
			h.HandleContextChange(ctxMap)
		}
	}
	return nil
}

// HandleKeyEvent routes a raw key press/release to every live effect.
func (m *Manager) HandleKeyEvent(keyCode int, pressed bool) {
	m.mu.Lock()
	groups := make([]*materializedGroup, 0, len(m.materialized))
	for _, g := range m.materialized {
		groups = append(groups, g)
	}
	m.mu.Unlock()

	for _, g := range groups {
		for _, e := range g.effects {
			if h, ok := e.(plugin.KeyEventHandler); ok {
				h.HandleKeyEvent(keyCode, pressed)
			}
		}
	}
}

// filterByDevice returns the configured profiles whose Devices list
// contains this manager's configured device name, or is empty (property 13).
func (m *Manager) filterByDevice() []*config.CompiledProfile {
	var out []*config.CompiledProfile
	for i := range m.profiles {
		if m.profiles[i].MatchesDevice(m.identity.Name) {
			out = append(out, &m.profiles[i])
		}
	}
	return out
}

// firstMatching finds the first non-default, non-overlay profile whose
// lookup matches ctx, falling back to __default__ (property 11).
func (m *Manager) firstMatching(candidates []*config.CompiledProfile, ctx ctxpkg.Context) *config.CompiledProfile {
	for _, p := range candidates {
		if p.Name == config.DefaultProfileName || p.Name == config.OverlayProfileName {
			continue
		}
		if p.MatchesContext(ctx.Get) {
			return p
		}
	}
	for _, p := range candidates {
		if p.Name == config.DefaultProfileName {
			return p
		}
	}
	return nil
}

// effectiveGroupNames concatenates the selected profile's effect groups
// with __overlay__'s, always appending overlay last when present: overlay
// is unconditionally additive rather than a competing match.
func (m *Manager) effectiveGroupNames(candidates []*config.CompiledProfile, selected *config.CompiledProfile) []string {
	var names []string
	if selected != nil {
		names = append(names, selected.Effects...)
	}
	for _, p := range candidates {
		if p.Name == config.OverlayProfileName {
			names = append(names, p.Effects...)
		}
	}
	return names
}

func (m *Manager) materializedGroupFor(name string) (*materializedGroup, error) {
	if g, ok := m.materialized[name]; ok {
		return g, nil
	}
	def, ok := m.effectDefs[name]
	if !ok {
		return nil, fmt.Errorf("devicemgr: effect group %q not configured", name)
	}

	groups := make(map[string]keydb.KeyGroup, len(def.Groups)+len(m.globalGroups))
	for gname, keys := range m.globalGroups {
		groups[gname] = m.keyDB.MakeGroup(gname, keys)
	}
	for gname, keys := range def.Groups {
		groups[gname] = m.keyDB.MakeGroup(gname, keys)
	}
	colors := make(map[string]color.RGBA, len(def.Colors))
	for cname, spec := range def.Colors {
		if c, err := color.ParseRGBA(spec); err == nil {
			colors[cname] = c
		}
	}

	g := &materializedGroup{}
	for _, ref := range def.Plugins {
		svc := service.New(service.Config{
			DeviceName:   m.identity.Name,
			DeviceModel:  m.identity.Model,
			DeviceSerial: m.identity.Serial,
			KeyDB:        m.keyDB,
			Groups:       groups,
			Options:      ref.Options,
			Colors:       colors,
			DataPaths:    m.dataPaths,
			Logger:       m.logger,
		})
		eff, release, err := m.pluginMgr.CreateEffect(ref.Effect, svc)
		if err != nil {
			// Plugin errors omit just this effect; the rest of the group
			// (and other groups) still proceed.
			if m.logger != nil {
				m.logger.Error("effect creation failed", "effect", ref.Effect, "error", err)
			}
			continue
		}
		g.effects = append(g.effects, eff)
		g.releases = append(g.releases, release)
	}

	m.materialized[name] = g
	return g, nil
}

func releaseGroup(g *materializedGroup) {
	for _, release := range g.releases {
		release()
	}
}
