package devicemgr

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ctxpkg "github.com/keyledsd/keyledsd/internal/context"
	"github.com/keyledsd/keyledsd/internal/config"
	"github.com/keyledsd/keyledsd/internal/hidpp/feature"
	"github.com/keyledsd/keyledsd/internal/keydb"
	"github.com/keyledsd/keyledsd/internal/plugin"
	"github.com/keyledsd/keyledsd/internal/plugin/service"
	"github.com/keyledsd/keyledsd/internal/render/loop"
)

// recordingEffect is a native test effect that counts renders and factory
// calls and records every context/key-event callback it receives.
type recordingEffect struct {
	name string

	mu       sync.Mutex
	created  int
	renders  int
	contexts []map[string]string
	keys     []int
}

func (e *recordingEffect) Render(elapsedMS int64, buf any) {
	e.mu.Lock()
	e.renders++
	e.mu.Unlock()
}

func (e *recordingEffect) HandleContextChange(ctx map[string]string) {
	e.mu.Lock()
	e.contexts = append(e.contexts, ctx)
	e.mu.Unlock()
}

func (e *recordingEffect) HandleKeyEvent(keyCode int, pressed bool) {
	e.mu.Lock()
	e.keys = append(e.keys, keyCode)
	e.mu.Unlock()
}

var registerOnce sync.Once
var registeredEffects map[string]*recordingEffect

func registerTestEffects() map[string]*recordingEffect {
	registerOnce.Do(func() {
		registeredEffects = map[string]*recordingEffect{
			"bg-effect":    {name: "bg-effect"},
			"coding-effect": {name: "coding-effect"},
			"overlay-effect": {name: "overlay-effect"},
		}
		for name, eff := range registeredEffects {
			e := eff
			plugin.Register(name, func(_ string, _ *service.Service) (plugin.Effect, error) {
				e.mu.Lock()
				e.created++
				e.mu.Unlock()
				return e, nil
			})
		}
	})
	return registeredEffects
}

type noopDevice struct{}

func (noopDevice) SetLEDs(block uint8, leds []feature.LED) error { return nil }
func (noopDevice) CommitLEDs() error                              { return nil }
func (noopDevice) Ping() error                                    { return nil }

func newTestManager(t *testing.T) (*Manager, map[string]*recordingEffect) {
	t.Helper()
	effects := registerTestEffects()
	// The registered instances are shared by every test; start each test
	// from a clean record.
	for _, e := range effects {
		e.mu.Lock()
		e.created, e.renders, e.contexts, e.keys = 0, 0, nil, nil
		e.mu.Unlock()
	}

	l := loop.New(loop.Config{Device: noopDevice{}, Blocks: nil, Size: 4, FPS: 30})
	t.Cleanup(l.Stop)

	pm := plugin.NewManager(nil, plugin.Host{}, nil)
	db := keydb.New(nil)

	profiles, errs := config.CompileProfiles(&config.Document{
		Profiles: []config.ProfileDef{
			{Name: config.DefaultProfileName, Effects: []string{"bg"}},
			{Name: "coding", Lookup: map[string]string{"class": "kate"}, Effects: []string{"coding"}},
			{Name: config.OverlayProfileName, Effects: []string{"overlay"}},
		},
	})
	require.Empty(t, errs)

	effectDefs := map[string]config.EffectGroupDef{
		"bg":      {Plugins: []config.PluginRef{{Plugin: "bg-effect", Effect: "bg-effect"}}},
		"coding":  {Plugins: []config.PluginRef{{Plugin: "coding-effect", Effect: "coding-effect"}}},
		"overlay": {Plugins: []config.PluginRef{{Plugin: "overlay-effect", Effect: "overlay-effect"}}},
	}

	m := New(Config{
		Identity:  Identity{Name: "TestBoard"},
		KeyDB:     db,
		Loop:      l,
		PluginMgr: pm,
		Profiles:  profiles,
		Effects:   effectDefs,
	})
	return m, effects
}

func TestSetContextFallsBackToDefault(t *testing.T) {
	m, effects := newTestManager(t)
	require.NoError(t, m.SetContext(ctxpkg.New([2]string{"class", "firefox"})))

	assert.Len(t, effects["bg-effect"].contexts, 1)
	assert.Len(t, effects["coding-effect"].contexts, 0)
	assert.Len(t, effects["overlay-effect"].contexts, 1) // overlay always appended
}

func TestSetContextMatchesFirstProfile(t *testing.T) {
	m, effects := newTestManager(t)
	require.NoError(t, m.SetContext(ctxpkg.New([2]string{"class", "kate"})))

	assert.Len(t, effects["bg-effect"].contexts, 0)
	assert.Len(t, effects["coding-effect"].contexts, 1)
	assert.Len(t, effects["overlay-effect"].contexts, 1)
}

func TestSetContextCallsHandleContextChangeOnMaterializedEffects(t *testing.T) {
	m, effects := newTestManager(t)
	require.NoError(t, m.SetContext(ctxpkg.New([2]string{"class", "kate"})))

	require.Len(t, effects["coding-effect"].contexts, 1)
	assert.Equal(t, "kate", effects["coding-effect"].contexts[0]["class"])
}

func TestSetContextReusesMaterializedEffectAcrossCalls(t *testing.T) {
	m, effects := newTestManager(t)
	require.NoError(t, m.SetContext(ctxpkg.New([2]string{"class", "kate"})))
	require.NoError(t, m.SetContext(ctxpkg.New([2]string{"class", "kate"})))

	// The materialised group is reused, so the factory runs once while the
	// same instance receives both dispatch calls.
	assert.Equal(t, 1, effects["coding-effect"].created)
	assert.Len(t, effects["coding-effect"].contexts, 2)
}

func TestHandleKeyEventRoutesToLiveEffects(t *testing.T) {
	m, effects := newTestManager(t)
	require.NoError(t, m.SetContext(ctxpkg.New([2]string{"class", "kate"})))

	m.HandleKeyEvent(30, true)

	require.Len(t, effects["coding-effect"].keys, 1)
	assert.Equal(t, 30, effects["coding-effect"].keys[0])
}
