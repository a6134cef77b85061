package wave

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keyledsd/keyledsd/internal/keydb"
	"github.com/keyledsd/keyledsd/internal/plugin/service"
	"github.com/keyledsd/keyledsd/internal/render/target"
)

func newSvc(options map[string]any) *service.Service {
	keys := []keydb.Key{
		{Index: 0, Rect: keydb.Rect{X0: 0, Y0: 0, X1: 10, Y1: 10}},
		{Index: 1, Rect: keydb.Rect{X0: 100, Y0: 0, X1: 110, Y1: 10}},
	}
	return service.New(service.Config{Options: options, KeyDB: keydb.New(keys)})
}

func TestWaveRendersWithoutPanicking(t *testing.T) {
	svc := newSvc(map[string]any{"period": "2000ms", "length": "500"})
	eff, err := New("wave", svc)
	require.NoError(t, err)

	tgt := target.New(2)
	for i := 0; i < 5; i++ {
		tgt.Reset(2)
		eff.Render(300, tgt)
	}
	// Wave always writes fully opaque colors from its gradient table, so
	// every rendered key should end with full alpha after blending.
	assert.Equal(t, uint8(0xff), tgt.Get(0).A)
}

func TestWaveRestrictsToConfiguredGroup(t *testing.T) {
	db := keydb.New([]keydb.Key{
		{Index: 0, Name: "A", Rect: keydb.Rect{X0: 0, Y0: 0, X1: 10, Y1: 10}},
		{Index: 1, Name: "B", Rect: keydb.Rect{X0: 50, Y0: 0, X1: 60, Y1: 10}},
	})
	group := db.MakeGroup("g", []string{"A"})
	svc := service.New(service.Config{
		Options: map[string]any{"group": "g"},
		Groups:  map[string]keydb.KeyGroup{"g": group},
		KeyDB:   db,
	})
	eff, err := New("wave", svc)
	require.NoError(t, err)

	tgt := target.New(2)
	assert.NotPanics(t, func() { eff.Render(100, tgt) })
	// Only key A (index 0) is in the group, so key B (index 1) stays untouched.
	assert.Equal(t, uint8(0xff), tgt.Get(0).A)
	assert.Equal(t, uint8(0), tgt.Get(1).A)
}
