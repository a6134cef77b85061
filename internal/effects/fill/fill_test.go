package fill

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keyledsd/keyledsd/internal/keydb"
	"github.com/keyledsd/keyledsd/internal/plugin/service"
	"github.com/keyledsd/keyledsd/internal/render/color"
	"github.com/keyledsd/keyledsd/internal/render/target"
)

func newSvc(t *testing.T, options map[string]any, groups map[string]keydb.KeyGroup) *service.Service {
	t.Helper()
	return service.New(service.Config{Options: options, Groups: groups, KeyDB: keydb.New(nil)})
}

func TestFillPaintsBackground(t *testing.T) {
	svc := newSvc(t, map[string]any{"color": "#112233"}, nil)
	e, err := New("fill", svc)
	require.NoError(t, err)

	tgt := target.New(4)
	e.Render(0, tgt)

	for i := 0; i < tgt.Size(); i++ {
		assert.Equal(t, color.RGBA{R: 0x11, G: 0x22, B: 0x33, A: 0xff}, tgt.Get(i))
	}
}

func TestFillZeroAlphaLeavesBufferUntouched(t *testing.T) {
	svc := newSvc(t, nil, nil)
	e, err := New("fill", svc)
	require.NoError(t, err)

	tgt := target.New(2)
	tgt.Set(0, color.RGBA{R: 9, A: 9})
	e.Render(0, tgt)
	assert.Equal(t, color.RGBA{R: 9, A: 9}, tgt.Get(0))
}

func TestFillOverridesGroupColor(t *testing.T) {
	db := keydb.New([]keydb.Key{{Index: 0, Name: "W"}, {Index: 1, Name: "A"}})
	wasd := db.MakeGroup("wasd", []string{"W", "A"})
	svc := newSvc(t, map[string]any{"color": "#000000", "wasd": "#ff0000"}, map[string]keydb.KeyGroup{"wasd": wasd})

	e, err := New("fill", svc)
	require.NoError(t, err)

	tgt := target.New(2)
	e.Render(0, tgt)
	assert.Equal(t, color.RGBA{R: 0xff, A: 0xff}, tgt.Get(0))
	assert.Equal(t, color.RGBA{R: 0xff, A: 0xff}, tgt.Get(1))
}
