package feedback

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keyledsd/keyledsd/internal/keydb"
	"github.com/keyledsd/keyledsd/internal/plugin/service"
	"github.com/keyledsd/keyledsd/internal/render/target"
)

func newSvc(options map[string]any) *service.Service {
	db := keydb.New([]keydb.Key{{Index: 0, KeyCode: 30, Name: "A"}})
	return service.New(service.Config{Options: options, KeyDB: db})
}

func TestFeedbackFlashesOnKeyPressAndFadesOut(t *testing.T) {
	svc := newSvc(map[string]any{"duration": "100ms"})
	eff, err := New("feedback", svc)
	require.NoError(t, err)

	kh := eff.(interface{ HandleKeyEvent(int, bool) })
	kh.HandleKeyEvent(30, true)

	tgt := target.New(1)
	eff.Render(0, tgt)
	assert.Greater(t, tgt.Get(0).A, uint8(0))

	// Each real tick resets the shared buffer before re-rendering; emulate
	// that here since this test drives the effect directly.
	tgt.Reset(1)
	eff.Render(200, tgt) // past duration, press should be dropped
	assert.Equal(t, uint8(0), tgt.Get(0).A)
}

func TestFeedbackIgnoresUnknownKeyCode(t *testing.T) {
	svc := newSvc(nil)
	eff, err := New("feedback", svc)
	require.NoError(t, err)

	kh := eff.(interface{ HandleKeyEvent(int, bool) })
	assert.NotPanics(t, func() { kh.HandleKeyEvent(999, true) })
}
