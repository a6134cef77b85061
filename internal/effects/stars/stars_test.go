package stars

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keyledsd/keyledsd/internal/keydb"
	"github.com/keyledsd/keyledsd/internal/plugin/service"
	"github.com/keyledsd/keyledsd/internal/render/target"
)

func newSvc(options map[string]any) *service.Service {
	keys := make([]keydb.Key, 10)
	for i := range keys {
		keys[i] = keydb.Key{Index: i}
	}
	return service.New(service.Config{Options: options, KeyDB: keydb.New(keys)})
}

func TestStarsRendersConfiguredCount(t *testing.T) {
	svc := newSvc(map[string]any{"number": "4", "duration": "500"})
	eff, err := New("stars", svc)
	require.NoError(t, err)
	assert.Len(t, eff.(*effect).stars, 4)

	tgt := target.New(10)
	require.NotPanics(t, func() { eff.Render(100, tgt) })
}

func TestStarsFailsWithNoKeys(t *testing.T) {
	svc := service.New(service.Config{KeyDB: keydb.New(nil)})
	_, err := New("stars", svc)
	assert.Error(t, err)
}
