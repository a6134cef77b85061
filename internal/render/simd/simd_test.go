package simd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keyledsd/keyledsd/internal/render/color"
)

func TestBlendNoOpOnZeroAlpha(t *testing.T) {
	dst := []color.RGBA{{10, 20, 30, 40}}
	before := dst[0]
	Blend(dst, []color.RGBA{{0, 0, 0, 0}})
	assert.Equal(t, before, dst[0])
}

func TestBlendOverwritesOnFullAlpha(t *testing.T) {
	dst := []color.RGBA{{1, 2, 3, 4}}
	Blend(dst, []color.RGBA{{200, 100, 50, 255}})
	assert.Equal(t, color.RGBA{200, 100, 50, 255}, dst[0])
}

func TestMultiplyNoOpOnWhite(t *testing.T) {
	dst := []color.RGBA{{12, 34, 56, 78}}
	before := dst[0]
	Multiply(dst, []color.RGBA{{255, 255, 255, 255}})
	assert.Equal(t, before, dst[0])
}

func TestAlphaComposeScenarioS5(t *testing.T) {
	dst := make([]color.RGBA, 4)
	bottom := []color.RGBA{{0, 0, 0, 255}, {0, 0, 0, 255}, {0, 0, 0, 255}, {0, 0, 0, 255}}
	top := []color.RGBA{{255, 255, 255, 127}, {255, 255, 255, 127}, {255, 255, 255, 127}, {255, 255, 255, 127}}

	copy(dst, bottom)
	Blend(dst, top)

	for _, c := range dst {
		require.InDelta(t, 127, int(c.R), 1)
		require.InDelta(t, 127, int(c.G), 1)
		require.InDelta(t, 127, int(c.B), 1)
		assert.Equal(t, uint8(255), c.A)
	}
}

func TestDivBy255MatchesExactDivision(t *testing.T) {
	for x := uint32(0); x <= 65025+127; x += 37 {
		want := uint8(x / 255)
		got := divBy255(x)
		require.Equalf(t, want, got, "x=%d", x)
	}
	require.Equal(t, uint8((65025+127)/255), divBy255(65025+127))
}
