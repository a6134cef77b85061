// Package stars implements the "stars" built-in effect: a fixed number of
// randomly placed, randomly colored points that fade out and reappear
// elsewhere. Ported from plugins/stars.cxx.
package stars

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/keyledsd/keyledsd/internal/keydb"
	"github.com/keyledsd/keyledsd/internal/plugin"
	"github.com/keyledsd/keyledsd/internal/plugin/service"
	"github.com/keyledsd/keyledsd/internal/render/color"
	"github.com/keyledsd/keyledsd/internal/render/simd"
	"github.com/keyledsd/keyledsd/internal/render/target"
)

func init() {
	plugin.Register("stars", New)
}

type star struct {
	index int
	color color.RGBA
	age   time.Duration
}

type effect struct {
	buf      *target.Target
	rng      *rand.Rand
	duration time.Duration
	colors   []color.RGBA
	keys     []keydb.Key
	stars    []star
}

// New constructs the stars effect: "number" stars (default 8) live at
// random keys (or keys from "group" when set) for "duration", a Go duration
// string such as "500ms" (default 1s; a value without a unit is rejected and
// the default applies), fading linearly to transparent, then reappearing at a new key
// with a new random or palette color.
func New(_ string, svc *service.Service) (plugin.Effect, error) {
	e := &effect{
		rng:      rand.New(rand.NewSource(1)),
		duration: time.Second,
	}
	if d, err := service.GetConfig[time.Duration](svc, "duration"); err == nil && d > 0 {
		e.duration = d
	}
	count := 8
	if n, err := service.GetConfig[int](svc, "number"); err == nil && n > 0 {
		count = n
	}

	if colors, err := service.GetConfig[[]color.RGBA](svc, "color"); err == nil {
		e.colors = colors
	}

	if g, err := service.GetConfig[keydb.KeyGroup](svc, "group"); err == nil {
		for i := 0; i < g.Len(); i++ {
			e.keys = append(e.keys, g.At(i))
		}
	} else {
		e.keys = svc.KeyDB().Keys()
	}
	if len(e.keys) == 0 {
		return nil, fmt.Errorf("stars: no keys available")
	}

	e.buf = svc.CreateRenderTarget(svc.KeyDB().Len())
	e.stars = make([]star, count)
	for i := range e.stars {
		e.rebirth(&e.stars[i])
		e.stars[i].age = time.Duration(i) * e.duration / time.Duration(count)
	}
	return e, nil
}

func (e *effect) rebirth(s *star) {
	s.index = e.keys[e.rng.Intn(len(e.keys))].Index
	if len(e.colors) == 0 {
		s.color = color.RGBA{
			R: uint8(e.rng.Intn(256)),
			G: uint8(e.rng.Intn(256)),
			B: uint8(e.rng.Intn(256)),
			A: 0xff,
		}
	} else {
		s.color = e.colors[e.rng.Intn(len(e.colors))]
	}
	s.age = 0
}

func (e *effect) Render(elapsedMS int64, buf any) {
	for i := range e.stars {
		e.stars[i].age += time.Duration(elapsedMS) * time.Millisecond
		if e.stars[i].age >= e.duration {
			e.rebirth(&e.stars[i])
		}
		s := e.stars[i]
		remaining := e.duration - s.age
		alpha := uint8(int64(s.color.A) * int64(remaining) / int64(e.duration))
		e.buf.Set(s.index, color.RGBA{R: s.color.R, G: s.color.G, B: s.color.B, A: alpha})
	}

	dst := buf.(*target.Target)
	simd.Blend(dst.Colors, e.buf.Colors)
}
