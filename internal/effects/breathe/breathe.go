// Package breathe implements the "breathe" built-in effect: a color whose
// alpha oscillates with a cosine wave, blended onto the layers below it.
// Ported from plugins/breathe.cxx.
package breathe

import (
	"math"
	"time"

	"github.com/keyledsd/keyledsd/internal/keydb"
	"github.com/keyledsd/keyledsd/internal/plugin"
	"github.com/keyledsd/keyledsd/internal/plugin/service"
	"github.com/keyledsd/keyledsd/internal/render/color"
	"github.com/keyledsd/keyledsd/internal/render/simd"
	"github.com/keyledsd/keyledsd/internal/render/target"
)

func init() {
	plugin.Register("breathe", New)
}

const defaultPeriod = 10 * time.Second

type effect struct {
	buf    *target.Target
	keys   keydb.KeyGroup
	hasKeys bool
	alpha  uint8
	elapsed time.Duration
	period time.Duration
}

// New constructs the breathe effect over svc's render target, sized to the
// full device.
func New(_ string, svc *service.Service) (plugin.Effect, error) {
	e := &effect{period: defaultPeriod}

	base := color.RGBA{}
	if c, err := service.GetConfig[color.RGBA](svc, "color"); err == nil {
		base = c
	}
	e.alpha = base.A
	base.A = 0

	size := svc.KeyDB().Len()
	e.buf = svc.CreateRenderTarget(size)
	for i := 0; i < e.buf.Size(); i++ {
		e.buf.Set(i, base)
	}

	if g, err := service.GetConfig[keydb.KeyGroup](svc, "group"); err == nil {
		e.keys, e.hasKeys = g, true
	}
	if p, err := service.GetConfig[time.Duration](svc, "period"); err == nil && p > 0 {
		e.period = p
	}
	return e, nil
}

func (e *effect) Render(elapsedMS int64, buf any) {
	e.elapsed += time.Duration(elapsedMS) * time.Millisecond
	if e.elapsed >= e.period {
		e.elapsed -= e.period
	}

	t := float64(e.elapsed) / float64(e.period)
	alphaf := -math.Cos(2 * math.Pi * t)
	shifted := int(128*alphaf) + 128 // in [0, 256]
	alpha := uint8(uint32(e.alpha) * uint32(shifted) / 256)

	if !e.hasKeys {
		for i := 0; i < e.buf.Size(); i++ {
			c := e.buf.Get(i)
			c.A = alpha
			e.buf.Set(i, c)
		}
	} else {
		for i := 0; i < e.keys.Len(); i++ {
			idx := e.keys.At(i).Index
			c := e.buf.Get(idx)
			c.A = alpha
			e.buf.Set(idx, c)
		}
	}

	dst := buf.(*target.Target)
	simd.Blend(dst.Colors, e.buf.Colors)
}
