// Package wave implements the "wave" built-in effect: a travelling band of
// color across the keyboard, phase-shifted per key by its layout position.
// Ported from plugins/wave.cxx.
package wave

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
	plugin.Register("wave", New)
}

const (
	tableSize     = 1024
	defaultPeriod = 10 * time.Second
	defaultLength = 1000
)

type effect struct {
	buf       *target.Target
	keys      []keydb.Key // empty means "every key in the database, by render index"
	phases    []int       // one per entry in keys, or one per render index when keys is empty
	colors    [tableSize]color.RGBA
	time      time.Duration
	period    time.Duration
}

// New constructs the wave effect: conf["period"]/"length"/"direction" set
// the animation's speed, band width and travel angle, conf["group"]
// restricts it to one key group, and conf["color0"].."colorN" (or the
// plural "color" sequence) set the color gradient it cycles through.
func New(_ string, svc *service.Service) (plugin.Effect, error) {
	e := &effect{period: defaultPeriod}

	period := defaultPeriod
	if p, err := service.GetConfig[time.Duration](svc, "period"); err == nil && p > 0 {
		period = p
	}
	e.period = period

	length := defaultLength
	if l, err := service.GetConfig[int](svc, "length"); err == nil && l > 0 {
		length = l
	}
	direction := 0
	if d, err := service.GetConfig[int](svc, "direction"); err == nil {
		direction = d
	}

	colors, err := service.GetConfig[[]color.RGBA](svc, "color")
	if err != nil || len(colors) == 0 {
		colors = []color.RGBA{{A: 0xff}, {R: 0xff, A: 0xff}}
	}
	e.colors = generateColorTable(colors)

	if g, err := service.GetConfig[keydb.KeyGroup](svc, "group"); err == nil {
		for i := 0; i < g.Len(); i++ {
			e.keys = append(e.keys, g.At(i))
		}
	}

	e.buf = svc.CreateRenderTarget(svc.KeyDB().Len())
	e.computePhases(svc.KeyDB(), length, direction)
	return e, nil
}

// computePhases assigns each key (or, with no group configured, each
// render-target index) a phase offset in [0, tableSize) based on its
// projection onto the wave's travel direction.
func (e *effect) computePhases(db *keydb.Database, length, direction int) {
	const pi = math.Pi
	waveX := int(tableSize * 1000.0 / float64(length) * math.Sin(2*pi/360*float64(direction)))
	waveY := int(tableSize * 1000.0 / float64(length) * math.Cos(2*pi/360*float64(direction)))
	bounds := db.Bounds()
	spanX := bounds.X1 - bounds.X0
	spanY := bounds.Y1 - bounds.Y0

	phaseOf := func(x0, y0, x1, y1 int) int {
		x, y := (x0+x1)/2, (y0+y1)/2
		if x == 0 && y == 0 {
			return 0
		}
		if spanX == 0 || spanY == 0 {
			return 0
		}
		nx := tableSize * (x - bounds.X0) / spanX
		ny := tableSize - tableSize*(y-bounds.Y0)/spanY
		val := (waveX*nx + waveY*ny) / tableSize % tableSize
		if val < 0 {
			val += tableSize
		}
		return val
	}

	if len(e.keys) == 0 {
		e.phases = make([]int, db.Len())
		for i, k := range db.Keys() {
			e.phases[i] = phaseOf(k.Rect.X0, k.Rect.Y0, k.Rect.X1, k.Rect.Y1)
		}
	} else {
		e.phases = make([]int, len(e.keys))
		for i, k := range e.keys {
			e.phases[i] = phaseOf(k.Rect.X0, k.Rect.Y0, k.Rect.X1, k.Rect.Y1)
		}
	}
}

// generateColorTable interpolates colors into a tableSize-entry gradient,
// wrapping back to colors[0] after the last stop.
func generateColorTable(colors []color.RGBA) (table [tableSize]color.RGBA) {
	n := len(colors)
	for r := 0; r < n; r++ {
		first := r * tableSize / n
		last := (r + 1) * tableSize / n
		a, b := colors[r], colors[(r+1)%n]
		for idx := first; idx < last; idx++ {
			ratio := float64(idx-first) / float64(last-first)
			table[idx] = color.RGBA{
				R: lerp(a.R, b.R, ratio),
				G: lerp(a.G, b.G, ratio),
				B: lerp(a.B, b.B, ratio),
				A: lerp(a.A, b.A, ratio),
			}
		}
	}
	return table
}

func lerp(a, b uint8, ratio float64) uint8 {
	return uint8(float64(a)*(1-ratio) + float64(b)*ratio)
}

func (e *effect) Render(elapsedMS int64, buf any) {
	e.time += time.Duration(elapsedMS) * time.Millisecond
	if e.time >= e.period {
		e.time -= e.period
	}
	t := int(tableSize * e.time / e.period)

	if len(e.keys) == 0 {
		for idx, phase := range e.phases {
			tphi := t - phase
			if tphi < 0 {
				tphi += tableSize
			}
			e.buf.Set(idx, e.colors[tphi%tableSize])
		}
	} else {
		for i, key := range e.keys {
			tphi := t - e.phases[i]
			if tphi < 0 {
				tphi += tableSize
			}
			e.buf.Set(key.Index, e.colors[tphi%tableSize])
		}
	}

	dst := buf.(*target.Target)
	simd.Blend(dst.Colors, e.buf.Colors)
}
