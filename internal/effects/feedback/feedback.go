// Package feedback implements the "feedback" built-in effect: every key
// press flashes a color that fades out over a configured duration. Ported
// from plugins/feedback.cxx.
package feedback

import (
	"time"

	"github.com/keyledsd/keyledsd/internal/keydb"
	"github.com/keyledsd/keyledsd/internal/plugin"
	"github.com/keyledsd/keyledsd/internal/plugin/service"
	"github.com/keyledsd/keyledsd/internal/render/color"
	"github.com/keyledsd/keyledsd/internal/render/simd"
	"github.com/keyledsd/keyledsd/internal/render/target"
)

func init() {
	plugin.Register("feedback", New)
}

type keyPress struct {
	index int
	age   time.Duration
}

type effect struct {
	buf      *target.Target
	keyDB    *keydb.Database
	color    color.RGBA
	duration time.Duration
	presses  []keyPress
}

// New constructs the feedback effect: conf["color"] sets the flash color
// (default opaque white), conf["duration"] sets its fade time (default
// 3s).
func New(_ string, svc *service.Service) (plugin.Effect, error) {
	e := &effect{
		keyDB:    svc.KeyDB(),
		color:    color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff},
		duration: 3 * time.Second,
	}
	if c, err := service.GetConfig[color.RGBA](svc, "color"); err == nil {
		e.color = c
	}
	if d, err := service.GetConfig[time.Duration](svc, "duration"); err == nil && d > 0 {
		e.duration = d
	}
	e.buf = svc.CreateRenderTarget(svc.KeyDB().Len())
	return e, nil
}

func (e *effect) Render(elapsedMS int64, buf any) {
	delta := time.Duration(elapsedMS) * time.Millisecond
	live := e.presses[:0]
	for _, p := range e.presses {
		p.age += delta
		if p.age > e.duration {
			p.age = e.duration
		}
		remaining := e.duration - p.age
		alpha := uint8(int64(e.color.A) * int64(remaining) / int64(e.duration))
		e.buf.Set(p.index, color.RGBA{R: e.color.R, G: e.color.G, B: e.color.B, A: alpha})
		if p.age < e.duration {
			live = append(live, p)
		}
	}
	e.presses = live

	dst := buf.(*target.Target)
	simd.Blend(dst.Colors, e.buf.Colors)
}

// HandleKeyEvent restarts (or starts) the fade-out timer for keyCode's
// render index. The pressed flag is not read: a release restarts the timer
// the same way a press does.
func (e *effect) HandleKeyEvent(keyCode int, _ bool) {
	key, ok := e.keyDB.FindKeyCode(keyCode)
	if !ok {
		return
	}
	for i := range e.presses {
		if e.presses[i].index == key.Index {
			e.presses[i].age = 0
			return
		}
	}
	e.presses = append(e.presses, keyPress{index: key.Index})
}
