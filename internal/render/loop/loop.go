// Package loop implements the fixed-rate render loop (component H): one
// goroutine per device driving a tick body of render → diff → emit →
// commit, with cooperative pause/abort and bounded timeout recovery.
package loop

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/keyledsd/keyledsd/internal/hidpp/feature"
	"github.com/keyledsd/keyledsd/internal/render/target"
)

// Renderer is the capability every effect in the active list provides:
// render one layer, elapsed milliseconds since the previous tick, into
// the shared buffer. buf is always a *target.Target boxed as any, to let
// the plugin package's capability interfaces stay ABI-neutral.
type Renderer interface {
	Render(elapsedMS int64, buf any)
}

// Device is everything the loop needs from the physical keyboard: write
// the pending LED buffer for one block, commit it, and resynchronise via
// ping after a timeout.
type Device interface {
	SetLEDs(block uint8, leds []feature.LED) error
	CommitLEDs() error
	Ping() error
}

// BlockKey maps one render-target index to its key id within a physical
// LED block.
type BlockKey struct {
	RenderIndex int
	KeyID       uint8
}

// Block is one physical LED block's key mapping, in render-target index
// order.
type Block struct {
	ID   uint8
	Keys []BlockKey
}

// Config configures a new Loop.
type Config struct {
	Device  Device
	Blocks  []Block
	Size    int // total render target size
	FPS     int
	Logger  *slog.Logger
	OnFatal func(error) // called once, from the loop's goroutine, on unrecoverable error
}

// Loop drives one device's render ticks on a dedicated goroutine.
type Loop struct {
	dev     Device
	blocks  []Block
	size    int
	period  time.Duration
	logger  *slog.Logger
	onFatal func(error)

	effMu     sync.Mutex
	renderers []Renderer

	pauseMu sync.Mutex
	pauseCV *sync.Cond
	paused  bool
	aborted bool
	abortCh chan struct{}

	force atomic.Bool

	buf           *target.Target
	lastCommitted *target.Target
	lastTick      time.Time

	wg sync.WaitGroup
}

// New constructs a Loop and starts its goroutine, which begins ticking
// immediately; call SetPaused(true) to pause it.
func New(cfg Config) *Loop {
	if cfg.FPS <= 0 {
		cfg.FPS = 30
	}
	l := &Loop{
		dev:           cfg.Device,
		blocks:        cfg.Blocks,
		size:          cfg.Size,
		period:        time.Second / time.Duration(cfg.FPS),
		logger:        cfg.Logger,
		onFatal:       cfg.OnFatal,
		abortCh:       make(chan struct{}),
		buf:           target.New(cfg.Size),
		lastCommitted: target.New(cfg.Size),
	}
	l.pauseCV = sync.NewCond(&l.pauseMu)
	l.wg.Add(1)
	go l.run()
	return l
}

// SetRenderers atomically replaces the active effect list. This replaces
// the C++ design's explicit lock()/renderers() pair with a single
// encapsulated call; the loop itself still holds the same mutex for the
// duration of step 1 of the tick body only.
func (l *Loop) SetRenderers(rs []Renderer) {
	l.effMu.Lock()
	l.renderers = rs
	l.effMu.Unlock()
}

// ForceRefresh causes the next tick to treat device state as unknown,
// emitting a set_leds for every non-empty block regardless of diff.
func (l *Loop) ForceRefresh() {
	l.force.Store(true)
}

// SetPaused toggles cooperative pause. Pausing takes effect before the
// next tick's sleep; resuming wakes the loop immediately.
func (l *Loop) SetPaused(paused bool) {
	l.pauseMu.Lock()
	l.paused = paused
	l.pauseCV.Broadcast()
	l.pauseMu.Unlock()
}

// Stop sets abort, wakes the loop from pause or sleep, and joins. Safe to
// call from any goroutine. The Loop must not be used after Stop returns.
func (l *Loop) Stop() {
	l.pauseMu.Lock()
	l.aborted = true
	l.pauseCV.Broadcast()
	l.pauseMu.Unlock()
	select {
	case <-l.abortCh:
	default:
		close(l.abortCh)
	}
	l.wg.Wait()
}

func (l *Loop) run() {
	defer l.wg.Done()
	nextTick := time.Now().Add(l.period)

	for {
		if !l.waitWhilePaused() {
			return
		}

		now := time.Now()
		if now.Before(nextTick) {
			select {
			case <-time.After(nextTick.Sub(now)):
			case <-l.abortCh:
				return
			}
		}

		tickStart := time.Now()
		var elapsedMS int64
		if !l.lastTick.IsZero() {
			elapsedMS = tickStart.Sub(l.lastTick).Milliseconds()
		}
		l.lastTick = tickStart

		if err := l.tick(elapsedMS); err != nil {
			if !l.recoverFromError(err) {
				if l.onFatal != nil {
					l.onFatal(err)
				}
				return
			}
		}

		nextTick = tickStart.Add(l.period)
		if time.Now().After(nextTick) {
			nextTick = time.Now().Add(l.period) // no catch-up spiral
		}
	}
}

// waitWhilePaused blocks while paused, returning false once aborted.
func (l *Loop) waitWhilePaused() bool {
	l.pauseMu.Lock()
	defer l.pauseMu.Unlock()
	for l.paused && !l.aborted {
		l.pauseCV.Wait()
	}
	return !l.aborted
}

// tick runs one full render → diff → emit → commit cycle.
func (l *Loop) tick(elapsedMS int64) error {
	l.effMu.Lock()
	renderers := l.renderers
	if len(renderers) == 0 {
		l.effMu.Unlock()
		return nil // property 7: nothing to render, nothing to send
	}
	l.buf.Reset(l.size)
	for _, r := range renderers {
		r.Render(elapsedMS, l.buf)
	}
	l.effMu.Unlock()

	forced := l.force.Swap(false)

	emittedAny := false
	for _, block := range l.blocks {
		leds := l.diffBlock(block, forced)
		if len(leds) == 0 {
			continue
		}
		if err := l.dev.SetLEDs(block.ID, leds); err != nil {
			return err
		}
		emittedAny = true
	}

	if emittedAny {
		if err := l.dev.CommitLEDs(); err != nil {
			return err
		}
	}

	target.Swap(l.lastCommitted, l.buf)
	return nil
}

func (l *Loop) diffBlock(block Block, forced bool) []feature.LED {
	var leds []feature.LED
	for _, bk := range block.Keys {
		c := l.buf.Get(bk.RenderIndex)
		if !forced {
			prev := l.lastCommitted.Get(bk.RenderIndex)
			if c == prev {
				continue
			}
		}
		leds = append(leds, feature.LED{ID: bk.KeyID, R: c.R, G: c.G, B: c.B})
	}
	return leds
}

// recoverFromError classifies err and runs the bounded retry + ping
// resync sequence. It returns true if the loop should continue ticking,
// false if the device should be considered lost.
func (l *Loop) recoverFromError(err error) bool {
	if !isRecoverable(err) {
		return false
	}
	for attempt := 1; attempt <= 5; attempt++ {
		select {
		case <-time.After(time.Duration(attempt) * 100 * time.Millisecond):
		case <-l.abortCh:
			return false
		}
		if pingErr := l.dev.Ping(); pingErr == nil {
			return true
		}
		// A ping failure during backoff is treated as just another failed
		// attempt; it does not short-circuit the remaining schedule.
	}
	return false
}

type recoverableError interface {
	Recoverable() bool
}

func isRecoverable(err error) bool {
	var re recoverableError
	if ok := asRecoverable(err, &re); ok {
		return re.Recoverable()
	}
	return true
}

func asRecoverable(err error, target *recoverableError) bool {
	for err != nil {
		if re, ok := err.(recoverableError); ok {
			*target = re
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
