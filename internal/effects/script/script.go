// Package script hosts the scripted-effect ABI: a runtime surface a
// cooperative scripting engine such as Lua binds
// its "thread" primitive to. Scripts are cooperative goroutine threads
// that block in Wait until the render loop has advanced far enough in
// simulated time and resume on the next tick, which is the same
// resume-on-tick contract a Lua coroutine yielding from a C call would
// need. No Lua runtime is embedded here: named script bodies are
// registered at compile time with RegisterFunc and selected from
// configuration by name, giving the effect a concrete, testable substrate
// without committing the module to an embedded scripting language.
package script

import (
	"fmt"
	"sync"

	"github.com/keyledsd/keyledsd/internal/plugin"
	"github.com/keyledsd/keyledsd/internal/plugin/service"
	"github.com/keyledsd/keyledsd/internal/render/target"
)

func init() {
	plugin.Register("script", New)
}

// Func is one script body. It receives a Host bound to its effect
// instance and runs until it returns; Target gives it the current
// frame's buffer and Wait blocks the calling goroutine until at least
// the given number of seconds of render time have elapsed.
type Func func(h *Host)

var (
	funcsMu sync.Mutex
	funcs   = map[string]Func{}
)

// RegisterFunc makes a script body available under name for effects
// configured with func: name. Like plugin.Register, this is meant to be
// called from a package init().
func RegisterFunc(name string, fn Func) {
	funcsMu.Lock()
	defer funcsMu.Unlock()
	funcs[name] = fn
}

func lookupFunc(name string) (Func, bool) {
	funcsMu.Lock()
	defer funcsMu.Unlock()
	fn, ok := funcs[name]
	return fn, ok
}

// Host is the per-effect facade a running Func sees. It is the Go
// analogue of the table a Lua coroutine would receive: a way to read the
// current render target and to yield for a simulated duration.
type Host struct {
	svc *service.Service

	mu      sync.Mutex
	target  *target.Target
	elapsed float64 // seconds of render time delivered so far

	resume chan struct{} // tick -> thread: a new target/elapsed is ready
	yield  chan float64  // thread -> tick: seconds requested by Wait
	done   chan struct{}
}

// Service returns the effect service facade, for key groups, config,
// and colors.
func (h *Host) Service() *service.Service { return h.svc }

// Target returns the render target as of the most recent resume.
func (h *Host) Target() *target.Target {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.target
}

// Wait blocks the calling script goroutine until at least seconds of
// render time have elapsed, then returns. A script that never calls Wait
// runs to completion within a single tick, same as a Lua script with no
// yield points.
func (h *Host) Wait(seconds float64) {
	h.yield <- seconds
	<-h.resume
}

// effect drives one Func as a cooperative thread resumed once per
// Render call.
type effect struct {
	host    *Host
	waiting float64 // remaining seconds before the next resume is due
	started bool
}

// New constructs the script effect: the "func" option selects a
// RegisterFunc-ed script body by name.
func New(_ string, svc *service.Service) (plugin.Effect, error) {
	name, err := service.GetConfig[string](svc, "func")
	if err != nil {
		return nil, fmt.Errorf("script: missing \"func\" option: %w", err)
	}
	fn, ok := lookupFunc(name)
	if !ok {
		return nil, fmt.Errorf("script: no registered func %q", name)
	}
	h := &Host{
		svc:    svc,
		resume: make(chan struct{}),
		yield:  make(chan float64, 1),
		done:   make(chan struct{}),
	}
	e := &effect{host: h}
	go func() {
		fn(h)
		close(h.done)
	}()
	return e, nil
}

// Render advances the script's simulated clock and resumes it once its
// last requested Wait has elapsed. A script that has already returned is
// a no-op on every later tick.
func (e *effect) Render(elapsedMS int64, t any) {
	select {
	case <-e.host.done:
		return
	default:
	}

	buf, _ := t.(*target.Target)
	e.host.mu.Lock()
	e.host.target = buf
	e.host.elapsed += float64(elapsedMS) / 1000
	e.host.mu.Unlock()

	if !e.started {
		e.started = true
		select {
		case e.waiting = <-e.host.yield:
		case <-e.host.done:
			return
		}
	}

	e.waiting -= float64(elapsedMS) / 1000
	for e.waiting <= 0 {
		select {
		case <-e.host.done:
			return
		default:
		}
		e.host.resume <- struct{}{}
		select {
		case next := <-e.host.yield:
			e.waiting += next
		case <-e.host.done:
			return
		}
	}
}
