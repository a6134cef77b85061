package daemon

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ctxpkg "github.com/keyledsd/keyledsd/internal/context"
	"github.com/keyledsd/keyledsd/internal/devicemgr"
	"github.com/keyledsd/keyledsd/internal/discovery"
	"github.com/keyledsd/keyledsd/internal/hidpp/feature"
	"github.com/keyledsd/keyledsd/internal/keydb"
	"github.com/keyledsd/keyledsd/internal/plugin"
	"github.com/keyledsd/keyledsd/internal/render/loop"
)

// fakeWatcher feeds a fixed sequence of Scan results, one per call, then
// repeats the last one forever.
type fakeWatcher struct {
	mu     sync.Mutex
	scans  [][]discovery.Device
	calls  int
}

func (w *fakeWatcher) Scan() ([]discovery.Device, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	i := w.calls
	if i >= len(w.scans) {
		i = len(w.scans) - 1
	}
	w.calls++
	return w.scans[i], nil
}

type fakeCloser struct {
	closed *bool
}

func (c *fakeCloser) Close() error {
	*c.closed = true
	return nil
}

type fakeOpener struct {
	mu      sync.Mutex
	opened  []string
	closed  map[string]bool
}

func newFakeOpener() *fakeOpener {
	return &fakeOpener{closed: make(map[string]bool)}
}

func (o *fakeOpener) Open(dev discovery.Device) (*devicemgr.Manager, Closer, error) {
	o.mu.Lock()
	o.opened = append(o.opened, dev.Path)
	o.closed[dev.Path] = false
	o.mu.Unlock()

	db := keydb.New([]keydb.Key{{Index: 0}})
	dl := loop.New(loop.Config{Device: noopLoopDevice{}, Size: 1, FPS: 30})
	mgr := devicemgr.New(devicemgr.Config{
		Identity:  devicemgr.Identity{Name: dev.Path},
		KeyDB:     db,
		Loop:      dl,
		PluginMgr: plugin.NewManager(nil, plugin.Host{}, nil),
	})
	return mgr, &trackingCloser{opener: o, path: dev.Path}, nil
}

type trackingCloser struct {
	opener *fakeOpener
	path   string
}

func (c *trackingCloser) Close() error {
	c.opener.mu.Lock()
	c.opener.closed[c.path] = true
	c.opener.mu.Unlock()
	return nil
}

type noopLoopDevice struct{}

func (noopLoopDevice) SetLEDs(uint8, []feature.LED) error { return nil }
func (noopLoopDevice) CommitLEDs() error                  { return nil }
func (noopLoopDevice) Ping() error                        { return nil }

func TestDaemonAddsAndRemovesDevices(t *testing.T) {
	opener := newFakeOpener()
	dev := discovery.Device{Path: "/dev/hidraw0", Serial: "abc"}
	w := &fakeWatcher{scans: [][]discovery.Device{{dev}, {}, {}}}

	d := New(Config{Opener: opener})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx, w, 5*time.Millisecond) }()

	require.Eventually(t, func() bool { return d.deviceCount() == 1 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return d.deviceCount() == 0 }, time.Second, 5*time.Millisecond)

	cancel()
	<-done

	opener.mu.Lock()
	defer opener.mu.Unlock()
	assert.True(t, opener.closed["/dev/hidraw0"])
}

func TestDaemonAutoQuitStopsOnLastRemoval(t *testing.T) {
	opener := newFakeOpener()
	dev := discovery.Device{Path: "/dev/hidraw0", Serial: "abc"}
	w := &fakeWatcher{scans: [][]discovery.Device{{dev}, {}}}

	d := New(Config{Opener: opener, AutoQuit: true})
	ctx := context.Background()
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx, w, 5*time.Millisecond) }()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("daemon did not auto-quit after last device removed")
	}
}

func TestDaemonSetContextFansOutToLiveManagers(t *testing.T) {
	opener := newFakeOpener()
	dev := discovery.Device{Path: "/dev/hidraw0", Serial: "abc"}
	w := &fakeWatcher{scans: [][]discovery.Device{{dev}, {dev}, {dev}}}

	d := New(Config{Opener: opener})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx, w, 5*time.Millisecond) }()

	require.Eventually(t, func() bool { return d.deviceCount() == 1 }, time.Second, 5*time.Millisecond)

	assert.NotPanics(t, func() { d.SetContext(ctxpkg.New([2]string{"class", "kate"})) })

	cancel()
	<-done
}
