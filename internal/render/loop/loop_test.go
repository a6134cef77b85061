package loop

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/keyledsd/keyledsd/internal/hidpp/feature"
	"github.com/keyledsd/keyledsd/internal/render/color"
	"github.com/keyledsd/keyledsd/internal/render/target"
)

type fakeDevice struct {
	mu          sync.Mutex
	setCalls    int
	commitCalls int
}

func (d *fakeDevice) SetLEDs(block uint8, leds []feature.LED) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.setCalls++
	return nil
}

func (d *fakeDevice) CommitLEDs() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.commitCalls++
	return nil
}

func (d *fakeDevice) Ping() error { return nil }

func (d *fakeDevice) snapshot() (int, int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.setCalls, d.commitCalls
}

type fillRenderer struct{ c color.RGBA }

func (f fillRenderer) Render(elapsedMS int64, buf any) {
	t := buf.(*target.Target)
	for i := 0; i < t.Size(); i++ {
		t.Set(i, f.c)
	}
}

func newTestLoop(dev Device, size int) *Loop {
	return New(Config{
		Device: dev,
		Blocks: []Block{{ID: 1, Keys: []BlockKey{{RenderIndex: 0, KeyID: 7}}}},
		Size:   size,
		FPS:    50,
	})
}

func TestEmptyEffectListEmitsNothing(t *testing.T) {
	dev := &fakeDevice{}
	l := newTestLoop(dev, 1)
	defer l.Stop()

	time.Sleep(60 * time.Millisecond)
	set, commit := dev.snapshot()
	assert.Equal(t, 0, set)
	assert.Equal(t, 0, commit)
}

func TestUnchangedBufferEmitsNoCommitOnSecondTick(t *testing.T) {
	dev := &fakeDevice{}
	l := newTestLoop(dev, 1)
	defer l.Stop()
	l.SetRenderers([]Renderer{fillRenderer{color.RGBA{R: 1, G: 2, B: 3, A: 255}}})

	time.Sleep(120 * time.Millisecond)
	_, commitsAfterSettling := dev.snapshot()
	time.Sleep(60 * time.Millisecond)
	_, commitsLater := dev.snapshot()
	assert.Equal(t, commitsAfterSettling, commitsLater, "no further commits once the buffer stops changing")
}

func TestForceRefreshReemitsUnchangedPixels(t *testing.T) {
	dev := &fakeDevice{}
	l := newTestLoop(dev, 1)
	defer l.Stop()
	l.SetRenderers([]Renderer{fillRenderer{color.RGBA{R: 9, G: 9, B: 9, A: 255}}})

	time.Sleep(120 * time.Millisecond)
	setBefore, _ := dev.snapshot()
	l.ForceRefresh()
	time.Sleep(60 * time.Millisecond)
	setAfter, _ := dev.snapshot()
	assert.Greater(t, setAfter, setBefore)
}

func TestStopJoinsPromptly(t *testing.T) {
	dev := &fakeDevice{}
	l := newTestLoop(dev, 1)
	start := time.Now()
	l.Stop()
	assert.Less(t, time.Since(start), 2*l.period+500*time.Millisecond)
}

func TestStopJoinsWhilePaused(t *testing.T) {
	dev := &fakeDevice{}
	l := newTestLoop(dev, 1)
	l.SetPaused(true)
	start := time.Now()
	l.Stop()
	assert.Less(t, time.Since(start), 2*l.period+500*time.Millisecond)
}
