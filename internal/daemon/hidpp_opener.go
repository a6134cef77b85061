package daemon

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/keyledsd/keyledsd/internal/config"
	"github.com/keyledsd/keyledsd/internal/devicemgr"
	"github.com/keyledsd/keyledsd/internal/discovery"
	"github.com/keyledsd/keyledsd/internal/hidpp"
	"github.com/keyledsd/keyledsd/internal/hidpp/endpoint"
	"github.com/keyledsd/keyledsd/internal/hidpp/feature"
	"github.com/keyledsd/keyledsd/internal/keydb"
	"github.com/keyledsd/keyledsd/internal/paths"
	"github.com/keyledsd/keyledsd/internal/plugin"
	"github.com/keyledsd/keyledsd/internal/render/loop"
)

// defaultTarget is the root target id every HID++ 2.0 request addresses
// before any per-device remapping; keyledsd devices only ever expose one
// addressable target.
const defaultTarget uint8 = 0xff

const appID uint8 = 0x01

// HIDPPOpener is the production Opener: it opens the hidraw node, runs
// the HID++ 2.0 handshake, reads the device's LED/key layout, and binds a
// devicemgr.Manager plus its render loop over it.
type HIDPPOpener struct {
	logger       *slog.Logger
	pluginMgr    *plugin.Manager
	layoutDir    string
	currentDoc   func() *config.Document
}

// NewHIDPPOpener builds the production Opener. currentDoc is called on
// every Open, and the new device uses whatever document it returns at that
// moment for its device-name/profile configuration.
func NewHIDPPOpener(logger *slog.Logger, pluginMgr *plugin.Manager, layoutDir string, currentDoc func() *config.Document) *HIDPPOpener {
	return &HIDPPOpener{logger: logger, pluginMgr: pluginMgr, layoutDir: layoutDir, currentDoc: currentDoc}
}

// deviceClient bundles everything Open constructs so Close can unwind it
// in reverse order.
type deviceClient struct {
	loop   *loop.Loop
	ep     *endpoint.Endpoint
	client *hidpp.Client
}

func (d *deviceClient) Close() error {
	d.loop.Stop()
	return d.ep.Close()
}

func (o *HIDPPOpener) Open(dev discovery.Device) (*devicemgr.Manager, Closer, error) {
	rawDev, reports, err := hidpp.OpenDevice(dev.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("daemon: open %s: %w", dev.Path, err)
	}

	maxPayload := 0
	for _, r := range reports {
		if r.Payload > maxPayload {
			maxPayload = r.Payload
		}
	}
	ep := endpoint.New(rawDev, maxPayload+1)

	client, err := hidpp.Open(ep, reports, appID)
	if err != nil {
		ep.Close()
		return nil, nil, fmt.Errorf("daemon: handshake %s: %w", dev.Path, err)
	}

	reportedName, _ := feature.GetName(client, defaultTarget)

	blocks, err := feature.GetLEDBlocks(client, defaultTarget)
	if err != nil {
		ep.Close()
		return nil, nil, fmt.Errorf("daemon: led blocks %s: %w", dev.Path, err)
	}

	layout := o.loadLayout(reportedName)
	keys, loopBlocks := buildLayout(blocks, layout)
	db := keydb.New(keys)

	doc := o.currentDoc()
	name := doc.Devices[dev.Serial]
	if name == "" {
		name = reportedName
	}

	adapter := &deviceAdapter{client: client, target: defaultTarget}
	dl := loop.New(loop.Config{
		Device: adapter,
		Blocks: loopBlocks,
		Size:   db.Len(),
		FPS:    30,
		Logger: o.logger,
	})

	profiles, errs := config.CompileProfiles(doc)
	for _, e := range errs {
		if o.logger != nil {
			o.logger.Warn("profile dropped", "error", e)
		}
	}

	mgr := devicemgr.New(devicemgr.Config{
		Identity:     devicemgr.Identity{Name: name, Model: reportedName, Serial: dev.Serial},
		KeyDB:        db,
		Loop:         dl,
		PluginMgr:    o.pluginMgr,
		Logger:       o.logger,
		DataPaths:    paths.EffectDataPaths(),
		Profiles:     profiles,
		Effects:      doc.Effects,
		GlobalGroups: doc.Groups,
	})

	return mgr, &deviceClient{loop: dl, ep: ep, client: client}, nil
}

// loadLayout reads model_<name>.xml from the configured layout directory,
// if present, to supply key names and positions the device itself does
// not report. A missing or unreadable layout file is not an
// error: buildLayout falls back to unnamed, ungeometried keys.
func (o *HIDPPOpener) loadLayout(modelName string) *keydb.Layout {
	if o.layoutDir == "" || modelName == "" {
		return nil
	}
	path := o.layoutDir + "/model_" + modelName + ".xml"
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	l, err := keydb.ParseLayout(f)
	if err != nil {
		if o.logger != nil {
			o.logger.Warn("failed to parse layout", "path", path, "error", err)
		}
		return nil
	}
	return l
}

// buildLayout assigns render-target indices to every key across every LED
// block, reading each key's name/geometry from layout when available.
func buildLayout(blocks []feature.LEDBlock, layout *keydb.Layout) ([]keydb.Key, []loop.Block) {
	var keys []keydb.Key
	var loopBlocks []loop.Block
	idx := 0
	for _, b := range blocks {
		var blockKeys []loop.BlockKey
		for code := 0; code < b.KeyCount; code++ {
			k := keydb.Key{Index: idx, KeyCode: code}
			if name, ok := layout.Name(int(b.ID), code); ok {
				k.Name = name
			}
			if rect, ok := layout.Rect(int(b.ID), code); ok {
				k.Rect = rect
			}
			keys = append(keys, k)
			blockKeys = append(blockKeys, loop.BlockKey{RenderIndex: idx, KeyID: uint8(code)})
			idx++
		}
		loopBlocks = append(loopBlocks, loop.Block{ID: b.ID, Keys: blockKeys})
	}
	return keys, loopBlocks
}

// deviceAdapter satisfies loop.Device over a HID++ feature client bound
// to one target id.
type deviceAdapter struct {
	client *hidpp.Client
	target uint8
}

func (a *deviceAdapter) SetLEDs(block uint8, leds []feature.LED) error {
	if err := feature.SetLEDs(a.client, a.target, block, leds); err != nil {
		return err
	}
	return nil
}

func (a *deviceAdapter) CommitLEDs() error {
	return feature.CommitLEDs(a.client, a.target)
}

func (a *deviceAdapter) Ping() error {
	return a.client.Ping(a.target)
}
