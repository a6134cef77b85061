// Package daemon implements the service/orchestrator (component J): it
// wires device discovery to per-device managers, reloads configuration on
// SIGHUP, and drives graceful shutdown. Grounded on
// keyledsd::Service's device_list/setContext/setConfiguration lifecycle.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	ctxpkg "github.com/keyledsd/keyledsd/internal/context"
	"github.com/keyledsd/keyledsd/internal/config"
	"github.com/keyledsd/keyledsd/internal/devicemgr"
	"github.com/keyledsd/keyledsd/internal/discovery"
)

// Closer is the resources a managed device must release when it is
// removed or the daemon shuts down.
type Closer interface{ Close() error }

// Opener opens a discovered device node and returns its bound device
// manager plus the resources to release on removal. Production wiring
// goes through hidpp.OpenDevice + hidpp.Open + the feature package; tests
// substitute a fake.
type Opener interface {
	Open(dev discovery.Device) (*devicemgr.Manager, Closer, error)
}

type managedDevice struct {
	mgr    *devicemgr.Manager
	closer Closer
}

// Daemon ties device discovery, configuration reload, and the per-device
// managers together for the process lifetime.
type Daemon struct {
	logger     *slog.Logger
	opener     Opener
	configPath string
	autoQuit   bool

	mu      sync.Mutex
	devices map[string]*managedDevice // keyed by discovery.Device.Path
	ctx     ctxpkg.Context
	hasCtx  bool
}

// Config configures a new Daemon.
type Config struct {
	Logger     *slog.Logger
	Opener     Opener
	ConfigPath string
	AutoQuit   bool
}

// New constructs a Daemon. Call Run to start discovery and block until
// shutdown.
func New(cfg Config) *Daemon {
	return &Daemon{
		logger:     cfg.Logger,
		opener:     cfg.Opener,
		configPath: cfg.ConfigPath,
		autoQuit:   cfg.AutoQuit,
		devices:    make(map[string]*managedDevice),
	}
}

// Run blocks, processing discovery events and OS signals, until ctx is
// cancelled. SIGTERM/SIGINT/SIGQUIT trigger a graceful quit; SIGHUP
// reloads configuration from the daemon's configured path.
func (d *Daemon) Run(ctx context.Context, watcher discovery.Watcher, pollInterval time.Duration) error {
	poller := discovery.NewPoller(watcher, pollInterval)
	defer poller.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	for {
		select {
		case <-ctx.Done():
			d.shutdownAll()
			return nil

		case ev, ok := <-poller.Events():
			if !ok {
				return nil
			}
			d.handleEvent(ev)
			if d.autoQuit && ev.Kind == discovery.Removed && d.deviceCount() == 0 {
				d.shutdownAll()
				return nil
			}

		case sig := <-sigCh:
			switch sig {
			case syscall.SIGHUP:
				if err := d.Reload(); err != nil && d.logger != nil {
					d.logger.Error("reload failed", "error", err)
				}
			default:
				d.shutdownAll()
				return nil
			}
		}
	}
}

func (d *Daemon) handleEvent(ev discovery.Event) {
	switch ev.Kind {
	case discovery.Added:
		d.addDevice(ev.Device)
	case discovery.Removed:
		d.removeDevice(ev.Device)
	}
}

func (d *Daemon) addDevice(dev discovery.Device) {
	mgr, closer, err := d.opener.Open(dev)
	if err != nil {
		if d.logger != nil {
			d.logger.Warn("failed to open device", "path", dev.Path, "error", err)
		}
		return
	}

	d.mu.Lock()
	d.devices[dev.Path] = &managedDevice{mgr: mgr, closer: closer}
	ctx, hasCtx := d.ctx, d.hasCtx
	d.mu.Unlock()

	if hasCtx {
		if err := mgr.SetContext(ctx); err != nil && d.logger != nil {
			d.logger.Warn("initial context dispatch failed", "path", dev.Path, "error", err)
		}
	}
	if d.logger != nil {
		d.logger.Info("device added", "path", dev.Path, "serial", dev.Serial)
	}
}

func (d *Daemon) removeDevice(dev discovery.Device) {
	d.mu.Lock()
	md, ok := d.devices[dev.Path]
	delete(d.devices, dev.Path)
	d.mu.Unlock()
	if !ok {
		return
	}
	if err := md.closer.Close(); err != nil && d.logger != nil {
		d.logger.Warn("error closing removed device", "path", dev.Path, "error", err)
	}
	if d.logger != nil {
		d.logger.Info("device removed", "path", dev.Path)
	}
}

func (d *Daemon) deviceCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.devices)
}

func (d *Daemon) shutdownAll() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for path, md := range d.devices {
		if err := md.closer.Close(); err != nil && d.logger != nil {
			d.logger.Warn("error closing device during shutdown", "path", path, "error", err)
		}
		delete(d.devices, path)
	}
}

// SetContext fans the new context out to every live device manager,
// mirroring Service::setContext.
func (d *Daemon) SetContext(ctx ctxpkg.Context) {
	d.mu.Lock()
	d.ctx, d.hasCtx = ctx, true
	mgrs := make([]*devicemgr.Manager, 0, len(d.devices))
	for _, md := range d.devices {
		mgrs = append(mgrs, md.mgr)
	}
	d.mu.Unlock()

	for _, m := range mgrs {
		if err := m.SetContext(ctx); err != nil && d.logger != nil {
			d.logger.Warn("context dispatch failed", "error", err)
		}
	}
}

// HandleKeyEvent fans a raw key event out to every live device manager.
func (d *Daemon) HandleKeyEvent(keyCode int, pressed bool) {
	d.mu.Lock()
	mgrs := make([]*devicemgr.Manager, 0, len(d.devices))
	for _, md := range d.devices {
		mgrs = append(mgrs, md.mgr)
	}
	d.mu.Unlock()

	for _, m := range mgrs {
		m.HandleKeyEvent(keyCode, pressed)
	}
}

// Reload re-parses the daemon's configuration file and pushes the new
// profile/effect configuration into every live device manager, clearing
// their materialised-effect caches.
func (d *Daemon) Reload() error {
	f, err := os.Open(d.configPath)
	if err != nil {
		return fmt.Errorf("daemon: reload: %w", err)
	}
	defer f.Close()

	doc, err := config.Parse(f)
	if err != nil {
		return fmt.Errorf("daemon: reload: %w", err)
	}
	profiles, errs := config.CompileProfiles(doc)
	for _, e := range errs {
		if d.logger != nil {
			d.logger.Warn("profile dropped on reload", "error", e)
		}
	}

	d.mu.Lock()
	mgrs := make([]*devicemgr.Manager, 0, len(d.devices))
	for _, md := range d.devices {
		mgrs = append(mgrs, md.mgr)
	}
	d.mu.Unlock()

	for _, m := range mgrs {
		m.SetConfiguration(profiles, doc.Effects, doc.Groups)
	}
	return nil
}
