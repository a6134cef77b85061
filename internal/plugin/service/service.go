// Package service implements the effect service facade (component G): the
// one-per-effect read-only accessors, pooled render targets, effect-data
// file access, and the generic configuration decoder.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/keyledsd/keyledsd/internal/keydb"
	"github.com/keyledsd/keyledsd/internal/render/color"
	"github.com/keyledsd/keyledsd/internal/render/target"
)

// Service is the facade an effect instance is constructed with. It is
// owned by the device manager and outlives any single effect; effects must
// never retain a back-pointer to anything but their Service, which keeps
// the service the topological root and breaks any ownership cycle.
type Service struct {
	deviceName   string
	deviceModel  string
	deviceSerial string
	keyDB        *keydb.Database
	groups       map[string]keydb.KeyGroup
	config       map[string]any // string or []string, as decoded from YAML
	colors       map[string]color.RGBA
	dataPaths    []string
	logger       *slog.Logger

	mu       sync.Mutex
	lastFile []byte
	pool     []*target.Target
}

// Config is the data a device manager assembles to construct one effect's
// Service: its slice of the device identity, the key groups visible to
// this effect (declared by its enclosing effect group), the plugin's own
// options, and the named color palette from the surrounding configuration
// document.
type Config struct {
	DeviceName   string
	DeviceModel  string
	DeviceSerial string
	KeyDB        *keydb.Database
	Groups       map[string]keydb.KeyGroup
	Options      map[string]any
	Colors       map[string]color.RGBA
	DataPaths    []string
	Logger       *slog.Logger
}

// New builds a Service from cfg.
func New(cfg Config) *Service {
	return &Service{
		deviceName:   cfg.DeviceName,
		deviceModel:  cfg.DeviceModel,
		deviceSerial: cfg.DeviceSerial,
		keyDB:        cfg.KeyDB,
		groups:       cfg.Groups,
		config:       cfg.Options,
		colors:       cfg.Colors,
		dataPaths:    cfg.DataPaths,
		logger:       cfg.Logger,
	}
}

func (s *Service) DeviceName() string      { return s.deviceName }
func (s *Service) DeviceModel() string     { return s.deviceModel }
func (s *Service) DeviceSerial() string    { return s.deviceSerial }
func (s *Service) KeyDB() *keydb.Database  { return s.keyDB }

// KeyGroup returns the named key group visible to this effect, if any.
func (s *Service) KeyGroup(name string) (keydb.KeyGroup, bool) {
	g, ok := s.groups[name]
	return g, ok
}

// Configuration returns the plugin's raw option value for key (string or
// []string), as found in the effect's configuration block.
func (s *Service) Configuration(key string) (any, bool) {
	v, ok := s.config[key]
	return v, ok
}

// OptionKeys returns every configured option's key, for effects (fill)
// that treat arbitrary option keys as group names rather than a fixed
// schema.
func (s *Service) OptionKeys() []string {
	keys := make([]string, 0, len(s.config))
	for k := range s.config {
		keys = append(keys, k)
	}
	return keys
}

// Colors returns the named color palette declared alongside this effect's
// configuration.
func (s *Service) Colors() map[string]color.RGBA { return s.colors }

// CreateRenderTarget returns a render target sized to size, reused from
// the pool when possible so repeated short-lived effects do not thrash the
// allocator.
func (s *Service) CreateRenderTarget(size int) *target.Target {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, t := range s.pool {
		if t.Capacity() >= size {
			s.pool = append(s.pool[:i], s.pool[i+1:]...)
			t.Reset(size)
			return t
		}
	}
	return target.New(size)
}

// DestroyRenderTarget returns t to the pool for reuse.
func (s *Service) DestroyRenderTarget(t *target.Target) {
	if t == nil {
		return
	}
	s.mu.Lock()
	s.pool = append(s.pool, t)
	s.mu.Unlock()
}

// GetFile reads relpath from the effect-data search path. Calling it with
// an empty path releases the last read buffer so a plugin can free memory
// after parsing without waiting for garbage collection.
func (s *Service) GetFile(relpath string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if relpath == "" {
		s.lastFile = nil
		return nil, nil
	}
	for _, dir := range s.dataPaths {
		data, err := os.ReadFile(filepath.Join(dir, relpath))
		if err == nil {
			s.lastFile = data
			return data, nil
		}
	}
	return nil, fmt.Errorf("service: %q not found in effect data path", relpath)
}

// Log emits a message at level through the service's logger, tagged with
// the owning device's name.
func (s *Service) Log(level slog.Level, message string) {
	if s.logger == nil {
		return
	}
	s.logger.Log(context.Background(), level, message, "device", s.deviceName)
}
