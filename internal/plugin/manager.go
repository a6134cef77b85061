package plugin

import (
	"fmt"
	"log/slog"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"

	"github.com/keyledsd/keyledsd/internal/plugin/service"
)

// trackedLibrary pairs a loaded shared library with use-count bookkeeping:
// every live effect created from it increments the count, its deleter
// decrements it, and a non-zero count at unload is a protocol violation
// logged at error level rather than refused.
type trackedLibrary struct {
	lib      *sharedLibrary
	useCount int32
}

// Manager implements the effect plugin manager (component F): library
// search-path resolution, the native Go registry, and the
// add/load/createEffect/unload lifecycle.
type Manager struct {
	dirs   []string
	host   Host
	logger *slog.Logger

	mu   sync.Mutex
	libs map[string]*trackedLibrary
}

// NewManager creates a Manager that searches dirs (in order) for fx_<name>.so
// libraries.
func NewManager(dirs []string, host Host, logger *slog.Logger) *Manager {
	return &Manager{dirs: dirs, host: host, logger: logger, libs: map[string]*trackedLibrary{}}
}

// Load resolves name to fx_<name>.so in the search path, dlopens it,
// validates its module_definition, and calls initialize. It is idempotent:
// calling Load twice for the same name is a no-op.
func (m *Manager) Load(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.libs[name]; ok {
		return nil
	}
	lib, err := openLibrary(m.dirs, name)
	if err != nil {
		return err
	}
	if err := lib.callInitialize(m.host); err != nil {
		return fmt.Errorf("plugin: %s: %w", name, err)
	}
	m.libs[name] = &trackedLibrary{lib: lib}
	return nil
}

// Unload calls the library's shutdown entry point and releases it. A
// non-zero use count at this point is a protocol violation: it is logged
// at error level and unload proceeds regardless.
func (m *Manager) Unload(name string) error {
	m.mu.Lock()
	t, ok := m.libs[name]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("plugin: %s not loaded", name)
	}
	delete(m.libs, name)
	m.mu.Unlock()

	if t.useCount != 0 && m.logger != nil {
		m.logger.Error("unloading plugin with live effects", "plugin", name, "use_count", t.useCount)
	}
	if !t.lib.callShutdown(m.host) {
		return fmt.Errorf("plugin: %s: shutdown reported failure", name)
	}
	return nil
}

// CreateEffect tries the native registry first, since every built-in
// effect registers itself there, then the loaded plugins; the first to
// produce a non-nil Effect for effectName wins. Loaded plugins are kept in
// a map, so the order in which they are tried is not defined. If nothing
// matches and a library named effectName has not yet been attempted, it
// is auto-loaded and the search retried once.
func (m *Manager) CreateEffect(effectName string, svc *service.Service) (Effect, func(), error) {
	if factory, ok := lookupNative(effectName); ok {
		eff, err := factory(effectName, svc)
		if err != nil {
			return nil, nil, err
		}
		return eff, func() {}, nil
	}

	if eff, release, err := m.createFromLoaded(effectName, svc); err == nil {
		return eff, release, nil
	}

	m.mu.Lock()
	_, attempted := m.libs[effectName]
	m.mu.Unlock()
	if attempted {
		return nil, nil, fmt.Errorf("plugin: no plugin provides effect %q", effectName)
	}
	if err := m.Load(effectName); err != nil {
		return nil, nil, fmt.Errorf("plugin: no plugin provides effect %q: %w", effectName, err)
	}
	return m.createFromLoaded(effectName, svc)
}

func (m *Manager) createFromLoaded(effectName string, svc *service.Service) (Effect, func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, t := range m.libs {
		eff, err := createViaVTable(t.lib, effectName)
		if err != nil || eff == nil {
			continue
		}
		t.useCount++
		libName := name
		release := func() {
			m.mu.Lock()
			if tl, ok := m.libs[libName]; ok {
				tl.useCount--
			}
			m.mu.Unlock()
		}
		return eff, release, nil
	}
	return nil, nil, fmt.Errorf("plugin: no loaded plugin provides effect %q", effectName)
}

// cEffect is the C ABI function-pointer view returned from a plugin's
// createEffect(name, service): a single mandatory render entry point plus
// three optional handlers, each null when unimplemented.
type cEffect struct {
	render             uintptr
	handleContextChange uintptr
	handleKeyEvent      uintptr
	handleGenericEvent  uintptr
}

// effectHandle adapts a loaded library's opaque Effect* to the Go Effect
// capability interfaces, dispatching through purego-registered function
// pointers read from the cEffect vtable.
type effectHandle struct {
	ptr    uintptr
	render func(effect uintptr, elapsedMS int64, target uintptr)
}

func (e *effectHandle) Render(elapsedMS int64, target any) {
	addr, ok := target.(uintptr)
	if !ok {
		return
	}
	e.render(e.ptr, elapsedMS, addr)
}

func createViaVTable(lib *sharedLibrary, effectName string) (Effect, error) {
	// The plugin-level createEffect/destroyEffect function pointers live on
	// the Plugin instance itself (returned by initialize), not on the
	// module_definition; resolve them from the opaque pointer each call.
	vtable := (*cPluginVTable)(unsafe.Pointer(lib.plugin))
	var doCreate func(name *byte, service uintptr) uintptr
	purego.RegisterFunc(&doCreate, vtable.createEffect)

	nameBytes := append([]byte(effectName), 0)
	ptr := doCreate(&nameBytes[0], 0)
	if ptr == 0 {
		return nil, fmt.Errorf("plugin: %q not provided", effectName)
	}

	ev := (*cEffect)(unsafe.Pointer(ptr))
	h := &effectHandle{ptr: ptr}
	purego.RegisterFunc(&h.render, ev.render)
	return h, nil
}

// cPluginVTable is the C ABI view of the opaque Plugin* an initialize call
// returns: createEffect/destroyEffect function pointers, in that order.
type cPluginVTable struct {
	createEffect  uintptr
	destroyEffect uintptr
}
