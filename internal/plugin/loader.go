package plugin

import (
	"fmt"
	"os"
	"path/filepath"
	"unsafe"

	"github.com/ebitengine/purego"
)

// cModuleDefinition is the byte-for-byte memory layout purego reads directly
// out of the library's exported "keyledsd_module" symbol.
type cModuleDefinition struct {
	signature  [SignatureSize]byte
	abiVersion uint32
	major      uint32
	minor      uint32
	initialize uintptr
	shutdown   uintptr
}

// cHost is the C-ABI view of Host passed into a module's initialize
// function: version numbers plus a callback pointer a plugin invokes to
// report initialisation failures.
type cHost struct {
	major, minor uint32
	onError      uintptr
}

// sharedLibrary is a loaded fx_<name>.so: its dlopen handle, parsed
// definition, and the typed entry points purego registered against the
// definition's raw function-pointer fields.
type sharedLibrary struct {
	handle     uintptr
	def        cModuleDefinition
	initialize func(host uintptr) uintptr
	shutdown   func(host, pluginPtr uintptr) int32
	plugin     uintptr
}

// openLibrary searches dirs for fx_<name>.so, dlopens the first match, and
// validates its exported module_definition: signature, ABI version and
// major version must all equal the daemon's compile-time constants.
func openLibrary(dirs []string, name string) (*sharedLibrary, error) {
	libName := "fx_" + name + ".so"
	var path string
	for _, dir := range dirs {
		candidate := filepath.Join(dir, libName)
		if _, err := os.Stat(candidate); err == nil {
			path = candidate
			break
		}
	}
	if path == "" {
		return nil, fmt.Errorf("plugin: %s not found in plugin path", libName)
	}

	handle, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
	if err != nil {
		return nil, fmt.Errorf("plugin: dlopen %s: %w", path, err)
	}

	sym, err := purego.Dlsym(handle, "keyledsd_module")
	if err != nil {
		return nil, fmt.Errorf("plugin: %s exports no keyledsd_module symbol: %w", path, err)
	}

	def := *(*cModuleDefinition)(unsafe.Pointer(sym))
	if err := verifySignature(def.signature); err != nil {
		return nil, fmt.Errorf("plugin: %s: %w", path, err)
	}
	if def.abiVersion != ABIVersion || def.major != Major {
		return nil, fmt.Errorf("plugin: %s: abi %d.%d incompatible with daemon %d.%d",
			path, def.abiVersion, def.major, ABIVersion, Major)
	}

	lib := &sharedLibrary{handle: handle, def: def}
	purego.RegisterFunc(&lib.initialize, def.initialize)
	purego.RegisterFunc(&lib.shutdown, def.shutdown)
	return lib, nil
}

// callInitialize invokes the library's initialize(host) entry point,
// translating host.OnError into a C-callable function pointer for the
// duration of the call.
func (lib *sharedLibrary) callInitialize(host Host) error {
	onError := purego.NewCallback(func(msg *byte) {
		if host.OnError != nil {
			host.OnError(cStringToGo(msg))
		}
	})
	c := cHost{major: host.Major, minor: host.Minor, onError: onError}
	plugin := lib.initialize(uintptr(unsafe.Pointer(&c)))
	if plugin == 0 {
		return fmt.Errorf("plugin: initialize returned null")
	}
	lib.plugin = plugin
	return nil
}

func (lib *sharedLibrary) callShutdown(host Host) bool {
	c := cHost{major: host.Major, minor: host.Minor}
	ok := lib.shutdown(uintptr(unsafe.Pointer(&c)), lib.plugin)
	return ok != 0
}

// cStringToGo reads a NUL-terminated C string starting at p.
func cStringToGo(p *byte) string {
	if p == nil {
		return ""
	}
	var buf []byte
	for ptr := unsafe.Pointer(p); ; {
		b := *(*byte)(ptr)
		if b == 0 {
			break
		}
		buf = append(buf, b)
		ptr = unsafe.Add(ptr, 1)
	}
	return string(buf)
}
