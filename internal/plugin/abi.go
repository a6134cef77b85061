// Package plugin implements the effect plugin manager (component F): the
// C-ABI module contract shared libraries expose, a native-Go registry for
// in-process effects, and the load/create/unload lifecycle with use-count
// bookkeeping.
package plugin

import (
	"encoding/hex"
	"fmt"

	"github.com/keyledsd/keyledsd/internal/plugin/service"
)

// SignatureSize is the fixed length of a module's UUID signature.
const SignatureSize = 16

// Signature is the one fixed UUID every valid module must export, bit for
// bit: a7:96:85:d4:a9:0c:11:e7:98:22:28:b2:bd:4c:bb:e3.
var Signature = [SignatureSize]byte{
	0xa7, 0x96, 0x85, 0xd4, 0xa9, 0x0c, 0x11, 0xe7,
	0x98, 0x22, 0x28, 0xb2, 0xbd, 0x4c, 0xbb, 0xe3,
}

// ABIVersion and Major are the compile-time contract versions a module's
// definition must match exactly to be accepted.
const (
	ABIVersion uint32 = 1
	Major      uint32 = 1
)

// ModuleDefinition mirrors the C struct a shared library exports under the
// symbol "keyledsd_module":
//
//	struct module_definition {
//	    uint8_t  signature[16];
//	    uint32_t abi_version;
//	    uint32_t major;
//	    uint32_t minor;
//	    void *initialize; // Plugin *(*)(Host *host)
//	    void *shutdown;   // bool (*)(Host *host, Plugin *plugin)
//	};
type ModuleDefinition struct {
	Signature  [SignatureSize]byte
	ABIVersion uint32
	Major      uint32
	Minor      uint32
	Initialize uintptr
	Shutdown   uintptr
}

// Host is passed to a module's initialize function: the daemon's own
// version numbers plus an error-reporting callback the module can invoke
// during initialisation.
type Host struct {
	Major, Minor uint32
	OnError      func(msg string)
}

// Renderer is the single-method capability every effect exposes to the
// render loop.
type Renderer interface {
	Render(elapsedMS int64, target any)
}

// Effect is the capability set an effect instance may implement. Only
// Renderer is mandatory; the others are checked with a type assertion, a
// tagged-variant capability model instead of a class hierarchy.
type Effect interface {
	Renderer
}

// ContextHandler effects react to profile/context changes.
type ContextHandler interface {
	HandleContextChange(ctx map[string]string)
}

// KeyEventHandler effects react to raw key presses/releases.
type KeyEventHandler interface {
	HandleKeyEvent(keyCode int, pressed bool)
}

// GenericEventHandler effects react to plugin-defined named events.
type GenericEventHandler interface {
	HandleGenericEvent(name string, args map[string]string)
}

// Factory creates one Effect instance for an EffectService. Native Go
// plugins and loaded C-ABI modules both ultimately provide one of these.
type Factory func(name string, svc *service.Service) (Effect, error)

func verifySignature(sig [SignatureSize]byte) error {
	if sig != Signature {
		return fmt.Errorf("plugin: signature mismatch: got %s", hex.EncodeToString(sig[:]))
	}
	return nil
}
