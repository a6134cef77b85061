package plugin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keyledsd/keyledsd/internal/plugin/service"
)

type stubEffect struct{ rendered int }

func (e *stubEffect) Render(elapsedMS int64, target any) { e.rendered++ }

func TestCreateEffectPrefersNativeRegistry(t *testing.T) {
	Register("stub-fill", func(name string, svc *service.Service) (Effect, error) {
		return &stubEffect{}, nil
	})

	m := NewManager(nil, Host{}, nil)
	eff, release, err := m.CreateEffect("stub-fill", nil)
	require.NoError(t, err)
	require.NotNil(t, eff)
	release()
}

func TestCreateEffectUnknownFails(t *testing.T) {
	m := NewManager([]string{t.TempDir()}, Host{}, nil)
	_, _, err := m.CreateEffect("does-not-exist", nil)
	assert.Error(t, err)
}

func TestVerifySignatureRejectsMismatch(t *testing.T) {
	var bad [SignatureSize]byte
	copy(bad[:], Signature[:])
	bad[0] ^= 0xff
	assert.Error(t, verifySignature(bad))
	assert.NoError(t, verifySignature(Signature))
}

func TestLoadMissingLibraryFails(t *testing.T) {
	m := NewManager([]string{t.TempDir()}, Host{}, nil)
	err := m.Load("nope")
	assert.Error(t, err)
}
