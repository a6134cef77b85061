package discovery

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeUevent(t *testing.T, root, node, hidID, uniq string) {
	t.Helper()
	dir := filepath.Join(root, node, "device")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	content := "HID_ID=" + hidID + "\n"
	if uniq != "" {
		content += "HID_UNIQ=" + uniq + "\n"
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "uevent"), []byte(content), 0o644))
}

func newTestScanner(t *testing.T) *Scanner {
	root := t.TempDir()
	return &Scanner{Vendor: VendorLogitech, sysClassHidraw: root, devHidrawDir: "/dev"}
}

func TestScanFiltersByVendor(t *testing.T) {
	s := newTestScanner(t)
	writeUevent(t, s.sysClassHidraw, "hidraw0", "0003:0000046D:0000C33A", "ABC123")
	writeUevent(t, s.sysClassHidraw, "hidraw1", "0003:00001234:00000001", "")

	devices, err := s.Scan()
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, filepath.Join("/dev", "hidraw0"), devices[0].Path)
	assert.Equal(t, uint16(0x046d), devices[0].VendorID)
	assert.Equal(t, uint16(0xc33a), devices[0].ProductID)
	assert.Equal(t, "ABC123", devices[0].Serial)
}

func TestScanMissingSysfsReturnsEmpty(t *testing.T) {
	s := &Scanner{Vendor: VendorLogitech, sysClassHidraw: filepath.Join(t.TempDir(), "nope"), devHidrawDir: "/dev"}
	devices, err := s.Scan()
	require.NoError(t, err)
	assert.Empty(t, devices)
}

func TestPollerEmitsAddedThenRemoved(t *testing.T) {
	s := newTestScanner(t)
	writeUevent(t, s.sysClassHidraw, "hidraw0", "0003:0000046D:0000C33A", "")

	p := NewPoller(s, 10*time.Millisecond)
	defer p.Stop()

	select {
	case ev := <-p.Events():
		assert.Equal(t, Added, ev.Kind)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for Added event")
	}

	require.NoError(t, os.RemoveAll(filepath.Join(s.sysClassHidraw, "hidraw0")))

	select {
	case ev := <-p.Events():
		assert.Equal(t, Removed, ev.Kind)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for Removed event")
	}
}
