package hidpp

import (
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keyledsd/keyledsd/internal/hidpp/endpoint"
)

// fakeDevice is an in-memory endpoint.HIDDevice: writes are recorded,
// reads block on a queue of canned inbound frames.
type fakeDevice struct {
	mu      sync.Mutex
	writes  [][]byte
	replies chan []byte
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{replies: make(chan []byte, 16)}
}

func (f *fakeDevice) Write(p []byte) (int, error) {
	cp := append([]byte(nil), p...)
	f.mu.Lock()
	f.writes = append(f.writes, cp)
	f.mu.Unlock()
	return len(p), nil
}

func (f *fakeDevice) Read(p []byte) (int, error) {
	r, ok := <-f.replies
	if !ok {
		return 0, io.EOF
	}
	return copy(p, r), nil
}

func (f *fakeDevice) Close() error { return nil }

func (f *fakeDevice) lastWrite() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writes[len(f.writes)-1]
}

var testReports = []Report{{ID: 0x10, Payload: 6}, {ID: 0x11, Payload: 19}}

func newTestClient(dev *fakeDevice, reports []Report) *Client {
	ep := endpoint.New(dev, 21)
	return &Client{
		ep:      ep,
		reports: reports,
		appID:   0x01,
		seq:     1,
		features: map[featureKey]featureEntry{
			{0xff, FeatureRoot}:  {indexRoot, 0},
			{0xff, FeatureTable}: {indexFeatureTable, 0},
		},
	}
}

// Property 1: the emitted report picks the smallest fitting report id and
// zero-pads the payload.
func TestCallSmallestFittingReportZeroPadded(t *testing.T) {
	dev := newFakeDevice()
	c := newTestClient(dev, testReports)

	dev.replies <- []byte{0x10, 0xff, indexRoot, 0x01, 0, 0, 0}

	reply, err := c.Call(0xff, FeatureRoot, 3, []byte{0xaa, 0xbb})
	require.NoError(t, err)
	assert.NotNil(t, reply)

	frame := dev.lastWrite()
	require.Len(t, frame, 7) // 1 + the 6-byte report, the smallest >= 2+3
	assert.Equal(t, byte(0x10), frame[0])
	assert.Equal(t, byte(0xff), frame[1])
	assert.Equal(t, byte(indexRoot), frame[2])
	assert.Equal(t, byte((3<<4)|0x01), frame[3])
	assert.Equal(t, []byte{0xaa, 0xbb, 0}, frame[4:])
}

// Property 1 continued: a payload that only the larger report can hold
// selects that report instead.
func TestCallSelectsLargerReportWhenRequired(t *testing.T) {
	dev := newFakeDevice()
	c := newTestClient(dev, testReports)

	dev.replies <- []byte{0x11, 0xff, indexRoot, 0x01}

	payload := make([]byte, 10)
	_, err := c.Call(0xff, FeatureRoot, 0, payload)
	require.NoError(t, err)

	frame := dev.lastWrite()
	assert.Equal(t, byte(0x11), frame[0])
	require.Len(t, frame, 20)
}

// Property 2: frames whose (target, feature_index, app_id) triple does not
// match the outstanding request are discarded, not mistaken for the reply.
func TestCallIgnoresNonMatchingFrames(t *testing.T) {
	dev := newFakeDevice()
	c := newTestClient(dev, testReports)

	dev.replies <- []byte{0x10, 0x01, indexRoot, 0x01, 1, 1, 1} // wrong target
	dev.replies <- []byte{0x10, 0xff, 5, 0x01, 2, 2, 2}         // wrong feature index
	dev.replies <- []byte{0x10, 0xff, indexRoot, 0x09, 3, 3, 3} // wrong app id
	dev.replies <- []byte{0x10, 0xff, indexRoot, 0x01, 9, 9, 9} // the actual reply

	reply, err := c.Call(0xff, FeatureRoot, 0, []byte{0x00})
	require.NoError(t, err)
	assert.Equal(t, []byte{9, 9, 9}, reply)
}

// Property 2's exception: an error frame (feature_index == 0xff) for the
// same target is accepted even though it doesn't match the request's own
// feature index, and surfaces as a ProtocolError.
func TestCallAcceptsErrorFrameForMismatchedFeatureIndex(t *testing.T) {
	dev := newFakeDevice()
	c := newTestClient(dev, testReports)

	dev.replies <- []byte{0x10, 0xff, 0xff, byte(0 << 4), byte(indexRoot), byte(ErrInvalidArgument)}

	_, err := c.Call(0xff, FeatureRoot, 0, []byte{0x00})
	require.Error(t, err)
	var perr *ProtocolError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, ErrInvalidArgument, perr.Code)
}

// Property 3: Ping always terminates with the final byte of the sent
// payload echoed back, regardless of how many unrelated frames (different
// target or feature index) arrive first.
func TestPingTerminatesOnMatchingSequenceByte(t *testing.T) {
	dev := newFakeDevice()
	c := newTestClient(dev, testReports)

	dev.replies <- []byte{0x10, 0x01, indexRoot, 0x00, 0, 0, 0} // wrong target, ignored
	dev.replies <- []byte{0x10, 0xff, 5, 0x00, 0, 0, 0}         // wrong feature index, ignored

	done := make(chan error, 1)
	go func() { done <- c.Ping(0xff) }()

	// Both frames above are shape-mismatched and skipped by the endpoint
	// without being handed to Ping's reply handler at all, so feed the
	// genuine echo once Ping has had a chance to send its request.
	time.Sleep(10 * time.Millisecond)
	sentSeq := dev.lastWrite()[6]
	dev.replies <- []byte{0x10, 0xff, indexRoot, 0x00, 0, 0, sentSeq}

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("ping did not terminate on matching sequence byte")
	}
}
