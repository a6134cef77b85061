// Package hidpp implements the HID++ 2.0 feature-call protocol (component
// B): frame encode/decode, feature-index discovery and caching, device
// open/resync, and the low-level Call/Ping/GetProtocol primitives that the
// typed feature wrappers in internal/hidpp/feature build on.
package hidpp

import (
	"crypto/rand"
	"fmt"

	"github.com/keyledsd/keyledsd/internal/hidpp/endpoint"
)

// Well-known feature ids.
const (
	FeatureRoot        uint16 = 0x0000
	FeatureTable       uint16 = 0x0001
	FeatureVersion     uint16 = 0x0003
	FeatureName        uint16 = 0x0005
	FeatureGameMode    uint16 = 0x4522
	FeatureLayout      uint16 = 0x4540
	FeatureReportRate  uint16 = 0x8060
	FeatureLEDs        uint16 = 0x8080
)

// Well-known, preset feature indices.
const (
	indexRoot        = 0
	indexFeatureTable = 1
)

const frameHeaderLen = 4 // report_id | target_id | feature_index | (function<<4|app_id)

type featureKey struct {
	target  uint8
	feature uint16
}

type featureEntry struct {
	index uint8
	flags uint8
}

// Feature index cache flag bits.
const (
	FlagReserved uint8 = 1 << iota
	FlagHidden
	FlagObsolete
)

// Client wraps an Endpoint and speaks HID++ 2.0 framing: feature
// resolution by 16-bit id, function dispatch, and reply/error matching.
type Client struct {
	ep      *endpoint.Endpoint
	reports []Report
	appID   uint8
	seq     uint8

	features map[featureKey]featureEntry
}

// Open takes ownership of an already-constructed Endpoint (built over the
// device's raw HID fd by the platform-specific opener) plus its parsed
// report descriptor, and establishes a HID++ 2.0 session: it verifies at
// least one report carries 4+ payload bytes, then calls GetProtocol at the
// default target (0xff) to confirm the device speaks HID++ 2.0 or later.
// appID is a 4-bit application tag chosen by the caller.
func Open(ep *endpoint.Endpoint, reports []Report, appID uint8) (*Client, error) {
	if appID > 0x0f {
		return nil, fmt.Errorf("hidpp: app id %#x out of 4-bit range", appID)
	}
	ok := false
	for _, r := range reports {
		if r.Payload >= 4 {
			ok = true
			break
		}
	}
	if !ok {
		return nil, fmt.Errorf("hidpp: device exposes no report with a 4+ byte payload")
	}

	c := &Client{
		ep:       ep,
		reports:  reports,
		appID:    appID,
		seq:      seedSequence(),
		features: map[featureKey]featureEntry{
			{0xff, FeatureRoot}:  {indexRoot, 0},
			{0xff, FeatureTable}: {indexFeatureTable, 0},
		},
	}

	version, err := c.GetProtocol(0xff)
	if err != nil {
		return nil, err
	}
	if version < 2 {
		return nil, V1Error{}
	}
	return c, nil
}

// seedSequence picks a nonzero random starting value for the ping sequence
// counter, to disambiguate resyncs from a prior session's stale replies.
func seedSequence() uint8 {
	var b [1]byte
	if _, err := rand.Read(b[:]); err != nil || b[0] == 0 {
		return 1
	}
	return b[0]
}

// MaxPayload returns the largest payload, in bytes, any of the device's
// reports can carry after the 3-byte target/feature_index/function header
// Call itself consumes. Callers that build large variable-length requests
// (e.g. SetLEDs) chunk against this instead of discovering the limit via a
// failed SmallestFitting lookup.
func (c *Client) MaxPayload() int {
	max := 0
	for _, r := range c.reports {
		if r.Payload > max {
			max = r.Payload
		}
	}
	return max - 3
}

// Call resolves feature_id to its index (looking it up lazily via
// GetFeature), selects the smallest report whose payload can hold the
// request, sends it, and returns the matching reply's payload. Frames not
// matching (target, feature_index, app_id) are ignored, except error
// frames (feature_index==0xff, or the legacy 0x8f root error).
func (c *Client) Call(target uint8, featureID uint16, function uint8, payload []byte) ([]byte, error) {
	index, err := c.GetFeature(target, featureID)
	if err != nil {
		return nil, err
	}
	return c.callIndex(target, index, function, payload)
}

func (c *Client) callIndex(target, index uint8, function uint8, payload []byte) ([]byte, error) {
	report, ok := SmallestFitting(c.reports, len(payload)+3)
	if !ok {
		return nil, fmt.Errorf("hidpp: no report large enough for %d-byte payload", len(payload))
	}

	frame := make([]byte, 1+report.Payload)
	frame[0] = report.ID
	frame[1] = target
	frame[2] = index
	frame[3] = (function << 4) | (c.appID & 0x0f)
	copy(frame[frameHeaderLen:], payload)

	type result struct {
		reply []byte
		err   error
	}
	done := make(chan result, 1)

	accept := func(f []byte) bool {
		if len(f) < frameHeaderLen {
			return false
		}
		if f[1] != target {
			return false
		}
		if f[2] == index && (f[3]&0x0f) == (c.appID&0x0f) {
			return true
		}
		if f[2] == 0xff { // error frame
			return true
		}
		if index == indexRoot && f[2] == 0x8f { // legacy v1 error
			return true
		}
		return false
	}

	posted := c.ep.Post(frame, accept,
		func(reply []byte) {
			if err := c.decodeError(target, reply); err != nil {
				done <- result{nil, err}
				return
			}
			done <- result{append([]byte(nil), reply[frameHeaderLen:]...), nil}
		},
		func(err error) { done <- result{nil, err} },
	)
	if !posted {
		return nil, endpoint.ErrQueueFull
	}

	r := <-done
	return r.reply, r.err
}

// decodeError inspects a reply frame for the HID++ error encodings and
// returns a typed ProtocolError/V1Error, or nil if frame is a normal
// (non-error) reply. The failing feature id is recovered from the index
// cache for error reporting.
func (c *Client) decodeError(target uint8, frame []byte) error {
	if len(frame) < 4 {
		return nil
	}
	switch frame[2] {
	case 0xff:
		if len(frame) < 6 {
			return fmt.Errorf("hidpp: truncated error frame")
		}
		return &ProtocolError{
			Feature:  c.featureIDForIndex(target, frame[4]),
			Function: frame[3] >> 4,
			Code:     ErrorCode(frame[5]),
		}
	case 0x8f:
		return V1Error{}
	default:
		return nil
	}
}

// featureIDForIndex reverse-looks-up a cached feature index back to its
// feature id, for annotating protocol errors. Returns 0 if unknown.
func (c *Client) featureIDForIndex(target uint8, index uint8) uint16 {
	for k, e := range c.features {
		if k.target == target && e.index == index {
			return k.feature
		}
	}
	return 0
}

// GetFeature resolves feature_id to its device-assigned index via
// root-function 0, caching the result for the session. The two well-known
// indices (root, feature table) are preset and never looked up.
func (c *Client) GetFeature(target uint8, featureID uint16) (uint8, error) {
	key := featureKey{target, featureID}
	if e, ok := c.features[key]; ok {
		return e.index, nil
	}

	payload := []byte{byte(featureID >> 8), byte(featureID)}
	reply, err := c.callIndex(target, indexRoot, 0, payload)
	if err != nil {
		return 0, err
	}
	if len(reply) < 2 {
		return 0, fmt.Errorf("hidpp: truncated get_feature reply")
	}
	index, flags := reply[0], reply[1]
	if index == 0 && featureID != FeatureRoot && featureID != FeatureTable {
		return 0, &FeatureNotFoundError{Feature: featureID}
	}
	c.features[key] = featureEntry{index, flags}
	return index, nil
}

// Ping sends a 3-byte payload whose last byte is a rolling sequence
// number, reading (and discarding) responses until a PONG with the
// matching byte is seen. Used to drain stale responses after a timeout or
// desync.
func (c *Client) Ping(target uint8) error {
	c.seq++
	seq := c.seq
	payload := []byte{0, 0, seq}

	report, ok := SmallestFitting(c.reports, len(payload)+3)
	if !ok {
		return fmt.Errorf("hidpp: no report large enough for ping")
	}
	frame := make([]byte, 1+report.Payload)
	frame[0] = report.ID
	frame[1] = target
	frame[2] = indexRoot
	frame[3] = (0 << 4) | (c.appID & 0x0f) // root function 0 == ping
	copy(frame[frameHeaderLen:], payload)

	type result struct {
		ok  bool
		err error
	}
	done := make(chan result, 1)
	accept := func(f []byte) bool {
		return len(f) >= frameHeaderLen+3 && f[1] == target && f[2] == indexRoot &&
			f[frameHeaderLen+2] == seq
	}
	posted := c.ep.Post(frame, accept,
		func(reply []byte) {
			body := reply[frameHeaderLen:]
			done <- result{ok: len(body) >= 3 && body[2] == seq}
		},
		func(err error) { done <- result{false, err} },
	)
	if !posted {
		return endpoint.ErrQueueFull
	}
	r := <-done
	if r.err != nil {
		return r.err
	}
	if !r.ok {
		return fmt.Errorf("hidpp: ping sequence mismatch")
	}
	return nil
}

// GetProtocol issues an empty-payload PING at target and returns the
// reported protocol major version. A legacy HID++ v1 error response at
// feature 0x8f maps to protocol version 1.
func (c *Client) GetProtocol(target uint8) (int, error) {
	report, ok := SmallestFitting(c.reports, 3)
	if !ok {
		return 0, fmt.Errorf("hidpp: no report large enough for get_protocol")
	}
	frame := make([]byte, 1+report.Payload)
	frame[0] = report.ID
	frame[1] = target
	frame[2] = indexRoot
	frame[3] = (0 << 4) | (c.appID & 0x0f)

	type result struct {
		version int
		err     error
	}
	done := make(chan result, 1)
	accept := func(f []byte) bool {
		return len(f) >= frameHeaderLen && f[1] == target && (f[2] == indexRoot || f[2] == 0x8f)
	}
	posted := c.ep.Post(frame, accept,
		func(reply []byte) {
			if reply[2] == 0x8f {
				done <- result{1, nil}
				return
			}
			body := reply[frameHeaderLen:]
			if len(body) < 1 {
				done <- result{0, fmt.Errorf("hidpp: truncated get_protocol reply")}
				return
			}
			done <- result{int(body[0]), nil}
		},
		func(err error) { done <- result{0, err} },
	)
	if !posted {
		return 0, endpoint.ErrQueueFull
	}
	r := <-done
	return r.version, r.err
}
