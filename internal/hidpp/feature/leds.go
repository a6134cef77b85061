package feature

import (
	"fmt"

	"github.com/keyledsd/keyledsd/internal/hidpp"
)

// LEDBlock describes one LED block reported by the LEDs feature (0x8080):
// its id (which is also the bit set in the 16-bit presence bitmask), how
// many keys it covers, and the maximum intensity the device accepts per
// channel.
type LEDBlock struct {
	ID       uint8
	KeyCount int
	MaxRed   uint8
	MaxGreen uint8
	MaxBlue  uint8
}

// LED is one {id, r, g, b} quad as streamed by get_leds/set_leds.
type LED struct {
	ID      uint8
	R, G, B uint8
}

// GetLEDBlocks reads the LEDs feature's presence bitmask (function 0) and
// then, for each set bit, the block's key count and per-channel maxima
// (function 1).
func GetLEDBlocks(c *hidpp.Client, target uint8) ([]LEDBlock, error) {
	reply, err := c.Call(target, hidpp.FeatureLEDs, 0, nil)
	if err != nil {
		return nil, err
	}
	if len(reply) < 2 {
		return nil, fmt.Errorf("hidpp/feature: truncated led block bitmask")
	}
	mask := uint16(reply[0])<<8 | uint16(reply[1])

	var blocks []LEDBlock
	for bit := uint8(0); bit < 16; bit++ {
		if mask&(1<<bit) == 0 {
			continue
		}
		info, err := c.Call(target, hidpp.FeatureLEDs, 1, []byte{bit})
		if err != nil {
			return nil, err
		}
		if len(info) < 5 {
			return nil, fmt.Errorf("hidpp/feature: truncated led block %#x info", bit)
		}
		blocks = append(blocks, LEDBlock{
			ID:       bit,
			KeyCount: int(info[0])<<8 | int(info[1]),
			MaxRed:   info[2],
			MaxGreen: info[3],
			MaxBlue:  info[4],
		})
	}
	return blocks, nil
}

const ledQuadSize = 4 // id + r + g + b, one byte each

// GetLEDs streams count LED quads for block starting at keyIDOffset,
// chunked by the report payload budget (4 bytes per LED), validating that
// each reply echoes the offset it was asked for before accepting the
// chunk.
func GetLEDs(c *hidpp.Client, target uint8, block uint8, keyIDOffset, count int) ([]LED, error) {
	out := make([]LED, 0, count)
	offset := keyIDOffset
	for len(out) < count {
		req := []byte{block, byte(offset)}
		reply, err := c.Call(target, hidpp.FeatureLEDs, 2, req)
		if err != nil {
			return nil, err
		}
		if len(reply) < 1 {
			return nil, fmt.Errorf("hidpp/feature: truncated get_leds reply")
		}
		echo := int(reply[0])
		if echo != offset&0xff {
			return nil, fmt.Errorf("hidpp/feature: get_leds echoed offset %d, wanted %d", echo, offset&0xff)
		}
		body := reply[1:]
		n := len(body) / ledQuadSize
		if n == 0 {
			return nil, fmt.Errorf("hidpp/feature: get_leds returned no leds at offset %d", offset)
		}
		if remaining := count - len(out); n > remaining {
			n = remaining
		}
		for i := 0; i < n; i++ {
			q := body[i*ledQuadSize:]
			out = append(out, LED{ID: q[0], R: q[1], G: q[2], B: q[3]})
		}
		offset += n
	}
	return out, nil
}

// SetLEDs writes keys into the device's pending buffer (function 3). The
// write is not visible on the physical keyboard until CommitLEDs. Keys are
// chunked to the report payload budget, the same way the original
// keyleds_set_leds splits a full-block update across several HID++ calls
// rather than risk no report being large enough to hold it.
func SetLEDs(c *hidpp.Client, target uint8, block uint8, keys []LED) error {
	perCall := (c.MaxPayload() - 1) / ledQuadSize
	if perCall <= 0 {
		return fmt.Errorf("hidpp/feature: no report large enough to set any leds")
	}
	for offset := 0; offset < len(keys); offset += perCall {
		end := offset + perCall
		if end > len(keys) {
			end = len(keys)
		}
		chunk := keys[offset:end]

		payload := make([]byte, 1, 1+len(chunk)*ledQuadSize)
		payload[0] = block
		for _, k := range chunk {
			payload = append(payload, k.ID, k.R, k.G, k.B)
		}
		if _, err := c.Call(target, hidpp.FeatureLEDs, 3, payload); err != nil {
			return err
		}
	}
	return nil
}

// SetLEDBlock sets every key in block to the same r/g/b in the pending
// buffer (function 4).
func SetLEDBlock(c *hidpp.Client, target uint8, block uint8, r, g, b uint8) error {
	payload := []byte{block, r, g, b}
	_, err := c.Call(target, hidpp.FeatureLEDs, 4, payload)
	return err
}

// CommitLEDs flushes the pending buffer to the physical keyboard (function
// 5). This call is significantly slower on the wire than the updates it
// flushes and should be issued at most once per render tick.
func CommitLEDs(c *hidpp.Client, target uint8) error {
	_, err := c.Call(target, hidpp.FeatureLEDs, 5, nil)
	return err
}
