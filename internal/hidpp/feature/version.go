// Package feature implements the typed device feature wrappers (component
// C): thin operations on top of the hidpp.Client that encode/decode one
// feature's function calls and return Go values instead of raw payloads.
package feature

import (
	"fmt"

	"github.com/keyledsd/keyledsd/internal/hidpp"
)

// ProtocolSlot is one entry of the version feature's protocol table.
type ProtocolSlot struct {
	Type      uint8
	Prefix    [3]byte
	VerMajor  int // 100 + BCD
	VerMinor  int // BCD
	Build     uint16
	ProductID uint16
	IsActive  bool
	Misc      [5]byte
}

// Version is the decoded reply of the version feature (0x0003).
type Version struct {
	Serial    [4]byte
	Transport uint8
	Model     [6]byte
	Protocols []ProtocolSlot
}

// GetVersion reads the version feature: function 0 returns the fixed
// serial/transport/model header plus the protocol slot count, then
// function 1 is called once per slot index to fill the protocol table.
func GetVersion(c *hidpp.Client, target uint8) (*Version, error) {
	reply, err := c.Call(target, hidpp.FeatureVersion, 0, nil)
	if err != nil {
		return nil, err
	}
	if len(reply) < 12 {
		return nil, fmt.Errorf("hidpp/feature: truncated version header")
	}
	v := &Version{Transport: reply[4]}
	copy(v.Serial[:], reply[0:4])
	copy(v.Model[:], reply[5:11])
	slotCount := int(reply[11])

	v.Protocols = make([]ProtocolSlot, 0, slotCount)
	for i := 0; i < slotCount; i++ {
		slot, err := getProtocolSlot(c, target, uint8(i))
		if err != nil {
			return nil, err
		}
		v.Protocols = append(v.Protocols, slot)
	}
	return v, nil
}

func getProtocolSlot(c *hidpp.Client, target uint8, index uint8) (ProtocolSlot, error) {
	reply, err := c.Call(target, hidpp.FeatureVersion, 1, []byte{index})
	if err != nil {
		return ProtocolSlot{}, err
	}
	if len(reply) < 11 {
		return ProtocolSlot{}, fmt.Errorf("hidpp/feature: truncated version slot %d", index)
	}
	s := ProtocolSlot{Type: reply[0]}
	copy(s.Prefix[:], reply[1:4])
	s.VerMajor = 100 + bcdToInt(reply[4])
	s.VerMinor = bcdToInt(reply[5])
	s.Build = uint16(reply[6])<<8 | uint16(reply[7])
	s.ProductID = uint16(reply[8])<<8 | uint16(reply[9])
	s.IsActive = reply[10] != 0
	if len(reply) >= 16 {
		copy(s.Misc[:], reply[11:16])
	}
	return s, nil
}

// bcdToInt decodes a packed binary-coded-decimal byte (each nibble 0-9).
func bcdToInt(b byte) int {
	return int(b>>4)*10 + int(b&0x0f)
}
