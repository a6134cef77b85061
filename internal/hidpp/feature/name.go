package feature

import "github.com/keyledsd/keyledsd/internal/hidpp"

// DeviceType is the device-type enum returned by the name feature's
// function 2.
type DeviceType uint8

const (
	DeviceTypeKeyboard DeviceType = 0
	DeviceTypeRemote   DeviceType = 1
	DeviceTypeNumpad   DeviceType = 2
	DeviceTypeMouse    DeviceType = 3
	DeviceTypeTouchpad DeviceType = 4
	DeviceTypeTrackball DeviceType = 5
	DeviceTypePresenter DeviceType = 6
	DeviceTypeReceiver  DeviceType = 7
)

// nameOffsetSize is the number of request bytes a name chunk read sends:
// the single offset byte; the reply carries the chunk.
const nameOffsetSize = 1

// GetName reads the device's ASCII product name via the name feature
// (0x0005): function 0 returns the total length, then function 1 is
// called repeatedly with a byte offset until length bytes are collected.
// Each call's chunk size is whatever the device's reply payload carries,
// tolerating short final chunks.
func GetName(c *hidpp.Client, target uint8) (string, error) {
	reply, err := c.Call(target, hidpp.FeatureName, 0, nil)
	if err != nil {
		return "", err
	}
	if len(reply) < 1 {
		return "", nil
	}
	total := int(reply[0])

	out := make([]byte, 0, total)
	for len(out) < total {
		chunk, err := c.Call(target, hidpp.FeatureName, 1, []byte{byte(len(out))})
		if err != nil {
			return "", err
		}
		if len(chunk) == 0 {
			break // an empty reply ends the read; the name collected so far is returned
		}
		remaining := total - len(out)
		if len(chunk) > remaining {
			chunk = chunk[:remaining]
		}
		out = append(out, chunk...)
	}
	return string(out), nil
}

// GetDeviceType reads the device-type enum via the name feature's function 2.
func GetDeviceType(c *hidpp.Client, target uint8) (DeviceType, error) {
	reply, err := c.Call(target, hidpp.FeatureName, 2, nil)
	if err != nil {
		return 0, err
	}
	if len(reply) < 1 {
		return 0, nil
	}
	return DeviceType(reply[0]), nil
}
