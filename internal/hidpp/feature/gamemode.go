package feature

import (
	"fmt"

	"github.com/keyledsd/keyledsd/internal/hidpp"
)

const gameModeChunkSize = 16 // ids per block/unblock call

// GetGameModeMaxCount returns the maximum number of key ids the device can
// hold blocked at once (function 0).
func GetGameModeMaxCount(c *hidpp.Client, target uint8) (int, error) {
	reply, err := c.Call(target, hidpp.FeatureGameMode, 0, nil)
	if err != nil {
		return 0, err
	}
	if len(reply) < 1 {
		return 0, fmt.Errorf("hidpp/feature: truncated gamemode max count")
	}
	return int(reply[0]), nil
}

// BlockKeys disables the given key ids (function 1), chunked at 16 ids
// per call.
func BlockKeys(c *hidpp.Client, target uint8, ids []uint8) error {
	return chunkedKeyIDs(c, target, 1, ids)
}

// UnblockKeys re-enables the given key ids (function 2), chunked at 16
// ids per call.
func UnblockKeys(c *hidpp.Client, target uint8, ids []uint8) error {
	return chunkedKeyIDs(c, target, 2, ids)
}

func chunkedKeyIDs(c *hidpp.Client, target uint8, function uint8, ids []uint8) error {
	for len(ids) > 0 {
		n := len(ids)
		if n > gameModeChunkSize {
			n = gameModeChunkSize
		}
		if _, err := c.Call(target, hidpp.FeatureGameMode, function, ids[:n]); err != nil {
			return err
		}
		ids = ids[n:]
	}
	return nil
}

// ResetGameMode clears every blocked key id (function 3).
func ResetGameMode(c *hidpp.Client, target uint8) error {
	_, err := c.Call(target, hidpp.FeatureGameMode, 3, nil)
	return err
}
