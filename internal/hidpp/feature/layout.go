package feature

import (
	"fmt"

	"github.com/keyledsd/keyledsd/internal/hidpp"
)

// GetLayoutID reads the device's physical layout id (function 0) used to
// pick the matching `model_<layout_id>.xml` layout description file.
func GetLayoutID(c *hidpp.Client, target uint8) (int, error) {
	reply, err := c.Call(target, hidpp.FeatureLayout, 0, nil)
	if err != nil {
		return 0, err
	}
	if len(reply) < 1 {
		return 0, fmt.Errorf("hidpp/feature: truncated layout id")
	}
	return int(reply[0]), nil
}
