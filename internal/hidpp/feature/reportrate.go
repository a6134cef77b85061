package feature

import (
	"fmt"

	"github.com/keyledsd/keyledsd/internal/hidpp"
)

// GetSupportedReportRates returns the set of rates (in milliseconds) the
// device supports, decoded from function 0's bitmask: bit i set means
// rate i+1 ms is supported.
func GetSupportedReportRates(c *hidpp.Client, target uint8) ([]int, error) {
	reply, err := c.Call(target, hidpp.FeatureReportRate, 0, nil)
	if err != nil {
		return nil, err
	}
	if len(reply) < 1 {
		return nil, fmt.Errorf("hidpp/feature: truncated report rate bitmask")
	}
	mask := uint(reply[0])
	if len(reply) > 1 {
		mask |= uint(reply[1]) << 8
	}
	var rates []int
	for bit := uint(0); bit < 16; bit++ {
		if mask&(1<<bit) != 0 {
			rates = append(rates, int(bit)+1)
		}
	}
	return rates, nil
}

// GetReportRate returns the device's current report rate in milliseconds
// (function 1).
func GetReportRate(c *hidpp.Client, target uint8) (int, error) {
	reply, err := c.Call(target, hidpp.FeatureReportRate, 1, nil)
	if err != nil {
		return 0, err
	}
	if len(reply) < 1 {
		return 0, fmt.Errorf("hidpp/feature: truncated report rate")
	}
	return int(reply[0]), nil
}

// SetReportRate requests a new report rate in milliseconds (function 2).
func SetReportRate(c *hidpp.Client, target uint8, ms int) error {
	_, err := c.Call(target, hidpp.FeatureReportRate, 2, []byte{byte(ms)})
	return err
}
