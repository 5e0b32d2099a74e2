//go:build !sweep

package steering

import "context"

// Strategy names the compiled-in limit discovery.
const Strategy = "fixed"

// findLimits uses the configured safe stops. The reading taken before
// calibration is the center when it lies within the stops, otherwise
// the midpoint of the stops.
func (d *Driver) findLimits(ctx context.Context, pre float32) (zero, min, max float32, err error) {
	min, max = d.Config.MinStop, d.Config.MaxStop
	zero = (min + max) / 2
	if pre >= min && pre <= max {
		zero = pre
	}
	return zero, min, max, nil
}
