//go:build sweep

package steering

import (
	"context"

	"github.com/golang/glog"
	"github.com/pkg/errors"
)

// Strategy names the compiled-in limit discovery.
const Strategy = "sweep"

// findLimits steps the axis to each mechanical end while watching the
// bus current, and centers between the ends found.
func (d *Driver) findLimits(ctx context.Context, pre float32) (zero, min, max float32, err error) {
	est, err := d.axis.Estimates(ctx)
	if err != nil {
		return 0, 0, 0, err
	}
	if max, err = d.sweep(ctx, est.Pos, 1); err != nil {
		return 0, 0, 0, errors.Wrap(err, "sweep +")
	}
	if min, err = d.sweep(ctx, max, -1); err != nil {
		return 0, 0, 0, errors.Wrap(err, "sweep -")
	}
	zero = (min + max) / 2
	return zero, min, max, d.axis.SetInputPos(ctx, zero, 0, 0)
}

func (d *Driver) sweep(ctx context.Context, from, dir float32) (float32, error) {
	deadline := d.Clock.Now().Add(d.Config.SweepTimeout)
	pos := from
	for {
		pos += dir * d.Config.SweepStep
		if err := d.axis.SetInputPos(ctx, pos, 0, 0); err != nil {
			return 0, err
		}
		if err := d.sleep(ctx, d.Config.SweepInterval); err != nil {
			return 0, err
		}
		bus, err := d.axis.Bus(ctx)
		if err != nil {
			return 0, err
		}
		if abs32(bus.Current) > d.Config.SweepCurrentLimit {
			limit := pos - dir*d.Config.SweepBackOff
			glog.Infof("steering: end stop at %.3f (%.1f A), limit %.3f", pos, bus.Current, limit)
			return limit, d.axis.SetInputPos(ctx, limit, 0, 0)
		}
		if !d.Clock.Now().Before(deadline) {
			return 0, ErrTimeout
		}
	}
}
