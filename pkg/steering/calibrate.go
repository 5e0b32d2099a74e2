package steering

import (
	"context"
	"time"

	"github.com/golang/glog"
	"github.com/pkg/errors"

	"github.com/evt-autonomy/vehicle.go/pkg/l0/odrive"
)

// Calibrate brings the axis from Discovered (or Faulted) to Ready. It
// blocks for the calibration phases and must not run concurrently with
// target updates.
func (d *Driver) Calibrate(ctx context.Context) (err error) {
	if d.State() == Absent {
		return ErrAbsent
	}
	d.lock.Lock()
	d.inputModeSet, d.pending = false, false
	d.errWords = odrive.ErrorWords{}
	d.lock.Unlock()
	d.setState(Calibrating)
	defer func() {
		if err != nil {
			glog.Errorf("steering calibration failed: %v", err)
			d.setState(Faulted)
		}
	}()

	pre, err := d.axis.Estimates(ctx)
	if err != nil {
		return errors.Wrap(err, "steering: read center")
	}
	glog.Infof("steering: pre-calibration position %.3f", pre.Pos)

	if err = d.runPhase(ctx, odrive.AxisStateMotorCalibration); err != nil {
		return errors.Wrap(err, "steering: calibrate phase A")
	}
	if err = d.runPhase(ctx, odrive.AxisStateEncoderOffsetCalibration); err != nil {
		return errors.Wrap(err, "steering: calibrate phase B")
	}
	if err = d.enterClosedLoop(ctx); err != nil {
		return errors.Wrap(err, "steering: closed loop")
	}
	if err = d.axis.Configure(ctx, d.Config.Limits, d.Config.InputMode); err != nil {
		return errors.Wrap(err, "steering: configure")
	}
	d.lock.Lock()
	d.inputModeSet = true
	d.lock.Unlock()

	zero, min, max, err := d.findLimits(ctx, pre.Pos)
	if err != nil {
		return errors.Wrap(err, "steering: limits")
	}
	if zero < min || zero > max {
		return errors.Wrapf(ErrBadLimits, "zero %.3f limits [%.3f, %.3f]", zero, min, max)
	}
	d.lock.Lock()
	d.zero, d.min, d.max = zero, min, max
	d.lastTarget, d.pending = zero, true
	d.lock.Unlock()
	glog.Infof("steering calibrated (%s): zero %.3f limits [%.3f, %.3f]", Strategy, zero, min, max)
	d.setState(Ready)
	return nil
}

func (d *Driver) runPhase(ctx context.Context, state odrive.AxisState) error {
	glog.Infof("steering: %s", state)
	if err := d.axis.RequestState(ctx, state); err != nil {
		return err
	}
	if err := d.sleep(ctx, d.Config.PhaseWait); err != nil {
		return err
	}
	return d.axis.ClearErrors(ctx)
}

func (d *Driver) enterClosedLoop(ctx context.Context) error {
	deadline := d.Clock.Now().Add(d.Config.ClosedLoopTimeout)
	for {
		if err := d.axis.RequestState(ctx, odrive.AxisStateClosedLoopControl); err != nil {
			return err
		}
		if err := d.sleep(ctx, d.Config.ClosedLoopPoll); err != nil {
			return err
		}
		state, err := d.axis.State(ctx)
		if err == nil && state == odrive.AxisStateClosedLoopControl {
			return nil
		}
		if !d.Clock.Now().Before(deadline) {
			return errors.Wrapf(ErrTimeout, "last state %s", state)
		}
		if err := d.axis.ClearErrors(ctx); err != nil {
			return err
		}
	}
}

func (d *Driver) sleep(ctx context.Context, dur time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.Clock.Sleep(dur)
	return ctx.Err()
}
