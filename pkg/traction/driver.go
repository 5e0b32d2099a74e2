// Package traction drives one or two traction controllers with the
// same RPM command and summarizes their telemetry.
package traction

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang/glog"
	"go.uber.org/multierr"

	fx "github.com/evt-autonomy/vehicle.go/pkg/framework"
)

// Summary is the combined telemetry of all sessions. Missing values are
// NaN.
type Summary struct {
	RPM          float32
	InputVoltage float32
	InputCurrent float32
}

// Driver translates throttle inputs into RPM commands.
type Driver struct {
	Config Config
	Clock  clock.Clock

	sessions []*Session
	smoother *Smoother

	lock        sync.Mutex
	rpm         float32
	lastRequest time.Time
}

// NewDriver creates a driver over sessions.
func NewDriver(conf Config, sessions ...*Session) *Driver {
	for _, s := range sessions {
		if conf.ReplyTimeout > 0 {
			s.client.ReplyTimeout = conf.ReplyTimeout
		}
	}
	return &Driver{
		Config:   conf,
		Clock:    clock.New(),
		sessions: sessions,
		smoother: NewSmoother(conf.Window),
	}
}

// AddToLoop implements LoopAdder.
func (d *Driver) AddToLoop(loop *fx.Loop) {
	for _, s := range d.sessions {
		loop.AddRunnable(fx.NamedRun("traction-"+s.Name, s))
	}
	loop.AddController(fx.PrLvActuate, d)
}

// Sessions returns the sessions.
func (d *Driver) Sessions() []*Session {
	return d.sessions
}

// Setup requests values from every session once. Sessions that don't
// answer are reported, they are still commanded.
func (d *Driver) Setup(ctx context.Context) error {
	var err error
	for _, s := range d.sessions {
		if _, e := s.GetValues(ctx); e != nil {
			err = multierr.Append(err, e)
			continue
		}
		glog.Infof("traction %s found", s.Name)
	}
	return err
}

// SetThrottleChannel sets the RPM command from the throttle channel.
func (d *Driver) SetThrottleChannel(ch uint16) float32 {
	d.lock.Lock()
	defer d.lock.Unlock()
	v := float32(ch)
	if d.Config.Smoothing {
		v = d.smoother.Add(v)
	}
	d.rpm = ThrottleToRPM(v, d.Config)
	return d.rpm
}

// SetThrottlePercent sets the RPM command from a percentage.
func (d *Driver) SetThrottlePercent(pct float32) float32 {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.rpm = PercentToRPM(pct, d.Config)
	return d.rpm
}

// Stop commands 0 RPM and forgets the smoothing window.
func (d *Driver) Stop() {
	d.lock.Lock()
	d.rpm = 0
	d.smoother.Reset()
	d.lock.Unlock()
}

// Command returns the RPM being commanded.
func (d *Driver) Command() float32 {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.rpm
}

// Control implements framework.Controller. The command goes to every
// session back to back, values are requested every ValuesInterval.
func (d *Driver) Control(cc fx.ControlContext) error {
	d.lock.Lock()
	rpm := float32(math.Round(float64(d.rpm)))
	request := cc.Time().Sub(d.lastRequest) >= d.Config.ValuesInterval
	if request {
		d.lastRequest = cc.Time()
	}
	d.lock.Unlock()

	var err error
	for _, s := range d.sessions {
		err = multierr.Append(err, s.SetRPM(rpm))
	}
	if request {
		for _, s := range d.sessions {
			err = multierr.Append(err, s.RequestValues())
		}
	}
	return err
}

// Fault returns the faults of all sessions combined.
func (d *Driver) Fault() error {
	var err error
	for _, s := range d.sessions {
		err = multierr.Append(err, s.Fault())
	}
	return err
}

// ClearFaults forgets latched fault codes.
func (d *Driver) ClearFaults(ctx context.Context) error {
	for _, s := range d.sessions {
		s.ClearFault()
	}
	return nil
}

// Summary combines the fresh values at now: RPM and voltage of the
// first session reporting, input current summed over sessions.
func (d *Driver) Summary(now time.Time) Summary {
	sum := Summary{RPM: nan(), InputVoltage: nan(), InputCurrent: nan()}
	var current float32
	var n int
	for _, s := range d.sessions {
		v, at := s.Values()
		if at.IsZero() || now.Sub(at) > d.Config.ValuesMaxAge {
			continue
		}
		if n == 0 {
			sum.RPM, sum.InputVoltage = v.RPM, v.InputVoltage
		}
		current += v.AvgInputCurrent
		n++
	}
	if n > 0 {
		sum.InputCurrent = current
	}
	return sum
}
