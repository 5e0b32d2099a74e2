// Package steering drives the closed-loop position controller of the
// steering axis: discovery, calibration, the RC/autonomy target path
// and feedback/error observation.
package steering

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang/glog"
	"github.com/pkg/errors"

	fx "github.com/evt-autonomy/vehicle.go/pkg/framework"
	"github.com/evt-autonomy/vehicle.go/pkg/l0/odrive"
)

// Feedback is the last observation of the axis.
type Feedback struct {
	Position   float32 // turns
	Velocity   float32 // turns/s
	BusVoltage float32
	BusCurrent float32
	At         time.Time
}

// Session is a copy of the driver session.
type Session struct {
	State         State
	Zero          float32
	Min           float32
	Max           float32
	LastTarget    float32
	LastFeedback  Feedback
	LastErrorCode uint32
	InputModeSet  bool
}

// Driver is the steering driver. Calibration and target updates run
// on the loop goroutine, feedback and error polling in Run.
type Driver struct {
	Config Config
	Clock  clock.Clock

	axis odrive.Axis

	lock         sync.Mutex
	state        State
	zero         float32
	min          float32
	max          float32
	lastTarget   float32
	pending      bool
	feedback     Feedback
	errWords     odrive.ErrorWords
	inputModeSet bool

	recalInit bool
	recalHigh bool
}

// NewDriver creates a driver.
func NewDriver(axis odrive.Axis, conf Config) *Driver {
	return &Driver{
		Config: conf,
		Clock:  clock.New(),
		axis:   axis,
	}
}

// AddToLoop implements LoopAdder. The loop starts Run as the poller.
func (d *Driver) AddToLoop(loop *fx.Loop) {
	loop.AddController(fx.PrLvActuate, d)
}

// Axis returns the underlying axis.
func (d *Driver) Axis() odrive.Axis {
	return d.axis
}

// State returns the driver state.
func (d *Driver) State() State {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.state
}

// Ready reports whether targets are accepted.
func (d *Driver) Ready() bool {
	return d.State() == Ready
}

// Session returns a copy of the session.
func (d *Driver) Session() Session {
	d.lock.Lock()
	defer d.lock.Unlock()
	return Session{
		State:         d.state,
		Zero:          d.zero,
		Min:           d.min,
		Max:           d.max,
		LastTarget:    d.lastTarget,
		LastFeedback:  d.feedback,
		LastErrorCode: d.errWords.Code(),
		InputModeSet:  d.inputModeSet,
	}
}

func (d *Driver) setState(s State) {
	d.lock.Lock()
	prev := d.state
	d.state = s
	d.lock.Unlock()
	if prev != s {
		glog.Infof("steering %s -> %s", prev, s)
	}
}

// Setup polls the controller until it leaves the undefined state.
func (d *Driver) Setup(ctx context.Context) error {
	deadline := d.Clock.Now().Add(d.Config.DiscoveryTimeout)
	for {
		state, err := d.axis.State(ctx)
		if err == nil && state != odrive.AxisStateUndefined {
			glog.Infof("steering controller found in %s", state)
			d.setState(Discovered)
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !d.Clock.Now().Before(deadline) {
			d.setState(Absent)
			if err != nil {
				return errors.Wrapf(ErrAbsent, "last error: %v", err)
			}
			return ErrAbsent
		}
		d.Clock.Sleep(d.Config.DiscoveryPoll)
	}
}

// SetTarget maps the steering channel to a target.
func (d *Driver) SetTarget(ch uint16) error {
	d.lock.Lock()
	defer d.lock.Unlock()
	if d.state != Ready {
		return ErrNotReady
	}
	d.lastTarget = MapChannel(ch, d.Config.Map, d.zero, d.min, d.max)
	d.pending = true
	return nil
}

// SetTargetAbs sets an absolute target in turns, clamped to the limits.
func (d *Driver) SetTargetAbs(turns float32) error {
	d.lock.Lock()
	defer d.lock.Unlock()
	if d.state != Ready {
		return ErrNotReady
	}
	d.lastTarget = Clamp(turns, d.min, d.max)
	d.pending = true
	return nil
}

// Control implements framework.Controller.
func (d *Driver) Control(cc fx.ControlContext) error {
	return d.Push(cc.Context())
}

// Push sends the pending target with zero feed-forward.
func (d *Driver) Push(ctx context.Context) error {
	d.lock.Lock()
	target, pending := d.lastTarget, d.pending && d.state == Ready
	d.pending = false
	d.lock.Unlock()
	if !pending {
		return nil
	}
	return errors.Wrap(d.axis.SetInputPos(ctx, target, 0, 0), "steering: set input pos")
}

// PollFeedback reads position, velocity and bus values.
func (d *Driver) PollFeedback(ctx context.Context) (Feedback, error) {
	est, err := d.axis.Estimates(ctx)
	if err != nil {
		return Feedback{}, err
	}
	bus, err := d.axis.Bus(ctx)
	if err != nil {
		return Feedback{}, err
	}
	fb := Feedback{
		Position:   est.Pos,
		Velocity:   est.Vel,
		BusVoltage: bus.Voltage,
		BusCurrent: bus.Current,
		At:         d.Clock.Now(),
	}
	d.lock.Lock()
	d.feedback = fb
	d.lock.Unlock()
	return fb, nil
}

// Feedback returns the cached feedback and whether it's fresh at now.
func (d *Driver) Feedback(now time.Time) (Feedback, bool) {
	d.lock.Lock()
	defer d.lock.Unlock()
	fb := d.feedback
	return fb, !fb.At.IsZero() && now.Sub(fb.At) <= d.Config.FeedbackMaxAge
}

// PollErrors reads the error words. A non-zero word faults the driver.
func (d *Driver) PollErrors(ctx context.Context) error {
	words, err := d.axis.Errors(ctx)
	if err != nil {
		return err
	}
	d.lock.Lock()
	changed := words != d.errWords
	d.errWords = words
	state := d.state
	d.lock.Unlock()
	switch {
	case !words.Any():
	case state == Ready:
		glog.Errorf("steering fault: %s", words)
		d.setState(Faulted)
	case changed:
		glog.Warningf("steering errors in %s: %s", state, words)
	}
	return nil
}

// CheckErrors returns the combined code of the last error words.
func (d *Driver) CheckErrors() (uint32, bool) {
	d.lock.Lock()
	defer d.lock.Unlock()
	if !d.errWords.Any() {
		return 0, false
	}
	return d.errWords.Code(), true
}

// Fault returns a *FaultError once the controller reported errors while
// Ready. Errors seen before calibration are only kept for CheckErrors.
func (d *Driver) Fault() error {
	d.lock.Lock()
	defer d.lock.Unlock()
	if d.state != Faulted || !d.errWords.Any() {
		return nil
	}
	return &FaultError{Words: d.errWords, Names: odrive.ErrorNames(d.errWords.Axis)}
}

// ClearFaults clears the controller errors. A faulted driver falls back
// to Discovered and needs a calibration.
func (d *Driver) ClearFaults(ctx context.Context) error {
	if d.State() == Absent {
		return nil
	}
	if err := d.axis.ClearErrors(ctx); err != nil {
		return errors.Wrap(err, "steering: clear errors")
	}
	d.lock.Lock()
	d.errWords = odrive.ErrorWords{}
	faulted := d.state == Faulted
	d.lock.Unlock()
	if faulted {
		d.setState(Discovered)
	}
	return nil
}

// RecalRequest feeds the recalibration channel. It acts on the rising
// edge above the threshold only: errors are cleared when the axis is in
// closed loop, otherwise a full calibration is requested.
func (d *Driver) RecalRequest(ch uint16) RecalAction {
	d.lock.Lock()
	defer d.lock.Unlock()
	high := ch > d.Config.RecalThreshold
	rising := d.recalInit && high && !d.recalHigh
	d.recalInit, d.recalHigh = true, high
	switch {
	case !rising:
		return RecalNone
	case d.state == Ready:
		return RecalClearErrors
	}
	return RecalFull
}

// Run polls feedback and errors until the context is canceled.
func (d *Driver) Run(ctx context.Context) error {
	ticker := d.Clock.Ticker(d.Config.PollInterval)
	defer ticker.Stop()
	every := d.Config.ErrorPollEvery
	if every <= 0 {
		every = 1
	}
	for n := 0; ; n++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		switch d.State() {
		case Discovered, Ready, Faulted:
		default:
			continue
		}
		if _, err := d.PollFeedback(ctx); err != nil {
			glog.Warningf("steering feedback: %v", err)
		}
		if n%every == 0 {
			if err := d.PollErrors(ctx); err != nil {
				glog.Warningf("steering errors: %v", err)
			}
		}
	}
}
