// Package supervisor owns the operating mode: it decides the mode every
// iteration, routes RC or autonomy commands to the drivers and drives
// the relays and the status LED.
package supervisor

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang/glog"
	"go.uber.org/multierr"

	"github.com/evt-autonomy/vehicle.go/pkg/autonomy"
	fx "github.com/evt-autonomy/vehicle.go/pkg/framework"
	"github.com/evt-autonomy/vehicle.go/pkg/rc"
	"github.com/evt-autonomy/vehicle.go/pkg/steering"
)

// SteeringDriver is what the supervisor needs from steering.
type SteeringDriver interface {
	Setup(ctx context.Context) error
	State() steering.State
	Calibrate(ctx context.Context) error
	SetTarget(ch uint16) error
	SetTargetAbs(turns float32) error
	Fault() error
	ClearFaults(ctx context.Context) error
	RecalRequest(ch uint16) steering.RecalAction
}

// TractionDriver is what the supervisor needs from traction.
type TractionDriver interface {
	Setup(ctx context.Context) error
	SetThrottleChannel(ch uint16) float32
	SetThrottlePercent(pct float32) float32
	Stop()
	Fault() error
	ClearFaults(ctx context.Context) error
}

// Outputs are the relays and the status LED.
type Outputs interface {
	SetRelays(on bool) error
	SetLED(on bool) error
}

// RCSource provides the snapshot of the current iteration.
type RCSource interface {
	Snapshot() (rc.Snapshot, bool)
}

// CommandSource provides the latest autonomy command.
type CommandSource interface {
	Latest() (autonomy.Command, bool)
}

type output struct {
	known bool
	on    bool
}

// Supervisor is the mode state machine. Tick runs on the loop
// goroutine, Mode and LastError may be read from anywhere.
type Supervisor struct {
	Config Config
	Clock  clock.Clock
	// Optional sources used by Control.
	RC       RCSource
	Commands CommandSource

	steer    SteeringDriver
	traction TractionDriver
	outputs  Outputs

	lock      sync.Mutex
	mode      Mode
	lastError ErrorRecord
	reset     bool

	outLock      sync.Mutex
	relays       output
	led          output
	absentWarned bool
}

// New creates a Supervisor in ModeNone.
func New(conf Config, steer SteeringDriver, traction TractionDriver, outputs Outputs) *Supervisor {
	return &Supervisor{
		Config:   conf,
		Clock:    clock.New(),
		steer:    steer,
		traction: traction,
		outputs:  outputs,
	}
}

// AddToLoop implements LoopAdder. Setup is started with the loop.
func (s *Supervisor) AddToLoop(loop *fx.Loop) {
	loop.AddController(fx.PrLvControl, s)
}

// Run implements framework.Runnable. It runs Setup while the loop
// ticks, driver streams must already be running.
func (s *Supervisor) Run(ctx context.Context) error {
	if err := s.Setup(ctx); err != nil && ctx.Err() == nil {
		glog.Warningf("setup: %v", err)
	}
	return nil
}

// Mode returns the current mode.
func (s *Supervisor) Mode() Mode {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.mode
}

// LastError returns the latched error, false when there is none.
func (s *Supervisor) LastError() (ErrorRecord, bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.lastError, s.mode == ModeError
}

// RequestReset asks to leave Error. It is honored on the next tick
// only when the autonomy switch is off.
func (s *Supervisor) RequestReset() {
	s.lock.Lock()
	s.reset = true
	s.lock.Unlock()
}

// Setup brings the system from None to Idle. Driver setup errors are
// returned but don't prevent Idle: an absent steering controller keeps
// the motion modes out of reach.
func (s *Supervisor) Setup(ctx context.Context) error {
	s.setMode(ModeInit)
	var errs error
	if err := s.steer.Setup(ctx); err != nil {
		glog.Warningf("steering setup: %v", err)
		errs = multierr.Append(errs, err)
	}
	if err := s.traction.Setup(ctx); err != nil {
		glog.Warningf("traction setup: %v", err)
		errs = multierr.Append(errs, err)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	// an error latched while the drivers were set up stays latched
	s.switchMode(ModeInit, ModeIdle)
	return errs
}

// SetError latches Error. Only the first error is kept until reset.
func (s *Supervisor) SetError(location, reason string) {
	s.lock.Lock()
	if s.mode == ModeError {
		s.lock.Unlock()
		return
	}
	s.lastError = ErrorRecord{Location: location, Reason: reason, Time: s.Clock.Now()}
	s.lock.Unlock()
	glog.Errorf("error at %s: %s", location, reason)
	s.traction.Stop()
	s.setMode(ModeError)
}

func (s *Supervisor) setMode(m Mode) {
	s.lock.Lock()
	prev := s.mode
	s.mode = m
	s.lock.Unlock()
	s.modeChanged(prev, m)
}

// switchMode moves to m only when the mode is still from.
func (s *Supervisor) switchMode(from, m Mode) {
	s.lock.Lock()
	if s.mode != from {
		s.lock.Unlock()
		return
	}
	s.mode = m
	s.lock.Unlock()
	s.modeChanged(from, m)
}

func (s *Supervisor) modeChanged(prev, m Mode) {
	if prev == m {
		return
	}
	glog.Infof("mode %s -> %s", prev, m)
	s.setRelays(m != ModeError)
}

// Control implements framework.Controller.
func (s *Supervisor) Control(cc fx.ControlContext) error {
	cc.Messages().ProcessMessages(fx.ProcessMessageFunc(func(mc fx.MessageProcessingContext) {
		cmd, ok := mc.CurrentMessage().(OperatorCommand)
		if !ok {
			return
		}
		mc.MessageTaken()
		switch cmd {
		case CommandReset:
			s.RequestReset()
		case CommandEstop:
			s.SetError(LocOperator, "estop")
		default:
			glog.Warningf("unknown operator command %q", cmd)
		}
	}))

	var snap *rc.Snapshot
	if s.RC != nil {
		if v, ok := s.RC.Snapshot(); ok {
			snap = &v
		}
	}
	var cmd *autonomy.Command
	if s.Commands != nil {
		if v, ok := s.Commands.Latest(); ok {
			cmd = &v
		}
	}
	s.Tick(cc.Context(), cc.Time(), snap, cmd)
	return nil
}

// Tick decides the mode for this iteration, routes commands and drives
// the outputs. snap and cmd may be nil, stale ones are treated as nil.
func (s *Supervisor) Tick(ctx context.Context, now time.Time, snap *rc.Snapshot, cmd *autonomy.Command) {
	if snap != nil && !snap.Fresh(now, s.Config.RCStaleAfter) {
		snap = nil
	}
	if cmd != nil && !cmd.Fresh(now, s.Config.CommandStaleAfter) {
		cmd = nil
	}
	// the recalibration edge is tracked in every mode.
	recal := steering.RecalNone
	if snap != nil {
		recal = s.steer.RecalRequest(snap.Channel(rc.ChReset))
	}
	s.lock.Lock()
	resetRequested := s.reset
	s.reset = false
	s.lock.Unlock()

	s.decide(ctx, snap, cmd, recal, resetRequested)
	s.route(snap, cmd)
	s.drive(now)
}

// decide executes at most one transition, in the order emergency,
// fault, mode switches, calibration.
func (s *Supervisor) decide(ctx context.Context, snap *rc.Snapshot, cmd *autonomy.Command, recal steering.RecalAction, resetRequested bool) {
	mode := s.Mode()
	switch mode {
	case ModeNone, ModeInit:
		return
	case ModeError:
		s.tryReset(ctx, snap, resetRequested)
		return
	}

	if cmd != nil && cmd.Emergency {
		s.SetError(LocAutonomy, "emergency")
		return
	}
	if snap != nil && snap.Failsafe && (mode == ModeRC || mode == ModeAutonomous) {
		s.SetError(LocRC, "failsafe")
		return
	}
	if err := s.steer.Fault(); err != nil {
		s.SetError(LocSteering, err.Error())
		return
	}
	if err := s.traction.Fault(); err != nil {
		s.SetError(LocTraction, err.Error())
		return
	}

	if snap == nil {
		if mode == ModeRC || mode == ModeAutonomous {
			glog.Warningf("RC stale in %s", mode)
			s.setMode(ModeIdle)
		}
		return
	}
	auto := s.autoOn(snap)
	switch mode {
	case ModeRC:
		if auto {
			s.setMode(ModeAutonomous)
			return
		}
	case ModeAutonomous:
		if !auto {
			s.setMode(ModeRC)
		}
		return
	case ModeIdle:
		if !auto && snap.Channel(rc.ChCalibration) > s.Config.CalThreshold {
			s.enterRC(ctx)
			return
		}
	}

	switch recal {
	case steering.RecalClearErrors:
		glog.Info("clearing steering errors")
		if err := s.steer.ClearFaults(ctx); err != nil {
			glog.Warningf("clear steering errors: %v", err)
		}
	case steering.RecalFull:
		s.calibrate(ctx, mode)
	}
}

func (s *Supervisor) autoOn(snap *rc.Snapshot) bool {
	return snap.Channel(s.Config.AutoChannel) > s.Config.AutoThreshold
}

func (s *Supervisor) enterRC(ctx context.Context) {
	switch s.steer.State() {
	case steering.Ready:
		s.setMode(ModeRC)
	case steering.Absent:
		if !s.absentWarned {
			glog.Warning("steering controller absent, staying in Idle")
			s.absentWarned = true
		}
	default:
		s.calibrate(ctx, ModeRC)
	}
}

// calibrate runs the steering calibration in place, the loop is held
// until it returns. The LED blinks meanwhile.
func (s *Supervisor) calibrate(ctx context.Context, next Mode) {
	s.traction.Stop()
	s.setMode(ModeCalibrating)
	stop := s.blink(ctx, s.Config.CalBlinkPeriod)
	err := s.steer.Calibrate(ctx)
	stop()
	if err != nil {
		s.SetError(LocSteering, err.Error())
		return
	}
	s.setMode(next)
}

func (s *Supervisor) blink(ctx context.Context, period time.Duration) (stop func()) {
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := s.Clock.Ticker(period / 2)
		defer ticker.Stop()
		on := true
		for {
			s.setLED(on)
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				on = !on
			}
		}
	}()
	return func() {
		close(done)
		wg.Wait()
	}
}

func (s *Supervisor) tryReset(ctx context.Context, snap *rc.Snapshot, requested bool) {
	if snap == nil {
		if requested {
			glog.Warning("reset ignored: no RC")
		}
		return
	}
	if !requested && snap.Channel(rc.ChReset) <= s.Config.ResetThreshold {
		return
	}
	if s.autoOn(snap) {
		if requested {
			glog.Warning("reset ignored: autonomy switch on")
		}
		return
	}
	if err := multierr.Combine(s.steer.ClearFaults(ctx), s.traction.ClearFaults(ctx)); err != nil {
		glog.Warningf("reset: %v", err)
	}
	s.lock.Lock()
	s.lastError = ErrorRecord{}
	s.lock.Unlock()
	glog.Info("error latch cleared")
	s.setMode(ModeIdle)
}

func (s *Supervisor) route(snap *rc.Snapshot, cmd *autonomy.Command) {
	switch s.Mode() {
	case ModeRC:
		if snap == nil {
			s.traction.Stop()
			return
		}
		if err := s.steer.SetTarget(snap.Channel(rc.ChSteering)); err != nil && glog.V(2) {
			glog.Infof("steering target: %v", err)
		}
		s.traction.SetThrottleChannel(snap.Channel(rc.ChThrottle))
	case ModeAutonomous:
		// a stale command stops traction and holds the steering target.
		if cmd == nil {
			s.traction.Stop()
			return
		}
		if err := s.steer.SetTargetAbs(cmd.Steering); err != nil && glog.V(2) {
			glog.Infof("steering target: %v", err)
		}
		s.traction.SetThrottlePercent(cmd.ThrottlePct)
	default:
		s.traction.Stop()
	}
}

func (s *Supervisor) drive(now time.Time) {
	mode := s.Mode()
	s.setRelays(mode != ModeError && mode != ModeNone)
	s.setLED(s.ledPattern(mode, now))
}

func (s *Supervisor) ledPattern(mode Mode, now time.Time) bool {
	switch mode {
	case ModeCalibrating:
		return blinkAt(now, s.Config.CalBlinkPeriod)
	case ModeRC, ModeAutonomous:
		return true
	case ModeIdle:
		return s.steer.State() == steering.Ready
	case ModeError:
		return blinkAt(now, s.Config.ErrorBlinkPeriod)
	}
	return false
}

func blinkAt(now time.Time, period time.Duration) bool {
	half := int64(period / 2)
	if half <= 0 {
		return true
	}
	return (now.UnixNano()/half)%2 == 0
}

func (s *Supervisor) setRelays(on bool) {
	s.outLock.Lock()
	defer s.outLock.Unlock()
	if s.relays.known && s.relays.on == on {
		return
	}
	if err := s.outputs.SetRelays(on); err != nil {
		glog.Errorf("relays %v: %v", on, err)
		return
	}
	s.relays = output{known: true, on: on}
}

func (s *Supervisor) setLED(on bool) {
	s.outLock.Lock()
	defer s.outLock.Unlock()
	if s.led.known && s.led.on == on {
		return
	}
	if err := s.outputs.SetLED(on); err != nil {
		glog.Warningf("status LED: %v", err)
		return
	}
	s.led = output{known: true, on: on}
}
