package odrive

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang/glog"
	"github.com/pkg/errors"
)

// CANAxis drives one node over CANSimple.
type CANAxis struct {
	Node         uint8
	ReplyTimeout time.Duration
	Clock        clock.Clock

	conn FrameConn

	lock      sync.Mutex
	heartbeat *Heartbeat
	waiters   map[CANCmd][]chan Frame
}

// NewCANAxis creates a CANAxis for a node on conn.
func NewCANAxis(conn FrameConn, node uint8) *CANAxis {
	return &CANAxis{
		Node:         node,
		ReplyTimeout: DefaultReplyTimeout,
		Clock:        clock.New(),
		conn:         conn,
		waiters:      make(map[CANCmd][]chan Frame),
	}
}

// Run receives frames until the context is canceled or the bus fails.
// Frames of other nodes are ignored.
func (a *CANAxis) Run(ctx context.Context) error {
	for {
		f, err := a.conn.ReadFrame()
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err == ErrTimeout {
			continue
		}
		if err != nil {
			return err
		}
		a.HandleFrame(f)
	}
}

// HandleFrame dispatches one received frame.
func (a *CANAxis) HandleFrame(f Frame) {
	node, cmd := SplitID(f.ID)
	if node != a.Node || f.RTR {
		return
	}
	if glog.V(2) {
		glog.Infof("odrive RX %v", f)
	}
	a.lock.Lock()
	defer a.lock.Unlock()
	if cmd == CmdHeartbeat {
		if hb, err := DecodeHeartbeat(f); err == nil {
			a.heartbeat = &hb
		}
	}
	for _, ch := range a.waiters[cmd] {
		ch <- f
	}
	delete(a.waiters, cmd)
}

// LastHeartbeat returns the most recent heartbeat.
func (a *CANAxis) LastHeartbeat() (Heartbeat, bool) {
	a.lock.Lock()
	defer a.lock.Unlock()
	if a.heartbeat == nil {
		return Heartbeat{}, false
	}
	return *a.heartbeat, true
}

func (a *CANAxis) send(f Frame) error {
	if glog.V(2) {
		glog.Infof("odrive TX %v", f)
	}
	return a.conn.WriteFrame(f)
}

// await waits for the next frame carrying cmd, optionally sending a
// remote request first.
func (a *CANAxis) await(ctx context.Context, cmd CANCmd, request bool) (Frame, error) {
	ch := make(chan Frame, 1)
	a.lock.Lock()
	a.waiters[cmd] = append(a.waiters[cmd], ch)
	a.lock.Unlock()
	if request {
		if err := a.send(RequestFrame(a.Node, cmd)); err != nil {
			a.dropWaiter(cmd, ch)
			return Frame{}, err
		}
	}
	timeout := a.ReplyTimeout
	if timeout <= 0 {
		timeout = DefaultReplyTimeout
	}
	if cmd == CmdHeartbeat && timeout < 2*heartbeatPeriod {
		timeout = 2 * heartbeatPeriod
	}
	timer := a.clock().Timer(timeout)
	defer timer.Stop()
	select {
	case f := <-ch:
		return f, nil
	case <-timer.C:
		a.dropWaiter(cmd, ch)
		return Frame{}, errors.Wrapf(ErrTimeout, "node %d %s", a.Node, cmd)
	case <-ctx.Done():
		a.dropWaiter(cmd, ch)
		return Frame{}, ctx.Err()
	}
}

const heartbeatPeriod = 100 * time.Millisecond

func (a *CANAxis) dropWaiter(cmd CANCmd, ch chan Frame) {
	a.lock.Lock()
	defer a.lock.Unlock()
	waiters := a.waiters[cmd]
	for i, w := range waiters {
		if w == ch {
			a.waiters[cmd] = append(waiters[:i], waiters[i+1:]...)
			break
		}
	}
	if len(a.waiters[cmd]) == 0 {
		delete(a.waiters, cmd)
	}
}

// State implements Axis. The cached heartbeat is used when present.
func (a *CANAxis) State(ctx context.Context) (AxisState, error) {
	if hb, ok := a.LastHeartbeat(); ok {
		return hb.State, nil
	}
	f, err := a.await(ctx, CmdHeartbeat, false)
	if err != nil {
		return AxisStateUndefined, err
	}
	hb, err := DecodeHeartbeat(f)
	return hb.State, err
}

// RequestState implements Axis.
func (a *CANAxis) RequestState(ctx context.Context, state AxisState) error {
	if err := a.send(SetAxisStateFrame(a.Node, state)); err != nil {
		return err
	}
	a.lock.Lock()
	// the next heartbeat tells the new state
	a.heartbeat = nil
	a.lock.Unlock()
	return nil
}

// ClearErrors implements Axis.
func (a *CANAxis) ClearErrors(ctx context.Context) error {
	return a.send(ClearErrorsFrame(a.Node))
}

// SetInputPos implements Axis.
func (a *CANAxis) SetInputPos(ctx context.Context, pos, velFF, torqueFF float32) error {
	return a.send(SetInputPosFrame(a.Node, pos, velFF, torqueFF))
}

// Estimates implements Axis.
func (a *CANAxis) Estimates(ctx context.Context) (Estimates, error) {
	f, err := a.await(ctx, CmdGetEncoderEstimate, true)
	if err != nil {
		return Estimates{}, err
	}
	return DecodeEstimates(f)
}

// Bus implements Axis.
func (a *CANAxis) Bus(ctx context.Context) (Bus, error) {
	f, err := a.await(ctx, CmdGetBusVoltage, true)
	if err != nil {
		return Bus{}, err
	}
	return DecodeBus(f)
}

// Errors implements Axis. The controller word isn't available over
// CANSimple and is reported as zero.
func (a *CANAxis) Errors(ctx context.Context) (w ErrorWords, err error) {
	if hb, ok := a.LastHeartbeat(); ok {
		w.Axis = hb.AxisError
	}
	f, err := a.await(ctx, CmdGetMotorError, true)
	if err != nil {
		return w, err
	}
	if w.Motor, err = DecodeMotorError(f); err != nil {
		return w, err
	}
	if f, err = a.await(ctx, CmdGetEncoderError, true); err != nil {
		return w, err
	}
	w.Encoder, err = DecodeEncoderError(f)
	return w, err
}

// Configure implements Axis. Motor current limit and the acceleration
// limits without a trapezoidal trajectory aren't reachable over CAN.
func (a *CANAxis) Configure(ctx context.Context, limits Limits, mode InputMode) error {
	if limits.VelLimit != 0 || limits.CtrlCurrentLimit != 0 {
		if err := a.send(SetLimitsFrame(a.Node, limits.VelLimit, limits.CtrlCurrentLimit)); err != nil {
			return err
		}
	}
	if limits.AccelLimit != 0 && limits.DecelLimit != 0 {
		if err := a.send(SetTrajAccelLimitsFrame(a.Node, limits.AccelLimit, limits.DecelLimit)); err != nil {
			return err
		}
	}
	return a.send(SetControllerModeFrame(a.Node, ControlModePosition, mode))
}

func (a *CANAxis) clock() clock.Clock {
	if a.Clock == nil {
		return clock.New()
	}
	return a.Clock
}
