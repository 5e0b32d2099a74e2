package traction

import (
	"context"
	"io"
	"math"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang/glog"
	"github.com/pkg/errors"

	"github.com/evt-autonomy/vehicle.go/pkg/l0/vesc"
)

// NoForward disables CAN forwarding on a session.
const NoForward = -1

// Session is a link to one traction controller. With a forward id the
// commands go through the USB-connected controller to one on its CAN
// bus.
type Session struct {
	Name      string
	ForwardID int

	client *vesc.Client
	clock  clock.Clock

	lock     sync.Mutex
	values   vesc.Values
	lastSeen time.Time
	fault    vesc.FaultCode
}

// NewSession creates a session over a serial port.
func NewSession(name string, rw io.ReadWriter, forwardID int, clk clock.Clock) *Session {
	stream := vesc.NewStream(rw)
	stream.Name = name
	if clk != nil {
		stream.Clock = clk
	}
	s := &Session{
		Name:      name,
		ForwardID: forwardID,
		client:    vesc.NewClient(stream),
		clock:     stream.Clock,
	}
	s.client.Observer = vesc.HandlePayloadFunc(s.handlePayload)
	return s
}

// Client returns the protocol client.
func (s *Session) Client() *vesc.Client {
	return s.client
}

// Run implements framework.Runnable.
func (s *Session) Run(ctx context.Context) error {
	return s.client.Run(ctx)
}

func (s *Session) wrap(payload []byte) []byte {
	if s.ForwardID < 0 {
		return payload
	}
	return vesc.ForwardCAN(byte(s.ForwardID), payload)
}

// SetRPM commands an electrical RPM.
func (s *Session) SetRPM(rpm float32) error {
	return errors.Wrapf(s.client.Send(s.wrap(vesc.SetRPMPayload(float64(rpm)))), "traction %s", s.Name)
}

// SetDuty commands a duty cycle in [-1, 1].
func (s *Session) SetDuty(duty float32) error {
	return errors.Wrapf(s.client.Send(s.wrap(vesc.SetDutyPayload(float64(duty)))), "traction %s", s.Name)
}

// SetCurrent commands a motor current in A.
func (s *Session) SetCurrent(amps float32) error {
	return errors.Wrapf(s.client.Send(s.wrap(vesc.SetCurrentPayload(float64(amps)))), "traction %s", s.Name)
}

// RequestValues asks for values without waiting, the reply updates the
// session when it arrives.
func (s *Session) RequestValues() error {
	return errors.Wrapf(s.client.Send(s.wrap(vesc.GetValuesPayload())), "traction %s", s.Name)
}

// GetValues requests values and waits for the reply.
func (s *Session) GetValues(ctx context.Context) (vesc.Values, error) {
	payload, err := s.client.Call(ctx, s.wrap(vesc.GetValuesPayload()))
	if err != nil {
		return vesc.Values{}, errors.Wrapf(err, "traction %s", s.Name)
	}
	return vesc.DecodeValues(payload)
}

func (s *Session) handlePayload(ctx context.Context, payload []byte) {
	if vesc.Command(payload[0]) != vesc.CommGetValues {
		return
	}
	v, err := vesc.DecodeValues(payload)
	if err != nil {
		glog.Warningf("traction %s values: %v", s.Name, err)
		return
	}
	s.lock.Lock()
	prev := s.fault
	s.values, s.lastSeen = v, s.clock.Now()
	if v.Fault.IsFault() {
		s.fault = v.Fault
	}
	s.lock.Unlock()
	if v.Fault.IsFault() && prev != v.Fault {
		glog.Errorf("traction %s fault: %s", s.Name, v.Fault)
	}
}

// Values returns the last values and when they were received.
func (s *Session) Values() (vesc.Values, time.Time) {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.values, s.lastSeen
}

// Fault returns a *FaultError once a fault code was seen.
func (s *Session) Fault() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if !s.fault.IsFault() {
		return nil
	}
	return &FaultError{Session: s.Name, Code: s.fault}
}

// ClearFault forgets the latched fault code.
func (s *Session) ClearFault() {
	s.lock.Lock()
	s.fault = vesc.FaultNone
	s.lock.Unlock()
}

func nan() float32 {
	return float32(math.NaN())
}
