package vehicle

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evt-autonomy/vehicle.go/pkg/hw"
	"github.com/evt-autonomy/vehicle.go/pkg/l0/odrive"
	"github.com/evt-autonomy/vehicle.go/pkg/netio"
	"github.com/evt-autonomy/vehicle.go/pkg/supervisor"
	"github.com/evt-autonomy/vehicle.go/pkg/traction"
)

type idleAxis struct{}

func (idleAxis) State(ctx context.Context) (odrive.AxisState, error) {
	return odrive.AxisStateIdle, nil
}
func (idleAxis) RequestState(ctx context.Context, state odrive.AxisState) error { return nil }
func (idleAxis) ClearErrors(ctx context.Context) error { return nil }
func (idleAxis) SetInputPos(ctx context.Context, pos, velFF, torqueFF float32) error {
	return nil
}
func (idleAxis) Estimates(ctx context.Context) (odrive.Estimates, error) {
	return odrive.Estimates{}, nil
}
func (idleAxis) Bus(ctx context.Context) (odrive.Bus, error) { return odrive.Bus{}, nil }
func (idleAxis) Errors(ctx context.Context) (odrive.ErrorWords, error) { return odrive.ErrorWords{}, nil }
func (idleAxis) Configure(context.Context, odrive.Limits, odrive.InputMode) error { return nil }

type fakeEndpoint struct {
	lock  sync.Mutex
	inbox []netio.Datagram
	sent  []string
}

func (e *fakeEndpoint) push(data string, at time.Time) {
	e.lock.Lock()
	e.inbox = append(e.inbox, netio.Datagram{Data: []byte(data), At: at})
	e.lock.Unlock()
}

func (e *fakeEndpoint) Recv() (netio.Datagram, bool) {
	e.lock.Lock()
	defer e.lock.Unlock()
	if len(e.inbox) == 0 {
		return netio.Datagram{}, false
	}
	d := e.inbox[0]
	e.inbox = e.inbox[1:]
	return d, true
}

func (e *fakeEndpoint) Send(dst *net.UDPAddr, b []byte) error {
	e.lock.Lock()
	e.sent = append(e.sent, string(b))
	e.lock.Unlock()
	return nil
}

func (e *fakeEndpoint) datagrams() []string {
	e.lock.Lock()
	defer e.lock.Unlock()
	return append([]string(nil), e.sent...)
}

func TestParseTractionPorts(t *testing.T) {
	testCases := []struct {
		name   string
		in     string
		expect []TractionPort
		err    bool
	}{
		{name: "single", in: "/dev/ttyACM0", expect: []TractionPort{{"/dev/ttyACM0", traction.NoForward}}},
		{
			name: "forwarded",
			in:   "/dev/ttyACM0, /dev/ttyACM2#3",
			expect: []TractionPort{
				{"/dev/ttyACM0", traction.NoForward},
				{"/dev/ttyACM2", 3},
			},
		},
		{name: "empty", in: " , "},
		{name: "bad id", in: "/dev/ttyACM0#x", err: true},
		{name: "id out of range", in: "/dev/ttyACM0#300", err: true},
		{name: "duplicate", in: "/dev/ttyACM0,/dev/ttyACM0#1", err: true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ports, err := ParseTractionPorts(tc.in)
			if tc.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expect, ports)
		})
	}
}

func TestAssembleLoop(t *testing.T) {
	mock := clock.NewMock()
	mock.Add(time.Hour)
	ep := &fakeEndpoint{}
	out := hw.NewMemLines()
	conf := NewConfig()
	conf.NodeID = "test"
	v := Assemble(conf, Parts{
		Axis:         idleAxis{},
		Endpoint:     ep,
		TelemetryDst: &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 5006},
		Outputs:      out,
	}, mock)
	loop := v.Build(mock)
	ctx := context.Background()

	loop.Step(ctx)
	require.Equal(t, []string{"None,NaN,NaN,NaN,NaN,NaN,NaN,NaN"}, ep.datagrams())
	assert.False(t, out.Get(hw.RelayTraction))

	require.NoError(t, v.Supervisor.Setup(ctx))
	assert.Equal(t, supervisor.ModeIdle, v.Supervisor.Mode())
	assert.True(t, out.Get(hw.RelayTraction))
	assert.True(t, out.Get(hw.RelaySteering))

	ep.push("0.1,20,0", mock.Now())
	mock.Add(10 * time.Millisecond)
	loop.Step(ctx)
	cmd, ok := v.Autonomy.Latest()
	require.True(t, ok)
	assert.Equal(t, float32(0.1), cmd.Steering)
	assert.Equal(t, float32(20), cmd.ThrottlePct)
	assert.Len(t, ep.datagrams(), 1)

	mock.Add(100 * time.Millisecond)
	loop.Step(ctx)
	sent := ep.datagrams()
	require.Len(t, sent, 2)
	assert.Equal(t, "Idle,NaN,NaN,NaN,NaN,NaN,NaN,NaN", sent[1])
	// LED stays off until steering is calibrated.
	assert.False(t, out.Get(hw.LEDStatus))
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func TestVehicleClose(t *testing.T) {
	v := Assemble(NewConfig(), Parts{Axis: idleAxis{}, Endpoint: &fakeEndpoint{}, Outputs: hw.NewMemLines()}, clock.NewMock())
	var order []int
	v.AddCloser(closerFunc(func() error { order = append(order, 1); return errors.New("first") }))
	v.AddCloser(closerFunc(func() error { order = append(order, 2); return nil }))
	v.AddCloser(closerFunc(func() error { order = append(order, 3); return errors.New("third") }))
	err := v.Close()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "first")
	assert.Contains(t, err.Error(), "third")
	assert.Equal(t, []int{3, 2, 1}, order)
	assert.NoError(t, v.Close())
}
