package odrive

import (
	"context"
	"encoding/binary"
	"io"
	"math"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCANIDs(t *testing.T) {
	assert.Equal(t, uint32(0x06c), MakeID(3, CmdSetInputPos))
	node, cmd := SplitID(0x06c)
	assert.Equal(t, uint8(3), node)
	assert.Equal(t, CmdSetInputPos, cmd)
	assert.Equal(t, "Set_Input_Pos", cmd.String())
	assert.Equal(t, "cmd 0x1f", CANCmd(0x1f).String())
}

func TestCANFrames(t *testing.T) {
	f := SetInputPosFrame(1, 2.5, 1.234, -40)
	assert.Equal(t, uint8(8), f.Len)
	assert.Equal(t, float32(2.5), math.Float32frombits(binary.LittleEndian.Uint32(f.Data[0:])))
	assert.Equal(t, int16(1234), int16(binary.LittleEndian.Uint16(f.Data[4:])))
	// saturates at int16 range
	assert.Equal(t, int16(math.MinInt16), int16(binary.LittleEndian.Uint16(f.Data[6:])))

	f = SetAxisStateFrame(1, AxisStateClosedLoopControl)
	assert.Equal(t, []byte{8, 0, 0, 0}, f.Payload())

	f = SetControllerModeFrame(1, ControlModePosition, InputModePassthrough)
	assert.Equal(t, []byte{3, 0, 0, 0, 1, 0, 0, 0}, f.Payload())

	est, err := DecodeEstimates(Frame{Len: 8, Data: [8]byte{0, 0, 0xc0, 0x3f, 0, 0, 0, 0xc0}})
	require.NoError(t, err)
	assert.Equal(t, Estimates{Pos: 1.5, Vel: -2}, est)

	_, err = DecodeBus(Frame{Len: 4})
	assert.Equal(t, ErrInvalidReply, errors.Cause(err))

	hb, err := DecodeHeartbeat(Frame{Len: 8, Data: [8]byte{0, 0, 0, 0x02, 8, 0, 0, 1}})
	require.NoError(t, err)
	assert.Equal(t, Heartbeat{AxisError: ErrEstopRequested, State: AxisStateClosedLoopControl, TrajDone: true}, hb)
}

// fakeBus answers remote requests of a single node.
type fakeBus struct {
	node    uint8
	rx      chan Frame
	written chan Frame
	replies map[CANCmd]Frame
}

func newFakeBus(node uint8) *fakeBus {
	return &fakeBus{
		node:    node,
		rx:      make(chan Frame, 16),
		written: make(chan Frame, 16),
		replies: make(map[CANCmd]Frame),
	}
}

func (b *fakeBus) ReadFrame() (Frame, error) {
	f, ok := <-b.rx
	if !ok {
		return Frame{}, io.EOF
	}
	return f, nil
}

func (b *fakeBus) WriteFrame(f Frame) error {
	b.written <- f
	if node, cmd := SplitID(f.ID); node == b.node && f.RTR {
		if reply, ok := b.replies[cmd]; ok {
			b.rx <- reply
		}
	}
	return nil
}

func (b *fakeBus) Close() error { return nil }

func TestCANAxis(t *testing.T) {
	bus := newFakeBus(2)
	bus.replies[CmdGetEncoderEstimate] = newFrame(2, CmdGetEncoderEstimate, float32Pair(0.5, 0.1)...)
	bus.replies[CmdGetBusVoltage] = newFrame(2, CmdGetBusVoltage, float32Pair(24, 1)...)
	bus.replies[CmdGetMotorError] = newFrame(2, CmdGetMotorError, 0x10, 0, 0, 0, 0, 0, 0, 0)
	bus.replies[CmdGetEncoderError] = newFrame(2, CmdGetEncoderError, 0, 0, 0, 0)

	a := NewCANAxis(bus, 2)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.Run(ctx)

	// another node's heartbeat is ignored
	bus.rx <- newFrame(5, CmdHeartbeat, 0, 0, 0, 0, 1, 0, 0, 0)
	bus.rx <- newFrame(2, CmdHeartbeat, 0, 0, 0, 0, 8, 0, 0, 0)
	require.Eventually(t, func() bool {
		_, ok := a.LastHeartbeat()
		return ok
	}, time.Second, time.Millisecond)
	state, err := a.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, AxisStateClosedLoopControl, state)

	est, err := a.Estimates(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, est.Pos, 1e-6)

	b, err := a.Bus(ctx)
	require.NoError(t, err)
	assert.Equal(t, Bus{Voltage: 24, Current: 1}, b)

	w, err := a.Errors(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x10), w.Motor)
	assert.Equal(t, uint32(0x10), w.Code())
}

func TestCANAxisTimeout(t *testing.T) {
	bus := newFakeBus(2)
	a := NewCANAxis(bus, 2)
	a.ReplyTimeout = 10 * time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.Run(ctx)

	_, err := a.Estimates(ctx)
	assert.Equal(t, ErrTimeout, errors.Cause(err))
	a.lock.Lock()
	assert.Empty(t, a.waiters)
	a.lock.Unlock()
}

func TestCANAxisConfigure(t *testing.T) {
	bus := newFakeBus(1)
	a := NewCANAxis(bus, 1)
	require.NoError(t, a.Configure(context.Background(), Limits{VelLimit: 30, AccelLimit: 25, DecelLimit: 50, CtrlCurrentLimit: 90}, InputModePassthrough))
	var cmds []CANCmd
	for len(bus.written) > 0 {
		_, cmd := SplitID((<-bus.written).ID)
		cmds = append(cmds, cmd)
	}
	assert.Equal(t, []CANCmd{CmdSetLimits, CmdSetTrajAccelLimits, CmdSetControllerMode}, cmds)
}
