package odrive

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/pkg/errors"
)

// Frame is a classic CAN frame with an 11-bit identifier.
type Frame struct {
	ID   uint32
	RTR  bool
	Len  uint8
	Data [8]byte
}

// Payload returns the used part of Data.
func (f Frame) Payload() []byte {
	n := f.Len
	if n > 8 {
		n = 8
	}
	return f.Data[:n]
}

// String implements fmt.Stringer.
func (f Frame) String() string {
	node, cmd := SplitID(f.ID)
	if f.RTR {
		return fmt.Sprintf("node %d %s RTR", node, cmd)
	}
	return fmt.Sprintf("node %d %s [% x]", node, cmd, f.Payload())
}

// FrameConn sends and receives CAN frames.
type FrameConn interface {
	ReadFrame() (Frame, error)
	WriteFrame(Frame) error
	Close() error
}

// CANCmd is the command part of a CANSimple identifier.
type CANCmd uint8

// CANSimple commands.
const (
	CmdHeartbeat          CANCmd = 0x01
	CmdEstop              CANCmd = 0x02
	CmdGetMotorError      CANCmd = 0x03
	CmdGetEncoderError    CANCmd = 0x04
	CmdSetAxisState       CANCmd = 0x07
	CmdGetEncoderEstimate CANCmd = 0x09
	CmdSetControllerMode  CANCmd = 0x0b
	CmdSetInputPos        CANCmd = 0x0c
	CmdSetInputVel        CANCmd = 0x0d
	CmdSetInputTorque     CANCmd = 0x0e
	CmdSetLimits          CANCmd = 0x0f
	CmdSetTrajAccelLimits CANCmd = 0x12
	CmdGetBusVoltage      CANCmd = 0x17
	CmdClearErrors        CANCmd = 0x18
)

var canCmdNames = map[CANCmd]string{
	CmdHeartbeat:          "Heartbeat",
	CmdEstop:              "Estop",
	CmdGetMotorError:      "Get_Motor_Error",
	CmdGetEncoderError:    "Get_Encoder_Error",
	CmdSetAxisState:       "Set_Axis_State",
	CmdGetEncoderEstimate: "Get_Encoder_Estimates",
	CmdSetControllerMode:  "Set_Controller_Mode",
	CmdSetInputPos:        "Set_Input_Pos",
	CmdSetInputVel:        "Set_Input_Vel",
	CmdSetInputTorque:     "Set_Input_Torque",
	CmdSetLimits:          "Set_Limits",
	CmdSetTrajAccelLimits: "Set_Traj_Accel_Limits",
	CmdGetBusVoltage:      "Get_Bus_Voltage_Current",
	CmdClearErrors:        "Clear_Errors",
}

// String implements fmt.Stringer.
func (c CANCmd) String() string {
	if name, ok := canCmdNames[c]; ok {
		return name
	}
	return fmt.Sprintf("cmd 0x%02x", uint8(c))
}

// MakeID combines a node id and a command into an identifier.
func MakeID(node uint8, cmd CANCmd) uint32 {
	return uint32(node&0x3f)<<5 | uint32(cmd&0x1f)
}

// SplitID splits an identifier into node id and command.
func SplitID(id uint32) (node uint8, cmd CANCmd) {
	return uint8(id>>5) & 0x3f, CANCmd(id & 0x1f)
}

func newFrame(node uint8, cmd CANCmd, payload ...byte) Frame {
	f := Frame{ID: MakeID(node, cmd), Len: uint8(len(payload))}
	copy(f.Data[:], payload)
	return f
}

// RequestFrame builds a remote frame asking for cmd.
func RequestFrame(node uint8, cmd CANCmd) Frame {
	return Frame{ID: MakeID(node, cmd), RTR: true}
}

// SetAxisStateFrame builds Set_Axis_State.
func SetAxisStateFrame(node uint8, state AxisState) Frame {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(state))
	return newFrame(node, CmdSetAxisState, b[:]...)
}

// SetInputPosFrame builds Set_Input_Pos. Feed-forward terms are sent
// as int16 in thousandths.
func SetInputPosFrame(node uint8, pos, velFF, torqueFF float32) Frame {
	var b [8]byte
	binary.LittleEndian.PutUint32(b[0:], math.Float32bits(pos))
	binary.LittleEndian.PutUint16(b[4:], uint16(scaleInt16(velFF)))
	binary.LittleEndian.PutUint16(b[6:], uint16(scaleInt16(torqueFF)))
	return newFrame(node, CmdSetInputPos, b[:]...)
}

// SetControllerModeFrame builds Set_Controller_Mode.
func SetControllerModeFrame(node uint8, ctrl ControlMode, input InputMode) Frame {
	var b [8]byte
	binary.LittleEndian.PutUint32(b[0:], uint32(ctrl))
	binary.LittleEndian.PutUint32(b[4:], uint32(input))
	return newFrame(node, CmdSetControllerMode, b[:]...)
}

// SetLimitsFrame builds Set_Limits.
func SetLimitsFrame(node uint8, velLimit, currentLimit float32) Frame {
	return newFrame(node, CmdSetLimits, float32Pair(velLimit, currentLimit)...)
}

// SetTrajAccelLimitsFrame builds Set_Traj_Accel_Limits.
func SetTrajAccelLimitsFrame(node uint8, accel, decel float32) Frame {
	return newFrame(node, CmdSetTrajAccelLimits, float32Pair(accel, decel)...)
}

// ClearErrorsFrame builds Clear_Errors.
func ClearErrorsFrame(node uint8) Frame {
	return newFrame(node, CmdClearErrors)
}

// EstopFrame builds Estop.
func EstopFrame(node uint8) Frame {
	return newFrame(node, CmdEstop)
}

// Heartbeat is broadcast by every node periodically.
type Heartbeat struct {
	AxisError uint32
	State     AxisState
	TrajDone  bool
}

// DecodeHeartbeat decodes a Heartbeat payload.
func DecodeHeartbeat(f Frame) (hb Heartbeat, err error) {
	p := f.Payload()
	if len(p) < 5 {
		return hb, shortFrame(f)
	}
	hb.AxisError = binary.LittleEndian.Uint32(p)
	hb.State = AxisState(p[4])
	if len(p) > 7 {
		hb.TrajDone = p[7]&0x01 != 0
	}
	return hb, nil
}

// DecodeEstimates decodes Get_Encoder_Estimates.
func DecodeEstimates(f Frame) (Estimates, error) {
	pos, vel, err := decodeFloat32Pair(f)
	return Estimates{Pos: pos, Vel: vel}, err
}

// DecodeBus decodes Get_Bus_Voltage_Current.
func DecodeBus(f Frame) (Bus, error) {
	v, i, err := decodeFloat32Pair(f)
	return Bus{Voltage: v, Current: i}, err
}

// DecodeMotorError decodes Get_Motor_Error.
func DecodeMotorError(f Frame) (uint64, error) {
	p := f.Payload()
	if len(p) < 8 {
		return 0, shortFrame(f)
	}
	return binary.LittleEndian.Uint64(p), nil
}

// DecodeEncoderError decodes Get_Encoder_Error.
func DecodeEncoderError(f Frame) (uint32, error) {
	p := f.Payload()
	if len(p) < 4 {
		return 0, shortFrame(f)
	}
	return binary.LittleEndian.Uint32(p), nil
}

func float32Pair(a, b float32) []byte {
	var buf [8]byte
	binary.LittleEndian.PutUint32(buf[0:], math.Float32bits(a))
	binary.LittleEndian.PutUint32(buf[4:], math.Float32bits(b))
	return buf[:]
}

func decodeFloat32Pair(f Frame) (float32, float32, error) {
	p := f.Payload()
	if len(p) < 8 {
		return 0, 0, shortFrame(f)
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(p[0:])),
		math.Float32frombits(binary.LittleEndian.Uint32(p[4:])), nil
}

func scaleInt16(v float32) int16 {
	s := math.Round(float64(v) * 1000)
	if s > math.MaxInt16 {
		return math.MaxInt16
	}
	if s < math.MinInt16 {
		return math.MinInt16
	}
	return int16(s)
}

func shortFrame(f Frame) error {
	return errors.Wrapf(ErrInvalidReply, "short frame %v", f)
}
