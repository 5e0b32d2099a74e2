package odrive

import (
	"context"
	"fmt"
)

// AxisState is the requested/current state of an axis.
type AxisState uint32

// Axis states.
const (
	AxisStateUndefined                AxisState = 0
	AxisStateIdle                     AxisState = 1
	AxisStateStartupSequence          AxisState = 2
	AxisStateFullCalibrationSequence  AxisState = 3
	AxisStateMotorCalibration         AxisState = 4
	AxisStateEncoderIndexSearch       AxisState = 6
	AxisStateEncoderOffsetCalibration AxisState = 7
	AxisStateClosedLoopControl        AxisState = 8
	AxisStateLockinSpin               AxisState = 9
	AxisStateEncoderDirFind           AxisState = 10
	AxisStateHoming                   AxisState = 11
)

var axisStateNames = map[AxisState]string{
	AxisStateUndefined:                "UNDEFINED",
	AxisStateIdle:                     "IDLE",
	AxisStateStartupSequence:          "STARTUP_SEQUENCE",
	AxisStateFullCalibrationSequence:  "FULL_CALIBRATION_SEQUENCE",
	AxisStateMotorCalibration:         "MOTOR_CALIBRATION",
	AxisStateEncoderIndexSearch:       "ENCODER_INDEX_SEARCH",
	AxisStateEncoderOffsetCalibration: "ENCODER_OFFSET_CALIBRATION",
	AxisStateClosedLoopControl:        "CLOSED_LOOP_CONTROL",
	AxisStateLockinSpin:               "LOCKIN_SPIN",
	AxisStateEncoderDirFind:           "ENCODER_DIR_FIND",
	AxisStateHoming:                   "HOMING",
}

// String implements fmt.Stringer.
func (s AxisState) String() string {
	if name, ok := axisStateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("AXIS_STATE_%d", uint32(s))
}

// InputMode selects how the controller filters setpoints.
type InputMode uint32

// Input modes.
const (
	InputModeInactive    InputMode = 0
	InputModePassthrough InputMode = 1
	InputModeVelRamp     InputMode = 2
	InputModePosFilter   InputMode = 3
	InputModeTrapTraj    InputMode = 5
)

// ControlMode selects the controller loop.
type ControlMode uint32

// Control modes.
const (
	ControlModeVoltage  ControlMode = 0
	ControlModeTorque   ControlMode = 1
	ControlModeVelocity ControlMode = 2
	ControlModePosition ControlMode = 3
)

// Limits are the controller limits written after entering closed loop.
// Zero fields are not written.
type Limits struct {
	VelLimit          float32 // turns/s
	AccelLimit        float32 // turns/s^2
	DecelLimit        float32 // turns/s^2
	MotorCurrentLimit float32 // A
	CtrlCurrentLimit  float32 // A
}

// Estimates is the encoder position and velocity.
type Estimates struct {
	Pos float32 // turns
	Vel float32 // turns/s
}

// Bus is the DC bus voltage and current.
type Bus struct {
	Voltage float32
	Current float32
}

// Axis is one motor + encoder pair on a controller, reached over
// either protocol.
type Axis interface {
	State(ctx context.Context) (AxisState, error)
	RequestState(ctx context.Context, state AxisState) error
	ClearErrors(ctx context.Context) error
	SetInputPos(ctx context.Context, pos, velFF, torqueFF float32) error
	Estimates(ctx context.Context) (Estimates, error)
	Bus(ctx context.Context) (Bus, error)
	Errors(ctx context.Context) (ErrorWords, error)
	Configure(ctx context.Context, limits Limits, mode InputMode) error
}
