package supervisor

import "time"

// Mode is the operating mode.
type Mode int

// Operating modes.
const (
	ModeNone Mode = iota
	ModeInit
	ModeIdle
	ModeCalibrating
	ModeRC
	ModeAutonomous
	ModeError
)

var modeNames = []string{"None", "Init", "Idle", "Calibrating", "RC", "Autonomous", "Error"}

// String implements fmt.Stringer.
func (m Mode) String() string {
	if m >= 0 && int(m) < len(modeNames) {
		return modeNames[m]
	}
	return "Unknown"
}

// ParseMode is the reverse of String.
func ParseMode(s string) (Mode, bool) {
	for i, name := range modeNames {
		if name == s {
			return Mode(i), true
		}
	}
	return ModeNone, false
}

// Error locations.
const (
	LocSteering = "odrive"
	LocTraction = "vesc"
	LocAutonomy = "autonomy"
	LocRC       = "rc"
	LocOperator = "operator"
)

// ErrorRecord is the latched error.
type ErrorRecord struct {
	Location string
	Reason   string
	Time     time.Time
}

// OperatorCommand is posted to the loop to act on the supervisor.
type OperatorCommand string

// Operator commands.
const (
	CommandReset OperatorCommand = "reset"
	CommandEstop OperatorCommand = "estop"
)
