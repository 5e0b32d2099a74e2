package steering

import (
	"errors"
	"strings"

	"github.com/evt-autonomy/vehicle.go/pkg/l0/odrive"
)

// State is the driver lifecycle state.
type State int

// Driver states.
const (
	Absent State = iota
	Discovered
	Calibrating
	Ready
	Faulted
)

var stateNames = []string{"Absent", "Discovered", "Calibrating", "Ready", "Faulted"}

// String implements fmt.Stringer.
func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "Unknown"
}

var (
	// ErrAbsent indicates the controller never left the undefined state.
	ErrAbsent = errors.New("steering: controller absent")
	// ErrNotReady indicates a target was set before calibration.
	ErrNotReady = errors.New("steering: not ready")
	// ErrTimeout indicates a calibration step didn't finish in time.
	ErrTimeout = errors.New("steering: timeout")
	// ErrBadLimits indicates the center is outside the limits.
	ErrBadLimits = errors.New("steering: center outside limits")
)

// FaultError is a controller reported fault.
type FaultError struct {
	Words odrive.ErrorWords
	Names []string
}

// Code is the combined error code.
func (e *FaultError) Code() uint32 {
	return e.Words.Code()
}

func (e *FaultError) Error() string {
	if len(e.Names) == 0 {
		return "steering fault: " + e.Words.String()
	}
	return "steering fault: " + strings.Join(e.Names, ", ")
}

// RecalAction is what the recalibration switch asks for.
type RecalAction int

// Recalibration actions.
const (
	RecalNone RecalAction = iota
	RecalClearErrors
	RecalFull
)
