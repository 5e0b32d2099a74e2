package odrive

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrTimeout indicates the controller didn't answer in time.
	ErrTimeout = errors.New("odrive: reply timeout")
	// ErrInvalidReply indicates a reply couldn't be parsed.
	ErrInvalidReply = errors.New("odrive: invalid reply")
	// ErrUnknownParameter is the controller's reply to a bad path.
	ErrUnknownParameter = errors.New("odrive: invalid property")
)

// Error bits of the axis error word.
const (
	ErrInitializing           uint32 = 0x00000001
	ErrSystemLevel            uint32 = 0x00000002
	ErrTimingError            uint32 = 0x00000004
	ErrMissingEstimate        uint32 = 0x00000008
	ErrBadConfig              uint32 = 0x00000010
	ErrDRVFault               uint32 = 0x00000020
	ErrMissingInput           uint32 = 0x00000040
	ErrDCBusOverVoltage       uint32 = 0x00000100
	ErrDCBusUnderVoltage      uint32 = 0x00000200
	ErrDCBusOverCurrent       uint32 = 0x00000400
	ErrDCBusOverRegenCurrent  uint32 = 0x00000800
	ErrCurrentLimitViolation  uint32 = 0x00001000
	ErrMotorOverTemp          uint32 = 0x00002000
	ErrInverterOverTemp       uint32 = 0x00004000
	ErrVelocityLimitViolation uint32 = 0x00008000
	ErrPositionLimitViolation uint32 = 0x00010000
	ErrWatchdogTimerExpired   uint32 = 0x01000000
	ErrEstopRequested         uint32 = 0x02000000
	ErrSpinoutDetected        uint32 = 0x04000000
	ErrBrakeResistorDisarmed  uint32 = 0x08000000
	ErrThermistorDisconnected uint32 = 0x10000000
	ErrCalibrationError       uint32 = 0x40000000
)

var axisErrorNames = map[uint32]string{
	ErrInitializing:           "initializing",
	ErrSystemLevel:            "system level",
	ErrTimingError:            "timing error",
	ErrMissingEstimate:        "missing estimate",
	ErrBadConfig:              "bad config",
	ErrDRVFault:               "driver fault",
	ErrMissingInput:           "missing input",
	ErrDCBusOverVoltage:       "DC bus over voltage",
	ErrDCBusUnderVoltage:      "DC bus under voltage",
	ErrDCBusOverCurrent:       "DC bus over current",
	ErrDCBusOverRegenCurrent:  "DC bus over regen current",
	ErrCurrentLimitViolation:  "current limit violation",
	ErrMotorOverTemp:          "motor over temperature",
	ErrInverterOverTemp:       "inverter over temperature",
	ErrVelocityLimitViolation: "velocity limit violation",
	ErrPositionLimitViolation: "position limit violation",
	ErrWatchdogTimerExpired:   "watchdog timer expired",
	ErrEstopRequested:         "e-stop requested",
	ErrSpinoutDetected:        "spinout detected",
	ErrBrakeResistorDisarmed:  "brake resistor disarmed",
	ErrThermistorDisconnected: "thermistor disconnected",
	ErrCalibrationError:       "calibration error",
}

// ErrorNames decodes an axis error word into names, lowest bit first.
// Unknown bits are reported in hex.
func ErrorNames(code uint32) []string {
	if code == 0 {
		return nil
	}
	bits := make([]uint32, 0, 4)
	for bit := uint32(1); bit != 0; bit <<= 1 {
		if code&bit != 0 {
			bits = append(bits, bit)
		}
	}
	names := make([]string, 0, len(bits))
	for _, bit := range bits {
		if name, ok := axisErrorNames[bit]; ok {
			names = append(names, name)
		} else {
			names = append(names, fmt.Sprintf("0x%x", bit))
		}
	}
	return names
}

// ErrorWords are the error registers of an axis.
type ErrorWords struct {
	Axis       uint32
	Motor      uint64
	Encoder    uint32
	Controller uint32
}

// Any reports whether any word is non-zero.
func (w ErrorWords) Any() bool {
	return w.Axis != 0 || w.Motor != 0 || w.Encoder != 0 || w.Controller != 0
}

// Code combines the words into one code: the axis word when set,
// otherwise the first non-zero sub-component word.
func (w ErrorWords) Code() uint32 {
	switch {
	case w.Axis != 0:
		return w.Axis
	case w.Motor != 0:
		return uint32(w.Motor) | uint32(w.Motor>>32)
	case w.Encoder != 0:
		return w.Encoder
	}
	return w.Controller
}

// String formats non-zero words with decoded axis names.
func (w ErrorWords) String() string {
	if !w.Any() {
		return "none"
	}
	var parts []string
	if w.Axis != 0 {
		parts = append(parts, fmt.Sprintf("axis 0x%x (%s)", w.Axis, strings.Join(ErrorNames(w.Axis), ", ")))
	}
	if w.Motor != 0 {
		parts = append(parts, fmt.Sprintf("motor 0x%x", w.Motor))
	}
	if w.Encoder != 0 {
		parts = append(parts, fmt.Sprintf("encoder 0x%x", w.Encoder))
	}
	if w.Controller != 0 {
		parts = append(parts, fmt.Sprintf("controller 0x%x", w.Controller))
	}
	return strings.Join(parts, "; ")
}
