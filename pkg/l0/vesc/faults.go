package vesc

import "fmt"

// FaultCode is the controller fault reported in GET_VALUES.
type FaultCode byte

// Fault codes.
const (
	FaultNone FaultCode = iota
	FaultOverVoltage
	FaultUnderVoltage
	FaultDRV
	FaultAbsOverCurrent
	FaultOverTempFET
	FaultOverTempMotor
	FaultGateDriverOverVoltage
	FaultGateDriverUnderVoltage
	FaultMCUUnderVoltage
	FaultBootingFromWatchdogReset
	FaultEncoderSPI
	FaultEncoderSinCosBelowMinAmplitude
	FaultEncoderSinCosAboveMaxAmplitude
	FaultFlashCorruption
	FaultHighOffsetCurrentSensor1
	FaultHighOffsetCurrentSensor2
	FaultHighOffsetCurrentSensor3
	FaultUnbalancedCurrents
	FaultBRK
	FaultResolverLOT
	FaultResolverDOT
	FaultResolverLOS
	FaultFlashCorruptionAppCfg
	FaultFlashCorruptionMCCfg
	FaultEncoderNoMagnet
	FaultEncoderMagnetTooStrong
	FaultPhaseFilter
)

var faultNames = map[FaultCode]string{
	FaultNone:                           "none",
	FaultOverVoltage:                    "over voltage",
	FaultUnderVoltage:                   "under voltage",
	FaultDRV:                            "driver fault",
	FaultAbsOverCurrent:                 "absolute over current",
	FaultOverTempFET:                    "FET over temperature",
	FaultOverTempMotor:                  "motor over temperature",
	FaultGateDriverOverVoltage:          "gate driver over voltage",
	FaultGateDriverUnderVoltage:         "gate driver under voltage",
	FaultMCUUnderVoltage:                "MCU under voltage",
	FaultBootingFromWatchdogReset:       "booting from watchdog reset",
	FaultEncoderSPI:                     "encoder SPI",
	FaultEncoderSinCosBelowMinAmplitude: "encoder sin/cos below min amplitude",
	FaultEncoderSinCosAboveMaxAmplitude: "encoder sin/cos above max amplitude",
	FaultFlashCorruption:                "flash corruption",
	FaultHighOffsetCurrentSensor1:       "high offset current sensor 1",
	FaultHighOffsetCurrentSensor2:       "high offset current sensor 2",
	FaultHighOffsetCurrentSensor3:       "high offset current sensor 3",
	FaultUnbalancedCurrents:             "unbalanced currents",
	FaultBRK:                            "brake",
	FaultResolverLOT:                    "resolver loss of tracking",
	FaultResolverDOT:                    "resolver degradation of tracking",
	FaultResolverLOS:                    "resolver loss of signal",
	FaultFlashCorruptionAppCfg:          "app config flash corruption",
	FaultFlashCorruptionMCCfg:           "motor config flash corruption",
	FaultEncoderNoMagnet:                "encoder no magnet",
	FaultEncoderMagnetTooStrong:         "encoder magnet too strong",
	FaultPhaseFilter:                    "phase filter",
}

// String implements fmt.Stringer.
func (f FaultCode) String() string {
	if name, ok := faultNames[f]; ok {
		return name
	}
	return fmt.Sprintf("fault %d", byte(f))
}

// IsFault reports whether the code indicates a fault.
func (f FaultCode) IsFault() bool {
	return f != FaultNone
}
