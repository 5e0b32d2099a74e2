package vesc

import (
	"encoding/binary"
	"math"
)

// MinValuesPayload is the shortest GET_VALUES reply accepted.
const MinValuesPayload = 28

// offsets into the GET_VALUES reply payload, command id at 0.
const (
	offTempMosfet   = 1
	offTempMotor    = 3
	offMotorCurrent = 5
	offInputCurrent = 9
	offDuty         = 21 // after avg_id and avg_iq
	offRPM          = 23
	offInputVoltage = 27
	offFaultCode    = 53
)

// Values is the telemetry reported by GET_VALUES.
type Values struct {
	TempMosfet      float32 // °C
	TempMotor       float32 // °C
	AvgMotorCurrent float32 // A
	AvgInputCurrent float32 // A
	DutyCycle       float32
	RPM             float32
	InputVoltage    float32 // V, NaN when the reply is too short to carry it
	Fault           FaultCode
}

// DecodeValues decodes a GET_VALUES reply payload.
func DecodeValues(payload []byte) (v Values, err error) {
	if len(payload) == 0 {
		return v, ErrShortPayload
	}
	if cmd := Command(payload[0]); cmd != CommGetValues {
		return v, &UnexpectedReplyError{Want: CommGetValues, Got: cmd}
	}
	if len(payload) < MinValuesPayload {
		return v, ErrShortPayload
	}
	v.TempMosfet = float32(int16At(payload, offTempMosfet)) / 10
	v.TempMotor = float32(int16At(payload, offTempMotor)) / 10
	v.AvgMotorCurrent = float32At(payload, offMotorCurrent) / 100
	v.AvgInputCurrent = float32At(payload, offInputCurrent) / 100
	v.DutyCycle = float32(int16At(payload, offDuty)) / 1000
	v.RPM = float32At(payload, offRPM)
	v.InputVoltage = float32(math.NaN())
	if len(payload) >= offInputVoltage+2 {
		v.InputVoltage = float32(int16At(payload, offInputVoltage)) / 10
	}
	if len(payload) > offFaultCode {
		v.Fault = FaultCode(payload[offFaultCode])
	}
	return v, nil
}

// EncodeValues builds a GET_VALUES reply payload, the inverse of
// DecodeValues. Used by bench tooling and simulators.
func EncodeValues(v Values) []byte {
	b := make([]byte, offFaultCode+1)
	b[0] = byte(CommGetValues)
	putInt16(b, offTempMosfet, v.TempMosfet*10)
	putInt16(b, offTempMotor, v.TempMotor*10)
	binary.BigEndian.PutUint32(b[offMotorCurrent:], math.Float32bits(v.AvgMotorCurrent*100))
	binary.BigEndian.PutUint32(b[offInputCurrent:], math.Float32bits(v.AvgInputCurrent*100))
	putInt16(b, offDuty, v.DutyCycle*1000)
	binary.BigEndian.PutUint32(b[offRPM:], math.Float32bits(v.RPM))
	putInt16(b, offInputVoltage, v.InputVoltage*10)
	b[offFaultCode] = byte(v.Fault)
	return b
}

func int16At(b []byte, off int) int16 {
	return int16(binary.BigEndian.Uint16(b[off:]))
}

func float32At(b []byte, off int) float32 {
	return math.Float32frombits(binary.BigEndian.Uint32(b[off:]))
}

func putInt16(b []byte, off int, v float32) {
	binary.BigEndian.PutUint16(b[off:], uint16(int16(math.Round(float64(v)))))
}
