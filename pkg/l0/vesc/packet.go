package vesc

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Frame delimiters.
const (
	StartShort byte = 0x02
	End        byte = 0x03

	// MaxPayload is the largest payload of the short frame form.
	MaxPayload = 255
	// frameOverhead is start + len + crc(2) + end.
	frameOverhead = 5
)

// Command is the first byte of every payload.
type Command byte

// Commands used by the vehicle.
const (
	CommFWVersion  Command = 0
	CommGetValues  Command = 4
	CommSetDuty    Command = 5
	CommSetCurrent Command = 6
	CommSetRPM     Command = 8
	CommAlive      Command = 29
	CommForwardCAN Command = 33
)

var commandNames = map[Command]string{
	CommFWVersion:  "FW_VERSION",
	CommGetValues:  "GET_VALUES",
	CommSetDuty:    "SET_DUTY",
	CommSetCurrent: "SET_CURRENT",
	CommSetRPM:     "SET_RPM",
	CommAlive:      "ALIVE",
	CommForwardCAN: "FORWARD_CAN",
}

// String implements fmt.Stringer.
func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return fmt.Sprintf("COMM_%d", byte(c))
}

// CRC16 computes CRC-16/XMODEM: poly 0x1021, init 0, no reflection, no final xor.
func CRC16(data []byte) uint16 {
	var crc uint16
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

// Encode frames a payload.
func Encode(payload []byte) ([]byte, error) {
	if len(payload) > MaxPayload {
		return nil, ErrPayloadTooLong
	}
	b := make([]byte, len(payload)+frameOverhead)
	b[0], b[1] = StartShort, byte(len(payload))
	copy(b[2:], payload)
	binary.BigEndian.PutUint16(b[2+len(payload):], CRC16(payload))
	b[len(b)-1] = End
	return b, nil
}

// WriteFrame writes the framed payload with a single Write.
func WriteFrame(w io.Writer, payload []byte) error {
	b, err := Encode(payload)
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

// Decode validates a complete frame and returns its payload.
func Decode(frame []byte) ([]byte, error) {
	if len(frame) < frameOverhead || frame[0] != StartShort {
		return nil, ErrBadFrame
	}
	n := int(frame[1])
	if len(frame) != n+frameOverhead || frame[len(frame)-1] != End {
		return nil, ErrBadFrame
	}
	payload := frame[2 : 2+n]
	if binary.BigEndian.Uint16(frame[2+n:]) != CRC16(payload) {
		return nil, ErrBadFrame
	}
	return append([]byte(nil), payload...), nil
}

// SetDutyPayload builds SET_DUTY; duty is in [-1, 1].
func SetDutyPayload(duty float64) []byte {
	return appendInt32([]byte{byte(CommSetDuty)}, int32(math.Round(duty*1e5)))
}

// SetRPMPayload builds SET_RPM with electrical RPM.
func SetRPMPayload(rpm float64) []byte {
	return appendInt32([]byte{byte(CommSetRPM)}, int32(math.Round(rpm)))
}

// SetCurrentPayload builds SET_CURRENT in amps.
func SetCurrentPayload(amps float64) []byte {
	return appendInt32([]byte{byte(CommSetCurrent)}, int32(math.Round(amps*1e3)))
}

// GetValuesPayload builds GET_VALUES.
func GetValuesPayload() []byte {
	return []byte{byte(CommGetValues)}
}

// ForwardCAN wraps payload for the controller with CAN id canID behind
// the directly connected one.
func ForwardCAN(canID byte, payload []byte) []byte {
	return append([]byte{byte(CommForwardCAN), canID}, payload...)
}

func appendInt32(b []byte, v int32) []byte {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(v))
	return append(b, buf[:]...)
}
