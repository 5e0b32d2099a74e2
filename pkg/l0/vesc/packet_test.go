package vesc

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCRC16(t *testing.T) {
	require.Equal(t, uint16(0x31C3), CRC16([]byte("123456789")))
	require.Equal(t, uint16(0), CRC16(nil))
}

func TestSetDutyFrame(t *testing.T) {
	payload := SetDutyPayload(1.0)
	require.Equal(t, []byte{5, 0x00, 0x01, 0x86, 0xA0}, payload)
	require.Equal(t, []byte{5, 0x00, 0x00, 0xC3, 0x50}, SetDutyPayload(0.5))

	frame, err := Encode(payload)
	require.NoError(t, err)
	require.Len(t, frame, len(payload)+5)
	assert.Equal(t, []byte{0x02, 0x05, 0x05}, frame[:3])
	assert.Equal(t, byte(0x03), frame[len(frame)-1])
	crc := CRC16(payload)
	assert.Equal(t, []byte{byte(crc >> 8), byte(crc)}, frame[len(frame)-3:len(frame)-1])
}

func TestCommandPayloads(t *testing.T) {
	testCases := []struct {
		name    string
		payload []byte
		expect  []byte
	}{
		{"rpm", SetRPMPayload(3274), []byte{8, 0, 0, 0x0C, 0xCA}},
		{"negative rpm", SetRPMPayload(-1), []byte{8, 0xff, 0xff, 0xff, 0xff}},
		{"rpm rounding", SetRPMPayload(2.5), []byte{8, 0, 0, 0, 3}},
		{"negative duty", SetDutyPayload(-0.25), []byte{5, 0xff, 0xff, 0x9E, 0x58}},
		{"get values", GetValuesPayload(), []byte{4}},
		{"forward", ForwardCAN(7, GetValuesPayload()), []byte{33, 7, 4}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.expect, tc.payload)
		})
	}
}

func TestEncodeDecodeAllLengths(t *testing.T) {
	for n := 0; n <= MaxPayload; n++ {
		payload := make([]byte, n)
		for i := range payload {
			payload[i] = byte(i*7 + n)
		}
		frame, err := Encode(payload)
		require.NoError(t, err)
		require.Equal(t, StartShort, frame[0])
		require.Equal(t, End, frame[len(frame)-1])
		decoded, err := Decode(frame)
		require.NoError(t, err)
		require.Equal(t, payload, decoded, "length %d", n)
	}
	_, err := Encode(make([]byte, MaxPayload+1))
	require.Equal(t, ErrPayloadTooLong, err)
}

func TestDecodeRejects(t *testing.T) {
	good, err := Encode([]byte{4, 1, 2})
	require.NoError(t, err)
	corrupt := func(i int, b byte) []byte {
		f := append([]byte(nil), good...)
		f[i] = b
		return f
	}
	testCases := []struct {
		name  string
		frame []byte
	}{
		{"short", good[:4]},
		{"bad start", corrupt(0, 0x05)},
		{"bad end", corrupt(len(good)-1, 0x00)},
		{"bad crc", corrupt(len(good)-2, good[len(good)-2]^0xff)},
		{"bad payload", corrupt(3, 0xee)},
		{"length mismatch", corrupt(1, 4)},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode(tc.frame)
			require.Equal(t, ErrBadFrame, err)
		})
	}
}

func TestWriteFrame(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, SetRPMPayload(0)))
	payload, err := Decode(buf.Bytes())
	require.NoError(t, err)
	require.Equal(t, []byte{8, 0, 0, 0, 0}, payload)
}

func TestCommandString(t *testing.T) {
	assert.Equal(t, "GET_VALUES", CommGetValues.String())
	assert.Equal(t, "COMM_99", Command(99).String())
}
