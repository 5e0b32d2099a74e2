package vesc

import (
	"errors"
	"fmt"
)

var (
	// ErrPayloadTooLong indicates the payload doesn't fit the short frame form.
	ErrPayloadTooLong = errors.New("payload longer than 255 bytes")
	// ErrBadFrame indicates a frame failed start/end/CRC validation.
	ErrBadFrame = errors.New("bad frame")
	// ErrShortPayload indicates a reply payload is too short to decode.
	ErrShortPayload = errors.New("short payload")
	// ErrTimeout indicates no reply byte arrived in time.
	ErrTimeout = errors.New("reply timeout")
	// ErrNoReply indicates a reply for a later request arrived first, so
	// earlier requests will never be answered.
	ErrNoReply = errors.New("no reply")
	// ErrClosed indicates the stream stopped.
	ErrClosed = errors.New("stream closed")
)

// UnexpectedReplyError is returned when a reply payload carries a
// different command id than the one being decoded.
type UnexpectedReplyError struct {
	Want, Got Command
}

// Error implements error.
func (e *UnexpectedReplyError) Error() string {
	return fmt.Sprintf("unexpected reply %s, want %s", e.Got, e.Want)
}
