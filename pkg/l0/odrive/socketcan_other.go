//go:build !linux

package odrive

import "errors"

// SocketCAN is only available on Linux.
type SocketCAN struct{}

// DialSocketCAN always fails outside Linux.
func DialSocketCAN(iface string) (*SocketCAN, error) {
	return nil, errors.New("socketcan: not supported on this platform")
}

// ReadFrame implements FrameConn.
func (s *SocketCAN) ReadFrame() (Frame, error) { return Frame{}, ErrTimeout }

// WriteFrame implements FrameConn.
func (s *SocketCAN) WriteFrame(Frame) error { return ErrTimeout }

// Close implements FrameConn.
func (s *SocketCAN) Close() error { return nil }
