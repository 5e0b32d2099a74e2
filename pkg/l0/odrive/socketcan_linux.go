package odrive

import (
	"encoding/binary"
	"net"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

const (
	canFrameSize = 16
	canEFFFlag   = 0x80000000
	canRTRFlag   = 0x40000000
	canErrFlag   = 0x20000000
	canSFFMask   = 0x000007ff
)

// SocketCAN is a FrameConn on a raw SocketCAN interface.
type SocketCAN struct {
	fd    int
	iface string
}

// DialSocketCAN opens a raw CAN socket bound to iface (e.g. can0).
// Reads time out every 100ms with ErrTimeout so readers can observe
// cancellation.
func DialSocketCAN(iface string) (*SocketCAN, error) {
	ifi, err := net.InterfaceByName(iface)
	if err != nil {
		return nil, errors.Wrapf(err, "can interface %s", iface)
	}
	fd, err := unix.Socket(unix.AF_CAN, unix.SOCK_RAW, unix.CAN_RAW)
	if err != nil {
		return nil, errors.Wrap(err, "can socket")
	}
	tv := unix.Timeval{Usec: 100000}
	if err = unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
		unix.Close(fd)
		return nil, errors.Wrap(err, "can socket timeout")
	}
	if err = unix.Bind(fd, &unix.SockaddrCAN{Ifindex: ifi.Index}); err != nil {
		unix.Close(fd)
		return nil, errors.Wrapf(err, "bind %s", iface)
	}
	return &SocketCAN{fd: fd, iface: iface}, nil
}

// ReadFrame implements FrameConn. Error frames and extended frames are
// skipped.
func (s *SocketCAN) ReadFrame() (Frame, error) {
	var buf [canFrameSize]byte
	for {
		n, err := unix.Read(s.fd, buf[:])
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return Frame{}, ErrTimeout
		}
		if err != nil {
			return Frame{}, errors.Wrapf(err, "read %s", s.iface)
		}
		if n < canFrameSize {
			continue
		}
		id := binary.LittleEndian.Uint32(buf[0:4])
		if id&(canErrFlag|canEFFFlag) != 0 {
			continue
		}
		f := Frame{ID: id & canSFFMask, RTR: id&canRTRFlag != 0, Len: buf[4]}
		copy(f.Data[:], buf[8:16])
		return f, nil
	}
}

// WriteFrame implements FrameConn.
func (s *SocketCAN) WriteFrame(f Frame) error {
	var buf [canFrameSize]byte
	id := f.ID & canSFFMask
	if f.RTR {
		id |= canRTRFlag
	}
	binary.LittleEndian.PutUint32(buf[0:4], id)
	buf[4] = f.Len
	copy(buf[8:16], f.Data[:])
	_, err := unix.Write(s.fd, buf[:])
	return errors.Wrapf(err, "write %s", s.iface)
}

// Close implements FrameConn.
func (s *SocketCAN) Close() error {
	return unix.Close(s.fd)
}
