// Package sbus decodes the serial bus protocol of RC receivers:
// 25-byte frames at 100000 baud 8E2 carrying sixteen 11-bit channels.
package sbus

import (
	"context"
	"errors"
	"io"

	"github.com/golang/glog"
)

// Frame layout.
const (
	FrameSize   = 25
	Header      = 0x0f
	Footer      = 0x00
	NumChannels = 16

	flagCh17      = 0x01
	flagCh18      = 0x02
	flagLostFrame = 0x04
	flagFailsafe  = 0x08
)

// Channel range reported by common receivers.
const (
	ChannelMin = 172
	ChannelMid = 992
	ChannelMax = 1811
)

var (
	// ErrBadFrame indicates a frame with wrong size, header or footer.
	ErrBadFrame = errors.New("sbus: bad frame")
)

// Frame is one decoded frame.
type Frame struct {
	Channels  [NumChannels]uint16
	Ch17      bool
	Ch18      bool
	LostFrame bool
	Failsafe  bool
}

func validFooter(b byte) bool {
	// SBUS2 receivers rotate the footer through 0x04, 0x14, 0x24, 0x34.
	return b == Footer || b&0x0f == 0x04
}

// Decode decodes a complete frame.
func Decode(b []byte) (f Frame, err error) {
	if len(b) != FrameSize || b[0] != Header || !validFooter(b[FrameSize-1]) {
		return f, ErrBadFrame
	}
	var acc uint32
	var bits uint
	data := b[1:23]
	ch := 0
	for _, v := range data {
		acc |= uint32(v) << bits
		bits += 8
		for bits >= 11 && ch < NumChannels {
			f.Channels[ch] = uint16(acc & 0x7ff)
			acc >>= 11
			bits -= 11
			ch++
		}
	}
	flags := b[23]
	f.Ch17 = flags&flagCh17 != 0
	f.Ch18 = flags&flagCh18 != 0
	f.LostFrame = flags&flagLostFrame != 0
	f.Failsafe = flags&flagFailsafe != 0
	return f, nil
}

// Encode packs a frame, used by simulators and tests.
func Encode(f Frame) []byte {
	b := make([]byte, FrameSize)
	b[0] = Header
	var acc uint32
	var bits uint
	pos := 1
	for _, ch := range f.Channels {
		acc |= uint32(ch&0x7ff) << bits
		bits += 11
		for bits >= 8 {
			b[pos] = byte(acc)
			acc >>= 8
			bits -= 8
			pos++
		}
	}
	var flags byte
	if f.Ch17 {
		flags |= flagCh17
	}
	if f.Ch18 {
		flags |= flagCh18
	}
	if f.LostFrame {
		flags |= flagLostFrame
	}
	if f.Failsafe {
		flags |= flagFailsafe
	}
	b[23] = flags
	b[24] = Footer
	return b
}

// Decoder reassembles frames from a byte stream. It resynchronizes on
// the next header byte after a bad frame.
type Decoder struct {
	buf [FrameSize]byte
	n   int
}

// Feed consumes one byte and returns a frame when one completes.
func (d *Decoder) Feed(c byte) (Frame, bool) {
	if d.n == 0 && c != Header {
		return Frame{}, false
	}
	d.buf[d.n] = c
	d.n++
	if d.n < FrameSize {
		return Frame{}, false
	}
	f, err := Decode(d.buf[:])
	if err == nil {
		d.n = 0
		return f, true
	}
	d.resync()
	return Frame{}, false
}

func (d *Decoder) resync() {
	for i := 1; i < d.n; i++ {
		if d.buf[i] == Header {
			d.n = copy(d.buf[:], d.buf[i:d.n])
			return
		}
	}
	d.n = 0
}

// Handler receives decoded frames.
type Handler interface {
	HandleFrame(Frame)
}

// HandleFrameFunc is the func form of Handler.
type HandleFrameFunc func(Frame)

// HandleFrame implements Handler.
func (f HandleFrameFunc) HandleFrame(fr Frame) {
	f(fr)
}

// Reader decodes frames from a serial port.
type Reader struct {
	Reader  io.Reader
	Handler Handler

	decoder Decoder
	dropped uint64
}

// Run reads until the port fails or the context is canceled. A read
// blocked on a quiet port doesn't hold up cancellation, the reading
// goroutine ends when the port is closed.
func (r *Reader) Run(ctx context.Context) error {
	chunkCh, errCh := make(chan []byte), make(chan error, 1)
	go readChunks(ctx, r.Reader, chunkCh, errCh)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errCh:
			return err
		case chunk := <-chunkCh:
			r.decode(chunk)
		}
	}
}

func (r *Reader) decode(chunk []byte) {
	for _, c := range chunk {
		before := r.decoder.n
		f, ok := r.decoder.Feed(c)
		if ok {
			r.Handler.HandleFrame(f)
		} else if before == FrameSize-1 {
			r.dropped++
			glog.V(2).Infof("sbus: bad frame dropped (%d total)", r.dropped)
		}
	}
}

func readChunks(ctx context.Context, rd io.Reader, chunkCh chan<- []byte, errCh chan<- error) {
	buf := make([]byte, 64)
	for {
		n, err := rd.Read(buf)
		if err != nil {
			errCh <- err
			return
		}
		if n == 0 {
			if ctx.Err() != nil {
				return
			}
			continue
		}
		select {
		case chunkCh <- append([]byte(nil), buf[:n]...):
		case <-ctx.Done():
			return
		}
	}
}
