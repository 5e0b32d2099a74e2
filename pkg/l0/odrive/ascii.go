package odrive

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang/glog"
	"github.com/pkg/errors"
)

// DefaultReplyTimeout bounds how long a query waits for its reply line.
const DefaultReplyTimeout = 100 * time.Millisecond

const maxLineLen = 256

// ASCII drives an axis over the line based text protocol. Commands are
// single lines terminated by '\n'. Only reads and feedback requests are
// answered.
type ASCII struct {
	ReplyTimeout time.Duration
	Clock        clock.Clock
	AxisIndex    int

	rw        io.ReadWriter
	lines     chan string
	reqLock   sync.Mutex
	writeLock sync.Mutex
	// the last query timed out, its reply may still arrive
	late bool
}

// NewASCII creates an ASCII axis over a serial port.
func NewASCII(rw io.ReadWriter) *ASCII {
	return &ASCII{
		ReplyTimeout: DefaultReplyTimeout,
		Clock:        clock.New(),
		rw:           rw,
		lines:        make(chan string, 16),
	}
}

// Run reads reply lines until the context is canceled or the port fails.
// Cancellation doesn't wait for a blocked read, the reading goroutine
// ends when the port is closed.
func (a *ASCII) Run(ctx context.Context) error {
	chunkCh, errCh := make(chan []byte), make(chan error, 1)
	go a.readChunks(ctx, chunkCh, errCh)
	var line []byte
	for {
		var chunk []byte
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errCh:
			return err
		case chunk = <-chunkCh:
		}
		for _, b := range chunk {
			switch {
			case b == '\n':
				a.deliver(strings.TrimSpace(string(line)))
				line = line[:0]
			case len(line) >= maxLineLen:
				glog.Warningf("odrive: line overflow, dropped %d bytes", len(line))
				line = line[:0]
			default:
				line = append(line, b)
			}
		}
	}
}

func (a *ASCII) readChunks(ctx context.Context, chunkCh chan<- []byte, errCh chan<- error) {
	buf := make([]byte, maxLineLen)
	for {
		n, err := a.rw.Read(buf)
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

func (a *ASCII) deliver(line string) {
	if line == "" {
		return
	}
	if glog.V(2) {
		glog.Infof("odrive RX %q", line)
	}
	select {
	case a.lines <- line:
	default:
		// nobody is reading, drop the oldest
		select {
		case <-a.lines:
		default:
		}
		a.lines <- line
	}
}

func (a *ASCII) send(line string) error {
	if glog.V(2) {
		glog.Infof("odrive TX %q", line)
	}
	a.writeLock.Lock()
	defer a.writeLock.Unlock()
	_, err := io.WriteString(a.rw, line+"\n")
	return err
}

// Command sends a line which expects no reply. It doesn't wait for a
// pending Query.
func (a *ASCII) Command(ctx context.Context, line string) error {
	return a.send(line)
}

// Query sends a line and waits for one reply line.
func (a *ASCII) Query(ctx context.Context, line string) (string, error) {
	a.reqLock.Lock()
	defer a.reqLock.Unlock()
	timeout := a.ReplyTimeout
	if timeout <= 0 {
		timeout = DefaultReplyTimeout
	}
	if a.late {
		select {
		case <-a.clock().After(timeout):
		case <-ctx.Done():
			return "", ctx.Err()
		}
		a.late = false
	}
	for drained := false; !drained; {
		select {
		case stale := <-a.lines:
			glog.V(2).Infof("odrive: stale reply %q dropped", stale)
		default:
			drained = true
		}
	}
	if err := a.send(line); err != nil {
		return "", err
	}
	timer := a.clock().Timer(timeout)
	defer timer.Stop()
	select {
	case reply := <-a.lines:
		if reply == "invalid property" || reply == "invalid command format" {
			return "", errors.Wrapf(ErrUnknownParameter, "%q", line)
		}
		return reply, nil
	case <-timer.C:
		a.late = true
		return "", errors.Wrapf(ErrTimeout, "%q", line)
	case <-ctx.Done():
		a.late = true
		return "", ctx.Err()
	}
}

// Write sets a property.
func (a *ASCII) Write(ctx context.Context, path string, value interface{}) error {
	return a.Command(ctx, fmt.Sprintf("w %s %s", path, formatValue(value)))
}

// Read reads a property as text.
func (a *ASCII) Read(ctx context.Context, path string) (string, error) {
	return a.Query(ctx, "r "+path)
}

// ReadFloat reads a float property.
func (a *ASCII) ReadFloat(ctx context.Context, path string) (float32, error) {
	s, err := a.Read(ctx, path)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(s, 32)
	if err != nil {
		return 0, errors.Wrapf(ErrInvalidReply, "%s: %q", path, s)
	}
	return float32(v), nil
}

// ReadUint reads an integer property.
func (a *ASCII) ReadUint(ctx context.Context, path string) (uint64, error) {
	s, err := a.Read(ctx, path)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(ErrInvalidReply, "%s: %q", path, s)
	}
	return v, nil
}

func (a *ASCII) axis(path string) string {
	return fmt.Sprintf("axis%d.%s", a.AxisIndex, path)
}

// State implements Axis.
func (a *ASCII) State(ctx context.Context) (AxisState, error) {
	v, err := a.ReadUint(ctx, a.axis("current_state"))
	return AxisState(v), err
}

// RequestState implements Axis.
func (a *ASCII) RequestState(ctx context.Context, state AxisState) error {
	return a.Write(ctx, a.axis("requested_state"), uint32(state))
}

// ClearErrors implements Axis.
func (a *ASCII) ClearErrors(ctx context.Context) error {
	return a.Command(ctx, "sc")
}

// SetInputPos implements Axis.
func (a *ASCII) SetInputPos(ctx context.Context, pos, velFF, torqueFF float32) error {
	return a.Command(ctx, fmt.Sprintf("p %d %s %s %s", a.AxisIndex,
		formatValue(pos), formatValue(velFF), formatValue(torqueFF)))
}

// Estimates implements Axis.
func (a *ASCII) Estimates(ctx context.Context) (Estimates, error) {
	reply, err := a.Query(ctx, fmt.Sprintf("f %d", a.AxisIndex))
	if err != nil {
		return Estimates{}, err
	}
	fields := strings.Fields(reply)
	if len(fields) != 2 {
		return Estimates{}, errors.Wrapf(ErrInvalidReply, "feedback %q", reply)
	}
	pos, err1 := strconv.ParseFloat(fields[0], 32)
	vel, err2 := strconv.ParseFloat(fields[1], 32)
	if err1 != nil || err2 != nil {
		return Estimates{}, errors.Wrapf(ErrInvalidReply, "feedback %q", reply)
	}
	return Estimates{Pos: float32(pos), Vel: float32(vel)}, nil
}

// Bus implements Axis.
func (a *ASCII) Bus(ctx context.Context) (b Bus, err error) {
	if b.Voltage, err = a.ReadFloat(ctx, "vbus_voltage"); err != nil {
		return
	}
	b.Current, err = a.ReadFloat(ctx, "ibus")
	return
}

// Errors implements Axis.
func (a *ASCII) Errors(ctx context.Context) (w ErrorWords, err error) {
	var v uint64
	if v, err = a.ReadUint(ctx, a.axis("error")); err != nil {
		return
	}
	w.Axis = uint32(v)
	if w.Motor, err = a.ReadUint(ctx, a.axis("motor.error")); err != nil {
		return
	}
	if v, err = a.ReadUint(ctx, a.axis("encoder.error")); err != nil {
		return
	}
	w.Encoder = uint32(v)
	if v, err = a.ReadUint(ctx, a.axis("controller.error")); err != nil {
		return
	}
	w.Controller = uint32(v)
	return
}

// Configure implements Axis.
func (a *ASCII) Configure(ctx context.Context, limits Limits, mode InputMode) error {
	writes := []struct {
		path  string
		value float32
	}{
		{"controller.config.vel_limit", limits.VelLimit},
		{"controller.config.accel_limit", limits.AccelLimit},
		{"controller.config.decel_limit", limits.DecelLimit},
		{"motor.config.current_lim", limits.MotorCurrentLimit},
		{"controller.config.current_lim", limits.CtrlCurrentLimit},
	}
	for _, w := range writes {
		if w.value == 0 {
			continue
		}
		if err := a.Write(ctx, a.axis(w.path), w.value); err != nil {
			return err
		}
	}
	if err := a.Write(ctx, a.axis("controller.config.control_mode"), uint32(ControlModePosition)); err != nil {
		return err
	}
	return a.Write(ctx, a.axis("controller.config.input_mode"), uint32(mode))
}

func (a *ASCII) clock() clock.Clock {
	if a.Clock == nil {
		return clock.New()
	}
	return a.Clock
}

func formatValue(v interface{}) string {
	switch val := v.(type) {
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}
