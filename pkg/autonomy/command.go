// Package autonomy receives steering/throttle commands from the
// autonomy host as CSV datagrams.
package autonomy

import (
	"errors"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/golang/glog"

	fx "github.com/evt-autonomy/vehicle.go/pkg/framework"
	"github.com/evt-autonomy/vehicle.go/pkg/netio"
)

// DefaultStaleAfter is how old a command may be before it's ignored.
const DefaultStaleAfter = 200 * time.Millisecond

var (
	// ErrTooFewTokens indicates a datagram with fewer than 3 fields.
	ErrTooFewTokens = errors.New("autonomy: too few tokens")
	// ErrBadToken indicates a field that doesn't parse.
	ErrBadToken = errors.New("autonomy: bad token")
)

// Command is a parsed datagram.
type Command struct {
	Steering    float32 // absolute target, turns
	ThrottlePct float32 // [-100, 100]
	Emergency   bool
	ReceivedAt  time.Time
}

// Fresh reports whether the command is not older than maxAge at now.
func (c Command) Fresh(now time.Time, maxAge time.Duration) bool {
	return !c.ReceivedAt.IsZero() && now.Sub(c.ReceivedAt) <= maxAge
}

// Parse parses "steering,throttle,emergency". Extra fields are ignored.
func Parse(data []byte, at time.Time) (Command, error) {
	tokens := strings.Split(strings.TrimSpace(string(data)), ",")
	if len(tokens) < 3 {
		return Command{}, ErrTooFewTokens
	}
	steering, err := parseFloat(tokens[0])
	if err != nil {
		return Command{}, err
	}
	throttle, err := parseFloat(tokens[1])
	if err != nil {
		return Command{}, err
	}
	emergency, err := strconv.Atoi(strings.TrimSpace(tokens[2]))
	if err != nil {
		return Command{}, ErrBadToken
	}
	if throttle > 100 {
		throttle = 100
	} else if throttle < -100 {
		throttle = -100
	}
	return Command{
		Steering:    steering,
		ThrottlePct: throttle,
		Emergency:   emergency != 0,
		ReceivedAt:  at,
	}, nil
}

func parseFloat(s string) (float32, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 32)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, ErrBadToken
	}
	return float32(v), nil
}

// Format formats a command as a datagram.
func Format(c Command) []byte {
	emergency := "0"
	if c.Emergency {
		emergency = "1"
	}
	return []byte(strconv.FormatFloat(float64(c.Steering), 'f', -1, 32) + "," +
		strconv.FormatFloat(float64(c.ThrottlePct), 'f', -1, 32) + "," + emergency)
}

// DatagramSource returns at most one datagram without blocking.
type DatagramSource interface {
	Recv() (netio.Datagram, bool)
}

// Receiver keeps the latest valid command. It checks for one datagram
// per iteration.
type Receiver struct {
	Source DatagramSource

	latest  Command
	have    bool
	invalid uint64
}

// NewReceiver creates a Receiver.
func NewReceiver(src DatagramSource) *Receiver {
	return &Receiver{Source: src}
}

// Poll checks for a datagram and parses it.
func (r *Receiver) Poll() (Command, bool) {
	d, ok := r.Source.Recv()
	if !ok {
		return Command{}, false
	}
	cmd, err := Parse(d.Data, d.At)
	if err != nil {
		r.invalid++
		glog.Warningf("autonomy datagram from %v dropped: %v (%q)", d.From, err, d.Data)
		return Command{}, false
	}
	r.latest, r.have = cmd, true
	return cmd, true
}

// Latest returns the last valid command.
func (r *Receiver) Latest() (Command, bool) {
	return r.latest, r.have
}

// Invalid is the number of dropped datagrams.
func (r *Receiver) Invalid() uint64 {
	return r.invalid
}

// Control implements framework.Controller.
func (r *Receiver) Control(cc fx.ControlContext) error {
	r.Poll()
	return nil
}
