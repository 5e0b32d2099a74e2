// Package rc provides the RC channel snapshot taken once per control
// iteration from the radio receiver.
package rc

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	fx "github.com/evt-autonomy/vehicle.go/pkg/framework"
	"github.com/evt-autonomy/vehicle.go/pkg/l0/sbus"
)

// NumChannels is the number of channels exposed.
const NumChannels = 10

// Channel layout.
const (
	ChThrottle    = 1
	ChSteering    = 3
	ChReset       = 4
	ChCalibration = 5
	// ChAuto is the default autonomy enable channel, some radios use 6.
	ChAuto = 7
)

// DefaultStaleAfter is how old a snapshot may be before it's treated
// as absent.
const DefaultStaleAfter = 100 * time.Millisecond

// Snapshot is an immutable copy of the channels.
type Snapshot struct {
	Channels  [NumChannels]uint16
	Failsafe  bool
	LostFrame bool
	At        time.Time
}

// Channel returns channel i, 0 when out of range.
func (s Snapshot) Channel(i int) uint16 {
	if i < 0 || i >= NumChannels {
		return 0
	}
	return s.Channels[i]
}

// Fresh reports whether the snapshot is not older than maxAge at now.
func (s Snapshot) Fresh(now time.Time, maxAge time.Duration) bool {
	return !s.At.IsZero() && now.Sub(s.At) <= maxAge
}

// FromFrame takes the first channels and the flags of a frame.
func FromFrame(f sbus.Frame, at time.Time) Snapshot {
	s := Snapshot{Failsafe: f.Failsafe, LostFrame: f.LostFrame, At: at}
	copy(s.Channels[:], f.Channels[:NumChannels])
	return s
}

// Provider collects frames from the receiver. Poll/Snapshot are used by
// the loop, HandleFrame by the reader goroutine.
type Provider struct {
	Clock clock.Clock

	reader *sbus.Reader

	lock   sync.Mutex
	latest Snapshot
	seq    uint64

	polled  uint64
	current Snapshot
}

// NewProvider creates a Provider reading frames from r. r may be nil
// when frames are injected with HandleFrame.
func NewProvider(r io.Reader) *Provider {
	p := &Provider{Clock: clock.New()}
	if r != nil {
		p.reader = &sbus.Reader{Reader: r, Handler: p}
	}
	return p
}

// HandleFrame implements sbus.Handler.
func (p *Provider) HandleFrame(f sbus.Frame) {
	s := FromFrame(f, p.Clock.Now())
	p.lock.Lock()
	p.latest = s
	p.seq++
	p.lock.Unlock()
}

// Poll takes the newest frame as the current snapshot. It returns true
// once per newly decoded frame.
func (p *Provider) Poll() bool {
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.seq == p.polled {
		return false
	}
	p.polled, p.current = p.seq, p.latest
	return true
}

// Snapshot returns the current snapshot, false before the first frame.
func (p *Provider) Snapshot() (Snapshot, bool) {
	return p.current, !p.current.At.IsZero()
}

// Control implements framework.Controller.
func (p *Provider) Control(cc fx.ControlContext) error {
	p.Poll()
	return nil
}

// Run implements framework.Runnable.
func (p *Provider) Run(ctx context.Context) error {
	if p.reader == nil {
		<-ctx.Done()
		return ctx.Err()
	}
	return p.reader.Run(ctx)
}
