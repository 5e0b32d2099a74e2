package steering

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/evt-autonomy/vehicle.go/pkg/l0/odrive"
)

// steppingClock advances the mock clock on Sleep so blocking waits
// return immediately.
type steppingClock struct {
	*clock.Mock
}

func (c steppingClock) Sleep(d time.Duration) {
	c.Add(d)
}

type fakeAxis struct {
	lock sync.Mutex

	state           odrive.AxisState
	undefinedFor    int
	closedLoopAfter int
	clAttempts      int

	pos   float32
	vel   float32
	bus   odrive.Bus
	words odrive.ErrorWords

	// current returns the bus current for a commanded position
	current func(pos float32) float32

	requested  []odrive.AxisState
	cleared    int
	targets    []float32
	limits     odrive.Limits
	inputMode  odrive.InputMode
	configured bool
	estimates  int
}

func newFakeAxis() *fakeAxis {
	return &fakeAxis{
		state:           odrive.AxisStateIdle,
		closedLoopAfter: 1,
		bus:             odrive.Bus{Voltage: 24, Current: 0.5},
		current: func(pos float32) float32 {
			// mechanical stops for the sweep strategy
			if pos > 1.6 || pos < -2.6 {
				return 15
			}
			return 0.5
		},
	}
}

func (a *fakeAxis) State(ctx context.Context) (odrive.AxisState, error) {
	a.lock.Lock()
	defer a.lock.Unlock()
	if a.undefinedFor != 0 {
		if a.undefinedFor > 0 {
			a.undefinedFor--
		}
		return odrive.AxisStateUndefined, nil
	}
	return a.state, nil
}

func (a *fakeAxis) RequestState(ctx context.Context, state odrive.AxisState) error {
	a.lock.Lock()
	defer a.lock.Unlock()
	a.requested = append(a.requested, state)
	if state != odrive.AxisStateClosedLoopControl {
		a.state = odrive.AxisStateIdle
		return nil
	}
	a.clAttempts++
	if a.closedLoopAfter > 0 && a.clAttempts >= a.closedLoopAfter {
		a.state = state
	}
	return nil
}

func (a *fakeAxis) ClearErrors(ctx context.Context) error {
	a.lock.Lock()
	defer a.lock.Unlock()
	a.cleared++
	a.words = odrive.ErrorWords{}
	return nil
}

func (a *fakeAxis) SetInputPos(ctx context.Context, pos, velFF, torqueFF float32) error {
	a.lock.Lock()
	defer a.lock.Unlock()
	a.targets = append(a.targets, pos)
	a.pos = pos
	return nil
}

func (a *fakeAxis) Estimates(ctx context.Context) (odrive.Estimates, error) {
	a.lock.Lock()
	defer a.lock.Unlock()
	a.estimates++
	return odrive.Estimates{Pos: a.pos, Vel: a.vel}, nil
}

func (a *fakeAxis) Bus(ctx context.Context) (odrive.Bus, error) {
	a.lock.Lock()
	defer a.lock.Unlock()
	b := a.bus
	if a.current != nil {
		b.Current = a.current(a.pos)
	}
	return b, nil
}

func (a *fakeAxis) Errors(ctx context.Context) (odrive.ErrorWords, error) {
	a.lock.Lock()
	defer a.lock.Unlock()
	return a.words, nil
}

func (a *fakeAxis) Configure(ctx context.Context, limits odrive.Limits, mode odrive.InputMode) error {
	a.lock.Lock()
	defer a.lock.Unlock()
	a.limits, a.inputMode, a.configured = limits, mode, true
	return nil
}

func (a *fakeAxis) estimateCalls() int {
	a.lock.Lock()
	defer a.lock.Unlock()
	return a.estimates
}

func (a *fakeAxis) lastTarget() float32 {
	a.lock.Lock()
	defer a.lock.Unlock()
	if len(a.targets) == 0 {
		return 0
	}
	return a.targets[len(a.targets)-1]
}

func newTestDriver(axis *fakeAxis) (*Driver, *clock.Mock) {
	mock := clock.NewMock()
	d := NewDriver(axis, *NewConfig())
	d.Clock = steppingClock{mock}
	return d, mock
}
