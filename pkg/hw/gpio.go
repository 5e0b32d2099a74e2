package hw

import (
	"sort"
	"sync"

	"github.com/golang/glog"
	"github.com/pkg/errors"
	"github.com/warthog618/go-gpiocdev"
	"go.uber.org/multierr"
)

// Output names.
const (
	RelaySteering  = "steering_power"
	RelayTraction  = "traction_power"
	RelayContactor = "main_contactor"
	LEDStatus      = "status_led"
)

// LineSpec locates a GPIO line.
type LineSpec struct {
	Chip      string `json:"chip"`
	Offset    int    `json:"offset"`
	ActiveLow bool   `json:"active_low"`
}

// DefaultOutputs maps the relay board and the LED on the carrier.
var DefaultOutputs = map[string]LineSpec{
	RelaySteering:  {Chip: "gpiochip0", Offset: 17},
	RelayTraction:  {Chip: "gpiochip0", Offset: 27},
	RelayContactor: {Chip: "gpiochip0", Offset: 22},
	LEDStatus:      {Chip: "gpiochip0", Offset: 23},
}

// Lines drives named digital outputs. All outputs start low.
type Lines struct {
	lock  sync.Mutex
	lines map[string]*gpiocdev.Line
	state map[string]bool
}

// OpenLines requests every mapped line as an output.
func OpenLines(mappings map[string]LineSpec, consumer string) (*Lines, error) {
	l := &Lines{
		lines: make(map[string]*gpiocdev.Line),
		state: make(map[string]bool),
	}
	names := make([]string, 0, len(mappings))
	for name := range mappings {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		spec := mappings[name]
		opts := []gpiocdev.LineReqOption{gpiocdev.AsOutput(0), gpiocdev.WithConsumer(consumer)}
		if spec.ActiveLow {
			opts = append(opts, gpiocdev.AsActiveLow)
		}
		line, err := gpiocdev.RequestLine(spec.Chip, spec.Offset, opts...)
		if err != nil {
			l.Close()
			return nil, errors.Wrapf(err, "request %s (%s:%d)", name, spec.Chip, spec.Offset)
		}
		l.lines[name] = line
		glog.Infof("output %s on %s:%d", name, spec.Chip, spec.Offset)
	}
	return l, nil
}

// Set drives an output.
func (l *Lines) Set(name string, on bool) error {
	l.lock.Lock()
	defer l.lock.Unlock()
	line, ok := l.lines[name]
	if !ok {
		return errors.Errorf("unknown output %s", name)
	}
	if cur, ok := l.state[name]; ok && cur == on {
		return nil
	}
	val := 0
	if on {
		val = 1
	}
	if err := line.SetValue(val); err != nil {
		return errors.Wrapf(err, "set %s", name)
	}
	l.state[name] = on
	return nil
}

// SetRelays drives the three power relays together.
func (l *Lines) SetRelays(on bool) error {
	return multierr.Combine(
		l.Set(RelaySteering, on),
		l.Set(RelayTraction, on),
		l.Set(RelayContactor, on),
	)
}

// SetLED drives the status LED.
func (l *Lines) SetLED(on bool) error {
	return l.Set(LEDStatus, on)
}

// Close drives everything low and releases the lines.
func (l *Lines) Close() (err error) {
	l.lock.Lock()
	defer l.lock.Unlock()
	for name, line := range l.lines {
		err = multierr.Append(err, line.SetValue(0))
		err = multierr.Append(err, line.Close())
		delete(l.lines, name)
	}
	return err
}

// MemLines keeps outputs in memory, for benches without relays.
type MemLines struct {
	lock  sync.Mutex
	state map[string]bool
}

// NewMemLines creates MemLines with all outputs low.
func NewMemLines() *MemLines {
	return &MemLines{state: make(map[string]bool)}
}

// Get returns the state of an output.
func (m *MemLines) Get(name string) bool {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.state[name]
}

// SetRelays implements the relay output set.
func (m *MemLines) SetRelays(on bool) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	for _, name := range []string{RelaySteering, RelayTraction, RelayContactor} {
		if m.state[name] != on {
			glog.V(2).Infof("output %s=%v", name, on)
		}
		m.state[name] = on
	}
	return nil
}

// SetLED implements the status LED output.
func (m *MemLines) SetLED(on bool) error {
	m.lock.Lock()
	m.state[LEDStatus] = on
	m.lock.Unlock()
	return nil
}

// Close implements io.Closer.
func (m *MemLines) Close() error {
	return nil
}
