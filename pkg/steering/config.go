package steering

import (
	"flag"
	"time"

	"github.com/evt-autonomy/vehicle.go/pkg/l0/odrive"
)

// ChannelMap holds the breakpoints of the RC steering map.
type ChannelMap struct {
	Low      uint16 // full left
	DeadLow  uint16
	DeadHigh uint16
	High     uint16 // full right
}

// Config defines the steering driver configuration.
type Config struct {
	DiscoveryTimeout  time.Duration
	DiscoveryPoll     time.Duration
	PhaseWait         time.Duration
	ClosedLoopTimeout time.Duration
	ClosedLoopPoll    time.Duration

	// Safe stops in turns, used by the fixed strategy.
	MinStop float32
	MaxStop float32

	Map       ChannelMap
	InputMode odrive.InputMode
	Limits    odrive.Limits

	// Mechanical sweep, used by the sweep strategy.
	SweepStep         float32
	SweepInterval     time.Duration
	SweepCurrentLimit float32
	SweepBackOff      float32
	SweepTimeout      time.Duration

	PollInterval   time.Duration
	ErrorPollEvery int
	FeedbackMaxAge time.Duration

	RecalThreshold uint16
}

var defaultConfig = Config{
	DiscoveryTimeout:  15 * time.Second,
	DiscoveryPoll:     100 * time.Millisecond,
	PhaseWait:         4 * time.Second,
	ClosedLoopTimeout: 5 * time.Second,
	ClosedLoopPoll:    100 * time.Millisecond,

	MinStop: -2.33,
	MaxStop: 1.00,

	Map:       ChannelMap{Low: 410, DeadLow: 1200, DeadHigh: 1260, High: 1811},
	InputMode: odrive.InputModePassthrough,
	Limits: odrive.Limits{
		VelLimit:          30,
		AccelLimit:        25,
		DecelLimit:        50,
		MotorCurrentLimit: 80,
		CtrlCurrentLimit:  90,
	},

	SweepStep:         0.25,
	SweepInterval:     200 * time.Millisecond,
	SweepCurrentLimit: 10,
	SweepBackOff:      0.05,
	SweepTimeout:      8 * time.Second,

	PollInterval:   20 * time.Millisecond,
	ErrorPollEvery: 5,
	FeedbackMaxAge: 100 * time.Millisecond,

	RecalThreshold: 1500,
}

// SetupFlags sets command line flags.
func SetupFlags() {
	flag.DurationVar(&defaultConfig.DiscoveryTimeout, "steering-discovery-timeout", defaultConfig.DiscoveryTimeout, "Wait for the steering controller to leave the undefined state.")
	flag.Var((*float32Value)(&defaultConfig.MinStop), "steering-min-stop", "Steering safe stop, minimum turns.")
	flag.Var((*float32Value)(&defaultConfig.MaxStop), "steering-max-stop", "Steering safe stop, maximum turns.")
	flag.Var((*inputModeValue)(&defaultConfig.InputMode), "steering-input-mode", "Steering input mode: 1 passthrough, 3 position filter, 5 trapezoidal trajectory.")
}

// Default gets default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a config with defaults.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

// NewDriver creates a driver on an axis using the config.
func (c *Config) NewDriver(axis odrive.Axis) *Driver {
	return NewDriver(axis, *c)
}
