package traction

import (
	"flag"
	"time"
)

// Config defines the traction driver configuration.
type Config struct {
	Neutral     uint16
	Deadband    uint16
	ForwardFull uint16
	ReverseFull uint16
	MaxRPM      float32

	Smoothing bool
	Window    int

	ValuesInterval time.Duration
	ValuesMaxAge   time.Duration
	ReplyTimeout   time.Duration
}

// DefaultWindow is the smoothing window size.
const DefaultWindow = 5

var defaultConfig = Config{
	Neutral:     990,
	Deadband:    80,
	ForwardFull: 1700,
	ReverseFull: 350,
	MaxRPM:      7500,

	Smoothing: true,
	Window:    DefaultWindow,

	ValuesInterval: 100 * time.Millisecond,
	ValuesMaxAge:   500 * time.Millisecond,
	ReplyTimeout:   100 * time.Millisecond,
}

// SetupFlags sets command line flags.
func SetupFlags() {
	flag.BoolVar(&defaultConfig.Smoothing, "throttle-smoothing", defaultConfig.Smoothing, "Average the throttle channel over the last samples.")
	flag.DurationVar(&defaultConfig.ValuesInterval, "traction-values-interval", defaultConfig.ValuesInterval, "Interval of traction telemetry requests.")
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

// NewDriver creates a driver over sessions using the config.
func (c *Config) NewDriver(sessions ...*Session) *Driver {
	return NewDriver(*c, sessions...)
}
