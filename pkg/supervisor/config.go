package supervisor

import (
	"flag"
	"time"

	"github.com/evt-autonomy/vehicle.go/pkg/autonomy"
	"github.com/evt-autonomy/vehicle.go/pkg/rc"
)

// Config defines the supervisor thresholds.
type Config struct {
	AutoChannel       int
	AutoThreshold     uint16 // above is on
	CalThreshold      uint16
	ResetThreshold    uint16
	RCStaleAfter      time.Duration
	CommandStaleAfter time.Duration
	CalBlinkPeriod    time.Duration
	ErrorBlinkPeriod  time.Duration
}

var defaultConfig = Config{
	AutoChannel:       rc.ChAuto,
	AutoThreshold:     1000,
	CalThreshold:      400,
	ResetThreshold:    1000,
	RCStaleAfter:      rc.DefaultStaleAfter,
	CommandStaleAfter: autonomy.DefaultStaleAfter,
	CalBlinkPeriod:    500 * time.Millisecond,
	ErrorBlinkPeriod:  200 * time.Millisecond,
}

// SetupFlags sets command line flags.
func SetupFlags() {
	flag.IntVar(&defaultConfig.AutoChannel, "auto-channel", defaultConfig.AutoChannel, "RC channel of the autonomy switch.")
	flag.DurationVar(&defaultConfig.RCStaleAfter, "rc-stale", defaultConfig.RCStaleAfter, "RC frames older than this demote to Idle.")
	flag.DurationVar(&defaultConfig.CommandStaleAfter, "autonomy-stale", defaultConfig.CommandStaleAfter, "Autonomy commands older than this are ignored.")
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
