package hw

import (
	"io"

	"github.com/jacobsa/go-serial/serial"
	"github.com/pkg/errors"
)

// Port presets.
const (
	TractionBaud = 115200
	SteeringBaud = 115200
	SBUSBaud     = 100000
)

// PortConfig describes a serial port.
type PortConfig struct {
	Path     string
	Baud     uint
	DataBits uint
	StopBits uint
	Parity   serial.ParityMode
	// InterCharTimeout in ms. Reads return with 0 bytes when the line
	// stays idle this long, so readers can observe cancellation.
	InterCharTimeout uint
}

// TractionPort is 115200 8N1.
func TractionPort(path string) PortConfig {
	return PortConfig{Path: path, Baud: TractionBaud, DataBits: 8, StopBits: 1, InterCharTimeout: 100}
}

// SteeringPort is 115200 8N1.
func SteeringPort(path string) PortConfig {
	return PortConfig{Path: path, Baud: SteeringBaud, DataBits: 8, StopBits: 1, InterCharTimeout: 100}
}

// SBUSPort is 100000 8E2. The signal must already be non-inverted.
func SBUSPort(path string) PortConfig {
	return PortConfig{
		Path:             path,
		Baud:             SBUSBaud,
		DataBits:         8,
		StopBits:         2,
		Parity:           serial.PARITY_EVEN,
		InterCharTimeout: 100,
	}
}

// Options converts to go-serial options.
func (c PortConfig) Options() serial.OpenOptions {
	opts := serial.OpenOptions{
		PortName:              c.Path,
		BaudRate:              c.Baud,
		DataBits:              c.DataBits,
		StopBits:              c.StopBits,
		ParityMode:            c.Parity,
		InterCharacterTimeout: c.InterCharTimeout,
	}
	if c.InterCharTimeout == 0 {
		opts.MinimumReadSize = 1
	}
	return opts
}

// OpenSerial opens a serial port.
func OpenSerial(c PortConfig) (io.ReadWriteCloser, error) {
	port, err := serial.Open(c.Options())
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", c.Path)
	}
	return port, nil
}
