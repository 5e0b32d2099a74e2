package steering

import (
	"strconv"

	"github.com/evt-autonomy/vehicle.go/pkg/l0/odrive"
)

type float32Value float32

func (v *float32Value) String() string {
	return strconv.FormatFloat(float64(*v), 'f', -1, 32)
}

func (v *float32Value) Set(s string) error {
	f, err := strconv.ParseFloat(s, 32)
	if err != nil {
		return err
	}
	*v = float32Value(f)
	return nil
}

type inputModeValue odrive.InputMode

func (v *inputModeValue) String() string {
	return strconv.FormatUint(uint64(*v), 10)
}

func (v *inputModeValue) Set(s string) error {
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return err
	}
	*v = inputModeValue(n)
	return nil
}
