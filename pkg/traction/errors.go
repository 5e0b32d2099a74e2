package traction

import (
	"fmt"

	"github.com/evt-autonomy/vehicle.go/pkg/l0/vesc"
)

// FaultError is a fault code reported by a controller.
type FaultError struct {
	Session string
	Code    vesc.FaultCode
}

func (e *FaultError) Error() string {
	return fmt.Sprintf("traction %s fault %d: %s", e.Session, uint8(e.Code), e.Code)
}
