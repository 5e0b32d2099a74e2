package hw

import (
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// LockMemory locks current and future pages so the control loop never
// waits on a page fault.
func LockMemory() error {
	return errors.Wrap(unix.Mlockall(unix.MCL_CURRENT|unix.MCL_FUTURE), "mlockall")
}
