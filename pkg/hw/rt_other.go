//go:build !linux

package hw

import "errors"

// LockMemory is only supported on Linux.
func LockMemory() error {
	return errors.New("mlockall: not supported on this platform")
}
