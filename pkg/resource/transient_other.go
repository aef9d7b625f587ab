//go:build !windows

package resource

import (
	"errors"
	"syscall"
)

// IsTransient reports whether a removal failure is worth retrying.
func IsTransient(err error) bool {
	return errors.Is(err, syscall.EBUSY) || errors.Is(err, syscall.EAGAIN)
}
