//go:build windows

package resource

import (
	"errors"

	"golang.org/x/sys/windows"
)

// IsTransient reports whether a removal failure is worth retrying, which on
// Windows means another process briefly holds the file open.
func IsTransient(err error) bool {
	return errors.Is(err, windows.ERROR_SHARING_VIOLATION) ||
		errors.Is(err, windows.ERROR_LOCK_VIOLATION) ||
		errors.Is(err, windows.ERROR_ACCESS_DENIED)
}
