// pkg/resource/resource.go - primitive writers for files, directories, registry entries and shortcuts.
//
// Writers are stateless. They report exactly what they created and never
// adopt a resource that existed before the call; recording the result is the
// caller's job.

package resource

import (
	"errors"
	"fmt"
)

// Kind names the type of resource a writer manages.
type Kind string

const (
	KindFile          Kind = "file"
	KindDirectory     Kind = "directory"
	KindRegistryKey   Kind = "registry key"
	KindRegistryValue Kind = "registry value"
	KindShortcut      Kind = "shortcut"
)

var (
	// ErrExists is returned when a creation target is already present.
	ErrExists = errors.New("resource already exists")
	// ErrNotEmpty is returned when removing a directory or key that still has children.
	ErrNotEmpty = errors.New("resource is not empty")
	// ErrUnsupported is returned by writers that cannot work on this platform.
	ErrUnsupported = errors.New("operation not supported on this platform")
)

// ResourceCreationError reports a failed creation.
type ResourceCreationError struct {
	Kind   Kind
	Target string
	Err    error
}

func (e *ResourceCreationError) Error() string {
	return fmt.Sprintf("creating %s %s: %v", e.Kind, e.Target, e.Err)
}

func (e *ResourceCreationError) Unwrap() error { return e.Err }

func creationError(kind Kind, target string, err error) error {
	var rce *ResourceCreationError
	if errors.As(err, &rce) {
		return err
	}
	return &ResourceCreationError{Kind: kind, Target: target, Err: err}
}

// RegistryTarget renders hive, key and optional value name as one string.
func RegistryTarget(hive, key, name string) string {
	if name == "" {
		return hive + `\` + key
	}
	return hive + `\` + key + `\` + name
}
