//go:build !windows

package resource

type unsupportedShortcuts struct{ fs FileSystem }

// NewShortcuts returns a writer that can remove but not create shortcuts off Windows.
func NewShortcuts() Shortcuts { return unsupportedShortcuts{fs: OSFileSystem{}} }

func (unsupportedShortcuts) Create(spec ShortcutSpec) error {
	return creationError(KindShortcut, spec.Path, ErrUnsupported)
}

func (s unsupportedShortcuts) Remove(path string) error {
	return s.fs.RemoveFile(path)
}
