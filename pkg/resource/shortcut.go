// pkg/resource/shortcut.go - shell shortcut primitives.

package resource

// ShortcutSpec describes a .lnk file.
type ShortcutSpec struct {
	Path        string
	Target      string
	Arguments   string
	WorkingDir  string
	IconPath    string
	Description string
}

// Shortcuts creates and removes shell shortcuts.
type Shortcuts interface {
	// Create writes the shortcut. It fails with ErrExists if Path exists.
	Create(spec ShortcutSpec) error
	// Remove deletes the shortcut file. A missing file is not an error.
	Remove(path string) error
}

// Writers bundles the primitives one transaction uses.
type Writers struct {
	FS        FileSystem
	Registry  Registry
	Shortcuts Shortcuts
}

// NewWriters returns the platform writers.
func NewWriters() Writers {
	return Writers{
		FS:        OSFileSystem{},
		Registry:  NewRegistry(),
		Shortcuts: NewShortcuts(),
	}
}
