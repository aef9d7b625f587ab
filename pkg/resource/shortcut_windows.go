//go:build windows

// pkg/resource/shortcut_windows.go - .lnk creation through WScript.Shell.

package resource

import (
	"fmt"
	"runtime"

	"github.com/go-ole/go-ole"
	"github.com/go-ole/go-ole/oleutil"
)

type wshShortcuts struct{ fs FileSystem }

// NewShortcuts returns the COM backed shortcut writer.
func NewShortcuts() Shortcuts { return wshShortcuts{fs: OSFileSystem{}} }

func (s wshShortcuts) Create(spec ShortcutSpec) (err error) {
	exists, err := s.fs.Exists(spec.Path)
	if err != nil {
		return creationError(KindShortcut, spec.Path, err)
	}
	if exists {
		return creationError(KindShortcut, spec.Path, ErrExists)
	}

	// COM apartments are per thread.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if err := ole.CoInitializeEx(0, ole.COINIT_APARTMENTTHREADED|ole.COINIT_SPEED_OVER_MEMORY); err != nil {
		oleErr, ok := err.(*ole.OleError)
		// S_FALSE: already initialized on this thread.
		if !ok || oleErr.Code() != 1 {
			return creationError(KindShortcut, spec.Path, fmt.Errorf("CoInitializeEx: %w", err))
		}
	}
	defer ole.CoUninitialize()

	unknown, err := oleutil.CreateObject("WScript.Shell")
	if err != nil {
		return creationError(KindShortcut, spec.Path, fmt.Errorf("creating WScript.Shell: %w", err))
	}
	defer unknown.Release()

	shell, err := unknown.QueryInterface(ole.IID_IDispatch)
	if err != nil {
		return creationError(KindShortcut, spec.Path, err)
	}
	defer shell.Release()

	cs, err := oleutil.CallMethod(shell, "CreateShortcut", spec.Path)
	if err != nil {
		return creationError(KindShortcut, spec.Path, err)
	}
	link := cs.ToIDispatch()
	defer link.Release()

	props := []struct {
		name, value string
	}{
		{"TargetPath", spec.Target},
		{"Arguments", spec.Arguments},
		{"WorkingDirectory", spec.WorkingDir},
		{"IconLocation", spec.IconPath},
		{"Description", spec.Description},
	}
	for _, p := range props {
		if p.value == "" {
			continue
		}
		if _, err := oleutil.PutProperty(link, p.name, p.value); err != nil {
			return creationError(KindShortcut, spec.Path, fmt.Errorf("setting %s: %w", p.name, err))
		}
	}
	if _, err := oleutil.CallMethod(link, "Save"); err != nil {
		s.fs.RemoveFile(spec.Path)
		return creationError(KindShortcut, spec.Path, fmt.Errorf("saving shortcut: %w", err))
	}
	return nil
}

func (s wshShortcuts) Remove(path string) error {
	return s.fs.RemoveFile(path)
}
