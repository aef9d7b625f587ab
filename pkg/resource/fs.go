// pkg/resource/fs.go - filesystem primitives.

package resource

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// FileResult describes a file that now exists.
type FileResult struct {
	Path   string
	Size   int64
	SHA256 string
}

// FileSystem is the set of filesystem primitives the installer relies on.
type FileSystem interface {
	// WriteFile creates path from r. It fails with ErrExists if path exists.
	WriteFile(path string, r io.Reader) (FileResult, error)
	// CreateDir creates a single directory level. created is false when it already existed.
	CreateDir(path string) (created bool, err error)
	// RemoveFile deletes a file. A missing file is not an error.
	RemoveFile(path string) error
	// RemoveDir deletes an empty directory. Missing is not an error, non-empty is ErrNotEmpty.
	RemoveDir(path string) error
	// Exists reports whether path exists.
	Exists(path string) (bool, error)
}

// OSFileSystem implements FileSystem on the real filesystem.
type OSFileSystem struct{}

var _ FileSystem = OSFileSystem{}

// WriteFile streams r into a temp sibling and renames it into place, so a
// failed write never leaves a truncated target behind.
func (OSFileSystem) WriteFile(path string, r io.Reader) (FileResult, error) {
	if _, err := os.Lstat(path); err == nil {
		return FileResult{}, creationError(KindFile, path, ErrExists)
	} else if !errors.Is(err, os.ErrNotExist) {
		return FileResult{}, creationError(KindFile, path, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.partial")
	if err != nil {
		return FileResult{}, creationError(KindFile, path, err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}

	h := sha256.New()
	n, err := io.Copy(io.MultiWriter(tmp, h), r)
	if err != nil {
		cleanup()
		return FileResult{}, creationError(KindFile, path, fmt.Errorf("writing contents: %w", err))
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return FileResult{}, creationError(KindFile, path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return FileResult{}, creationError(KindFile, path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return FileResult{}, creationError(KindFile, path, err)
	}

	return FileResult{Path: path, Size: n, SHA256: hex.EncodeToString(h.Sum(nil))}, nil
}

func (OSFileSystem) CreateDir(path string) (bool, error) {
	err := os.Mkdir(path, 0755)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrExist) {
		info, statErr := os.Stat(path)
		if statErr == nil && info.IsDir() {
			return false, nil
		}
		return false, creationError(KindDirectory, path, fmt.Errorf("path exists and is not a directory"))
	}
	return false, creationError(KindDirectory, path, err)
}

func (OSFileSystem) RemoveFile(path string) error {
	err := os.Remove(path)
	if err == nil || errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func (OSFileSystem) RemoveDir(path string) error {
	entries, err := os.ReadDir(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(entries) > 0 {
		return fmt.Errorf("%s: %w", path, ErrNotEmpty)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (OSFileSystem) Exists(path string) (bool, error) {
	_, err := os.Lstat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}
