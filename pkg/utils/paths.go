// pkg/utils/paths.go - utility functions for working with file paths.

package utils

import (
	"fmt"
	"path/filepath"
	"strings"
)

// NormalizeWindowsPath converts forward slashes to backslashes and collapses
// repeated separators. Unlike a filesystem clean it keeps relative paths relative.
func NormalizeWindowsPath(path string) string {
	normalized := strings.ReplaceAll(path, "/", `\`)
	for strings.Contains(normalized, `\\`) {
		normalized = strings.ReplaceAll(normalized, `\\`, `\`)
	}
	return normalized
}

// SafeJoin joins a package-relative name onto root. Names that are absolute,
// carry a volume, or climb out of root with ".." are rejected.
func SafeJoin(root, name string) (string, error) {
	rel := NormalizeWindowsPath(name)
	if rel == "" || strings.HasPrefix(rel, `\`) || strings.Contains(rel, ":") {
		return "", fmt.Errorf("entry name %q is not a relative path", name)
	}
	for _, part := range strings.Split(rel, `\`) {
		if part == ".." {
			return "", fmt.Errorf("entry name %q escapes the install root", name)
		}
	}
	return filepath.Join(root, filepath.FromSlash(strings.ReplaceAll(rel, `\`, "/"))), nil
}

// Ancestors returns the directories between root (exclusive) and path
// (exclusive), outermost first. path must be inside root.
func Ancestors(root, path string) []string {
	root = filepath.Clean(root)
	var dirs []string
	for dir := filepath.Dir(filepath.Clean(path)); dir != root && len(dir) > len(root); dir = filepath.Dir(dir) {
		dirs = append(dirs, dir)
	}
	for i, j := 0, len(dirs)-1; i < j; i, j = i+1, j-1 {
		dirs[i], dirs[j] = dirs[j], dirs[i]
	}
	return dirs
}

// PathLevels returns every ancestor of an absolute path, shortest first,
// ending with path itself. The volume or filesystem root is not included.
func PathLevels(path string) []string {
	path = filepath.Clean(path)
	var levels []string
	for dir := path; ; dir = filepath.Dir(dir) {
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		levels = append(levels, dir)
	}
	for i, j := 0, len(levels)-1; i < j; i, j = i+1, j-1 {
		levels[i], levels[j] = levels[j], levels[i]
	}
	return levels
}
