// Package resourcetest provides in-memory and fault-injecting resource writers for tests.
package resourcetest

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/windowsadmins/msixinstaller/pkg/resource"
)

type regKey struct {
	values map[string]string
}

// Registry is an in-memory resource.Registry. Keys are case-insensitive like
// the real registry.
type Registry struct {
	mu   sync.Mutex
	keys map[string]*regKey

	// FailSet makes SetString/SetDWord fail for value names listed here.
	FailSet map[string]error
	// FailDelete makes DeleteValue/DeleteKey fail for targets listed here
	// (RegistryTarget form).
	FailDelete map[string]error
}

var _ resource.Registry = (*Registry)(nil)

// NewRegistry returns an empty registry with the usual top-level keys present.
func NewRegistry() *Registry {
	r := &Registry{keys: map[string]*regKey{}}
	for _, hive := range []string{"HKLM", "HKCU"} {
		for _, k := range resource.KeyLevels(`Software\Microsoft\Windows\CurrentVersion\Uninstall`) {
			r.keys[norm(hive, k)] = &regKey{values: map[string]string{}}
		}
		r.keys[norm(hive, `Software\Classes`)] = &regKey{values: map[string]string{}}
	}
	return r
}

func norm(hive, key string) string {
	return strings.ToLower(hive + `\` + strings.Trim(key, `\`))
}

func parent(key string) string {
	i := strings.LastIndex(key, `\`)
	if i < 0 {
		return ""
	}
	return key[:i]
}

func (r *Registry) CreateKey(hive, key string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.keys[norm(hive, key)]; ok {
		return false, nil
	}
	if p := parent(strings.Trim(key, `\`)); p != "" {
		if _, ok := r.keys[norm(hive, p)]; !ok {
			return false, &resource.ResourceCreationError{Kind: resource.KindRegistryKey, Target: resource.RegistryTarget(hive, key, ""), Err: fmt.Errorf("parent key missing")}
		}
	}
	r.keys[norm(hive, key)] = &regKey{values: map[string]string{}}
	return true, nil
}

func (r *Registry) KeyExists(hive, key string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.keys[norm(hive, key)]
	return ok, nil
}

func (r *Registry) ValueExists(hive, key, name string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k, ok := r.keys[norm(hive, key)]
	if !ok {
		return false, nil
	}
	_, ok = k.values[strings.ToLower(name)]
	return ok, nil
}

func (r *Registry) set(hive, key, name, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	target := resource.RegistryTarget(hive, key, name)
	if err, ok := r.FailSet[name]; ok {
		return &resource.ResourceCreationError{Kind: resource.KindRegistryValue, Target: target, Err: err}
	}
	k, ok := r.keys[norm(hive, key)]
	if !ok {
		return &resource.ResourceCreationError{Kind: resource.KindRegistryValue, Target: target, Err: fmt.Errorf("key missing")}
	}
	k.values[strings.ToLower(name)] = value
	return nil
}

func (r *Registry) SetString(hive, key, name, value string) error {
	return r.set(hive, key, name, value)
}

func (r *Registry) SetDWord(hive, key, name string, value uint32) error {
	return r.set(hive, key, name, fmt.Sprintf("dword:%08x", value))
}

func (r *Registry) DeleteValue(hive, key, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err, ok := r.FailDelete[resource.RegistryTarget(hive, key, name)]; ok {
		return err
	}
	if k, ok := r.keys[norm(hive, key)]; ok {
		delete(k.values, strings.ToLower(name))
	}
	return nil
}

func (r *Registry) DeleteKey(hive, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err, ok := r.FailDelete[resource.RegistryTarget(hive, key, "")]; ok {
		return err
	}
	id := norm(hive, key)
	k, ok := r.keys[id]
	if !ok {
		return nil
	}
	if len(k.values) > 0 {
		return fmt.Errorf("%s: %w", id, resource.ErrNotEmpty)
	}
	for other := range r.keys {
		if strings.HasPrefix(other, id+`\`) {
			return fmt.Errorf("%s: %w", id, resource.ErrNotEmpty)
		}
	}
	delete(r.keys, id)
	return nil
}

// Value returns a stored value and whether it exists.
func (r *Registry) Value(hive, key, name string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k, ok := r.keys[norm(hive, key)]
	if !ok {
		return "", false
	}
	v, ok := k.values[strings.ToLower(name)]
	return v, ok
}

// Keys lists every key under prefix, sorted.
func (r *Registry) Keys(hive, prefix string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := norm(hive, prefix)
	var out []string
	for k := range r.keys {
		if k == p || strings.HasPrefix(k, p+`\`) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// Shortcuts writes a small text file in place of a real .lnk so tests can
// observe creation and removal on disk.
type Shortcuts struct {
	FS resource.FileSystem
	// Fail makes Create fail with this error when set.
	Fail error

	mu      sync.Mutex
	Created []resource.ShortcutSpec
}

var _ resource.Shortcuts = (*Shortcuts)(nil)

func (s *Shortcuts) fs() resource.FileSystem {
	if s.FS == nil {
		return resource.OSFileSystem{}
	}
	return s.FS
}

func (s *Shortcuts) Create(spec resource.ShortcutSpec) error {
	if s.Fail != nil {
		return &resource.ResourceCreationError{Kind: resource.KindShortcut, Target: spec.Path, Err: s.Fail}
	}
	body := fmt.Sprintf("target=%s\nargs=%s\n", spec.Target, spec.Arguments)
	if _, err := s.fs().WriteFile(spec.Path, strings.NewReader(body)); err != nil {
		return err
	}
	s.mu.Lock()
	s.Created = append(s.Created, spec)
	s.mu.Unlock()
	return nil
}

func (s *Shortcuts) Remove(path string) error {
	return s.fs().RemoveFile(path)
}

// FaultFS wraps a FileSystem and injects failures.
type FaultFS struct {
	resource.FileSystem

	mu sync.Mutex
	// FailWriteAt fails the Nth WriteFile call (1-based) when non-zero.
	FailWriteAt int
	// WriteErrors fails WriteFile for specific paths.
	WriteErrors map[string]error
	// RemoveErrors fails RemoveFile/RemoveDir for specific paths.
	RemoveErrors map[string]error
	// RemoveFailures limits how many times each RemoveErrors entry fires; 0 means always.
	RemoveFailures int

	writes       int
	removeCounts map[string]int
	// Removed records every removal attempt in call order.
	Removed []string
}

var _ resource.FileSystem = (*FaultFS)(nil)

// NewFaultFS wraps the real filesystem.
func NewFaultFS() *FaultFS {
	return &FaultFS{FileSystem: resource.OSFileSystem{}}
}

func (f *FaultFS) WriteFile(path string, r io.Reader) (resource.FileResult, error) {
	f.mu.Lock()
	f.writes++
	n := f.writes
	err, ok := f.WriteErrors[path]
	f.mu.Unlock()

	if f.FailWriteAt != 0 && n == f.FailWriteAt {
		return resource.FileResult{}, &resource.ResourceCreationError{Kind: resource.KindFile, Target: path, Err: fmt.Errorf("injected write failure")}
	}
	if ok {
		return resource.FileResult{}, &resource.ResourceCreationError{Kind: resource.KindFile, Target: path, Err: err}
	}
	return f.FileSystem.WriteFile(path, r)
}

func (f *FaultFS) removeFault(path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Removed = append(f.Removed, path)
	err, ok := f.RemoveErrors[path]
	if !ok {
		return nil
	}
	if f.removeCounts == nil {
		f.removeCounts = map[string]int{}
	}
	f.removeCounts[path]++
	if f.RemoveFailures > 0 && f.removeCounts[path] > f.RemoveFailures {
		return nil
	}
	return err
}

func (f *FaultFS) RemoveFile(path string) error {
	if err := f.removeFault(path); err != nil {
		return err
	}
	return f.FileSystem.RemoveFile(path)
}

func (f *FaultFS) RemoveDir(path string) error {
	if err := f.removeFault(path); err != nil {
		return err
	}
	return f.FileSystem.RemoveDir(path)
}

// Writers returns resource.Writers over a real temp filesystem, an in-memory
// registry and file-backed shortcuts.
func Writers(fs resource.FileSystem) (resource.Writers, *Registry, *Shortcuts) {
	if fs == nil {
		fs = resource.OSFileSystem{}
	}
	reg := NewRegistry()
	sc := &Shortcuts{FS: fs}
	return resource.Writers{FS: fs, Registry: reg, Shortcuts: sc}, reg, sc
}

// Exists is a convenience for assertions.
func Exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}
