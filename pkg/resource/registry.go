// pkg/resource/registry.go - registry primitives.

package resource

import "strings"

// Registry is the set of registry primitives the installer relies on.
// Hives are "HKLM" or "HKCU"; keys are relative to the hive.
type Registry interface {
	// CreateKey creates a single key level. created is false when it already existed.
	CreateKey(hive, key string) (created bool, err error)
	// KeyExists reports whether a key exists.
	KeyExists(hive, key string) (bool, error)
	// ValueExists reports whether a named value exists under key.
	ValueExists(hive, key, name string) (bool, error)
	// SetString writes a REG_SZ value.
	SetString(hive, key, name, value string) error
	// SetDWord writes a REG_DWORD value.
	SetDWord(hive, key, name string, value uint32) error
	// DeleteValue removes one value. A missing key or value is not an error.
	DeleteValue(hive, key, name string) error
	// DeleteKey removes an empty key. Missing is not an error, a key with
	// values or subkeys is ErrNotEmpty.
	DeleteKey(hive, key string) error
}

// KeyLevels returns every ancestor of key, shortest first, ending with key itself.
func KeyLevels(key string) []string {
	parts := strings.Split(strings.Trim(key, `\`), `\`)
	levels := make([]string, 0, len(parts))
	for i := range parts {
		if parts[i] == "" {
			continue
		}
		levels = append(levels, strings.Join(parts[:i+1], `\`))
	}
	return levels
}
