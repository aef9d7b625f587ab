// pkg/ledger/entry.go - ledger entry kinds.

package ledger

import (
	"fmt"
	"strings"
)

// Kind identifies what an entry created.
type Kind string

const (
	KindFileWritten        Kind = "File"
	KindDirectoryCreated   Kind = "Directory"
	KindRegistryKeyCreated Kind = "RegistryKey"
	KindRegistryValueSet   Kind = "RegistryValue"
	KindShortcutCreated    Kind = "Shortcut"
)

// Entry records one resource created by the transaction. Which fields are
// set depends on Kind.
type Entry struct {
	Kind   Kind
	Path   string
	Hive   string
	Key    string
	Name   string
	Size   int64
	SHA256 string
}

// FileWritten records a payload file.
func FileWritten(path string, size int64, sha256 string) Entry {
	return Entry{Kind: KindFileWritten, Path: path, Size: size, SHA256: sha256}
}

// DirectoryCreated records a directory the transaction created.
func DirectoryCreated(path string) Entry {
	return Entry{Kind: KindDirectoryCreated, Path: path}
}

// RegistryKeyCreated records a registry key the transaction created.
func RegistryKeyCreated(hive, key string) Entry {
	return Entry{Kind: KindRegistryKeyCreated, Hive: hive, Key: key}
}

// RegistryValueSet records one registry value.
func RegistryValueSet(hive, key, name string) Entry {
	return Entry{Kind: KindRegistryValueSet, Hive: hive, Key: key, Name: name}
}

// ShortcutCreated records a shell shortcut.
func ShortcutCreated(path string) Entry {
	return Entry{Kind: KindShortcutCreated, Path: path}
}

// Validate checks that the fields required by Kind are present.
func (e Entry) Validate() error {
	switch e.Kind {
	case KindFileWritten, KindDirectoryCreated, KindShortcutCreated:
		if e.Path == "" {
			return fmt.Errorf("%s entry has no path", e.Kind)
		}
	case KindRegistryKeyCreated, KindRegistryValueSet:
		if e.Hive == "" || e.Key == "" {
			return fmt.Errorf("%s entry needs hive and key", e.Kind)
		}
	default:
		return fmt.Errorf("unknown ledger entry kind %q", e.Kind)
	}
	return nil
}

// Target renders the resource the entry refers to.
func (e Entry) Target() string {
	switch e.Kind {
	case KindRegistryKeyCreated:
		return e.Hive + `\` + e.Key
	case KindRegistryValueSet:
		name := e.Name
		if name == "" {
			name = "(Default)"
		}
		return e.Hive + `\` + strings.Trim(e.Key, `\`) + `\` + name
	default:
		return e.Path
	}
}

func (e Entry) String() string {
	return fmt.Sprintf("%s %s", e.Kind, e.Target())
}
