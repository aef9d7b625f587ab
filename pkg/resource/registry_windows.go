//go:build windows

// pkg/resource/registry_windows.go - registry primitives on golang.org/x/sys/windows/registry.

package resource

import (
	"errors"
	"fmt"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"
	"golang.org/x/sys/windows/registry"
)

var (
	modadvapi32         = windows.NewLazySystemDLL("advapi32.dll")
	procRegDeleteKeyExW = modadvapi32.NewProc("RegDeleteKeyExW")
)

type winRegistry struct{}

// NewRegistry returns the Windows registry writer. Keys are opened in the
// 64-bit view so 32-bit builds register where Programs and Features looks.
func NewRegistry() Registry { return winRegistry{} }

func rootKey(hive string) (registry.Key, error) {
	switch hive {
	case "HKLM":
		return registry.LOCAL_MACHINE, nil
	case "HKCU":
		return registry.CURRENT_USER, nil
	default:
		return 0, fmt.Errorf("unsupported registry hive %q", hive)
	}
}

func notFound(err error) bool {
	return errors.Is(err, registry.ErrNotExist) || errors.Is(err, windows.ERROR_FILE_NOT_FOUND)
}

func (winRegistry) CreateKey(hive, key string) (bool, error) {
	root, err := rootKey(hive)
	if err != nil {
		return false, creationError(KindRegistryKey, RegistryTarget(hive, key, ""), err)
	}
	k, existing, err := registry.CreateKey(root, key, registry.CREATE_SUB_KEY|registry.WOW64_64KEY)
	if err != nil {
		return false, creationError(KindRegistryKey, RegistryTarget(hive, key, ""), err)
	}
	k.Close()
	return !existing, nil
}

func (winRegistry) KeyExists(hive, key string) (bool, error) {
	root, err := rootKey(hive)
	if err != nil {
		return false, err
	}
	k, err := registry.OpenKey(root, key, registry.QUERY_VALUE|registry.WOW64_64KEY)
	if notFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	k.Close()
	return true, nil
}

func (winRegistry) ValueExists(hive, key, name string) (bool, error) {
	root, err := rootKey(hive)
	if err != nil {
		return false, err
	}
	k, err := registry.OpenKey(root, key, registry.QUERY_VALUE|registry.WOW64_64KEY)
	if notFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	defer k.Close()

	_, _, err = k.GetValue(name, nil)
	if notFound(err) {
		return false, nil
	}
	if err != nil && !errors.Is(err, windows.ERROR_MORE_DATA) {
		return false, err
	}
	return true, nil
}

func (winRegistry) openForWrite(hive, key string) (registry.Key, error) {
	root, err := rootKey(hive)
	if err != nil {
		return 0, err
	}
	return registry.OpenKey(root, key, registry.SET_VALUE|registry.WOW64_64KEY)
}

func (r winRegistry) SetString(hive, key, name, value string) error {
	k, err := r.openForWrite(hive, key)
	if err != nil {
		return creationError(KindRegistryValue, RegistryTarget(hive, key, name), err)
	}
	defer k.Close()
	if err := k.SetStringValue(name, value); err != nil {
		return creationError(KindRegistryValue, RegistryTarget(hive, key, name), err)
	}
	return nil
}

func (r winRegistry) SetDWord(hive, key, name string, value uint32) error {
	k, err := r.openForWrite(hive, key)
	if err != nil {
		return creationError(KindRegistryValue, RegistryTarget(hive, key, name), err)
	}
	defer k.Close()
	if err := k.SetDWordValue(name, value); err != nil {
		return creationError(KindRegistryValue, RegistryTarget(hive, key, name), err)
	}
	return nil
}

func (r winRegistry) DeleteValue(hive, key, name string) error {
	k, err := r.openForWrite(hive, key)
	if notFound(err) {
		return nil
	}
	if err != nil {
		return err
	}
	defer k.Close()
	if err := k.DeleteValue(name); err != nil && !notFound(err) {
		return err
	}
	return nil
}

func (winRegistry) DeleteKey(hive, key string) error {
	root, err := rootKey(hive)
	if err != nil {
		return err
	}
	k, err := registry.OpenKey(root, key, registry.QUERY_VALUE|registry.ENUMERATE_SUB_KEYS|registry.WOW64_64KEY)
	if notFound(err) {
		return nil
	}
	if err != nil {
		return err
	}
	info, err := k.Stat()
	k.Close()
	if err != nil {
		return err
	}
	if info.SubKeyCount > 0 || info.ValueCount > 0 {
		return fmt.Errorf("%s: %w", RegistryTarget(hive, key, ""), ErrNotEmpty)
	}
	if err := deleteKey64(root, key); err != nil && !notFound(err) {
		return err
	}
	return nil
}

// deleteKey64 removes key from the 64-bit view, the view every other call
// here opens. registry.DeleteKey has no view flag, so a 32-bit process would
// miss the key under WOW6432Node and report it as already gone.
func deleteKey64(root registry.Key, key string) error {
	name, err := windows.UTF16PtrFromString(key)
	if err != nil {
		return err
	}
	if err := procRegDeleteKeyExW.Find(); err != nil {
		return err
	}
	r, _, _ := procRegDeleteKeyExW.Call(uintptr(root), uintptr(unsafe.Pointer(name)), uintptr(registry.WOW64_64KEY), 0)
	if r != 0 {
		return syscall.Errno(r)
	}
	return nil
}
