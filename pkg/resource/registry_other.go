//go:build !windows

package resource

type unsupportedRegistry struct{}

// NewRegistry returns a registry writer that fails every call off Windows.
func NewRegistry() Registry { return unsupportedRegistry{} }

func (unsupportedRegistry) CreateKey(hive, key string) (bool, error) {
	return false, creationError(KindRegistryKey, RegistryTarget(hive, key, ""), ErrUnsupported)
}

func (unsupportedRegistry) KeyExists(string, string) (bool, error) { return false, ErrUnsupported }

func (unsupportedRegistry) ValueExists(string, string, string) (bool, error) {
	return false, ErrUnsupported
}

func (unsupportedRegistry) SetString(hive, key, name, _ string) error {
	return creationError(KindRegistryValue, RegistryTarget(hive, key, name), ErrUnsupported)
}

func (unsupportedRegistry) SetDWord(hive, key, name string, _ uint32) error {
	return creationError(KindRegistryValue, RegistryTarget(hive, key, name), ErrUnsupported)
}

func (unsupportedRegistry) DeleteValue(string, string, string) error { return ErrUnsupported }

func (unsupportedRegistry) DeleteKey(string, string) error { return ErrUnsupported }
