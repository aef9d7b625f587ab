//go:build windows

package resource

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/windows/registry"
)

func TestWinRegistryKeyLifecycle(t *testing.T) {
	key := `Software\MsixInstallerTest-` + uuid.NewString()
	r := NewRegistry()

	created, err := r.CreateKey("HKCU", key)
	require.NoError(t, err)
	require.True(t, created)
	t.Cleanup(func() { _ = deleteKey64(registry.CURRENT_USER, key) })

	require.NoError(t, r.SetString("HKCU", key, "DisplayName", "Contoso Notes"))
	assert.ErrorIs(t, r.DeleteKey("HKCU", key), ErrNotEmpty)
	require.NoError(t, r.DeleteValue("HKCU", key, "DisplayName"))

	require.NoError(t, r.DeleteKey("HKCU", key))
	k, err := registry.OpenKey(registry.CURRENT_USER, key, registry.QUERY_VALUE|registry.WOW64_64KEY)
	if err == nil {
		k.Close()
	}
	assert.ErrorIs(t, err, registry.ErrNotExist, "key removed from the 64-bit view")

	require.NoError(t, r.DeleteKey("HKCU", key), "deleting a missing key succeeds")
}
