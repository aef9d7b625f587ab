package uninstall

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/windowsadmins/msixinstaller/pkg/identity"
	"github.com/windowsadmins/msixinstaller/pkg/ledger"
	"github.com/windowsadmins/msixinstaller/pkg/progress"
	"github.com/windowsadmins/msixinstaller/pkg/resource"
	"github.com/windowsadmins/msixinstaller/pkg/resource/resourcetest"
	"github.com/windowsadmins/msixinstaller/pkg/retry"
)

var testID = identity.Identity{
	Name:         "Contoso.Notes",
	Version:      identity.NewVersion(1, 2, 3, 4),
	Architecture: "x64",
	Publisher:    "CN=Contoso",
}

const uninstallKey = `Software\Microsoft\Windows\CurrentVersion\Uninstall\Contoso Notes`

// installed is a small, fully recorded install built by hand.
type installed struct {
	root     string
	binDir   string
	exe      string
	readme   string
	shortcut string
	ledger   *ledger.Ledger
	fs       *resourcetest.FaultFS
	reg      *resourcetest.Registry
	u        *Uninstaller
}

func writeRecorded(t *testing.T, l *ledger.Ledger, path, content string) {
	t.Helper()
	res, err := resource.OSFileSystem{}.WriteFile(path, strings.NewReader(content))
	require.NoError(t, err)
	require.NoError(t, l.Append(ledger.FileWritten(res.Path, res.Size, res.SHA256)))
}

func mkdirRecorded(t *testing.T, l *ledger.Ledger, path string) {
	t.Helper()
	require.NoError(t, os.Mkdir(path, 0755))
	require.NoError(t, l.Append(ledger.DirectoryCreated(path)))
}

func newInstalled(t *testing.T) *installed {
	t.Helper()
	base := t.TempDir()
	in := &installed{root: filepath.Join(base, "Pkg")}
	in.binDir = filepath.Join(in.root, "bin")
	in.exe = filepath.Join(in.binDir, "notes.exe")
	in.readme = filepath.Join(in.root, "readme.txt")
	in.shortcut = filepath.Join(base, "Contoso Notes.lnk")

	l, err := ledger.NewStore(filepath.Join(base, "Uninstallers")).Begin(testID, "Contoso Notes", in.root)
	require.NoError(t, err)
	in.ledger = l

	mkdirRecorded(t, l, in.root)
	mkdirRecorded(t, l, in.binDir)
	writeRecorded(t, l, in.exe, "MZ")
	writeRecorded(t, l, in.readme, "hello")

	in.fs = resourcetest.NewFaultFS()
	writers, reg, sc := resourcetest.Writers(in.fs)
	in.reg = reg

	require.NoError(t, sc.Create(resource.ShortcutSpec{Path: in.shortcut, Target: in.exe}))
	require.NoError(t, l.Append(ledger.ShortcutCreated(in.shortcut)))

	_, err = reg.CreateKey("HKLM", uninstallKey)
	require.NoError(t, err)
	require.NoError(t, l.Append(ledger.RegistryKeyCreated("HKLM", uninstallKey)))
	for _, name := range []string{"DisplayName", "UninstallString"} {
		require.NoError(t, reg.SetString("HKLM", uninstallKey, name, "x"))
		require.NoError(t, l.Append(ledger.RegistryValueSet("HKLM", uninstallKey, name)))
	}

	in.u = New(writers)
	in.u.Retry = retry.RetryConfig{MaxRetries: 3, InitialInterval: time.Millisecond, Multiplier: 1}
	return in
}

func indexOf(list []string, s string) int {
	for i, v := range list {
		if v == s {
			return i
		}
	}
	return -1
}

func TestRunReversesEverythingInReverseOrder(t *testing.T) {
	in := newInstalled(t)
	tracker := progress.NewTracker(32)
	in.u.Tracker = tracker

	res, err := in.u.Run(context.Background(), in.ledger)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, res.State)
	assert.Empty(t, res.Failed)
	assert.Empty(t, res.Warnings)
	assert.Equal(t, 8, res.Reversed)

	assert.Equal(t, []string{in.shortcut, in.readme, in.exe, in.binDir, in.root}, in.fs.Removed)
	assert.Less(t, indexOf(in.fs.Removed, in.exe), indexOf(in.fs.Removed, in.binDir))

	assert.NoDirExists(t, in.root)
	assert.NoFileExists(t, in.shortcut)
	exists, _ := in.reg.KeyExists("HKLM", uninstallKey)
	assert.False(t, exists)
	assert.NoFileExists(t, in.ledger.Path())
	assert.Equal(t, 8, tracker.Snapshot().Done)
}

func TestSecondUninstallFindsNoLedger(t *testing.T) {
	in := newInstalled(t)
	_, err := in.u.Run(context.Background(), in.ledger)
	require.NoError(t, err)

	_, err = in.u.RunFile(context.Background(), in.ledger.Path())
	assert.ErrorIs(t, err, ledger.ErrLedgerNotFound)
}

func TestMissingResourcesCountAsReversed(t *testing.T) {
	in := newInstalled(t)
	require.NoError(t, os.Remove(in.readme))
	require.NoError(t, os.Remove(in.shortcut))
	require.NoError(t, in.reg.DeleteValue("HKLM", uninstallKey, "DisplayName"))

	res, err := in.u.Run(context.Background(), in.ledger)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, res.State)
	assert.NoDirExists(t, in.root)
}

func TestNonEmptyDirectoryIsAWarning(t *testing.T) {
	in := newInstalled(t)
	foreign := filepath.Join(in.binDir, "user-data.cfg")
	require.NoError(t, os.WriteFile(foreign, []byte("keep"), 0644))

	res, err := in.u.Run(context.Background(), in.ledger)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, res.State)
	require.Len(t, res.Warnings, 2, "bin and the root above it both stay")
	assert.Equal(t, in.binDir, res.Warnings[0].Entry.Path)
	assert.ErrorIs(t, res.Warnings[0], resource.ErrNotEmpty)
	assert.FileExists(t, foreign)
	assert.NoFileExists(t, in.exe)
	assert.NoFileExists(t, in.ledger.Path())
}

func TestNonEmptyRegistryKeyIsAWarning(t *testing.T) {
	in := newInstalled(t)
	require.NoError(t, in.reg.SetString("HKLM", uninstallKey, "AddedLater", "y"))

	res, err := in.u.Run(context.Background(), in.ledger)
	require.NoError(t, err)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, ledger.KindRegistryKeyCreated, res.Warnings[0].Entry.Kind)
	_, ok := in.reg.Value("HKLM", uninstallKey, "AddedLater")
	assert.True(t, ok)
	_, ok = in.reg.Value("HKLM", uninstallKey, "DisplayName")
	assert.False(t, ok)
}

func TestModifiedFileIsRemovedWithWarning(t *testing.T) {
	in := newInstalled(t)
	require.NoError(t, os.WriteFile(in.readme, []byte("edited by user"), 0644))

	res, err := in.u.Run(context.Background(), in.ledger)
	require.NoError(t, err)
	require.Len(t, res.Warnings, 1)
	assert.ErrorIs(t, res.Warnings[0], ErrModified)
	assert.NoFileExists(t, in.readme)
}

func TestPartialFailureKeepsLedgerAndCanBeRetried(t *testing.T) {
	in := newInstalled(t)
	denied := errors.New("access is denied")
	in.fs.RemoveErrors = map[string]error{in.exe: denied}

	res, err := in.u.Run(context.Background(), in.ledger)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPartiallyFailed)
	assert.ErrorIs(t, err, denied)
	assert.Equal(t, StatePartiallyFailed, res.State)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, in.exe, res.Failed[0].Entry.Path)
	assert.Len(t, res.Warnings, 2, "bin and root stay because the exe is still there")

	assert.FileExists(t, in.ledger.Path())
	assert.FileExists(t, in.exe)
	assert.NoFileExists(t, in.readme)
	assert.NoFileExists(t, in.shortcut)

	in.fs.RemoveErrors = nil
	res, err = in.u.RunFile(context.Background(), in.ledger.Path())
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, res.State)
	assert.Empty(t, res.Failed)
	assert.NoDirExists(t, in.root)
	assert.NoFileExists(t, in.ledger.Path())
}

func TestRegistryFailureIsRecorded(t *testing.T) {
	in := newInstalled(t)
	target := resource.RegistryTarget("HKLM", uninstallKey, "UninstallString")
	in.reg.FailDelete = map[string]error{target: errors.New("registry locked")}

	res, err := in.u.Run(context.Background(), in.ledger)
	assert.ErrorIs(t, err, ErrPartiallyFailed)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, "UninstallString", res.Failed[0].Entry.Name)
	assert.NoDirExists(t, in.root, "filesystem reversal continues past registry failures")
}

func TestTransientFailuresAreRetried(t *testing.T) {
	in := newInstalled(t)
	busy := errors.New("file in use")
	in.fs.RemoveErrors = map[string]error{in.exe: busy}
	in.fs.RemoveFailures = 2
	in.u.Transient = func(err error) bool { return errors.Is(err, busy) }

	res, err := in.u.Run(context.Background(), in.ledger)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, res.State)
	assert.Equal(t, 3, countOf(in.fs.Removed, in.exe))
}

func countOf(list []string, s string) int {
	n := 0
	for _, v := range list {
		if v == s {
			n++
		}
	}
	return n
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "Loaded", StateLoaded.String())
	assert.Equal(t, "Reversing", StateReversing.String())
	assert.Equal(t, "Completed", StateCompleted.String())
	assert.Equal(t, "PartiallyFailed", StatePartiallyFailed.String())
}
