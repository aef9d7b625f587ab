package installer

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/windowsadmins/msixinstaller/pkg/blocking"
	"github.com/windowsadmins/msixinstaller/pkg/config"
	"github.com/windowsadmins/msixinstaller/pkg/identity"
	"github.com/windowsadmins/msixinstaller/pkg/ledger"
	"github.com/windowsadmins/msixinstaller/pkg/preflight"
	"github.com/windowsadmins/msixinstaller/pkg/progress"
	"github.com/windowsadmins/msixinstaller/pkg/register"
	"github.com/windowsadmins/msixinstaller/pkg/resource"
	"github.com/windowsadmins/msixinstaller/pkg/resource/resourcetest"
	"github.com/windowsadmins/msixinstaller/pkg/uninstall"
)

const manifestTemplate = `<?xml version="1.0" encoding="utf-8"?>
<Package xmlns="http://schemas.microsoft.com/appx/manifest/foundation/windows10"
         xmlns:uap="http://schemas.microsoft.com/appx/manifest/uap/windows10">
  <Identity Name="Contoso.Notes" Publisher="CN=Contoso, O=Contoso Ltd" Version="%s" ProcessorArchitecture="x64" />
  <Properties>
    <DisplayName>Contoso Notes Package</DisplayName>
    <PublisherDisplayName>Contoso</PublisherDisplayName>
  </Properties>
  <Applications>
    <Application Id="App" Executable="bin\notes.exe" EntryPoint="Windows.FullTrustApplication">
      <uap:VisualElements DisplayName="Contoso Notes" Description="Notes" BackgroundColor="transparent" />
      <Extensions>
        <uap:Extension Category="windows.protocol">
          <uap:Protocol Name="contoso-notes" />
        </uap:Extension>
      </Extensions>
    </Application>
  </Applications>
</Package>`

const uninstallKey = register.UninstallKeyRoot + `\Contoso Notes`

func writePackage(t *testing.T, version string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "notes-"+version+".msix")
	f, err := os.Create(p)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	files := []struct{ name, body string }{
		{"[Content_Types].xml", "<Types/>"},
		{"bin/notes.exe", "MZ" + version},
		{"docs/readme.txt", "hello"},
		{"AppxManifest.xml", fmt.Sprintf(manifestTemplate, version)},
		{"AppxBlockMap.xml", "<BlockMap/>"},
	}
	for _, file := range files {
		w, err := zw.Create(file.name)
		require.NoError(t, err)
		_, err = io.WriteString(w, file.body)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
	return p
}

type mockPrompter struct {
	mock.Mock
}

func (m *mockPrompter) Confirm(title, message string) bool {
	return m.Called(title, message).Bool(0)
}

type mockPreflight struct {
	mock.Mock
}

func (m *mockPreflight) Check(ctx context.Context, req preflight.Requirements) error {
	return m.Called(ctx, req).Error(0)
}

type env struct {
	base    string
	cfg     *config.Configuration
	fs      *resourcetest.FaultFS
	writers resource.Writers
	reg     *resourcetest.Registry
	running []blocking.Process
}

func newEnv(t *testing.T) *env {
	t.Helper()
	base := t.TempDir()
	e := &env{
		base: base,
		cfg: &config.Configuration{
			InstallRoot:            filepath.Join(base, "WindowsApps"),
			LedgerDir:              filepath.Join(base, "Uninstallers"),
			StartMenuDir:           filepath.Join(base, "Start Menu", "Programs"),
			RegistryHive:           config.HiveLocalMachine,
			RunningAppPolicy:       config.RunningAppsFail,
			RegisterExtensions:     true,
			RetryAttempts:          1,
			RetryInitialIntervalMs: 1,
		},
		fs: resourcetest.NewFaultFS(),
	}
	e.writers, e.reg, _ = resourcetest.Writers(e.fs)
	return e
}

// ic returns a fresh transaction context over the shared fakes.
func (e *env) ic() *InstallContext {
	return &InstallContext{
		Config:        e.cfg,
		Store:         ledger.NewStore(e.cfg.LedgerDir),
		Writers:       e.writers,
		Tracker:       progress.NewTracker(16),
		InstallerPath: `C:\Tools\msixinstaller.exe`,
		Running: func(dir string) ([]blocking.Process, error) {
			return blocking.Filter(e.running, dir), nil
		},
		Now: func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) },
	}
}

func testIdentity(version string) identity.Identity {
	v, _ := identity.ParseVersion(version)
	return identity.Identity{Name: "Contoso.Notes", Version: v, Architecture: "x64", Publisher: "CN=Contoso, O=Contoso Ltd"}
}

func (e *env) root(version string) string {
	return filepath.Join(e.cfg.InstallRoot, testIdentity(version).FullName())
}

func TestInstallThenUninstall(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	res, err := Install(ctx, e.ic(), writePackage(t, "1.2.3.4"))
	require.NoError(t, err)

	root := e.root("1.2.3.4")
	assert.Equal(t, root, res.InstallRoot)
	assert.Equal(t, "Contoso Notes", res.DisplayName)
	assert.FileExists(t, filepath.Join(root, "bin", "notes.exe"))
	assert.FileExists(t, filepath.Join(root, "docs", "readme.txt"))
	assert.FileExists(t, filepath.Join(root, "AppxManifest.xml"))
	assert.FileExists(t, res.LedgerPath)
	assert.FileExists(t, res.Shortcut)
	assert.Equal(t, filepath.Join(e.cfg.StartMenuDir, "Contoso Notes.lnk"), res.Shortcut)

	name, ok := e.reg.Value("HKLM", uninstallKey, "DisplayName")
	require.True(t, ok)
	assert.Equal(t, "Contoso Notes", name)
	cmd, _ := e.reg.Value("HKLM", uninstallKey, "UninstallString")
	assert.Equal(t, register.UninstallString(`C:\Tools\msixinstaller.exe`, res.LedgerPath), cmd)
	exists, _ := e.reg.KeyExists("HKLM", `Software\Classes\contoso-notes`)
	assert.True(t, exists)

	out, err := Uninstall(ctx, e.ic(), res.LedgerPath)
	require.NoError(t, err)
	assert.Equal(t, uninstall.StateCompleted, out.State)
	assert.Empty(t, out.Warnings)

	assert.NoDirExists(t, e.cfg.InstallRoot)
	assert.NoDirExists(t, e.cfg.StartMenuDir)
	assert.NoFileExists(t, res.LedgerPath)
	exists, _ = e.reg.KeyExists("HKLM", uninstallKey)
	assert.False(t, exists)
	exists, _ = e.reg.KeyExists("HKLM", `Software\Classes\contoso-notes`)
	assert.False(t, exists)
	exists, _ = e.reg.KeyExists("HKLM", register.UninstallKeyRoot)
	assert.True(t, exists, "pre-existing keys survive")

	_, err = Uninstall(ctx, e.ic(), res.LedgerPath)
	assert.ErrorIs(t, err, ledger.ErrLedgerNotFound)
}

func TestInstallRollsBackOnFailure(t *testing.T) {
	e := newEnv(t)
	e.fs.FailWriteAt = 3

	res, err := Install(context.Background(), e.ic(), writePackage(t, "1.2.3.4"))
	require.Error(t, err)
	assert.Nil(t, res)

	var rce *resource.ResourceCreationError
	assert.ErrorAs(t, err, &rce)
	assert.NoDirExists(t, e.cfg.InstallRoot)
	assert.NoDirExists(t, e.cfg.StartMenuDir)

	list, errs := List(e.ic())
	assert.Empty(t, errs)
	assert.Empty(t, list, "ledger discarded after a clean rollback")
}

func TestInstallRollbackIncomplete(t *testing.T) {
	e := newEnv(t)
	e.fs.FailWriteAt = 3
	locked := errors.New("locked")
	exe := filepath.Join(e.root("1.2.3.4"), "bin", "notes.exe")
	e.fs.RemoveErrors = map[string]error{exe: locked}

	_, err := Install(context.Background(), e.ic(), writePackage(t, "1.2.3.4"))
	require.Error(t, err)

	var rb *RollbackError
	require.ErrorAs(t, err, &rb)
	var rce *resource.ResourceCreationError
	assert.ErrorAs(t, err, &rce, "the install error still matches")
	assert.ErrorIs(t, err, uninstall.ErrPartiallyFailed)
	assert.ErrorIs(t, err, locked)
	require.NotNil(t, rb.Result)
	assert.Len(t, rb.Result.Failed, 1)
	assert.FileExists(t, exe)

	list, _ := List(e.ic())
	require.Len(t, list, 1, "ledger kept for a later uninstall")

	e.fs.RemoveErrors = nil
	out, err := Uninstall(context.Background(), e.ic(), list[0].LedgerPath)
	require.NoError(t, err)
	assert.Equal(t, uninstall.StateCompleted, out.State)
	assert.NoDirExists(t, e.cfg.InstallRoot)
}

func TestInstallCancelledRollsBack(t *testing.T) {
	e := newEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Install(ctx, e.ic(), writePackage(t, "1.2.3.4"))
	assert.ErrorIs(t, err, context.Canceled)
	assert.NoDirExists(t, e.cfg.InstallRoot)
	list, _ := List(e.ic())
	assert.Empty(t, list)
}

func TestInstallSameVersionTwice(t *testing.T) {
	e := newEnv(t)
	pkg := writePackage(t, "1.2.3.4")
	_, err := Install(context.Background(), e.ic(), pkg)
	require.NoError(t, err)

	_, err = Install(context.Background(), e.ic(), pkg)
	assert.ErrorIs(t, err, ErrAlreadyInstalled)
	assert.ErrorIs(t, err, ledger.ErrLedgerAlreadyExists)
	assert.FileExists(t, filepath.Join(e.root("1.2.3.4"), "bin", "notes.exe"))
}

func TestInstallOverUnreadableLedger(t *testing.T) {
	e := newEnv(t)
	path := ledger.NewStore(e.cfg.LedgerDir).Path(testIdentity("1.2.3.4"))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte("not a ledger"), 0644))

	_, err := Install(context.Background(), e.ic(), writePackage(t, "1.2.3.4"))
	assert.ErrorIs(t, err, ErrAlreadyInstalled)
	assert.ErrorIs(t, err, ledger.ErrLedgerAlreadyExists)
	assert.NoDirExists(t, e.cfg.InstallRoot)
}

func TestInstallVersionOrdering(t *testing.T) {
	e := newEnv(t)
	_, err := Install(context.Background(), e.ic(), writePackage(t, "2.0.0.0"))
	require.NoError(t, err)

	_, err = Install(context.Background(), e.ic(), writePackage(t, "1.9.0.0"))
	assert.ErrorIs(t, err, ErrNewerInstalled)

	_, err = Install(context.Background(), e.ic(), writePackage(t, "2.0.1.0"))
	assert.ErrorIs(t, err, ErrOlderInstalled, "older versions are only replaced when configured")
}

func TestInstallReplacesOlderVersion(t *testing.T) {
	e := newEnv(t)
	e.cfg.ReplaceOlderVersions = true
	_, err := Install(context.Background(), e.ic(), writePackage(t, "1.0.0.0"))
	require.NoError(t, err)

	res, err := Install(context.Background(), e.ic(), writePackage(t, "1.1.0.0"))
	require.NoError(t, err)
	assert.Equal(t, "1.0.0.0", res.Replaced)
	assert.NoDirExists(t, e.root("1.0.0.0"))
	assert.FileExists(t, filepath.Join(e.root("1.1.0.0"), "bin", "notes.exe"))

	version, _ := e.reg.Value("HKLM", uninstallKey, "DisplayVersion")
	assert.Equal(t, "1.1.0.0", version)

	list, errs := List(e.ic())
	assert.Empty(t, errs)
	require.Len(t, list, 1)
	assert.Equal(t, "1.1.0.0", list[0].Version)
	assert.Equal(t, "Contoso Notes", list[0].DisplayName)
}

func TestUpgradeRefusedWhileRunning(t *testing.T) {
	e := newEnv(t)
	e.cfg.ReplaceOlderVersions = true
	_, err := Install(context.Background(), e.ic(), writePackage(t, "1.0.0.0"))
	require.NoError(t, err)

	e.running = []blocking.Process{{PID: 42, Name: "notes.exe", Exe: filepath.Join(e.root("1.0.0.0"), "bin", "notes.exe")}}
	_, err = Install(context.Background(), e.ic(), writePackage(t, "1.1.0.0"))
	var running *blocking.AppsRunningError
	require.ErrorAs(t, err, &running)
	assert.Equal(t, int32(42), running.Processes[0].PID)
	assert.DirExists(t, e.root("1.0.0.0"))
	assert.NoDirExists(t, e.root("1.1.0.0"))
}

func TestUninstallRunningAppPolicy(t *testing.T) {
	e := newEnv(t)
	res, err := Install(context.Background(), e.ic(), writePackage(t, "1.2.3.4"))
	require.NoError(t, err)
	e.running = []blocking.Process{{PID: 7, Name: "notes.exe", Exe: filepath.Join(res.InstallRoot, "bin", "notes.exe")}}

	_, err = UninstallByName(context.Background(), e.ic(), res.Identity.FullName())
	var running *blocking.AppsRunningError
	require.ErrorAs(t, err, &running)
	assert.FileExists(t, res.LedgerPath)

	e.cfg.RunningAppPolicy = config.RunningAppsIgnore
	out, err := UninstallByName(context.Background(), e.ic(), res.Identity.FullName())
	require.NoError(t, err)
	assert.Equal(t, uninstall.StateCompleted, out.State)
}

func TestInstallConfirmation(t *testing.T) {
	e := newEnv(t)
	pkg := writePackage(t, "1.2.3.4")

	prompter := &mockPrompter{}
	prompter.On("Confirm", "Install Contoso Notes?", "Publisher: Contoso\nVersion: 1.2.3.4").Return(false).Once()
	ic := e.ic()
	ic.Prompter = prompter

	_, err := Install(context.Background(), ic, pkg)
	assert.ErrorIs(t, err, ErrCancelled)
	assert.NoDirExists(t, e.cfg.InstallRoot)
	prompter.AssertExpectations(t)

	prompter.On("Confirm", mock.Anything, mock.Anything).Return(true).Once()
	ic = e.ic()
	ic.Prompter = prompter
	_, err = Install(context.Background(), ic, pkg)
	assert.NoError(t, err)
	prompter.AssertExpectations(t)
}

func TestInstallPreflight(t *testing.T) {
	e := newEnv(t)
	pre := &mockPreflight{}
	pre.On("Check", mock.Anything, preflight.Requirements{Architecture: "x64", NeedAdmin: true}).
		Return(preflight.ErrNotAdmin).Once()
	ic := e.ic()
	ic.Preflight = pre.Check

	_, err := Install(context.Background(), ic, writePackage(t, "1.2.3.4"))
	assert.ErrorIs(t, err, preflight.ErrNotAdmin)
	assert.NoDirExists(t, e.cfg.LedgerDir)
	pre.AssertExpectations(t)

	e.cfg.RegistryHive = config.HiveCurrentUser
	pre.On("Check", mock.Anything, preflight.Requirements{Architecture: "x64", NeedAdmin: false}).Return(nil).Once()
	ic = e.ic()
	ic.Preflight = pre.Check
	_, err = Install(context.Background(), ic, writePackage(t, "1.2.3.4"))
	require.NoError(t, err)
	_, ok := e.reg.Value("HKCU", uninstallKey, "DisplayName")
	assert.True(t, ok)
	pre.AssertExpectations(t)
}

func TestInstallBadPackage(t *testing.T) {
	e := newEnv(t)
	bad := filepath.Join(t.TempDir(), "bad.msix")
	require.NoError(t, os.WriteFile(bad, []byte("not a zip"), 0644))

	_, err := Install(context.Background(), e.ic(), bad)
	assert.Error(t, err)
	assert.NoDirExists(t, e.cfg.LedgerDir)
}

func TestTask(t *testing.T) {
	e := newEnv(t)
	ic := e.ic()

	task := StartInstall(context.Background(), ic, writePackage(t, "1.2.3.4"))
	select {
	case <-task.Done():
	case <-time.After(30 * time.Second):
		t.Fatal("install task did not finish")
	}
	res, err := task.Wait()
	require.NoError(t, err)
	assert.Equal(t, "Contoso Notes", res.DisplayName)

	p := task.Progress()
	assert.Equal(t, "Extracting", p.Phase)
	assert.Equal(t, p.Total, p.Done)
	assert.Equal(t, 100, p.Percent())

	out, err := StartUninstall(context.Background(), e.ic(), res.LedgerPath).Wait()
	require.NoError(t, err)
	assert.Equal(t, uninstall.StateCompleted, out.State)
}

func TestCompareVersions(t *testing.T) {
	v := func(s string) identity.Version {
		parsed, err := identity.ParseVersion(s)
		require.NoError(t, err)
		return parsed
	}
	assert.Equal(t, 0, compareVersions(v("1.2.3.4"), v("1.2.3.4")))
	assert.Equal(t, -1, compareVersions(v("1.2.3.4"), v("1.10.0.0")))
	assert.Equal(t, 1, compareVersions(v("2.0.0.0"), v("1.65535.65535.65535")))
	assert.Equal(t, -1, compareVersions(v("0.0.0.1"), v("0.0.1.0")))
}
