package register

import (
	"bytes"
	"encoding/binary"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/windowsadmins/msixinstaller/pkg/appx"
	"github.com/windowsadmins/msixinstaller/pkg/identity"
	"github.com/windowsadmins/msixinstaller/pkg/ledger"
	"github.com/windowsadmins/msixinstaller/pkg/resource"
	"github.com/windowsadmins/msixinstaller/pkg/resource/resourcetest"
)

var testID = identity.Identity{
	Name:         "Contoso.Notes",
	Version:      identity.NewVersion(1, 2, 3, 4),
	Architecture: "x64",
	Publisher:    "CN=Contoso",
}

type fixture struct {
	job    Job
	ledger *ledger.Ledger
	reg    *resourcetest.Registry
	sc     *resourcetest.Shortcuts
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	base := t.TempDir()
	root := filepath.Join(base, "WindowsApps", testID.FullName())
	require.NoError(t, os.MkdirAll(filepath.Join(root, "bin"), 0755))

	store := ledger.NewStore(filepath.Join(base, "Uninstallers"))
	l, err := store.Begin(testID, "Contoso Notes", root)
	require.NoError(t, err)

	writers, reg, sc := resourcetest.Writers(nil)
	return &fixture{
		job: Job{
			Identity:      testID,
			DisplayName:   "Contoso Notes",
			Publisher:     "Contoso",
			InstallRoot:   root,
			Executable:    `bin\notes.exe`,
			StartMenuDir:  filepath.Join(base, "Start Menu", "Programs"),
			Hive:          "HKLM",
			InstallerPath: `C:\Tools\msixinstaller.exe`,
			LedgerPath:    l.Path(),
			EstimatedSize: 5000,
			InstallDate:   time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
			Writers:       writers,
			Ledger:        l,
		},
		ledger: l,
		reg:    reg,
		sc:     sc,
	}
}

func testLogo(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 150, 150))
	for y := 0; y < 150; y++ {
		for x := 0; x < 150; x++ {
			img.Set(x, y, color.NRGBA{R: 0x20, G: 0x60, B: 0xc0, A: 0xff})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestUninstallString(t *testing.T) {
	assert.Equal(t, `"C:\Tools\msixinstaller.exe" -x "C:\U\Pkg.xml"`,
		UninstallString(`C:\Tools\msixinstaller.exe`, `C:\U\Pkg.xml`))
}

func TestSafeName(t *testing.T) {
	assert.Equal(t, "Notes_ Daily", SafeName(" Notes: Daily "))
	assert.Equal(t, "a_b_c", SafeName(`a/b\c`))
}

func TestRunRegistersUninstallEntryAndShortcut(t *testing.T) {
	f := newFixture(t)

	res, err := Run(f.job)
	require.NoError(t, err)

	key := UninstallKeyRoot + `\Contoso Notes`
	assert.Equal(t, key, res.UninstallKey)
	assert.Equal(t, filepath.Join(f.job.StartMenuDir, "Contoso Notes.lnk"), res.ShortcutPath)
	assert.FileExists(t, res.ShortcutPath)
	require.Len(t, f.sc.Created, 1)
	assert.Equal(t, filepath.Join(f.job.InstallRoot, "bin", "notes.exe"), f.sc.Created[0].Target)

	want := map[string]string{
		"DisplayName":     "Contoso Notes",
		"InstallLocation": f.job.InstallRoot,
		"UninstallString": `"C:\Tools\msixinstaller.exe" -x "` + f.ledger.Path() + `"`,
		"Publisher":       "Contoso",
		"DisplayVersion":  "1.2.3.4",
		"InstallDate":     "20240501",
		"NoModify":        "dword:00000001",
		"NoRepair":        "dword:00000001",
		"EstimatedSize":   "dword:00000005",
	}
	for name, value := range want {
		got, ok := f.reg.Value("HKLM", key, name)
		assert.True(t, ok, name)
		assert.Equal(t, value, got, name)
	}
	_, ok := f.reg.Value("HKLM", key, "DisplayIcon")
	assert.False(t, ok, "no logo means no icon")

	entries := f.ledger.Entries()
	require.NotEmpty(t, entries)
	assert.Equal(t, ledger.KindDirectoryCreated, entries[0].Kind)
	var kinds []ledger.Kind
	for _, e := range entries {
		kinds = append(kinds, e.Kind)
	}
	assert.Contains(t, kinds, ledger.KindShortcutCreated)
	assert.Contains(t, entries, ledger.RegistryKeyCreated("HKLM", key))
	assert.Contains(t, entries, ledger.RegistryValueSet("HKLM", key, "UninstallString"))
	assert.NotContains(t, entries, ledger.RegistryKeyCreated("HKLM", UninstallKeyRoot), "pre-existing parents are not recorded")
}

func TestRunWritesDisplayIcon(t *testing.T) {
	f := newFixture(t)
	f.job.Logo = testLogo(t)

	res, err := Run(f.job)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(f.job.InstallRoot, IconFileName), res.IconPath)

	got, ok := f.reg.Value("HKLM", res.UninstallKey, "DisplayIcon")
	require.True(t, ok)
	assert.Equal(t, res.IconPath, got)

	data, err := os.ReadFile(res.IconPath)
	require.NoError(t, err)
	var dir iconDir
	var entry iconDirEntry
	r := bytes.NewReader(data)
	require.NoError(t, binary.Read(r, binary.LittleEndian, &dir))
	require.NoError(t, binary.Read(r, binary.LittleEndian, &entry))
	assert.Equal(t, iconDir{Type: 1, Count: 1}, dir)
	assert.Equal(t, uint8(IconSize), entry.Width)
	assert.Equal(t, uint32(22), entry.ImageOffset)

	cfg, err := png.DecodeConfig(bytes.NewReader(data[entry.ImageOffset:]))
	require.NoError(t, err)
	assert.Equal(t, IconSize, cfg.Width)

	var files int
	for _, e := range f.ledger.Entries() {
		if e.Kind == ledger.KindFileWritten {
			files++
			assert.Equal(t, res.IconPath, e.Path)
		}
	}
	assert.Equal(t, 1, files)
}

func TestRunSkipsUndecodableLogo(t *testing.T) {
	f := newFixture(t)
	f.job.Logo = []byte("not an image")

	res, err := Run(f.job)
	require.NoError(t, err)
	assert.Empty(t, res.IconPath)
	assert.NoFileExists(t, filepath.Join(f.job.InstallRoot, IconFileName))
}

func TestRunRefusesToAdoptExistingValue(t *testing.T) {
	f := newFixture(t)
	key := UninstallKey("Contoso Notes")
	_, err := f.reg.CreateKey("HKLM", key)
	require.NoError(t, err)
	require.NoError(t, f.reg.SetString("HKLM", key, "Publisher", "Someone Else"))

	_, err = Run(f.job)
	require.Error(t, err)
	assert.ErrorIs(t, err, resource.ErrExists)
	var rce *resource.ResourceCreationError
	require.True(t, errors.As(err, &rce))
	assert.Equal(t, resource.KindRegistryValue, rce.Kind)

	got, _ := f.reg.Value("HKLM", key, "Publisher")
	assert.Equal(t, "Someone Else", got)
	assert.NotContains(t, f.ledger.Entries(), ledger.RegistryValueSet("HKLM", key, "Publisher"))
	assert.NotContains(t, f.ledger.Entries(), ledger.RegistryKeyCreated("HKLM", key))
}

func TestRunAddsNewValuesUnderExistingEmptyKey(t *testing.T) {
	f := newFixture(t)
	key := UninstallKey("Contoso Notes")
	_, err := f.reg.CreateKey("HKLM", key)
	require.NoError(t, err)

	_, err = Run(f.job)
	require.NoError(t, err)
	assert.NotContains(t, f.ledger.Entries(), ledger.RegistryKeyCreated("HKLM", key))
	assert.Contains(t, f.ledger.Entries(), ledger.RegistryValueSet("HKLM", key, "DisplayName"))
}

func TestRunFailsWhenShortcutExists(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.MkdirAll(f.job.StartMenuDir, 0755))
	require.NoError(t, os.WriteFile(ShortcutPath(f.job.StartMenuDir, "Contoso Notes"), []byte("x"), 0644))

	_, err := Run(f.job)
	assert.ErrorIs(t, err, resource.ErrExists)
	assert.Zero(t, f.ledger.Len())
}

func TestRunStopsOnValueFailure(t *testing.T) {
	f := newFixture(t)
	f.reg.FailSet = map[string]error{"DisplayVersion": errors.New("access denied")}

	_, err := Run(f.job)
	require.Error(t, err)
	key := UninstallKey("Contoso Notes")
	entries := f.ledger.Entries()
	assert.Contains(t, entries, ledger.RegistryValueSet("HKLM", key, "Publisher"))
	assert.NotContains(t, entries, ledger.RegistryValueSet("HKLM", key, "DisplayVersion"))
	assert.NotContains(t, entries, ledger.RegistryValueSet("HKLM", key, "NoModify"))
}

func TestRunRegistersExtensions(t *testing.T) {
	f := newFixture(t)
	f.job.RegisterExtensions = true
	f.job.Extensions = []appx.Extension{
		{Category: appx.CategoryProtocol, Name: "contoso-notes"},
		{Category: appx.CategoryFileTypeAssociation, Name: "contosonote", DisplayName: "Contoso Note", FileTypes: []string{".cnote"}},
	}

	res, err := Run(f.job)
	require.NoError(t, err)
	assert.Empty(t, res.Warnings)

	exe := filepath.Join(f.job.InstallRoot, "bin", "notes.exe")
	cmd := `"` + exe + `" "%1"`

	proto := `Software\Classes\contoso-notes`
	v, ok := f.reg.Value("HKLM", proto, "URL Protocol")
	assert.True(t, ok)
	assert.Empty(t, v)
	v, _ = f.reg.Value("HKLM", proto, "")
	assert.Equal(t, "URL:contoso-notes", v)
	v, _ = f.reg.Value("HKLM", proto+`\shell\open\command`, "")
	assert.Equal(t, cmd, v)

	progID := `Software\Classes\Contoso.Notes.contosonote`
	v, _ = f.reg.Value("HKLM", progID, "")
	assert.Equal(t, "Contoso Note", v)
	v, _ = f.reg.Value("HKLM", progID+`\shell\open\command`, "")
	assert.Equal(t, cmd, v)
	_, ok = f.reg.Value("HKLM", `Software\Classes\.cnote\OpenWithProgids`, "Contoso.Notes.contosonote")
	assert.True(t, ok)

	entries := f.ledger.Entries()
	for _, k := range []string{proto, proto + `\shell`, proto + `\shell\open`, proto + `\shell\open\command`, `Software\Classes\.cnote`} {
		assert.Contains(t, entries, ledger.RegistryKeyCreated("HKLM", k))
	}
}

func TestRunSkipsExistingExtensionKeys(t *testing.T) {
	f := newFixture(t)
	f.job.RegisterExtensions = true
	f.job.Extensions = []appx.Extension{{Category: appx.CategoryProtocol, Name: "mailto"}}
	_, err := f.reg.CreateKey("HKLM", `Software\Classes\mailto`)
	require.NoError(t, err)

	res, err := Run(f.job)
	require.NoError(t, err)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "mailto")
	for _, e := range f.ledger.Entries() {
		assert.NotContains(t, e.Key, "mailto")
	}
}

func TestRunIgnoresExtensionsWhenDisabled(t *testing.T) {
	f := newFixture(t)
	f.job.Extensions = []appx.Extension{{Category: appx.CategoryProtocol, Name: "contoso-notes"}}

	_, err := Run(f.job)
	require.NoError(t, err)
	exists, _ := f.reg.KeyExists("HKLM", `Software\Classes\contoso-notes`)
	assert.False(t, exists)
}

func TestEncodeIconRejectsBadSize(t *testing.T) {
	_, err := EncodeIcon(testLogo(t), 0)
	assert.Error(t, err)
	_, err = EncodeIcon(testLogo(t), 300)
	assert.Error(t, err)
}
