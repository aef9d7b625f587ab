// pkg/register/register.go - shell and Add/Remove Programs registration.
//
// Every key level, value, shortcut and icon created here is appended to the
// ledger immediately after the write succeeds. Registry values are only ever
// written under keys this run created, or as new values under existing keys;
// an existing value is never overwritten.

package register

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/windowsadmins/msixinstaller/pkg/appx"
	"github.com/windowsadmins/msixinstaller/pkg/identity"
	"github.com/windowsadmins/msixinstaller/pkg/ledger"
	"github.com/windowsadmins/msixinstaller/pkg/logging"
	"github.com/windowsadmins/msixinstaller/pkg/resource"
	"github.com/windowsadmins/msixinstaller/pkg/utils"
)

// UninstallKeyRoot is where Add/Remove Programs looks for installed applications.
const UninstallKeyRoot = `Software\Microsoft\Windows\CurrentVersion\Uninstall`

const classesRoot = `Software\Classes`

// IconFileName is written into the install root when the logo converts.
const IconFileName = "DisplayIcon.ico"

// Recorder is the part of the ledger registration needs.
type Recorder interface {
	Append(e ledger.Entry) error
}

// Job carries everything registration writes.
type Job struct {
	Identity      identity.Identity
	DisplayName   string
	Publisher     string // human readable, shown in Add/Remove Programs
	InstallRoot   string
	Executable    string // relative to InstallRoot
	StartMenuDir  string
	Hive          string
	InstallerPath string
	LedgerPath    string
	EstimatedSize int64 // bytes
	InstallDate   time.Time

	// Logo is the raw manifest logo image. Optional.
	Logo []byte
	// Extensions are registered only when RegisterExtensions is set.
	Extensions         []appx.Extension
	RegisterExtensions bool

	Writers resource.Writers
	Ledger  Recorder
}

// Result describes what registration produced.
type Result struct {
	ShortcutPath string
	UninstallKey string
	IconPath     string
	// Warnings lists extension entries skipped because they already existed.
	Warnings []string
}

type run struct {
	job Job
	// created holds keys (lower-cased) created by this run.
	created map[string]bool
	result  Result
}

// UninstallString renders the command Add/Remove Programs runs to uninstall.
func UninstallString(installerPath, ledgerPath string) string {
	return fmt.Sprintf(`"%s" -x "%s"`, installerPath, ledgerPath)
}

// UninstallKey returns the Add/Remove Programs key for a display name.
func UninstallKey(displayName string) string {
	return UninstallKeyRoot + `\` + SafeName(displayName)
}

// ShortcutPath returns the start menu shortcut for a display name.
func ShortcutPath(startMenuDir, displayName string) string {
	return filepath.Join(startMenuDir, SafeName(displayName)+".lnk")
}

// SafeName replaces characters that cannot appear in a file or key name.
func SafeName(name string) string {
	return strings.Map(func(r rune) rune {
		if strings.ContainsRune(`\/:*?"<>|`, r) || r < 0x20 {
			return '_'
		}
		return r
	}, strings.TrimSpace(name))
}

// Run performs registration. Any error other than a skipped extension is
// fatal; what was recorded before it stays in the ledger for rollback.
func Run(job Job) (Result, error) {
	if job.DisplayName == "" {
		return Result{}, errors.New("display name is required for registration")
	}
	r := &run{job: job, created: map[string]bool{}}

	target, err := utils.SafeJoin(job.InstallRoot, job.Executable)
	if err != nil {
		return r.result, &resource.ResourceCreationError{Kind: resource.KindShortcut, Target: job.Executable, Err: err}
	}
	if err := r.shortcut(target); err != nil {
		return r.result, err
	}
	if err := r.icon(); err != nil {
		return r.result, err
	}
	if err := r.uninstallEntry(); err != nil {
		return r.result, err
	}
	if job.RegisterExtensions {
		if err := r.extensions(target); err != nil {
			return r.result, err
		}
	}

	logging.Info("Registration complete", "display_name", job.DisplayName, "hive", job.Hive,
		"key", r.result.UninstallKey, "warnings", len(r.result.Warnings))
	return r.result, nil
}

func (r *run) record(e ledger.Entry) error {
	if err := r.job.Ledger.Append(e); err != nil {
		logging.Error("Resource created but not recorded", "resource", e.String(), "error", err)
		return err
	}
	return nil
}

func (r *run) shortcut(target string) error {
	for _, level := range utils.PathLevels(r.job.StartMenuDir) {
		created, err := r.job.Writers.FS.CreateDir(level)
		if err != nil {
			return err
		}
		if created {
			if err := r.record(ledger.DirectoryCreated(level)); err != nil {
				return err
			}
		}
	}

	path := ShortcutPath(r.job.StartMenuDir, r.job.DisplayName)
	spec := resource.ShortcutSpec{
		Path:        path,
		Target:      target,
		WorkingDir:  filepath.Dir(target),
		IconPath:    target,
		Description: r.job.DisplayName,
	}
	if err := r.job.Writers.Shortcuts.Create(spec); err != nil {
		return err
	}
	if err := r.record(ledger.ShortcutCreated(path)); err != nil {
		return err
	}
	r.result.ShortcutPath = path
	logging.Debug("Created shortcut", "path", path, "target", target)
	return nil
}

// icon is best effort: a missing or unreadable logo only costs the
// DisplayIcon value. Only a ledger failure is returned.
func (r *run) icon() error {
	if len(r.job.Logo) == 0 {
		return nil
	}
	data, err := EncodeIcon(r.job.Logo, IconSize)
	if err != nil {
		logging.Warn("Skipping display icon", "error", err)
		return nil
	}
	path := filepath.Join(r.job.InstallRoot, IconFileName)
	res, err := r.job.Writers.FS.WriteFile(path, bytes.NewReader(data))
	if err != nil {
		logging.Warn("Skipping display icon", "path", path, "error", err)
		return nil
	}
	if err := r.record(ledger.FileWritten(res.Path, res.Size, res.SHA256)); err != nil {
		return err
	}
	r.result.IconPath = res.Path
	return nil
}

func (r *run) uninstallEntry() error {
	j := r.job
	key := UninstallKey(j.DisplayName)
	if err := r.ensureKey(key); err != nil {
		return err
	}
	r.result.UninstallKey = key

	strs := []struct{ name, value string }{
		{"DisplayName", j.DisplayName},
		{"InstallLocation", j.InstallRoot},
		{"UninstallString", UninstallString(j.InstallerPath, j.LedgerPath)},
		{"Publisher", j.Publisher},
		{"DisplayVersion", j.Identity.Version.String()},
	}
	if r.result.IconPath != "" {
		strs = append(strs, struct{ name, value string }{"DisplayIcon", r.result.IconPath})
	}
	if !j.InstallDate.IsZero() {
		strs = append(strs, struct{ name, value string }{"InstallDate", j.InstallDate.Format("20060102")})
	}
	for _, v := range strs {
		if err := r.setString(key, v.name, v.value); err != nil {
			return err
		}
	}

	dwords := []struct {
		name  string
		value uint32
	}{
		{"NoModify", 1},
		{"NoRepair", 1},
		{"EstimatedSize", uint32((j.EstimatedSize + 1023) / 1024)},
	}
	for _, v := range dwords {
		if err := r.setDWord(key, v.name, v.value); err != nil {
			return err
		}
	}
	return nil
}

// ensureKey creates every missing level of key, recording each one.
func (r *run) ensureKey(key string) error {
	for _, level := range resource.KeyLevels(key) {
		created, err := r.job.Writers.Registry.CreateKey(r.job.Hive, level)
		if err != nil {
			return err
		}
		if !created {
			continue
		}
		r.created[strings.ToLower(level)] = true
		if err := r.record(ledger.RegistryKeyCreated(r.job.Hive, level)); err != nil {
			return err
		}
	}
	return nil
}

// claimValue fails when name already exists under a key this run did not create.
func (r *run) claimValue(key, name string) error {
	if r.created[strings.ToLower(key)] {
		return nil
	}
	exists, err := r.job.Writers.Registry.ValueExists(r.job.Hive, key, name)
	if err != nil {
		return &resource.ResourceCreationError{Kind: resource.KindRegistryValue, Target: resource.RegistryTarget(r.job.Hive, key, name), Err: err}
	}
	if exists {
		return &resource.ResourceCreationError{Kind: resource.KindRegistryValue, Target: resource.RegistryTarget(r.job.Hive, key, name), Err: resource.ErrExists}
	}
	return nil
}

func (r *run) setString(key, name, value string) error {
	if err := r.claimValue(key, name); err != nil {
		return err
	}
	if err := r.job.Writers.Registry.SetString(r.job.Hive, key, name, value); err != nil {
		return err
	}
	return r.record(ledger.RegistryValueSet(r.job.Hive, key, name))
}

func (r *run) setDWord(key, name string, value uint32) error {
	if err := r.claimValue(key, name); err != nil {
		return err
	}
	if err := r.job.Writers.Registry.SetDWord(r.job.Hive, key, name, value); err != nil {
		return err
	}
	return r.record(ledger.RegistryValueSet(r.job.Hive, key, name))
}

func (r *run) warn(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	logging.Warn(msg)
	r.result.Warnings = append(r.result.Warnings, msg)
}
