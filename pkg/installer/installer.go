// pkg/installer/installer.go - installs an MSIX package as a classic Win32 application.
//
// The sequence is preflight, upgrade handling, ledger begin, extraction and
// registration. Any failure after Begin reverses whatever the ledger holds.

package installer

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/windowsadmins/msixinstaller/pkg/appx"
	"github.com/windowsadmins/msixinstaller/pkg/config"
	"github.com/windowsadmins/msixinstaller/pkg/extract"
	"github.com/windowsadmins/msixinstaller/pkg/identity"
	"github.com/windowsadmins/msixinstaller/pkg/ledger"
	"github.com/windowsadmins/msixinstaller/pkg/logging"
	"github.com/windowsadmins/msixinstaller/pkg/preflight"
	"github.com/windowsadmins/msixinstaller/pkg/register"
)

// ErrCancelled is returned when the user declines the confirmation prompt.
var ErrCancelled = errors.New("installation cancelled by user")

// InstallResult describes a completed installation.
type InstallResult struct {
	Identity    identity.Identity
	DisplayName string
	InstallRoot string
	LedgerPath  string
	Files       int
	Bytes       int64
	Shortcut    string
	// Replaced is the version removed before installing, if any.
	Replaced string
	Warnings []string
}

// ConfirmationText returns the prompt shown before installing m.
func ConfirmationText(m *appx.Manifest) (title, message string) {
	title = fmt.Sprintf("Install %s?", displayName(m))
	message = fmt.Sprintf("Publisher: %s\nVersion: %s", identity.CommonName(m.Identity.Publisher), m.Identity.Version)
	return title, message
}

func displayName(m *appx.Manifest) string {
	if name := m.AppDisplayName(); name != "" {
		return name
	}
	return m.Identity.Name
}

// Install installs the package at packagePath. The package is closed before
// Install returns.
func Install(ctx context.Context, ic *InstallContext, packagePath string) (*InstallResult, error) {
	var result *InstallResult
	err := appx.WithPackage(packagePath, func(pkg *appx.Package) error {
		var err error
		result, err = install(ctx, ic, pkg)
		return err
	})
	return result, err
}

func install(ctx context.Context, ic *InstallContext, pkg *appx.Package) (*InstallResult, error) {
	m := pkg.Manifest()
	id := m.Identity
	app, err := m.PrimaryApplication()
	if err != nil {
		return nil, &appx.PackageReadError{Path: pkg.Path(), Err: err}
	}
	name := displayName(m)
	rep := ic.reporter()

	if ic.Prompter != nil {
		title, message := ConfirmationText(m)
		if !ic.Prompter.Confirm(title, message) {
			logging.Info("Installation declined", "package", id.FullName())
			return nil, ErrCancelled
		}
	}

	if ic.Preflight != nil {
		req := preflight.Requirements{
			Architecture: id.Arch(),
			NeedAdmin:    ic.Config.RegistryHive == config.HiveLocalMachine,
		}
		if err := ic.Preflight(ctx, req); err != nil {
			return nil, err
		}
	}

	start := ic.now()
	logging.LogInstallStart(id.Name, id.Version.String())
	rep.Message(fmt.Sprintf("Installing %s", name))

	replaced, err := resolveExisting(ctx, ic, id)
	if err != nil {
		logging.LogInstallFailed(id.Name, id.Version.String(), err)
		return nil, err
	}

	root := filepath.Join(ic.Config.InstallRoot, id.FullName())
	l, err := ic.Store.Begin(id, name, root)
	if err != nil {
		if errors.Is(err, ledger.ErrLedgerAlreadyExists) {
			err = fmt.Errorf("%w: %w", ErrAlreadyInstalled, err)
		}
		logging.LogInstallFailed(id.Name, id.Version.String(), err)
		return nil, err
	}

	result := &InstallResult{
		Identity:    id,
		DisplayName: name,
		InstallRoot: root,
		LedgerPath:  l.Path(),
		Replaced:    replaced,
	}

	if err := populate(ctx, ic, pkg, app, l, result); err != nil {
		logging.LogInstallFailed(id.Name, id.Version.String(), err)
		rep.Error(err)
		return nil, rollback(ctx, ic, l, err)
	}

	logging.LogInstallComplete(id.Name, id.Version.String(), time.Since(start))
	rep.Message(fmt.Sprintf("Installed %s", name))
	return result, nil
}

// populate writes everything the ledger l records: files, then registration.
func populate(ctx context.Context, ic *InstallContext, pkg *appx.Package, app appx.Application, l *ledger.Ledger, result *InstallResult) error {
	entries := append(pkg.PayloadEntries(), pkg.Footprint()...)
	extracted, err := extract.Run(ctx, extract.Job{
		Root:    result.InstallRoot,
		Entries: entries,
		FS:      ic.Writers.FS,
		Ledger:  l,
		Tracker: ic.Tracker,
	})
	if err != nil {
		return err
	}
	result.Files = extracted.Files
	result.Bytes = extracted.Bytes

	if err := ctx.Err(); err != nil {
		return err
	}

	m := pkg.Manifest()
	ic.reporter().Detail("Registering application")
	reg, err := register.Run(register.Job{
		Identity:           m.Identity,
		DisplayName:        result.DisplayName,
		Publisher:          publisherName(m),
		InstallRoot:        result.InstallRoot,
		Executable:         app.Executable,
		StartMenuDir:       ic.Config.StartMenuDir,
		Hive:               ic.Config.RegistryHive,
		InstallerPath:      ic.InstallerPath,
		LedgerPath:         l.Path(),
		EstimatedSize:      extracted.Bytes,
		InstallDate:        ic.now(),
		Logo:               readLogo(pkg, app),
		Extensions:         pkg.Extensions(),
		RegisterExtensions: ic.Config.RegisterExtensions,
		Writers:            ic.Writers,
		Ledger:             l,
	})
	if err != nil {
		return err
	}
	result.Shortcut = reg.ShortcutPath
	result.Warnings = reg.Warnings
	return nil
}

func publisherName(m *appx.Manifest) string {
	if m.PublisherDisplayName != "" {
		return m.PublisherDisplayName
	}
	return identity.CommonName(m.Identity.Publisher)
}
