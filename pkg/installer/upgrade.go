// pkg/installer/upgrade.go - detection of other installed versions of a package.

package installer

import (
	"context"
	"errors"
	"fmt"

	"github.com/hashicorp/go-version"

	"github.com/windowsadmins/msixinstaller/pkg/appx"
	"github.com/windowsadmins/msixinstaller/pkg/identity"
	"github.com/windowsadmins/msixinstaller/pkg/ledger"
	"github.com/windowsadmins/msixinstaller/pkg/logging"
)

var (
	ErrAlreadyInstalled = errors.New("package is already installed")
	ErrNewerInstalled   = errors.New("a newer version is already installed")
	ErrOlderInstalled   = errors.New("an older version is installed")
)

// compareVersions orders two package versions with go-version semantics.
func compareVersions(a, b identity.Version) int {
	va, errA := version.NewVersion(a.String())
	vb, errB := version.NewVersion(b.String())
	if errA != nil || errB != nil {
		switch {
		case a < b:
			return -1
		case a > b:
			return 1
		}
		return 0
	}
	return va.Compare(vb)
}

// installedFamily returns the ledgers of every installed version of id's family.
func installedFamily(store *ledger.Store, id identity.Identity) []*ledger.Ledger {
	all, errs := store.List()
	for _, err := range errs {
		logging.Warn("Skipping unreadable ledger", "error", err)
	}
	var family []*ledger.Ledger
	for _, l := range all {
		if l.Identity.SameFamily(id) {
			family = append(family, l)
		}
	}
	return family
}

// resolveExisting refuses equal or newer installed versions and removes older
// ones when configured to. It returns the version it replaced, if any.
func resolveExisting(ctx context.Context, ic *InstallContext, id identity.Identity) (string, error) {
	var replaced string
	for _, old := range installedFamily(ic.Store, id) {
		switch cmp := compareVersions(old.Identity.Version, id.Version); {
		case cmp == 0:
			return "", fmt.Errorf("%w: %s: %w", ErrAlreadyInstalled, old.Identity.FullName(), ledger.ErrLedgerAlreadyExists)
		case cmp > 0:
			return "", fmt.Errorf("%w: %s", ErrNewerInstalled, old.Identity.FullName())
		}

		if !ic.Config.ReplaceOlderVersions {
			return "", fmt.Errorf("%w: %s", ErrOlderInstalled, old.Identity.FullName())
		}
		if err := ic.checkRunning(old.InstallRoot); err != nil {
			return "", err
		}

		logging.Info("Removing previous version", "package", old.Identity.FullName(), "ledger", old.Path())
		ic.reporter().Detail(fmt.Sprintf("Removing version %s", old.Identity.Version))
		if _, err := ic.uninstaller().Run(ctx, old); err != nil {
			return "", fmt.Errorf("removing previous version %s: %w", old.Identity.Version, err)
		}
		replaced = old.Identity.Version.String()
	}
	return replaced, nil
}

// readLogo returns the application logo, falling back to the package logo.
// A missing logo is not an error.
func readLogo(pkg *appx.Package, app appx.Application) []byte {
	for _, name := range []string{app.Logo, pkg.Manifest().Logo} {
		if name == "" {
			continue
		}
		data, err := pkg.ReadFile(name)
		if err == nil {
			return data
		}
		logging.Debug("Logo not readable", "logo", name, "error", err)
	}
	return nil
}
