// pkg/installer/uninstall.go - uninstall and listing entry points.

package installer

import (
	"context"
	"time"

	"github.com/windowsadmins/msixinstaller/pkg/ledger"
	"github.com/windowsadmins/msixinstaller/pkg/uninstall"
)

// Installed summarizes one ledger in the store.
type Installed struct {
	FullName    string
	DisplayName string
	Version     string
	InstallRoot string
	LedgerPath  string
	InstalledAt time.Time
	Entries     int
}

// Uninstall reverses the ledger at ledgerPath.
func Uninstall(ctx context.Context, ic *InstallContext, ledgerPath string) (*uninstall.Result, error) {
	l, err := ledger.LoadFile(ledgerPath)
	if err != nil {
		return nil, err
	}
	return uninstallLedger(ctx, ic, l)
}

// UninstallByName reverses the ledger of the package with the given full name.
func UninstallByName(ctx context.Context, ic *InstallContext, fullName string) (*uninstall.Result, error) {
	l, err := ic.Store.LoadByName(fullName)
	if err != nil {
		return nil, err
	}
	return uninstallLedger(ctx, ic, l)
}

func uninstallLedger(ctx context.Context, ic *InstallContext, l *ledger.Ledger) (*uninstall.Result, error) {
	if err := ic.checkRunning(l.InstallRoot); err != nil {
		return nil, err
	}
	ic.reporter().Message("Removing " + l.DisplayName)
	return ic.uninstaller().Run(ctx, l)
}

// List returns every installed package. Unreadable ledgers are returned as errors
// alongside the readable ones.
func List(ic *InstallContext) ([]Installed, []error) {
	ledgers, errs := ic.Store.List()
	out := make([]Installed, 0, len(ledgers))
	for _, l := range ledgers {
		out = append(out, Installed{
			FullName:    l.Identity.FullName(),
			DisplayName: l.DisplayName,
			Version:     l.Identity.Version.String(),
			InstallRoot: l.InstallRoot,
			LedgerPath:  l.Path(),
			InstalledAt: l.CreatedAt,
			Entries:     l.Len(),
		})
	}
	return out, errs
}
