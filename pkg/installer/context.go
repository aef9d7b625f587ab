// pkg/installer/context.go - per-transaction state shared by install and uninstall.

package installer

import (
	"context"
	"time"

	"github.com/windowsadmins/msixinstaller/pkg/blocking"
	"github.com/windowsadmins/msixinstaller/pkg/config"
	"github.com/windowsadmins/msixinstaller/pkg/ledger"
	"github.com/windowsadmins/msixinstaller/pkg/logging"
	"github.com/windowsadmins/msixinstaller/pkg/preflight"
	"github.com/windowsadmins/msixinstaller/pkg/progress"
	"github.com/windowsadmins/msixinstaller/pkg/resource"
	"github.com/windowsadmins/msixinstaller/pkg/retry"
	"github.com/windowsadmins/msixinstaller/pkg/uninstall"
	"github.com/windowsadmins/msixinstaller/pkg/utils"
)

// Prompter asks the user to accept an install.
type Prompter interface {
	Confirm(title, message string) bool
}

// InstallContext carries everything one transaction needs. Build a fresh
// context per transaction; its Tracker is closed when the transaction's Task ends.
type InstallContext struct {
	Config        *config.Configuration
	Store         *ledger.Store
	Writers       resource.Writers
	Tracker       *progress.Tracker
	Reporter      utils.Reporter
	InstallerPath string

	// Prompter confirms installs. Nil accepts without asking.
	Prompter Prompter
	// Preflight checks the host. Nil skips the checks.
	Preflight func(context.Context, preflight.Requirements) error
	// Running lists processes under a directory. Nil skips the check.
	Running func(dir string) ([]blocking.Process, error)
	Now     func() time.Time
}

// NewInstallContext wires the platform writers and checks for cfg.
func NewInstallContext(cfg *config.Configuration) (*InstallContext, error) {
	installerPath, err := cfg.ResolveInstallerPath()
	if err != nil {
		return nil, err
	}
	ic := &InstallContext{
		Config:        cfg,
		Store:         ledger.NewStore(cfg.LedgerDir),
		Writers:       resource.NewWriters(),
		Tracker:       progress.NewTracker(64),
		Reporter:      utils.NewNoOpReporter(),
		InstallerPath: installerPath,
		Running:       blocking.RunningUnder,
		Now:           time.Now,
	}
	if !cfg.SkipPreflight {
		ic.Preflight = preflight.Check
	}
	return ic, nil
}

func (ic *InstallContext) reporter() utils.Reporter {
	if ic.Reporter == nil {
		return utils.NewNoOpReporter()
	}
	return ic.Reporter
}

func (ic *InstallContext) now() time.Time {
	if ic.Now == nil {
		return time.Now()
	}
	return ic.Now()
}

func (ic *InstallContext) retryConfig() retry.RetryConfig {
	if ic.Config.RetryAttempts == 0 {
		return retry.DefaultConfig
	}
	return retry.RetryConfig{
		MaxRetries:      ic.Config.RetryAttempts,
		InitialInterval: ic.Config.RetryInterval(),
		Multiplier:      2,
	}
}

func (ic *InstallContext) uninstaller() *uninstall.Uninstaller {
	u := uninstall.New(ic.Writers)
	u.Retry = ic.retryConfig()
	u.Tracker = ic.Tracker
	return u
}

// checkRunning applies the running application policy to dir.
func (ic *InstallContext) checkRunning(dir string) error {
	if ic.Running == nil {
		return nil
	}
	err := blocking.Check(dir, ic.Running)
	if err == nil {
		return nil
	}
	if ic.Config.RunningAppPolicy == config.RunningAppsIgnore {
		logging.Warn("Continuing while applications are running", "dir", dir, "error", err)
		return nil
	}
	return err
}
