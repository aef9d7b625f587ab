// pkg/installer/cleanup.go - rollback of a failed installation.

package installer

import (
	"context"
	"fmt"

	"github.com/windowsadmins/msixinstaller/pkg/ledger"
	"github.com/windowsadmins/msixinstaller/pkg/logging"
	"github.com/windowsadmins/msixinstaller/pkg/uninstall"
)

// RollbackError is returned when an install failed and reversing its partial
// work did not complete either. It matches both the install error and the
// rollback error.
type RollbackError struct {
	Cause    error
	Rollback error
	Result   *uninstall.Result
}

func (e *RollbackError) Error() string {
	return fmt.Sprintf("%v (rollback incomplete: %v)", e.Cause, e.Rollback)
}

func (e *RollbackError) Unwrap() []error {
	return []error{e.Cause, e.Rollback}
}

// rollback reverses l after cause. Cancellation of ctx is ignored so that a
// cancelled install is still cleaned up. The ledger survives an incomplete
// rollback so the user can retry with -x.
func rollback(ctx context.Context, ic *InstallContext, l *ledger.Ledger, cause error) error {
	logging.Warn("Rolling back installation", "package", l.Identity.FullName(), "entries", l.Len(), "cause", cause)
	ic.reporter().Message("Rolling back")

	res, err := ic.uninstaller().Run(context.WithoutCancel(ctx), l)
	if err != nil {
		logging.Error("Rollback incomplete", "ledger", l.Path(), "error", err)
		return &RollbackError{Cause: cause, Rollback: err, Result: res}
	}
	logging.Info("Rollback complete", "reversed", res.Reversed, "warnings", len(res.Warnings))
	return cause
}
