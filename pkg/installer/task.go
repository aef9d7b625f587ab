// pkg/installer/task.go - background handle for one install or uninstall.

package installer

import (
	"context"

	"github.com/windowsadmins/msixinstaller/pkg/progress"
	"github.com/windowsadmins/msixinstaller/pkg/uninstall"
	"github.com/windowsadmins/msixinstaller/pkg/utils"
)

// Task runs one transaction on its own goroutine. The caller polls Progress
// or waits on Done, then collects the outcome with Wait.
type Task[T any] struct {
	tracker *progress.Tracker
	done    chan struct{}
	value   T
	err     error
}

func start[T any](ctx context.Context, ic *InstallContext, fn func(context.Context, *InstallContext) (T, error)) *Task[T] {
	t := &Task[T]{tracker: ic.Tracker, done: make(chan struct{})}
	go forward(ic.Tracker.Updates(), ic.reporter())
	go func() {
		defer close(t.done)
		defer ic.Tracker.Close()
		t.value, t.err = fn(ctx, ic)
	}()
	return t
}

// forward relays tracker updates to the reporter until the tracker closes.
func forward(updates <-chan progress.Update, rep utils.Reporter) {
	for u := range updates {
		if p := u.Percent(); p >= 0 {
			rep.Percent(p)
		}
		if u.Current != "" {
			rep.Detail(u.Current)
		}
	}
}

// StartInstall installs packagePath in the background.
func StartInstall(ctx context.Context, ic *InstallContext, packagePath string) *Task[*InstallResult] {
	return start(ctx, ic, func(ctx context.Context, ic *InstallContext) (*InstallResult, error) {
		return Install(ctx, ic, packagePath)
	})
}

// StartUninstall reverses the ledger at ledgerPath in the background.
func StartUninstall(ctx context.Context, ic *InstallContext, ledgerPath string) *Task[*uninstall.Result] {
	return start(ctx, ic, func(ctx context.Context, ic *InstallContext) (*uninstall.Result, error) {
		return Uninstall(ctx, ic, ledgerPath)
	})
}

// StartUninstallByName reverses the ledger of fullName in the background.
func StartUninstallByName(ctx context.Context, ic *InstallContext, fullName string) *Task[*uninstall.Result] {
	return start(ctx, ic, func(ctx context.Context, ic *InstallContext) (*uninstall.Result, error) {
		return UninstallByName(ctx, ic, fullName)
	})
}

// Done is closed when the transaction finishes.
func (t *Task[T]) Done() <-chan struct{} { return t.done }

// Wait blocks until the transaction finishes and returns its outcome.
func (t *Task[T]) Wait() (T, error) {
	<-t.done
	return t.value, t.err
}

// Progress returns the latest progress snapshot without blocking.
func (t *Task[T]) Progress() progress.Update { return t.tracker.Snapshot() }
