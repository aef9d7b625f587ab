// pkg/uninstall/uninstall.go - reverses a ledger, newest entry first.
//
// Missing resources count as removed, so running the same ledger twice is
// safe. A directory or key that still has children is left alone and reported
// as a warning. Any other failure is recorded and the walk continues; the
// ledger is only discarded when nothing failed.

package uninstall

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/windowsadmins/msixinstaller/pkg/ledger"
	"github.com/windowsadmins/msixinstaller/pkg/logging"
	"github.com/windowsadmins/msixinstaller/pkg/progress"
	"github.com/windowsadmins/msixinstaller/pkg/resource"
	"github.com/windowsadmins/msixinstaller/pkg/retry"
	"github.com/windowsadmins/msixinstaller/pkg/utils"
)

// State is the uninstall lifecycle.
type State int

const (
	StateLoaded State = iota
	StateReversing
	StateCompleted
	StatePartiallyFailed
)

func (s State) String() string {
	switch s {
	case StateLoaded:
		return "Loaded"
	case StateReversing:
		return "Reversing"
	case StateCompleted:
		return "Completed"
	case StatePartiallyFailed:
		return "PartiallyFailed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

var (
	// ErrPartiallyFailed is returned, with a Result, when some entries could not be reversed.
	ErrPartiallyFailed = errors.New("uninstall partially failed")
	// ErrModified marks a file whose contents changed after it was installed.
	ErrModified = errors.New("file modified since install")
)

// ReversalWarning is a non-fatal reversal outcome.
type ReversalWarning struct {
	Entry ledger.Entry
	Err   error
}

func (w *ReversalWarning) Error() string {
	return fmt.Sprintf("%s: %v", w.Entry, w.Err)
}

func (w *ReversalWarning) Unwrap() error { return w.Err }

// ReversalFailure is an entry that could not be reversed.
type ReversalFailure struct {
	Entry ledger.Entry
	Err   error
}

func (f *ReversalFailure) Error() string {
	return fmt.Sprintf("reversing %s: %v", f.Entry, f.Err)
}

func (f *ReversalFailure) Unwrap() error { return f.Err }

// Result describes one uninstall run.
type Result struct {
	State    State
	Reversed int
	Warnings []*ReversalWarning
	Failed   []*ReversalFailure
}

// Uninstaller reverses ledgers through a set of writers.
type Uninstaller struct {
	Writers resource.Writers
	Retry   retry.RetryConfig
	// Tracker receives one step per entry. Optional.
	Tracker *progress.Tracker
	// Transient decides which removal errors are retried.
	Transient func(error) bool
}

// New returns an Uninstaller with the default retry policy.
func New(w resource.Writers) *Uninstaller {
	return &Uninstaller{Writers: w, Retry: retry.DefaultConfig, Transient: resource.IsTransient}
}

// RunFile loads the ledger at path and reverses it.
func (u *Uninstaller) RunFile(ctx context.Context, path string) (*Result, error) {
	l, err := ledger.LoadFile(path)
	if err != nil {
		return nil, err
	}
	return u.Run(ctx, l)
}

// Run reverses every entry of l in strict reverse order. Cancelling ctx only
// shortens retries; every entry is still attempted.
func (u *Uninstaller) Run(ctx context.Context, l *ledger.Ledger) (*Result, error) {
	start := time.Now()
	name, version := l.Identity.Name, l.Identity.Version.String()
	res := &Result{State: StateLoaded}
	logging.LogUninstallStart(name, version)

	entries := l.Entries()
	if u.Tracker != nil {
		u.Tracker.Begin("Removing", len(entries))
	}

	res.State = StateReversing
	var failures *multierror.Error
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		warn, err := u.reverse(ctx, e)
		switch {
		case err != nil:
			f := &ReversalFailure{Entry: e, Err: err}
			res.Failed = append(res.Failed, f)
			failures = multierror.Append(failures, f)
			logging.Error("Failed to reverse entry", "entry", e.String(), "error", err)
		case warn != nil:
			res.Warnings = append(res.Warnings, warn)
			res.Reversed++
			logging.Warn("Left resource in place", "entry", e.String(), "reason", warn.Err)
		default:
			res.Reversed++
			logging.Debug("Reversed entry", "entry", e.String())
		}
		if u.Tracker != nil {
			u.Tracker.Step(e.Target())
		}
	}

	if failures != nil {
		res.State = StatePartiallyFailed
		logging.LogUninstallComplete(name, version, res.State.String(), len(res.Warnings), len(res.Failed), time.Since(start))
		logging.Info("Ledger kept for retry", "ledger", l.Path())
		return res, multierror.Append(ErrPartiallyFailed, failures.Errors...)
	}

	res.State = StateCompleted
	if err := l.Discard(); err != nil {
		logging.Error("Uninstall completed but ledger could not be removed", "ledger", l.Path(), "error", err)
		return res, err
	}
	logging.LogUninstallComplete(name, version, res.State.String(), len(res.Warnings), 0, time.Since(start))
	return res, nil
}

// reverse undoes one entry. Warnings are returned separately from failures.
func (u *Uninstaller) reverse(ctx context.Context, e ledger.Entry) (*ReversalWarning, error) {
	var modified bool
	var op func() error
	switch e.Kind {
	case ledger.KindFileWritten:
		modified = utils.Modified(e.Path, e.SHA256)
		op = func() error { return u.Writers.FS.RemoveFile(e.Path) }
	case ledger.KindDirectoryCreated:
		op = func() error { return u.Writers.FS.RemoveDir(e.Path) }
	case ledger.KindRegistryValueSet:
		op = func() error { return u.Writers.Registry.DeleteValue(e.Hive, e.Key, e.Name) }
	case ledger.KindRegistryKeyCreated:
		op = func() error { return u.Writers.Registry.DeleteKey(e.Hive, e.Key) }
	case ledger.KindShortcutCreated:
		op = func() error { return u.Writers.Shortcuts.Remove(e.Path) }
	default:
		return nil, fmt.Errorf("unknown ledger entry kind %q", e.Kind)
	}

	transient := u.Transient
	if transient == nil {
		transient = resource.IsTransient
	}
	err := retry.Do(ctx, u.Retry, e.Target(), func() error {
		err := op()
		if err != nil && !transient(err) {
			return retry.Permanent(err)
		}
		return err
	})
	if errors.Is(err, resource.ErrNotEmpty) {
		return &ReversalWarning{Entry: e, Err: err}, nil
	}
	if err != nil {
		return nil, err
	}
	if modified {
		return &ReversalWarning{Entry: e, Err: ErrModified}, nil
	}
	return nil, nil
}
