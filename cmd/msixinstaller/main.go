// cmd/msixinstaller/main.go

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/windowsadmins/msixinstaller/pkg/config"
	"github.com/windowsadmins/msixinstaller/pkg/installer"
	"github.com/windowsadmins/msixinstaller/pkg/logging"
	"github.com/windowsadmins/msixinstaller/pkg/reporter"
	"github.com/windowsadmins/msixinstaller/pkg/ui"
	"github.com/windowsadmins/msixinstaller/pkg/uninstall"
	"github.com/windowsadmins/msixinstaller/pkg/utils"
	"github.com/windowsadmins/msixinstaller/pkg/version"
)

// Exit codes.
const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
	// exitPartial means an uninstall left entries behind; the ledger was kept.
	exitPartial = 3
)

func main() {
	utils.PatchWindowsArgs()
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	opts, err := ParseOptions(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "msixinstaller: %v\n\n", err)
		PrintUsage(os.Stderr)
		return exitUsage
	}

	switch opts.Action {
	case ActionHelp:
		PrintUsage(os.Stdout)
		return exitOK
	case ActionVersion:
		if opts.Verbosity > 0 {
			version.PrintFull()
		} else {
			version.Print()
		}
		return exitOK
	}

	configPath := opts.ConfigPath
	if configPath == "" {
		configPath = config.ConfigPath
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		return exitFailure
	}
	opts.Apply(cfg)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return exitFailure
	}

	if opts.Action == ActionShowConfig {
		data, err := yaml.Marshal(cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			return exitFailure
		}
		fmt.Printf("# source: %s\n%s", cfg.Source, data)
		return exitOK
	}

	if err := initLogging(cfg, opts); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logging: %v\n", err)
		return exitFailure
	}
	defer logging.Close()
	logging.Info("msixinstaller starting", "version", version.Version().String(), "config", cfg.Source,
		"hive", cfg.RegistryHive, "allow_unsigned", opts.AllowUnsigned, "skip_signing_enforcement", opts.SkipSigningEnforcement)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ic, err := installer.NewInstallContext(cfg)
	if err != nil {
		logging.Error("Failed to prepare transaction", "error", err)
		return exitFailure
	}
	ic.Reporter = reporter.New(cfg.Quiet, cfg.Verbose)
	defer ic.Reporter.Stop()
	dialogs := ui.New(cfg.Quiet)

	switch opts.Action {
	case ActionList:
		return list(ic, os.Stdout)
	case ActionInstall:
		ic.Prompter = dialogs
		return install(ctx, ic, opts.PackagePath)
	case ActionUninstall:
		return finishUninstall(ic, dialogs, installer.StartUninstall(ctx, ic, opts.LedgerPath))
	case ActionUninstallName:
		return finishUninstall(ic, dialogs, installer.StartUninstallByName(ctx, ic, opts.FullName))
	}
	return exitUsage
}

func initLogging(cfg *config.Configuration, opts Options) error {
	level := logging.ParseLevel(cfg.LogLevel)
	var console io.Writer = io.Discard
	switch {
	case opts.Verbosity >= 2:
		level = logging.LevelDebug
		console = os.Stderr
	case opts.Verbosity == 1:
		if level < logging.LevelInfo {
			level = logging.LevelInfo
		}
		console = os.Stderr
	}
	return logging.Init(logging.Config{
		BaseDir:   cfg.LogDir,
		Level:     level,
		RunType:   opts.Action.RunType(),
		Retention: cfg.LogRetention,
		Console:   console,
	})
}

// wait joins a task, logging progress while it runs.
func wait[T any](task *installer.Task[T]) (T, error) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-task.Done():
			return task.Wait()
		case <-ticker.C:
			p := task.Progress()
			logging.Debug("Progress", "phase", p.Phase, "done", p.Done, "total", p.Total)
		}
	}
}

func install(ctx context.Context, ic *installer.InstallContext, packagePath string) int {
	res, err := wait(installer.StartInstall(ctx, ic, packagePath))
	if errors.Is(err, installer.ErrCancelled) {
		return exitOK
	}
	if err != nil {
		logging.Error("Installation failed", "package", packagePath, "error", err)
		var rb *installer.RollbackError
		if errors.As(err, &rb) {
			logging.Error("Partial installation left behind; run msixinstaller -x to finish removal", "ledger_dir", ic.Store.Dir())
		}
		ic.Reporter.Error(err)
		return exitFailure
	}
	for _, w := range res.Warnings {
		logging.Warn(w)
	}
	ic.Reporter.Message(fmt.Sprintf("Installed %s %s (%s)", res.DisplayName, res.Identity.Version,
		reporter.Summary(res.Files, res.Bytes)))
	return exitOK
}

func finishUninstall(ic *installer.InstallContext, dialogs ui.Dialogs, task *installer.Task[*uninstall.Result]) int {
	res, err := wait(task)
	if res != nil {
		for _, w := range res.Warnings {
			logging.Warn("Left in place", "resource", w.Entry.String(), "reason", w.Err)
		}
	}
	if err != nil {
		logging.Error("Uninstall failed", "error", err)
		ic.Reporter.Error(err)
		if errors.Is(err, uninstall.ErrPartiallyFailed) {
			dialogs.Notify("Uninstall incomplete", fmt.Sprintf("%d item(s) could not be removed. Run the uninstall again to retry.", len(res.Failed)))
			return exitPartial
		}
		return exitFailure
	}
	dialogs.Notify("Uninstall complete", fmt.Sprintf("Removed %d item(s).", res.Reversed))
	return exitOK
}

func list(ic *installer.InstallContext, out io.Writer) int {
	installed, errs := installer.List(ic)
	for _, err := range errs {
		logging.Warn("Unreadable ledger", "error", err)
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tVERSION\tINSTALLED\tENTRIES\tFULL NAME")
	for _, p := range installed {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", p.DisplayName, p.Version,
			p.InstalledAt.Local().Format("2006-01-02 15:04"), p.Entries, p.FullName)
	}
	tw.Flush()
	logging.Info("Listed installed packages", "count", len(installed), "store", ic.Store.Dir())
	if len(errs) > 0 {
		return exitFailure
	}
	return exitOK
}
