// cmd/msixinstaller/options.go - command line option table.

package main

import (
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/pflag"

	"github.com/windowsadmins/msixinstaller/pkg/config"
)

// Action is what one invocation does.
type Action int

const (
	ActionNone Action = iota
	ActionInstall
	ActionUninstall
	ActionUninstallName
	ActionList
	ActionShowConfig
	ActionVersion
	ActionHelp
)

// RunType names the action in log session metadata.
func (a Action) RunType() string {
	switch a {
	case ActionInstall:
		return "install"
	case ActionUninstall, ActionUninstallName:
		return "uninstall"
	case ActionList:
		return "list"
	default:
		return "info"
	}
}

// Options is the parsed command line. It is built once and never changed.
type Options struct {
	Action      Action
	PackagePath string
	LedgerPath  string
	FullName    string
	ConfigPath  string
	Hive        string
	Verbosity   int
	Quiet       bool

	NoExtensions  bool
	ReplaceOlder  bool
	SkipPreflight bool

	// Accepted for compatibility. Signature policy is not enforced.
	AllowUnsigned          bool
	SkipSigningEnforcement bool
}

type arity int

const (
	switchArg arity = iota // boolean switch
	valueArg               // takes one value
	countArg               // may repeat
)

type option struct {
	long   string
	short  string
	arity  arity
	usage  string
	effect func(o *Options, value string) error
}

func setAction(a Action) func(*Options, string) error {
	return func(o *Options, _ string) error { return o.setAction(a) }
}

var optionTable = []option{
	{"package", "p", valueArg, "install the MSIX package at `path`", func(o *Options, v string) error {
		o.PackagePath = v
		return o.setAction(ActionInstall)
	}},
	{"uninstall", "x", valueArg, "uninstall using the ledger at `path`", func(o *Options, v string) error {
		o.LedgerPath = v
		return o.setAction(ActionUninstall)
	}},
	{"uninstall-name", "", valueArg, "uninstall the package with this full `name`", func(o *Options, v string) error {
		o.FullName = v
		return o.setAction(ActionUninstallName)
	}},
	{"list", "l", switchArg, "list installed packages", setAction(ActionList)},
	{"show-config", "", switchArg, "print the effective configuration", setAction(ActionShowConfig)},
	{"config", "", valueArg, "read configuration from `path`", func(o *Options, v string) error {
		o.ConfigPath = v
		return nil
	}},
	{"hive", "", valueArg, "register under `HKLM` or HKCU", func(o *Options, v string) error {
		hive := strings.ToUpper(strings.TrimSpace(v))
		if hive != config.HiveLocalMachine && hive != config.HiveCurrentUser {
			return fmt.Errorf("--hive must be %s or %s, got %q", config.HiveLocalMachine, config.HiveCurrentUser, v)
		}
		o.Hive = hive
		return nil
	}},
	{"no-extensions", "", switchArg, "do not register protocols or file types", func(o *Options, _ string) error {
		o.NoExtensions = true
		return nil
	}},
	{"replace-older", "", switchArg, "remove an older installed version first", func(o *Options, _ string) error {
		o.ReplaceOlder = true
		return nil
	}},
	{"skip-preflight", "", switchArg, "skip the administrator and architecture checks", func(o *Options, _ string) error {
		o.SkipPreflight = true
		return nil
	}},
	{"allow-unsigned", "", switchArg, "accepted for compatibility", func(o *Options, _ string) error {
		o.AllowUnsigned = true
		return nil
	}},
	{"skip-signing-enforcement", "", switchArg, "accepted for compatibility", func(o *Options, _ string) error {
		o.SkipSigningEnforcement = true
		return nil
	}},
	{"verbose", "v", countArg, "increase verbosity (-v, -vv)", func(o *Options, v string) error {
		n, err := strconv.Atoi(v)
		o.Verbosity = n
		return err
	}},
	{"quiet", "q", switchArg, "no prompts, notices or console output", func(o *Options, _ string) error {
		o.Quiet = true
		return nil
	}},
	{"version", "", switchArg, "print the version and exit", setAction(ActionVersion)},
	{"help", "h", switchArg, "show this help", setAction(ActionHelp)},
}

func (o *Options) setAction(a Action) error {
	if a == ActionHelp || o.Action == ActionHelp {
		o.Action = ActionHelp
		return nil
	}
	if o.Action != ActionNone && o.Action != a {
		return fmt.Errorf("only one of --package, --uninstall, --uninstall-name, --list, --show-config and --version may be given")
	}
	o.Action = a
	return nil
}

func newFlagSet(out io.Writer) *pflag.FlagSet {
	fs := pflag.NewFlagSet("msixinstaller", pflag.ContinueOnError)
	fs.SetOutput(out)
	fs.SortFlags = false
	for _, opt := range optionTable {
		switch opt.arity {
		case switchArg:
			fs.BoolP(opt.long, opt.short, false, opt.usage)
		case valueArg:
			fs.StringP(opt.long, opt.short, "", opt.usage)
		case countArg:
			fs.CountP(opt.long, opt.short, opt.usage)
		}
	}
	fs.Usage = func() {
		fmt.Fprintln(out, "Usage: msixinstaller [options] [package.msix | ledger.xml]")
		fmt.Fprintln(out)
		fs.PrintDefaults()
	}
	return fs
}

// ParseOptions applies the option table to args. A lone positional argument
// is a ledger to uninstall when it ends in .xml, otherwise a package to install.
func ParseOptions(args []string) (Options, error) {
	var o Options
	fs := newFlagSet(io.Discard)

	normalized := make([]string, len(args))
	for i, a := range args {
		if a == "-?" || a == "/?" {
			a = "--help"
		}
		normalized[i] = a
	}
	if err := fs.Parse(normalized); err != nil {
		return o, err
	}

	for _, opt := range optionTable {
		if !fs.Changed(opt.long) {
			continue
		}
		if err := opt.effect(&o, fs.Lookup(opt.long).Value.String()); err != nil {
			return o, err
		}
	}

	switch rest := fs.Args(); {
	case len(rest) > 1:
		return o, fmt.Errorf("unexpected arguments: %s", strings.Join(rest[1:], " "))
	case len(rest) == 1 && strings.EqualFold(filepath.Ext(rest[0]), ".xml"):
		o.LedgerPath = rest[0]
		if err := o.setAction(ActionUninstall); err != nil {
			return o, err
		}
	case len(rest) == 1:
		if o.Action != ActionHelp && o.PackagePath != "" {
			return o, fmt.Errorf("package given twice: %s and %s", o.PackagePath, rest[0])
		}
		o.PackagePath = rest[0]
		if err := o.setAction(ActionInstall); err != nil {
			return o, err
		}
	}

	if o.Action == ActionNone {
		o.Action = ActionHelp
	}
	return o, nil
}

// Apply overlays command line choices onto cfg.
func (o Options) Apply(cfg *config.Configuration) {
	if o.Hive != "" {
		cfg.RegistryHive = o.Hive
		cfg.ApplyHive()
	}
	if o.NoExtensions {
		cfg.RegisterExtensions = false
	}
	if o.ReplaceOlder {
		cfg.ReplaceOlderVersions = true
	}
	if o.SkipPreflight {
		cfg.SkipPreflight = true
	}
	if o.Quiet {
		cfg.Quiet = true
	}
	if o.Verbosity > 0 {
		cfg.Verbose = true
	}
}

// PrintUsage writes the option help to out.
func PrintUsage(out io.Writer) {
	newFlagSet(out).Usage()
}
