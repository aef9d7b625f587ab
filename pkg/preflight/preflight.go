// pkg/preflight/preflight.go - host checks that run before any resource is created.

package preflight

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hashicorp/go-version"

	"github.com/windowsadmins/msixinstaller/pkg/logging"
)

var (
	// ErrNotAdmin means a machine-wide install was requested without elevation.
	ErrNotAdmin = errors.New("administrative access required")
	// ErrUnsupportedArchitecture means the host cannot run the package binaries.
	ErrUnsupportedArchitecture = errors.New("package architecture not supported on this machine")
)

// x64 emulation on arm64 shipped with build 21277.
var x64EmulationSince = version.Must(version.NewVersion("10.0.21277"))

// Requirements describe what the package and install mode need.
type Requirements struct {
	Architecture string // package ProcessorArchitecture
	NeedAdmin    bool
}

// Host describes the machine.
type Host struct {
	Architecture string // x86, x64, arm, arm64
	Admin        bool
	OSVersion    string // dotted, e.g. 6.1.7601
}

// Check detects the host and evaluates req against it.
func Check(ctx context.Context, req Requirements) error {
	host, err := Detect(ctx)
	if err != nil {
		return fmt.Errorf("preflight: %w", err)
	}
	logging.Debug("Detected host", "arch", host.Architecture, "admin", host.Admin, "os_version", host.OSVersion)
	return Evaluate(host, req)
}

// Evaluate checks req against an already detected host.
func Evaluate(host Host, req Requirements) error {
	if req.NeedAdmin && !host.Admin {
		return ErrNotAdmin
	}
	if !Compatible(host, req.Architecture) {
		return fmt.Errorf("%w: package is %s, host is %s", ErrUnsupportedArchitecture,
			normalizeArch(req.Architecture), host.Architecture)
	}
	return nil
}

// Compatible reports whether host can run binaries built for pkgArch.
func Compatible(host Host, pkgArch string) bool {
	pkgArch = normalizeArch(pkgArch)
	if pkgArch == "neutral" || pkgArch == host.Architecture {
		return true
	}
	switch host.Architecture {
	case "x64":
		return pkgArch == "x86"
	case "arm64":
		switch pkgArch {
		case "x86", "arm":
			return true
		case "x64":
			return emulatesX64(host.OSVersion)
		}
	}
	return false
}

func emulatesX64(osVersion string) bool {
	v, err := version.NewVersion(osVersion)
	if err != nil {
		return false
	}
	return v.GreaterThanOrEqual(x64EmulationSince)
}

func normalizeArch(arch string) string {
	switch a := strings.ToLower(strings.TrimSpace(arch)); a {
	case "", "neutral":
		return "neutral"
	case "amd64", "x86_64":
		return "x64"
	case "386", "i386", "i686":
		return "x86"
	default:
		return a
	}
}
