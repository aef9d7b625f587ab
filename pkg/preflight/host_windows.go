//go:build windows

// pkg/preflight/host_windows.go - host detection through the process token and WMI.

package preflight

import (
	"context"
	"fmt"

	"github.com/yusufpapurcu/wmi"
	"golang.org/x/sys/windows"
)

// WMI structures for querying system information
type Win32_Processor struct {
	Architecture uint16 `wmi:"Architecture"`
}

type Win32_OperatingSystem struct {
	Version string `wmi:"Version"`
}

// Detect gathers host facts. WMI can stall on damaged machines, so the
// queries give up when ctx is done.
func Detect(ctx context.Context) (Host, error) {
	admin, err := adminCheck()
	if err != nil {
		return Host{}, fmt.Errorf("checking administrator membership: %w", err)
	}

	type result struct {
		host Host
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		var procs []Win32_Processor
		if err := wmi.Query("SELECT Architecture FROM Win32_Processor", &procs); err != nil {
			ch <- result{err: fmt.Errorf("querying processor: %w", err)}
			return
		}
		if len(procs) == 0 {
			ch <- result{err: fmt.Errorf("no processor information available")}
			return
		}
		var systems []Win32_OperatingSystem
		if err := wmi.Query("SELECT Version FROM Win32_OperatingSystem", &systems); err != nil {
			ch <- result{err: fmt.Errorf("querying operating system: %w", err)}
			return
		}
		h := Host{Architecture: wmiArch(procs[0].Architecture)}
		if len(systems) > 0 {
			h.OSVersion = systems[0].Version
		}
		ch <- result{host: h}
	}()

	select {
	case <-ctx.Done():
		return Host{}, ctx.Err()
	case r := <-ch:
		r.host.Admin = admin
		return r.host, r.err
	}
}

// wmiArch maps Win32_Processor.Architecture codes.
func wmiArch(code uint16) string {
	switch code {
	case 0:
		return "x86"
	case 5:
		return "arm"
	case 9:
		return "x64"
	case 12:
		return "arm64"
	default:
		return fmt.Sprintf("unknown(%d)", code)
	}
}

// adminCheck verifies whether the current process has administrative privileges.
func adminCheck() (bool, error) {
	var adminSid *windows.SID
	err := windows.AllocateAndInitializeSid(
		&windows.SECURITY_NT_AUTHORITY,
		2,
		windows.SECURITY_BUILTIN_DOMAIN_RID,
		windows.DOMAIN_ALIAS_RID_ADMINS,
		0, 0, 0, 0, 0, 0,
		&adminSid)
	if err != nil {
		return false, err
	}
	defer windows.FreeSid(adminSid)
	token := windows.Token(0)
	return token.IsMember(adminSid)
}
