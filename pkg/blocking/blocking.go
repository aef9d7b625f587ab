// pkg/blocking/blocking.go - detects running applications that block upgrade or removal.

package blocking

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/windowsadmins/msixinstaller/pkg/logging"
)

// Process is a running process whose executable lives under an install root.
type Process struct {
	PID  int32
	Name string
	Exe  string
}

// AppsRunningError lists the processes that prevented an operation.
type AppsRunningError struct {
	Dir       string
	Processes []Process
}

func (e *AppsRunningError) Error() string {
	names := make([]string, 0, len(e.Processes))
	for _, p := range e.Processes {
		names = append(names, fmt.Sprintf("%s (pid %d)", p.Name, p.PID))
	}
	return fmt.Sprintf("applications running from %s: %s", e.Dir, strings.Join(names, ", "))
}

// RunningUnder returns every process whose executable is inside dir.
// Processes whose executable cannot be read (other sessions, protected
// processes) are skipped.
func RunningUnder(dir string) ([]Process, error) {
	procs, err := process.Processes()
	if err != nil {
		return nil, fmt.Errorf("listing processes: %w", err)
	}

	var all []Process
	for _, proc := range procs {
		exe, err := proc.Exe()
		if err != nil || exe == "" {
			continue
		}
		name, _ := proc.Name()
		all = append(all, Process{PID: proc.Pid, Name: name, Exe: exe})
	}
	return Filter(all, dir), nil
}

// Filter keeps the processes whose executable lives inside dir. Paths compare
// case-insensitively like the Windows filesystem.
func Filter(procs []Process, dir string) []Process {
	prefix := strings.ToLower(filepath.Clean(dir)) + string(filepath.Separator)
	var out []Process
	for _, p := range procs {
		if strings.HasPrefix(strings.ToLower(filepath.Clean(p.Exe)), prefix) {
			logging.Debug("Found running app under install root", "pid", p.PID, "exe", p.Exe)
			out = append(out, p)
		}
	}
	return out
}

// Check returns an *AppsRunningError when any process runs from dir.
func Check(dir string, list func(string) ([]Process, error)) error {
	if list == nil {
		list = RunningUnder
	}
	running, err := list(dir)
	if err != nil {
		return err
	}
	if len(running) > 0 {
		return &AppsRunningError{Dir: dir, Processes: running}
	}
	return nil
}
