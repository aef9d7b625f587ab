// pkg/reporter/reporter.go - console status reporting for interactive runs.

package reporter

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fatih/color"

	"github.com/windowsadmins/msixinstaller/pkg/logging"
	"github.com/windowsadmins/msixinstaller/pkg/progress"
	"github.com/windowsadmins/msixinstaller/pkg/utils"
)

// percentStep is the smallest progress change worth a new line.
const percentStep = 10

// ConsoleReporter writes headlines, details and progress to a terminal.
type ConsoleReporter struct {
	mu      sync.Mutex
	out     io.Writer
	verbose bool
	last    int
	stopped bool

	headline *color.Color
	failure  *color.Color
	faint    *color.Color
}

var _ utils.Reporter = (*ConsoleReporter)(nil)

// NewConsoleReporter reports to out, or stdout when out is nil. Details are
// only shown when verbose is set.
func NewConsoleReporter(out io.Writer, verbose, noColor bool) *ConsoleReporter {
	if out == nil {
		out = os.Stdout
	}
	r := &ConsoleReporter{
		out:      out,
		verbose:  verbose,
		last:     -1,
		headline: color.New(color.Bold),
		failure:  color.New(color.FgRed, color.Bold),
		faint:    color.New(color.Faint),
	}
	if noColor {
		for _, c := range []*color.Color{r.headline, r.failure, r.faint} {
			c.DisableColor()
		}
	}
	return r
}

func (r *ConsoleReporter) printf(c *color.Color, format string, args ...interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return
	}
	c.Fprintf(r.out, format, args...)
}

// Message prints a headline.
func (r *ConsoleReporter) Message(txt string) {
	logging.Debug("Status", "message", txt)
	r.printf(r.headline, "%s\n", txt)
}

// Detail prints frequently changing text in verbose mode.
func (r *ConsoleReporter) Detail(txt string) {
	if !r.verbose {
		return
	}
	r.printf(r.faint, "  %s\n", txt)
}

// Percent prints progress in steps of ten percent. Negative values mean
// indeterminate and are ignored.
func (r *ConsoleReporter) Percent(pct int) {
	r.mu.Lock()
	if pct < 0 || r.stopped || (pct < 100 && r.last >= 0 && pct-r.last < percentStep) || pct == r.last {
		r.mu.Unlock()
		return
	}
	r.last = pct
	r.mu.Unlock()
	r.printf(r.faint, "  %3d%%\n", pct)
}

// Error prints a failure.
func (r *ConsoleReporter) Error(err error) {
	r.printf(r.failure, "Error: %v\n", err)
}

// Stop silences the reporter.
func (r *ConsoleReporter) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped = true
}

// New picks the reporter for a run: nothing when quiet, the console otherwise.
func New(quiet, verbose bool) utils.Reporter {
	if quiet {
		return utils.NewNoOpReporter()
	}
	return NewConsoleReporter(nil, verbose, false)
}

// Summary formats a byte count and file count for a final status line.
func Summary(files int, bytes int64) string {
	return fmt.Sprintf("%d files, %s", files, progress.FormatBytes(bytes))
}
