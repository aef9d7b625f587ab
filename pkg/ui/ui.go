// pkg/ui/ui.go - confirmation and notice dialogs.

package ui

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// MessageBox style flags and results from winuser.h.
const (
	mbOK              = 0x00000000
	mbYesNo           = 0x00000004
	mbIconQuestion    = 0x00000020
	mbIconInformation = 0x00000040
	mbSetForeground   = 0x00010000

	idYes = 6

	confirmFlags = mbYesNo | mbIconQuestion | mbSetForeground
	noticeFlags  = mbOK | mbIconInformation | mbSetForeground
)

// Dialogs shows the installer's two kinds of message box.
type Dialogs interface {
	// Confirm asks a yes/no question and reports whether the user said yes.
	Confirm(title, message string) bool
	// Notify shows an informational notice.
	Notify(title, message string)
}

// Console asks on a terminal. Anything other than y or yes declines.
type Console struct {
	In  io.Reader
	Out io.Writer
}

func (c Console) Confirm(title, message string) bool {
	fmt.Fprintf(c.Out, "%s\n%s\n[y/N]: ", title, message)
	line, err := bufio.NewReader(c.In).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}

func (c Console) Notify(title, message string) {
	fmt.Fprintf(c.Out, "%s\n%s\n", title, message)
}

// Silent accepts every prompt and shows nothing.
type Silent struct{}

func (Silent) Confirm(string, string) bool { return true }
func (Silent) Notify(string, string)       {}
