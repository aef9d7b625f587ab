package reporter

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/windowsadmins/msixinstaller/pkg/utils"
)

func TestConsoleReporter(t *testing.T) {
	var buf bytes.Buffer
	r := NewConsoleReporter(&buf, false, true)

	r.Message("Installing Contoso Notes")
	r.Detail("bin/notes.exe")
	for _, p := range []int{-1, 0, 5, 10, 12, 25, 99, 100, 100} {
		r.Percent(p)
	}
	r.Error(errors.New("disk full"))
	r.Stop()
	r.Message("after stop")

	assert.Equal(t, strings.Join([]string{
		"Installing Contoso Notes",
		"    0%",
		"   10%",
		"   25%",
		"   99%",
		"  100%",
		"Error: disk full",
		"",
	}, "\n"), buf.String())
}

func TestConsoleReporterVerboseDetails(t *testing.T) {
	var buf bytes.Buffer
	r := NewConsoleReporter(&buf, true, true)
	r.Detail("bin/notes.exe")
	assert.Equal(t, "  bin/notes.exe\n", buf.String())
}

func TestNewQuiet(t *testing.T) {
	assert.IsType(t, &utils.NoOpReporter{}, New(true, false))
	assert.IsType(t, &ConsoleReporter{}, New(false, false))
}

func TestSummary(t *testing.T) {
	assert.Contains(t, Summary(3, 2048), "3 files")
}
