// pkg/version/version.go - build information for msixinstaller.

package version

import (
	"fmt"
	"io"
	"os"
)

// These values are private which ensures they can only be set with the build flags.
var (
	version   = "dev"
	branch    = "unknown"
	revision  = "unknown"
	goVersion = "unknown"
	buildDate = "unknown"
	appName   = "msixinstaller"
)

// Info is a structure with version build information about the current application.
type Info struct {
	AppName   string `json:"app_name"`
	Version   string `json:"version"`
	Branch    string `json:"branch"`
	Revision  string `json:"revision"`
	GoVersion string `json:"go_version"`
	BuildDate string `json:"build_date"`
}

// Version returns a structure with the current version information.
func Version() Info {
	return Info{
		AppName:   appName,
		Version:   version,
		Branch:    branch,
		Revision:  revision,
		GoVersion: goVersion,
		BuildDate: buildDate,
	}
}

// String renders "name version".
func (i Info) String() string {
	return fmt.Sprintf("%s %s", i.AppName, i.Version)
}

// Fprint writes the application name and version.
func Fprint(w io.Writer) {
	fmt.Fprintln(w, Version())
}

// FprintFull writes the application name and detailed build information.
func FprintFull(w io.Writer) {
	v := Version()
	fmt.Fprintln(w, v)
	fmt.Fprintf(w, "  branch: \t%s\n", v.Branch)
	fmt.Fprintf(w, "  revision: \t%s\n", v.Revision)
	fmt.Fprintf(w, "  build date: \t%s\n", v.BuildDate)
	fmt.Fprintf(w, "  go version: \t%s\n", v.GoVersion)
}

// Print outputs the application name and version string.
func Print() { Fprint(os.Stdout) }

// PrintFull prints the application name and detailed version information.
func PrintFull() { FprintFull(os.Stdout) }
