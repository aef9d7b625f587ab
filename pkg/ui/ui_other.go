//go:build !windows

package ui

import "os"

// New returns terminal prompts, or nothing at all when quiet.
func New(quiet bool) Dialogs {
	if quiet {
		return Silent{}
	}
	return Console{In: os.Stdin, Out: os.Stdout}
}
