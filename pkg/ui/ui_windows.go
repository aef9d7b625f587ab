//go:build windows

package ui

import "github.com/gonutz/w32"

// MessageBox uses native Win32 message boxes.
type MessageBox struct{}

func (MessageBox) Confirm(title, message string) bool {
	return w32.MessageBox(0, message, title, confirmFlags) == idYes
}

func (MessageBox) Notify(title, message string) {
	w32.MessageBox(0, message, title, noticeFlags)
}

// New returns native dialogs, or nothing at all when quiet.
func New(quiet bool) Dialogs {
	if quiet {
		return Silent{}
	}
	return MessageBox{}
}
