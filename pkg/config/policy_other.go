//go:build !windows

package config

import "errors"

func loadPolicy(*Configuration) error {
	return errors.New("registry policy is only available on Windows")
}
