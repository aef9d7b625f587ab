// pkg/utils/hash.go - utility functions for hashing files.

package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"strings"

	"github.com/windowsadmins/msixinstaller/pkg/logging"
)

// FileSHA256 returns the SHA256 sum of a file.
func FileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Modified reports whether the file at path no longer matches the recorded
// hash. Unreadable or missing files and empty hashes report false.
func Modified(path, recorded string) bool {
	if recorded == "" {
		return false
	}
	actual, err := FileSHA256(path)
	if err != nil {
		return false
	}
	if !strings.EqualFold(actual, recorded) {
		logging.Debug("File changed since install", "path", path, "recorded", recorded, "actual", actual)
		return true
	}
	return false
}
