//go:build windows

// pkg/config/policy_windows.go - registry policy fallback.

package config

import (
	"fmt"
	"log"
	"strconv"

	"golang.org/x/sys/windows/registry"
)

// loadPolicy overlays values from HKLM\SOFTWARE\MsixInstaller\Config.
func loadPolicy(cfg *Configuration) error {
	key, err := registry.OpenKey(registry.LOCAL_MACHINE, PolicyRegistryPath, registry.READ)
	if err != nil {
		return fmt.Errorf("failed to open policy registry key %s: %v", PolicyRegistryPath, err)
	}
	defer key.Close()

	loadStringFromRegistry(key, "InstallRoot", &cfg.InstallRoot)
	loadStringFromRegistry(key, "LedgerDir", &cfg.LedgerDir)
	loadStringFromRegistry(key, "StartMenuDir", &cfg.StartMenuDir)
	loadStringFromRegistry(key, "InstallerPath", &cfg.InstallerPath)
	loadStringFromRegistry(key, "RegistryHive", &cfg.RegistryHive)
	loadStringFromRegistry(key, "LogLevel", &cfg.LogLevel)
	loadStringFromRegistry(key, "LogDir", &cfg.LogDir)
	loadStringFromRegistry(key, "RunningAppPolicy", &cfg.RunningAppPolicy)

	loadIntFromRegistry(key, "LogRetention", &cfg.LogRetention)
	loadIntFromRegistry(key, "RetryAttempts", &cfg.RetryAttempts)
	loadIntFromRegistry(key, "RetryInitialIntervalMs", &cfg.RetryInitialIntervalMs)

	loadBoolFromRegistry(key, "Verbose", &cfg.Verbose)
	loadBoolFromRegistry(key, "Quiet", &cfg.Quiet)
	loadBoolFromRegistry(key, "ReplaceOlderVersions", &cfg.ReplaceOlderVersions)
	loadBoolFromRegistry(key, "RegisterExtensions", &cfg.RegisterExtensions)
	loadBoolFromRegistry(key, "SkipPreflight", &cfg.SkipPreflight)
	return nil
}

// loadStringFromRegistry loads a string value from registry if it exists.
func loadStringFromRegistry(key registry.Key, valueName string, target *string) {
	if val, _, err := key.GetStringValue(valueName); err == nil && val != "" {
		*target = val
		log.Printf("Policy: Loaded %s = %s", valueName, val)
	}
}

// loadBoolFromRegistry accepts "true"/"false", "1"/"0" strings or a DWORD.
func loadBoolFromRegistry(key registry.Key, valueName string, target *bool) {
	if val, _, err := key.GetStringValue(valueName); err == nil {
		if parsed, parseErr := strconv.ParseBool(val); parseErr == nil {
			*target = parsed
			return
		}
	}
	if val, _, err := key.GetIntegerValue(valueName); err == nil {
		*target = val != 0
	}
}

// loadIntFromRegistry accepts a numeric string or a DWORD.
func loadIntFromRegistry(key registry.Key, valueName string, target *int) {
	if val, _, err := key.GetStringValue(valueName); err == nil {
		if parsed, parseErr := strconv.Atoi(val); parseErr == nil {
			*target = parsed
			return
		}
	}
	if val, _, err := key.GetIntegerValue(valueName); err == nil {
		*target = int(val)
	}
}
