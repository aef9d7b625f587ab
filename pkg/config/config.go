// pkg/config/config.go - configuration settings for msixinstaller.

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const ConfigPath = `C:\ProgramData\MsixInstaller\Config.yaml`

// PolicyRegistryPath holds machine policy values used when no config file exists.
const PolicyRegistryPath = `SOFTWARE\MsixInstaller\Config`

// Registry hives the installer can register packages under.
const (
	HiveLocalMachine = "HKLM"
	HiveCurrentUser  = "HKCU"
)

// Running application policies.
const (
	RunningAppsFail   = "fail"
	RunningAppsIgnore = "ignore"
)

// Configuration holds the configurable options for msixinstaller in YAML format
type Configuration struct {
	InstallRoot            string `yaml:"InstallRoot"`
	LedgerDir              string `yaml:"LedgerDir"`
	StartMenuDir           string `yaml:"StartMenuDir"`
	InstallerPath          string `yaml:"InstallerPath"` // empty means the running executable
	RegistryHive           string `yaml:"RegistryHive"`
	LogLevel               string `yaml:"LogLevel"`
	LogDir                 string `yaml:"LogDir"`
	LogRetention           int    `yaml:"LogRetention"`
	Verbose                bool   `yaml:"Verbose"`
	Quiet                  bool   `yaml:"Quiet"`
	ReplaceOlderVersions   bool   `yaml:"ReplaceOlderVersions"`
	RegisterExtensions     bool   `yaml:"RegisterExtensions"`
	RunningAppPolicy       string `yaml:"RunningAppPolicy"`
	RetryAttempts          int    `yaml:"RetryAttempts"`
	RetryInitialIntervalMs int    `yaml:"RetryInitialIntervalMs"`
	SkipPreflight          bool   `yaml:"SkipPreflight"`

	// Source records where the values came from: file, policy or defaults.
	Source string `yaml:"-"`
}

func envOr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

func programFilesX86() string {
	return envOr("ProgramFiles(x86)", `C:\Program Files (x86)`)
}

func programData() string {
	return envOr("ProgramData", `C:\ProgramData`)
}

// MachineStartMenuDir is the all-users start menu programs folder.
func MachineStartMenuDir() string {
	return filepath.Join(programData(), "Microsoft", "Windows", "Start Menu", "Programs")
}

// UserStartMenuDir is the current user's start menu programs folder.
func UserStartMenuDir() string {
	appData := envOr("APPDATA", filepath.Join(envOr("USERPROFILE", `C:\Users\Default`), "AppData", "Roaming"))
	return filepath.Join(appData, "Microsoft", "Windows", "Start Menu", "Programs")
}

// GetDefaultConfig provides default configuration values.
func GetDefaultConfig() *Configuration {
	pf86 := programFilesX86()
	return &Configuration{
		InstallRoot:            filepath.Join(pf86, "WindowsApps"),
		LedgerDir:              filepath.Join(pf86, "Uninstallers"),
		StartMenuDir:           MachineStartMenuDir(),
		RegistryHive:           HiveLocalMachine,
		LogLevel:               "INFO",
		LogDir:                 filepath.Join(programData(), "MsixInstaller", "logs"),
		LogRetention:           10,
		ReplaceOlderVersions:   true,
		RegisterExtensions:     true,
		RunningAppPolicy:       RunningAppsFail,
		RetryAttempts:          3,
		RetryInitialIntervalMs: 250,
		Source:                 "defaults",
	}
}

// LoadConfig loads the configuration from a YAML file. A missing file falls
// back to registry policy values, then to defaults. An empty path means ConfigPath.
func LoadConfig(path string) (*Configuration, error) {
	if path == "" {
		path = ConfigPath
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		cfg := GetDefaultConfig()
		if perr := loadPolicy(cfg); perr == nil {
			cfg.Source = "policy"
		}
		cfg.normalize()
		return cfg, cfg.Validate()
	case err != nil:
		return nil, fmt.Errorf("reading configuration %s: %w", path, err)
	}

	cfg := GetDefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration %s: %w", path, err)
	}
	cfg.Source = path
	cfg.normalize()
	return cfg, cfg.Validate()
}

// SaveConfig writes the configuration as YAML.
func SaveConfig(cfg *Configuration, path string) error {
	if path == "" {
		path = ConfigPath
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("serializing configuration: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating configuration directory: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

func (c *Configuration) normalize() {
	c.RegistryHive = strings.ToUpper(strings.TrimSpace(c.RegistryHive))
	switch c.RegistryHive {
	case "HKEY_LOCAL_MACHINE":
		c.RegistryHive = HiveLocalMachine
	case "HKEY_CURRENT_USER":
		c.RegistryHive = HiveCurrentUser
	}
	c.RunningAppPolicy = strings.ToLower(strings.TrimSpace(c.RunningAppPolicy))
	c.ApplyHive()
}

// ApplyHive points the start menu at the per-user folder when packages are
// registered per-user and the folder was left at the machine default.
func (c *Configuration) ApplyHive() {
	if c.RegistryHive == HiveCurrentUser && c.StartMenuDir == MachineStartMenuDir() {
		c.StartMenuDir = UserStartMenuDir()
	}
}

// Validate checks that the configuration can drive an install.
func (c *Configuration) Validate() error {
	var problems []string
	if c.RegistryHive != HiveLocalMachine && c.RegistryHive != HiveCurrentUser {
		problems = append(problems, fmt.Sprintf("RegistryHive must be %s or %s, got %q", HiveLocalMachine, HiveCurrentUser, c.RegistryHive))
	}
	if c.RunningAppPolicy != RunningAppsFail && c.RunningAppPolicy != RunningAppsIgnore {
		problems = append(problems, fmt.Sprintf("RunningAppPolicy must be %s or %s, got %q", RunningAppsFail, RunningAppsIgnore, c.RunningAppPolicy))
	}
	for name, v := range map[string]string{"InstallRoot": c.InstallRoot, "LedgerDir": c.LedgerDir, "StartMenuDir": c.StartMenuDir, "LogDir": c.LogDir} {
		if strings.TrimSpace(v) == "" {
			problems = append(problems, name+" is required")
		}
	}
	if c.RetryAttempts < 0 {
		problems = append(problems, "RetryAttempts cannot be negative")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// RetryInterval returns the first retry delay.
func (c *Configuration) RetryInterval() time.Duration {
	return time.Duration(c.RetryInitialIntervalMs) * time.Millisecond
}

// ResolveInstallerPath returns the executable that UninstallString points at.
func (c *Configuration) ResolveInstallerPath() (string, error) {
	if c.InstallerPath != "" {
		return c.InstallerPath, nil
	}
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("resolving installer path: %w", err)
	}
	return exe, nil
}
