// Package config resolves the XDG-style configuration directory and
// loads the ambient application settings file (app.yaml) layered under
// it. Per-account settings live under internal/options instead — this
// package only covers msync's own process-wide knobs.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// AppConfig is the ambient, process-wide configuration msync reads on
// startup: HTTP behavior, retry policy, and logging. It is distinct from
// the per-account user.cfg files under msync_accounts/.
type AppConfig struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Retries   int             `yaml:"retries"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Log       LogConfig       `yaml:"log"`
}

type HTTPConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

type LogConfig struct {
	Debug bool   `yaml:"debug"`
	File  string `yaml:"file"`
}

// DefaultConfig returns msync's built-in settings, used whenever app.yaml
// is absent or leaves a field unset.
func DefaultConfig() *AppConfig {
	return &AppConfig{
		HTTP: HTTPConfig{
			Timeout: 30 * time.Second,
		},
		Retries: 3,
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 5,
			Burst:             10,
		},
		Log: LogConfig{
			Debug: false,
		},
	}
}

// Load loads configuration using the real environment.
func Load() (*AppConfig, error) {
	return LoadWithEnv(os.Getenv)
}

// LoadWithEnv loads configuration using the provided environment lookup
// function, so tests can supply an isolated environment.
func LoadWithEnv(getenv func(string) string) (*AppConfig, error) {
	cfg := DefaultConfig()

	configPath := filepath.Join(rootWithEnv(getenv), "app.yaml")
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if debug := getenv("MSYNC_LOG_DEBUG"); debug != "" {
		cfg.Log.Debug = debug == "1" || debug == "true"
	}
	if logFile := getenv("MSYNC_LOG_FILE"); logFile != "" {
		cfg.Log.File = logFile
	}

	return cfg, nil
}

// Root returns the msync configuration directory: $XDG_CONFIG_HOME/msync,
// falling back to $HOME/.config/msync.
func Root() string {
	return rootWithEnv(os.Getenv)
}

func rootWithEnv(getenv func(string) string) string {
	if xdgConfig := getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "msync")
	}
	home := getenv("HOME")
	if home == "" {
		home, _ = os.UserHomeDir()
	}
	return filepath.Join(home, ".config", "msync")
}

// AccountsDir returns the directory under which every account's own
// sub-directory is rooted: <config>/msync_accounts.
func AccountsDir() string {
	return AccountsDirWithEnv(os.Getenv)
}

func AccountsDirWithEnv(getenv func(string) string) string {
	return filepath.Join(rootWithEnv(getenv), "msync_accounts")
}
