// Package appconfig manages application configuration and runtime file paths.
package appconfig

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// TunnelConfig controls tunnel establishment and probing.
type TunnelConfig struct {
	// Driver selects the forwarding mechanism: "exec" (system ssh binary,
	// tunnels outlive the CLI process) or "native" (in-process forwarder,
	// tunnels die with the process).
	Driver              string `yaml:"driver"`
	ReadyTimeoutSeconds int    `yaml:"ready_timeout_seconds"`
	ProbeTimeoutMS      int    `yaml:"probe_timeout_ms"`
}

// SecurityConfig controls error presentation.
type SecurityConfig struct {
	RedactErrors bool `yaml:"redact_errors"`
}

// UIConfig contains dashboard display settings.
type UIConfig struct {
	RefreshSeconds int `yaml:"refresh_seconds"`
}

// Config holds application-level configuration.
type Config struct {
	Tunnel   TunnelConfig   `yaml:"tunnel"`
	Security SecurityConfig `yaml:"security"`
	UI       UIConfig       `yaml:"ui"`
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		Tunnel: TunnelConfig{
			Driver:              "exec",
			ReadyTimeoutSeconds: 10,
			ProbeTimeoutMS:      500,
		},
		Security: SecurityConfig{RedactErrors: true},
		UI:       UIConfig{RefreshSeconds: 3},
	}
}

// ConfigDir returns the application config directory path.
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config/dbtunnel.
func ConfigDir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "dbtunnel"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home: %w", err)
	}
	return filepath.Join(home, ".config", "dbtunnel"), nil
}

// RuntimeFilePath returns the full path to runtime.json.
func RuntimeFilePath() (string, error) {
	d, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(d, "runtime.json"), nil
}

// ProfilesFilePath returns the full path to profiles.yaml.
func ProfilesFilePath() (string, error) {
	d, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(d, "profiles.yaml"), nil
}

// Load reads config.yaml from the config directory.
// If the file doesn't exist, creates it with defaults. Out-of-range values
// are normalized back to defaults rather than rejected.
func Load() (Config, error) {
	d, err := ConfigDir()
	if err != nil {
		return Config{}, err
	}
	if err := os.MkdirAll(d, 0o755); err != nil {
		return Config{}, err
	}
	path := filepath.Join(d, "config.yaml")
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := Default()
			if err := Save(cfg); err != nil {
				return cfg, err
			}
			return cfg, nil
		}
		return Config{}, err
	}
	cfg := Default()
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return normalize(cfg), nil
}

func normalize(cfg Config) Config {
	def := Default()
	if cfg.Tunnel.Driver != "exec" && cfg.Tunnel.Driver != "native" {
		cfg.Tunnel.Driver = def.Tunnel.Driver
	}
	if cfg.Tunnel.ReadyTimeoutSeconds <= 0 {
		cfg.Tunnel.ReadyTimeoutSeconds = def.Tunnel.ReadyTimeoutSeconds
	}
	if cfg.Tunnel.ProbeTimeoutMS <= 0 {
		cfg.Tunnel.ProbeTimeoutMS = def.Tunnel.ProbeTimeoutMS
	}
	if cfg.UI.RefreshSeconds <= 0 {
		cfg.UI.RefreshSeconds = def.UI.RefreshSeconds
	}
	return cfg
}

// Save writes config to config.yaml.
func Save(cfg Config) error {
	d, err := ConfigDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(d, 0o755); err != nil {
		return err
	}
	path := filepath.Join(d, "config.yaml")
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}
