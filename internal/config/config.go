// Package config loads claimwiz settings.
//
// Config is stored at $XDG_CONFIG_HOME/claimwiz/config.yaml (defaults to
// ~/.config/claimwiz/config.yaml). A missing file yields the defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/claimwiz/internal/store"
)

// Defaults.
const (
	DefaultDatabase      = "claimwiz.db"
	DefaultProbeInterval = 30 * time.Second
	DefaultProbeTimeout  = 5 * time.Second
	DefaultToastTTL      = 3 * time.Second
	DefaultTotalSteps    = 5
	DefaultCacheName     = "tax-filing-cache-v1"
	DefaultLogLevel      = "info"
)

// Config holds every setting a session needs.
type Config struct {
	Database      string        `yaml:"database"`
	Driver        string        `yaml:"driver"`
	SubmitURL     string        `yaml:"submit_url"`
	ProbeURL      string        `yaml:"probe_url"`
	ProbeInterval time.Duration `yaml:"probe_interval"`
	ProbeTimeout  time.Duration `yaml:"probe_timeout"`
	ToastTTL      time.Duration `yaml:"toast_ttl"`
	TotalSteps    int           `yaml:"total_steps"`
	Form          string        `yaml:"form,omitempty"` // CUE form definition; built-in when empty
	CacheName     string        `yaml:"cache_name"`
	Assets        []string      `yaml:"assets,omitempty"`  // URLs to precache
	Origins       []string      `yaml:"origins,omitempty"` // origins the asset cache may store
	LogLevel      string        `yaml:"log_level"`
	LogFile       string        `yaml:"log_file,omitempty"`
}

// Default returns a config with every default applied.
func Default() *Config {
	return &Config{
		Database:      DefaultDatabase,
		Driver:        store.DriverCGO,
		ProbeInterval: DefaultProbeInterval,
		ProbeTimeout:  DefaultProbeTimeout,
		ToastTTL:      DefaultToastTTL,
		TotalSteps:    DefaultTotalSteps,
		CacheName:     DefaultCacheName,
		LogLevel:      DefaultLogLevel,
	}
}

// Path returns the config file location. It respects XDG_CONFIG_HOME,
// falling back to ~/.config/claimwiz/config.yaml.
func Path() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(".config", "claimwiz", "config.yaml")
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "claimwiz", "config.yaml")
}

// Load reads the config file at path, or at Path() when path is empty.
// Unset fields keep their defaults. If the file does not exist the defaults
// are returned (not an error).
func Load(path string) (*Config, error) {
	if path == "" {
		path = Path()
	}
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the config to path, creating directories as needed.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case c.Database == "":
		return errors.New("database is required")
	case c.Driver != store.DriverCGO && c.Driver != store.DriverPureGo:
		return fmt.Errorf("unknown driver %q (want %q or %q)", c.Driver, store.DriverCGO, store.DriverPureGo)
	case c.ProbeInterval <= 0:
		return fmt.Errorf("probe_interval must be positive, got %s", c.ProbeInterval)
	case c.ProbeTimeout <= 0:
		return fmt.Errorf("probe_timeout must be positive, got %s", c.ProbeTimeout)
	case c.ToastTTL <= 0:
		return fmt.Errorf("toast_ttl must be positive, got %s", c.ToastTTL)
	case c.TotalSteps < 1:
		return fmt.Errorf("total_steps must be at least 1, got %d", c.TotalSteps)
	case c.CacheName == "":
		return errors.New("cache_name is required")
	}
	return nil
}
