// Package config loads pj settings from config.toml, PJ_* environment
// variables and command-line flags, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"
)

// FileName is the config file looked up in the data directory.
const FileName = "config.toml"

// Remote drivers.
const (
	DriverNone     = "none"
	DriverMemory   = "memory"
	DriverTurso    = "turso"
	DriverPostgres = "postgres"
)

var drivers = []string{DriverNone, DriverMemory, DriverTurso, DriverPostgres}

// Config is the resolved configuration.
type Config struct {
	DataDir   string          `mapstructure:"data_dir"`
	Offline   bool            `mapstructure:"offline"`
	Remote    RemoteConfig    `mapstructure:"remote"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Sync      SyncConfig      `mapstructure:"sync"`
	Log       LogConfig       `mapstructure:"log"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`

	// File is the config file that was read, empty when none existed.
	File string `mapstructure:"-"`
}

// RemoteConfig selects the remote store.
type RemoteConfig struct {
	Driver    string        `mapstructure:"driver"`
	URL       string        `mapstructure:"url"`
	AuthToken string        `mapstructure:"auth_token"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// AuthConfig verifies session tokens. Without a secret tokens are only
// checked for expiry.
type AuthConfig struct {
	Secret string `mapstructure:"secret"`
	Issuer string `mapstructure:"issuer"`
}

// SyncConfig drives the daemon and the connectivity probe.
type SyncConfig struct {
	Interval      time.Duration `mapstructure:"interval"`
	ProbeInterval time.Duration `mapstructure:"probe_interval"`
	ProbeAddr     string        `mapstructure:"probe_addr"`
}

// LogConfig controls the rotating log file.
type LogConfig struct {
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	Verbose    bool   `mapstructure:"verbose"`
}

// DashboardConfig configures `pj dashboard`.
type DashboardConfig struct {
	Port int `mapstructure:"port"`
}

// DefaultDataDir returns ~/.pj, or .pj when the home directory is unknown.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".pj"
	}
	return filepath.Join(home, ".pj")
}

// New returns a viper instance with defaults and PJ_* environment
// overrides registered. Flags are bound by the caller.
func New() *viper.Viper {
	v := viper.New()
	v.SetConfigType("toml")
	v.SetEnvPrefix("PJ")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("data_dir", DefaultDataDir())
	v.SetDefault("offline", false)
	v.SetDefault("remote.driver", DriverNone)
	v.SetDefault("remote.url", "")
	v.SetDefault("remote.auth_token", "")
	v.SetDefault("remote.timeout", 10*time.Second)
	v.SetDefault("auth.secret", "")
	v.SetDefault("auth.issuer", "")
	v.SetDefault("sync.interval", 5*time.Minute)
	v.SetDefault("sync.probe_interval", 15*time.Second)
	v.SetDefault("sync.probe_addr", "")
	v.SetDefault("log.file", "pj.log")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.verbose", false)
	v.SetDefault("dashboard.port", 7331)
	return v
}

// Load reads the config file and returns the merged configuration. An
// explicit path must exist; otherwise config.toml in the data directory is
// used when present.
func Load(v *viper.Viper, path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = filepath.Join(v.GetString("data_dir"), FileName)
	}
	v.SetConfigFile(path)

	file := path
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		missing := errors.Is(err, fs.ErrNotExist) || errors.As(err, &notFound)
		if explicit || !missing {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		file = ""
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.File = file
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that would otherwise fail later at startup.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	if !slices.Contains(drivers, c.Remote.Driver) {
		return fmt.Errorf("remote.driver must be one of %s (got %q)", strings.Join(drivers, ", "), c.Remote.Driver)
	}
	if (c.Remote.Driver == DriverTurso || c.Remote.Driver == DriverPostgres) && c.Remote.URL == "" {
		return fmt.Errorf("remote.url is required for the %s driver", c.Remote.Driver)
	}
	if c.Remote.Timeout < 0 || c.Sync.Interval < 0 || c.Sync.ProbeInterval < 0 {
		return fmt.Errorf("durations must not be negative")
	}
	return nil
}

// DBPath is the local store file.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "journal.db")
}

// SessionPath is the session state file.
func (c *Config) SessionPath() string {
	return filepath.Join(c.DataDir, "session.yaml")
}

// LogPath is the log file; relative names live in the data directory.
func (c *Config) LogPath() string {
	if c.Log.File == "" || filepath.IsAbs(c.Log.File) {
		return c.Log.File
	}
	return filepath.Join(c.DataDir, c.Log.File)
}

// WriteDefault writes the settings currently known to v as a TOML file.
// An existing file is only replaced when force is set.
func WriteDefault(v *viper.Viper, path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	settings := v.AllSettings()
	delete(settings, "offline")
	if logs, ok := settings["log"].(map[string]interface{}); ok {
		delete(logs, "verbose")
	}
	stringifyDurations(settings)

	tmpPath := path + ".tmp"
	// #nosec G304 - controlled path from CLI
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	err = toml.NewEncoder(f).Encode(settings)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to write config: %w", err)
	}
	return os.Rename(tmpPath, path)
}

// stringifyDurations replaces durations with their "5m0s" form.
func stringifyDurations(m map[string]interface{}) {
	for k, val := range m {
		switch x := val.(type) {
		case time.Duration:
			m[k] = x.String()
		case map[string]interface{}:
			stringifyDurations(x)
		}
	}
}
