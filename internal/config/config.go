// Package config loads and saves the client's YAML configuration,
// creating a default file on first run.
package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level client configuration.
type Config struct {
	// BaseURL is the root of the Legacy Calendar API, without the /api
	// prefix (e.g. "https://calendar.example.com").
	BaseURL string `yaml:"base_url" json:"base_url"`

	// CredentialsPath is where the bearer and bypass tokens are persisted.
	CredentialsPath string `yaml:"credentials_path" json:"credentials_path"`

	// Timezone is the IANA timezone the month grid is rendered in. When
	// empty, the process-local zone is used.
	Timezone string `yaml:"timezone" json:"timezone"`

	// RefreshCron is the cron schedule used by watch mode to re-fetch the
	// event list (e.g. "*/15 * * * *").
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// LogLevel is one of zerolog's level names (debug, info, warn, error).
	LogLevel string `yaml:"log_level" json:"log_level"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:         "http://127.0.0.1:3000",
		CredentialsPath: defaultCredentialsPath(),
		RefreshCron:     "*/15 * * * *",
		LogLevel:        "info",
	}
}

// Normalize fills missing values with defaults so partially filled configs
// from older versions still behave.
func (c *Config) Normalize() {
	if c.BaseURL == "" {
		c.BaseURL = "http://127.0.0.1:3000"
	}
	if c.CredentialsPath == "" {
		c.CredentialsPath = defaultCredentialsPath()
	}
	if c.RefreshCron == "" {
		c.RefreshCron = "*/15 * * * *"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Location resolves the configured timezone, falling back to the local
// zone on an empty or invalid name.
func (c *Config) Location() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// Load reads the configuration at path. When the file does not exist, a
// default config is written there (0600) and returned.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()
	return &cfg, nil
}

// Save writes cfg to path atomically (temp file + rename) with 0600 perms.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".legacycal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save delegates to the package-level Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}

func defaultCredentialsPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./credentials.json"
	}
	return filepath.Join(home, ".config", "legacycal", "credentials.json")
}
