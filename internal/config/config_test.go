package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_CreatesDefaultOnFirstRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BaseURL == "" || cfg.RefreshCron == "" || cfg.LogLevel == "" {
		t.Errorf("defaults not filled: %+v", cfg)
	}

	if _, err := os.Stat(path); err != nil {
		t.Errorf("default config file not written: %v", err)
	}
	info, _ := os.Stat(path)
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("config file mode %o, want 600", perm)
	}
}

func TestLoad_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	original := &Config{
		BaseURL:         "https://calendar.example.com",
		CredentialsPath: "/tmp/creds.json",
		Timezone:        "Europe/Rome",
		RefreshCron:     "*/5 * * * *",
		LogLevel:        "debug",
	}
	if err := Save(path, original); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if *loaded != *original {
		t.Errorf("loaded %+v, want %+v", loaded, original)
	}
}

func TestNormalize_FillsMissingValues(t *testing.T) {
	cfg := &Config{BaseURL: "https://calendar.example.com"}
	cfg.Normalize()

	if cfg.CredentialsPath == "" {
		t.Error("credentials path not defaulted")
	}
	if cfg.RefreshCron != "*/15 * * * *" {
		t.Errorf("refresh cron %q", cfg.RefreshCron)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("log level %q", cfg.LogLevel)
	}
	if cfg.BaseURL != "https://calendar.example.com" {
		t.Error("explicit value overwritten")
	}
}

func TestLocation(t *testing.T) {
	cfg := &Config{Timezone: "Europe/Rome"}
	if cfg.Location().String() != "Europe/Rome" {
		t.Errorf("location %s", cfg.Location())
	}

	cfg.Timezone = "Not/AZone"
	if cfg.Location() != time.Local {
		t.Error("invalid timezone did not fall back to the local zone")
	}

	cfg.Timezone = ""
	if cfg.Location() != time.Local {
		t.Error("empty timezone did not fall back to the local zone")
	}
}

func TestLoad_EmptyPath(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Error("Load accepted an empty path")
	}
}
