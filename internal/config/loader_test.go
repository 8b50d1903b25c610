package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Scheduler.Interval != 30*time.Minute {
		t.Fatalf("expected 30m interval, got %s", cfg.Scheduler.Interval)
	}
	if cfg.Fetch.DownloadTimeout != 120*time.Second || cfg.Fetch.PollInterval != 2*time.Second {
		t.Fatalf("unexpected fetch waits: %+v", cfg.Fetch)
	}
	if cfg.Normalize.Sheet != "Total" {
		t.Fatalf("expected Total sheet, got %q", cfg.Normalize.Sheet)
	}
	if !filepath.IsAbs(cfg.Fetch.DownloadDir) {
		t.Fatalf("expected absolute download dir, got %q", cfg.Fetch.DownloadDir)
	}
	if err := cfg.ValidateFetch(); err == nil {
		t.Fatalf("expected missing portal url to fail validation")
	}
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	yaml := `
database:
  host: db.internal
  port: 6543
storage:
  driver: sqlite
  sqlite_path: /tmp/errors.db
portal:
  url: https://portal.example/report
scheduler:
  interval: 10m
`
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("MODELERROR_LOG_LEVEL", "debug")
	t.Setenv("MODELERROR_FETCH_MAX_ATTEMPTS", "5")

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Database.Host != "db.internal" || cfg.Database.Port != 6543 {
		t.Fatalf("database overrides not applied: %+v", cfg.Database)
	}
	if cfg.Database.User != "postgres" {
		t.Fatalf("expected default user to survive, got %q", cfg.Database.User)
	}
	if cfg.Storage.Driver != "sqlite" || cfg.Storage.SQLitePath != "/tmp/errors.db" {
		t.Fatalf("storage overrides not applied: %+v", cfg.Storage)
	}
	if cfg.Scheduler.Interval != 10*time.Minute {
		t.Fatalf("expected 10m interval, got %s", cfg.Scheduler.Interval)
	}
	if cfg.Log.Level != "debug" {
		t.Fatalf("expected env log level, got %q", cfg.Log.Level)
	}
	if cfg.Fetch.MaxAttempts != 5 {
		t.Fatalf("expected env attempts, got %d", cfg.Fetch.MaxAttempts)
	}
	if err := cfg.ValidateFetch(); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
	if err := cfg.ValidateStorage(); err != nil {
		t.Fatalf("unexpected storage validation error: %v", err)
	}
}

func TestValidateStorageRejectsUnknownDriver(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Storage.Driver = "mongo"
	if err := cfg.ValidateStorage(); err == nil {
		t.Fatalf("expected unknown driver to fail")
	}
}
