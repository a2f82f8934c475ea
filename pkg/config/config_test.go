package config

import (
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Store.Driver != "sqlite" {
		t.Errorf("Expected sqlite driver, got %q", cfg.Store.Driver)
	}
	want := filepath.Join(home, ".config", "trashtasker", "tasks.db")
	if cfg.Store.DSN != want {
		t.Errorf("Expected dsn %q, got %q", want, cfg.Store.DSN)
	}
	if cfg.Push.Workers != 4 || cfg.Push.QueueSize != 256 || cfg.Push.Timeout != 30*time.Second {
		t.Errorf("Unexpected push defaults %+v", cfg.Push)
	}
}

func TestSaveAndLoad(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	cfg.Google.DefaultList = "L42"
	cfg.Google.Calendar = "Routes"
	cfg.Push.Timeout = 5 * time.Second
	if err := Save(cfg); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got.Google.DefaultList != "L42" || got.Google.Calendar != "Routes" {
		t.Errorf("Expected saved google settings, got %+v", got.Google)
	}
	if got.Push.Timeout != 5*time.Second {
		t.Errorf("Expected timeout 5s, got %v", got.Push.Timeout)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("TRASHTASKER_STORE_DRIVER", "mongo")
	t.Setenv("TRASHTASKER_LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Store.Driver != "mongo" {
		t.Errorf("Expected mongo driver, got %q", cfg.Store.Driver)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Expected debug level, got %q", cfg.Log.Level)
	}
}
