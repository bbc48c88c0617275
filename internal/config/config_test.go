package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/arcbridge/gatekeeper/internal/core/domain"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Server.Host != DefaultHost {
		t.Errorf("Host = %s, want %s", cfg.Server.Host, DefaultHost)
	}
	if cfg.Server.Port != DefaultPort {
		t.Errorf("Port = %d, want %d", cfg.Server.Port, DefaultPort)
	}
	if cfg.Health.DefaultCheckInterval != domain.MinCheckInterval {
		t.Errorf("DefaultCheckInterval = %s, want %s", cfg.Health.DefaultCheckInterval, domain.MinCheckInterval)
	}
	if cfg.Proxy.ConnectTimeout != 5*time.Second {
		t.Errorf("ConnectTimeout = %s, want 5s", cfg.Proxy.ConnectTimeout)
	}
	if cfg.Proxy.BufferedTimeout != 90*time.Second {
		t.Errorf("BufferedTimeout = %s, want 90s", cfg.Proxy.BufferedTimeout)
	}
}

func TestLoad_WithoutFile(t *testing.T) {
	dir := t.TempDir()
	wd, _ := os.Getwd()
	defer os.Chdir(wd)
	_ = os.Chdir(dir)

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load() error = %v, want nil when no config file is present", err)
	}
	if cfg.Server.Port != DefaultPort {
		t.Errorf("Port = %d, want default %d", cfg.Server.Port, DefaultPort)
	}
}

func TestLoad_ReadsYAMLFile(t *testing.T) {
	dir := t.TempDir()
	wd, _ := os.Getwd()
	defer os.Chdir(wd)
	_ = os.Chdir(dir)

	yaml := "server:\n  host: 127.0.0.1\n  port: 9999\n"
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9999 {
		t.Fatalf("Server = %+v, want overrides from config.yaml applied", cfg.Server)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	wd, _ := os.Getwd()
	defer os.Chdir(wd)
	_ = os.Chdir(dir)

	yaml := "server:\n  port: 9999\n"
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("GATEKEEPER_SERVER_PORT", "7777")

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 7777 {
		t.Fatalf("Port = %d, want env override 7777", cfg.Server.Port)
	}
}
