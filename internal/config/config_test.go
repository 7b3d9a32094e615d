package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaultsWithEnv(t *testing.T) {
	t.Setenv("BACKEND_BASE_URL", "http://localhost:8000")
	t.Setenv("DEV_MODE", "true")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Backend.BaseURL != "http://localhost:8000" {
		t.Fatalf("base url = %q", cfg.Backend.BaseURL)
	}
	if cfg.Ride.RequestDelay != 2*time.Second || cfg.Ride.SettleDelay != 10*time.Second {
		t.Fatalf("ride defaults wrong: %+v", cfg.Ride)
	}
	if cfg.Voice.ChunkInterval != 3*time.Second || cfg.Voice.SilentChunkLimit != 2 {
		t.Fatalf("voice defaults wrong: %+v", cfg.Voice)
	}
	if cfg.Ride.ArrivalRadius != 50 {
		t.Fatalf("arrival radius default = %f", cfg.Ride.ArrivalRadius)
	}
}

func TestLoadYAMLAndOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte("backend:\n  base_url: http://cfg-host:9000\n  dev_mode: true\nvoice:\n  silent_chunk_limit: 3\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("SILENT_CHUNK_LIMIT", "4")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Backend.BaseURL != "http://cfg-host:9000" {
		t.Fatalf("file value not applied: %q", cfg.Backend.BaseURL)
	}
	// env wins over the file
	if cfg.Voice.SilentChunkLimit != 4 {
		t.Fatalf("env override not applied: %d", cfg.Voice.SilentChunkLimit)
	}
}

func TestLoadRequiresBaseURL(t *testing.T) {
	t.Setenv("BACKEND_BASE_URL", "")
	if _, err := Load(""); err == nil {
		t.Fatalf("missing backend base url must fail")
	}
}

func TestLoadRequiresSecretOutsideDevMode(t *testing.T) {
	t.Setenv("BACKEND_BASE_URL", "http://localhost:8000")
	t.Setenv("DEV_MODE", "false")
	t.Setenv("BACKEND_TOKEN_SECRET", "")
	if _, err := Load(""); err == nil {
		t.Fatalf("missing token secret must fail outside dev mode")
	}
}
