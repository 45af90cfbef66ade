package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "app:\n  env: test\n")

	cfg, err := Load(path, false)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.App.Env != "test" {
		t.Fatalf("file value not applied: %q", cfg.App.Env)
	}
	if cfg.Server.HTTPAddr != ":8080" {
		t.Fatalf("unexpected default addr %q", cfg.Server.HTTPAddr)
	}
	if cfg.Sync.ChunkSize != 10 || cfg.Sync.ProgressEvery != 5 || cfg.Sync.MaxRetries != 3 {
		t.Fatalf("unexpected sync defaults: %+v", cfg.Sync)
	}
	if cfg.Sync.ChunkPause != 100*time.Millisecond || cfg.Sync.RetryBackoffBase != 100*time.Millisecond {
		t.Fatalf("unexpected sync pause defaults: %+v", cfg.Sync)
	}
	if cfg.Workers.PoolSize != 4 {
		t.Fatalf("unexpected pool size %d", cfg.Workers.PoolSize)
	}
	if !cfg.Consumer.Enabled || cfg.Consumer.BlockInterval != 5*time.Second {
		t.Fatalf("unexpected consumer defaults: %+v", cfg.Consumer)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
sync:
  chunk_size: 25
  progress_every: 7
source:
  base_url: "http://source.test"
  timeout: 3s
`)

	cfg, err := Load(path, false)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Sync.ChunkSize != 25 || cfg.Sync.ProgressEvery != 7 {
		t.Fatalf("file overrides not applied: %+v", cfg.Sync)
	}
	if cfg.Source.BaseURL != "http://source.test" || cfg.Source.Timeout != 3*time.Second {
		t.Fatalf("source overrides not applied: %+v", cfg.Source)
	}
}

func TestLoadEnvOnlySkipsFile(t *testing.T) {
	cfg, err := Load("does-not-exist.yaml", true)
	if err != nil {
		t.Fatalf("env-only load must not need the file: %v", err)
	}
	if cfg.Sync.ChunkSize != 10 {
		t.Fatalf("defaults must still apply: %+v", cfg.Sync)
	}
}

func TestLoadMissingFileFails(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), false); err == nil {
		t.Fatalf("expected an error for a missing config file")
	}
}
