package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
database:
  host: localhost
  name: snapmatch
  user: app
  password: secret
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("server port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Vision.EmbeddingDim != 512 {
		t.Errorf("embedding dim = %d, want 512", cfg.Vision.EmbeddingDim)
	}
	if cfg.Indexing.DownloadRetries != 3 {
		t.Errorf("download retries = %d, want 3", cfg.Indexing.DownloadRetries)
	}
	if cfg.Indexing.DownloadBackoff != time.Second {
		t.Errorf("download backoff = %v, want 1s", cfg.Indexing.DownloadBackoff)
	}
	if cfg.Search.DefaultTolerance != 0.5 {
		t.Errorf("default tolerance = %g, want 0.5", cfg.Search.DefaultTolerance)
	}
	if cfg.Sync.MaxIntervalMinutes != 1440 {
		t.Errorf("max interval = %d, want 1440", cfg.Sync.MaxIntervalMinutes)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("log format = %q, want json", cfg.Logging.Format)
	}
}

func TestLoadYAMLValues(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
  api_key: topsecret
vision:
  mode: fast
  embedding_dim: 128
indexing:
  download_retries: 5
  download_backoff: 250ms
search:
  default_tolerance: 0.42
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 9090 || cfg.Server.APIKey != "topsecret" {
		t.Errorf("server config = %+v", cfg.Server)
	}
	if cfg.Vision.Mode != "fast" || cfg.Vision.EmbeddingDim != 128 {
		t.Errorf("vision config = %+v", cfg.Vision)
	}
	if cfg.Indexing.DownloadRetries != 5 || cfg.Indexing.DownloadBackoff != 250*time.Millisecond {
		t.Errorf("indexing config = %+v", cfg.Indexing)
	}
	if cfg.Search.DefaultTolerance != 0.42 {
		t.Errorf("tolerance = %g, want 0.42", cfg.Search.DefaultTolerance)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
database:
  host: db.internal
`)

	t.Setenv("SNAP_SERVER_PORT", "7070")
	t.Setenv("SNAP_DB_HOST", "other.internal")
	t.Setenv("SNAP_API_KEY", "from-env")
	t.Setenv("SNAP_VISION_MODE", "accurate")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 7070 {
		t.Errorf("port = %d, want env override 7070", cfg.Server.Port)
	}
	if cfg.Database.Host != "other.internal" {
		t.Errorf("db host = %q, want env override", cfg.Database.Host)
	}
	if cfg.Server.APIKey != "from-env" {
		t.Errorf("api key = %q, want env override", cfg.Server.APIKey)
	}
	if cfg.Vision.Mode != "accurate" {
		t.Errorf("vision mode = %q, want env override", cfg.Vision.Mode)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestDSN(t *testing.T) {
	d := DatabaseConfig{Host: "h", Port: 5433, Name: "db", User: "u", Password: "p"}
	want := "postgres://u:p@h:5433/db?sslmode=disable"
	if got := d.DSN(); got != want {
		t.Fatalf("DSN = %q, want %q", got, want)
	}
}
