package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
server:
  host: "127.0.0.1"
  port: 9000
embedding:
  dimensions: 768
ingest:
  chunk_size: 256
  chunk_overlap: 32
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("server config: %+v", cfg.Server)
	}
	if cfg.Embedding.Dimensions != 768 {
		t.Errorf("dimensions=%d", cfg.Embedding.Dimensions)
	}
	if cfg.Ingest.ChunkSize != 256 || cfg.Ingest.ChunkOverlap != 32 {
		t.Errorf("ingest config: %+v", cfg.Ingest)
	}
	if cfg.Debug {
		t.Error("debug should default to false")
	}
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, "{}\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 8000 {
		t.Errorf("default port=%d", cfg.Server.Port)
	}
	if cfg.Embedding.Dimensions != 384 {
		t.Errorf("default dimensions=%d", cfg.Embedding.Dimensions)
	}
	if cfg.Embedding.Provider != "openai" || cfg.Embedding.APIKeyEnv != "OPENAI_API_KEY" {
		t.Errorf("embedding defaults: %+v", cfg.Embedding)
	}
	if cfg.Ingest.ChunkSize != 512 || cfg.Ingest.ChunkOverlap != 50 || cfg.Ingest.MaxResults != 5 {
		t.Errorf("ingest defaults: %+v", cfg.Ingest)
	}
	if cfg.Storage.SnapshotDir == "" || cfg.Storage.DatabasePath == "" {
		t.Errorf("storage defaults: %+v", cfg.Storage)
	}
}

func TestLoad_InvalidOverlap(t *testing.T) {
	path := writeConfig(t, `
ingest:
  chunk_size: 10
  chunk_overlap: 10
`)
	if _, err := Load(path); err == nil {
		t.Error("overlap == size should fail validation")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9999")
	t.Setenv("VECTOR_DIMENSION", "1536")
	path := writeConfig(t, "{}\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("PORT override: port=%d", cfg.Server.Port)
	}
	if cfg.Embedding.Dimensions != 1536 {
		t.Errorf("VECTOR_DIMENSION override: dimensions=%d", cfg.Embedding.Dimensions)
	}
}

func TestLoad_ExpandsDotSlashRelativeToConfigDir(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
storage:
  snapshot_dir: "./vectors"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(dir, "vectors")
	if cfg.Storage.SnapshotDir != want {
		t.Errorf("snapshot_dir=%q, want %q", cfg.Storage.SnapshotDir, want)
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default config must validate: %v", err)
	}
}
