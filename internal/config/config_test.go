package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  host: "127.0.0.1"
  port: 9000
storage:
  backend: sqlite
  path: "vectors"
embedding:
  provider: ollama
  ollama:
    timeout: 5s
    requests_per_second: 2.5
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Storage.Backend != "sqlite" {
		t.Errorf("backend: got %s", cfg.Storage.Backend)
	}
	if !filepath.IsAbs(cfg.Storage.Path) {
		t.Errorf("storage path should be absolute, got %s", cfg.Storage.Path)
	}
	if cfg.Embedding.Provider != "ollama" {
		t.Errorf("provider: got %s", cfg.Embedding.Provider)
	}
	if cfg.Embedding.Ollama.Timeout != 5*time.Second {
		t.Errorf("ollama timeout: got %v", cfg.Embedding.Ollama.Timeout)
	}
	if cfg.Embedding.Ollama.RequestsPerSecond != 2.5 {
		t.Errorf("ollama rps: got %v", cfg.Embedding.Ollama.RequestsPerSecond)
	}
	if cfg.Debug {
		t.Error("debug should default to false when unset")
	}
}

func TestLoad_debugTrue(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
debug: true
server:
  host: "localhost"
  port: 8000
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Debug {
		t.Error("debug should be true when set in config")
	}
}

func TestLoad_expandPathDotSlashRelativeToConfigDir(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
storage:
  path: "./data/vector_storage"
inbox:
  directory: "./inbox"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	wantStorage := filepath.Join(dir, "data", "vector_storage")
	if cfg.Storage.Path != wantStorage {
		t.Errorf("storage path = %s, want %s", cfg.Storage.Path, wantStorage)
	}
	wantInbox := filepath.Join(dir, "inbox")
	if cfg.Inbox.Directory != wantInbox {
		t.Errorf("inbox directory = %s, want %s", cfg.Inbox.Directory, wantInbox)
	}
}

func TestLoad_invalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("server: [unclosed"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestLoad_missingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected read error")
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	if cfg.Server.Host != "localhost" {
		t.Errorf("default host: got %s", cfg.Server.Host)
	}
	if cfg.Server.Port != 8000 {
		t.Errorf("default port: got %d", cfg.Server.Port)
	}
	if cfg.Storage.Backend != "file" || cfg.Storage.Compression != "none" {
		t.Errorf("default storage: got %+v", cfg.Storage)
	}
	if cfg.Embedding.Provider != "hash" || cfg.Embedding.Dimensions != 384 {
		t.Errorf("default embedding: got %+v", cfg.Embedding)
	}
	if cfg.Embedding.ModelName != "all-MiniLM-L6-v2" {
		t.Errorf("default model name: got %s", cfg.Embedding.ModelName)
	}
	if cfg.Embedding.Ollama.Timeout != 30*time.Second || cfg.Embedding.Ollama.Concurrency != 4 {
		t.Errorf("default ollama: got %+v", cfg.Embedding.Ollama)
	}
	if cfg.Query.DefaultTopK != 5 {
		t.Errorf("default top_k: got %d", cfg.Query.DefaultTopK)
	}
	if len(cfg.Inbox.Extensions) != 5 || cfg.Inbox.Extensions[0] != ".json" {
		t.Errorf("inbox extensions: got %v", cfg.Inbox.Extensions)
	}
	if cfg.Inbox.Directory != "" {
		t.Errorf("inbox should be disabled by default, got %s", cfg.Inbox.Directory)
	}
}

func TestDefault(t *testing.T) {
	dir := t.TempDir()
	cfg := Default(dir)
	want := filepath.Join(dir, "data", "vector_storage")
	if cfg.Storage.Path != want {
		t.Errorf("storage path = %s, want %s", cfg.Storage.Path, want)
	}
}

func TestSave(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "saved.yaml")
	cfg := &Config{
		Server:    ServerConfig{Host: "localhost", Port: 9090},
		Storage:   StorageConfig{Backend: "sqlite", Path: "/tmp/vectors"},
		Embedding: EmbeddingConfig{Ollama: OllamaConfig{Timeout: 12 * time.Second}},
	}
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Server.Port != 9090 {
		t.Errorf("loaded port: got %d", loaded.Server.Port)
	}
	if loaded.Storage.Backend != "sqlite" || loaded.Storage.Path != "/tmp/vectors" {
		t.Errorf("loaded storage: got %+v", loaded.Storage)
	}
	if loaded.Embedding.Ollama.Timeout != 12*time.Second {
		t.Errorf("loaded timeout: got %v", loaded.Embedding.Ollama.Timeout)
	}
}
