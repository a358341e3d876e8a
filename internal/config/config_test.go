package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseDefaultConfig(t *testing.T) {
	cfg, err := parse(DefaultConfigYAML)
	if err != nil {
		t.Fatalf("failed to parse default config: %v", err)
	}

	if len(cfg.Sources.Feeds) == 0 {
		t.Error("expected feeds to be populated")
	}

	if cfg.Store.Driver != "sqlite" {
		t.Errorf("expected driver 'sqlite', got %q", cfg.Store.Driver)
	}

	if cfg.Embedding.Model != "nomic-embed-text" {
		t.Errorf("expected model 'nomic-embed-text', got %q", cfg.Embedding.Model)
	}

	if cfg.Index.SimilarityThreshold != 0.3 {
		t.Errorf("expected threshold 0.3, got %v", cfg.Index.SimilarityThreshold)
	}

	if cfg.Clustering.PrioritySlots != 20 {
		t.Errorf("expected 20 priority slots, got %d", cfg.Clustering.PrioritySlots)
	}
}

func TestParseMinimalConfig(t *testing.T) {
	data := []byte(`
embedding:
  provider: openai
  openai_model: text-embedding-3-large
index:
  link_count: 5
`)
	cfg, err := parse(data)
	if err != nil {
		t.Fatalf("failed to parse minimal config: %v", err)
	}

	if cfg.Embedding.Provider != "openai" {
		t.Errorf("expected provider 'openai', got %q", cfg.Embedding.Provider)
	}
	if cfg.Index.LinkCount != 5 {
		t.Errorf("expected link_count 5, got %d", cfg.Index.LinkCount)
	}
	// Defaults should still be set for unspecified fields
	if cfg.Embedding.OllamaURL != "http://localhost:11434" {
		t.Errorf("expected default ollama_url, got %q", cfg.Embedding.OllamaURL)
	}
	if cfg.Index.SemanticWeight != 0.7 {
		t.Errorf("expected default semantic_weight 0.7, got %v", cfg.Index.SemanticWeight)
	}
	if cfg.Clustering.Seed != 42 {
		t.Errorf("expected default seed 42, got %d", cfg.Clustering.Seed)
	}
}

func TestParseRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"driver":   "store:\n  driver: mysql\n",
		"weight":   "index:\n  semantic_weight: 1.5\n",
		"links":    "index:\n  link_count: -1\n",
		"clusters": "clustering:\n  n_clusters: -3\n",
	}
	for name, data := range cases {
		if _, err := parse([]byte(data)); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, DefaultConfigYAML, 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if len(cfg.Sources.Feeds) == 0 {
		t.Error("expected feeds to be populated from file")
	}
}

func TestResolveExplicitPath(t *testing.T) {
	if _, err := ResolveConfigPath(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing explicit config")
	}

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, DefaultConfigYAML, 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}
	got, err := ResolveConfigPath(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != path {
		t.Errorf("expected %q, got %q", path, got)
	}
}

func TestGetDataDir(t *testing.T) {
	cfg := &Config{}
	defaultDir := cfg.GetDataDir()
	if defaultDir == "" {
		t.Error("expected non-empty default data dir")
	}

	cfg.Output.DataDir = "/custom/path"
	if cfg.GetDataDir() != "/custom/path" {
		t.Errorf("expected '/custom/path', got %q", cfg.GetDataDir())
	}
	if cfg.SnapshotPath() != filepath.Join("/custom/path", "index.snap") {
		t.Errorf("unexpected snapshot path %q", cfg.SnapshotPath())
	}
	if !strings.HasSuffix(cfg.DatabasePath(), "newslinker.db") {
		t.Errorf("unexpected database path %q", cfg.DatabasePath())
	}
}

func TestLoadEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Chdir(dir)

	if err := LoadEnv(); err != nil {
		t.Fatalf("LoadEnv without .env files: %v", err)
	}

	t.Setenv("NEWSLINKER_TEST_DSN", "")
	os.Unsetenv("NEWSLINKER_TEST_DSN")
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("NEWSLINKER_TEST_DSN=postgres://localhost/news\n"), 0o600); err != nil {
		t.Fatalf("writing .env: %v", err)
	}
	if err := LoadEnv(); err != nil {
		t.Fatalf("LoadEnv: %v", err)
	}
	if got := os.Getenv("NEWSLINKER_TEST_DSN"); got != "postgres://localhost/news" {
		t.Errorf("expected DSN from .env, got %q", got)
	}

	cfg := &Config{Store: Store{Driver: "postgres", PostgresDSNEnv: "NEWSLINKER_TEST_DSN"}}
	dsn, err := cfg.PostgresDSN()
	if err != nil || dsn != "postgres://localhost/news" {
		t.Errorf("PostgresDSN = %q, %v", dsn, err)
	}
}
