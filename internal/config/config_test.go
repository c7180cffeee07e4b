package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Default()

	if cfg.Analysis.KmerSize != 17 {
		t.Errorf("KmerSize = %d, want 17", cfg.Analysis.KmerSize)
	}
	if cfg.Acquire.Retries != 3 {
		t.Errorf("Retries = %d, want 3", cfg.Acquire.Retries)
	}
	if cfg.Entrez.MinBases != 5e9 {
		t.Errorf("MinBases = %d, want 5e9", cfg.Entrez.MinBases)
	}
	if len(cfg.Entrez.ExcludedTaxids) != 3 {
		t.Errorf("ExcludedTaxids = %v", cfg.Entrez.ExcludedTaxids)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.General.DefaultCategory != "mammals" {
		t.Errorf("DefaultCategory = %q, want mammals", cfg.General.DefaultCategory)
	}
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.toml")

	content := `
[general]
repo_root = "/data/kmunity"
default_category = "birds"

[acquire]
retries = 5
retry_backoff = "1m"

[analysis]
kmer_size = 21
timeout = "2h"
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.General.RepoRoot != "/data/kmunity" {
		t.Errorf("RepoRoot = %q", cfg.General.RepoRoot)
	}
	if cfg.Acquire.Retries != 5 {
		t.Errorf("Retries = %d, want 5", cfg.Acquire.Retries)
	}
	if cfg.Acquire.RetryBackoff != time.Minute {
		t.Errorf("RetryBackoff = %v, want 1m", cfg.Acquire.RetryBackoff)
	}
	if cfg.Analysis.KmerSize != 21 {
		t.Errorf("KmerSize = %d, want 21", cfg.Analysis.KmerSize)
	}
	if cfg.Analysis.Timeout != 2*time.Hour {
		t.Errorf("Timeout = %v, want 2h", cfg.Analysis.Timeout)
	}
	// untouched sections keep defaults
	if cfg.Analysis.Threads != 4 {
		t.Errorf("Threads = %d, want 4", cfg.Analysis.Threads)
	}
}

func TestLoad_InvalidConfig(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.toml")

	content := `
[analysis]
kmer_size = -1
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(configPath); err == nil {
		t.Error("negative kmer_size should be rejected")
	}
}

func TestExpandPath(t *testing.T) {
	home, _ := os.UserHomeDir()

	tests := []struct {
		input string
		want  string
	}{
		{"~/scratch", filepath.Join(home, "scratch")},
		{"/abs/path", "/abs/path"},
		{"rel/path", "rel/path"},
	}
	for _, tt := range tests {
		if got := ExpandPath(tt.input); got != tt.want {
			t.Errorf("ExpandPath(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
