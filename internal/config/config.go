package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config holds all application configuration
type Config struct {
	General       GeneralConfig       `toml:"general"`
	Acquire       AcquireConfig       `toml:"acquire"`
	Analysis      AnalysisConfig      `toml:"analysis"`
	Entrez        EntrezConfig        `toml:"entrez"`
	History       HistoryConfig       `toml:"history"`
	Notifications NotificationsConfig `toml:"notifications"`
	Daemon        DaemonConfig        `toml:"daemon"`
}

// GeneralConfig holds repository and scratch locations
type GeneralConfig struct {
	RepoRoot        string `toml:"repo_root"`
	ScratchRoot     string `toml:"scratch_root"`
	DefaultCategory string `toml:"default_category"`
}

// AcquireConfig holds download tool paths and retry policy
type AcquireConfig struct {
	Prefetch        string        `toml:"prefetch"`
	FasterqDump     string        `toml:"fasterq_dump"`
	Retries         int           `toml:"retries"`
	RetryBackoff    time.Duration `toml:"retry_backoff"`
	SpaceMultiplier float64       `toml:"space_multiplier"`
}

// AnalysisConfig holds k-mer tool paths and invocation settings
type AnalysisConfig struct {
	Kmerfreq string        `toml:"kmerfreq"`
	GCE      string        `toml:"gce"`
	KmerSize int           `toml:"kmer_size"`
	Threads  int           `toml:"threads"`
	Timeout  time.Duration `toml:"timeout"`
}

// EntrezConfig holds NCBI eutils query settings
type EntrezConfig struct {
	BaseURL        string        `toml:"base_url"`
	Tool           string        `toml:"tool"`
	Email          string        `toml:"email"`
	MinBases       int64         `toml:"min_bases"`
	ExcludedTaxids []int         `toml:"excluded_taxids"`
	Retries        int           `toml:"retries"`
	RetryBackoff   time.Duration `toml:"retry_backoff"`
}

// HistoryConfig holds the local attempt-history database location
type HistoryConfig struct {
	DatabasePath string `toml:"database_path"`
}

// NotificationsConfig holds notification settings
type NotificationsConfig struct {
	WebhookURL string `toml:"webhook_url"`
	Desktop    bool   `toml:"desktop"`
}

// DaemonConfig holds scheduled auto-run settings
type DaemonConfig struct {
	Cron       string   `toml:"cron"`
	Categories []string `toml:"categories"`
}

// Default returns a Config with sensible defaults
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		General: GeneralConfig{
			RepoRoot:        "./kmunity",
			ScratchRoot:     os.TempDir(),
			DefaultCategory: "mammals",
		},
		Acquire: AcquireConfig{
			Prefetch:        "prefetch",
			FasterqDump:     "fasterq-dump",
			Retries:         3,
			RetryBackoff:    30 * time.Second,
			SpaceMultiplier: 3.0,
		},
		Analysis: AnalysisConfig{
			Kmerfreq: "kmerfreq",
			GCE:      "gce",
			KmerSize: 17,
			Threads:  4,
			Timeout:  12 * time.Hour,
		},
		Entrez: EntrezConfig{
			BaseURL:        "https://eutils.ncbi.nlm.nih.gov/entrez/eutils",
			Tool:           "kmunity",
			Email:          "research@university.edu",
			MinBases:       5e9,
			ExcludedTaxids: []int{9606, 10090, 9615},
			Retries:        3,
			RetryBackoff:   10 * time.Second,
		},
		History: HistoryConfig{
			DatabasePath: filepath.Join(home, ".kmunity", "history.db"),
		},
		Notifications: NotificationsConfig{},
		Daemon: DaemonConfig{
			Cron:       "0 * * * *",
			Categories: []string{"mammals"},
		},
	}
}

// Load reads configuration from a TOML file, falling back to defaults
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	// Expand paths
	cfg.General.RepoRoot = ExpandPath(cfg.General.RepoRoot)
	cfg.General.ScratchRoot = ExpandPath(cfg.General.ScratchRoot)
	cfg.History.DatabasePath = ExpandPath(cfg.History.DatabasePath)

	return cfg, cfg.Validate()
}

// Validate checks settings that would otherwise fail deep inside a run
func (c *Config) Validate() error {
	if c.Acquire.Retries < 0 {
		return fmt.Errorf("acquire.retries must be >= 0")
	}
	if c.Analysis.KmerSize <= 0 {
		return fmt.Errorf("analysis.kmer_size must be positive")
	}
	if c.Analysis.Threads <= 0 {
		return fmt.Errorf("analysis.threads must be positive")
	}
	if c.Acquire.SpaceMultiplier < 1 {
		return fmt.Errorf("acquire.space_multiplier must be >= 1")
	}
	return nil
}

// ExpandPath expands ~ to the user's home directory
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// DefaultConfigPath returns the default config file location
func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "kmunity", "config.toml")
}
