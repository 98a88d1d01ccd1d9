// Package config implements the configuration management for the cache job
// engine. It handles parsing and validation of every option recognized by
// the engine, as listed in section 6 of the design specification.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for a TeamCache Manager engine instance.
type Config struct {
	RootPath     string   `yaml:"root_path"`
	AllowedRoots []string `yaml:"allowed_roots"`

	Database DatabaseConfig `yaml:"database"`

	WorkerCountDefault        int `yaml:"worker_count_default"`
	MaxConcurrentFilesDefault int `yaml:"max_concurrent_files_default"`
	PollIntervalDefaultMS     int `yaml:"poll_interval_default_ms"`

	ReadTimeoutMS            int   `yaml:"read_timeout_ms"`
	IndexBatchSize            int  `yaml:"index_batch_size"`
	DirectorySizeCacheTTLMS   int64 `yaml:"directory_size_cache_ttl_ms"`
	ShutdownTimeoutMS         int   `yaml:"shutdown_timeout_ms"`
	RollupMaxDepth            int   `yaml:"rollup_max_depth"`
	ReleaseClaimsOnPause      bool  `yaml:"release_claims_on_pause"`
	LeaseDuration             time.Duration `yaml:"-"`
	LeaseDurationMS           int64 `yaml:"lease_duration_ms"`
}

// DatabaseConfig configures the relational Catalog Store connection.
type DatabaseConfig struct {
	DSN             string `yaml:"dsn"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
}

// ReadTimeout returns the configured per-file read timeout as a Duration.
func (c *Config) ReadTimeout() time.Duration {
	return time.Duration(c.ReadTimeoutMS) * time.Millisecond
}

// PollInterval returns the default worker poll interval as a Duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalDefaultMS) * time.Millisecond
}

// ShutdownTimeout returns the configured graceful-shutdown budget.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutMS) * time.Millisecond
}

// DirectorySizeCacheTTL returns the freshness window for cached DirectorySize results.
func (c *Config) DirectorySizeCacheTTL() time.Duration {
	return time.Duration(c.DirectorySizeCacheTTLMS) * time.Millisecond
}

// DefaultConfig returns the engine defaults named in section 6 of the spec.
func DefaultConfig() *Config {
	return &Config{
		AllowedRoots: nil,
		Database: DatabaseConfig{
			MaxOpenConns: 20,
			MaxIdleConns: 5,
		},
		WorkerCountDefault:        4,
		MaxConcurrentFilesDefault: 4,
		PollIntervalDefaultMS:     1000,
		ReadTimeoutMS:             10000,
		IndexBatchSize:            500,
		DirectorySizeCacheTTLMS:   3600000,
		ShutdownTimeoutMS:         30000,
		RollupMaxDepth:            20,
		ReleaseClaimsOnPause:      false,
		LeaseDurationMS:           60000,
	}
}

// Load reads configuration from a YAML file, falling back to defaults for
// anything the file doesn't set, then layers environment-variable overrides
// on top. This mirrors the file-then-env layering used by comparable
// config-driven services in the retrieved pack.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		if err := loadFromFile(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}

	applyEnvOverrides(cfg)
	cfg.LeaseDuration = time.Duration(cfg.LeaseDurationMS) * time.Millisecond
	cfg.RootPath = expandPath(cfg.RootPath)

	return cfg, nil
}

func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

func applyEnvOverrides(cfg *Config) {
	if root := os.Getenv("TCACHE_ROOT_PATH"); root != "" {
		cfg.RootPath = root
	}
	if dsn := os.Getenv("TCACHE_DATABASE_DSN"); dsn != "" {
		cfg.Database.DSN = dsn
	}
	if allowed := os.Getenv("TCACHE_ALLOWED_ROOTS"); allowed != "" {
		cfg.AllowedRoots = strings.Split(allowed, ",")
	}
}

func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}

// Validate implements the validation requirements from section 6 of the
// spec. It ensures all required fields are present and have valid values
// before any subsystem is constructed.
func (c *Config) Validate() error {
	if c.RootPath == "" {
		return fmt.Errorf("root_path is required")
	}
	if len(c.AllowedRoots) == 0 {
		return fmt.Errorf("allowed_roots must contain at least one entry")
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if c.WorkerCountDefault < 1 {
		return fmt.Errorf("worker_count_default must be at least 1")
	}
	if c.MaxConcurrentFilesDefault < 1 {
		return fmt.Errorf("max_concurrent_files_default must be at least 1")
	}
	if c.PollIntervalDefaultMS < 1 {
		return fmt.Errorf("poll_interval_default_ms must be at least 1")
	}
	if c.ReadTimeoutMS < 1 {
		return fmt.Errorf("read_timeout_ms must be at least 1")
	}
	if c.IndexBatchSize < 1 {
		return fmt.Errorf("index_batch_size must be at least 1")
	}
	if c.RollupMaxDepth < 1 {
		return fmt.Errorf("rollup_max_depth must be at least 1")
	}
	if c.ShutdownTimeoutMS < 1000 {
		return fmt.Errorf("shutdown_timeout_ms must be at least 1000")
	}
	return nil
}

// IsPathAllowed implements the path-policy check required by every
// path-taking operation in section 6: the input must lie under one of the
// configured allow-list roots.
func (c *Config) IsPathAllowed(path string) bool {
	clean := filepath.Clean(path)
	for _, root := range c.AllowedRoots {
		root = filepath.Clean(root)
		if clean == root || strings.HasPrefix(clean, root+string(filepath.Separator)) {
			return true
		}
	}
	return false
}
