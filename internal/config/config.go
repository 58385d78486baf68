// CredGuard - Multi-Tenant Credit Scoring and Batch Ingestion Platform
// Copyright 2026 CredGuard Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/credguard/credguard

// Package config loads and validates CredGuard configuration.
//
// Configuration is layered: built-in defaults, then an optional YAML
// file, then environment variables. See LoadWithKoanf.
package config

import (
	"fmt"
	"net/url"
	"time"
)

// Config is the root configuration for the CredGuard server.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Batch     BatchConfig     `koanf:"batch"`
	Scoring   ScoringConfig   `koanf:"scoring"`
	Bureau    BureauConfig    `koanf:"bureau"`
	Drift     DriftConfig     `koanf:"drift"`
	API       APIConfig       `koanf:"api"`
	Logging   LoggingConfig   `koanf:"logging"`
	Bootstrap BootstrapConfig `koanf:"bootstrap"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host        string        `koanf:"host"`
	Port        int           `koanf:"port"`
	Timeout     time.Duration `koanf:"timeout"`
	Environment string        `koanf:"environment"`
}

// DatabaseConfig holds DuckDB settings.
type DatabaseConfig struct {
	Path                   string `koanf:"path"`
	MaxMemory              string `koanf:"max_memory"`
	Threads                int    `koanf:"threads"` // 0 = runtime.NumCPU()
	PreserveInsertionOrder bool   `koanf:"preserve_insertion_order"`
}

// BatchConfig holds batch pipeline settings.
type BatchConfig struct {
	// MaxFileSize is the largest accepted CSV upload in bytes.
	MaxFileSize int64 `koanf:"max_file_size"`

	// JobTimeout bounds a single batch job run.
	JobTimeout time.Duration `koanf:"job_timeout"`

	// ProgressStore selects the progress tracker backend: badger or memory.
	ProgressStore string `koanf:"progress_store"`

	// ProgressPath is the BadgerDB directory for resumable job progress.
	ProgressPath string `koanf:"progress_path"`
}

// ScoringConfig holds ML scorer subprocess settings.
type ScoringConfig struct {
	// PythonBin is the interpreter used to invoke the model runner.
	PythonBin string `koanf:"python_bin"`

	// ScriptPath is the model runner entrypoint.
	ScriptPath string `koanf:"script_path"`

	SingleTimeout time.Duration `koanf:"single_timeout"`
	BatchTimeout  time.Duration `koanf:"batch_timeout"`
}

// BureauConfig holds credit bureau client defaults.
// Per-tenant enablement and tokens live in the tenant_bureau_config table;
// these values bound the outbound client itself.
type BureauConfig struct {
	BaseURL        string        `koanf:"base_url"`
	RequestTimeout time.Duration `koanf:"request_timeout"`
	CacheTTL       time.Duration `koanf:"cache_ttl"`
	RateLimit      float64       `koanf:"rate_limit"` // requests per second
	RateBurst      int           `koanf:"rate_burst"`
	MaxRetries     int           `koanf:"max_retries"`
}

// DriftConfig holds PSI drift detector settings.
type DriftConfig struct {
	// Enabled turns the periodic drift scheduler on.
	Enabled bool `koanf:"enabled"`

	// CheckInterval is the period between scheduled drift checks.
	CheckInterval time.Duration `koanf:"check_interval"`

	// MinSamples is the minimum score count per window.
	MinSamples int `koanf:"min_samples"`

	// MaxSamples caps the scores fetched per window.
	MaxSamples int `koanf:"max_samples"`
}

// APIConfig holds API behavior settings.
type APIConfig struct {
	DefaultPageSize   int           `koanf:"default_page_size"`
	MaxPageSize       int           `koanf:"max_page_size"`
	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
	CORSOrigins       []string      `koanf:"cors_origins"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// BootstrapConfig seeds the first tenant at startup. When APIKey is set
// and the tenants table is empty, a tenant is created with the bcrypt
// hash of that key. Ignored once any tenant exists.
type BootstrapConfig struct {
	TenantName string `koanf:"tenant_name"`
	APIKey     string `koanf:"api_key"`
}

// Validate checks that required configuration is present and valid.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateDatabase(); err != nil {
		return err
	}
	if err := c.validateBatch(); err != nil {
		return err
	}
	if err := c.validateBureau(); err != nil {
		return err
	}
	if err := c.validateDrift(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("SERVER_TIMEOUT must be positive, got %s", c.Server.Timeout)
	}
	return nil
}

func (c *Config) validateDatabase() error {
	if c.Database.Path == "" {
		return fmt.Errorf("DUCKDB_PATH is required")
	}
	if c.Database.Threads < 0 {
		return fmt.Errorf("DUCKDB_THREADS must not be negative, got %d", c.Database.Threads)
	}
	return nil
}

func (c *Config) validateBatch() error {
	if c.Batch.MaxFileSize <= 0 {
		return fmt.Errorf("BATCH_MAX_FILE_SIZE must be positive, got %d", c.Batch.MaxFileSize)
	}
	switch c.Batch.ProgressStore {
	case "badger", "memory":
	default:
		return fmt.Errorf("BATCH_PROGRESS_STORE must be badger or memory, got %q", c.Batch.ProgressStore)
	}
	if c.Batch.ProgressStore == "badger" && c.Batch.ProgressPath == "" {
		return fmt.Errorf("BATCH_PROGRESS_PATH is required when BATCH_PROGRESS_STORE=badger")
	}
	return nil
}

func (c *Config) validateBureau() error {
	if c.Bureau.BaseURL != "" {
		u, err := url.Parse(c.Bureau.BaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("BUREAU_BASE_URL is invalid: %q", c.Bureau.BaseURL)
		}
	}
	if c.Bureau.RequestTimeout <= 0 {
		return fmt.Errorf("BUREAU_REQUEST_TIMEOUT must be positive, got %s", c.Bureau.RequestTimeout)
	}
	if c.Bureau.CacheTTL <= 0 {
		return fmt.Errorf("BUREAU_CACHE_TTL must be positive, got %s", c.Bureau.CacheTTL)
	}
	return nil
}

func (c *Config) validateDrift() error {
	if !c.Drift.Enabled {
		return nil
	}
	if c.Drift.CheckInterval <= 0 {
		return fmt.Errorf("DRIFT_CHECK_INTERVAL must be positive when DRIFT_ENABLED=true")
	}
	if c.Drift.MinSamples <= 0 {
		return fmt.Errorf("DRIFT_MIN_SAMPLES must be positive, got %d", c.Drift.MinSamples)
	}
	if c.Drift.MaxSamples < c.Drift.MinSamples {
		return fmt.Errorf("DRIFT_MAX_SAMPLES (%d) must be >= DRIFT_MIN_SAMPLES (%d)",
			c.Drift.MaxSamples, c.Drift.MinSamples)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "trace", "debug", "info", "warn", "warning", "error", "fatal", "panic", "disabled":
	default:
		return fmt.Errorf("LOG_LEVEL must be a valid level, got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.Logging.Format)
	}
	return nil
}
