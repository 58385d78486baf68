// CredGuard - Multi-Tenant Credit Scoring and Batch Ingestion Platform
// Copyright 2026 CredGuard Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/credguard/credguard

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in order
// of priority. The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/credguard/config.yaml",
	"/etc/credguard/config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config with all built-in defaults.
// These are applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        8480,
			Timeout:     30 * time.Second,
			Environment: "development",
		},
		Database: DatabaseConfig{
			Path:                   "/data/credguard.duckdb",
			MaxMemory:              "2GB",
			Threads:                0, // 0 = use runtime.NumCPU()
			PreserveInsertionOrder: true,
		},
		Batch: BatchConfig{
			MaxFileSize:   50 << 20, // 50MB
			JobTimeout:    30 * time.Minute,
			ProgressStore: "badger",
			ProgressPath:  "/data/progress",
		},
		Scoring: ScoringConfig{
			PythonBin:     "python3",
			ScriptPath:    "ml_service.py",
			SingleTimeout: 30 * time.Second,
			BatchTimeout:  120 * time.Second,
		},
		Bureau: BureauConfig{
			BaseURL:        "https://api.apibrasil.io",
			RequestTimeout: 5 * time.Second,
			CacheTTL:       24 * time.Hour,
			RateLimit:      10,
			RateBurst:      5,
			MaxRetries:     5,
		},
		Drift: DriftConfig{
			Enabled:       true,
			CheckInterval: 24 * time.Hour,
			MinSamples:    100,
			MaxSamples:    1000,
		},
		API: APIConfig{
			DefaultPageSize:   20,
			MaxPageSize:       100,
			RateLimitReqs:     100,
			RateLimitWindow:   1 * time.Minute,
			RateLimitDisabled: false,
			CORSOrigins:       []string{"*"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
		Bootstrap: BootstrapConfig{
			TenantName: "default",
		},
	}
}

// LoadWithKoanf loads configuration using Koanf v2 with layered sources:
//  1. Defaults: built-in sensible defaults
//  2. Config file: optional YAML config file (if exists)
//  3. Environment variables: override any setting
//
// Precedence is ENV > File > Defaults.
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	defaults := defaultConfig()
	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	configPath := findConfigFile()
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Transform environment variable names to koanf paths:
	// HTTP_PORT -> server.port, BUREAU_CACHE_TTL -> bureau.cache_ttl
	envProvider := env.Provider("", ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile searches for a config file in the default paths.
// Returns the path to the first file found, or empty string if none found.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths defines which config paths are parsed as comma-separated slices.
var sliceConfigPaths = []string{
	"api.cors_origins",
}

// processSliceFields converts comma-separated string values to slices for known
// slice fields. Env vars come in as strings but the config expects slices.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}
		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}
		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envTransformFunc transforms environment variable names to koanf config paths.
//
// Examples:
//   - HTTP_PORT -> server.port
//   - DUCKDB_PATH -> database.path
//   - BUREAU_BASE_URL -> bureau.base_url
//   - LOG_LEVEL -> logging.level
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	envMappings := map[string]string{
		"http_host":   "server.host",
		"http_port":   "server.port",
		"environment": "server.environment",

		"duckdb_path":       "database.path",
		"duckdb_max_memory": "database.max_memory",
		"duckdb_threads":    "database.threads",

		"batch_max_file_size":  "batch.max_file_size",
		"batch_job_timeout":    "batch.job_timeout",
		"batch_progress_store": "batch.progress_store",
		"batch_progress_path":  "batch.progress_path",

		"scoring_python_bin":     "scoring.python_bin",
		"scoring_script_path":    "scoring.script_path",
		"scoring_single_timeout": "scoring.single_timeout",
		"scoring_batch_timeout":  "scoring.batch_timeout",

		"bureau_base_url":        "bureau.base_url",
		"bureau_request_timeout": "bureau.request_timeout",
		"bureau_cache_ttl":       "bureau.cache_ttl",
		"bureau_rate_limit":      "bureau.rate_limit",
		"bureau_rate_burst":      "bureau.rate_burst",
		"bureau_max_retries":     "bureau.max_retries",

		"drift_enabled":        "drift.enabled",
		"drift_check_interval": "drift.check_interval",
		"drift_min_samples":    "drift.min_samples",
		"drift_max_samples":    "drift.max_samples",

		"api_default_page_size": "api.default_page_size",
		"api_max_page_size":     "api.max_page_size",
		"rate_limit_reqs":       "api.rate_limit_reqs",
		"rate_limit_window":     "api.rate_limit_window",
		"rate_limit_disabled":   "api.rate_limit_disabled",
		"cors_origins":          "api.cors_origins",

		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}

	// Unknown variables are dropped so unrelated environment noise does not
	// leak into the config tree.
	return ""
}
