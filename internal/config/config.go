// Copyright 2025 Traceprompt
//
// Config holds everything an embedding application configures at Init time:
// data_dir, tenant_id, api_key, ingest_url, cmk_arn, batch_size,
// flush_interval_ms, static_meta, log_level. Values load from environment
// variables with defaults; static_meta loads from an optional YAML file.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds everything the audit pipeline needs at Init time.
type Config struct {
	DataDir         string
	TenantID        string
	APIKey          string
	IngestURL       string
	CMKArn          string
	Region          string
	BatchSize       int
	FlushIntervalMs int
	StaticMeta      map[string]interface{}
	LogLevel        string
}

// Load reads configuration from environment variables, applying defaults
// (batch_size 20, flush_interval_ms 2000). The file named by
// AUDIT_STATIC_META_FILE, if set, is parsed as YAML into StaticMeta.
func Load() (*Config, error) {
	cfg := &Config{
		DataDir:         getEnv("AUDIT_DATA_DIR", "."),
		TenantID:        getEnv("AUDIT_TENANT_ID", ""),
		APIKey:          getEnv("AUDIT_API_KEY", ""),
		IngestURL:       getEnv("AUDIT_INGEST_URL", ""),
		CMKArn:          getEnv("AUDIT_CMK_ARN", ""),
		Region:          getEnv("AUDIT_KMS_REGION", ""),
		BatchSize:       getEnvInt("AUDIT_BATCH_SIZE", 20),
		FlushIntervalMs: getEnvInt("AUDIT_FLUSH_INTERVAL_MS", 2000),
		LogLevel:        getEnv("AUDIT_LOG_LEVEL", "info"),
	}

	if metaFile := getEnv("AUDIT_STATIC_META_FILE", ""); metaFile != "" {
		meta, err := loadStaticMeta(metaFile)
		if err != nil {
			return nil, err
		}
		cfg.StaticMeta = meta
	}

	return cfg, nil
}

// Validate checks that every field required for Init is present, returning
// a *ConfigError naming what's missing.
func (c *Config) Validate() error {
	var missing []string
	if c.DataDir == "" {
		missing = append(missing, "data_dir")
	}
	if c.TenantID == "" {
		missing = append(missing, "tenant_id")
	}
	if c.APIKey == "" {
		missing = append(missing, "api_key")
	}
	if c.IngestURL == "" {
		missing = append(missing, "ingest_url")
	}
	if c.CMKArn == "" {
		missing = append(missing, "cmk_arn")
	}
	if c.BatchSize <= 0 {
		missing = append(missing, "batch_size")
	}
	if c.FlushIntervalMs <= 0 {
		missing = append(missing, "flush_interval_ms")
	}
	if len(missing) > 0 {
		return &ConfigError{Missing: missing}
	}
	return nil
}

// ConfigError reports missing required configuration.
type ConfigError struct {
	Missing []string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: missing required fields: %v", e.Missing)
}

func loadStaticMeta(path string) (map[string]interface{}, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read static_meta file %q: %w", path, err)
	}
	var meta map[string]interface{}
	if err := yaml.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("config: parse static_meta file %q as yaml: %w", path, err)
	}
	return meta, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
