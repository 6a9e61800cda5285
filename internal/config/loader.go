package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is looked up in the working directory.
const DefaultConfigFile = ".secqr.yaml"

// Environment variables that override file values.
const (
	EnvAPIURL      = "SECQR_API_URL"
	EnvServerAddr  = "SECQR_ADDR"
	EnvRedisAddr   = "REDIS_ADDR"
	EnvDatabaseDSN = "DATABASE_DSN"
	EnvJWTSecret   = "JWT_SECRET"
	EnvJWTAudience = "JWT_AUDIENCE"
)

// Load builds the configuration: defaults, then the config file (if any),
// then environment overrides. An explicit path that does not exist is an
// error; a missing default file is not.
func Load(path string) (*Config, error) {
	cfg := Default()

	file := FindConfigFile(path)
	if path != "" && file == "" {
		return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
	}
	if file != "" {
		data, err := os.ReadFile(file) //nolint:gosec // user-selected config path
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", file, err)
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

// FindConfigFile searches for the configuration file in the following order:
// 1. configPath, if specified
// 2. .secqr.yaml in the current directory
// 3. config.yaml in the XDG config directory
//
// Returns "" when nothing is found.
func FindConfigFile(configPath string) string {
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
		return ""
	}

	if cwd, err := os.Getwd(); err == nil {
		candidate := filepath.Join(cwd, DefaultConfigFile)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}

	candidate := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(candidate); err == nil {
		return candidate
	}
	return ""
}

func applyEnv(cfg *Config) {
	cfg.API.BaseURL = getEnv(EnvAPIURL, cfg.API.BaseURL)
	cfg.Server.Addr = getEnv(EnvServerAddr, cfg.Server.Addr)
	cfg.Redis.Addr = getEnv(EnvRedisAddr, cfg.Redis.Addr)
	cfg.Database.DSN = getEnv(EnvDatabaseDSN, cfg.Database.DSN)
	cfg.Server.JWTSecret = getEnv(EnvJWTSecret, cfg.Server.JWTSecret)
	cfg.Server.JWTAudience = getEnv(EnvJWTAudience, cfg.Server.JWTAudience)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
