// Package config loads service configuration from a YAML file with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"time"

	yaml "gopkg.in/yaml.v2"
)

// DBConfig holds database connection settings.
type DBConfig struct {
	URL             string `yaml:"url"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime_minutes"`
}

// ServerConfig holds HTTP API settings.
type ServerConfig struct {
	Port            string   `yaml:"port"`
	ShutdownTimeout int      `yaml:"shutdown_timeout_seconds"`
	AllowOrigins    []string `yaml:"allow_origins"`
}

// SchedulerConfig holds cron expressions for the periodic services.
type SchedulerConfig struct {
	CleanupCron string `yaml:"cleanup_cron"`
	ReportCron  string `yaml:"report_cron"`
}

// CleanupConfig holds retention settings for the scheduled cleanup.
type CleanupConfig struct {
	RetentionDays       int  `yaml:"retention_days"`
	RemoveOldExecutions bool `yaml:"remove_old_executions"`
	RemoveOrphanPoints  bool `yaml:"remove_orphan_rollback_points"`
}

// Config is the root configuration of the service.
type Config struct {
	Database  DBConfig        `yaml:"database"`
	Server    ServerConfig    `yaml:"server"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Cleanup   CleanupConfig   `yaml:"cleanup"`
	LogFormat string          `yaml:"log_format"`
}

// Default returns the configuration used when no file is provided.
func Default() Config {
	return Config{
		Database: DBConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30,
		},
		Server: ServerConfig{
			Port:            "8080",
			ShutdownTimeout: 3,
		},
		Scheduler: SchedulerConfig{
			CleanupCron: "@daily",
			ReportCron:  "@daily",
		},
		Cleanup: CleanupConfig{
			RetentionDays:       30,
			RemoveOldExecutions: true,
			RemoveOrphanPoints:  true,
		},
		LogFormat: "text",
	}
}

// Load reads configuration from the given YAML file path, falling back to
// defaults when path is empty. DATABASE_URL and MIGROND_PORT environment
// variables override file values.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}

		err = yaml.Unmarshal(data, &cfg)
		if err != nil {
			return Config{}, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if url := os.Getenv("DATABASE_URL"); url != "" {
		cfg.Database.URL = url
	}
	if port := os.Getenv("MIGROND_PORT"); port != "" {
		cfg.Server.Port = port
	}

	if cfg.Database.URL == "" {
		return Config{}, fmt.Errorf("database url is not configured (set database.url or DATABASE_URL)")
	}

	return cfg, nil
}

// ConnMaxLifetime returns the configured connection lifetime as a duration.
func (c DBConfig) ConnMaxLifetimeDuration() time.Duration {
	return time.Duration(c.ConnMaxLifetime) * time.Minute
}

// ShutdownTimeoutDuration returns the configured shutdown timeout as a duration.
func (c ServerConfig) ShutdownTimeoutDuration() time.Duration {
	return time.Duration(c.ShutdownTimeout) * time.Second
}
