// Package main provides the ReactorMon server CLI.
package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration for YAML decoding of strings like "2m".
type Duration time.Duration

// UnmarshalYAML decodes a duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config represents the server configuration.
type Config struct {
	Server        ServerConfig       `yaml:"server"`
	Database      DatabaseConfig     `yaml:"database"`
	ClickHouse    ClickHouseConfig   `yaml:"clickhouse"`
	Monitor       MonitorConfig      `yaml:"monitor"`
	Retention     RetentionConfig    `yaml:"retention"`
	Notifications NotificationConfig `yaml:"notifications"`
	LogLevel      string             `yaml:"log_level"`
	Verbose       bool               `yaml:"-"` // set via CLI flag
}

// ServerConfig contains listener settings.
type ServerConfig struct {
	APIAddress     string  `yaml:"api_address"`     // ops API listen address (default: :8080)
	MetricsAddress string  `yaml:"metrics_address"` // Prometheus listen address (default: :9090)
	IngestPerSec   float64 `yaml:"ingest_per_sec"`  // telemetry ingest cap, samples/sec (0 = unlimited)
}

// DatabaseConfig contains SQLite settings.
type DatabaseConfig struct {
	Path string `yaml:"path"` // SQLite database path
}

// ClickHouseConfig contains telemetry store settings.
type ClickHouseConfig struct {
	Addresses   []string `yaml:"addresses"`
	Database    string   `yaml:"database"`
	Username    string   `yaml:"username"`
	Password    string   `yaml:"password"`
	Compression bool     `yaml:"compression"`
}

// MonitorConfig contains monitoring sweep settings.
type MonitorConfig struct {
	Interval             Duration `yaml:"interval"`               // time between sweeps (default: 2m)
	DedupWindow          Duration `yaml:"dedup_window"`           // duplicate suppression window (default: 5m)
	DedupLookback        int      `yaml:"dedup_lookback"`         // recent alerts inspected (default: 10)
	CriticalDeviationPct float64  `yaml:"critical_deviation_pct"` // deviation above this is critical (default: 20)
}

// RetentionConfig contains retention sweep settings.
type RetentionConfig struct {
	Interval    Duration `yaml:"interval"`     // time between cleanups (default: 24h)
	DefaultDays int      `yaml:"default_days"` // telemetry window for reactors without their own (default: 365)
	AlertDays   int      `yaml:"alert_days"`   // acknowledged alert window (default: 90)
}

// NotificationConfig contains email notification settings.
type NotificationConfig struct {
	Enabled       bool            `yaml:"enabled"`
	SMTP          SMTPConfig      `yaml:"smtp"`
	MaxConcurrent int             `yaml:"max_concurrent"` // concurrent deliveries per alert (default: 5)
	RateLimit     RateLimitConfig `yaml:"rate_limit"`
}

// SMTPConfig contains SMTP server settings.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

// RateLimitConfig contains dispatch rate limit settings.
type RateLimitConfig struct {
	Enabled      bool     `yaml:"enabled"`
	MaxPerWindow int      `yaml:"max_per_window"` // default: 10
	Window       Duration `yaml:"window"`         // default: 1m
}

// LoadConfig loads configuration from a YAML file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

// setDefaults sets default values for missing config fields.
func (c *Config) setDefaults() {
	if c.Server.APIAddress == "" {
		c.Server.APIAddress = ":8080"
	}
	if c.Server.MetricsAddress == "" {
		c.Server.MetricsAddress = ":9090"
	}
	if c.Database.Path == "" {
		c.Database.Path = "data/reactormon.db"
	}
	if len(c.ClickHouse.Addresses) == 0 {
		c.ClickHouse.Addresses = []string{"localhost:9000"}
	}
	if c.ClickHouse.Database == "" {
		c.ClickHouse.Database = "reactormon"
	}
	if c.Monitor.Interval == 0 {
		c.Monitor.Interval = Duration(2 * time.Minute)
	}
	if c.Monitor.DedupWindow == 0 {
		c.Monitor.DedupWindow = Duration(5 * time.Minute)
	}
	if c.Monitor.DedupLookback == 0 {
		c.Monitor.DedupLookback = 10
	}
	if c.Monitor.CriticalDeviationPct == 0 {
		c.Monitor.CriticalDeviationPct = 20
	}
	if c.Retention.Interval == 0 {
		c.Retention.Interval = Duration(24 * time.Hour)
	}
	if c.Retention.DefaultDays == 0 {
		c.Retention.DefaultDays = 365
	}
	if c.Retention.AlertDays == 0 {
		c.Retention.AlertDays = 90
	}
	if c.Notifications.MaxConcurrent == 0 {
		c.Notifications.MaxConcurrent = 5
	}
	if c.Notifications.RateLimit.MaxPerWindow == 0 {
		c.Notifications.RateLimit.MaxPerWindow = 10
	}
	if c.Notifications.RateLimit.Window == 0 {
		c.Notifications.RateLimit.Window = Duration(time.Minute)
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Monitor.Interval.Std() < time.Second {
		return fmt.Errorf("monitor.interval must be at least 1s")
	}
	if c.Retention.Interval.Std() < time.Minute {
		return fmt.Errorf("retention.interval must be at least 1m")
	}
	if c.Retention.DefaultDays < 1 {
		return fmt.Errorf("retention.default_days must be positive")
	}
	if c.Retention.AlertDays < 1 {
		return fmt.Errorf("retention.alert_days must be positive")
	}
	if c.Monitor.CriticalDeviationPct < 0 {
		return fmt.Errorf("monitor.critical_deviation_pct must not be negative")
	}
	if c.Notifications.Enabled {
		if c.Notifications.SMTP.Host == "" {
			return fmt.Errorf("notifications.smtp.host is required when notifications are enabled")
		}
		if c.Notifications.SMTP.Port == 0 {
			return fmt.Errorf("notifications.smtp.port is required when notifications are enabled")
		}
		if c.Notifications.SMTP.From == "" {
			return fmt.Errorf("notifications.smtp.from is required when notifications are enabled")
		}
	}
	return nil
}
