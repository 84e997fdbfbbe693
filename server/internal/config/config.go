// Package config loads the Server's TOML configuration document.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config is the root Server configuration, matching spec §6 exactly.
type Config struct {
	Server          ServerSection   `mapstructure:"server" toml:"server"`
	Database        DatabaseSection `mapstructure:"database" toml:"database"`
	Security        SecuritySection `mapstructure:"security" toml:"security"`
	Logging         LoggingSection  `mapstructure:"logging" toml:"logging"`
	TerminalHistory HistorySection  `mapstructure:"terminal_history" toml:"terminal_history"`
	AuditLog        AuditSection    `mapstructure:"audit_log" toml:"audit_log"`
}

type ServerSection struct {
	Host string `mapstructure:"host" toml:"host"`
	Port int    `mapstructure:"port" toml:"port"`
}

type DatabaseSection struct {
	Type       string `mapstructure:"type" toml:"type"` // "sqlite" or "mysql"
	SQLitePath string `mapstructure:"sqlite_path" toml:"sqlite_path,omitempty"`
	MySQLURL   string `mapstructure:"mysql_url" toml:"mysql_url,omitempty"`
	RedisURL   string `mapstructure:"redis_url" toml:"redis_url,omitempty"`
}

type SecuritySection struct {
	SuperAdminToken    string `mapstructure:"super_admin_token" toml:"super_admin_token"`
	RateLimitPerMinute int    `mapstructure:"rate_limit_per_minute" toml:"rate_limit_per_minute"`
	TokenMinLength     int    `mapstructure:"token_min_length" toml:"token_min_length"`
}

type LoggingSection struct {
	Level    string `mapstructure:"level" toml:"level"`
	File     string `mapstructure:"file" toml:"file,omitempty"`
	Rotation string `mapstructure:"rotation" toml:"rotation"` // "daily" | "hourly"
}

type HistorySection struct {
	Enabled             bool `mapstructure:"enabled" toml:"enabled"`
	DefaultBufferSizeKB int  `mapstructure:"default_buffer_size_kb" toml:"default_buffer_size_kb"`
	MaxBufferSizeKB     int  `mapstructure:"max_buffer_size_kb" toml:"max_buffer_size_kb"`
	RetentionDays       int  `mapstructure:"retention_days" toml:"retention_days"`
}

type AuditSection struct {
	Enabled       bool `mapstructure:"enabled" toml:"enabled"`
	RetentionDays int  `mapstructure:"retention_days" toml:"retention_days"`
}

// Load reads and validates the TOML document at path.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)

	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.sqlite_path", "wireterm.db")

	v.SetDefault("security.token_min_length", 24)
	v.SetDefault("security.rate_limit_per_minute", 0)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.rotation", "daily")

	v.SetDefault("terminal_history.enabled", true)
	v.SetDefault("terminal_history.default_buffer_size_kb", 256)
	v.SetDefault("terminal_history.max_buffer_size_kb", 4096)
	v.SetDefault("terminal_history.retention_days", 7)

	v.SetDefault("audit_log.enabled", true)
	v.SetDefault("audit_log.retention_days", 30)
}

func (c *Config) validate() error {
	if c.Security.TokenMinLength <= 0 {
		return fmt.Errorf("security.token_min_length must be positive")
	}
	if len(c.Security.SuperAdminToken) < c.Security.TokenMinLength {
		return fmt.Errorf("security.super_admin_token must be at least %d characters", c.Security.TokenMinLength)
	}
	switch c.Database.Type {
	case "sqlite":
		if c.Database.SQLitePath == "" {
			return fmt.Errorf("database.sqlite_path is required when database.type is \"sqlite\"")
		}
	case "mysql":
		if c.Database.MySQLURL == "" {
			return fmt.Errorf("database.mysql_url is required when database.type is \"mysql\"")
		}
	default:
		return fmt.Errorf("database.type must be \"sqlite\" or \"mysql\", got %q", c.Database.Type)
	}
	if c.TerminalHistory.MaxBufferSizeKB < c.TerminalHistory.DefaultBufferSizeKB {
		return fmt.Errorf("terminal_history.max_buffer_size_kb must be >= default_buffer_size_kb")
	}
	return nil
}

// RetentionWindow returns the history retention window as a duration.
func (c *Config) RetentionWindow() time.Duration {
	return time.Duration(c.TerminalHistory.RetentionDays) * 24 * time.Hour
}

// AuditRetentionWindow returns the audit retention window as a duration.
func (c *Config) AuditRetentionWindow() time.Duration {
	return time.Duration(c.AuditLog.RetentionDays) * 24 * time.Hour
}
