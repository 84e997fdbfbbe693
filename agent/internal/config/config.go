// Package config loads the Agent's TOML configuration document.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config is the root Agent configuration, per spec §6.
type Config struct {
	Agent   AgentSection   `mapstructure:"agent" toml:"agent"`
	Server  ServerSection  `mapstructure:"server" toml:"server"`
	Logging LoggingSection `mapstructure:"logging" toml:"logging"`
}

type AgentSection struct {
	Name       string `mapstructure:"name" toml:"name"`
	AdminToken string `mapstructure:"admin_token" toml:"admin_token"`
	ShareToken string `mapstructure:"share_token" toml:"share_token"`
}

type ServerSection struct {
	URL               string `mapstructure:"url" toml:"url"`
	ReconnectInterval int    `mapstructure:"reconnect_interval_seconds" toml:"reconnect_interval_seconds"`
	HeartbeatInterval int    `mapstructure:"heartbeat_interval_seconds" toml:"heartbeat_interval_seconds"`
}

type LoggingSection struct {
	Level    string `mapstructure:"level" toml:"level"`
	File     string `mapstructure:"file" toml:"file,omitempty"`
	Rotation string `mapstructure:"rotation" toml:"rotation"`
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
	v.SetDefault("server.reconnect_interval_seconds", 10)
	v.SetDefault("server.heartbeat_interval_seconds", 30)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.rotation", "daily")
}

func (c *Config) validate() error {
	if c.Agent.Name == "" {
		return fmt.Errorf("agent.name is required")
	}
	if c.Agent.AdminToken == "" {
		return fmt.Errorf("agent.admin_token is required")
	}
	if c.Agent.ShareToken == "" {
		return fmt.Errorf("agent.share_token is required")
	}
	if c.Server.URL == "" {
		return fmt.Errorf("server.url is required")
	}
	if c.Server.ReconnectInterval <= 0 {
		return fmt.Errorf("server.reconnect_interval_seconds must be positive")
	}
	if c.Server.HeartbeatInterval <= 0 {
		return fmt.Errorf("server.heartbeat_interval_seconds must be positive")
	}
	return nil
}

// ReconnectInterval returns the base reconnect delay as a duration.
func (c *Config) ReconnectInterval() time.Duration {
	return time.Duration(c.Server.ReconnectInterval) * time.Second
}

// HeartbeatInterval returns the heartbeat period as a duration.
func (c *Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.Server.HeartbeatInterval) * time.Second
}
