// Package config provides configuration management for labelcomposer.
//
// The config file controls how the process runs (listen address, database
// location, scheme directory, logging). Schemes themselves live in scheme
// files and the database, never in the config.
//
// Config file locations (priority order):
//  1. $LABELCOMPOSER_CONFIG
//  2. ./labelcomposer.yaml
//  3. $XDG_CONFIG_HOME/labelcomposer/config.yaml
//  4. ~/.config/labelcomposer/config.yaml
//  5. /etc/labelcomposer/config.yaml
//
// Relative database and scheme directory paths in a config file are resolved
// against the directory of that file. Without a configured path the database
// lives at $XDG_DATA_HOME/labelcomposer/labelcomposer.db.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"labelcomposer/internal/domain"
	"labelcomposer/internal/logging"
)

const (
	defaultAddr         = ":3000"
	defaultPattern      = "**/*.{yaml,yml,json,toml}"
	defaultDebounce     = 500 * time.Millisecond
	defaultReadTimeout  = 15 * time.Second
	defaultWriteTimeout = 15 * time.Second
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load finds and loads the config file, or returns defaults if none found
func Load() (*Config, string, error) {
	path := FindConfigPath()

	if path == "" {
		return DefaultConfig(), "", nil
	}

	return LoadFromPath(path)
}

// LoadFromPath loads config from a specific path
func LoadFromPath(path string) (*Config, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, path, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, path, fmt.Errorf("parse config: %w", err)
	}

	cfg.resolvePaths(path)
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, path, err
	}

	return &cfg, path, nil
}

// Save writes config to the specified path
func (c *Config) Save(path string) error {
	if err := EnsureParentDir(path); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0644)
}

// Validate checks field constraints after defaults were applied
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// DefaultConfig returns sensible defaults for a new installation
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// applyDefaults fills in missing values with defaults
func (c *Config) applyDefaults() {
	if c.Version == 0 {
		c.Version = 1
	}
	if c.Server.Addr == "" {
		c.Server.Addr = defaultAddr
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = Duration(defaultReadTimeout)
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = Duration(defaultWriteTimeout)
	}
	if c.Database.Path == "" {
		c.Database.Path = DefaultDatabasePath()
	}
	if c.Schemes.Pattern == "" {
		c.Schemes.Pattern = defaultPattern
	}
	if c.Schemes.Debounce == 0 {
		c.Schemes.Debounce = Duration(defaultDebounce)
	}
	if c.Closure.WarnThreshold == 0 {
		c.Closure.WarnThreshold = domain.DefaultWarnThreshold
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// LoggingConfig converts the logging section for logging.Init
func (c *Config) LoggingConfig() logging.Config {
	lc := logging.DefaultConfig()
	if level, err := logging.ParseLevel(c.Logging.Level); err == nil {
		lc.Level = level
	} else {
		lc.Level = slog.LevelInfo
	}
	lc.Format = c.Logging.Format
	return lc
}

// Summary returns a human-readable config summary
func (c *Config) Summary() string {
	summary := fmt.Sprintf("Listen: %s, Database: %s\n", c.Server.Addr, c.Database.Path)
	if c.Schemes.Dir != "" {
		summary += fmt.Sprintf("Schemes: %s (%s), watch: %v\n", c.Schemes.Dir, c.Schemes.Pattern, c.Schemes.Watch)
	}
	summary += fmt.Sprintf("Closure warn threshold: %d", c.Closure.WarnThreshold)
	return summary
}
