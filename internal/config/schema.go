package config

import (
	"time"
)

// Config is the root configuration structure
type Config struct {
	Version  int            `yaml:"version"`
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Schemes  SchemesConfig  `yaml:"schemes"`
	Closure  ClosureConfig  `yaml:"closure"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds HTTP listener settings
type ServerConfig struct {
	Addr         string   `yaml:"addr" validate:"required"`
	ReadTimeout  Duration `yaml:"read_timeout,omitempty"`
	WriteTimeout Duration `yaml:"write_timeout,omitempty"`
}

// DatabaseConfig holds database settings
type DatabaseConfig struct {
	Path string `yaml:"path" validate:"required"`
}

// SchemesConfig describes where scheme files live and whether to watch them
type SchemesConfig struct {
	Dir      string   `yaml:"dir,omitempty"`
	Pattern  string   `yaml:"pattern"`
	Watch    bool     `yaml:"watch"`
	Debounce Duration `yaml:"debounce,omitempty"`
}

// ClosureConfig tunes the closure engine
type ClosureConfig struct {
	WarnThreshold int `yaml:"warn_threshold" validate:"gte=1"`
}

// LoggingConfig selects log verbosity and output format
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=debug info warn warning error"`
	Format string `yaml:"format" validate:"omitempty,oneof=text json"`
}

// Duration wraps time.Duration for YAML unmarshaling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}
