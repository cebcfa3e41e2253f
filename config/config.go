// Package config loads and validates the hub's JSON configuration file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/agent-hud/hub/store"
)

// Duration unmarshals either a Go duration string ("30s") or a bare
// number of seconds.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch val := v.(type) {
	case string:
		parsed, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", val, err)
		}
		d.Duration = parsed
	case float64:
		d.Duration = time.Duration(val) * time.Second
	default:
		return fmt.Errorf("invalid duration value %v", v)
	}
	return nil
}

// Config is the top-level hub configuration.
type Config struct {
	Server   ServerConfig   `json:"server"`
	Storage  store.Config   `json:"storage"`
	Requests RequestsConfig `json:"requests"`
	Logging  LoggingConfig  `json:"logging"`
}

// ServerConfig controls the listener and per-connection limits. An
// empty Addr makes the hub scan localhost ports 8080-8199 for a free
// one.
type ServerConfig struct {
	Addr            string `json:"addr"`
	QueueSize       int    `json:"queue_size"`
	MaxMessageBytes int64  `json:"max_message_bytes"`
}

// RequestsConfig controls human-input request housekeeping.
type RequestsConfig struct {
	SweepInterval Duration `json:"sweep_interval"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json or text
}

// Default returns a configuration suitable for local use.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			QueueSize:       256,
			MaxMessageBytes: 1 << 20,
		},
		Storage: store.Config{
			Driver:        "sqlite",
			DSN:           "agent-hud.db",
			RetentionDays: 30,
		},
		Requests: RequestsConfig{
			SweepInterval: Duration{5 * time.Second},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a config file, applies defaults for omitted fields, and
// validates the result. Defaults are applied after parsing so that
// driver-specific ones (the sqlite DSN) never leak into a config that
// selected another driver.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	def := Default()
	if c.Server.QueueSize == 0 {
		c.Server.QueueSize = def.Server.QueueSize
	}
	if c.Server.MaxMessageBytes == 0 {
		c.Server.MaxMessageBytes = def.Server.MaxMessageBytes
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = def.Storage.Driver
	}
	if c.Storage.DSN == "" && c.Storage.Driver == "sqlite" {
		c.Storage.DSN = def.Storage.DSN
	}
	if c.Storage.RetentionDays == 0 {
		c.Storage.RetentionDays = def.Storage.RetentionDays
	}
	if c.Requests.SweepInterval.Duration == 0 {
		c.Requests.SweepInterval = def.Requests.SweepInterval
	}
	if c.Logging.Level == "" {
		c.Logging.Level = def.Logging.Level
	}
	if c.Logging.Format == "" {
		c.Logging.Format = def.Logging.Format
	}
}

// Validate rejects configurations the hub cannot run with.
func (c *Config) Validate() error {
	if c.Server.QueueSize < 1 {
		return fmt.Errorf("server.queue_size must be positive, got %d", c.Server.QueueSize)
	}
	if c.Server.MaxMessageBytes < 1024 {
		return fmt.Errorf("server.max_message_bytes must be at least 1024, got %d", c.Server.MaxMessageBytes)
	}
	switch c.Storage.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("storage.driver must be sqlite or postgres, got %q", c.Storage.Driver)
	}
	if c.Storage.Driver == "postgres" && c.Storage.DSN == "" {
		return fmt.Errorf("storage.dsn is required for postgres")
	}
	if c.Storage.RetentionDays < 0 {
		return fmt.Errorf("storage.retention_days must not be negative, got %d", c.Storage.RetentionDays)
	}
	if c.Requests.SweepInterval.Duration < time.Second {
		return fmt.Errorf("requests.sweep_interval must be at least 1s, got %s", c.Requests.SweepInterval)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("logging.format must be json or text, got %q", c.Logging.Format)
	}
	return nil
}

// Save writes the configuration as indented JSON.
func (c *Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o600)
}
