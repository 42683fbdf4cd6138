// Package config loads the book club settings from a YAML file with
// environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all book club configuration.
type Config struct {
	// SQLite file holding the three records.
	DatabasePath string `yaml:"database_path"`

	// Start an empty store with the built-in shelf of read books.
	SeedBooks bool `yaml:"seed_books"`

	Logging LoggingConfig `yaml:"logging"`
	Images  ImagesConfig  `yaml:"images"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// ImagesConfig bounds uploaded cover images.
type ImagesConfig struct {
	MaxBytes int64 `yaml:"max_bytes"`
}

// DefaultConfig returns the settings used when no file exists.
func DefaultConfig() *Config {
	return &Config{
		DatabasePath: "bookclub.db",
		SeedBooks:    true,
		Logging: LoggingConfig{
			Level: "warn",
		},
		Images: ImagesConfig{
			MaxBytes: 5 << 20,
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// Validate rejects settings the program cannot run with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database_path must not be empty")
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown logging level %q", c.Logging.Level)
	}
	if c.Images.MaxBytes <= 0 {
		return fmt.Errorf("images.max_bytes must be positive")
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if path := os.Getenv("BOOKCLUB_DB"); path != "" {
		c.DatabasePath = path
	}
	if level := os.Getenv("BOOKCLUB_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if v := os.Getenv("BOOKCLUB_NO_SEED"); v != "" {
		if noSeed, err := strconv.ParseBool(v); err == nil {
			c.SeedBooks = !noSeed
		}
	}
}
