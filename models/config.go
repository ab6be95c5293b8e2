// Package models defines data structures for configuration and catalog rows.
package models

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultCatalogPath    = "metawarc.db"
	DefaultConfigPath     = "metawarc.yaml"
	DefaultExtractTimeout = 30 * time.Second
	DefaultProgressEvery  = 10000
	DefaultServerAddr     = "127.0.0.1:8089"
)

// Config holds runtime configuration. Values come from an optional YAML file
// and are overridden by CLI flags.
type Config struct {
	CatalogPath    string        `yaml:"catalog"`
	DataDir        string        `yaml:"data_dir"`
	TempDir        string        `yaml:"temp_dir"`
	ExtractTimeout time.Duration `yaml:"extract_timeout"`
	Framing        string        `yaml:"framing"` // skip | strict
	ProgressEvery  int           `yaml:"progress_every"`
	LogLevel       string        `yaml:"log_level"`
	LogFormat      string        `yaml:"log_format"` // text | json
	ServerAddr     string        `yaml:"server_addr"`
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() Config {
	return Config{
		CatalogPath:    DefaultCatalogPath,
		ExtractTimeout: DefaultExtractTimeout,
		Framing:        "skip",
		ProgressEvery:  DefaultProgressEvery,
		LogLevel:       "info",
		LogFormat:      "text",
		ServerAddr:     DefaultServerAddr,
	}
}

// LoadConfig reads a YAML config file on top of the defaults. A missing file
// is not an error.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks enumerated fields.
func (c Config) Validate() error {
	switch c.Framing {
	case "", "skip", "strict":
	default:
		return fmt.Errorf("invalid framing policy: %q (use skip or strict)", c.Framing)
	}
	switch c.LogFormat {
	case "", "text", "json":
	default:
		return fmt.Errorf("invalid log format: %q (use text or json)", c.LogFormat)
	}
	if c.ExtractTimeout < 0 {
		return fmt.Errorf("extract_timeout must not be negative")
	}
	return nil
}
