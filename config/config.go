// Package config provides configuration management for the backend.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Configuration validation errors.
var (
	ErrMissingDatabaseURL = errors.New("database.url is required (or set DATABASE_URL)")
	ErrInvalidListenAddr  = errors.New("http.listen_addr is required")
	ErrInvalidShortlist   = errors.New("matching.shortlist_size must be at least 1")
	ErrInvalidHorizon     = errors.New("matching.horizon_days must be at least 1")
	ErrInvalidOfferTTL    = errors.New("matching.offer_ttl must be positive")
	ErrInvalidLogLevel    = errors.New("logging.level must be one of: debug, info, warn, error")
)

// Config represents the complete backend configuration.
type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Database DatabaseConfig `yaml:"database"`
	Matching MatchingConfig `yaml:"matching"`
	Voice    VoiceConfig    `yaml:"voice"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// HTTPConfig contains HTTP server settings.
type HTTPConfig struct {
	ListenAddr string `yaml:"listen_addr"`
	PageSize   int    `yaml:"page_size"`
}

// DatabaseConfig contains PostgreSQL settings. URL is usually left empty
// in the file and supplied via the DATABASE_URL environment variable.
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// MatchingConfig tunes the match worker.
type MatchingConfig struct {
	ShortlistSize int           `yaml:"shortlist_size"`
	HorizonDays   int           `yaml:"horizon_days"`
	OfferTTL      time.Duration `yaml:"offer_ttl"`
	PollInterval  time.Duration `yaml:"poll_interval"`
}

// VoiceConfig tunes the voice assistant. APIKey is usually supplied via
// the ANTHROPIC_API_KEY environment variable rather than the file.
type VoiceConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

// LoggingConfig defines logging behavior.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		HTTP: HTTPConfig{
			ListenAddr: ":8000",
			PageSize:   25,
		},
		Matching: MatchingConfig{
			ShortlistSize: 5,
			HorizonDays:   10,
			OfferTTL:      48 * time.Hour,
			PollInterval:  5 * time.Second,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from a YAML file, fills unset fields with
// defaults, and applies environment overrides. An empty path loads
// defaults plus environment only.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// applyEnv applies environment overrides. Secrets come from the
// environment so config files can be committed.
func (c *Config) applyEnv() {
	if url := os.Getenv("DATABASE_URL"); url != "" {
		c.Database.URL = url
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		c.Voice.APIKey = key
	}
	if addr := os.Getenv("GREENCHAIN_LISTEN_ADDR"); addr != "" {
		c.HTTP.ListenAddr = addr
	}
}

// applyDefaults fills fields a partial YAML file left zero.
func (c *Config) applyDefaults() {
	def := Default()
	if c.HTTP.ListenAddr == "" {
		c.HTTP.ListenAddr = def.HTTP.ListenAddr
	}
	if c.HTTP.PageSize <= 0 {
		c.HTTP.PageSize = def.HTTP.PageSize
	}
	if c.Matching.ShortlistSize == 0 {
		c.Matching.ShortlistSize = def.Matching.ShortlistSize
	}
	if c.Matching.HorizonDays == 0 {
		c.Matching.HorizonDays = def.Matching.HorizonDays
	}
	if c.Matching.OfferTTL == 0 {
		c.Matching.OfferTTL = def.Matching.OfferTTL
	}
	if c.Matching.PollInterval == 0 {
		c.Matching.PollInterval = def.Matching.PollInterval
	}
	if c.Logging.Level == "" {
		c.Logging.Level = def.Logging.Level
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return ErrMissingDatabaseURL
	}
	if c.HTTP.ListenAddr == "" {
		return ErrInvalidListenAddr
	}
	if c.Matching.ShortlistSize < 1 {
		return ErrInvalidShortlist
	}
	if c.Matching.HorizonDays < 1 {
		return ErrInvalidHorizon
	}
	if c.Matching.OfferTTL <= 0 {
		return ErrInvalidOfferTTL
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return ErrInvalidLogLevel
	}

	return nil
}

// String returns a string representation of the config without secrets.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Listen: %s, Shortlist: %d, Horizon: %dd, OfferTTL: %s}",
		c.HTTP.ListenAddr,
		c.Matching.ShortlistSize,
		c.Matching.HorizonDays,
		c.Matching.OfferTTL,
	)
}
