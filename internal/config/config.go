// ABOUTME: Configuration for the player and the dev backend
// ABOUTME: Loads YAML defaults, .env files and DUBCAST_* overrides
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the complete configuration
type Config struct {
	Player  PlayerConfig  `yaml:"player"`
	Backend BackendConfig `yaml:"backend"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// PlayerConfig configures the streaming client
type PlayerConfig struct {
	Backend         string        `yaml:"backend"`   // base URL; empty browses mDNS
	Transport       string        `yaml:"transport"` // http or ws
	Source          string        `yaml:"source"`
	Languages       []string      `yaml:"languages"`
	DefaultLanguage string        `yaml:"default_language"`
	DocumentID      string        `yaml:"document_id"`
	SafetyMargin    time.Duration `yaml:"safety_margin"`
	MaxChunkSize    uint32        `yaml:"max_chunk_size"`
	SampleRate      int           `yaml:"sample_rate"`
	Channels        int           `yaml:"channels"`
	Volume          int           `yaml:"volume"`
	Decoder         string        `yaml:"decoder"` // auto or opus
	DiscoveryWait   time.Duration `yaml:"discovery_wait"`
}

// BackendConfig configures the dev backend
type BackendConfig struct {
	Addr         string        `yaml:"addr"`
	Name         string        `yaml:"name"`
	Segment      time.Duration `yaml:"segment"`
	Codec        string        `yaml:"codec"` // wav or opus
	Advertise    bool          `yaml:"advertise"`
	MaxChunkSize uint32        `yaml:"max_chunk_size"`
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
	Upstream     string        `yaml:"upstream"`     // proxy target; empty serves locally
	Pace         float64       `yaml:"pace"`         // 1 sends in real time, 0 as fast as possible
	SourceRoot   string        `yaml:"source_root"`  // confines local sources; empty allows any path
	SourceHosts  []string      `yaml:"source_hosts"` // allowed remote source hosts; empty allows any
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	Addr string `yaml:"addr"` // empty disables
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Player: PlayerConfig{
			Backend:         "http://localhost:8927",
			Transport:       "http",
			Languages:       []string{"english", "hindi", "hinglish"},
			DefaultLanguage: "english",
			SafetyMargin:    50 * time.Millisecond,
			MaxChunkSize:    16 << 20,
			SampleRate:      48000,
			Channels:        2,
			Volume:          100,
			Decoder:         "auto",
			DiscoveryWait:   3 * time.Second,
		},
		Backend: BackendConfig{
			Addr:         ":8927",
			Name:         "dubcast-backend",
			Segment:      2 * time.Second,
			Codec:        "wav",
			MaxChunkSize: 16 << 20,
			FetchTimeout: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 7,
		},
	}
}

// Load builds the configuration: defaults, then the YAML file at path (if
// any), then a .env file in the working directory, then DUBCAST_* variables.
func Load(path string) (*Config, error) {
	config := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	// godotenv never overrides variables that are already set.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	if err := config.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// ApplyEnv overrides fields from DUBCAST_* variables
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	dur := func(key string, dst *time.Duration) error {
		if v, ok := lookup(key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = d
		}
		return nil
	}

	str("DUBCAST_BACKEND", &c.Player.Backend)
	str("DUBCAST_TRANSPORT", &c.Player.Transport)
	str("DUBCAST_SOURCE", &c.Player.Source)
	str("DUBCAST_LANG", &c.Player.DefaultLanguage)
	str("DUBCAST_DOC_ID", &c.Player.DocumentID)
	str("DUBCAST_BACKEND_ADDR", &c.Backend.Addr)
	str("DUBCAST_CODEC", &c.Backend.Codec)
	str("DUBCAST_DECODER", &c.Player.Decoder)
	str("DUBCAST_UPSTREAM", &c.Backend.Upstream)
	str("DUBCAST_SOURCE_ROOT", &c.Backend.SourceRoot)
	str("DUBCAST_LOG_LEVEL", &c.Logging.Level)
	str("DUBCAST_LOG_FILE", &c.Logging.File)
	str("DUBCAST_METRICS_ADDR", &c.Metrics.Addr)

	if v, ok := lookup("DUBCAST_LANGUAGES"); ok {
		var langs []string
		for _, l := range strings.Split(v, ",") {
			if l = strings.TrimSpace(l); l != "" {
				langs = append(langs, l)
			}
		}
		c.Player.Languages = langs
	}
	if v, ok := lookup("DUBCAST_ADVERTISE"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("DUBCAST_ADVERTISE: %w", err)
		}
		c.Backend.Advertise = b
	}
	if err := dur("DUBCAST_SAFETY_MARGIN", &c.Player.SafetyMargin); err != nil {
		return err
	}
	return dur("DUBCAST_SEGMENT", &c.Backend.Segment)
}

// Validate performs validation of the configuration
func (c *Config) Validate() error {
	if err := c.Player.Validate(); err != nil {
		return fmt.Errorf("player config: %w", err)
	}
	if err := c.Backend.Validate(); err != nil {
		return fmt.Errorf("backend config: %w", err)
	}
	return nil
}

// Validate validates player configuration
func (p *PlayerConfig) Validate() error {
	if p.Backend != "" {
		u, err := url.Parse(p.Backend)
		if err != nil || u.Host == "" {
			return fmt.Errorf("invalid backend url %q", p.Backend)
		}
	}
	if p.Transport != "http" && p.Transport != "ws" {
		return fmt.Errorf("transport must be http or ws, got %q", p.Transport)
	}
	if len(p.Languages) == 0 {
		return errors.New("at least one language is required")
	}
	if !p.HasLanguage(p.DefaultLanguage) {
		return fmt.Errorf("default language %q is not in %v", p.DefaultLanguage, p.Languages)
	}
	if p.SafetyMargin < 0 {
		return fmt.Errorf("safety margin must be non-negative, got %v", p.SafetyMargin)
	}
	if p.SampleRate < 8000 || p.SampleRate > 192000 {
		return fmt.Errorf("sample rate must be between 8000 and 192000, got %d", p.SampleRate)
	}
	if p.Channels < 1 || p.Channels > 2 {
		return fmt.Errorf("channels must be 1 or 2, got %d", p.Channels)
	}
	if p.Volume < 0 || p.Volume > 100 {
		return fmt.Errorf("volume must be between 0 and 100, got %d", p.Volume)
	}
	if p.Decoder != "auto" && p.Decoder != "opus" {
		return fmt.Errorf("decoder must be auto or opus, got %q", p.Decoder)
	}
	return nil
}

// HasLanguage reports whether lang is offered
func (p *PlayerConfig) HasLanguage(lang string) bool {
	for _, l := range p.Languages {
		if l == lang {
			return true
		}
	}
	return false
}

// Validate validates backend configuration
func (b *BackendConfig) Validate() error {
	if b.Addr == "" {
		return errors.New("listen address is required")
	}
	if b.Segment < 20*time.Millisecond {
		return fmt.Errorf("segment must be at least 20ms, got %v", b.Segment)
	}
	if b.Codec != "wav" && b.Codec != "opus" {
		return fmt.Errorf("codec must be wav or opus, got %q", b.Codec)
	}
	if b.Pace < 0 {
		return fmt.Errorf("pace must be non-negative, got %v", b.Pace)
	}
	if b.SourceRoot != "" {
		info, err := os.Stat(b.SourceRoot)
		if err != nil || !info.IsDir() {
			return fmt.Errorf("source root %q is not a directory", b.SourceRoot)
		}
	}
	if b.Upstream != "" {
		u, err := url.Parse(b.Upstream)
		if err != nil || u.Host == "" {
			return fmt.Errorf("invalid upstream url %q", b.Upstream)
		}
	}
	return nil
}
