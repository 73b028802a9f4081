// Package config provides the configuration structure for the voice studio client.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"
)

// Defaults applied to unset values.
const (
	DefaultBaseURL             = "http://localhost:8080"
	DefaultTimeoutSeconds      = 300
	DefaultMaxTextLength       = 500
	DefaultSessionBucketPrefix = "VOICE_STUDIO"
	DefaultGeneratedSubject    = "audio.chunk.created"
)

var (
	// ErrBaseURLEmpty indicates a missing service URL.
	ErrBaseURLEmpty = errors.New("service base_url cannot be empty")
	// ErrTimeoutNegative indicates a negative request timeout.
	ErrTimeoutNegative = errors.New("service timeout_seconds must be non-negative")
	// ErrSessionTTLNegative indicates a negative session TTL.
	ErrSessionTTLNegative = errors.New("nats session_ttl_minutes must be non-negative")
)

// ServiceConfig holds the settings for the generation service.
type ServiceConfig struct {
	BaseURL        string `toml:"base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	MaxTextLength  int    `toml:"max_text_length"`
}

// Timeout returns the request timeout as a duration.
func (s ServiceConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// NATSConfig holds the configuration for NATS. An empty URL disables
// persistent sessions and notifications.
type NATSConfig struct {
	URL                 string `toml:"url"`
	SessionBucketPrefix string `toml:"session_bucket_prefix"`
	SessionTTLMinutes   int    `toml:"session_ttl_minutes"`
	GeneratedSubject    string `toml:"generated_subject"`
}

// SessionTTL returns the session lifetime; zero means no expiry. It also
// applies to local sessions under paths.session_dir.
func (n NATSConfig) SessionTTL() time.Duration {
	return time.Duration(n.SessionTTLMinutes) * time.Minute
}

// SliderConfig describes one generation slider. Step is a string because
// its decimal places set the display precision.
type SliderConfig struct {
	Min     float64 `toml:"min"`
	Max     float64 `toml:"max"`
	Default float64 `toml:"default"`
	Step    string  `toml:"step"`
}

// SlidersConfig holds the three generation sliders.
type SlidersConfig struct {
	Exaggeration SliderConfig `toml:"exaggeration"`
	Temperature  SliderConfig `toml:"temperature"`
	CFGWeight    SliderConfig `toml:"cfg_weight"`
}

// PathsConfig holds the configuration for file paths. SessionDir keeps
// sessions in a local database when NATS is not configured.
type PathsConfig struct {
	BaseLogsDir string `toml:"base_logs_dir"`
	MetricsFile string `toml:"metrics_file"`
	SessionDir  string `toml:"session_dir"`
}

// Config is the root configuration structure.
type Config struct {
	Service ServiceConfig `toml:"service"`
	NATS    NATSConfig    `toml:"nats"`
	Sliders SlidersConfig `toml:"sliders"`
	Paths   PathsConfig   `toml:"paths"`
}

// Load loads the configuration for the voice studio client.
func Load(log *logger.Logger) (*Config, error) {
	var cfg Config

	err := configurator.Load(&cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from configurator: %w", err)
	}

	cfg.ApplyDefaults()

	err = cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// ApplyDefaults fills unset values. Slider defaults follow the service's
// own defaults for the Chatterbox model.
func (c *Config) ApplyDefaults() {
	if c.Service.BaseURL == "" {
		c.Service.BaseURL = DefaultBaseURL
	}

	if c.Service.TimeoutSeconds == 0 {
		c.Service.TimeoutSeconds = DefaultTimeoutSeconds
	}

	if c.Service.MaxTextLength == 0 {
		c.Service.MaxTextLength = DefaultMaxTextLength
	}

	if c.NATS.SessionBucketPrefix == "" {
		c.NATS.SessionBucketPrefix = DefaultSessionBucketPrefix
	}

	if c.NATS.GeneratedSubject == "" {
		c.NATS.GeneratedSubject = DefaultGeneratedSubject
	}

	applySliderDefaults(&c.Sliders.Exaggeration, SliderConfig{Min: 0.25, Max: 2, Default: 0.5, Step: "0.05"})
	applySliderDefaults(&c.Sliders.Temperature, SliderConfig{Min: 0.05, Max: 5, Default: 0.8, Step: "0.05"})
	applySliderDefaults(&c.Sliders.CFGWeight, SliderConfig{Min: 0, Max: 1, Default: 0.5, Step: "0.05"})
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Service.BaseURL == "" {
		return ErrBaseURLEmpty
	}

	if c.Service.TimeoutSeconds < 0 {
		return fmt.Errorf("%w: got %d", ErrTimeoutNegative, c.Service.TimeoutSeconds)
	}

	if c.NATS.SessionTTLMinutes < 0 {
		return fmt.Errorf("%w: got %d", ErrSessionTTLNegative, c.NATS.SessionTTLMinutes)
	}

	return nil
}

func applySliderDefaults(slider *SliderConfig, defaults SliderConfig) {
	if slider.Step == "" {
		*slider = defaults
	}
}
