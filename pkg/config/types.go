package config

import (
	"fmt"
	"time"
)

// Config is the run daemon configuration
type Config struct {
	LogLevel       string         `yaml:"log_level" validate:"oneof=debug info warn error"`
	LogFormat      string         `yaml:"log_format" validate:"oneof=json text"`
	GRPCAddr       string         `yaml:"grpc_addr" validate:"required"`
	HTTPAddr       string         `yaml:"http_addr" validate:"required"`
	MaxRuns        int            `yaml:"max_runs" validate:"gte=1"`
	Workers        int            `yaml:"workers" validate:"gte=0"`
	Callback       CallbackConfig `yaml:"callback"`

	// RateLimitRPS bounds run creation; 0 disables admission control
	RateLimitRPS float64 `yaml:"rate_limit_rps" validate:"gte=0"`
	// RateLimitBurst defaults to 1 when limiting
	RateLimitBurst int `yaml:"rate_limit_burst" validate:"gte=0"`
}

// CallbackConfig tunes completion notifications
type CallbackConfig struct {
	Timeout    string `yaml:"timeout"`
	MaxRetries int    `yaml:"max_retries" validate:"gte=0"`
	BaseDelay  string `yaml:"base_delay"`
	// Backoff is exponential (jittered, capped at 30x base_delay) or constant
	Backoff string `yaml:"backoff" validate:"omitempty,oneof=exponential constant"`
}

// DefaultConfig returns the daemon defaults
func DefaultConfig() *Config {
	return &Config{
		LogLevel:       "info",
		LogFormat:      "json",
		GRPCAddr:       ":50051",
		HTTPAddr:       ":8080",
		MaxRuns:        256,
		Workers:        0,
		RateLimitRPS:   0,
		RateLimitBurst: 0,
		Callback: CallbackConfig{
			Timeout:    "10s",
			MaxRetries: 3,
			BaseDelay:  "1s",
			Backoff:    "exponential",
		},
	}
}

// GetTimeout parses the callback timeout
func (c CallbackConfig) GetTimeout() (time.Duration, error) {
	return parsePositiveDuration("callback.timeout", c.Timeout)
}

// GetBaseDelay parses the first retry delay
func (c CallbackConfig) GetBaseDelay() (time.Duration, error) {
	return parsePositiveDuration("callback.base_delay", c.BaseDelay)
}

func parsePositiveDuration(field, value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", field, value)
	}
	return d, nil
}
