// Package config loads service configuration from the environment.
//
// A .env file in the working directory is loaded first when present, then
// real environment variables take precedence. Validation happens once at
// startup; a misconfigured service refuses to boot rather than limping along.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds every runtime setting of the service.
type Config struct {
	// Server
	ListenAddr string `env:"LISTEN_ADDR" envDefault:":3004"`

	// Model provider
	LLMProvider string `env:"LLM_PROVIDER" envDefault:"gemini"`
	LLMModel    string `env:"LLM_MODEL" envDefault:"gemini-2.0-flash"`
	LLMAPIKey   string `env:"LLM_API_KEY"`
	LLMBaseURL  string `env:"LLM_BASE_URL"`

	// Tool gateway
	ToolGatewayURL string        `env:"TOOL_GATEWAY_URL" envDefault:"http://localhost:3003"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30s"`

	// Orchestration
	MaxToolIterations int `env:"MAX_TOOL_ITERATIONS" envDefault:"5"`

	// Conversation lifecycle
	ConversationRetention time.Duration `env:"CONVERSATION_RETENTION" envDefault:"1h"`
	EvictionInterval      time.Duration `env:"EVICTION_INTERVAL" envDefault:"15m"`

	// Logging
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// Load reads an optional .env file, parses the environment, and validates
// the result.
func Load() (*Config, error) {
	// Missing .env is the normal case outside local development.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: parsing environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks constraints that struct tags cannot express. All violations
// are reported together so a misconfigured deploy fails with the full list.
func (c *Config) Validate() error {
	var errs []error
	if c.LLMProvider == "" {
		errs = append(errs, fmt.Errorf("config: LLM_PROVIDER must not be empty"))
	}
	if c.LLMModel == "" {
		errs = append(errs, fmt.Errorf("config: LLM_MODEL must not be empty"))
	}
	if c.ToolGatewayURL == "" {
		errs = append(errs, fmt.Errorf("config: TOOL_GATEWAY_URL must not be empty"))
	}
	if c.MaxToolIterations < 1 {
		errs = append(errs, fmt.Errorf("config: MAX_TOOL_ITERATIONS must be at least 1, got %d", c.MaxToolIterations))
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("config: REQUEST_TIMEOUT must be positive, got %s", c.RequestTimeout))
	}
	if c.ConversationRetention <= 0 {
		errs = append(errs, fmt.Errorf("config: CONVERSATION_RETENTION must be positive, got %s", c.ConversationRetention))
	}
	if c.EvictionInterval <= 0 {
		errs = append(errs, fmt.Errorf("config: EVICTION_INTERVAL must be positive, got %s", c.EvictionInterval))
	}
	if _, err := c.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// SlogLevel maps the textual LOG_LEVEL setting to an [slog.Level].
func (c *Config) SlogLevel() (slog.Level, error) {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("config: unknown LOG_LEVEL %q", c.LogLevel)
	}
}
