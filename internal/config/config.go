// Package config provides configuration loading for diagnosd.
//
// Configuration is loaded from a YAML file with environment variable
// overrides. Defaults are chosen so the daemon starts with nothing but a
// provider API key.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/diagnosd/internal/logging"
)

// Config holds the complete diagnosd configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Logging       logging.Config      `koanf:"logging"`
	Observability ObservabilityConfig `koanf:"observability"`
	Provider      ProviderConfig      `koanf:"provider"`
	NATS          NATSConfig          `koanf:"nats"`
	Engine        EngineConfig        `koanf:"engine"`
	LangPack      LangPackConfig      `koanf:"langpack"`
	Store         StoreConfig         `koanf:"store"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// ObservabilityConfig holds OpenTelemetry configuration.
type ObservabilityConfig struct {
	Enabled     bool    `koanf:"enabled"`
	ServiceName string  `koanf:"service_name"`
	Endpoint    string  `koanf:"endpoint"`
	Protocol    string  `koanf:"protocol"` // "grpc" or "http/protobuf"
	Insecure    bool    `koanf:"insecure"`
	SampleRate  float64 `koanf:"sample_rate"`
}

// ProviderConfig holds text-completion provider configuration.
type ProviderConfig struct {
	// Kind selects the provider implementation: "anthropic" or "openai".
	Kind        string   `koanf:"kind"`
	Model       string   `koanf:"model"`
	APIKey      Secret   `koanf:"api_key"`
	BaseURL     string   `koanf:"base_url"`
	Timeout     Duration `koanf:"timeout"`
	MaxTokens   int      `koanf:"max_tokens"`
	Temperature float64  `koanf:"temperature"`
	RateLimit   float64  `koanf:"rate_limit"` // requests per second
	Burst       int      `koanf:"burst"`
	MaxRetries  int      `koanf:"max_retries"`
}

// NATSConfig holds NATS connection configuration for the ERP backend
// (machine context enrichment, escalation events).
type NATSConfig struct {
	URL            string   `koanf:"url"`
	RequestTimeout Duration `koanf:"request_timeout"`
	SubjectPrefix  string   `koanf:"subject_prefix"`
}

// EngineConfig holds troubleshooting engine configuration.
type EngineConfig struct {
	// MaxSteps is the ceiling of steps per session before the engine
	// escalates with reason steps_exceeded.
	MaxSteps int `koanf:"max_steps"`

	// DefaultLanguage is the fallback for unsupported language codes.
	DefaultLanguage string `koanf:"default_language"`

	// MaintenanceHistoryLimit caps how many recent maintenance entries
	// are included in analysis prompts.
	MaintenanceHistoryLimit int `koanf:"maintenance_history_limit"`
}

// LangPackConfig holds language pack configuration.
type LangPackConfig struct {
	// Path points to a YAML file overriding the embedded phrase tables.
	// Empty means embedded defaults only.
	Path string `koanf:"path"`

	// Watch enables hot reload of the override file.
	Watch bool `koanf:"watch"`
}

// StoreConfig holds session store configuration.
type StoreConfig struct {
	// Path is the SQLite database file. ":memory:" keeps sessions
	// in-process only.
	Path        string   `koanf:"path"`
	BusyTimeout Duration `koanf:"busy_timeout"`
}

// Default returns a Config populated with defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "localhost",
			Port:            9180,
			ShutdownTimeout: Duration(10 * time.Second),
		},
		Logging: logging.Default(),
		Observability: ObservabilityConfig{
			Enabled:     false,
			ServiceName: "diagnosd",
			Endpoint:    "localhost:4317",
			Protocol:    "grpc",
			Insecure:    true,
			SampleRate:  1.0,
		},
		Provider: ProviderConfig{
			Kind:        "anthropic",
			Model:       "claude-3-5-haiku-latest",
			Timeout:     Duration(30 * time.Second),
			MaxTokens:   2048,
			Temperature: 0.2,
			RateLimit:   2.0,
			Burst:       4,
			MaxRetries:  2,
		},
		NATS: NATSConfig{
			URL:            "nats://localhost:4222",
			RequestTimeout: Duration(3 * time.Second),
			SubjectPrefix:  "diagnosd",
		},
		Engine: EngineConfig{
			MaxSteps:                7,
			DefaultLanguage:         "en",
			MaintenanceHistoryLimit: 5,
		},
		LangPack: LangPackConfig{},
		Store: StoreConfig{
			Path:        "diagnosd.db",
			BusyTimeout: Duration(5 * time.Second),
		},
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ShutdownTimeout.Duration() <= 0 {
		return errors.New("shutdown timeout must be positive")
	}
	if err := c.Logging.Validate(); err != nil {
		return err
	}
	if c.Observability.Enabled && c.Observability.ServiceName == "" {
		return errors.New("service name required when telemetry is enabled")
	}
	switch c.Provider.Kind {
	case "anthropic", "openai":
	default:
		return fmt.Errorf("unknown provider kind: %q", c.Provider.Kind)
	}
	if c.Provider.Timeout.Duration() <= 0 {
		return errors.New("provider timeout must be positive")
	}
	if c.Engine.MaxSteps < 1 {
		return fmt.Errorf("engine max_steps must be at least 1, got %d", c.Engine.MaxSteps)
	}
	if c.Engine.DefaultLanguage == "" {
		return errors.New("engine default_language is required")
	}
	if c.Store.Path == "" {
		return errors.New("store path is required")
	}
	return nil
}
