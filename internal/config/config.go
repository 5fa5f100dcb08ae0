// Package config provides configuration loading for companiond.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config holds the companiond configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Storage       StorageConfig       `koanf:"storage"`
	Auth          AuthConfig          `koanf:"auth"`
	Events        EventsConfig        `koanf:"events"`
	Chat          ChatConfig          `koanf:"chat"`
	Logging       LoggingConfig       `koanf:"logging"`
	Observability ObservabilityConfig `koanf:"observability"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"http_port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// StorageConfig holds the SQLite database location.
type StorageConfig struct {
	Path string `koanf:"path"`
}

// AuthConfig holds session token settings.
type AuthConfig struct {
	JWTSecret  Secret   `koanf:"jwt_secret"`
	CookieName string   `koanf:"cookie_name"`
	Issuer     string   `koanf:"issuer"`
	TokenTTL   Duration `koanf:"token_ttl"`
}

// EventsConfig controls the NATS-backed plan change feed.
type EventsConfig struct {
	Enabled bool   `koanf:"enabled"`
	NATSURL string `koanf:"nats_url"`
	// Embedded starts an in-process NATS server instead of dialing NATSURL.
	Embedded     bool `koanf:"embedded"`
	EmbeddedPort int  `koanf:"embedded_port"`
}

// ChatConfig controls plan discussion behavior.
type ChatConfig struct {
	PollInterval     Duration `koanf:"poll_interval"`
	MaxMessageLength int      `koanf:"max_message_length"`
	RateLimit        float64  `koanf:"rate_limit"`
	RateBurst        int      `koanf:"rate_burst"`
	Moderation       bool     `koanf:"moderation"`
	Gitleaks         bool     `koanf:"gitleaks"`
	AllowlistPath    string   `koanf:"allowlist_path"`
}

// LoggingConfig selects level and encoder for the process logger.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// ObservabilityConfig holds OpenTelemetry exporter settings.
type ObservabilityConfig struct {
	EnableTelemetry bool    `koanf:"enable_telemetry"`
	Endpoint        string  `koanf:"endpoint"`
	Protocol        string  `koanf:"protocol"`
	Insecure        bool    `koanf:"insecure"`
	ServiceName     string  `koanf:"service_name"`
	SampleRate      float64 `koanf:"sample_rate"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:            "localhost",
			Port:            9191,
			ShutdownTimeout: Duration(10 * time.Second),
		},
		Auth: AuthConfig{
			CookieName: "token",
			Issuer:     "companion",
			TokenTTL:   Duration(7 * 24 * time.Hour),
		},
		Events: EventsConfig{
			Enabled:      true,
			NATSURL:      "nats://localhost:4222",
			Embedded:     true,
			EmbeddedPort: -1,
		},
		Chat: ChatConfig{
			PollInterval:     Duration(5 * time.Second),
			MaxMessageLength: 2000,
			RateLimit:        2,
			RateBurst:        10,
			Moderation:       true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Observability: ObservabilityConfig{
			Endpoint:    "localhost:4317",
			Protocol:    "grpc",
			Insecure:    true,
			ServiceName: "companiond",
			SampleRate:  1.0,
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.http_port must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Server.ShutdownTimeout.Duration() <= 0 {
		errs = append(errs, errors.New("server.shutdown_timeout must be positive"))
	}
	if strings.TrimSpace(c.Storage.Path) == "" {
		errs = append(errs, errors.New("storage.path is required"))
	}
	if len(c.Auth.JWTSecret.Value()) < 32 {
		errs = append(errs, errors.New("auth.jwt_secret must be at least 32 bytes"))
	}
	if c.Auth.CookieName == "" {
		errs = append(errs, errors.New("auth.cookie_name is required"))
	}
	if c.Auth.TokenTTL.Duration() <= 0 {
		errs = append(errs, errors.New("auth.token_ttl must be positive"))
	}
	if c.Events.Enabled && !c.Events.Embedded && c.Events.NATSURL == "" {
		errs = append(errs, errors.New("events.nats_url is required when events are enabled without an embedded server"))
	}
	if c.Chat.PollInterval.Duration() < time.Second {
		errs = append(errs, errors.New("chat.poll_interval must be at least 1s"))
	}
	if c.Chat.MaxMessageLength < 1 {
		errs = append(errs, errors.New("chat.max_message_length must be positive"))
	}
	if c.Chat.RateLimit <= 0 || c.Chat.RateBurst < 1 {
		errs = append(errs, errors.New("chat.rate_limit and chat.rate_burst must be positive"))
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		errs = append(errs, fmt.Errorf("logging.format must be 'json' or 'console', got %q", c.Logging.Format))
	}
	if c.Observability.EnableTelemetry {
		if c.Observability.Endpoint == "" {
			errs = append(errs, errors.New("observability.endpoint is required when telemetry is enabled"))
		}
		if c.Observability.Protocol != "grpc" && c.Observability.Protocol != "http" {
			errs = append(errs, fmt.Errorf("observability.protocol must be 'grpc' or 'http', got %q", c.Observability.Protocol))
		}
	}

	return errors.Join(errs...)
}
