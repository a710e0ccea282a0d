// Package config provides environment-based configuration management
// Settings are read once at process start and injected into handlers and clients
package config

import (
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// AppConfig holds application-level configuration
type AppConfig struct {
	Port            int    `env:"PORT" envDefault:"3000"`
	LogLevel        string `env:"LOG_LEVEL" envDefault:"info"`
	LogStreamSecret string `env:"LOG_STREAM_SECRET"` // Enables /ws/logs when set
}

// MessengerConfig holds Messenger platform credentials and Send API settings
type MessengerConfig struct {
	PageAccessToken string        `env:"PAGE_ACCESS_TOKEN"` // Empty disables outbound sends
	VerifyToken     string        `env:"VERIFY_TOKEN"`      // For webhook verification handshake
	AppSecret       string        `env:"APP_SECRET"`        // Optional X-Hub-Signature-256 validation
	GraphAPIURL     string        `env:"GRAPH_API_URL" envDefault:"https://graph.facebook.com"`
	GraphAPIVersion string        `env:"GRAPH_API_VERSION" envDefault:"v17.0"`
	SendTimeout     time.Duration `env:"SEND_TIMEOUT" envDefault:"10s"`
}

// Config aggregates all configuration sections
type Config struct {
	App       AppConfig
	Messenger MessengerConfig
}

// Load builds a Config from an explicit environment map.
// For production use LoadFromEnv.
func Load(environ map[string]string) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, env.Options{Environment: environ}); err != nil {
		return nil, errors.Wrap(err, "parse environment")
	}

	if cfg.App.Port <= 0 || cfg.App.Port > 65535 {
		return nil, errors.Errorf("invalid PORT %d", cfg.App.Port)
	}
	if _, err := zerolog.ParseLevel(cfg.App.LogLevel); err != nil {
		return nil, errors.Wrapf(err, "invalid LOG_LEVEL %q", cfg.App.LogLevel)
	}
	if cfg.Messenger.SendTimeout <= 0 {
		return nil, errors.Errorf("invalid SEND_TIMEOUT %s", cfg.Messenger.SendTimeout)
	}
	cfg.Messenger.GraphAPIURL = strings.TrimRight(cfg.Messenger.GraphAPIURL, "/")

	return cfg, nil
}

// LoadFromEnv loads an optional .env file and then reads the process environment.
func LoadFromEnv(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return nil, errors.Wrapf(err, "load env file %s", envFile)
		}
	}
	return Load(environMap())
}

// HasAccessToken reports whether outbound sends are enabled
func (c *MessengerConfig) HasAccessToken() bool {
	return c.PageAccessToken != ""
}

// SignatureRequired reports whether POST /webhook must carry X-Hub-Signature-256
func (c *MessengerConfig) SignatureRequired() bool {
	return c.AppSecret != ""
}

func environMap() map[string]string {
	m := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			m[k] = v
		}
	}
	return m
}
