package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the top-level application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Engine   EngineConfig   `yaml:"engine"`
	Workers  WorkersConfig  `yaml:"workers"`
	Notify   NotifyConfig   `yaml:"notify"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// DatabaseConfig holds the SQLite database location.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// EngineConfig holds workflow engine settings.
type EngineConfig struct {
	RunTimeoutSeconds int `yaml:"run_timeout_seconds"` // whole-run wall clock budget (default: 300)
	MaxAttempts       int `yaml:"max_attempts"`        // per-step attempts incl. the first (default: 3)
	InitialBackoffMs  int `yaml:"initial_backoff_ms"`  // delay before first retry (default: 100)
	MaxBackoffMs      int `yaml:"max_backoff_ms"`      // backoff cap (default: 2000)
}

// WorkersConfig holds queue consumer settings.
type WorkersConfig struct {
	Count             int `yaml:"count"`               // worker goroutines (default: 2)
	MaxDeliveries     int `yaml:"max_deliveries"`      // per-task deliveries incl. the first (default: 3)
	RetryDelaySeconds int `yaml:"retry_delay_seconds"` // redelivery delay (default: 5)
}

// NotifyConfig holds notification channel settings.
type NotifyConfig struct {
	Slack SlackConfig `yaml:"slack"`
	Email EmailConfig `yaml:"email"`
}

// SlackConfig holds chat-ops webhook settings.
type SlackConfig struct {
	WebhookURL string `yaml:"webhook_url"`
	Channel    string `yaml:"channel"`
}

// EmailConfig holds transactional email settings. Transport selects the
// implementation: "api" (HTTP JSON provider) or "smtp".
type EmailConfig struct {
	Transport string `yaml:"transport"`
	Endpoint  string `yaml:"endpoint"`
	APIKey    string `yaml:"api_key"`
	From      string `yaml:"from"`
	To        string `yaml:"to"`
	Subject   string `yaml:"subject"`

	SMTP SMTPConfig `yaml:"smtp"`
}

// SMTPConfig holds SMTP transport settings.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// defaults returns a Config populated with sensible default values.
func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Database: DatabaseConfig{
			Path: "contactflow.db",
		},
		Engine: EngineConfig{
			RunTimeoutSeconds: 300,
			MaxAttempts:       3,
			InitialBackoffMs:  100,
			MaxBackoffMs:      2000,
		},
		Workers: WorkersConfig{
			Count:             2,
			MaxDeliveries:     3,
			RetryDelaySeconds: 5,
		},
		Notify: NotifyConfig{
			Email: EmailConfig{Transport: "api"},
		},
	}
}

// Load reads a YAML configuration file at path and returns a Config.
// ${VAR} references in the file are expanded from the environment, so
// secrets like webhook URLs and API keys can stay out of the file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := defaults()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return cfg, nil
}

// LoadDefault tries to load "config.yaml" from the current directory.
// If the file does not exist, it returns sensible defaults.
// Any other error (e.g. permission denied, malformed YAML) is returned.
func LoadDefault() (*Config, error) {
	cfg, err := Load("config.yaml")
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return defaults(), nil
		}
		return nil, err
	}
	return cfg, nil
}
