// Package config loads the process-lifetime configuration.
//
// Configuration is static: it is read once at startup from an optional YAML
// file, then overlaid with environment variables (env wins). There is no hot
// reload; restarting the process is the way to change settings.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	yaml "go.yaml.in/yaml/v3"
)

type Config struct {
	Logging LoggingConfig `yaml:"logging"`
	Server  ServerConfig  `yaml:"server"`
	Slack   SlackConfig   `yaml:"slack"`
	Jira    JiraConfig    `yaml:"jira"`
	Store   StoreConfig   `yaml:"store"`
	Queue   QueueConfig   `yaml:"queue"`

	// Bridge behavior. All required; there are deliberately no defaults,
	// so a misconfigured deployment fails at startup, not mid-event.
	SuccessReaction string `yaml:"success_reaction" env:"SUCCESS_REACTION"`
	ErrorReaction   string `yaml:"error_reaction" env:"ERROR_REACTION"`
	SyncReaction    string `yaml:"sync_reaction" env:"SYNC_REACTION"`
	IconURL         string `yaml:"icon_url" env:"ICON_URL"`
	IconTitle       string `yaml:"icon_title" env:"ICON_TITLE"`
	AppName         string `yaml:"app_name" env:"APP_NAME"`
}

type LoggingConfig struct {
	Level   string `yaml:"level" env:"LOG_LEVEL"`
	Console bool   `yaml:"console" env:"LOG_CONSOLE"`
	File    struct {
		Enabled bool   `yaml:"enabled" env:"LOG_FILE_ENABLED"`
		Path    string `yaml:"path" env:"LOG_FILE_PATH"`
	} `yaml:"file"`
}

type ServerConfig struct {
	// Addr is the listen address of the inbound events endpoint.
	Addr string `yaml:"addr" env:"SERVER_ADDR"`
}

type SlackConfig struct {
	// APIBaseURL is overridable for tests; empty means the public Slack API.
	APIBaseURL      string `yaml:"api_base_url" env:"SLACK_API_BASE_URL"`
	TokenSecretID   string `yaml:"token_secret_id" env:"SLACK_TOKEN_ID"`
	SigningSecretID string `yaml:"signing_secret_id" env:"SIGNING_SECRET_ID"`
}

type JiraConfig struct {
	ServerURL     string `yaml:"server_url" env:"JIRA_SERVER_URL"`
	TokenSecretID string `yaml:"token_secret_id" env:"JIRA_TOKEN_ID"`
}

type StoreConfig struct {
	Driver      string        `yaml:"driver" env:"STORE_DRIVER"`
	Path        string        `yaml:"path" env:"STORE_PATH"`
	BusyTimeout time.Duration `yaml:"busy_timeout" env:"STORE_BUSY_TIMEOUT"`
}

type QueueConfig struct {
	RedisAddr     string `yaml:"redis_addr" env:"REDIS_ADDR"`
	RedisPassword string `yaml:"redis_password" env:"REDIS_PASSWORD"`
	Stream        string `yaml:"stream" env:"QUEUE_STREAM"`
	Group         string `yaml:"group" env:"QUEUE_GROUP"`
	Consumer      string `yaml:"consumer" env:"QUEUE_CONSUMER"`
	// MinIdle is how long an unacknowledged delivery stays pending before it
	// is reclaimed and redelivered.
	MinIdle time.Duration `yaml:"min_idle" env:"QUEUE_MIN_IDLE"`
}

// defaults returns the baseline config. YAML and env overlay on top of it,
// so defaults never clobber explicit settings.
func defaults() Config {
	var cfg Config
	cfg.Logging.Level = "info"
	cfg.Logging.Console = true
	cfg.Server.Addr = ":8080"
	cfg.Store.Driver = "sqlite"
	cfg.Queue.Stream = "slack:events"
	cfg.Queue.Group = "processors"
	cfg.Queue.MinIdle = time.Minute
	return cfg
}

// Load reads the YAML file at path (if path is non-empty), overlays
// environment variables on top, and validates the result.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		dec := yaml.NewDecoder(strings.NewReader(string(data)))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("config: env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate enforces the required bridge settings.
func (c *Config) Validate() error {
	var missing []string
	for _, f := range []struct {
		name  string
		value string
	}{
		{"success_reaction", c.SuccessReaction},
		{"error_reaction", c.ErrorReaction},
		{"sync_reaction", c.SyncReaction},
		{"icon_url", c.IconURL},
		{"icon_title", c.IconTitle},
		{"app_name", c.AppName},
	} {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return errors.New("config: missing required keys: " + strings.Join(missing, ", "))
	}
	if c.Store.BusyTimeout < 0 {
		return errors.New("config: store.busy_timeout must be >= 0")
	}
	if c.Queue.MinIdle < 0 {
		return errors.New("config: queue.min_idle must be >= 0")
	}
	return nil
}
