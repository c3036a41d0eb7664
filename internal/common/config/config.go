// Package config provides configuration management for chatrelay.
// It supports loading configuration from environment variables, config files, and defaults.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration sections for chatrelay.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Broker  BrokerConfig  `mapstructure:"broker"`
	Webhook WebhookConfig `mapstructure:"webhook"`
	Store   StoreConfig   `mapstructure:"store"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"readTimeout"`  // in seconds
	WriteTimeout int    `mapstructure:"writeTimeout"` // in seconds
}

// BrokerConfig holds message broker configuration.
// When Enabled is false the publisher stays idle and every publish is a
// logged no-op. When Enabled is true but URL is empty, the connect loop
// logs a configuration error and keeps retrying rather than crashing.
type BrokerConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	URL           string `mapstructure:"url"`
	Queue         string `mapstructure:"queue"`
	Stream        string `mapstructure:"stream"`
	Replicas      int    `mapstructure:"replicas"`
	ReconnectWait int    `mapstructure:"reconnectWait"` // in seconds, flat delay
}

// WebhookConfig holds the externally visible base URL used when building
// callback URLs handed to the worker.
type WebhookConfig struct {
	BaseURL string `mapstructure:"baseUrl"`
}

// StoreConfig holds correlation store configuration.
// TTL of 0 keeps entries for the life of the process.
type StoreConfig struct {
	TTL           time.Duration `mapstructure:"ttl"`
	SweepInterval time.Duration `mapstructure:"sweepInterval"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"outputPath"`
}

// ReadTimeoutDuration returns the read timeout as a time.Duration.
func (s *ServerConfig) ReadTimeoutDuration() time.Duration {
	return time.Duration(s.ReadTimeout) * time.Second
}

// WriteTimeoutDuration returns the write timeout as a time.Duration.
func (s *ServerConfig) WriteTimeoutDuration() time.Duration {
	return time.Duration(s.WriteTimeout) * time.Second
}

// ReconnectWaitDuration returns the flat reconnect delay as a time.Duration.
func (b *BrokerConfig) ReconnectWaitDuration() time.Duration {
	return time.Duration(b.ReconnectWait) * time.Second
}

// detectDefaultLogFormat returns the appropriate log format based on environment.
func detectDefaultLogFormat() string {
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		return "json"
	}

	if env := os.Getenv("CHATRELAY_ENV"); env == "production" || env == "prod" {
		return "json"
	}

	return "text"
}

// setDefaults configures default values for all configuration options.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 30)

	// Broker defaults - disabled means the publisher idles and publishes no-op
	v.SetDefault("broker.enabled", false)
	v.SetDefault("broker.url", "")
	v.SetDefault("broker.queue", "sebastian")
	v.SetDefault("broker.stream", "CHAT")
	v.SetDefault("broker.replicas", 3)
	v.SetDefault("broker.reconnectWait", 5)

	// Webhook defaults - empty base URL falls back to http://localhost:<port>
	v.SetDefault("webhook.baseUrl", "")

	// Store defaults - zero TTL keeps entries forever
	v.SetDefault("store.ttl", time.Duration(0))
	v.SetDefault("store.sweepInterval", time.Minute)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", detectDefaultLogFormat())
	v.SetDefault("logging.outputPath", "stdout")
}

// Load reads configuration from environment variables, config file, and defaults.
// Environment variables use the prefix CHATRELAY_ with snake_case naming.
// Config file should be named config.yaml and placed in the current directory
// or /etc/chatrelay/.
func Load() (*Config, error) {
	return LoadWithPath("")
}

// LoadWithPath reads configuration from the specified path or default locations.
func LoadWithPath(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults first
	setDefaults(v)

	// Configure environment variables
	v.SetEnvPrefix("CHATRELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Explicit bindings for camelCase config keys, which AutomaticEnv
	// does not map to SNAKE_CASE on its own.
	_ = v.BindEnv("broker.reconnectWait", "CHATRELAY_BROKER_RECONNECT_WAIT")
	_ = v.BindEnv("webhook.baseUrl", "CHATRELAY_WEBHOOK_BASE_URL")
	_ = v.BindEnv("store.sweepInterval", "CHATRELAY_STORE_SWEEP_INTERVAL")
	_ = v.BindEnv("server.readTimeout", "CHATRELAY_SERVER_READ_TIMEOUT")
	_ = v.BindEnv("server.writeTimeout", "CHATRELAY_SERVER_WRITE_TIMEOUT")
	_ = v.BindEnv("logging.outputPath", "CHATRELAY_LOGGING_OUTPUT_PATH")

	// Configure config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/chatrelay/")

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// validate checks that all required configuration fields are set.
func validate(cfg *Config) error {
	var errs []string

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}

	// Broker URL is deliberately not required even when the broker is
	// enabled: the publisher logs the misconfiguration and keeps retrying,
	// and submissions are still accepted in the meantime.
	if cfg.Broker.Queue == "" {
		errs = append(errs, "broker.queue must not be empty")
	}
	if cfg.Broker.Stream == "" {
		errs = append(errs, "broker.stream must not be empty")
	}
	if cfg.Broker.Replicas <= 0 {
		errs = append(errs, "broker.replicas must be positive")
	}
	if cfg.Broker.ReconnectWait <= 0 {
		errs = append(errs, "broker.reconnectWait must be positive")
	}

	if cfg.Store.TTL < 0 {
		errs = append(errs, "store.ttl must not be negative")
	}
	if cfg.Store.TTL > 0 && cfg.Store.SweepInterval <= 0 {
		errs = append(errs, "store.sweepInterval must be positive when store.ttl is set")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Logging.Level)] {
		errs = append(errs, "logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[strings.ToLower(cfg.Logging.Format)] {
		errs = append(errs, "logging.format must be one of: json, text")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}

	return nil
}

// BaseURL returns the externally visible base URL for callback construction,
// falling back to localhost with the listening port when unset.
func (c *Config) BaseURL() string {
	if c.Webhook.BaseURL != "" {
		return strings.TrimRight(c.Webhook.BaseURL, "/")
	}
	return fmt.Sprintf("http://localhost:%d", c.Server.Port)
}
