package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadWithPath(t.TempDir())
	if err != nil {
		t.Fatalf("LoadWithPath failed: %v", err)
	}

	if cfg.Server.Port != 3000 {
		t.Errorf("expected default port 3000, got %d", cfg.Server.Port)
	}
	if cfg.Broker.Enabled {
		t.Error("broker must be disabled by default")
	}
	if cfg.Broker.Queue != "sebastian" {
		t.Errorf("expected default queue 'sebastian', got %s", cfg.Broker.Queue)
	}
	if cfg.Broker.Replicas != 3 {
		t.Errorf("expected default replicas 3, got %d", cfg.Broker.Replicas)
	}
	if cfg.Broker.ReconnectWaitDuration() != 5*time.Second {
		t.Errorf("expected 5s reconnect wait, got %v", cfg.Broker.ReconnectWaitDuration())
	}
	if cfg.Store.TTL != 0 {
		t.Errorf("expected TTL disabled by default, got %v", cfg.Store.TTL)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("expected default log level info, got %s", cfg.Logging.Level)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("CHATRELAY_SERVER_PORT", "8080")
	t.Setenv("CHATRELAY_BROKER_ENABLED", "true")
	t.Setenv("CHATRELAY_BROKER_URL", "nats://broker:4222")
	t.Setenv("CHATRELAY_BROKER_RECONNECT_WAIT", "10")
	t.Setenv("CHATRELAY_WEBHOOK_BASE_URL", "https://relay.example.com/")
	t.Setenv("CHATRELAY_STORE_TTL", "1h")

	cfg, err := LoadWithPath(t.TempDir())
	if err != nil {
		t.Fatalf("LoadWithPath failed: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("expected port 8080, got %d", cfg.Server.Port)
	}
	if !cfg.Broker.Enabled {
		t.Error("expected broker enabled")
	}
	if cfg.Broker.URL != "nats://broker:4222" {
		t.Errorf("unexpected broker URL %s", cfg.Broker.URL)
	}
	if cfg.Broker.ReconnectWait != 10 {
		t.Errorf("expected reconnect wait 10, got %d", cfg.Broker.ReconnectWait)
	}
	if cfg.Store.TTL != time.Hour {
		t.Errorf("expected 1h TTL, got %v", cfg.Store.TTL)
	}
	if cfg.BaseURL() != "https://relay.example.com" {
		t.Errorf("expected trailing slash trimmed, got %s", cfg.BaseURL())
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	yaml := `
server:
  port: 4000
broker:
  queue: jobs
logging:
  level: debug
`
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := LoadWithPath(dir)
	if err != nil {
		t.Fatalf("LoadWithPath failed: %v", err)
	}
	if cfg.Server.Port != 4000 {
		t.Errorf("expected port 4000 from file, got %d", cfg.Server.Port)
	}
	if cfg.Broker.Queue != "jobs" {
		t.Errorf("expected queue 'jobs' from file, got %s", cfg.Broker.Queue)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected level debug from file, got %s", cfg.Logging.Level)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantMsg string
	}{
		{"bad port", map[string]string{"CHATRELAY_SERVER_PORT": "0"}, "server.port"},
		{"bad replicas", map[string]string{"CHATRELAY_BROKER_REPLICAS": "0"}, "broker.replicas"},
		{"bad level", map[string]string{"CHATRELAY_LOGGING_LEVEL": "verbose"}, "logging.level"},
		{"bad format", map[string]string{"CHATRELAY_LOGGING_FORMAT": "xml"}, "logging.format"},
		{"negative ttl", map[string]string{"CHATRELAY_STORE_TTL": "-1s"}, "store.ttl"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadWithPath(t.TempDir())
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("expected error mentioning %q, got %v", tt.wantMsg, err)
			}
		})
	}
}

func TestBaseURLFallback(t *testing.T) {
	cfg := &Config{Server: ServerConfig{Port: 3000}}
	if cfg.BaseURL() != "http://localhost:3000" {
		t.Errorf("unexpected fallback base URL %s", cfg.BaseURL())
	}
}
