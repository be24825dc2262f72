package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestLoadConfig_ValidFile(t *testing.T) {
	path := writeConfig(t, `
server:
  listen_address: "0.0.0.0:8080"
  base_path: "/api"
  read_timeout: "60s"

keys:
  backend: "memory"
  max_uses: 50

usage:
  backend: "memory"
  recorder:
    async_buffer: 0

telemetry:
  logging:
    level: "debug"
    format: "text"
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Server.ListenAddress != "0.0.0.0:8080" {
		t.Errorf("expected listen address %q, got %q", "0.0.0.0:8080", cfg.Server.ListenAddress)
	}
	if cfg.Server.BasePath != "/api" {
		t.Errorf("expected base path /api, got %q", cfg.Server.BasePath)
	}
	if cfg.Server.ReadTimeout != 60*time.Second {
		t.Errorf("expected read timeout %v, got %v", 60*time.Second, cfg.Server.ReadTimeout)
	}
	if cfg.Keys.MaxUses != 50 {
		t.Errorf("expected max uses 50, got %d", cfg.Keys.MaxUses)
	}
	if cfg.Usage.Recorder.AsyncBuffer != 0 {
		t.Errorf("expected explicit async_buffer 0 to be kept, got %d", cfg.Usage.Recorder.AsyncBuffer)
	}
	if cfg.Telemetry.Logging.Level != "debug" {
		t.Errorf("expected logging level %q, got %q", "debug", cfg.Telemetry.Logging.Level)
	}

	// Untouched sections keep their defaults, including boolean ones.
	if !cfg.Server.CORS.Enabled {
		t.Error("expected CORS enabled by default")
	}
	if !cfg.Telemetry.Logging.RedactSecrets {
		t.Error("expected secret redaction enabled by default")
	}
	if cfg.Keys.SecretPrefix != DefaultSecretPrefix {
		t.Errorf("expected default prefix, got %q", cfg.Keys.SecretPrefix)
	}
}

func TestLoadConfig_EmptyPathUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.ListenAddress != DefaultListenAddress {
		t.Errorf("expected %q, got %q", DefaultListenAddress, cfg.Server.ListenAddress)
	}
	if cfg.Keys.MaxUses != DefaultMaxUses {
		t.Errorf("expected max uses %d, got %d", DefaultMaxUses, cfg.Keys.MaxUses)
	}
	if cfg.Usage.Recorder.AsyncBuffer != DefaultRecorderAsyncBuffer {
		t.Errorf("expected async buffer %d, got %d", DefaultRecorderAsyncBuffer, cfg.Usage.Recorder.AsyncBuffer)
	}
	if got := cfg.Server.CORS.AllowedOrigins; len(got) != 1 || got[0] != DefaultFrontendURL {
		t.Errorf("expected origins [%s], got %v", DefaultFrontendURL, got)
	}
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	_, err := LoadConfig("/nonexistent/config.yaml")
	if err == nil {
		t.Fatal("expected error for nonexistent file")
	}
	if !strings.Contains(err.Error(), "no such file or directory") {
		t.Errorf("expected file not found error, got: %v", err)
	}
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "server: [unclosed")
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoadConfig_ValidationFailure(t *testing.T) {
	path := writeConfig(t, `
keys:
  backend: "cassandra"
`)
	_, err := LoadConfig(path)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "keys.backend") {
		t.Errorf("expected keys.backend in error, got: %v", err)
	}
}

func TestLoadConfigWithEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
server:
  listen_address: "127.0.0.1:8080"
keys:
  backend: "memory"
`)

	t.Setenv("TOLLGATE_KEYS_MAX_USES", "7")
	t.Setenv("TOLLGATE_TELEMETRY_LOGGING_LEVEL", "warn")
	t.Setenv("TOLLGATE_SECURITY_RATE_LIMIT_ENABLED", "true")
	t.Setenv("PORT", "4000")
	t.Setenv("FRONTEND_URL", "https://dash.example.com, https://admin.example.com")

	cfg, err := LoadConfigWithEnvOverrides(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Keys.MaxUses != 7 {
		t.Errorf("expected max uses 7, got %d", cfg.Keys.MaxUses)
	}
	if cfg.Telemetry.Logging.Level != "warn" {
		t.Errorf("expected level warn, got %q", cfg.Telemetry.Logging.Level)
	}
	if !cfg.Security.RateLimit.Enabled {
		t.Error("expected rate limiting enabled")
	}
	if cfg.Server.ListenAddress != "127.0.0.1:4000" {
		t.Errorf("expected PORT to replace the port, got %q", cfg.Server.ListenAddress)
	}
	origins := cfg.Server.CORS.AllowedOrigins
	if len(origins) != 2 || origins[0] != "https://dash.example.com" || origins[1] != "https://admin.example.com" {
		t.Errorf("unexpected origins %v", origins)
	}
}

func TestLoadConfigWithEnvOverrides_InvalidOverride(t *testing.T) {
	t.Setenv("TOLLGATE_KEYS_BACKEND", "nope")
	if _, err := LoadConfigWithEnvOverrides(""); err == nil {
		t.Fatal("expected validation error after overrides")
	}
}

func TestReplacePort(t *testing.T) {
	tests := []struct {
		address string
		port    string
		want    string
	}{
		{"127.0.0.1:3001", "8080", "127.0.0.1:8080"},
		{":3001", "8080", ":8080"},
		{"[::1]:3001", "9000", "[::1]:9000"},
		{"garbage", "9000", ":9000"},
	}

	for _, tt := range tests {
		t.Run(tt.address, func(t *testing.T) {
			if got := replacePort(tt.address, tt.port); got != tt.want {
				t.Errorf("replacePort(%q, %q) = %q, want %q", tt.address, tt.port, got, tt.want)
			}
		})
	}
}
