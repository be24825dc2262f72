package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of every Tollgate environment variable override.
const EnvPrefix = "TOLLGATE_"

// LoadConfig loads configuration from a YAML file at the specified path.
// The file is decoded on top of Default(), remaining zero values are
// defaulted, and the result is validated. An empty path yields the defaults.
// The configuration is not modified by environment variables; use
// LoadConfigWithEnvOverrides for that functionality.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
		}
	}

	ApplyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides. Environment variables follow the naming
// convention TOLLGATE_SECTION_FIELD (e.g., TOLLGATE_SERVER_LISTEN_ADDRESS).
// PORT and FRONTEND_URL are also honored for compatibility with the
// dashboard's .env files. Environment variables always take precedence over
// file-based configuration.
//
// The loading sequence is:
// 1. Load YAML from file
// 2. Apply default values
// 3. Apply environment variable overrides
// 4. Validate final configuration
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	// Server overrides
	envString("SERVER_LISTEN_ADDRESS", &cfg.Server.ListenAddress)
	if port := os.Getenv("PORT"); port != "" {
		cfg.Server.ListenAddress = replacePort(cfg.Server.ListenAddress, port)
	}
	envString("SERVER_BASE_PATH", &cfg.Server.BasePath)
	envDuration("SERVER_READ_TIMEOUT", &cfg.Server.ReadTimeout)
	envDuration("SERVER_WRITE_TIMEOUT", &cfg.Server.WriteTimeout)
	envDuration("SERVER_SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout)
	if val := os.Getenv("FRONTEND_URL"); val != "" {
		cfg.Server.CORS.AllowedOrigins = splitList(val)
	}
	if val := os.Getenv(EnvPrefix + "SERVER_CORS_ALLOWED_ORIGINS"); val != "" {
		cfg.Server.CORS.AllowedOrigins = splitList(val)
	}

	// Key overrides
	envString("KEYS_BACKEND", &cfg.Keys.Backend)
	envInt64("KEYS_MAX_USES", &cfg.Keys.MaxUses)
	envString("KEYS_SECRET_PREFIX", &cfg.Keys.SecretPrefix)
	envString("KEYS_ENCRYPTION_KEY", &cfg.Keys.EncryptionKey)
	envString("KEYS_SQLITE_PATH", &cfg.Keys.SQLite.Path)
	envString("KEYS_REDIS_ADDRESS", &cfg.Keys.Redis.Address)
	envString("KEYS_REDIS_PASSWORD", &cfg.Keys.Redis.Password)
	envInt("KEYS_REDIS_DB", &cfg.Keys.Redis.DB)
	envString("KEYS_REDIS_PREFIX", &cfg.Keys.Redis.Prefix)

	// Usage overrides
	envString("USAGE_BACKEND", &cfg.Usage.Backend)
	envString("USAGE_SQLITE_PATH", &cfg.Usage.SQLite.Path)
	envInt("USAGE_RECORDER_ASYNC_BUFFER", &cfg.Usage.Recorder.AsyncBuffer)
	envInt("USAGE_RETENTION_DAYS", &cfg.Usage.Retention.Days)
	envString("USAGE_RETENTION_PRUNE_SCHEDULE", &cfg.Usage.Retention.PruneSchedule)
	envInt64("USAGE_RETENTION_MAX_RECORDS", &cfg.Usage.Retention.MaxRecords)

	// Telemetry overrides
	envString("TELEMETRY_LOGGING_LEVEL", &cfg.Telemetry.Logging.Level)
	envString("TELEMETRY_LOGGING_FORMAT", &cfg.Telemetry.Logging.Format)
	envBool("TELEMETRY_METRICS_ENABLED", &cfg.Telemetry.Metrics.Enabled)
	envString("TELEMETRY_METRICS_PATH", &cfg.Telemetry.Metrics.Path)
	envBool("TELEMETRY_TRACING_ENABLED", &cfg.Telemetry.Tracing.Enabled)
	envString("TELEMETRY_TRACING_ENDPOINT", &cfg.Telemetry.Tracing.Endpoint)
	if val := os.Getenv(EnvPrefix + "TELEMETRY_TRACING_SAMPLE_RATIO"); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			cfg.Telemetry.Tracing.SampleRatio = f
		}
	}

	// Security overrides
	envBool("SECURITY_TLS_ENABLED", &cfg.Security.TLS.Enabled)
	envString("SECURITY_TLS_CERT_FILE", &cfg.Security.TLS.CertFile)
	envString("SECURITY_TLS_KEY_FILE", &cfg.Security.TLS.KeyFile)
	envBool("SECURITY_RATE_LIMIT_ENABLED", &cfg.Security.RateLimit.Enabled)
	if val := os.Getenv(EnvPrefix + "SECURITY_RATE_LIMIT_REQUESTS_PER_SECOND"); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			cfg.Security.RateLimit.RequestsPerSecond = f
		}
	}
	envInt("SECURITY_RATE_LIMIT_BURST", &cfg.Security.RateLimit.Burst)
}

func envString(name string, dst *string) {
	if val := os.Getenv(EnvPrefix + name); val != "" {
		*dst = val
	}
}

func envBool(name string, dst *bool) {
	if val := os.Getenv(EnvPrefix + name); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			*dst = b
		}
	}
}

func envInt(name string, dst *int) {
	if val := os.Getenv(EnvPrefix + name); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			*dst = i
		}
	}
}

func envInt64(name string, dst *int64) {
	if val := os.Getenv(EnvPrefix + name); val != "" {
		if i, err := strconv.ParseInt(val, 10, 64); err == nil {
			*dst = i
		}
	}
}

func envDuration(name string, dst *time.Duration) {
	if val := os.Getenv(EnvPrefix + name); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			*dst = d
		}
	}
}

// replacePort swaps the port of a host:port address. A malformed address is
// replaced by ":port".
func replacePort(address, port string) string {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return ":" + port
	}
	return net.JoinHostPort(host, port)
}

// splitList splits a comma-separated list, dropping blanks.
func splitList(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
