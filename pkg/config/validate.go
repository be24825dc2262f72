package config

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"

	"github.com/robfig/cron/v3"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "server.listen_address").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
// It implements the error interface and provides access to all field errors.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Validate validates the entire configuration and returns a ValidationError
// if any validation rules fail. It returns nil if the configuration is valid.
// All validation errors are collected and returned together.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateKeys(&cfg.Keys)...)
	errs = append(errs, validateUsage(&cfg.Usage)...)
	errs = append(errs, validateAnalytics(&cfg.Analytics)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry, cfg.Server.BasePath)...)
	errs = append(errs, validateSecurity(&cfg.Security)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}

	return nil
}

func validateServer(cfg *ServerConfig) []FieldError {
	var errs []FieldError

	if cfg.ListenAddress == "" {
		errs = append(errs, FieldError{
			Field:   "server.listen_address",
			Message: "listen address is required",
		})
	}

	if cfg.BasePath != "" && (!strings.HasPrefix(cfg.BasePath, "/") || strings.HasSuffix(cfg.BasePath, "/")) {
		errs = append(errs, FieldError{
			Field:   "server.base_path",
			Message: "base path must start with '/' and must not end with '/'",
		})
	}

	if cfg.ReadTimeout < 0 {
		errs = append(errs, FieldError{Field: "server.read_timeout", Message: "read timeout must be positive"})
	}
	if cfg.WriteTimeout < 0 {
		errs = append(errs, FieldError{Field: "server.write_timeout", Message: "write timeout must be positive"})
	}
	if cfg.IdleTimeout < 0 {
		errs = append(errs, FieldError{Field: "server.idle_timeout", Message: "idle timeout must be positive"})
	}
	if cfg.MaxHeaderBytes < 0 {
		errs = append(errs, FieldError{Field: "server.max_header_bytes", Message: "max header bytes must be non-negative"})
	}
	if cfg.MaxBodyBytes < 0 {
		errs = append(errs, FieldError{Field: "server.max_body_bytes", Message: "max body bytes must be non-negative"})
	}

	if cfg.CORS.Enabled {
		for _, origin := range cfg.CORS.AllowedOrigins {
			if origin == "*" {
				if cfg.CORS.AllowCredentials {
					errs = append(errs, FieldError{
						Field:   "server.cors.allowed_origins",
						Message: "wildcard origin cannot be combined with allow_credentials",
					})
				}
				continue
			}
			if u, err := url.Parse(origin); err != nil || u.Scheme == "" || u.Host == "" {
				errs = append(errs, FieldError{
					Field:   "server.cors.allowed_origins",
					Message: fmt.Sprintf("invalid origin %q", origin),
				})
			}
		}
	}

	return errs
}

func validateKeys(cfg *KeysConfig) []FieldError {
	var errs []FieldError

	switch cfg.Backend {
	case "memory", "redis":
	case "sqlite":
		if cfg.SQLite.Path == "" {
			errs = append(errs, FieldError{Field: "keys.sqlite.path", Message: "SQLite path is required"})
		}
	default:
		errs = append(errs, FieldError{
			Field:   "keys.backend",
			Message: fmt.Sprintf("invalid backend %q (must be 'memory', 'sqlite' or 'redis')", cfg.Backend),
		})
	}

	if cfg.MaxUses <= 0 {
		errs = append(errs, FieldError{Field: "keys.max_uses", Message: "max uses must be positive"})
	}

	if cfg.SecretBytes < MinSecretBytes {
		errs = append(errs, FieldError{
			Field:   "keys.secret_bytes",
			Message: fmt.Sprintf("secret must carry at least %d random bytes", MinSecretBytes),
		})
	}

	if strings.ContainsFunc(cfg.SecretPrefix, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '_' || r == '-')
	}) {
		errs = append(errs, FieldError{Field: "keys.secret_prefix", Message: "secret prefix must be URL-safe"})
	}

	// References are checked after resolution, when the stores are opened.
	if cfg.EncryptionKey != "" && !strings.Contains(cfg.EncryptionKey, "${secret:") {
		if _, err := DecodeEncryptionKey(cfg.EncryptionKey); err != nil {
			errs = append(errs, FieldError{Field: "keys.encryption_key", Message: err.Error()})
		}
	}

	if cfg.Backend == "redis" && cfg.Redis.Address == "" {
		errs = append(errs, FieldError{Field: "keys.redis.address", Message: "Redis address is required"})
	}

	return errs
}

func validateUsage(cfg *UsageConfig) []FieldError {
	var errs []FieldError

	switch cfg.Backend {
	case "memory":
	case "sqlite":
		if cfg.SQLite.Path == "" {
			errs = append(errs, FieldError{Field: "usage.sqlite.path", Message: "SQLite path is required"})
		}
	default:
		errs = append(errs, FieldError{
			Field:   "usage.backend",
			Message: fmt.Sprintf("invalid backend %q (must be 'memory' or 'sqlite')", cfg.Backend),
		})
	}

	if cfg.Recorder.AsyncBuffer < 0 {
		errs = append(errs, FieldError{Field: "usage.recorder.async_buffer", Message: "async buffer must be non-negative"})
	}
	if cfg.Recorder.MaxRetries < 0 {
		errs = append(errs, FieldError{Field: "usage.recorder.max_retries", Message: "max retries must be non-negative"})
	}

	if cfg.Retention.Days < 0 {
		errs = append(errs, FieldError{Field: "usage.retention.days", Message: "retention days must be non-negative"})
	}
	if cfg.Retention.MaxRecords < 0 {
		errs = append(errs, FieldError{Field: "usage.retention.max_records", Message: "max records must be non-negative"})
	}
	if cfg.Retention.PruneSchedule != "" {
		if _, err := cron.ParseStandard(cfg.Retention.PruneSchedule); err != nil {
			errs = append(errs, FieldError{
				Field:   "usage.retention.prune_schedule",
				Message: fmt.Sprintf("invalid cron expression: %v", err),
			})
		}
	}

	return errs
}

func validateAnalytics(cfg *AnalyticsConfig) []FieldError {
	var errs []FieldError
	if cfg.BreakerFailures < 1 {
		errs = append(errs, FieldError{Field: "analytics.breaker_failures", Message: "breaker failures must be at least 1"})
	}
	if cfg.BreakerTimeout < 0 {
		errs = append(errs, FieldError{Field: "analytics.breaker_timeout", Message: "breaker timeout must be positive"})
	}
	return errs
}

func validateTelemetry(cfg *TelemetryConfig, basePath string) []FieldError {
	var errs []FieldError

	switch strings.ToLower(cfg.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("invalid log level %q (must be debug, info, warn or error)", cfg.Logging.Level),
		})
	}

	switch strings.ToLower(cfg.Logging.Format) {
	case "json", "text":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("invalid log format %q (must be json or text)", cfg.Logging.Format),
		})
	}

	if cfg.Metrics.Enabled {
		switch {
		case !strings.HasPrefix(cfg.Metrics.Path, "/"):
			errs = append(errs, FieldError{Field: "telemetry.metrics.path", Message: "metrics path must start with '/'"})
		case cfg.Metrics.Path == basePath+"/metrics":
			errs = append(errs, FieldError{Field: "telemetry.metrics.path", Message: "metrics path collides with the dashboard metrics route"})
		}
	}

	if cfg.Tracing.Enabled && cfg.Tracing.Endpoint == "" {
		errs = append(errs, FieldError{Field: "telemetry.tracing.endpoint", Message: "tracing endpoint is required when tracing is enabled"})
	}
	if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1 {
		errs = append(errs, FieldError{Field: "telemetry.tracing.sample_ratio", Message: "sample ratio must be between 0 and 1"})
	}

	return errs
}

func validateSecurity(cfg *SecurityConfig) []FieldError {
	var errs []FieldError

	if cfg.TLS.Enabled {
		if cfg.TLS.CertFile == "" {
			errs = append(errs, FieldError{Field: "security.tls.cert_file", Message: "cert file is required when TLS is enabled"})
		}
		if cfg.TLS.KeyFile == "" {
			errs = append(errs, FieldError{Field: "security.tls.key_file", Message: "key file is required when TLS is enabled"})
		}
		if cfg.TLS.MinVersion != "1.2" && cfg.TLS.MinVersion != "1.3" {
			errs = append(errs, FieldError{Field: "security.tls.min_version", Message: "must be 1.2 or 1.3"})
		}
	}

	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.RequestsPerSecond <= 0 {
			errs = append(errs, FieldError{Field: "security.rate_limit.requests_per_second", Message: "requests per second must be positive"})
		}
		if cfg.RateLimit.Burst < 1 {
			errs = append(errs, FieldError{Field: "security.rate_limit.burst", Message: "burst must be at least 1"})
		}
	}

	return errs
}

// DecodeEncryptionKey decodes a hex or base64 encoded 32-byte key.
func DecodeEncryptionKey(s string) ([]byte, error) {
	if b, err := hex.DecodeString(s); err == nil && len(b) == 32 {
		return b, nil
	}
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		if b, err := enc.DecodeString(s); err == nil && len(b) == 32 {
			return b, nil
		}
	}
	return nil, fmt.Errorf("encryption key must be 32 bytes, hex or base64 encoded")
}
