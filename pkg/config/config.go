package config

import "time"

// Config is the root configuration structure for Tollgate.
// It contains all configuration sections for the HTTP server, the key store,
// the usage event log, the metrics aggregator, telemetry, and security settings.
type Config struct {
	// Server contains HTTP server configuration including listen address,
	// timeouts, route prefix and CORS.
	Server ServerConfig `yaml:"server"`

	// Keys contains configuration for API key issuance and the key backend.
	Keys KeysConfig `yaml:"keys"`

	// Usage contains configuration for the append-only usage event log
	// including backend selection, the async recorder, and retention.
	Usage UsageConfig `yaml:"usage"`

	// Analytics contains configuration for the dashboard metrics aggregator.
	Analytics AnalyticsConfig `yaml:"analytics"`

	// Telemetry contains configuration for observability including logging,
	// metrics, and distributed tracing.
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Security contains TLS and request rate limiting settings.
	Security SecurityConfig `yaml:"security"`
}

// ServerConfig contains configuration for the HTTP server.
type ServerConfig struct {
	// ListenAddress is the address and port for the server to listen on.
	// Format: "host:port". The PORT environment variable replaces the port.
	// Default: "127.0.0.1:3001"
	ListenAddress string `yaml:"listen_address"`

	// BasePath is an optional prefix for every API route (e.g. "/api").
	// Health and Prometheus endpoints are never prefixed.
	// Default: ""
	BasePath string `yaml:"base_path"`

	// ReadTimeout is the maximum duration for reading the entire request.
	// Default: 30s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes of the
	// response.
	// Default: 30s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout is the maximum amount of time to wait for the next request
	// when keep-alives are enabled.
	// Default: 120s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	// Default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MaxHeaderBytes limits the size of request headers.
	// Default: 1048576 (1MB)
	MaxHeaderBytes int `yaml:"max_header_bytes"`

	// MaxBodyBytes limits the size of JSON request bodies.
	// Default: 65536
	MaxBodyBytes int64 `yaml:"max_body_bytes"`

	// CORS contains Cross-Origin Resource Sharing configuration.
	CORS CORSConfig `yaml:"cors"`
}

// CORSConfig contains CORS (Cross-Origin Resource Sharing) configuration.
type CORSConfig struct {
	// Enabled controls whether CORS is enabled.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// AllowedOrigins is a list of allowed origins for CORS requests.
	// The FRONTEND_URL environment variable replaces this list.
	// Default: ["http://localhost:3000"]
	AllowedOrigins []string `yaml:"allowed_origins"`

	// AllowedMethods is a list of allowed HTTP methods for CORS requests.
	// Default: ["GET", "POST", "PUT", "DELETE", "OPTIONS"]
	AllowedMethods []string `yaml:"allowed_methods"`

	// AllowedHeaders is a list of allowed HTTP headers for CORS requests.
	// Default: ["Authorization", "Content-Type", "X-API-Key", "X-Request-ID"]
	AllowedHeaders []string `yaml:"allowed_headers"`

	// ExposedHeaders is a list of headers that are exposed to the client.
	// Default: ["X-Request-ID"]
	ExposedHeaders []string `yaml:"exposed_headers"`

	// MaxAge is the maximum age (in seconds) for preflight request cache.
	// Default: 3600
	MaxAge int `yaml:"max_age"`

	// AllowCredentials controls whether credentials are allowed in CORS requests.
	// Default: true
	AllowCredentials bool `yaml:"allow_credentials"`
}

// KeysConfig contains configuration for API key issuance and storage.
type KeysConfig struct {
	// Backend selects the key backend: "memory", "sqlite" or "redis".
	// Default: "sqlite"
	Backend string `yaml:"backend"`

	// MaxUses is the quota ceiling assigned to every newly created key.
	// Default: 1000
	MaxUses int64 `yaml:"max_uses"`

	// SecretPrefix is prepended to every generated secret.
	// Default: "tg_"
	SecretPrefix string `yaml:"secret_prefix"`

	// SecretBytes is the number of random bytes in a generated secret.
	// Must be at least 32.
	// Default: 32
	SecretBytes int `yaml:"secret_bytes"`

	// EncryptionKey seals secrets at rest when set. It must decode (hex or
	// base64) to exactly 32 bytes. Without it secrets are stored as issued.
	EncryptionKey string `yaml:"encryption_key"`

	// SQLite contains SQLite-specific configuration.
	SQLite SQLiteConfig `yaml:"sqlite"`

	// Redis contains Redis-specific configuration.
	Redis RedisConfig `yaml:"redis"`
}

// SQLiteConfig contains SQLite database configuration shared by the key
// backend and the usage event log.
type SQLiteConfig struct {
	// Path is the database file path.
	Path string `yaml:"path"`

	// MaxOpenConns is the maximum number of open connections.
	// Default: 1 for keys (single writer), 10 for usage events
	MaxOpenConns int `yaml:"max_open_conns"`

	// MaxIdleConns is the maximum number of idle connections.
	// Default: 1 for keys, 5 for usage events
	MaxIdleConns int `yaml:"max_idle_conns"`

	// WALMode enables Write-Ahead Logging.
	// Default: true
	WALMode bool `yaml:"wal_mode"`

	// BusyTimeout is how long a connection waits for a lock.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// RedisConfig contains Redis connection configuration for the key backend.
type RedisConfig struct {
	// Address is the Redis server address.
	// Default: "localhost:6379"
	Address string `yaml:"address"`

	// Password is the Redis password.
	Password string `yaml:"password"`

	// DB is the Redis database number.
	DB int `yaml:"db"`

	// Prefix namespaces every key written by Tollgate. On Redis Cluster use
	// a hash tag such as "{tollgate}:" so the keys of one script share a slot.
	// Default: "tollgate:"
	Prefix string `yaml:"prefix"`

	// PoolSize is the connection pool size.
	// Default: 10
	PoolSize int `yaml:"pool_size"`

	// DialTimeout bounds each connection attempt.
	// Default: 5s
	DialTimeout time.Duration `yaml:"dial_timeout"`

	// ConnectRetries is the number of connection attempts at startup.
	// Default: 5
	ConnectRetries int `yaml:"connect_retries"`
}

// UsageConfig contains configuration for the usage event log.
type UsageConfig struct {
	// Backend selects the event storage: "memory" or "sqlite".
	// Default: "sqlite"
	Backend string `yaml:"backend"`

	// SQLite contains SQLite-specific configuration.
	SQLite SQLiteConfig `yaml:"sqlite"`

	// Recorder contains async recorder configuration.
	Recorder RecorderConfig `yaml:"recorder"`

	// Retention contains event retention configuration.
	Retention RetentionConfig `yaml:"retention"`
}

// RecorderConfig contains configuration for the async usage recorder.
type RecorderConfig struct {
	// AsyncBuffer is the size of the async event buffer. Zero records
	// synchronously.
	// Default: 1000
	AsyncBuffer int `yaml:"async_buffer"`

	// WriteTimeout bounds a single append attempt.
	// Default: 5s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// MaxRetries is the number of append retries before an event is dropped.
	// Default: 3
	MaxRetries int `yaml:"max_retries"`
}

// RetentionConfig contains configuration for usage event retention.
type RetentionConfig struct {
	// Days is the number of days to keep events. Zero keeps events forever.
	// Default: 0
	Days int `yaml:"days"`

	// PruneSchedule is the cron expression for pruning.
	// Default: "0 3 * * *"
	PruneSchedule string `yaml:"prune_schedule"`

	// MaxRecords caps the number of stored events. Zero is unlimited.
	// Default: 0
	MaxRecords int64 `yaml:"max_records"`

	// ArchiveBeforeDelete writes pruned events to ArchivePath as JSON.
	// Default: false
	ArchiveBeforeDelete bool `yaml:"archive_before_delete"`

	// ArchivePath is the directory for archives.
	// Default: "data/archives/"
	ArchivePath string `yaml:"archive_path"`
}

// AnalyticsConfig contains configuration for the metrics aggregator.
type AnalyticsConfig struct {
	// BreakerFailures is the number of consecutive read failures that open
	// the circuit breaker guarding event log reads.
	// Default: 5
	BreakerFailures int `yaml:"breaker_failures"`

	// BreakerTimeout is how long the breaker stays open before probing.
	// Default: 30s
	BreakerTimeout time.Duration `yaml:"breaker_timeout"`

	// QueryTimeout bounds a full Compute pass.
	// Default: 5s
	QueryTimeout time.Duration `yaml:"query_timeout"`
}

// TelemetryConfig contains configuration for observability.
type TelemetryConfig struct {
	// Logging contains logging configuration.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics contains Prometheus metrics configuration.
	Metrics MetricsConfig `yaml:"metrics"`

	// Tracing contains OpenTelemetry tracing configuration.
	Tracing TracingConfig `yaml:"tracing"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	// Default: "info"
	Level string `yaml:"level"`

	// Format is the log output format: "json" or "text".
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource includes file:line in log entries.
	// Default: false
	AddSource bool `yaml:"add_source"`

	// RedactSecrets masks API key secrets and bearer tokens in log attributes.
	// Default: true
	RedactSecrets bool `yaml:"redact_secrets"`
}

// MetricsConfig contains Prometheus metrics configuration.
type MetricsConfig struct {
	// Enabled controls whether Prometheus metrics are collected and exposed.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Path is the HTTP path for the Prometheus endpoint. It must not be the
	// dashboard metrics route.
	// Default: "/prometheus"
	Path string `yaml:"path"`

	// Namespace is the Prometheus metric namespace.
	// Default: "tollgate"
	Namespace string `yaml:"namespace"`

	// RequestDurationBuckets are histogram buckets for HTTP latency (seconds).
	RequestDurationBuckets []float64 `yaml:"request_duration_buckets"`
}

// TracingConfig contains OpenTelemetry tracing configuration.
type TracingConfig struct {
	// Enabled controls whether spans are exported.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Endpoint is the OTLP gRPC collector endpoint.
	// Default: "localhost:4317"
	Endpoint string `yaml:"endpoint"`

	// ServiceName is reported as the service.name resource attribute.
	// Default: "tollgate"
	ServiceName string `yaml:"service_name"`

	// SampleRatio is the fraction of traces sampled (0.0 to 1.0).
	// Default: 1.0
	SampleRatio float64 `yaml:"sample_ratio"`

	// Insecure disables TLS towards the collector.
	// Default: true
	Insecure bool `yaml:"insecure"`

	// Timeout bounds span export calls.
	// Default: 10s
	Timeout time.Duration `yaml:"timeout"`
}

// SecurityConfig contains security-related configuration.
type SecurityConfig struct {
	// TLS contains TLS configuration.
	TLS TLSConfig `yaml:"tls"`

	// RateLimit contains per-client request rate limiting for the
	// credential-bearing routes.
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// TLSConfig contains TLS configuration.
type TLSConfig struct {
	// Enabled controls whether TLS is enabled.
	Enabled bool `yaml:"enabled"`

	// CertFile is the path to the TLS certificate file.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the TLS private key file.
	KeyFile string `yaml:"key_file"`

	// MinVersion is the minimum accepted TLS version ("1.2" or "1.3").
	// Default: "1.2"
	MinVersion string `yaml:"min_version"`

	// ReloadInterval controls how often the certificate files are checked
	// for rotation. Zero disables reloading.
	// Default: 5m
	ReloadInterval time.Duration `yaml:"reload_interval"`
}

// RateLimitConfig contains per-client rate limiting configuration.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is applied.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// RequestsPerSecond is the sustained request rate per client address.
	// Default: 20
	RequestsPerSecond float64 `yaml:"requests_per_second"`

	// Burst is the maximum burst per client address.
	// Default: 40
	Burst int `yaml:"burst"`

	// ClientTTL is how long an idle client's limiter is kept.
	// Default: 10m
	ClientTTL time.Duration `yaml:"client_ttl"`
}
