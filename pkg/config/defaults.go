package config

import "time"

// Default values for configuration fields.
const (
	// Server defaults
	DefaultListenAddress   = "127.0.0.1:3001"
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
	DefaultMaxHeaderBytes  = 1048576 // 1MB
	DefaultMaxBodyBytes    = int64(65536)

	// CORS defaults
	DefaultFrontendURL = "http://localhost:3000"
	DefaultCORSMaxAge  = 3600

	// Key defaults
	DefaultKeysBackend         = "sqlite"
	DefaultMaxUses             = int64(1000)
	DefaultSecretPrefix        = "tg_"
	DefaultSecretBytes         = 32
	MinSecretBytes             = 32
	DefaultKeysSQLitePath      = "data/keys.db"
	DefaultRedisAddress        = "localhost:6379"
	DefaultRedisPrefix         = "tollgate:"
	DefaultRedisPoolSize       = 10
	DefaultRedisDialTimeout    = 5 * time.Second
	DefaultRedisConnectRetries = 5

	// Usage defaults
	DefaultUsageBackend           = "sqlite"
	DefaultUsageSQLitePath        = "data/usage.db"
	DefaultUsageSQLiteMaxOpen     = 10
	DefaultUsageSQLiteMaxIdle     = 5
	DefaultSQLiteBusyTimeout      = 5 * time.Second
	DefaultRecorderAsyncBuffer    = 1000
	DefaultRecorderWriteTimeout   = 5 * time.Second
	DefaultRecorderMaxRetries     = 3
	DefaultRetentionSchedule      = "0 3 * * *"
	DefaultRetentionArchivePath   = "data/archives/"
	DefaultAnalyticsBreakerFails  = 5
	DefaultAnalyticsBreakerWindow = 30 * time.Second
	DefaultAnalyticsQueryTimeout  = 5 * time.Second

	// Telemetry defaults
	DefaultLoggingLevel        = "info"
	DefaultLoggingFormat       = "json"
	DefaultPrometheusPath      = "/prometheus"
	DefaultMetricsNamespace    = "tollgate"
	DefaultTracingEndpoint     = "localhost:4317"
	DefaultTracingServiceName  = "tollgate"
	DefaultTracingSamplingRate = 1.0
	DefaultTracingTimeout      = 10 * time.Second

	// Security defaults
	DefaultTLSMinVersion      = "1.2"
	DefaultTLSReloadInterval  = 5 * time.Minute
	DefaultRateLimitRPS       = 20.0
	DefaultRateLimitBurst     = 40
	DefaultRateLimitClientTTL = 10 * time.Minute
)

// Default returns a Config populated with default values, including the
// boolean defaults that cannot be told apart from an unset field after YAML
// decoding. LoadConfig decodes on top of this value.
func Default() *Config {
	cfg := &Config{}
	cfg.Server.CORS.Enabled = true
	cfg.Server.CORS.AllowCredentials = true
	cfg.Keys.SQLite.WALMode = true
	cfg.Usage.SQLite.WALMode = true
	cfg.Usage.Recorder.AsyncBuffer = DefaultRecorderAsyncBuffer
	cfg.Telemetry.Logging.RedactSecrets = true
	cfg.Telemetry.Metrics.Enabled = true
	cfg.Telemetry.Tracing.Insecure = true
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults applies default values to a Config struct.
// It sets defaults for any fields that have zero values.
// This function is idempotent and safe to call multiple times.
func ApplyDefaults(cfg *Config) {
	applyServerDefaults(&cfg.Server)
	applyKeysDefaults(&cfg.Keys)
	applyUsageDefaults(&cfg.Usage)

	if cfg.Analytics.BreakerFailures == 0 {
		cfg.Analytics.BreakerFailures = DefaultAnalyticsBreakerFails
	}
	if cfg.Analytics.BreakerTimeout == 0 {
		cfg.Analytics.BreakerTimeout = DefaultAnalyticsBreakerWindow
	}
	if cfg.Analytics.QueryTimeout == 0 {
		cfg.Analytics.QueryTimeout = DefaultAnalyticsQueryTimeout
	}

	applyTelemetryDefaults(&cfg.Telemetry)

	tls := &cfg.Security.TLS
	if tls.MinVersion == "" {
		tls.MinVersion = DefaultTLSMinVersion
	}
	if tls.ReloadInterval == 0 {
		tls.ReloadInterval = DefaultTLSReloadInterval
	}

	rl := &cfg.Security.RateLimit
	if rl.RequestsPerSecond == 0 {
		rl.RequestsPerSecond = DefaultRateLimitRPS
	}
	if rl.Burst == 0 {
		rl.Burst = DefaultRateLimitBurst
	}
	if rl.ClientTTL == 0 {
		rl.ClientTTL = DefaultRateLimitClientTTL
	}
}

func applyServerDefaults(s *ServerConfig) {
	if s.ListenAddress == "" {
		s.ListenAddress = DefaultListenAddress
	}
	if s.ReadTimeout == 0 {
		s.ReadTimeout = DefaultReadTimeout
	}
	if s.WriteTimeout == 0 {
		s.WriteTimeout = DefaultWriteTimeout
	}
	if s.IdleTimeout == 0 {
		s.IdleTimeout = DefaultIdleTimeout
	}
	if s.ShutdownTimeout == 0 {
		s.ShutdownTimeout = DefaultShutdownTimeout
	}
	if s.MaxHeaderBytes == 0 {
		s.MaxHeaderBytes = DefaultMaxHeaderBytes
	}
	if s.MaxBodyBytes == 0 {
		s.MaxBodyBytes = DefaultMaxBodyBytes
	}

	// CORS defaults
	if len(s.CORS.AllowedOrigins) == 0 {
		s.CORS.AllowedOrigins = []string{DefaultFrontendURL}
	}
	if len(s.CORS.AllowedMethods) == 0 {
		s.CORS.AllowedMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	}
	if len(s.CORS.AllowedHeaders) == 0 {
		s.CORS.AllowedHeaders = []string{"Authorization", "Content-Type", "X-API-Key", "X-Request-ID"}
	}
	if len(s.CORS.ExposedHeaders) == 0 {
		s.CORS.ExposedHeaders = []string{"X-Request-ID"}
	}
	if s.CORS.MaxAge == 0 {
		s.CORS.MaxAge = DefaultCORSMaxAge
	}
}

func applyKeysDefaults(k *KeysConfig) {
	if k.Backend == "" {
		k.Backend = DefaultKeysBackend
	}
	if k.MaxUses == 0 {
		k.MaxUses = DefaultMaxUses
	}
	if k.SecretPrefix == "" {
		k.SecretPrefix = DefaultSecretPrefix
	}
	if k.SecretBytes == 0 {
		k.SecretBytes = DefaultSecretBytes
	}

	// The key backend is a single-writer database.
	if k.SQLite.Path == "" {
		k.SQLite.Path = DefaultKeysSQLitePath
	}
	if k.SQLite.MaxOpenConns == 0 {
		k.SQLite.MaxOpenConns = 1
	}
	if k.SQLite.MaxIdleConns == 0 {
		k.SQLite.MaxIdleConns = 1
	}
	if k.SQLite.BusyTimeout == 0 {
		k.SQLite.BusyTimeout = DefaultSQLiteBusyTimeout
	}

	if k.Redis.Address == "" {
		k.Redis.Address = DefaultRedisAddress
	}
	if k.Redis.Prefix == "" {
		k.Redis.Prefix = DefaultRedisPrefix
	}
	if k.Redis.PoolSize == 0 {
		k.Redis.PoolSize = DefaultRedisPoolSize
	}
	if k.Redis.DialTimeout == 0 {
		k.Redis.DialTimeout = DefaultRedisDialTimeout
	}
	if k.Redis.ConnectRetries == 0 {
		k.Redis.ConnectRetries = DefaultRedisConnectRetries
	}
}

func applyUsageDefaults(u *UsageConfig) {
	if u.Backend == "" {
		u.Backend = DefaultUsageBackend
	}
	if u.SQLite.Path == "" {
		u.SQLite.Path = DefaultUsageSQLitePath
	}
	if u.SQLite.MaxOpenConns == 0 {
		u.SQLite.MaxOpenConns = DefaultUsageSQLiteMaxOpen
	}
	if u.SQLite.MaxIdleConns == 0 {
		u.SQLite.MaxIdleConns = DefaultUsageSQLiteMaxIdle
	}
	if u.SQLite.BusyTimeout == 0 {
		u.SQLite.BusyTimeout = DefaultSQLiteBusyTimeout
	}

	// AsyncBuffer zero is meaningful (synchronous recording), so it is only
	// defaulted through Default().
	if u.Recorder.WriteTimeout == 0 {
		u.Recorder.WriteTimeout = DefaultRecorderWriteTimeout
	}
	if u.Recorder.MaxRetries == 0 {
		u.Recorder.MaxRetries = DefaultRecorderMaxRetries
	}

	if u.Retention.PruneSchedule == "" {
		u.Retention.PruneSchedule = DefaultRetentionSchedule
	}
	if u.Retention.ArchivePath == "" {
		u.Retention.ArchivePath = DefaultRetentionArchivePath
	}
}

func applyTelemetryDefaults(t *TelemetryConfig) {
	if t.Logging.Level == "" {
		t.Logging.Level = DefaultLoggingLevel
	}
	if t.Logging.Format == "" {
		t.Logging.Format = DefaultLoggingFormat
	}

	if t.Metrics.Path == "" {
		t.Metrics.Path = DefaultPrometheusPath
	}
	if t.Metrics.Namespace == "" {
		t.Metrics.Namespace = DefaultMetricsNamespace
	}
	if len(t.Metrics.RequestDurationBuckets) == 0 {
		t.Metrics.RequestDurationBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5}
	}

	if t.Tracing.Endpoint == "" {
		t.Tracing.Endpoint = DefaultTracingEndpoint
	}
	if t.Tracing.ServiceName == "" {
		t.Tracing.ServiceName = DefaultTracingServiceName
	}
	if t.Tracing.SampleRatio == 0 {
		t.Tracing.SampleRatio = DefaultTracingSamplingRate
	}
	if t.Tracing.Timeout == 0 {
		t.Tracing.Timeout = DefaultTracingTimeout
	}
}
