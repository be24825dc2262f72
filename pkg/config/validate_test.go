package config

import (
	"errors"
	"strings"
	"testing"
)

func TestValidate_Defaults(t *testing.T) {
	if err := Validate(Default()); err != nil {
		t.Fatalf("default configuration should be valid: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		field  string
	}{
		{
			name:   "empty listen address",
			modify: func(c *Config) { c.Server.ListenAddress = "" },
			field:  "server.listen_address",
		},
		{
			name:   "base path without slash",
			modify: func(c *Config) { c.Server.BasePath = "api" },
			field:  "server.base_path",
		},
		{
			name:   "base path with trailing slash",
			modify: func(c *Config) { c.Server.BasePath = "/api/" },
			field:  "server.base_path",
		},
		{
			name:   "wildcard origin with credentials",
			modify: func(c *Config) { c.Server.CORS.AllowedOrigins = []string{"*"} },
			field:  "server.cors.allowed_origins",
		},
		{
			name:   "malformed origin",
			modify: func(c *Config) { c.Server.CORS.AllowedOrigins = []string{"localhost"} },
			field:  "server.cors.allowed_origins",
		},
		{
			name:   "unknown key backend",
			modify: func(c *Config) { c.Keys.Backend = "etcd" },
			field:  "keys.backend",
		},
		{
			name:   "zero max uses",
			modify: func(c *Config) { c.Keys.MaxUses = 0 },
			field:  "keys.max_uses",
		},
		{
			name:   "short secret",
			modify: func(c *Config) { c.Keys.SecretBytes = 16 },
			field:  "keys.secret_bytes",
		},
		{
			name:   "prefix not URL-safe",
			modify: func(c *Config) { c.Keys.SecretPrefix = "tg/" },
			field:  "keys.secret_prefix",
		},
		{
			name:   "bad encryption key",
			modify: func(c *Config) { c.Keys.EncryptionKey = "too-short" },
			field:  "keys.encryption_key",
		},
		{
			name:   "unknown usage backend",
			modify: func(c *Config) { c.Usage.Backend = "s3" },
			field:  "usage.backend",
		},
		{
			name:   "bad cron",
			modify: func(c *Config) { c.Usage.Retention.PruneSchedule = "every day" },
			field:  "usage.retention.prune_schedule",
		},
		{
			name:   "negative retention",
			modify: func(c *Config) { c.Usage.Retention.Days = -1 },
			field:  "usage.retention.days",
		},
		{
			name:   "bad log level",
			modify: func(c *Config) { c.Telemetry.Logging.Level = "verbose" },
			field:  "telemetry.logging.level",
		},
		{
			name:   "prometheus path collides with dashboard metrics",
			modify: func(c *Config) { c.Telemetry.Metrics.Path = "/metrics" },
			field:  "telemetry.metrics.path",
		},
		{
			name:   "sample ratio out of range",
			modify: func(c *Config) { c.Telemetry.Tracing.SampleRatio = 1.5 },
			field:  "telemetry.tracing.sample_ratio",
		},
		{
			name: "tls without cert",
			modify: func(c *Config) {
				c.Security.TLS.Enabled = true
				c.Security.TLS.KeyFile = "key.pem"
			},
			field: "security.tls.cert_file",
		},
		{
			name: "rate limit without rate",
			modify: func(c *Config) {
				c.Security.RateLimit.Enabled = true
				c.Security.RateLimit.RequestsPerSecond = -1
			},
			field: "security.rate_limit.requests_per_second",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)

			err := Validate(cfg)
			if err == nil {
				t.Fatal("expected validation error")
			}

			var verr ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %T", err)
			}

			found := false
			for _, fe := range verr.Errors {
				if fe.Field == tt.field {
					found = true
				}
			}
			if !found {
				t.Errorf("expected error for field %s, got %v", tt.field, err)
			}
		})
	}
}

func TestValidate_PrometheusPathUnderBasePath(t *testing.T) {
	cfg := Default()
	cfg.Server.BasePath = "/api"
	cfg.Telemetry.Metrics.Path = "/metrics"

	if err := Validate(cfg); err != nil {
		t.Errorf("/metrics should not collide when routes live under /api: %v", err)
	}
}

func TestValidationError_Format(t *testing.T) {
	err := ValidationError{Errors: []FieldError{
		{Field: "a", Message: "first"},
		{Field: "b", Message: "second"},
	}}
	msg := err.Error()
	if !strings.Contains(msg, "2 errors") || !strings.Contains(msg, "a: first") || !strings.Contains(msg, "b: second") {
		t.Errorf("unexpected message: %s", msg)
	}
}

func TestDecodeEncryptionKey(t *testing.T) {
	hexKey := strings.Repeat("ab", 32)
	b64Key := "AAECAwQFBgcICQoLDA0ODxAREhMUFRYXGBkaGxwdHh8="

	tests := []struct {
		name    string
		in      string
		wantErr bool
	}{
		{"hex", hexKey, false},
		{"base64", b64Key, false},
		{"too short", "abcd", true},
		{"garbage", "not a key at all!", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, err := DecodeEncryptionKey(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("wantErr=%v, got %v", tt.wantErr, err)
			}
			if !tt.wantErr && len(key) != 32 {
				t.Errorf("expected 32 bytes, got %d", len(key))
			}
		})
	}
}

func TestValidate_EncryptionKeyReference(t *testing.T) {
	cfg := Default()
	cfg.Keys.EncryptionKey = "${secret:tollgate-encryption-key}"
	if err := Validate(cfg); err != nil {
		t.Errorf("expected unresolved reference to pass validation, got %v", err)
	}
}
