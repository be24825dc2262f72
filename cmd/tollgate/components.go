package main

import (
	"context"
	"fmt"
	"os"

	"tollgate-hq/tollgate/pkg/apikey"
	keystorage "tollgate-hq/tollgate/pkg/apikey/storage"
	"tollgate-hq/tollgate/pkg/cli"
	"tollgate-hq/tollgate/pkg/config"
	"tollgate-hq/tollgate/pkg/security/secrets"
	"tollgate-hq/tollgate/pkg/usage"
	usagestorage "tollgate-hq/tollgate/pkg/usage/storage"
)

// secretsDirEnv names the directory searched by the file secret provider.
const (
	secretsDirEnv     = "TOLLGATE_SECRETS_DIR"
	defaultSecretsDir = "/run/secrets"
)

// loadConfig returns the process configuration with secret references
// resolved. A configuration installed with config.SetConfig wins over the
// --config file.
func loadConfig(ctx context.Context) (*config.Config, error) {
	cfg := config.GetConfig()
	if cfg == nil {
		if err := config.Initialize(cfgFile); err != nil {
			return nil, cli.NewConfigError("config", err.Error())
		}
		cfg = config.GetConfig()
	}

	dir := os.Getenv(secretsDirEnv)
	if dir == "" {
		dir = defaultSecretsDir
	}
	resolver := secrets.NewResolver(secrets.NewEnvProvider(""), secrets.NewFileProvider(dir))
	if err := resolver.ResolveConfig(ctx, cfg); err != nil {
		return nil, cli.NewConfigError("secrets", err.Error())
	}
	return cfg, nil
}

// openKeyBackend opens the configured key backend.
func openKeyBackend(ctx context.Context, cfg *config.KeysConfig) (apikey.Backend, error) {
	switch cfg.Backend {
	case "memory":
		return keystorage.NewMemoryBackend(), nil
	case "sqlite":
		return keystorage.NewSQLiteBackend(keystorage.SQLiteBackendConfig{
			Path:        cfg.SQLite.Path,
			WALMode:     cfg.SQLite.WALMode,
			BusyTimeout: cfg.SQLite.BusyTimeout,
		})
	case "redis":
		return keystorage.NewRedisBackend(ctx, keystorage.RedisBackendConfig{
			Address:        cfg.Redis.Address,
			Password:       cfg.Redis.Password,
			DB:             cfg.Redis.DB,
			Prefix:         cfg.Redis.Prefix,
			PoolSize:       cfg.Redis.PoolSize,
			DialTimeout:    cfg.Redis.DialTimeout,
			ConnectRetries: cfg.Redis.ConnectRetries,
		})
	default:
		return nil, cli.NewConfigError("keys.backend", fmt.Sprintf("unsupported backend %q", cfg.Backend))
	}
}

// openKeyStore opens the key backend and wraps it in a Store.
func openKeyStore(ctx context.Context, cfg *config.KeysConfig) (*apikey.Store, error) {
	var sealer apikey.Sealer = apikey.PlainSealer{}
	if cfg.EncryptionKey != "" {
		key, err := config.DecodeEncryptionKey(cfg.EncryptionKey)
		if err != nil {
			return nil, cli.NewConfigError("keys.encryption_key", err.Error())
		}
		aead, err := apikey.NewAEADSealer(key)
		if err != nil {
			return nil, fmt.Errorf("failed to create secret sealer: %w", err)
		}
		sealer = aead
	}

	backend, err := openKeyBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return apikey.NewStore(backend, apikey.Options{
		MaxUses:   cfg.MaxUses,
		Generator: apikey.NewGenerator(cfg.SecretPrefix, cfg.SecretBytes),
		Sealer:    sealer,
	}), nil
}

// openUsageStorage opens the configured usage event log.
func openUsageStorage(cfg *config.UsageConfig) (usage.Storage, error) {
	switch cfg.Backend {
	case "memory":
		return usagestorage.NewMemoryStorage(), nil
	case "sqlite":
		return usagestorage.NewSQLiteStorage(&usagestorage.SQLiteConfig{
			Path:         cfg.SQLite.Path,
			MaxOpenConns: cfg.SQLite.MaxOpenConns,
			MaxIdleConns: cfg.SQLite.MaxIdleConns,
			WALMode:      cfg.SQLite.WALMode,
			BusyTimeout:  cfg.SQLite.BusyTimeout,
		})
	default:
		return nil, cli.NewConfigError("usage.backend", fmt.Sprintf("unsupported backend %q", cfg.Backend))
	}
}
