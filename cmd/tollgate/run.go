package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"tollgate-hq/tollgate/pkg/analytics"
	"tollgate-hq/tollgate/pkg/apikey"
	"tollgate-hq/tollgate/pkg/cli"
	"tollgate-hq/tollgate/pkg/config"
	"tollgate-hq/tollgate/pkg/gateway/middleware"
	"tollgate-hq/tollgate/pkg/quota"
	tlsconfig "tollgate-hq/tollgate/pkg/security/tls"
	"tollgate-hq/tollgate/pkg/server"
	"tollgate-hq/tollgate/pkg/telemetry"
	"tollgate-hq/tollgate/pkg/usage"
	"tollgate-hq/tollgate/pkg/usage/recorder"
	"tollgate-hq/tollgate/pkg/usage/retention"
)

var runFlags struct {
	listenAddress string
	logLevel      string
	dryRun        bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the Tollgate HTTP service",
	Long: `Start the Tollgate HTTP service with the specified configuration.

The service exposes key management, credential validation, the quota-gated
endpoint and dashboard metrics, plus health and Prometheus endpoints.

Examples:
  # Start with defaults
  tollgate run

  # Start with custom config
  tollgate run --config /etc/tollgate/config.yaml

  # Override listen address
  tollgate run --listen 0.0.0.0:8080

  # Validate config without starting the server
  tollgate run --dry-run`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting server")
}

// app holds every long-lived component of a running service. closers run in
// reverse order of registration.
type app struct {
	cfg       *config.Config
	telemetry *telemetry.Telemetry
	keys      *apikey.Store
	events    usage.Storage
	recorder  *recorder.Recorder
	meter     *quota.Meter
	metrics   *analytics.Aggregator
	limiter   *middleware.RateLimiter
	pruner    *retention.Pruner
	server    *server.Server

	closers []func() error
}

func (a *app) onClose(fn func() error) {
	a.closers = append(a.closers, fn)
}

// Close releases components in reverse order and joins their errors.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// buildApp wires the stores, meter, aggregator and server for cfg. Background
// loops (certificate reload, retention, limiter cleanup) stop when ctx is done
// or the app is closed.
func buildApp(ctx context.Context, cfg *config.Config, tel *telemetry.Telemetry) (_ *app, err error) {
	a := &app{cfg: cfg, telemetry: tel}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	a.keys, err = openKeyStore(ctx, &cfg.Keys)
	if err != nil {
		return nil, fmt.Errorf("failed to open key store: %w", err)
	}
	a.onClose(a.keys.Close)

	a.events, err = openUsageStorage(&cfg.Usage)
	if err != nil {
		return nil, fmt.Errorf("failed to open usage storage: %w", err)
	}
	a.onClose(a.events.Close)

	a.recorder = recorder.New(a.events, &recorder.Config{
		AsyncBuffer:  cfg.Usage.Recorder.AsyncBuffer,
		WriteTimeout: cfg.Usage.Recorder.WriteTimeout,
		MaxRetries:   cfg.Usage.Recorder.MaxRetries,
	})
	a.recorder.SetObserver(tel.Metrics)
	// Registered after the storage so pending events are flushed first.
	a.onClose(a.recorder.Close)

	a.meter = quota.NewMeter(a.keys.Backend(), a.recorder, quota.Options{
		Observer:      tel.Metrics,
		RecordTimeout: cfg.Usage.Recorder.WriteTimeout,
	})

	a.metrics = analytics.New(a.events, &analytics.Config{
		BreakerFailures: cfg.Analytics.BreakerFailures,
		BreakerTimeout:  cfg.Analytics.BreakerTimeout,
		QueryTimeout:    cfg.Analytics.QueryTimeout,
	})
	a.metrics.SetObserver(tel.Metrics)

	tel.Health.RegisterPinger("key_store", a.keys)
	tel.Health.RegisterPinger("usage_store", a.events)

	retentionCfg := cfg.Usage.Retention
	if retentionCfg.Days > 0 || retentionCfg.MaxRecords > 0 {
		a.pruner = retention.NewPruner(a.events, &retention.Config{
			Days:                retentionCfg.Days,
			PruneSchedule:       retentionCfg.PruneSchedule,
			MaxRecords:          retentionCfg.MaxRecords,
			ArchiveBeforeDelete: retentionCfg.ArchiveBeforeDelete,
			ArchivePath:         retentionCfg.ArchivePath,
		})
		if err := a.pruner.Start(ctx); err != nil {
			return nil, fmt.Errorf("failed to start retention scheduler: %w", err)
		}
		a.onClose(func() error { a.pruner.Stop(); return nil })
		if next := a.pruner.NextPruning(); next != nil {
			slog.Debug("usage retention scheduler started", "next_pruning", next)
		}
	}

	tlsCfg, reloader, err := tlsconfig.NewServerConfig(&cfg.Security.TLS)
	if err != nil {
		return nil, cli.NewConfigError("security.tls", err.Error())
	}
	if reloader != nil {
		reloadCtx, cancel := context.WithCancel(ctx)
		go reloader.Run(reloadCtx)
		a.onClose(func() error { cancel(); return nil })
	}

	a.limiter = middleware.NewRateLimiter(&cfg.Security.RateLimit)
	cleanupInterval := cfg.Security.RateLimit.ClientTTL
	if cleanupInterval <= 0 {
		cleanupInterval = config.DefaultRateLimitClientTTL
	}
	a.limiter.StartCleanup(cleanupInterval)
	a.onClose(func() error { a.limiter.Stop(); return nil })

	a.server = server.New(cfg, server.Deps{
		Keys:      a.keys,
		Quota:     a.meter,
		Metrics:   a.metrics,
		Telemetry: tel,
		Limiter:   a.limiter,
		TLSConfig: tlsCfg,
	})
	return a, nil
}

// reload applies the settings that can change without a restart.
func (a *app) reload(cfg *config.Config) {
	if err := a.telemetry.Apply(&cfg.Telemetry); err != nil {
		slog.Error("failed to apply telemetry settings", "error", err)
	}
	a.limiter.Update(&cfg.Security.RateLimit)
	slog.Info("runtime settings updated",
		"log_level", cfg.Telemetry.Logging.Level,
		"rate_limit_enabled", cfg.Security.RateLimit.Enabled,
	)
}

func runServer(cmd *cobra.Command, _ []string) error {
	ctx, stop := cli.SetupSignalHandler(cmd.Context())
	defer stop()

	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}

	// Apply flag overrides
	if runFlags.listenAddress != "" {
		cfg.Server.ListenAddress = runFlags.listenAddress
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}
	if err := config.Validate(cfg); err != nil {
		return cli.NewConfigError("flags", err.Error())
	}

	out := cmd.OutOrStdout()
	if runFlags.dryRun {
		fmt.Fprintln(out, "✓ Configuration valid")
		return nil
	}

	tel, err := telemetry.New(&cfg.Telemetry, cfg.Keys.SecretPrefix, versionInfo())
	if err != nil {
		return cli.NewConfigError("telemetry", err.Error())
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			slog.Warn("failed to flush traces", "error", err)
		}
	}()

	a, err := buildApp(ctx, cfg, tel)
	if err != nil {
		return cli.NewCommandError("run", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			slog.Error("failed to release resources", "error", err)
		}
	}()

	if cfgFile != "" {
		watcher, err := config.NewWatcher(cfgFile, config.DefaultDebounceInterval)
		if err != nil {
			slog.Warn("config hot reload disabled", "error", err)
		} else {
			watcher.Subscribe(a.reload)
			watcher.Start(ctx)
			defer watcher.Stop()
		}
	}

	fmt.Fprintf(out, "Tollgate v%s\n", Version)
	fmt.Fprintf(out, "✓ Key store: %s (max %d uses per key)\n", cfg.Keys.Backend, a.keys.MaxUses())
	fmt.Fprintf(out, "✓ Usage log: %s\n", cfg.Usage.Backend)
	fmt.Fprintf(out, "✓ Listening on %s%s\n", cfg.Server.ListenAddress, cfg.Server.BasePath)

	if err := a.server.Start(ctx); err != nil {
		return cli.NewCommandError("run", err)
	}
	fmt.Fprintln(out, "✓ Server stopped")
	return nil
}
