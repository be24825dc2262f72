package telemetry

import (
	"context"
	"fmt"
	"time"

	"tollgate-hq/tollgate/pkg/config"
	"tollgate-hq/tollgate/pkg/telemetry/health"
	"tollgate-hq/tollgate/pkg/telemetry/logging"
	"tollgate-hq/tollgate/pkg/telemetry/metrics"
	"tollgate-hq/tollgate/pkg/telemetry/tracing"
)

// DefaultHealthTimeout bounds each readiness check.
const DefaultHealthTimeout = 2 * time.Second

// Telemetry holds the process-wide observability components.
type Telemetry struct {
	Logger  *logging.Logger
	Metrics *metrics.Collector
	Tracer  *tracing.Tracer
	Health  *health.Checker
	Version health.VersionInfo
}

// New builds the logger, installs it as the slog default, and creates the
// metrics collector, tracer and health checker. secretPrefix is masked in
// logs when redaction is enabled.
func New(cfg *config.TelemetryConfig, secretPrefix string, info health.VersionInfo) (*Telemetry, error) {
	logger, err := logging.New(logging.Config{
		Level:          cfg.Logging.Level,
		Format:         cfg.Logging.Format,
		AddSource:      cfg.Logging.AddSource,
		RedactSecrets:  cfg.Logging.RedactSecrets,
		SecretPrefixes: []string{secretPrefix},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	logger.SetDefault()

	tracer, err := tracing.New(&cfg.Tracing, info.Version)
	if err != nil {
		return nil, fmt.Errorf("failed to create tracer: %w", err)
	}

	return &Telemetry{
		Logger:  logger,
		Metrics: metrics.NewCollector(&cfg.Metrics, nil),
		Tracer:  tracer,
		Health:  health.New(DefaultHealthTimeout),
		Version: info,
	}, nil
}

// Apply updates the reloadable settings. Only the log level can change at
// runtime.
func (t *Telemetry) Apply(cfg *config.TelemetryConfig) error {
	return t.Logger.SetLevel(cfg.Logging.Level)
}

// Shutdown flushes pending spans.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	return t.Tracer.Shutdown(ctx)
}
