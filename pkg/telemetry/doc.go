// Package telemetry bundles the observability stack of Tollgate.
//
// # Components
//
//   - logging: slog handler chain with secret redaction and request fields
//   - metrics: Prometheus collector implementing the component observers
//   - tracing: OpenTelemetry tracer provider with OTLP gRPC export
//   - health: liveness, readiness and version endpoints
//
// # Usage
//
//	tel, err := telemetry.New(&cfg.Telemetry, keys.SecretPrefix, info)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
//	tel.Health.RegisterPinger("key_store", store)
//	meter := quota.NewMeter(backend, rec, quota.Options{Observer: tel.Metrics})
package telemetry
