// Package tracing provides OpenTelemetry tracing for Tollgate.
//
// New installs a global tracer provider exporting over OTLP gRPC, so
// components create spans with otel.Tracer(name) and never hold a *Tracer.
// When tracing is disabled the global provider is left as is (a noop) and
// spans cost next to nothing.
//
// Extract and Inject carry W3C trace context over HTTP headers.
//
// # Usage
//
//	tracer, err := tracing.New(&cfg.Telemetry.Tracing, version)
//	if err != nil {
//	    return err
//	}
//	defer tracer.Shutdown(context.Background())
package tracing
