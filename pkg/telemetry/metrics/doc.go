// Package metrics provides Prometheus metrics for Tollgate.
//
// # Metrics
//
//   - HTTP: tollgate_http_requests_total, tollgate_http_request_duration_seconds,
//     tollgate_http_requests_in_flight
//   - Quota: tollgate_quota_admissions_total{result},
//     tollgate_quota_admission_duration_seconds,
//     tollgate_quota_usage_failures_total
//   - Usage log: tollgate_usage_events_written_total{result},
//     tollgate_usage_event_write_duration_seconds,
//     tollgate_usage_events_dropped_total
//   - Analytics: tollgate_breaker_state{name}
//
// The Collector implements the observer interfaces of quota.Meter,
// recorder.Recorder and analytics.Aggregator, so wiring is a matter of
// passing it along:
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	meter := quota.NewMeter(backend, rec, quota.Options{Observer: collector})
//	rec.SetObserver(collector)
//	agg.SetObserver(collector)
//	mux.Handle("GET "+cfg.Telemetry.Metrics.Path, collector.Handler())
//
// Route labels use the matched ServeMux pattern, never the raw path, and a
// cardinality limiter folds anything beyond its limit into "other".
package metrics
