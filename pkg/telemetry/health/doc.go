// Package health provides liveness, readiness and version endpoints.
//
// # Endpoints
//
//   - GET /health: liveness, 200 while the process serves requests
//   - GET /ready: readiness, 200 when every registered check passes and 503
//     otherwise
//   - GET /version: build information
//
// # Usage
//
//	checker := health.New(2 * time.Second)
//	checker.RegisterPinger("key_store", keyStore)
//	checker.RegisterPinger("usage_store", usageStorage)
//	health.Register(mux, "", checker, health.VersionInfo{Version: version})
//
// Checks run concurrently, each bounded by the checker timeout. A check that
// exceeds it is reported unhealthy with the message "health check timeout".
package health
