/*
Package server wires the Tollgate routes, the operational endpoints and the
middleware chain into an http.Server and runs it until its context ends.

Application routes are mounted under server.base_path. The operational
endpoints (/health, /ready, /version and the Prometheus path) are always
mounted at the root so probes do not depend on the base path.

	srv := server.New(cfg, server.Deps{
		Keys:      keys,
		Quota:     meter,
		Metrics:   aggregator,
		Telemetry: tel,
		Limiter:   limiter,
	})
	if err := srv.Start(ctx); err != nil {
		return err
	}

Start blocks until ctx is cancelled, then drains in-flight requests for up
to server.shutdown_timeout.
*/
package server
