/*
Package middleware provides the HTTP middleware chain in front of the
Tollgate routes.

The server assembles the chain outermost first:

	Recovery → RequestID → Observe → Logging → CORS → RateLimit → mux

  - Recovery turns handler panics into a JSON 500.
  - RequestID accepts or generates X-Request-ID and stores it for logging.
  - Observe opens a server span per request and records the Prometheus HTTP
    families, labelled by the matched route pattern.
  - Logging writes one structured line per request.
  - CORS answers preflight requests for the dashboard origin.
  - RateLimit applies a per-client token bucket (golang.org/x/time/rate).

Chain composes middleware in that reading order:

	handler := middleware.Chain(mux,
		middleware.Recovery,
		middleware.RequestID,
		middleware.Observe(mux, collector, tracer),
		middleware.Logging,
		middleware.CORS(&cfg.Server.CORS),
		limiter.Middleware,
	)
*/
package middleware
