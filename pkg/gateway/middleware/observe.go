package middleware

import (
	"context"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"tollgate-hq/tollgate/pkg/telemetry/logging"
	"tollgate-hq/tollgate/pkg/telemetry/tracing"
)

// RouteMatcher reports the pattern that will serve a request. *http.ServeMux
// implements it.
type RouteMatcher interface {
	Handler(r *http.Request) (http.Handler, string)
}

// SpanStarter starts spans. *tracing.Tracer and trace.Tracer implement it.
type SpanStarter interface {
	Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span)
}

// HTTPRecorder receives one observation per request.
type HTTPRecorder interface {
	RecordHTTPRequest(method, route string, status int, duration time.Duration)
	HTTPInFlight(delta int)
}

// Observe opens a server span per request and records HTTP metrics. Both are
// labelled by the route pattern routes would dispatch to, so path parameters
// never become label values. Either recorder or tracer may be nil.
func Observe(routes RouteMatcher, recorder HTTPRecorder, tracer SpanStarter) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			route := ""
			if routes != nil {
				_, route = routes.Handler(r)
			}
			rw := newResponseWriter(w)

			if recorder != nil {
				recorder.HTTPInFlight(1)
				defer recorder.HTTPInFlight(-1)
			}

			ctx := r.Context()
			var span trace.Span
			if tracer != nil {
				spanName := route
				if spanName == "" {
					spanName = r.Method + " unmatched"
				}
				ctx, span = tracer.Start(tracing.Extract(ctx, r.Header), spanName,
					trace.WithSpanKind(trace.SpanKindServer),
					trace.WithAttributes(
						tracing.AttrHTTPMethod.String(r.Method),
						tracing.AttrHTTPRoute.String(route),
						tracing.AttrURLPath.String(r.URL.Path),
					),
				)
				defer span.End()
				if requestID := logging.GetRequestID(ctx); requestID != "" {
					span.SetAttributes(tracing.AttrRequestID.String(requestID))
				}
				if traceID := tracing.TraceID(ctx); traceID != "" {
					rw.Header().Set(tracing.TraceIDHeader, traceID)
				}
				r = r.WithContext(ctx)
			}

			next.ServeHTTP(rw, r)

			if span != nil {
				span.SetAttributes(tracing.AttrHTTPStatusCode.Int(rw.statusCode))
				if rw.statusCode >= 500 {
					span.SetStatus(codes.Error, http.StatusText(rw.statusCode))
				}
			}
			if recorder != nil {
				recorder.RecordHTTPRequest(r.Method, route, rw.statusCode, time.Since(start))
			}
		})
	}
}
