package tracing

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys set by Tollgate spans.
const (
	AttrKeyID          = attribute.Key("tollgate.key_id")
	AttrRequestID      = attribute.Key("tollgate.request_id")
	AttrQuotaAllowed   = attribute.Key("tollgate.quota.allowed")
	AttrQuotaRemaining = attribute.Key("tollgate.quota.remaining")

	AttrHTTPMethod     = attribute.Key("http.request.method")
	AttrHTTPRoute      = attribute.Key("http.route")
	AttrHTTPStatusCode = attribute.Key("http.response.status_code")
	AttrURLPath        = attribute.Key("url.path")
)

// SetKeyID tags span with the id of the API key being used. Never the
// secret.
func SetKeyID(span trace.Span, keyID string) {
	if keyID != "" {
		span.SetAttributes(AttrKeyID.String(keyID))
	}
}

// SetQuotaAttributes records a quota decision on span.
func SetQuotaAttributes(span trace.Span, allowed bool, remaining int64) {
	span.SetAttributes(
		AttrQuotaAllowed.Bool(allowed),
		AttrQuotaRemaining.Int64(remaining),
	)
}
