package handlers

import (
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"tollgate-hq/tollgate/pkg/quota"
	"tollgate-hq/tollgate/pkg/security/auth"
	"tollgate-hq/tollgate/pkg/telemetry/tracing"
)

// summarize is the gated action. The key has been resolved by the auth
// middleware. One unit of quota is consumed before the payload is looked
// at; a bad payload does not refund it.
func (h *Handlers) summarize(w http.ResponseWriter, r *http.Request) {
	start := h.now()
	ctx := r.Context()

	key, ok := auth.KeyFromContext(ctx)
	if !ok {
		writeError(w, http.StatusUnauthorized, auth.MissingCredentialMessage)
		return
	}

	adm, err := h.quota.CheckAndConsume(ctx, key.ID)
	if err != nil {
		h.writeServiceError(w, r, err, true, msgInternal)
		return
	}
	tracing.SetQuotaAttributes(trace.SpanFromContext(ctx), adm.Allowed, adm.Remaining)
	if !adm.Allowed {
		writeJSON(w, http.StatusTooManyRequests, QuotaExceededResponse{
			Error:         msgQuotaExceeded,
			RemainingUses: adm.Remaining,
			UsageCount:    adm.UsageCount,
		})
		return
	}

	var req SummarizeRequest
	// A malformed body is reported the same way as a missing field.
	_ = h.decodeJSON(w, r, &req)
	url := strings.TrimSpace(req.GitHubURL)

	sample := quota.Sample{KeyID: key.ID, Sequence: adm.Sequence, Success: url != ""}
	elapsed := h.now().Sub(start).Milliseconds()
	sample.ResponseTimeMs = &elapsed
	h.quota.RecordUsage(ctx, sample)

	if url == "" {
		writeError(w, http.StatusBadRequest, msgPayloadRequired)
		return
	}
	writeJSON(w, http.StatusOK, SummarizeResponse{
		Message:   "Request received successfully",
		GitHubURL: url,
		Status:    "pending",
	})
}
