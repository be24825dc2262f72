package handlers

import (
	"errors"
	"net/http"
	"strings"

	"tollgate-hq/tollgate/pkg/apikey"
)

// validate reports whether a secret resolves to a key. It never touches the
// quota.
func (h *Handlers) validate(w http.ResponseWriter, r *http.Request) {
	var req ValidateRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ValidateResponse{Error: msgInvalidBody})
		return
	}

	secret := strings.TrimSpace(req.APIKey)
	if secret == "" {
		writeJSON(w, http.StatusBadRequest, ValidateResponse{Error: msgAPIKeyRequired})
		return
	}

	_, err := h.keys.GetBySecret(r.Context(), secret)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, ValidateResponse{Valid: true})
	case errors.Is(err, apikey.ErrNotFound):
		writeJSON(w, http.StatusOK, ValidateResponse{Valid: false})
	default:
		h.logger.ErrorContext(r.Context(), "failed to validate API key", "error", err)
		writeJSON(w, http.StatusOK, ValidateResponse{Error: "Failed to validate API key"})
	}
}
