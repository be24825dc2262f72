package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"tollgate-hq/tollgate/pkg/apikey"
	"tollgate-hq/tollgate/pkg/security/auth"
)

// Error messages returned to clients.
const (
	msgKeyNotFound     = "API key not found"
	msgInternal        = "Internal server error"
	msgInvalidBody     = "Request body must be valid JSON"
	msgQuotaExceeded   = "API key usage limit exceeded"
	msgAPIKeyRequired  = "API key is required"
	msgPayloadRequired = "gitHubUrl is required in the request body"
)

// statusFor maps an error kind to its HTTP status. credential selects the
// mapping used while resolving a presented secret, where an unknown key is
// a 401 rather than a 404.
func statusFor(err error, credential bool) int {
	switch apikey.KindOf(err) {
	case apikey.ErrInvalidArgument:
		return http.StatusBadRequest
	case apikey.ErrNotFound:
		if credential {
			return http.StatusUnauthorized
		}
		return http.StatusNotFound
	case apikey.ErrQuotaExceeded:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// messageFor returns the client-facing message for err. Internal causes
// never leak; fallback is used for 500s.
func messageFor(err error, status int, fallback string) string {
	switch status {
	case http.StatusNotFound:
		return msgKeyNotFound
	case http.StatusUnauthorized:
		return auth.InvalidCredentialMessage
	case http.StatusTooManyRequests:
		return msgQuotaExceeded
	case http.StatusInternalServerError:
		return fallback
	}
	if msg := apikey.MessageOf(err); msg != "" {
		return msg
	}
	return err.Error()
}

// writeServiceError writes the response for an error from the store or the
// meter and logs server-side failures.
func (h *Handlers) writeServiceError(w http.ResponseWriter, r *http.Request, err error, credential bool, fallback string) {
	status := statusFor(err, credential)
	if status == http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), fallback, "error", err, "path", r.URL.Path)
	}
	writeError(w, status, messageFor(err, status, fallback))
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeJSON reads a bounded JSON body into v. An empty body leaves v at
// its zero value.
func (h *Handlers) decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
