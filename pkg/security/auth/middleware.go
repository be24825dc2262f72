package auth

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel/trace"

	"tollgate-hq/tollgate/pkg/apikey"
	"tollgate-hq/tollgate/pkg/telemetry/logging"
	"tollgate-hq/tollgate/pkg/telemetry/tracing"
)

// Response messages.
const (
	MissingCredentialMessage = "API key is required. Please provide it in the X-API-Key header or Authorization header."
	InvalidCredentialMessage = "Invalid API key"
	internalErrorMessage     = "Internal server error"
)

// Resolver resolves a presented secret to its key. *apikey.Store
// implements it.
type Resolver interface {
	GetBySecret(ctx context.Context, secret string) (*apikey.APIKey, error)
}

// Middleware is HTTP middleware for API key authentication
type Middleware struct {
	resolver Resolver
	sources  []Source
	logger   *slog.Logger
}

// NewMiddleware creates a new API key authentication middleware. Nil
// sources use DefaultSources.
func NewMiddleware(resolver Resolver, sources []Source) *Middleware {
	if len(sources) == 0 {
		sources = DefaultSources()
	}
	return &Middleware{
		resolver: resolver,
		sources:  sources,
		logger:   slog.Default().With("component", "security.auth"),
	}
}

// Handle wraps an HTTP handler with API key authentication
func (m *Middleware) Handle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		secret := Extract(r, m.sources)
		if secret == "" {
			m.logger.WarnContext(ctx, "missing API key",
				"remote_addr", r.RemoteAddr,
				"path", r.URL.Path,
			)
			writeError(w, http.StatusUnauthorized, MissingCredentialMessage)
			return
		}

		key, err := m.resolver.GetBySecret(ctx, secret)
		if err != nil {
			if errors.Is(err, apikey.ErrNotFound) {
				m.logger.WarnContext(ctx, "invalid API key",
					"remote_addr", r.RemoteAddr,
					"path", r.URL.Path,
				)
				writeError(w, http.StatusUnauthorized, InvalidCredentialMessage)
				return
			}
			m.logger.ErrorContext(ctx, "failed to resolve API key", "error", err)
			writeError(w, http.StatusInternalServerError, internalErrorMessage)
			return
		}

		m.logger.DebugContext(ctx, "API key authenticated",
			"key_id", key.ID,
			"path", r.URL.Path,
		)

		tracing.SetKeyID(trace.SpanFromContext(ctx), key.ID)
		ctx = logging.WithKeyID(ctx, key.ID)
		ctx = context.WithValue(ctx, keyContextKey, key)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Context key for the resolved key
type contextKey string

// #nosec G101 - This is a context key constant, not a credential
const keyContextKey contextKey = "api_key"

// KeyFromContext returns the key resolved by the middleware.
func KeyFromContext(ctx context.Context) (*apikey.APIKey, bool) {
	key, ok := ctx.Value(keyContextKey).(*apikey.APIKey)
	return key, ok
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
