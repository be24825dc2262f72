package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"tollgate-hq/tollgate/pkg/analytics"
	"tollgate-hq/tollgate/pkg/apikey"
	"tollgate-hq/tollgate/pkg/quota"
	"tollgate-hq/tollgate/pkg/security/auth"
)

// KeyService is the key store as used by the routes. *apikey.Store
// implements it.
type KeyService interface {
	Create(ctx context.Context, name string) (*apikey.APIKey, error)
	GetByID(ctx context.Context, id string) (*apikey.APIKey, error)
	GetBySecret(ctx context.Context, secret string) (*apikey.APIKey, error)
	Reveal(ctx context.Context, id string) (*apikey.APIKey, error)
	Update(ctx context.Context, id, name string) (*apikey.APIKey, error)
	Delete(ctx context.Context, id string) (bool, error)
	List(ctx context.Context) ([]*apikey.APIKey, error)
}

// QuotaService admits and records gated requests. *quota.Meter implements it.
type QuotaService interface {
	CheckAndConsume(ctx context.Context, keyID string) (quota.Admission, error)
	RecordUsage(ctx context.Context, s quota.Sample)
	Forget(keyID string)
}

// MetricsService computes dashboard metrics. *analytics.Aggregator
// implements it.
type MetricsService interface {
	Compute(ctx context.Context, now time.Time) analytics.Metrics
	KeyUsage(ctx context.Context) map[string]int64
}

// Options configures Handlers.
type Options struct {
	// MaxBodyBytes bounds JSON request bodies. Zero means 64 KiB.
	MaxBodyBytes int64

	// Clock returns the current time. Defaults to time.Now.
	Clock func() time.Time
}

// Handlers serves the Tollgate routes.
type Handlers struct {
	keys    KeyService
	quota   QuotaService
	metrics MetricsService
	auth    *auth.Middleware

	maxBody int64
	now     func() time.Time
	logger  *slog.Logger
}

// New creates the route handlers.
func New(keys KeyService, meter QuotaService, metrics MetricsService, opts Options) *Handlers {
	h := &Handlers{
		keys:    keys,
		quota:   meter,
		metrics: metrics,
		auth:    auth.NewMiddleware(keys, nil),
		maxBody: opts.MaxBodyBytes,
		now:     opts.Clock,
		logger:  slog.Default().With("component", "gateway.handlers"),
	}
	if h.maxBody <= 0 {
		h.maxBody = 64 << 10
	}
	if h.now == nil {
		h.now = time.Now
	}
	return h
}

// Register mounts every route on mux under prefix ("" or "/api").
func (h *Handlers) Register(mux *http.ServeMux, prefix string) {
	mux.HandleFunc("POST "+prefix+"/api-keys", h.createKey)
	mux.HandleFunc("GET "+prefix+"/api-keys", h.listKeys)
	mux.HandleFunc("GET "+prefix+"/api-keys/{id}", h.getKey)
	mux.HandleFunc("GET "+prefix+"/api-keys/{id}/reveal", h.revealKey)
	mux.HandleFunc("PUT "+prefix+"/api-keys/{id}", h.updateKey)
	mux.HandleFunc("DELETE "+prefix+"/api-keys/{id}", h.deleteKey)

	mux.HandleFunc("POST "+prefix+"/validate", h.validate)
	mux.Handle("POST "+prefix+"/github-summarizer", h.auth.Handle(http.HandlerFunc(h.summarize)))

	mux.HandleFunc("GET "+prefix+"/metrics", h.getMetrics)
}
