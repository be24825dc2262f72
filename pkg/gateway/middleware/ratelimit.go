package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"tollgate-hq/tollgate/pkg/config"
)

// RateLimitMessage is the body of a 429 produced by the client rate limiter.
// It differs from the quota denial so clients can tell the two apart.
const RateLimitMessage = "Too many requests, please slow down"

type clientEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimiter applies a token bucket per client address. Settings can be
// changed at runtime with Update; existing buckets adopt the new limit.
type RateLimiter struct {
	mu        sync.Mutex
	enabled   bool
	limit     rate.Limit
	burst     int
	clientTTL time.Duration
	clients   map[string]*clientEntry
	logger    *slog.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
	now      func() time.Time
}

// NewRateLimiter creates a limiter from cfg. Call Stop to end the cleanup
// goroutine started by StartCleanup.
func NewRateLimiter(cfg *config.RateLimitConfig) *RateLimiter {
	rl := &RateLimiter{
		clients: make(map[string]*clientEntry),
		logger:  slog.Default().With("component", "gateway.ratelimit"),
		stopCh:  make(chan struct{}),
		now:     time.Now,
	}
	rl.Update(cfg)
	return rl
}

// Update applies new settings.
func (rl *RateLimiter) Update(cfg *config.RateLimitConfig) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.enabled = cfg != nil && cfg.Enabled
	if cfg == nil {
		return
	}
	rl.limit = rate.Limit(cfg.RequestsPerSecond)
	rl.burst = cfg.Burst
	rl.clientTTL = cfg.ClientTTL
	if rl.clientTTL <= 0 {
		rl.clientTTL = config.DefaultRateLimitClientTTL
	}
	for _, e := range rl.clients {
		e.limiter.SetLimit(rl.limit)
		e.limiter.SetBurst(rl.burst)
	}
}

// Allow reports whether client may make a request now.
func (rl *RateLimiter) Allow(client string) bool {
	now := rl.now()

	rl.mu.Lock()
	if !rl.enabled {
		rl.mu.Unlock()
		return true
	}
	entry, ok := rl.clients[client]
	if !ok {
		entry = &clientEntry{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.clients[client] = entry
	}
	entry.lastAccess = now
	limiter := entry.limiter
	rl.mu.Unlock()

	return limiter.AllowN(now, 1)
}

// Middleware rejects requests over the client's rate with 429.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		client := clientAddress(r)
		if !rl.Allow(client) {
			rl.logger.WarnContext(r.Context(), "rate limit exceeded", "client", client, "path", r.URL.Path)
			w.Header().Set("Retry-After", strconv.Itoa(1))
			writeJSONError(w, http.StatusTooManyRequests, RateLimitMessage)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Cleanup removes buckets idle for longer than the client TTL.
func (rl *RateLimiter) Cleanup() int {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	removed := 0
	for client, e := range rl.clients {
		if now.Sub(e.lastAccess) > rl.clientTTL {
			delete(rl.clients, client)
			removed++
		}
	}
	if removed > 0 {
		rl.logger.Debug("cleaned up idle rate limiter entries", "removed", removed, "remaining", len(rl.clients))
	}
	return removed
}

// StartCleanup runs Cleanup every interval until Stop.
func (rl *RateLimiter) StartCleanup(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				rl.Cleanup()
			case <-rl.stopCh:
				return
			}
		}
	}()
}

// Stop ends the cleanup goroutine. Safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

// clientAddress is the host part of RemoteAddr. Forwarding headers are not
// trusted.
func clientAddress(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
