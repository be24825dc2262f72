package server

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"tollgate-hq/tollgate/pkg/analytics"
	"tollgate-hq/tollgate/pkg/apikey"
	keystorage "tollgate-hq/tollgate/pkg/apikey/storage"
	"tollgate-hq/tollgate/pkg/config"
	"tollgate-hq/tollgate/pkg/gateway/middleware"
	"tollgate-hq/tollgate/pkg/quota"
	"tollgate-hq/tollgate/pkg/telemetry"
	"tollgate-hq/tollgate/pkg/telemetry/health"
	"tollgate-hq/tollgate/pkg/usage/recorder"
	usagestorage "tollgate-hq/tollgate/pkg/usage/storage"
)

func newTestServer(t *testing.T, modify func(*config.Config)) *Server {
	t.Helper()
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	cfg := config.Default()
	cfg.Server.ListenAddress = "127.0.0.1:0"
	cfg.Server.ShutdownTimeout = 2 * time.Second
	cfg.Telemetry.Logging.Level = "error"
	if modify != nil {
		modify(cfg)
	}

	tel, err := telemetry.New(&cfg.Telemetry, cfg.Keys.SecretPrefix, health.VersionInfo{Version: "test"})
	if err != nil {
		t.Fatalf("telemetry.New failed: %v", err)
	}
	t.Cleanup(func() { tel.Shutdown(context.Background()) })

	backend := keystorage.NewMemoryBackend()
	keys := apikey.NewStore(backend, apikey.Options{MaxUses: 2})
	events := usagestorage.NewMemoryStorage()
	rec := recorder.New(events, &recorder.Config{AsyncBuffer: 0})
	t.Cleanup(func() { rec.Close() })

	tel.Health.RegisterPinger("key_store", keys)
	tel.Health.RegisterPinger("usage_store", events)

	limiter := middleware.NewRateLimiter(&cfg.Security.RateLimit)
	t.Cleanup(limiter.Stop)

	return New(cfg, Deps{
		Keys:      keys,
		Quota:     quota.NewMeter(backend, rec, quota.Options{Observer: tel.Metrics}),
		Metrics:   analytics.New(events, nil),
		Telemetry: tel,
		Limiter:   limiter,
	})
}

func serve(t *testing.T, s *Server, method, path string, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestServer_Routes(t *testing.T) {
	s := newTestServer(t, nil)

	tests := []struct {
		method   string
		path     string
		body     string
		wantCode int
	}{
		{http.MethodGet, "/health", "", http.StatusOK},
		{http.MethodGet, "/ready", "", http.StatusOK},
		{http.MethodGet, "/version", "", http.StatusOK},
		{http.MethodGet, "/metrics", "", http.StatusOK},
		{http.MethodGet, "/api-keys", "", http.StatusOK},
		{http.MethodPost, "/api-keys", `{"name":"ci"}`, http.StatusCreated},
		{http.MethodPost, "/validate", `{"apiKey":"tg_nope"}`, http.StatusOK},
		{http.MethodPost, "/github-summarizer", `{"gitHubUrl":"x"}`, http.StatusUnauthorized},
		{http.MethodGet, "/prometheus", "", http.StatusOK},
		{http.MethodGet, "/nowhere", "", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := serve(t, s, tt.method, tt.path, tt.body, nil)
			if rec.Code != tt.wantCode {
				t.Errorf("expected %d, got %d: %s", tt.wantCode, rec.Code, rec.Body.String())
			}
			if rec.Header().Get(middleware.RequestIDHeader) == "" {
				t.Error("expected request id header")
			}
		})
	}
}

func TestServer_BasePath(t *testing.T) {
	s := newTestServer(t, func(c *config.Config) { c.Server.BasePath = "/api" })

	if rec := serve(t, s, http.MethodGet, "/api/api-keys", "", nil); rec.Code != http.StatusOK {
		t.Errorf("expected 200 under base path, got %d", rec.Code)
	}
	if rec := serve(t, s, http.MethodGet, "/api-keys", "", nil); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 outside base path, got %d", rec.Code)
	}
	if rec := serve(t, s, http.MethodGet, "/health", "", nil); rec.Code != http.StatusOK {
		t.Errorf("expected health at root, got %d", rec.Code)
	}
}

func TestServer_CORSPreflight(t *testing.T) {
	s := newTestServer(t, nil)

	rec := serve(t, s, http.MethodOptions, "/api-keys", "", map[string]string{
		"Origin":                        config.DefaultFrontendURL,
		"Access-Control-Request-Method": "POST",
	})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != config.DefaultFrontendURL {
		t.Errorf("expected dashboard origin allowed, got %q", rec.Header().Get("Access-Control-Allow-Origin"))
	}
}

func TestServer_PrometheusExposition(t *testing.T) {
	s := newTestServer(t, nil)

	serve(t, s, http.MethodGet, "/api-keys", "", nil)
	rec := serve(t, s, http.MethodGet, "/prometheus", "", nil)

	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `tollgate_http_requests_total{method="GET",route="GET /api-keys",status="200"} 1`) {
		t.Errorf("expected route-labelled request counter, got:\n%s", body)
	}
}

func TestServer_RateLimit(t *testing.T) {
	s := newTestServer(t, func(c *config.Config) {
		c.Security.RateLimit.Enabled = true
		c.Security.RateLimit.RequestsPerSecond = 0.001
		c.Security.RateLimit.Burst = 1
	})

	if rec := serve(t, s, http.MethodGet, "/metrics", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("expected first request admitted, got %d", rec.Code)
	}
	if rec := serve(t, s, http.MethodGet, "/metrics", "", nil); rec.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", rec.Code)
	}
}

func TestServer_ServeAndShutdown(t *testing.T) {
	s := newTestServer(t, nil)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	url := "http://" + ln.Addr().String() + "/health"
	var resp *http.Response
	for i := 0; i < 50; i++ {
		resp, err = http.Get(url)
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("server never answered: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
	if !s.IsRunning() || s.Addr() == nil {
		t.Error("expected server running with an address")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
	if s.IsRunning() {
		t.Error("expected server stopped")
	}
	if err := s.Shutdown(context.Background()); err != nil {
		t.Errorf("second Shutdown returned %v", err)
	}
}
