package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"tollgate-hq/tollgate/pkg/config"
	"tollgate-hq/tollgate/pkg/gateway/handlers"
	"tollgate-hq/tollgate/pkg/gateway/middleware"
	"tollgate-hq/tollgate/pkg/telemetry"
	"tollgate-hq/tollgate/pkg/telemetry/health"
)

// Deps are the services behind the routes.
type Deps struct {
	Keys      handlers.KeyService
	Quota     handlers.QuotaService
	Metrics   handlers.MetricsService
	Telemetry *telemetry.Telemetry

	// Limiter is optional. It is reconfigured by the caller on reload.
	Limiter *middleware.RateLimiter

	// TLSConfig is optional; when set the server serves HTTPS.
	TLSConfig *tls.Config
}

// Server is the Tollgate HTTP server.
type Server struct {
	config     *config.Config
	deps       Deps
	handler    http.Handler
	httpServer *http.Server
	logger     *slog.Logger

	mu        sync.RWMutex
	isRunning bool
	addr      net.Addr
}

// New builds the route table and middleware chain.
func New(cfg *config.Config, deps Deps) *Server {
	s := &Server{
		config: cfg,
		deps:   deps,
		logger: slog.Default().With("component", "server"),
	}
	s.handler = s.setupRoutes()
	return s
}

// Handler returns the complete handler, middleware included.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start listens on server.listen_address and serves until ctx is done. It
// then shuts down gracefully and returns nil, or the first serve error.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Server.ListenAddress)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Server.ListenAddress, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Start on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		_ = ln.Close()
		return fmt.Errorf("server is already running")
	}
	srvCfg := &s.config.Server
	s.httpServer = &http.Server{
		Handler:           s.handler,
		ReadTimeout:       srvCfg.ReadTimeout,
		ReadHeaderTimeout: srvCfg.ReadTimeout,
		WriteTimeout:      srvCfg.WriteTimeout,
		IdleTimeout:       srvCfg.IdleTimeout,
		MaxHeaderBytes:    srvCfg.MaxHeaderBytes,
		TLSConfig:         s.deps.TLSConfig,
		ErrorLog:          slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
	}
	s.isRunning = true
	s.addr = ln.Addr()
	httpServer := s.httpServer
	s.mu.Unlock()

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting server",
			"address", ln.Addr().String(),
			"base_path", srvCfg.BasePath,
			"tls_enabled", s.deps.TLSConfig != nil,
		)

		var err error
		if s.deps.TLSConfig != nil {
			// Certificates come from TLSConfig.GetCertificate.
			err = httpServer.ServeTLS(ln, "", "")
		} else {
			err = httpServer.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("server error: %w", err)
		}
		close(errChan)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("context cancelled, initiating shutdown")
		return s.Shutdown(context.WithoutCancel(ctx))
	case err, ok := <-errChan:
		s.setStopped()
		if ok {
			return err
		}
		return nil
	}
}

// Shutdown drains in-flight requests for up to server.shutdown_timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.RLock()
	httpServer, running := s.httpServer, s.isRunning
	s.mu.RUnlock()
	if !running || httpServer == nil {
		return nil
	}

	s.logger.Info("initiating graceful shutdown", "timeout", s.config.Server.ShutdownTimeout.String())
	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.Server.ShutdownTimeout)
	defer cancel()

	var shutdownErr error
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("error during server shutdown", "error", err)
		shutdownErr = fmt.Errorf("server shutdown error: %w", err)
	}
	s.setStopped()
	s.logger.Info("server stopped")
	return shutdownErr
}

// IsRunning reports whether the server is serving.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Addr returns the bound address while running.
func (s *Server) Addr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.addr
}

func (s *Server) setStopped() {
	s.mu.Lock()
	s.isRunning = false
	s.mu.Unlock()
}

// setupRoutes registers every route and applies the middleware chain.
func (s *Server) setupRoutes() http.Handler {
	mux := http.NewServeMux()

	h := handlers.New(s.deps.Keys, s.deps.Quota, s.deps.Metrics, handlers.Options{
		MaxBodyBytes: s.config.Server.MaxBodyBytes,
	})
	h.Register(mux, s.config.Server.BasePath)

	tel := s.deps.Telemetry
	var (
		collector middleware.HTTPRecorder
		tracer    middleware.SpanStarter
	)
	if tel != nil {
		health.Register(mux, "", tel.Health, tel.Version)
		if tel.Metrics != nil && s.config.Telemetry.Metrics.Enabled {
			mux.Handle("GET "+s.config.Telemetry.Metrics.Path, tel.Metrics.Handler())
			collector = tel.Metrics
		}
		if tel.Tracer != nil {
			tracer = tel.Tracer
		}
	}

	var rateLimit middleware.Middleware
	if s.deps.Limiter != nil {
		rateLimit = s.deps.Limiter.Middleware
	}

	return middleware.Chain(mux,
		middleware.Recovery,
		middleware.RequestID,
		middleware.Observe(mux, collector, tracer),
		middleware.Logging,
		middleware.CORS(&s.config.Server.CORS),
		rateLimit,
	)
}
