// Package gateway exposes the query router over a small JSON HTTP API.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"agent-orchestrator/internal/domain"
	"agent-orchestrator/internal/infra/logger"
	"agent-orchestrator/internal/infra/middleware"
)

// QueryRouter answers one user query.
type QueryRouter interface {
	Route(ctx context.Context, query string, supporting domain.SupportingContext) domain.RouteResult
}

// Deps are the collaborators the gateway serves.
type Deps struct {
	Router QueryRouter
	Auth   Authenticator
	Docs   domain.SupportingContext

	BaseURL     string
	MissingKeys []string
	// Breakers reports circuit breaker state per role. Optional.
	Breakers func() map[string]string
	// Metrics serves the Prometheus scrape endpoint. Nil disables it.
	Metrics     http.Handler
	MetricsPath string
}

// Options tune the HTTP server.
type Options struct {
	Addr           string
	RequestsPerMin int
	BurstSize      int
	TrustedProxies []string
	// WriteTimeout must outlast a full classify + dispatch cycle.
	WriteTimeout time.Duration
}

// Server is the HTTP gateway.
type Server struct {
	deps    Deps
	auth    Authenticator
	opts    Options
	logger  *slog.Logger
	started time.Time

	httpSrv   *http.Server
	boundAddr string
	cancel    context.CancelFunc
}

// NewServer creates a gateway server.
func NewServer(deps Deps, opts Options, log *slog.Logger) *Server {
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Minute
	}
	if deps.MetricsPath == "" {
		deps.MetricsPath = "/metrics"
	}
	return &Server{
		deps:    deps,
		auth:    deps.Auth,
		opts:    opts,
		logger:  logger.OrDiscard(log).With("component", "gateway"),
		started: time.Now(),
	}
}

// Handler builds the routed, middleware-wrapped handler. ctx bounds the
// rate limiter's background sweeper.
func (s *Server) Handler(ctx context.Context) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/login", s.handleLogin)
	mux.HandleFunc("POST /api/v1/logout", s.requireSession(s.handleLogout))
	mux.HandleFunc("POST /api/v1/query", s.requireSession(s.handleQuery))
	mux.HandleFunc("GET /api/v1/status", s.handleStatus)
	mux.HandleFunc("GET /api/v1/health", s.handleHealth)
	if s.deps.Metrics != nil {
		mux.Handle("GET "+s.deps.MetricsPath, s.deps.Metrics)
	}

	return middleware.Chain(mux,
		middleware.Recover(s.logger),
		middleware.AccessLog(s.logger),
		middleware.SecurityHeaders,
		middleware.RateLimit(ctx, middleware.RateLimitConfig{
			RequestsPerMin: s.opts.RequestsPerMin,
			BurstSize:      s.opts.BurstSize,
			TrustedProxies: s.opts.TrustedProxies,
		}, s.logger),
	)
}

// Start binds the listener and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)

	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		s.cancel()
		return fmt.Errorf("gateway listen %s: %w", s.opts.Addr, err)
	}
	s.boundAddr = ln.Addr().String()

	s.httpSrv = &http.Server{
		Handler:           s.Handler(ctx),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      s.opts.WriteTimeout,
	}

	go func() {
		s.logger.Info("gateway started", "addr", s.boundAddr)
		if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("gateway serve failed", "error", err)
		}
	}()
	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// BoundAddr returns the address the server bound to. Only valid after Start.
func (s *Server) BoundAddr() string { return s.boundAddr }
