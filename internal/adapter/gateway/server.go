package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"chatrelay/internal/infra/config"
	"chatrelay/internal/infra/middleware"
)

// Server exposes the chat API over HTTP.
type Server struct {
	cfg     config.ServerConfig
	handler *ChatHandler
	logger  *slog.Logger

	httpSrv   *http.Server
	boundAddr string

	// Lifecycle for the rate limiter cleanup goroutine.
	ctx    context.Context
	cancel context.CancelFunc
}

// NewServer creates the HTTP server around a chat handler.
func NewServer(cfg config.ServerConfig, handler *ChatHandler, logger *slog.Logger) *Server {
	return &Server{
		cfg:     cfg,
		handler: handler,
		logger:  logger,
	}
}

// Start begins serving. Non-blocking (starts in goroutine).
func (s *Server) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/chat", s.handler.HandleChat)
	mux.HandleFunc("/api/v1/health", s.handler.HandleHealth)

	secureHandler := middleware.SecurityHeaders(
		middleware.RateLimit(s.ctx, s.cfg.RequestsPerMin, s.cfg.Burst)(mux),
	)

	s.httpSrv = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           secureHandler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// No WriteTimeout: streaming responses stay open as long as the
		// upstream model produces tokens. Per-request bounds come from the
		// provider timeouts and client disconnect detection.
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	}
	s.boundAddr = ln.Addr().String()

	go func() {
		s.logger.Info("http server started", "addr", s.boundAddr)
		if err := s.httpSrv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("http server error", "error", err)
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

	shutdownCtx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()
	return s.httpSrv.Shutdown(shutdownCtx)
}

// BoundAddr returns the actual listen address. Only valid after Start.
func (s *Server) BoundAddr() string { return s.boundAddr }
