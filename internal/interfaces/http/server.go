package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/turtacn/PriorityCraft/internal/config"
	"github.com/turtacn/PriorityCraft/internal/infrastructure/monitoring/logging"
)

// Server wraps http.Server with the engine's lifecycle conventions.
type Server struct {
	srv    *http.Server
	cfg    config.ServerConfig
	logger logging.Logger
}

// NewServer builds the server over handler using cfg's timeouts.
func NewServer(cfg config.ServerConfig, handler http.Handler, log logging.Logger) *Server {
	readTimeout := cfg.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 15 * time.Second
	}
	writeTimeout := cfg.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 30 * time.Second
	}
	return &Server{
		cfg:    cfg,
		logger: log.Named("http_server"),
		srv: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      handler,
			ReadTimeout:  readTimeout,
			WriteTimeout: writeTimeout,
			IdleTimeout:  60 * time.Second,
		},
	}
}

// Start blocks serving until Stop or a listener error.
func (s *Server) Start() error {
	s.logger.Info("http server listening", logging.Int("port", s.cfg.Port))
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop drains in-flight requests within the configured shutdown window.
func (s *Server) Stop(ctx context.Context) error {
	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	s.logger.Info("http server shutting down")
	return s.srv.Shutdown(shutdownCtx)
}
