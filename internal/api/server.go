package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/goharvest/internal/config"
	"github.com/jonesrussell/goharvest/internal/logger"
)

// Server wraps the HTTP server with graceful startup and shutdown.
type Server struct {
	srv *http.Server
	log logger.Interface
}

// NewServer creates an API server from the configured router.
func NewServer(cfg config.ServerConfig, router *gin.Engine, log logger.Interface) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              cfg.Address,
			Handler:           router,
			ReadTimeout:       cfg.ReadTimeout,
			WriteTimeout:      cfg.WriteTimeout,
			IdleTimeout:       cfg.IdleTimeout,
			ReadHeaderTimeout: readHeaderTimeout,
		},
		log: log,
	}
}

// Start serves until the listener fails or Stop is called.
func (s *Server) Start() error {
	s.log.Info("starting API server", "address", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

// Stop drains in-flight requests and shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	s.log.Info("stopping API server")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.srv.Shutdown(shutdownCtx)
}
