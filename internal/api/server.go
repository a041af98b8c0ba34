// Package api exposes the lead import pipeline and the Facebook Lead Ads
// integration over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/huffhealth/crm/internal/config"
)

// Server represents the API server
type Server struct {
	config  config.ServerConfig
	handler http.Handler
	router  *chi.Mux
	server  *http.Server
}

// NewServer creates a new API server
func NewServer(cfg config.ServerConfig, h *Handlers, health *HealthChecker) *Server {
	router := SetupRoutes(h, health, cfg.AllowedOrigins)
	return &Server{
		config:  cfg,
		handler: router,
		router:  router,
	}
}

// ListenAndServe starts the HTTP server
func (s *Server) ListenAndServe(addr string) error {
	readTimeout := s.config.ReadTimeout()
	if readTimeout == 0 {
		readTimeout = 30 * time.Second
	}
	writeTimeout := s.config.WriteTimeout()
	if writeTimeout == 0 {
		writeTimeout = 2 * time.Minute
	}

	s.server = &http.Server{
		Addr:    addr,
		Handler: s.handler,
		// Import batches of several thousand rows take a while to write.
		ReadTimeout:       readTimeout,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Handler returns the HTTP handler for testing
func (s *Server) Handler() http.Handler {
	return s.handler
}
