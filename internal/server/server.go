// Package server provides the HTTP API for kensho.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/kensho/internal/app"
	"github.com/hyperjump/kensho/internal/config"
	"github.com/hyperjump/kensho/pkg/utils"
)

const maxBodyBytes = 64 << 10

// Server is the HTTP server for the kensho API.
type Server struct {
	components *app.Components
	config     *config.ServerConfig
	logger     *zap.Logger
	server     *http.Server
}

// NewServer creates a server over initialized components.
func NewServer(components *app.Components, cfg *config.ServerConfig, logger *zap.Logger) *Server {
	return &Server{
		components: components,
		config:     cfg,
		logger:     utils.OrNop(logger),
	}
}

// Router returns the HTTP handler with all routes and middleware.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	if s.config.RequestTimeout > 0 {
		r.Use(middleware.Timeout(s.config.RequestTimeout))
	}
	r.Use(middleware.Compress(5))

	r.Get("/health", s.handleHealth)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Post("/verify", s.handleVerify)
		r.Get("/facts", s.handleListFacts)
		r.Get("/facts/{id}", s.handleGetFact)
		r.Get("/verifications", s.handleListVerifications)
		r.Get("/verifications/{id}", s.handleGetVerification)
		r.Post("/reload", s.handleReload)
	})
	if m := s.components.Metrics; m != nil {
		r.Method(http.MethodGet, "/metrics", m.Handler())
	}
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// requestLogger logs each request and feeds the HTTP metrics with the matched route pattern.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		elapsed := time.Since(start)
		s.logger.Debug("HTTP request",
			zap.String("method", r.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Duration("elapsed", elapsed),
			zap.String("request_id", middleware.GetReqID(r.Context())))
		if m := s.components.Metrics; m != nil {
			m.RecordHTTPRequest(r.Method, route, status, elapsed)
		}
	})
}
