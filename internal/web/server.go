// Package web provides the HTTP server and handlers for the list sync UI.
package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/JonMunkholm/listsync/internal/config"
	"github.com/JonMunkholm/listsync/internal/core"
	mw "github.com/JonMunkholm/listsync/internal/web/middleware"
)

// Server is the HTTP server for the list sync application.
type Server struct {
	service *core.Service
	cfg     *config.Config
	router  *chi.Mux
	server  *http.Server
	limiter *rateLimiter
}

// NewServer creates a new Server instance.
func NewServer(service *core.Service, cfg *config.Config) *Server {
	s := &Server{
		service: service,
		cfg:     cfg,
		router:  chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(mw.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(mw.Logger)
	s.router.Use(middleware.Recoverer)

	// Security hardening
	s.router.Use(securityHeaders)

	if len(s.cfg.Security.AllowedOrigins) > 0 {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.cfg.Security.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-API-Key", "Last-Event-ID"},
			MaxAge:         300,
		}))
	}

	if s.cfg.Rate.Enabled {
		s.limiter = newRateLimiter(s.cfg.Rate.RequestsPerMinute, time.Minute)
		s.router.Use(s.limiter.middleware)
	}
}

// setupRoutes configures all HTTP routes. Streaming routes are registered
// outside the timeout group since a run can outlive any request timeout.
func (s *Server) setupRoutes() {
	timeout := middleware.Timeout(s.cfg.Server.RequestTimeout)

	s.router.Get("/healthz", s.handleHealth)

	s.router.With(timeout).Get("/", s.handleDashboard)

	auth := mw.APIKeyAuth(&s.cfg.Security)

	// Legacy trigger, stream and download paths
	s.router.Group(func(r chi.Router) {
		r.Use(auth)
		r.Get("/stream", s.handleLatestStream)

		r.Group(func(r chi.Router) {
			r.Use(timeout)
			r.Get("/sync/{index}", s.handleSyncOne)
			r.Post("/sync/{index}", s.handleSyncOne)
			r.Get("/sync_all", s.handleSyncAll)
			r.Post("/sync_all", s.handleSyncAll)
			r.Get("/download_invalids", s.handleDownloadInvalids)
		})
	})

	s.router.Route("/api", func(r chi.Router) {
		r.Use(auth)

		r.Get("/runs/{runID}/stream", s.handleRunStream)
		r.Get("/stream", s.handleLatestStream)

		r.Group(func(r chi.Router) {
			r.Use(timeout)

			r.Get("/bindings", s.handleListBindings)
			r.Get("/bindings/{index}/preview", s.handlePreview)

			// Sync triggers
			r.Get("/sync", s.handleSyncAll)
			r.Post("/sync", s.handleSyncAll)
			r.Get("/sync/{index}", s.handleSyncOne)
			r.Post("/sync/{index}", s.handleSyncOne)

			// Runs
			r.Get("/runs", s.handleListRuns)
			r.Get("/runs/{runID}/log", s.handleRunLog)
			r.Get("/runs/{runID}/result", s.handleRunResult)
			r.Post("/runs/{runID}/cancel", s.handleCancelRun)

			// Invalid records
			r.Get("/invalids", s.handleListInvalids)
			r.Get("/invalids/download", s.handleDownloadInvalids)
		})
	})
}

// Start begins listening for HTTP requests.
func (s *Server) Start(addr string) error {
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout, // 0 keeps SSE streams open
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	slog.Info("starting server", "addr", addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.limiter != nil {
		s.limiter.stop()
	}
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// securityHeaders adds security headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'self'; script-src 'self' 'unsafe-inline'; style-src 'self' 'unsafe-inline'; connect-src 'self'")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// writeJSON encodes v as JSON and writes it to w with status.
// Logs encoding errors since headers are already sent.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}
