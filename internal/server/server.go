/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/Dzero1996/Nebula-KTV/internal/auth"
	"github.com/Dzero1996/Nebula-KTV/internal/config"
	"github.com/Dzero1996/Nebula-KTV/internal/controlapi"
	"github.com/Dzero1996/Nebula-KTV/internal/logbuffer"
	"github.com/Dzero1996/Nebula-KTV/internal/telemetry"
	"github.com/Dzero1996/Nebula-KTV/internal/version"
)

// Deps are the services the HTTP layer fronts.
type Deps struct {
	Player controlapi.Player
	Loader controlapi.SongLoader
	Events controlapi.EventSource
	Logs   *logbuffer.Buffer
}

// Server bundles the control API HTTP server and the resources it owns.
type Server struct {
	cfg        *config.Config
	logger     zerolog.Logger
	router     chi.Router
	httpServer *http.Server
	deps       Deps
	closers    []func() error
}

// New constructs the server and wires its routes.
func New(cfg *config.Config, deps Deps, logger zerolog.Logger) *Server {
	for _, warn := range cfg.LegacyEnvWarnings {
		logger.Warn().Msg(warn)
	}
	if cfg.ControlJWTKey == "" {
		logger.Warn().Msg("control API auth disabled; set KTV_CONTROL_JWT_KEY to require tokens")
	}

	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(securityHeadersMiddleware)
	router.Use(telemetry.TracingMiddleware("ktvplayer-api"))
	router.Use(telemetry.MetricsMiddleware)
	// The event stream is long-lived; everything else gets a deadline.
	router.Use(func(next http.Handler) http.Handler {
		timeout := middleware.Timeout(30 * time.Second)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
				next.ServeHTTP(w, r)
				return
			}
			timeout(next).ServeHTTP(w, r)
		})
	})

	srv := &Server{
		cfg:    cfg,
		logger: logger.With().Str("component", "server").Logger(),
		router: router,
		deps:   deps,
	}
	srv.configureRoutes()

	srv.httpServer = &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           srv.router,
		ReadHeaderTimeout: 15 * time.Second,
		// WriteTimeout stays 0 for the websocket stream; the middleware
		// timeout covers plain requests.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	return srv
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// HTTPServer exposes the underlying net/http server.
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// Close releases owned resources in reverse order.
func (s *Server) Close() error {
	var firstErr error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// DeferClose registers a cleanup hook.
func (s *Server) DeferClose(fn func() error) {
	s.closers = append(s.closers, fn)
}

func (s *Server) configureRoutes() {
	s.router.Get("/healthz", s.handleHealth)
	s.router.Handle("/metrics", telemetry.Handler())

	s.router.Group(func(r chi.Router) {
		r.Use(auth.Middleware([]byte(s.cfg.ControlJWTKey)))
		r.Get("/api/v1/version", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]string{"version": version.Version, "commit": version.Commit})
		})
		controlapi.New(s.deps.Player, s.deps.Loader, s.deps.Events, s.logger).Routes(r)
		if s.deps.Logs != nil {
			r.With(auth.RequireScope(auth.ScopeControl)).Get("/api/v1/logs", s.handleLogs)
		}
	})
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params := logbuffer.QueryParams{
		Level:      q.Get("level"),
		Component:  q.Get("component"),
		SessionID:  q.Get("session_id"),
		Search:     q.Get("search"),
		Limit:      200,
		Descending: true,
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			params.Limit = n
		}
	}
	if v := q.Get("since"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			params.Since = t
		}
	}

	entries := s.deps.Logs.Query(params)
	if entries == nil {
		entries = []logbuffer.LogEntry{}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"entries": entries,
		"stats":   s.deps.Logs.Stats(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	response := `{"status":"ok"`
	if s.deps.Player != nil {
		if snap, err := s.deps.Player.Snapshot(); err == nil {
			response += `,"session":true,"degradation":"` + string(snap.Degradation.Mode) + `"`
		} else {
			response += `,"session":false`
		}
	}
	response += `}`
	_, _ = w.Write([]byte(response))
}

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'self'; frame-ancestors 'none'; base-uri 'self'")

		// Only advertise HSTS for requests served over HTTPS.
		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		next.ServeHTTP(w, r)
	})
}
