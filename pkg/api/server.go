// Package api exposes the analysis pipeline over HTTP.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"finstory/pkg/api/analyze"
	apiconfig "finstory/pkg/api/config"
	"finstory/pkg/core/agent"
	"finstory/pkg/core/config"
	"finstory/pkg/core/insight"
)

// Config holds server dependencies.
type Config struct {
	App    *config.Config
	Runner analyze.Runner
	Agents *agent.Manager // nil when no provider is configured
	Health *insight.Health
	Log    zerolog.Logger
}

// Server is the HTTP server.
type Server struct {
	router *chi.Mux
	server *http.Server
	log    zerolog.Logger
	cfg    Config
}

// New creates a new HTTP server.
func New(cfg Config) *Server {
	s := &Server{
		router: chi.NewRouter(),
		log:    cfg.Log.With().Str("component", "server").Logger(),
		cfg:    cfg,
	}

	if cfg.Agents != nil && cfg.Health != nil {
		cfg.Agents.OnSwitch(func(string) { cfg.Health.Reset() })
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.App.Server.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.App.Insight.Timeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.App.Server.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	analyzeHandler := analyze.NewHandler(s.cfg.Runner, s.cfg.App.Server.MaxBodyBytes, s.cfg.Log)
	configHandler := apiconfig.NewHandler(s.cfg.Agents, s.cfg.App)

	s.router.Route("/api", func(r chi.Router) {
		r.Post("/analyze", analyzeHandler.HandleAnalyze)
		r.Get("/config", configHandler.HandleConfig)
		r.Post("/config/switch", configHandler.HandleSwitch)
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.log.Info().Int("port", s.cfg.App.Server.Port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

type healthResponse struct {
	Status          string `json:"status"`
	ActiveProvider  string `json:"active_provider,omitempty"`
	InsightFailures int    `json:"insight_failures"`
	InsightPaused   bool   `json:"insight_paused"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok"}
	if s.cfg.Agents != nil {
		resp.ActiveProvider = s.cfg.Agents.GetActiveProvider()
	}
	if h := s.cfg.Health; h != nil {
		resp.InsightFailures = h.Failures()
		resp.InsightPaused = !h.Available(time.Now())
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
