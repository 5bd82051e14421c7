// Package server exposes the assistant over HTTP: a streaming chat endpoint,
// session inspection, the model catalog, and tool-server administration.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/foundryhq/assistant/internal/engine"
	"github.com/foundryhq/assistant/internal/mcpserver"
	"github.com/foundryhq/assistant/internal/project"
	"github.com/foundryhq/assistant/internal/session"
)

// Server is the assistant's HTTP surface.
type Server struct {
	log      *slog.Logger
	engine   *engine.Engine
	sessions session.Store
	projects project.Store
	servers  *mcpserver.Manager

	reloadServers func(ctx context.Context) error

	defaultModel string
	httpServer   *http.Server
}

// Config wires a Server's collaborators.
type Config struct {
	Addr         string
	DefaultModel string

	Engine   *engine.Engine
	Sessions session.Store
	Projects project.Store
	Servers  *mcpserver.Manager

	// ReloadServers re-reads the declarative server list and applies it.
	// Optional; absent disables the reload endpoint.
	ReloadServers func(ctx context.Context) error
}

// New creates the HTTP server and mounts its routes.
func New(log *slog.Logger, cfg Config) *Server {
	s := &Server{
		log:           log.With("component", "http_server"),
		engine:        cfg.Engine,
		sessions:      cfg.Sessions,
		projects:      cfg.Projects,
		servers:       cfg.Servers,
		reloadServers: cfg.ReloadServers,
		defaultModel:  cfg.DefaultModel,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/ai/models", s.handleListModels)

		r.Route("/projects/{projectID}/ai", func(r chi.Router) {
			r.Post("/chat", s.handleChat)
			r.Get("/session", s.handleGetSession)
			r.Delete("/session", s.handleClearSession)
		})

		r.Route("/mcp", func(r chi.Router) {
			r.Get("/servers", s.handleListServers)
			r.Post("/servers/{id}/connect", s.handleConnectServer)
			r.Post("/servers/{id}/disconnect", s.handleDisconnectServer)
			r.Get("/servers/{id}/tools", s.handleServerTools)
			r.Get("/tools", s.handleListTools)
			r.Post("/reload", s.handleReloadServers)
		})
	})

	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.log.Info("HTTP server listening", "addr", s.httpServer.Addr)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}

	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
