package server

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	aerrors "github.com/foundryhq/assistant/internal/errors"
)

// handleListServers returns a point-in-time snapshot of all configured
// tool-server connections.
func (s *Server) handleListServers(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.servers.Snapshot())
}

// handleConnectServer explicitly (re)connects one server. Reconnect after a
// failure is always explicit; there is no automatic restart.
func (s *Server) handleConnectServer(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.servers.Connect(r.Context(), id); err != nil {
		switch {
		case errors.Is(err, aerrors.ErrUnknownServer):
			writeError(w, http.StatusNotFound, "unknown server: "+id)
		default:
			writeError(w, http.StatusBadGateway, err.Error())
		}

		return
	}

	status, _ := s.servers.Status(id)
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "status": status})
}

func (s *Server) handleDisconnectServer(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.servers.Disconnect(r.Context(), id); err != nil {
		if errors.Is(err, aerrors.ErrUnknownServer) {
			writeError(w, http.StatusNotFound, "unknown server: "+id)

			return
		}

		writeError(w, http.StatusInternalServerError, err.Error())

		return
	}

	status, _ := s.servers.Status(id)
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "status": status})
}

// handleServerTools returns one server's discovered tools.
func (s *Server) handleServerTools(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if _, ok := s.servers.Status(id); !ok {
		writeError(w, http.StatusNotFound, "unknown server: "+id)

		return
	}

	writeJSON(w, http.StatusOK, s.servers.ServerTools(id))
}

// handleListTools returns the namespaced tools of every connected server.
func (s *Server) handleListTools(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.servers.ListTools())
}

// handleReloadServers re-reads the declarative server list and applies it.
func (s *Server) handleReloadServers(w http.ResponseWriter, r *http.Request) {
	if s.reloadServers == nil {
		writeError(w, http.StatusNotImplemented, "server reload is not configured")

		return
	}

	if err := s.reloadServers(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())

		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "reloaded"})
}
