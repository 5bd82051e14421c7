package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/foundryhq/assistant/internal/engine"
	"github.com/foundryhq/assistant/internal/logging"
	"github.com/foundryhq/assistant/internal/mcpserver"
	"github.com/foundryhq/assistant/internal/project"
	"github.com/foundryhq/assistant/internal/registry"
	"github.com/foundryhq/assistant/internal/router"
	"github.com/foundryhq/assistant/internal/session"
)

// scriptedCompletion answers every pass with a fixed text.
type scriptedCompletion struct {
	text string
}

func (s *scriptedCompletion) Stream(_ context.Context, _ engine.Request, onDelta func(string) error) (*engine.Completion, error) {
	if err := onDelta(s.text); err != nil {
		return nil, err
	}

	return &engine.Completion{Text: s.text, StopReason: "end_turn"}, nil
}

func newTestServer(t *testing.T) (*Server, session.Store, *project.MemoryStore) {
	t.Helper()

	log := logging.Nop()
	projects := project.NewMemoryStore()

	reg := registry.New()
	require.NoError(t, registry.RegisterBuiltins(reg, projects, nil))

	manager := mcpserver.NewManager(log)
	toolRouter := router.New(log, reg, manager, router.WithTimeout(time.Second))
	sessions := session.NewMemoryStore()
	eng := engine.New(log, &scriptedCompletion{text: "Hello there."}, toolRouter, sessions)

	srv := New(log, Config{
		Addr:         ":0",
		DefaultModel: "claude-opus-4-6",
		Engine:       eng,
		Sessions:     sessions,
		Projects:     projects,
		Servers:      manager,
	})

	return srv, sessions, projects
}

func TestHandleChat(t *testing.T) {
	t.Run("streams text and done frames over SSE", func(t *testing.T) {
		srv, _, _ := newTestServer(t)

		body := `{"message": "hi"}`
		req := httptest.NewRequest(http.MethodPost, "/api/v1/projects/proj-1/ai/chat", strings.NewReader(body))
		req.Header.Set("X-User-ID", "alice")
		rec := httptest.NewRecorder()

		srv.httpServer.Handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

		out := rec.Body.String()
		require.Contains(t, out, "event: text")
		require.Contains(t, out, `"text":"Hello there."`)
		require.Contains(t, out, "event: done")
		require.Contains(t, out, `"session_id":"alice:proj-1"`)
	})

	t.Run("empty message is rejected", func(t *testing.T) {
		srv, _, _ := newTestServer(t)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/projects/proj-1/ai/chat", strings.NewReader(`{"message": "  "}`))
		rec := httptest.NewRecorder()

		srv.httpServer.Handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("page context is appended to the user message", func(t *testing.T) {
		body := chatRequest{
			Message: "what is this?",
			Context: &chatContext{Page: "canvas", CanvasID: "c-9"},
		}

		got := buildMessage(body)
		require.Contains(t, got, "what is this?")
		require.Contains(t, got, "[User is on the 'canvas' page]")
		require.Contains(t, got, "[Current canvas: c-9]")
	})
}

func TestSessionEndpoints(t *testing.T) {
	t.Run("empty session returns an empty transcript", func(t *testing.T) {
		srv, _, _ := newTestServer(t)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/projects/proj-1/ai/session", nil)
		req.Header.Set("X-User-ID", "alice")
		rec := httptest.NewRecorder()

		srv.httpServer.Handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)

		var payload map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
		require.Equal(t, "alice:proj-1", payload["session_id"])
		require.Empty(t, payload["turns"])
	})

	t.Run("chat then get returns the transcript, delete clears it", func(t *testing.T) {
		srv, sessions, _ := newTestServer(t)

		chat := httptest.NewRequest(http.MethodPost, "/api/v1/projects/proj-1/ai/chat", strings.NewReader(`{"message": "hi"}`))
		chat.Header.Set("X-User-ID", "alice")
		srv.httpServer.Handler.ServeHTTP(httptest.NewRecorder(), chat)

		get := httptest.NewRequest(http.MethodGet, "/api/v1/projects/proj-1/ai/session", nil)
		get.Header.Set("X-User-ID", "alice")
		rec := httptest.NewRecorder()
		srv.httpServer.Handler.ServeHTTP(rec, get)

		var payload struct {
			Turns []session.Turn `json:"turns"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
		require.Len(t, payload.Turns, 2)
		require.Equal(t, session.RoleUser, payload.Turns[0].Role)
		require.Equal(t, "Hello there.", payload.Turns[1].Content)

		del := httptest.NewRequest(http.MethodDelete, "/api/v1/projects/proj-1/ai/session", nil)
		del.Header.Set("X-User-ID", "alice")
		srv.httpServer.Handler.ServeHTTP(httptest.NewRecorder(), del)

		conv, err := sessions.Get(context.Background(), "alice:proj-1")
		require.NoError(t, err)
		require.Nil(t, conv)
	})
}

func TestModelAndMCPEndpoints(t *testing.T) {
	t.Run("model catalog lists selectable models", func(t *testing.T) {
		srv, _, _ := newTestServer(t)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/ai/models", nil)
		rec := httptest.NewRecorder()
		srv.httpServer.Handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)

		var models []map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &models))
		require.NotEmpty(t, models)
		require.Equal(t, "claude-opus-4-6", models[0]["id"])
	})

	t.Run("server list reflects the declared set", func(t *testing.T) {
		srv, _, _ := newTestServer(t)

		configs := []mcpserver.ServerConfig{{ID: "search", Command: "search-server", Enabled: true}}
		require.NoError(t, srv.servers.Reload(context.Background(), configs))

		req := httptest.NewRequest(http.MethodGet, "/api/v1/mcp/servers", nil)
		rec := httptest.NewRecorder()
		srv.httpServer.Handler.ServeHTTP(rec, req)

		var servers []mcpserver.ServerInfo
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &servers))
		require.Len(t, servers, 1)
		require.Equal(t, "search", servers[0].ID)
		require.Equal(t, mcpserver.StatusDisconnected, servers[0].Status)
	})

	t.Run("operations on unknown servers return 404", func(t *testing.T) {
		srv, _, _ := newTestServer(t)

		for _, target := range []string{
			"/api/v1/mcp/servers/ghost/connect",
			"/api/v1/mcp/servers/ghost/disconnect",
		} {
			req := httptest.NewRequest(http.MethodPost, target, nil)
			rec := httptest.NewRecorder()
			srv.httpServer.Handler.ServeHTTP(rec, req)
			require.Equal(t, http.StatusNotFound, rec.Code, target)
		}
	})

	t.Run("reload endpoint requires configuration", func(t *testing.T) {
		srv, _, _ := newTestServer(t)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/mcp/reload", nil)
		rec := httptest.NewRecorder()
		srv.httpServer.Handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusNotImplemented, rec.Code)
	})
}
