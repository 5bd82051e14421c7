package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/foundryhq/assistant/internal/anthropic"
	aerrors "github.com/foundryhq/assistant/internal/errors"
	"github.com/foundryhq/assistant/internal/registry"
	"github.com/foundryhq/assistant/internal/session"
	"github.com/foundryhq/assistant/internal/stream"
)

// chatContext carries optional UI state hints appended to the user message.
type chatContext struct {
	Page        string `json:"page,omitempty"`
	CanvasID    string `json:"canvas_id,omitempty"`
	ComponentID string `json:"component_id,omitempty"`
	IdeaID      string `json:"idea_id,omitempty"`
}

type chatRequest struct {
	Message string       `json:"message"`
	Context *chatContext `json:"context,omitempty"`
	Model   string       `json:"model,omitempty"`
}

// handleChat streams one assistant turn as SSE frames. Closing the connection
// aborts the run.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")
	userID := requestUser(r)

	var body chatRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")

		return
	}

	if strings.TrimSpace(body.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")

		return
	}

	model := body.Model
	if model == "" {
		model = s.defaultModel
	}

	key := sessionKey(userID, projectID)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conv, err := s.sessions.Get(ctx, key)
	if err != nil {
		s.log.Error("Session lookup failed", "key", key, "error", err)
		writeError(w, http.StatusInternalServerError, "session lookup failed")

		return
	}

	if conv == nil {
		conv = session.NewConversation(key, model)
	} else {
		conv.Model = model
	}

	name, slug := s.projectIdentity(ctx, projectID)
	ctx = registry.WithScope(ctx, registry.Scope{ProjectID: projectID, ProjectSlug: slug})

	events, err := s.engine.Run(ctx, conv, buildMessage(body), systemPrompt(name, slug, projectID))
	if err != nil {
		if errors.Is(err, aerrors.ErrConversationBusy) {
			writeError(w, http.StatusConflict, "conversation already has a request in flight")

			return
		}

		writeError(w, http.StatusInternalServerError, err.Error())

		return
	}

	sw, err := stream.NewWriter(w)
	if err != nil {
		cancel()

		for range events {
		}

		writeError(w, http.StatusInternalServerError, "streaming not supported")

		return
	}

	encoder := stream.NewEncoder(key)

	for ev := range events {
		frame, err := encoder.Encode(ev)
		if err != nil {
			s.log.Warn("Failed to encode event", "error", err)

			continue
		}

		if err := sw.Write(frame); err != nil {
			// Client is gone; cancel the run and drain remaining events.
			cancel()
		}
	}
}

// handleGetSession returns the stored transcript for the caller's scope.
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	key := sessionKey(requestUser(r), chi.URLParam(r, "projectID"))

	conv, err := s.sessions.Get(r.Context(), key)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "session lookup failed")

		return
	}

	if conv == nil {
		writeJSON(w, http.StatusOK, map[string]any{"session_id": key, "turns": []session.Turn{}})

		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"session_id":      key,
		"conversation_id": conv.ID,
		"model":           conv.Model,
		"turns":           conv.Turns,
	})
}

// handleClearSession discards the caller's conversation history.
func (s *Server) handleClearSession(w http.ResponseWriter, r *http.Request) {
	key := sessionKey(requestUser(r), chi.URLParam(r, "projectID"))

	if err := s.sessions.Delete(r.Context(), key); err != nil {
		writeError(w, http.StatusInternalServerError, "session delete failed")

		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (s *Server) handleListModels(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, anthropic.AvailableModels)
}

// projectIdentity resolves display name and slug for the system prompt,
// falling back to the raw id when the project record is unavailable.
func (s *Server) projectIdentity(ctx context.Context, projectID string) (name, slug string) {
	proj, err := s.projects.GetProject(ctx, projectID)
	if err != nil || proj == nil {
		return projectID, projectID
	}

	return proj.Name, proj.Slug
}

// buildMessage augments the user message with page context hints.
func buildMessage(body chatRequest) string {
	parts := []string{body.Message}

	if ctx := body.Context; ctx != nil {
		if ctx.Page != "" {
			parts = append(parts, fmt.Sprintf("\n[User is on the '%s' page]", ctx.Page))
		}

		if ctx.CanvasID != "" {
			parts = append(parts, fmt.Sprintf("[Current canvas: %s]", ctx.CanvasID))
		}

		if ctx.ComponentID != "" {
			parts = append(parts, fmt.Sprintf("[Selected component: %s]", ctx.ComponentID))
		}

		if ctx.IdeaID != "" {
			parts = append(parts, fmt.Sprintf("[Viewing idea: %s]", ctx.IdeaID))
		}
	}

	return strings.Join(parts, "\n")
}

// systemPrompt scopes the assistant to the current project.
func systemPrompt(projectName, projectSlug, projectID string) string {
	return fmt.Sprintf(
		"You are the AI assistant for Foundry, a collaborative software design tool.\n"+
			"You have tools to query project data and knowledge memory.\n"+
			"Current project: %s (slug: %s, id: %s)\n"+
			"Recall domain for this project: foundry:%s\n"+
			"When tools require project_id, use: %s\n"+
			"When tools require project_slug, use: %s\n"+
			"When the user asks about architecture, use both canvas tools and knowledge tools.\n"+
			"Be concise and helpful. Use markdown for formatting.",
		projectName, projectSlug, projectID, projectSlug, projectID, projectSlug)
}

func requestUser(r *http.Request) string {
	if user := r.Header.Get("X-User-ID"); user != "" {
		return user
	}

	return "default"
}

func sessionKey(userID, projectID string) string {
	return userID + ":" + projectID
}
