// Package stream serializes engine events into the client-facing wire
// protocol: named SSE frames with small JSON payloads, emitted in the exact
// order the engine produced them.
package stream

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/foundryhq/assistant/internal/engine"
	aerrors "github.com/foundryhq/assistant/internal/errors"
)

// Wire event names. One per engine event type, mapped 1:1.
const (
	FrameText       = "text"
	FrameToolUse    = "tool_use"
	FrameToolResult = "tool_result"
	FrameDone       = "done"
	FrameError      = "error"
)

// Frame is one named wire event carrying a JSON payload.
type Frame struct {
	Event string
	Data  json.RawMessage
}

type textPayload struct {
	Text string `json:"text"`
}

type toolUsePayload struct {
	Name  string         `json:"name"`
	Input map[string]any `json:"input"`
}

type toolResultPayload struct {
	Name    string `json:"name"`
	Output  string `json:"output"`
	IsError bool   `json:"is_error,omitempty"`
}

type donePayload struct {
	SessionID      string `json:"session_id"`
	Model          string `json:"model"`
	ConversationID string `json:"conversation_id,omitempty"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// Encoder maps engine events onto wire frames for one stream. The session id
// is stamped onto the terminal done frame.
type Encoder struct {
	sessionID string
}

// NewEncoder creates an encoder for one client stream.
func NewEncoder(sessionID string) *Encoder {
	return &Encoder{sessionID: sessionID}
}

// Encode converts one engine event to its wire frame.
func (e *Encoder) Encode(ev engine.Event) (Frame, error) {
	var (
		name    string
		payload any
	)

	switch ev.Type {
	case engine.EventTextDelta:
		name = FrameText
		payload = textPayload{Text: ev.Text}

	case engine.EventToolInvoked:
		name = FrameToolUse
		input := ev.Input
		if input == nil {
			input = map[string]any{}
		}

		payload = toolUsePayload{Name: ev.Tool, Input: input}

	case engine.EventToolResult:
		name = FrameToolResult
		payload = toolResultPayload{Name: ev.Tool, Output: ev.Output, IsError: ev.IsError}

	case engine.EventDone:
		name = FrameDone
		payload = donePayload{
			SessionID:      e.sessionID,
			Model:          ev.Model,
			ConversationID: ev.ConversationID,
		}

	case engine.EventError:
		name = FrameError
		payload = errorPayload{Message: ev.Message}

	default:
		return Frame{}, fmt.Errorf("unknown event type %q", ev.Type)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, fmt.Errorf("encode %s frame: %w", name, err)
	}

	return Frame{Event: name, Data: data}, nil
}

// Decode converts a wire frame back to an engine event. Used by clients and
// by protocol tests.
func Decode(frame Frame) (engine.Event, error) {
	switch frame.Event {
	case FrameText:
		var p textPayload
		if err := json.Unmarshal(frame.Data, &p); err != nil {
			return engine.Event{}, fmt.Errorf("decode text frame: %w", err)
		}

		return engine.Event{Type: engine.EventTextDelta, Text: p.Text}, nil

	case FrameToolUse:
		var p toolUsePayload
		if err := json.Unmarshal(frame.Data, &p); err != nil {
			return engine.Event{}, fmt.Errorf("decode tool_use frame: %w", err)
		}

		return engine.Event{Type: engine.EventToolInvoked, Tool: p.Name, Input: p.Input}, nil

	case FrameToolResult:
		var p toolResultPayload
		if err := json.Unmarshal(frame.Data, &p); err != nil {
			return engine.Event{}, fmt.Errorf("decode tool_result frame: %w", err)
		}

		return engine.Event{Type: engine.EventToolResult, Tool: p.Name, Output: p.Output, IsError: p.IsError}, nil

	case FrameDone:
		var p donePayload
		if err := json.Unmarshal(frame.Data, &p); err != nil {
			return engine.Event{}, fmt.Errorf("decode done frame: %w", err)
		}

		return engine.Event{Type: engine.EventDone, ConversationID: p.ConversationID, Model: p.Model}, nil

	case FrameError:
		var p errorPayload
		if err := json.Unmarshal(frame.Data, &p); err != nil {
			return engine.Event{}, fmt.Errorf("decode error frame: %w", err)
		}

		return engine.Event{Type: engine.EventError, Message: p.Message}, nil

	default:
		return engine.Event{}, fmt.Errorf("unknown frame event %q", frame.Event)
	}
}

// Writer emits frames to an HTTP response in SSE format, flushing after each
// frame so deltas reach the client immediately.
type Writer struct {
	w       io.Writer
	flusher http.Flusher
}

// NewWriter prepares an SSE response. Returns ErrStreamClosed if the
// underlying writer cannot flush.
func NewWriter(w http.ResponseWriter) (*Writer, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, aerrors.ErrStreamClosed
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	return &Writer{w: w, flusher: flusher}, nil
}

// Write emits one frame. A write error means the client is gone; the caller
// stops the stream.
func (sw *Writer) Write(frame Frame) error {
	if _, err := fmt.Fprintf(sw.w, "event: %s\ndata: %s\n\n", frame.Event, frame.Data); err != nil {
		return fmt.Errorf("%w: %w", aerrors.ErrStreamClosed, err)
	}

	sw.flusher.Flush()

	return nil
}
