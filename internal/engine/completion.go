package engine

import (
	"context"

	"github.com/foundryhq/assistant/internal/router"
	"github.com/foundryhq/assistant/internal/session"
)

// ToolCall is one structured tool request emitted by the model.
type ToolCall struct {
	ID    string
	Name  string
	Input map[string]any
}

// ToolReturn feeds a resolved tool outcome back into the model's context,
// correlated by the originating call ID.
type ToolReturn struct {
	ID      string
	Content string
	IsError bool
}

// HistoryItem is one transcript entry in the provider-neutral shape the
// engine maintains across tool-call rounds. Exactly one of Text, ToolCalls
// or ToolReturns is meaningful per role.
type HistoryItem struct {
	Role        session.Role
	Text        string
	ToolCalls   []ToolCall
	ToolReturns []ToolReturn
}

// Request is one generation pass: the full transcript plus the current tool
// catalog.
type Request struct {
	Model     string
	System    string
	MaxTokens int64
	History   []HistoryItem
	Tools     []router.CatalogTool
}

// StopReasonToolUse signals the model paused generation to request tools.
const StopReasonToolUse = "tool_use"

// Completion is the terminal outcome of one generation pass. Text holds the
// accumulated content already delivered through the delta callback.
type Completion struct {
	Text       string
	ToolCalls  []ToolCall
	StopReason string
}

// CompletionService streams one generation pass from the remote model.
// onDelta is called for each incremental text chunk in order; returning an
// error from it aborts the pass.
type CompletionService interface {
	Stream(ctx context.Context, req Request, onDelta func(text string) error) (*Completion, error)
}
