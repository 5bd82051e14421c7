package engine

// EventType identifies one kind of engine event.
type EventType string

const (
	// EventTextDelta carries one incremental chunk of assistant text.
	EventTextDelta EventType = "text_delta"
	// EventToolInvoked announces a tool call before it executes.
	EventToolInvoked EventType = "tool_invoked"
	// EventToolResult carries the outcome of a tool call.
	EventToolResult EventType = "tool_result"
	// EventDone closes the stream after a completed turn.
	EventDone EventType = "done"
	// EventError closes the stream after a terminal failure.
	EventError EventType = "error"
)

// Event is one item of the engine's ordered event stream. Fields are
// populated per type; unrelated fields are zero.
type Event struct {
	Type EventType

	// Text is the delta chunk for EventTextDelta.
	Text string

	// Tool and Input describe the call for EventToolInvoked; Tool and
	// Output describe the outcome for EventToolResult.
	Tool    string
	Input   map[string]any
	Output  string
	IsError bool

	// ConversationID and Model accompany EventDone.
	ConversationID string
	Model          string

	// Message is the failure description for EventError.
	Message string
}
