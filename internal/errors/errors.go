package errors

import (
	"errors"
	"fmt"
	"time"
)

// AssistantError is the base interface for all errors produced by this module.
type AssistantError interface {
	error
	IsAssistantError() bool
}

// Compile-time verification that all error types implement AssistantError.
var (
	_ AssistantError = (*ToolUnavailableError)(nil)
	_ AssistantError = (*ToolTimeoutError)(nil)
	_ AssistantError = (*ToolExecutionError)(nil)
	_ AssistantError = (*InvalidArgsError)(nil)
	_ AssistantError = (*UpstreamError)(nil)
	_ AssistantError = (*ServerProcessError)(nil)
	_ AssistantError = (*HandshakeError)(nil)
	_ AssistantError = (*FramingError)(nil)
)

// Sentinel errors for commonly checked conditions.
var (
	// ErrConversationBusy indicates a conversation already has a generating pass in flight.
	ErrConversationBusy = errors.New("conversation busy: a generation pass is already in flight")

	// ErrUnknownServer indicates the server id is not in the declared configuration set.
	ErrUnknownServer = errors.New("unknown tool server")

	// ErrServerNotConnected indicates the server is declared but not connected.
	ErrServerNotConnected = errors.New("tool server not connected")

	// ErrUnknownTool indicates the tool name matched neither a built-in nor a server tool.
	ErrUnknownTool = errors.New("unknown tool")

	// ErrRequestTimeout indicates a correlated request timed out.
	ErrRequestTimeout = errors.New("request timeout")

	// ErrManagerClosed indicates the server manager has been shut down.
	ErrManagerClosed = errors.New("server manager closed")

	// ErrStreamClosed indicates the event stream was closed before the write completed.
	ErrStreamClosed = errors.New("event stream closed")

	// ErrInvocationCancelled indicates a tool invocation was cancelled by the caller.
	ErrInvocationCancelled = errors.New("invocation cancelled")
)

// ToolUnavailableError indicates a requested tool is unknown or its server is
// offline. Recoverable: the router surfaces it to the model as an error result.
type ToolUnavailableError struct {
	Tool   string
	Reason string
}

func (e *ToolUnavailableError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("tool %q unavailable: %s", e.Tool, e.Reason)
	}

	return fmt.Sprintf("tool %q unavailable", e.Tool)
}

// IsAssistantError implements AssistantError.
func (e *ToolUnavailableError) IsAssistantError() bool { return true }

// ToolTimeoutError indicates a tool call exceeded its bounded wait.
type ToolTimeoutError struct {
	Tool    string
	Timeout time.Duration
}

func (e *ToolTimeoutError) Error() string {
	return fmt.Sprintf("tool %q timed out after %s", e.Tool, e.Timeout)
}

// IsAssistantError implements AssistantError.
func (e *ToolTimeoutError) IsAssistantError() bool { return true }

// Is makes ToolTimeoutError match ErrRequestTimeout in errors.Is chains.
func (e *ToolTimeoutError) Is(target error) bool { return target == ErrRequestTimeout }

// ToolExecutionError indicates a tool handler failed. The failure is captured
// and surfaced as error text, never propagated to abort the conversation.
type ToolExecutionError struct {
	Tool string
	Err  error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("tool %q execution failed: %v", e.Tool, e.Err)
}

func (e *ToolExecutionError) Unwrap() error { return e.Err }

// IsAssistantError implements AssistantError.
func (e *ToolExecutionError) IsAssistantError() bool { return true }

// InvalidArgsError indicates tool arguments failed validation against the
// tool's declared input schema. Distinct from ToolUnavailableError: the tool
// exists, the input is wrong.
type InvalidArgsError struct {
	Tool string
	Err  error
}

func (e *InvalidArgsError) Error() string {
	return fmt.Sprintf("invalid arguments for tool %q: %v", e.Tool, e.Err)
}

func (e *InvalidArgsError) Unwrap() error { return e.Err }

// IsAssistantError implements AssistantError.
func (e *InvalidArgsError) IsAssistantError() bool { return true }

// UpstreamError indicates the remote completion service failed. Terminal for
// the current turn; conversation state is preserved for retry.
type UpstreamError struct {
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("completion service error: %v", e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// IsAssistantError implements AssistantError.
func (e *UpstreamError) IsAssistantError() bool { return true }

// ServerProcessError indicates a tool-server subprocess crashed or exited
// unexpectedly. Isolated to its connection; other servers and built-ins are
// unaffected.
type ServerProcessError struct {
	Server   string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ServerProcessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("tool server %q process failed (exit %d): %v", e.Server, e.ExitCode, e.Err)
	}

	return fmt.Sprintf("tool server %q process failed (exit %d): %s", e.Server, e.ExitCode, e.Stderr)
}

func (e *ServerProcessError) Unwrap() error { return e.Err }

// IsAssistantError implements AssistantError.
func (e *ServerProcessError) IsAssistantError() bool { return true }

// HandshakeError indicates the capability handshake with a tool server failed.
// The connection is marked failed with the captured error text.
type HandshakeError struct {
	Server string
	Err    error
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("handshake with tool server %q failed: %v", e.Server, e.Err)
}

func (e *HandshakeError) Unwrap() error { return e.Err }

// IsAssistantError implements AssistantError.
func (e *HandshakeError) IsAssistantError() bool { return true }

// FramingError indicates a malformed message on a tool-server connection.
// Treated like a process failure: the connection is recycled rather than
// left in an undefined state. The raw data is preserved for diagnostics.
type FramingError struct {
	Server  string
	RawData string
	Err     error
}

func (e *FramingError) Error() string {
	return fmt.Sprintf("malformed message from tool server %q: %v", e.Server, e.Err)
}

func (e *FramingError) Unwrap() error { return e.Err }

// IsAssistantError implements AssistantError.
func (e *FramingError) IsAssistantError() bool { return true }
