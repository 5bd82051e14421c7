// Package session persists conversation transcripts and continuation tokens.
//
// The engine is the only appender; the HTTP surface reads. Two Store
// implementations exist: in-memory for tests and single-node deployments,
// Redis for shared deployments.
package session

import (
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

// Role is a turn author.
type Role string

const (
	// RoleUser marks a turn authored by the client.
	RoleUser Role = "user"
	// RoleAssistant marks a turn authored by the model.
	RoleAssistant Role = "assistant"
)

// InvocationStatus is the state of one tool invocation. Transitions are
// monotonic: pending moves to exactly one terminal state and never reopens.
type InvocationStatus string

const (
	// InvocationPending means the call has been dispatched.
	InvocationPending InvocationStatus = "pending"
	// InvocationOK means the tool produced a result.
	InvocationOK InvocationStatus = "ok"
	// InvocationError means the tool failed or was unavailable.
	InvocationError InvocationStatus = "error"
	// InvocationTimeout means the bounded wait was exceeded.
	InvocationTimeout InvocationStatus = "timeout"
)

// ToolInvocation is one request/response pair between the engine and a tool.
type ToolInvocation struct {
	ID     string           `json:"id"`
	Name   string           `json:"name"`
	Input  map[string]any   `json:"input,omitempty"`
	Output string           `json:"output,omitempty"`
	Status InvocationStatus `json:"status"`
}

// Resolve moves a pending invocation to a terminal status. Resolving an
// already-terminal invocation is an error; status never reopens.
func (t *ToolInvocation) Resolve(status InvocationStatus, output string) error {
	if t.Status != InvocationPending {
		return fmt.Errorf("invocation %s already resolved as %s", t.ID, t.Status)
	}

	if status == InvocationPending {
		return fmt.Errorf("invocation %s: cannot resolve to pending", t.ID)
	}

	t.Status = status
	t.Output = output

	return nil
}

// Turn is one message within a conversation. Content grows only while
// Streaming is true; a closed turn is immutable.
type Turn struct {
	Role        Role             `json:"role"`
	Content     string           `json:"content"`
	Invocations []ToolInvocation `json:"invocations,omitempty"`
	Streaming   bool             `json:"streaming,omitempty"`
	// NonFinal marks content that was cut short by an upstream failure.
	// Partial text is preserved, never silently truncated.
	NonFinal  bool      `json:"non_final,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Conversation is an ordered list of turns plus resumption state.
type Conversation struct {
	ID string `json:"id"`
	// Key is the caller-facing scope (user + project) the conversation
	// belongs to.
	Key   string `json:"key"`
	Model string `json:"model"`
	// ContinuationToken is opaque state from the completion service enabling
	// context resumption.
	ContinuationToken string    `json:"continuation_token,omitempty"`
	Turns             []Turn    `json:"turns"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// NewConversation creates an empty conversation for the given scope key.
func NewConversation(key, model string) *Conversation {
	now := time.Now().UTC()

	return &Conversation{
		ID:        ulid.Make().String(),
		Key:       key,
		Model:     model,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
