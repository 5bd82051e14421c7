// Package engine drives the bounded agentic loop: stream a generation pass,
// pause on tool-call requests, execute them through the router, feed results
// back, and resume until the model stops or the round ceiling is reached.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	aerrors "github.com/foundryhq/assistant/internal/errors"
	"github.com/foundryhq/assistant/internal/router"
	"github.com/foundryhq/assistant/internal/session"
)

const (
	// DefaultMaxToolRounds bounds the generate/tool-call cycle, guaranteeing
	// termination regardless of model behavior.
	DefaultMaxToolRounds = 25

	// DefaultMaxTokens caps one generation pass.
	DefaultMaxTokens = 4096

	// DefaultEventBuffer is the bounded event channel capacity. A slow
	// consumer blocks production; deltas are never dropped.
	DefaultEventBuffer = 64
)

// truncationNotice closes out a turn that hit the round ceiling.
const truncationNotice = "\n\n[Response truncated: tool call limit reached]"

// Engine orchestrates conversations. One Run per conversation at a time; a
// second concurrent request on the same conversation is rejected, never
// interleaved.
type Engine struct {
	log         *slog.Logger
	completions CompletionService
	router      *router.Router
	store       session.Store

	maxRounds   int
	maxTokens   int64
	eventBuffer int

	mu     sync.Mutex
	active map[string]bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithMaxToolRounds overrides the tool-call round ceiling.
func WithMaxToolRounds(n int) Option {
	return func(e *Engine) { e.maxRounds = n }
}

// WithMaxTokens overrides the per-pass token cap.
func WithMaxTokens(n int64) Option {
	return func(e *Engine) { e.maxTokens = n }
}

// WithEventBuffer overrides the event channel capacity.
func WithEventBuffer(n int) Option {
	return func(e *Engine) { e.eventBuffer = n }
}

// New creates an engine over the given completion service, tool router and
// session store.
func New(log *slog.Logger, completions CompletionService, r *router.Router, store session.Store, opts ...Option) *Engine {
	e := &Engine{
		log:         log.With("component", "conversation_engine"),
		completions: completions,
		router:      r,
		store:       store,
		maxRounds:   DefaultMaxToolRounds,
		maxTokens:   DefaultMaxTokens,
		eventBuffer: DefaultEventBuffer,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Run appends the user message to the conversation and starts one streaming
// generation pass, returning the ordered event channel. The channel closes
// after a Done or Error event, or silently on abort. Returns
// ErrConversationBusy if the conversation already has a pass in flight.
func (e *Engine) Run(ctx context.Context, conv *session.Conversation, userText, system string) (<-chan Event, error) {
	e.mu.Lock()
	if e.active[conv.Key] {
		e.mu.Unlock()

		return nil, aerrors.ErrConversationBusy
	}

	if e.active == nil {
		e.active = make(map[string]bool)
	}

	e.active[conv.Key] = true
	e.mu.Unlock()

	events := make(chan Event, e.eventBuffer)

	go func() {
		defer func() {
			close(events)

			e.mu.Lock()
			delete(e.active, conv.Key)
			e.mu.Unlock()
		}()

		e.run(ctx, conv, userText, system, events)
	}()

	return events, nil
}

// run executes the agentic loop for one user message.
func (e *Engine) run(ctx context.Context, conv *session.Conversation, userText, system string, events chan<- Event) {
	log := e.log.With("conversation_id", conv.ID)

	now := time.Now().UTC()
	conv.Turns = append(conv.Turns, session.Turn{
		Role:      session.RoleUser,
		Content:   userText,
		CreatedAt: now,
	})

	conv.Turns = append(conv.Turns, session.Turn{
		Role:      session.RoleAssistant,
		Streaming: true,
		CreatedAt: now,
	})
	turn := &conv.Turns[len(conv.Turns)-1]

	history := buildHistory(conv.Turns[:len(conv.Turns)-1])

	for round := 0; round < e.maxRounds; round++ {
		completion, err := e.generate(ctx, conv, system, history, turn, events)
		if err != nil {
			e.finishFailed(ctx, log, conv, turn, err, events)

			return
		}

		if completion.Text != "" {
			history = append(history, HistoryItem{
				Role:      session.RoleAssistant,
				Text:      completion.Text,
				ToolCalls: completion.ToolCalls,
			})
		} else {
			history = append(history, HistoryItem{
				Role:      session.RoleAssistant,
				ToolCalls: completion.ToolCalls,
			})
		}

		if completion.StopReason != StopReasonToolUse || len(completion.ToolCalls) == 0 {
			e.finishCompleted(ctx, log, conv, turn, events)

			return
		}

		returns, aborted := e.executeTools(ctx, log, turn, completion.ToolCalls, events)
		if aborted {
			e.finishAborted(log, conv, turn)

			return
		}

		history = append(history, HistoryItem{
			Role:        session.RoleUser,
			ToolReturns: returns,
		})

		e.persist(ctx, log, conv)
	}

	log.Warn("Tool call round ceiling reached, truncating", "max_rounds", e.maxRounds)
	turn.Content += truncationNotice
	e.emit(ctx, events, Event{Type: EventTextDelta, Text: truncationNotice})
	e.finishCompleted(ctx, log, conv, turn, events)
}

// generate runs one streaming pass, forwarding deltas as events and
// accumulating text onto the open turn.
func (e *Engine) generate(ctx context.Context, conv *session.Conversation, system string, history []HistoryItem, turn *session.Turn, events chan<- Event) (*Completion, error) {
	req := Request{
		Model:     conv.Model,
		System:    system,
		MaxTokens: e.maxTokens,
		History:   history,
		Tools:     e.router.Catalog(),
	}

	return e.completions.Stream(ctx, req, func(text string) error {
		turn.Content += text

		if !e.emit(ctx, events, Event{Type: EventTextDelta, Text: text}) {
			return context.Cause(ctx)
		}

		return nil
	})
}

// executeTools runs one round's tool calls sequentially, recording each as a
// ToolInvocation with monotonic status. Returns aborted=true when the caller
// cancelled; an in-flight result is then resolved but discarded, and no
// further events are emitted.
func (e *Engine) executeTools(ctx context.Context, log *slog.Logger, turn *session.Turn, calls []ToolCall, events chan<- Event) ([]ToolReturn, bool) {
	returns := make([]ToolReturn, 0, len(calls))

	for _, call := range calls {
		if call.ID == "" {
			call.ID = ulid.Make().String()
		}

		turn.Invocations = append(turn.Invocations, session.ToolInvocation{
			ID:     call.ID,
			Name:   call.Name,
			Input:  call.Input,
			Status: session.InvocationPending,
		})
		inv := &turn.Invocations[len(turn.Invocations)-1]

		if !e.emit(ctx, events, Event{Type: EventToolInvoked, Tool: call.Name, Input: call.Input}) {
			_ = inv.Resolve(session.InvocationError, aerrors.ErrInvocationCancelled.Error())

			return nil, true
		}

		log.Info("Invoking tool", "tool", call.Name, "invocation_id", call.ID)

		result := e.router.Invoke(ctx, call.Name, call.Input)

		if err := inv.Resolve(invocationStatus(result.Status), result.Content); err != nil {
			log.Warn("Invocation state error", "tool", call.Name, "error", err)
		}

		if ctx.Err() != nil {
			log.Info("Run aborted, discarding tool result", "tool", call.Name)

			return nil, true
		}

		if !e.emit(ctx, events, Event{
			Type:    EventToolResult,
			Tool:    call.Name,
			Output:  result.Content,
			IsError: result.IsError,
		}) {
			return nil, true
		}

		returns = append(returns, ToolReturn{
			ID:      call.ID,
			Content: result.Content,
			IsError: result.IsError,
		})
	}

	return returns, false
}

func (e *Engine) finishCompleted(ctx context.Context, log *slog.Logger, conv *session.Conversation, turn *session.Turn, events chan<- Event) {
	turn.Streaming = false
	e.persist(ctx, log, conv)
	e.emit(ctx, events, Event{Type: EventDone, ConversationID: conv.ID, Model: conv.Model})
	log.Info("Conversation turn completed", "invocations", len(turn.Invocations))
}

// finishFailed handles an upstream failure: partial content is preserved and
// marked non-final, and a terminal error event is emitted. An abort takes the
// same persistence path but emits nothing.
func (e *Engine) finishFailed(ctx context.Context, log *slog.Logger, conv *session.Conversation, turn *session.Turn, err error, events chan<- Event) {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		e.finishAborted(log, conv, turn)

		return
	}

	uerr := &aerrors.UpstreamError{Err: err}
	log.Error("Upstream completion failed", "error", err)

	turn.Streaming = false
	turn.NonFinal = true
	e.persist(ctx, log, conv)

	e.emit(ctx, events, Event{Type: EventError, Message: uerr.Error()})
}

func (e *Engine) finishAborted(log *slog.Logger, conv *session.Conversation, turn *session.Turn) {
	log.Info("Conversation turn aborted")

	turn.Streaming = false
	turn.NonFinal = true

	// The caller's context is gone; persist under a fresh bounded one.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	e.persist(ctx, log, conv)
}

// emit delivers one event, blocking on the bounded channel until the consumer
// drains it. Returns false once the caller's context is cancelled; no events
// are emitted past that point.
func (e *Engine) emit(ctx context.Context, events chan<- Event, ev Event) bool {
	if ctx.Err() != nil {
		return false
	}

	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func (e *Engine) persist(ctx context.Context, log *slog.Logger, conv *session.Conversation) {
	if err := e.store.Put(ctx, conv); err != nil {
		log.Warn("Failed to persist conversation", "error", err)
	}
}

// buildHistory converts closed transcript turns to the provider-neutral
// history shape. Prior tool invocations are replayed as call/return pairs so
// resumed context matches what the model produced.
func buildHistory(turns []session.Turn) []HistoryItem {
	history := make([]HistoryItem, 0, len(turns))

	for _, turn := range turns {
		item := HistoryItem{Role: turn.Role, Text: turn.Content}

		if turn.Role == session.RoleAssistant && len(turn.Invocations) > 0 {
			var rets []ToolReturn

			for _, inv := range turn.Invocations {
				item.ToolCalls = append(item.ToolCalls, ToolCall{
					ID:    inv.ID,
					Name:  inv.Name,
					Input: inv.Input,
				})
				rets = append(rets, ToolReturn{
					ID:      inv.ID,
					Content: inv.Output,
					IsError: inv.Status != session.InvocationOK,
				})
			}

			history = append(history, item)
			history = append(history, HistoryItem{Role: session.RoleUser, ToolReturns: rets})

			continue
		}

		history = append(history, item)
	}

	return history
}

func invocationStatus(status router.Status) session.InvocationStatus {
	switch status {
	case router.StatusOK:
		return session.InvocationOK
	case router.StatusTimeout:
		return session.InvocationTimeout
	default:
		return session.InvocationError
	}
}
