package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	aerrors "github.com/foundryhq/assistant/internal/errors"
	"github.com/foundryhq/assistant/internal/logging"
	"github.com/foundryhq/assistant/internal/mcpserver"
	"github.com/foundryhq/assistant/internal/project"
	"github.com/foundryhq/assistant/internal/registry"
	"github.com/foundryhq/assistant/internal/router"
	"github.com/foundryhq/assistant/internal/session"
)

type passFunc func(ctx context.Context, req Request, onDelta func(string) error) (*Completion, error)

// fakeCompletion replays scripted generation passes. The last pass repeats if
// the engine asks for more.
type fakeCompletion struct {
	mu     sync.Mutex
	passes []passFunc
	idx    int
}

func (f *fakeCompletion) Stream(ctx context.Context, req Request, onDelta func(string) error) (*Completion, error) {
	f.mu.Lock()
	i := f.idx
	if i >= len(f.passes) {
		i = len(f.passes) - 1
	}

	f.idx++
	pass := f.passes[i]
	f.mu.Unlock()

	return pass(ctx, req, onDelta)
}

func textPass(text string) passFunc {
	return func(_ context.Context, _ Request, onDelta func(string) error) (*Completion, error) {
		if err := onDelta(text); err != nil {
			return nil, err
		}

		return &Completion{Text: text, StopReason: "end_turn"}, nil
	}
}

func toolPass(calls ...ToolCall) passFunc {
	return func(context.Context, Request, func(string) error) (*Completion, error) {
		return &Completion{ToolCalls: calls, StopReason: StopReasonToolUse}, nil
	}
}

type fixture struct {
	engine   *Engine
	store    session.Store
	projects *project.MemoryStore
	manager  *mcpserver.Manager
	registry *registry.Registry
}

func newFixture(t *testing.T, completions CompletionService, opts ...Option) *fixture {
	t.Helper()

	projects := project.NewMemoryStore()
	reg := registry.New()
	require.NoError(t, registry.RegisterBuiltins(reg, projects, project.NewMemoryKnowledge()))

	manager := mcpserver.NewManager(logging.Nop())
	toolRouter := router.New(logging.Nop(), reg, manager, router.WithTimeout(time.Second))
	store := session.NewMemoryStore()

	return &fixture{
		engine:   New(logging.Nop(), completions, toolRouter, store, opts...),
		store:    store,
		projects: projects,
		manager:  manager,
		registry: reg,
	}
}

// collect drains the event channel with a deadline.
func collect(t *testing.T, events <-chan Event) []Event {
	t.Helper()

	var out []Event

	timeout := time.After(5 * time.Second)

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return out
			}

			out = append(out, ev)
		case <-timeout:
			t.Fatal("timed out draining events")
		}
	}
}

func eventTypes(events []Event) []EventType {
	out := make([]EventType, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.Type)
	}

	return out
}

func TestRunToolLoop(t *testing.T) {
	ctx := context.Background()

	t.Run("built-in tool round then final answer", func(t *testing.T) {
		completions := &fakeCompletion{passes: []passFunc{
			toolPass(ToolCall{ID: "call-1", Name: "list_canvases", Input: map[string]any{"project_id": "proj-1"}}),
			textPass("You have 2 canvases."),
		}}

		f := newFixture(t, completions)
		f.projects.AddCanvas(project.Canvas{ID: "c1", ProjectID: "proj-1", Name: "Architecture"})
		f.projects.AddCanvas(project.Canvas{ID: "c2", ProjectID: "proj-1", Name: "Data Flow"})

		conv := session.NewConversation("alice:proj-1", "claude-opus-4-6")

		events, err := f.engine.Run(ctx, conv, "list my canvases", "")
		require.NoError(t, err)

		got := collect(t, events)
		require.Equal(t, []EventType{EventToolInvoked, EventToolResult, EventTextDelta, EventDone}, eventTypes(got))

		require.Equal(t, "list_canvases", got[0].Tool)
		require.Equal(t, "list_canvases", got[1].Tool)
		require.False(t, got[1].IsError)
		require.Contains(t, got[1].Output, "Architecture")
		require.Contains(t, got[1].Output, "Data Flow")

		require.Equal(t, conv.ID, got[3].ConversationID)
		require.Equal(t, "claude-opus-4-6", got[3].Model)

		stored, err := f.store.Get(ctx, "alice:proj-1")
		require.NoError(t, err)
		require.Len(t, stored.Turns, 2)
		require.False(t, stored.Turns[1].Streaming)
		require.Len(t, stored.Turns[1].Invocations, 1)
		require.Equal(t, session.InvocationOK, stored.Turns[1].Invocations[0].Status)
	})

	t.Run("unavailable server tool still ends with done", func(t *testing.T) {
		completions := &fakeCompletion{passes: []passFunc{
			toolPass(ToolCall{ID: "call-1", Name: "search__web_lookup", Input: map[string]any{"q": "golang"}}),
			textPass("I could not reach the search tool."),
		}}

		f := newFixture(t, completions)

		configs := []mcpserver.ServerConfig{{ID: "search", Command: "search-server", Enabled: true}}
		require.NoError(t, f.manager.Reload(ctx, configs))

		conv := session.NewConversation("alice:proj-1", "claude-opus-4-6")

		events, err := f.engine.Run(ctx, conv, "search the web", "")
		require.NoError(t, err)

		got := collect(t, events)
		require.Equal(t, []EventType{EventToolInvoked, EventToolResult, EventTextDelta, EventDone}, eventTypes(got))
		require.True(t, got[1].IsError)
		require.Contains(t, got[1].Output, "not connected")

		stored, err := f.store.Get(ctx, "alice:proj-1")
		require.NoError(t, err)
		require.Equal(t, session.InvocationError, stored.Turns[1].Invocations[0].Status)
	})

	t.Run("round ceiling forces completion with a truncation notice", func(t *testing.T) {
		completions := &fakeCompletion{passes: []passFunc{
			toolPass(ToolCall{Name: "get_ideas", Input: map[string]any{"project_id": "proj-1"}}),
		}}

		f := newFixture(t, completions, WithMaxToolRounds(3))

		conv := session.NewConversation("alice:proj-1", "claude-opus-4-6")

		events, err := f.engine.Run(ctx, conv, "loop forever", "")
		require.NoError(t, err)

		got := collect(t, events)
		require.Equal(t, EventDone, got[len(got)-1].Type)

		var invoked int

		for _, ev := range got {
			if ev.Type == EventToolInvoked {
				invoked++
			}
		}

		require.Equal(t, 3, invoked)

		notice := got[len(got)-2]
		require.Equal(t, EventTextDelta, notice.Type)
		require.Contains(t, notice.Text, "truncated")

		stored, err := f.store.Get(ctx, "alice:proj-1")
		require.NoError(t, err)
		require.Contains(t, stored.Turns[1].Content, "truncated")
		require.False(t, stored.Turns[1].Streaming)
	})
}

func TestRunUpstreamFailure(t *testing.T) {
	ctx := context.Background()

	t.Run("partial text is retained and marked non-final", func(t *testing.T) {
		completions := &fakeCompletion{passes: []passFunc{
			func(_ context.Context, _ Request, onDelta func(string) error) (*Completion, error) {
				for _, chunk := range []string{"The ", "answer ", "is"} {
					if err := onDelta(chunk); err != nil {
						return nil, err
					}
				}

				return nil, errors.New("connection reset by peer")
			},
		}}

		f := newFixture(t, completions)
		conv := session.NewConversation("alice:proj-1", "claude-opus-4-6")

		events, err := f.engine.Run(ctx, conv, "hello", "")
		require.NoError(t, err)

		got := collect(t, events)
		require.Equal(t, []EventType{EventTextDelta, EventTextDelta, EventTextDelta, EventError}, eventTypes(got))
		require.Contains(t, got[3].Message, "completion service error")

		stored, err := f.store.Get(ctx, "alice:proj-1")
		require.NoError(t, err)
		require.Equal(t, "The answer is", stored.Turns[1].Content)
		require.True(t, stored.Turns[1].NonFinal)
		require.False(t, stored.Turns[1].Streaming)
	})
}

func TestRunAbort(t *testing.T) {
	t.Run("abort during a tool call discards the result and stops events", func(t *testing.T) {
		dispatched := make(chan struct{})

		completions := &fakeCompletion{passes: []passFunc{
			toolPass(ToolCall{ID: "call-1", Name: "slow_tool"}),
			textPass("never reached"),
		}}

		f := newFixture(t, completions)

		// A slow tool the abort will interrupt.
		require.NoError(t, f.registry.Register("slow_tool", "Blocks until cancelled.", nil,
			func(ctx context.Context, _ map[string]any) (string, error) {
				close(dispatched)
				<-ctx.Done()

				return "", ctx.Err()
			}))

		ctx, cancel := context.WithCancel(context.Background())
		conv := session.NewConversation("alice:proj-1", "claude-opus-4-6")

		events, err := f.engine.Run(ctx, conv, "do something slow", "")
		require.NoError(t, err)

		go func() {
			<-dispatched
			cancel()
		}()

		got := collect(t, events)

		// The invocation was announced but its result was discarded; nothing
		// follows the abort.
		require.Equal(t, []EventType{EventToolInvoked}, eventTypes(got))

		require.Eventually(t, func() bool {
			stored, err := f.store.Get(context.Background(), "alice:proj-1")

			return err == nil && stored != nil && len(stored.Turns) == 2 && !stored.Turns[1].Streaming
		}, 5*time.Second, 10*time.Millisecond)

		stored, err := f.store.Get(context.Background(), "alice:proj-1")
		require.NoError(t, err)
		require.Len(t, stored.Turns[1].Invocations, 1)
		require.NotEqual(t, session.InvocationPending, stored.Turns[1].Invocations[0].Status)
	})
}

func TestRunSingleFlight(t *testing.T) {
	t.Run("second request on the same conversation is rejected", func(t *testing.T) {
		release := make(chan struct{})
		started := make(chan struct{})

		// The pass runs again for the third Run below; only close once.
		var startedOnce sync.Once

		completions := &fakeCompletion{passes: []passFunc{
			func(_ context.Context, _ Request, onDelta func(string) error) (*Completion, error) {
				startedOnce.Do(func() { close(started) })
				<-release

				return &Completion{Text: "done", StopReason: "end_turn"}, nil
			},
		}}

		f := newFixture(t, completions)
		ctx := context.Background()

		conv := session.NewConversation("alice:proj-1", "claude-opus-4-6")

		events, err := f.engine.Run(ctx, conv, "first", "")
		require.NoError(t, err)

		<-started

		other := session.NewConversation("alice:proj-1", "claude-opus-4-6")
		_, err = f.engine.Run(ctx, other, "second", "")
		require.ErrorIs(t, err, aerrors.ErrConversationBusy)

		close(release)
		collect(t, events)

		// The slot frees up once the first run finishes.
		completions.mu.Lock()
		completions.idx = 0
		completions.mu.Unlock()

		events, err = f.engine.Run(ctx, conv, "third", "")
		require.NoError(t, err)
		collect(t, events)
	})
}
