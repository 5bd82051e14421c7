package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestToolInvocationResolve(t *testing.T) {
	t.Run("pending resolves to a terminal status once", func(t *testing.T) {
		inv := ToolInvocation{ID: "inv-1", Name: "list_canvases", Status: InvocationPending}

		require.NoError(t, inv.Resolve(InvocationOK, `[]`))
		require.Equal(t, InvocationOK, inv.Status)
		require.Equal(t, `[]`, inv.Output)
	})

	t.Run("terminal status never reopens", func(t *testing.T) {
		inv := ToolInvocation{ID: "inv-1", Status: InvocationPending}
		require.NoError(t, inv.Resolve(InvocationTimeout, "timed out"))

		require.Error(t, inv.Resolve(InvocationOK, "late result"))
		require.Equal(t, InvocationTimeout, inv.Status)
		require.Equal(t, "timed out", inv.Output)
	})

	t.Run("cannot resolve back to pending", func(t *testing.T) {
		inv := ToolInvocation{ID: "inv-1", Status: InvocationPending}

		require.Error(t, inv.Resolve(InvocationPending, ""))
		require.Equal(t, InvocationPending, inv.Status)
	})
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()

	t.Run("missing conversation returns nil without error", func(t *testing.T) {
		store := NewMemoryStore()

		conv, err := store.Get(ctx, "alice:proj-1")
		require.NoError(t, err)
		require.Nil(t, conv)
	})

	t.Run("put then get round-trips turns", func(t *testing.T) {
		store := NewMemoryStore()

		conv := NewConversation("alice:proj-1", "claude-opus-4-6")
		conv.Turns = append(conv.Turns, Turn{Role: RoleUser, Content: "hello"})
		require.NoError(t, store.Put(ctx, conv))

		got, err := store.Get(ctx, "alice:proj-1")
		require.NoError(t, err)
		require.NotNil(t, got)
		require.Equal(t, conv.ID, got.ID)
		require.Len(t, got.Turns, 1)
		require.Equal(t, "hello", got.Turns[0].Content)
	})

	t.Run("stored record is isolated from caller mutation", func(t *testing.T) {
		store := NewMemoryStore()

		conv := NewConversation("alice:proj-1", "claude-opus-4-6")
		conv.Turns = append(conv.Turns, Turn{Role: RoleUser, Content: "hello"})
		require.NoError(t, store.Put(ctx, conv))

		conv.Turns[0].Content = "mutated"

		got, err := store.Get(ctx, "alice:proj-1")
		require.NoError(t, err)
		require.Equal(t, "hello", got.Turns[0].Content)
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		store := NewMemoryStore()

		conv := NewConversation("alice:proj-1", "claude-opus-4-6")
		require.NoError(t, store.Put(ctx, conv))
		require.NoError(t, store.Delete(ctx, "alice:proj-1"))
		require.NoError(t, store.Delete(ctx, "alice:proj-1"))

		got, err := store.Get(ctx, "alice:proj-1")
		require.NoError(t, err)
		require.Nil(t, got)
	})
}
