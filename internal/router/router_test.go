package router

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/stretchr/testify/require"

	"github.com/foundryhq/assistant/internal/logging"
	"github.com/foundryhq/assistant/internal/mcpserver"
	"github.com/foundryhq/assistant/internal/registry"
)

func echoSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"text": {Type: "string"},
		},
		Required: []string{"text"},
	}
}

func newTestRouter(t *testing.T, opts ...Option) (*Router, *registry.Registry, *mcpserver.Manager) {
	t.Helper()

	reg := registry.New()
	manager := mcpserver.NewManager(logging.Nop())

	return New(logging.Nop(), reg, manager, opts...), reg, manager
}

func TestInvokeBuiltin(t *testing.T) {
	ctx := context.Background()

	t.Run("successful handler returns ok result", func(t *testing.T) {
		r, reg, _ := newTestRouter(t)

		require.NoError(t, reg.Register("echo", "Echo text back.", echoSchema(),
			func(_ context.Context, args map[string]any) (string, error) {
				return args["text"].(string), nil
			}))

		result := r.Invoke(ctx, "echo", map[string]any{"text": "hello"})
		require.Equal(t, StatusOK, result.Status)
		require.False(t, result.IsError)
		require.Equal(t, "hello", result.Content)
	})

	t.Run("schema violation is invalid args, not unavailable", func(t *testing.T) {
		r, reg, _ := newTestRouter(t)

		require.NoError(t, reg.Register("echo", "Echo text back.", echoSchema(),
			func(context.Context, map[string]any) (string, error) {
				return "", nil
			}))

		result := r.Invoke(ctx, "echo", map[string]any{})
		require.Equal(t, StatusError, result.Status)
		require.True(t, result.IsError)
		require.Contains(t, result.Content, "invalid arguments")
	})

	t.Run("handler error is captured, never propagated", func(t *testing.T) {
		r, reg, _ := newTestRouter(t)

		require.NoError(t, reg.Register("flaky", "Always fails.", nil,
			func(context.Context, map[string]any) (string, error) {
				return "", errors.New("database unreachable")
			}))

		result := r.Invoke(ctx, "flaky", nil)
		require.Equal(t, StatusError, result.Status)
		require.True(t, result.IsError)
		require.Contains(t, result.Content, "database unreachable")
	})

	t.Run("slow handler hits the per-call timeout", func(t *testing.T) {
		r, reg, _ := newTestRouter(t, WithTimeout(20*time.Millisecond))

		require.NoError(t, reg.Register("sleepy", "Never finishes.", nil,
			func(ctx context.Context, _ map[string]any) (string, error) {
				<-ctx.Done()

				return "", ctx.Err()
			}))

		result := r.Invoke(ctx, "sleepy", nil)
		require.Equal(t, StatusTimeout, result.Status)
		require.True(t, result.IsError)
	})
}

func TestInvokeUnavailable(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown plain name lists available tools", func(t *testing.T) {
		r, reg, _ := newTestRouter(t)

		require.NoError(t, reg.Register("echo", "Echo.", nil,
			func(context.Context, map[string]any) (string, error) { return "", nil }))

		result := r.Invoke(ctx, "definitely_not_a_tool", nil)
		require.Equal(t, StatusError, result.Status)
		require.True(t, result.IsError)
		require.Contains(t, result.Content, "not found")
		require.Contains(t, result.Content, "echo")
	})

	t.Run("namespaced name on an unconfigured server is unavailable", func(t *testing.T) {
		r, _, _ := newTestRouter(t)

		result := r.Invoke(ctx, "search__web_lookup", nil)
		require.Equal(t, StatusError, result.Status)
		require.True(t, result.IsError)
		require.Contains(t, result.Content, "not configured")
	})

	t.Run("namespaced name on a disconnected server is unavailable", func(t *testing.T) {
		r, _, manager := newTestRouter(t)

		configs := []mcpserver.ServerConfig{{ID: "search", Command: "search-server", Enabled: true}}
		require.NoError(t, manager.Reload(ctx, configs))

		result := r.Invoke(ctx, "search__web_lookup", nil)
		require.Equal(t, StatusError, result.Status)
		require.True(t, result.IsError)
		require.Contains(t, result.Content, "not connected")
	})
}

func TestCatalog(t *testing.T) {
	t.Run("builtins appear with their schemas", func(t *testing.T) {
		r, reg, _ := newTestRouter(t)

		require.NoError(t, reg.Register("echo", "Echo text back.", echoSchema(),
			func(context.Context, map[string]any) (string, error) { return "", nil }))

		catalog := r.Catalog()
		require.Len(t, catalog, 1)
		require.Equal(t, "echo", catalog[0].Name)
		require.Equal(t, "Echo text back.", catalog[0].Description)
		require.NotNil(t, catalog[0].InputSchema)
	})
}
