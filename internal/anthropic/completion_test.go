package anthropic

import (
	"testing"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/stretchr/testify/require"

	"github.com/foundryhq/assistant/internal/engine"
	"github.com/foundryhq/assistant/internal/logging"
	"github.com/foundryhq/assistant/internal/router"
	"github.com/foundryhq/assistant/internal/session"
)

func TestToMessages(t *testing.T) {
	t.Run("tool calls and returns map to the paired block shapes", func(t *testing.T) {
		history := []engine.HistoryItem{
			{Role: session.RoleUser, Text: "list my canvases"},
			{Role: session.RoleAssistant, ToolCalls: []engine.ToolCall{
				{ID: "call-1", Name: "list_canvases", Input: map[string]any{"project_id": "p1"}},
			}},
			{Role: session.RoleUser, ToolReturns: []engine.ToolReturn{
				{ID: "call-1", Content: `[]`},
			}},
			{Role: session.RoleAssistant, Text: "You have no canvases."},
		}

		messages := toMessages(history)
		require.Len(t, messages, 4)
		require.Equal(t, "user", string(messages[0].Role))
		require.Equal(t, "assistant", string(messages[1].Role))
		require.Equal(t, "user", string(messages[2].Role))
		require.Equal(t, "assistant", string(messages[3].Role))
	})

	t.Run("empty items are skipped", func(t *testing.T) {
		history := []engine.HistoryItem{
			{Role: session.RoleAssistant},
			{Role: session.RoleUser, Text: "hi"},
		}

		messages := toMessages(history)
		require.Len(t, messages, 1)
	})
}

func TestToTools(t *testing.T) {
	t.Run("catalog entries become tool params with schemas", func(t *testing.T) {
		catalog := []router.CatalogTool{
			{
				Name:        "search_ideas",
				Description: "Search ideas by keyword.",
				InputSchema: &jsonschema.Schema{
					Type: "object",
					Properties: map[string]*jsonschema.Schema{
						"query": {Type: "string"},
					},
					Required: []string{"query"},
				},
			},
		}

		tools := toTools(catalog)
		require.Len(t, tools, 1)
		require.NotNil(t, tools[0].OfTool)
		require.Equal(t, "search_ideas", tools[0].OfTool.Name)
		require.Equal(t, []string{"query"}, tools[0].OfTool.InputSchema.Required)
		require.Contains(t, tools[0].OfTool.InputSchema.Properties, "query")
	})

	t.Run("empty catalog yields nil", func(t *testing.T) {
		require.Nil(t, toTools(nil))
	})
}

func TestDecodeInput(t *testing.T) {
	log := logging.Nop()

	t.Run("accumulated JSON parses to arguments", func(t *testing.T) {
		got := decodeInput(log, "search", `{"q": "golang", "limit": 5}`)
		require.Equal(t, "golang", got["q"])
		require.Equal(t, float64(5), got["limit"])
	})

	t.Run("empty and malformed input degrade to empty arguments", func(t *testing.T) {
		require.Empty(t, decodeInput(log, "search", ""))
		require.Empty(t, decodeInput(log, "search", `{"q": `))
	})
}
