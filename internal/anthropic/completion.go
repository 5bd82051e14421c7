// Package anthropic adapts the Anthropic Messages API to the engine's
// completion-service contract.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/foundryhq/assistant/internal/engine"
	"github.com/foundryhq/assistant/internal/router"
	"github.com/foundryhq/assistant/internal/session"
)

// Service streams generation passes from the Anthropic API.
type Service struct {
	log    *slog.Logger
	client *anthropic.Client
}

var _ engine.CompletionService = (*Service)(nil)

// Option configures the Service.
type Option func(*[]option.RequestOption)

// WithBaseURL overrides the API endpoint.
func WithBaseURL(url string) Option {
	return func(opts *[]option.RequestOption) {
		*opts = append(*opts, option.WithBaseURL(url))
	}
}

// New creates a completion service authenticated with the given API key.
func New(log *slog.Logger, apiKey string, opts ...Option) *Service {
	sdkOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(2),
		option.WithRequestTimeout(5 * time.Minute),
	}

	for _, opt := range opts {
		opt(&sdkOpts)
	}

	client := anthropic.NewClient(sdkOpts...)

	return &Service{
		log:    log.With("component", "completion_service"),
		client: &client,
	}
}

// Stream runs one streaming pass, forwarding text deltas to onDelta and
// assembling tool calls from partial JSON fragments.
func (s *Service) Stream(ctx context.Context, req engine.Request, onDelta func(text string) error) (*engine.Completion, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: req.MaxTokens,
		Messages:  toMessages(req.History),
		Tools:     toTools(req.Tools),
	}

	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Type: "text", Text: req.System}}
	}

	stream := s.client.Messages.NewStreaming(ctx, params)
	defer stream.Close()

	var (
		text        string
		toolCalls   []engine.ToolCall
		currentCall *engine.ToolCall
		currentJSON string
		stopReason  string
	)

	for stream.Next() {
		event := stream.Current()

		switch evt := event.AsAny().(type) {
		case anthropic.ContentBlockStartEvent:
			if block, ok := evt.ContentBlock.AsAny().(anthropic.ToolUseBlock); ok {
				currentCall = &engine.ToolCall{ID: block.ID, Name: block.Name}
				currentJSON = ""
			}

		case anthropic.ContentBlockDeltaEvent:
			switch delta := evt.Delta.AsAny().(type) {
			case anthropic.TextDelta:
				text += delta.Text

				if err := onDelta(delta.Text); err != nil {
					return nil, err
				}
			case anthropic.InputJSONDelta:
				if currentCall != nil {
					currentJSON += delta.PartialJSON
				}
			}

		case anthropic.ContentBlockStopEvent:
			if currentCall != nil {
				currentCall.Input = decodeInput(s.log, currentCall.Name, currentJSON)
				toolCalls = append(toolCalls, *currentCall)
				currentCall = nil
			}

		case anthropic.MessageDeltaEvent:
			stopReason = string(evt.Delta.StopReason)
		}
	}

	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("anthropic stream: %w", err)
	}

	return &engine.Completion{
		Text:       text,
		ToolCalls:  toolCalls,
		StopReason: stopReason,
	}, nil
}

// decodeInput parses the accumulated partial-JSON fragments of one tool-use
// block. Malformed input becomes an empty argument map; schema validation
// downstream reports the miss to the model.
func decodeInput(log *slog.Logger, tool, raw string) map[string]any {
	if raw == "" {
		return map[string]any{}
	}

	var input map[string]any
	if err := json.Unmarshal([]byte(raw), &input); err != nil {
		log.Warn("Malformed tool input JSON", "tool", tool, "error", err)

		return map[string]any{}
	}

	return input
}

// toMessages converts provider-neutral history to Anthropic message params.
func toMessages(history []engine.HistoryItem) []anthropic.MessageParam {
	messages := make([]anthropic.MessageParam, 0, len(history))

	for _, item := range history {
		var blocks []anthropic.ContentBlockParamUnion

		switch item.Role {
		case session.RoleAssistant:
			if item.Text != "" {
				blocks = append(blocks, anthropic.NewTextBlock(item.Text))
			}

			for _, call := range item.ToolCalls {
				blocks = append(blocks, anthropic.NewToolUseBlock(call.ID, call.Input, call.Name))
			}

			if len(blocks) == 0 {
				continue
			}

			messages = append(messages, anthropic.NewAssistantMessage(blocks...))

		default:
			for _, ret := range item.ToolReturns {
				blocks = append(blocks, anthropic.NewToolResultBlock(ret.ID, ret.Content, ret.IsError))
			}

			if item.Text != "" {
				blocks = append(blocks, anthropic.NewTextBlock(item.Text))
			}

			if len(blocks) == 0 {
				continue
			}

			messages = append(messages, anthropic.NewUserMessage(blocks...))
		}
	}

	return messages
}

// toTools converts catalog entries to Anthropic tool params.
func toTools(tools []router.CatalogTool) []anthropic.ToolUnionParam {
	if len(tools) == 0 {
		return nil
	}

	out := make([]anthropic.ToolUnionParam, len(tools))

	for i, tool := range tools {
		schema := anthropic.ToolInputSchemaParam{Type: "object"}

		if tool.InputSchema != nil {
			if len(tool.InputSchema.Properties) > 0 {
				props := make(map[string]any, len(tool.InputSchema.Properties))
				for name, prop := range tool.InputSchema.Properties {
					props[name] = prop
				}

				schema.Properties = props
			}

			if len(tool.InputSchema.Required) > 0 {
				schema.Required = tool.InputSchema.Required
			}
		}

		out[i] = anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        tool.Name,
				Description: anthropic.String(tool.Description),
				InputSchema: schema,
			},
		}
	}

	return out
}
