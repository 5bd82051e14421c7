package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"

	"github.com/google/jsonschema-go/jsonschema"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// RemoteTool is one tool discovered on a server, pre-namespacing.
type RemoteTool struct {
	Name        string
	Description string
	InputSchema *jsonschema.Schema
}

// CallResult is the normalized outcome of a remote tool call. Content is the
// concatenated text of the server's content blocks.
type CallResult struct {
	Content string
	IsError bool
}

// ServerSession is the per-process protocol session a connection speaks over.
// The handshake has already completed by the time a ServerSession exists.
type ServerSession interface {
	// Tools fetches the server's tool catalog.
	Tools(ctx context.Context) ([]RemoteTool, error)
	// CallTool invokes one tool with a correlated request and awaits its response.
	CallTool(ctx context.Context, name string, args map[string]any) (*CallResult, error)
	// Wait blocks until the session terminates, returning the terminal error.
	Wait() error
	// Close requests session shutdown.
	Close() error
}

// dialServer spawns the subprocess, performs the capability handshake and
// returns a live session. Overridden in tests to avoid real processes.
var dialServer = dialStdio

func dialStdio(ctx context.Context, cfg ServerConfig) (ServerSession, error) {
	//nolint:gosec // G204: the command originates from the declared server configuration
	cmd := exec.Command(cfg.Command, cfg.Args...)

	// Inherit the current environment plus server-specific variables.
	cmd.Env = os.Environ()
	for k, v := range cfg.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	client := mcpsdk.NewClient(&mcpsdk.Implementation{
		Name:    "foundry-assistant",
		Version: "1.0.0",
	}, nil)

	session, err := client.Connect(ctx, &mcpsdk.CommandTransport{Command: cmd}, nil)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	return &sdkSession{session: session}, nil
}

// sdkSession adapts the official MCP SDK client session to ServerSession.
type sdkSession struct {
	session *mcpsdk.ClientSession
}

func (s *sdkSession) Tools(ctx context.Context) ([]RemoteTool, error) {
	var tools []RemoteTool

	for tool, err := range s.session.Tools(ctx, nil) {
		if err != nil {
			return nil, err
		}

		// Client-side the SDK surfaces InputSchema as the raw JSON value
		// (map[string]any); round-trip it into the typed schema.
		var schema *jsonschema.Schema
		if tool.InputSchema != nil {
			data, err := json.Marshal(tool.InputSchema)
			if err != nil {
				return nil, fmt.Errorf("tool %s: marshal input schema: %w", tool.Name, err)
			}
			schema = new(jsonschema.Schema)
			if err := json.Unmarshal(data, schema); err != nil {
				return nil, fmt.Errorf("tool %s: parse input schema: %w", tool.Name, err)
			}
		}

		tools = append(tools, RemoteTool{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: schema,
		})
	}

	return tools, nil
}

func (s *sdkSession) CallTool(ctx context.Context, name string, args map[string]any) (*CallResult, error) {
	result, err := s.session.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		return nil, err
	}

	return &CallResult{
		Content: flattenContent(result.Content),
		IsError: result.IsError,
	}, nil
}

func (s *sdkSession) Wait() error { return s.session.Wait() }

func (s *sdkSession) Close() error { return s.session.Close() }

// flattenContent joins a server's content blocks into a single string, the
// shape the completion service expects for tool results.
func flattenContent(blocks []mcpsdk.Content) string {
	var out string

	for i, block := range blocks {
		if i > 0 {
			out += "\n"
		}

		switch v := block.(type) {
		case *mcpsdk.TextContent:
			out += v.Text
		case *mcpsdk.ImageContent:
			out += fmt.Sprintf("[Binary data: %s]", v.MIMEType)
		case *mcpsdk.AudioContent:
			out += fmt.Sprintf("[Binary data: %s]", v.MIMEType)
		case *mcpsdk.ResourceLink:
			out += fmt.Sprintf("[Resource: %s]", v.URI)
		default:
			out += fmt.Sprintf("%v", block)
		}
	}

	return out
}
