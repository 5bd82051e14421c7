// Package router resolves tool names to built-in handlers or external
// tool-server connections and normalizes every outcome to one result shape.
//
// The router is the boundary where tool-level failures stop: unknown tools,
// offline servers, invalid arguments, timeouts and handler errors all come
// back as structured results the engine feeds to the model. Nothing a tool
// does can abort a conversation.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/jsonschema-go/jsonschema"

	aerrors "github.com/foundryhq/assistant/internal/errors"
	"github.com/foundryhq/assistant/internal/mcpserver"
	"github.com/foundryhq/assistant/internal/registry"
)

// DefaultToolTimeout bounds a single tool call, local or remote.
const DefaultToolTimeout = 60 * time.Second

// Status is the terminal state of one tool invocation.
type Status string

const (
	// StatusOK means the tool produced a result.
	StatusOK Status = "ok"
	// StatusError means the tool failed, was unavailable, or got invalid input.
	StatusError Status = "error"
	// StatusTimeout means the bounded wait was exceeded.
	StatusTimeout Status = "timeout"
)

// Result is the uniform outcome shape for every invocation path.
type Result struct {
	Tool    string `json:"tool"`
	Content string `json:"content"`
	IsError bool   `json:"is_error"`
	Status  Status `json:"status"`
}

// CatalogTool is one entry of the per-turn tool catalog sent to the model.
type CatalogTool struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	InputSchema *jsonschema.Schema `json:"input_schema"`
}

// Router dispatches tool invocations to the built-in registry or the server
// manager.
type Router struct {
	log      *slog.Logger
	registry *registry.Registry
	servers  *mcpserver.Manager
	timeout  time.Duration
}

// Option configures a Router.
type Option func(*Router)

// WithTimeout overrides the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(r *Router) { r.timeout = d }
}

// New creates a router over the given registry and server manager.
func New(log *slog.Logger, reg *registry.Registry, servers *mcpserver.Manager, opts ...Option) *Router {
	r := &Router{
		log:      log.With("component", "tool_router"),
		registry: reg,
		servers:  servers,
		timeout:  DefaultToolTimeout,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Catalog returns the current tool catalog: built-ins plus every connected
// server's namespaced tools. Names are unique within one snapshot; a remote
// tool colliding with an existing name is dropped with a warning.
func (r *Router) Catalog() []CatalogTool {
	builtins := r.registry.Descriptors()
	remote := r.servers.ListTools()

	out := make([]CatalogTool, 0, len(builtins)+len(remote))
	seen := make(map[string]bool, len(builtins)+len(remote))

	for _, d := range builtins {
		out = append(out, CatalogTool{
			Name:        d.Name,
			Description: d.Description,
			InputSchema: d.InputSchema,
		})
		seen[d.Name] = true
	}

	for _, d := range remote {
		if seen[d.Name] {
			r.log.Warn("Duplicate tool name in catalog, dropping", "tool", d.Name, "server", d.Server)

			continue
		}

		out = append(out, CatalogTool{
			Name:        d.Name,
			Description: d.Description,
			InputSchema: d.InputSchema,
		})
		seen[d.Name] = true
	}

	return out
}

// Invoke executes one tool call and always returns a Result; failures are
// encoded, never raised.
func (r *Router) Invoke(ctx context.Context, name string, args map[string]any) Result {
	if args == nil {
		args = map[string]any{}
	}

	if tool, ok := r.registry.Get(name); ok {
		return r.invokeBuiltin(ctx, tool, args)
	}

	if serverID, toolName, ok := mcpserver.SplitName(name); ok {
		return r.invokeRemote(ctx, name, serverID, toolName, args)
	}

	r.log.Warn("Unknown tool requested", "tool", name)

	return r.unavailable(name, fmt.Sprintf(
		"Tool %q not found. Available tools: %s", name, strings.Join(r.availableNames(), ", ")))
}

// invokeBuiltin validates arguments against the declared schema and runs the
// handler under the per-call timeout. Handler errors are captured as error
// results.
func (r *Router) invokeBuiltin(ctx context.Context, tool *registry.Tool, args map[string]any) Result {
	if err := tool.ValidateArgs(args); err != nil {
		verr := &aerrors.InvalidArgsError{Tool: tool.Name, Err: err}
		r.log.Warn("Tool arguments failed validation", "tool", tool.Name, "error", err)

		return errorResult(tool.Name, StatusError, verr.Error())
	}

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	type outcome struct {
		content string
		err     error
	}

	done := make(chan outcome, 1)

	go func() {
		content, err := tool.Handler(callCtx, args)
		done <- outcome{content: content, err: err}
	}()

	select {
	case o := <-done:
		if o.err != nil {
			xerr := &aerrors.ToolExecutionError{Tool: tool.Name, Err: o.err}
			r.log.Warn("Tool execution failed", "tool", tool.Name, "error", o.err)

			return errorResult(tool.Name, StatusError, xerr.Error())
		}

		return Result{Tool: tool.Name, Content: o.content, Status: StatusOK}

	case <-callCtx.Done():
		if ctx.Err() != nil {
			return errorResult(tool.Name, StatusError, aerrors.ErrInvocationCancelled.Error())
		}

		terr := &aerrors.ToolTimeoutError{Tool: tool.Name, Timeout: r.timeout}
		r.log.Warn("Tool timed out", "tool", tool.Name, "timeout", r.timeout)

		return errorResult(tool.Name, StatusTimeout, terr.Error())
	}
}

// invokeRemote delegates a namespaced call to the server manager.
func (r *Router) invokeRemote(ctx context.Context, name, serverID, toolName string, args map[string]any) Result {
	result, err := r.servers.Invoke(ctx, serverID, toolName, args, r.timeout)
	if err != nil {
		switch {
		case errors.Is(err, aerrors.ErrUnknownServer):
			return r.unavailable(name, fmt.Sprintf("Tool server %q is not configured.", serverID))

		case errors.Is(err, aerrors.ErrServerNotConnected):
			return r.unavailable(name, fmt.Sprintf("Tool server %q is not connected.", serverID))

		case errors.Is(err, aerrors.ErrRequestTimeout):
			return errorResult(name, StatusTimeout, err.Error())

		case errors.Is(err, context.Canceled):
			return errorResult(name, StatusError, aerrors.ErrInvocationCancelled.Error())

		default:
			r.log.Warn("Remote tool call failed", "tool", name, "error", err)

			return errorResult(name, StatusError, fmt.Sprintf("tool %q execution failed: %v", name, err))
		}
	}

	if result.IsError {
		return errorResult(name, StatusError, result.Content)
	}

	return Result{Tool: name, Content: result.Content, Status: StatusOK}
}

// unavailable builds the structured unavailable result that keeps the loop
// alive: the model is told, the conversation continues.
func (r *Router) unavailable(name, reason string) Result {
	uerr := &aerrors.ToolUnavailableError{Tool: name, Reason: reason}

	return errorResult(name, StatusError, uerr.Error())
}

func (r *Router) availableNames() []string {
	names := r.registry.Names()

	for _, d := range r.servers.ListTools() {
		names = append(names, d.Name)
	}

	return names
}

func errorResult(tool string, status Status, msg string) Result {
	content, _ := json.Marshal(map[string]string{"error": msg})

	return Result{
		Tool:    tool,
		Content: string(content),
		IsError: true,
		Status:  status,
	}
}
