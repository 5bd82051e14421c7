// Package registry provides the static lookup table of built-in tools.
//
// The registry is populated at startup and read-only afterwards, so it is
// freely shared across conversations without locking.
package registry

import (
	"context"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
)

// Handler executes a built-in tool. Args have already been validated against
// the tool's input schema. The returned string is the tool result content,
// usually JSON.
type Handler func(ctx context.Context, args map[string]any) (string, error)

// Descriptor describes one tool: name, description and input schema.
type Descriptor struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	InputSchema *jsonschema.Schema `json:"input_schema"`
}

// Tool pairs a descriptor with its handler and pre-resolved schema.
type Tool struct {
	Descriptor
	Handler Handler

	resolved *jsonschema.Resolved
}

// ValidateArgs checks args against the tool's input schema.
func (t *Tool) ValidateArgs(args map[string]any) error {
	if t.resolved == nil {
		return nil
	}

	return t.resolved.Validate(args)
}

// Registry is the static name -> tool table.
type Registry struct {
	tools map[string]*Tool
	order []string
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{tools: make(map[string]*Tool, 8)}
}

// Register adds a tool. It resolves the input schema once so per-call
// validation is cheap. Registration happens only at startup; duplicate names
// are a programming error.
func (r *Registry) Register(name, description string, schema *jsonschema.Schema, handler Handler) error {
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %q already registered", name)
	}

	tool := &Tool{
		Descriptor: Descriptor{
			Name:        name,
			Description: description,
			InputSchema: schema,
		},
		Handler: handler,
	}

	if schema != nil {
		resolved, err := schema.Resolve(nil)
		if err != nil {
			return fmt.Errorf("resolve schema for tool %q: %w", name, err)
		}

		tool.resolved = resolved
	}

	r.tools[name] = tool
	r.order = append(r.order, name)

	return nil
}

// Get looks up a tool by name.
func (r *Registry) Get(name string) (*Tool, bool) {
	t, ok := r.tools[name]

	return t, ok
}

// Descriptors returns all tool descriptors in registration order.
func (r *Registry) Descriptors() []Descriptor {
	out := make([]Descriptor, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name].Descriptor)
	}

	return out
}

// Names returns all registered tool names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}
