package registry

import "context"

// Scope carries the project the current conversation is bound to. Built-in
// handlers fall back to it when the model omits project_id or project_slug
// from tool arguments.
type Scope struct {
	ProjectID   string
	ProjectSlug string
}

type scopeKey struct{}

// WithScope attaches a project scope to the context.
func WithScope(ctx context.Context, scope Scope) context.Context {
	return context.WithValue(ctx, scopeKey{}, scope)
}

// ScopeFrom extracts the project scope from the context, if any.
func ScopeFrom(ctx context.Context) Scope {
	scope, _ := ctx.Value(scopeKey{}).(Scope)

	return scope
}

// stringArg reads a string argument, falling back to def when absent or empty.
func stringArg(args map[string]any, key, def string) string {
	if v, ok := args[key].(string); ok && v != "" {
		return v
	}

	return def
}
