package session

import "context"

// Store persists conversations keyed by scope. One scope holds at most one
// active conversation; starting fresh replaces it.
type Store interface {
	// Get returns the conversation for a scope key, or (nil, nil) when none
	// exists.
	Get(ctx context.Context, key string) (*Conversation, error)
	// Put saves or replaces the conversation under its scope key.
	Put(ctx context.Context, conv *Conversation) error
	// Delete removes the conversation for a scope key. Deleting a missing
	// conversation is not an error.
	Delete(ctx context.Context, key string) error
}
