package session

import (
	"context"
	"sync"
	"time"
)

// memoryStore keeps conversations in process memory. Suitable for tests and
// single-node deployments.
type memoryStore struct {
	mu    sync.RWMutex
	convs map[string]*Conversation
}

// NewMemoryStore creates an in-memory Store.
func NewMemoryStore() Store {
	return &memoryStore{
		convs: make(map[string]*Conversation),
	}
}

func (s *memoryStore) Get(_ context.Context, key string) (*Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.convs[key]
	if !ok {
		return nil, nil
	}

	cp := cloneConversation(conv)

	return cp, nil
}

func (s *memoryStore) Put(_ context.Context, conv *Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := cloneConversation(conv)
	cp.UpdatedAt = time.Now().UTC()
	s.convs[conv.Key] = cp

	return nil
}

func (s *memoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.convs, key)

	return nil
}

// cloneConversation deep-copies turns so callers never share slices with the
// stored record.
func cloneConversation(conv *Conversation) *Conversation {
	cp := *conv
	cp.Turns = make([]Turn, len(conv.Turns))

	for i, turn := range conv.Turns {
		t := turn
		if len(turn.Invocations) > 0 {
			t.Invocations = make([]ToolInvocation, len(turn.Invocations))
			copy(t.Invocations, turn.Invocations)
		}

		cp.Turns[i] = t
	}

	return &cp
}
