package project

import (
	"context"
	"strings"
	"sync"
)

// MemoryKnowledge is an in-memory KnowledgeClient holding snippets per
// domain. Backs tests and deployments without a knowledge service.
type MemoryKnowledge struct {
	mu       sync.RWMutex
	snippets map[string][]string
}

var _ KnowledgeClient = (*MemoryKnowledge)(nil)

// NewMemoryKnowledge creates an empty in-memory knowledge client.
func NewMemoryKnowledge() *MemoryKnowledge {
	return &MemoryKnowledge{snippets: make(map[string][]string)}
}

// AddSnippet stores one knowledge snippet under a domain.
func (k *MemoryKnowledge) AddSnippet(domain, snippet string) {
	k.mu.Lock()
	defer k.mu.Unlock()

	k.snippets[domain] = append(k.snippets[domain], snippet)
}

// GetContext implements KnowledgeClient. Snippets matching the query are
// concatenated, newest last, truncated to roughly maxTokens worth of text.
func (k *MemoryKnowledge) GetContext(_ context.Context, domain, query string, maxTokens int) (string, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	q := strings.ToLower(query)

	var matches []string

	for _, snippet := range k.snippets[domain] {
		if q == "" || strings.Contains(strings.ToLower(snippet), q) {
			matches = append(matches, snippet)
		}
	}

	out := strings.Join(matches, "\n\n")

	// Rough budget: four characters per token.
	if limit := maxTokens * 4; limit > 0 && len(out) > limit {
		out = out[:limit]
	}

	return out, nil
}
