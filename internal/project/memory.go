package project

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryStore is an in-memory Store implementation.
type MemoryStore struct {
	mu           sync.RWMutex
	projects     map[string]*Project
	canvases     map[string][]Canvas   // keyed by project id
	components   map[string][]Component // keyed by canvas id
	ideas        map[string][]Idea      // keyed by project id
	scaffoldJobs map[string]*ScaffoldJob
	environments map[string][]Environment // keyed by project id
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory project store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		projects:     make(map[string]*Project),
		canvases:     make(map[string][]Canvas),
		components:   make(map[string][]Component),
		ideas:        make(map[string][]Idea),
		scaffoldJobs: make(map[string]*ScaffoldJob),
		environments: make(map[string][]Environment),
	}
}

// AddProject registers a project.
func (s *MemoryStore) AddProject(p Project) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.projects[p.ID] = &p
}

// AddCanvas registers a canvas under its project.
func (s *MemoryStore) AddCanvas(c Canvas) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.canvases[c.ProjectID] = append(s.canvases[c.ProjectID], c)
}

// AddComponent registers a component under its canvas.
func (s *MemoryStore) AddComponent(c Component) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.components[c.CanvasID] = append(s.components[c.CanvasID], c)
}

// AddIdea registers an idea under its project.
func (s *MemoryStore) AddIdea(i Idea) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ideas[i.ProjectID] = append(s.ideas[i.ProjectID], i)
}

// AddScaffoldJob registers a scaffold job.
func (s *MemoryStore) AddScaffoldJob(j ScaffoldJob) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.scaffoldJobs[j.ID] = &j
}

// AddEnvironment registers a deployment environment under its project.
func (s *MemoryStore) AddEnvironment(e Environment) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.environments[e.ProjectID] = append(s.environments[e.ProjectID], e)
}

// GetProject implements Store.
func (s *MemoryStore) GetProject(_ context.Context, projectID string) (*Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.projects[projectID]
	if !ok {
		return nil, nil
	}

	cp := *p

	return &cp, nil
}

// ListCanvases implements Store.
func (s *MemoryStore) ListCanvases(_ context.Context, projectID string) ([]Canvas, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]Canvas(nil), s.canvases[projectID]...), nil
}

// ListComponents implements Store.
func (s *MemoryStore) ListComponents(_ context.Context, canvasID string) ([]Component, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]Component(nil), s.components[canvasID]...), nil
}

// ListIdeas implements Store. An empty status returns all ideas, newest first.
func (s *MemoryStore) ListIdeas(_ context.Context, projectID, status string) ([]Idea, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Idea

	for _, i := range s.ideas[projectID] {
		if status == "" || i.Status == status {
			out = append(out, i)
		}
	}

	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.After(out[b].CreatedAt) })

	return out, nil
}

// SearchIdeas implements Store with a case-insensitive substring match over
// title and description.
func (s *MemoryStore) SearchIdeas(_ context.Context, projectID, query string, limit int) ([]Idea, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q := strings.ToLower(query)

	var out []Idea

	for _, i := range s.ideas[projectID] {
		if strings.Contains(strings.ToLower(i.Title), q) ||
			strings.Contains(strings.ToLower(i.Description), q) {
			out = append(out, i)
		}
	}

	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.After(out[b].CreatedAt) })

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}

	return out, nil
}

// GetScaffoldJob implements Store.
func (s *MemoryStore) GetScaffoldJob(_ context.Context, projectID, jobID string) (*ScaffoldJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	j, ok := s.scaffoldJobs[jobID]
	if !ok || j.ProjectID != projectID {
		return nil, nil
	}

	cp := *j

	return &cp, nil
}

// ListEnvironments implements Store.
func (s *MemoryStore) ListEnvironments(_ context.Context, projectID string) ([]Environment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]Environment(nil), s.environments[projectID]...), nil
}
