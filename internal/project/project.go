// Package project holds the project-scoped records the built-in tools query.
//
// Storage internals are a collaborator concern: the assistant only reads
// through the Store interface. The in-memory implementation backs tests and
// single-node deployments.
package project

import (
	"context"
	"time"
)

// Project is a top-level workspace.
type Project struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	Description string    `json:"description,omitempty"`
	MemberCount int       `json:"member_count"`
	CreatedAt   time.Time `json:"created_at"`
}

// Canvas is a design surface within a project.
type Canvas struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Component is one element placed on a canvas.
type Component struct {
	ID            string         `json:"id"`
	CanvasID      string         `json:"canvas_id"`
	ShapeID       string         `json:"shape_id,omitempty"`
	Name          string         `json:"name"`
	ComponentType string         `json:"component_type"`
	TechStack     string         `json:"tech_stack,omitempty"`
	Description   string         `json:"description,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// Idea is a captured proposal with a review status.
type Idea struct {
	ID               string    `json:"id"`
	ProjectID        string    `json:"project_id"`
	Title            string    `json:"title"`
	Description      string    `json:"description,omitempty"`
	Status           string    `json:"status"`
	Category         string    `json:"category,omitempty"`
	FeasibilityScore float64   `json:"feasibility_score,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// ScaffoldJob tracks code generation for a set of components.
type ScaffoldJob struct {
	ID             string     `json:"id"`
	ProjectID      string     `json:"project_id"`
	Status         string     `json:"status"`
	ComponentIDs   []string   `json:"component_ids,omitempty"`
	GeneratedFiles []string   `json:"generated_files,omitempty"`
	ErrorMessage   string     `json:"error_message,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

// Environment is a deployment target with its generated compose file.
type Environment struct {
	ID          string         `json:"id"`
	ProjectID   string         `json:"project_id"`
	Name        string         `json:"name"`
	Config      map[string]any `json:"config,omitempty"`
	ComposeYAML string         `json:"compose_yaml,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Store is the read surface the built-in tools use.
type Store interface {
	GetProject(ctx context.Context, projectID string) (*Project, error)
	ListCanvases(ctx context.Context, projectID string) ([]Canvas, error)
	ListComponents(ctx context.Context, canvasID string) ([]Component, error)
	ListIdeas(ctx context.Context, projectID, status string) ([]Idea, error)
	SearchIdeas(ctx context.Context, projectID, query string, limit int) ([]Idea, error)
	GetScaffoldJob(ctx context.Context, projectID, jobID string) (*ScaffoldJob, error)
	ListEnvironments(ctx context.Context, projectID string) ([]Environment, error)
}

// KnowledgeClient assembles knowledge context for a query, scoped to a
// project domain. Implemented by the external knowledge service client.
type KnowledgeClient interface {
	GetContext(ctx context.Context, domain, query string, maxTokens int) (string, error)
}
