package registry

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/foundryhq/assistant/internal/project"
)

const searchIdeasLimit = 20

// RegisterBuiltins populates the registry with the project query tools.
// knowledge may be nil, in which case get_knowledge_context reports that the
// knowledge service is not configured.
func RegisterBuiltins(r *Registry, store project.Store, knowledge project.KnowledgeClient) error {
	b := &builtins{store: store, knowledge: knowledge}

	for _, t := range []struct {
		name        string
		description string
		schema      *jsonschema.Schema
		handler     Handler
	}{
		{
			name:        "get_project_summary",
			description: "Get project overview including member count, canvas count, idea count.",
			schema: objectSchema(map[string]*jsonschema.Schema{
				"project_id": {Type: "string", Description: "The project UUID"},
			}, "project_id"),
			handler: b.getProjectSummary,
		},
		{
			name:        "get_canvas_components",
			description: "Get all components on a canvas with their types, tech stacks, and descriptions.",
			schema: objectSchema(map[string]*jsonschema.Schema{
				"project_id": {Type: "string"},
				"canvas_id":  {Type: "string"},
			}, "project_id", "canvas_id"),
			handler: b.getCanvasComponents,
		},
		{
			name:        "list_canvases",
			description: "List all canvases in a project with their names and component counts.",
			schema: objectSchema(map[string]*jsonschema.Schema{
				"project_id": {Type: "string"},
			}, "project_id"),
			handler: b.listCanvases,
		},
		{
			name:        "get_ideas",
			description: "Get ideas in a project, optionally filtered by status (draft/proposed/approved/rejected/implemented).",
			schema: objectSchema(map[string]*jsonschema.Schema{
				"project_id": {Type: "string"},
				"status":     {Type: "string", Description: "Filter by status. Optional."},
			}, "project_id"),
			handler: b.getIdeas,
		},
		{
			name:        "search_ideas",
			description: "Search across ideas in a project by keyword.",
			schema: objectSchema(map[string]*jsonschema.Schema{
				"project_id": {Type: "string"},
				"query":      {Type: "string"},
			}, "project_id", "query"),
			handler: b.searchIdeas,
		},
		{
			name:        "get_scaffold_job",
			description: "Get scaffold job details including generated files and status.",
			schema: objectSchema(map[string]*jsonschema.Schema{
				"project_id": {Type: "string"},
				"job_id":     {Type: "string"},
			}, "project_id", "job_id"),
			handler: b.getScaffoldJob,
		},
		{
			name:        "get_deploy_config",
			description: "Get deployment environments with Docker Compose and env configuration.",
			schema: objectSchema(map[string]*jsonschema.Schema{
				"project_id": {Type: "string"},
			}, "project_id"),
			handler: b.getDeployConfig,
		},
		{
			name:        "get_knowledge_context",
			description: "Get assembled knowledge context for a given query and project.",
			schema: objectSchema(map[string]*jsonschema.Schema{
				"project_slug": {Type: "string"},
				"query":        {Type: "string"},
			}, "query"),
			handler: b.getKnowledgeContext,
		},
	} {
		if err := r.Register(t.name, t.description, t.schema, t.handler); err != nil {
			return err
		}
	}

	return nil
}

// objectSchema builds an object schema with the given properties and required
// names. The scope fallback makes project_id optional at validation time even
// when the original declared it required, so "required" here covers only the
// arguments with no fallback.
func objectSchema(props map[string]*jsonschema.Schema, required ...string) *jsonschema.Schema {
	req := make([]string, 0, len(required))
	for _, name := range required {
		if name == "project_id" || name == "project_slug" {
			continue
		}

		req = append(req, name)
	}

	return &jsonschema.Schema{
		Type:       "object",
		Properties: props,
		Required:   req,
	}
}

type builtins struct {
	store     project.Store
	knowledge project.KnowledgeClient
}

func (b *builtins) projectID(ctx context.Context, args map[string]any) string {
	return stringArg(args, "project_id", ScopeFrom(ctx).ProjectID)
}

func (b *builtins) getProjectSummary(ctx context.Context, args map[string]any) (string, error) {
	projectID := b.projectID(ctx, args)

	p, err := b.store.GetProject(ctx, projectID)
	if err != nil {
		return "", err
	}

	if p == nil {
		return errorJSON("Project not found"), nil
	}

	canvases, err := b.store.ListCanvases(ctx, projectID)
	if err != nil {
		return "", err
	}

	ideas, err := b.store.ListIdeas(ctx, projectID, "")
	if err != nil {
		return "", err
	}

	return marshal(map[string]any{
		"id":           p.ID,
		"name":         p.Name,
		"slug":         p.Slug,
		"description":  p.Description,
		"member_count": p.MemberCount,
		"canvas_count": len(canvases),
		"idea_count":   len(ideas),
		"created_at":   p.CreatedAt,
	})
}

func (b *builtins) getCanvasComponents(ctx context.Context, args map[string]any) (string, error) {
	canvasID := stringArg(args, "canvas_id", "")

	components, err := b.store.ListComponents(ctx, canvasID)
	if err != nil {
		return "", err
	}

	out := make([]map[string]any, 0, len(components))
	for _, c := range components {
		out = append(out, map[string]any{
			"id":             c.ID,
			"shape_id":       c.ShapeID,
			"name":           c.Name,
			"component_type": c.ComponentType,
			"tech_stack":     c.TechStack,
			"description":    c.Description,
			"metadata":       c.Metadata,
		})
	}

	return marshal(out)
}

func (b *builtins) listCanvases(ctx context.Context, args map[string]any) (string, error) {
	canvases, err := b.store.ListCanvases(ctx, b.projectID(ctx, args))
	if err != nil {
		return "", err
	}

	out := make([]map[string]any, 0, len(canvases))

	for _, c := range canvases {
		components, err := b.store.ListComponents(ctx, c.ID)
		if err != nil {
			return "", err
		}

		out = append(out, map[string]any{
			"id":              c.ID,
			"name":            c.Name,
			"component_count": len(components),
			"created_at":      c.CreatedAt,
		})
	}

	return marshal(out)
}

func (b *builtins) getIdeas(ctx context.Context, args map[string]any) (string, error) {
	ideas, err := b.store.ListIdeas(ctx, b.projectID(ctx, args), stringArg(args, "status", ""))
	if err != nil {
		return "", err
	}

	out := make([]map[string]any, 0, len(ideas))
	for _, i := range ideas {
		out = append(out, map[string]any{
			"id":                i.ID,
			"title":             i.Title,
			"description":       i.Description,
			"status":            i.Status,
			"category":          i.Category,
			"feasibility_score": i.FeasibilityScore,
			"created_at":        i.CreatedAt,
		})
	}

	return marshal(out)
}

func (b *builtins) searchIdeas(ctx context.Context, args map[string]any) (string, error) {
	ideas, err := b.store.SearchIdeas(ctx, b.projectID(ctx, args), stringArg(args, "query", ""), searchIdeasLimit)
	if err != nil {
		return "", err
	}

	out := make([]map[string]any, 0, len(ideas))
	for _, i := range ideas {
		description := i.Description
		if len(description) > 200 {
			description = description[:200]
		}

		out = append(out, map[string]any{
			"id":          i.ID,
			"title":       i.Title,
			"description": description,
			"status":      i.Status,
			"category":    i.Category,
		})
	}

	return marshal(out)
}

func (b *builtins) getScaffoldJob(ctx context.Context, args map[string]any) (string, error) {
	job, err := b.store.GetScaffoldJob(ctx, b.projectID(ctx, args), stringArg(args, "job_id", ""))
	if err != nil {
		return "", err
	}

	if job == nil {
		return errorJSON("Scaffold job not found"), nil
	}

	return marshal(map[string]any{
		"id":              job.ID,
		"status":          job.Status,
		"component_ids":   job.ComponentIDs,
		"generated_files": job.GeneratedFiles,
		"error_message":   job.ErrorMessage,
		"created_at":      job.CreatedAt,
		"completed_at":    job.CompletedAt,
	})
}

func (b *builtins) getDeployConfig(ctx context.Context, args map[string]any) (string, error) {
	envs, err := b.store.ListEnvironments(ctx, b.projectID(ctx, args))
	if err != nil {
		return "", err
	}

	out := make([]map[string]any, 0, len(envs))
	for _, e := range envs {
		out = append(out, map[string]any{
			"id":           e.ID,
			"name":         e.Name,
			"config":       e.Config,
			"compose_yaml": e.ComposeYAML,
			"created_at":   e.CreatedAt,
		})
	}

	return marshal(out)
}

func (b *builtins) getKnowledgeContext(ctx context.Context, args map[string]any) (string, error) {
	if b.knowledge == nil {
		return errorJSON("knowledge service not configured"), nil
	}

	slug := stringArg(args, "project_slug", ScopeFrom(ctx).ProjectSlug)

	domain := ""
	if slug != "" {
		domain = "foundry:" + slug
	}

	assembled, err := b.knowledge.GetContext(ctx, domain, stringArg(args, "query", ""), 2000)
	if err != nil {
		return errorJSON(err.Error()), nil
	}

	if assembled == "" {
		return marshal(map[string]any{"result": "No knowledge found for this query."})
	}

	return assembled, nil
}

func marshal(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal tool result: %w", err)
	}

	return string(data), nil
}

func errorJSON(msg string) string {
	data, _ := json.Marshal(map[string]string{"error": msg})

	return string(data)
}
