package anthropic

// ModelInfo describes one selectable model.
type ModelInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// DefaultModel is used when a request does not name a model.
const DefaultModel = "claude-opus-4-6"

// AvailableModels is the catalog exposed to clients.
var AvailableModels = []ModelInfo{
	{
		ID:          "claude-opus-4-6",
		Name:        "Claude Opus 4.6",
		Description: "Most capable model, deep reasoning and complex analysis",
	},
	{
		ID:          "claude-sonnet-4-5-20250929",
		Name:        "Claude Sonnet 4.5",
		Description: "Fast and capable, good balance of speed and quality",
	},
	{
		ID:          "claude-haiku-4-5-20251001",
		Name:        "Claude Haiku 4.5",
		Description: "Fastest model, quick answers at lower cost",
	},
}
