// Package config loads service settings from the environment and the
// declarative tool-server list from a hot-reloadable JSON file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds the service settings read once at startup.
type Config struct {
	// Addr is the HTTP listen address.
	Addr string

	// AnthropicAPIKey authenticates against the completion service.
	AnthropicAPIKey string
	// AnthropicBaseURL overrides the API endpoint when set.
	AnthropicBaseURL string
	// DefaultModel is used when a chat request does not name one.
	DefaultModel string

	// RedisAddr enables the Redis session store when set; empty selects the
	// in-memory store.
	RedisAddr     string
	RedisPassword string

	// MCPConfigPath points at the tool-server list JSON file. Empty disables
	// external servers.
	MCPConfigPath string

	// MaxToolRounds bounds the agentic loop.
	MaxToolRounds int
	// ToolTimeout bounds one tool call.
	ToolTimeout time.Duration
}

// Load reads settings from the environment, applying defaults.
func Load() (*Config, error) {
	cfg := &Config{
		Addr:             getenv("ASSISTANT_ADDR", ":8080"),
		AnthropicAPIKey:  os.Getenv("ANTHROPIC_API_KEY"),
		AnthropicBaseURL: os.Getenv("ANTHROPIC_BASE_URL"),
		DefaultModel:     getenv("ASSISTANT_MODEL", "claude-opus-4-6"),
		RedisAddr:        os.Getenv("ASSISTANT_REDIS_ADDR"),
		RedisPassword:    os.Getenv("ASSISTANT_REDIS_PASSWORD"),
		MCPConfigPath:    os.Getenv("ASSISTANT_MCP_CONFIG"),
		MaxToolRounds:    25,
		ToolTimeout:      60 * time.Second,
	}

	if v := os.Getenv("ASSISTANT_MAX_TOOL_ROUNDS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("invalid ASSISTANT_MAX_TOOL_ROUNDS %q", v)
		}

		cfg.MaxToolRounds = n
	}

	if v := os.Getenv("ASSISTANT_TOOL_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("invalid ASSISTANT_TOOL_TIMEOUT %q", v)
		}

		cfg.ToolTimeout = d
	}

	if cfg.AnthropicAPIKey == "" {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY is required")
	}

	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}
