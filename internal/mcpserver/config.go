package mcpserver

import (
	"fmt"
	"strings"
)

// Status is the lifecycle state of a tool-server connection.
type Status string

const (
	// StatusDisconnected means the server is declared but has no process.
	StatusDisconnected Status = "disconnected"
	// StatusConnecting means the subprocess is being spawned and handshaken.
	StatusConnecting Status = "connecting"
	// StatusConnected means the handshake completed and the tool catalog is known.
	StatusConnected Status = "connected"
	// StatusFailed means the connect attempt or the process itself failed.
	StatusFailed Status = "failed"
)

// ServerConfig declares one external tool server.
type ServerConfig struct {
	ID      string            `json:"id"`
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
	Enabled bool              `json:"enabled"`
}

// Validate checks the declaration is usable. Server ids become the prefix of
// namespaced tool names, so the namespace separator is not allowed in them.
func (c ServerConfig) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("server config: id is required")
	}

	if strings.Contains(c.ID, nameSeparator) {
		return fmt.Errorf("server config %q: id must not contain %q", c.ID, nameSeparator)
	}

	if c.Command == "" {
		return fmt.Errorf("server config %q: command is required", c.ID)
	}

	return nil
}

// equal reports whether two configs describe the same launch. A change in
// command, args or env restarts the connection on reload.
func (c ServerConfig) equal(other ServerConfig) bool {
	if c.ID != other.ID || c.Command != other.Command || c.Enabled != other.Enabled {
		return false
	}

	if len(c.Args) != len(other.Args) {
		return false
	}

	for i := range c.Args {
		if c.Args[i] != other.Args[i] {
			return false
		}
	}

	if len(c.Env) != len(other.Env) {
		return false
	}

	for k, v := range c.Env {
		if other.Env[k] != v {
			return false
		}
	}

	return true
}

const nameSeparator = "__"

// NamespacedName builds the catalog name for a server tool.
func NamespacedName(serverID, tool string) string {
	return serverID + nameSeparator + tool
}

// SplitName splits a namespaced tool name into server id and tool name.
// Returns ok=false when the name carries no namespace.
func SplitName(name string) (serverID, tool string, ok bool) {
	serverID, tool, ok = strings.Cut(name, nameSeparator)
	if !ok || serverID == "" || tool == "" {
		return "", "", false
	}

	return serverID, tool, true
}
