package mcpserver

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"golang.org/x/sync/errgroup"

	aerrors "github.com/foundryhq/assistant/internal/errors"
)

const (
	// DefaultConnectTimeout bounds subprocess spawn plus handshake plus
	// catalog fetch.
	DefaultConnectTimeout = 30 * time.Second
	// DefaultGraceTimeout bounds how long a disconnect waits for a graceful
	// shutdown before abandoning the process.
	DefaultGraceTimeout = 5 * time.Second
)

// ToolDescriptor is one server tool as it appears in the catalog, under its
// namespaced name.
type ToolDescriptor struct {
	Name        string             `json:"name"`
	RawName     string             `json:"raw_name"`
	Description string             `json:"description"`
	InputSchema *jsonschema.Schema `json:"input_schema"`
	Server      string             `json:"server"`
}

// ServerInfo is a point-in-time view of one declared server.
type ServerInfo struct {
	ID        string   `json:"id"`
	Command   string   `json:"command"`
	Args      []string `json:"args,omitempty"`
	Enabled   bool     `json:"enabled"`
	Status    Status   `json:"status"`
	Error     string   `json:"error,omitempty"`
	ToolCount int      `json:"tool_count"`
	Tools     []string `json:"tools,omitempty"`
}

// connection is the manager-owned state for one declared server. Lifecycle
// state is mutated only through the manager. The generation counter lets
// deliberate teardowns supersede the exit monitor and any stale connect.
type connection struct {
	id  string
	log *slog.Logger

	mu      sync.Mutex
	cfg     ServerConfig
	status  Status
	lastErr error
	session ServerSession
	tools   []ToolDescriptor
	gen     uint64

	// callMu serializes tool calls per connection; the stdio protocol is not
	// multiplexed, so one in-flight correlated request at a time.
	callMu sync.Mutex
}

// Manager owns the declared set of external tool-server subprocess
// connections. Independent servers connect, fail and disconnect without
// affecting each other. There is no automatic restart: reconnect policy
// lives above this component.
type Manager struct {
	log            *slog.Logger
	connectTimeout time.Duration
	graceTimeout   time.Duration

	mu     sync.Mutex
	conns  map[string]*connection
	order  []string
	closed bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithConnectTimeout overrides the handshake timeout.
func WithConnectTimeout(d time.Duration) Option {
	return func(m *Manager) { m.connectTimeout = d }
}

// WithGraceTimeout overrides the disconnect grace period.
func WithGraceTimeout(d time.Duration) Option {
	return func(m *Manager) { m.graceTimeout = d }
}

// NewManager creates a manager with no declared servers. Call Reload to
// declare the server set.
func NewManager(log *slog.Logger, opts ...Option) *Manager {
	m := &Manager{
		log:            log.With("component", "mcp_manager"),
		connectTimeout: DefaultConnectTimeout,
		graceTimeout:   DefaultGraceTimeout,
		conns:          make(map[string]*connection, 4),
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Reload applies a new declarative configuration, diffing by server id:
// removed entries are torn down, added entries are registered disconnected,
// and changed launch commands restart the connection. Calling Reload twice
// with identical configuration changes nothing. In-flight calls complete
// against the prior process or fail; they never observe mixed state.
func (m *Manager) Reload(ctx context.Context, configs []ServerConfig) error {
	desired := make(map[string]ServerConfig, len(configs))
	order := make([]string, 0, len(configs))

	for _, cfg := range configs {
		if err := cfg.Validate(); err != nil {
			return err
		}

		if !cfg.Enabled {
			continue
		}

		if _, dup := desired[cfg.ID]; dup {
			return fmt.Errorf("server config %q: duplicate id", cfg.ID)
		}

		desired[cfg.ID] = cfg
		order = append(order, cfg.ID)
	}

	m.mu.Lock()

	if m.closed {
		m.mu.Unlock()

		return aerrors.ErrManagerClosed
	}

	var removed []*connection

	var restart []string

	for id, conn := range m.conns {
		cfg, keep := desired[id]
		if !keep {
			removed = append(removed, conn)
			delete(m.conns, id)

			continue
		}

		conn.mu.Lock()

		if !conn.cfg.equal(cfg) {
			wasConnected := conn.status == StatusConnected || conn.status == StatusConnecting
			conn.cfg = cfg

			if wasConnected {
				restart = append(restart, id)
			}
		}

		conn.mu.Unlock()
	}

	for id, cfg := range desired {
		if _, exists := m.conns[id]; exists {
			continue
		}

		m.conns[id] = &connection{
			id:     id,
			log:    m.log.With("server", id),
			cfg:    cfg,
			status: StatusDisconnected,
		}

		m.log.Info("Registered tool server", "server", id)
	}

	m.order = order
	m.mu.Unlock()

	// Teardowns and restarts happen outside the manager lock so a slow
	// process shutdown cannot block unrelated operations.
	for _, conn := range removed {
		m.teardown(conn)
		m.log.Info("Removed tool server", "server", conn.id)
	}

	for _, id := range restart {
		if conn := m.lookup(id); conn != nil {
			m.teardown(conn)
		}

		if err := m.Connect(ctx, id); err != nil {
			m.log.Warn("Restart after config change failed", "server", id, "error", err)
		}
	}

	return nil
}

// Connect spawns the server subprocess, performs the capability handshake
// and fetches the tool catalog. On success the connection is connected; on
// any failure it is failed with the captured error.
func (m *Manager) Connect(ctx context.Context, id string) error {
	conn := m.lookup(id)
	if conn == nil {
		return fmt.Errorf("%w: %s", aerrors.ErrUnknownServer, id)
	}

	conn.mu.Lock()

	if conn.status == StatusConnected {
		conn.mu.Unlock()

		return nil
	}

	conn.status = StatusConnecting
	conn.lastErr = nil
	conn.gen++
	gen := conn.gen
	cfg := conn.cfg
	conn.mu.Unlock()

	conn.log.Info("Connecting to tool server", "command", cfg.Command)

	dialCtx, cancel := context.WithTimeout(ctx, m.connectTimeout)
	defer cancel()

	session, err := dialServer(dialCtx, cfg)

	var tools []RemoteTool

	if err == nil {
		tools, err = session.Tools(dialCtx)
		if err != nil {
			_ = session.Close()
		}
	}

	conn.mu.Lock()
	defer conn.mu.Unlock()

	if conn.gen != gen {
		// Superseded by a reload or disconnect while dialing.
		if err == nil {
			_ = session.Close()
		}

		return nil
	}

	if err != nil {
		herr := &aerrors.HandshakeError{Server: id, Err: err}
		conn.status = StatusFailed
		conn.lastErr = herr
		conn.log.Error("Tool server connect failed", "error", err)

		return herr
	}

	conn.session = session
	conn.tools = namespaceTools(id, tools)
	conn.status = StatusConnected
	conn.log.Info("Tool server connected", "tool_count", len(tools))

	go m.monitor(conn, session, gen)

	return nil
}

// ConnectAll connects every declared server concurrently. Each server
// connects independently; the first error is returned after all attempts
// finish, and per-server status carries the rest.
func (m *Manager) ConnectAll(ctx context.Context) error {
	m.mu.Lock()
	ids := append([]string(nil), m.order...)
	m.mu.Unlock()

	var g errgroup.Group

	for _, id := range ids {
		g.Go(func() error {
			return m.Connect(ctx, id)
		})
	}

	return g.Wait()
}

// Disconnect requests a graceful shutdown, waits the grace period, then
// abandons the process. It always reaches disconnected and never hangs the
// caller, even when the process ignores shutdown.
func (m *Manager) Disconnect(_ context.Context, id string) error {
	conn := m.lookup(id)
	if conn == nil {
		return fmt.Errorf("%w: %s", aerrors.ErrUnknownServer, id)
	}

	m.teardown(conn)

	return nil
}

// teardown transitions a connection to disconnected and closes its session
// within the grace period.
func (m *Manager) teardown(conn *connection) {
	conn.mu.Lock()
	session := conn.session
	conn.session = nil
	conn.tools = nil
	conn.status = StatusDisconnected
	conn.lastErr = nil
	conn.gen++
	conn.mu.Unlock()

	if session == nil {
		return
	}

	done := make(chan error, 1)

	go func() { done <- session.Close() }()

	select {
	case err := <-done:
		if err != nil {
			conn.log.Warn("Tool server shutdown error", "error", err)
		} else {
			conn.log.Info("Tool server disconnected")
		}

	case <-time.After(m.graceTimeout):
		conn.log.Warn("Tool server ignored shutdown, abandoning process", "grace", m.graceTimeout)
	}
}

// monitor watches for process exit. A session that terminates while still
// current marks the connection failed; pending invocations on it resolve as
// errors when their CallTool returns. No automatic restart.
func (m *Manager) monitor(conn *connection, session ServerSession, gen uint64) {
	err := session.Wait()

	conn.mu.Lock()
	defer conn.mu.Unlock()

	if conn.gen != gen {
		// A reload or disconnect already superseded this process.
		return
	}

	perr := &aerrors.ServerProcessError{Server: conn.id, Err: err}
	if err == nil {
		perr.Stderr = "process exited"
	}

	conn.session = nil
	conn.tools = nil
	conn.status = StatusFailed
	conn.lastErr = perr

	conn.log.Warn("Tool server process exited", "error", err)
}

// Invoke sends one correlated tool call to a connected server and awaits the
// response within timeout. The timeout severs the wait; it does not kill the
// process, which may be serving other callers. Calls are serialized per
// connection, so a slow server delays only its own queue.
func (m *Manager) Invoke(ctx context.Context, serverID, tool string, args map[string]any, timeout time.Duration) (*CallResult, error) {
	conn := m.lookup(serverID)
	if conn == nil {
		return nil, fmt.Errorf("%w: %s", aerrors.ErrUnknownServer, serverID)
	}

	conn.mu.Lock()
	session := conn.session
	status := conn.status
	conn.mu.Unlock()

	if status != StatusConnected || session == nil {
		return nil, fmt.Errorf("%w: %s (status %s)", aerrors.ErrServerNotConnected, serverID, status)
	}

	conn.callMu.Lock()
	defer conn.callMu.Unlock()

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		result *CallResult
		err    error
	}

	done := make(chan outcome, 1)

	go func() {
		result, err := session.CallTool(callCtx, tool, args)
		done <- outcome{result: result, err: err}
	}()

	select {
	case o := <-done:
		if o.err != nil {
			return nil, o.err
		}

		return o.result, nil

	case <-callCtx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		conn.log.Warn("Tool call timed out", "tool", tool, "timeout", timeout)

		return nil, &aerrors.ToolTimeoutError{
			Tool:    NamespacedName(serverID, tool),
			Timeout: timeout,
		}
	}
}

// ListTools returns a snapshot of all connected servers' tool descriptors
// under their namespaced names.
func (m *Manager) ListTools() []ToolDescriptor {
	m.mu.Lock()

	conns := make([]*connection, 0, len(m.order))

	for _, id := range m.order {
		if conn, ok := m.conns[id]; ok {
			conns = append(conns, conn)
		}
	}

	m.mu.Unlock()

	var out []ToolDescriptor

	for _, conn := range conns {
		conn.mu.Lock()

		if conn.status == StatusConnected {
			out = append(out, conn.tools...)
		}

		conn.mu.Unlock()
	}

	return out
}

// ServerTools returns the raw (un-namespaced) tools of one server, or nil
// when it is not connected.
func (m *Manager) ServerTools(id string) []ToolDescriptor {
	conn := m.lookup(id)
	if conn == nil {
		return nil
	}

	conn.mu.Lock()
	defer conn.mu.Unlock()

	if conn.status != StatusConnected {
		return nil
	}

	return append([]ToolDescriptor(nil), conn.tools...)
}

// Status returns the lifecycle state of one declared server.
func (m *Manager) Status(id string) (Status, bool) {
	conn := m.lookup(id)
	if conn == nil {
		return "", false
	}

	conn.mu.Lock()
	defer conn.mu.Unlock()

	return conn.status, true
}

// Snapshot returns a point-in-time view of every declared server.
func (m *Manager) Snapshot() []ServerInfo {
	m.mu.Lock()

	conns := make([]*connection, 0, len(m.order))

	for _, id := range m.order {
		if conn, ok := m.conns[id]; ok {
			conns = append(conns, conn)
		}
	}

	m.mu.Unlock()

	out := make([]ServerInfo, 0, len(conns))

	for _, conn := range conns {
		conn.mu.Lock()

		info := ServerInfo{
			ID:        conn.id,
			Command:   conn.cfg.Command,
			Args:      append([]string(nil), conn.cfg.Args...),
			Enabled:   conn.cfg.Enabled,
			Status:    conn.status,
			ToolCount: len(conn.tools),
		}

		if conn.lastErr != nil {
			info.Error = conn.lastErr.Error()
		}

		for _, t := range conn.tools {
			info.Tools = append(info.Tools, t.RawName)
		}

		conn.mu.Unlock()

		out = append(out, info)
	}

	return out
}

// Close tears down every connection. The manager accepts no further reloads.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()

	if m.closed {
		m.mu.Unlock()

		return nil
	}

	m.closed = true

	conns := make([]*connection, 0, len(m.conns))
	for _, conn := range m.conns {
		conns = append(conns, conn)
	}

	m.conns = make(map[string]*connection)
	m.order = nil
	m.mu.Unlock()

	var g errgroup.Group

	for _, conn := range conns {
		g.Go(func() error {
			m.teardown(conn)

			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
				return nil
			}
		})
	}

	return g.Wait()
}

func (m *Manager) lookup(id string) *connection {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.conns[id]
}

func namespaceTools(serverID string, tools []RemoteTool) []ToolDescriptor {
	out := make([]ToolDescriptor, 0, len(tools))

	for _, t := range tools {
		description := t.Description
		if description == "" {
			description = t.Name
		}

		out = append(out, ToolDescriptor{
			Name:        NamespacedName(serverID, t.Name),
			RawName:     t.Name,
			Description: fmt.Sprintf("[%s] %s", serverID, description),
			InputSchema: t.InputSchema,
			Server:      serverID,
		})
	}

	return out
}
