// Package mcp is the shell's integration layer for external tool
// servers speaking the Model Context Protocol. The Manager supervises
// zero or more named server connections: transport selection, process
// lifecycle, capability handshake, tool invocation and teardown.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"sync"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/sync/singleflight"

	"github.com/spyglass-browser/spyglass/pkg/log"
)

const (
	clientName    = "spyglass"
	clientVersion = "1.0.0"
)

// Store is the persistence hook the manager calls into: server configs
// are saved after every successful connect, tool invocations after
// every call. A nil store disables persistence.
type Store interface {
	SaveServerConfig(ctx context.Context, config *ServerConfig) error
	RecordToolInvocation(ctx context.Context, call *ToolCall, result *ToolResult, duration time.Duration) error
}

// connection is the live binding of one server config to one transport
// and one protocol session. It exists only while connected and is
// exclusively owned by the Manager.
type connection struct {
	config  *ServerConfig
	session *sdk.ClientSession
	proc    *ServerProcess
	tools   map[string]*sdk.Tool
}

// Manager coordinates all tool-server connections. The registry is
// keyed by server id with at most one connection per id; entries are
// inserted only after a fully successful connect and removed before
// the corresponding disconnect event fires, so observers never see an
// intermediate state.
type Manager struct {
	mu          sync.RWMutex
	connections map[string]*connection
	lastErrors  map[string]string

	connectGroup singleflight.Group
	events       *Events
	store        Store
	logger       *slog.Logger
}

// NewManager creates a manager with no connections. store may be nil.
func NewManager(store Store) *Manager {
	return &Manager{
		connections: make(map[string]*connection),
		lastErrors:  make(map[string]string),
		events:      NewEvents(),
		store:       store,
		logger:      log.WithComponent("mcp.manager"),
	}
}

// Events exposes the observer registry for state-change notifications.
func (m *Manager) Events() *Events { return m.events }

// ConnectToServer connects one configured server. It never returns an
// error: every failure path emits an error event carrying the server
// id and the cause, and yields false, because the caller sits across a
// process boundary and cannot usefully catch anything. Connecting an
// already-connected id is a no-op success; concurrent connects for the
// same id are coalesced into one attempt.
func (m *Manager) ConnectToServer(ctx context.Context, config *ServerConfig) bool {
	if config == nil {
		m.events.emitError("", errors.New("nil server config"))
		return false
	}
	if err := config.Validate(); err != nil {
		m.failConnect(config.ID, err)
		return false
	}
	if m.IsConnected(config.ID) {
		return true
	}

	_, err, _ := m.connectGroup.Do(config.ID, func() (interface{}, error) {
		return nil, m.connect(ctx, config)
	})
	if err != nil {
		m.failConnect(config.ID, err)
		return false
	}
	return true
}

func (m *Manager) failConnect(id string, err error) {
	m.mu.Lock()
	m.lastErrors[id] = err.Error()
	m.mu.Unlock()
	m.logger.Error("connect failed", "server", id, "error", err)
	m.events.emitError(id, err)
}

func (m *Manager) connect(ctx context.Context, config *ServerConfig) error {
	if m.IsConnected(config.ID) {
		return nil
	}

	transport, proc := m.selectTransport(config)

	client := sdk.NewClient(&sdk.Implementation{
		Name:    clientName,
		Version: clientVersion,
	}, &sdk.ClientOptions{})

	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		if proc != nil {
			proc.Kill()
		}
		return fmt.Errorf("handshake with %s failed: %w", config.ID, err)
	}

	config.Enabled = true
	config.LastUsed = time.Now()
	if config.CreatedAt.IsZero() {
		config.CreatedAt = config.LastUsed
	}

	conn := &connection{
		config:  config,
		session: session,
		proc:    proc,
		tools:   make(map[string]*sdk.Tool),
	}

	m.mu.Lock()
	m.connections[config.ID] = conn
	delete(m.lastErrors, config.ID)
	m.mu.Unlock()

	if m.store != nil {
		if err := m.store.SaveServerConfig(ctx, config); err != nil {
			m.logger.Warn("failed to persist server config", "server", config.ID, "error", err)
		}
	}

	m.logger.Info("server connected", "server", config.ID, "supervised", proc != nil)
	m.events.emitServerConnected(config.ID)

	go m.monitorSession(config.ID, conn)
	return nil
}

// selectTransport picks between the supervised transport (we spawn and
// own the process) and the generic client transport (the protocol
// library spawns). A supervised spawn failure falls back to the
// generic transport with the same command, so one misconfiguration
// does not always hard-fail the connect attempt; the fallback is
// logged distinctly to keep diagnostics readable.
func (m *Manager) selectTransport(config *ServerConfig) (sdk.Transport, *ServerProcess) {
	if config.Supervise {
		proc, err := SpawnServerProcess(config)
		if err == nil {
			return NewStdioTransport(proc), proc
		}
		m.logger.Warn("supervised spawn failed, falling back to generic transport",
			"server", config.ID, "error", err)
	}
	return commandTransport(config), nil
}

func commandTransport(config *ServerConfig) sdk.Transport {
	cmd := exec.Command(config.Command, config.Args...)
	if config.WorkingDir != "" {
		cmd.Dir = config.WorkingDir
	}
	cmd.Env = os.Environ()
	for key, value := range config.Env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", key, value))
	}
	return &sdk.CommandTransport{Command: cmd}
}

// monitorSession observes unexpected transport closure. It blocks
// until the session ends; if the registry still holds this connection
// the closure was not an explicit disconnect, so the entry is removed
// and server-disconnected emitted. No reconnect is ever attempted:
// recovery is an explicit user-driven retry.
func (m *Manager) monitorSession(id string, conn *connection) {
	err := conn.session.Wait()

	m.mu.Lock()
	current, ok := m.connections[id]
	if !ok || current != conn {
		m.mu.Unlock()
		return
	}
	delete(m.connections, id)
	conn.config.Enabled = false
	if err != nil {
		m.lastErrors[id] = err.Error()
	}
	m.mu.Unlock()

	if conn.proc != nil {
		conn.proc.Kill()
	}
	m.logger.Warn("server connection closed unexpectedly", "server", id, "error", err)
	m.events.emitServerDisconnected(id)
}

// DisconnectServer closes a server's session, force-kills a supervised
// child that has not already exited, and flips the config's enabled
// flag off so a later listing reflects the disconnect. Idempotent:
// disconnecting an id with no live connection is a nil-error no-op.
func (m *Manager) DisconnectServer(ctx context.Context, id string) error {
	m.mu.Lock()
	conn, ok := m.connections[id]
	if ok {
		delete(m.connections, id)
		conn.config.Enabled = false
	}
	m.mu.Unlock()

	if !ok {
		return nil
	}

	if err := conn.session.Close(); err != nil {
		m.logger.Debug("session close reported error", "server", id, "error", err)
	}
	if conn.proc != nil {
		conn.proc.Kill()
	}

	m.logger.Info("server disconnected", "server", id)
	m.events.emitServerDisconnected(id)
	return nil
}

// SetServerEnabled is the UI-facing toggle separating "user wants it
// on" from "it is currently connected". Disabling delegates to
// disconnect; enabling is a no-op when already connected, else a
// connect whose failure surfaces as an error here.
func (m *Manager) SetServerEnabled(ctx context.Context, config *ServerConfig, enabled bool) error {
	if config == nil {
		return errors.New("nil server config")
	}
	if !enabled {
		config.Enabled = false
		return m.DisconnectServer(ctx, config.ID)
	}
	if m.IsConnected(config.ID) {
		config.Enabled = true
		return nil
	}
	if !m.ConnectToServer(ctx, config) {
		return fmt.Errorf("failed to connect to %s", config.ID)
	}
	return nil
}

// IsConnected reports whether a live connection exists for id.
func (m *Manager) IsConnected(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.connections[id]
	return ok
}

// GetConnectedServers returns the ids of all live connections, sorted
// for deterministic output.
func (m *Manager) GetConnectedServers() []string {
	m.mu.RLock()
	ids := make([]string, 0, len(m.connections))
	for id := range m.connections {
		ids = append(ids, id)
	}
	m.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

func (m *Manager) get(id string) *connection {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connections[id]
}

// DiscoverTools lists the tools a connected server offers. The result
// is returned AND emitted as a tools-discovered event, because
// discovery serves both a direct UI request and any passively
// listening status indicator. Fails with ErrNotConnected when no live
// connection exists.
func (m *Manager) DiscoverTools(ctx context.Context, id string) ([]*sdk.Tool, error) {
	conn := m.get(id)
	if conn == nil {
		return nil, fmt.Errorf("%s: %w", id, ErrNotConnected)
	}

	result, err := conn.session.ListTools(ctx, &sdk.ListToolsParams{})
	if err != nil {
		return nil, fmt.Errorf("failed to list tools on %s: %w", id, err)
	}

	m.mu.Lock()
	conn.tools = make(map[string]*sdk.Tool, len(result.Tools))
	for _, tool := range result.Tools {
		conn.tools[tool.Name] = tool
	}
	m.mu.Unlock()

	m.events.emitToolsDiscovered(id, result.Tools)
	return result.Tools, nil
}

// CallTool invokes one tool and always resolves to a result, never an
// error: invocation failures are routine and must not unwind the
// caller's control flow. A missing connection yields a synchronous
// failure result; every call is timestamped at completion and appended
// to the invocation log.
func (m *Manager) CallTool(ctx context.Context, call *ToolCall) *ToolResult {
	start := time.Now()
	if call.Timestamp.IsZero() {
		call.Timestamp = start
	}

	conn := m.get(call.ServerID)
	if conn == nil {
		return m.finishCall(ctx, call, &ToolResult{
			Success: false,
			Error:   fmt.Sprintf("%s not connected", call.ServerID),
		}, start)
	}

	response, err := conn.session.CallTool(ctx, &sdk.CallToolParams{
		Name:      call.ToolName,
		Arguments: call.Params,
	})
	if err != nil {
		return m.finishCall(ctx, call, &ToolResult{
			Success: false,
			Error:   fmt.Sprintf("tool call failed: %v", err),
		}, start)
	}

	data := contentData(response.Content)
	if response.IsError {
		msg := "tool reported an error"
		if text, ok := data.(string); ok && text != "" {
			msg = text
		}
		return m.finishCall(ctx, call, &ToolResult{Success: false, Error: msg}, start)
	}

	conn.config.LastUsed = time.Now()
	return m.finishCall(ctx, call, &ToolResult{Success: true, Data: data}, start)
}

func (m *Manager) finishCall(ctx context.Context, call *ToolCall, result *ToolResult, start time.Time) *ToolResult {
	result.Timestamp = time.Now()
	if m.store != nil {
		if err := m.store.RecordToolInvocation(ctx, call, result, time.Since(start)); err != nil {
			m.logger.Warn("failed to record tool invocation", "server", call.ServerID, "error", err)
		}
	}
	return result
}

// contentData unwraps a tool response: a single text block becomes its
// string, anything else is passed through as-is.
func contentData(content []sdk.Content) interface{} {
	if len(content) == 0 {
		return nil
	}
	if text, ok := content[0].(*sdk.TextContent); ok && len(content) == 1 {
		return text.Text
	}
	return content
}

// ListResources lists a connected server's resources. Unlike tool
// calls this may fail with an error; its callers handle errors
// directly and there is no dual-notification requirement.
func (m *Manager) ListResources(ctx context.Context, id string) ([]*sdk.Resource, error) {
	conn := m.get(id)
	if conn == nil {
		return nil, fmt.Errorf("%s: %w", id, ErrNotConnected)
	}

	result, err := conn.session.ListResources(ctx, &sdk.ListResourcesParams{})
	if err != nil {
		return nil, fmt.Errorf("failed to list resources on %s: %w", id, err)
	}
	return result.Resources, nil
}

// StatusFor builds the UI-facing summary for one known server config,
// merging live connection state when present.
func (m *Manager) StatusFor(config *ServerConfig) ServerStatus {
	status := ServerStatus{
		ID:        config.ID,
		Name:      config.Name,
		Command:   config.Command,
		Supervise: config.Supervise,
		Enabled:   config.Enabled,
		State:     StateDisconnected,
	}

	m.mu.RLock()
	conn := m.connections[config.ID]
	status.LastError = m.lastErrors[config.ID]
	if conn != nil {
		status.State = StateConnected
		status.ToolCount = len(conn.tools)
		for name := range conn.tools {
			status.Tools = append(status.Tools, name)
		}
		if conn.proc != nil {
			status.PID = conn.proc.PID()
			if line := conn.proc.LastStderrLine(); line != "" {
				status.LastError = line
			}
		}
	}
	m.mu.RUnlock()

	sort.Strings(status.Tools)
	return status
}

// Cleanup disconnects every registered server concurrently at
// application shutdown. Individual failures are collected, not
// propagated mid-flight: one stubborn server must not keep the others
// connected.
func (m *Manager) Cleanup(ctx context.Context) error {
	ids := m.GetConnectedServers()

	var wg sync.WaitGroup
	errs := make([]error, len(ids))
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			if err := m.DisconnectServer(ctx, id); err != nil {
				errs[i] = fmt.Errorf("disconnect %s: %w", id, err)
			}
		}(i, id)
	}
	wg.Wait()

	return errors.Join(errs...)
}
