// Package shell is the composition root of the browser shell backend.
// The Service owns the stores, the MCP manager, the context manager,
// the assistant and the retention scheduler, and exposes the operation
// surface the boundary API and the CLI call into.
package shell

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/robfig/cron/v3"

	"github.com/spyglass-browser/spyglass/internal/config"
	"github.com/spyglass-browser/spyglass/pkg/assistant"
	"github.com/spyglass-browser/spyglass/pkg/log"
	"github.com/spyglass-browser/spyglass/pkg/mcp"
	"github.com/spyglass-browser/spyglass/pkg/monitoring"
	"github.com/spyglass-browser/spyglass/pkg/pagecontext"
	"github.com/spyglass-browser/spyglass/pkg/settings"
	"github.com/spyglass-browser/spyglass/pkg/store"
)

// Event types forwarded to subscribers (and from there onto the
// websocket hub).
const (
	EventServerConnected    = "server-connected"
	EventServerDisconnected = "server-disconnected"
	EventToolsDiscovered    = "tools-discovered"
	EventMCPError           = "mcp-error"
	EventContextUpdated     = "context-updated"
	EventHistoryCleared     = "history-cleared"
)

// Status is the shell summary served to the TUI and the status route.
type Status struct {
	Servers        []mcp.ServerStatus      `json:"servers"`
	ConnectedCount int                     `json:"connected_count"`
	CurrentContext *pagecontext.PageContext `json:"current_context,omitempty"`
	HistoryEntries int                     `json:"history_entries"`
}

// Service wires every shell subsystem together.
type Service struct {
	cfg      *config.Config
	store    *store.Store
	settings *settings.Service
	manager  *mcp.Manager
	contexts *pagecontext.Manager
	asst     assistant.Assistant
	health   *mcp.HealthMonitor
	metrics  *monitoring.Metrics
	cron     *cron.Cron
	logger   *slog.Logger

	mu          sync.RWMutex
	subscribers []func(eventType string, data interface{})
}

// New builds the service: opens both databases, constructs the manager
// with its persistence hook and wires all observers. Start must be
// called before the scheduler and health monitor run.
func New(cfg *config.Config) (*Service, error) {
	st, err := store.New(cfg.Store.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	sett, err := settings.Open(cfg.Store.SettingsDBPath)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("failed to open settings: %w", err)
	}

	s := &Service{
		cfg:      cfg,
		store:    st,
		settings: sett,
		manager:  mcp.NewManager(st),
		contexts: pagecontext.NewManager(),
		metrics:  monitoring.NewMetrics(),
		cron:     cron.New(),
		logger:   log.WithComponent("shell"),
	}
	s.asst = assistant.New(s, s, s)
	s.health = mcp.NewHealthMonitor(s.manager,
		cfg.MCP.HealthCheckInterval, cfg.MCP.HealthFailureThreshold)

	s.wireObservers()
	return s, nil
}

func (s *Service) wireObservers() {
	events := s.manager.Events()
	events.OnServerConnected(func(serverID string) {
		s.metrics.SetConnectedServers(len(s.manager.GetConnectedServers()))
		s.emit(EventServerConnected, map[string]interface{}{"server_id": serverID})
	})
	events.OnServerDisconnected(func(serverID string) {
		s.metrics.SetConnectedServers(len(s.manager.GetConnectedServers()))
		s.emit(EventServerDisconnected, map[string]interface{}{"server_id": serverID})
	})
	events.OnToolsDiscovered(func(serverID string, tools []*sdk.Tool) {
		names := make([]string, 0, len(tools))
		for _, tool := range tools {
			names = append(names, mcp.PrefixedToolName(serverID, tool.Name))
		}
		s.emit(EventToolsDiscovered, map[string]interface{}{
			"server_id": serverID,
			"tools":     names,
		})
	})
	events.OnError(func(serverID string, err error) {
		s.emit(EventMCPError, map[string]interface{}{
			"server_id": serverID,
			"error":     err.Error(),
		})
	})

	s.contexts.OnContextUpdated(func(pc pagecontext.PageContext) {
		s.metrics.RecordContextUpdate(pc.URL == pagecontext.RestrictedMarker)
		s.emit(EventContextUpdated, pc)
	})
	s.contexts.OnHistoryCleared(func() {
		s.emit(EventHistoryCleared, nil)
	})
}

// Subscribe registers an observer for shell events. Observers must not
// block.
func (s *Service) Subscribe(fn func(eventType string, data interface{})) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers = append(s.subscribers, fn)
}

func (s *Service) emit(eventType string, data interface{}) {
	s.mu.RLock()
	subscribers := make([]func(string, interface{}), len(s.subscribers))
	copy(subscribers, s.subscribers)
	s.mu.RUnlock()

	for _, fn := range subscribers {
		fn(eventType, data)
	}
}

// Metrics exposes the shell's metrics set for the /metrics route.
func (s *Service) Metrics() *monitoring.Metrics { return s.metrics }

// Settings exposes the settings service.
func (s *Service) Settings() *settings.Service { return s.settings }

// Store exposes the shell store for read-side CLI commands.
func (s *Service) Store() *store.Store { return s.store }

// Start launches the health monitor, the retention scheduler and any
// configured autostart connections.
func (s *Service) Start(ctx context.Context) error {
	s.health.Start(ctx)

	schedule, err := s.settings.PruneSchedule()
	if err != nil {
		s.logger.Warn("failed to load prune schedule, using default",
			"error", err)
		schedule = settings.DefaultPruneSchedule
	}
	if _, err := s.cron.AddFunc(schedule, func() { s.prune(context.Background()) }); err != nil {
		return fmt.Errorf("failed to schedule retention pruning: %w", err)
	}
	s.cron.Start()

	for i := range s.cfg.MCP.Servers {
		serverCfg := s.cfg.MCP.Servers[i]
		if !serverCfg.Enabled {
			continue
		}
		if ok := s.Connect(ctx, &serverCfg); !ok {
			s.logger.Warn("autostart connect failed", "server", serverCfg.ID)
		}
	}
	return nil
}

func (s *Service) prune(ctx context.Context) {
	days, err := s.settings.HistoryRetentionDays()
	if err != nil {
		s.logger.Warn("failed to load retention setting", "error", err)
		days = s.cfg.Retention.HistoryDays
	}
	cutoff := time.Now().AddDate(0, 0, -days)

	historyPruned, err := s.store.PruneHistory(ctx, cutoff)
	if err != nil {
		s.logger.Error("history pruning failed", "error", err)
	}
	invocationsPruned, err := s.store.PruneToolInvocations(ctx, cutoff)
	if err != nil {
		s.logger.Error("invocation log pruning failed", "error", err)
	}
	s.logger.Info("retention sweep complete",
		"history_pruned", historyPruned,
		"invocations_pruned", invocationsPruned,
		"cutoff", cutoff)
}

// AddServer stores a new server config. When the config carries no
// permissions, the settings default applies.
func (s *Service) AddServer(ctx context.Context, serverCfg *mcp.ServerConfig) error {
	if err := serverCfg.Validate(); err != nil {
		return err
	}
	if permissionsUnset(serverCfg.Permissions) {
		perms, err := s.settings.DefaultPermissions()
		if err != nil {
			return fmt.Errorf("failed to load default permissions: %w", err)
		}
		serverCfg.Permissions = perms
	}
	if serverCfg.CreatedAt.IsZero() {
		serverCfg.CreatedAt = time.Now()
	}
	return s.store.SaveServerConfig(ctx, serverCfg)
}

func permissionsUnset(p pagecontext.Permissions) bool {
	return !p.ShareHistory && !p.SharePageContent && !p.ShareSelections &&
		len(p.AllowedDomains) == 0
}

// Connect establishes one server connection under the configured
// connect timeout, reporting success as a boolean like the manager.
func (s *Service) Connect(ctx context.Context, serverCfg *mcp.ServerConfig) bool {
	timeout := s.cfg.MCP.ConnectTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ok := s.manager.ConnectToServer(ctx, serverCfg)
	s.metrics.RecordConnect(ok)
	return ok
}

// ConnectByID connects a server already present in the catalog.
func (s *Service) ConnectByID(ctx context.Context, id string) (bool, error) {
	serverCfg, err := s.store.GetServerConfig(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, fmt.Errorf("server %s: %w", id, mcp.ErrServerNotFound)
		}
		return false, err
	}
	return s.Connect(ctx, serverCfg), nil
}

// Disconnect closes one server connection.
func (s *Service) Disconnect(ctx context.Context, id string) error {
	return s.manager.DisconnectServer(ctx, id)
}

// DiscoverTools lists one connected server's tools with prefixed
// names.
func (s *Service) DiscoverTools(ctx context.Context, id string) ([]mcp.ToolInfo, error) {
	tools, err := s.manager.DiscoverTools(ctx, id)
	if err != nil {
		return nil, err
	}

	infos := make([]mcp.ToolInfo, 0, len(tools))
	for _, tool := range tools {
		infos = append(infos, mcp.ToolInfo{
			Name:        mcp.PrefixedToolName(id, tool.Name),
			ServerID:    id,
			ActualName:  tool.Name,
			Description: tool.Description,
			InputSchema: schemaToMap(tool.InputSchema),
		})
	}
	return infos, nil
}

func schemaToMap(schema interface{}) map[string]interface{} {
	if schema == nil {
		return nil
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return nil
	}
	var out map[string]interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return out
}

// CallTool invokes one tool under the configured call timeout. Like
// the manager, failures come back as data, never as errors.
func (s *Service) CallTool(ctx context.Context, call *mcp.ToolCall) *mcp.ToolResult {
	timeout := s.cfg.MCP.DefaultTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	result := s.manager.CallTool(ctx, call)
	s.metrics.RecordToolCall(call.ServerID, result.Success, time.Since(start).Seconds())
	return result
}

// ListResources lists one connected server's resources.
func (s *Service) ListResources(ctx context.Context, id string) ([]*sdk.Resource, error) {
	return s.manager.ListResources(ctx, id)
}

// GetConnectedServers returns the connected server ids, sorted.
func (s *Service) GetConnectedServers() []string {
	return s.manager.GetConnectedServers()
}

// GetServers merges the persisted catalog with live connection state.
func (s *Service) GetServers(ctx context.Context) ([]mcp.ServerStatus, error) {
	configs, err := s.store.ListServerConfigs(ctx)
	if err != nil {
		return nil, err
	}

	statuses := make([]mcp.ServerStatus, 0, len(configs))
	for _, serverCfg := range configs {
		statuses = append(statuses, s.manager.StatusFor(serverCfg))
	}
	return statuses, nil
}

// DeleteServer disconnects (if connected) and removes the server from
// the catalog.
func (s *Service) DeleteServer(ctx context.Context, id string) error {
	if err := s.manager.DisconnectServer(ctx, id); err != nil {
		s.logger.Warn("disconnect before delete failed", "server", id, "error", err)
	}
	err := s.store.DeleteServerConfig(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("server %s: %w", id, mcp.ErrServerNotFound)
	}
	return err
}

// SetServerEnabled flips one server's enabled flag, connecting or
// disconnecting to match.
func (s *Service) SetServerEnabled(ctx context.Context, id string, enabled bool) error {
	serverCfg, err := s.store.GetServerConfig(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("server %s: %w", id, mcp.ErrServerNotFound)
		}
		return err
	}

	if err := s.manager.SetServerEnabled(ctx, serverCfg, enabled); err != nil {
		return err
	}
	return s.store.SaveServerConfig(ctx, serverCfg)
}

// UpdateContext filters one raw page capture under the resolved
// permissions and records it. Permissions resolve in order: explicit
// perms, then the named server's stored config, then the settings
// default. A browsing-history entry is recorded when ShareHistory
// allows it.
func (s *Service) UpdateContext(ctx context.Context, raw pagecontext.RawContext, serverID string, perms *pagecontext.Permissions) (pagecontext.PageContext, error) {
	resolved, err := s.resolvePermissions(ctx, serverID, perms)
	if err != nil {
		return pagecontext.PageContext{}, err
	}

	extracted := pagecontext.ExtractContext(raw)
	filtered := s.contexts.UpdateContext(extracted, resolved)

	if resolved.ShareHistory && raw.URL != "" {
		if err := s.store.AddHistoryEntry(ctx, raw.URL, raw.Title, extracted.Timestamp); err != nil {
			s.logger.Warn("failed to record history entry", "error", err)
		}
	}
	return filtered, nil
}

func (s *Service) resolvePermissions(ctx context.Context, serverID string, perms *pagecontext.Permissions) (pagecontext.Permissions, error) {
	if perms != nil {
		return *perms, nil
	}
	if serverID != "" {
		serverCfg, err := s.store.GetServerConfig(ctx, serverID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return pagecontext.Permissions{}, fmt.Errorf("server %s: %w", serverID, mcp.ErrServerNotFound)
			}
			return pagecontext.Permissions{}, err
		}
		return serverCfg.Permissions, nil
	}
	return s.settings.DefaultPermissions()
}

// GetContext returns the most recently captured page context.
func (s *Service) GetContext() (*pagecontext.PageContext, bool) {
	pc, ok := s.contexts.GetCurrentContext()
	if !ok {
		return nil, false
	}
	return &pc, true
}

// GetCurrentContext implements the assistant's context collaborator.
func (s *Service) GetCurrentContext() (*pagecontext.PageContext, bool) {
	return s.GetContext()
}

// GetContextHistory returns recent captures, most recent first.
func (s *Service) GetContextHistory(limit int) []pagecontext.PageContext {
	return s.contexts.GetContextHistory(limit)
}

// ClearContextHistory drops every retained capture.
func (s *Service) ClearContextHistory() {
	s.contexts.ClearHistory()
}

// SearchHistory searches the browsing history.
func (s *Service) SearchHistory(ctx context.Context, query string, limit int) ([]store.HistoryEntry, error) {
	return s.store.SearchHistory(ctx, query, limit)
}

// RecentHistory returns the latest browsing-history entries.
func (s *Service) RecentHistory(ctx context.Context, limit int) ([]store.HistoryEntry, error) {
	return s.store.RecentHistory(ctx, limit)
}

// ProcessQuery forwards one assistant query.
func (s *Service) ProcessQuery(ctx context.Context, text string) (*assistant.Response, error) {
	return s.asst.ProcessQuery(ctx, text)
}

// Status builds the shell summary.
func (s *Service) Status(ctx context.Context) (*Status, error) {
	servers, err := s.GetServers(ctx)
	if err != nil {
		return nil, err
	}

	status := &Status{
		Servers:        servers,
		ConnectedCount: len(s.manager.GetConnectedServers()),
	}
	if pc, ok := s.GetContext(); ok {
		status.CurrentContext = pc
	}
	if entries, err := s.store.RecentHistory(ctx, 1000); err == nil {
		status.HistoryEntries = len(entries)
	}
	return status, nil
}

// Cleanup stops the scheduler and health monitor, closes every
// connection and releases both databases.
func (s *Service) Cleanup(ctx context.Context) error {
	s.cron.Stop()
	s.health.Stop()

	var errs []error
	if err := s.manager.Cleanup(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := s.settings.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := s.store.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
