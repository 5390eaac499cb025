// Package store persists the shell's durable state: the tool-server
// catalog, the tool invocation log and local browsing history. The
// storage format is owned here; the MCP manager only writes through
// its hook interface.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/spyglass-browser/spyglass/pkg/mcp"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// ToolInvocation is one logged tool call, successful or not.
type ToolInvocation struct {
	ID         string    `json:"id"`
	ServerID   string    `json:"server_id"`
	ToolName   string    `json:"tool_name"`
	ParamsJSON string    `json:"params_json"`
	ResultJSON string    `json:"result_json"`
	Success    bool      `json:"success"`
	Error      string    `json:"error,omitempty"`
	DurationMS int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// HistoryEntry is one browsing-history record.
type HistoryEntry struct {
	ID        int64     `json:"id"`
	URL       string    `json:"url"`
	Title     string    `json:"title"`
	VisitedAt time.Time `json:"visited_at"`
}

// Store wraps the shell's SQLite database.
type Store struct {
	db *sql.DB
}

// New opens (creating if necessary) the database at dbPath and ensures
// the schema exists.
func New(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.Initialize(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return s, nil
}

// Initialize creates the necessary tables and indexes.
func (s *Store) Initialize(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS mcp_servers (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			config_json TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			last_used TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS tool_invocations (
			id TEXT PRIMARY KEY,
			server_id TEXT NOT NULL,
			tool_name TEXT NOT NULL,
			params_json TEXT,
			result_json TEXT,
			success BOOLEAN NOT NULL DEFAULT 0,
			error TEXT,
			duration_ms INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS history_entries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			url TEXT NOT NULL,
			title TEXT NOT NULL,
			visited_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tool_invocations_server_id ON tool_invocations(server_id)`,
		`CREATE INDEX IF NOT EXISTS idx_tool_invocations_created_at ON tool_invocations(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_history_entries_visited_at ON history_entries(visited_at)`,
	}

	for _, query := range queries {
		if _, err := s.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveServerConfig upserts one server config, serialized whole so the
// schema never chases config fields.
func (s *Store) SaveServerConfig(ctx context.Context, config *mcp.ServerConfig) error {
	data, err := json.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to serialize config %s: %w", config.ID, err)
	}

	createdAt := config.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	lastUsed := config.LastUsed
	if lastUsed.IsZero() {
		lastUsed = createdAt
	}

	query := `INSERT INTO mcp_servers (id, name, config_json, created_at, last_used)
			  VALUES (?, ?, ?, ?, ?)
			  ON CONFLICT(id) DO UPDATE SET
			      name = excluded.name,
			      config_json = excluded.config_json,
			      last_used = excluded.last_used`
	_, err = s.db.ExecContext(ctx, query, config.ID, config.Name, string(data), createdAt, lastUsed)
	return err
}

// GetServerConfig loads one server config by id.
func (s *Store) GetServerConfig(ctx context.Context, id string) (*mcp.ServerConfig, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT config_json FROM mcp_servers WHERE id = ?`, id).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("server %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	var config mcp.ServerConfig
	if err := json.Unmarshal([]byte(data), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", id, err)
	}
	return &config, nil
}

// ListServerConfigs returns every known server config, ordered by name.
func (s *Store) ListServerConfigs(ctx context.Context) ([]*mcp.ServerConfig, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT config_json FROM mcp_servers ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var configs []*mcp.ServerConfig
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var config mcp.ServerConfig
		if err := json.Unmarshal([]byte(data), &config); err != nil {
			return nil, fmt.Errorf("failed to parse stored config: %w", err)
		}
		configs = append(configs, &config)
	}
	return configs, rows.Err()
}

// DeleteServerConfig removes one server config.
func (s *Store) DeleteServerConfig(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM mcp_servers WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("server %s: %w", id, ErrNotFound)
	}
	return nil
}

// RecordToolInvocation appends one tool call outcome to the log. It
// implements the manager's persistence hook.
func (s *Store) RecordToolInvocation(ctx context.Context, call *mcp.ToolCall, result *mcp.ToolResult, duration time.Duration) error {
	paramsJSON, err := json.Marshal(call.Params)
	if err != nil {
		paramsJSON = []byte("{}")
	}
	resultJSON, err := json.Marshal(result)
	if err != nil {
		resultJSON = []byte("{}")
	}

	query := `INSERT INTO tool_invocations
			  (id, server_id, tool_name, params_json, result_json, success, error, duration_ms, created_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = s.db.ExecContext(ctx, query,
		uuid.New().String(),
		call.ServerID,
		call.ToolName,
		string(paramsJSON),
		string(resultJSON),
		result.Success,
		result.Error,
		duration.Milliseconds(),
		result.Timestamp,
	)
	return err
}

// ListToolInvocations returns the latest invocations, newest first.
// An empty serverID returns invocations for every server.
func (s *Store) ListToolInvocations(ctx context.Context, serverID string, limit int) ([]ToolInvocation, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT id, server_id, tool_name, params_json, result_json, success, error, duration_ms, created_at
			  FROM tool_invocations`
	args := []interface{}{}
	if serverID != "" {
		query += ` WHERE server_id = ?`
		args = append(args, serverID)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var invocations []ToolInvocation
	for rows.Next() {
		var inv ToolInvocation
		var errText sql.NullString
		if err := rows.Scan(&inv.ID, &inv.ServerID, &inv.ToolName, &inv.ParamsJSON,
			&inv.ResultJSON, &inv.Success, &errText, &inv.DurationMS, &inv.CreatedAt); err != nil {
			return nil, err
		}
		inv.Error = errText.String
		invocations = append(invocations, inv)
	}
	return invocations, rows.Err()
}

// PruneToolInvocations deletes log entries older than the cutoff and
// reports how many were removed.
func (s *Store) PruneToolInvocations(ctx context.Context, before time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM tool_invocations WHERE created_at < ?`, before)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// AddHistoryEntry records one page visit.
func (s *Store) AddHistoryEntry(ctx context.Context, url, title string, visitedAt time.Time) error {
	if visitedAt.IsZero() {
		visitedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO history_entries (url, title, visited_at) VALUES (?, ?, ?)`,
		url, title, visitedAt)
	return err
}

// SearchHistory returns entries whose URL or title contains the query,
// newest first.
func (s *Store) SearchHistory(ctx context.Context, query string, limit int) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	pattern := "%" + query + "%"
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, url, title, visited_at FROM history_entries
		 WHERE url LIKE ? OR title LIKE ?
		 ORDER BY visited_at DESC LIMIT ?`,
		pattern, pattern, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	return scanHistory(rows)
}

// RecentHistory returns the latest entries, newest first.
func (s *Store) RecentHistory(ctx context.Context, limit int) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, url, title, visited_at FROM history_entries
		 ORDER BY visited_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	return scanHistory(rows)
}

// PruneHistory deletes history older than the cutoff and reports how
// many entries were removed.
func (s *Store) PruneHistory(ctx context.Context, before time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM history_entries WHERE visited_at < ?`, before)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func scanHistory(rows *sql.Rows) ([]HistoryEntry, error) {
	var entries []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		if err := rows.Scan(&e.ID, &e.URL, &e.Title, &e.VisitedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
