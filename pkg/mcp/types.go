package mcp

import (
	"errors"
	"fmt"
	"time"

	"github.com/spyglass-browser/spyglass/pkg/pagecontext"
)

// ConnectionState tracks one server's lifecycle. There is no automatic
// reconnection: a closed or failed connection stays disconnected until
// the user asks for a new connect.
type ConnectionState string

const (
	StateDisconnected  ConnectionState = "disconnected"
	StateConnecting    ConnectionState = "connecting"
	StateConnected     ConnectionState = "connected"
	StateDisconnecting ConnectionState = "disconnecting"
)

var (
	// ErrNotConnected is returned by operations that need a live
	// connection for a server id that has none.
	ErrNotConnected = errors.New("server not connected")

	// ErrServerNotFound is returned when a server id is unknown to the
	// catalog.
	ErrServerNotFound = errors.New("server not found")
)

// ServerConfig declares one external tool provider and how the shell
// launches and restricts it.
type ServerConfig struct {
	ID          string                  `toml:"id" json:"id" yaml:"id" mapstructure:"id"`
	Name        string                  `toml:"name" json:"name" yaml:"name" mapstructure:"name"`
	Command     string                  `toml:"command" json:"command" yaml:"command" mapstructure:"command"`
	Args        []string                `toml:"args,omitempty" json:"args,omitempty" yaml:"args,omitempty" mapstructure:"args"`
	Env         map[string]string       `toml:"env,omitempty" json:"env,omitempty" yaml:"env,omitempty" mapstructure:"env"`
	WorkingDir  string                  `toml:"working_dir,omitempty" json:"working_dir,omitempty" yaml:"working_dir,omitempty" mapstructure:"working_dir"`
	Supervise   bool                    `toml:"supervise" json:"supervise" yaml:"supervise" mapstructure:"supervise"`
	Enabled     bool                    `toml:"enabled" json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	Permissions pagecontext.Permissions `toml:"permissions" json:"permissions" yaml:"permissions" mapstructure:"permissions"`
	CreatedAt   time.Time               `toml:"created_at,omitempty" json:"created_at,omitempty" yaml:"created_at,omitempty" mapstructure:"created_at"`
	LastUsed    time.Time               `toml:"last_used,omitempty" json:"last_used,omitempty" yaml:"last_used,omitempty" mapstructure:"last_used"`
}

// Validate checks the fields a connect attempt depends on.
func (c *ServerConfig) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("server id cannot be empty")
	}
	if c.Command == "" {
		return fmt.Errorf("server %s: command cannot be empty", c.ID)
	}
	return nil
}

// Config is the MCP section of the shell configuration.
type Config struct {
	Enabled                bool           `toml:"enabled" json:"enabled" mapstructure:"enabled"`
	LogLevel               string         `toml:"log_level" json:"log_level" mapstructure:"log_level"`
	ConnectTimeout         time.Duration  `toml:"connect_timeout" json:"connect_timeout" mapstructure:"connect_timeout"`
	DefaultTimeout         time.Duration  `toml:"default_timeout" json:"default_timeout" mapstructure:"default_timeout"`
	HealthCheckInterval    time.Duration  `toml:"health_check_interval" json:"health_check_interval" mapstructure:"health_check_interval"`
	HealthFailureThreshold int            `toml:"health_failure_threshold" json:"health_failure_threshold" mapstructure:"health_failure_threshold"`
	Servers                []ServerConfig `toml:"servers,omitempty" json:"servers,omitempty" mapstructure:"servers"`
}

// DefaultConfig returns the MCP defaults applied when the config file
// leaves the section out.
func DefaultConfig() Config {
	return Config{
		Enabled:                true,
		LogLevel:               "info",
		ConnectTimeout:         15 * time.Second,
		DefaultTimeout:         30 * time.Second,
		HealthCheckInterval:    60 * time.Second,
		HealthFailureThreshold: 3,
		Servers:                []ServerConfig{},
	}
}

// ToolCall is one tool invocation request against a named server.
type ToolCall struct {
	ServerID  string                 `json:"server_id"`
	ToolName  string                 `json:"tool_name"`
	Params    map[string]interface{} `json:"params,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// ToolResult is the outcome of a tool call. Exactly one of Data and
// Error is populated; Timestamp is stamped when the call completes.
type ToolResult struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// ToolInfo describes one discovered tool for status displays and the
// assistant catalog. Name carries the mcp_<server>_<tool> prefix so
// tools from different servers never collide.
type ToolInfo struct {
	Name        string                 `json:"name"`
	ServerID    string                 `json:"server_id"`
	ActualName  string                 `json:"actual_name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"input_schema,omitempty"`
}

// PrefixedToolName builds the collision-free tool name used across the
// shell.
func PrefixedToolName(serverID, toolName string) string {
	return fmt.Sprintf("mcp_%s_%s", serverID, toolName)
}

// ServerStatus is the UI-facing summary of one known server.
type ServerStatus struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Command   string          `json:"command"`
	Supervise bool            `json:"supervise"`
	Enabled   bool            `json:"enabled"`
	State     ConnectionState `json:"state"`
	PID       int             `json:"pid,omitempty"`
	ToolCount int             `json:"tool_count"`
	Tools     []string        `json:"tools,omitempty"`
	LastError string          `json:"last_error,omitempty"`
}
