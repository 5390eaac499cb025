package spyglass

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/spyglass-browser/spyglass/pkg/mcp"
	"github.com/spyglass-browser/spyglass/pkg/shell"
	"github.com/spyglass-browser/spyglass/pkg/store"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	downStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	subtleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the shell and tool-server status",
	RunE: func(cmd *cobra.Command, args []string) error {
		status, live := fetchStatus()
		if status == nil {
			var err error
			status, err = statusFromStore(cmd.Context())
			if err != nil {
				return err
			}
		}

		fmt.Println(titleStyle.Render("Spyglass Status"))
		if live {
			fmt.Println(okStyle.Render("  shell: running"))
		} else {
			fmt.Println(downStyle.Render("  shell: not running (showing stored catalog)"))
		}
		fmt.Printf("  connected servers: %d\n\n", status.ConnectedCount)

		if len(status.Servers) == 0 {
			fmt.Println(subtleStyle.Render("  no tool servers configured"))
			return nil
		}

		for _, server := range status.Servers {
			line := fmt.Sprintf("  %-16s %-14s", server.ID, server.State)
			switch server.State {
			case mcp.StateConnected:
				line = okStyle.Render(line)
			default:
				line = downStyle.Render(line)
			}
			fmt.Println(line)
			if server.ToolCount > 0 {
				fmt.Println(subtleStyle.Render(fmt.Sprintf("    tools: %d", server.ToolCount)))
			}
			if server.LastError != "" {
				fmt.Println(errStyle.Render("    last error: " + server.LastError))
			}
		}
		return nil
	},
}

// fetchStatus asks the running API server; nil means unreachable.
func fetchStatus() (*shell.Status, bool) {
	host := cfg.Server.Host
	if host == "0.0.0.0" {
		host = "127.0.0.1"
	}
	url := fmt.Sprintf("http://%s:%d/api/v1/status", host, cfg.Server.Port)

	client := http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return nil, false
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, false
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, false
	}

	var result struct {
		Success bool         `json:"success"`
		Status  shell.Status `json:"status"`
	}
	if err := json.Unmarshal(body, &result); err != nil || !result.Success {
		return nil, false
	}
	return &result.Status, true
}

// statusFromStore synthesizes an offline status from the catalog.
func statusFromStore(ctx context.Context) (*shell.Status, error) {
	st, err := store.New(cfg.Store.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	defer func() { _ = st.Close() }()

	configs, err := st.ListServerConfigs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list servers: %w", err)
	}

	status := &shell.Status{}
	for _, serverCfg := range configs {
		status.Servers = append(status.Servers, mcp.ServerStatus{
			ID:        serverCfg.ID,
			Name:      serverCfg.Name,
			Command:   serverCfg.Command,
			Supervise: serverCfg.Supervise,
			Enabled:   serverCfg.Enabled,
			State:     mcp.StateDisconnected,
		})
	}
	return status, nil
}
