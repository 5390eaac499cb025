package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/spyglass-browser/spyglass/pkg/mcp"
	"github.com/spyglass-browser/spyglass/pkg/shell"
	"github.com/spyglass-browser/spyglass/pkg/store"
)

var monitorText bool

var mcpMonitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Watch tool-server status",
	Long: `Monitor shows a live view of the tool servers. It asks the running
shell API first and falls back to the stored catalog when the shell is
not running.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if monitorText || !isInteractive() {
			return printStatusOnce()
		}
		p := tea.NewProgram(initialMonitorModel())
		if _, err := p.Run(); err != nil {
			return fmt.Errorf("error running monitor UI: %w", err)
		}
		return nil
	},
}

func init() {
	mcpMonitorCmd.Flags().BoolVar(&monitorText, "text", false, "print one snapshot as plain text")
}

func isInteractive() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}

// printStatusOnce is the non-interactive path.
func printStatusOnce() error {
	servers, _, err := fetchServers(statusURL())
	if err != nil {
		return err
	}
	if len(servers) == 0 {
		fmt.Println("No tool servers configured.")
		return nil
	}
	for _, server := range servers {
		fmt.Printf("%-16s %-14s tools:%d\n", server.ID, server.State, server.ToolCount)
		if server.LastError != "" {
			fmt.Printf("  last error: %s\n", server.LastError)
		}
	}
	return nil
}

func statusURL() string {
	host := Cfg.Server.Host
	if host == "0.0.0.0" {
		host = "127.0.0.1"
	}
	return fmt.Sprintf("http://%s:%d/api/v1/status", host, Cfg.Server.Port)
}

// fetchServers tries the API first and falls back to the catalog. The
// bool reports whether the data came from the live shell.
func fetchServers(url string) ([]mcp.ServerStatus, bool, error) {
	client := http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(url)
	if err == nil {
		defer func() { _ = resp.Body.Close() }()
		if resp.StatusCode == http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			var result struct {
				Success bool         `json:"success"`
				Status  shell.Status `json:"status"`
			}
			if err := json.Unmarshal(body, &result); err == nil && result.Success {
				return result.Status.Servers, true, nil
			}
		}
	}

	st, err := store.New(Cfg.Store.DBPath)
	if err != nil {
		return nil, false, fmt.Errorf("API unavailable and store access failed: %w", err)
	}
	defer func() { _ = st.Close() }()

	configs, err := st.ListServerConfigs(context.Background())
	if err != nil {
		return nil, false, fmt.Errorf("API unavailable and catalog list failed: %w", err)
	}

	servers := make([]mcp.ServerStatus, 0, len(configs))
	for _, serverCfg := range configs {
		servers = append(servers, mcp.ServerStatus{
			ID:        serverCfg.ID,
			Name:      serverCfg.Name,
			Command:   serverCfg.Command,
			Supervise: serverCfg.Supervise,
			Enabled:   serverCfg.Enabled,
			State:     mcp.StateDisconnected,
		})
	}
	return servers, false, nil
}

// Bubble Tea model

type monitorModel struct {
	servers  []mcp.ServerStatus
	live     bool
	loading  bool
	err      error
	quitting bool
	url      string
}

type serversMsg struct {
	servers []mcp.ServerStatus
	live    bool
}

type monitorErrMsg error

var (
	monitorTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	monitorOKStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	monitorDownStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	monitorErrStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

func initialMonitorModel() monitorModel {
	return monitorModel{
		loading: true,
		url:     statusURL(),
	}
}

func (m monitorModel) Init() tea.Cmd {
	return fetchServersCmd(m.url)
}

func fetchServersCmd(url string) tea.Cmd {
	return func() tea.Msg {
		servers, live, err := fetchServers(url)
		if err != nil {
			return monitorErrMsg(err)
		}
		return serversMsg{servers: servers, live: live}
	}
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			m.quitting = true
			return m, tea.Quit
		}
		if msg.String() == "r" {
			m.loading = true
			return m, fetchServersCmd(m.url)
		}

	case serversMsg:
		m.servers = msg.servers
		m.live = msg.live
		m.loading = false
		m.err = nil

	case monitorErrMsg:
		m.err = msg
		m.loading = false
	}

	return m, nil
}

func (m monitorModel) View() string {
	if m.quitting {
		return "Bye!\n"
	}

	s := monitorTitleStyle.Render("Spyglass Tool Servers") + "\n\n"

	switch {
	case m.loading:
		s += "Loading...\n"
	case m.err != nil:
		s += monitorErrStyle.Render(fmt.Sprintf("Error: %v", m.err)) + "\n"
	case len(m.servers) == 0:
		s += "No tool servers configured.\n"
	default:
		if !m.live {
			s += monitorDownStyle.Render("shell not running, showing stored catalog") + "\n\n"
		}
		for _, server := range m.servers {
			line := fmt.Sprintf("%-16s %-14s tools:%d", server.ID, server.State, server.ToolCount)
			if server.State == mcp.StateConnected {
				line = monitorOKStyle.Render(line)
			} else {
				line = monitorDownStyle.Render(line)
			}
			s += line + "\n"
			if server.LastError != "" {
				s += monitorErrStyle.Render("  last error: "+server.LastError) + "\n"
			}
		}
	}

	s += "\nPress 'r' to refresh, 'q' to quit.\n"
	return s
}
