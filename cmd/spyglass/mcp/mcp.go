// Package mcp carries the tool-server subcommands: catalog CRUD,
// one-shot connection operations, YAML exchange, the monitor TUI and
// the embedded servers.
package mcp

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spyglass-browser/spyglass/pkg/mcp"
	"github.com/spyglass-browser/spyglass/pkg/pagecontext"
	"github.com/spyglass-browser/spyglass/pkg/shell"
)

// MCPCmd is the parent command for tool-server operations.
var MCPCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Tool server management",
	Long: `Manage external MCP tool servers: the stored catalog, live
connections, tool invocation and the embedded spyglass servers.`,
}

var (
	addName        string
	addCommand     string
	addArgs        []string
	addEnv         map[string]string
	addWorkingDir  string
	addSupervise   bool
	addShareAll    bool
	addDomains     []string
)

var mcpListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the server catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd.Context(), func(ctx context.Context, svc *shell.Service) error {
			servers, err := svc.GetServers(ctx)
			if err != nil {
				return err
			}
			if len(servers) == 0 {
				fmt.Println("No tool servers configured.")
				return nil
			}
			for _, server := range servers {
				enabled := "disabled"
				if server.Enabled {
					enabled = "enabled"
				}
				fmt.Printf("%-16s %-24s %s (%s)\n",
					server.ID, server.Name, server.Command, enabled)
			}
			return nil
		})
	},
}

var mcpAddCmd = &cobra.Command{
	Use:   "add <id>",
	Short: "Add a server to the catalog",
	Long: `Add stores one server config. Without permission flags the
settings default applies.

Examples:
  spyglass mcp add files --command spyglass --args mcp,serve-fs,--root,/tmp --supervise
  spyglass mcp add notes --command notes-server --share-all --domain example.com`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		serverCfg := &mcp.ServerConfig{
			ID:         args[0],
			Name:       addName,
			Command:    addCommand,
			Args:       addArgs,
			Env:        addEnv,
			WorkingDir: addWorkingDir,
			Supervise:  addSupervise,
		}
		if serverCfg.Name == "" {
			serverCfg.Name = serverCfg.ID
		}
		if addShareAll {
			serverCfg.Permissions = pagecontext.AllGranted()
		}
		if len(addDomains) > 0 {
			serverCfg.Permissions.AllowedDomains = addDomains
		}

		return withService(cmd.Context(), func(ctx context.Context, svc *shell.Service) error {
			if err := svc.AddServer(ctx, serverCfg); err != nil {
				return err
			}
			fmt.Printf("Server %s added.\n", serverCfg.ID)
			return nil
		})
	},
}

var mcpRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Remove a server from the catalog",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd.Context(), func(ctx context.Context, svc *shell.Service) error {
			if err := svc.DeleteServer(ctx, args[0]); err != nil {
				return err
			}
			fmt.Printf("Server %s removed.\n", args[0])
			return nil
		})
	},
}

var mcpEnableCmd = &cobra.Command{
	Use:   "enable <id>",
	Short: "Enable a server",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return setEnabled(cmd, args[0], true) },
}

var mcpDisableCmd = &cobra.Command{
	Use:   "disable <id>",
	Short: "Disable a server",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return setEnabled(cmd, args[0], false) },
}

func setEnabled(cmd *cobra.Command, id string, enabled bool) error {
	return withService(cmd.Context(), func(ctx context.Context, svc *shell.Service) error {
		if err := svc.SetServerEnabled(ctx, id, enabled); err != nil {
			return err
		}
		state := "disabled"
		if enabled {
			state = "enabled"
		}
		fmt.Printf("Server %s %s.\n", id, state)
		return nil
	})
}

// withService runs one operation against a freshly built shell
// service and tears it down afterwards.
func withService(ctx context.Context, fn func(context.Context, *shell.Service) error) error {
	svc, err := shell.New(Cfg)
	if err != nil {
		return fmt.Errorf("failed to build shell service: %w", err)
	}
	defer func() { _ = svc.Cleanup(context.Background()) }()

	return fn(ctx, svc)
}

func init() {
	MCPCmd.AddCommand(mcpListCmd)
	MCPCmd.AddCommand(mcpAddCmd)
	MCPCmd.AddCommand(mcpRemoveCmd)
	MCPCmd.AddCommand(mcpEnableCmd)
	MCPCmd.AddCommand(mcpDisableCmd)
	MCPCmd.AddCommand(mcpConnectCmd)
	MCPCmd.AddCommand(mcpDisconnectCmd)
	MCPCmd.AddCommand(mcpToolsCmd)
	MCPCmd.AddCommand(mcpCallCmd)
	MCPCmd.AddCommand(mcpResourcesCmd)
	MCPCmd.AddCommand(mcpImportCmd)
	MCPCmd.AddCommand(mcpExportCmd)
	MCPCmd.AddCommand(mcpMonitorCmd)
	MCPCmd.AddCommand(mcpServeCmd)
	MCPCmd.AddCommand(mcpServeFSCmd)

	mcpAddCmd.Flags().StringVar(&addName, "name", "", "display name (default: id)")
	mcpAddCmd.Flags().StringVar(&addCommand, "command", "", "executable to launch")
	mcpAddCmd.Flags().StringSliceVar(&addArgs, "args", nil, "command arguments")
	mcpAddCmd.Flags().StringToStringVar(&addEnv, "env", nil, "extra environment variables (k=v)")
	mcpAddCmd.Flags().StringVar(&addWorkingDir, "workdir", "", "working directory")
	mcpAddCmd.Flags().BoolVar(&addSupervise, "supervise", false, "spawn and supervise the process")
	mcpAddCmd.Flags().BoolVar(&addShareAll, "share-all", false, "grant every context permission")
	mcpAddCmd.Flags().StringSliceVar(&addDomains, "domain", nil, "restrict context sharing to these domains")
	_ = mcpAddCmd.MarkFlagRequired("command")
}
