package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spyglass-browser/spyglass/pkg/mcp"
	"github.com/spyglass-browser/spyglass/pkg/shell"
)

var mcpConnectCmd = &cobra.Command{
	Use:   "connect <id>",
	Short: "Connect a cataloged server and report its tools",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd.Context(), func(ctx context.Context, svc *shell.Service) error {
			id := args[0]
			ok, err := svc.ConnectByID(ctx, id)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("failed to connect server %s", id)
			}

			fmt.Printf("Server %s connected.\n", id)
			tools, err := svc.DiscoverTools(ctx, id)
			if err != nil {
				return fmt.Errorf("tool discovery failed: %w", err)
			}
			for _, tool := range tools {
				fmt.Printf("  %-32s %s\n", tool.Name, tool.Description)
			}
			return nil
		})
	},
}

var mcpDisconnectCmd = &cobra.Command{
	Use:   "disconnect <id>",
	Short: "Disconnect a server",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd.Context(), func(ctx context.Context, svc *shell.Service) error {
			if err := svc.Disconnect(ctx, args[0]); err != nil {
				return err
			}
			fmt.Printf("Server %s disconnected.\n", args[0])
			return nil
		})
	},
}

var mcpToolsCmd = &cobra.Command{
	Use:   "tools <id>",
	Short: "List a server's tools",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd.Context(), func(ctx context.Context, svc *shell.Service) error {
			id := args[0]
			if ok, err := svc.ConnectByID(ctx, id); err != nil {
				return err
			} else if !ok {
				return fmt.Errorf("failed to connect server %s", id)
			}

			tools, err := svc.DiscoverTools(ctx, id)
			if err != nil {
				return err
			}
			if len(tools) == 0 {
				fmt.Println("No tools available.")
				return nil
			}
			for _, tool := range tools {
				fmt.Printf("%-32s %s\n", tool.Name, tool.Description)
			}
			return nil
		})
	},
}

var callJSON bool

var mcpCallCmd = &cobra.Command{
	Use:   "call <id> <tool> [json-args]",
	Short: "Invoke one tool on a cataloged server",
	Long: `Call connects the server, invokes the tool once and prints the
result.

Examples:
  spyglass mcp call files read_file '{"path": "README.md"}'
  spyglass mcp call shell history_search '{"query": "golang"}'`,
	Args: cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		params := map[string]interface{}{}
		if len(args) > 2 {
			if err := json.Unmarshal([]byte(args[2]), &params); err != nil {
				return fmt.Errorf("invalid tool arguments: %w", err)
			}
		}

		return withService(cmd.Context(), func(ctx context.Context, svc *shell.Service) error {
			id := args[0]
			if ok, err := svc.ConnectByID(ctx, id); err != nil {
				return err
			} else if !ok {
				return fmt.Errorf("failed to connect server %s", id)
			}

			result := svc.CallTool(ctx, &mcp.ToolCall{
				ServerID: id,
				ToolName: args[1],
				Params:   params,
			})

			if callJSON {
				data, err := json.MarshalIndent(result, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(data))
				return nil
			}

			if !result.Success {
				return fmt.Errorf("tool call failed: %s", result.Error)
			}
			fmt.Printf("%v\n", result.Data)
			return nil
		})
	},
}

var mcpResourcesCmd = &cobra.Command{
	Use:   "resources <id>",
	Short: "List a server's resources",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd.Context(), func(ctx context.Context, svc *shell.Service) error {
			id := args[0]
			if ok, err := svc.ConnectByID(ctx, id); err != nil {
				return err
			} else if !ok {
				return fmt.Errorf("failed to connect server %s", id)
			}

			resources, err := svc.ListResources(ctx, id)
			if err != nil {
				return err
			}
			if len(resources) == 0 {
				fmt.Println("No resources available.")
				return nil
			}
			for _, resource := range resources {
				fmt.Printf("%-40s %s\n", resource.URI, resource.Name)
			}
			return nil
		})
	},
}

func init() {
	mcpCallCmd.Flags().BoolVarP(&callJSON, "json", "j", false, "output result as JSON")
}
