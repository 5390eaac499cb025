package spyglass

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/spyglass-browser/spyglass/pkg/shell"
)

var askCmd = &cobra.Command{
	Use:   "ask <text>",
	Short: "Run one assistant query",
	Long: `Ask runs one assistant command and prints the response.

Examples:
  spyglass ask "history go blog"
  spyglass ask "servers"
  spyglass ask "call files read {\"path\": \"README.md\"}"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := shell.New(cfg)
		if err != nil {
			return fmt.Errorf("failed to build shell service: %w", err)
		}
		defer func() { _ = svc.Cleanup(context.Background()) }()

		resp, err := svc.ProcessQuery(cmd.Context(), strings.Join(args, " "))
		if err != nil {
			return fmt.Errorf("query failed: %w", err)
		}

		fmt.Println(resp.Text)
		if resp.Action != "" {
			fmt.Printf("(action: %s %v)\n", resp.Action, resp.Data)
		}
		return nil
	},
}
