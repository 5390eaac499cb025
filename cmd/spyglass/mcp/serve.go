package mcp

import (
	"fmt"

	"github.com/mark3labs/mcp-filesystem-server/filesystemserver"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/spyglass-browser/spyglass/pkg/mcp/server"
	"github.com/spyglass-browser/spyglass/pkg/pagecontext"
	"github.com/spyglass-browser/spyglass/pkg/store"
)

var mcpServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the spyglass MCP server over stdio",
	Long: `Serve exposes the shell's history and page context as MCP tools
over stdio, so other MCP clients can query this browser's data.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := store.New(Cfg.Store.DBPath)
		if err != nil {
			return fmt.Errorf("failed to open store: %w", err)
		}
		defer func() { _ = st.Close() }()

		srv := server.New(st, pagecontext.NewManager())
		return srv.ServeStdio()
	},
}

var serveFSRoot string

var mcpServeFSCmd = &cobra.Command{
	Use:   "serve-fs",
	Short: "Run a filesystem MCP server over stdio",
	Long: `Serve-fs runs a filesystem MCP server restricted to --root. It is
handy as a supervised tool server:

  spyglass mcp add files --command spyglass --args mcp,serve-fs,--root,/tmp --supervise`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if serveFSRoot == "" {
			return fmt.Errorf("--root is required")
		}

		fss, err := filesystemserver.NewFilesystemServer([]string{serveFSRoot})
		if err != nil {
			return fmt.Errorf("failed to build filesystem server: %w", err)
		}
		return mcpserver.ServeStdio(fss)
	},
}

func init() {
	mcpServeFSCmd.Flags().StringVar(&serveFSRoot, "root", "", "directory the server may access")
	_ = mcpServeFSCmd.MarkFlagRequired("root")
}
