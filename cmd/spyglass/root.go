// Package spyglass implements the shell's command line interface.
package spyglass

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spyglass-browser/spyglass/cmd/spyglass/mcp"
	"github.com/spyglass-browser/spyglass/internal/config"
	"github.com/spyglass-browser/spyglass/pkg/log"
)

var (
	cfgFile string
	verbose bool
	quiet   bool
	cfg     *config.Config
	version = "dev"
)

var RootCmd = &cobra.Command{
	Use:   "spyglass",
	Short: "Spyglass - browser shell backend",
	Long: `Spyglass is the backend of a desktop browser shell: local browsing
history, a command-style assistant, and a supervised integration layer
for external MCP tool servers speaking newline-delimited JSON-RPC over
stdio.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Commands that create or print config run without one.
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		switch {
		case verbose:
			log.SetDebug(true)
		case quiet:
			log.SetLevelString("error")
		default:
			log.SetLevelString(cfg.LogLevel)
		}

		mcp.SetSharedVariables(cfg, verbose, quiet)
		return nil
	},
}

func Execute() error {
	return RootCmd.Execute()
}

// GetRootCmd returns the root cobra command.
func GetRootCmd() *cobra.Command {
	return RootCmd
}

// SetVersion sets the version reported by the CLI.
func SetVersion(v string) {
	version = v
	RootCmd.Version = v
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("Spyglass version %s\n", version)
	},
}

func init() {
	RootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "configuration file path (default: ./config.toml or ~/.spyglass/config.toml)")
	RootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging output")
	RootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "quiet mode")

	RootCmd.AddCommand(versionCmd)
	RootCmd.AddCommand(initCmd)
	RootCmd.AddCommand(serveCmd)
	RootCmd.AddCommand(statusCmd)
	RootCmd.AddCommand(historyCmd)
	RootCmd.AddCommand(askCmd)
	RootCmd.AddCommand(mcp.MCPCmd)
}
