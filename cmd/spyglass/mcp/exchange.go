package mcp

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/spyglass-browser/spyglass/pkg/mcp"
	"github.com/spyglass-browser/spyglass/pkg/shell"
)

// catalogFile is the YAML document exchanged by import and export.
type catalogFile struct {
	Servers []*mcp.ServerConfig `yaml:"servers"`
}

var importSkipExisting bool

var mcpImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import servers from a YAML file",
	Long: `Import reads a YAML catalog and stores each server. Entries with
an ID already in the catalog are overwritten unless --skip-existing is
set.

Example file:
  servers:
    - id: files
      command: spyglass
      args: [mcp, serve-fs, --root, /tmp]
      supervise: true`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", args[0], err)
		}

		var catalog catalogFile
		if err := yaml.Unmarshal(data, &catalog); err != nil {
			return fmt.Errorf("failed to parse %s: %w", args[0], err)
		}
		if len(catalog.Servers) == 0 {
			return fmt.Errorf("%s contains no servers", args[0])
		}

		return withService(cmd.Context(), func(ctx context.Context, svc *shell.Service) error {
			imported := 0
			for _, serverCfg := range catalog.Servers {
				if importSkipExisting {
					if _, err := svc.Store().GetServerConfig(ctx, serverCfg.ID); err == nil {
						fmt.Printf("Skipping %s (already in catalog).\n", serverCfg.ID)
						continue
					}
				}
				if err := svc.AddServer(ctx, serverCfg); err != nil {
					return fmt.Errorf("failed to import %s: %w", serverCfg.ID, err)
				}
				imported++
			}
			fmt.Printf("Imported %d server(s).\n", imported)
			return nil
		})
	},
}

var exportOutput string

var mcpExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the server catalog as YAML",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd.Context(), func(ctx context.Context, svc *shell.Service) error {
			servers, err := svc.Store().ListServerConfigs(ctx)
			if err != nil {
				return fmt.Errorf("failed to list servers: %w", err)
			}

			data, err := yaml.Marshal(catalogFile{Servers: servers})
			if err != nil {
				return fmt.Errorf("failed to encode catalog: %w", err)
			}

			if exportOutput == "" || exportOutput == "-" {
				fmt.Print(string(data))
				return nil
			}
			if err := os.WriteFile(exportOutput, data, 0o644); err != nil {
				return fmt.Errorf("failed to write %s: %w", exportOutput, err)
			}
			fmt.Printf("Exported %d server(s) to %s.\n", len(servers), exportOutput)
			return nil
		})
	},
}

func init() {
	mcpImportCmd.Flags().BoolVar(&importSkipExisting, "skip-existing", false, "keep existing catalog entries untouched")
	mcpExportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "output file (default: stdout)")
}
