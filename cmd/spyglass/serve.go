package spyglass

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/spyglass-browser/spyglass/api"
	"github.com/spyglass-browser/spyglass/pkg/log"
	"github.com/spyglass-browser/spyglass/pkg/shell"
)

var (
	servePort int
	serveHost string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the shell service and its boundary API",
	Long: `Serve runs the full shell backend: the MCP connection manager, the
context manager, the retention scheduler and the HTTP/WebSocket API
the UI process talks to.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		host := serveHost
		if host == "" {
			host = cfg.Server.Host
		}
		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		svc, err := shell.New(cfg)
		if err != nil {
			return fmt.Errorf("failed to build shell service: %w", err)
		}

		apiConfig := api.DefaultConfig()
		apiConfig.Host = host
		apiConfig.Port = port
		apiConfig.AllowedOrigins = cfg.Server.CORSOrigins
		apiConfig.EnableWS = cfg.Server.EnableWS
		apiConfig.EnableMetrics = cfg.Server.EnableMetrics
		server := api.NewServer(apiConfig, svc)

		ctx, stop := signal.NotifyContext(cmd.Context(),
			syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := svc.Start(ctx); err != nil {
			_ = svc.Cleanup(context.Background())
			return fmt.Errorf("failed to start shell service: %w", err)
		}

		g, ctx := errgroup.WithContext(ctx)
		g.Go(server.Start)
		g.Go(func() error {
			<-ctx.Done()
			log.Info("shutting down")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if err := server.Shutdown(shutdownCtx); err != nil {
				log.Warn("api shutdown failed", "error", err)
			}
			return svc.Cleanup(shutdownCtx)
		})

		return g.Wait()
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "API port (default from config)")
	serveCmd.Flags().StringVar(&serveHost, "host", "", "API host (default from config)")
}
