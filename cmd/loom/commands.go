package main

import (
	"github.com/spf13/cobra"
)

// buildServeCmd creates the "serve" command that starts the Loom server:
// the synchronous HTTP surface, the streaming endpoint, and the
// turn-processing worker pool that drains the task queue.
func buildServeCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Loom server",
		Long: `Start the Loom server.

The server will:
1. Load configuration from the specified file (or loom.yaml)
2. Connect to the configured store (Postgres, or in-memory if no database.url is set)
3. Register the configured backend drivers
4. Start worker goroutines that lease and process queued turns
5. Serve the HTTP API and the streaming endpoint

Graceful shutdown is handled on SIGINT/SIGTERM signals.`,
		Example: `  # Start with default config
  loom serve

  # Start with custom config
  loom serve --config /etc/loom/production.yaml

  # Start with debug logging
  loom serve --debug`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath, debug)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "loom.yaml", "Path to YAML configuration file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging (verbose output)")

	return cmd
}
