// Package main provides the CLI entry point for Loom, the agentic
// conversation engine: load configuration, wire the storage/driver/tool
// stack, and serve the HTTP and streaming surfaces until a shutdown signal
// arrives.
//
// # Basic Usage
//
// Start the server:
//
//	loom serve --config loom.yaml
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information, populated by ldflags during build.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "loom",
		Short:        "Loom - agentic conversation engine",
		Long:         `Loom drives one model turn at a time for a conversation: assembling the prompt, calling a backend driver, dispatching any tool calls, and advancing the conversation's state.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}
	rootCmd.AddCommand(buildServeCmd())
	return rootCmd
}
