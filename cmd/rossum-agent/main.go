// Package main provides the CLI entry point for the Rossum agent service.
//
// Start the server:
//
//	rossum-agent serve --config rossum-agent.yaml
//
// Every configuration key can be overridden through ROSSUM_AGENT_*
// environment variables, e.g. ROSSUM_AGENT_MODEL_API_KEY or
// ROSSUM_AGENT_API_TOKEN. ROSSUM_AGENT_CONFIG sets the default --config path.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information, populated by ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "rossum-agent",
		Short: "Conversational agent for the Rossum platform",
		Long: `rossum-agent serves a tool-using LLM agent over HTTP.

Each conversation runs at most one agent loop at a time; progress is
streamed to the client as server-sent events.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildServeCmd(),
		buildConfigCmd(),
	)

	return rootCmd
}
