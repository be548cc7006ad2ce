package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath string
	verbose    bool
	jsonOutput bool
)

// build metadata, captured by Execute for subcommands that print it.
var buildVersion = "dev"

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	buildVersion = version
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "agentry",
		Short: "Agentry - Heterogeneous Agent Dispatch Engine",
		Long: `Agentry routes typed requests to specialized agents and records every
execution in a durable audit trail.

Features:
  - Category-keyed agent registry
  - Full execution audit trail in SQLite
  - Concurrent fan-out with per-request isolation
  - Confidence scoring and human-review gating
  - Prometheus metrics and OpenTelemetry tracing`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	rootCmd.AddCommand(newDispatchCommand())
	rootCmd.AddCommand(newBatchCommand())
	rootCmd.AddCommand(newHistoryCommand())
	rootCmd.AddCommand(newAgentsCommand())
	rootCmd.AddCommand(newSeedCommand())

	return rootCmd
}
