// Package cmd implements the prva command line interface.
package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/prvlabs/prva/internal/log"
)

var rootCmd = &cobra.Command{
	Use:   "prva",
	Short: "prva - pressure relief valve knowledge assistant",
	Long: `prva answers engineering questions about pressure relief valves,
grounded in an ingested knowledge base of manuals, repair logs, uploads
and crawled vendor documentation.

Running prva without a subcommand starts the interactive chat.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat(cmd, args)
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// newLogger builds the process logger. DEBUG enables debug level;
// PRVA_LOG_JSON switches to JSON output for containers.
func newLogger() log.Logger {
	cfg := log.Config{Level: slog.LevelInfo}
	if os.Getenv("DEBUG") != "" {
		cfg.Level = slog.LevelDebug
	}
	if os.Getenv("PRVA_LOG_JSON") != "" {
		cfg.JSON = true
	}
	logger := log.New(cfg)
	slog.SetDefault(logger)
	return logger
}
