// Package cli wires the evalloop commands: the evaluation loop itself
// and the session-file tooling around it.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/evalloop/evalloop/internal/config"
	"github.com/evalloop/evalloop/internal/logging"
)

// Version is stamped by the release build.
var Version = "dev"

// Shared CLI flags
var (
	cfgFile string
	verbose bool
)

// Execute builds the command tree and runs it.
func Execute() error {
	rootCmd := &cobra.Command{
		Use:   "evalloop",
		Short: "Evaluation loop for cited ChatGPT answers",
		Long: `evalloop automates querying ChatGPT for answers with citations.

It drives a pool of pre-authenticated browser sessions, retries
citation-less answers within a bounded budget, rotates sessions on
usage thresholds and auth expiry, and persists every outcome.

Prompts come from a CSV file (optionally tailed for appended rows) or
from a remote evaluation API; results go to a grouped JSON file, a
local SQLite history, or back to the API.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose {
				logging.SetDebug(true)
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.evalloop/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(RunCmd())
	rootCmd.AddCommand(SessionsCmd())

	return rootCmd.Execute()
}

func loadConfig() (*config.Config, error) {
	if cfgFile != "" {
		return config.LoadFrom(cfgFile)
	}
	return config.Load()
}
