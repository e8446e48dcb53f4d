// Package cli implements the weaverd command tree.
package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "weaverd",
	Short: "Deterministic control loop for layered system state",
	Long: "weaverd observes state pushed by external layers, selects at most one\n" +
		"corrective action per cycle from a configured catalog, dispatches it through\n" +
		"an adapter, verifies the effect on a deadline, and rolls back on failure.\n" +
		"Every decision is recorded in tamper-evident append-only logs.",
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
