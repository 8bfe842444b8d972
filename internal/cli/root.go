// Package cli implements the sidekick command tree.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "0.3.0"

var rootCmd = &cobra.Command{
	Use:   "sidekick",
	Short: "Torn debt and loan ledger daemon",
	Long: `Sidekick tracks loans you have given and debts you owe in Torn,
accrues interest, reconciles the in-game transaction log against open
obligations, and serves the result to the browser overlay over a local
HTTP API.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the sidekick version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(os.Stdout, "sidekick %s\n", version)
	},
}
