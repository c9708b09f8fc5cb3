// Package cli implements the cardsentry command tree.
package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "cardsentry",
	Short: "Fraud-alert triage for a card-issuing support desk",
	Long:  "Runs flagged card transactions through a staged triage pipeline:\ncontext assembly, deterministic risk scoring, knowledge-base lookup,\nand decision synthesis, with a hash-chained trace of every stage.",
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
