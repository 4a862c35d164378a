package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kailas-cloud/asynccts"
)

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Remove stale active searches and expired results",
	Long: `Removes every active search of the configured service id and reclaims
expired results. Stop all servers of the same service id first: their running
searches would be forgotten.`,
	Args: cobra.NoArgs,
	RunE: runPurge,
}

func init() {
	rootCmd.AddCommand(purgeCmd)
}

func runPurge(cmd *cobra.Command, _ []string) error {
	report, err := asynccts.Purge(cmd.Context(), configOptions()...)
	if err != nil {
		return fmt.Errorf("purge failed: %w", err)
	}
	cmd.Printf("Removed %d active searches and %d expired results.\n", report.Active, report.Expired)
	return nil
}
