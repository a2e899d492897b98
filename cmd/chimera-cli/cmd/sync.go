package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"chimera/internal/application/commands"
)

var syncMode string

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Reconcile the index with the document source",
	Long: `Run one reconciliation pass and print its report.

auto picks full when no full sync has completed, when deletions from an
interrupted full run are pending, or when the daily full window has passed;
otherwise incremental. Only a full sync removes deleted documents.

Examples:
  chimera-cli sync
  chimera-cli sync --mode full
  chimera-cli sync --root ~/notes --mode incremental`,
	Args: cobra.NoArgs,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return chimera.SyncCommand(syncMode).Validate()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := chimera.SyncCommand(syncMode).Execute(cmd.Context())
		if result != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "[%s] %s\n", result.Mode, result.Message)
		}
		return err
	},
}

func init() {
	syncCmd.Flags().StringVarP(&syncMode, "mode", "m", commands.ModeAuto, "auto, incremental or full")
	rootCmd.AddCommand(syncCmd)
}
