package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/flashbackbot/filestore"
)

var rmCmd = &cobra.Command{
	Use:   "rm <path>...",
	Short: "Delete files",
	Long:  "Delete files. Missing files are reported in the log, not as errors.",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runRm,
}

func init() {
	rootCmd.AddCommand(rmCmd)
}

func runRm(cmd *cobra.Command, args []string) error {
	return withStorage(cmd, func(ctx context.Context, st filestore.Storage) error {
		for _, p := range args {
			if err := st.Delete(ctx, p); err != nil {
				return err
			}
		}
		return nil
	})
}
