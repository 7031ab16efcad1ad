package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/flashbackbot/filestore"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Print a valid access token",
	Long:  "Print the backend access token, refreshing it first if it has expired. Local and S3 print an empty line.",
	Args:  cobra.NoArgs,
	RunE:  runToken,
}

func init() {
	rootCmd.AddCommand(tokenCmd)
}

func runToken(cmd *cobra.Command, _ []string) error {
	return withStorage(cmd, func(ctx context.Context, st filestore.Storage) error {
		tok, err := st.Token(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	})
}
