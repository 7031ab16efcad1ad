package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/flashbackbot/filestore"
)

var readCmd = &cobra.Command{
	Use:   "read <path>",
	Short: "Print a file",
	Long:  "Read a file from the configured backend and write it to stdout.",
	Args:  cobra.ExactArgs(1),
	RunE:  runRead,
}

func init() {
	readCmd.Flags().BoolP("binary", "b", false, "read raw bytes")
	rootCmd.AddCommand(readCmd)
}

func runRead(cmd *cobra.Command, args []string) error {
	mode := filestore.ReadText
	if b, _ := cmd.Flags().GetBool("binary"); b {
		mode = filestore.ReadBinary
	}
	return withStorage(cmd, func(ctx context.Context, st filestore.Storage) error {
		c, err := st.Read(ctx, args[0], mode)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(c.Bytes())
		return err
	})
}
