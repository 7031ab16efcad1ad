package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/flashbackbot/filestore"
)

var existsCmd = &cobra.Command{
	Use:   "exists <path>",
	Short: "Report whether a file exists",
	Args:  cobra.ExactArgs(1),
	RunE:  runExists,
}

var sizeCmd = &cobra.Command{
	Use:   "size <path>",
	Short: "Print the size of a file in bytes",
	Long:  "Print the size of a file in bytes. Files that cannot be inspected report 0.",
	Args:  cobra.ExactArgs(1),
	RunE:  runSize,
}

var mkdirCmd = &cobra.Command{
	Use:   "mkdir <path>",
	Short: "Create a directory and its parents",
	Args:  cobra.ExactArgs(1),
	RunE:  runMkdir,
}

func init() {
	rootCmd.AddCommand(existsCmd, sizeCmd, mkdirCmd)
}

func runExists(cmd *cobra.Command, args []string) error {
	return withStorage(cmd, func(ctx context.Context, st filestore.Storage) error {
		ok, err := st.Exists(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), ok)
		return nil
	})
}

func runSize(cmd *cobra.Command, args []string) error {
	return withStorage(cmd, func(ctx context.Context, st filestore.Storage) error {
		n, err := st.Size(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), n)
		return nil
	})
}

func runMkdir(cmd *cobra.Command, args []string) error {
	return withStorage(cmd, func(ctx context.Context, st filestore.Storage) error {
		return st.MakeDirs(ctx, args[0])
	})
}
