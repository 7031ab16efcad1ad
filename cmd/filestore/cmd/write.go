package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/flashbackbot/filestore"
)

var writeCmd = &cobra.Command{
	Use:   "write <path>",
	Short: "Write a file",
	Long: "Write --data or stdin to a file. --mode takes w (overwrite), a (append) " +
		"or x (create if absent), with a b suffix for binary content.",
	Args: cobra.ExactArgs(1),
	RunE: runWrite,
}

func init() {
	writeCmd.Flags().StringP("mode", "m", "w", "write mode: w, a, x, optionally followed by b")
	writeCmd.Flags().StringP("data", "d", "", "content to write (default: read stdin)")
	rootCmd.AddCommand(writeCmd)
}

func runWrite(cmd *cobra.Command, args []string) error {
	ms, _ := cmd.Flags().GetString("mode")
	mode, err := filestore.ParseMode(ms)
	if err != nil {
		return err
	}

	var raw []byte
	if cmd.Flags().Changed("data") {
		s, _ := cmd.Flags().GetString("data")
		raw = []byte(s)
	} else if raw, err = io.ReadAll(cmd.InOrStdin()); err != nil {
		return fmt.Errorf("read stdin: %w", err)
	}

	content := filestore.Text(string(raw))
	if mode.IsBinary() {
		content = filestore.Bytes(raw)
	}
	return withStorage(cmd, func(ctx context.Context, st filestore.Storage) error {
		return st.Write(ctx, args[0], content, mode)
	})
}
