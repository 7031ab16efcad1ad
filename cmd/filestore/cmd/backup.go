package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/flashbackbot/filestore"
	"github.com/flashbackbot/filestore/internal/config"
)

var backupCmd = &cobra.Command{
	Use:   "backup <dir>",
	Short: "Mirror remote files into a local directory",
	Long: "Download every remote file under --prefix into dir. Files whose local copy " +
		"is at least as new as the remote one are skipped.",
	Args: cobra.ExactArgs(1),
	RunE: runBackup,
}

func init() {
	f := backupCmd.Flags()
	f.String("prefix", "", "only mirror files under this remote folder; it is stripped locally")
	f.Bool("compress", false, "store copies as zstd (.zst)")
	f.Int("level", 2, "zstd level, 1 (fastest) to 3 (best)")
	f.Int("concurrency", 4, "parallel downloads")
	rootCmd.AddCommand(backupCmd)
}

func runBackup(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	f := cmd.Flags()
	prefix, _ := f.GetString("prefix")
	compress, _ := f.GetBool("compress")
	level, _ := f.GetInt("level")
	concurrency, _ := f.GetInt("concurrency")

	opts, report := openOptions(cmd)
	defer report()
	stats, err := filestore.Backup(ctx, config.Storage(v), filestore.BackupOptions{
		Dir:         args[0],
		Prefix:      prefix,
		Compress:    compress,
		Level:       level,
		Concurrency: concurrency,
	}, opts...)
	fmt.Fprintf(cmd.OutOrStdout(), "%d/%d local files were already up to date, %d downloaded, %d API calls\n",
		stats.UpToDate, stats.Existing, stats.Downloaded, stats.Calls)
	return err
}
