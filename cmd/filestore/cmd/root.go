package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/flashbackbot/filestore"
	"github.com/flashbackbot/filestore/internal/config"
	"github.com/flashbackbot/filestore/internal/metrics"
)

var v = config.New()

var rootCmd = &cobra.Command{
	Use:   "filestore",
	Short: "Read and write files on local disk, Dropbox or S3",
	Long: "CLI for the filestore storage layer. The backend is chosen by FILE_STORAGE " +
		"(local, dropbox, aws) or --backend; settings come from .env, the environment " +
		"and ~/.config/filestore/config.yaml.",
	SilenceUsage:      true,
	PersistentPreRunE: initConfig,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "config file (default: ~/.config/filestore/config.yaml)")
	pf.String("env-file", "", "dotenv file to load (default: .env)")
	pf.String("backend", "", "storage backend: local, dropbox or aws")
	pf.String("base-path", "", "root directory of the local backend")
	pf.Bool("cache", true, "keep remote writes in memory until exit")
	pf.String("log-level", "", "log level: debug, info, warn, error")
	pf.Bool("metrics", false, "print storage metrics to stderr on exit")

	_ = v.BindPFlag(config.KeyBackend, pf.Lookup("backend"))
	_ = v.BindPFlag(config.KeyBasePath, pf.Lookup("base-path"))
	_ = v.BindPFlag(config.KeyUseCache, pf.Lookup("cache"))
	_ = v.BindPFlag(config.KeyLogLevel, pf.Lookup("log-level"))
}

func initConfig(cmd *cobra.Command, _ []string) error {
	var envFiles []string
	if f, _ := cmd.Flags().GetString("env-file"); f != "" {
		envFiles = append(envFiles, f)
	}
	if err := config.LoadDotEnv(envFiles...); err != nil {
		return fmt.Errorf("load env file: %w", err)
	}
	file, _ := cmd.Flags().GetString("config")
	if err := config.ReadFile(v, file); err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func newLogger(cmd *cobra.Command) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(v.GetString(config.KeyLogLevel)))); err != nil {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}

// openOptions builds the Open options shared by all commands. The returned
// function prints metrics when --metrics is set.
func openOptions(cmd *cobra.Command) ([]filestore.OpenOption, func()) {
	opts := []filestore.OpenOption{
		filestore.WithLogger(newLogger(cmd)),
	}
	report := func() {}
	if on, _ := cmd.Flags().GetBool("metrics"); on {
		reg := prometheus.NewRegistry()
		opts = append(opts, filestore.WithMetrics(reg))
		report = func() {
			if err := metrics.WriteText(cmd.ErrOrStderr(), reg); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "write metrics: %v\n", err)
			}
		}
	}
	return opts, report
}

// withStorage opens the configured backend, runs fn and flushes on return.
func withStorage(cmd *cobra.Command, fn func(ctx context.Context, st filestore.Storage) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	opts, report := openOptions(cmd)
	defer report()
	return filestore.Run(ctx, config.Storage(v), func(st filestore.Storage) error {
		return fn(ctx, st)
	}, opts...)
}
