package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/willibrandon/faultscope/internal/app"
	"github.com/willibrandon/faultscope/internal/config"
	"github.com/willibrandon/faultscope/internal/logger"
)

var (
	// Version info (set by ldflags)
	version = "dev"

	// Flags
	configPath string
	debug      bool
	jsonOutput bool
	noColor    bool
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCmd()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, app.FormatError(err))
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "faultscope",
		Short: "Search remote device logs over SSH",
		Long: `faultscope searches log files on a remote host over SSH and extracts
fault statistics from them.

Small corpora are downloaded over SFTP and searched locally; large ones are
filtered on the host with grep so only matching lines cross the network.

Commands:
  faultscope query PATH -k KEYWORD...   Search logs for keywords
  faultscope stats PATH FAULT_ID        Occurrence statistics for one fault
  faultscope scan BASE_PATH             Scan the latest snapshot for SetFunc faults
  faultscope guide FAULT_ID             Show troubleshooting guidance
  faultscope history                    Show recent queries
  faultscope cleanup                    Delete expired downloaded logs`,
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path (default ~/.config/faultscope/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print results as JSON")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(
		newQueryCmd(),
		newStatsCmd(),
		newScanCmd(),
		newGuideCmd(),
		newHistoryCmd(),
		newCleanupCmd(),
	)

	return rootCmd
}

// setup loads configuration and starts the file logger. The returned
// function flushes the logger and reports logged warnings.
func setup() (*config.Config, func(), error) {
	cfg, err := config.LoadFromPath(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	if debug {
		cfg.Debug = true
	}

	logLevel := slog.LevelInfo
	if cfg.Debug {
		logLevel = slog.LevelDebug
	}
	logger.InitLogger(logLevel, cfg.Log.File)
	if cfg.Debug {
		fmt.Fprintf(os.Stderr, "Debug mode: Logs written to %s\n", logger.LogPath)
	}
	logger.Debug("faultscope starting", "version", version, "config", configPath)

	configureColor()

	return cfg, func() {
		warns, errs := logger.Counts()
		if (warns > 0 || errs > 0) && !jsonOutput {
			fmt.Fprintf(os.Stderr, "%s\n", dimFormat(fmt.Sprintf("%d warning(s), %d error(s) logged to %s", warns, errs, logger.LogPath)))
		}
		logger.Close()
	}, nil
}
