package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/shizukutanaka/seccollector/internal/collector"
	"github.com/shizukutanaka/seccollector/internal/config"
	"github.com/shizukutanaka/seccollector/internal/logging"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the collector",
	Long: `Run the collector until interrupted.

Examples:
  # Run with the default config
  seccollector run

  # Run as a service with JSON logs written to a rotated file
  seccollector run --config /etc/seccollector/config.yaml --daemon --log-file /var/log/seccollector.log`,
	RunE: runCollector,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().Bool("daemon", false, "Log JSON for a service manager instead of colored console output")
	runCmd.Flags().String("log-file", "", "Also write logs to this file (overrides logging.file)")
	runCmd.Flags().String("pid-file", "", "Write the process id to this file")
}

func runCollector(cmd *cobra.Command, args []string) error {
	isDaemon, _ := cmd.Flags().GetBool("daemon")
	logFile, _ := cmd.Flags().GetString("log-file")
	pidFile, _ := cmd.Flags().GetString("pid-file")

	bootstrap, err := logging.New(logging.Options{Level: "info", Daemon: isDaemon})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	// an invalid file is logged by the manager and the defaults are used
	manager, _ := config.NewManager(bootstrap.Logger, cfgFile)
	cfg := manager.Get()

	if logFile == "" {
		logFile = cfg.Logging.File
	}
	logger, err := logging.New(logging.Options{
		Level:      cfg.Logging.Level,
		File:       logFile,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   true,
		Daemon:     isDaemon,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync()

	manager.OnChange(func(c *config.Config) {
		if err := logger.SetLevel(c.Logging.Level); err != nil {
			logger.Warn("Ignoring log level change", zap.String("level", c.Logging.Level), zap.Error(err))
		}
	})

	if pidFile != "" {
		if err := os.WriteFile(pidFile, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644); err != nil {
			logger.Warn("Failed to write PID file", zap.String("path", pidFile), zap.Error(err))
		} else {
			defer os.Remove(pidFile)
		}
	}

	c, err := collector.New(logger.Named("collector"), manager, collector.Options{Version: Version})
	if err != nil {
		return fmt.Errorf("failed to create collector: %w", err)
	}
	defer func() {
		logging.LogIf(logger.Logger, c.Close(), "Failed to close collector")
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("Starting seccollector",
		zap.String("version", Version),
		zap.String("config", cfgFile),
		zap.Bool("daemon", isDaemon),
	)
	if err := c.Run(ctx); err != nil {
		return err
	}
	logger.Info("seccollector stopped")
	return nil
}
