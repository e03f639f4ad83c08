package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"marketdb/config"
	"marketdb/logger"
)

var (
	configPath string
	cfg        *config.Config
)

var rootCMD = &cobra.Command{
	Use:   "marketdb",
	Short: "Market data parquet store builder",
	Long: `Builds a columnar store of hourly prices, daily and multi-day rollups,
market capitalization and insider trades from raw market data feeds.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

// Execute runs the CLI until it finishes or the process is interrupted.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCMD.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func init() {
	rootCMD.PersistentFlags().StringVar(&configPath, "config", config.DefaultConfigPath, "Path to configuration file")
	rootCMD.AddCommand(buildCMD, listCMD, summaryCMD)
}

// setup loads the configuration and configures logging and metrics sinks
// before any subcommand runs.
func setup(cmd *cobra.Command, _ []string) error {
	log := logger.GetLogger()

	path := config.ResolveConfigPath(configPath)
	loaded, err := config.LoadConfig(path)
	if err != nil {
		log.WithError(err).WithFields(logger.Fields{"path": path}).Error("failed to load configuration")
		return err
	}
	cfg = loaded

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("failed to configure logger")
		return err
	}

	ctx := cmd.Context()
	if strings.ToLower(cfg.Logging.Level) == "report" {
		logger.StartReport(ctx, log, 30*time.Second)
	}
	if cfg.Metrics.CloudWatch.Enabled {
		cw := cfg.Metrics.CloudWatch
		logger.InitCloudWatch(ctx, cw.Region, cw.Namespace, cw.Dashboard)
	}

	log.WithEnv("APP_ENV").WithFields(logger.Fields{
		"service": cfg.App.Name,
		"version": cfg.App.Version,
		"config":  path,
		"command": cmd.Name(),
	}).Info("starting marketdb")
	return nil
}

func fail(format string, err error) error {
	return fmt.Errorf(format+": %w", err)
}
