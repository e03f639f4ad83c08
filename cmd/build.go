package cmd

import (
	"github.com/spf13/cobra"

	"marketdb/config"
	"marketdb/internal/metrics"
	"marketdb/internal/pipeline"
	"marketdb/internal/summary"
	"marketdb/logger"
	"marketdb/writer"
)

var (
	buildFull   bool
	buildDryRun bool
)

var buildCMD = &cobra.Command{
	Use:   "build [targets...]",
	Short: "Build pending steps, or the given targets and everything downstream of them",
	Long: `Runs the build steps that have not completed yet. Named targets are rebuilt
together with every target that depends on them. --full ignores the manifest
and rebuilds everything.`,
	RunE: runBuild,
}

func init() {
	buildCMD.Flags().BoolVar(&buildFull, "full", false, "Ignore the manifest and rebuild every step")
	buildCMD.Flags().BoolVar(&buildDryRun, "dry-run", false, "Print the steps that would run without running them")
}

func runBuild(cmd *cobra.Command, targets []string) error {
	ctx := cmd.Context()
	log := logger.GetLogger().WithComponent("cli")

	rec := metrics.NewRecorder()
	opts := []pipeline.EngineOption{
		pipeline.WithMetrics(rec),
		pipeline.WithOutput(cmd.OutOrStdout()),
	}
	if cfg.Storage.S3.Enabled && !buildDryRun {
		pub, err := writer.NewS3Publisher(ctx, cfg.Storage.S3, cfg.App.Version)
		if err != nil {
			return fail("create S3 publisher", err)
		}
		// A missed upload only fails the build where the bucket is the
		// source of truth.
		opts = append(opts, pipeline.WithPublisher(pub, config.IsProductionLike(config.AppEnvironment())))
	}

	eng := pipeline.NewEngine(*cfg, opts...)
	res, err := eng.Run(ctx, pipeline.Options{
		Targets: targets,
		Full:    buildFull,
		DryRun:  buildDryRun,
	})
	if path := cfg.Metrics.Textfile; path != "" && !buildDryRun {
		if werr := rec.WriteTextfile(path); werr != nil {
			log.WithError(werr).WithFields(logger.Fields{"path": path}).Warn("failed to write metrics textfile")
		}
	}
	if err != nil {
		log.WithError(err).Error("build failed")
		return err
	}
	if buildDryRun {
		return nil
	}

	log.WithFields(logger.Fields{
		"run_id": res.RunID,
		"steps":  len(res.Steps),
	}).Info("build finished")
	return summary.New(cfg.Paths.OutputDir, cmd.OutOrStdout()).Run(nil)
}
