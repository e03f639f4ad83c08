package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"marketdb/config"
	"marketdb/internal/metadata"
	"marketdb/internal/metrics"
	"marketdb/logger"
	"marketdb/writer"
)

// Publisher mirrors a committed table somewhere outside the output directory.
type Publisher interface {
	PublishTable(ctx context.Context, root string, table writer.TableFiles) error
}

// Options selects what a Run does.
type Options struct {
	Targets []string
	Full    bool
	DryRun  bool
}

// StepResult describes one executed step.
type StepResult struct {
	ID      string
	Target  string
	Elapsed time.Duration
	Files   []writer.FileInfo
}

// Result describes one Run.
type Result struct {
	RunID   string
	Planned []PlannedStep
	Steps   []StepResult
}

// Engine runs build steps against an output directory and records completed
// steps in its manifest.
type Engine struct {
	cfg       config.Config
	steps     Steps
	writer    *writer.TableWriter
	metrics   *metrics.Recorder
	publisher Publisher
	// publishFatal makes a failed upload fail the step instead of logging it.
	publishFatal bool
	out          io.Writer
	log          *logger.Log
}

// EngineOption customises an Engine.
type EngineOption func(*Engine)

// WithSteps replaces the default step list.
func WithSteps(steps Steps) EngineOption {
	return func(e *Engine) { e.steps = steps }
}

// WithPublisher publishes every committed table. When fatal is set a failed
// upload fails the build.
func WithPublisher(p Publisher, fatal bool) EngineOption {
	return func(e *Engine) {
		e.publisher = p
		e.publishFatal = fatal
	}
}

// WithMetrics records build counters into rec.
func WithMetrics(rec *metrics.Recorder) EngineOption {
	return func(e *Engine) { e.metrics = rec }
}

// WithOutput sets where plans are printed.
func WithOutput(w io.Writer) EngineOption {
	return func(e *Engine) { e.out = w }
}

func NewEngine(cfg config.Config, opts ...EngineOption) *Engine {
	e := &Engine{
		cfg:    cfg,
		steps:  DefaultSteps(),
		writer: writer.NewTableWriter(cfg.Paths.OutputDir, writer.OptionsFromConfig(cfg.Writer)),
		out:    os.Stdout,
		log:    logger.GetLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.metrics == nil {
		e.metrics = metrics.NewRecorder()
	}
	return e
}

func (e *Engine) Steps() Steps {
	return e.steps
}

func (e *Engine) Metrics() *metrics.Recorder {
	return e.metrics
}

// List prints every step with its status from the manifest.
func (e *Engine) List(w io.Writer) error {
	m, err := metadata.Load(e.cfg.Paths.OutputDir)
	if err != nil {
		return err
	}
	e.steps.List(w, m)
	return nil
}

// Run cleans stale artifacts, plans the steps and runs them in order. The
// manifest is saved after every successful step so a failure keeps the
// record of everything built before it.
func (e *Engine) Run(ctx context.Context, opts Options) (Result, error) {
	var res Result
	if err := e.steps.ValidateTargets(opts.Targets); err != nil {
		return res, err
	}

	outputDir := e.cfg.Paths.OutputDir
	if _, err := CleanupStale(outputDir); err != nil {
		return res, err
	}

	var m *metadata.Manifest
	if opts.Full {
		m = metadata.Empty(outputDir)
	} else {
		loaded, err := metadata.Load(outputDir)
		if err != nil {
			return res, err
		}
		m = loaded
	}

	res.Planned = e.steps.Plan(m, opts.Targets, opts.Full)
	log := e.log.WithComponent("build")
	if len(res.Planned) == 0 {
		log.Info("nothing to do, all steps up to date")
		return res, nil
	}
	if opts.DryRun {
		PrintPlan(e.out, res.Planned)
		return res, nil
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return res, fmt.Errorf("failed to create output directory %s: %w", outputDir, err)
	}

	res.RunID = metadata.NewRunID()
	env := &Env{
		Config:  e.cfg,
		Writer:  e.writer,
		Metrics: e.metrics,
		Log:     e.log,
		RunID:   res.RunID,
	}

	log.WithFields(logger.Fields{
		"run_id": res.RunID,
		"steps":  len(res.Planned),
		"full":   opts.Full,
	}).Info("running build")

	for _, p := range res.Planned {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		sr, err := e.runStep(ctx, env, m, p.Step)
		if err != nil {
			return res, err
		}
		res.Steps = append(res.Steps, sr)
	}

	log.WithFields(logger.Fields{"run_id": res.RunID}).Info("build complete")
	return res, nil
}

func (e *Engine) runStep(ctx context.Context, env *Env, m *metadata.Manifest, st Step) (StepResult, error) {
	log := e.log.WithComponent("build").WithFields(logger.Fields{
		"step":   st.ID,
		"target": st.Target,
		"run_id": env.RunID,
	})
	log.Info("step started")

	start := time.Now()
	table, err := st.Run(ctx, env)
	if err == nil && e.publisher != nil {
		if perr := e.publisher.PublishTable(ctx, env.Root(), table); perr != nil {
			if e.publishFatal {
				err = fmt.Errorf("publish %s: %w", table.Name, perr)
			} else {
				log.WithError(perr).Warn("failed to publish table, continuing")
			}
		}
	}
	elapsed := time.Since(start)
	e.metrics.StepFinished(st.ID, elapsed, err)

	if err != nil {
		log.WithError(err).Error("step failed")
		return StepResult{}, fmt.Errorf("step %s: %w", st.ID, err)
	}

	m.Record(st.ID, metadata.StepRecord{
		Target:         st.Target,
		CompletedAt:    time.Now().UTC(),
		ElapsedSeconds: roundTenth(elapsed.Seconds()),
		RunID:          env.RunID,
		Files:          dataFiles(table),
	})
	if err := m.Save(); err != nil {
		return StepResult{}, fmt.Errorf("step %s: %w", st.ID, err)
	}

	logger.LogStepDuration(log, "build", st.ID, elapsed, logger.Fields{"files": len(table.Files)})
	return StepResult{ID: st.ID, Target: st.Target, Elapsed: elapsed, Files: table.Files}, nil
}

func roundTenth(v float64) float64 {
	return float64(int64(v*10+0.5)) / 10
}

// dataFiles converts committed files into manifest entries. Partitioned files
// carry their year.
func dataFiles(table writer.TableFiles) []metadata.DataFile {
	out := make([]metadata.DataFile, 0, len(table.Files))
	for _, f := range table.Files {
		df := metadata.DataFile{Path: f.Path, FileSize: f.Bytes, RecordCount: f.Rows}
		for _, part := range strings.Split(f.Path, "/") {
			if y, ok := writer.ParseYearDir(part); ok {
				df.Partition = map[string]any{"year": y}
			}
		}
		out = append(out, df)
	}
	return out
}
