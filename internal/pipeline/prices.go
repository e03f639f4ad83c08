package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"marketdb/logger"
	"marketdb/models"
	"marketdb/processor"
	"marketdb/reader"
	"marketdb/writer"
)

const fragmentsDir = "_prices_temp_fragments"

type archiveJob struct {
	index  int
	path   string
	source models.Source
}

// fragmentName keeps fragments of one year in archive order when sorted by
// name: stock archives first, then ETF archives, each by file name.
func fragmentName(job archiveJob) string {
	stem := strings.TrimSuffix(filepath.Base(job.path), filepath.Ext(job.path))
	return fmt.Sprintf("%05d_%s_%s.parquet", job.index, job.source, stem)
}

// priceBuild holds the counters shared by the workers of one prices build.
type priceBuild struct {
	env    *Env
	merger *processor.PriceMerger
	frags  string

	mu    sync.Mutex
	drops processor.DropStats
	scan  reader.ScanStats
}

func (b *priceBuild) addDrops(d processor.DropStats) {
	b.mu.Lock()
	b.drops.Merge(d)
	b.mu.Unlock()
}

// buildPrices runs in two passes. Pass 1 reads every archive and writes the
// admitted bars as per-year fragments. Pass 2 merges the fragments of each
// year into one sorted, deduplicated partition.
func buildPrices(ctx context.Context, env *Env) (writer.TableFiles, error) {
	registry, err := loadRegistry(env)
	if err != nil {
		return writer.TableFiles{}, err
	}
	b := &priceBuild{
		env: env,
		merger: processor.NewPriceMerger(registry, processor.MergerOptions{
			HoursStart: env.Config.Build.RegularHoursStart,
			HoursEnd:   env.Config.Build.RegularHoursEnd,
		}),
		frags: filepath.Join(env.Root(), fragmentsDir),
		drops: processor.DropStats{},
	}

	if err := os.RemoveAll(b.frags); err != nil {
		return writer.TableFiles{}, fmt.Errorf("failed to clear %s: %w", b.frags, err)
	}
	defer os.RemoveAll(b.frags)

	jobs, err := archiveJobs(env)
	if err != nil {
		return writer.TableFiles{}, err
	}

	start := time.Now()
	if err := b.writeFragments(ctx, jobs); err != nil {
		return writer.TableFiles{}, err
	}
	logger.LogStepDuration(env.Log.WithComponent("prices"), "prices", "fragments", time.Since(start), logger.Fields{"archives": len(jobs)})

	start = time.Now()
	files, err := b.mergeFragments(ctx)
	if err != nil {
		return writer.TableFiles{}, err
	}
	logger.LogStepDuration(env.Log.WithComponent("prices"), "prices", "merge", time.Since(start), logger.Fields{"partitions": len(files)})

	b.drops.Add(processor.DropUnparseableFile, int64(b.scan.UnparseableFiles))
	report(env, models.TablePrices, b.scan.Rows, b.drops, files)
	return writer.TableFiles{Name: models.TablePrices, Partitioned: true, Files: files}, nil
}

func archiveJobs(env *Env) ([]archiveJob, error) {
	var jobs []archiveJob
	for _, src := range []struct {
		dir    string
		source models.Source
	}{
		{env.Config.Paths.StocksDir, models.SourceStock},
		{env.Config.Paths.ETFsDir, models.SourceETF},
	} {
		archives, err := reader.ListArchives(src.dir)
		if err != nil {
			return nil, err
		}
		for _, path := range archives {
			jobs = append(jobs, archiveJob{index: len(jobs) + 1, path: path, source: src.source})
		}
	}
	return jobs, nil
}

func (b *priceBuild) writeFragments(ctx context.Context, jobs []archiveJob) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(b.env.Workers())

	for _, job := range jobs {
		job := job
		g.Go(func() error {
			return b.writeArchiveFragments(ctx, job)
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("pass 1: %w", err)
	}
	return nil
}

func (b *priceBuild) writeArchiveFragments(ctx context.Context, job archiveJob) error {
	drops := processor.DropStats{}
	byYear := map[int][]models.RawBar{}

	scan, err := reader.ScanArchive(ctx, job.path, job.source, b.env.Config.Build.TickerSuffix,
		func(_ string, bars []models.RawBar) error {
			for _, bar := range bars {
				if reason := b.merger.Admit(bar); reason != processor.DropNone {
					drops.Add(reason, 1)
					continue
				}
				y := bar.TS.Year()
				byYear[y] = append(byYear[y], bar)
			}
			return nil
		})
	b.mu.Lock()
	b.scan.Add(scan)
	b.mu.Unlock()
	if err != nil {
		return err
	}
	b.addDrops(drops)

	log := b.env.Log.WithComponent("prices").WithFields(logger.Fields{
		"archive": filepath.Base(job.path),
		"source":  job.source,
	})
	if len(byYear) == 0 {
		log.Warn("no valid rows in archive")
		return nil
	}

	name := fragmentName(job)
	for year, bars := range byYear {
		path := filepath.Join(writer.PartitionDir(b.frags, year), name)
		if _, err := writer.WriteFile(path, writer.FragmentRecords(bars), b.env.Writer.Options()); err != nil {
			return fmt.Errorf("write fragment %s: %w", path, err)
		}
	}
	log.WithFields(logger.Fields{"rows": scan.Rows, "years": len(byYear)}).Debug("wrote fragments")
	return nil
}

func (b *priceBuild) mergeFragments(ctx context.Context) ([]writer.FileInfo, error) {
	years, err := reader.ListYears(b.frags)
	if err != nil {
		return nil, err
	}

	p, err := b.env.Writer.BeginPartitioned(models.TablePrices)
	if err != nil {
		return nil, err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(b.env.Workers())
	for _, year := range years {
		year := year
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return b.mergeYear(p, year)
		})
	}
	if err := g.Wait(); err != nil {
		p.Abort()
		return nil, fmt.Errorf("pass 2: %w", err)
	}
	return p.Commit()
}

func (b *priceBuild) mergeYear(p *writer.PartitionedTable, year int) error {
	dir := writer.PartitionDir(b.frags, year)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to list fragments of year=%d: %w", year, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".parquet") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var raws []models.RawBar
	for _, name := range names {
		bars, err := reader.ReadFragments(filepath.Join(dir, name))
		if err != nil {
			return err
		}
		raws = append(raws, bars...)
	}

	bars, stats := b.merger.Merge(raws)
	b.addDrops(stats.Drops)
	if _, err := writer.WritePartition(p, year, writer.HourlyRecords(bars)); err != nil {
		return err
	}

	b.env.Log.WithComponent("prices").WithFields(logger.Fields{
		"year":       year,
		"fragments":  len(names),
		"rows":       stats.Output,
		"duplicates": stats.Duplicates,
	}).Info("merged year")
	return nil
}
