package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"marketdb/logger"
	"marketdb/models"
	"marketdb/processor"
	"marketdb/reader"
	"marketdb/writer"
)

// buildDailyAggs rolls every hourly partition up into the daily partition of
// the same year.
func buildDailyAggs(ctx context.Context, env *Env) (writer.TableFiles, error) {
	years, err := reader.ListYears(filepath.Join(env.Root(), models.TablePrices))
	if err != nil {
		return writer.TableFiles{}, err
	}

	p, err := env.Writer.BeginPartitioned(models.TableDailyAggs)
	if err != nil {
		return writer.TableFiles{}, err
	}

	var read int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(env.Workers())
	for _, year := range years {
		year := year
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			bars, err := reader.ReadHourlyPartition(env.Root(), year)
			if err != nil {
				return err
			}
			atomic.AddInt64(&read, int64(len(bars)))

			days := processor.AggregateDaily(bars)
			if _, err := writer.WritePartition(p, year, writer.DailyRecords(days)); err != nil {
				return err
			}
			env.Log.WithComponent("daily_aggs").WithFields(logger.Fields{
				"year":  year,
				"hours": len(bars),
				"days":  len(days),
			}).Info("aggregated year")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		p.Abort()
		return writer.TableFiles{}, fmt.Errorf("aggregate daily: %w", err)
	}

	files, err := p.Commit()
	if err != nil {
		return writer.TableFiles{}, err
	}
	report(env, models.TableDailyAggs, int(read), nil, files)
	return writer.TableFiles{Name: models.TableDailyAggs, Partitioned: true, Files: files}, nil
}

// blockStep builds the n-day block table from the daily series.
func blockStep(table string, n int) RunFunc {
	return func(ctx context.Context, env *Env) (writer.TableFiles, error) {
		agg, err := processor.NewBlockAggregator(n)
		if err != nil {
			return writer.TableFiles{}, err
		}
		days, err := reader.ReadDailyAll(env.Root())
		if err != nil {
			return writer.TableFiles{}, err
		}

		blocks, err := agg.Aggregate(ctx, days, env.Workers())
		if err != nil {
			return writer.TableFiles{}, err
		}

		info, err := writer.WriteTable(env.Writer, table, writer.BlockRecords(blocks))
		if err != nil {
			return writer.TableFiles{}, err
		}
		env.Log.WithComponent(table).WithFields(logger.Fields{
			"days":   len(days),
			"blocks": len(blocks),
			"size":   n,
		}).Info("aggregated blocks")
		report(env, table, len(days), nil, []writer.FileInfo{info})
		return singleTable(table, info), nil
	}
}
