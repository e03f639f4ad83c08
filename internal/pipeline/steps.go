package pipeline

import (
	"context"
	"fmt"

	"marketdb/internal/metrics"
	"marketdb/logger"
	"marketdb/models"
	"marketdb/processor"
	"marketdb/reader"
	"marketdb/writer"
)

func singleTable(name string, info writer.FileInfo) writer.TableFiles {
	return writer.TableFiles{Name: name, Files: []writer.FileInfo{info}}
}

// loadRegistry reloads the ticker dimension from the committed tickers table.
func loadRegistry(env *Env) (*processor.Registry, error) {
	rows, err := reader.ReadTickers(env.Root())
	if err != nil {
		return nil, fmt.Errorf("load tickers: %w", err)
	}
	return processor.RegistryFromTickers(rows), nil
}

// report logs and counts the outcome of a table build.
func report(env *Env, table string, read int, drops processor.DropStats, files []writer.FileInfo) {
	stats := metrics.TableStats{
		RowsRead:     read,
		RowsDropped:  drops.Total(),
		FilesWritten: len(files),
	}
	for _, f := range files {
		stats.RowsWritten += int(f.Rows)
		stats.BytesWritten += f.Bytes
	}
	if len(drops) > 0 {
		metrics.EmitDrops(env.Log, env.Metrics, table, drops)
		env.Log.WithComponent("validation").WithFields(drops.Fields()).WithFields(logger.Fields{"table": table}).Info("validation drops")
	}
	metrics.ReportTable(env.Log, env.Metrics, table, stats)
}

func buildTickers(ctx context.Context, env *Env) (writer.TableFiles, error) {
	suffix := env.Config.Build.TickerSuffix
	stock, err := reader.DiscoverTickers(env.Config.Paths.StocksDir, suffix)
	if err != nil {
		return writer.TableFiles{}, err
	}
	etf, err := reader.DiscoverTickers(env.Config.Paths.ETFsDir, suffix)
	if err != nil {
		return writer.TableFiles{}, err
	}

	registry := processor.NewRegistry(map[models.Source][]string{
		models.SourceStock: stock,
		models.SourceETF:   etf,
	})
	rows := registry.Tickers()
	env.Log.WithComponent("tickers").WithFields(logger.Fields{
		"stock_tickers": len(stock),
		"etf_tickers":   len(etf),
		"total":         len(rows),
		"overlap":       registry.Overlap(),
	}).Info("classified tickers, overlaps count as etf")

	info, err := writer.WriteTable(env.Writer, models.TableTickers, writer.TickerRecords(rows))
	if err != nil {
		return writer.TableFiles{}, err
	}
	report(env, models.TableTickers, len(stock)+len(etf), nil, []writer.FileInfo{info})
	return singleTable(models.TableTickers, info), nil
}

func buildMarketCap(ctx context.Context, env *Env) (writer.TableFiles, error) {
	registry, err := loadRegistry(env)
	if err != nil {
		return writer.TableFiles{}, err
	}
	raws, scan, err := reader.ReadMarketCapDir(ctx, env.Config.Paths.MarketCapDir)
	if err != nil {
		return writer.TableFiles{}, err
	}

	rows, drops := processor.NewMarketCapFilter(registry).Apply(raws)
	drops.Add(processor.DropUnparseableFile, int64(scan.UnparseableFiles))

	info, err := writer.WriteTable(env.Writer, models.TableMarketCap, writer.MarketCapRecords(rows))
	if err != nil {
		return writer.TableFiles{}, err
	}
	report(env, models.TableMarketCap, scan.Rows, drops, []writer.FileInfo{info})
	return singleTable(models.TableMarketCap, info), nil
}

func buildInsiderTrades(ctx context.Context, env *Env) (writer.TableFiles, error) {
	registry, err := loadRegistry(env)
	if err != nil {
		return writer.TableFiles{}, err
	}

	var filings []models.Form4Filing
	scan, err := reader.ScanFilings(ctx, env.Config.Paths.InsiderTradesDir, func(f models.Form4Filing) error {
		filings = append(filings, f)
		return nil
	})
	if err != nil {
		return writer.TableFiles{}, err
	}

	rows, drops := processor.NewInsiderFilter(registry).Apply(filings)
	drops.Add(processor.DropUnparseableFile, int64(scan.UnparseableFiles))
	drops.Add(processor.DropMalformedLine, int64(scan.MalformedLines))

	info, err := writer.WriteTable(env.Writer, models.TableInsiderTrades, writer.InsiderRecords(rows))
	if err != nil {
		return writer.TableFiles{}, err
	}
	report(env, models.TableInsiderTrades, scan.Rows, drops, []writer.FileInfo{info})
	return singleTable(models.TableInsiderTrades, info), nil
}
