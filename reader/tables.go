package reader

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/reader"

	"marketdb/models"
	"marketdb/writer"
)

const readBatch = 65536

// ReadFile loads every row of a parquet file into records of type T.
func ReadFile[T any](path string) ([]T, error) {
	fr, err := local.NewLocalFileReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet file %s: %w", path, err)
	}
	defer fr.Close()

	pr, err := reader.NewParquetReader(fr, new(T), 1)
	if err != nil {
		return nil, fmt.Errorf("failed to create parquet reader for %s: %w", path, err)
	}
	defer pr.ReadStop()

	total := int(pr.GetNumRows())
	out := make([]T, 0, total)
	for len(out) < total {
		n := total - len(out)
		if n > readBatch {
			n = readBatch
		}
		batch := make([]T, n)
		if err := pr.Read(&batch); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		out = append(out, batch...)
	}
	return out, nil
}

// ListYears returns the years of a Hive partitioned directory in ascending
// order. A missing directory yields no years.
func ListYears(tableDir string) ([]int, error) {
	entries, err := os.ReadDir(tableDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list partitions of %s: %w", tableDir, err)
	}
	var years []int
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if y, ok := writer.ParseYearDir(e.Name()); ok {
			years = append(years, y)
		}
	}
	sort.Ints(years)
	return years, nil
}

func convert[R any, M any](records []R, model func(R) M) []M {
	out := make([]M, len(records))
	for i, r := range records {
		out[i] = model(r)
	}
	return out
}

func partitionPath(root, table string, year int) string {
	return filepath.Join(writer.PartitionDir(filepath.Join(root, table), year), writer.PartitionFile)
}

func ReadTickers(root string) ([]models.Ticker, error) {
	recs, err := ReadFile[writer.TickerRecord](writer.SingleFilePath(root, models.TableTickers))
	if err != nil {
		return nil, err
	}
	return convert(recs, writer.TickerRecord.Model), nil
}

// ReadFragments reads one price fragment file.
func ReadFragments(path string) ([]models.RawBar, error) {
	recs, err := ReadFile[writer.FragmentRecord](path)
	if err != nil {
		return nil, err
	}
	return convert(recs, writer.FragmentRecord.Model), nil
}

func ReadHourlyPartition(root string, year int) ([]models.HourlyBar, error) {
	recs, err := ReadFile[writer.HourlyRecord](partitionPath(root, models.TablePrices, year))
	if err != nil {
		return nil, err
	}
	return convert(recs, writer.HourlyRecord.Model), nil
}

func ReadDailyPartition(root string, year int) ([]models.DailyAgg, error) {
	recs, err := ReadFile[writer.DailyRecord](partitionPath(root, models.TableDailyAggs, year))
	if err != nil {
		return nil, err
	}
	return convert(recs, writer.DailyRecord.Model), nil
}

// ReadDailyAll concatenates every daily partition in year order.
func ReadDailyAll(root string) ([]models.DailyAgg, error) {
	years, err := ListYears(filepath.Join(root, models.TableDailyAggs))
	if err != nil {
		return nil, err
	}
	var out []models.DailyAgg
	for _, y := range years {
		days, err := ReadDailyPartition(root, y)
		if err != nil {
			return nil, err
		}
		out = append(out, days...)
	}
	return out, nil
}

func ReadBlocks(root, table string) ([]models.BlockAgg, error) {
	recs, err := ReadFile[writer.BlockRecord](writer.SingleFilePath(root, table))
	if err != nil {
		return nil, err
	}
	return convert(recs, writer.BlockRecord.Model), nil
}

func ReadMarketCap(root string) ([]models.MarketCapRecord, error) {
	recs, err := ReadFile[writer.MarketCapRecord](writer.SingleFilePath(root, models.TableMarketCap))
	if err != nil {
		return nil, err
	}
	return convert(recs, writer.MarketCapRecord.Model), nil
}

func ReadInsiderTrades(root string) ([]models.InsiderTrade, error) {
	recs, err := ReadFile[writer.InsiderRecord](writer.SingleFilePath(root, models.TableInsiderTrades))
	if err != nil {
		return nil, err
	}
	return convert(recs, writer.InsiderRecord.Model), nil
}
