package reader

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"marketdb/internal/symbols"
	"marketdb/logger"
	"marketdb/models"
)

// ReadMarketCapDir reads every <TICKER>.csv file of dir in name order. A file
// that cannot be parsed is skipped and counted.
func ReadMarketCapDir(ctx context.Context, dir string) ([]models.RawMarketCap, ScanStats, error) {
	var stats ScanStats
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, stats, fmt.Errorf("failed to read market cap directory %s: %w", dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	log := logger.GetLogger().WithComponent("market_cap_reader")
	var out []models.RawMarketCap
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, stats, err
		}
		ticker, ok := symbols.FromFileName(name, ".csv")
		if !ok {
			continue
		}
		stats.Files++

		rows, err := readMarketCapFile(filepath.Join(dir, name), ticker)
		if err != nil {
			stats.UnparseableFiles++
			log.WithError(err).WithFields(logger.Fields{"ticker": ticker, "file": name}).Error("skipping unparseable market cap file")
			continue
		}
		stats.Rows += len(rows)
		out = append(out, rows...)
	}

	log.WithFields(logger.Fields{
		"files":       stats.Files,
		"rows":        stats.Rows,
		"unparseable": stats.UnparseableFiles,
	}).Info("read market cap files")
	return out, stats, nil
}

func readMarketCapFile(path, ticker string) ([]models.RawMarketCap, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseMarketCapCSV(f, ticker)
}

// ParseMarketCapCSV reads a "date,market_cap" CSV. Columns are located by
// header name. An empty market_cap cell reads as zero.
func ParseMarketCapCSV(r io.Reader, ticker string) ([]models.RawMarketCap, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	dateCol, capCol := -1, -1
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))) {
		case "date":
			dateCol = i
		case "market_cap":
			capCol = i
		}
	}
	if dateCol < 0 || capCol < 0 {
		return nil, fmt.Errorf("missing date or market_cap column in header %v", header)
	}

	var out []models.RawMarketCap
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}

		day, err := time.Parse("2006-01-02", strings.TrimSpace(rec[dateCol]))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		var value float64
		if v := strings.TrimSpace(rec[capCol]); v != "" {
			value, err = strconv.ParseFloat(v, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
		}
		out = append(out, models.RawMarketCap{Ticker: ticker, Day: day, Cap: value})
	}
}
