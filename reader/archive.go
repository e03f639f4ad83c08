package reader

import (
	"archive/zip"
	"context"
	"encoding/csv"
	"errors"
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

var timestampLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
}

// ScanStats summarises one pass over a raw feed.
type ScanStats struct {
	Files            int
	Rows             int
	UnparseableFiles int
	MalformedLines   int
}

func (s *ScanStats) Add(o ScanStats) {
	s.Files += o.Files
	s.Rows += o.Rows
	s.UnparseableFiles += o.UnparseableFiles
	s.MalformedLines += o.MalformedLines
}

// ListArchives returns the zip archives of dir sorted by file name. A missing
// directory is an error.
func ListArchives(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read archive directory %s: %w", dir, err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".zip") {
			continue
		}
		out = append(out, filepath.Join(dir, e.Name()))
	}
	sort.Strings(out)
	return out, nil
}

// IndexArchive lists the tickers in an archive from its central directory
// without extracting anything.
func IndexArchive(path, suffix string) ([]string, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive %s: %w", path, err)
	}
	defer zr.Close()

	var out []string
	for _, f := range zr.File {
		if ticker, ok := symbols.FromMember(f.Name, suffix); ok {
			out = append(out, ticker)
		}
	}
	return out, nil
}

// DiscoverTickers indexes every archive of dir. Archives that are not valid
// zip files are logged and skipped.
func DiscoverTickers(dir, suffix string) ([]string, error) {
	archives, err := ListArchives(dir)
	if err != nil {
		return nil, err
	}

	log := logger.GetLogger().WithComponent("archive_reader")
	var out []string
	for _, path := range archives {
		tickers, err := IndexArchive(path, suffix)
		if err != nil {
			if errors.Is(err, zip.ErrFormat) {
				log.WithError(err).WithFields(logger.Fields{"archive": filepath.Base(path)}).Warn("skipping bad zip")
				continue
			}
			return nil, err
		}
		out = append(out, tickers...)
	}

	log.WithFields(logger.Fields{
		"dir":      dir,
		"archives": len(archives),
		"tickers":  len(out),
	}).Info("discovered tickers")
	return out, nil
}

// MemberFunc receives the parsed rows of one archive member in file order.
type MemberFunc func(ticker string, bars []models.RawBar) error

// ScanArchive parses every ticker member of the archive in central directory
// order and hands the rows to fn. A member that cannot be parsed is skipped
// and counted; an unreadable archive or an fn error aborts the scan.
func ScanArchive(ctx context.Context, path string, source models.Source, suffix string, fn MemberFunc) (ScanStats, error) {
	var stats ScanStats
	log := logger.GetLogger().WithComponent("archive_reader").WithFields(logger.Fields{
		"archive": filepath.Base(path),
		"source":  source,
	})

	zr, err := zip.OpenReader(path)
	if err != nil {
		return stats, fmt.Errorf("failed to open archive %s: %w", path, err)
	}
	defer zr.Close()

	for _, f := range zr.File {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		ticker, ok := symbols.FromMember(f.Name, suffix)
		if !ok {
			continue
		}
		stats.Files++

		bars, err := readMember(f, ticker, source)
		if err != nil {
			stats.UnparseableFiles++
			log.WithError(err).WithFields(logger.Fields{"ticker": ticker, "member": f.Name}).Error("skipping unparseable member")
			continue
		}
		stats.Rows += len(bars)
		if err := fn(ticker, bars); err != nil {
			return stats, err
		}
	}
	return stats, nil
}

func readMember(f *zip.File, ticker string, source models.Source) ([]models.RawBar, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return ParseHourlyRows(rc, ticker, source)
}

// ParseHourlyRows reads headerless "ts,open,high,low,close,volume" rows. Any
// row that cannot be parsed fails the whole input.
func ParseHourlyRows(r io.Reader, ticker string, source models.Source) ([]models.RawBar, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 6
	cr.ReuseRecord = true
	cr.TrimLeadingSpace = true

	var out []models.RawBar
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}

		ts, err := parseTimestamp(rec[0])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		var vals [5]float64
		for i := range vals {
			v, err := strconv.ParseFloat(strings.TrimSpace(rec[i+1]), 64)
			if err != nil {
				return nil, fmt.Errorf("line %d column %d: %w", line, i+2, err)
			}
			vals[i] = v
		}
		out = append(out, models.RawBar{
			Ticker: ticker,
			Source: source,
			TS:     ts,
			Open:   vals[0],
			High:   vals[1],
			Low:    vals[2],
			Close:  vals[3],
			Volume: vals[4],
		})
	}
}

// parseTimestamp reads a naive wall-clock timestamp as UTC.
func parseTimestamp(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", v)
}
