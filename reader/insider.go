package reader

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/klauspost/compress/gzip"

	"marketdb/logger"
	"marketdb/models"
)

const maxFilingLine = 64 << 20

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// FilingFunc receives one decoded Form 4 filing.
type FilingFunc func(models.Form4Filing) error

// ListFilingFiles returns every *.jsonl.gz below dir in lexical order.
func ListFilingFiles(dir string) ([]string, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("failed to read insider trades directory %s: %w", dir, err)
	}
	var out []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), ".jsonl.gz") {
			out = append(out, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", dir, err)
	}
	return out, nil
}

// ScanFilings decodes every filing below dir. Lines that are not valid JSON
// are counted and skipped; a file whose gzip stream is corrupt is counted as
// unparseable and the filings decoded before the corruption are kept.
func ScanFilings(ctx context.Context, dir string, fn FilingFunc) (ScanStats, error) {
	var stats ScanStats
	files, err := ListFilingFiles(dir)
	if err != nil {
		return stats, err
	}

	log := logger.GetLogger().WithComponent("insider_reader")
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		fileStats, err := scanFilingFile(path, fn)
		stats.Add(fileStats)
		if err != nil {
			var cbErr callbackError
			if errors.As(err, &cbErr) {
				return stats, cbErr.err
			}
			stats.UnparseableFiles++
			log.WithError(err).WithFields(logger.Fields{"file": path}).Error("failed to read filing file")
		}
	}

	log.WithFields(logger.Fields{
		"files":     stats.Files,
		"filings":   stats.Rows,
		"malformed": stats.MalformedLines,
	}).Info("read insider filings")
	return stats, nil
}

type callbackError struct{ err error }

func (e callbackError) Error() string { return e.err.Error() }

func scanFilingFile(path string, fn FilingFunc) (ScanStats, error) {
	stats := ScanStats{Files: 1}

	f, err := os.Open(path)
	if err != nil {
		return stats, err
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return stats, err
	}
	defer gz.Close()

	sc := bufio.NewScanner(gz)
	sc.Buffer(make([]byte, 0, 1<<20), maxFilingLine)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var filing models.Form4Filing
		if err := json.Unmarshal(line, &filing); err != nil {
			stats.MalformedLines++
			continue
		}
		stats.Rows++
		if err := fn(filing); err != nil {
			return stats, callbackError{err: err}
		}
	}
	return stats, sc.Err()
}
