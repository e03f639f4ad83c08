package writer

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/reader"
	"github.com/xitongsys/parquet-go/writer"

	"marketdb/config"
	"marketdb/logger"
)

const (
	tmpSuffix      = ".tmp"
	buildingSuffix = "_building"
	oldSuffix      = "_old"

	// PartitionFile is the file name inside every year=YYYY directory.
	PartitionFile = "data.parquet"
)

// Options controls how parquet files are laid out.
type Options struct {
	Compression  string
	RowGroupRows int
	PageSize     int
	Parallelism  int
}

func OptionsFromConfig(cfg config.WriterConfig) Options {
	return Options{
		Compression:  cfg.Compression,
		RowGroupRows: cfg.RowGroupRows,
		PageSize:     cfg.PageSize,
		Parallelism:  cfg.Parallelism,
	}
}

func DefaultOptions() Options {
	return OptionsFromConfig(config.Default().Writer)
}

func compressionCodec(name string) (parquet.CompressionCodec, error) {
	switch strings.ToLower(name) {
	case "zstd", "":
		return parquet.CompressionCodec_ZSTD, nil
	case "snappy":
		return parquet.CompressionCodec_SNAPPY, nil
	case "gzip":
		return parquet.CompressionCodec_GZIP, nil
	case "uncompressed", "none":
		return parquet.CompressionCodec_UNCOMPRESSED, nil
	}
	return parquet.CompressionCodec_UNCOMPRESSED, fmt.Errorf("unsupported compression %q", name)
}

// FileInfo describes one committed parquet file. Path is relative to the
// output root and uses forward slashes.
type FileInfo struct {
	Path  string `json:"path"`
	Rows  int64  `json:"rows"`
	Bytes int64  `json:"bytes"`
}

// writeParquet writes rows to path, flushing a row group every
// opts.RowGroupRows rows.
func writeParquet[T any](path string, rows []T, opts Options) error {
	codec, err := compressionCodec(opts.Compression)
	if err != nil {
		return err
	}

	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return fmt.Errorf("failed to create parquet file %s: %w", path, err)
	}

	np := int64(opts.Parallelism)
	if np <= 0 {
		np = 1
	}
	pw, err := writer.NewParquetWriter(fw, new(T), np)
	if err != nil {
		fw.Close()
		return fmt.Errorf("failed to create parquet writer: %w", err)
	}
	pw.CompressionType = codec
	if opts.PageSize > 0 {
		pw.PageSize = int64(opts.PageSize)
	}

	groupRows := opts.RowGroupRows
	if groupRows <= 0 {
		groupRows = config.DefaultRowGroupRows
	}
	for i := range rows {
		if err := pw.Write(rows[i]); err != nil {
			pw.WriteStop()
			fw.Close()
			return fmt.Errorf("failed to write parquet record: %w", err)
		}
		if (i+1)%groupRows == 0 {
			if err := pw.Flush(true); err != nil {
				pw.WriteStop()
				fw.Close()
				return fmt.Errorf("failed to flush row group: %w", err)
			}
		}
	}

	if err := pw.WriteStop(); err != nil {
		fw.Close()
		return fmt.Errorf("failed to finalize parquet writing: %w", err)
	}
	return fw.Close()
}

// CountRows returns the row count recorded in the parquet footer of path.
func CountRows(path string) (int64, error) {
	fr, err := local.NewLocalFileReader(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open parquet file %s: %w", path, err)
	}
	defer fr.Close()

	pr, err := reader.NewParquetColumnReader(fr, 1)
	if err != nil {
		return 0, fmt.Errorf("failed to read parquet footer %s: %w", path, err)
	}
	defer pr.ReadStop()
	return pr.GetNumRows(), nil
}

// WriteFile writes rows to path through path.tmp, verifies the row count of
// the temporary file and renames it into place.
func WriteFile[T any](path string, rows []T, opts Options) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, fmt.Errorf("failed to create directory for %s: %w", path, err)
	}

	tmp := path + tmpSuffix
	if err := writeParquet(tmp, rows, opts); err != nil {
		os.Remove(tmp)
		return 0, err
	}

	n, err := CountRows(tmp)
	if err != nil {
		os.Remove(tmp)
		return 0, err
	}
	if n != int64(len(rows)) {
		os.Remove(tmp)
		return 0, fmt.Errorf("verification failed: %s has %d rows, wrote %d", path, n, len(rows))
	}

	st, err := os.Stat(tmp)
	if err != nil {
		os.Remove(tmp)
		return 0, err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return 0, fmt.Errorf("failed to commit %s: %w", path, err)
	}
	return st.Size(), nil
}

// TableWriter writes tables below an output root.
type TableWriter struct {
	root string
	opts Options
	log  *logger.Log
}

func NewTableWriter(root string, opts Options) *TableWriter {
	return &TableWriter{root: root, opts: opts, log: logger.GetLogger()}
}

func (w *TableWriter) Root() string {
	return w.root
}

func (w *TableWriter) Options() Options {
	return w.opts
}

// SingleFilePath is the location of a non-partitioned table.
func SingleFilePath(root, table string) string {
	return filepath.Join(root, table+".parquet")
}

// WriteTable replaces the single-file table with rows.
func WriteTable[T any](w *TableWriter, table string, rows []T) (FileInfo, error) {
	path := SingleFilePath(w.root, table)
	size, err := WriteFile(path, rows, w.opts)
	if err != nil {
		return FileInfo{}, fmt.Errorf("write table %s: %w", table, err)
	}
	info := FileInfo{Path: table + ".parquet", Rows: int64(len(rows)), Bytes: size}

	logger.RecordRowsWritten(table, len(rows))
	logger.RecordFileWritten()
	logger.LogTableFlow(w.log.WithComponent("table_writer"), "build", table, len(rows), "")
	return info, nil
}

// PartitionDir is the Hive style directory of one year of a table.
func PartitionDir(tableDir string, year int) string {
	return filepath.Join(tableDir, fmt.Sprintf("year=%d", year))
}

// ParseYearDir extracts the year from a "year=YYYY" directory name.
func ParseYearDir(name string) (int, bool) {
	v, ok := strings.CutPrefix(name, "year=")
	if !ok {
		return 0, false
	}
	y, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return y, true
}

// PartitionedTable is a year-partitioned table under construction. Partitions
// are written into <table>_building and become visible on Commit.
type PartitionedTable struct {
	w        *TableWriter
	name     string
	building string

	mu    sync.Mutex
	files []FileInfo
}

// BeginPartitioned starts a fresh build of table, discarding any leftover
// build directory.
func (w *TableWriter) BeginPartitioned(table string) (*PartitionedTable, error) {
	building := filepath.Join(w.root, table+buildingSuffix)
	if err := os.RemoveAll(building); err != nil {
		return nil, fmt.Errorf("failed to clear %s: %w", building, err)
	}
	if err := os.MkdirAll(building, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", building, err)
	}
	return &PartitionedTable{w: w, name: table, building: building}, nil
}

func (p *PartitionedTable) Name() string {
	return p.name
}

// WritePartition writes one year of the table. Safe for concurrent use with
// distinct years.
func WritePartition[T any](p *PartitionedTable, year int, rows []T) (FileInfo, error) {
	path := filepath.Join(PartitionDir(p.building, year), PartitionFile)
	size, err := WriteFile(path, rows, p.w.opts)
	if err != nil {
		return FileInfo{}, fmt.Errorf("write %s year=%d: %w", p.name, year, err)
	}
	info := FileInfo{
		Path:  fmt.Sprintf("%s/year=%d/%s", p.name, year, PartitionFile),
		Rows:  int64(len(rows)),
		Bytes: size,
	}

	p.mu.Lock()
	p.files = append(p.files, info)
	p.mu.Unlock()

	logger.RecordRowsWritten(p.name, len(rows))
	logger.RecordFileWritten()
	logger.LogTableFlow(p.w.log.WithComponent("table_writer"), "build", p.name, len(rows), fmt.Sprintf("year=%d", year))
	return info, nil
}

// Commit swaps the build directory into place. The previous version is moved
// to <table>_old first and removed once the swap succeeded.
func (p *PartitionedTable) Commit() ([]FileInfo, error) {
	final := filepath.Join(p.w.root, p.name)
	old := final + oldSuffix

	if err := os.RemoveAll(old); err != nil {
		return nil, fmt.Errorf("failed to clear %s: %w", old, err)
	}
	hadPrevious := false
	if _, err := os.Stat(final); err == nil {
		if err := os.Rename(final, old); err != nil {
			return nil, fmt.Errorf("failed to move %s aside: %w", final, err)
		}
		hadPrevious = true
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	if err := os.Rename(p.building, final); err != nil {
		if hadPrevious {
			os.Rename(old, final)
		}
		return nil, fmt.Errorf("failed to commit %s: %w", p.name, err)
	}
	if hadPrevious {
		if err := os.RemoveAll(old); err != nil {
			p.w.log.WithComponent("table_writer").WithError(err).Warn("failed to remove previous table version")
		}
	}

	p.mu.Lock()
	files := append([]FileInfo(nil), p.files...)
	p.mu.Unlock()
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })

	p.w.log.WithComponent("table_writer").WithFields(logger.Fields{
		"table":      p.name,
		"partitions": len(files),
	}).Info("committed partitioned table")
	return files, nil
}

// Abort discards the build directory.
func (p *PartitionedTable) Abort() error {
	return os.RemoveAll(p.building)
}
