package writer

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/reader"

	"marketdb/models"
)

func sampleBars(n int) []models.HourlyBar {
	start := time.Date(2020, 1, 2, 9, 0, 0, 0, time.UTC)
	out := make([]models.HourlyBar, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, models.HourlyBar{
			Ticker: "AAPL",
			TS:     start.Add(time.Duration(i) * time.Hour),
			Open:   float64(i), High: float64(i) + 1, Low: float64(i) - 1, Close: float64(i) + 0.5,
			Volume: int64(i * 10),
		})
	}
	return out
}

func readHourly(t *testing.T, path string) ([]HourlyRecord, int) {
	t.Helper()
	fr, err := local.NewLocalFileReader(path)
	require.NoError(t, err)
	defer fr.Close()

	pr, err := reader.NewParquetReader(fr, new(HourlyRecord), 1)
	require.NoError(t, err)
	defer pr.ReadStop()

	rows := make([]HourlyRecord, pr.GetNumRows())
	if len(rows) > 0 {
		require.NoError(t, pr.Read(&rows))
	}
	return rows, len(pr.Footer.RowGroups)
}

func TestWriteFileRoundTripAndRowGroups(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prices.parquet")

	opts := DefaultOptions()
	opts.RowGroupRows = 4
	bars := sampleBars(10)

	size, err := WriteFile(path, HourlyRecords(bars), opts)
	require.NoError(t, err)
	require.Greater(t, size, int64(0))

	_, err = os.Stat(path + tmpSuffix)
	require.True(t, os.IsNotExist(err))

	rows, groups := readHourly(t, path)
	require.Equal(t, 3, groups)
	require.Len(t, rows, 10)
	for i, r := range rows {
		require.Equal(t, bars[i], r.Model())
	}

	n, err := CountRows(path)
	require.NoError(t, err)
	require.EqualValues(t, 10, n)
}

func TestWriteFileEmptyTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.parquet")
	_, err := WriteFile(path, []HourlyRecord{}, DefaultOptions())
	require.NoError(t, err)

	n, err := CountRows(path)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestWriteFileIsDeterministic(t *testing.T) {
	dir := t.TempDir()
	a, b := filepath.Join(dir, "a.parquet"), filepath.Join(dir, "b.parquet")
	rows := HourlyRecords(sampleBars(50))

	_, err := WriteFile(a, rows, DefaultOptions())
	require.NoError(t, err)
	_, err = WriteFile(b, rows, DefaultOptions())
	require.NoError(t, err)

	da, err := os.ReadFile(a)
	require.NoError(t, err)
	db, err := os.ReadFile(b)
	require.NoError(t, err)
	require.True(t, bytes.Equal(da, db))
}

func TestWriteFileRejectsCompression(t *testing.T) {
	opts := DefaultOptions()
	opts.Compression = "lz77"
	_, err := WriteFile(filepath.Join(t.TempDir(), "x.parquet"), HourlyRecords(sampleBars(1)), opts)
	require.Error(t, err)
}

func TestWriteTable(t *testing.T) {
	root := t.TempDir()
	w := NewTableWriter(root, DefaultOptions())

	info, err := WriteTable(w, "tickers", TickerRecords([]models.Ticker{
		{Ticker: "AAPL", AssetType: models.AssetStock},
		{Ticker: "SPY", AssetType: models.AssetETF},
	}))
	require.NoError(t, err)
	require.Equal(t, "tickers.parquet", info.Path)
	require.EqualValues(t, 2, info.Rows)
	require.FileExists(t, filepath.Join(root, "tickers.parquet"))
}

func TestPartitionedTableSwap(t *testing.T) {
	root := t.TempDir()
	w := NewTableWriter(root, DefaultOptions())

	p, err := w.BeginPartitioned("prices")
	require.NoError(t, err)
	_, err = WritePartition(p, 2019, HourlyRecords(sampleBars(2)))
	require.NoError(t, err)
	_, err = WritePartition(p, 2020, HourlyRecords(sampleBars(3)))
	require.NoError(t, err)
	files, err := p.Commit()
	require.NoError(t, err)
	require.Equal(t, []string{"prices/year=2019/data.parquet", "prices/year=2020/data.parquet"},
		[]string{files[0].Path, files[1].Path})

	// a rebuild replaces the whole table, dropping partitions that vanished
	p, err = w.BeginPartitioned("prices")
	require.NoError(t, err)
	_, err = WritePartition(p, 2021, HourlyRecords(sampleBars(1)))
	require.NoError(t, err)
	_, err = p.Commit()
	require.NoError(t, err)

	entries, err := os.ReadDir(filepath.Join(root, "prices"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "year=2021", entries[0].Name())
	require.NoDirExists(t, filepath.Join(root, "prices_building"))
	require.NoDirExists(t, filepath.Join(root, "prices_old"))
}

func TestPartitionedTableAbortKeepsPrevious(t *testing.T) {
	root := t.TempDir()
	w := NewTableWriter(root, DefaultOptions())

	p, err := w.BeginPartitioned("daily_aggs")
	require.NoError(t, err)
	_, err = WritePartition(p, 2020, DailyRecords(nil))
	require.NoError(t, err)
	_, err = p.Commit()
	require.NoError(t, err)

	p, err = w.BeginPartitioned("daily_aggs")
	require.NoError(t, err)
	require.NoError(t, p.Abort())

	require.FileExists(t, filepath.Join(root, "daily_aggs", "year=2020", PartitionFile))
	require.NoDirExists(t, filepath.Join(root, "daily_aggs_building"))
}

func TestEpochDay(t *testing.T) {
	day := time.Date(2021, 3, 4, 15, 30, 0, 0, time.UTC)
	require.Equal(t, time.Date(2021, 3, 4, 0, 0, 0, 0, time.UTC), FromEpochDay(EpochDay(day)))
	require.EqualValues(t, 0, EpochDay(time.Unix(0, 0).UTC()))
	require.EqualValues(t, -1, EpochDay(time.Date(1969, 12, 31, 0, 0, 0, 0, time.UTC)))
}

func TestParseYearDir(t *testing.T) {
	y, ok := ParseYearDir("year=2020")
	require.True(t, ok)
	require.Equal(t, 2020, y)
	_, ok = ParseYearDir("month=01")
	require.False(t, ok)
}

func TestInsiderRecordOptionalColumns(t *testing.T) {
	title := "CEO"
	value := 12.5
	trades := []models.InsiderTrade{
		{Ticker: "AAPL", TradeDate: time.Date(2021, 1, 4, 0, 0, 0, 0, time.UTC), TxCode: "P",
			Shares: 1, TotalValue: &value, AcquiredDisposed: "A", OwnershipType: "D", OfficerTitle: &title},
		{Ticker: "AAPL", TradeDate: time.Date(2021, 1, 5, 0, 0, 0, 0, time.UTC), TxCode: "S",
			Shares: 2, AcquiredDisposed: "D", OwnershipType: "I"},
	}
	path := filepath.Join(t.TempDir(), "insider_trades.parquet")
	_, err := WriteFile(path, InsiderRecords(trades), DefaultOptions())
	require.NoError(t, err)

	fr, err := local.NewLocalFileReader(path)
	require.NoError(t, err)
	defer fr.Close()
	pr, err := reader.NewParquetReader(fr, new(InsiderRecord), 1)
	require.NoError(t, err)
	defer pr.ReadStop()

	rows := make([]InsiderRecord, pr.GetNumRows())
	require.NoError(t, pr.Read(&rows))
	require.Equal(t, trades[0], rows[0].Model())
	require.Equal(t, trades[1], rows[1].Model())
}
