package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"marketdb/logger"
	"marketdb/processor"
)

func TestRecorderCounters(t *testing.T) {
	rec := NewRecorder()
	rec.RowsRead("prices", 10)
	rec.RowsWritten("prices", 7)
	rec.RowsWritten("prices", 0)
	rec.FilesWritten("prices", 2)
	rec.RowsDropped("prices", "duplicate", 3)

	require.Equal(t, 10.0, testutil.ToFloat64(rec.rowsRead.WithLabelValues("prices")))
	require.Equal(t, 7.0, testutil.ToFloat64(rec.rowsWritten.WithLabelValues("prices")))
	require.Equal(t, 2.0, testutil.ToFloat64(rec.filesWritten.WithLabelValues("prices")))
	require.Equal(t, 3.0, testutil.ToFloat64(rec.rowsDropped.WithLabelValues("prices", "duplicate")))
}

func TestNilRecorderIsNoop(t *testing.T) {
	var rec *Recorder
	rec.RowsRead("prices", 1)
	rec.RowsWritten("prices", 1)
	rec.RowsDropped("prices", "duplicate", 1)
	rec.FilesWritten("prices", 1)
	rec.StepFinished("prices", time.Second, nil)
}

func TestStepFinished(t *testing.T) {
	rec := NewRecorder()
	rec.StepFinished("daily_aggs", 1500*time.Millisecond, nil)
	rec.StepFinished("ten_day", time.Second, errors.New("boom"))

	require.Equal(t, 1.5, testutil.ToFloat64(rec.stepDuration.WithLabelValues("daily_aggs")))
	require.Equal(t, 0.0, testutil.ToFloat64(rec.stepFailures.WithLabelValues("daily_aggs")))
	require.Equal(t, 1.0, testutil.ToFloat64(rec.stepFailures.WithLabelValues("ten_day")))
}

func TestEmitDrops(t *testing.T) {
	rec := NewRecorder()
	drops := processor.DropStats{}
	drops.Add(processor.DropOutsideHours, 4)
	drops.Add(processor.DropDuplicate, 1)

	EmitDrops(logger.GetLogger(), rec, "prices", drops)

	require.Equal(t, 4.0, testutil.ToFloat64(rec.rowsDropped.WithLabelValues("prices", string(processor.DropOutsideHours))))
	require.Equal(t, 1.0, testutil.ToFloat64(rec.rowsDropped.WithLabelValues("prices", string(processor.DropDuplicate))))
}

func TestReportTable(t *testing.T) {
	rec := NewRecorder()
	ReportTable(logger.GetLogger(), rec, "market_cap", TableStats{
		RowsRead:     5,
		RowsWritten:  4,
		RowsDropped:  1,
		FilesWritten: 1,
		BytesWritten: 512,
	})

	require.Equal(t, 5.0, testutil.ToFloat64(rec.rowsRead.WithLabelValues("market_cap")))
	require.Equal(t, 4.0, testutil.ToFloat64(rec.rowsWritten.WithLabelValues("market_cap")))
}

func TestWriteTextfile(t *testing.T) {
	rec := NewRecorder()
	rec.RowsWritten("tickers", 3)

	path := filepath.Join(t.TempDir(), "marketdb.prom")
	require.NoError(t, rec.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.True(t, strings.Contains(string(data), `marketdb_rows_written_total{table="tickers"} 3`))
}
