package metrics

import (
	"marketdb/logger"
)

// TableStats holds the outcome of building one table.
type TableStats struct {
	RowsRead     int
	RowsWritten  int
	RowsDropped  int64
	FilesWritten int
	BytesWritten int64
}

// ReportTable emits the table metrics using the provided logger and adds them
// to the recorder. Tables that dropped rows are reported at warn level.
func ReportTable(log *logger.Log, rec *Recorder, table string, stats TableStats) {
	l := log.WithComponent("table_report")

	dropRate := float64(0)
	if stats.RowsRead > 0 {
		dropRate = float64(stats.RowsDropped) / float64(stats.RowsRead)
	}

	logger.RecordRowsRead(table, stats.RowsRead)
	rec.RowsRead(table, stats.RowsRead)
	rec.RowsWritten(table, stats.RowsWritten)
	rec.FilesWritten(table, stats.FilesWritten)

	fields := logger.Fields{"table": table}
	l.LogMetric(table, "rows_read", stats.RowsRead, "counter", fields)
	l.LogMetric(table, "rows_written", stats.RowsWritten, "counter", fields)
	l.LogMetric(table, "files_written", stats.FilesWritten, "counter", fields)
	l.LogMetric(table, "bytes_written", stats.BytesWritten, "counter", fields)
	l.LogMetric(table, "drop_rate", dropRate, "gauge", fields)

	entry := l.WithFields(logger.Fields{
		"table":         table,
		"rows_read":     stats.RowsRead,
		"rows_written":  stats.RowsWritten,
		"rows_dropped":  stats.RowsDropped,
		"files_written": stats.FilesWritten,
		"bytes_written": stats.BytesWritten,
		"drop_rate":     dropRate,
	})

	if stats.RowsDropped > 0 {
		entry.Warn(table + " metrics")
		return
	}

	entry.Info(table + " metrics")
}
