package metrics

import (
	"marketdb/logger"
	"marketdb/processor"
)

// EmitDrops logs one metric per drop reason of a table and adds the counts
// to the recorder. Zero counts are skipped.
func EmitDrops(log *logger.Log, rec *Recorder, table string, drops processor.DropStats) {
	var total int64
	for _, reason := range drops.Reasons() {
		n := drops[reason]
		if n == 0 {
			continue
		}
		total += n
		rec.RowsDropped(table, string(reason), n)
		log.LogMetric("validation", "rows_dropped", n, "counter", logger.Fields{
			"table":  table,
			"reason": string(reason),
		})
	}
	logger.RecordRowsDropped(table, int(total))
}
