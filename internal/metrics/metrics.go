// Registers:
//
//	#marketdb_rows_read_total{table}
//	#marketdb_rows_written_total{table}
//	#marketdb_rows_dropped_total{table,reason}
//	#marketdb_files_written_total{table}
//	#marketdb_step_duration_seconds{step}
//	#marketdb_step_failures_total{step}
//	#go_* and process_* system metrics
//
// A build is a batch job, so the registry is exported once to a
// node-exporter textfile instead of being served over HTTP.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "marketdb"

// Recorder holds the counters of one build run.
type Recorder struct {
	reg *prometheus.Registry

	rowsRead     *prometheus.CounterVec
	rowsWritten  *prometheus.CounterVec
	rowsDropped  *prometheus.CounterVec
	filesWritten *prometheus.CounterVec
	stepDuration *prometheus.GaugeVec
	stepFailures *prometheus.CounterVec
}

// NewRecorder builds a recorder on a private registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		reg: prometheus.NewRegistry(),
		rowsRead: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_read_total",
			Help:      "Rows read from raw inputs or upstream tables",
		}, []string{"table"}),
		rowsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_written_total",
			Help:      "Rows written to output tables",
		}, []string{"table"}),
		rowsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_dropped_total",
			Help:      "Rows dropped by validation, grouped by reason",
		}, []string{"table", "reason"}),
		filesWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_written_total",
			Help:      "Parquet files written",
		}, []string{"table"}),
		stepDuration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "step_duration_seconds",
			Help:      "Wall time of the last run of each build step",
		}, []string{"step"}),
		stepFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "step_failures_total",
			Help:      "Build steps that returned an error",
		}, []string{"step"}),
	}

	r.reg.MustRegister(
		r.rowsRead,
		r.rowsWritten,
		r.rowsDropped,
		r.filesWritten,
		r.stepDuration,
		r.stepFailures,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Registry exposes the underlying registry for gathering.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.reg
}

func (r *Recorder) RowsRead(table string, n int) {
	if r != nil && n > 0 {
		r.rowsRead.WithLabelValues(table).Add(float64(n))
	}
}

func (r *Recorder) RowsWritten(table string, n int) {
	if r != nil && n > 0 {
		r.rowsWritten.WithLabelValues(table).Add(float64(n))
	}
}

func (r *Recorder) RowsDropped(table, reason string, n int64) {
	if r != nil && n > 0 {
		r.rowsDropped.WithLabelValues(table, reason).Add(float64(n))
	}
}

func (r *Recorder) FilesWritten(table string, n int) {
	if r != nil && n > 0 {
		r.filesWritten.WithLabelValues(table).Add(float64(n))
	}
}

// StepFinished records the duration of a step and whether it failed.
func (r *Recorder) StepFinished(step string, elapsed time.Duration, err error) {
	if r == nil {
		return
	}
	r.stepDuration.WithLabelValues(step).Set(elapsed.Seconds())
	if err != nil {
		r.stepFailures.WithLabelValues(step).Inc()
	}
}

// WriteTextfile writes the registry in the text exposition format. The file
// is replaced atomically so a node-exporter never reads a partial export.
func (r *Recorder) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.reg)
}
