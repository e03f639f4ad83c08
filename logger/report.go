package logger

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aws/aws-sdk-go-v2/aws"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

type tableStat struct {
	read    int64
	written int64
	dropped int64
}

var (
	warnCount    sync.Map // component -> *int64
	errorCount   sync.Map // component -> *int64
	tables       sync.Map // table -> *tableStat
	filesWritten int64
	s3Uploads    int64
)

func bump(m *sync.Map, key string) {
	v, _ := m.LoadOrStore(key, new(int64))
	atomic.AddInt64(v.(*int64), 1)
}

func recordWarn(component string) {
	bump(&warnCount, component)
}

func recordError(component string) {
	bump(&errorCount, component)
}

func table(name string) *tableStat {
	v, _ := tables.LoadOrStore(name, &tableStat{})
	return v.(*tableStat)
}

// RecordRowsRead counts raw or upstream rows consumed for a table.
func RecordRowsRead(name string, n int) {
	atomic.AddInt64(&table(name).read, int64(n))
}

// RecordRowsWritten counts rows persisted to a table.
func RecordRowsWritten(name string, n int) {
	atomic.AddInt64(&table(name).written, int64(n))
}

// RecordRowsDropped counts rows excluded by validation for a table.
func RecordRowsDropped(name string, n int) {
	atomic.AddInt64(&table(name).dropped, int64(n))
}

func RecordFileWritten() {
	atomic.AddInt64(&filesWritten, 1)
}

func RecordS3Upload() {
	atomic.AddInt64(&s3Uploads, 1)
}

// StartReport logs a runtime report every interval until ctx is done.
func StartReport(ctx context.Context, log *Log, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				logReport(ctx, log)
			}
		}
	}()
}

func countsOf(m *sync.Map) map[string]int64 {
	out := map[string]int64{}
	m.Range(func(k, v any) bool {
		out[k.(string)] = atomic.LoadInt64(v.(*int64))
		return true
	})
	return out
}

func logReport(ctx context.Context, log *Log) {
	cpuPct := 0.0
	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		cpuPct = pct[0]
	}
	var memUsedMB, diskUsedMB float64
	if vm, err := mem.VirtualMemory(); err == nil {
		memUsedMB = float64(vm.Used) / 1024 / 1024
	}
	if du, err := disk.Usage("/"); err == nil {
		diskUsedMB = float64(du.Used) / 1024 / 1024
	}

	tableData := map[string]map[string]int64{}
	tables.Range(func(k, v any) bool {
		ts := v.(*tableStat)
		tableData[k.(string)] = map[string]int64{
			"read":    atomic.LoadInt64(&ts.read),
			"written": atomic.LoadInt64(&ts.written),
			"dropped": atomic.LoadInt64(&ts.dropped),
		}
		return true
	})

	log.WithComponent("report").WithFields(Fields{
		"warns":         countsOf(&warnCount),
		"errors":        countsOf(&errorCount),
		"tables":        tableData,
		"files_written": atomic.LoadInt64(&filesWritten),
		"s3_uploads":    atomic.LoadInt64(&s3Uploads),
		"goroutines":    runtime.NumGoroutine(),
		"cpu_percent":   cpuPct,
		"memory_mb":     int64(memUsedMB),
		"disk_mb":       int64(diskUsedMB),
	}).Info("runtime report")

	data := []cwtypes.MetricDatum{
		{MetricName: aws.String("CPUPercent"), Unit: cwtypes.StandardUnitPercent, Value: aws.Float64(cpuPct)},
		{MetricName: aws.String("MemoryMB"), Unit: cwtypes.StandardUnitMegabytes, Value: aws.Float64(memUsedMB)},
		{MetricName: aws.String("DiskMB"), Unit: cwtypes.StandardUnitMegabytes, Value: aws.Float64(diskUsedMB)},
	}
	for name, stats := range tableData {
		dims := []cwtypes.Dimension{{Name: aws.String("table"), Value: aws.String(name)}}
		data = append(data,
			cwtypes.MetricDatum{MetricName: aws.String("RowsWritten"), Unit: cwtypes.StandardUnitCount, Dimensions: dims, Value: aws.Float64(float64(stats["written"]))},
			cwtypes.MetricDatum{MetricName: aws.String("RowsDropped"), Unit: cwtypes.StandardUnitCount, Dimensions: dims, Value: aws.Float64(float64(stats["dropped"]))},
		)
	}
	publishMetrics(ctx, data)
}
