package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
)

func TestWithComponent(t *testing.T) {
	log := Logger()
	entry := log.WithComponent("test")
	if v, ok := entry.Entry.Data["component"]; !ok || v != "test" {
		t.Fatalf("component field missing: %v", entry.Entry.Data)
	}
}

func TestConfigureInvalidLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")

	log := Logger()
	if err := log.Configure("invalid", "json", "stderr", 0); err == nil {
		t.Fatalf("expected error for invalid level")
	}
	if err := log.Configure("info", "xml", "stderr", 0); err == nil {
		t.Fatalf("expected error for invalid format")
	}
}

func TestConfigureReportLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")

	log := Logger()
	if err := log.Configure("report", "text", "stdout", 0); err != nil {
		t.Fatalf("configure: %v", err)
	}
	if log.GetLevel().String() != "info" {
		t.Fatalf("report should map to info, got %s", log.GetLevel())
	}
}

func TestConfigureFileOutput(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")

	path := filepath.Join(t.TempDir(), "build.log")
	log := Logger()
	if err := log.Configure("debug", "json", path, 0); err != nil {
		t.Fatalf("configure: %v", err)
	}
	log.WithComponent("test").Info("hello")
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("log file not written: %v", err)
	}
}

func TestWithEnv(t *testing.T) {
	t.Setenv("FOO", "bar")
	log := Logger()
	entry := log.WithEnv("FOO")
	if v, ok := entry.Entry.Data["FOO"]; !ok || v != "bar" {
		t.Fatalf("env field not set: %v", entry.Entry.Data)
	}
}

func TestLogMetricWritesFields(t *testing.T) {
	var buf bytes.Buffer
	log := Logger()
	log.SetOutput(&buf)

	log.LogMetric("writer", "rows_written", int64(12), "", Fields{"table": "prices"})

	var line map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line: %v (%s)", err, buf.String())
	}
	if line["metric"] != "rows_written" || line["metric_type"] != "counter" || line["table"] != "prices" {
		t.Fatalf("unexpected metric line: %v", line)
	}
}

func TestWarnCountsPerComponent(t *testing.T) {
	log := Logger()
	log.SetOutput(&bytes.Buffer{})
	log.WithComponent("warn_test").Warn("first")
	log.WithComponent("warn_test").Warn("second")

	v, ok := warnCount.Load("warn_test")
	if !ok || atomic.LoadInt64(v.(*int64)) != 2 {
		t.Fatalf("expected two warnings recorded")
	}
}

func TestRecordRows(t *testing.T) {
	RecordRowsRead("report_test", 5)
	RecordRowsWritten("report_test", 3)
	RecordRowsDropped("report_test", 2)
	ts := table("report_test")
	if ts.read != 5 || ts.written != 3 || ts.dropped != 2 {
		t.Fatalf("unexpected table stats %+v", ts)
	}
}
