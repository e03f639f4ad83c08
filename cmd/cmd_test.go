package cmd

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"marketdb/internal/pipeline"
	"marketdb/internal/summary"
)

func writeConfig(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	for _, d := range []string{"stocks", "etfs", "market_cap", "insider_trades"} {
		require.NoError(t, os.MkdirAll(filepath.Join(dir, d), 0o755))
	}
	out := filepath.Join(dir, "db")
	body := fmt.Sprintf(`app:
  name: "marketdb"
  version: "test"
paths:
  stocks_dir: %q
  etfs_dir: %q
  market_cap_dir: %q
  insider_trades_dir: %q
  output_dir: %q
build:
  workers: 2
logging:
  level: "error"
  format: "text"
  output: "stderr"
`, filepath.Join(dir, "stocks"), filepath.Join(dir, "etfs"), filepath.Join(dir, "market_cap"),
		filepath.Join(dir, "insider_trades"), out)

	path := filepath.Join(dir, "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path, out
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buildFull, buildDryRun = false, false

	var out bytes.Buffer
	rootCMD.SetOut(&out)
	rootCMD.SetErr(&out)
	rootCMD.SetArgs(args)
	err := rootCMD.ExecuteContext(context.Background())
	return out.String(), err
}

func TestBuildListSummary(t *testing.T) {
	t.Setenv("MARKETDB_OUTPUT_DIR", "")
	t.Setenv("LOG_LEVEL", "")
	path, out := writeConfig(t)

	text, err := execute(t, "--config", path, "build", "--dry-run")
	require.NoError(t, err)
	require.Contains(t, text, "tickers_v1 (target=tickers) [NEW]")

	text, err = execute(t, "--config", path, "build")
	require.NoError(t, err)
	require.Contains(t, text, "Database directory: "+out)
	require.FileExists(t, filepath.Join(out, "tickers.parquet"))

	text, err = execute(t, "--config", path, "list")
	require.NoError(t, err)
	require.Contains(t, text, "insider_trades_v2")
	require.NotContains(t, text, "PENDING")

	text, err = execute(t, "--config", path, "summary", "tickers")
	require.NoError(t, err)
	require.Contains(t, text, "TICKERS")
	require.NotContains(t, text, "MARKET CAP")
}

func TestUnknownNamesFail(t *testing.T) {
	t.Setenv("MARKETDB_OUTPUT_DIR", "")
	path, _ := writeConfig(t)

	_, err := execute(t, "--config", path, "build", "weekly_aggs")
	require.ErrorIs(t, err, pipeline.ErrUnknownTarget)

	_, err = execute(t, "--config", path, "summary", "weekly_aggs")
	require.ErrorIs(t, err, summary.ErrUnknownTable)
}

func TestMissingConfigFails(t *testing.T) {
	_, err := execute(t, "--config", filepath.Join(t.TempDir(), "missing.yml"), "list")
	require.Error(t, err)
}
