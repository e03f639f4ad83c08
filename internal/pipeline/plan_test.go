package pipeline

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"marketdb/internal/metadata"
)

func ids(plan []PlannedStep) []string {
	out := make([]string, len(plan))
	for i, p := range plan {
		out[i] = p.ID
	}
	return out
}

func doneManifest(t *testing.T, steps Steps, except ...string) *metadata.Manifest {
	t.Helper()
	skip := map[string]bool{}
	for _, id := range except {
		skip[id] = true
	}
	m := metadata.Empty(t.TempDir())
	for _, st := range steps {
		if !skip[st.ID] {
			m.Record(st.ID, metadata.StepRecord{Target: st.Target, CompletedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC), ElapsedSeconds: 1.5})
		}
	}
	return m
}

func TestPlanEmptyManifestRunsEverything(t *testing.T) {
	steps := DefaultSteps()
	plan := steps.Plan(metadata.Empty(t.TempDir()), nil, false)
	require.Len(t, plan, len(steps))
	for _, p := range plan {
		require.Equal(t, StatusNew, p.Status)
	}
}

func TestPlanUpToDate(t *testing.T) {
	steps := DefaultSteps()
	require.Empty(t, steps.Plan(doneManifest(t, steps), nil, false))
}

func TestPlanRequestedTargetCascades(t *testing.T) {
	steps := DefaultSteps()
	plan := steps.Plan(doneManifest(t, steps), []string{"daily_aggs"}, false)
	require.Equal(t, []string{"daily_aggs_v2", "ten_day_aggs_v1", "hundred_day_aggs_v1"}, ids(plan))
	for _, p := range plan {
		require.Equal(t, StatusRebuild, p.Status)
	}
}

func TestPlanTickersCascadesToEverything(t *testing.T) {
	steps := DefaultSteps()
	plan := steps.Plan(doneManifest(t, steps), []string{"tickers"}, false)
	require.Len(t, plan, len(steps))
}

func TestPlanNewStepVersionCascades(t *testing.T) {
	steps := DefaultSteps()
	plan := steps.Plan(doneManifest(t, steps, "prices_v2"), nil, false)
	require.Equal(t, []string{"prices_v2", "daily_aggs_v2", "ten_day_aggs_v1", "hundred_day_aggs_v1"}, ids(plan))
	require.Equal(t, StatusNew, plan[0].Status)
	require.Equal(t, StatusRebuild, plan[1].Status)
}

func TestPlanLeafTarget(t *testing.T) {
	steps := DefaultSteps()
	plan := steps.Plan(doneManifest(t, steps), []string{"insider_trades"}, false)
	require.Equal(t, []string{"insider_trades_v2"}, ids(plan))
}

func TestPlanFull(t *testing.T) {
	steps := DefaultSteps()
	plan := steps.Plan(doneManifest(t, steps), nil, true)
	require.Len(t, plan, len(steps))
}

func TestDownstream(t *testing.T) {
	steps := DefaultSteps()
	down := steps.Downstream("prices")
	require.Len(t, down, 3)
	require.Contains(t, down, "daily_aggs")
	require.Contains(t, down, "ten_day_aggs")
	require.Contains(t, down, "hundred_day_aggs")
	require.Empty(t, steps.Downstream("market_cap"))
}

func TestValidateTargets(t *testing.T) {
	steps := DefaultSteps()
	require.NoError(t, steps.ValidateTargets([]string{"prices", "market_cap"}))

	err := steps.ValidateTargets([]string{"prices", "weekly_aggs"})
	require.ErrorIs(t, err, ErrUnknownTarget)
	require.Contains(t, err.Error(), "weekly_aggs")
}

func TestPrintPlanAndList(t *testing.T) {
	steps := DefaultSteps()
	m := doneManifest(t, steps, "market_cap_v2")

	var buf bytes.Buffer
	PrintPlan(&buf, steps.Plan(m, []string{"market_cap"}, false))
	require.Contains(t, buf.String(), "market_cap_v2 (target=market_cap) [NEW]")

	buf.Reset()
	steps.List(&buf, m)
	out := buf.String()
	require.Contains(t, out, "DONE (2024-05-01T12:00:00, 1.5s)")
	require.Contains(t, out, "PENDING depends_on=(tickers)")
}

func TestCleanupStale(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"prices_building", "daily_aggs_old", "_prices_temp_fragments", "prices"} {
		require.NoError(t, os.MkdirAll(filepath.Join(dir, name), 0o755))
	}
	for _, name := range []string{"tickers.parquet.tmp", "tickers.parquet", ".build_manifest.json"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}

	removed, err := CleanupStale(dir)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"prices_building", "daily_aggs_old", "_prices_temp_fragments", "tickers.parquet.tmp"}, removed)

	left, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range left {
		names = append(names, e.Name())
	}
	require.ElementsMatch(t, []string{"prices", "tickers.parquet", ".build_manifest.json"}, names)

	removed, err = CleanupStale(filepath.Join(dir, "missing"))
	require.NoError(t, err)
	require.Empty(t, removed)
}
