package pipeline

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/require"

	"marketdb/config"
	"marketdb/internal/metadata"
	"marketdb/models"
	"marketdb/reader"
	"marketdb/writer"
)

const suffix = "_full_1hour_adjsplitdiv.txt"

func writeZip(t *testing.T, path string, members map[string]string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for name, body := range members {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
}

func writeGzip(t *testing.T, path string, lines ...string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	f, err := os.Create(path)
	require.NoError(t, err)
	gw := gzip.NewWriter(f)
	_, err = gw.Write([]byte(strings.Join(lines, "\n") + "\n"))
	require.NoError(t, err)
	require.NoError(t, gw.Close())
	require.NoError(t, f.Close())
}

const filing = `{"periodOfReport":"2020-01-03","issuer":{"tradingSymbol":" aapl "},` +
	`"reportingOwner":{"cik":"0001","name":"Jane Doe","relationship":{"isDirector":true}},` +
	`"nonDerivativeTable":{"transactions":[` +
	`{"transactionDate":"2020-01-02","coding":{"code":"P"},"amounts":{"shares":10,"pricePerShare":"5.5","acquiredDisposedCode":"A"},` +
	`"postTransactionAmounts":{"sharesOwnedFollowingTransaction":110},"ownershipNature":{"directOrIndirectOwnership":"D"}},` +
	`{"transactionDate":"2020-01-02","coding":{"code":"M"},"amounts":{"shares":5}}]}}`

// fixture lays out a small raw data tree and returns a config pointing at it.
func fixture(t *testing.T) config.Config {
	t.Helper()
	raw := t.TempDir()

	writeZip(t, filepath.Join(raw, "stocks", "a.zip"), map[string]string{
		"AAPL" + suffix: strings.Join([]string{
			"2020-01-02 08:00:00,1,1,1,1,10",
			"2020-01-02 09:00:00,100,102,99,101,10",
			"2020-01-02 10:00:00,101,103,100,102,20",
			"2020-01-02 10:00:00,500,500,500,500,30",
			"2021-01-04 09:00:00,110,111,109,110,5",
		}, "\n") + "\n",
		"SPY" + suffix: "2020-01-02 09:00:00,1,1,1,1,1\n",
	})
	writeZip(t, filepath.Join(raw, "etfs", "a.zip"), map[string]string{
		"SPY" + suffix: "2020-01-02 09:00:00,300,301,299,300,1000\n2020-01-02 11:00:00,300,301,299,300,1.5\n",
	})

	capDir := filepath.Join(raw, "market_cap")
	require.NoError(t, os.MkdirAll(capDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(capDir, "AAPL.csv"), []byte("date,market_cap\n2020-01-02,2e12\n2020-01-03,0\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(capDir, "ZZZ.csv"), []byte("date,market_cap\n2020-01-02,1e9\n"), 0o644))

	writeGzip(t, filepath.Join(raw, "insider_trades", "2020.jsonl.gz"), filing, `{broken`)

	cfg := config.Default()
	cfg.Paths = config.PathsConfig{
		StocksDir:        filepath.Join(raw, "stocks"),
		ETFsDir:          filepath.Join(raw, "etfs"),
		MarketCapDir:     capDir,
		InsiderTradesDir: filepath.Join(raw, "insider_trades"),
		OutputDir:        filepath.Join(t.TempDir(), "db"),
	}
	cfg.Build.Workers = 2
	cfg.Build.TickerSuffix = suffix
	return cfg
}

func readAll(t *testing.T, root string) map[string][]byte {
	t.Helper()
	out := map[string][]byte{}
	require.NoError(t, filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() || !strings.HasSuffix(path, ".parquet") {
			return err
		}
		b, err := os.ReadFile(path)
		out[strings.TrimPrefix(path, root)] = b
		return err
	}))
	return out
}

func TestEngineBuildsEveryTable(t *testing.T) {
	cfg := fixture(t)
	root := cfg.Paths.OutputDir
	eng := NewEngine(cfg, WithOutput(&bytes.Buffer{}))

	res, err := eng.Run(context.Background(), Options{})
	require.NoError(t, err)
	require.Len(t, res.Steps, 7)
	require.NotEmpty(t, res.RunID)

	tickers, err := reader.ReadTickers(root)
	require.NoError(t, err)
	require.Equal(t, []models.Ticker{
		{Ticker: "AAPL", AssetType: models.AssetStock},
		{Ticker: "SPY", AssetType: models.AssetETF},
	}, tickers)

	prices2020, err := reader.ReadHourlyPartition(root, 2020)
	require.NoError(t, err)
	require.Len(t, prices2020, 3)
	require.Equal(t, "AAPL", prices2020[0].Ticker)
	require.Equal(t, 101.0, prices2020[1].Open, "first occurrence of a duplicate wins")
	require.Equal(t, "SPY", prices2020[2].Ticker)
	require.Equal(t, 300.0, prices2020[2].Open, "etf feed wins for overlapping tickers")
	require.Equal(t, int64(1000), prices2020[2].Volume)

	prices2021, err := reader.ReadHourlyPartition(root, 2021)
	require.NoError(t, err)
	require.Len(t, prices2021, 1)

	days, err := reader.ReadDailyAll(root)
	require.NoError(t, err)
	require.Len(t, days, 3)
	require.Equal(t, 100.0, days[0].Open)
	require.Equal(t, 103.0, days[0].High)
	require.Equal(t, 99.0, days[0].Low)
	require.Equal(t, 102.0, days[0].Close)
	require.Equal(t, int64(30), days[0].Volume)
	require.Equal(t, int64(2), days[0].Cnt)

	ten, err := reader.ReadBlocks(root, models.TableTenDayAggs)
	require.NoError(t, err)
	require.Len(t, ten, 2)
	require.Equal(t, int64(2), ten[0].DayCnt)
	require.Equal(t, int64(3), ten[0].Cnt)

	hundred, err := reader.ReadBlocks(root, models.TableHundredDayAggs)
	require.NoError(t, err)
	require.Len(t, hundred, 2)

	caps, err := reader.ReadMarketCap(root)
	require.NoError(t, err)
	require.Len(t, caps, 1)
	require.Equal(t, int64(2e12), caps[0].Cap)

	trades, err := reader.ReadInsiderTrades(root)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	require.Equal(t, "AAPL", trades[0].Ticker)
	require.NotNil(t, trades[0].TotalValue)
	require.Equal(t, 55.0, *trades[0].TotalValue)
	require.True(t, trades[0].IsDirector)

	_, err = os.Stat(filepath.Join(root, fragmentsDir))
	require.True(t, os.IsNotExist(err))

	m, err := metadata.Load(root)
	require.NoError(t, err)
	require.Len(t, m.StepIDs(), 7)
	rec, ok := m.Get("prices_v2")
	require.True(t, ok)
	require.Equal(t, res.RunID, rec.RunID)
	require.Len(t, rec.Files, 2)
	require.EqualValues(t, 2020, rec.Files[0].Partition["year"])
	require.Equal(t, int64(3), rec.Files[0].RecordCount)
}

func TestEngineIsIdempotent(t *testing.T) {
	cfg := fixture(t)
	eng := NewEngine(cfg, WithOutput(&bytes.Buffer{}))

	_, err := eng.Run(context.Background(), Options{})
	require.NoError(t, err)
	first := readAll(t, cfg.Paths.OutputDir)

	_, err = eng.Run(context.Background(), Options{Full: true})
	require.NoError(t, err)
	second := readAll(t, cfg.Paths.OutputDir)

	require.Equal(t, len(first), len(second))
	for path, b := range first {
		require.True(t, bytes.Equal(b, second[path]), "file %s changed between identical builds", path)
	}
}

func TestEngineIncrementalRuns(t *testing.T) {
	cfg := fixture(t)
	eng := NewEngine(cfg, WithOutput(&bytes.Buffer{}))
	ctx := context.Background()

	_, err := eng.Run(ctx, Options{})
	require.NoError(t, err)

	res, err := eng.Run(ctx, Options{})
	require.NoError(t, err)
	require.Empty(t, res.Planned)
	require.Empty(t, res.Steps)

	res, err = eng.Run(ctx, Options{Targets: []string{"daily_aggs"}})
	require.NoError(t, err)
	require.Equal(t, []string{"daily_aggs_v2", "ten_day_aggs_v1", "hundred_day_aggs_v1"}, ids(res.Planned))
	require.Len(t, res.Steps, 3)
}

func TestEngineDryRun(t *testing.T) {
	cfg := fixture(t)
	var out bytes.Buffer
	eng := NewEngine(cfg, WithOutput(&out))

	res, err := eng.Run(context.Background(), Options{DryRun: true})
	require.NoError(t, err)
	require.Len(t, res.Planned, 7)
	require.Empty(t, res.Steps)
	require.Contains(t, out.String(), "tickers_v1 (target=tickers) [NEW]")

	_, err = os.Stat(filepath.Join(cfg.Paths.OutputDir, metadata.ManifestFile))
	require.True(t, os.IsNotExist(err))
}

func TestEngineUnknownTarget(t *testing.T) {
	eng := NewEngine(fixture(t))
	_, err := eng.Run(context.Background(), Options{Targets: []string{"nope"}})
	require.ErrorIs(t, err, ErrUnknownTarget)
}

func TestEngineFailureKeepsEarlierSteps(t *testing.T) {
	cfg := fixture(t)
	boom := errors.New("boom")
	steps := DefaultSteps()
	steps[1].Run = func(context.Context, *Env) (writer.TableFiles, error) { return writer.TableFiles{}, boom }

	eng := NewEngine(cfg, WithSteps(steps))
	_, err := eng.Run(context.Background(), Options{})
	require.ErrorIs(t, err, boom)

	m, err := metadata.Load(cfg.Paths.OutputDir)
	require.NoError(t, err)
	require.Equal(t, []string{"tickers_v1"}, m.StepIDs())
}

func TestEngineListShowsStatus(t *testing.T) {
	cfg := fixture(t)
	eng := NewEngine(cfg, WithOutput(&bytes.Buffer{}))
	_, err := eng.Run(context.Background(), Options{Targets: []string{"tickers"}})
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, eng.List(&out))
	require.Contains(t, out.String(), "tickers_v1")
	require.Contains(t, out.String(), "DONE (")
	require.NotContains(t, out.String(), "PENDING")
}

type fakePublisher struct {
	tables []string
	err    error
}

func (p *fakePublisher) PublishTable(_ context.Context, _ string, t writer.TableFiles) error {
	p.tables = append(p.tables, t.Name)
	return p.err
}

func TestEnginePublishes(t *testing.T) {
	cfg := fixture(t)
	pub := &fakePublisher{}
	eng := NewEngine(cfg, WithPublisher(pub, true), WithOutput(&bytes.Buffer{}))

	_, err := eng.Run(context.Background(), Options{})
	require.NoError(t, err)
	require.Equal(t, models.Tables, pub.tables)
}

func TestEnginePublishFailure(t *testing.T) {
	cfg := fixture(t)
	pub := &fakePublisher{err: errors.New("denied")}

	lenient := NewEngine(cfg, WithPublisher(pub, false), WithOutput(&bytes.Buffer{}))
	_, err := lenient.Run(context.Background(), Options{})
	require.NoError(t, err)

	strict := NewEngine(cfg, WithPublisher(pub, true), WithOutput(&bytes.Buffer{}))
	_, err = strict.Run(context.Background(), Options{Full: true})
	require.Error(t, err)
	require.Contains(t, err.Error(), "denied")
}

func TestEngineCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewEngine(fixture(t)).Run(ctx, Options{})
	require.ErrorIs(t, err, context.Canceled)
}

func TestStepEnvWorkers(t *testing.T) {
	env := &Env{Config: config.Config{}}
	require.Equal(t, 1, env.Workers())
	env.Config.Build.Workers = 4
	require.Equal(t, 4, env.Workers())
}
