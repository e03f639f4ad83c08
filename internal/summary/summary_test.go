package summary

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"marketdb/models"
	"marketdb/writer"
)

func TestNumGroupsThousands(t *testing.T) {
	require.Equal(t, "1,234,567", num(1234567))
	require.Equal(t, "12", num(int64(12)))
}

func TestSpread(t *testing.T) {
	require.Equal(t, []int{0, 2, 4, 6, 8}, spread(10, 5))
	require.Equal(t, []int{0, 1}, spread(2, 5))
	require.Nil(t, spread(0, 5))
}

func TestDescribe(t *testing.T) {
	d := describe([]float64{7, 1, 3, 5})
	require.Equal(t, dist{min: 1, median: 4, max: 7, avg: 4}, d)
	require.Equal(t, dist{}, describe(nil))
}

func TestValidate(t *testing.T) {
	require.NoError(t, Validate([]string{"prices", "tickers"}))
	require.ErrorIs(t, Validate([]string{"weekly"}), ErrUnknownTable)
}

func TestRunSummarisesBuiltTables(t *testing.T) {
	root := t.TempDir()
	tw := writer.NewTableWriter(root, writer.DefaultOptions())

	_, err := writer.WriteTable(tw, models.TableTickers, writer.TickerRecords([]models.Ticker{
		{Ticker: "AAPL", AssetType: models.AssetStock},
		{Ticker: "SPY", AssetType: models.AssetETF},
	}))
	require.NoError(t, err)

	d := func(s string) time.Time {
		v, err := time.Parse("2006-01-02", s)
		require.NoError(t, err)
		return v
	}
	_, err = writer.WriteTable(tw, models.TableTenDayAggs, writer.BlockRecords([]models.BlockAgg{
		{Ticker: "AAPL", BlockStart: d("2020-01-02"), BlockEnd: d("2020-01-15"), Open: 1, Close: 2, Volume: 1500,
			ComponentSums: models.ComponentSums{Cnt: 70}, DayCnt: 10},
		{Ticker: "AAPL", BlockStart: d("2020-01-16"), BlockEnd: d("2020-01-17"), Open: 2, Close: 3, Volume: 10,
			ComponentSums: models.ComponentSums{Cnt: 14}, DayCnt: 2},
	}))
	require.NoError(t, err)

	_, err = writer.WriteTable(tw, models.TableMarketCap, writer.MarketCapRecords([]models.MarketCapRecord{
		{Ticker: "AAPL", Day: d("2020-01-02"), Cap: 2_000_000_000_000},
		{Ticker: "AAPL", Day: d("2020-01-03"), Cap: 2_100_000_000_000},
		{Ticker: "SPY", Day: d("2020-01-02"), Cap: 300_000_000_000},
	}))
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, New(root, &out).Run(nil))
	text := out.String()

	require.Contains(t, text, "Database directory: "+root)
	require.Contains(t, text, "  TICKERS\n")
	require.Contains(t, text, "Rows: 2  (1 etf, 1 stock)")
	require.Contains(t, text, "PRICES (not found)")
	require.Contains(t, text, "Range: 2020-01-02 to 2020-01-17")
	require.Contains(t, text, "(expect <=10)")
	require.Contains(t, text, "V:1,500 | 10 days")
	require.Contains(t, text, "AAPL  $2,100,000,000,000")
	require.Contains(t, text, "INSIDER TRADES (not found)")
}

func TestRunSelectedTables(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, New(t.TempDir(), &out).Run([]string{models.TableMarketCap}))
	require.Contains(t, out.String(), "MARKET CAP (not found)")
	require.NotContains(t, out.String(), "TICKERS")

	require.ErrorIs(t, New(t.TempDir(), &out).Run([]string{"nope"}), ErrUnknownTable)
}
