package processor

import (
	"testing"

	"github.com/stretchr/testify/require"

	"marketdb/models"
)

func TestRegistryETFBeatsStock(t *testing.T) {
	reg := NewRegistry(map[models.Source][]string{
		models.SourceStock: {"AAPL", "SPY", "MSFT", "AAPL"},
		models.SourceETF:   {"SPY", "QQQ"},
	})

	require.Equal(t, 4, reg.Len())
	require.Equal(t, 1, reg.Overlap())

	at, ok := reg.Lookup("SPY")
	require.True(t, ok)
	require.Equal(t, models.AssetETF, at)

	winner, ok := reg.Winner("AAPL")
	require.True(t, ok)
	require.Equal(t, models.SourceStock, winner)

	require.Equal(t, []models.Ticker{
		{Ticker: "AAPL", AssetType: models.AssetStock},
		{Ticker: "MSFT", AssetType: models.AssetStock},
		{Ticker: "QQQ", AssetType: models.AssetETF},
		{Ticker: "SPY", AssetType: models.AssetETF},
	}, reg.Tickers())
}

func TestRegistryEmpty(t *testing.T) {
	reg := NewRegistry(nil)
	require.Equal(t, 0, reg.Len())
	require.Empty(t, reg.Tickers())
	require.False(t, reg.Contains("AAPL"))
}

func TestRegistryIgnoresEmptyTicker(t *testing.T) {
	reg := NewRegistry(map[models.Source][]string{models.SourceStock: {"", "IBM"}})
	require.Equal(t, 1, reg.Len())
}

func TestRegistryFromTickersRoundTrip(t *testing.T) {
	reg := NewRegistry(map[models.Source][]string{
		models.SourceStock: {"AAPL", "SPY"},
		models.SourceETF:   {"SPY"},
	})
	reloaded := RegistryFromTickers(reg.Tickers())
	require.Equal(t, reg.Tickers(), reloaded.Tickers())

	winner, ok := reloaded.Winner("SPY")
	require.True(t, ok)
	require.Equal(t, models.SourceETF, winner)
}
