package processor

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"marketdb/internal/symbols"
	"marketdb/models"
)

const (
	// MaxMarketCap is the exclusive upper bound for a plausible market cap.
	MaxMarketCap = 2e13

	MinInsiderYear = 2000
	MaxInsiderYear = 2026
)

/////////////////////////////////////////////////////////////////////////////
//////////////////////////////// MARKET CAP /////////////////////////////////
/////////////////////////////////////////////////////////////////////////////

type MarketCapFilter struct {
	registry *Registry
}

func NewMarketCapFilter(registry *Registry) *MarketCapFilter {
	return &MarketCapFilter{registry: registry}
}

// Check returns why a raw observation is rejected, or DropNone.
func (f *MarketCapFilter) Check(raw models.RawMarketCap) DropReason {
	if !f.registry.Contains(raw.Ticker) {
		return DropUnknownTicker
	}
	if _, ok := wholeCap(raw.Cap); !ok {
		return DropCapOutOfRange
	}
	return DropNone
}

// wholeCap rounds v to whole dollars; the bounds apply to the rounded value.
func wholeCap(v float64) (int64, bool) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	c := int64(math.Round(v))
	return c, c > 0 && c < MaxMarketCap
}

// Apply keeps the valid observations, sorted by (ticker, day).
func (f *MarketCapFilter) Apply(raws []models.RawMarketCap) ([]models.MarketCapRecord, DropStats) {
	drops := DropStats{}
	out := make([]models.MarketCapRecord, 0, len(raws))
	for _, raw := range raws {
		if reason := f.Check(raw); reason != DropNone {
			drops.Add(reason, 1)
			continue
		}
		c, _ := wholeCap(raw.Cap)
		out = append(out, models.MarketCapRecord{
			Ticker: raw.Ticker,
			Day:    models.DayOf(raw.Day),
			Cap:    c,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Ticker != out[j].Ticker {
			return out[i].Ticker < out[j].Ticker
		}
		return out[i].Day.Before(out[j].Day)
	})
	return out, drops
}

/////////////////////////////////////////////////////////////////////////////
////////////////////////////// INSIDER TRADES ///////////////////////////////
/////////////////////////////////////////////////////////////////////////////

type InsiderFilter struct {
	registry *Registry
}

func NewInsiderFilter(registry *Registry) *InsiderFilter {
	return &InsiderFilter{registry: registry}
}

// Flatten returns the valid open-market trades of one filing, one row per
// non-derivative transaction.
func (f *InsiderFilter) Flatten(filing models.Form4Filing) []models.InsiderTrade {
	trades, _ := f.flatten(filing)
	return trades
}

// Apply flattens every filing and returns the trades sorted by
// (ticker, trade_date).
func (f *InsiderFilter) Apply(filings []models.Form4Filing) ([]models.InsiderTrade, DropStats) {
	drops := DropStats{}
	var out []models.InsiderTrade
	for _, filing := range filings {
		trades, d := f.flatten(filing)
		drops.Merge(d)
		out = append(out, trades...)
	}
	SortInsiderTrades(out)
	return out, drops
}

// SortInsiderTrades orders trades by (ticker, trade_date) keeping ties in
// input order.
func SortInsiderTrades(trades []models.InsiderTrade) {
	sort.SliceStable(trades, func(i, j int) bool {
		if trades[i].Ticker != trades[j].Ticker {
			return trades[i].Ticker < trades[j].Ticker
		}
		return trades[i].TradeDate.Before(trades[j].TradeDate)
	})
}

func (f *InsiderFilter) flatten(filing models.Form4Filing) ([]models.InsiderTrade, DropStats) {
	drops := DropStats{}
	ticker := symbols.Normalize(filing.Issuer.TradingSymbol)
	owner := filing.ReportingOwner
	rel := owner.Relationship

	var out []models.InsiderTrade
	for _, tx := range filing.NonDerivativeTable.Transactions {
		code := strings.TrimSpace(tx.Coding.Code)
		if code != "P" && code != "S" {
			drops.Add(DropTxCode, 1)
			continue
		}
		shares := tx.Amounts.Shares.Value
		if shares == nil || !finite(*shares) {
			drops.Add(DropMissingShares, 1)
			continue
		}
		if ticker == "" || !f.registry.Contains(ticker) {
			drops.Add(DropUnknownTicker, 1)
			continue
		}
		tradeDate, ok := tradeDateOf(tx.TransactionDate, filing.PeriodOfReport)
		if !ok {
			drops.Add(DropMissingTradeDate, 1)
			continue
		}
		if y := tradeDate.Year(); y < MinInsiderYear || y > MaxInsiderYear {
			drops.Add(DropTradeDateRange, 1)
			continue
		}

		out = append(out, models.InsiderTrade{
			Ticker:           ticker,
			TradeDate:        tradeDate,
			TxCode:           code,
			Shares:           *shares,
			TotalValue:       totalValue(*shares, tx.Amounts.PricePerShare.Value),
			AcquiredDisposed: acquiredDisposed(tx.Amounts.AcquiredDisposedCode, code),
			SharesAfter:      tx.PostTransactionAmounts.SharesOwnedFollowingTransaction.Value,
			OwnershipType:    ownershipType(tx.OwnershipNature.DirectOrIndirectOwnership),
			IsDirector:       flag(rel.IsDirector),
			IsOfficer:        flag(rel.IsOfficer),
			IsTenPctOwner:    flag(rel.IsTenPercentOwner),
			InsiderName:      owner.Name,
			InsiderCIK:       owner.CIK,
			OfficerTitle:     rel.OfficerTitle,
		})
	}
	return out, drops
}

// tradeDateOf prefers the transaction date and falls back to the period of
// report when the former is absent or unparseable.
func tradeDateOf(transactionDate, periodOfReport string) (time.Time, bool) {
	for _, v := range []string{transactionDate, periodOfReport} {
		if d, ok := parseFilingDate(v); ok {
			return d, true
		}
	}
	return time.Time{}, false
}

// parseFilingDate accepts "2006-01-02" optionally followed by a time part.
func parseFilingDate(v string) (time.Time, bool) {
	v = strings.TrimSpace(v)
	if len(v) < 10 {
		return time.Time{}, false
	}
	d, err := time.Parse("2006-01-02", v[:10])
	if err != nil {
		return time.Time{}, false
	}
	return d, true
}

func totalValue(shares float64, price *float64) *float64 {
	if price == nil || !finite(*price) {
		return nil
	}
	v, _ := decimal.NewFromFloat(shares).Mul(decimal.NewFromFloat(*price)).Float64()
	return &v
}

func acquiredDisposed(raw, code string) string {
	switch raw = strings.TrimSpace(raw); raw {
	case "A", "D":
		return raw
	}
	if code == "P" {
		return "A"
	}
	return "D"
}

func ownershipType(raw string) string {
	switch raw = strings.TrimSpace(raw); raw {
	case "D", "I":
		return raw
	}
	return "D"
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func flag(b *bool) bool {
	return b != nil && *b
}
