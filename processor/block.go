package processor

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"marketdb/models"
)

// BlockAggregator rolls trading days up into consecutive non-overlapping
// blocks of N days per ticker. The last block of a ticker holds the remainder.
type BlockAggregator struct {
	n int
}

func NewBlockAggregator(n int) (*BlockAggregator, error) {
	if n < 1 {
		return nil, fmt.Errorf("block size must be at least 1, got %d", n)
	}
	return &BlockAggregator{n: n}, nil
}

// AggregateTicker builds the blocks of a single ticker. days must all belong
// to one ticker; they are sorted by day here. The slice is reordered in place.
func (a *BlockAggregator) AggregateTicker(days []models.DailyAgg) []models.BlockAgg {
	if len(days) == 0 {
		return nil
	}
	sort.SliceStable(days, func(i, j int) bool { return days[i].Day.Before(days[j].Day) })

	out := make([]models.BlockAgg, 0, (len(days)+a.n-1)/a.n)
	for start := 0; start < len(days); start += a.n {
		end := start + a.n
		if end > len(days) {
			end = len(days)
		}
		out = append(out, rollBlock(days[start:end]))
	}
	return out
}

func rollBlock(days []models.DailyAgg) models.BlockAgg {
	first, last := days[0], days[len(days)-1]
	b := models.BlockAgg{
		Ticker:     first.Ticker,
		BlockStart: first.Day,
		BlockEnd:   last.Day,
		Open:       first.Open,
		High:       first.High,
		Low:        first.Low,
		Close:      last.Close,
		DayCnt:     int64(len(days)),
	}
	for _, d := range days {
		if d.High > b.High {
			b.High = d.High
		}
		if d.Low < b.Low {
			b.Low = d.Low
		}
		b.Volume += d.Volume
		b.Add(d.ComponentSums)
	}
	return b
}

// Aggregate splits days by ticker, gives every ticker its own slice and rolls
// the tickers up in parallel. Output is sorted by (ticker, block_start).
func (a *BlockAggregator) Aggregate(ctx context.Context, days []models.DailyAgg, workers int) ([]models.BlockAgg, error) {
	arenas := make(map[string][]models.DailyAgg)
	for _, d := range days {
		arenas[d.Ticker] = append(arenas[d.Ticker], d)
	}
	tickers := make([]string, 0, len(arenas))
	for t := range arenas {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)

	results := make([][]models.BlockAgg, len(tickers))
	g, ctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for i, ticker := range tickers {
		i, arena := i, arenas[ticker]
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = a.AggregateTicker(arena)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("aggregate %d-day blocks: %w", a.n, err)
	}

	total := 0
	for _, r := range results {
		total += len(r)
	}
	out := make([]models.BlockAgg, 0, total)
	for _, r := range results {
		out = append(out, r...)
	}
	return out, nil
}
