package processor

import (
	"sort"

	"marketdb/models"
)

// AggregateDaily rolls hourly bars up to one row per (ticker, day). The input
// does not need to be sorted. Output is sorted by (ticker, day).
func AggregateDaily(bars []models.HourlyBar) []models.DailyAgg {
	if len(bars) == 0 {
		return nil
	}

	sorted := make([]models.HourlyBar, len(bars))
	copy(sorted, bars)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Ticker != sorted[j].Ticker {
			return sorted[i].Ticker < sorted[j].Ticker
		}
		return sorted[i].TS.Before(sorted[j].TS)
	})

	var out []models.DailyAgg
	var cur *models.DailyAgg
	for _, bar := range sorted {
		day := bar.Day()
		if cur == nil || cur.Ticker != bar.Ticker || !cur.Day.Equal(day) {
			out = append(out, models.DailyAgg{
				Ticker: bar.Ticker,
				Day:    day,
				Open:   bar.Open,
				High:   bar.High,
				Low:    bar.Low,
			})
			cur = &out[len(out)-1]
		}

		if bar.High > cur.High {
			cur.High = bar.High
		}
		if bar.Low < cur.Low {
			cur.Low = bar.Low
		}
		cur.Close = bar.Close
		cur.Add(models.ComponentSums{
			SumOpen:   bar.Open,
			SumHigh:   bar.High,
			SumLow:    bar.Low,
			SumClose:  bar.Close,
			SumVolume: bar.Volume,
			Cnt:       1,
		})
		cur.Volume = cur.SumVolume
	}
	return out
}
