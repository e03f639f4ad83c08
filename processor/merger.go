package processor

import (
	"math"
	"sort"

	"marketdb/logger"
	"marketdb/models"
)

const volumeTolerance = 1e-6

// MergerOptions bounds the regular trading session by whole hours, both ends
// inclusive: 9..15 keeps 09:00:00 through 15:59:59.
type MergerOptions struct {
	HoursStart int
	HoursEnd   int
}

func DefaultMergerOptions() MergerOptions {
	return MergerOptions{HoursStart: 9, HoursEnd: 15}
}

// MergeStats describes one Merge call.
type MergeStats struct {
	Input      int
	Output     int
	Duplicates int64
	Drops      DropStats
}

// PriceMerger consolidates raw hourly bars from every feed into one canonical
// series per ticker.
type PriceMerger struct {
	registry *Registry
	opts     MergerOptions
	log      *logger.Log
}

func NewPriceMerger(registry *Registry, opts MergerOptions) *PriceMerger {
	return &PriceMerger{
		registry: registry,
		opts:     opts,
		log:      logger.GetLogger(),
	}
}

// Admit reports why a raw bar cannot enter the canonical series, or DropNone.
// Duplicates are not detected here since that needs the whole partition.
func (m *PriceMerger) Admit(bar models.RawBar) DropReason {
	if h := bar.TS.Hour(); h < m.opts.HoursStart || h > m.opts.HoursEnd {
		return DropOutsideHours
	}
	winner, ok := m.registry.Winner(bar.Ticker)
	if !ok {
		return DropUnknownTicker
	}
	if bar.Source != winner {
		return DropLosingSource
	}
	if _, ok := normalizeVolume(bar.Volume); !ok {
		return DropFractionalVolume
	}
	return DropNone
}

func normalizeVolume(v float64) (int64, bool) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	r := math.Round(v)
	if math.Abs(v-r) > volumeTolerance {
		return 0, false
	}
	return int64(r), true
}

type barKey struct {
	ticker string
	ts     int64
}

// Merge admits raws in the given order, keeps the first occurrence of every
// (ticker, ts) and returns the bars sorted by (ticker, ts).
func (m *PriceMerger) Merge(raws []models.RawBar) ([]models.HourlyBar, MergeStats) {
	stats := MergeStats{Input: len(raws), Drops: DropStats{}}
	log := m.log.WithComponent("price_merger")

	seen := make(map[barKey]struct{}, len(raws))
	out := make([]models.HourlyBar, 0, len(raws))
	for _, raw := range raws {
		if reason := m.Admit(raw); reason != DropNone {
			stats.Drops.Add(reason, 1)
			continue
		}
		key := barKey{ticker: raw.Ticker, ts: raw.TS.UnixNano()}
		if _, dup := seen[key]; dup {
			stats.Duplicates++
			stats.Drops.Add(DropDuplicate, 1)
			log.WithFields(logger.Fields{
				"ticker": raw.Ticker,
				"ts":     raw.TS,
				"source": raw.Source,
			}).Debug("duplicate bar in winning source, keeping first occurrence")
			continue
		}
		seen[key] = struct{}{}

		volume, _ := normalizeVolume(raw.Volume)
		out = append(out, models.HourlyBar{
			Ticker: raw.Ticker,
			TS:     raw.TS,
			Open:   raw.Open,
			High:   raw.High,
			Low:    raw.Low,
			Close:  raw.Close,
			Volume: volume,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Ticker != out[j].Ticker {
			return out[i].Ticker < out[j].Ticker
		}
		return out[i].TS.Before(out[j].TS)
	})
	stats.Output = len(out)
	return out, stats
}

// SplitByYear partitions raws by the year of their timestamp. Order inside a
// partition is the input order.
func SplitByYear(raws []models.RawBar) map[int][]models.RawBar {
	out := make(map[int][]models.RawBar)
	for _, raw := range raws {
		y := raw.TS.Year()
		out[y] = append(out[y], raw)
	}
	return out
}
