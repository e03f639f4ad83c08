package processor

import (
	"sort"

	"marketdb/models"
)

// Registry is the ticker dimension: every ticker seen in any raw feed mapped
// to the feed that is authoritative for it.
type Registry struct {
	winners map[string]models.Source
	overlap int
	sorted  []string
}

// NewRegistry builds the registry from the tickers observed per feed. A ticker
// present in several feeds is assigned to the most preferred one.
func NewRegistry(observed map[models.Source][]string) *Registry {
	r := &Registry{winners: make(map[string]models.Source)}
	seenIn := make(map[string]int)

	for _, source := range sortedSources(observed) {
		dedup := make(map[string]struct{}, len(observed[source]))
		for _, ticker := range observed[source] {
			if ticker == "" {
				continue
			}
			if _, ok := dedup[ticker]; ok {
				continue
			}
			dedup[ticker] = struct{}{}
			seenIn[ticker]++

			current, ok := r.winners[ticker]
			if !ok || source.Preferred(current) {
				r.winners[ticker] = source
			}
		}
	}

	for _, n := range seenIn {
		if n > 1 {
			r.overlap++
		}
	}
	r.index()
	return r
}

// RegistryFromTickers rebuilds a registry from persisted ticker rows.
func RegistryFromTickers(rows []models.Ticker) *Registry {
	r := &Registry{winners: make(map[string]models.Source, len(rows))}
	for _, row := range rows {
		if row.Ticker == "" {
			continue
		}
		r.winners[row.Ticker] = row.AssetType.Source()
	}
	r.index()
	return r
}

func sortedSources(observed map[models.Source][]string) []models.Source {
	sources := make([]models.Source, 0, len(observed))
	for s := range observed {
		sources = append(sources, s)
	}
	sort.Slice(sources, func(i, j int) bool {
		if sources[i].Rank() != sources[j].Rank() {
			return sources[i].Rank() < sources[j].Rank()
		}
		return sources[i] < sources[j]
	})
	return sources
}

func (r *Registry) index() {
	r.sorted = make([]string, 0, len(r.winners))
	for ticker := range r.winners {
		r.sorted = append(r.sorted, ticker)
	}
	sort.Strings(r.sorted)
}

// Lookup returns the asset type of ticker.
func (r *Registry) Lookup(ticker string) (models.AssetType, bool) {
	s, ok := r.winners[ticker]
	if !ok {
		return "", false
	}
	return models.AssetTypeOf(s), true
}

// Contains reports whether ticker is in the registry.
func (r *Registry) Contains(ticker string) bool {
	_, ok := r.winners[ticker]
	return ok
}

// Winner returns the feed whose rows are kept for ticker.
func (r *Registry) Winner(ticker string) (models.Source, bool) {
	s, ok := r.winners[ticker]
	return s, ok
}

// Tickers returns the dimension rows sorted by ticker.
func (r *Registry) Tickers() []models.Ticker {
	out := make([]models.Ticker, 0, len(r.sorted))
	for _, ticker := range r.sorted {
		out = append(out, models.Ticker{Ticker: ticker, AssetType: models.AssetTypeOf(r.winners[ticker])})
	}
	return out
}

// Len is the number of distinct tickers.
func (r *Registry) Len() int {
	return len(r.winners)
}

// Overlap is the number of tickers observed in more than one feed. It is
// zero for registries loaded from persisted rows.
func (r *Registry) Overlap() int {
	return r.overlap
}
