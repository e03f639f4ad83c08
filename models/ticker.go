package models

import (
	"fmt"
	"strings"
)

// Source identifies a raw price feed.
type Source string

const (
	SourceStock Source = "stock"
	SourceETF   Source = "etf"
)

// SourcePreference orders raw feeds from most to least authoritative. When a
// ticker appears in several feeds only the first one listed here is used.
// New feeds are added by inserting them at the right position.
var SourcePreference = []Source{SourceETF, SourceStock}

// Rank returns the position of s in SourcePreference, lower is preferred.
// Unknown sources rank after every known one.
func (s Source) Rank() int {
	for i, p := range SourcePreference {
		if p == s {
			return i
		}
	}
	return len(SourcePreference)
}

// Preferred reports whether s beats other.
func (s Source) Preferred(other Source) bool {
	return s.Rank() < other.Rank()
}

// ParseSource converts a raw source name.
func ParseSource(v string) (Source, error) {
	switch Source(strings.ToLower(strings.TrimSpace(v))) {
	case SourceStock:
		return SourceStock, nil
	case SourceETF:
		return SourceETF, nil
	}
	return "", fmt.Errorf("unknown source %q", v)
}

// AssetType is the stored classification of a ticker. Every asset type maps
// one-to-one to the feed that is authoritative for it.
type AssetType string

const (
	AssetStock AssetType = "stock"
	AssetETF   AssetType = "etf"
)

// Source returns the feed whose price data is authoritative for the asset type.
func (a AssetType) Source() Source {
	return Source(a)
}

// AssetTypeOf returns the asset type implied by the winning feed.
func AssetTypeOf(s Source) AssetType {
	return AssetType(s)
}

// Ticker is one row of the ticker dimension table.
type Ticker struct {
	Ticker    string    `json:"ticker"`
	AssetType AssetType `json:"asset_type"`
}
