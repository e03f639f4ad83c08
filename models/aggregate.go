package models

import "time"

// ComponentSums carries the per-period sums of raw fields so that a coarser
// rollup can be produced by summing without rereading finer data.
type ComponentSums struct {
	SumOpen   float64 `json:"sum_open"`
	SumHigh   float64 `json:"sum_high"`
	SumLow    float64 `json:"sum_low"`
	SumClose  float64 `json:"sum_close"`
	SumVolume int64   `json:"sum_volume"`
	Cnt       int64   `json:"cnt"`
}

// Add accumulates other into s.
func (s *ComponentSums) Add(other ComponentSums) {
	s.SumOpen += other.SumOpen
	s.SumHigh += other.SumHigh
	s.SumLow += other.SumLow
	s.SumClose += other.SumClose
	s.SumVolume += other.SumVolume
	s.Cnt += other.Cnt
}

// DailyAgg is the daily rollup of one ticker's hourly bars.
type DailyAgg struct {
	Ticker string    `json:"ticker"`
	Day    time.Time `json:"day"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
	ComponentSums
}

// Year is the partition key of the row.
func (d DailyAgg) Year() int {
	return d.Day.Year()
}

// BlockAgg is a rollup of up to N consecutive trading days of one ticker.
type BlockAgg struct {
	Ticker     string    `json:"ticker"`
	BlockStart time.Time `json:"block_start"`
	BlockEnd   time.Time `json:"block_end"`
	Open       float64   `json:"open"`
	High       float64   `json:"high"`
	Low        float64   `json:"low"`
	Close      float64   `json:"close"`
	Volume     int64     `json:"volume"`
	ComponentSums
	DayCnt int64 `json:"day_cnt"`
}
