package models

import "time"

// RawBar is a single hourly row as read from a raw feed archive. Timestamps
// are exchange wall clock stored in UTC without conversion.
type RawBar struct {
	Ticker string
	Source Source
	TS     time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// HourlyBar is a canonical hourly price bar.
type HourlyBar struct {
	Ticker string    `json:"ticker"`
	TS     time.Time `json:"ts"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}

// Year is the partition key of the bar.
func (b HourlyBar) Year() int {
	return b.TS.Year()
}

// Day truncates the bar timestamp to its calendar day.
func (b HourlyBar) Day() time.Time {
	return DayOf(b.TS)
}

// DayOf truncates t to midnight UTC of the same wall-clock date.
func DayOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
