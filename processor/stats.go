package processor

import (
	"sort"

	"marketdb/logger"
)

// DropReason names why a record was excluded from a table. The empty reason
// means the record was kept.
type DropReason string

const (
	DropNone             DropReason = ""
	DropOutsideHours     DropReason = "outside_hours"
	DropUnknownTicker    DropReason = "unknown_ticker"
	DropLosingSource     DropReason = "losing_source"
	DropFractionalVolume DropReason = "fractional_volume"
	DropDuplicate        DropReason = "duplicate"
	DropCapOutOfRange    DropReason = "cap_out_of_range"
	DropTxCode           DropReason = "tx_code"
	DropMissingShares    DropReason = "missing_shares"
	DropMissingTradeDate DropReason = "missing_trade_date"
	DropTradeDateRange   DropReason = "trade_date_out_of_range"
	DropUnparseableFile  DropReason = "unparseable_file"
	DropMalformedLine    DropReason = "malformed_line"
)

// DropStats counts dropped records per reason.
type DropStats map[DropReason]int64

func (d DropStats) Add(reason DropReason, n int64) {
	if reason == DropNone || n == 0 {
		return
	}
	d[reason] += n
}

func (d DropStats) Merge(other DropStats) {
	for reason, n := range other {
		d.Add(reason, n)
	}
}

func (d DropStats) Total() int64 {
	var total int64
	for _, n := range d {
		total += n
	}
	return total
}

// Reasons returns the recorded reasons in a stable order.
func (d DropStats) Reasons() []DropReason {
	out := make([]DropReason, 0, len(d))
	for reason := range d {
		out = append(out, reason)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Fields renders the counters for structured logging.
func (d DropStats) Fields() logger.Fields {
	fields := make(logger.Fields, len(d)+1)
	for reason, n := range d {
		fields["dropped_"+string(reason)] = n
	}
	fields["dropped_total"] = d.Total()
	return fields
}
