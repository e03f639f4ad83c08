package models

// Output table names. Partitioned tables are directories of year=YYYY
// partitions, the others are single <name>.parquet files.
const (
	TableTickers        = "tickers"
	TablePrices         = "prices"
	TableDailyAggs      = "daily_aggs"
	TableTenDayAggs     = "ten_day_aggs"
	TableHundredDayAggs = "hundred_day_aggs"
	TableMarketCap      = "market_cap"
	TableInsiderTrades  = "insider_trades"
)

// Tables lists every output table in build order.
var Tables = []string{
	TableTickers,
	TablePrices,
	TableDailyAggs,
	TableTenDayAggs,
	TableHundredDayAggs,
	TableMarketCap,
	TableInsiderTrades,
}

// Partitioned reports whether table is stored as year partitions.
func Partitioned(table string) bool {
	return table == TablePrices || table == TableDailyAggs
}
