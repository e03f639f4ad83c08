// Package summary prints a human readable overview of a built store so a
// build can be eyeballed for obviously wrong output.
package summary

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"marketdb/models"
	"marketdb/reader"
	"marketdb/writer"
)

// ErrUnknownTable is returned for a table name the store does not have.
var ErrUnknownTable = errors.New("unknown table")

const (
	sampleRows = 5
	topRows    = 10
	dayLayout  = "2006-01-02"
)

var printer = message.NewPrinter(language.English)

// Summarizer writes table summaries of the store under root.
type Summarizer struct {
	root string
	w    io.Writer
}

func New(root string, w io.Writer) *Summarizer {
	return &Summarizer{root: root, w: w}
}

// Validate fails with ErrUnknownTable for the first unknown name.
func Validate(tables []string) error {
	for _, t := range tables {
		if !known(t) {
			return fmt.Errorf("%w: '%s'. Choices: %s", ErrUnknownTable, t, strings.Join(models.Tables, ", "))
		}
	}
	return nil
}

func known(table string) bool {
	for _, t := range models.Tables {
		if t == table {
			return true
		}
	}
	return false
}

// Run summarises tables, or every table when none are given.
func (s *Summarizer) Run(tables []string) error {
	if len(tables) == 0 {
		tables = models.Tables
	}
	if err := Validate(tables); err != nil {
		return err
	}

	fmt.Fprintf(s.w, "Database directory: %s\n", s.root)
	fmt.Fprintf(s.w, "Total DB size: %s\n", fileSize(s.root))
	for _, t := range tables {
		if err := s.table(t); err != nil {
			return fmt.Errorf("summarize %s: %w", t, err)
		}
	}
	fmt.Fprintln(s.w)
	return nil
}

func (s *Summarizer) table(name string) error {
	switch name {
	case models.TableTickers:
		return s.tickers()
	case models.TablePrices:
		return s.prices()
	case models.TableDailyAggs:
		return s.dailyAggs()
	case models.TableTenDayAggs:
		return s.blocks("10-DAY AGGS", name, 10)
	case models.TableHundredDayAggs:
		return s.blocks("100-DAY AGGS", name, 100)
	case models.TableMarketCap:
		return s.marketCap()
	case models.TableInsiderTrades:
		return s.insiderTrades()
	}
	return fmt.Errorf("%w: %s", ErrUnknownTable, name)
}

func (s *Summarizer) section(title string) {
	bar := strings.Repeat("=", 60)
	fmt.Fprintf(s.w, "\n%s\n  %s\n%s\n", bar, title, bar)
}

// exists prints the "not found" section when the table is missing.
func (s *Summarizer) exists(title, path string) bool {
	if _, err := os.Stat(path); err != nil {
		s.section(title + " (not found)")
		return false
	}
	s.section(title)
	return true
}

/////////////////////////////////////////////////////////////////////////////
////////////////////////////////// TABLES ///////////////////////////////////
/////////////////////////////////////////////////////////////////////////////

func (s *Summarizer) tickers() error {
	path := writer.SingleFilePath(s.root, models.TableTickers)
	if !s.exists("TICKERS", path) {
		return nil
	}
	rows, err := reader.ReadTickers(s.root)
	if err != nil {
		return err
	}

	byType := map[string]int{}
	for _, r := range rows {
		byType[string(r.AssetType)]++
	}
	fmt.Fprintf(s.w, "  Rows: %s  (%s)\n", num(len(rows)), counts(byType))
	fmt.Fprintf(s.w, "  File: %s\n", fileSize(path))

	var sample []string
	for _, i := range spread(len(rows), topRows) {
		sample = append(sample, fmt.Sprintf("%s(%s)", rows[i].Ticker, rows[i].AssetType))
	}
	fmt.Fprintf(s.w, "  Sample: %s\n", strings.Join(sample, ", "))
	return nil
}

type yearStat struct {
	year    int
	rows    int
	tickers int
	size    string
}

func (s *Summarizer) printYears(years []yearStat, perTicker bool) {
	if perTicker {
		fmt.Fprintf(s.w, "\n  %6s %14s %9s %8s %12s\n", "Year", "Rows", "Tickers", "Size", "Rows/Ticker")
		fmt.Fprintf(s.w, "  %s\n", strings.Repeat("-", 53))
	} else {
		fmt.Fprintf(s.w, "\n  %6s %14s %9s %8s\n", "Year", "Rows", "Tickers", "Size")
		fmt.Fprintf(s.w, "  %s\n", strings.Repeat("-", 41))
	}
	for _, y := range years {
		if !perTicker {
			fmt.Fprintf(s.w, "  %6d %14s %9s %8s\n", y.year, num(y.rows), num(y.tickers), y.size)
			continue
		}
		rpt := 0
		if y.tickers > 0 {
			rpt = y.rows / y.tickers
		}
		fmt.Fprintf(s.w, "  %6d %14s %9s %8s %12s\n", y.year, num(y.rows), num(y.tickers), y.size, num(rpt))
	}
}

func (s *Summarizer) prices() error {
	dir := filepath.Join(s.root, models.TablePrices)
	if !s.exists("PRICES", dir) {
		return nil
	}
	years, err := reader.ListYears(dir)
	if err != nil {
		return err
	}

	var (
		stats   []yearStat
		total   int
		tickers = map[string]struct{}{}
		sample  []models.HourlyBar
	)
	for _, y := range years {
		bars, err := reader.ReadHourlyPartition(s.root, y)
		if err != nil {
			return err
		}
		yearTickers := map[string]struct{}{}
		for _, b := range bars {
			yearTickers[b.Ticker] = struct{}{}
			tickers[b.Ticker] = struct{}{}
		}
		total += len(bars)
		stats = append(stats, yearStat{year: y, rows: len(bars), tickers: len(yearTickers), size: fileSize(writer.PartitionDir(dir, y))})
		if len(sample) < sampleRows {
			for _, i := range spread(len(bars), sampleRows-len(sample)) {
				sample = append(sample, bars[i])
			}
		}
	}

	fmt.Fprintf(s.w, "  Rows: %s | Tickers: %s | Years: %s\n", num(total), num(len(tickers)), yearRange(years))
	fmt.Fprintf(s.w, "  Total size: %s\n", fileSize(dir))
	s.printYears(stats, true)

	fmt.Fprintf(s.w, "\n  Sample rows:\n")
	for _, b := range sample {
		fmt.Fprintf(s.w, "    %6s | %s | O:%.2f H:%.2f L:%.2f C:%.2f | V:%s\n",
			b.Ticker, b.TS.Format("2006-01-02 15:04:05"), b.Open, b.High, b.Low, b.Close, num(b.Volume))
	}
	return nil
}

func (s *Summarizer) dailyAggs() error {
	dir := filepath.Join(s.root, models.TableDailyAggs)
	if !s.exists("DAILY AGGS", dir) {
		return nil
	}
	years, err := reader.ListYears(dir)
	if err != nil {
		return err
	}

	var (
		stats     []yearStat
		total     int
		cnts      []float64
		perTicker = map[string]int{}
		first     time.Time
		last      time.Time
		sample    []models.DailyAgg
	)
	for _, y := range years {
		days, err := reader.ReadDailyPartition(s.root, y)
		if err != nil {
			return err
		}
		yearTickers := map[string]struct{}{}
		for _, d := range days {
			yearTickers[d.Ticker] = struct{}{}
			perTicker[d.Ticker]++
			cnts = append(cnts, float64(d.Cnt))
			if first.IsZero() || d.Day.Before(first) {
				first = d.Day
			}
			if d.Day.After(last) {
				last = d.Day
			}
		}
		total += len(days)
		stats = append(stats, yearStat{year: y, rows: len(days), tickers: len(yearTickers), size: fileSize(writer.PartitionDir(dir, y))})
		if len(sample) < sampleRows {
			for _, i := range spread(len(days), sampleRows-len(sample)) {
				sample = append(sample, days[i])
			}
		}
	}

	fmt.Fprintf(s.w, "  Rows: %s | Tickers: %s | Dates: %s to %s\n", num(total), num(len(perTicker)), day(first), day(last))
	fmt.Fprintf(s.w, "  Total size: %s\n", fileSize(dir))
	c := describe(cnts)
	fmt.Fprintf(s.w, "  Bars per day, min: %.0f, median: %.0f, max: %.0f, avg: %.1f\n", c.min, c.median, c.max, c.avg)

	tickerDays := make([]float64, 0, len(perTicker))
	for _, n := range perTicker {
		tickerDays = append(tickerDays, float64(n))
	}
	td := describe(tickerDays)
	fmt.Fprintf(s.w, "  Days per ticker, min: %s, median: %s, max: %s\n", num(int64(td.min)), num(int64(td.median)), num(int64(td.max)))
	s.printYears(stats, false)

	fmt.Fprintf(s.w, "\n  Sample rows:\n")
	for _, d := range sample {
		fmt.Fprintf(s.w, "    %6s | %s | O:%.2f H:%.2f L:%.2f C:%.2f | V:%s | %d bars\n",
			d.Ticker, day(d.Day), d.Open, d.High, d.Low, d.Close, num(d.Volume), d.Cnt)
	}
	return nil
}

func (s *Summarizer) blocks(title, table string, n int) error {
	path := writer.SingleFilePath(s.root, table)
	if !s.exists(title, path) {
		return nil
	}
	rows, err := reader.ReadBlocks(s.root, table)
	if err != nil {
		return err
	}

	tickers := map[string]struct{}{}
	dayCnts := make([]float64, 0, len(rows))
	var first, last time.Time
	for _, b := range rows {
		tickers[b.Ticker] = struct{}{}
		dayCnts = append(dayCnts, float64(b.DayCnt))
		if first.IsZero() || b.BlockStart.Before(first) {
			first = b.BlockStart
		}
		if b.BlockEnd.After(last) {
			last = b.BlockEnd
		}
	}

	fmt.Fprintf(s.w, "  Rows: %s | Tickers: %s | Range: %s to %s\n", num(len(rows)), num(len(tickers)), day(first), day(last))
	fmt.Fprintf(s.w, "  File: %s\n", fileSize(path))
	d := describe(dayCnts)
	fmt.Fprintf(s.w, "  Days per block, min: %.0f, median: %.0f, max: %.0f, avg: %.1f (expect <=%d)\n", d.min, d.median, d.max, d.avg, n)

	fmt.Fprintf(s.w, "\n  Sample rows:\n")
	for _, i := range spread(len(rows), sampleRows) {
		b := rows[i]
		fmt.Fprintf(s.w, "    %6s | %s to %s | O:%.2f C:%.2f | V:%s | %d days\n",
			b.Ticker, day(b.BlockStart), day(b.BlockEnd), b.Open, b.Close, num(b.Volume), b.DayCnt)
	}
	return nil
}

func (s *Summarizer) marketCap() error {
	path := writer.SingleFilePath(s.root, models.TableMarketCap)
	if !s.exists("MARKET CAP", path) {
		return nil
	}
	rows, err := reader.ReadMarketCap(s.root)
	if err != nil {
		return err
	}

	latest := map[string]models.MarketCapRecord{}
	caps := make([]float64, 0, len(rows))
	var first, last time.Time
	for _, r := range rows {
		caps = append(caps, float64(r.Cap))
		if cur, ok := latest[r.Ticker]; !ok || r.Day.After(cur.Day) {
			latest[r.Ticker] = r
		}
		if first.IsZero() || r.Day.Before(first) {
			first = r.Day
		}
		if r.Day.After(last) {
			last = r.Day
		}
	}

	fmt.Fprintf(s.w, "  Rows: %s | Tickers: %s | Dates: %s to %s\n", num(len(rows)), num(len(latest)), day(first), day(last))
	fmt.Fprintf(s.w, "  File: %s\n", fileSize(path))
	c := describe(caps)
	fmt.Fprintf(s.w, "  Cap range, min: $%s  median: $%s  max: $%s\n", num(int64(c.min)), num(int64(c.median)), num(int64(c.max)))

	top := make([]models.MarketCapRecord, 0, len(latest))
	for _, r := range latest {
		top = append(top, r)
	}
	sort.Slice(top, func(i, j int) bool {
		if top[i].Cap != top[j].Cap {
			return top[i].Cap > top[j].Cap
		}
		return top[i].Ticker < top[j].Ticker
	})
	if len(top) > topRows {
		top = top[:topRows]
	}
	fmt.Fprintf(s.w, "\n  Top %d by latest market cap:\n", topRows)
	for _, r := range top {
		fmt.Fprintf(s.w, "    %6s  $%s\n", r.Ticker, num(r.Cap))
	}
	return nil
}

func (s *Summarizer) insiderTrades() error {
	path := writer.SingleFilePath(s.root, models.TableInsiderTrades)
	if !s.exists("INSIDER TRADES", path) {
		return nil
	}
	rows, err := reader.ReadInsiderTrades(s.root)
	if err != nil {
		return err
	}

	perTicker := map[string]int{}
	txCodes := map[string]int{}
	ad := map[string]int{}
	ownership := map[string]int{}
	var first, last time.Time
	for _, r := range rows {
		perTicker[r.Ticker]++
		txCodes[r.TxCode]++
		ad[r.AcquiredDisposed]++
		ownership[r.OwnershipType]++
		if first.IsZero() || r.TradeDate.Before(first) {
			first = r.TradeDate
		}
		if r.TradeDate.After(last) {
			last = r.TradeDate
		}
	}

	fmt.Fprintf(s.w, "  Rows: %s | Tickers: %s | Dates: %s to %s\n", num(len(rows)), num(len(perTicker)), day(first), day(last))
	fmt.Fprintf(s.w, "  File: %s\n", fileSize(path))
	fmt.Fprintf(s.w, "  Transaction types: %s\n", pairs(txCodes))
	fmt.Fprintf(s.w, "  Acquired/Disposed: %s\n", pairs(ad))
	fmt.Fprintf(s.w, "  Ownership type: %s\n", pairs(ownership))

	fmt.Fprintf(s.w, "\n  Top %d most-traded tickers:\n", topRows)
	for _, kv := range topCounts(perTicker, topRows) {
		fmt.Fprintf(s.w, "    %6s  %s trades\n", kv.key, num(kv.n))
	}

	fmt.Fprintf(s.w, "\n  Sample rows:\n")
	for _, i := range spread(len(rows), sampleRows) {
		r := rows[i]
		value := "N/A"
		if r.TotalValue != nil {
			value = "$" + printer.Sprintf("%.2f", *r.TotalValue)
		}
		name := r.InsiderName
		if name == "" {
			name = "N/A"
		} else if len(name) > 30 {
			name = name[:30] + "..."
		}
		fmt.Fprintf(s.w, "    %6s | %s | %s | %s shares | %s | %s\n",
			r.Ticker, day(r.TradeDate), r.TxCode, printer.Sprintf("%.2f", r.Shares), value, name)
	}
	return nil
}

/////////////////////////////////////////////////////////////////////////////
////////////////////////////////// HELPERS //////////////////////////////////
/////////////////////////////////////////////////////////////////////////////

type integer interface {
	~int | ~int32 | ~int64
}

// num formats an integer with thousands separators.
func num[T integer](n T) string {
	return printer.Sprintf("%d", int64(n))
}

func day(t time.Time) string {
	if t.IsZero() {
		return "N/A"
	}
	return t.Format(dayLayout)
}

func yearRange(years []int) string {
	if len(years) == 0 {
		return "N/A"
	}
	return fmt.Sprintf("%d-%d", years[0], years[len(years)-1])
}

// spread picks up to k evenly spaced indexes of n rows so samples are stable
// across runs.
func spread(n, k int) []int {
	if n <= 0 || k <= 0 {
		return nil
	}
	if k > n {
		k = n
	}
	out := make([]int, k)
	for i := range out {
		out[i] = i * n / k
	}
	return out
}

type dist struct {
	min, median, max, avg float64
}

func describe(vals []float64) dist {
	if len(vals) == 0 {
		return dist{}
	}
	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)
	var sum float64
	for _, v := range sorted {
		sum += v
	}
	mid := len(sorted) / 2
	median := sorted[mid]
	if len(sorted)%2 == 0 {
		median = (sorted[mid-1] + sorted[mid]) / 2
	}
	return dist{min: sorted[0], median: median, max: sorted[len(sorted)-1], avg: sum / float64(len(sorted))}
}

type keyCount struct {
	key string
	n   int
}

func topCounts(m map[string]int, k int) []keyCount {
	out := make([]keyCount, 0, len(m))
	for key, n := range m {
		out = append(out, keyCount{key: key, n: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].n != out[j].n {
			return out[i].n > out[j].n
		}
		return out[i].key < out[j].key
	})
	if len(out) > k {
		out = out[:k]
	}
	return out
}

// pairs renders counts as "k=n" sorted by key.
func pairs(m map[string]int) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%s", k, num(m[k]))
	}
	return strings.Join(parts, ", ")
}

// counts renders counts as "n key" sorted by key.
func counts(m map[string]int) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s %s", num(m[k]), k)
	}
	return strings.Join(parts, ", ")
}

// fileSize totals the size of a file or directory tree.
func fileSize(path string) string {
	var total int64
	err := filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	if err != nil {
		return "N/A"
	}

	size := float64(total)
	for _, unit := range []string{"B", "KB", "MB", "GB"} {
		if size < 1024 {
			if unit == "B" {
				return fmt.Sprintf("%.0f%s", size, unit)
			}
			return fmt.Sprintf("%.1f%s", size, unit)
		}
		size /= 1024
	}
	return fmt.Sprintf("%.1fTB", size)
}
