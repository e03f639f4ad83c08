package writer

import (
	"time"

	"marketdb/models"
)

// Parquet record layouts of the stored tables. Timestamps are stored as
// TIMESTAMP_MILLIS and calendar days as DATE (days since the epoch).

type TickerRecord struct {
	Ticker    string `parquet:"name=ticker, type=BYTE_ARRAY, convertedtype=UTF8"`
	AssetType string `parquet:"name=asset_type, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// FragmentRecord is an admitted raw bar kept between the two price passes.
type FragmentRecord struct {
	Ticker string  `parquet:"name=ticker, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	TS     int64   `parquet:"name=ts, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
	Open   float64 `parquet:"name=open, type=DOUBLE"`
	High   float64 `parquet:"name=high, type=DOUBLE"`
	Low    float64 `parquet:"name=low, type=DOUBLE"`
	Close  float64 `parquet:"name=close, type=DOUBLE"`
	Volume float64 `parquet:"name=volume, type=DOUBLE"`
	Source string  `parquet:"name=source, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
}

type HourlyRecord struct {
	Ticker string  `parquet:"name=ticker, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	TS     int64   `parquet:"name=ts, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
	Open   float64 `parquet:"name=open, type=DOUBLE"`
	High   float64 `parquet:"name=high, type=DOUBLE"`
	Low    float64 `parquet:"name=low, type=DOUBLE"`
	Close  float64 `parquet:"name=close, type=DOUBLE"`
	Volume int64   `parquet:"name=volume, type=INT64"`
}

type DailyRecord struct {
	Ticker    string  `parquet:"name=ticker, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Day       int32   `parquet:"name=day, type=INT32, convertedtype=DATE"`
	Open      float64 `parquet:"name=open, type=DOUBLE"`
	High      float64 `parquet:"name=high, type=DOUBLE"`
	Low       float64 `parquet:"name=low, type=DOUBLE"`
	Close     float64 `parquet:"name=close, type=DOUBLE"`
	Volume    int64   `parquet:"name=volume, type=INT64"`
	SumOpen   float64 `parquet:"name=sum_open, type=DOUBLE"`
	SumHigh   float64 `parquet:"name=sum_high, type=DOUBLE"`
	SumLow    float64 `parquet:"name=sum_low, type=DOUBLE"`
	SumClose  float64 `parquet:"name=sum_close, type=DOUBLE"`
	SumVolume int64   `parquet:"name=sum_volume, type=INT64"`
	Cnt       int64   `parquet:"name=cnt, type=INT64"`
}

type BlockRecord struct {
	Ticker     string  `parquet:"name=ticker, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	BlockStart int32   `parquet:"name=block_start, type=INT32, convertedtype=DATE"`
	BlockEnd   int32   `parquet:"name=block_end, type=INT32, convertedtype=DATE"`
	Open       float64 `parquet:"name=open, type=DOUBLE"`
	High       float64 `parquet:"name=high, type=DOUBLE"`
	Low        float64 `parquet:"name=low, type=DOUBLE"`
	Close      float64 `parquet:"name=close, type=DOUBLE"`
	Volume     int64   `parquet:"name=volume, type=INT64"`
	SumOpen    float64 `parquet:"name=sum_open, type=DOUBLE"`
	SumHigh    float64 `parquet:"name=sum_high, type=DOUBLE"`
	SumLow     float64 `parquet:"name=sum_low, type=DOUBLE"`
	SumClose   float64 `parquet:"name=sum_close, type=DOUBLE"`
	SumVolume  int64   `parquet:"name=sum_volume, type=INT64"`
	Cnt        int64   `parquet:"name=cnt, type=INT64"`
	DayCnt     int64   `parquet:"name=day_cnt, type=INT64"`
}

type MarketCapRecord struct {
	Ticker string `parquet:"name=ticker, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Day    int32  `parquet:"name=day, type=INT32, convertedtype=DATE"`
	Cap    int64  `parquet:"name=cap, type=INT64"`
}

type InsiderRecord struct {
	Ticker           string   `parquet:"name=ticker, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	TradeDate        int32    `parquet:"name=trade_date, type=INT32, convertedtype=DATE"`
	TxCode           string   `parquet:"name=tx_code, type=BYTE_ARRAY, convertedtype=UTF8"`
	Shares           float64  `parquet:"name=shares, type=DOUBLE"`
	TotalValue       *float64 `parquet:"name=total_value, type=DOUBLE, repetitiontype=OPTIONAL"`
	AcquiredDisposed string   `parquet:"name=acquired_disposed, type=BYTE_ARRAY, convertedtype=UTF8"`
	SharesAfter      *float64 `parquet:"name=shares_after, type=DOUBLE, repetitiontype=OPTIONAL"`
	OwnershipType    string   `parquet:"name=ownership_type, type=BYTE_ARRAY, convertedtype=UTF8"`
	IsDirector       bool     `parquet:"name=is_director, type=BOOLEAN"`
	IsOfficer        bool     `parquet:"name=is_officer, type=BOOLEAN"`
	IsTenPctOwner    bool     `parquet:"name=is_ten_pct_owner, type=BOOLEAN"`
	InsiderName      string   `parquet:"name=insider_name, type=BYTE_ARRAY, convertedtype=UTF8"`
	InsiderCIK       string   `parquet:"name=insider_cik, type=BYTE_ARRAY, convertedtype=UTF8"`
	OfficerTitle     *string  `parquet:"name=officer_title, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
}

const secondsPerDay = 86400

// EpochDay converts a calendar day to the parquet DATE representation.
func EpochDay(t time.Time) int32 {
	secs := models.DayOf(t).Unix()
	days := secs / secondsPerDay
	if secs%secondsPerDay < 0 {
		days--
	}
	return int32(days)
}

// FromEpochDay is the inverse of EpochDay.
func FromEpochDay(d int32) time.Time {
	return time.Unix(int64(d)*secondsPerDay, 0).UTC()
}

func FromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

/////////////////////////////////////////////////////////////////////////////
////////////////////////////// CONVERSIONS //////////////////////////////////
/////////////////////////////////////////////////////////////////////////////

func TickerRecords(rows []models.Ticker) []TickerRecord {
	out := make([]TickerRecord, len(rows))
	for i, r := range rows {
		out[i] = TickerRecord{Ticker: r.Ticker, AssetType: string(r.AssetType)}
	}
	return out
}

func (r TickerRecord) Model() models.Ticker {
	return models.Ticker{Ticker: r.Ticker, AssetType: models.AssetType(r.AssetType)}
}

func FragmentRecords(rows []models.RawBar) []FragmentRecord {
	out := make([]FragmentRecord, len(rows))
	for i, r := range rows {
		out[i] = FragmentRecord{
			Ticker: r.Ticker,
			TS:     r.TS.UnixMilli(),
			Open:   r.Open,
			High:   r.High,
			Low:    r.Low,
			Close:  r.Close,
			Volume: r.Volume,
			Source: string(r.Source),
		}
	}
	return out
}

func (r FragmentRecord) Model() models.RawBar {
	return models.RawBar{
		Ticker: r.Ticker,
		Source: models.Source(r.Source),
		TS:     FromMillis(r.TS),
		Open:   r.Open,
		High:   r.High,
		Low:    r.Low,
		Close:  r.Close,
		Volume: r.Volume,
	}
}

func HourlyRecords(rows []models.HourlyBar) []HourlyRecord {
	out := make([]HourlyRecord, len(rows))
	for i, r := range rows {
		out[i] = HourlyRecord{
			Ticker: r.Ticker,
			TS:     r.TS.UnixMilli(),
			Open:   r.Open,
			High:   r.High,
			Low:    r.Low,
			Close:  r.Close,
			Volume: r.Volume,
		}
	}
	return out
}

func (r HourlyRecord) Model() models.HourlyBar {
	return models.HourlyBar{
		Ticker: r.Ticker,
		TS:     FromMillis(r.TS),
		Open:   r.Open,
		High:   r.High,
		Low:    r.Low,
		Close:  r.Close,
		Volume: r.Volume,
	}
}

func DailyRecords(rows []models.DailyAgg) []DailyRecord {
	out := make([]DailyRecord, len(rows))
	for i, r := range rows {
		out[i] = DailyRecord{
			Ticker:    r.Ticker,
			Day:       EpochDay(r.Day),
			Open:      r.Open,
			High:      r.High,
			Low:       r.Low,
			Close:     r.Close,
			Volume:    r.Volume,
			SumOpen:   r.SumOpen,
			SumHigh:   r.SumHigh,
			SumLow:    r.SumLow,
			SumClose:  r.SumClose,
			SumVolume: r.SumVolume,
			Cnt:       r.Cnt,
		}
	}
	return out
}

func (r DailyRecord) Model() models.DailyAgg {
	return models.DailyAgg{
		Ticker: r.Ticker,
		Day:    FromEpochDay(r.Day),
		Open:   r.Open,
		High:   r.High,
		Low:    r.Low,
		Close:  r.Close,
		Volume: r.Volume,
		ComponentSums: models.ComponentSums{
			SumOpen:   r.SumOpen,
			SumHigh:   r.SumHigh,
			SumLow:    r.SumLow,
			SumClose:  r.SumClose,
			SumVolume: r.SumVolume,
			Cnt:       r.Cnt,
		},
	}
}

func BlockRecords(rows []models.BlockAgg) []BlockRecord {
	out := make([]BlockRecord, len(rows))
	for i, r := range rows {
		out[i] = BlockRecord{
			Ticker:     r.Ticker,
			BlockStart: EpochDay(r.BlockStart),
			BlockEnd:   EpochDay(r.BlockEnd),
			Open:       r.Open,
			High:       r.High,
			Low:        r.Low,
			Close:      r.Close,
			Volume:     r.Volume,
			SumOpen:    r.SumOpen,
			SumHigh:    r.SumHigh,
			SumLow:     r.SumLow,
			SumClose:   r.SumClose,
			SumVolume:  r.SumVolume,
			Cnt:        r.Cnt,
			DayCnt:     r.DayCnt,
		}
	}
	return out
}

func (r BlockRecord) Model() models.BlockAgg {
	return models.BlockAgg{
		Ticker:     r.Ticker,
		BlockStart: FromEpochDay(r.BlockStart),
		BlockEnd:   FromEpochDay(r.BlockEnd),
		Open:       r.Open,
		High:       r.High,
		Low:        r.Low,
		Close:      r.Close,
		Volume:     r.Volume,
		ComponentSums: models.ComponentSums{
			SumOpen:   r.SumOpen,
			SumHigh:   r.SumHigh,
			SumLow:    r.SumLow,
			SumClose:  r.SumClose,
			SumVolume: r.SumVolume,
			Cnt:       r.Cnt,
		},
		DayCnt: r.DayCnt,
	}
}

func MarketCapRecords(rows []models.MarketCapRecord) []MarketCapRecord {
	out := make([]MarketCapRecord, len(rows))
	for i, r := range rows {
		out[i] = MarketCapRecord{Ticker: r.Ticker, Day: EpochDay(r.Day), Cap: r.Cap}
	}
	return out
}

func (r MarketCapRecord) Model() models.MarketCapRecord {
	return models.MarketCapRecord{Ticker: r.Ticker, Day: FromEpochDay(r.Day), Cap: r.Cap}
}

func InsiderRecords(rows []models.InsiderTrade) []InsiderRecord {
	out := make([]InsiderRecord, len(rows))
	for i, r := range rows {
		out[i] = InsiderRecord{
			Ticker:           r.Ticker,
			TradeDate:        EpochDay(r.TradeDate),
			TxCode:           r.TxCode,
			Shares:           r.Shares,
			TotalValue:       r.TotalValue,
			AcquiredDisposed: r.AcquiredDisposed,
			SharesAfter:      r.SharesAfter,
			OwnershipType:    r.OwnershipType,
			IsDirector:       r.IsDirector,
			IsOfficer:        r.IsOfficer,
			IsTenPctOwner:    r.IsTenPctOwner,
			InsiderName:      r.InsiderName,
			InsiderCIK:       r.InsiderCIK,
			OfficerTitle:     r.OfficerTitle,
		}
	}
	return out
}

func (r InsiderRecord) Model() models.InsiderTrade {
	return models.InsiderTrade{
		Ticker:           r.Ticker,
		TradeDate:        FromEpochDay(r.TradeDate),
		TxCode:           r.TxCode,
		Shares:           r.Shares,
		TotalValue:       r.TotalValue,
		AcquiredDisposed: r.AcquiredDisposed,
		SharesAfter:      r.SharesAfter,
		OwnershipType:    r.OwnershipType,
		IsDirector:       r.IsDirector,
		IsOfficer:        r.IsOfficer,
		IsTenPctOwner:    r.IsTenPctOwner,
		InsiderName:      r.InsiderName,
		InsiderCIK:       r.InsiderCIK,
		OfficerTitle:     r.OfficerTitle,
	}
}
