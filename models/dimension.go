package models

import (
	"bytes"
	"fmt"
	"strconv"
	"time"

	jsoniter "github.com/json-iterator/go"
)

/////////////////////////////////////////////////////////////////////////////
//////////////////////////////// MARKET CAP /////////////////////////////////
/////////////////////////////////////////////////////////////////////////////

// RawMarketCap is one row of a per-ticker market cap CSV.
type RawMarketCap struct {
	Ticker string
	Day    time.Time
	Cap    float64
}

// MarketCapRecord is a validated market capitalization observation.
type MarketCapRecord struct {
	Ticker string    `json:"ticker"`
	Day    time.Time `json:"day"`
	Cap    int64     `json:"cap"`
}

/////////////////////////////////////////////////////////////////////////////
////////////////////////////////// FORM 4 ///////////////////////////////////
/////////////////////////////////////////////////////////////////////////////

// FlexFloat decodes numbers that feeds emit either bare or quoted. A nil
// pointer means the value was absent, null or empty.
type FlexFloat struct {
	Value *float64
}

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexFloat) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		f.Value = nil
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(b, &s); err != nil {
			return err
		}
		if s == "" {
			f.Value = nil
			return nil
		}
		b = []byte(s)
	}
	v, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return fmt.Errorf("invalid number %q: %w", string(b), err)
	}
	f.Value = &v
	return nil
}

// Form4Filing mirrors the subset of an SEC Form 4 filing used by the store.
type Form4Filing struct {
	PeriodOfReport     string             `json:"periodOfReport"`
	Issuer             Form4Issuer        `json:"issuer"`
	ReportingOwner     Form4Owner         `json:"reportingOwner"`
	NonDerivativeTable Form4NonDerivative `json:"nonDerivativeTable"`
}

type Form4Issuer struct {
	CIK           string `json:"cik"`
	Name          string `json:"name"`
	TradingSymbol string `json:"tradingSymbol"`
}

type Form4Owner struct {
	CIK          string            `json:"cik"`
	Name         string            `json:"name"`
	Relationship Form4Relationship `json:"relationship"`
}

type Form4Relationship struct {
	IsDirector        *bool   `json:"isDirector"`
	IsOfficer         *bool   `json:"isOfficer"`
	IsTenPercentOwner *bool   `json:"isTenPercentOwner"`
	IsOther           *bool   `json:"isOther"`
	OfficerTitle      *string `json:"officerTitle"`
}

type Form4NonDerivative struct {
	Transactions []Form4Transaction `json:"transactions"`
}

type Form4Transaction struct {
	SecurityTitle   string `json:"securityTitle"`
	TransactionDate string `json:"transactionDate"`
	Coding          struct {
		FormType string `json:"formType"`
		Code     string `json:"code"`
	} `json:"coding"`
	Amounts struct {
		Shares               FlexFloat `json:"shares"`
		PricePerShare        FlexFloat `json:"pricePerShare"`
		AcquiredDisposedCode string    `json:"acquiredDisposedCode"`
	} `json:"amounts"`
	PostTransactionAmounts struct {
		SharesOwnedFollowingTransaction FlexFloat `json:"sharesOwnedFollowingTransaction"`
	} `json:"postTransactionAmounts"`
	OwnershipNature struct {
		DirectOrIndirectOwnership string `json:"directOrIndirectOwnership"`
	} `json:"ownershipNature"`
}

// InsiderTrade is one flattened non-derivative Form 4 transaction.
type InsiderTrade struct {
	Ticker           string    `json:"ticker"`
	TradeDate        time.Time `json:"trade_date"`
	TxCode           string    `json:"tx_code"`
	Shares           float64   `json:"shares"`
	TotalValue       *float64  `json:"total_value"`
	AcquiredDisposed string    `json:"acquired_disposed"`
	SharesAfter      *float64  `json:"shares_after"`
	OwnershipType    string    `json:"ownership_type"`
	IsDirector       bool      `json:"is_director"`
	IsOfficer        bool      `json:"is_officer"`
	IsTenPctOwner    bool      `json:"is_ten_pct_owner"`
	InsiderName      string    `json:"insider_name"`
	InsiderCIK       string    `json:"insider_cik"`
	OfficerTitle     *string   `json:"officer_title"`
}
