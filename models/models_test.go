package models

import (
	"testing"
	"time"

	jsoniter "github.com/json-iterator/go"
)

func TestSourcePreferenceETFBeatsStock(t *testing.T) {
	if !SourceETF.Preferred(SourceStock) {
		t.Fatalf("expected etf to be preferred over stock")
	}
	if SourceStock.Preferred(SourceETF) {
		t.Fatalf("stock must not beat etf")
	}
	if Source("crypto").Rank() != len(SourcePreference) {
		t.Fatalf("unknown source should rank last")
	}
}

func TestParseSource(t *testing.T) {
	s, err := ParseSource(" ETF ")
	if err != nil || s != SourceETF {
		t.Fatalf("ParseSource returned %q, %v", s, err)
	}
	if _, err := ParseSource("bond"); err == nil {
		t.Fatalf("expected error for unknown source")
	}
}

func TestFlexFloat(t *testing.T) {
	json := jsoniter.ConfigCompatibleWithStandardLibrary
	var v struct {
		A FlexFloat `json:"a"`
		B FlexFloat `json:"b"`
		C FlexFloat `json:"c"`
		D FlexFloat `json:"d"`
		E FlexFloat `json:"e"`
	}
	if err := json.Unmarshal([]byte(`{"a": 12.5, "b": "7", "c": null, "d": "", "e": "1.5e3"}`), &v); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if v.A.Value == nil || *v.A.Value != 12.5 {
		t.Errorf("unexpected a: %v", v.A.Value)
	}
	if v.B.Value == nil || *v.B.Value != 7 {
		t.Errorf("unexpected b: %v", v.B.Value)
	}
	if v.E.Value == nil || *v.E.Value != 1500 {
		t.Errorf("unexpected e: %v", v.E.Value)
	}
	if v.C.Value != nil || v.D.Value != nil {
		t.Errorf("expected c and d to be nil")
	}
	if err := json.Unmarshal([]byte(`{"a": "abc"}`), &v); err == nil {
		t.Errorf("expected error for non numeric string")
	}
}

func TestDayOf(t *testing.T) {
	ts := time.Date(2021, 3, 4, 15, 59, 59, 0, time.UTC)
	if got := DayOf(ts); !got.Equal(time.Date(2021, 3, 4, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected day %v", got)
	}
	bar := HourlyBar{TS: ts}
	if bar.Year() != 2021 {
		t.Fatalf("unexpected year %d", bar.Year())
	}
}

func TestComponentSumsAdd(t *testing.T) {
	s := ComponentSums{SumOpen: 1, SumClose: 2, SumVolume: 3, Cnt: 1}
	s.Add(ComponentSums{SumOpen: 1, SumClose: 2, SumVolume: 3, Cnt: 2})
	if s.SumOpen != 2 || s.SumClose != 4 || s.SumVolume != 6 || s.Cnt != 3 {
		t.Fatalf("unexpected sums %+v", s)
	}
}
