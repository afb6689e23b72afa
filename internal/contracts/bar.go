package contracts

import (
	"fmt"
	"math"
	"time"
)

// Granularity identifies the resolution of a bar series
// ⭐ SSOT: 기간 구분 인코딩 (다운스트림 스키마 계약, 변경 금지)
type Granularity string

const (
	Daily   Granularity = "daily"
	Weekly  Granularity = "week"
	Monthly Granularity = "month"
)

// AggregateGranularities are maintained from the daily stream
var AggregateGranularities = []Granularity{Weekly, Monthly}

// IsAggregate reports whether the series is derived from daily bars
func (g Granularity) IsAggregate() bool {
	return g == Weekly || g == Monthly
}

// ParseGranularity validates a granularity string
func ParseGranularity(s string) (Granularity, error) {
	switch g := Granularity(s); g {
	case Daily, Weekly, Monthly:
		return g, nil
	default:
		return "", fmt.Errorf("unknown granularity %q (daily, week, month)", s)
	}
}

// Bar is one OHLCV row of an instrument series
// ⭐ SSOT: 일봉 / 주봉 / 월봉 공통 레코드
//
// Daily bars are immutable once written and carry the exchange's PreClose.
// Aggregate bars carry PeriodKey and Date = period_end_date (last daily date in period).
type Bar struct {
	Instrument  string      `json:"instrument"`
	Granularity Granularity `json:"granularity"`
	Date        time.Time   `json:"date"`
	PeriodKey   string      `json:"period_key,omitempty"`

	Open     float64 `json:"open"`
	High     float64 `json:"high"`
	Low      float64 `json:"low"`
	Close    float64 `json:"close"`
	PreClose float64 `json:"pre_close,omitempty"`
	Volume   int64   `json:"volume"`
	Amount   float64 `json:"amount"`
}

// Validate checks a bar at the storage boundary
func (b *Bar) Validate() error {
	if b.Instrument == "" {
		return fmt.Errorf("bar: instrument is required")
	}
	if b.Date.IsZero() {
		return fmt.Errorf("bar %s: date is required", b.Instrument)
	}
	switch b.Granularity {
	case Daily:
	case Weekly, Monthly:
		if b.PeriodKey == "" {
			return fmt.Errorf("bar %s %s: period key is required", b.Instrument, b.Granularity)
		}
	default:
		return fmt.Errorf("bar %s: unknown granularity %q", b.Instrument, b.Granularity)
	}

	for name, v := range map[string]float64{
		"open": b.Open, "high": b.High, "low": b.Low, "close": b.Close,
		"pre_close": b.PreClose, "amount": b.Amount,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return fmt.Errorf("bar %s %s: invalid %s %v", b.Instrument, FormatDate(b.Date), name, v)
		}
	}
	if b.Volume < 0 {
		return fmt.Errorf("bar %s %s: negative volume", b.Instrument, FormatDate(b.Date))
	}
	if b.High > 0 && b.Low > 0 && b.High < b.Low {
		return fmt.Errorf("bar %s %s: high %v below low %v", b.Instrument, FormatDate(b.Date), b.High, b.Low)
	}
	return nil
}

// TradingDate truncates t to a UTC calendar date
// 모든 거래일은 UTC 자정으로 정규화
func TradingDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate accepts 2006-01-02 or 20060102
func ParseDate(s string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02", "20060102"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q (expected YYYY-MM-DD or YYYYMMDD)", s)
}

// FormatDate renders a trading date as YYYY-MM-DD
func FormatDate(t time.Time) string {
	return t.Format("2006-01-02")
}
