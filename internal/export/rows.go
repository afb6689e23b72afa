// Package export writes adjusted aggregates, factors and splice series to downstream stores.
package export

import (
	"github.com/wonny/quantsource/internal/adjust"
	"github.com/wonny/quantsource/internal/contracts"
)

// BarRow is the flat export form of an aggregate bar
type BarRow struct {
	Instrument  string  `parquet:"instrument,dict" ch:"instrument"`
	Granularity string  `parquet:"granularity,dict" ch:"granularity"`
	PeriodKey   string  `parquet:"period_key" ch:"period_key"`
	PeriodStart string  `parquet:"period_start" ch:"period_start"` // 기간 첫 달력일
	PeriodEnd   string  `parquet:"period_end" ch:"period_end"` // YYYY-MM-DD
	Open        float64 `parquet:"open" ch:"open"`
	High        float64 `parquet:"high" ch:"high"`
	Low         float64 `parquet:"low" ch:"low"`
	Close       float64 `parquet:"close" ch:"close"`
	Volume      int64   `parquet:"volume" ch:"volume"`
	Amount      float64 `parquet:"amount" ch:"amount"`
}

// FactorRow is the flat export form of a factor point
type FactorRow struct {
	Instrument    string  `parquet:"instrument,dict" ch:"instrument"`
	EffectiveDate string  `parquet:"effective_date" ch:"effective_date"`
	Factor        float64 `parquet:"factor" ch:"factor"`
}

// SpliceRow is the flat export form of a splice adjustment
type SpliceRow struct {
	Symbol         string  `parquet:"symbol,dict" ch:"symbol"`
	TradeDate      string  `parquet:"trade_date" ch:"trade_date"`
	CumulativeDiff float64 `parquet:"cumulative_diff" ch:"cumulative_diff"`
}

// Batch is one export unit
type Batch struct {
	Bars    []BarRow
	Factors []FactorRow
	Splice  []SpliceRow
}

// Empty reports whether the batch has no rows
func (b *Batch) Empty() bool {
	return len(b.Bars) == 0 && len(b.Factors) == 0 && len(b.Splice) == 0
}

func barRows(bars []contracts.Bar) []BarRow {
	out := make([]BarRow, len(bars))
	for i, b := range bars {
		out[i] = BarRow{
			Instrument:  b.Instrument,
			Granularity: string(b.Granularity),
			PeriodKey:   b.PeriodKey,
			PeriodStart: contracts.FormatDate(adjust.PeriodStart(b.Granularity, b.Date)),
			PeriodEnd:   contracts.FormatDate(b.Date),
			Open:        b.Open,
			High:        b.High,
			Low:         b.Low,
			Close:       b.Close,
			Volume:      b.Volume,
			Amount:      b.Amount,
		}
	}
	return out
}

func factorRows(points []contracts.FactorPoint) []FactorRow {
	out := make([]FactorRow, len(points))
	for i, p := range points {
		out[i] = FactorRow{
			Instrument:    p.Instrument,
			EffectiveDate: contracts.FormatDate(p.Date),
			Factor:        p.Factor,
		}
	}
	return out
}

func spliceRows(series []contracts.SpliceAdjustment) []SpliceRow {
	out := make([]SpliceRow, len(series))
	for i, s := range series {
		out[i] = SpliceRow{
			Symbol:         s.Symbol,
			TradeDate:      contracts.FormatDate(s.Date),
			CumulativeDiff: s.CumulativeDiff,
		}
	}
	return out
}
