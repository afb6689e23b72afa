package adjust

import (
	"fmt"
	"math"
	"time"

	"github.com/wonny/quantsource/internal/contracts"
)

// Transition is the aggregate state change caused by one daily bar
type Transition string

const (
	TransitionOpen   Transition = "open"   // NoPeriod → OpenPeriod
	TransitionExtend Transition = "extend" // 같은 기간
	TransitionRoll   Transition = "roll"   // 기간 경계 통과 → 새 기간
)

// PeriodKey returns the period bucket of date
// ⭐ SSOT: 주 = ISO week-year ("2024-W03"), 월 = "2024-01"
func PeriodKey(g contracts.Granularity, date time.Time) string {
	switch g {
	case contracts.Weekly:
		y, w := date.ISOWeek()
		return fmt.Sprintf("%04d-W%02d", y, w)
	case contracts.Monthly:
		return fmt.Sprintf("%04d-%02d", date.Year(), int(date.Month()))
	default:
		return contracts.FormatDate(date)
	}
}

// PeriodStart returns the first calendar date of date's period
func PeriodStart(g contracts.Granularity, date time.Time) time.Time {
	d := contracts.TradingDate(date)
	switch g {
	case contracts.Weekly:
		// ISO 주는 월요일 시작
		offset := (int(d.Weekday()) + 6) % 7
		return d.AddDate(0, 0, -offset)
	case contracts.Monthly:
		return time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return d
	}
}

// Open starts a new aggregate seeded entirely from one daily bar
func Open(g contracts.Granularity, daily contracts.Bar) contracts.Bar {
	return contracts.Bar{
		Instrument:  daily.Instrument,
		Granularity: g,
		Date:        daily.Date,
		PeriodKey:   PeriodKey(g, daily.Date),
		Open:        daily.Open,
		High:        daily.High,
		Low:         daily.Low,
		Close:       daily.Close,
		Volume:      daily.Volume,
		Amount:      daily.Amount,
	}
}

// Extend folds a daily bar of the same period into agg
func Extend(agg contracts.Bar, daily contracts.Bar) contracts.Bar {
	agg.High = math.Max(agg.High, daily.High)
	agg.Low = math.Min(agg.Low, daily.Low)
	agg.Close = daily.Close
	agg.Volume += daily.Volume
	agg.Amount += daily.Amount
	agg.Date = daily.Date
	return agg
}

// Step advances the aggregate state machine by one daily bar.
// current is the open aggregate or nil.
func Step(g contracts.Granularity, current *contracts.Bar, daily contracts.Bar) (contracts.Bar, Transition) {
	if current == nil {
		return Open(g, daily), TransitionOpen
	}
	if current.PeriodKey == PeriodKey(g, daily.Date) {
		return Extend(*current, daily), TransitionExtend
	}
	return Open(g, daily), TransitionRoll
}

// Aggregate builds the whole aggregate series from chronological dailies
func Aggregate(g contracts.Granularity, dailies []contracts.Bar) []contracts.Bar {
	var out []contracts.Bar
	var current *contracts.Bar
	for _, d := range dailies {
		next, tr := Step(g, current, d)
		if tr == TransitionExtend {
			out[len(out)-1] = next
		} else {
			out = append(out, next)
		}
		current = &out[len(out)-1]
	}
	return out
}
