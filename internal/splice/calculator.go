package splice

import (
	"sort"
	"time"

	"github.com/wonny/quantsource/internal/contracts"
	"github.com/wonny/quantsource/pkg/logger"
)

// Roll is one detected contract switch of a continuous symbol
type Roll struct {
	Date    time.Time `json:"date"`
	From    string    `json:"from"`              // outgoing contract
	To      string    `json:"to"`                // incoming contract
	Matched time.Time `json:"matched,omitempty"` // 공통 거래일 (찾지 못하면 zero)
	Diff    float64   `json:"diff"`
	Skipped string    `json:"skipped,omitempty"` // diff=0 처리 사유
}

// Calculator computes additive splice adjustments across contract rolls
// ⭐ SSOT: diff = outgoing_close - incoming_close (롤 직전 공통 거래일 기준)
type Calculator struct {
	lookback int
	logger   *logger.Logger
}

// NewCalculator creates a calculator searching at most lookback trading days back
func NewCalculator(lookback int, log *logger.Logger) *Calculator {
	if lookback < 1 {
		lookback = 1
	}
	return &Calculator{
		lookback: lookback,
		logger:   log.WithField("module", "splice"),
	}
}

// Compute walks records in date order and returns one adjustment per record date
// plus the rolls found. closes maps contract → daily bars in ascending date order;
// a contract missing from closes contributes a zero diff.
func (c *Calculator) Compute(symbol string, records []contracts.RollRecord, closes map[string][]contracts.Bar) ([]contracts.SpliceAdjustment, []Roll) {
	sorted := append([]contracts.RollRecord(nil), records...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })

	var (
		cumulative float64
		rolls      []Roll
	)
	out := make([]contracts.SpliceAdjustment, 0, len(sorted))

	for i, rec := range sorted {
		if i > 0 && rec.Contract != sorted[i-1].Contract {
			roll := c.diff(symbol, sorted[i-1].Contract, rec.Contract, rec.Date, closes)
			cumulative += roll.Diff
			rolls = append(rolls, roll)
		}
		out = append(out, contracts.SpliceAdjustment{
			Symbol:         symbol,
			Date:           rec.Date,
			CumulativeDiff: cumulative,
		})
	}
	return out, rolls
}

// diff finds the nearest common trading date strictly before the roll
// by walking both close series backward in lock step.
func (c *Calculator) diff(symbol, from, to string, date time.Time, closes map[string][]contracts.Bar) Roll {
	roll := Roll{Date: date, From: from, To: to}
	log := c.logger.WithFields(map[string]interface{}{
		"symbol": symbol,
		"date":   contracts.FormatDate(date),
		"from":   from,
		"to":     to,
	})

	outgoing, okOut := closes[from]
	incoming, okIn := closes[to]
	if !okOut || !okIn || len(outgoing) == 0 || len(incoming) == 0 {
		roll.Skipped = "missing daily series"
		gap := &contracts.DataGapError{Key: symbol, Date: date, Reason: roll.Skipped}
		log.WithError(gap).Warn("Splice diff defaulted to 0")
		return roll
	}

	// 롤 날짜 이전 마지막 인덱스
	i := before(outgoing, date)
	j := before(incoming, date)
	stepsOut, stepsIn := 0, 0

	for i >= 0 && j >= 0 && stepsOut < c.lookback && stepsIn < c.lookback {
		di, dj := outgoing[i].Date, incoming[j].Date
		switch {
		case di.Equal(dj):
			roll.Matched = di
			roll.Diff = outgoing[i].Close - incoming[j].Close
			return roll
		case di.After(dj):
			i--
			stepsOut++
		default:
			j--
			stepsIn++
		}
	}

	roll.Skipped = "no common trading date within lookback"
	gap := &contracts.DataGapError{Key: symbol, Date: date, Reason: roll.Skipped}
	log.WithError(gap).Error("Splice diff defaulted to 0")
	return roll
}

// before returns the index of the last bar dated strictly before date, or -1
func before(bars []contracts.Bar, date time.Time) int {
	return sort.Search(len(bars), func(i int) bool { return !bars[i].Date.Before(date) }) - 1
}

// Shift adds a constant offset to every point of a splice series
func Shift(series []contracts.SpliceAdjustment, offset float64) []contracts.SpliceAdjustment {
	if offset == 0 {
		return series
	}
	out := make([]contracts.SpliceAdjustment, len(series))
	for i, s := range series {
		s.CumulativeDiff += offset
		out[i] = s
	}
	return out
}
