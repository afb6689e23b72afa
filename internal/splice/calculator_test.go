package splice

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/quantsource/internal/contracts"
	"github.com/wonny/quantsource/pkg/logger"
)

func day(n int) time.Time {
	return time.Date(2024, 5, n, 0, 0, 0, 0, time.UTC)
}

// closeSeries builds daily bars for contract from day → close
func closeSeries(contract string, closes map[int]float64) []contracts.Bar {
	var out []contracts.Bar
	for n := 1; n <= 31; n++ {
		c, ok := closes[n]
		if !ok {
			continue
		}
		out = append(out, contracts.Bar{
			Instrument: contract, Granularity: contracts.Daily, Date: day(n),
			Open: c, High: c, Low: c, Close: c, PreClose: c,
		})
	}
	return out
}

func records(symbol string, contractsByDay map[int]string) []contracts.RollRecord {
	var out []contracts.RollRecord
	for n, c := range contractsByDay {
		out = append(out, contracts.RollRecord{Symbol: symbol, Date: day(n), Contract: c})
	}
	return out
}

func cumulative(series []contracts.SpliceAdjustment) []float64 {
	out := make([]float64, len(series))
	for i, s := range series {
		out[i] = s.CumulativeDiff
	}
	return out
}

func TestComputeCumulativeDiffs(t *testing.T) {
	calc := NewCalculator(10, logger.Nop())
	recs := records("KQ.m@SHFE.rb", map[int]string{
		1: "rb01", 2: "rb01", 3: "rb05", 4: "rb05", 5: "rb10", 6: "rb11",
	})
	closes := map[string][]contracts.Bar{
		"rb01": closeSeries("rb01", map[int]float64{1: 11, 2: 12}),
		"rb05": closeSeries("rb05", map[int]float64{1: 9, 2: 10, 3: 10, 4: 9}),
		"rb10": closeSeries("rb10", map[int]float64{3: 11, 4: 10, 5: 13}),
		"rb11": closeSeries("rb11", map[int]float64{5: 10, 6: 10}),
	}

	series, rolls := calc.Compute("KQ.m@SHFE.rb", recs, closes)

	assert.Equal(t, []float64{0, 0, 2, 2, 1, 4}, cumulative(series))
	require.Len(t, rolls, 3)
	assert.Equal(t, Roll{Date: day(3), From: "rb01", To: "rb05", Matched: day(2), Diff: 2}, rolls[0])
	assert.Equal(t, day(4), rolls[1].Matched)
	assert.Equal(t, -1.0, rolls[1].Diff)
	assert.Equal(t, 3.0, rolls[2].Diff)
	for i, s := range series {
		assert.Equal(t, "KQ.m@SHFE.rb", s.Symbol)
		assert.Equal(t, day(i+1), s.Date)
	}
}

func TestComputeSkipsNonTradingDaysOfOneSide(t *testing.T) {
	calc := NewCalculator(10, logger.Nop())
	recs := records("X", map[int]string{6: "a", 10: "b"})
	closes := map[string][]contracts.Bar{
		// 9일 a는 거래 없음, 8일 b는 거래 없음 → 공통일 7일
		"a": closeSeries("a", map[int]float64{6: 50, 7: 51, 8: 52}),
		"b": closeSeries("b", map[int]float64{6: 40, 7: 42, 9: 43, 10: 44}),
	}

	_, rolls := calc.Compute("X", recs, closes)
	require.Len(t, rolls, 1)
	assert.Equal(t, day(7), rolls[0].Matched)
	assert.Equal(t, 9.0, rolls[0].Diff)
}

func TestComputeMissingSeriesContributesZero(t *testing.T) {
	var buf bytes.Buffer
	calc := NewCalculator(10, logger.NewWithWriter(&buf, "info"))
	recs := records("X", map[int]string{1: "a", 2: "b", 3: "c"})
	closes := map[string][]contracts.Bar{
		"a": closeSeries("a", map[int]float64{1: 10}),
		"b": closeSeries("b", map[int]float64{1: 7, 2: 8}),
	}

	series, rolls := calc.Compute("X", recs, closes)
	assert.Equal(t, []float64{0, 3, 3}, cumulative(series))
	require.Len(t, rolls, 2)
	assert.Equal(t, "missing daily series", rolls[1].Skipped)
	assert.Zero(t, rolls[1].Diff)
	assert.Contains(t, buf.String(), "Splice diff defaulted to 0")
}

func TestComputeLookbackBound(t *testing.T) {
	recs := records("X", map[int]string{9: "a", 10: "b"})
	outgoing := map[int]float64{}
	for n := 1; n <= 9; n++ {
		outgoing[n] = float64(100 + n)
	}
	closes := map[string][]contracts.Bar{
		"a": closeSeries("a", outgoing),
		"b": closeSeries("b", map[int]float64{1: 90}),
	}

	_, rolls := NewCalculator(3, logger.Nop()).Compute("X", recs, closes)
	require.Len(t, rolls, 1)
	assert.Zero(t, rolls[0].Diff)
	assert.True(t, rolls[0].Matched.IsZero())
	assert.Equal(t, "no common trading date within lookback", rolls[0].Skipped)

	_, rolls = NewCalculator(10, logger.Nop()).Compute("X", recs, closes)
	require.Len(t, rolls, 1)
	assert.Equal(t, day(1), rolls[0].Matched)
	assert.Equal(t, 11.0, rolls[0].Diff)
}

func TestComputeRollDateIsExcluded(t *testing.T) {
	recs := records("X", map[int]string{2: "a", 3: "b"})
	closes := map[string][]contracts.Bar{
		"a": closeSeries("a", map[int]float64{2: 20, 3: 30}),
		"b": closeSeries("b", map[int]float64{2: 15, 3: 10}),
	}

	_, rolls := NewCalculator(5, logger.Nop()).Compute("X", recs, closes)
	require.Len(t, rolls, 1)
	assert.Equal(t, day(2), rolls[0].Matched)
	assert.Equal(t, 5.0, rolls[0].Diff)
}

func TestComputeNoRolls(t *testing.T) {
	series, rolls := NewCalculator(5, logger.Nop()).Compute("X", records("X", map[int]string{1: "a", 2: "a"}), nil)
	assert.Equal(t, []float64{0, 0}, cumulative(series))
	assert.Empty(t, rolls)

	series, _ = NewCalculator(5, logger.Nop()).Compute("X", nil, nil)
	assert.Empty(t, series)
}

func TestShift(t *testing.T) {
	in := []contracts.SpliceAdjustment{{Symbol: "X", Date: day(1), CumulativeDiff: 0}, {Symbol: "X", Date: day(2), CumulativeDiff: 4}}

	assert.Equal(t, []float64{-10, -6}, cumulative(Shift(in, -10)))
	assert.Equal(t, []float64{0, 4}, cumulative(in), "input must not be modified")
	assert.Equal(t, in, Shift(in, 0))
}
