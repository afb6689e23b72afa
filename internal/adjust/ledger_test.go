package adjust

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/quantsource/internal/contracts"
	"github.com/wonny/quantsource/pkg/logger"
)

func d(day int) time.Time {
	return time.Date(2024, 1, day, 0, 0, 0, 0, time.UTC)
}

func closes(closes, pre []float64) []contracts.Bar {
	out := make([]contracts.Bar, len(closes))
	for i := range closes {
		out[i] = contracts.Bar{
			Instrument: "600000.SH", Granularity: contracts.Daily, Date: d(i + 2),
			Open: closes[i], High: closes[i], Low: closes[i], Close: closes[i], PreClose: pre[i],
		}
	}
	return out
}

func newLedger() *Ledger {
	return NewLedger(0.0001, logger.Nop())
}

func TestRecomputeSplitExample(t *testing.T) {
	bars := closes([]float64{100, 100, 50, 50}, []float64{100, 100, 50, 50})

	points := newLedger().Recompute("600000.SH", bars)

	require.Len(t, points, 2)
	assert.Equal(t, d(2), points[0].Date)
	assert.InDelta(t, 0.5, points[0].Factor, 1e-12)
	assert.Equal(t, d(4), points[1].Date)
	assert.Equal(t, 1.0, points[1].Factor)

	// forward-fill
	assert.InDelta(t, 0.5, FactorAt(points, d(3)), 1e-12)
	assert.Equal(t, 1.0, FactorAt(points, d(5)))
}

func TestRecomputeSkipsZeroClose(t *testing.T) {
	bars := closes([]float64{100, 0, 50}, []float64{100, 100, 25})

	points := newLedger().Recompute("600000.SH", bars)

	require.Len(t, points, 1)
	assert.Equal(t, 1.0, points[0].Factor)
}

func TestRecomputeAnchorInvariant(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 50; trial++ {
		n := 2 + rng.Intn(25)
		c := make([]float64, n)
		p := make([]float64, n)
		price := 10.0
		for i := 0; i < n; i++ {
			p[i] = price
			if rng.Intn(5) == 0 {
				p[i] = price * (0.5 + rng.Float64()/2) // 권리락
			}
			price = p[i] * (0.95 + rng.Float64()/10)
			c[i] = price
		}

		points := newLedger().Recompute("X", closes(c, p))
		require.NotEmpty(t, points)
		assert.InDelta(t, 1.0, points[len(points)-1].Factor, 1e-9)
		for i := 1; i < len(points); i++ {
			assert.True(t, points[i-1].Date.Before(points[i].Date))
			assert.False(t, sameFactor(points[i-1].Factor, points[i].Factor))
		}
	}
}

func TestAppendShiftsHistory(t *testing.T) {
	l := newLedger()
	points := l.Seed("600000.SH", d(2))

	points, err := l.Append(points, "600000.SH", d(5), 0.5)
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.InDelta(t, 0.5, points[0].Factor, 1e-12)
	assert.Equal(t, 1.0, points[1].Factor)

	points, err = l.Append(points, "600000.SH", d(9), 0.8)
	require.NoError(t, err)
	require.Len(t, points, 3)
	assert.InDelta(t, 0.4, points[0].Factor, 1e-12)
	assert.InDelta(t, 0.8, points[1].Factor, 1e-12)
	assert.Equal(t, 1.0, points[2].Factor)
}

func TestAppendMatchesRecompute(t *testing.T) {
	l := newLedger()
	c := []float64{100, 101, 50, 51, 52, 26, 27}
	p := []float64{100, 100, 50.5, 50, 51, 26, 26}
	bars := closes(c, p)

	points := l.Seed("600000.SH", bars[0].Date)
	det := NewDetector(0.0001)
	for i := 1; i < len(bars); i++ {
		res, err := det.Detect(&bars[i-1], bars[i])
		require.NoError(t, err)
		if res.Flagged {
			points, err = l.Append(points, "600000.SH", bars[i].Date, res.Step)
			require.NoError(t, err)
		}
	}

	full := l.Recompute("600000.SH", bars)
	require.Len(t, points, len(full))
	for i := range full {
		assert.Equal(t, full[i].Date, points[i].Date)
		assert.InDelta(t, full[i].Factor, points[i].Factor, 1e-9)
	}
}

func TestAppendRejectsNonForwardDate(t *testing.T) {
	l := newLedger()
	_, err := l.Append(l.Seed("X", d(5)), "X", d(5), 0.5)
	assert.ErrorIs(t, err, ErrAppendOrder)

	_, err = l.Append(nil, "X", d(5), 0.5)
	assert.ErrorIs(t, err, ErrAppendOrder)
}

func TestDedupRelativeTolerance(t *testing.T) {
	points := []contracts.FactorPoint{
		{Date: d(2), Factor: 0.5},
		{Date: d(3), Factor: 0.5 * (1 + 1e-12)},
		{Date: d(4), Factor: 1.0},
		{Date: d(5), Factor: 1.0},
	}
	out := Dedup(points)
	require.Len(t, out, 2)
	assert.Equal(t, d(2), out[0].Date)
	assert.Equal(t, d(4), out[1].Date)
}

func TestFactorAtEdges(t *testing.T) {
	assert.Equal(t, 1.0, FactorAt(nil, d(3)))

	points := []contracts.FactorPoint{{Date: d(5), Factor: 0.25}, {Date: d(9), Factor: 1}}
	assert.Equal(t, 0.25, FactorAt(points, d(2)))
	assert.Equal(t, 0.25, FactorAt(points, d(5)))
	assert.Equal(t, 0.25, FactorAt(points, d(8)))
	assert.Equal(t, 1.0, FactorAt(points, d(9)))
}

func TestApplyFactors(t *testing.T) {
	bars := closes([]float64{100, 50}, []float64{100, 50})
	out := ApplyFactors(bars, []contracts.FactorPoint{{Date: d(2), Factor: 0.5}, {Date: d(3), Factor: 1}})

	assert.Equal(t, 50.0, out[0].Close)
	assert.Equal(t, 50.0, out[1].Close)
	assert.Equal(t, 100.0, bars[0].Close, "input must not be mutated")
}
