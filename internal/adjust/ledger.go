package adjust

import (
	"errors"
	"math"
	"sort"
	"time"

	"github.com/wonny/quantsource/internal/contracts"
	"github.com/wonny/quantsource/pkg/logger"
)

// dedupTolerance is the relative tolerance under which two factors are equal
const dedupTolerance = 1e-9

// ErrAppendOrder is returned when Append would not extend the series forward
var ErrAppendOrder = errors.New("factor append date is not after the latest point")

// Ledger maintains cumulative forward-adjustment factors
// ⭐ SSOT: 최신 포인트 factor = 1.0 (기준점은 "오늘")
type Ledger struct {
	epsilon float64
	logger  *logger.Logger
}

// NewLedger creates a ledger; epsilon must match the detector's
func NewLedger(epsilon float64, log *logger.Logger) *Ledger {
	return &Ledger{
		epsilon: epsilon,
		logger:  log.WithField("module", "ledger"),
	}
}

// Seed returns the factor series of a newly listed instrument
func (l *Ledger) Seed(instrument string, date time.Time) []contracts.FactorPoint {
	return []contracts.FactorPoint{{Instrument: instrument, Date: date, Factor: 1.0}}
}

// Recompute builds the factor series from a chronological daily series.
//
// r_i = pre_close_i / close_{i-1}; factor_i = prod_{j>i} r_j, so the last
// factor is 1.0. Ratios that cannot be formed are logged and treated as 1.
func (l *Ledger) Recompute(instrument string, dailies []contracts.Bar) []contracts.FactorPoint {
	n := len(dailies)
	if n == 0 {
		return nil
	}

	// 1. 인접 쌍 비율
	steps := make([]float64, n)
	steps[0] = 1
	for i := 1; i < n; i++ {
		steps[i] = l.step(instrument, dailies[i-1], dailies[i])
	}

	// 2. 역방향 누적곱 (suffix product)
	factors := make([]float64, n)
	factors[n-1] = 1.0
	for i := n - 2; i >= 0; i-- {
		factors[i] = factors[i+1] * steps[i+1]
	}

	// 3. 브레이크포인트만 남김
	points := make([]contracts.FactorPoint, n)
	for i, b := range dailies {
		points[i] = contracts.FactorPoint{Instrument: instrument, Date: b.Date, Factor: factors[i]}
	}
	return Dedup(points)
}

func (l *Ledger) step(instrument string, prev, cur contracts.Bar) float64 {
	if math.Abs(prev.Close-cur.PreClose) < l.epsilon {
		return 1
	}
	r, ok := ratio(cur.PreClose, prev.Close)
	if !ok {
		err := &contracts.InconsistentFactorError{
			Instrument: instrument,
			Date:       cur.Date,
			PrevClose:  prev.Close,
			PreClose:   cur.PreClose,
		}
		l.logger.WithError(err).WithFields(map[string]interface{}{
			"instrument": instrument,
			"date":       contracts.FormatDate(cur.Date),
		}).Warn("Skipping unusable ratio")
		return 1
	}
	return r
}

// Append applies a new corporate action effective on date.
//
// Every existing factor is multiplied by step and (date, 1.0) becomes the
// new anchor. points must be non-empty and end before date.
func (l *Ledger) Append(points []contracts.FactorPoint, instrument string, date time.Time, step float64) ([]contracts.FactorPoint, error) {
	if len(points) == 0 || !points[len(points)-1].Date.Before(date) {
		return nil, ErrAppendOrder
	}

	out := make([]contracts.FactorPoint, 0, len(points)+1)
	for _, p := range points {
		p.Factor *= step
		out = append(out, p)
	}
	out = append(out, contracts.FactorPoint{Instrument: instrument, Date: date, Factor: 1.0})
	return Dedup(out), nil
}

// Dedup collapses consecutive points carrying the same factor
func Dedup(points []contracts.FactorPoint) []contracts.FactorPoint {
	if len(points) == 0 {
		return points
	}
	out := []contracts.FactorPoint{points[0]}
	for _, p := range points[1:] {
		if sameFactor(out[len(out)-1].Factor, p.Factor) {
			continue
		}
		out = append(out, p)
	}
	return out
}

func sameFactor(a, b float64) bool {
	scale := math.Max(math.Abs(a), math.Abs(b))
	if scale == 0 {
		return true
	}
	return math.Abs(a-b)/scale < dedupTolerance
}

// FactorAt returns the forward-filled factor on date.
// Dates before the first point use the first point's factor; no points means 1.0.
func FactorAt(points []contracts.FactorPoint, date time.Time) float64 {
	if len(points) == 0 {
		return 1.0
	}
	// 첫 번째로 date 이후인 포인트
	i := sort.Search(len(points), func(i int) bool { return points[i].Date.After(date) })
	if i == 0 {
		return points[0].Factor
	}
	return points[i-1].Factor
}

// ApplyFactors returns forward-adjusted copies of daily bars.
// Volume and amount are left unadjusted.
func ApplyFactors(dailies []contracts.Bar, points []contracts.FactorPoint) []contracts.Bar {
	out := make([]contracts.Bar, len(dailies))
	for i, b := range dailies {
		f := FactorAt(points, b.Date)
		if f != 1.0 {
			b.Open *= f
			b.High *= f
			b.Low *= f
			b.Close *= f
			b.PreClose *= f
		}
		out[i] = b
	}
	return out
}
