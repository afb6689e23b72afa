package adjust

import (
	"math"

	"github.com/wonny/quantsource/internal/contracts"
)

// Detection is the outcome of comparing a new daily bar with the last stored one
type Detection struct {
	NewListing bool    // 직전 일봉 없음 → factor 1.0 시딩
	Flagged    bool    // 권리락 / 배당락 발생
	PrevClose  float64 // 직전 저장 일봉 종가 (미조정)
	PreClose   float64 // 신규 일봉 기준가
	Step       float64 // PreClose / PrevClose (Flagged 일 때만 의미 있음)
}

// Detector flags ex-rights/ex-dividend events
// ⭐ SSOT: |prev.close - new.pre_close| >= epsilon 이면 이벤트
type Detector struct {
	epsilon float64
}

// NewDetector creates a detector with the given absolute tolerance
func NewDetector(epsilon float64) *Detector {
	return &Detector{epsilon: epsilon}
}

// Detect compares next against prev (nil for a new listing).
//
// A divergence that cannot form a finite positive ratio is reported as
// *contracts.InconsistentFactorError with Flagged=false; callers treat it as no event.
func (d *Detector) Detect(prev *contracts.Bar, next contracts.Bar) (Detection, error) {
	if prev == nil {
		return Detection{NewListing: true, Step: 1}, nil
	}

	det := Detection{
		PrevClose: prev.Close,
		PreClose:  next.PreClose,
		Step:      1,
	}

	if math.Abs(prev.Close-next.PreClose) < d.epsilon {
		return det, nil
	}

	step, ok := ratio(next.PreClose, prev.Close)
	if !ok {
		return det, &contracts.InconsistentFactorError{
			Instrument: next.Instrument,
			Date:       next.Date,
			PrevClose:  prev.Close,
			PreClose:   next.PreClose,
		}
	}

	det.Flagged = true
	det.Step = step
	return det, nil
}

// ratio returns num/den when both are finite and positive
func ratio(num, den float64) (float64, bool) {
	if den <= 0 || num <= 0 || math.IsNaN(num) || math.IsNaN(den) || math.IsInf(num, 0) || math.IsInf(den, 0) {
		return 0, false
	}
	r := num / den
	if math.IsInf(r, 0) || math.IsNaN(r) {
		return 0, false
	}
	return r, true
}
