package contracts

import "time"

// FactorPoint is one breakpoint of an instrument's cumulative adjustment factor
// ⭐ SSOT: 최신 포인트의 Factor는 항상 1.0
//
// Between breakpoints the factor is forward-filled: a price on date D is
// adjusted by the factor of the latest point with Date <= D.
type FactorPoint struct {
	Instrument string    `json:"instrument"`
	Date       time.Time `json:"date"`
	Factor     float64   `json:"factor"`
}
