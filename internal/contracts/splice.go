package contracts

import "time"

// RollRecord says which real contract a continuous symbol tracks on a date
type RollRecord struct {
	Symbol   string    `json:"symbol"`   // 연속 선물 (예: KQ.m@SHFE.rb)
	Date     time.Time `json:"date"`
	Contract string    `json:"contract"` // 실제 월물 일봉 코드 (예: rb2405)
}

// SpliceAdjustment is the additive price shift for a continuous symbol on a date
// ⭐ SSOT: 롤 차익 누적합 (롤 사이에는 직전 값 유지)
type SpliceAdjustment struct {
	Symbol         string    `json:"symbol"`
	Date           time.Time `json:"date"`
	CumulativeDiff float64   `json:"cumulative_diff"`
}
