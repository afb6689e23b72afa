package contracts

import "time"

// Outcome describes what the daily pipeline did to one instrument
type Outcome string

const (
	OutcomeSeeded      Outcome = "seeded"      // 신규 상장, factor 1.0
	OutcomeIncremental Outcome = "incremental" // 주봉/월봉 extend 또는 roll
	OutcomeRebuilt     Outcome = "rebuilt"     // 권리락 / 늦은 데이터 → 전체 재계산
	OutcomeFailed      Outcome = "failed"
)

// InstrumentResult is the per-instrument result of one run
type InstrumentResult struct {
	Instrument      string  `json:"instrument"`
	Outcome         Outcome `json:"outcome"`
	CorporateAction bool    `json:"corporate_action"`
	Error           string  `json:"error,omitempty"`
	Retryable       bool    `json:"retryable,omitempty"`
}

// RunSummary is the observable outcome of one daily run
// ⭐ SSOT: 종목 단위 실패는 배치를 중단하지 않음 → 요약으로 보고
type RunSummary struct {
	RunID      string             `json:"run_id"`
	Date       time.Time          `json:"date"`
	StartedAt  time.Time          `json:"started_at"`
	FinishedAt time.Time          `json:"finished_at"`
	Results    []InstrumentResult `json:"results"`
}

// Succeeded lists instruments that completed
func (s *RunSummary) Succeeded() []string {
	var out []string
	for _, r := range s.Results {
		if r.Outcome != OutcomeFailed {
			out = append(out, r.Instrument)
		}
	}
	return out
}

// Failed lists the failed results
func (s *RunSummary) Failed() []InstrumentResult {
	var out []InstrumentResult
	for _, r := range s.Results {
		if r.Outcome == OutcomeFailed {
			out = append(out, r)
		}
	}
	return out
}

// CorporateActions lists instruments flagged with an ex-rights/ex-dividend event
func (s *RunSummary) CorporateActions() []string {
	var out []string
	for _, r := range s.Results {
		if r.CorporateAction {
			out = append(out, r.Instrument)
		}
	}
	return out
}

// Count returns the number of results with the given outcome
func (s *RunSummary) Count(o Outcome) int {
	n := 0
	for _, r := range s.Results {
		if r.Outcome == o {
			n++
		}
	}
	return n
}

// Duration returns wall time of the run
func (s *RunSummary) Duration() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}

// CorporateAction is published when an ex-rights/ex-dividend event is detected
type CorporateAction struct {
	Instrument string    `json:"instrument"`
	Date       time.Time `json:"date"`
	PrevClose  float64   `json:"prev_close"`
	PreClose   float64   `json:"pre_close"`
	Step       float64   `json:"step"` // pre_close / prev_close
}
