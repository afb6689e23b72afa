package handlers

import (
	"net/http"
	"time"

	"github.com/wonny/quantsource/internal/contracts"
	"github.com/wonny/quantsource/pkg/logger"
)

// RunResponse summarizes one adjustment run
type RunResponse struct {
	RunID            string                       `json:"run_id"`
	Date             string                       `json:"date"`
	StartedAt        string                       `json:"started_at"`
	DurationMs       int64                        `json:"duration_ms"`
	Seeded           int                          `json:"seeded"`
	Incremental      int                          `json:"incremental"`
	Rebuilt          int                          `json:"rebuilt"`
	CorporateActions []string                     `json:"corporate_actions"`
	Failed           []contracts.InstrumentResult `json:"failed"`
}

// RunsHandler serves recent run summaries
type RunsHandler struct {
	runs   contracts.RunStore
	logger *logger.Logger
}

// NewRunsHandler creates a new runs handler
func NewRunsHandler(runs contracts.RunStore, log *logger.Logger) *RunsHandler {
	return &RunsHandler{
		runs:   runs,
		logger: log.WithField("handler", "runs"),
	}
}

// GetRuns returns the latest run summaries, newest first
// GET /api/runs?limit=10
func (h *RunsHandler) GetRuns(w http.ResponseWriter, r *http.Request) {
	limit := intParam(r, "limit", 10)
	if limit > 100 {
		limit = 100
	}

	runs, err := h.runs.RecentRuns(r.Context(), limit)
	if err != nil {
		h.logger.WithError(err).Error("Failed to get runs")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve runs")
		return
	}

	result := make([]RunResponse, len(runs))
	for i := range runs {
		s := &runs[i]
		failed := s.Failed()
		if failed == nil {
			failed = []contracts.InstrumentResult{}
		}
		actions := s.CorporateActions()
		if actions == nil {
			actions = []string{}
		}
		result[i] = RunResponse{
			RunID:            s.RunID,
			Date:             contracts.FormatDate(s.Date),
			StartedAt:        s.StartedAt.Format(time.RFC3339),
			DurationMs:       s.Duration().Milliseconds(),
			Seeded:           s.Count(contracts.OutcomeSeeded),
			Incremental:      s.Count(contracts.OutcomeIncremental),
			Rebuilt:          s.Count(contracts.OutcomeRebuilt),
			CorporateActions: actions,
			Failed:           failed,
		}
	}
	respondData(w, result)
}
