package pgstore

import (
	"context"
	"encoding/json"

	"github.com/wonny/quantsource/internal/contracts"
)

// SaveRun records a run summary
func (s *Store) SaveRun(ctx context.Context, summary *contracts.RunSummary) error {
	results, err := json.Marshal(summary.Results)
	if err != nil {
		return err
	}

	_, err = s.q.Exec(ctx, `
		INSERT INTO quant.adjust_runs (run_id, run_date, started_at, finished_at, succeeded, failed, results)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (run_id) DO NOTHING`,
		summary.RunID, summary.Date, summary.StartedAt, summary.FinishedAt,
		len(summary.Succeeded()), len(summary.Failed()), results,
	)
	return wrap("save run", summary.RunID, err)
}

// RecentRuns returns the latest run summaries, newest first
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]contracts.RunSummary, error) {
	rows, err := s.q.Query(ctx, `
		SELECT run_id::text, run_date, started_at, finished_at, results
		FROM quant.adjust_runs
		ORDER BY started_at DESC
		LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, wrap("recent runs", "", err)
	}
	defer rows.Close()

	var out []contracts.RunSummary
	for rows.Next() {
		var (
			r   contracts.RunSummary
			raw []byte
		)
		if err := rows.Scan(&r.RunID, &r.Date, &r.StartedAt, &r.FinishedAt, &raw); err != nil {
			return nil, wrap("scan run", "", err)
		}
		if err := json.Unmarshal(raw, &r.Results); err != nil {
			return nil, wrap("decode run", r.RunID, err)
		}
		out = append(out, r)
	}
	return out, wrap("recent runs", "", rows.Err())
}
