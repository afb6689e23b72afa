package memstore

import (
	"context"
	"sort"

	"github.com/wonny/quantsource/internal/contracts"
)

// ContinuousSymbols lists symbols with roll history
func (s *Store) ContinuousSymbols(ctx context.Context) ([]string, error) {
	s.root.mu.RLock()
	defer s.root.mu.RUnlock()
	out := make([]string, 0, len(s.root.rolls))
	for sym := range s.root.rolls {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out, nil
}

// RollRecords returns roll history in date order
func (s *Store) RollRecords(ctx context.Context, symbol string) ([]contracts.RollRecord, error) {
	if err := s.fault("RollRecords"); err != nil {
		return nil, err
	}
	s.root.mu.RLock()
	defer s.root.mu.RUnlock()
	return append([]contracts.RollRecord(nil), s.root.rolls[symbol]...), nil
}

// ReplaceRollRecords replaces the roll history of symbol
func (s *Store) ReplaceRollRecords(ctx context.Context, symbol string, records []contracts.RollRecord) error {
	if err := s.fault("ReplaceRollRecords"); err != nil {
		return err
	}
	next := append([]contracts.RollRecord(nil), records...)
	sort.SliceStable(next, func(i, j int) bool { return next[i].Date.Before(next[j].Date) })
	s.root.mu.Lock()
	defer s.root.mu.Unlock()
	s.root.rolls[symbol] = next
	return nil
}

// SpliceSeries returns the stored splice series
func (s *Store) SpliceSeries(ctx context.Context, symbol string) ([]contracts.SpliceAdjustment, error) {
	s.root.mu.RLock()
	defer s.root.mu.RUnlock()
	return append([]contracts.SpliceAdjustment(nil), s.root.splice[symbol]...), nil
}

// ReplaceSplice replaces the splice series of symbol
func (s *Store) ReplaceSplice(ctx context.Context, symbol string, series []contracts.SpliceAdjustment) error {
	if err := s.fault("ReplaceSplice"); err != nil {
		return err
	}
	s.root.mu.Lock()
	defer s.root.mu.Unlock()
	s.root.splice[symbol] = append([]contracts.SpliceAdjustment(nil), series...)
	return nil
}

// SaveRun records a run summary
func (s *Store) SaveRun(ctx context.Context, summary *contracts.RunSummary) error {
	s.root.mu.Lock()
	defer s.root.mu.Unlock()
	s.root.runs = append(s.root.runs, *summary)
	return nil
}

// RecentRuns returns up to limit summaries, newest first
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]contracts.RunSummary, error) {
	s.root.mu.RLock()
	defer s.root.mu.RUnlock()
	var out []contracts.RunSummary
	for i := len(s.root.runs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.root.runs[i])
	}
	return out, nil
}
