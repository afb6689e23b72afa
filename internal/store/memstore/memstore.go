// Package memstore is an in-memory store used by tests and dry runs.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/wonny/quantsource/internal/contracts"
)

type seriesKey struct {
	instrument string
	g          contracts.Granularity
}

type state struct {
	bars    map[seriesKey][]contracts.Bar
	factors map[string][]contracts.FactorPoint
}

func newState() *state {
	return &state{
		bars:    make(map[seriesKey][]contracts.Bar),
		factors: make(map[string][]contracts.FactorPoint),
	}
}

type root struct {
	mu     sync.RWMutex
	data   *state
	rolls  map[string][]contracts.RollRecord
	splice map[string][]contracts.SpliceAdjustment
	runs   []contracts.RunSummary
	faults map[string]error
}

// Store implements contracts.Store, SpliceStore and RunStore in memory.
// Transactions buffer writes per key and publish them on commit.
type Store struct {
	root *root
	tx   *state // nil outside Atomic
}

// New creates an empty store
func New() *Store {
	return &Store{root: &root{
		data:   newState(),
		rolls:  make(map[string][]contracts.RollRecord),
		splice: make(map[string][]contracts.SpliceAdjustment),
		faults: make(map[string]error),
	}}
}

// FailOn makes every subsequent op with the given name return err (nil clears)
func (s *Store) FailOn(op string, err error) {
	s.root.mu.Lock()
	defer s.root.mu.Unlock()
	if err == nil {
		delete(s.root.faults, op)
		return
	}
	s.root.faults[op] = err
}

func (s *Store) fault(op string) error {
	s.root.mu.RLock()
	defer s.root.mu.RUnlock()
	if err, ok := s.root.faults[op]; ok {
		return contracts.WrapStorage(op, err)
	}
	return nil
}

// Atomic runs fn on a buffered view and commits its writes only when fn succeeds
func (s *Store) Atomic(ctx context.Context, fn func(tx contracts.Store) error) error {
	if s.tx != nil {
		return fn(s)
	}
	tx := &Store{root: s.root, tx: newState()}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return contracts.WrapStorage("commit", err)
	}
	if err := s.fault("Commit"); err != nil {
		return err
	}

	s.root.mu.Lock()
	defer s.root.mu.Unlock()
	for k, v := range tx.tx.bars {
		s.root.data.bars[k] = v
	}
	for k, v := range tx.tx.factors {
		s.root.data.factors[k] = v
	}
	return nil
}

func (s *Store) series(key seriesKey) []contracts.Bar {
	if s.tx != nil {
		if v, ok := s.tx.bars[key]; ok {
			return v
		}
	}
	s.root.mu.RLock()
	defer s.root.mu.RUnlock()
	return s.root.data.bars[key]
}

func (s *Store) setSeries(key seriesKey, bars []contracts.Bar) {
	if s.tx != nil {
		s.tx.bars[key] = bars
		return
	}
	s.root.mu.Lock()
	defer s.root.mu.Unlock()
	s.root.data.bars[key] = bars
}

// LastBar returns the latest bar with Date <= onOrBefore
func (s *Store) LastBar(ctx context.Context, instrument string, g contracts.Granularity, onOrBefore time.Time) (*contracts.Bar, error) {
	if err := ctx.Err(); err != nil {
		return nil, contracts.WrapStorage("LastBar", err)
	}
	if err := s.fault("LastBar"); err != nil {
		return nil, err
	}
	bars := s.series(seriesKey{instrument, g})
	i := sort.Search(len(bars), func(i int) bool { return bars[i].Date.After(onOrBefore) })
	if i == 0 {
		return nil, nil
	}
	b := bars[i-1]
	return &b, nil
}

// UpsertBar inserts or replaces one bar
func (s *Store) UpsertBar(ctx context.Context, bar contracts.Bar) error {
	if err := ctx.Err(); err != nil {
		return contracts.WrapStorage("UpsertBar", err)
	}
	if err := bar.Validate(); err != nil {
		return err
	}
	if err := s.fault("UpsertBar"); err != nil {
		return err
	}

	key := seriesKey{bar.Instrument, bar.Granularity}
	cur := s.series(key)
	next := make([]contracts.Bar, 0, len(cur)+1)
	replaced := false
	for _, b := range cur {
		if sameKey(b, bar) {
			next = append(next, bar)
			replaced = true
			continue
		}
		next = append(next, b)
	}
	if !replaced {
		next = append(next, bar)
	}
	sort.SliceStable(next, func(i, j int) bool { return next[i].Date.Before(next[j].Date) })
	s.setSeries(key, next)
	return nil
}

// 일봉은 날짜, 집계는 기간 키로 식별
func sameKey(a, b contracts.Bar) bool {
	if a.Granularity.IsAggregate() {
		return a.PeriodKey == b.PeriodKey
	}
	return a.Date.Equal(b.Date)
}

// ReplaceSeries replaces the whole series
func (s *Store) ReplaceSeries(ctx context.Context, instrument string, g contracts.Granularity, bars []contracts.Bar) error {
	if err := ctx.Err(); err != nil {
		return contracts.WrapStorage("ReplaceSeries", err)
	}
	for i := range bars {
		if err := bars[i].Validate(); err != nil {
			return err
		}
	}
	if err := s.fault("ReplaceSeries"); err != nil {
		return err
	}

	next := make([]contracts.Bar, len(bars))
	copy(next, bars)
	sort.SliceStable(next, func(i, j int) bool { return next[i].Date.Before(next[j].Date) })
	s.setSeries(seriesKey{instrument, g}, next)
	return nil
}

// ListBars returns bars in [from, to]; zero bounds are open
func (s *Store) ListBars(ctx context.Context, instrument string, g contracts.Granularity, from, to time.Time) ([]contracts.Bar, error) {
	if err := ctx.Err(); err != nil {
		return nil, contracts.WrapStorage("ListBars", err)
	}
	if err := s.fault("ListBars"); err != nil {
		return nil, err
	}
	var out []contracts.Bar
	for _, b := range s.series(seriesKey{instrument, g}) {
		if !from.IsZero() && b.Date.Before(from) {
			continue
		}
		if !to.IsZero() && b.Date.After(to) {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

// Instruments lists instruments with daily bars
func (s *Store) Instruments(ctx context.Context) ([]string, error) {
	s.root.mu.RLock()
	defer s.root.mu.RUnlock()
	var out []string
	for k, v := range s.root.data.bars {
		if k.g == contracts.Daily && len(v) > 0 {
			out = append(out, k.instrument)
		}
	}
	sort.Strings(out)
	return out, nil
}

// Factors returns the factor series in date order
func (s *Store) Factors(ctx context.Context, instrument string) ([]contracts.FactorPoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, contracts.WrapStorage("Factors", err)
	}
	if err := s.fault("Factors"); err != nil {
		return nil, err
	}
	if s.tx != nil {
		if v, ok := s.tx.factors[instrument]; ok {
			return append([]contracts.FactorPoint(nil), v...), nil
		}
	}
	s.root.mu.RLock()
	defer s.root.mu.RUnlock()
	return append([]contracts.FactorPoint(nil), s.root.data.factors[instrument]...), nil
}

// ReplaceFactors replaces the whole factor series
func (s *Store) ReplaceFactors(ctx context.Context, instrument string, points []contracts.FactorPoint) error {
	if err := ctx.Err(); err != nil {
		return contracts.WrapStorage("ReplaceFactors", err)
	}
	if err := s.fault("ReplaceFactors"); err != nil {
		return err
	}
	next := append([]contracts.FactorPoint(nil), points...)
	if s.tx != nil {
		s.tx.factors[instrument] = next
		return nil
	}
	s.root.mu.Lock()
	defer s.root.mu.Unlock()
	s.root.data.factors[instrument] = next
	return nil
}
