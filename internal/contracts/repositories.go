package contracts

import (
	"context"
	"time"
)

// ⭐ SSOT: 저장소 인터페이스 정의는 여기서만

// BarStore reads and writes per-instrument bar series
type BarStore interface {
	// LastBar returns the latest bar with Date <= onOrBefore, or nil if none exists
	LastBar(ctx context.Context, instrument string, g Granularity, onOrBefore time.Time) (*Bar, error)
	// UpsertBar writes one bar keyed by (instrument, granularity, date | period key)
	UpsertBar(ctx context.Context, bar Bar) error
	// ReplaceSeries atomically replaces the whole (instrument, granularity) series
	ReplaceSeries(ctx context.Context, instrument string, g Granularity, bars []Bar) error
	// ListBars returns bars in ascending date order; zero bounds are open
	ListBars(ctx context.Context, instrument string, g Granularity, from, to time.Time) ([]Bar, error)
	// Instruments lists instruments with stored daily bars
	Instruments(ctx context.Context) ([]string, error)
}

// FactorStore reads and writes adjustment factor series
type FactorStore interface {
	Factors(ctx context.Context, instrument string) ([]FactorPoint, error)
	// ReplaceFactors deletes and rewrites the whole series (no partial patch)
	ReplaceFactors(ctx context.Context, instrument string, points []FactorPoint) error
}

// Store is the engine's view of persistent state
type Store interface {
	BarStore
	FactorStore

	// Atomic runs fn against a transactional view; all writes commit or none do
	Atomic(ctx context.Context, fn func(tx Store) error) error
}

// SpliceStore holds continuous-futures roll history and splice output
type SpliceStore interface {
	ContinuousSymbols(ctx context.Context) ([]string, error)
	RollRecords(ctx context.Context, symbol string) ([]RollRecord, error)
	ReplaceRollRecords(ctx context.Context, symbol string, records []RollRecord) error
	SpliceSeries(ctx context.Context, symbol string) ([]SpliceAdjustment, error)
	ReplaceSplice(ctx context.Context, symbol string, series []SpliceAdjustment) error
}

// RunStore keeps run summaries for status reporting
type RunStore interface {
	SaveRun(ctx context.Context, summary *RunSummary) error
	RecentRuns(ctx context.Context, limit int) ([]RunSummary, error)
}

// Calendar answers trading-day questions
type Calendar interface {
	IsTradingDay(ctx context.Context, date time.Time) (bool, error)
	PreviousTradingDay(ctx context.Context, date time.Time) (time.Time, error)
}
