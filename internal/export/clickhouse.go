package export

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/ClickHouse/clickhouse-go/v2" // registers the "clickhouse" database/sql driver

	"github.com/wonny/quantsource/internal/contracts"
)

// ClickHouse table definitions
// ⭐ SSOT: 분석 DB 스키마는 여기서만
var clickhouseSchema = []string{
	`CREATE TABLE IF NOT EXISTS aggregate_bars (
		instrument   LowCardinality(String),
		granularity  LowCardinality(String),
		period_key   String,
		period_start Date,
		period_end   Date,
		open         Float64,
		high         Float64,
		low          Float64,
		close        Float64,
		volume       Int64,
		amount       Float64,
		updated_at   DateTime DEFAULT now()
	) ENGINE = ReplacingMergeTree(updated_at)
	ORDER BY (instrument, granularity, period_key)`,

	`CREATE TABLE IF NOT EXISTS adjust_factors (
		instrument     LowCardinality(String),
		effective_date Date,
		factor         Float64,
		updated_at     DateTime DEFAULT now()
	) ENGINE = ReplacingMergeTree(updated_at)
	ORDER BY (instrument, effective_date)`,

	`CREATE TABLE IF NOT EXISTS splice_adjustments (
		symbol          LowCardinality(String),
		trade_date      Date,
		cumulative_diff Float64,
		updated_at      DateTime DEFAULT now()
	) ENGINE = ReplacingMergeTree(updated_at)
	ORDER BY (symbol, trade_date)`,
}

// ClickHouseSink bulk-loads batches into ClickHouse through database/sql
type ClickHouseSink struct {
	db *sql.DB
}

// NewClickHouseSink opens the connection and ensures the tables exist
func NewClickHouseSink(ctx context.Context, dsn string) (*ClickHouseSink, error) {
	db, err := sql.Open("clickhouse", dsn)
	if err != nil {
		return nil, fmt.Errorf("open clickhouse: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetConnMaxLifetime(time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("clickhouse ping failed: %w", err)
	}

	s := &ClickHouseSink{db: db}
	if err := s.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *ClickHouseSink) ensureSchema(ctx context.Context) error {
	for _, ddl := range clickhouseSchema {
		if _, err := s.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("clickhouse schema: %w", err)
		}
	}
	return nil
}

// Name identifies the sink in logs
func (s *ClickHouseSink) Name() string { return "clickhouse" }

// Write inserts the batch. Factor and splice series are replaced per key since
// stale breakpoints would otherwise survive ReplacingMergeTree deduplication.
func (s *ClickHouseSink) Write(ctx context.Context, b *Batch) error {
	if len(b.Factors) > 0 {
		if err := s.deleteKeys(ctx, "adjust_factors", "instrument", factorKeys(b.Factors)); err != nil {
			return err
		}
	}
	if len(b.Splice) > 0 {
		if err := s.deleteKeys(ctx, "splice_adjustments", "symbol", spliceKeys(b.Splice)); err != nil {
			return err
		}
	}

	if err := insert(ctx, s.db,
		"INSERT INTO aggregate_bars (instrument, granularity, period_key, period_start, period_end, open, high, low, close, volume, amount)",
		b.Bars, func(r BarRow) ([]any, error) {
			start, err := contracts.ParseDate(r.PeriodStart)
			if err != nil {
				return nil, err
			}
			end, err := contracts.ParseDate(r.PeriodEnd)
			return []any{r.Instrument, r.Granularity, r.PeriodKey, start, end, r.Open, r.High, r.Low, r.Close, r.Volume, r.Amount}, err
		}); err != nil {
		return fmt.Errorf("insert aggregate_bars: %w", err)
	}

	if err := insert(ctx, s.db,
		"INSERT INTO adjust_factors (instrument, effective_date, factor)",
		b.Factors, func(r FactorRow) ([]any, error) {
			d, err := contracts.ParseDate(r.EffectiveDate)
			return []any{r.Instrument, d, r.Factor}, err
		}); err != nil {
		return fmt.Errorf("insert adjust_factors: %w", err)
	}

	if err := insert(ctx, s.db,
		"INSERT INTO splice_adjustments (symbol, trade_date, cumulative_diff)",
		b.Splice, func(r SpliceRow) ([]any, error) {
			d, err := contracts.ParseDate(r.TradeDate)
			return []any{r.Symbol, d, r.CumulativeDiff}, err
		}); err != nil {
		return fmt.Errorf("insert splice_adjustments: %w", err)
	}
	return nil
}

func (s *ClickHouseSink) deleteKeys(ctx context.Context, table, column string, keys []string) error {
	for _, k := range keys {
		if _, err := s.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE %s = ?", table, column), k); err != nil {
			return fmt.Errorf("delete %s %s: %w", table, k, err)
		}
	}
	return nil
}

// insert sends rows as one ClickHouse block (prepared statement inside a transaction)
func insert[T any](ctx context.Context, db *sql.DB, query string, rows []T, values func(T) ([]any, error)) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range rows {
		args, err := values(r)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func factorKeys(rows []FactorRow) []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range rows {
		if !seen[r.Instrument] {
			seen[r.Instrument] = true
			out = append(out, r.Instrument)
		}
	}
	return out
}

func spliceKeys(rows []SpliceRow) []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range rows {
		if !seen[r.Symbol] {
			seen[r.Symbol] = true
			out = append(out, r.Symbol)
		}
	}
	return out
}

// Ping checks the connection
func (s *ClickHouseSink) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the connection
func (s *ClickHouseSink) Close() error {
	return s.db.Close()
}
