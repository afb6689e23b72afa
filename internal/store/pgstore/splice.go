package pgstore

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/wonny/quantsource/internal/contracts"
)

// ContinuousSymbols lists symbols with stored roll history
func (s *Store) ContinuousSymbols(ctx context.Context) ([]string, error) {
	rows, err := s.q.Query(ctx, `SELECT DISTINCT symbol FROM quant.continuous_rolls ORDER BY symbol`)
	if err != nil {
		return nil, wrap("continuous symbols", "", err)
	}
	defer rows.Close()

	out, err := pgx.CollectRows(rows, pgx.RowTo[string])
	return out, wrap("continuous symbols", "", err)
}

// RollRecords returns the roll history of symbol in date order
func (s *Store) RollRecords(ctx context.Context, symbol string) ([]contracts.RollRecord, error) {
	rows, err := s.q.Query(ctx, `
		SELECT trade_date, contract
		FROM quant.continuous_rolls
		WHERE symbol = $1
		ORDER BY trade_date`,
		symbol,
	)
	if err != nil {
		return nil, wrap("roll records", symbol, err)
	}
	defer rows.Close()

	var out []contracts.RollRecord
	for rows.Next() {
		r := contracts.RollRecord{Symbol: symbol}
		if err := rows.Scan(&r.Date, &r.Contract); err != nil {
			return nil, wrap("scan roll", symbol, err)
		}
		out = append(out, r)
	}
	return out, wrap("roll records", symbol, rows.Err())
}

// ReplaceRollRecords rewrites the roll history of symbol
func (s *Store) ReplaceRollRecords(ctx context.Context, symbol string, records []contracts.RollRecord) error {
	return s.withTx(ctx, func(tx *Store) error {
		if _, err := tx.q.Exec(ctx, `DELETE FROM quant.continuous_rolls WHERE symbol = $1`, symbol); err != nil {
			return wrap("delete rolls", symbol, err)
		}
		_, err := tx.q.CopyFrom(ctx,
			pgx.Identifier{"quant", "continuous_rolls"},
			[]string{"symbol", "trade_date", "contract"},
			pgx.CopyFromSlice(len(records), func(i int) ([]any, error) {
				return []any{symbol, records[i].Date, records[i].Contract}, nil
			}),
		)
		return wrap("copy rolls", symbol, err)
	})
}

// SpliceSeries returns the stored splice series of symbol
func (s *Store) SpliceSeries(ctx context.Context, symbol string) ([]contracts.SpliceAdjustment, error) {
	rows, err := s.q.Query(ctx, `
		SELECT trade_date, cumulative_diff
		FROM quant.splice_adjustments
		WHERE symbol = $1
		ORDER BY trade_date`,
		symbol,
	)
	if err != nil {
		return nil, wrap("splice series", symbol, err)
	}
	defer rows.Close()

	var out []contracts.SpliceAdjustment
	for rows.Next() {
		a := contracts.SpliceAdjustment{Symbol: symbol}
		if err := rows.Scan(&a.Date, &a.CumulativeDiff); err != nil {
			return nil, wrap("scan splice", symbol, err)
		}
		out = append(out, a)
	}
	return out, wrap("splice series", symbol, rows.Err())
}

// ReplaceSplice rewrites the splice series of symbol
func (s *Store) ReplaceSplice(ctx context.Context, symbol string, series []contracts.SpliceAdjustment) error {
	return s.withTx(ctx, func(tx *Store) error {
		if _, err := tx.q.Exec(ctx, `DELETE FROM quant.splice_adjustments WHERE symbol = $1`, symbol); err != nil {
			return wrap("delete splice", symbol, err)
		}
		_, err := tx.q.CopyFrom(ctx,
			pgx.Identifier{"quant", "splice_adjustments"},
			[]string{"symbol", "trade_date", "cumulative_diff"},
			pgx.CopyFromSlice(len(series), func(i int) ([]any, error) {
				return []any{symbol, series[i].Date, series[i].CumulativeDiff}, nil
			}),
		)
		return wrap("copy splice", symbol, err)
	})
}
