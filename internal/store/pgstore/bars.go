package pgstore

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/wonny/quantsource/internal/contracts"
)

// LastBar returns the latest bar with date <= onOrBefore, or nil
func (s *Store) LastBar(ctx context.Context, instrument string, g contracts.Granularity, onOrBefore time.Time) (*contracts.Bar, error) {
	var (
		query string
		args  []any
	)
	if g == contracts.Daily {
		query = `
			SELECT trade_date, '' AS period_key, open, high, low, close, pre_close, volume, amount
			FROM quant.daily_bars
			WHERE instrument = $1 AND trade_date <= $2
			ORDER BY trade_date DESC
			LIMIT 1`
		args = []any{instrument, onOrBefore}
	} else {
		query = `
			SELECT period_end, period_key, open, high, low, close, 0 AS pre_close, volume, amount
			FROM quant.aggregate_bars
			WHERE instrument = $1 AND granularity = $2 AND period_end <= $3
			ORDER BY period_end DESC
			LIMIT 1`
		args = []any{instrument, string(g), onOrBefore}
	}

	bar := contracts.Bar{Instrument: instrument, Granularity: g}
	err := s.q.QueryRow(ctx, query, args...).Scan(
		&bar.Date, &bar.PeriodKey, &bar.Open, &bar.High, &bar.Low, &bar.Close,
		&bar.PreClose, &bar.Volume, &bar.Amount,
	)
	if empty, err := noRows(err); empty {
		return nil, nil
	} else if err != nil {
		return nil, wrap("last bar", instrument, err)
	}
	return &bar, nil
}

// UpsertBar inserts or updates one bar keyed by date (daily) or period key (aggregate)
func (s *Store) UpsertBar(ctx context.Context, bar contracts.Bar) error {
	if err := bar.Validate(); err != nil {
		return err
	}

	var err error
	if bar.Granularity == contracts.Daily {
		_, err = s.q.Exec(ctx, `
			INSERT INTO quant.daily_bars (instrument, trade_date, open, high, low, close, pre_close, volume, amount, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
			ON CONFLICT (instrument, trade_date) DO UPDATE SET
				open = EXCLUDED.open,
				high = EXCLUDED.high,
				low = EXCLUDED.low,
				close = EXCLUDED.close,
				pre_close = EXCLUDED.pre_close,
				volume = EXCLUDED.volume,
				amount = EXCLUDED.amount,
				updated_at = NOW()`,
			bar.Instrument, bar.Date, bar.Open, bar.High, bar.Low, bar.Close, bar.PreClose, bar.Volume, bar.Amount,
		)
	} else {
		_, err = s.q.Exec(ctx, `
			INSERT INTO quant.aggregate_bars (instrument, granularity, period_key, period_end, open, high, low, close, volume, amount, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
			ON CONFLICT (instrument, granularity, period_key) DO UPDATE SET
				period_end = EXCLUDED.period_end,
				open = EXCLUDED.open,
				high = EXCLUDED.high,
				low = EXCLUDED.low,
				close = EXCLUDED.close,
				volume = EXCLUDED.volume,
				amount = EXCLUDED.amount,
				updated_at = NOW()`,
			bar.Instrument, string(bar.Granularity), bar.PeriodKey, bar.Date,
			bar.Open, bar.High, bar.Low, bar.Close, bar.Volume, bar.Amount,
		)
	}
	return wrap("upsert bar", bar.Instrument, err)
}

// ReplaceSeries deletes and bulk-loads the whole series in one transaction
func (s *Store) ReplaceSeries(ctx context.Context, instrument string, g contracts.Granularity, bars []contracts.Bar) error {
	for i := range bars {
		if err := bars[i].Validate(); err != nil {
			return err
		}
	}

	return s.withTx(ctx, func(tx *Store) error {
		if g == contracts.Daily {
			if _, err := tx.q.Exec(ctx, `DELETE FROM quant.daily_bars WHERE instrument = $1`, instrument); err != nil {
				return wrap("delete series", instrument, err)
			}
			_, err := tx.q.CopyFrom(ctx,
				pgx.Identifier{"quant", "daily_bars"},
				[]string{"instrument", "trade_date", "open", "high", "low", "close", "pre_close", "volume", "amount"},
				pgx.CopyFromSlice(len(bars), func(i int) ([]any, error) {
					b := bars[i]
					return []any{instrument, b.Date, b.Open, b.High, b.Low, b.Close, b.PreClose, b.Volume, b.Amount}, nil
				}),
			)
			return wrap("copy series", instrument, err)
		}

		if _, err := tx.q.Exec(ctx,
			`DELETE FROM quant.aggregate_bars WHERE instrument = $1 AND granularity = $2`,
			instrument, string(g),
		); err != nil {
			return wrap("delete series", instrument, err)
		}
		_, err := tx.q.CopyFrom(ctx,
			pgx.Identifier{"quant", "aggregate_bars"},
			[]string{"instrument", "granularity", "period_key", "period_end", "open", "high", "low", "close", "volume", "amount"},
			pgx.CopyFromSlice(len(bars), func(i int) ([]any, error) {
				b := bars[i]
				return []any{instrument, string(g), b.PeriodKey, b.Date, b.Open, b.High, b.Low, b.Close, b.Volume, b.Amount}, nil
			}),
		)
		return wrap("copy series", instrument, err)
	})
}

// ListBars returns bars between from and to (inclusive, zero = open) in date order
func (s *Store) ListBars(ctx context.Context, instrument string, g contracts.Granularity, from, to time.Time) ([]contracts.Bar, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if g == contracts.Daily {
		rows, err = s.q.Query(ctx, `
			SELECT trade_date, '' AS period_key, open, high, low, close, pre_close, volume, amount
			FROM quant.daily_bars
			WHERE instrument = $1
				AND ($2::date IS NULL OR trade_date >= $2::date)
				AND ($3::date IS NULL OR trade_date <= $3::date)
			ORDER BY trade_date`,
			instrument, dateArg(from), dateArg(to),
		)
	} else {
		rows, err = s.q.Query(ctx, `
			SELECT period_end, period_key, open, high, low, close, 0 AS pre_close, volume, amount
			FROM quant.aggregate_bars
			WHERE instrument = $1 AND granularity = $2
				AND ($3::date IS NULL OR period_end >= $3::date)
				AND ($4::date IS NULL OR period_end <= $4::date)
			ORDER BY period_end`,
			instrument, string(g), dateArg(from), dateArg(to),
		)
	}
	if err != nil {
		return nil, wrap("list bars", instrument, err)
	}
	defer rows.Close()

	var out []contracts.Bar
	for rows.Next() {
		b := contracts.Bar{Instrument: instrument, Granularity: g}
		if err := rows.Scan(&b.Date, &b.PeriodKey, &b.Open, &b.High, &b.Low, &b.Close, &b.PreClose, &b.Volume, &b.Amount); err != nil {
			return nil, wrap("scan bar", instrument, err)
		}
		out = append(out, b)
	}
	return out, wrap("list bars", instrument, rows.Err())
}

// Instruments lists instruments with stored daily bars
func (s *Store) Instruments(ctx context.Context) ([]string, error) {
	rows, err := s.q.Query(ctx, `SELECT DISTINCT instrument FROM quant.daily_bars ORDER BY instrument`)
	if err != nil {
		return nil, wrap("list instruments", "", err)
	}
	defer rows.Close()

	out, err := pgx.CollectRows(rows, pgx.RowTo[string])
	return out, wrap("list instruments", "", err)
}
