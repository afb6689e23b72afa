package pgstore

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// TradingDays returns trading days in [from, to] ascending; zero bounds are open
func (s *Store) TradingDays(ctx context.Context, from, to time.Time) ([]time.Time, error) {
	rows, err := s.q.Query(ctx, `
		SELECT trade_date
		FROM quant.trading_days
		WHERE ($1::date IS NULL OR trade_date >= $1)
		  AND ($2::date IS NULL OR trade_date <= $2)
		ORDER BY trade_date`,
		dateArg(from), dateArg(to),
	)
	if err != nil {
		return nil, wrap("trading days", "", err)
	}

	days, err := pgx.CollectRows(rows, pgx.RowTo[time.Time])
	return days, wrap("trading days", "", err)
}

// AddTradingDays inserts trading days, ignoring ones already stored
func (s *Store) AddTradingDays(ctx context.Context, days []time.Time) (int64, error) {
	if len(days) == 0 {
		return 0, nil
	}
	tag, err := s.q.Exec(ctx, `
		INSERT INTO quant.trading_days (trade_date)
		SELECT unnest($1::date[])
		ON CONFLICT (trade_date) DO NOTHING`,
		days,
	)
	if err != nil {
		return 0, wrap("add trading days", fmt.Sprintf("(%d)", len(days)), err)
	}
	return tag.RowsAffected(), nil
}
