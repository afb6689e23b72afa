package pgstore

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/wonny/quantsource/internal/contracts"
)

// Factors returns the factor series in date order
func (s *Store) Factors(ctx context.Context, instrument string) ([]contracts.FactorPoint, error) {
	rows, err := s.q.Query(ctx, `
		SELECT effective_date, factor
		FROM quant.adjust_factors
		WHERE instrument = $1
		ORDER BY effective_date`,
		instrument,
	)
	if err != nil {
		return nil, wrap("factors", instrument, err)
	}
	defer rows.Close()

	var out []contracts.FactorPoint
	for rows.Next() {
		p := contracts.FactorPoint{Instrument: instrument}
		if err := rows.Scan(&p.Date, &p.Factor); err != nil {
			return nil, wrap("scan factor", instrument, err)
		}
		out = append(out, p)
	}
	return out, wrap("factors", instrument, rows.Err())
}

// ReplaceFactors deletes and rewrites the whole factor series
func (s *Store) ReplaceFactors(ctx context.Context, instrument string, points []contracts.FactorPoint) error {
	return s.withTx(ctx, func(tx *Store) error {
		if _, err := tx.q.Exec(ctx, `DELETE FROM quant.adjust_factors WHERE instrument = $1`, instrument); err != nil {
			return wrap("delete factors", instrument, err)
		}
		_, err := tx.q.CopyFrom(ctx,
			pgx.Identifier{"quant", "adjust_factors"},
			[]string{"instrument", "effective_date", "factor"},
			pgx.CopyFromSlice(len(points), func(i int) ([]any, error) {
				return []any{instrument, points[i].Date, points[i].Factor}, nil
			}),
		)
		return wrap("copy factors", instrument, err)
	})
}
