// Package pgstore persists bars, factors, roll history and splice series in PostgreSQL.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/quantsource/internal/contracts"
)

// querier is satisfied by *pgxpool.Pool and pgx.Tx
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// Store implements contracts.Store, SpliceStore and RunStore
// ⭐ SSOT: 모든 드라이버 오류는 StorageIOError로 감싸서 반환
type Store struct {
	pool *pgxpool.Pool
	q    querier
	inTx bool
}

// New creates a store on a pool
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, q: pool}
}

// Atomic runs fn in a single database transaction
func (s *Store) Atomic(ctx context.Context, fn func(tx contracts.Store) error) error {
	if s.inTx {
		return fn(s)
	}
	return s.withTx(ctx, func(txs *Store) error { return fn(txs) })
}

func (s *Store) withTx(ctx context.Context, fn func(txs *Store) error) error {
	if s.inTx {
		return fn(s)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return contracts.WrapStorage("begin", err)
	}
	defer func() {
		// 커밋 후 Rollback은 ErrTxClosed → 무시
		_ = tx.Rollback(context.WithoutCancel(ctx))
	}()

	if err := fn(&Store{pool: s.pool, q: tx, inTx: true}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return contracts.WrapStorage("commit", err)
	}
	return nil
}

// dateArg maps an open (zero) bound to NULL
func dateArg(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

// noRows converts pgx.ErrNoRows to (false, nil)
func noRows(err error) (bool, error) {
	if errors.Is(err, pgx.ErrNoRows) {
		return true, nil
	}
	return false, err
}

func wrap(op, key string, err error) error {
	if err == nil {
		return nil
	}
	return contracts.WrapStorage(fmt.Sprintf("%s %s", op, key), err)
}
