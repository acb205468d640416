package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/praxis-crm/praxis/internal/shared"
)

// DBTX is the subset of pgx query methods shared by *pgxpool.Pool and pgx.Tx,
// so repositories can run inside or outside a transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// WithTx executes a function within a transaction using the RepeatableRead isolation level.
func WithTx(ctx context.Context, pool *pgxpool.Pool, fn func(pgx.Tx) error) error {
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return fmt.Errorf("platform/db: begin tx: %w", err)
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(tx); err != nil {
		return mapTxError(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return mapTxError(fmt.Errorf("platform/db: commit tx: %w", err))
	}

	return nil
}

// mapTxError converts serialization failures into the retryable conflict
// sentinel. Under RepeatableRead, concurrent writers to the same key lose with
// SQLSTATE 40001 (serialization failure) or 40P01 (deadlock detected); both
// are safe to retry, so callers see Conflict rather than an internal error.
func mapTxError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && (pgErr.Code == "40001" || pgErr.Code == "40P01") {
		return fmt.Errorf("concurrent write collision (%s): %w", pgErr.Code, shared.ErrConflict)
	}
	return err
}

// TxRunner abstracts transaction execution so services can be exercised with
// stub repositories in tests.
type TxRunner interface {
	RunTx(ctx context.Context, fn func(pgx.Tx) error) error
}

// PoolRunner runs transactions against a pgx pool.
type PoolRunner struct {
	Pool *pgxpool.Pool
}

// RunTx implements TxRunner.
func (p PoolRunner) RunTx(ctx context.Context, fn func(pgx.Tx) error) error {
	return WithTx(ctx, p.Pool, fn)
}
