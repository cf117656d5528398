package store

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Querier is the subset of pgx satisfied by both *pgxpool.Pool and pgx.Tx.
// Repositories run against a Querier so the same queries work inside and
// outside a transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Runner begins transactions. The engine depends on this interface so tests
// can substitute an in-memory runner.
type Runner interface {
	RunTx(ctx context.Context, fn func(tx Querier) error) error
}

// PoolRunner runs transactions against a pgx connection pool.
type PoolRunner struct {
	pool *pgxpool.Pool
}

// NewRunner creates a PoolRunner over the given pool.
func NewRunner(pool *pgxpool.Pool) *PoolRunner {
	return &PoolRunner{pool: pool}
}

// RunTx executes fn inside a pgx transaction.
// If fn returns an error the tx rolls back, else it commits.
func (r *PoolRunner) RunTx(ctx context.Context, fn func(tx Querier) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}
