// Package db holds the Postgres plumbing shared by repositories: the pool
// interface they depend on, transaction hooks, and embedded migrations.
package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// DBTX is satisfied by *pgxpool.Pool and by pgxmock pools in tests.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// TxFunc runs extra statements inside another repository's transaction.
type TxFunc func(ctx context.Context, tx pgx.Tx) error

// RunHooks executes hooks in order and stops at the first error.
func RunHooks(ctx context.Context, tx pgx.Tx, hooks []TxFunc) error {
	for _, hook := range hooks {
		if hook == nil {
			continue
		}
		if err := hook(ctx, tx); err != nil {
			return err
		}
	}
	return nil
}

// Money parses a numeric column selected with a ::text cast.
func Money(raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse numeric %q: %w", raw, err)
	}
	return v, nil
}
