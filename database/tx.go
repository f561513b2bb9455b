// Package database — transaction handling.
//
// WithTx runs a group of DB operations atomically (all-or-nothing). Repository
// methods accept a TxQuerier rather than *sql.DB directly so the same method
// can run standalone or as a step inside a WithTx block:
//
//	err := database.WithTx(ctx, db.Conn, func(tx *sql.Tx) error {
//	    if _, err := tx.ExecContext(ctx, "INSERT ...", ...); err != nil {
//	        return err // triggers ROLLBACK
//	    }
//	    return nil // triggers COMMIT
//	})
package database

import (
	"context"
	"database/sql"
	"fmt"
)

// TxQuerier is satisfied by both *sql.DB and *sql.Tx. database/sql has no
// such interface built in; repositories depend on this one instead of a
// concrete *sql.DB so they compose transparently under WithTx.
type TxQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// WithTx begins a default read-write transaction and runs fn under it. See
// WithTxOpts for control over isolation level or a read-only hint.
func WithTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	return WithTxOpts(ctx, db, nil, fn)
}

// WithTxOpts begins a transaction with opts, runs fn(tx), and finalizes it:
// commit on a nil return, rollback otherwise. It also treats a context that
// was canceled while fn ran as a rollback condition even if fn itself
// returned nil — an operation that raced a client disconnect shouldn't land
// a partial commit just because it finished before noticing.
func WithTxOpts(ctx context.Context, db *sql.DB, opts *sql.TxOptions, fn func(tx *sql.Tx) error) (err error) {
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		err = finishTx(tx, ctx.Err(), err)
	}()

	err = fn(tx)
	return
}

// finishTx decides whether to commit or roll back based on fnErr (the error
// returned by the transaction body) and ctxErr (the context's state at the
// time the body returned), and returns the error the caller should see.
func finishTx(tx *sql.Tx, ctxErr, fnErr error) error {
	if fnErr != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback also failed: %v)", fnErr, rbErr)
		}
		return fnErr
	}

	if ctxErr != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("context done: %w (rollback also failed: %v)", ctxErr, rbErr)
		}
		return fmt.Errorf("transaction aborted, context done: %w", ctxErr)
	}

	if commitErr := tx.Commit(); commitErr != nil {
		return fmt.Errorf("failed to commit transaction: %w", commitErr)
	}
	return nil
}
