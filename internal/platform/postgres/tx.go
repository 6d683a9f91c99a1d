package postgres

import (
	"context"
	"database/sql"
	"time"

	dErrors "credence/pkg/domain-errors"
	txcontext "credence/pkg/platform/tx"
)

const defaultTxTimeout = 5 * time.Second

// TxRunner implements tx.Runner with a database transaction carried in ctx.
// Stores pick it up through Conn.
type TxRunner struct {
	db      *sql.DB
	timeout time.Duration
}

func NewTxRunner(db *sql.DB, timeout time.Duration) *TxRunner {
	if timeout <= 0 {
		timeout = defaultTxTimeout
	}
	return &TxRunner{db: db, timeout: timeout}
}

func (t *TxRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	// Nested units join the outer transaction.
	if _, ok := txcontext.From(ctx); ok {
		return fn(ctx)
	}
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return t.classify(ctx, err, "begin transaction")
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(txcontext.WithTx(ctx, tx)); err != nil {
		if ctx.Err() != nil && !dErrors.HasCode(err, dErrors.CodeTimeout) {
			return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction exceeded its deadline")
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return t.classify(ctx, err, "commit transaction")
	}
	return nil
}

func (t *TxRunner) classify(ctx context.Context, err error, op string) error {
	switch {
	case ctx.Err() != nil:
		return dErrors.Wrap(err, dErrors.CodeTimeout, op+": deadline exceeded")
	case IsRetryable(err):
		return dErrors.Wrap(err, dErrors.CodeConcurrentModification, op+": serialization conflict")
	default:
		return err
	}
}
