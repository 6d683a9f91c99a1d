// Package tx carries units of work through context so stores participating in
// one logical operation commit or roll back together.
package tx

import (
	"context"
	"database/sql"
)

type (
	ctxKey     struct{}
	lockKeyKey struct{}
)

var txKey = ctxKey{}

// Runner executes fn as a single atomic unit. Implementations decide how the unit
// is made atomic (a SQL transaction, or a per-key lock around in-memory stores).
type Runner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// WithTx stores a SQL transaction in context for downstream store usage.
func WithTx(ctx context.Context, tx *sql.Tx) context.Context {
	if tx == nil {
		return ctx
	}
	return context.WithValue(ctx, txKey, tx)
}

// From extracts a SQL transaction from context if present.
func From(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(txKey).(*sql.Tx)
	return tx, ok
}

// WithLockKey scopes the next unit of work to a key. In-memory runners serialize
// units sharing a key and let different keys run in parallel.
func WithLockKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, lockKeyKey{}, key)
}

// LockKey returns the key set by WithLockKey, or "" if none.
func LockKey(ctx context.Context) string {
	if key, ok := ctx.Value(lockKeyKey{}).(string); ok {
		return key
	}
	return ""
}
