// Package repository defines storage interfaces implemented by concrete backends.
package repository

import "context"

// Tx is one open unit of work on the authoritative store. Mutating repository
// methods that must share atomicity accept the same Tx; readers outside a unit
// of work run directly on the pool.
type Tx interface {
	// Commit makes the unit of work visible.
	Commit(ctx context.Context) error
	// Rollback discards the unit of work; safe to call after Commit.
	Rollback(ctx context.Context) error
}

// TxBeginner opens serializable units of work.
type TxBeginner interface {
	// Begin starts a serializable transaction.
	Begin(ctx context.Context) (Tx, error)
}
