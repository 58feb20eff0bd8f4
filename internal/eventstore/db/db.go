// Package db is the sqlc-style query layer generated by hand for the event
// store's schema: a DBTX abstraction over *sql.DB/*sql.Tx and one Queries
// struct exposing each fixed-shape statement as a method.
package db

import (
	"context"
	"database/sql"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx, so Queries can run inside
// or outside a transaction without duplicating its methods.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Queries wraps the event store's fixed-shape statements. Filtered reads
// with a dynamic WHERE clause (Query, EventStats) live one layer up in
// internal/eventstore.Store, since their shape depends on which filter
// fields the caller actually set.
type Queries struct {
	db DBTX
}

// New builds a Queries bound to db (a *sql.DB for top-level calls, or a
// *sql.Tx for calls that must commit atomically with others).
func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// WithTx returns a Queries bound to tx instead of q's original DBTX.
func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}
