// Package core provides the building blocks of the smartrecord engine.
// This file defines the contracts between the execution coordinator and
// database backends.
package core

import "context"

// Row is one raw result row: database column names mapped to values.
// For join-fetched relations the driver nests a Row (or nil when the
// outer join found nothing) under the relation's field name.
type Row map[string]any

// Changes represents a set of column updates, mapping database column
// names to new values. It is used by update operations.
type Changes map[string]any

// Pair is one (left, right) key pair read from a many-to-many join
// table.
type Pair struct {
	Left  any
	Right any
}

// PairQuery asks a session for the join-table pairs whose left column
// matches any of LeftValues. Join tables carry no model metadata, so
// they are addressed by raw table and column names.
type PairQuery struct {
	Table       string
	LeftColumn  string
	RightColumn string
	LeftValues  []any
}

// Session is a scoped execution context bound to one underlying
// connection/transaction. The execution coordinator owns a session
// exclusively for the duration of one call and never shares it across
// concurrent calls; every exit path either commits or rolls back and
// releases it. Implementations release their underlying resources when
// Commit or Rollback returns.
type Session interface {
	// Select executes a row-returning query and buffers the raw rows.
	Select(ctx context.Context, query *AssembledQuery) ([]Row, error)
	// Aggregate executes an aggregate/grouped query; result rows hold
	// group-by columns and aggregate aliases.
	Aggregate(ctx context.Context, query *AssembledQuery) ([]Row, error)
	// Insert persists one row and returns the stored row, including
	// database-generated values.
	Insert(ctx context.Context, meta *ModelMeta, values Row) (Row, error)
	// Update applies changes to the row identified by primary key.
	Update(ctx context.Context, meta *ModelMeta, pk any, changes Changes) error
	// Delete removes the row identified by primary key.
	Delete(ctx context.Context, meta *ModelMeta, pk any) error
	// Get fetches the row identified by primary key, or nil when absent.
	Get(ctx context.Context, meta *ModelMeta, pk any) (Row, error)
	// SelectPairs reads key pairs from a many-to-many join table.
	SelectPairs(ctx context.Context, query PairQuery) ([]Pair, error)

	// Commit finalizes the session and releases it.
	Commit(ctx context.Context) error
	// Rollback reverts the session and releases it.
	Rollback(ctx context.Context) error
}

// Driver defines the contract for database backends.
//
// A driver owns connectivity (typically a pool) and hands out one
// Session per engine call. Connection pooling, retry-on-acquire and
// timeout policies live in the backend, not in the engine.
type Driver interface {
	// Connect establishes connectivity or validates it.
	Connect(ctx context.Context) error
	// Ping checks if the underlying database is reachable.
	Ping(ctx context.Context) error
	// Close terminates the driver and releases resources.
	Close(ctx context.Context) error
	// Session begins a new scoped session.
	Session(ctx context.Context) (Session, error)
}
