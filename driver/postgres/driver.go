// Package postgres implements the PostgreSQL backend on top of pgx
// connection pools. Statements are rendered by the shared sqlbuild
// package with the Postgres dialect.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/smartrecord/smartrecord/core"
)

// Driver is the PostgreSQL implementation of core.Driver. It owns a
// pgx pool and hands out one transaction-backed session per engine
// call.
type Driver struct {
	dsn  string
	pool *pgxpool.Pool
}

var _ core.Driver = (*Driver)(nil)

// New creates a Driver for the given connection string. No connection
// is made until Connect.
func New(dsn string) *Driver {
	return &Driver{dsn: dsn}
}

// Connect establishes the connection pool and verifies connectivity.
func (d *Driver) Connect(ctx context.Context) error {
	pool, err := pgxpool.New(ctx, d.dsn)
	if err != nil {
		return fmt.Errorf("postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return fmt.Errorf("postgres: ping: %w", err)
	}
	d.pool = pool
	return nil
}

// Ping checks database reachability.
func (d *Driver) Ping(ctx context.Context) error {
	if d.pool == nil {
		return fmt.Errorf("postgres: not connected")
	}
	return d.pool.Ping(ctx)
}

// Close releases the connection pool.
func (d *Driver) Close(ctx context.Context) error {
	if d.pool != nil {
		d.pool.Close()
		d.pool = nil
	}
	return nil
}

// Session begins a transaction-backed session. The session holds one
// pooled connection until Commit or Rollback returns it.
func (d *Driver) Session(ctx context.Context) (core.Session, error) {
	if d.pool == nil {
		return nil, fmt.Errorf("postgres: not connected")
	}
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("postgres: begin: %w", err)
	}
	return &session{tx: tx}, nil
}
