// Package sqlite implements the SQLite backend on database/sql with the
// pure-Go modernc driver. Statements are rendered by the shared
// sqlbuild package with the SQLite dialect.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/smartrecord/smartrecord/core"
)

// Driver is the SQLite implementation of core.Driver.
type Driver struct {
	dsn string
	db  *sql.DB
}

var _ core.Driver = (*Driver)(nil)

// New creates a Driver for the given DSN, e.g. a file path or
// ":memory:". No connection is made until Connect.
func New(dsn string) *Driver {
	return &Driver{dsn: dsn}
}

// Connect opens the database and verifies connectivity. In-memory
// databases are pinned to a single connection so every session sees the
// same data.
func (d *Driver) Connect(ctx context.Context) error {
	db, err := sql.Open("sqlite", d.dsn)
	if err != nil {
		return fmt.Errorf("sqlite: open: %w", err)
	}
	if strings.Contains(d.dsn, ":memory:") || strings.Contains(d.dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("sqlite: ping: %w", err)
	}
	d.db = db
	return nil
}

// Ping checks database reachability.
func (d *Driver) Ping(ctx context.Context) error {
	if d.db == nil {
		return fmt.Errorf("sqlite: not connected")
	}
	return d.db.PingContext(ctx)
}

// Close releases the database handle.
func (d *Driver) Close(ctx context.Context) error {
	if d.db == nil {
		return nil
	}
	err := d.db.Close()
	d.db = nil
	return err
}

// Session begins a transaction-backed session.
func (d *Driver) Session(ctx context.Context) (core.Session, error) {
	if d.db == nil {
		return nil, fmt.Errorf("sqlite: not connected")
	}
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sqlite: begin: %w", err)
	}
	return &session{tx: tx}, nil
}

// Exec runs a raw statement outside any session, for schema setup.
func (d *Driver) Exec(ctx context.Context, sql string, args ...any) error {
	if d.db == nil {
		return fmt.Errorf("sqlite: not connected")
	}
	_, err := d.db.ExecContext(ctx, sql, args...)
	return err
}
