package sqlite

import (
	"context"
	"database/sql"

	"github.com/smartrecord/smartrecord/core"
	"github.com/smartrecord/smartrecord/driver/sqlbuild"
)

// session executes statements inside one database/sql transaction.
type session struct {
	tx *sql.Tx
}

var _ core.Session = (*session)(nil)

// scanValues reads the current row into a generic value slice.
func scanValues(rows *sql.Rows, width int) ([]any, error) {
	values := make([]any, width)
	targets := make([]any, width)
	for i := range values {
		targets[i] = &values[i]
	}
	if err := rows.Scan(targets...); err != nil {
		return nil, err
	}
	return values, nil
}

func (s *session) selectRows(ctx context.Context, stmt *sqlbuild.SelectStatement) ([]core.Row, error) {
	rows, err := s.tx.QueryContext(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.Row
	for rows.Next() {
		values, err := scanValues(rows, len(stmt.Columns))
		if err != nil {
			return nil, err
		}
		out = append(out, sqlbuild.NestRow(stmt.Columns, values))
	}
	return out, rows.Err()
}

func (s *session) Select(ctx context.Context, query *core.AssembledQuery) ([]core.Row, error) {
	stmt, err := sqlbuild.Select(sqlbuild.SQLite, query)
	if err != nil {
		return nil, err
	}
	return s.selectRows(ctx, stmt)
}

func (s *session) Aggregate(ctx context.Context, query *core.AssembledQuery) ([]core.Row, error) {
	stmt, err := sqlbuild.BuildAggregate(sqlbuild.SQLite, query)
	if err != nil {
		return nil, err
	}

	rows, err := s.tx.QueryContext(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.Row
	for rows.Next() {
		values, err := scanValues(rows, len(stmt.Keys))
		if err != nil {
			return nil, err
		}
		row := make(core.Row, len(stmt.Keys))
		for i, key := range stmt.Keys {
			row[key] = values[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (s *session) Insert(ctx context.Context, meta *core.ModelMeta, values core.Row) (core.Row, error) {
	stmt, err := sqlbuild.Insert(sqlbuild.SQLite, meta, values)
	if err != nil {
		return nil, err
	}
	rows, err := s.selectRows(ctx, stmt)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (s *session) Update(ctx context.Context, meta *core.ModelMeta, pk any, changes core.Changes) error {
	stmt, err := sqlbuild.Update(sqlbuild.SQLite, meta, pk, changes)
	if err != nil {
		return err
	}
	_, err = s.tx.ExecContext(ctx, stmt.SQL, stmt.Args...)
	return err
}

func (s *session) Delete(ctx context.Context, meta *core.ModelMeta, pk any) error {
	stmt := sqlbuild.Delete(sqlbuild.SQLite, meta, pk)
	_, err := s.tx.ExecContext(ctx, stmt.SQL, stmt.Args...)
	return err
}

func (s *session) Get(ctx context.Context, meta *core.ModelMeta, pk any) (core.Row, error) {
	stmt := sqlbuild.Get(sqlbuild.SQLite, meta, pk)
	rows, err := s.selectRows(ctx, stmt)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (s *session) SelectPairs(ctx context.Context, query core.PairQuery) ([]core.Pair, error) {
	stmt := sqlbuild.Pairs(sqlbuild.SQLite, query)

	rows, err := s.tx.QueryContext(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.Pair
	for rows.Next() {
		var pair core.Pair
		if err := rows.Scan(&pair.Left, &pair.Right); err != nil {
			return nil, err
		}
		out = append(out, pair)
	}
	return out, rows.Err()
}

func (s *session) Commit(ctx context.Context) error {
	return s.tx.Commit()
}

func (s *session) Rollback(ctx context.Context) error {
	return s.tx.Rollback()
}
