package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/smartrecord/smartrecord/core"
	"github.com/smartrecord/smartrecord/driver/sqlbuild"
)

// session executes statements inside one pgx transaction.
type session struct {
	tx pgx.Tx
}

var _ core.Session = (*session)(nil)

func (s *session) Select(ctx context.Context, query *core.AssembledQuery) ([]core.Row, error) {
	stmt, err := sqlbuild.Select(sqlbuild.Postgres, query)
	if err != nil {
		return nil, err
	}

	rows, err := s.tx.Query(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.Row
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		out = append(out, sqlbuild.NestRow(stmt.Columns, values))
	}
	return out, rows.Err()
}

func (s *session) Aggregate(ctx context.Context, query *core.AssembledQuery) ([]core.Row, error) {
	stmt, err := sqlbuild.BuildAggregate(sqlbuild.Postgres, query)
	if err != nil {
		return nil, err
	}

	rows, err := s.tx.Query(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.Row
	for rows.Next() {
		values, err := rows.Values()
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
	stmt, err := sqlbuild.Insert(sqlbuild.Postgres, meta, values)
	if err != nil {
		return nil, err
	}

	rows, err := s.tx.Query(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	stored, err := rows.Values()
	if err != nil {
		return nil, err
	}
	return sqlbuild.NestRow(stmt.Columns, stored), rows.Err()
}

func (s *session) Update(ctx context.Context, meta *core.ModelMeta, pk any, changes core.Changes) error {
	stmt, err := sqlbuild.Update(sqlbuild.Postgres, meta, pk, changes)
	if err != nil {
		return err
	}
	_, err = s.tx.Exec(ctx, stmt.SQL, stmt.Args...)
	return err
}

func (s *session) Delete(ctx context.Context, meta *core.ModelMeta, pk any) error {
	stmt := sqlbuild.Delete(sqlbuild.Postgres, meta, pk)
	_, err := s.tx.Exec(ctx, stmt.SQL, stmt.Args...)
	return err
}

func (s *session) Get(ctx context.Context, meta *core.ModelMeta, pk any) (core.Row, error) {
	stmt := sqlbuild.Get(sqlbuild.Postgres, meta, pk)

	rows, err := s.tx.Query(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	values, err := rows.Values()
	if err != nil {
		return nil, err
	}
	return sqlbuild.NestRow(stmt.Columns, values), rows.Err()
}

func (s *session) SelectPairs(ctx context.Context, query core.PairQuery) ([]core.Pair, error) {
	stmt := sqlbuild.Pairs(sqlbuild.Postgres, query)

	rows, err := s.tx.Query(ctx, stmt.SQL, stmt.Args...)
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
	return s.tx.Commit(ctx)
}

func (s *session) Rollback(ctx context.Context) error {
	return s.tx.Rollback(ctx)
}
