package sqlbuild

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartrecord/smartrecord/core"
)

type Author struct {
	ID    int64   `db:"id"`
	Name  string  `db:"name"`
	Age   int     `db:"age"`
	Books []*Book `db:"-"`
	Tags  []Tag   `db:"-"`
}

type Book struct {
	ID       int64   `db:"id"`
	AuthorID int64   `db:"author_id"`
	Title    string  `db:"title"`
	Author   *Author `db:"-"`
}

type Tag struct {
	ID    int64  `db:"id"`
	Label string `db:"label"`
}

func testRegistry(t *testing.T) (*core.Registry, *core.ModelMeta, *core.ModelMeta) {
	t.Helper()

	author := core.Schema[Author](core.Table[Author]("authors"))
	book := core.Schema[Book](core.Table[Book]("books"))
	tag := core.Schema[Tag](core.Table[Tag]("tags"))

	core.AddRelation(author, core.RelationSpec[Author]{
		Kind:       core.OneToMany,
		Field:      func(a *Author) any { return &a.Books },
		Target:     "Book",
		LocalKey:   "ID",
		ForeignKey: "AuthorID",
	})
	core.AddRelation(author, core.RelationSpec[Author]{
		Kind:           core.ManyToMany,
		Field:          func(a *Author) any { return &a.Tags },
		Target:         "Tag",
		LocalKey:       "ID",
		ForeignKey:     "ID",
		JoinTable:      "author_tags",
		JoinLocalKey:   "author_id",
		JoinForeignKey: "tag_id",
	})
	core.AddRelation(book, core.RelationSpec[Book]{
		Kind:       core.OneToOne,
		Field:      func(b *Book) any { return &b.Author },
		Target:     "Author",
		LocalKey:   "AuthorID",
		ForeignKey: "ID",
	})

	registry := core.NewRegistry()
	require.NoError(t, core.Register(registry, author))
	require.NoError(t, core.Register(registry, book))
	require.NoError(t, core.Register(registry, tag))
	require.NoError(t, registry.Freeze())

	return registry, &author.ModelMeta, &book.ModelMeta
}

func assemble(t *testing.T, registry *core.Registry, model *core.ModelMeta, opts core.Options) *core.AssembledQuery {
	t.Helper()
	query, err := core.Assemble(registry, model, opts)
	require.NoError(t, err)
	return query
}

func TestSelectPostgres(t *testing.T) {
	registry, author, _ := testRegistry(t)
	query := assemble(t, registry, author, core.Options{
		Filter: core.F{"age__gte": 18, "name__like": "%an%"},
		Sort:   []string{"-age"},
		Offset: 5,
		Limit:  10,
	})

	stmt, err := Select(Postgres, query)
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT t0."id", t0."name", t0."age" FROM "authors" AS t0`+
			` WHERE (t0."age" >= $1 AND t0."name" LIKE $2 ESCAPE '\')`+
			` ORDER BY t0."age" DESC LIMIT 10 OFFSET 5`,
		stmt.SQL)
	assert.Equal(t, []any{18, "%an%"}, stmt.Args)
	require.Len(t, stmt.Columns, 3)
	assert.Equal(t, "id", stmt.Columns[0].Name)
	assert.Empty(t, stmt.Columns[0].Path)
}

func TestSelectSQLiteDialect(t *testing.T) {
	registry, author, _ := testRegistry(t)
	query := assemble(t, registry, author, core.Options{
		Filter: core.F{"name__ilike": "%an%"},
		Offset: 5,
	})

	stmt, err := Select(SQLite, query)
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT t0."id", t0."name", t0."age" FROM "authors" AS t0`+
			` WHERE LOWER(t0."name") LIKE LOWER(?) ESCAPE '\'`+
			` LIMIT -1 OFFSET 5`,
		stmt.SQL)
	assert.Equal(t, []any{"%an%"}, stmt.Args)
}

func TestSelectJoinFetch(t *testing.T) {
	registry, _, book := testRegistry(t)
	query := assemble(t, registry, book, core.Options{Load: []string{"author"}})

	stmt, err := Select(Postgres, query)
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT t0."id", t0."author_id", t0."title", t1."id", t1."name", t1."age"`+
			` FROM "books" AS t0`+
			` LEFT JOIN "authors" AS t1 ON t0."author_id" = t1."id"`,
		stmt.SQL)

	require.Len(t, stmt.Columns, 6)
	assert.Equal(t, []string{"Author"}, stmt.Columns[3].Path)
}

func TestSelectJoinsFilterPath(t *testing.T) {
	registry, _, book := testRegistry(t)
	query := assemble(t, registry, book, core.Options{Filter: core.F{"author.name": "Ann"}})

	stmt, err := Select(Postgres, query)
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT t0."id", t0."author_id", t0."title" FROM "books" AS t0`+
			` LEFT JOIN "authors" AS t1 ON t0."author_id" = t1."id"`+
			` WHERE t1."name" = $1`,
		stmt.SQL)
	assert.Equal(t, []any{"Ann"}, stmt.Args)
	// Reference-only join: no author columns in the select list.
	require.Len(t, stmt.Columns, 3)
}

func TestSelectManyToManyJoin(t *testing.T) {
	registry, author, _ := testRegistry(t)
	query := assemble(t, registry, author, core.Options{Filter: core.F{"tags.label": "go"}})

	stmt, err := Select(Postgres, query)
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT t0."id", t0."name", t0."age" FROM "authors" AS t0`+
			` LEFT JOIN "author_tags" AS t1j ON t0."id" = t1j."author_id"`+
			` LEFT JOIN "tags" AS t1 ON t1j."tag_id" = t1."id"`+
			` WHERE t1."label" = $1`,
		stmt.SQL)
}

func TestSelectOrGroups(t *testing.T) {
	registry, author, _ := testRegistry(t)
	query := assemble(t, registry, author, core.Options{
		Filter: core.F{
			core.OrKey: []core.F{
				{"name": "Ann"},
				{"age__notin": []int{1, 2}},
			},
		},
	})

	stmt, err := Select(Postgres, query)
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT t0."id", t0."name", t0."age" FROM "authors" AS t0`+
			` WHERE (t0."name" = $1 OR NOT (t0."age" IN ($2, $3)))`,
		stmt.SQL)
	assert.Equal(t, []any{"Ann", 1, 2}, stmt.Args)
}

func TestSelectEmptyMembershipMatchesNothing(t *testing.T) {
	registry, author, _ := testRegistry(t)
	query := assemble(t, registry, author, core.Options{Filter: core.F{"age__in": []int{}}})

	stmt, err := Select(Postgres, query)
	require.NoError(t, err)
	assert.Contains(t, stmt.SQL, "WHERE 1=0")
	assert.Empty(t, stmt.Args)
}

func TestBuildAggregate(t *testing.T) {
	registry, author, _ := testRegistry(t)
	query := assemble(t, registry, author, core.Options{
		Filter:     core.F{"age__gte": 18},
		Sort:       []string{"-age"},
		GroupBy:    []string{"age"},
		Aggregates: []core.AggregateSpec{{Fn: core.AggCount}, {Fn: core.AggAvg, Path: "age"}},
	})

	stmt, err := BuildAggregate(Postgres, query)
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT t0."age" AS "age", COUNT(*) AS "count", AVG(t0."age") AS "avg_age"`+
			` FROM "authors" AS t0 WHERE t0."age" >= $1 GROUP BY t0."age" ORDER BY t0."age" DESC`,
		stmt.SQL)
	assert.Equal(t, []string{"age", "count", "avg_age"}, stmt.Keys)
}

func TestInsertReturnsStoredRow(t *testing.T) {
	_, author, _ := testRegistry(t)

	stmt, err := Insert(Postgres, author, core.Row{"name": "Ann", "age": 30})
	require.NoError(t, err)
	assert.Equal(t,
		`INSERT INTO "authors" ("name", "age") VALUES ($1, $2) RETURNING "id", "name", "age"`,
		stmt.SQL)
	assert.Equal(t, []any{"Ann", 30}, stmt.Args)
	require.Len(t, stmt.Columns, 3)
}

func TestUpdateByPrimaryKey(t *testing.T) {
	_, author, _ := testRegistry(t)

	stmt, err := Update(Postgres, author, int64(7), core.Changes{"name": "Bea", "age": 31})
	require.NoError(t, err)
	assert.Equal(t,
		`UPDATE "authors" SET "name" = $1, "age" = $2 WHERE "id" = $3`,
		stmt.SQL)
	assert.Equal(t, []any{"Bea", 31, int64(7)}, stmt.Args)
}

func TestDeleteByPrimaryKey(t *testing.T) {
	_, author, _ := testRegistry(t)

	stmt := Delete(SQLite, author, int64(7))
	assert.Equal(t, `DELETE FROM "authors" WHERE "id" = ?`, stmt.SQL)
	assert.Equal(t, []any{int64(7)}, stmt.Args)
}

func TestGetByPrimaryKey(t *testing.T) {
	_, author, _ := testRegistry(t)

	stmt := Get(Postgres, author, int64(7))
	assert.Equal(t,
		`SELECT "id", "name", "age" FROM "authors" WHERE "id" = $1`,
		stmt.SQL)
}

func TestPairsQuery(t *testing.T) {
	stmt := Pairs(Postgres, core.PairQuery{
		Table:       "author_tags",
		LeftColumn:  "author_id",
		RightColumn: "tag_id",
		LeftValues:  []any{int64(1), int64(2)},
	})
	assert.Equal(t,
		`SELECT "author_id", "tag_id" FROM "author_tags" WHERE "author_id" IN ($1, $2)`,
		stmt.SQL)
	assert.Equal(t, []any{int64(1), int64(2)}, stmt.Args)
}

func TestNestRowSplitsRelationColumns(t *testing.T) {
	columns := []SelectColumn{
		{Name: "id"},
		{Name: "title"},
		{Name: "id", Path: []string{"Author"}},
		{Name: "name", Path: []string{"Author"}},
	}
	row := NestRow(columns, []any{int64(1), "Go", int64(9), "Ann"})

	assert.Equal(t, int64(1), row["id"])
	assert.Equal(t, "Go", row["title"])
	author, ok := row["Author"].(core.Row)
	require.True(t, ok)
	assert.Equal(t, int64(9), author["id"])
	assert.Equal(t, "Ann", author["name"])
}
