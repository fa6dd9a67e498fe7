// Package sqlbuild renders assembled queries into SQL statements. The
// relational drivers share it; backend differences are isolated behind
// the Dialect interface.
package sqlbuild

import (
	"fmt"
	"strings"
)

// Dialect captures the syntax differences between supported SQL
// backends.
type Dialect interface {
	// Placeholder renders the n-th (1-based) bind placeholder.
	Placeholder(n int) string
	// CaseInsensitiveLike renders a case-insensitive pattern match
	// between a column expression and a placeholder.
	CaseInsensitiveLike(column, placeholder string) string
	// LimitRequiredForOffset reports whether OFFSET needs an explicit
	// LIMIT clause in front of it.
	LimitRequiredForOffset() bool
}

type postgresDialect struct{}

func (postgresDialect) Placeholder(n int) string { return fmt.Sprintf("$%d", n) }

func (postgresDialect) CaseInsensitiveLike(column, placeholder string) string {
	return column + " ILIKE " + placeholder + ` ESCAPE '\'`
}

func (postgresDialect) LimitRequiredForOffset() bool { return false }

type sqliteDialect struct{}

func (sqliteDialect) Placeholder(int) string { return "?" }

func (sqliteDialect) CaseInsensitiveLike(column, placeholder string) string {
	return "LOWER(" + column + ") LIKE LOWER(" + placeholder + `) ESCAPE '\'`
}

func (sqliteDialect) LimitRequiredForOffset() bool { return true }

// Postgres is the PostgreSQL dialect.
var Postgres Dialect = postgresDialect{}

// SQLite is the SQLite dialect.
var SQLite Dialect = sqliteDialect{}

// quoteIdent double-quotes an identifier. Both supported backends use
// double quotes.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
