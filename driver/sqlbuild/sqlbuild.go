package sqlbuild

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/smartrecord/smartrecord/core"
)

// Statement is a rendered SQL statement with its bind arguments.
type Statement struct {
	SQL  string
	Args []any
}

// SelectColumn describes one entry of a SELECT statement's column list:
// the database column name and the relation field path it belongs to.
// An empty path addresses the root model.
type SelectColumn struct {
	Name string
	Path []string
}

// SelectStatement pairs a row-returning statement with the layout of
// its column list, so drivers can map flat result rows back into nested
// ones.
type SelectStatement struct {
	Statement
	Columns []SelectColumn
}

// AggregateStatement pairs an aggregate statement with its result
// column keys, in select-list order.
type AggregateStatement struct {
	Statement
	Keys []string
}

type builder struct {
	dialect Dialect
	args    []any
}

// bind registers a bind argument and returns its placeholder.
func (b *builder) bind(value any) string {
	b.args = append(b.args, value)
	return b.dialect.Placeholder(len(b.args))
}

// joinEntry is one joined relation within a statement. Path keys are
// relative to the statement's root model: the plan subtree backing a
// follow-up load query carries its original absolute keys, which are
// meaningless for the statement being built.
type joinEntry struct {
	node      *core.LoadNode
	pathKey   string
	parentKey string
	parent    *core.ModelMeta
}

// joinCtx maps statement-relative path keys onto table aliases.
type joinCtx struct {
	aliases map[string]string
	entries []joinEntry
}

func buildJoinCtx(query *core.AssembledQuery) *joinCtx {
	ctx := &joinCtx{aliases: map[string]string{"": "t0"}}
	if query.Plan == nil {
		return ctx
	}
	var walk func(nodes []*core.LoadNode, prefix string, parent *core.ModelMeta)
	walk = func(nodes []*core.LoadNode, prefix string, parent *core.ModelMeta) {
		for _, node := range nodes {
			if node.Strategy != core.LoadJoin {
				continue
			}
			pathKey := node.Relation.FieldName
			if prefix != "" {
				pathKey = prefix + "." + pathKey
			}
			ctx.entries = append(ctx.entries, joinEntry{node: node, pathKey: pathKey, parentKey: prefix, parent: parent})
			ctx.aliases[pathKey] = "t" + strconv.Itoa(len(ctx.entries))
			walk(node.Children, pathKey, node.Target)
		}
	}
	walk(query.Plan.Children, "", query.Model)
	return ctx
}

func (c *joinCtx) alias(pathKey string) (string, error) {
	alias, ok := c.aliases[pathKey]
	if !ok {
		return "", fmt.Errorf("sqlbuild: path %q is not part of the join tree", pathKey)
	}
	return alias, nil
}

// column renders a qualified, quoted column expression.
func (c *joinCtx) column(ref *core.ColumnRef) (string, error) {
	alias, err := c.alias(ref.PathKey)
	if err != nil {
		return "", err
	}
	return alias + "." + quoteIdent(ref.Column.DatabaseColumnName), nil
}

// writeJoins renders the LEFT JOIN clauses for every joined relation.
// Many-to-many edges route through their join table with a derived
// alias.
func (b *builder) writeJoins(sb *strings.Builder, ctx *joinCtx) error {
	for _, entry := range ctx.entries {
		node := entry.node
		parentAlias := ctx.aliases[entry.parentKey]
		alias := ctx.aliases[entry.pathKey]

		local := entry.parent.Column(node.Relation.LocalKey)
		foreign := node.Target.Column(node.Relation.ForeignKey)
		if local == nil || foreign == nil {
			return fmt.Errorf("sqlbuild: relation %s has unresolved join keys", entry.pathKey)
		}

		if node.Relation.Kind == core.ManyToMany {
			joinAlias := alias + "j"
			fmt.Fprintf(sb, " LEFT JOIN %s AS %s ON %s.%s = %s.%s",
				quoteIdent(node.Relation.JoinTable), joinAlias,
				parentAlias, quoteIdent(local.DatabaseColumnName),
				joinAlias, quoteIdent(node.Relation.JoinLocalKey))
			fmt.Fprintf(sb, " LEFT JOIN %s AS %s ON %s.%s = %s.%s",
				quoteIdent(node.Target.Table), alias,
				joinAlias, quoteIdent(node.Relation.JoinForeignKey),
				alias, quoteIdent(foreign.DatabaseColumnName))
			continue
		}

		fmt.Fprintf(sb, " LEFT JOIN %s AS %s ON %s.%s = %s.%s",
			quoteIdent(node.Target.Table), alias,
			parentAlias, quoteIdent(local.DatabaseColumnName),
			alias, quoteIdent(foreign.DatabaseColumnName))
	}
	return nil
}

// writeWhere renders the WHERE clause, omitted for a match-all
// predicate.
func (b *builder) writeWhere(sb *strings.Builder, where *core.Predicate, ctx *joinCtx) error {
	if where == nil || (where.Op == core.OpAnd && len(where.Children) == 0) {
		return nil
	}
	sb.WriteString(" WHERE ")
	return b.writePredicate(sb, where, ctx)
}

var comparisonSQL = map[core.Operator]string{
	core.OpEq:  "=",
	core.OpNe:  "<>",
	core.OpGt:  ">",
	core.OpGte: ">=",
	core.OpLt:  "<",
	core.OpLte: "<=",
}

func (b *builder) writePredicate(sb *strings.Builder, p *core.Predicate, ctx *joinCtx) error {
	switch p.Op {
	case core.OpAnd, core.OpOr:
		if len(p.Children) == 0 {
			sb.WriteString("1=1")
			return nil
		}
		sep := " AND "
		if p.Op == core.OpOr {
			sep = " OR "
		}
		sb.WriteString("(")
		for i, child := range p.Children {
			if i > 0 {
				sb.WriteString(sep)
			}
			if err := b.writePredicate(sb, child, ctx); err != nil {
				return err
			}
		}
		sb.WriteString(")")
		return nil

	case core.OpNot:
		sb.WriteString("NOT (")
		if err := b.writePredicate(sb, p.Children[0], ctx); err != nil {
			return err
		}
		sb.WriteString(")")
		return nil
	}

	column, err := ctx.column(p.Column)
	if err != nil {
		return err
	}

	switch p.Op {
	case core.OpNull:
		sb.WriteString(column + " IS NULL")
	case core.OpEq, core.OpNe, core.OpGt, core.OpGte, core.OpLt, core.OpLte:
		sb.WriteString(column + " " + comparisonSQL[p.Op] + " " + b.bind(p.Value))
	case core.OpIn:
		values, _ := p.Value.([]any)
		if len(values) == 0 {
			sb.WriteString("1=0")
			return nil
		}
		sb.WriteString(column + " IN (")
		for i, value := range values {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(b.bind(value))
		}
		sb.WriteString(")")
	case core.OpLike:
		sb.WriteString(column + " LIKE " + b.bind(p.Value) + ` ESCAPE '\'`)
	case core.OpILike:
		sb.WriteString(b.dialect.CaseInsensitiveLike(column, b.bind(p.Value)))
	default:
		return fmt.Errorf("sqlbuild: unsupported operator %q", p.Op)
	}
	return nil
}

func (b *builder) writeOrder(sb *strings.Builder, sort []core.OrderExpr, ctx *joinCtx) error {
	if len(sort) == 0 {
		return nil
	}
	sb.WriteString(" ORDER BY ")
	for i, expr := range sort {
		if i > 0 {
			sb.WriteString(", ")
		}
		column, err := ctx.column(&expr.Column)
		if err != nil {
			return err
		}
		sb.WriteString(column)
		if expr.Desc {
			sb.WriteString(" DESC")
		} else {
			sb.WriteString(" ASC")
		}
	}
	return nil
}

func (b *builder) writePagination(sb *strings.Builder, limit, offset int) {
	if limit > 0 {
		sb.WriteString(" LIMIT " + strconv.Itoa(limit))
	} else if offset > 0 && b.dialect.LimitRequiredForOffset() {
		sb.WriteString(" LIMIT -1")
	}
	if offset > 0 {
		sb.WriteString(" OFFSET " + strconv.Itoa(offset))
	}
}

// Select renders a row-returning statement: root columns, plus the
// columns of every join-fetched relation, joined per the query's load
// plan.
func Select(dialect Dialect, query *core.AssembledQuery) (*SelectStatement, error) {
	b := &builder{dialect: dialect}
	ctx := buildJoinCtx(query)

	var columns []SelectColumn
	var exprs []string
	for _, column := range query.Model.Columns {
		columns = append(columns, SelectColumn{Name: column.DatabaseColumnName})
		exprs = append(exprs, "t0."+quoteIdent(column.DatabaseColumnName))
	}
	for _, entry := range ctx.entries {
		if !entry.node.Fetch {
			continue
		}
		alias := ctx.aliases[entry.pathKey]
		path := strings.Split(entry.pathKey, ".")
		for _, column := range entry.node.Target.Columns {
			columns = append(columns, SelectColumn{Name: column.DatabaseColumnName, Path: path})
			exprs = append(exprs, alias+"."+quoteIdent(column.DatabaseColumnName))
		}
	}

	var sb strings.Builder
	sb.WriteString("SELECT " + strings.Join(exprs, ", "))
	sb.WriteString(" FROM " + quoteIdent(query.Model.Table) + " AS t0")
	if err := b.writeJoins(&sb, ctx); err != nil {
		return nil, err
	}
	if err := b.writeWhere(&sb, query.Where, ctx); err != nil {
		return nil, err
	}
	if err := b.writeOrder(&sb, query.Sort, ctx); err != nil {
		return nil, err
	}
	b.writePagination(&sb, query.Limit, query.Offset)

	return &SelectStatement{
		Statement: Statement{SQL: sb.String(), Args: b.args},
		Columns:   columns,
	}, nil
}

// NestRow maps one flat result row back into the nested Row shape the
// engine expects, following each column's relation path.
func NestRow(columns []SelectColumn, values []any) core.Row {
	row := make(core.Row, len(columns))
	for i, column := range columns {
		target := row
		for _, segment := range column.Path {
			sub, ok := target[segment].(core.Row)
			if !ok {
				sub = core.Row{}
				target[segment] = sub
			}
			target = sub
		}
		target[column.Name] = values[i]
	}
	return row
}

func aggregateExpr(agg core.Aggregate, ctx *joinCtx) (string, error) {
	if agg.Column == nil {
		return "COUNT(*)", nil
	}
	column, err := ctx.column(agg.Column)
	if err != nil {
		return "", err
	}
	return strings.ToUpper(string(agg.Fn)) + "(" + column + ")", nil
}

// BuildAggregate renders an aggregate/grouped statement. Result keys
// are the group column references and aggregate aliases.
func BuildAggregate(dialect Dialect, query *core.AssembledQuery) (*AggregateStatement, error) {
	b := &builder{dialect: dialect}
	ctx := buildJoinCtx(query)

	var keys []string
	var exprs []string
	for _, group := range query.GroupBy {
		column, err := ctx.column(&group)
		if err != nil {
			return nil, err
		}
		keys = append(keys, group.String())
		exprs = append(exprs, column+" AS "+quoteIdent(group.String()))
	}
	for _, agg := range query.Aggregates {
		expr, err := aggregateExpr(agg, ctx)
		if err != nil {
			return nil, err
		}
		keys = append(keys, agg.Alias)
		exprs = append(exprs, expr+" AS "+quoteIdent(agg.Alias))
	}

	var sb strings.Builder
	sb.WriteString("SELECT " + strings.Join(exprs, ", "))
	sb.WriteString(" FROM " + quoteIdent(query.Model.Table) + " AS t0")
	if err := b.writeJoins(&sb, ctx); err != nil {
		return nil, err
	}
	if err := b.writeWhere(&sb, query.Where, ctx); err != nil {
		return nil, err
	}
	if len(query.GroupBy) > 0 {
		var groups []string
		for _, group := range query.GroupBy {
			column, err := ctx.column(&group)
			if err != nil {
				return nil, err
			}
			groups = append(groups, column)
		}
		sb.WriteString(" GROUP BY " + strings.Join(groups, ", "))
	}
	if err := b.writeOrder(&sb, query.Sort, ctx); err != nil {
		return nil, err
	}
	b.writePagination(&sb, query.Limit, query.Offset)

	return &AggregateStatement{
		Statement: Statement{SQL: sb.String(), Args: b.args},
		Keys:      keys,
	}, nil
}

// Insert renders an insert returning the full stored row.
func Insert(dialect Dialect, meta *core.ModelMeta, values core.Row) (*SelectStatement, error) {
	b := &builder{dialect: dialect}

	var names []string
	var placeholders []string
	for _, column := range meta.Columns {
		value, ok := values[column.DatabaseColumnName]
		if !ok {
			continue
		}
		names = append(names, quoteIdent(column.DatabaseColumnName))
		placeholders = append(placeholders, b.bind(value))
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("sqlbuild: insert into %s has no values", meta.Table)
	}

	var returning []string
	var columns []SelectColumn
	for _, column := range meta.Columns {
		returning = append(returning, quoteIdent(column.DatabaseColumnName))
		columns = append(columns, SelectColumn{Name: column.DatabaseColumnName})
	}

	sql := "INSERT INTO " + quoteIdent(meta.Table) +
		" (" + strings.Join(names, ", ") + ") VALUES (" + strings.Join(placeholders, ", ") + ")" +
		" RETURNING " + strings.Join(returning, ", ")
	return &SelectStatement{Statement: Statement{SQL: sql, Args: b.args}, Columns: columns}, nil
}

// Update renders a primary-key update.
func Update(dialect Dialect, meta *core.ModelMeta, pk any, changes core.Changes) (*Statement, error) {
	b := &builder{dialect: dialect}

	var sets []string
	for _, column := range meta.Columns {
		value, ok := changes[column.DatabaseColumnName]
		if !ok {
			continue
		}
		sets = append(sets, quoteIdent(column.DatabaseColumnName)+" = "+b.bind(value))
	}
	if len(sets) == 0 {
		return nil, fmt.Errorf("sqlbuild: update of %s has no changes", meta.Table)
	}

	sql := "UPDATE " + quoteIdent(meta.Table) + " SET " + strings.Join(sets, ", ") +
		" WHERE " + quoteIdent(meta.PrimaryKey().DatabaseColumnName) + " = " + b.bind(pk)
	return &Statement{SQL: sql, Args: b.args}, nil
}

// Delete renders a primary-key delete.
func Delete(dialect Dialect, meta *core.ModelMeta, pk any) *Statement {
	b := &builder{dialect: dialect}
	sql := "DELETE FROM " + quoteIdent(meta.Table) +
		" WHERE " + quoteIdent(meta.PrimaryKey().DatabaseColumnName) + " = " + b.bind(pk)
	return &Statement{SQL: sql, Args: b.args}
}

// Get renders a primary-key lookup over all declared columns.
func Get(dialect Dialect, meta *core.ModelMeta, pk any) *SelectStatement {
	b := &builder{dialect: dialect}

	var exprs []string
	var columns []SelectColumn
	for _, column := range meta.Columns {
		exprs = append(exprs, quoteIdent(column.DatabaseColumnName))
		columns = append(columns, SelectColumn{Name: column.DatabaseColumnName})
	}

	sql := "SELECT " + strings.Join(exprs, ", ") + " FROM " + quoteIdent(meta.Table) +
		" WHERE " + quoteIdent(meta.PrimaryKey().DatabaseColumnName) + " = " + b.bind(pk)
	return &SelectStatement{Statement: Statement{SQL: sql, Args: b.args}, Columns: columns}
}

// Pairs renders the join-table read backing many-to-many loads.
func Pairs(dialect Dialect, query core.PairQuery) *Statement {
	b := &builder{dialect: dialect}

	var placeholders []string
	for _, value := range query.LeftValues {
		placeholders = append(placeholders, b.bind(value))
	}

	sql := "SELECT " + quoteIdent(query.LeftColumn) + ", " + quoteIdent(query.RightColumn) +
		" FROM " + quoteIdent(query.Table) +
		" WHERE " + quoteIdent(query.LeftColumn) + " IN (" + strings.Join(placeholders, ", ") + ")"
	return &Statement{SQL: sql, Args: b.args}
}
