// Package core provides the building blocks of the smartrecord engine.
// This file defines the query assembler, which composes the compilers'
// outputs plus pagination, grouping and aggregation options into one
// immutable executable query.
package core

import (
	"fmt"
	"strings"
)

// AggregateFn names an aggregate selection.
type AggregateFn string

const (
	AggCount AggregateFn = "count"
	AggSum   AggregateFn = "sum"
	AggAvg   AggregateFn = "avg"
	AggMin   AggregateFn = "min"
	AggMax   AggregateFn = "max"
)

// AggregateSpec requests one aggregate over a resolved column path.
// Path may be empty only for AggCount (count of rows).
type AggregateSpec struct {
	Fn   AggregateFn
	Path string
}

// Aggregate is a compiled aggregate selection. Column is nil for a
// bare row count. Alias names the aggregate's column in result rows.
type Aggregate struct {
	Fn     AggregateFn
	Column *ColumnRef
	Alias  string
}

// Options is the declarative input surface of the assembler. The zero
// value selects everything: no filter, natural order, no eager loads,
// no pagination, no aggregation.
type Options struct {
	Filter     F
	Sort       []string    // "-path" descending, "path"/"+path" ascending
	SortFields []SortField // structured alternative, applied after Sort
	Load       []string    // eager-load relationship paths
	Offset     int         // rows to skip; zero means none, negative is rejected
	Limit      int         // max rows; zero means unlimited, negative is rejected
	GroupBy    []string    // column paths to group on
	Aggregates []AggregateSpec
}

// AssembledQuery is the immutable, fully-resolved representation of one
// query: a single combined predicate, the ordered sort expressions, the
// load plan (including join-only nodes implied by filter and sort
// paths), pagination, and optional grouping/aggregation.
//
// It is constructed once per call by Assemble, consumed exactly once by
// the execution coordinator, and must not be mutated after assembly.
type AssembledQuery struct {
	Model      *ModelMeta
	Where      *Predicate
	Sort       []OrderExpr
	Plan       *LoadPlan
	Offset     int
	Limit      int
	GroupBy    []ColumnRef
	Aggregates []Aggregate

	description string
}

// IsAggregate reports whether the query returns scalar rows rather than
// model instances.
func (q *AssembledQuery) IsAggregate() bool { return len(q.Aggregates) > 0 }

// Description returns a stable, human-readable rendering of the query,
// built once during assembly. It keys the read cache and is attached to
// execution errors.
func (q *AssembledQuery) Description() string { return q.description }

// Assemble validates the options' mutual consistency, runs the filter
// and sort compilers and the eager-load planner, and produces one
// immutable query. All validation failures surface here, before any
// database round-trip.
func Assemble(registry *Registry, model *ModelMeta, opts Options) (*AssembledQuery, error) {
	if opts.Offset < 0 {
		return nil, &ConflictingOptionsError{Reason: fmt.Sprintf("offset must be non-negative, got %d", opts.Offset)}
	}
	if opts.Limit < 0 {
		return nil, &ConflictingOptionsError{Reason: fmt.Sprintf("limit must be non-negative, got %d", opts.Limit)}
	}
	if len(opts.Aggregates) > 0 && len(opts.Load) > 0 {
		return nil, &ConflictingOptionsError{Reason: "aggregation returns scalar rows and cannot be combined with eager loading"}
	}
	if len(opts.GroupBy) > 0 && len(opts.Aggregates) == 0 {
		return nil, &ConflictingOptionsError{Reason: "group-by requires at least one aggregate selection"}
	}

	where, filterPaths, err := CompileFilter(registry, model, opts.Filter)
	if err != nil {
		return nil, err
	}

	sortFields := append(ParseSort(opts.Sort...), opts.SortFields...)
	orderBy, sortPaths, err := CompileSort(registry, model, sortFields)
	if err != nil {
		return nil, err
	}

	plan, err := PlanLoads(registry, model, opts.Load)
	if err != nil {
		return nil, err
	}
	for _, resolved := range filterPaths {
		plan.ensureJoined(resolved)
	}
	for _, resolved := range sortPaths {
		plan.ensureJoined(resolved)
	}

	groupBy := make([]ColumnRef, 0, len(opts.GroupBy))
	for _, path := range opts.GroupBy {
		resolved, err := registry.resolveColumnPath(model, path)
		if err != nil {
			return nil, err
		}
		plan.ensureJoined(resolved)
		groupBy = append(groupBy, ColumnRef{PathKey: resolved.RelationPrefix(), Column: resolved.Column})
	}

	// Aggregate queries return scalar rows, so a sort can only address
	// their group-by columns.
	if len(opts.Aggregates) > 0 {
		for _, expr := range orderBy {
			if !refInGroup(groupBy, expr.Column) {
				return nil, &ConflictingOptionsError{Reason: "aggregate queries sort by group-by columns only, got " + expr.Column.String()}
			}
		}
	}

	aggregates, err := compileAggregates(registry, model, plan, opts.Aggregates)
	if err != nil {
		return nil, err
	}

	query := &AssembledQuery{
		Model:      model,
		Where:      where,
		Sort:       orderBy,
		Plan:       plan,
		Offset:     opts.Offset,
		Limit:      opts.Limit,
		GroupBy:    groupBy,
		Aggregates: aggregates,
	}
	query.description = describeQuery(query)
	return query, nil
}

// compileAggregates resolves and validates aggregate selections: sum
// and avg need a numeric column, min and max an orderable one, and a
// count may omit its path to count rows.
func compileAggregates(registry *Registry, model *ModelMeta, plan *LoadPlan, specs []AggregateSpec) ([]Aggregate, error) {
	if len(specs) == 0 {
		return nil, nil
	}
	aggregates := make([]Aggregate, 0, len(specs))
	for _, spec := range specs {
		if spec.Path == "" {
			if spec.Fn != AggCount {
				return nil, &ConflictingOptionsError{Reason: string(spec.Fn) + " requires a column path"}
			}
			aggregates = append(aggregates, Aggregate{Fn: AggCount, Alias: "count"})
			continue
		}
		resolved, err := registry.resolveColumnPath(model, spec.Path)
		if err != nil {
			return nil, err
		}
		column := resolved.Column
		switch spec.Fn {
		case AggSum, AggAvg:
			if column.Kind != KindInt && column.Kind != KindUint && column.Kind != KindFloat {
				return nil, &TypeMismatchError{Path: spec.Path, Operator: Operator(spec.Fn), Value: nil, Want: "a numeric column"}
			}
		case AggMin, AggMax:
			if !orderable(column.Kind) {
				return nil, &TypeMismatchError{Path: spec.Path, Operator: Operator(spec.Fn), Value: nil, Want: "an orderable column"}
			}
		case AggCount:
			// any column counts
		default:
			return nil, &ConflictingOptionsError{Reason: "unsupported aggregate " + string(spec.Fn)}
		}
		plan.ensureJoined(resolved)
		aggregates = append(aggregates, Aggregate{
			Fn:     spec.Fn,
			Column: &ColumnRef{PathKey: resolved.RelationPrefix(), Column: column},
			Alias:  string(spec.Fn) + "_" + column.DatabaseColumnName,
		})
	}
	return aggregates, nil
}

func refInGroup(groupBy []ColumnRef, ref ColumnRef) bool {
	for _, group := range groupBy {
		if group.String() == ref.String() {
			return true
		}
	}
	return false
}

// limited returns a shallow copy of the query with a tighter limit.
// Used by first-row fetches; the original query stays untouched.
//
// When a join-fetched to-many relation multiplies raw rows, the limit is
// not pushed down: it would count child rows, truncating the first
// instance's loaded children. The caller takes the first materialized
// instance instead.
func (q *AssembledQuery) limited(limit int) *AssembledQuery {
	if q.Limit != 0 && q.Limit <= limit {
		return q
	}
	if q.Plan.multipliesRows() {
		return q
	}
	clone := *q
	clone.Limit = limit
	clone.description = describeQuery(&clone)
	return &clone
}

// describeQuery renders the stable description. It intentionally leans
// on the compilers' deterministic output ordering.
func describeQuery(q *AssembledQuery) string {
	var b strings.Builder
	b.WriteString(q.Model.Name)
	b.WriteString(" where=")
	q.Where.describe(&b)
	if len(q.Sort) > 0 {
		b.WriteString(" sort=")
		for i, expr := range q.Sort {
			if i > 0 {
				b.WriteByte(',')
			}
			if expr.Desc {
				b.WriteByte('-')
			}
			b.WriteString(expr.Column.String())
		}
	}
	if !q.Plan.isEmpty() {
		b.WriteString(" load=")
		q.Plan.describe(&b)
	}
	if len(q.GroupBy) > 0 {
		b.WriteString(" group=")
		for i, ref := range q.GroupBy {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(ref.String())
		}
	}
	for _, aggregate := range q.Aggregates {
		b.WriteString(" agg=")
		b.WriteString(string(aggregate.Fn))
		if aggregate.Column != nil {
			b.WriteByte('(')
			b.WriteString(aggregate.Column.String())
			b.WriteByte(')')
		}
	}
	if q.Offset > 0 {
		fmt.Fprintf(&b, " offset=%d", q.Offset)
	}
	if q.Limit > 0 {
		fmt.Fprintf(&b, " limit=%d", q.Limit)
	}
	return b.String()
}
