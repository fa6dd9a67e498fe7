package core

import "context"

// Finder accumulates query options fluently and assembles them into an
// immutable AssembledQuery when a terminal method runs. Builder methods
// mutate and return the same Finder; share the assembled query, not the
// builder.
type Finder[T any] struct {
	model   *Model[T]
	options Options
}

// Where merges filter entries into the query. Repeated calls combine
// with AND; a repeated key overwrites the earlier value.
func (f *Finder[T]) Where(filter F) *Finder[T] {
	for key, value := range filter {
		f.options.Filter[key] = value
	}
	return f
}

// Sort appends sort strings: a leading "-" means descending, a bare or
// "+"-prefixed path ascending.
func (f *Finder[T]) Sort(fields ...string) *Finder[T] {
	f.options.Sort = append(f.options.Sort, fields...)
	return f
}

// SortBy appends structured sort fields.
func (f *Finder[T]) SortBy(fields ...SortField) *Finder[T] {
	f.options.SortFields = append(f.options.SortFields, fields...)
	return f
}

// With appends eager-load relationship paths, dotted for nesting.
func (f *Finder[T]) With(paths ...string) *Finder[T] {
	f.options.Load = append(f.options.Load, paths...)
	return f
}

// Offset sets the number of rows to skip.
func (f *Finder[T]) Offset(n int) *Finder[T] {
	f.options.Offset = n
	return f
}

// Limit caps the number of returned rows. Zero means unlimited.
func (f *Finder[T]) Limit(n int) *Finder[T] {
	f.options.Limit = n
	return f
}

// GroupBy adds grouping column paths for aggregate queries.
func (f *Finder[T]) GroupBy(paths ...string) *Finder[T] {
	f.options.GroupBy = append(f.options.GroupBy, paths...)
	return f
}

// Aggregate adds an aggregate selection. Path may be empty only for
// AggCount.
func (f *Finder[T]) Aggregate(fn AggregateFn, path string) *Finder[T] {
	f.options.Aggregates = append(f.options.Aggregates, AggregateSpec{Fn: fn, Path: path})
	return f
}

// Assemble compiles the accumulated options into an immutable query
// without executing it.
func (f *Finder[T]) Assemble() (*AssembledQuery, error) {
	return Assemble(f.model.executor.registry, &f.model.schema.ModelMeta, f.options)
}

// All executes the query and returns every matching instance.
func (f *Finder[T]) All(ctx context.Context) ([]*T, error) {
	set, err := f.Iter(ctx)
	if err != nil {
		return nil, err
	}
	return set.Collect(), nil
}

// Iter executes the query and returns a forward-only result set. Rows
// are buffered before the session is released; only the mapping to T
// is deferred.
func (f *Finder[T]) Iter(ctx context.Context) (*ResultSet[T], error) {
	query, err := f.Assemble()
	if err != nil {
		return nil, err
	}
	values, err := f.model.executor.FetchValues(ctx, query)
	if err != nil {
		return nil, err
	}
	return &ResultSet[T]{values: values}, nil
}

// First returns the first matching instance or nil when nothing
// matches. An implicit limit of one is applied, except when the query
// join-fetches a to-many relation: the multiplied rows make a row limit
// cut off the first instance's children, so the rows are fetched
// unlimited and the first instance is taken.
func (f *Finder[T]) First(ctx context.Context) (*T, error) {
	query, err := f.Assemble()
	if err != nil {
		return nil, err
	}
	instance, err := f.model.executor.FirstValue(ctx, query)
	if err != nil || instance == nil {
		return nil, err
	}
	return instance.(*T), nil
}

// One is the strict variant of First: no match returns ErrNotFound.
func (f *Finder[T]) One(ctx context.Context) (*T, error) {
	query, err := f.Assemble()
	if err != nil {
		return nil, err
	}
	instance, err := f.model.executor.OneValue(ctx, query)
	if err != nil {
		return nil, err
	}
	return instance.(*T), nil
}

// Count returns the number of matching rows, honoring the filter but
// ignoring sorts, loads and pagination.
func (f *Finder[T]) Count(ctx context.Context) (int64, error) {
	counter := &Finder[T]{model: f.model, options: Options{
		Filter:     f.options.Filter,
		Aggregates: []AggregateSpec{{Fn: AggCount}},
	}}
	value, err := counter.Scalar(ctx)
	if err != nil {
		return 0, err
	}
	return toInt64(value), nil
}

// Scalar executes the query as an aggregate and returns the value of
// its first aggregate selection.
func (f *Finder[T]) Scalar(ctx context.Context) (any, error) {
	query, err := f.Assemble()
	if err != nil {
		return nil, err
	}
	return f.model.executor.Scalar(ctx, query)
}

// Rows executes the query as an aggregate and returns the raw scalar
// rows, keyed by group columns and aggregate aliases.
func (f *Finder[T]) Rows(ctx context.Context) ([]Row, error) {
	query, err := f.Assemble()
	if err != nil {
		return nil, err
	}
	return f.model.executor.AggregateRows(ctx, query)
}

func toInt64(value any) int64 {
	switch v := value.(type) {
	case int64:
		return v
	case int32:
		return int64(v)
	case int:
		return int64(v)
	case uint64:
		return int64(v)
	case float64:
		return int64(v)
	default:
		return 0
	}
}
