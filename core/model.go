package core

import (
	"context"
	"fmt"
	"reflect"
)

// Model is the typed entry point for working with one registered
// schema. It binds a SchemaMeta to an Executor and exposes the fluent
// query API plus the single-instance unit-of-work operations.
//
// Models are cheap and safe to share; a single Model value per schema
// per application is the expected shape.
type Model[T any] struct {
	schema   *SchemaMeta[T]
	executor *Executor
}

// NewModel binds a registered schema to an executor.
func NewModel[T any](schema *SchemaMeta[T], executor *Executor) *Model[T] {
	return &Model[T]{schema: schema, executor: executor}
}

// Schema returns the model's schema metadata.
func (m *Model[T]) Schema() *SchemaMeta[T] { return m.schema }

// Query starts a new fluent query against this model.
func (m *Model[T]) Query() *Finder[T] {
	return &Finder[T]{model: m, options: Options{Filter: F{}}}
}

// Find is shorthand for Query().Where(filter).
func (m *Model[T]) Find(filter F) *Finder[T] {
	return m.Query().Where(filter)
}

// Get fetches one instance by primary key value, strictly: a missing
// row is ErrNotFound.
func (m *Model[T]) Get(ctx context.Context, id any) (*T, error) {
	pk := m.schema.PrimaryKey()
	if pk == nil {
		return nil, fmt.Errorf("core: model %s has no primary key", m.schema.Name)
	}
	return m.Find(F{pk.StructFieldName: id}).One(ctx)
}

// Save persists one instance, inserting when its primary key is zero
// and updating otherwise.
func (m *Model[T]) Save(ctx context.Context, instance *T) error {
	return m.executor.Save(ctx, &m.schema.ModelMeta, instance)
}

// Delete removes one instance's row by primary key.
func (m *Model[T]) Delete(ctx context.Context, instance *T) error {
	return m.executor.Delete(ctx, &m.schema.ModelMeta, instance)
}

// Refresh re-reads one instance's row from the database. Relations are
// not reloaded.
func (m *Model[T]) Refresh(ctx context.Context, instance *T) error {
	return m.executor.Refresh(ctx, &m.schema.ModelMeta, instance)
}

// ResultSet is a forward-only view over fetched instances. Rows are
// fully buffered before the session is released; mapping to T happens
// as the set is consumed. A ResultSet is not restartable and not safe
// for concurrent use.
type ResultSet[T any] struct {
	values []reflect.Value
	pos    int
}

// Next advances to the next instance, reporting false when the set is
// exhausted.
func (r *ResultSet[T]) Next() bool {
	if r.pos >= len(r.values) {
		return false
	}
	r.pos++
	return true
}

// Value returns the current instance. It is only valid after a Next
// call that returned true.
func (r *ResultSet[T]) Value() *T {
	return r.values[r.pos-1].Interface().(*T)
}

// Len returns the total number of instances in the set.
func (r *ResultSet[T]) Len() int { return len(r.values) }

// Collect drains the remaining instances into a slice.
func (r *ResultSet[T]) Collect() []*T {
	out := make([]*T, 0, len(r.values)-r.pos)
	for r.Next() {
		out = append(out, r.Value())
	}
	return out
}
