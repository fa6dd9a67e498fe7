// Package core provides the building blocks of the smartrecord engine.
// This file defines the execution coordinator: it owns session scoping
// around dispatch, maps raw rows into populated model instances, runs
// batched separate loads, and exposes the single-instance unit-of-work
// operations.
package core

import (
	"context"
	"errors"
	"fmt"
	"reflect"
)

// Executor coordinates query execution against one driver.
//
// Every public operation acquires a session (or reuses one carried by
// the context), performs its work strictly sequentially, and releases
// the session on every exit path. Executors are stateless and safe for
// concurrent use; the sessions they acquire are not shared.
type Executor struct {
	registry *Registry
	driver   Driver
}

// NewExecutor creates an Executor bound to a registry and driver.
func NewExecutor(registry *Registry, driver Driver) *Executor {
	return &Executor{registry: registry, driver: driver}
}

// Registry returns the schema registry the executor resolves against.
func (e *Executor) Registry() *Registry { return e.registry }

// isTimeout reports whether an error is a deadline expiry from the
// driver or context layer.
func isTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}

// wrapExec wraps a driver failure into an ExecutionError carrying the
// failed query's description. Timeouts keep their distinct kind; the
// engine never retries.
func wrapExec(op string, query *AssembledQuery, err error) error {
	if err == nil {
		return nil
	}
	desc := ""
	if query != nil {
		desc = query.Description()
	}
	return &ExecutionError{Op: op, Query: desc, Timeout: isTimeout(err), Err: err}
}

// FetchValues executes a row-returning query and maps the result into
// populated instances, returned as reflect values of *T. The generic
// Model facade converts them; related models keep their own types.
func (e *Executor) FetchValues(ctx context.Context, query *AssembledQuery) ([]reflect.Value, error) {
	if query.IsAggregate() {
		return nil, &ConflictingOptionsError{Reason: "aggregate queries return scalar rows, use AggregateRows or Scalar"}
	}

	var instances []reflect.Value
	err := scoped(ctx, e.driver, func(session Session) error {
		payload := &FindPayload{Query: query}
		err := dispatchOperation(ctx, OperationFind, payload, func() error {
			rows, err := session.Select(ctx, query)
			if err != nil {
				return wrapExec("find", query, err)
			}
			payload.Rows = rows
			return nil
		})
		if err != nil {
			return err
		}
		instances, err = e.materializeAndLoad(ctx, session, query.Model, query.Plan.Children, payload.Rows)
		return err
	})
	if err != nil {
		return nil, err
	}

	Emit(EventFind, FetchPayload{Query: query, Count: len(instances)})
	return instances, nil
}

// FirstValue fetches the first matching instance with an implicit limit
// of one, or nil when nothing matches. The limit stays off when
// join-fetched to-many rows would be truncated by it.
func (e *Executor) FirstValue(ctx context.Context, query *AssembledQuery) (any, error) {
	instances, err := e.FetchValues(ctx, query.limited(1))
	if err != nil {
		return nil, err
	}
	if len(instances) == 0 {
		return nil, nil
	}
	return instances[0].Interface(), nil
}

// OneValue is the strict variant of FirstValue: no match is ErrNotFound.
func (e *Executor) OneValue(ctx context.Context, query *AssembledQuery) (any, error) {
	instance, err := e.FirstValue(ctx, query)
	if err != nil {
		return nil, err
	}
	if instance == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, query.Description())
	}
	return instance, nil
}

// AggregateRows executes an aggregate/grouped query and returns its raw
// scalar rows, keyed by group-by column references and aggregate
// aliases.
func (e *Executor) AggregateRows(ctx context.Context, query *AssembledQuery) ([]Row, error) {
	if !query.IsAggregate() {
		return nil, &ConflictingOptionsError{Reason: "query has no aggregate selections"}
	}

	var rows []Row
	err := scoped(ctx, e.driver, func(session Session) error {
		payload := &FindPayload{Query: query}
		err := dispatchOperation(ctx, OperationAggregate, payload, func() error {
			result, err := session.Aggregate(ctx, query)
			if err != nil {
				return wrapExec("aggregate", query, err)
			}
			payload.Rows = result
			return nil
		})
		rows = payload.Rows
		return err
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// Scalar executes an ungrouped aggregate query and returns the single
// value of its first selection, or nil when the backend produced no
// row.
func (e *Executor) Scalar(ctx context.Context, query *AssembledQuery) (any, error) {
	rows, err := e.AggregateRows(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0][query.Aggregates[0].Alias], nil
}

// Save persists one instance: an insert when the primary key holds its
// zero value, a full-row update otherwise. On insert the stored row,
// including database-generated values, is written back into the
// instance.
func (e *Executor) Save(ctx context.Context, meta *ModelMeta, instance any) error {
	pk := meta.PrimaryKey()
	if pk == nil {
		return fmt.Errorf("core: model %s has no primary key, cannot save", meta.Name)
	}
	value := reflect.ValueOf(instance)
	if value.Kind() != reflect.Pointer || value.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("core: Save requires a pointer to a %s struct", meta.Name)
	}

	pkValue := fieldValue(value, pk.StructFieldName)
	if isZeroValue(pkValue) {
		return e.insert(ctx, meta, instance, value)
	}
	return e.update(ctx, meta, instance, pkValue)
}

func (e *Executor) insert(ctx context.Context, meta *ModelMeta, instance any, value reflect.Value) error {
	if err := meta.runPreHooks(PreInsert, instance); err != nil {
		return err
	}

	values := structRow(meta, instance)
	// A zero primary key is left to the database (serial, default) or
	// the driver to generate.
	delete(values, meta.PrimaryKey().DatabaseColumnName)

	var stored Row
	err := scoped(ctx, e.driver, func(session Session) error {
		payload := &MutationPayload{Model: meta, Values: values}
		return dispatchOperation(ctx, OperationInsert, payload, func() error {
			row, err := session.Insert(ctx, meta, values)
			if err != nil {
				return wrapExec("insert", nil, err)
			}
			stored = row
			return nil
		})
	})
	if err != nil {
		return err
	}

	if stored != nil {
		populateStruct(meta, value.Elem(), stored)
	}
	if err := meta.runPostHooks(PostInsert, instance); err != nil {
		return err
	}
	Emit(EventInsert, SavePayload{Model: meta, Instance: instance, Values: values})
	return nil
}

func (e *Executor) update(ctx context.Context, meta *ModelMeta, instance any, pkValue any) error {
	if err := meta.runPreHooks(PreUpdate, instance); err != nil {
		return err
	}

	changes := Changes(structRow(meta, instance))
	delete(changes, meta.PrimaryKey().DatabaseColumnName)

	err := scoped(ctx, e.driver, func(session Session) error {
		payload := &MutationPayload{Model: meta, PrimaryKey: pkValue, Changes: changes}
		return dispatchOperation(ctx, OperationUpdate, payload, func() error {
			if err := session.Update(ctx, meta, pkValue, changes); err != nil {
				return wrapExec("update", nil, err)
			}
			return nil
		})
	})
	if err != nil {
		return err
	}

	if err := meta.runPostHooks(PostUpdate, instance); err != nil {
		return err
	}
	Emit(EventUpdate, SavePayload{Model: meta, Instance: instance, Values: Row(changes)})
	return nil
}

// Delete removes one instance's row by primary key.
func (e *Executor) Delete(ctx context.Context, meta *ModelMeta, instance any) error {
	pk := meta.PrimaryKey()
	if pk == nil {
		return fmt.Errorf("core: model %s has no primary key, cannot delete", meta.Name)
	}
	pkValue := fieldValue(reflect.ValueOf(instance), pk.StructFieldName)
	if isZeroValue(pkValue) {
		return fmt.Errorf("core: cannot delete %s without a primary key value", meta.Name)
	}

	if err := meta.runPreHooks(PreDelete, instance); err != nil {
		return err
	}

	err := scoped(ctx, e.driver, func(session Session) error {
		payload := &MutationPayload{Model: meta, PrimaryKey: pkValue}
		return dispatchOperation(ctx, OperationDelete, payload, func() error {
			if err := session.Delete(ctx, meta, pkValue); err != nil {
				return wrapExec("delete", nil, err)
			}
			return nil
		})
	})
	if err != nil {
		return err
	}

	if err := meta.runPostHooks(PostDelete, instance); err != nil {
		return err
	}
	Emit(EventDelete, DeletePayload{Model: meta, PrimaryKey: pkValue})
	return nil
}

// Refresh re-reads one instance's row by primary key and writes the
// stored values back into the instance. A vanished row is ErrNotFound.
// Relations are not reloaded.
func (e *Executor) Refresh(ctx context.Context, meta *ModelMeta, instance any) error {
	pk := meta.PrimaryKey()
	if pk == nil {
		return fmt.Errorf("core: model %s has no primary key, cannot refresh", meta.Name)
	}
	value := reflect.ValueOf(instance)
	pkValue := fieldValue(value, pk.StructFieldName)
	if isZeroValue(pkValue) {
		return fmt.Errorf("core: cannot refresh %s without a primary key value", meta.Name)
	}

	var stored Row
	err := scoped(ctx, e.driver, func(session Session) error {
		payload := &MutationPayload{Model: meta, PrimaryKey: pkValue}
		return dispatchOperation(ctx, OperationRefresh, payload, func() error {
			row, err := session.Get(ctx, meta, pkValue)
			if err != nil {
				return wrapExec("refresh", nil, err)
			}
			stored = row
			return nil
		})
	})
	if err != nil {
		return err
	}
	if stored == nil {
		return fmt.Errorf("%w: %s id=%v", ErrNotFound, meta.Name, pkValue)
	}

	populateStruct(meta, value.Elem(), stored)
	return nil
}

// rowGroup accumulates the raw rows belonging to one instance when
// join-fetched to-many relations multiply result rows.
type rowGroup struct {
	row      Row
	children map[string][]Row
}

// fetchJoinNodes filters plan nodes down to the join-strategy ones that
// populate instances from the same statement's rows.
func fetchJoinNodes(nodes []*LoadNode) []*LoadNode {
	var out []*LoadNode
	for _, node := range nodes {
		if node.Fetch && node.Strategy == LoadJoin {
			out = append(out, node)
		}
	}
	return out
}

// buildGroups groups raw rows by primary key, collecting the nested
// rows of join-fetched relations per group. First-seen order is kept so
// the backend's ordering survives deduplication.
func buildGroups(meta *ModelMeta, joinFetch []*LoadNode, rows []Row) []*rowGroup {
	var order []*rowGroup
	index := make(map[any]*rowGroup)
	pk := meta.PrimaryKey()

	for _, row := range rows {
		var group *rowGroup
		if pk != nil {
			if key := keyOf(row[pk.DatabaseColumnName]); key != nil {
				if existing, ok := index[key]; ok {
					group = existing
				} else {
					group = &rowGroup{row: row, children: make(map[string][]Row)}
					index[key] = group
					order = append(order, group)
				}
			}
		}
		if group == nil {
			group = &rowGroup{row: row, children: make(map[string][]Row)}
			order = append(order, group)
		}

		for _, node := range joinFetch {
			sub, ok := row[node.Relation.FieldName].(Row)
			if !ok || sub == nil {
				continue
			}
			// An outer join miss nests a row of NULLs; skip it.
			if tpk := node.Target.PrimaryKey(); tpk != nil && sub[tpk.DatabaseColumnName] == nil {
				continue
			}
			group.children[node.Relation.FieldName] = append(group.children[node.Relation.FieldName], sub)
		}
	}
	return order
}

// materializeAndLoad turns raw rows into populated instances:
// join-fetched relations are materialized from the nested rows, then
// separate-strategy relations are loaded with batched follow-up queries
// through the same session, recursively down the plan.
func (e *Executor) materializeAndLoad(ctx context.Context, session Session, meta *ModelMeta, nodes []*LoadNode, rows []Row) ([]reflect.Value, error) {
	joinFetch := fetchJoinNodes(nodes)
	groups := buildGroups(meta, joinFetch, rows)

	instances := make([]reflect.Value, len(groups))
	for i, group := range groups {
		instance := reflect.New(meta.Type)
		populateStruct(meta, instance.Elem(), group.row)
		instances[i] = instance
	}

	for _, node := range joinFetch {
		for i, group := range groups {
			children, err := e.materializeAndLoad(ctx, session, node.Target, node.Children, group.children[node.Relation.FieldName])
			if err != nil {
				return nil, err
			}
			assignRelation(instances[i], node.Relation, children)
		}
	}

	for _, node := range nodes {
		if node.Fetch && node.Strategy == LoadSeparate {
			if err := e.loadSeparate(ctx, session, node, instances); err != nil {
				return nil, err
			}
		}
	}

	for _, instance := range instances {
		if err := meta.runPostHooks(PostFind, instance.Interface()); err != nil {
			return nil, err
		}
	}
	return instances, nil
}

// subQuery builds the internal query for one batched separate load.
func (e *Executor) subQuery(target *ModelMeta, where *Predicate, children []*LoadNode) *AssembledQuery {
	query := &AssembledQuery{
		Model: target,
		Where: where,
		Plan:  &LoadPlan{Root: target, Children: children},
	}
	query.description = describeQuery(query)
	return query
}

// loadSeparate loads one separate-strategy relation for a batch of
// parent instances with a single IN query (two for many-to-many: one
// against the join table, one against the target model).
func (e *Executor) loadSeparate(ctx context.Context, session Session, node *LoadNode, parents []reflect.Value) error {
	relation := node.Relation

	keys := make([]any, 0, len(parents))
	parentsByKey := make(map[any][]int)
	for i, parent := range parents {
		key := keyOf(fieldValue(parent, relation.LocalKey))
		if key == nil {
			continue
		}
		if _, seen := parentsByKey[key]; !seen {
			keys = append(keys, key)
		}
		parentsByKey[key] = append(parentsByKey[key], i)
	}
	if len(keys) == 0 {
		return nil
	}

	foreignKey := node.Target.Column(relation.ForeignKey)

	switch relation.Kind {
	case OneToOne, OneToMany:
		where := Compare(ColumnRef{Column: foreignKey}, OpIn, keys)
		query := e.subQuery(node.Target, where, node.Children)
		rows, err := session.Select(ctx, query)
		if err != nil {
			return wrapExec("load "+node.PathKey, query, err)
		}
		children, err := e.materializeAndLoad(ctx, session, node.Target, node.Children, rows)
		if err != nil {
			return err
		}

		childrenByKey := make(map[any][]reflect.Value)
		for _, child := range children {
			key := keyOf(fieldValue(child, relation.ForeignKey))
			childrenByKey[key] = append(childrenByKey[key], child)
		}
		for key, indexes := range parentsByKey {
			for _, i := range indexes {
				assignRelation(parents[i], relation, childrenByKey[key])
			}
		}

	case ManyToMany:
		pairs, err := session.SelectPairs(ctx, PairQuery{
			Table:       relation.JoinTable,
			LeftColumn:  relation.JoinLocalKey,
			RightColumn: relation.JoinForeignKey,
			LeftValues:  keys,
		})
		if err != nil {
			return wrapExec("load "+node.PathKey, nil, err)
		}
		if len(pairs) == 0 {
			return nil
		}

		rights := make([]any, 0, len(pairs))
		seen := make(map[any]bool)
		for _, pair := range pairs {
			key := keyOf(pair.Right)
			if key == nil || seen[key] {
				continue
			}
			seen[key] = true
			rights = append(rights, key)
		}

		where := Compare(ColumnRef{Column: foreignKey}, OpIn, rights)
		query := e.subQuery(node.Target, where, node.Children)
		rows, err := session.Select(ctx, query)
		if err != nil {
			return wrapExec("load "+node.PathKey, query, err)
		}
		children, err := e.materializeAndLoad(ctx, session, node.Target, node.Children, rows)
		if err != nil {
			return err
		}

		childByKey := make(map[any]reflect.Value)
		for _, child := range children {
			childByKey[keyOf(fieldValue(child, relation.ForeignKey))] = child
		}
		perParent := make(map[int][]reflect.Value)
		for _, pair := range pairs {
			child, ok := childByKey[keyOf(pair.Right)]
			if !ok {
				continue
			}
			for _, i := range parentsByKey[keyOf(pair.Left)] {
				perParent[i] = append(perParent[i], child)
			}
		}
		for i, children := range perParent {
			assignRelation(parents[i], relation, children)
		}
	}
	return nil
}

// assignRelation writes loaded related instances into a parent's
// relation field, adapting to slice, pointer, and value field shapes.
func assignRelation(parent reflect.Value, relation *Relation, children []reflect.Value) {
	field := parent.Elem().FieldByName(relation.FieldName)
	if !field.IsValid() || !field.CanSet() {
		return
	}

	if field.Kind() == reflect.Slice {
		slice := reflect.MakeSlice(field.Type(), 0, len(children))
		elemIsPointer := field.Type().Elem().Kind() == reflect.Pointer
		for _, child := range children {
			if elemIsPointer {
				slice = reflect.Append(slice, child)
			} else {
				slice = reflect.Append(slice, child.Elem())
			}
		}
		field.Set(slice)
		return
	}

	if len(children) == 0 {
		return
	}
	if field.Kind() == reflect.Pointer {
		field.Set(children[0])
	} else {
		field.Set(children[0].Elem())
	}
}
