// Package core provides the building blocks of the smartrecord engine.
// This file defines the filter compiler, which turns declarative filter
// specs into predicate trees.
package core

import "reflect"

// F is a declarative filter spec: a mapping from "path__operator" keys
// to operand values. The path part is a dotted attribute path resolved
// against the model; the operator suffix defaults to equality when
// absent. All entries are combined with logical AND.
//
// Nested OR groups are expressed as a []F under the reserved OrKey:
// each element compiles as its own conjunction and the elements are
// combined with OR.
//
// Example:
//
//	core.F{
//		"age__gte":   18,
//		"name__like": "%an%",
//		core.OrKey: []core.F{
//			{"role": "admin"},
//			{"role": "staff", "active": true},
//		},
//	}
type F map[string]any

// OrKey is the reserved filter key holding OR sub-groups.
const OrKey = "$or"

// CompileFilter compiles a filter spec against a model into a single
// predicate, resolving every path through the registry. It returns the
// resolved paths alongside the predicate so the assembler can plan the
// joins the predicate depends on.
//
// An empty (or nil) spec compiles to the always-true predicate. Keys
// are processed in lexical order, so compilation is deterministic.
func CompileFilter(registry *Registry, model *ModelMeta, spec F) (*Predicate, []*ResolvedPath, error) {
	if len(spec) == 0 {
		return matchAll(), nil, nil
	}

	var predicates []*Predicate
	var paths []*ResolvedPath

	for _, key := range sortedKeys(spec) {
		value := spec[key]

		if key == OrKey {
			predicate, groupPaths, err := compileOrGroups(registry, model, key, value)
			if err != nil {
				return nil, nil, err
			}
			predicates = append(predicates, predicate)
			paths = append(paths, groupPaths...)
			continue
		}

		path, suffix := splitFilterKey(key)
		operator, ok := suffixTable[suffix]
		if !ok {
			return nil, nil, &InvalidOperatorError{Key: key, Suffix: suffix}
		}

		resolved, err := registry.resolveColumnPath(model, path)
		if err != nil {
			return nil, nil, err
		}

		predicate, err := buildPredicate(resolved, operator, value)
		if err != nil {
			return nil, nil, err
		}
		predicates = append(predicates, predicate)
		paths = append(paths, resolved)
	}

	return foldAnd(predicates...), paths, nil
}

// compileOrGroups compiles the reserved OR key: its value must be a
// sequence of sub-specs, each compiled recursively and combined with OR.
func compileOrGroups(registry *Registry, model *ModelMeta, key string, value any) (*Predicate, []*ResolvedPath, error) {
	groups, err := orGroupSpecs(key, value)
	if err != nil {
		return nil, nil, err
	}

	var children []*Predicate
	var paths []*ResolvedPath
	for _, group := range groups {
		predicate, groupPaths, err := CompileFilter(registry, model, group)
		if err != nil {
			return nil, nil, err
		}
		children = append(children, predicate)
		paths = append(paths, groupPaths...)
	}
	if len(children) == 1 {
		return children[0], paths, nil
	}
	return Or(children...), paths, nil
}

// orGroupSpecs normalizes the OR key's value into []F. Both []F and
// []any of F (or map[string]any) are accepted.
func orGroupSpecs(key string, value any) ([]F, error) {
	switch v := value.(type) {
	case []F:
		if len(v) == 0 {
			return nil, &TypeMismatchError{Path: key, Operator: OpOr, Value: value, Want: "a non-empty sequence of filter specs"}
		}
		return v, nil
	case []any:
		groups := make([]F, 0, len(v))
		for _, item := range v {
			switch spec := item.(type) {
			case F:
				groups = append(groups, spec)
			case map[string]any:
				groups = append(groups, F(spec))
			default:
				return nil, &TypeMismatchError{Path: key, Operator: OpOr, Value: item, Want: "a filter spec"}
			}
		}
		if len(groups) == 0 {
			return nil, &TypeMismatchError{Path: key, Operator: OpOr, Value: value, Want: "a non-empty sequence of filter specs"}
		}
		return groups, nil
	default:
		return nil, &TypeMismatchError{Path: key, Operator: OpOr, Value: value, Want: "a sequence of filter specs"}
	}
}

// buildPredicate validates an operand against the resolved column per
// the operator's class and produces the predicate. Validation happens
// here, during compilation: an incompatible operand never reaches a
// driver.
func buildPredicate(resolved *ResolvedPath, operator filterOperator, value any) (*Predicate, error) {
	column := resolved.Column
	ref := ColumnRef{PathKey: resolved.RelationPrefix(), Column: column}

	var predicate *Predicate
	switch operator.class {
	case classNull:
		// The operand is ignored: the operator itself tests nullity.
		predicate = IsNull(ref)

	case classEquality:
		if value == nil {
			// Equality against nil is a null test; inequality its negation.
			predicate = IsNull(ref)
			if operator.op == OpNe {
				predicate = predicate.Not()
			}
			return predicate, nil
		}
		if !operandCompatible(column, value) {
			return nil, &TypeMismatchError{Path: resolved.Path, Operator: operator.op, Value: value, Want: "a value matching column type " + column.Type.String()}
		}
		predicate = Compare(ref, operator.op, value)

	case classComparison:
		if !orderable(column.Kind) {
			return nil, &TypeMismatchError{Path: resolved.Path, Operator: operator.op, Value: value, Want: "an orderable column"}
		}
		if !operandCompatible(column, value) {
			return nil, &TypeMismatchError{Path: resolved.Path, Operator: operator.op, Value: value, Want: "a value matching column type " + column.Type.String()}
		}
		predicate = Compare(ref, operator.op, value)

	case classMembership:
		values, err := membershipValues(resolved, operator.op, column, value)
		if err != nil {
			return nil, err
		}
		predicate = Compare(ref, OpIn, values)

	case classPattern:
		if column.Kind != KindString {
			return nil, &TypeMismatchError{Path: resolved.Path, Operator: operator.op, Value: value, Want: "a textual column"}
		}
		text, ok := value.(string)
		if !ok {
			return nil, &TypeMismatchError{Path: resolved.Path, Operator: operator.op, Value: value, Want: "a string pattern"}
		}
		if operator.pattern != nil {
			text = operator.pattern(text)
		}
		predicate = Compare(ref, operator.op, text)
	}

	if operator.negated {
		predicate = predicate.Not()
	}
	return predicate, nil
}

// membershipValues normalizes an IN operand into []any and checks each
// element against the column type. Strings are rejected even though Go
// would range over them: membership requires an explicit sequence.
func membershipValues(resolved *ResolvedPath, op Operator, column *Column, value any) ([]any, error) {
	rv := reflect.ValueOf(value)
	if value == nil || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
		return nil, &TypeMismatchError{Path: resolved.Path, Operator: op, Value: value, Want: "a sequence of values"}
	}
	values := make([]any, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		element := rv.Index(i).Interface()
		if !operandCompatible(column, element) {
			return nil, &TypeMismatchError{Path: resolved.Path, Operator: op, Value: element, Want: "elements matching column type " + column.Type.String()}
		}
		values[i] = element
	}
	return values, nil
}
