// Package core provides the building blocks of the smartrecord engine.
// This file defines the predicate tree produced by the filter compiler
// and consumed by drivers when rendering query conditions.
package core

import (
	"fmt"
	"sort"
	"strings"
)

// Predicate represents a boolean expression over columns of an
// assembled query.
//
// A predicate either targets a column (Column, Op, Value) or composes
// child predicates with a logical operator (AND, OR, NOT). An AND node
// with no children is the always-true predicate: an empty filter spec
// compiles to it and drivers render it as a no-op condition.
//
// Example:
//
//	p := core.And(
//		core.Compare(ageRef, core.OpGte, 18),
//		core.Compare(nameRef, core.OpLike, "%an%"),
//	)
type Predicate struct {
	Op       Operator
	Column   *ColumnRef
	Value    any
	Children []*Predicate
}

// And combines predicates into a conjunction.
func And(children ...*Predicate) *Predicate {
	return &Predicate{Op: OpAnd, Children: children}
}

// Or combines predicates into a disjunction.
func Or(children ...*Predicate) *Predicate {
	return &Predicate{Op: OpOr, Children: children}
}

// Not negates a predicate.
func Not(child *Predicate) *Predicate {
	return &Predicate{Op: OpNot, Children: []*Predicate{child}}
}

// Compare builds a single-column predicate.
func Compare(column ColumnRef, op Operator, value any) *Predicate {
	return &Predicate{Op: op, Column: &column, Value: value}
}

// IsNull builds a nullity test for a column.
func IsNull(column ColumnRef) *Predicate {
	return &Predicate{Op: OpNull, Column: &column}
}

// matchAll is the always-true predicate.
func matchAll() *Predicate { return &Predicate{Op: OpAnd} }

// isMatchAll reports whether a predicate matches every row.
func (p *Predicate) isMatchAll() bool {
	return p == nil || (p.Op == OpAnd && len(p.Children) == 0)
}

// And chains another predicate onto this one with logical AND.
func (p *Predicate) And(others ...*Predicate) *Predicate {
	return &Predicate{Op: OpAnd, Children: append([]*Predicate{p}, others...)}
}

// Or chains another predicate onto this one with logical OR.
func (p *Predicate) Or(others ...*Predicate) *Predicate {
	return &Predicate{Op: OpOr, Children: append([]*Predicate{p}, others...)}
}

// Not wraps this predicate in a negation.
func (p *Predicate) Not() *Predicate {
	return &Predicate{Op: OpNot, Children: []*Predicate{p}}
}

// describe writes a stable, human-readable rendering of the predicate,
// used in query descriptions and error context.
func (p *Predicate) describe(b *strings.Builder) {
	if p == nil || p.isMatchAll() {
		b.WriteString("true")
		return
	}
	switch p.Op {
	case OpAnd, OpOr:
		b.WriteByte('(')
		for i, child := range p.Children {
			if i > 0 {
				b.WriteByte(' ')
				b.WriteString(string(p.Op))
				b.WriteByte(' ')
			}
			child.describe(b)
		}
		b.WriteByte(')')
	case OpNot:
		b.WriteString("NOT ")
		if len(p.Children) > 0 {
			p.Children[0].describe(b)
		}
	case OpNull:
		fmt.Fprintf(b, "%s IS NULL", p.Column)
	default:
		fmt.Fprintf(b, "%s %s %v", p.Column, p.Op, p.Value)
	}
}

// sortedKeys returns map keys in lexical order. Filter compilation
// iterates specs through this so compiling the same spec twice yields
// the same predicate shape.
func sortedKeys(spec F) []string {
	keys := make([]string, 0, len(spec))
	for key := range spec {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// foldAnd combines predicates into a single conjunction. Zero inputs
// yield the always-true predicate; one input is returned as-is.
func foldAnd(predicates ...*Predicate) *Predicate {
	switch len(predicates) {
	case 0:
		return matchAll()
	case 1:
		return predicates[0]
	default:
		return And(predicates...)
	}
}
