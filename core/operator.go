// Package core provides the building blocks of the smartrecord engine.
// This file defines the closed set of operators used in predicates and
// the static table that maps filter-key suffixes onto them.
package core

import (
	"reflect"
	"strings"
)

// Operator represents a comparison or logical operator used in a predicate.
//
// Operators can be logical (AND, OR, NOT) or value-based (EQ, GT, IN, etc.).
// The set is closed: drivers switch over these variants and the filter
// compiler owns the suffix table. Extending the engine means adding a
// variant here, an entry in the suffix table, and a case in each driver.
type Operator string

const (
	// Logical operators
	OpAnd Operator = "AND"
	OpOr  Operator = "OR"
	OpNot Operator = "NOT"

	// Value-based operators
	OpNull  Operator = "NULL"  // column IS NULL
	OpEq    Operator = "EQ"    // column = value
	OpNe    Operator = "NE"    // column <> value
	OpGt    Operator = "GT"    // column > value
	OpGte   Operator = "GTE"   // column >= value
	OpLt    Operator = "LT"    // column < value
	OpLte   Operator = "LTE"   // column <= value
	OpLike  Operator = "LIKE"  // column LIKE pattern, case-sensitive
	OpILike Operator = "ILIKE" // column LIKE pattern, case-insensitive
	OpIn    Operator = "IN"    // column IN (value list)
)

// operatorClass groups filter operators by the shape of validation they
// perform on the resolved column and the operand.
type operatorClass int

const (
	classEquality operatorClass = iota + 1
	classComparison
	classMembership
	classPattern
	classNull
)

// filterOperator describes one entry of the filter suffix table: the
// predicate operator it compiles to, its validation class, whether the
// resulting predicate is wrapped in a NOT, and an optional transform
// that turns the raw operand into a LIKE pattern.
type filterOperator struct {
	op      Operator
	class   operatorClass
	negated bool
	pattern func(string) string
}

// suffixTable is the closed mapping from filter-key suffixes to
// operators. The empty suffix is equality.
var suffixTable = map[string]filterOperator{
	"":           {op: OpEq, class: classEquality},
	"eq":         {op: OpEq, class: classEquality},
	"ne":         {op: OpNe, class: classEquality},
	"gt":         {op: OpGt, class: classComparison},
	"gte":        {op: OpGte, class: classComparison},
	"lt":         {op: OpLt, class: classComparison},
	"lte":        {op: OpLte, class: classComparison},
	"in":         {op: OpIn, class: classMembership},
	"notin":      {op: OpIn, class: classMembership, negated: true},
	"like":       {op: OpLike, class: classPattern},
	"notlike":    {op: OpLike, class: classPattern, negated: true},
	"ilike":      {op: OpILike, class: classPattern},
	"notilike":   {op: OpILike, class: classPattern, negated: true},
	"startswith": {op: OpLike, class: classPattern, pattern: func(s string) string { return likeEscape(s) + "%" }},
	"endswith":   {op: OpLike, class: classPattern, pattern: func(s string) string { return "%" + likeEscape(s) }},
	"contains":   {op: OpLike, class: classPattern, pattern: func(s string) string { return "%" + likeEscape(s) + "%" }},
	"icontains":  {op: OpILike, class: classPattern, pattern: func(s string) string { return "%" + likeEscape(s) + "%" }},
	"isnull":     {op: OpNull, class: classNull},
	"notnull":    {op: OpNull, class: classNull, negated: true},
}

// splitFilterKey separates a filter key into its path and operator
// suffix. The suffix is everything after the last "__"; a key without
// "__" uses the default equality operator.
//
// Example:
//
//	splitFilterKey("author.posts.title__like") // "author.posts.title", "like"
//	splitFilterKey("age")                      // "age", ""
func splitFilterKey(key string) (path, suffix string) {
	if i := strings.LastIndex(key, "__"); i >= 0 {
		return key[:i], key[i+2:]
	}
	return key, ""
}

// orderable reports whether a column kind supports <, <=, >, >=.
func orderable(kind ColumnKind) bool {
	switch kind {
	case KindInt, KindUint, KindFloat, KindString, KindTime:
		return true
	}
	return false
}

// operandCompatible reports whether a Go value can be bound against a
// column of the given kind. Numeric kinds are interchangeable; other
// kinds must match exactly. This deliberately ignores Go's rune/string
// convertibility, which reflect would otherwise permit.
func operandCompatible(column *Column, value any) bool {
	if value == nil {
		return false
	}
	got := columnKindOf(reflect.TypeOf(value))
	switch column.Kind {
	case KindInt, KindUint, KindFloat:
		return got == KindInt || got == KindUint || got == KindFloat
	default:
		return got == column.Kind
	}
}
