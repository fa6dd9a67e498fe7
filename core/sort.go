// Package core provides the building blocks of the smartrecord engine.
// This file defines the sort compiler, which turns ordering specs into
// ordered column-expression lists.
package core

import "strings"

// SortField is the structured form of one ordering entry.
type SortField struct {
	Path string
	Desc bool
}

// OrderExpr is one compiled ORDER BY expression.
type OrderExpr struct {
	Column ColumnRef
	Desc   bool
}

// ParseSort parses string ordering entries into SortFields. A leading
// "-" selects descending order; a leading "+" (or nothing) ascending.
//
// Example:
//
//	core.ParseSort("-age", "name") // age DESC, name ASC
func ParseSort(entries ...string) []SortField {
	fields := make([]SortField, 0, len(entries))
	for _, entry := range entries {
		switch {
		case strings.HasPrefix(entry, "-"):
			fields = append(fields, SortField{Path: entry[1:], Desc: true})
		case strings.HasPrefix(entry, "+"):
			fields = append(fields, SortField{Path: entry[1:]})
		default:
			fields = append(fields, SortField{Path: entry})
		}
	}
	return fields
}

// CompileSort resolves each entry's path and produces the ORDER BY list
// in the given order. Like the filter compiler it returns the resolved
// paths so the assembler can plan any joins the ordering depends on.
//
// Ties beyond the last entry are left to the underlying engine's
// natural order; callers wanting full determinism append the primary
// key themselves.
func CompileSort(registry *Registry, model *ModelMeta, fields []SortField) ([]OrderExpr, []*ResolvedPath, error) {
	if len(fields) == 0 {
		return nil, nil, nil
	}
	exprs := make([]OrderExpr, 0, len(fields))
	paths := make([]*ResolvedPath, 0, len(fields))
	for _, field := range fields {
		resolved, err := registry.resolveColumnPath(model, field.Path)
		if err != nil {
			return nil, nil, err
		}
		exprs = append(exprs, OrderExpr{
			Column: ColumnRef{PathKey: resolved.RelationPrefix(), Column: resolved.Column},
			Desc:   field.Desc,
		})
		paths = append(paths, resolved)
	}
	return exprs, paths, nil
}
