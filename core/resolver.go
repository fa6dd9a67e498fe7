// Package core provides the building blocks of the smartrecord engine.
// This file defines path resolution: walking a dotted attribute path
// through the schema graph down to a terminal column or relation.
package core

import "strings"

// PathHop is one relationship traversal within a resolved path.
type PathHop struct {
	Relation *Relation
	Model    *ModelMeta // model the relation leads to
}

// ResolvedPath is the result of resolving a dotted path against a model.
//
// Hops holds the relationship chain in traversal order. Column is the
// terminal column, or nil when the path ends on a bare relation (as
// eager-load paths do).
type ResolvedPath struct {
	Root   *ModelMeta
	Path   string
	Hops   []PathHop
	Column *Column
}

// Terminal returns the model the final segment was resolved on.
func (p *ResolvedPath) Terminal() *ModelMeta {
	if len(p.Hops) == 0 {
		return p.Root
	}
	return p.Hops[len(p.Hops)-1].Model
}

// RelationPrefix returns the dotted chain of relation field names,
// excluding the terminal column. It identifies the plan node a
// column reference belongs to; the empty string means the root model.
func (p *ResolvedPath) RelationPrefix() string {
	if len(p.Hops) == 0 {
		return ""
	}
	parts := make([]string, len(p.Hops))
	for i, hop := range p.Hops {
		parts[i] = hop.Relation.FieldName
	}
	return strings.Join(parts, ".")
}

// ColumnRef names a column within an assembled query: the column itself
// plus the relation prefix locating it in the query's load plan.
type ColumnRef struct {
	PathKey string // RelationPrefix of the resolved path; "" is the root model
	Column  *Column
}

func (c ColumnRef) String() string {
	if c.PathKey == "" {
		return c.Column.DatabaseColumnName
	}
	return c.PathKey + "." + c.Column.DatabaseColumnName
}

// ResolvePath resolves a dotted path against a model, validating that
// every non-terminal segment names a declared relation and that the
// terminal segment names a column or relation on the model it lands on.
//
// Resolution is pure: the schema graph is static after registration, so
// results are cached per (model, path) for the process lifetime. Cycles
// in the graph are permitted; a path is always finite, so resolution
// only fails on undeclared attributes.
func (r *Registry) ResolvePath(model *ModelMeta, path string) (*ResolvedPath, error) {
	cacheKey := model.Name + "\x1f" + path
	if cached, ok := r.resolveCache.Load(cacheKey); ok {
		return cached.(*ResolvedPath), nil
	}

	resolved := &ResolvedPath{Root: model, Path: path}
	current := model
	segments := strings.Split(path, ".")

	for i, segment := range segments {
		last := i == len(segments)-1
		if relation := current.Relation(segment); relation != nil {
			target := r.Model(relation.Target)
			if target == nil {
				return nil, &UnknownAttributeError{Model: current.Name, Path: path, Segment: segment}
			}
			resolved.Hops = append(resolved.Hops, PathHop{Relation: relation, Model: target})
			current = target
			continue
		}
		if last {
			if column := current.Column(segment); column != nil {
				resolved.Column = column
				break
			}
		}
		return nil, &UnknownAttributeError{Model: current.Name, Path: path, Segment: segment}
	}

	r.resolveCache.Store(cacheKey, resolved)
	return resolved, nil
}

// resolveColumnPath is ResolvePath restricted to paths that end on a
// column, as filter, sort and group-by paths must.
func (r *Registry) resolveColumnPath(model *ModelMeta, path string) (*ResolvedPath, error) {
	resolved, err := r.ResolvePath(model, path)
	if err != nil {
		return nil, err
	}
	if resolved.Column == nil {
		segment := path
		if i := strings.LastIndex(path, "."); i >= 0 {
			segment = path[i+1:]
		}
		return nil, &UnknownAttributeError{Model: resolved.Terminal().Name, Path: path, Segment: segment}
	}
	return resolved, nil
}
