// Package core provides the building blocks of the smartrecord engine.
// This file defines the eager-load planner, which turns relationship
// paths into a strategy tree shared by the whole assembled query.
package core

import "strings"

// LoadStrategy selects how a relation's rows are fetched.
type LoadStrategy int

const (
	// LoadJoin fetches the relation in the same statement via a join.
	LoadJoin LoadStrategy = iota + 1
	// LoadSeparate fetches the relation with a follow-up batched query.
	LoadSeparate
)

func (s LoadStrategy) String() string {
	if s == LoadJoin {
		return "join"
	}
	return "separate"
}

// LoadNode is one relation in a load plan.
//
// Fetch marks nodes whose rows populate model instances; a node without
// Fetch exists only so a filter or sort on its path can be joined. A
// node's strategy is consistent across every use of its path within one
// assembled query.
type LoadNode struct {
	Relation *Relation
	Target   *ModelMeta
	Strategy LoadStrategy
	Fetch    bool
	PathKey  string
	Children []*LoadNode
}

// LoadPlan is the strategy tree for one assembled query. Shared path
// prefixes are merged into single nodes.
type LoadPlan struct {
	Root     *ModelMeta
	Children []*LoadNode
}

// defaultStrategy picks the strategy for a freshly planned relation:
// to-many edges load separately to avoid row multiplication, to-one
// edges join.
func defaultStrategy(relation *Relation) LoadStrategy {
	if relation.Kind.ToMany() {
		return LoadSeparate
	}
	return LoadJoin
}

// PlanLoads builds a load plan from eager-load paths. Each path's
// relationship chain is inserted into the tree, merging shared prefixes,
// and every node on an eager path is marked for fetching (loading
// "author.posts" necessarily populates "author" too).
func PlanLoads(registry *Registry, model *ModelMeta, paths []string) (*LoadPlan, error) {
	plan := &LoadPlan{Root: model}
	for _, path := range paths {
		resolved, err := registry.ResolvePath(model, path)
		if err != nil {
			return nil, err
		}
		if resolved.Column != nil || len(resolved.Hops) == 0 {
			segment := path
			if i := strings.LastIndex(path, "."); i >= 0 {
				segment = path[i+1:]
			}
			return nil, &UnknownAttributeError{Model: resolved.Terminal().Name, Path: path, Segment: segment}
		}
		plan.insert(resolved.Hops, true)
	}
	return plan, nil
}

// ensureJoined inserts join-only nodes for a filter/sort/group path's
// relationship chain. Nodes the path shares with eager loads are forced
// onto the join strategy: a join is already being paid for, so join
// wins over separate when the same relation is requested both ways.
func (p *LoadPlan) ensureJoined(resolved *ResolvedPath) {
	if len(resolved.Hops) == 0 {
		return
	}
	nodes := p.insert(resolved.Hops, false)
	for _, node := range nodes {
		node.Strategy = LoadJoin
	}
}

// insert walks a relationship chain into the tree, creating missing
// nodes, and returns the chain's nodes. fetch marks every node on the
// chain for instance population.
func (p *LoadPlan) insert(hops []PathHop, fetch bool) []*LoadNode {
	chain := make([]*LoadNode, 0, len(hops))
	children := &p.Children
	pathKey := ""
	for _, hop := range hops {
		if pathKey == "" {
			pathKey = hop.Relation.FieldName
		} else {
			pathKey += "." + hop.Relation.FieldName
		}
		node := findNode(*children, hop.Relation.FieldName)
		if node == nil {
			node = &LoadNode{
				Relation: hop.Relation,
				Target:   hop.Model,
				Strategy: defaultStrategy(hop.Relation),
				PathKey:  pathKey,
			}
			*children = append(*children, node)
		}
		if fetch {
			node.Fetch = true
		}
		chain = append(chain, node)
		children = &node.Children
	}
	return chain
}

func findNode(nodes []*LoadNode, fieldName string) *LoadNode {
	for _, node := range nodes {
		if node.Relation.FieldName == fieldName {
			return node
		}
	}
	return nil
}

// JoinTree returns the plan nodes that belong to the root statement's
// join clause, in stable pre-order. Descent stops at separate-strategy
// nodes: their subtrees belong to the follow-up queries that load them.
func (p *LoadPlan) JoinTree() []*LoadNode {
	var out []*LoadNode
	var walk func(nodes []*LoadNode)
	walk = func(nodes []*LoadNode) {
		for _, node := range nodes {
			if node.Strategy != LoadJoin {
				continue
			}
			out = append(out, node)
			walk(node.Children)
		}
	}
	walk(p.Children)
	return out
}

// multipliesRows reports whether a join-fetched to-many relation is part
// of the root statement, repeating root rows once per child row.
func (p *LoadPlan) multipliesRows() bool {
	var walk func(nodes []*LoadNode) bool
	walk = func(nodes []*LoadNode) bool {
		for _, node := range nodes {
			if node.Strategy != LoadJoin {
				continue
			}
			if node.Fetch && node.Relation.Kind.ToMany() {
				return true
			}
			if walk(node.Children) {
				return true
			}
		}
		return false
	}
	return p != nil && walk(p.Children)
}

// describe writes a stable rendering of the plan for query descriptions.
func (p *LoadPlan) describe(b *strings.Builder) {
	var walk func(nodes []*LoadNode)
	walk = func(nodes []*LoadNode) {
		for i, node := range nodes {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(node.PathKey)
			b.WriteByte('[')
			b.WriteString(node.Strategy.String())
			if !node.Fetch {
				b.WriteString(",ref")
			}
			b.WriteByte(']')
			if len(node.Children) > 0 {
				b.WriteByte('(')
				walk(node.Children)
				b.WriteByte(')')
			}
		}
	}
	walk(p.Children)
}

// isEmpty reports whether the plan has no nodes at all.
func (p *LoadPlan) isEmpty() bool {
	return p == nil || len(p.Children) == 0
}
