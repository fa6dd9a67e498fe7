package mongo

import (
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/smartrecord/smartrecord/core"
)

// predicateFilter converts a compiled predicate into a bson filter.
// Only root-level column references translate; related paths need the
// relational backends.
func predicateFilter(p *core.Predicate) (bson.M, error) {
	switch p.Op {
	case core.OpAnd:
		if len(p.Children) == 0 {
			return bson.M{}, nil
		}
		parts, err := childFilters(p.Children)
		if err != nil {
			return nil, err
		}
		return bson.M{"$and": parts}, nil

	case core.OpOr:
		parts, err := childFilters(p.Children)
		if err != nil {
			return nil, err
		}
		return bson.M{"$or": parts}, nil

	case core.OpNot:
		child, err := predicateFilter(p.Children[0])
		if err != nil {
			return nil, err
		}
		return bson.M{"$nor": bson.A{child}}, nil
	}

	if p.Column.PathKey != "" {
		return nil, fmt.Errorf("mongo: predicates over related path %q are not supported", p.Column.PathKey)
	}
	field := p.Column.Column.DatabaseColumnName

	switch p.Op {
	case core.OpNull:
		return bson.M{field: nil}, nil
	case core.OpEq:
		return bson.M{field: p.Value}, nil
	case core.OpNe:
		return bson.M{field: bson.M{"$ne": p.Value}}, nil
	case core.OpGt:
		return bson.M{field: bson.M{"$gt": p.Value}}, nil
	case core.OpGte:
		return bson.M{field: bson.M{"$gte": p.Value}}, nil
	case core.OpLt:
		return bson.M{field: bson.M{"$lt": p.Value}}, nil
	case core.OpLte:
		return bson.M{field: bson.M{"$lte": p.Value}}, nil
	case core.OpIn:
		values, _ := p.Value.([]any)
		return bson.M{field: bson.M{"$in": values}}, nil
	case core.OpLike:
		return bson.M{field: primitive.Regex{Pattern: likeRegex(p.Value.(string))}}, nil
	case core.OpILike:
		return bson.M{field: primitive.Regex{Pattern: likeRegex(p.Value.(string)), Options: "i"}}, nil
	default:
		return nil, fmt.Errorf("mongo: unsupported operator %q", p.Op)
	}
}

func childFilters(children []*core.Predicate) (bson.A, error) {
	parts := make(bson.A, 0, len(children))
	for _, child := range children {
		part, err := predicateFilter(child)
		if err != nil {
			return nil, err
		}
		parts = append(parts, part)
	}
	return parts, nil
}

// likeRegex converts a SQL LIKE pattern with backslash escapes into an
// anchored regular expression: % becomes .*, _ becomes a single-char
// wildcard, everything else is quoted.
func likeRegex(pattern string) string {
	var b strings.Builder
	b.WriteString("^")
	escaped := false
	for _, r := range pattern {
		switch {
		case escaped:
			b.WriteString(regexQuote(r))
			escaped = false
		case r == '\\':
			escaped = true
		case r == '%':
			b.WriteString(".*")
		case r == '_':
			b.WriteString(".")
		default:
			b.WriteString(regexQuote(r))
		}
	}
	b.WriteString("$")
	return b.String()
}

func regexQuote(r rune) string {
	if strings.ContainsRune(`\.+*?()|[]{}^$`, r) {
		return `\` + string(r)
	}
	return string(r)
}

// sortDoc converts compiled order expressions into a bson sort
// document. Related-path sorts are rejected.
func sortDoc(sort []core.OrderExpr) (bson.D, error) {
	doc := make(bson.D, 0, len(sort))
	for _, expr := range sort {
		if expr.Column.PathKey != "" {
			return nil, fmt.Errorf("mongo: sorting by related path %q is not supported", expr.Column.PathKey)
		}
		direction := 1
		if expr.Desc {
			direction = -1
		}
		doc = append(doc, bson.E{Key: expr.Column.Column.DatabaseColumnName, Value: direction})
	}
	return doc, nil
}

// rowFromDoc extracts a model's declared columns from a decoded
// document, recursing into $lookup results for join-fetched relations.
func rowFromDoc(meta *core.ModelMeta, plan []*core.LoadNode, doc bson.M) core.Row {
	row := make(core.Row, len(meta.Columns))
	for _, column := range meta.Columns {
		value, ok := doc[column.DatabaseColumnName]
		if !ok {
			continue
		}
		row[column.DatabaseColumnName] = normalizeValue(value)
	}
	for _, node := range plan {
		if !node.Fetch || node.Strategy != core.LoadJoin {
			continue
		}
		sub, ok := doc[node.Relation.FieldName].(bson.M)
		if !ok {
			continue
		}
		row[node.Relation.FieldName] = rowFromDoc(node.Target, node.Children, sub)
	}
	return row
}

// normalizeValue unwraps bson-specific container types.
func normalizeValue(value any) any {
	switch v := value.(type) {
	case primitive.A:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = normalizeValue(item)
		}
		return out
	case primitive.DateTime:
		return v.Time()
	default:
		return value
	}
}
