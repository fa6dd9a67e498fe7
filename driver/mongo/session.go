package mongo

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/smartrecord/smartrecord/core"
)

// session executes operations against one database handle. Commit and
// Rollback only mark the scope finished.
type session struct {
	db *mongo.Database
}

var _ core.Session = (*session)(nil)

// lookupStages renders $lookup/$unwind stages for the top-level
// join-fetched to-one relations of a plan. Join fetch below the first
// level is not expressible here and is rejected.
func lookupStages(model *core.ModelMeta, plan *core.LoadPlan) ([]bson.D, error) {
	var stages []bson.D
	for _, node := range plan.Children {
		if node.Strategy != core.LoadJoin {
			continue
		}
		if !node.Fetch {
			continue
		}
		if node.Relation.Kind != core.OneToOne {
			return nil, fmt.Errorf("mongo: join fetch of to-many relation %q is not supported", node.Relation.FieldName)
		}
		for _, child := range node.Children {
			if child.Strategy == core.LoadJoin {
				return nil, fmt.Errorf("mongo: nested join fetch %q is not supported", child.Relation.FieldName)
			}
		}

		local := model.Column(node.Relation.LocalKey)
		foreign := node.Target.Column(node.Relation.ForeignKey)
		stages = append(stages,
			bson.D{{Key: "$lookup", Value: bson.M{
				"from":         node.Target.Table,
				"localField":   local.DatabaseColumnName,
				"foreignField": foreign.DatabaseColumnName,
				"as":           node.Relation.FieldName,
			}}},
			bson.D{{Key: "$unwind", Value: bson.M{
				"path":                       "$" + node.Relation.FieldName,
				"preserveNullAndEmptyArrays": true,
			}}},
		)
	}
	return stages, nil
}

func (s *session) Select(ctx context.Context, query *core.AssembledQuery) ([]core.Row, error) {
	filter, err := predicateFilter(query.Where)
	if err != nil {
		return nil, err
	}
	sort, err := sortDoc(query.Sort)
	if err != nil {
		return nil, err
	}
	lookups, err := lookupStages(query.Model, query.Plan)
	if err != nil {
		return nil, err
	}

	pipeline := []bson.D{{{Key: "$match", Value: filter}}}
	pipeline = append(pipeline, lookups...)
	if len(sort) > 0 {
		pipeline = append(pipeline, bson.D{{Key: "$sort", Value: sort}})
	}
	if query.Offset > 0 {
		pipeline = append(pipeline, bson.D{{Key: "$skip", Value: query.Offset}})
	}
	if query.Limit > 0 {
		pipeline = append(pipeline, bson.D{{Key: "$limit", Value: query.Limit}})
	}

	cursor, err := s.db.Collection(query.Model.Table).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var out []core.Row
	for cursor.Next(ctx) {
		var doc bson.M
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, rowFromDoc(query.Model, query.Plan.Children, doc))
	}
	return out, cursor.Err()
}

func (s *session) Aggregate(ctx context.Context, query *core.AssembledQuery) ([]core.Row, error) {
	filter, err := predicateFilter(query.Where)
	if err != nil {
		return nil, err
	}

	var groupID any
	if len(query.GroupBy) > 0 {
		id := bson.M{}
		for _, group := range query.GroupBy {
			if group.PathKey != "" {
				return nil, fmt.Errorf("mongo: grouping by related path %q is not supported", group.PathKey)
			}
			id[group.Column.DatabaseColumnName] = "$" + group.Column.DatabaseColumnName
		}
		groupID = id
	}

	group := bson.M{"_id": groupID}
	for _, agg := range query.Aggregates {
		if agg.Column == nil {
			group[agg.Alias] = bson.M{"$sum": 1}
			continue
		}
		if agg.Column.PathKey != "" {
			return nil, fmt.Errorf("mongo: aggregating over related path %q is not supported", agg.Column.PathKey)
		}
		field := "$" + agg.Column.Column.DatabaseColumnName
		if agg.Fn == core.AggCount {
			group[agg.Alias] = bson.M{"$sum": bson.M{"$cond": bson.A{bson.M{"$ne": bson.A{field, nil}}, 1, 0}}}
			continue
		}
		group[agg.Alias] = bson.M{"$" + string(agg.Fn): field}
	}

	pipeline := []bson.D{
		{{Key: "$match", Value: filter}},
		{{Key: "$group", Value: group}},
	}
	// Assembly restricts aggregate sorts to group-by columns, which live
	// under _id after the $group stage.
	if len(query.Sort) > 0 {
		sort := make(bson.D, 0, len(query.Sort))
		for _, expr := range query.Sort {
			direction := 1
			if expr.Desc {
				direction = -1
			}
			sort = append(sort, bson.E{Key: "_id." + expr.Column.Column.DatabaseColumnName, Value: direction})
		}
		pipeline = append(pipeline, bson.D{{Key: "$sort", Value: sort}})
	}
	if query.Offset > 0 {
		pipeline = append(pipeline, bson.D{{Key: "$skip", Value: query.Offset}})
	}
	if query.Limit > 0 {
		pipeline = append(pipeline, bson.D{{Key: "$limit", Value: query.Limit}})
	}

	cursor, err := s.db.Collection(query.Model.Table).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var out []core.Row
	for cursor.Next(ctx) {
		var doc bson.M
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		row := make(core.Row, len(query.GroupBy)+len(query.Aggregates))
		if id, ok := doc["_id"].(bson.M); ok {
			for _, groupBy := range query.GroupBy {
				row[groupBy.String()] = normalizeValue(id[groupBy.Column.DatabaseColumnName])
			}
		}
		for _, agg := range query.Aggregates {
			row[agg.Alias] = normalizeValue(doc[agg.Alias])
		}
		out = append(out, row)
	}
	return out, cursor.Err()
}

func (s *session) Insert(ctx context.Context, meta *core.ModelMeta, values core.Row) (core.Row, error) {
	stored := make(core.Row, len(values)+1)
	for key, value := range values {
		stored[key] = value
	}

	// String primary keys left to the backend get a generated UUID;
	// MongoDB has no serial columns.
	pk := meta.PrimaryKey()
	if _, ok := stored[pk.DatabaseColumnName]; !ok && pk.Kind == core.KindString {
		stored[pk.DatabaseColumnName] = uuid.NewString()
	}

	if _, err := s.db.Collection(meta.Table).InsertOne(ctx, bson.M(stored)); err != nil {
		return nil, err
	}
	return stored, nil
}

func (s *session) Update(ctx context.Context, meta *core.ModelMeta, pk any, changes core.Changes) error {
	filter := bson.M{meta.PrimaryKey().DatabaseColumnName: pk}
	_, err := s.db.Collection(meta.Table).UpdateOne(ctx, filter, bson.M{"$set": bson.M(changes)})
	return err
}

func (s *session) Delete(ctx context.Context, meta *core.ModelMeta, pk any) error {
	filter := bson.M{meta.PrimaryKey().DatabaseColumnName: pk}
	_, err := s.db.Collection(meta.Table).DeleteOne(ctx, filter)
	return err
}

func (s *session) Get(ctx context.Context, meta *core.ModelMeta, pk any) (core.Row, error) {
	filter := bson.M{meta.PrimaryKey().DatabaseColumnName: pk}

	var doc bson.M
	err := s.db.Collection(meta.Table).FindOne(ctx, filter).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rowFromDoc(meta, nil, doc), nil
}

func (s *session) SelectPairs(ctx context.Context, query core.PairQuery) ([]core.Pair, error) {
	filter := bson.M{query.LeftColumn: bson.M{"$in": query.LeftValues}}

	cursor, err := s.db.Collection(query.Table).Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var out []core.Pair
	for cursor.Next(ctx) {
		var doc bson.M
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, core.Pair{
			Left:  normalizeValue(doc[query.LeftColumn]),
			Right: normalizeValue(doc[query.RightColumn]),
		})
	}
	return out, cursor.Err()
}

func (s *session) Commit(ctx context.Context) error { return nil }

func (s *session) Rollback(ctx context.Context) error { return nil }
