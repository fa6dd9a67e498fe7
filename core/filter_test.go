package core

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileFilterEmptySpecMatchesAll(t *testing.T) {
	f := newFixtures(t)

	predicate, paths, err := CompileFilter(f.registry, &f.user.ModelMeta, nil)
	require.NoError(t, err)
	assert.True(t, predicate.isMatchAll())
	assert.Empty(t, paths)
}

func TestCompileFilterDefaultsToEquality(t *testing.T) {
	f := newFixtures(t)

	predicate, _, err := CompileFilter(f.registry, &f.user.ModelMeta, F{"name": "Dan"})
	require.NoError(t, err)
	assert.Equal(t, OpEq, predicate.Op)
	assert.Equal(t, "name", predicate.Column.Column.DatabaseColumnName)
	assert.Equal(t, "Dan", predicate.Value)
}

func TestCompileFilterCombinesWithAnd(t *testing.T) {
	f := newFixtures(t)

	predicate, _, err := CompileFilter(f.registry, &f.user.ModelMeta, F{
		"age__gte":   18,
		"name__like": "%an%",
	})
	require.NoError(t, err)
	require.Equal(t, OpAnd, predicate.Op)
	require.Len(t, predicate.Children, 2)
	// Keys compile in lexical order.
	assert.Equal(t, OpGte, predicate.Children[0].Op)
	assert.Equal(t, OpLike, predicate.Children[1].Op)
}

func TestCompileFilterOrGroups(t *testing.T) {
	f := newFixtures(t)

	predicate, _, err := CompileFilter(f.registry, &f.user.ModelMeta, F{
		OrKey: []F{
			{"name": "Dan"},
			{"age__lt": 30, "name__ne": "Eve"},
		},
	})
	require.NoError(t, err)
	require.Equal(t, OpOr, predicate.Op)
	require.Len(t, predicate.Children, 2)
	assert.Equal(t, OpEq, predicate.Children[0].Op)
	assert.Equal(t, OpAnd, predicate.Children[1].Op)
}

func TestCompileFilterOrGroupsRejectNonSequence(t *testing.T) {
	f := newFixtures(t)

	_, _, err := CompileFilter(f.registry, &f.user.ModelMeta, F{OrKey: "nope"})
	var mismatch *TypeMismatchError
	require.ErrorAs(t, err, &mismatch)
}

func TestCompileFilterUnknownSuffix(t *testing.T) {
	f := newFixtures(t)

	_, _, err := CompileFilter(f.registry, &f.user.ModelMeta, F{"age__between": 5})
	var invalid *InvalidOperatorError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "age__between", invalid.Key)
	assert.Equal(t, "between", invalid.Suffix)
}

func TestCompileFilterUnknownPath(t *testing.T) {
	f := newFixtures(t)

	_, _, err := CompileFilter(f.registry, &f.user.ModelMeta, F{"nickname": "x"})
	var unknown *UnknownAttributeError
	require.ErrorAs(t, err, &unknown)
}

func TestCompileFilterNilEqualityIsNullTest(t *testing.T) {
	f := newFixtures(t)

	predicate, _, err := CompileFilter(f.registry, &f.user.ModelMeta, F{"email": nil})
	require.NoError(t, err)
	assert.Equal(t, OpNull, predicate.Op)

	predicate, _, err = CompileFilter(f.registry, &f.user.ModelMeta, F{"email__ne": nil})
	require.NoError(t, err)
	require.Equal(t, OpNot, predicate.Op)
	assert.Equal(t, OpNull, predicate.Children[0].Op)
}

func TestCompileFilterIsNullIgnoresOperand(t *testing.T) {
	f := newFixtures(t)

	predicate, _, err := CompileFilter(f.registry, &f.user.ModelMeta, F{"email__isnull": true})
	require.NoError(t, err)
	assert.Equal(t, OpNull, predicate.Op)

	predicate, _, err = CompileFilter(f.registry, &f.user.ModelMeta, F{"email__notnull": nil})
	require.NoError(t, err)
	assert.Equal(t, OpNot, predicate.Op)
}

func TestCompileFilterTypeMismatch(t *testing.T) {
	f := newFixtures(t)

	_, _, err := CompileFilter(f.registry, &f.user.ModelMeta, F{"age": "eighteen"})
	var mismatch *TypeMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, OpEq, mismatch.Operator)
}

func TestCompileFilterNumericKindsInterchange(t *testing.T) {
	f := newFixtures(t)

	// Age is declared int; float and int64 operands bind fine.
	_, _, err := CompileFilter(f.registry, &f.user.ModelMeta, F{"age__gt": 17.5})
	require.NoError(t, err)
	_, _, err = CompileFilter(f.registry, &f.user.ModelMeta, F{"age__lte": int64(65)})
	require.NoError(t, err)
}

func TestCompileFilterComparisonNeedsOrderableColumn(t *testing.T) {
	type Flagged struct {
		ID     int64 `db:"id"`
		Active bool  `db:"active"`
	}
	flagged := Schema[Flagged](Table[Flagged]("flags"))
	registry := NewRegistry()
	require.NoError(t, Register(registry, flagged))
	require.NoError(t, registry.Freeze())

	_, _, err := CompileFilter(registry, &flagged.ModelMeta, F{"active__gt": true})
	var mismatch *TypeMismatchError
	require.ErrorAs(t, err, &mismatch)
}

func TestCompileFilterMembership(t *testing.T) {
	f := newFixtures(t)

	predicate, _, err := CompileFilter(f.registry, &f.user.ModelMeta, F{"age__in": []int{18, 21, 30}})
	require.NoError(t, err)
	assert.Equal(t, OpIn, predicate.Op)
	assert.Equal(t, []any{18, 21, 30}, predicate.Value)

	_, _, err = CompileFilter(f.registry, &f.user.ModelMeta, F{"age__in": 18})
	var mismatch *TypeMismatchError
	require.ErrorAs(t, err, &mismatch)

	_, _, err = CompileFilter(f.registry, &f.user.ModelMeta, F{"name__in": "abc"})
	require.ErrorAs(t, err, &mismatch)
}

func TestCompileFilterNotInNegates(t *testing.T) {
	f := newFixtures(t)

	predicate, _, err := CompileFilter(f.registry, &f.user.ModelMeta, F{"age__notin": []int{1, 2}})
	require.NoError(t, err)
	require.Equal(t, OpNot, predicate.Op)
	assert.Equal(t, OpIn, predicate.Children[0].Op)
}

func TestCompileFilterPatternBuilders(t *testing.T) {
	f := newFixtures(t)

	predicate, _, err := CompileFilter(f.registry, &f.user.ModelMeta, F{"name__startswith": "Da"})
	require.NoError(t, err)
	assert.Equal(t, OpLike, predicate.Op)
	assert.Equal(t, "Da%", predicate.Value)

	predicate, _, err = CompileFilter(f.registry, &f.user.ModelMeta, F{"name__contains": "50%_off"})
	require.NoError(t, err)
	assert.Equal(t, `%50\%\_off%`, predicate.Value)

	predicate, _, err = CompileFilter(f.registry, &f.user.ModelMeta, F{"name__icontains": "an"})
	require.NoError(t, err)
	assert.Equal(t, OpILike, predicate.Op)
}

func TestCompileFilterPatternNeedsTextColumn(t *testing.T) {
	f := newFixtures(t)

	_, _, err := CompileFilter(f.registry, &f.user.ModelMeta, F{"age__like": "%1%"})
	var mismatch *TypeMismatchError
	require.ErrorAs(t, err, &mismatch)

	_, _, err = CompileFilter(f.registry, &f.user.ModelMeta, F{"name__like": 42})
	require.ErrorAs(t, err, &mismatch)
}

func TestCompileFilterRelatedPath(t *testing.T) {
	f := newFixtures(t)

	predicate, paths, err := CompileFilter(f.registry, &f.user.ModelMeta, F{"posts.title__like": "%go%"})
	require.NoError(t, err)
	assert.Equal(t, "Posts", predicate.Column.PathKey)
	require.Len(t, paths, 1)
	require.Len(t, paths[0].Hops, 1)
}

func TestCompileFilterIsDeterministic(t *testing.T) {
	f := newFixtures(t)

	spec := F{"name": "Dan", "age__gte": 18, "email__isnull": nil}
	first, _, err := CompileFilter(f.registry, &f.user.ModelMeta, spec)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		next, _, err := CompileFilter(f.registry, &f.user.ModelMeta, spec)
		require.NoError(t, err)

		var a, b strings.Builder
		first.describe(&a)
		next.describe(&b)
		assert.Equal(t, a.String(), b.String())
	}
}
