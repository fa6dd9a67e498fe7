package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSort(t *testing.T) {
	fields := ParseSort("-age", "name", "+email")
	require.Len(t, fields, 3)
	assert.Equal(t, SortField{Path: "age", Desc: true}, fields[0])
	assert.Equal(t, SortField{Path: "name", Desc: false}, fields[1])
	assert.Equal(t, SortField{Path: "email", Desc: false}, fields[2])
}

func TestCompileSort(t *testing.T) {
	f := newFixtures(t)

	exprs, paths, err := CompileSort(f.registry, &f.user.ModelMeta, ParseSort("-age", "name"))
	require.NoError(t, err)
	require.Len(t, exprs, 2)
	assert.True(t, exprs[0].Desc)
	assert.Equal(t, "age", exprs[0].Column.Column.DatabaseColumnName)
	assert.False(t, exprs[1].Desc)
	assert.Empty(t, paths[0].Hops)
}

func TestCompileSortRelatedPath(t *testing.T) {
	f := newFixtures(t)

	exprs, paths, err := CompileSort(f.registry, &f.post.ModelMeta, ParseSort("-author.name"))
	require.NoError(t, err)
	require.Len(t, exprs, 1)
	assert.Equal(t, "Author", exprs[0].Column.PathKey)
	require.Len(t, paths, 1)
}

func TestCompileSortUnknownPath(t *testing.T) {
	f := newFixtures(t)

	_, _, err := CompileSort(f.registry, &f.user.ModelMeta, ParseSort("height"))
	var unknown *UnknownAttributeError
	require.ErrorAs(t, err, &unknown)
}

func TestCompileSortRejectsBareRelation(t *testing.T) {
	f := newFixtures(t)

	_, _, err := CompileSort(f.registry, &f.user.ModelMeta, ParseSort("posts"))
	var unknown *UnknownAttributeError
	require.ErrorAs(t, err, &unknown)
}
