package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchemaReflectsColumns(t *testing.T) {
	user := Schema[User](Table[User]("users"))

	assert.Equal(t, "User", user.Name)
	assert.Equal(t, "users", user.Table)
	require.Len(t, user.Columns, 4)

	name := user.Column("name")
	require.NotNil(t, name)
	assert.Equal(t, "Name", name.StructFieldName)
	assert.Equal(t, KindString, name.Kind)
	assert.False(t, name.Nullable)

	email := user.Column("email")
	require.NotNil(t, email)
	assert.True(t, email.Nullable)
	assert.Equal(t, KindString, email.Kind)
}

func TestSchemaAutoPrimaryKey(t *testing.T) {
	user := Schema[User](Table[User]("users"))

	pk := user.PrimaryKey()
	require.NotNil(t, pk)
	assert.Equal(t, "ID", pk.StructFieldName)
	assert.True(t, pk.IsPrimaryKey)
}

func TestSchemaOverrideField(t *testing.T) {
	type Account struct {
		Code string `db:"code"`
		Name string `db:"name"`
	}

	account := Schema[Account](
		Table[Account]("accounts"),
		OverrideField(func(a *Account) *string { return &a.Code }, PrimaryKey()),
		OverrideField(func(a *Account) *string { return &a.Name }, Unique(), Required()),
	)

	pk := account.PrimaryKey()
	require.NotNil(t, pk)
	assert.Equal(t, "Code", pk.StructFieldName)

	name := account.Column("name")
	assert.True(t, name.IsUnique)
	assert.True(t, name.IsRequired)
}

func TestSchemaSkipsIgnoredFields(t *testing.T) {
	post := Schema[Post](Table[Post]("posts"))

	assert.Nil(t, post.Column("Author"))
	assert.Nil(t, post.Column("Comments"))
	require.Len(t, post.Columns, 3)
}

func TestColumnLookupIsCaseInsensitive(t *testing.T) {
	user := Schema[User](Table[User]("users"))

	assert.Same(t, user.Column("name"), user.Column("Name"))
	assert.Nil(t, user.Column("nickname"))
}

func TestAddRelationResolvesFieldName(t *testing.T) {
	f := newFixtures(t)

	posts := f.user.Relation("Posts")
	require.NotNil(t, posts)
	assert.Equal(t, OneToMany, posts.Kind)
	assert.Equal(t, "Post", posts.Target)
	assert.True(t, posts.Kind.ToMany())

	author := f.post.Relation("author")
	require.NotNil(t, author)
	assert.Equal(t, OneToOne, author.Kind)
	assert.False(t, author.Kind.ToMany())
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, Register(registry, Schema[User](Table[User]("users"))))

	err := Register(registry, Schema[User](Table[User]("users")))
	assert.Error(t, err)
}

func TestRegisterAfterFreezeFails(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, Register(registry, Schema[User](Table[User]("users"))))
	require.NoError(t, registry.Freeze())

	assert.Error(t, Register(registry, Schema[Tag](Table[Tag]("tags"))))
}

func TestFreezeValidatesRelationTargets(t *testing.T) {
	user := Schema[User](Table[User]("users"))
	AddRelation(user, RelationSpec[User]{
		Kind:       OneToMany,
		Field:      func(u *User) any { return &u.Posts },
		Target:     "Post", // never registered
		LocalKey:   "ID",
		ForeignKey: "UserID",
	})

	registry := NewRegistry()
	require.NoError(t, Register(registry, user))
	assert.Error(t, registry.Freeze())
}

func TestFreezeValidatesManyToManyJoinKeys(t *testing.T) {
	user := Schema[User](Table[User]("users"))
	tag := Schema[Tag](Table[Tag]("tags"))
	AddRelation(user, RelationSpec[User]{
		Kind:       ManyToMany,
		Field:      func(u *User) any { return &u.Tags },
		Target:     "Tag",
		LocalKey:   "ID",
		ForeignKey: "ID",
		// join table and join keys missing
	})

	registry := NewRegistry()
	require.NoError(t, Register(registry, user))
	require.NoError(t, Register(registry, tag))
	assert.Error(t, registry.Freeze())
}
