package core

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type User struct {
	ID    int64   `db:"id"`
	Name  string  `db:"name"`
	Age   int     `db:"age"`
	Email *string `db:"email"`
	Posts []*Post `db:"-"`
	Tags  []Tag   `db:"-"`
}

type Post struct {
	ID       int64      `db:"id"`
	UserID   int64      `db:"user_id"`
	Title    string     `db:"title"`
	Author   *User      `db:"-"`
	Comments []*Comment `db:"-"`
}

type Comment struct {
	ID     int64  `db:"id"`
	PostID int64  `db:"post_id"`
	Body   string `db:"body"`
}

type Tag struct {
	ID    int64  `db:"id"`
	Label string `db:"label"`
}

type fixtures struct {
	registry *Registry
	user     *SchemaMeta[User]
	post     *SchemaMeta[Post]
	comment  *SchemaMeta[Comment]
	tag      *SchemaMeta[Tag]
}

func newFixtures(t *testing.T) *fixtures {
	t.Helper()

	user := Schema[User](Table[User]("users"))
	post := Schema[Post](Table[Post]("posts"))
	comment := Schema[Comment](Table[Comment]("comments"))
	tag := Schema[Tag](Table[Tag]("tags"))

	AddRelation(user, RelationSpec[User]{
		Kind:       OneToMany,
		Field:      func(u *User) any { return &u.Posts },
		Target:     "Post",
		LocalKey:   "ID",
		ForeignKey: "UserID",
	})
	AddRelation(user, RelationSpec[User]{
		Kind:           ManyToMany,
		Field:          func(u *User) any { return &u.Tags },
		Target:         "Tag",
		LocalKey:       "ID",
		ForeignKey:     "ID",
		JoinTable:      "user_tags",
		JoinLocalKey:   "user_id",
		JoinForeignKey: "tag_id",
	})
	AddRelation(post, RelationSpec[Post]{
		Kind:       OneToOne,
		Field:      func(p *Post) any { return &p.Author },
		Target:     "User",
		LocalKey:   "UserID",
		ForeignKey: "ID",
	})
	AddRelation(post, RelationSpec[Post]{
		Kind:       OneToMany,
		Field:      func(p *Post) any { return &p.Comments },
		Target:     "Comment",
		LocalKey:   "ID",
		ForeignKey: "PostID",
	})

	registry := NewRegistry()
	require.NoError(t, Register(registry, user))
	require.NoError(t, Register(registry, post))
	require.NoError(t, Register(registry, comment))
	require.NoError(t, Register(registry, tag))
	require.NoError(t, registry.Freeze())

	return &fixtures{registry: registry, user: user, post: post, comment: comment, tag: tag}
}
