package core

import (
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLikeEscape(t *testing.T) {
	assert.Equal(t, `50\%`, likeEscape("50%"))
	assert.Equal(t, `a\_b`, likeEscape("a_b"))
	assert.Equal(t, `c:\\dir`, likeEscape(`c:\dir`))
	assert.Equal(t, "plain", likeEscape("plain"))
}

func TestFieldNameFromSelector(t *testing.T) {
	assert.Equal(t, "Name", fieldNameFromSelectorFor[User](func(u *User) any { return &u.Name }))
	assert.Equal(t, "Posts", fieldNameFromSelectorFor[User](func(u *User) any { return &u.Posts }))

	assert.Panics(t, func() {
		fieldNameFromSelectorFor[User]("not a function")
	})
	assert.Panics(t, func() {
		fieldNameFromSelectorFor[User](func(u *User) any { return u.Name })
	})
}

func TestPopulateStructConversions(t *testing.T) {
	user := Schema[User](Table[User]("users"))

	instance := User{}
	email := "a@b.c"
	populateStruct(&user.ModelMeta, reflect.ValueOf(&instance).Elem(), Row{
		"id":    int64(7),
		"name":  "Ann",
		"age":   int64(30), // convertible into int
		"email": email,     // value into pointer field
	})

	assert.Equal(t, int64(7), instance.ID)
	assert.Equal(t, "Ann", instance.Name)
	assert.Equal(t, 30, instance.Age)
	require.NotNil(t, instance.Email)
	assert.Equal(t, "a@b.c", *instance.Email)
}

func TestPopulateStructNilClearsPointerField(t *testing.T) {
	user := Schema[User](Table[User]("users"))

	instance := User{Email: new(string)}
	populateStruct(&user.ModelMeta, reflect.ValueOf(&instance).Elem(), Row{
		"id":    int64(1),
		"email": nil,
	})
	assert.Nil(t, instance.Email)
}

func TestStructRowRoundTrip(t *testing.T) {
	user := Schema[User](Table[User]("users"))

	email := "a@b.c"
	row := structRow(&user.ModelMeta, &User{ID: 7, Name: "Ann", Age: 30, Email: &email})
	assert.Equal(t, int64(7), row["id"])
	assert.Equal(t, "Ann", row["name"])
	assert.Equal(t, 30, row["age"])
	assert.Equal(t, "a@b.c", row["email"])

	row = structRow(&user.ModelMeta, &User{})
	assert.Nil(t, row["email"])
}

func TestIsZeroValue(t *testing.T) {
	assert.True(t, isZeroValue(nil))
	assert.True(t, isZeroValue(int64(0)))
	assert.True(t, isZeroValue(""))
	assert.True(t, isZeroValue(time.Time{}))
	assert.False(t, isZeroValue(int64(1)))
	assert.False(t, isZeroValue("x"))
}

func TestKeyOfNormalizesNumericWidths(t *testing.T) {
	assert.Equal(t, keyOf(int32(7)), keyOf(int64(7)))
	assert.Equal(t, keyOf(int(7)), keyOf(int64(7)))
	assert.Equal(t, keyOf(uint8(7)), keyOf(uint64(7)))
	assert.Equal(t, keyOf(float32(1)), keyOf(float64(1)))
	assert.NotEqual(t, keyOf(int64(7)), keyOf(int64(8)))
	assert.Nil(t, keyOf(nil))

	id := int64(9)
	assert.Equal(t, keyOf(id), keyOf(&id))
	assert.Equal(t, "abc", keyOf([]byte("abc")))
}
