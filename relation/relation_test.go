package relation_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shipq/pgq/query"
	"github.com/shipq/pgq/query/compile"
	"github.com/shipq/pgq/relation"
)

func compileText(t *testing.T, b query.Builder) (string, []any) {
	t.Helper()
	res, err := compile.Compile(b.Query())
	require.NoError(t, err)
	return res.Text, res.Values
}

func TestBelongsTo_SelectRelation(t *testing.T) {
	posts := query.From("posts").
		Relation("author", relation.BelongsTo{To: query.From("users").Query(), ForeignKey: "author_id"})

	text, values := compileText(t, posts.SelectRelation("author", nil))
	assert.Equal(t, `SELECT (SELECT row_to_json("t".*) FROM (SELECT * FROM "users" AS "author" `+
		`WHERE "author"."id" = "posts"."author_id" LIMIT $1) AS "t") AS "author" FROM "posts"`, text)
	assert.Equal(t, []any{1}, values)
}

func TestBelongsTo_SelectRelationLocked(t *testing.T) {
	posts := query.From("posts").
		Relation("author", relation.BelongsTo{To: query.From("users").Query(), ForeignKey: "author_id"})

	text, values := compileText(t, posts.SelectRelation("author", func(q *query.Query) *query.Query {
		return query.Wrap(q).Limit(5).For(query.ForShare, query.LockWaitDefault).Query()
	}))
	assert.Equal(t, `SELECT (SELECT row_to_json("t".*) FROM (SELECT * FROM "users" AS "author" `+
		`WHERE "author"."id" = "posts"."author_id" LIMIT $1 FOR SHARE) AS "t") AS "author" FROM "posts"`, text)
	assert.Equal(t, []any{1}, values)
}

func TestHasMany_SelectRelation(t *testing.T) {
	users := query.From("users").
		Relation("posts", relation.HasMany{To: query.From("posts").Query()})

	text, _ := compileText(t, users.SelectRelation("posts", nil))
	assert.Equal(t, `SELECT (SELECT COALESCE(json_agg(row_to_json("t".*)), '[]') FROM `+
		`(SELECT * FROM "posts" WHERE "posts"."user_id" = "users"."id") AS "t") AS "posts" FROM "users"`, text)
}

func TestHasMany_SelectRelationBuild(t *testing.T) {
	users := query.From("users").
		Relation("posts", relation.HasMany{To: query.From("posts").Query()})

	text, values := compileText(t, users.SelectRelation("posts", func(q *query.Query) *query.Query {
		return query.Wrap(q).Where(query.Cols{"published": true}).Query()
	}))
	assert.Equal(t, `SELECT (SELECT COALESCE(json_agg(row_to_json("t".*)), '[]') FROM `+
		`(SELECT * FROM "posts" WHERE "posts"."user_id" = "users"."id" AND "posts"."published" = $1) AS "t") `+
		`AS "posts" FROM "users"`, text)
	assert.Equal(t, []any{true}, values)
}

func TestHasAndBelongsToMany_Exists(t *testing.T) {
	users := query.From("users").
		Relation("roles", relation.HasAndBelongsToMany{To: query.From("roles").Query()})

	text, _ := compileText(t, users.WhereExists("roles"))
	assert.Equal(t, `SELECT * FROM "users" WHERE EXISTS (SELECT 1 FROM "roles" WHERE EXISTS `+
		`(SELECT 1 FROM "roles_users" WHERE "roles_users"."user_id" = "users"."id" `+
		`AND "roles_users"."role_id" = "roles"."id" LIMIT 1) LIMIT 1)`, text)
}

func TestThrough_Exists(t *testing.T) {
	posts := query.From("posts").Query()
	comments := query.From("comments").Query()
	users := query.From("users").Relation("comments", relation.Through{
		Through: relation.HasMany{To: posts},
		Source:  relation.HasMany{To: comments},
	})

	text, _ := compileText(t, users.WhereExists("comments"))
	assert.Equal(t, `SELECT * FROM "users" WHERE EXISTS (SELECT 1 FROM "comments" WHERE EXISTS `+
		`(SELECT 1 FROM "posts" WHERE "posts"."user_id" = "users"."id" `+
		`AND "comments"."post_id" = "posts"."id" LIMIT 1) LIMIT 1)`, text)

	rel := relation.Through{Through: relation.HasMany{To: posts}, Source: relation.BelongsTo{To: comments}}
	assert.True(t, rel.Many())
	assert.Equal(t, comments, rel.Target())
}

func TestRelated(t *testing.T) {
	books := query.From("books").
		Relation("author", relation.BelongsTo{To: query.From("authors").Query(), ForeignKey: "authorId"}).
		Where(query.Cols{"id": 1})

	authors, ok := books.Related("author")
	require.True(t, ok)

	text, values := compileText(t, authors)
	assert.Equal(t, `SELECT * FROM "authors" WHERE EXISTS (SELECT 1 FROM "books" `+
		`WHERE "books"."id" = $1 AND "authors"."id" = "books"."authorId" LIMIT 1)`, text)
	assert.Equal(t, []any{1}, values)

	_, ok = books.Related("publisher")
	assert.False(t, ok)
}

func TestRelated_SelfReference(t *testing.T) {
	users := query.From("users").
		Relation("manager", relation.BelongsTo{To: query.From("users").Query(), ForeignKey: "manager_id"}).
		Where(query.Cols{"id": 5})

	managers, ok := users.Related("manager")
	require.True(t, ok)

	text, _ := compileText(t, managers)
	assert.Equal(t, `SELECT * FROM "users" AS "manager" WHERE EXISTS (SELECT 1 FROM "users" `+
		`WHERE "users"."id" = $1 AND "manager"."id" = "users"."manager_id" LIMIT 1)`, text)
}

func TestJoinRelation(t *testing.T) {
	posts := query.From("posts").
		Relation("author", relation.BelongsTo{To: query.From("users").Query(), ForeignKey: "author_id"})

	text, _ := compileText(t, posts.Join("author").Select("posts.title", "author.name"))
	assert.Equal(t, `SELECT "posts"."title", "author"."name" FROM "posts" `+
		`JOIN "users" AS "author" ON "author"."id" = "posts"."author_id"`, text)
}

func TestDefaultKeys(t *testing.T) {
	users := query.Define("users", query.Column{Name: "uid", PrimaryKey: true})
	posts := query.From("posts").Relation("user", relation.BelongsTo{To: users.Query()})

	text, _ := compileText(t, posts.WhereExists("user"))
	assert.Equal(t, `SELECT * FROM "posts" WHERE EXISTS (SELECT 1 FROM "users" `+
		`WHERE "users"."uid" = "posts"."user_id" LIMIT 1)`, text)
}

func TestUnknownRelation(t *testing.T) {
	_, err := compile.Compile(query.From("posts").SelectRelation("author", nil).Query())
	require.ErrorIs(t, err, compile.ErrUnknownRelation)
}
