package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryBuilder_Args(t *testing.T) {
	eng := newTestEngine(t)

	args, err := eng.Query("User").
		Filter("age", "gte", 18).
		Filter("posts.title", "like", "%go%").
		Include("posts.comments").
		Include("profile").
		OrderBy("name", "asc").
		Limit(10).
		Offset(5).
		Args()
	require.NoError(t, err)

	assert.Equal(t, M{
		"where": M{"AND": []any{
			M{"age": M{"gte": 18}},
			M{"posts": M{"some": M{"title": M{"contains": "go"}}}},
		}},
		"include": M{
			"posts":   M{"include": M{"comments": true}},
			"profile": true,
		},
		"orderBy": []any{M{"name": "asc"}},
		"take":    10,
		"skip":    5,
	}, args)
}

func TestQueryBuilder_SingleClause(t *testing.T) {
	eng := newTestEngine(t)

	args, err := eng.Query("Post").Filter("author.email", "eq", "a@mail.com").Args()
	require.NoError(t, err)
	assert.Equal(t, M{"where": M{"author": M{"is": M{"email": M{"equals": "a@mail.com"}}}}}, args)

	args, err = eng.Query("Post").Args()
	require.NoError(t, err)
	assert.Empty(t, args)
}

func TestLikeToFilter(t *testing.T) {
	tests := []struct {
		pattern string
		op      string
		operand any
		wantErr bool
	}{
		{"%go%", "contains", "go", false},
		{"go%", "startsWith", "go", false},
		{"%go", "endsWith", "go", false},
		{"go", "equals", "go", false},
		{"g%o", "", nil, true},
		{"g_o", "", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			op, operand, err := likeToFilter(tt.pattern)
			if tt.wantErr {
				assert.Equal(t, "VALIDATION_ERROR", ErrorCode(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.op, op)
			assert.Equal(t, tt.operand, operand)
		})
	}
}

func TestQueryBuilder_Errors(t *testing.T) {
	eng := newTestEngine(t)

	tests := []struct {
		name string
		qb   *QueryBuilder
		code string
	}{
		{"unknown entity", eng.Query("Order"), "UNKNOWN_ENTITY"},
		{"unknown field", eng.Query("User").Filter("nick", "eq", "x"), "UNKNOWN_FIELD"},
		{"path through scalar", eng.Query("User").Filter("name.first", "eq", "x"), "VALIDATION_ERROR"},
		{"unsupported operator", eng.Query("User").Filter("age", "between", 1), "VALIDATION_ERROR"},
		{"like needs a string", eng.Query("User").Filter("name", "like", 3), "VALIDATION_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.qb.Args()
			require.Error(t, err)
			assert.Equal(t, tt.code, ErrorCode(err))
		})
	}
}

func TestQueryBuilder_Execute(t *testing.T) {
	eng := newTestEngine(t)
	users := seedUsers(t, eng, "Ana", 25, "Bob", 30, "Carla", 17)
	_, err := eng.Model("Post").Create(M{"data": M{"title": "learning go", "authorId": users[1]["id"]}})
	require.NoError(t, err)

	recs, err := eng.Query("User").
		Filter("age", "gte", 18).
		Where(M{"name": M{"not": "Ana"}}).
		Include("posts").
		Execute(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "Bob", recs[0]["name"])
	assert.Len(t, recs[0]["posts"], 1)

	recs, err = eng.Query("User").Filter("posts.title", "like", "%go").OrderBy("id", "desc").Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []any{2}, ids(recs))

	recs, err = eng.Query("User").OrderBy("age", "desc").Offset(1).Limit(1).Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []any{1}, ids(recs))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = eng.Query("User").Execute(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSplitPath(t *testing.T) {
	assert.Equal(t, []string{"posts", "comments"}, splitPath("posts.comments"))
	assert.Equal(t, []string{"posts"}, splitPath(".posts."))
	assert.Empty(t, splitPath(""))
}
