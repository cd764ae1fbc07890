package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindMany_Pagination(t *testing.T) {
	eng := newTestEngine(t)
	seedUsers(t, eng, "A", 1, "B", 2, "C", 3, "D", 4, "E", 5)
	users := eng.Model("User")

	tests := []struct {
		name string
		args M
		want []any
	}{
		{"skip 0 returns all", M{"skip": 0}, []any{1, 2, 3, 4, 5}},
		{"take 0 returns none", M{"take": 0}, []any{}},
		{"skip beyond length", M{"skip": 10}, []any{}},
		{"skip and take", M{"skip": 1, "take": 2}, []any{2, 3}},
		{"take past end", M{"skip": 3, "take": 10}, []any{4, 5}},
		{"negative take from end", M{"take": -2}, []any{4, 5}},
		{"negative take with skip", M{"take": -2, "skip": 1}, []any{3, 4}},
		{"cursor", M{"cursor": M{"id": 3}, "take": 2}, []any{3, 4}},
		{"cursor and skip", M{"cursor": M{"id": 3}, "skip": 1}, []any{4, 5}},
		{"cursor backwards", M{"cursor": M{"id": 3}, "take": -2}, []any{2, 3}},
		{"missing cursor", M{"cursor": M{"id": 99}}, []any{}},
		{"ordered then paginated", M{"orderBy": M{"age": "desc"}, "take": 2}, []any{5, 4}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recs, err := users.FindMany(tt.args)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(recs))
		})
	}
}

func TestFindMany_Distinct(t *testing.T) {
	eng := newTestEngine(t)
	seedUsers(t, eng, "John", 25, "Jane", 30, "John", 35, "Jane", 25)

	recs, err := eng.Model("User").FindMany(M{"distinct": []any{"name"}})
	require.NoError(t, err)
	assert.Equal(t, []any{1, 2}, ids(recs))

	recs, err = eng.Model("User").FindMany(M{"distinct": "age"})
	require.NoError(t, err)
	assert.Equal(t, []any{1, 2, 3}, ids(recs))
}

func TestFindMany_OrderBy(t *testing.T) {
	eng := newTestEngine(t)
	seedUsers(t, eng, "B", 30, "A", nil, "C", 30, "A", 20)
	users := eng.Model("User")

	tests := []struct {
		name    string
		orderBy any
		want    []any
	}{
		{"asc nulls last", M{"age": "asc"}, []any{4, 1, 3, 2}},
		{"desc nulls first", M{"age": "desc"}, []any{2, 1, 3, 4}},
		{"explicit nulls", M{"age": M{"sort": "asc", "nulls": "first"}}, []any{2, 4, 1, 3}},
		{"multiple keys", []any{M{"name": "asc"}, M{"age": "desc"}}, []any{2, 4, 1, 3}},
		{"stable on ties", M{"age": "asc"}, []any{4, 1, 3, 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recs, err := users.FindMany(M{"orderBy": tt.orderBy})
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(recs))
		})
	}
}

func TestFindMany_OrderByValidation(t *testing.T) {
	eng := newTestEngine(t)
	users := eng.Model("User")

	tests := []struct {
		name    string
		orderBy any
		code    string
	}{
		{"two keys in one object", M{"name": "asc", "age": "desc"}, "VALIDATION_ERROR"},
		{"bad direction", M{"name": "up"}, "VALIDATION_ERROR"},
		{"unknown field", M{"height": "asc"}, "UNKNOWN_FIELD"},
		{"list relation without _count", M{"posts": "asc"}, "VALIDATION_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := users.FindMany(M{"orderBy": tt.orderBy})
			require.Error(t, err)
			assert.Equal(t, tt.code, ErrorCode(err))
		})
	}
}

func TestFindMany_OrderByRelation(t *testing.T) {
	eng := newTestEngine(t)
	users := seedUsers(t, eng, "Zed", 1, "Amy", 2)
	posts := eng.Model("Post")
	for _, p := range []M{
		{"title": "z1", "authorId": users[0]["id"]},
		{"title": "z2", "authorId": users[0]["id"]},
		{"title": "a1", "authorId": users[1]["id"]},
		{"title": "orphan"},
	} {
		_, err := posts.Create(M{"data": p})
		require.NoError(t, err)
	}

	recs, err := eng.Model("User").FindMany(M{"orderBy": M{"posts": M{"_count": "desc"}}})
	require.NoError(t, err)
	assert.Equal(t, []any{1, 2}, ids(recs))

	recs, err = posts.FindMany(M{"orderBy": M{"author": M{"name": "asc"}}})
	require.NoError(t, err)
	var titles []any
	for _, r := range recs {
		titles = append(titles, r["title"])
	}
	assert.Equal(t, []any{"a1", "z1", "z2", "orphan"}, titles)
}

func TestFindMany_Projection(t *testing.T) {
	eng := newTestEngine(t)
	users := seedUsers(t, eng, "Ana", 25)
	posts := eng.Model("Post")
	for _, title := range []string{"one", "two"} {
		_, err := posts.Create(M{"data": M{"title": title, "published": title == "one", "authorId": users[0]["id"]}})
		require.NoError(t, err)
	}

	t.Run("select", func(t *testing.T) {
		rec, err := eng.Model("User").FindFirst(M{"select": M{"name": true, "age": false}})
		require.NoError(t, err)
		assert.Equal(t, Record{"name": "Ana"}, rec)
	})

	t.Run("omit", func(t *testing.T) {
		rec, err := eng.Model("User").FindFirst(M{"omit": M{"email": true}})
		require.NoError(t, err)
		assert.NotContains(t, rec, "email")
		assert.Contains(t, rec, "name")
		assert.NotContains(t, rec, "posts")
	})

	t.Run("include with nested args", func(t *testing.T) {
		rec, err := eng.Model("User").FindFirst(M{"include": M{
			"posts": M{"where": M{"published": true}, "select": M{"title": true}},
		}})
		require.NoError(t, err)
		assert.Equal(t, []Record{{"title": "one"}}, rec["posts"])
	})

	t.Run("include singular", func(t *testing.T) {
		rec, err := posts.FindFirst(M{"include": M{"author": true}})
		require.NoError(t, err)
		author, ok := rec["author"].(Record)
		require.True(t, ok)
		assert.Equal(t, "Ana", author["name"])
	})

	t.Run("missing singular is nil", func(t *testing.T) {
		rec, err := eng.Model("User").FindFirst(M{"include": M{"profile": true}})
		require.NoError(t, err)
		assert.Contains(t, rec, "profile")
		assert.Nil(t, rec["profile"])
	})

	t.Run("_count", func(t *testing.T) {
		rec, err := eng.Model("User").FindFirst(M{"select": M{"_count": M{"select": M{
			"posts": M{"where": M{"published": false}},
		}}}})
		require.NoError(t, err)
		assert.Equal(t, Record{"_count": Record{"posts": 1}}, rec)

		rec, err = eng.Model("User").FindFirst(M{"include": M{"_count": true}})
		require.NoError(t, err)
		assert.Equal(t, Record{"posts": 2}, rec["_count"])
	})

	t.Run("select with include is rejected", func(t *testing.T) {
		_, err := eng.Model("User").FindMany(M{"select": M{"name": true}, "include": M{"posts": true}})
		require.Error(t, err)
		assert.Equal(t, "VALIDATION_ERROR", ErrorCode(err))
	})

	t.Run("results are detached", func(t *testing.T) {
		rec, err := eng.Model("User").FindFirst(M{})
		require.NoError(t, err)
		rec["name"] = "changed"

		again, err := eng.Model("User").FindFirst(M{})
		require.NoError(t, err)
		assert.Equal(t, "Ana", again["name"])
	})
}

func TestFindMany_Idempotent(t *testing.T) {
	eng := newTestEngine(t)
	seedUsers(t, eng, "A", 3, "B", 1, "C", 2)
	args := M{"where": M{"age": M{"gte": 2}}, "orderBy": M{"age": "asc"}}

	first, err := eng.Model("User").FindMany(args)
	require.NoError(t, err)
	second, err := eng.Model("User").FindMany(args)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestFindUniqueAndFirst(t *testing.T) {
	eng := newTestEngine(t)
	seedUsers(t, eng, "A", 1, "B", 2, "C", 3)
	users := eng.Model("User")

	rec, err := users.FindUnique(M{"where": M{"email": "b1@mail.com"}})
	require.NoError(t, err)
	assert.Equal(t, "B", rec["name"])

	rec, err = users.FindUnique(M{"where": M{"id": 42}})
	require.NoError(t, err)
	assert.Nil(t, rec)

	_, err = users.FindUnique(M{})
	assert.Equal(t, "VALIDATION_ERROR", ErrorCode(err))

	_, err = users.FindUniqueOrThrow(M{"where": M{"id": 42}})
	require.Error(t, err)
	assert.True(t, IsNotFound(err))

	rec, err = users.FindFirst(M{"orderBy": M{"age": "desc"}})
	require.NoError(t, err)
	assert.Equal(t, "C", rec["name"])

	rec, err = users.FindFirst(M{"take": -1})
	require.NoError(t, err)
	assert.Equal(t, "C", rec["name"])

	_, err = users.FindFirstOrThrow(M{"where": M{"name": "Z"}})
	require.Error(t, err)
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, CauseNoRecordFound, nf.Cause)

	n, err := users.Count(M{"where": M{"age": M{"gt": 1}}})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
