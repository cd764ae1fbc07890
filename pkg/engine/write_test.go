package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreate_Defaults(t *testing.T) {
	eng := newTestEngine(t)

	user, err := eng.Model("User").Create(M{"data": M{"email": "ana@mail.com", "name": "Ana"}})
	require.NoError(t, err)

	assert.Equal(t, 1, user["id"])
	assert.Equal(t, "USER", user["role"])
	assert.Equal(t, testNow, user["createdAt"])
	assert.Equal(t, testNow, user["updatedAt"])
	assert.Nil(t, user["age"])
	assert.Contains(t, user, "age")

	post, err := eng.Model("Post").Create(M{"data": M{"title": "hello"}})
	require.NoError(t, err)
	assert.Equal(t, false, post["published"])
	assert.Equal(t, 0, post["views"])
}

func TestCreate_ExplicitNullUsesDefault(t *testing.T) {
	eng := newTestEngine(t)

	user, err := eng.Model("User").Create(M{"data": M{"email": "ana@mail.com", "role": nil}})
	require.NoError(t, err)
	assert.Equal(t, "USER", user["role"])
}

func TestCreate_AutoincrementContinuesFromSeed(t *testing.T) {
	eng := newTestEngine(t, WithSeed(map[string][]Record{
		"User": {{"id": 7, "email": "seed@mail.com"}},
	}))

	user, err := eng.Model("User").Create(M{"data": M{"email": "new@mail.com"}})
	require.NoError(t, err)
	assert.Equal(t, 8, user["id"])
}

func TestCreate_Validation(t *testing.T) {
	eng := newTestEngine(t)
	users := eng.Model("User")

	_, err := users.Create(M{"data": M{"email": "a@mail.com", "nickname": "x"}})
	require.Error(t, err)
	assert.Equal(t, "UNKNOWN_FIELD", ErrorCode(err))

	_, err = users.Create(M{"data": M{"email": "a@mail.com", "createdAt": "yesterday"}})
	require.Error(t, err)
	assert.Equal(t, "VALIDATION_ERROR", ErrorCode(err))

	user, err := users.Create(M{"data": M{"email": "a@mail.com", "createdAt": "2024-03-01T10:00:00Z"}})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), user["createdAt"])
}

func TestUniqueConstraints(t *testing.T) {
	eng := newTestEngine(t)
	users := eng.Model("User")
	seedUsers(t, eng, "Ana", 25, "Bob", 30)

	_, err := users.Create(M{"data": M{"email": "ana0@mail.com"}})
	require.Error(t, err)
	var uc *UniqueConstraintError
	require.ErrorAs(t, err, &uc)
	assert.Equal(t, []string{"email"}, uc.Fields)

	_, err = users.Update(M{"where": M{"id": 2}, "data": M{"email": "ana0@mail.com"}})
	require.Error(t, err)
	assert.True(t, IsUniqueConstraint(err))

	// rewriting a record's own unique value is not a conflict
	_, err = users.Update(M{"where": M{"id": 1}, "data": M{"email": "ana0@mail.com", "age": 26}})
	require.NoError(t, err)

	n, err := users.Count(M{})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestCreateMany_SkipDuplicates(t *testing.T) {
	eng := newTestEngine(t)
	users := eng.Model("User")

	n, err := users.CreateMany(M{
		"data": []any{
			M{"email": "same@mail.com", "name": "first"},
			M{"email": "same@mail.com", "name": "second"},
		},
		"skipDuplicates": true,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	all, err := users.FindMany(M{})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "first", all[0]["name"])
}

func TestCreateMany_FailureRollsBack(t *testing.T) {
	eng := newTestEngine(t)
	users := eng.Model("User")

	_, err := users.CreateMany(M{"data": []any{
		M{"email": "a@mail.com"},
		M{"email": "a@mail.com"},
	}})
	require.Error(t, err)

	n, err := users.Count(M{})
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestCreateManyAndReturn(t *testing.T) {
	eng := newTestEngine(t)

	recs, err := eng.Model("User").CreateManyAndReturn(M{
		"data":   []any{M{"email": "a@mail.com"}, M{"email": "b@mail.com"}},
		"select": M{"email": true},
	})
	require.NoError(t, err)
	assert.Equal(t, []Record{{"email": "a@mail.com"}, {"email": "b@mail.com"}}, recs)
}

func TestUpdate_Operators(t *testing.T) {
	tests := []struct {
		name  string
		start any
		data  any
		want  any
	}{
		{"set", 10, M{"set": 3}, 3},
		{"plain value", 10, 4, 4},
		{"increment", 10, M{"increment": 5}, 15},
		{"decrement", 10, M{"decrement": 15}, -5},
		{"multiply", 10, M{"multiply": 3}, 30},
		{"divide truncates", 7, M{"divide": 2}, 3},
		{"divide negative truncates toward zero", -7, M{"divide": 2}, -3},
		{"fractional operand", 10, M{"multiply": 1.5}, 15},
		{"null stays null", nil, M{"increment": 1}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng := newTestEngine(t)
			seedUsers(t, eng, "Ana", tt.start)

			rec, err := eng.Model("User").Update(M{"where": M{"id": 1}, "data": M{"age": tt.data}})
			require.NoError(t, err)
			assert.Equal(t, tt.want, rec["age"])
		})
	}
}

func TestUpdate_DivideByZero(t *testing.T) {
	eng := newTestEngine(t)
	seedUsers(t, eng, "Ana", 10)

	_, err := eng.Model("User").Update(M{"where": M{"id": 1}, "data": M{"age": M{"divide": 0}}})
	require.Error(t, err)
	assert.Equal(t, "VALIDATION_ERROR", ErrorCode(err))
}

func TestUpdate_PushAndJson(t *testing.T) {
	eng := newTestEngine(t)
	posts := eng.Model("Post")
	_, err := posts.Create(M{"data": M{"title": "p", "labels": []any{"a"}, "meta": M{"v": 1}}})
	require.NoError(t, err)

	rec, err := posts.Update(M{"where": M{"id": 1}, "data": M{
		"labels": M{"push": []any{"b", "c"}},
		"meta":   M{"set": 2},
	}})
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b", "c"}, rec["labels"])
	// Json values are stored literally, never read as operators
	assert.Equal(t, map[string]any{"set": 2}, rec["meta"])
}

func TestUpdate_TouchesUpdatedAt(t *testing.T) {
	clock := NewFixedClock(testNow)
	eng := newTestEngine(t, WithClock(clock))
	seedUsers(t, eng, "Ana", 25)

	clock.Advance(time.Hour)
	rec, err := eng.Model("User").Update(M{"where": M{"id": 1}, "data": M{"name": "Anna"}})
	require.NoError(t, err)
	assert.Equal(t, testNow, rec["createdAt"])
	assert.Equal(t, testNow.Add(time.Hour), rec["updatedAt"])
}

func TestUpdate_NotFound(t *testing.T) {
	eng := newTestEngine(t)

	_, err := eng.Model("User").Update(M{"where": M{"id": 1}, "data": M{"name": "x"}})
	require.Error(t, err)
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, CauseUpdateNotFound, nf.Cause)
}

func TestUpdateMany(t *testing.T) {
	eng := newTestEngine(t)
	seedUsers(t, eng, "A", 10, "B", 20, "C", 30)
	users := eng.Model("User")

	n, err := users.UpdateMany(M{"where": M{"age": M{"gte": 20}}, "data": M{"age": M{"increment": 1}}})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	recs, err := users.UpdateManyAndReturn(M{"data": M{"name": "Z"}, "limit": 1, "select": M{"id": true, "name": true}})
	require.NoError(t, err)
	assert.Equal(t, []Record{{"id": 1, "name": "Z"}}, recs)

	agg, err := users.Aggregate(M{"_sum": M{"age": true}})
	require.NoError(t, err)
	assert.Equal(t, 62, agg["_sum"].(Record)["age"])

	n, err = users.UpdateMany(M{"where": M{"name": "nobody"}, "data": M{"age": 1}})
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestUpsert(t *testing.T) {
	eng := newTestEngine(t)
	users := eng.Model("User")
	args := M{
		"where":  M{"email": "ana@mail.com"},
		"create": M{"email": "ana@mail.com", "name": "Ana", "age": 1},
		"update": M{"age": M{"increment": 1}},
	}

	rec, err := users.Upsert(args)
	require.NoError(t, err)
	assert.Equal(t, 1, rec["age"])

	rec, err = users.Upsert(args)
	require.NoError(t, err)
	assert.Equal(t, 2, rec["age"])

	n, err := users.Count(M{})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestDelete(t *testing.T) {
	eng := newTestEngine(t)
	seedUsers(t, eng, "A", 1, "B", 2, "C", 3)
	users := eng.Model("User")

	rec, err := users.Delete(M{"where": M{"id": 2}, "select": M{"name": true}})
	require.NoError(t, err)
	assert.Equal(t, Record{"name": "B"}, rec)

	_, err = users.Delete(M{"where": M{"id": 2}})
	require.Error(t, err)
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, CauseDeleteNotFound, nf.Cause)

	n, err := users.DeleteMany(M{"where": M{"age": M{"lt": 10}}, "limit": 1})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = users.DeleteMany(M{})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestDelete_SetNullDependents(t *testing.T) {
	eng := newTestEngine(t)
	users := seedUsers(t, eng, "Ana", 25)
	_, err := eng.Model("Post").Create(M{"data": M{"title": "p", "authorId": users[0]["id"]}})
	require.NoError(t, err)

	_, err = eng.Model("User").Delete(M{"where": M{"id": users[0]["id"]}})
	require.NoError(t, err)

	post, err := eng.Model("Post").FindFirst(M{})
	require.NoError(t, err)
	require.NotNil(t, post)
	assert.Nil(t, post["authorId"])
}

func TestDelete_CascadeDependents(t *testing.T) {
	eng := newTestEngine(t)
	users := seedUsers(t, eng, "Ana", 25, "Bob", 30)
	for _, u := range users {
		_, err := eng.Model("Profile").Create(M{"data": M{"bio": "hi", "userId": u["id"]}})
		require.NoError(t, err)
	}
	post, err := eng.Model("Post").Create(M{"data": M{"title": "p"}})
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := eng.Model("Comment").Create(M{"data": M{"text": "c", "postId": post["id"]}})
		require.NoError(t, err)
	}

	_, err = eng.Model("User").Delete(M{"where": M{"id": users[0]["id"]}})
	require.NoError(t, err)
	profiles, err := eng.Model("Profile").FindMany(M{})
	require.NoError(t, err)
	require.Len(t, profiles, 1)
	assert.Equal(t, users[1]["id"], profiles[0]["userId"])

	n, err := eng.Model("Post").DeleteMany(M{})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	comments, err := eng.Model("Comment").Count(M{})
	require.NoError(t, err)
	assert.Equal(t, 0, comments)
}

func bigIntSchema() *Schema {
	return &Schema{Entities: []*Entity{{
		Name: "Account",
		Fields: []*Field{
			{Name: "id", Kind: FieldKindScalar, Type: TypeBigInt, IsID: true, IsRequired: true},
			{Name: "balance", Kind: FieldKindScalar, Type: TypeBigInt},
		},
	}}}
}

func TestBigIntIdentifiersCompareExactly(t *testing.T) {
	eng, err := NewEngine(bigIntSchema())
	require.NoError(t, err)
	accounts := eng.Model("Account")

	_, err = accounts.Create(M{"data": M{"id": int64(9007199254740993), "balance": int64(9007199254740993)}})
	require.NoError(t, err)
	_, err = accounts.Create(M{"data": M{"id": int64(9007199254740992), "balance": int64(2)}})
	require.NoError(t, err)

	rec, err := accounts.FindUnique(M{"where": M{"id": int64(9007199254740992)}})
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, int64(9007199254740992), rec["id"])

	recs, err := accounts.FindMany(M{"orderBy": M{"id": "asc"}})
	require.NoError(t, err)
	assert.Equal(t, []any{int64(9007199254740992), int64(9007199254740993)}, ids(recs))

	agg, err := accounts.Aggregate(M{"_sum": M{"balance": true}, "_max": M{"id": true}})
	require.NoError(t, err)
	assert.Equal(t, int64(9007199254740995), agg["_sum"].(Record)["balance"])
	assert.Equal(t, int64(9007199254740993), agg["_max"].(Record)["id"])

	_, err = accounts.Create(M{"data": M{"id": int64(9007199254740992)}})
	assert.True(t, IsUniqueConstraint(err))
}

func TestDelete_SetNullSkipsDefaults(t *testing.T) {
	schema := &Schema{Entities: []*Entity{
		{Name: "Team", Fields: []*Field{autoID(), rel("players", "Player", "TeamPlayers", true)}},
		{Name: "Player", Fields: []*Field{
			autoID(),
			{Name: "teamId", Kind: FieldKindScalar, Type: TypeInt, Default: &DefaultSpec{Value: 1}},
			{Name: "updatedAt", Kind: FieldKindScalar, Type: TypeDateTime, IsUpdatedAt: true},
			fkRel("team", "Team", "TeamPlayers", "teamId", ActionSetNull),
		}},
	}}
	clock := NewFixedClock(testNow)
	eng, err := NewEngine(schema, WithClock(clock))
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err := eng.Model("Team").Create(M{"data": M{}})
		require.NoError(t, err)
	}
	_, err = eng.Model("Player").Create(M{"data": M{"teamId": 2}})
	require.NoError(t, err)

	clock.Advance(time.Minute)
	_, err = eng.Model("Team").Delete(M{"where": M{"id": 2}})
	require.NoError(t, err)

	player, err := eng.Model("Player").FindFirst(M{})
	require.NoError(t, err)
	require.NotNil(t, player)
	assert.Nil(t, player["teamId"])
	assert.Equal(t, testNow.Add(time.Minute), player["updatedAt"])
}

func TestUpdateMany_FailureRollsBack(t *testing.T) {
	eng := newTestEngine(t)
	seedUsers(t, eng, "Ana", 25, "Bob", 30)

	_, err := eng.Model("User").UpdateMany(M{"data": M{"email": "same@mail.com", "age": M{"increment": 1}}})
	assert.True(t, IsUniqueConstraint(err))

	recs, err := eng.Model("User").FindMany(M{"orderBy": M{"id": "asc"}})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "ana0@mail.com", recs[0]["email"])
	assert.Equal(t, 25, recs[0]["age"])
}

func TestDelete_WithoutReferentialActions(t *testing.T) {
	eng := newTestEngine(t)
	for i := 0; i < 5; i++ {
		_, err := eng.Model("Tag").Create(M{"data": M{"name": string(rune('a' + i))}})
		require.NoError(t, err)
	}
	assert.False(t, eng.hasReferentialActions(eng.schema.GetEntity("Tag")))
	assert.True(t, eng.hasReferentialActions(eng.schema.GetEntity("User")))

	for i := 1; i <= 5; i++ {
		_, err := eng.Model("Tag").Delete(M{"where": M{"id": i}})
		require.NoError(t, err)
	}
	n, err := eng.Model("Tag").Count(M{})
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
