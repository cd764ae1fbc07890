package engine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngine_Models(t *testing.T) {
	eng := newTestEngine(t)

	assert.Equal(t, []string{"Comment", "Membership", "Post", "Profile", "Tag", "User"}, eng.Models())
	assert.Equal(t, "User", eng.Model("User").Name())
	assert.Same(t, eng.Model("User"), eng.Model("User"))
	assert.Same(t, eng.Schema().GetEntity("Post"), eng.Model("Post").Entity())

	_, err := eng.LookupModel("Order")
	require.Error(t, err)
	var ue *UnknownEntityError
	require.ErrorAs(t, err, &ue)
	assert.Contains(t, ue.Available, "User")

	assert.Panics(t, func() { eng.Model("Order") })
}

func TestEngine_Lifecycle(t *testing.T) {
	eng := newTestEngine(t)

	assert.NoError(t, eng.Connect())
	assert.NoError(t, eng.Disconnect())

	err := eng.Use(func() {})
	assert.Equal(t, "NOT_IMPLEMENTED", ErrorCode(err))
	err = eng.On("query", func() {})
	assert.Equal(t, "NOT_IMPLEMENTED", ErrorCode(err))
}

func TestEngine_SeedIsCopied(t *testing.T) {
	seed := map[string][]Record{
		"User": {{"id": 1, "email": "seed@mail.com", "name": "Seed", "age": int64(30)}},
	}
	eng := newTestEngine(t, WithSeed(seed))

	seed["User"][0]["name"] = "mutated"
	rec, err := eng.Model("User").FindUnique(M{"where": M{"id": 1}})
	require.NoError(t, err)
	assert.Equal(t, "Seed", rec["name"])
	// seeds are normalized to canonical scalar types
	assert.Equal(t, 30, rec["age"])
}

func TestEngine_SeedStateWithLinks(t *testing.T) {
	eng := newTestEngine(t, WithSeedState(State{
		Entities: map[string][]Record{
			"Post": {{"id": 1, "title": "p"}},
			"Tag":  {{"id": 1, "name": "go"}, {"id": 2, "name": "db"}},
		},
		Links: map[string][]Link{
			"PostTags": {{A: Record{"id": 1}, B: Record{"id": 2}}},
		},
	}))

	post, err := eng.Model("Post").FindUnique(M{"where": M{"id": 1}, "include": M{"tags": true}})
	require.NoError(t, err)
	tags := post["tags"].([]Record)
	require.Len(t, tags, 1)
	assert.Equal(t, "db", tags[0]["name"])
}

func TestEngine_ErrorAdapter(t *testing.T) {
	errDuplicate := errors.New("duplicate")
	eng := newTestEngine(t, WithErrorAdapter(ErrorAdapterFunc(func(err EngineError) error {
		if err.Code() == "UNIQUE_CONSTRAINT_VIOLATION" {
			return errDuplicate
		}
		return err
	})))
	seedUsers(t, eng, "Ana", 25)

	_, err := eng.Model("User").Create(M{"data": M{"email": "ana0@mail.com"}})
	assert.ErrorIs(t, err, errDuplicate)

	_, err = eng.Model("User").Update(M{"where": M{"id": 9}, "data": M{"name": "x"}})
	assert.True(t, IsNotFound(err))
}

func TestEngine_StrictFieldsOff(t *testing.T) {
	eng := newTestEngine(t, WithValidatorConfig(ValidatorConfig{StrictFields: false}))

	rec, err := eng.Model("User").Create(M{"data": M{"email": "a@mail.com", "nickname": "x"}})
	require.NoError(t, err)
	assert.NotContains(t, rec, "nickname")
}

func TestEngine_MutationFactoryRequired(t *testing.T) {
	eng := newTestEngine(t)

	assert.PanicsWithValue(t,
		"mutation factory not initialized\nCall mutation.Register(engine) after creating the engine",
		func() { eng.Insert("User") },
	)
}

func TestEngine_InstancesAreIsolated(t *testing.T) {
	a := newTestEngine(t)
	b := newTestEngine(t)

	seedUsers(t, a, "Ana", 25, "Bob", 30)
	rec, err := b.Model("User").Create(M{"data": M{"email": "c@mail.com"}})
	require.NoError(t, err)

	// autoincrement counters are per engine
	assert.Equal(t, 1, rec["id"])
	n, err := b.Model("User").Count(M{})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
