package engine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const blogSchemaJSON = `{
  "entities": [
    {
      "name": "User",
      "fields": [
        {"name": "id", "type": "Int", "is_id": true, "default": {"kind": "autoincrement"}},
        {"name": "email", "type": "String", "is_unique": true},
        {"name": "posts", "kind": "relation", "type": "Post", "is_list": true, "relation": {"name": "UserPosts"}}
      ]
    },
    {
      "name": "Post",
      "fields": [
        {"name": "id", "type": "Int", "is_id": true},
        {"name": "authorId", "type": "Int"},
        {"name": "author", "kind": "relation", "type": "User",
         "relation": {"name": "UserPosts", "from_fields": ["authorId"], "to_fields": ["id"], "on_delete": "Cascade"}}
      ]
    }
  ]
}`

func TestParseSchemaJSON(t *testing.T) {
	schema, err := ParseSchemaJSON([]byte(blogSchemaJSON))
	require.NoError(t, err)

	assert.Equal(t, []string{"User", "Post"}, schema.EntityNames())
	user := schema.GetEntity("User")
	require.NotNil(t, user)
	assert.Equal(t, FieldKindScalar, user.Field("email").Kind)
	assert.Equal(t, "autoincrement", user.Field("id").Default.Kind)
	assert.Nil(t, schema.GetEntity("Comment"))

	author := schema.GetEntity("Post").Field("author")
	assert.True(t, author.IsRelation())
	assert.True(t, author.HasForeignKey())
	assert.Equal(t, ActionCascade, author.Relation.OnDelete)

	_, err = ParseSchemaJSON([]byte("{not json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to deserialize schema")
}

func TestLoadSchemaFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.json")
	require.NoError(t, os.WriteFile(path, []byte(blogSchemaJSON), 0644))

	eng, err := NewEngineFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"Post", "User"}, eng.Models())

	_, err = NewEngineFromFile(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schema file not found")
}

func TestSchema_ToJSONRoundTrip(t *testing.T) {
	schema, err := ParseSchemaJSON([]byte(blogSchemaJSON))
	require.NoError(t, err)

	out, err := schema.ToJSON()
	require.NoError(t, err)
	again, err := ParseSchemaJSON([]byte(out))
	require.NoError(t, err)
	assert.Equal(t, schema.EntityNames(), again.EntityNames())
	assert.Equal(t, schema.GetEntity("Post").FieldNames(), again.GetEntity("Post").FieldNames())
}

func TestEntity_Keys(t *testing.T) {
	schema := testSchema()

	assert.Equal(t, []string{"id"}, schema.GetEntity("User").PrimaryKeyFields())
	assert.Equal(t, []string{"orgId", "userId"}, schema.GetEntity("Membership").PrimaryKeyFields())

	keys := schema.GetEntity("Membership").CompositeKeys()
	require.Len(t, keys, 1)
	assert.Equal(t, "orgId_userId", keys[0].KeyName())
	assert.Equal(t, "byOrg", CompositeKey{Name: "byOrg", Fields: []string{"orgId"}}.KeyName())

	uniqueOnly := &Entity{Name: "Tag", Fields: []*Field{{Name: "slug", Type: TypeString, IsUnique: true}}}
	assert.Equal(t, []string{"slug"}, uniqueOnly.PrimaryKeyFields())
}

func TestSchema_BackRelation(t *testing.T) {
	schema := testSchema()
	user := schema.GetEntity("User")
	post := schema.GetEntity("Post")

	target, back := schema.BackRelation(user, user.Field("posts"))
	assert.Equal(t, post, target)
	require.NotNil(t, back)
	assert.Equal(t, "author", back.Name)

	assert.True(t, schema.isManyToMany(post, post.Field("tags")))
	assert.False(t, schema.isManyToMany(user, user.Field("posts")))

	tag := schema.GetEntity("Tag")
	assert.NotEqual(t, schema.linkSides(post, post.Field("tags")), schema.linkSides(tag, tag.Field("posts")))
}

func TestValidateSchema(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Schema)
		code   string
	}{
		{
			"duplicate entity",
			func(s *Schema) { s.Entities = append(s.Entities, &Entity{Name: "User", Fields: []*Field{autoID()}}) },
			"SCHEMA_ERROR",
		},
		{
			"relation to unknown entity",
			func(s *Schema) {
				u := s.GetEntity("User")
				u.Fields = append(u.Fields, rel("groups", "Group", "UserGroups", true))
			},
			"UNKNOWN_ENTITY",
		},
		{
			"relation without name",
			func(s *Schema) { s.GetEntity("User").Field("posts").Relation.Name = "" },
			"SCHEMA_ERROR",
		},
		{
			"unknown foreign key column",
			func(s *Schema) { s.GetEntity("Post").Field("author").Relation.FromFields = []string{"writerId"} },
			"UNKNOWN_FIELD",
		},
		{
			"mismatched key lists",
			func(s *Schema) { s.GetEntity("Post").Field("author").Relation.ToFields = nil },
			"SCHEMA_ERROR",
		},
		{
			"unsupported onDelete",
			func(s *Schema) { s.GetEntity("Post").Field("author").Relation.OnDelete = "Restrict" },
			"SCHEMA_ERROR",
		},
		{
			"unknown field kind",
			func(s *Schema) { s.GetEntity("User").Field("name").Kind = "computed" },
			"SCHEMA_ERROR",
		},
		{
			"no way to identify records",
			func(s *Schema) { s.Entities = append(s.Entities, &Entity{Name: "Log", Fields: []*Field{str("line")}}) },
			"SCHEMA_ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			schema := testSchema()
			schema.index()
			tt.mutate(schema)
			schema.index()

			_, err := NewEngine(schema)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid schema")
			assert.Equal(t, tt.code, ErrorCode(err))
		})
	}
}

func TestNewEngine_NilSchema(t *testing.T) {
	_, err := NewEngine(nil)
	require.Error(t, err)
}

func TestNewEngine_InvalidSeed(t *testing.T) {
	_, err := NewEngine(testSchema(), WithSeed(map[string][]Record{"Ghost": {{"id": 1}}}))
	require.Error(t, err)
	assert.Equal(t, "UNKNOWN_ENTITY", ErrorCode(err))
}
