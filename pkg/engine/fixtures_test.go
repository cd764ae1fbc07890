package engine

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)

func autoID() *Field {
	return &Field{Name: "id", Kind: FieldKindScalar, Type: TypeInt, IsID: true, IsRequired: true, Default: &DefaultSpec{Kind: "autoincrement"}}
}

func str(name string) *Field {
	return &Field{Name: name, Kind: FieldKindScalar, Type: TypeString}
}

func intField(name string) *Field {
	return &Field{Name: name, Kind: FieldKindScalar, Type: TypeInt}
}

func rel(name, target, relation string, list bool) *Field {
	return &Field{Name: name, Kind: FieldKindRelation, Type: target, IsList: list, Relation: &Relation{Name: relation}}
}

func fkRel(name, target, relation, from string, onDelete ReferentialAction) *Field {
	return &Field{
		Name: name, Kind: FieldKindRelation, Type: target,
		Relation: &Relation{Name: relation, FromFields: []string{from}, ToFields: []string{"id"}, OnDelete: onDelete},
	}
}

// testSchema is a small blog: users own posts (SetNull) and one profile
// (Cascade), posts own comments (Cascade) and share tags (many-to-many),
// memberships use a composite primary key.
func testSchema() *Schema {
	return &Schema{
		Entities: []*Entity{
			{
				Name: "User",
				Fields: []*Field{
					autoID(),
					{Name: "email", Kind: FieldKindScalar, Type: TypeString, IsUnique: true, IsRequired: true},
					str("name"),
					intField("age"),
					{Name: "role", Kind: FieldKindEnum, Type: "Role", Default: &DefaultSpec{Value: "USER"}},
					{Name: "createdAt", Kind: FieldKindScalar, Type: TypeDateTime, Default: &DefaultSpec{Kind: "now"}},
					{Name: "updatedAt", Kind: FieldKindScalar, Type: TypeDateTime, IsUpdatedAt: true},
					rel("posts", "Post", "UserPosts", true),
					rel("profile", "Profile", "UserProfile", false),
				},
			},
			{
				Name: "Post",
				Fields: []*Field{
					autoID(),
					str("title"),
					{Name: "published", Kind: FieldKindScalar, Type: TypeBoolean, Default: &DefaultSpec{Value: false}},
					{Name: "views", Kind: FieldKindScalar, Type: TypeInt, Default: &DefaultSpec{Value: 0}},
					{Name: "meta", Kind: FieldKindScalar, Type: TypeJSON},
					{Name: "labels", Kind: FieldKindScalar, Type: TypeString, IsList: true},
					intField("authorId"),
					fkRel("author", "User", "UserPosts", "authorId", ActionSetNull),
					rel("tags", "Tag", "PostTags", true),
					rel("comments", "Comment", "PostComments", true),
				},
			},
			{
				Name: "Profile",
				Fields: []*Field{
					autoID(),
					str("bio"),
					{Name: "userId", Kind: FieldKindScalar, Type: TypeInt, IsUnique: true},
					fkRel("user", "User", "UserProfile", "userId", ActionCascade),
				},
			},
			{
				Name: "Comment",
				Fields: []*Field{
					autoID(),
					str("text"),
					intField("postId"),
					fkRel("post", "Post", "PostComments", "postId", ActionCascade),
				},
			},
			{
				Name: "Tag",
				Fields: []*Field{
					autoID(),
					{Name: "name", Kind: FieldKindScalar, Type: TypeString, IsUnique: true},
					rel("posts", "Post", "PostTags", true),
				},
			},
			{
				Name: "Membership",
				Fields: []*Field{
					str("orgId"),
					intField("userId"),
					str("role"),
				},
				PrimaryKey: &CompositeKey{Fields: []string{"orgId", "userId"}},
			},
		},
	}
}

func newTestEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	opts = append([]Option{WithClock(NewFixedClock(testNow))}, opts...)
	eng, err := NewEngine(testSchema(), opts...)
	require.NoError(t, err)
	return eng
}

// seedUsers creates one user per (name, age) pair and returns them
func seedUsers(t *testing.T, eng *Engine, people ...any) []Record {
	t.Helper()
	var out []Record
	for i := 0; i+1 < len(people); i += 2 {
		name := people[i].(string)
		rec, err := eng.Model("User").Create(M{"data": M{
			"email": fmt.Sprintf("%s%d@mail.com", strings.ToLower(name), i/2),
			"name":  name,
			"age":   people[i+1],
		}})
		require.NoError(t, err)
		out = append(out, rec)
	}
	return out
}

func ids(recs []Record) []any {
	out := make([]any, len(recs))
	for i, r := range recs {
		out[i] = r["id"]
	}
	return out
}
