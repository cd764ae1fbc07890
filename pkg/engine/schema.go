package engine

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
)

// Schema represents the complete data model the engine emulates
type Schema struct {
	Entities []*Entity `json:"entities"`

	byName map[string]*Entity
}

// Entity represents a model (the mock analogue of a table)
type Entity struct {
	Name          string         `json:"name"`
	Fields        []*Field       `json:"fields"`
	PrimaryKey    *CompositeKey  `json:"primary_key,omitempty"`
	UniqueIndexes []CompositeKey `json:"unique_indexes,omitempty"`

	byName map[string]*Field
}

// CompositeKey is a multi-field primary key or unique index
type CompositeKey struct {
	Name   string   `json:"name,omitempty"`
	Fields []string `json:"fields"`
}

// FieldKind tags a field as scalar, enum or relation
type FieldKind string

const (
	FieldKindScalar   FieldKind = "scalar"
	FieldKindEnum     FieldKind = "enum"
	FieldKindRelation FieldKind = "relation"
)

// Scalar type names
const (
	TypeString   = "String"
	TypeInt      = "Int"
	TypeBigInt   = "BigInt"
	TypeFloat    = "Float"
	TypeDecimal  = "Decimal"
	TypeBoolean  = "Boolean"
	TypeDateTime = "DateTime"
	TypeJSON     = "Json"
	TypeBytes    = "Bytes"
)

// Field represents an entity field. For relation fields Type names the
// target entity.
type Field struct {
	Name        string       `json:"name"`
	Kind        FieldKind    `json:"kind"`
	Type        string       `json:"type"`
	IsList      bool         `json:"is_list,omitempty"`
	IsRequired  bool         `json:"is_required,omitempty"`
	IsID        bool         `json:"is_id,omitempty"`
	IsUnique    bool         `json:"is_unique,omitempty"`
	IsUpdatedAt bool         `json:"is_updated_at,omitempty"`
	Default     *DefaultSpec `json:"default,omitempty"`
	Relation    *Relation    `json:"relation,omitempty"`
}

// DefaultSpec describes how a missing value is filled in. A non-empty Kind
// names a generator; otherwise Value is used as a literal.
type DefaultSpec struct {
	Kind  string `json:"kind,omitempty"`
	Value any    `json:"value,omitempty"`
}

// ReferentialAction is applied to dependents when their target is deleted
type ReferentialAction string

const (
	ActionNone    ReferentialAction = ""
	ActionSetNull ReferentialAction = "SetNull"
	ActionCascade ReferentialAction = "Cascade"
)

// Relation describes one side of a relationship. FromFields/ToFields are
// empty on the side without a physical foreign key column.
type Relation struct {
	Name       string            `json:"name"`
	FromFields []string          `json:"from_fields,omitempty"`
	ToFields   []string          `json:"to_fields,omitempty"`
	OnDelete   ReferentialAction `json:"on_delete,omitempty"`
}

// ─────────────────────────────────────────────────────────────
// Parsing
// ─────────────────────────────────────────────────────────────

// ParseSchemaJSON parses a JSON document into a Schema
func ParseSchemaJSON(data []byte) (*Schema, error) {
	var schema Schema
	if err := json.Unmarshal(data, &schema); err != nil {
		return nil, fmt.Errorf("failed to deserialize schema: %w", err)
	}
	schema.index()
	return &schema, nil
}

// LoadSchemaFromFile reads and parses a schema descriptor file
func LoadSchemaFromFile(path string) (*Schema, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file: %w", err)
	}
	return ParseSchemaJSON(content)
}

// ToJSON converts a Schema to an indented JSON string
func (s *Schema) ToJSON() (string, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (s *Schema) index() {
	s.byName = make(map[string]*Entity, len(s.Entities))
	for _, ent := range s.Entities {
		s.byName[ent.Name] = ent
		ent.byName = make(map[string]*Field, len(ent.Fields))
		for _, f := range ent.Fields {
			if f.Kind == "" {
				f.Kind = FieldKindScalar
			}
			ent.byName[f.Name] = f
		}
	}
}

// ─────────────────────────────────────────────────────────────
// Lookups
// ─────────────────────────────────────────────────────────────

// GetEntity returns an entity by name, or nil if not found
func (s *Schema) GetEntity(name string) *Entity {
	if s.byName == nil {
		s.index()
	}
	return s.byName[name]
}

// EntityNames returns the declared entity names in declaration order
func (s *Schema) EntityNames() []string {
	names := make([]string, 0, len(s.Entities))
	for _, ent := range s.Entities {
		names = append(names, ent.Name)
	}
	return names
}

// Field returns a field by name, or nil
func (e *Entity) Field(name string) *Field {
	if e.byName == nil {
		e.byName = make(map[string]*Field, len(e.Fields))
		for _, f := range e.Fields {
			e.byName[f.Name] = f
		}
	}
	return e.byName[name]
}

// FieldNames returns the declared field names in declaration order
func (e *Entity) FieldNames() []string {
	names := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		names = append(names, f.Name)
	}
	return names
}

// ScalarFields returns every non-relation field
func (e *Entity) ScalarFields() []*Field {
	var out []*Field
	for _, f := range e.Fields {
		if f.Kind != FieldKindRelation {
			out = append(out, f)
		}
	}
	return out
}

// PrimaryKeyFields returns the fields identifying a record: the composite
// primary key, else the id field, else the first unique field.
func (e *Entity) PrimaryKeyFields() []string {
	if e.PrimaryKey != nil && len(e.PrimaryKey.Fields) > 0 {
		return e.PrimaryKey.Fields
	}
	for _, f := range e.Fields {
		if f.IsID {
			return []string{f.Name}
		}
	}
	for _, f := range e.Fields {
		if f.IsUnique && f.Kind != FieldKindRelation {
			return []string{f.Name}
		}
	}
	return nil
}

// CompositeKeys returns the composite primary key (if any) followed by the
// composite unique indexes.
func (e *Entity) CompositeKeys() []CompositeKey {
	var keys []CompositeKey
	if e.PrimaryKey != nil && len(e.PrimaryKey.Fields) > 1 {
		keys = append(keys, *e.PrimaryKey)
	}
	for _, k := range e.UniqueIndexes {
		if len(k.Fields) > 0 {
			keys = append(keys, k)
		}
	}
	return keys
}

// KeyName is the pseudo-field name used to address a composite key in a
// filter.
func (k CompositeKey) KeyName() string {
	if k.Name != "" {
		return k.Name
	}
	return strings.Join(k.Fields, "_")
}

func (e *Entity) compositeKey(name string) (CompositeKey, bool) {
	for _, k := range e.CompositeKeys() {
		if k.KeyName() == name {
			return k, true
		}
	}
	return CompositeKey{}, false
}

// IsRelation reports whether the field links to another entity
func (f *Field) IsRelation() bool { return f.Kind == FieldKindRelation }

// HasForeignKey reports whether this side of the relation holds the
// physical foreign key columns.
func (f *Field) HasForeignKey() bool {
	return f.Relation != nil && len(f.Relation.FromFields) > 0
}

// BackRelation returns the field on the target entity sharing this
// relation's name.
func (s *Schema) BackRelation(owner *Entity, f *Field) (*Entity, *Field) {
	target := s.GetEntity(f.Type)
	if target == nil || f.Relation == nil {
		return target, nil
	}
	for _, other := range target.Fields {
		if other.Kind != FieldKindRelation || other.Relation == nil {
			continue
		}
		if other.Relation.Name != f.Relation.Name {
			continue
		}
		if target == owner && other.Name == f.Name {
			continue
		}
		return target, other
	}
	return target, nil
}

// isManyToMany reports whether neither side of the relation holds a
// foreign key, so links live in the side table.
func (s *Schema) isManyToMany(owner *Entity, f *Field) bool {
	if f.HasForeignKey() {
		return false
	}
	_, back := s.BackRelation(owner, f)
	return back != nil && !back.HasForeignKey() && f.IsList && back.IsList
}

// linkSides returns the names used for the A and B sides of a join record.
// Side A is the relation field whose "Entity.field" name sorts first.
func (s *Schema) linkSides(owner *Entity, f *Field) (isA bool) {
	target, back := s.BackRelation(owner, f)
	if back == nil {
		return true
	}
	names := []string{owner.Name + "." + f.Name, target.Name + "." + back.Name}
	sort.Strings(names)
	return names[0] == owner.Name+"."+f.Name
}
