package engine

import (
	"fmt"
)

// ============================================================
// VALIDATOR CONFIG
// ============================================================

type ValidatorConfig struct {
	StrictFields bool // reject data keys that name no field
}

func DefaultValidatorConfig() ValidatorConfig {
	return ValidatorConfig{
		StrictFields: true,
	}
}

// ============================================================
// VALIDATOR
// ============================================================

type Validator struct {
	schema *Schema
	config ValidatorConfig
}

func NewValidator(schema *Schema, config ValidatorConfig) *Validator {
	return &Validator{
		schema: schema,
		config: config,
	}
}

// ============================================================
// SCHEMA VALIDATION
// ============================================================

// ValidateSchema checks the descriptor is internally consistent: relations
// target known entities, key field lists line up, and every entity can
// identify its records.
func (v *Validator) ValidateSchema() error {
	seen := map[string]bool{}
	for _, ent := range v.schema.Entities {
		if ent.Name == "" {
			return &SchemaError{Message: "entity without a name"}
		}
		if seen[ent.Name] {
			return &SchemaError{Entity: ent.Name, Message: "declared more than once"}
		}
		seen[ent.Name] = true

		for _, f := range ent.Fields {
			if err := v.validateField(ent, f); err != nil {
				return err
			}
		}

		for _, key := range ent.CompositeKeys() {
			for _, name := range key.Fields {
				if err := v.requireScalar(ent, name); err != nil {
					return err
				}
			}
		}

		if len(ent.PrimaryKeyFields()) == 0 {
			return &SchemaError{
				Entity:  ent.Name,
				Message: "needs an id field, a primary key or a unique field",
			}
		}
	}
	return nil
}

func (v *Validator) validateField(ent *Entity, f *Field) error {
	switch f.Kind {
	case FieldKindScalar, FieldKindEnum:
		if f.Relation != nil {
			return &SchemaError{
				Entity:  ent.Name,
				Message: fmt.Sprintf("scalar field '%s' carries relation metadata", f.Name),
			}
		}
		return nil

	case FieldKindRelation:
		target := v.schema.GetEntity(f.Type)
		if target == nil {
			return &UnknownEntityError{
				Entity:    f.Type,
				Available: v.getAvailableEntities(),
			}
		}
		if f.Relation == nil || f.Relation.Name == "" {
			return &SchemaError{
				Entity:  ent.Name,
				Message: fmt.Sprintf("relation field '%s' has no relation name", f.Name),
			}
		}
		rel := f.Relation
		if len(rel.FromFields) != len(rel.ToFields) {
			return &SchemaError{
				Entity:  ent.Name,
				Message: fmt.Sprintf("relation '%s' has %d from fields but %d to fields", rel.Name, len(rel.FromFields), len(rel.ToFields)),
			}
		}
		for _, name := range rel.FromFields {
			if err := v.requireScalar(ent, name); err != nil {
				return err
			}
		}
		for _, name := range rel.ToFields {
			if err := v.requireScalar(target, name); err != nil {
				return err
			}
		}
		switch rel.OnDelete {
		case ActionNone, ActionSetNull, ActionCascade:
		default:
			return &SchemaError{
				Entity:  ent.Name,
				Message: fmt.Sprintf("relation '%s' has unsupported onDelete %q", rel.Name, rel.OnDelete),
			}
		}
		return nil
	}

	return &SchemaError{
		Entity:  ent.Name,
		Message: fmt.Sprintf("field '%s' has unknown kind %q", f.Name, f.Kind),
	}
}

func (v *Validator) requireScalar(ent *Entity, name string) error {
	f := ent.Field(name)
	if f == nil {
		return &UnknownFieldError{
			Entity:    ent.Name,
			Field:     name,
			Available: ent.FieldNames(),
		}
	}
	if f.IsRelation() {
		return &SchemaError{
			Entity:  ent.Name,
			Message: fmt.Sprintf("key field '%s' must be a scalar", name),
		}
	}
	return nil
}

// ============================================================
// PAYLOAD VALIDATION
// ============================================================

// ValidatePayload rejects create/update data naming unknown fields
func (v *Validator) ValidatePayload(ent *Entity, data M) error {
	if !v.config.StrictFields {
		return nil
	}
	for _, key := range sortedKeys(data) {
		if ent.Field(key) == nil {
			return &UnknownFieldError{
				Entity:    ent.Name,
				Field:     key,
				Available: ent.FieldNames(),
			}
		}
	}
	return nil
}

// ValidateOrderBy enforces exactly one sort key per orderBy object
func (v *Validator) ValidateOrderBy(clause map[string]any) error {
	if len(clause) > 1 {
		return &ValidationError{
			Field:   "orderBy",
			Message: fmt.Sprintf("expected exactly one key per object, got %d: %v", len(clause), sortedKeys(clause)),
		}
	}
	return nil
}

// ============================================================
// HELPERS
// ============================================================

func (v *Validator) getAvailableEntities() []string {
	return v.schema.EntityNames()
}
