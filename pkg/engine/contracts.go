package engine

import "context"

// ============================================================
// MUTATION TYPES
// ============================================================

type MutationType int

const (
	MutationInsert MutationType = iota
	MutationUpdate
	MutationDelete
)

func (t MutationType) String() string {
	switch t {
	case MutationInsert:
		return "insert"
	case MutationUpdate:
		return "update"
	case MutationDelete:
		return "delete"
	}
	return "unknown"
}

// Mutation describes a validated mutation before it runs
type Mutation struct {
	Type      MutationType
	Entity    string
	HasFilter bool
	Args      M // delegate arguments the mutation will run with
}

// ============================================================
// MUTATION RESULT TYPES
// ============================================================

type InsertResult struct {
	ID       any    // Primary key (a map for composite keys)
	Record   Record // Created record
	Affected int
	DryRun   bool
}

type UpdateResult struct {
	Records  []Record
	Affected int
	DryRun   bool
}

type DeleteResult struct {
	Affected int
	DryRun   bool
}

// ============================================================
// MUTATION BUILDER INTERFACES
// ============================================================

// InsertMutation builds and executes create operations
type InsertMutation interface {
	// Set adds a field to insert
	Set(field string, value any) InsertMutation

	// Execute validates and runs the mutation
	Execute(ctx context.Context) (*InsertResult, error)
}

// UpdateMutation builds and executes updateMany operations
type UpdateMutation interface {
	// Set adds a field to update
	Set(field string, value any) UpdateMutation

	// Filter adds a filter condition
	// Operators: eq, neq, gt, gte, lt, lte, like, in
	Filter(field string, operator string, value any) UpdateMutation

	// Execute validates and runs the mutation
	Execute(ctx context.Context) (*UpdateResult, error)
}

// DeleteMutation builds and executes deleteMany operations
type DeleteMutation interface {
	// Filter adds a filter condition
	Filter(field string, operator string, value any) DeleteMutation

	// Execute validates and runs the mutation
	Execute(ctx context.Context) (*DeleteResult, error)
}

// ============================================================
// FACTORY
// ============================================================

// MutationFactory creates mutation builders
//
// Factory is initialized once per Engine. Engine delegates all mutation
// creation to this factory, so alternative builders can be plugged in
// with SetMutationFactory.
type MutationFactory interface {
	// NewInsert creates a builder for create operations
	NewInsert(entity string) InsertMutation

	// NewUpdate creates a builder for update operations
	NewUpdate(entity string) UpdateMutation

	// NewDelete creates a builder for delete operations
	NewDelete(entity string) DeleteMutation
}

// FilterWhere converts a Filter(field, op, value) triple into a where
// object for entity. Mutation builders use it so that their filters follow
// the same rules as QueryBuilder.Filter.
func (e *Engine) FilterWhere(entity, field, op string, value any) (M, error) {
	ent := e.schema.GetEntity(entity)
	if ent == nil {
		return nil, &UnknownEntityError{Entity: entity, Available: e.schema.EntityNames()}
	}
	return filterClause(e.schema, ent, splitPath(field), op, value)
}
