package mutation

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/chameleon-db/chameleon-mock/pkg/engine"
)

// ============================================================
// INSERT BUILDER
// ============================================================
//

type InsertBuilder struct {
	eng    *engine.Engine
	entity string
	values engine.M
	config engine.ValidatorConfig

	debug    bool
	dryRun   bool
	out      io.Writer
	mutation *engine.Mutation
}

func NewInsertBuilder(eng *engine.Engine, entity string) *InsertBuilder {
	return &InsertBuilder{
		eng:    eng,
		entity: entity,
		values: engine.M{},
		config: engine.DefaultValidatorConfig(),
		out:    os.Stdout,
	}
}

func (ib *InsertBuilder) Set(field string, value any) *InsertBuilder {
	ib.values[field] = value
	ib.mutation = nil
	return ib
}

func (ib *InsertBuilder) Debug() *InsertBuilder {
	ib.debug = true
	return ib
}

func (ib *InsertBuilder) DryRun() *InsertBuilder {
	ib.dryRun = true
	return ib
}

// Build validates the payload and prepares the create arguments
func (ib *InsertBuilder) Build() (*engine.Mutation, error) {
	ent, err := entityOf(ib.eng, ib.entity)
	if err != nil {
		return nil, err
	}
	if len(ib.values) == 0 {
		return nil, &engine.ValidationError{Field: "data", Message: "insert requires at least one field"}
	}
	validator := engine.NewValidator(ib.eng.Schema(), ib.config)
	if err := validator.ValidatePayload(ent, ib.values); err != nil {
		return nil, err
	}

	ib.mutation = &engine.Mutation{
		Type:      engine.MutationInsert,
		Entity:    ib.entity,
		HasFilter: false,
		Args:      engine.M{"data": ib.values},
	}
	return ib.mutation, nil
}

// Exec builds the mutation if needed and runs it unless in dry-run mode
func (ib *InsertBuilder) Exec() (engine.Record, error) {
	if ib.mutation == nil {
		if _, err := ib.Build(); err != nil {
			return nil, err
		}
	}
	if ib.debug {
		printMutation(ib.out, ib.mutation)
	}
	if ib.dryRun {
		return nil, nil
	}
	return ib.eng.Model(ib.entity).Create(ib.mutation.Args)
}

// Execute runs the insert and reports the created record
func (ib *InsertBuilder) Execute(ctx context.Context) (*engine.InsertResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rec, err := ib.Exec()
	if err != nil {
		return nil, err
	}
	if ib.dryRun {
		return &engine.InsertResult{DryRun: true}, nil
	}

	ent, _ := entityOf(ib.eng, ib.entity)
	return &engine.InsertResult{
		ID:       primaryKey(ent, rec),
		Record:   rec,
		Affected: 1,
	}, nil
}

//
// ============================================================
// UPDATE BUILDER
// ============================================================
//

type UpdateBuilder struct {
	eng      *engine.Engine
	entity   string
	filters  []filterSpec
	updates  engine.M
	config   engine.ValidatorConfig
	debug    bool
	dryRun   bool
	forceAll bool
	out      io.Writer
	mutation *engine.Mutation
}

func NewUpdateBuilder(eng *engine.Engine, entity string) *UpdateBuilder {
	return &UpdateBuilder{
		eng:     eng,
		entity:  entity,
		updates: engine.M{},
		config:  engine.DefaultValidatorConfig(),
		out:     os.Stdout,
	}
}

func (ub *UpdateBuilder) Filter(field string, op string, value any) *UpdateBuilder {
	ub.filters = append(ub.filters, filterSpec{field: field, op: op, value: value})
	ub.mutation = nil
	return ub
}

func (ub *UpdateBuilder) Set(field string, value any) *UpdateBuilder {
	ub.updates[field] = value
	ub.mutation = nil
	return ub
}

func (ub *UpdateBuilder) ForceUpdateAll() *UpdateBuilder {
	ub.forceAll = true
	return ub
}

func (ub *UpdateBuilder) Debug() *UpdateBuilder {
	ub.debug = true
	return ub
}

func (ub *UpdateBuilder) DryRun() *UpdateBuilder {
	ub.dryRun = true
	return ub
}

func (ub *UpdateBuilder) Build() (*engine.Mutation, error) {
	ent, err := entityOf(ub.eng, ub.entity)
	if err != nil {
		return nil, err
	}
	if len(ub.filters) == 0 && !ub.forceAll {
		return nil, &SafetyError{
			Operation:  "update_without_filter",
			Message:    fmt.Sprintf("update on %s has no filter and would touch every record", ub.entity),
			Suggestion: "Add .Filter(...) or call .ForceUpdateAll()",
		}
	}
	if len(ub.updates) == 0 {
		return nil, &engine.ValidationError{Field: "data", Message: "update requires at least one field"}
	}
	validator := engine.NewValidator(ub.eng.Schema(), ub.config)
	if err := validator.ValidatePayload(ent, ub.updates); err != nil {
		return nil, err
	}
	where, err := buildWhere(ub.eng, ub.entity, ub.filters)
	if err != nil {
		return nil, err
	}

	ub.mutation = &engine.Mutation{
		Type:      engine.MutationUpdate,
		Entity:    ub.entity,
		HasFilter: len(ub.filters) > 0,
		Args:      engine.M{"where": where, "data": ub.updates},
	}
	return ub.mutation, nil
}

// Exec executes the validated mutation and returns the updated records
func (ub *UpdateBuilder) Exec() ([]engine.Record, error) {
	if ub.mutation == nil {
		if _, err := ub.Build(); err != nil {
			return nil, err
		}
	}
	if ub.debug {
		printMutation(ub.out, ub.mutation)
	}
	if ub.dryRun {
		return nil, nil
	}
	return ub.eng.Model(ub.entity).UpdateManyAndReturn(ub.mutation.Args)
}

func (ub *UpdateBuilder) Execute(ctx context.Context) (*engine.UpdateResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	recs, err := ub.Exec()
	if err != nil {
		return nil, err
	}
	if ub.dryRun {
		n, err := ub.eng.Model(ub.entity).Count(engine.M{"where": ub.mutation.Args["where"]})
		if err != nil {
			return nil, err
		}
		return &engine.UpdateResult{Affected: n, DryRun: true}, nil
	}
	return &engine.UpdateResult{Records: recs, Affected: len(recs)}, nil
}

//
// ============================================================
// DELETE BUILDER
// ============================================================
//

type DeleteBuilder struct {
	eng            *engine.Engine
	entity         string
	filters        []filterSpec
	debug          bool
	dryRun         bool
	forceDeleteAll bool
	out            io.Writer
	mutation       *engine.Mutation
}

func NewDeleteBuilder(eng *engine.Engine, entity string) *DeleteBuilder {
	return &DeleteBuilder{
		eng:    eng,
		entity: entity,
		out:    os.Stdout,
	}
}

func (db *DeleteBuilder) Filter(field string, op string, value any) *DeleteBuilder {
	db.filters = append(db.filters, filterSpec{field: field, op: op, value: value})
	db.mutation = nil
	return db
}

func (db *DeleteBuilder) ForceDeleteAll() *DeleteBuilder {
	db.forceDeleteAll = true
	return db
}

func (db *DeleteBuilder) Debug() *DeleteBuilder {
	db.debug = true
	return db
}

func (db *DeleteBuilder) DryRun() *DeleteBuilder {
	db.dryRun = true
	return db
}

func (db *DeleteBuilder) Build() (*engine.Mutation, error) {
	if _, err := entityOf(db.eng, db.entity); err != nil {
		return nil, err
	}
	if len(db.filters) == 0 && !db.forceDeleteAll {
		return nil, &SafetyError{
			Operation:  "delete_without_filter",
			Message:    fmt.Sprintf("delete on %s has no filter and would remove every record", db.entity),
			Suggestion: "Add .Filter(...) or call .ForceDeleteAll()",
		}
	}
	where, err := buildWhere(db.eng, db.entity, db.filters)
	if err != nil {
		return nil, err
	}

	db.mutation = &engine.Mutation{
		Type:      engine.MutationDelete,
		Entity:    db.entity,
		HasFilter: len(db.filters) > 0,
		Args:      engine.M{"where": where},
	}
	return db.mutation, nil
}

// Exec executes the validated mutation and returns the deleted count
func (db *DeleteBuilder) Exec() (int, error) {
	if db.mutation == nil {
		if _, err := db.Build(); err != nil {
			return 0, err
		}
	}
	if db.debug {
		printMutation(db.out, db.mutation)
	}
	if db.dryRun {
		return db.eng.Model(db.entity).Count(db.mutation.Args)
	}
	return db.eng.Model(db.entity).DeleteMany(db.mutation.Args)
}

func (db *DeleteBuilder) Execute(ctx context.Context) (*engine.DeleteResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n, err := db.Exec()
	if err != nil {
		return nil, err
	}
	return &engine.DeleteResult{Affected: n, DryRun: db.dryRun}, nil
}

//
// ============================================================
// UTILS
// ============================================================
//

type filterSpec struct {
	field string
	op    string
	value any
}

func entityOf(eng *engine.Engine, name string) (*engine.Entity, error) {
	ent := eng.Schema().GetEntity(name)
	if ent == nil {
		return nil, &engine.UnknownEntityError{Entity: name, Available: eng.Schema().EntityNames()}
	}
	return ent, nil
}

// buildWhere ANDs every filter; no filters means every record
func buildWhere(eng *engine.Engine, entity string, filters []filterSpec) (engine.M, error) {
	clauses := make([]any, 0, len(filters))
	for _, f := range filters {
		clause, err := eng.FilterWhere(entity, f.field, f.op, f.value)
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, clause)
	}
	switch len(clauses) {
	case 0:
		return engine.M{}, nil
	case 1:
		return clauses[0].(engine.M), nil
	}
	return engine.M{"AND": clauses}, nil
}

func primaryKey(ent *engine.Entity, rec engine.Record) any {
	fields := ent.PrimaryKeyFields()
	if len(fields) == 1 {
		return rec[fields[0]]
	}
	id := engine.M{}
	for _, f := range fields {
		id[f] = rec[f]
	}
	return id
}

func printMutation(w io.Writer, m *engine.Mutation) {
	args, err := json.MarshalIndent(m.Args, "", "  ")
	if err != nil {
		args = []byte(fmt.Sprintf("%v", m.Args))
	}
	fmt.Fprintf(w, "\n[MUTATION] %s %s\n%s\n\n", m.Type, m.Entity, args)
}
