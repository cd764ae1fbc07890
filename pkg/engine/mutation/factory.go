package mutation

import (
	"context"

	"github.com/chameleon-db/chameleon-mock/pkg/engine"
)

// ============================================================
// MUTATION FACTORY
// ============================================================
//

// Factory builds mutation builders bound to one engine
type Factory struct {
	eng *engine.Engine
}

func NewFactory(eng *engine.Engine) *Factory {
	return &Factory{eng: eng}
}

// Register installs a Factory on eng, enabling eng.Insert/Update/Delete
func Register(eng *engine.Engine) {
	eng.SetMutationFactory(NewFactory(eng))
}

func (f *Factory) NewInsert(entity string) engine.InsertMutation {
	return &insertMutation{NewInsertBuilder(f.eng, entity)}
}

func (f *Factory) NewUpdate(entity string) engine.UpdateMutation {
	return &updateMutation{NewUpdateBuilder(f.eng, entity)}
}

func (f *Factory) NewDelete(entity string) engine.DeleteMutation {
	return &deleteMutation{NewDeleteBuilder(f.eng, entity)}
}

// The builders chain on their concrete types; these wrappers give them
// the engine's interface signatures.

type insertMutation struct{ b *InsertBuilder }

func (m *insertMutation) Set(field string, value any) engine.InsertMutation {
	m.b.Set(field, value)
	return m
}

func (m *insertMutation) Execute(ctx context.Context) (*engine.InsertResult, error) {
	return m.b.Execute(ctx)
}

type updateMutation struct{ b *UpdateBuilder }

func (m *updateMutation) Set(field string, value any) engine.UpdateMutation {
	m.b.Set(field, value)
	return m
}

func (m *updateMutation) Filter(field, op string, value any) engine.UpdateMutation {
	m.b.Filter(field, op, value)
	return m
}

func (m *updateMutation) Execute(ctx context.Context) (*engine.UpdateResult, error) {
	return m.b.Execute(ctx)
}

type deleteMutation struct{ b *DeleteBuilder }

func (m *deleteMutation) Filter(field, op string, value any) engine.DeleteMutation {
	m.b.Filter(field, op, value)
	return m
}

func (m *deleteMutation) Execute(ctx context.Context) (*engine.DeleteResult, error) {
	return m.b.Execute(ctx)
}
