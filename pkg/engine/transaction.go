package engine

import "fmt"

// Operation is one independent call of a batch transaction
type Operation func() (any, error)

// Transaction runs fn against the engine. If fn returns an error or
// panics, the whole store is restored to the snapshot taken before the
// call and the error (or panic) is passed on.
func (e *Engine) Transaction(fn func(tx *Engine) error) (err error) {
	snap := e.store.snapshot()
	e.Debug.Log(DebugTrace, "transaction started")

	defer func() {
		if r := recover(); r != nil {
			e.store.restore(snap)
			e.metrics.observeTransaction("interactive", fmt.Errorf("panic: %v", r))
			e.Debug.Log(DebugTrace, "transaction rolled back after panic")
			panic(r)
		}
		e.metrics.observeTransaction("interactive", err)
	}()

	if err = fn(e); err != nil {
		e.store.restore(snap)
		e.Debug.Log(DebugTrace, "transaction rolled back: %v", err)
		return err
	}
	e.Debug.Log(DebugTrace, "transaction committed")
	return nil
}

// Batch runs independent operations in order and returns their results
// in the same order. The first failure stops the batch; operations that
// already ran stay applied.
func (e *Engine) Batch(ops ...Operation) ([]any, error) {
	results := make([]any, 0, len(ops))
	for i, op := range ops {
		res, err := op()
		if err != nil {
			e.metrics.observeTransaction("batch", err)
			return results, fmt.Errorf("batch operation %d: %w", i, err)
		}
		results = append(results, res)
	}
	e.metrics.observeTransaction("batch", nil)
	return results, nil
}

// atomic restores the store if fn fails. Callers enable it only for
// writes that can touch more than one record; the snapshot is a full copy.
func (e *Engine) atomic(enabled bool, fn func() error) error {
	if !enabled {
		return fn()
	}
	snap := e.store.snapshot()
	if err := fn(); err != nil {
		e.store.restore(snap)
		return err
	}
	return nil
}

func hasNestedWrites(ent *Entity, data M) bool {
	for key := range data {
		if f := ent.Field(key); f != nil && f.IsRelation() {
			return true
		}
	}
	return false
}

// hasReferentialActions reports whether deleting a record of ent can
// update or delete records of another entity.
func (e *Engine) hasReferentialActions(ent *Entity) bool {
	for _, f := range ent.Fields {
		if !f.IsRelation() || f.HasForeignKey() {
			continue
		}
		_, back := e.schema.BackRelation(ent, f)
		if back != nil && back.HasForeignKey() && back.Relation.OnDelete != ActionNone {
			return true
		}
	}
	return false
}
