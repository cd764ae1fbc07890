package engine

import (
	"fmt"
	"math"
	"time"
)

// afterFunc runs once the record it belongs to has been committed
type afterFunc func(rec Record) error

// ============================================================
// CREATE / UPDATE PAYLOADS
// ============================================================

// applyCreateOrUpdate merges data into existing (or a fresh record),
// resolving scalar operators, defaults and owning-side relation writes.
// Writes on the other side of a relation are returned as afterFuncs. The
// result is not committed.
func (e *Engine) applyCreateOrUpdate(ent *Entity, data M, isCreate bool, existing Record) (Record, []afterFunc, error) {
	if err := e.validator.ValidatePayload(ent, data); err != nil {
		return nil, nil, err
	}

	merged := Record{}
	if existing != nil {
		merged = copyRecord(existing)
	}
	now := e.clock.Now()

	for _, f := range ent.ScalarFields() {
		v, present := data[f.Name]
		switch {
		case present && !(isNullish(v) && f.Default != nil):
			val, err := e.applyScalarOp(f, merged[f.Name], v)
			if err != nil {
				return nil, nil, err
			}
			merged[f.Name] = val
		case f.Default != nil && (isCreate || present):
			val, err := e.resolveDefault(ent, f, now)
			if err != nil {
				return nil, nil, err
			}
			merged[f.Name] = val
		case f.IsUpdatedAt:
			merged[f.Name] = now
		case isCreate:
			merged[f.Name] = nil
		}
	}

	var after []afterFunc
	for _, f := range ent.Fields {
		if !f.IsRelation() {
			continue
		}
		raw, ok := data[f.Name]
		if !ok {
			continue
		}
		ops, ok := toMap(raw)
		if !ok {
			return nil, nil, &ValidationError{Field: f.Name, Message: "expected an object of nested write operations"}
		}
		if err := checkRelationOps(f, ops); err != nil {
			return nil, nil, err
		}

		if f.HasForeignKey() {
			fns, err := e.applyOwningSide(ent, f, ops, merged)
			if err != nil {
				return nil, nil, err
			}
			after = append(after, fns...)
			continue
		}
		field := f
		after = append(after, func(rec Record) error {
			return e.applyInverseSide(ent, field, ops, rec)
		})
	}

	if err := e.checkUnique(ent, merged, existing); err != nil {
		return nil, nil, err
	}
	return merged, after, nil
}

var updateOperators = map[string]bool{
	"set": true, "increment": true, "decrement": true, "multiply": true, "divide": true, "push": true,
}

func isUpdateOperator(m map[string]any) bool {
	if len(m) == 0 {
		return false
	}
	for k := range m {
		if !updateOperators[k] {
			return false
		}
	}
	return true
}

func (e *Engine) applyScalarOp(f *Field, current, v any) (any, error) {
	ops, ok := toMap(v)
	if !ok || f.Type == TypeJSON || !isUpdateOperator(ops) {
		return normalizeValue(f, v)
	}

	result := current
	for _, op := range sortedKeys(ops) {
		operand := ops[op]
		var err error
		switch op {
		case "set":
			result, err = normalizeValue(f, operand)
		case "push":
			if !f.IsList {
				return nil, &ValidationError{Field: f.Name, Message: "push is only valid on list fields"}
			}
			var pushed any
			pushed, err = normalizeValue(f, operand)
			if err == nil {
				items, _ := toSlice(result)
				extra, _ := toSlice(pushed)
				result = append(append([]any{}, items...), extra...)
			}
		default:
			result, err = arithmetic(f, op, result, operand)
		}
		if err != nil {
			return nil, err
		}
	}
	return result, nil
}

// arithmetic applies increment/decrement/multiply/divide. Int and BigInt
// results truncate toward zero; arithmetic on null stays null.
func arithmetic(f *Field, op string, current, operand any) (any, error) {
	if isNullish(current) {
		return nil, nil
	}
	c, ok := toFloat(current)
	if !ok {
		return nil, &ValidationError{Field: f.Name, Message: fmt.Sprintf("%s needs a numeric field, got %T", op, current)}
	}
	o, ok := toFloat(operand)
	if !ok {
		return nil, &ValidationError{Field: f.Name, Message: fmt.Sprintf("%s needs a numeric operand, got %T", op, operand)}
	}
	if op == "divide" && o == 0 {
		return nil, &ValidationError{Field: f.Name, Message: "division by zero"}
	}

	if f.Type == TypeInt || f.Type == TypeBigInt {
		ci, cok := asInt64(current)
		oi, ook := asInt64(operand)
		if cok && ook {
			var r int64
			switch op {
			case "increment":
				r = ci + oi
			case "decrement":
				r = ci - oi
			case "multiply":
				r = ci * oi
			case "divide":
				r = ci / oi
			}
			if f.Type == TypeBigInt {
				return r, nil
			}
			return int(r), nil
		}
	}

	var r float64
	switch op {
	case "increment":
		r = c + o
	case "decrement":
		r = c - o
	case "multiply":
		r = c * o
	case "divide":
		r = c / o
	}
	switch f.Type {
	case TypeInt:
		return int(math.Trunc(r)), nil
	case TypeBigInt:
		return int64(math.Trunc(r)), nil
	}
	return r, nil
}

func asInt64(v any) (int64, bool) {
	if n, ok := toExactInt(v); ok {
		return n, true
	}
	f, ok := toFloat(v)
	if !ok || f != math.Trunc(f) {
		return 0, false
	}
	return int64(f), true
}

func (e *Engine) resolveDefault(ent *Entity, f *Field, now time.Time) (any, error) {
	if f.Default.Kind == "" {
		return normalizeValue(f, deepCopyValue(f.Default.Value))
	}
	v, err := e.generators.Generate(f.Default.Kind, GeneratorContext{
		Entity:  ent,
		Field:   f,
		Records: e.store.records(ent.Name),
		Now:     now,
	})
	if err != nil {
		return nil, err
	}
	return normalizeValue(f, v)
}

// ============================================================
// UNIQUENESS
// ============================================================

// checkUnique rejects merged if a unique field, id or composite key
// collides with another record. existing is excluded from the search.
func (e *Engine) checkUnique(ent *Entity, merged, existing Record) error {
	for _, f := range ent.ScalarFields() {
		single := f.IsID || f.IsUnique ||
			(ent.PrimaryKey != nil && len(ent.PrimaryKey.Fields) == 1 && ent.PrimaryKey.Fields[0] == f.Name)
		if !single {
			continue
		}
		v := merged[f.Name]
		if isNullish(v) {
			continue
		}
		if existing != nil && valuesEqual(existing[f.Name], v) {
			continue
		}
		if e.conflicts(ent, []string{f.Name}, merged, existing) {
			return &UniqueConstraintError{Entity: ent.Name, Fields: []string{f.Name}}
		}
	}

	for _, key := range ent.CompositeKeys() {
		if len(key.Fields) < 2 {
			continue
		}
		complete, changed := true, existing == nil
		for _, name := range key.Fields {
			if isNullish(merged[name]) {
				complete = false
				break
			}
			if existing != nil && !valuesEqual(existing[name], merged[name]) {
				changed = true
			}
		}
		if !complete || !changed {
			continue
		}
		if e.conflicts(ent, key.Fields, merged, existing) {
			return &UniqueConstraintError{Entity: ent.Name, Fields: append([]string(nil), key.Fields...)}
		}
	}
	return nil
}

func (e *Engine) conflicts(ent *Entity, fields []string, merged, existing Record) bool {
	candidates := e.store.records(ent.Name)
	if e.store.index != nil {
		if recs, ok := e.store.index.Lookup(ent.Name, M{fields[0]: merged[fields[0]]}, false); ok {
			candidates = recs
		}
	}
	for _, c := range candidates {
		if sameRecord(c, existing) {
			continue
		}
		match := true
		for _, name := range fields {
			if !valuesEqual(c[name], merged[name]) {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

// ============================================================
// COMMIT
// ============================================================

func (e *Engine) createRecord(ent *Entity, data M) (Record, error) {
	merged, after, err := e.applyCreateOrUpdate(ent, data, true, nil)
	if err != nil {
		return nil, err
	}
	e.store.insert(ent.Name, merged)
	for _, fn := range after {
		if err := fn(merged); err != nil {
			return nil, err
		}
	}
	return e.current(ent, merged), nil
}

func (e *Engine) updateRecord(ent *Entity, existing Record, data M) (Record, error) {
	if !e.store.contains(ent.Name, existing) {
		return nil, &NotFoundError{Entity: ent.Name, Cause: CauseUpdateNotFound}
	}
	merged, after, err := e.applyCreateOrUpdate(ent, data, false, existing)
	if err != nil {
		return nil, err
	}
	e.store.replace(ent.Name, existing, merged)
	e.rekeyLinks(ent, existing, merged)
	for _, fn := range after {
		if err := fn(merged); err != nil {
			return nil, err
		}
	}
	return e.current(ent, merged), nil
}

// current returns the stored version of rec, which nested writes may have
// replaced since it was committed.
func (e *Engine) current(ent *Entity, rec Record) Record {
	if e.store.contains(ent.Name, rec) {
		return rec
	}
	pk := primaryKeyOf(ent, rec)
	if len(pk) == 0 {
		return rec
	}
	if found := e.findFirstRaw(ent, M(pk)); found != nil {
		return found
	}
	return rec
}

// ============================================================
// DELETE + REFERENTIAL ACTIONS
// ============================================================

// deleteRecord removes rec, prunes its join records and applies the
// onDelete action declared by every dependent relation.
func (e *Engine) deleteRecord(ent *Entity, rec Record) error {
	if !e.store.remove(ent.Name, rec) {
		return &NotFoundError{Entity: ent.Name, Cause: CauseDeleteNotFound}
	}
	e.pruneLinks(ent, rec)

	for _, f := range ent.Fields {
		if !f.IsRelation() || f.HasForeignKey() {
			continue
		}
		target, back := e.schema.BackRelation(ent, f)
		if back == nil || !back.HasForeignKey() || back.Relation.OnDelete == ActionNone {
			continue
		}
		where := e.relationWhere(ent, f, rec)
		if where == nil {
			continue
		}
		dependents := e.filterRecords(target, where)

		switch back.Relation.OnDelete {
		case ActionSetNull:
			for _, dep := range dependents {
				if e.store.contains(target.Name, dep) {
					e.nullForeignKey(target, dep, back.Relation.FromFields)
				}
			}
		case ActionCascade:
			for _, dep := range dependents {
				if err := e.deleteRecord(target, dep); err != nil && !IsNotFound(err) {
					return err
				}
			}
		}
	}
	return nil
}

// nullForeignKey clears fields on rec and bumps its @updatedAt fields.
// Defaults are not applied: a SetNull always leaves null behind.
func (e *Engine) nullForeignKey(ent *Entity, rec Record, fields []string) {
	updated := copyRecord(rec)
	for _, name := range fields {
		updated[name] = nil
	}
	now := e.clock.Now()
	for _, f := range ent.ScalarFields() {
		if f.IsUpdatedAt {
			updated[f.Name] = now
		}
	}
	e.store.replace(ent.Name, rec, updated)
	e.rekeyLinks(ent, rec, updated)
}
