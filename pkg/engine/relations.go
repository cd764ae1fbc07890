package engine

// ─────────────────────────────────────────────────────────────
// Relation scoping
// ─────────────────────────────────────────────────────────────

// relationWhere derives the filter selecting the records of f.Type linked
// to rec. A nil result means rec has no related records.
func (e *Engine) relationWhere(ent *Entity, f *Field, rec Record) M {
	if f.HasForeignKey() {
		where := M{}
		for i, from := range f.Relation.FromFields {
			v := rec[from]
			if isNullish(v) {
				return nil
			}
			where[f.Relation.ToFields[i]] = v
		}
		return where
	}

	_, back := e.schema.BackRelation(ent, f)
	if back == nil {
		return nil
	}
	if back.HasForeignKey() {
		where := M{}
		for i, from := range back.Relation.FromFields {
			v := rec[back.Relation.ToFields[i]]
			if isNullish(v) {
				return nil
			}
			where[from] = v
		}
		return where
	}

	keys := e.store.linkedKeys(f.Relation.Name, e.schema.linkSides(ent, f), primaryKeyOf(ent, rec))
	if len(keys) == 0 {
		return nil
	}
	or := make([]any, len(keys))
	for i, k := range keys {
		or[i] = map[string]any(copyRecord(k))
	}
	return M{"OR": or}
}

// relatedRecords returns the live records of f.Type linked to rec
func (e *Engine) relatedRecords(ent *Entity, f *Field, rec Record) []Record {
	where := e.relationWhere(ent, f, rec)
	if where == nil {
		return nil
	}
	return e.filterRecords(e.schema.GetEntity(f.Type), where)
}

// scoped combines a relation scope with a caller filter
func scoped(scope, where M) M {
	if scope == nil {
		return nil
	}
	if len(where) == 0 {
		return scope
	}
	return M{"AND": []any{map[string]any(scope), map[string]any(where)}}
}

// ─────────────────────────────────────────────────────────────
// Join records
// ─────────────────────────────────────────────────────────────

func (e *Engine) linkRecords(ent *Entity, f *Field, rec, other Record) {
	mine := primaryKeyOf(ent, rec)
	theirs := primaryKeyOf(e.schema.GetEntity(f.Type), other)
	if e.schema.linkSides(ent, f) {
		e.store.addLink(f.Relation.Name, Link{A: mine, B: theirs})
		return
	}
	e.store.addLink(f.Relation.Name, Link{A: theirs, B: mine})
}

func (e *Engine) unlinkRecords(ent *Entity, f *Field, rec, other Record) {
	mine := primaryKeyOf(ent, rec)
	theirs := primaryKeyOf(e.schema.GetEntity(f.Type), other)
	if e.schema.linkSides(ent, f) {
		e.store.removeLink(f.Relation.Name, Link{A: mine, B: theirs})
		return
	}
	e.store.removeLink(f.Relation.Name, Link{A: theirs, B: mine})
}

// pruneLinks drops every join record referencing rec
func (e *Engine) pruneLinks(ent *Entity, rec Record) {
	pk := primaryKeyOf(ent, rec)
	for _, f := range ent.Fields {
		if f.IsRelation() && e.schema.isManyToMany(ent, f) {
			e.store.removeLinksOf(f.Relation.Name, e.schema.linkSides(ent, f), pk)
		}
	}
}

// rekeyLinks rewrites join records after rec's primary key changed
func (e *Engine) rekeyLinks(ent *Entity, old, updated Record) {
	oldPK := primaryKeyOf(ent, old)
	newPK := primaryKeyOf(ent, updated)
	if valuesEqual(oldPK, newPK) {
		return
	}
	for _, f := range ent.Fields {
		if !f.IsRelation() || !e.schema.isManyToMany(ent, f) {
			continue
		}
		sideA := e.schema.linkSides(ent, f)
		for i, l := range e.store.links[f.Relation.Name] {
			if sideA && valuesEqual(l.A, oldPK) {
				e.store.links[f.Relation.Name][i].A = copyRecord(newPK)
			}
			if !sideA && valuesEqual(l.B, oldPK) {
				e.store.links[f.Relation.Name][i].B = copyRecord(newPK)
			}
		}
	}
}
