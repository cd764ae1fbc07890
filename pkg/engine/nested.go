package engine

import "fmt"

// relationOps is the order nested operations run in within one payload
var relationOps = []string{
	"set", "disconnect", "delete", "deleteMany",
	"update", "updateMany", "upsert",
	"connect", "connectOrCreate", "create", "createMany",
}

var listOnlyOps = map[string]bool{"set": true, "deleteMany": true, "updateMany": true, "createMany": true}

func checkRelationOps(f *Field, ops M) error {
	for _, key := range sortedKeys(ops) {
		known := false
		for _, op := range relationOps {
			if op == key {
				known = true
				break
			}
		}
		if !known {
			return &ValidationError{Field: f.Name, Message: fmt.Sprintf("unknown nested write operation '%s'", key)}
		}
		if listOnlyOps[key] && !f.IsList {
			return &ValidationError{Field: f.Name, Message: fmt.Sprintf("'%s' is only valid on list relations", key)}
		}
	}
	return nil
}

// splitUpdate accepts either the update data itself or {where, data}
func splitUpdate(target *Entity, payload any) (data, where M) {
	m := asWhere(payload)
	if inner, ok := toMap(m["data"]); ok && target.Field("data") == nil {
		return inner, asWhere(m["where"])
	}
	return m, nil
}

// ============================================================
// OWNING SIDE (this record holds the foreign key)
// ============================================================

func (e *Engine) applyOwningSide(ent *Entity, f *Field, ops M, merged Record) ([]afterFunc, error) {
	target := e.schema.GetEntity(f.Type)
	rel := f.Relation

	setFK := func(t Record) {
		for i, from := range rel.FromFields {
			if t == nil {
				merged[from] = nil
				continue
			}
			merged[from] = deepCopyValue(t[rel.ToFields[i]])
		}
	}
	current := func() Record {
		where := e.relationWhere(ent, f, merged)
		if where == nil {
			return nil
		}
		return e.findFirstRaw(target, where)
	}

	var after []afterFunc
	for _, op := range relationOps {
		payload, ok := ops[op]
		if !ok || payload == false {
			continue
		}

		switch op {
		case "connect":
			t := e.findFirstRaw(target, asWhere(payload))
			if t == nil {
				return nil, &NotFoundError{Entity: target.Name, Cause: CauseConnectNotFound}
			}
			setFK(t)

		case "connectOrCreate":
			m := asWhere(payload)
			t := e.findFirstRaw(target, asWhere(m["where"]))
			if t == nil {
				created, err := e.createRecord(target, asWhere(m["create"]))
				if err != nil {
					return nil, err
				}
				t = created
			}
			setFK(t)

		case "create":
			t, err := e.createRecord(target, asWhere(payload))
			if err != nil {
				return nil, err
			}
			setFK(t)

		case "disconnect":
			if filter, ok := toMap(payload); ok {
				c := current()
				if c == nil || !e.compile(target, filter)(c) {
					continue
				}
			}
			setFK(nil)

		case "update":
			data, where := splitUpdate(target, payload)
			c := current()
			if c == nil || (where != nil && !e.compile(target, where)(c)) {
				return nil, &NotFoundError{Entity: target.Name, Cause: CauseUpdateNotFound}
			}
			if _, err := e.updateRecord(target, c, data); err != nil {
				return nil, err
			}

		case "upsert":
			m := asWhere(payload)
			c := current()
			if where := asWhere(m["where"]); c != nil && where != nil && !e.compile(target, where)(c) {
				c = nil
			}
			if c != nil {
				if _, err := e.updateRecord(target, c, asWhere(m["update"])); err != nil {
					return nil, err
				}
				continue
			}
			t, err := e.createRecord(target, asWhere(m["create"]))
			if err != nil {
				return nil, err
			}
			setFK(t)

		case "delete":
			c := current()
			if filter, ok := toMap(payload); ok && c != nil && !e.compile(target, filter)(c) {
				c = nil
			}
			if c == nil {
				return nil, &NotFoundError{Entity: target.Name, Cause: CauseDeleteNotFound}
			}
			setFK(nil)
			after = append(after, func(Record) error {
				return e.deleteRecord(target, c)
			})
		}
	}
	return after, nil
}

// ============================================================
// INVERSE AND MANY-TO-MANY SIDES
// ============================================================

// linker abstracts how children are attached to a committed parent: by
// writing their foreign key, or by join records.
type linker struct {
	target        *Entity
	scope         func() M
	link          func(child Record) error
	unlink        func(child Record) error
	prepareCreate func(data M) M
	afterCreate   func(child Record) error
}

func (e *Engine) newLinker(ent *Entity, f *Field, parent Record) (*linker, error) {
	target, back := e.schema.BackRelation(ent, f)
	if back == nil {
		return nil, &SchemaError{Entity: ent.Name, Message: fmt.Sprintf("relation field '%s' has no opposite field on %s", f.Name, f.Type)}
	}

	lk := &linker{
		target: target,
		scope:  func() M { return e.relationWhere(ent, f, parent) },
	}

	if e.schema.isManyToMany(ent, f) {
		lk.link = func(child Record) error {
			e.linkRecords(ent, f, parent, child)
			return nil
		}
		lk.unlink = func(child Record) error {
			e.unlinkRecords(ent, f, parent, child)
			return nil
		}
		lk.prepareCreate = func(data M) M { return data }
		lk.afterCreate = lk.link
		return lk, nil
	}

	fkValues := func() M {
		values := M{}
		for i, from := range back.Relation.FromFields {
			values[from] = deepCopyValue(parent[back.Relation.ToFields[i]])
		}
		return values
	}
	lk.link = func(child Record) error {
		_, err := e.updateRecord(target, child, fkValues())
		return err
	}
	lk.unlink = func(child Record) error {
		nulled := M{}
		for _, from := range back.Relation.FromFields {
			nulled[from] = nil
		}
		_, err := e.updateRecord(target, child, nulled)
		return err
	}
	lk.prepareCreate = func(data M) M {
		out := M{}
		for k, v := range data {
			if k == back.Name {
				continue
			}
			out[k] = v
		}
		for k, v := range fkValues() {
			out[k] = v
		}
		return out
	}
	lk.afterCreate = func(Record) error { return nil }
	return lk, nil
}

// scoped returns the children currently attached and matching where
func (e *Engine) scopedChildren(lk *linker, where M) []Record {
	w := scoped(lk.scope(), where)
	if w == nil {
		return nil
	}
	return e.filterRecords(lk.target, w)
}

func (e *Engine) applyInverseSide(ent *Entity, f *Field, ops M, parent Record) error {
	lk, err := e.newLinker(ent, f, parent)
	if err != nil {
		return err
	}
	target := lk.target

	// a to-one inverse side holds at most one child
	detachOthers := func(keep Record) error {
		if f.IsList {
			return nil
		}
		for _, c := range e.scopedChildren(lk, nil) {
			if sameRecord(c, keep) {
				continue
			}
			if err := lk.unlink(c); err != nil {
				return err
			}
		}
		return nil
	}
	create := func(data M) error {
		if err := detachOthers(nil); err != nil {
			return err
		}
		child, err := e.createRecord(target, lk.prepareCreate(data))
		if err != nil {
			return err
		}
		return lk.afterCreate(child)
	}
	connect := func(child Record) error {
		if err := detachOthers(child); err != nil {
			return err
		}
		return lk.link(child)
	}
	first := func(where M) Record {
		children := e.scopedChildren(lk, where)
		if len(children) == 0 {
			return nil
		}
		return children[0]
	}
	items := func(payload any) []map[string]any {
		if !f.IsList {
			if m, ok := toMap(payload); ok {
				return []map[string]any{m}
			}
			return []map[string]any{nil}
		}
		return toMapList(payload)
	}

	for _, op := range relationOps {
		payload, ok := ops[op]
		if !ok || payload == false {
			continue
		}

		switch op {
		case "set":
			for _, c := range e.scopedChildren(lk, nil) {
				if err := lk.unlink(c); err != nil {
					return err
				}
			}
			for _, where := range toMapList(payload) {
				c := e.findFirstRaw(target, where)
				if c == nil {
					return &NotFoundError{Entity: target.Name, Cause: CauseConnectNotFound}
				}
				if err := lk.link(c); err != nil {
					return err
				}
			}

		case "disconnect":
			for _, where := range items(payload) {
				children := e.scopedChildren(lk, where)
				if f.IsList && len(children) > 1 {
					children = children[:1]
				}
				for _, c := range children {
					if err := lk.unlink(c); err != nil {
						return err
					}
				}
			}

		case "delete":
			for _, where := range items(payload) {
				c := first(where)
				if c == nil {
					return &NotFoundError{Entity: target.Name, Cause: CauseDeleteNotFound}
				}
				if err := e.deleteRecord(target, c); err != nil {
					return err
				}
			}

		case "deleteMany":
			wheres := toMapList(payload)
			if len(wheres) == 0 {
				wheres = []map[string]any{nil}
			}
			for _, where := range wheres {
				for _, c := range e.scopedChildren(lk, where) {
					if !e.store.contains(target.Name, c) {
						continue
					}
					if err := e.deleteRecord(target, c); err != nil {
						return err
					}
				}
			}

		case "update":
			for _, item := range items(payload) {
				data, where := splitUpdate(target, item)
				if f.IsList {
					data, where = asWhere(item["data"]), asWhere(item["where"])
				}
				c := first(where)
				if c == nil {
					return &NotFoundError{Entity: target.Name, Cause: CauseUpdateNotFound}
				}
				if _, err := e.updateRecord(target, c, data); err != nil {
					return err
				}
			}

		case "updateMany":
			for _, item := range toMapList(payload) {
				data := asWhere(item["data"])
				for _, c := range e.scopedChildren(lk, asWhere(item["where"])) {
					if _, err := e.updateRecord(target, c, data); err != nil {
						return err
					}
				}
			}

		case "upsert":
			for _, item := range items(payload) {
				c := first(asWhere(item["where"]))
				if c != nil {
					if _, err := e.updateRecord(target, c, asWhere(item["update"])); err != nil {
						return err
					}
					continue
				}
				if err := create(asWhere(item["create"])); err != nil {
					return err
				}
			}

		case "connect":
			for _, where := range toMapList(payload) {
				c := e.findFirstRaw(target, where)
				if c == nil {
					return &NotFoundError{Entity: target.Name, Cause: CauseConnectNotFound}
				}
				if err := connect(c); err != nil {
					return err
				}
			}

		case "connectOrCreate":
			for _, item := range toMapList(payload) {
				c := e.findFirstRaw(target, asWhere(item["where"]))
				if c == nil {
					if err := create(asWhere(item["create"])); err != nil {
						return err
					}
					continue
				}
				if err := connect(c); err != nil {
					return err
				}
			}

		case "create":
			for _, data := range toMapList(payload) {
				if err := create(data); err != nil {
					return err
				}
			}

		case "createMany":
			m := asWhere(payload)
			skip := isTrue(m["skipDuplicates"])
			for _, data := range toMapList(m["data"]) {
				if err := create(data); err != nil {
					if skip && IsUniqueConstraint(err) {
						continue
					}
					return err
				}
			}
		}
	}
	return nil
}
