package engine

import (
	"errors"
	"time"
)

// Delegate is the per-entity operation surface. Delegates are built once
// per engine and looked up by name, so relations between entities never
// construct delegates recursively.
type Delegate struct {
	engine *Engine
	entity *Entity
}

// Name returns the entity name
func (d *Delegate) Name() string { return d.entity.Name }

// Entity returns the schema entity
func (d *Delegate) Entity() *Entity { return d.entity }

// observe times fn, logs and counts it, and adapts any engine error
func (d *Delegate) observe(op string, fn func() (int, error)) error {
	e := d.engine
	start := time.Now()
	rows, err := fn()
	elapsed := time.Since(start)

	e.Debug.LogOp(d.entity.Name, op, elapsed, rows)
	e.metrics.observeOp(d.entity.Name, op, elapsed, err)

	if err == nil {
		return nil
	}
	e.Debug.Log(DebugTrace, "%s.%s failed: %v", d.entity.Name, op, err)
	if e.adapter != nil {
		var ee EngineError
		if errors.As(err, &ee) {
			return e.adapter.Adapt(ee)
		}
	}
	return err
}

func requireWhere(args M) (M, error) {
	where, ok := toMap(args["where"])
	if !ok {
		return nil, &ValidationError{Field: "where", Message: "argument is required"}
	}
	return where, nil
}

func countOf(rec Record) int {
	if rec == nil {
		return 0
	}
	return 1
}

// ============================================================
// READS
// ============================================================

// FindUnique returns the record matching where, or nil
func (d *Delegate) FindUnique(args M) (Record, error) {
	var out Record
	err := d.observe("findUnique", func() (int, error) {
		if err := checkProjectionArgs(args); err != nil {
			return 0, err
		}
		where, err := requireWhere(args)
		if err != nil {
			return 0, err
		}
		rec := d.engine.findFirstRaw(d.entity, where)
		if rec == nil {
			return 0, nil
		}
		out, err = d.engine.project(d.entity, rec, args)
		return countOf(out), err
	})
	return out, err
}

// FindUniqueOrThrow is FindUnique failing with NotFoundError on no match
func (d *Delegate) FindUniqueOrThrow(args M) (Record, error) {
	rec, err := d.FindUnique(args)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, d.observe("findUniqueOrThrow", func() (int, error) {
			return 0, &NotFoundError{Entity: d.entity.Name, Cause: CauseNoRecordFound}
		})
	}
	return rec, nil
}

// FindFirst returns the first record of the ordered result, or nil
func (d *Delegate) FindFirst(args M) (Record, error) {
	var out Record
	err := d.observe("findFirst", func() (int, error) {
		first := M{}
		for k, v := range args {
			first[k] = v
		}
		if take, ok := toInt(first["take"]); !ok || take >= 0 {
			first["take"] = 1
		}
		recs, err := d.engine.findMany(d.entity, first)
		if err != nil {
			return 0, err
		}
		if len(recs) > 0 {
			out = recs[len(recs)-1]
			if take, _ := toInt(first["take"]); take > 0 {
				out = recs[0]
			}
		}
		return countOf(out), nil
	})
	return out, err
}

// FindFirstOrThrow is FindFirst failing with NotFoundError on no match
func (d *Delegate) FindFirstOrThrow(args M) (Record, error) {
	rec, err := d.FindFirst(args)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, d.observe("findFirstOrThrow", func() (int, error) {
			return 0, &NotFoundError{Entity: d.entity.Name, Cause: CauseNoRecordFound}
		})
	}
	return rec, nil
}

// FindMany returns every record matching args
func (d *Delegate) FindMany(args M) ([]Record, error) {
	var out []Record
	err := d.observe("findMany", func() (int, error) {
		var err error
		out, err = d.engine.findMany(d.entity, args)
		return len(out), err
	})
	return out, err
}

// Count returns the number of records matching args
func (d *Delegate) Count(args M) (int, error) {
	var n int
	err := d.observe("count", func() (int, error) {
		var err error
		n, err = d.engine.count(d.entity, args)
		return n, err
	})
	return n, err
}

// Aggregate computes _count/_avg/_sum/_min/_max over matching records
func (d *Delegate) Aggregate(args M) (Record, error) {
	var out Record
	err := d.observe("aggregate", func() (int, error) {
		var err error
		out, err = d.engine.aggregate(d.entity, args)
		return countOf(out), err
	})
	return out, err
}

// GroupBy buckets matching records by the "by" fields
func (d *Delegate) GroupBy(args M) ([]Record, error) {
	var out []Record
	err := d.observe("groupBy", func() (int, error) {
		var err error
		out, err = d.engine.groupBy(d.entity, args)
		return len(out), err
	})
	return out, err
}

// ============================================================
// WRITES
// ============================================================

// Create inserts one record, running nested relation writes atomically
func (d *Delegate) Create(args M) (Record, error) {
	var out Record
	err := d.observe("create", func() (int, error) {
		if err := checkProjectionArgs(args); err != nil {
			return 0, err
		}
		data := asWhere(args["data"])
		e := d.engine
		var rec Record
		err := e.atomic(hasNestedWrites(d.entity, data), func() error {
			var err error
			rec, err = e.createRecord(d.entity, data)
			return err
		})
		if err != nil {
			return 0, err
		}
		out, err = e.project(d.entity, rec, args)
		return 1, err
	})
	return out, err
}

// CreateMany inserts every payload of data. With skipDuplicates, payloads
// violating a unique constraint are skipped; otherwise the first failure
// rolls the whole call back.
func (d *Delegate) CreateMany(args M) (int, error) {
	var n int
	err := d.observe("createMany", func() (int, error) {
		recs, err := d.createMany(args)
		n = len(recs)
		return n, err
	})
	return n, err
}

// CreateManyAndReturn is CreateMany returning the created records
func (d *Delegate) CreateManyAndReturn(args M) ([]Record, error) {
	var out []Record
	err := d.observe("createManyAndReturn", func() (int, error) {
		if err := checkProjectionArgs(args); err != nil {
			return 0, err
		}
		recs, err := d.createMany(args)
		if err != nil {
			return 0, err
		}
		out, err = d.projectAll(recs, args)
		return len(out), err
	})
	return out, err
}

func (d *Delegate) createMany(args M) ([]Record, error) {
	e := d.engine
	skip := isTrue(args["skipDuplicates"])
	payloads := toMapList(args["data"])
	multi := len(payloads) > 1 || (len(payloads) == 1 && hasNestedWrites(d.entity, payloads[0]))
	var created []Record
	err := e.atomic(multi, func() error {
		for _, data := range payloads {
			rec, err := e.createRecord(d.entity, data)
			if err != nil {
				if skip && IsUniqueConstraint(err) {
					continue
				}
				return err
			}
			created = append(created, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Update modifies the record matching where
func (d *Delegate) Update(args M) (Record, error) {
	var out Record
	err := d.observe("update", func() (int, error) {
		if err := checkProjectionArgs(args); err != nil {
			return 0, err
		}
		where, err := requireWhere(args)
		if err != nil {
			return 0, err
		}
		e := d.engine
		existing := e.findFirstRaw(d.entity, where)
		if existing == nil {
			return 0, &NotFoundError{Entity: d.entity.Name, Cause: CauseUpdateNotFound}
		}
		data := asWhere(args["data"])
		var rec Record
		err = e.atomic(hasNestedWrites(d.entity, data), func() error {
			var err error
			rec, err = e.updateRecord(d.entity, existing, data)
			return err
		})
		if err != nil {
			return 0, err
		}
		out, err = e.project(d.entity, rec, args)
		return 1, err
	})
	return out, err
}

// UpdateMany applies data to every matching record and returns the count
func (d *Delegate) UpdateMany(args M) (int, error) {
	var n int
	err := d.observe("updateMany", func() (int, error) {
		recs, err := d.updateMany(args)
		n = len(recs)
		return n, err
	})
	return n, err
}

// UpdateManyAndReturn is UpdateMany returning the updated records
func (d *Delegate) UpdateManyAndReturn(args M) ([]Record, error) {
	var out []Record
	err := d.observe("updateManyAndReturn", func() (int, error) {
		if err := checkProjectionArgs(args); err != nil {
			return 0, err
		}
		recs, err := d.updateMany(args)
		if err != nil {
			return 0, err
		}
		out, err = d.projectAll(recs, args)
		return len(out), err
	})
	return out, err
}

func (d *Delegate) updateMany(args M) ([]Record, error) {
	e := d.engine
	data := asWhere(args["data"])
	matched := e.filterRecords(d.entity, asWhere(args["where"]))
	if limit, ok := toInt(args["limit"]); ok && limit >= 0 && limit < len(matched) {
		matched = matched[:limit]
	}
	var updated []Record
	err := e.atomic(len(matched) > 1 || hasNestedWrites(d.entity, data), func() error {
		for _, rec := range matched {
			if !e.store.contains(d.entity.Name, rec) {
				continue
			}
			u, err := e.updateRecord(d.entity, rec, data)
			if err != nil {
				return err
			}
			updated = append(updated, u)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Upsert updates the record matching where, or creates one
func (d *Delegate) Upsert(args M) (Record, error) {
	var out Record
	err := d.observe("upsert", func() (int, error) {
		if err := checkProjectionArgs(args); err != nil {
			return 0, err
		}
		where, err := requireWhere(args)
		if err != nil {
			return 0, err
		}
		e := d.engine
		existing := e.findFirstRaw(d.entity, where)
		nested := hasNestedWrites(d.entity, asWhere(args["create"]))
		if existing != nil {
			nested = hasNestedWrites(d.entity, asWhere(args["update"]))
		}
		var rec Record
		err = e.atomic(nested, func() error {
			var err error
			if existing != nil {
				rec, err = e.updateRecord(d.entity, existing, asWhere(args["update"]))
				return err
			}
			rec, err = e.createRecord(d.entity, asWhere(args["create"]))
			return err
		})
		if err != nil {
			return 0, err
		}
		out, err = e.project(d.entity, rec, args)
		return 1, err
	})
	return out, err
}

// Delete removes the record matching where and returns it as it was
func (d *Delegate) Delete(args M) (Record, error) {
	var out Record
	err := d.observe("delete", func() (int, error) {
		if err := checkProjectionArgs(args); err != nil {
			return 0, err
		}
		where, err := requireWhere(args)
		if err != nil {
			return 0, err
		}
		e := d.engine
		rec := e.findFirstRaw(d.entity, where)
		if rec == nil {
			return 0, &NotFoundError{Entity: d.entity.Name, Cause: CauseDeleteNotFound}
		}
		projected, err := e.project(d.entity, rec, args)
		if err != nil {
			return 0, err
		}
		if err := e.atomic(e.hasReferentialActions(d.entity), func() error { return e.deleteRecord(d.entity, rec) }); err != nil {
			return 0, err
		}
		out = projected
		return 1, nil
	})
	return out, err
}

// DeleteMany removes every matching record and returns the count
func (d *Delegate) DeleteMany(args M) (int, error) {
	var n int
	err := d.observe("deleteMany", func() (int, error) {
		e := d.engine
		matched := e.filterRecords(d.entity, asWhere(args["where"]))
		if limit, ok := toInt(args["limit"]); ok && limit >= 0 && limit < len(matched) {
			matched = matched[:limit]
		}
		err := e.atomic(len(matched) > 0 && e.hasReferentialActions(d.entity), func() error {
			for _, rec := range matched {
				if !e.store.contains(d.entity.Name, rec) {
					continue
				}
				if err := e.deleteRecord(d.entity, rec); err != nil {
					return err
				}
				n++
			}
			return nil
		})
		if err != nil {
			n = 0
		}
		return n, err
	})
	return n, err
}

func (d *Delegate) projectAll(recs []Record, args M) ([]Record, error) {
	out := make([]Record, 0, len(recs))
	for _, rec := range recs {
		p, err := d.engine.project(d.entity, d.engine.current(d.entity, rec), args)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}
