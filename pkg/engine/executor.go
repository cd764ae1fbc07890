package engine

import (
	"fmt"
	"sort"
)

// ============================================================
// CANDIDATES + FILTER
// ============================================================

// filterRecords returns the live records of ent matching where, using an
// index bucket as the candidate set when one applies.
func (e *Engine) filterRecords(ent *Entity, where M) []Record {
	candidates := e.store.records(ent.Name)
	indexed := false
	if e.useIndexes && e.store.index != nil {
		if recs, ok := e.store.index.Lookup(ent.Name, where, e.caseInsensitive); ok {
			candidates, indexed = recs, true
		}
	}
	e.Debug.LogLookup(ent.Name, indexed, len(candidates))
	e.metrics.observeLookup(indexed)

	pred := e.compile(ent, where)
	out := make([]Record, 0, len(candidates))
	for _, rec := range candidates {
		if pred(rec) {
			out = append(out, rec)
		}
	}
	if indexed {
		// Buckets hold records in write order, not insertion order
		out = e.store.inCollectionOrder(ent.Name, out)
	}
	return out
}

// selectRecords runs where, distinct, orderBy, cursor and skip/take and
// returns live (unprojected) records.
func (e *Engine) selectRecords(ent *Entity, args M) ([]Record, error) {
	recs := e.filterRecords(ent, asWhere(args["where"]))

	if distinct, ok := args["distinct"]; ok {
		recs = applyDistinct(recs, distinct)
	}

	if orderBy, ok := args["orderBy"]; ok && orderBy != nil {
		cmp, err := e.comparator(ent, orderBy)
		if err != nil {
			return nil, err
		}
		sorted := make([]Record, len(recs))
		copy(sorted, recs)
		sort.SliceStable(sorted, func(i, j int) bool { return cmp(sorted[i], sorted[j]) < 0 })
		recs = sorted
	}

	start, end := 0, len(recs)
	if cursor, ok := toMap(args["cursor"]); ok && len(cursor) > 0 {
		pred := e.compile(ent, cursor)
		found := -1
		for i, rec := range recs {
			if pred(rec) {
				found = i
				break
			}
		}
		if found < 0 {
			return []Record{}, nil
		}
		start = found
	}

	skip, _ := toInt(args["skip"])
	if skip < 0 {
		skip = 0
	}

	take, hasTake := toInt(args["take"])
	if !hasTake {
		start += skip
		if start > end {
			start = end
		}
		return recs[start:end], nil
	}
	if take == 0 {
		return []Record{}, nil
	}
	if take > 0 {
		start += skip
		if start > end {
			return []Record{}, nil
		}
		if start+take < end {
			end = start + take
		}
		return recs[start:end], nil
	}

	// negative take counts backwards from the cursor (inclusive) or the end
	if _, hasCursor := args["cursor"]; hasCursor {
		end = start + 1
	}
	end -= skip
	if end <= 0 {
		return []Record{}, nil
	}
	from := end + take
	if from < 0 {
		from = 0
	}
	return recs[from:end], nil
}

// applyDistinct keeps a record only if none of its distinct field values
// has been seen before. Seen values are tracked per field.
func applyDistinct(recs []Record, distinct any) []Record {
	var fields []string
	switch d := distinct.(type) {
	case string:
		fields = []string{d}
	default:
		items, _ := toSlice(d)
		for _, item := range items {
			if s, ok := item.(string); ok {
				fields = append(fields, s)
			}
		}
	}
	if len(fields) == 0 {
		return recs
	}

	seen := make(map[string][]any, len(fields))
	out := make([]Record, 0, len(recs))
	for _, rec := range recs {
		include := true
		for _, f := range fields {
			if containsDeep(seen[f], rec[f]) {
				include = false
				continue
			}
			seen[f] = append(seen[f], rec[f])
		}
		if include {
			out = append(out, rec)
		}
	}
	return out
}

func toInt(v any) (int, bool) {
	n, ok := toFloat(v)
	if !ok {
		return 0, false
	}
	return int(n), true
}

// ============================================================
// FIND
// ============================================================

func (e *Engine) findMany(ent *Entity, args M) ([]Record, error) {
	if err := checkProjectionArgs(args); err != nil {
		return nil, err
	}
	recs, err := e.selectRecords(ent, args)
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(recs))
	for _, rec := range recs {
		projected, err := e.project(ent, rec, args)
		if err != nil {
			return nil, err
		}
		out = append(out, projected)
	}
	return out, nil
}

// findFirstRaw returns the first live record matching where, or nil
func (e *Engine) findFirstRaw(ent *Entity, where M) Record {
	recs := e.filterRecords(ent, where)
	if len(recs) == 0 {
		return nil
	}
	return recs[0]
}

func checkProjectionArgs(args M) error {
	_, hasSelect := args["select"]
	_, hasInclude := args["include"]
	_, hasOmit := args["omit"]
	if hasSelect && hasInclude {
		return &ValidationError{Field: "select", Message: "select and include cannot be used together"}
	}
	if hasSelect && hasOmit {
		return &ValidationError{Field: "select", Message: "select and omit cannot be used together"}
	}
	return nil
}

// ============================================================
// PROJECTION
// ============================================================

// project builds the output shape of rec: select allow-list, or every
// scalar minus omit plus include. Values are detached copies.
func (e *Engine) project(ent *Entity, rec Record, args M) (Record, error) {
	out := Record{}

	if sel, ok := toMap(args["select"]); ok {
		for _, key := range sortedKeys(sel) {
			spec := sel[key]
			if spec == nil || spec == false {
				continue
			}
			if err := e.projectKey(ent, rec, key, spec, out); err != nil {
				return nil, err
			}
		}
		return out, nil
	}

	omit, _ := toMap(args["omit"])
	for _, f := range ent.ScalarFields() {
		if isTrue(omit[f.Name]) {
			continue
		}
		out[f.Name] = exportValue(rec[f.Name])
	}

	if inc, ok := toMap(args["include"]); ok {
		for _, key := range sortedKeys(inc) {
			spec := inc[key]
			if spec == nil || spec == false {
				continue
			}
			if err := e.projectKey(ent, rec, key, spec, out); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

func (e *Engine) projectKey(ent *Entity, rec Record, key string, spec any, out Record) error {
	if key == "_count" {
		counts, err := e.countRelations(ent, rec, spec)
		if err != nil {
			return err
		}
		out["_count"] = counts
		return nil
	}

	f := ent.Field(key)
	if f == nil {
		return &UnknownFieldError{Entity: ent.Name, Field: key, Available: ent.FieldNames()}
	}
	if !f.IsRelation() {
		out[key] = exportValue(rec[key])
		return nil
	}

	loaded, err := e.loadRelation(ent, f, rec, spec)
	if err != nil {
		return err
	}
	out[key] = loaded
	return nil
}

// loadRelation resolves a relation for include/select by running a nested
// find on the related entity, scoped to rec.
func (e *Engine) loadRelation(ent *Entity, f *Field, rec Record, spec any) (any, error) {
	target := e.schema.GetEntity(f.Type)
	nested := M{}
	if m, ok := toMap(spec); ok {
		for k, v := range m {
			nested[k] = v
		}
	}

	where := scoped(e.relationWhere(ent, f, rec), asWhere(nested["where"]))
	if where == nil {
		if f.IsList {
			return []Record{}, nil
		}
		return nil, nil
	}
	nested["where"] = map[string]any(where)

	recs, err := e.findMany(target, nested)
	if err != nil {
		return nil, err
	}
	if f.IsList {
		return recs, nil
	}
	if len(recs) == 0 {
		return nil, nil
	}
	return recs[0], nil
}

// countRelations resolves _count: true counts every list relation,
// {select: {rel: true | {where}}} counts the named ones.
func (e *Engine) countRelations(ent *Entity, rec Record, spec any) (Record, error) {
	sel := map[string]any{}
	if isTrue(spec) {
		for _, f := range ent.Fields {
			if f.IsRelation() && f.IsList {
				sel[f.Name] = true
			}
		}
	} else if m, ok := toMap(spec); ok {
		sel, _ = toMap(m["select"])
	}

	counts := Record{}
	for _, name := range sortedKeys(sel) {
		if sel[name] == false || sel[name] == nil {
			continue
		}
		f := ent.Field(name)
		if f == nil || !f.IsRelation() {
			return nil, &ValidationError{Field: "_count", Message: fmt.Sprintf("'%s' is not a relation of %s", name, ent.Name)}
		}
		var filter M
		if m, ok := toMap(sel[name]); ok {
			filter = asWhere(m["where"])
		}
		where := scoped(e.relationWhere(ent, f, rec), filter)
		if where == nil {
			counts[name] = 0
			continue
		}
		counts[name] = len(e.filterRecords(e.schema.GetEntity(f.Type), where))
	}
	return counts, nil
}
