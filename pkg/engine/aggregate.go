package engine

import (
	"fmt"
	"sort"
	"strings"
)

var aggregateKeys = []string{"_count", "_avg", "_sum", "_min", "_max"}

func isAggregateKey(k string) bool {
	for _, a := range aggregateKeys {
		if a == k {
			return true
		}
	}
	return false
}

// ============================================================
// COUNT / AGGREGATE
// ============================================================

func (e *Engine) count(ent *Entity, args M) (int, error) {
	recs, err := e.selectRecords(ent, args)
	if err != nil {
		return 0, err
	}
	return len(recs), nil
}

func (e *Engine) aggregate(ent *Entity, args M) (Record, error) {
	recs, err := e.selectRecords(ent, args)
	if err != nil {
		return nil, err
	}
	return e.computeAggregates(ent, recs, args)
}

// computeAggregates evaluates the _count/_avg/_sum/_min/_max specs of args
// over recs.
func (e *Engine) computeAggregates(ent *Entity, recs []Record, args M) (Record, error) {
	out := Record{}
	for _, key := range aggregateKeys {
		spec, ok := args[key]
		if !ok || spec == nil || spec == false {
			continue
		}

		if key == "_count" && isTrue(spec) {
			out["_count"] = len(recs)
			continue
		}

		fields, ok := toMap(spec)
		if !ok {
			return nil, &ValidationError{Field: key, Message: "expected an object of field names"}
		}
		result := Record{}
		for _, name := range sortedKeys(fields) {
			if !isTrue(fields[name]) {
				continue
			}
			if key == "_count" && name == "_all" {
				result["_all"] = len(recs)
				continue
			}
			f := ent.Field(name)
			if f == nil || f.IsRelation() {
				return nil, &UnknownFieldError{Entity: ent.Name, Field: name, Available: ent.FieldNames()}
			}
			result[name] = aggregateField(key, f, recs)
		}
		out[key] = result
	}
	return out, nil
}

func aggregateField(op string, f *Field, recs []Record) any {
	switch op {
	case "_count":
		n := 0
		for _, r := range recs {
			if !isNullish(r[f.Name]) {
				n++
			}
		}
		return n

	case "_avg", "_sum":
		var sum float64
		var isum int64
		n := 0
		exact := op == "_sum" && (f.Type == TypeInt || f.Type == TypeBigInt)
		for _, r := range recs {
			v, ok := toFloat(r[f.Name])
			if !ok {
				continue
			}
			sum += v
			n++
			if i, ok := toExactInt(r[f.Name]); ok {
				isum += i
			} else {
				exact = false
			}
		}
		if n == 0 {
			return nil
		}
		if op == "_avg" {
			return sum / float64(n)
		}
		switch f.Type {
		case TypeInt:
			if exact {
				return int(isum)
			}
			return int(sum)
		case TypeBigInt:
			if exact {
				return isum
			}
			return int64(sum)
		}
		return sum

	case "_min", "_max":
		var best any
		for _, r := range recs {
			v := r[f.Name]
			if isNullish(v) || v == JsonNull {
				continue
			}
			if best == nil {
				best = v
				continue
			}
			c := compareValues(v, best)
			if (op == "_min" && c < 0) || (op == "_max" && c > 0) {
				best = v
			}
		}
		return exportValue(best)
	}
	return nil
}

// ============================================================
// GROUP BY
// ============================================================

func (e *Engine) groupBy(ent *Entity, args M) ([]Record, error) {
	by := stringList(args["by"])
	if len(by) == 0 {
		return nil, &ValidationError{Field: "by", Message: "groupBy needs at least one field"}
	}
	for _, name := range by {
		if f := ent.Field(name); f == nil || f.IsRelation() {
			return nil, &UnknownFieldError{Entity: ent.Name, Field: name, Available: ent.FieldNames()}
		}
	}

	recs := e.filterRecords(ent, asWhere(args["where"]))

	var order []string
	groups := map[string][]Record{}
	for _, rec := range recs {
		key := groupKey(rec, by)
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], rec)
	}

	having := asWhere(args["having"])
	havingSpec := havingAggregates(having)

	out := make([]Record, 0, len(order))
	for _, key := range order {
		members := groups[key]
		row := Record{}
		for _, name := range by {
			row[name] = exportValue(members[0][name])
		}
		aggs, err := e.computeAggregates(ent, members, args)
		if err != nil {
			return nil, err
		}

		if len(having) > 0 {
			havingRow := Record{}
			for k, v := range row {
				havingRow[k] = v
			}
			havingAggs, err := e.computeAggregates(ent, members, havingSpec)
			if err != nil {
				return nil, err
			}
			for k, v := range havingAggs {
				havingRow[k] = v
			}
			if !e.evalHaving(ent, havingRow, having) {
				continue
			}
		}

		for k, v := range aggs {
			row[k] = v
		}
		out = append(out, row)
	}

	if orderBy, ok := args["orderBy"]; ok && orderBy != nil {
		cmp, err := e.groupComparator(ent, orderBy)
		if err != nil {
			return nil, err
		}
		sort.SliceStable(out, func(i, j int) bool { return cmp(out[i], out[j]) < 0 })
	}

	skip, _ := toInt(args["skip"])
	if skip < 0 {
		skip = 0
	}
	if skip > len(out) {
		skip = len(out)
	}
	out = out[skip:]
	if take, ok := toInt(args["take"]); ok && take >= 0 && take < len(out) {
		out = out[:take]
	}
	return out, nil
}

func stringList(v any) []string {
	if s, ok := v.(string); ok {
		return []string{s}
	}
	if s, ok := v.([]string); ok {
		return s
	}
	items, _ := toSlice(v)
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func groupKey(rec Record, by []string) string {
	parts := make([]string, len(by))
	for i, name := range by {
		v := rec[name]
		if k, ok := indexKey(v); ok {
			parts[i] = fmt.Sprintf("%T:%v", k, k)
			continue
		}
		if isNullish(v) {
			parts[i] = "null"
			continue
		}
		parts[i] = fmt.Sprintf("%T:%v", v, v)
	}
	return strings.Join(parts, "\x00")
}

// havingAggregates collects, as aggregate specs, every aggregate a having
// clause references. They are computed beside the requested ones so a
// row never carries an aggregate that was only needed for filtering.
func havingAggregates(having M) M {
	spec := M{}
	var walk func(h M)
	walk = func(h M) {
		for _, field := range sortedKeys(h) {
			if field == "AND" || field == "OR" || field == "NOT" {
				for _, sub := range toMapList(h[field]) {
					walk(sub)
				}
				continue
			}
			filters, ok := toMap(h[field])
			if !ok {
				continue
			}
			for agg := range filters {
				if !isAggregateKey(agg) {
					continue
				}
				fields, _ := toMap(spec[agg])
				if fields == nil {
					fields = map[string]any{}
					spec[agg] = fields
				}
				fields[field] = true
			}
		}
	}
	walk(having)
	return spec
}

// evalHaving applies a having clause to one group row
func (e *Engine) evalHaving(ent *Entity, row Record, having M) bool {
	for _, key := range sortedKeys(having) {
		value := having[key]
		switch key {
		case "AND":
			for _, sub := range toMapList(value) {
				if !e.evalHaving(ent, row, sub) {
					return false
				}
			}
			continue
		case "OR":
			matched := false
			for _, sub := range toMapList(value) {
				if e.evalHaving(ent, row, sub) {
					matched = true
					break
				}
			}
			if !matched {
				return false
			}
			continue
		case "NOT":
			for _, sub := range toMapList(value) {
				if e.evalHaving(ent, row, sub) {
					return false
				}
			}
			continue
		}

		f := ent.Field(key)
		if f == nil {
			continue
		}
		filters, ok := toMap(value)
		if !ok || isOperatorObject(filters) {
			if !e.scalarPredicate(f, value)(row) {
				return false
			}
			continue
		}
		for agg, filter := range filters {
			if !isAggregateKey(agg) {
				continue
			}
			aggValues, _ := row[agg].(Record)
			numeric := &Field{Name: key, Kind: FieldKindScalar, Type: TypeFloat}
			if agg == "_min" || agg == "_max" {
				numeric = f
			}
			if !e.scalarPredicate(numeric, filter)(Record{key: aggValues[key]}) {
				return false
			}
		}
	}
	return true
}

// groupComparator orders group rows by grouping fields or aggregates
// ({_avg: {age: "desc"}}).
func (e *Engine) groupComparator(ent *Entity, orderBy any) (comparatorFunc, error) {
	clauses := toMapList(orderBy)
	cmps := make([]comparatorFunc, 0, len(clauses))
	for _, clause := range clauses {
		if err := e.validator.ValidateOrderBy(clause); err != nil {
			return nil, err
		}
		for key, direction := range clause {
			if isAggregateKey(key) {
				fields, ok := toMap(direction)
				if !ok {
					return nil, &ValidationError{Field: "orderBy", Message: fmt.Sprintf("%s needs an object of field directions", key)}
				}
				for name, dir := range fields {
					desc, nullsFirst, err := parseDirection(name, dir)
					if err != nil {
						return nil, err
					}
					agg, field := key, name
					cmps = append(cmps, func(a, b Record) int {
						av, _ := a[agg].(Record)
						bv, _ := b[agg].(Record)
						return compareNullable(av[field], bv[field], desc, nullsFirst)
					})
				}
				continue
			}
			desc, nullsFirst, err := parseDirection(key, direction)
			if err != nil {
				return nil, err
			}
			field := key
			cmps = append(cmps, func(a, b Record) int {
				return compareNullable(a[field], b[field], desc, nullsFirst)
			})
		}
	}
	return func(a, b Record) int {
		for _, cmp := range cmps {
			if c := cmp(a, b); c != 0 {
				return c
			}
		}
		return 0
	}, nil
}
