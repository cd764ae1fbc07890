package engine

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Predicate reports whether a record satisfies a compiled filter
type Predicate func(Record) bool

func matchAll(Record) bool  { return true }
func matchNone(Record) bool { return false }

// ============================================================
// COMPILATION
// ============================================================

// compile turns a where clause into a predicate over records of ent.
// Keys that name nothing in the entity are ignored.
func (e *Engine) compile(ent *Entity, where M) Predicate {
	if len(where) == 0 {
		return matchAll
	}

	var preds []Predicate
	for _, key := range sortedKeys(where) {
		value := where[key]

		switch key {
		case "AND":
			preds = append(preds, allOf(e.compileEach(ent, value)))
			continue
		case "OR":
			preds = append(preds, anyOf(e.compileEach(ent, value)))
			continue
		case "NOT":
			preds = append(preds, noneOf(e.compileEach(ent, value)))
			continue
		}

		f := ent.Field(key)
		if f == nil {
			if ck, ok := ent.compositeKey(key); ok {
				preds = append(preds, compositeKeyPredicate(ent, ck, value))
			}
			continue
		}

		switch f.Kind {
		case FieldKindRelation:
			preds = append(preds, e.relationPredicate(ent, f, value))
		case FieldKindScalar, FieldKindEnum:
			preds = append(preds, e.scalarPredicate(f, value))
		}
	}
	return allOf(preds)
}

func (e *Engine) compileEach(ent *Entity, value any) []Predicate {
	subs := toMapList(value)
	preds := make([]Predicate, 0, len(subs))
	for _, sub := range subs {
		preds = append(preds, e.compile(ent, sub))
	}
	return preds
}

func allOf(preds []Predicate) Predicate {
	if len(preds) == 1 {
		return preds[0]
	}
	return func(r Record) bool {
		for _, p := range preds {
			if !p(r) {
				return false
			}
		}
		return true
	}
}

// anyOf over an empty list never matches
func anyOf(preds []Predicate) Predicate {
	return func(r Record) bool {
		for _, p := range preds {
			if p(r) {
				return true
			}
		}
		return false
	}
}

// noneOf negates each sub-filter. A null field fails every positive
// sub-filter, so NOT over a null field is permissive.
func noneOf(preds []Predicate) Predicate {
	return func(r Record) bool {
		for _, p := range preds {
			if p(r) {
				return false
			}
		}
		return true
	}
}

func compositeKeyPredicate(ent *Entity, ck CompositeKey, value any) Predicate {
	parts, ok := toMap(value)
	if !ok {
		return matchAll
	}
	want := make(map[string]any, len(ck.Fields))
	for _, name := range ck.Fields {
		v := parts[name]
		if f := ent.Field(name); f != nil {
			if n, err := normalizeScalar(f, v); err == nil && v != nil {
				v = n
			}
		}
		want[name] = v
	}
	return func(r Record) bool {
		for name, v := range want {
			if !valuesEqual(r[name], v) {
				return false
			}
		}
		return true
	}
}

// ============================================================
// RELATION FILTERS
// ============================================================

func (e *Engine) relationPredicate(ent *Entity, f *Field, value any) Predicate {
	target := e.schema.GetEntity(f.Type)
	if target == nil {
		return matchAll
	}

	related := func(r Record) []Record {
		return e.relatedRecords(ent, f, r)
	}

	if value == nil {
		return func(r Record) bool { return len(related(r)) == 0 }
	}
	filter, ok := toMap(value)
	if !ok {
		return matchAll
	}

	if f.IsList {
		var preds []Predicate
		if sub, ok := filter["some"]; ok {
			p := e.compile(target, asWhere(sub))
			preds = append(preds, func(r Record) bool {
				for _, rel := range related(r) {
					if p(rel) {
						return true
					}
				}
				return false
			})
		}
		if sub, ok := filter["every"]; ok {
			p := e.compile(target, asWhere(sub))
			preds = append(preds, func(r Record) bool {
				for _, rel := range related(r) {
					if !p(rel) {
						return false
					}
				}
				return true
			})
		}
		if sub, ok := filter["none"]; ok {
			p := e.compile(target, asWhere(sub))
			preds = append(preds, func(r Record) bool {
				for _, rel := range related(r) {
					if p(rel) {
						return false
					}
				}
				return true
			})
		}
		return allOf(preds)
	}

	_, hasIs := filter["is"]
	_, hasIsNot := filter["isNot"]
	if !hasIs && !hasIsNot {
		p := e.compile(target, filter)
		return func(r Record) bool {
			rel := related(r)
			return len(rel) > 0 && p(rel[0])
		}
	}

	var preds []Predicate
	if hasIs {
		if filter["is"] == nil {
			preds = append(preds, func(r Record) bool { return len(related(r)) == 0 })
		} else {
			p := e.compile(target, asWhere(filter["is"]))
			preds = append(preds, func(r Record) bool {
				rel := related(r)
				return len(rel) > 0 && p(rel[0])
			})
		}
	}
	if hasIsNot {
		if filter["isNot"] == nil {
			preds = append(preds, func(r Record) bool { return len(related(r)) > 0 })
		} else {
			p := e.compile(target, asWhere(filter["isNot"]))
			preds = append(preds, func(r Record) bool {
				rel := related(r)
				return len(rel) == 0 || !p(rel[0])
			})
		}
	}
	return allOf(preds)
}

func asWhere(v any) M {
	m, _ := toMap(v)
	return m
}

// ============================================================
// SCALAR FILTERS
// ============================================================

var filterOperators = map[string]bool{
	"equals": true, "not": true, "in": true, "notIn": true,
	"lt": true, "lte": true, "gt": true, "gte": true,
	"contains": true, "startsWith": true, "endsWith": true, "mode": true,
	"string_contains": true, "string_starts_with": true, "string_ends_with": true,
	"path": true, "array_contains": true, "array_starts_with": true, "array_ends_with": true,
	"has": true, "hasSome": true, "hasEvery": true, "isEmpty": true,
}

func isOperatorObject(m map[string]any) bool {
	if len(m) == 0 {
		return false
	}
	for k := range m {
		if !filterOperators[k] {
			return false
		}
	}
	return true
}

func (e *Engine) scalarPredicate(f *Field, value any) Predicate {
	if ops, ok := toMap(value); ok && isOperatorObject(ops) {
		return func(r Record) bool {
			return e.evalOperators(f, r[f.Name], ops)
		}
	}
	operand := coerceOperand(f, value)
	insensitive := e.caseInsensitive
	return func(r Record) bool {
		return equalsWithNulls(r[f.Name], operand, insensitive)
	}
}

func (e *Engine) evalOperators(f *Field, value any, ops map[string]any) bool {
	insensitive := e.caseInsensitive || ops["mode"] == "insensitive"

	if path, ok := ops["path"]; ok {
		value = navigatePath(value, path)
		// operands under a path compare against raw JSON values
		f = &Field{Name: f.Name, Kind: FieldKindScalar, Type: TypeJSON}
	}

	for _, op := range sortedKeys(ops) {
		operand := ops[op]
		if op != "not" && op != "in" && op != "notIn" {
			operand = coerceOperand(f, operand)
		}
		if !evalOperator(f, op, value, operand, insensitive, e) {
			return false
		}
	}
	return true
}

func evalOperator(f *Field, op string, value, operand any, insensitive bool, e *Engine) bool {
	switch op {
	case "mode", "path":
		return true

	case "equals":
		return equalsWithNulls(value, operand, insensitive)

	case "not":
		if nested, ok := toMap(operand); ok && isOperatorObject(nested) {
			return !e.evalOperators(f, value, nested)
		}
		return !equalsWithNulls(value, coerceOperand(f, operand), insensitive)

	case "in":
		if isNullish(value) {
			return false
		}
		items, _ := toSlice(operand)
		for _, item := range items {
			if equalFold(value, coerceOperand(f, item), insensitive) {
				return true
			}
		}
		return false

	case "notIn":
		if isNullish(value) {
			return true
		}
		items, _ := toSlice(operand)
		for _, item := range items {
			if equalFold(value, coerceOperand(f, item), insensitive) {
				return false
			}
		}
		return true

	case "lt", "lte", "gt", "gte":
		if isNullish(value) || isNullish(operand) {
			return false
		}
		if s, ok := value.(string); ok && insensitive {
			value = lower(s)
			if o, ok := operand.(string); ok {
				operand = lower(o)
			}
		}
		c := compareValues(value, operand)
		switch op {
		case "lt":
			return c < 0
		case "lte":
			return c <= 0
		case "gt":
			return c > 0
		}
		return c >= 0

	case "contains", "string_contains":
		return stringOp(value, operand, insensitive, strings.Contains)
	case "startsWith", "string_starts_with":
		return stringOp(value, operand, insensitive, strings.HasPrefix)
	case "endsWith", "string_ends_with":
		return stringOp(value, operand, insensitive, strings.HasSuffix)

	case "array_contains":
		items, ok := toSlice(value)
		if !ok {
			return false
		}
		want, ok := toSlice(operand)
		if !ok {
			want = []any{operand}
		}
		for _, w := range want {
			if !containsDeep(items, w) {
				return false
			}
		}
		return true

	case "array_starts_with", "array_ends_with":
		items, ok := toSlice(value)
		if !ok || len(items) == 0 {
			return false
		}
		if op == "array_starts_with" {
			return valuesEqual(items[0], operand)
		}
		return valuesEqual(items[len(items)-1], operand)

	case "has":
		items, _ := toSlice(value)
		return containsDeep(items, operand)
	case "hasSome":
		items, _ := toSlice(value)
		want, _ := toSlice(operand)
		for _, w := range want {
			if containsDeep(items, w) {
				return true
			}
		}
		return false
	case "hasEvery":
		items, _ := toSlice(value)
		want, _ := toSlice(operand)
		for _, w := range want {
			if !containsDeep(items, w) {
				return false
			}
		}
		return true
	case "isEmpty":
		items, _ := toSlice(value)
		return (len(items) == 0) == isTrue(operand)
	}
	return true
}

// equalsWithNulls compares a stored value against a filter operand,
// honouring the null sentinels: DbNull and nil match a database null,
// JsonNull matches only a stored JSON null, AnyNull matches either.
func equalsWithNulls(value, operand any, insensitive bool) bool {
	if s, ok := operand.(NullSentinel); ok {
		switch s {
		case DbNull:
			return value == nil || value == DbNull
		case JsonNull:
			return value == JsonNull
		case AnyNull:
			return value == nil || value == DbNull || value == JsonNull
		}
	}
	if operand == nil {
		return value == nil || value == DbNull
	}
	if value == JsonNull || value == DbNull {
		return false
	}
	return equalFold(value, operand, insensitive)
}

func equalFold(value, operand any, insensitive bool) bool {
	if insensitive {
		vs, ok1 := value.(string)
		o, ok2 := operand.(string)
		if ok1 && ok2 {
			return lower(vs) == lower(o)
		}
	}
	return valuesEqual(value, operand)
}

func stringOp(value, operand any, insensitive bool, fn func(s, substr string) bool) bool {
	vs, ok := value.(string)
	if !ok {
		return false
	}
	o, ok := operand.(string)
	if !ok {
		return false
	}
	if insensitive {
		vs, o = lower(vs), lower(o)
	}
	return fn(vs, o)
}

func containsDeep(items []any, want any) bool {
	for _, item := range items {
		if valuesEqual(item, want) {
			return true
		}
	}
	return false
}

func lower(s string) string {
	return cases.Lower(language.Und).String(s)
}

// navigatePath walks a JSON value by a list of keys (or a dotted string)
func navigatePath(value any, path any) any {
	var segments []string
	switch p := path.(type) {
	case string:
		segments = strings.Split(p, ".")
	default:
		items, _ := toSlice(p)
		for _, item := range items {
			if s, ok := item.(string); ok {
				segments = append(segments, s)
			}
		}
	}
	current := value
	for _, seg := range segments {
		switch node := current.(type) {
		case map[string]any:
			next, ok := node[seg]
			if !ok {
				return nil
			}
			current = next
		default:
			items, ok := toSlice(node)
			if !ok {
				return nil
			}
			idx := 0
			for _, ch := range seg {
				if ch < '0' || ch > '9' {
					return nil
				}
				idx = idx*10 + int(ch-'0')
			}
			if idx >= len(items) {
				return nil
			}
			current = items[idx]
		}
	}
	return current
}

// coerceOperand normalizes a filter operand to the field's stored type so
// that RFC 3339 strings compare against DateTime values.
func coerceOperand(f *Field, operand any) any {
	if operand == nil {
		return nil
	}
	if _, ok := operand.(NullSentinel); ok {
		return operand
	}
	if f.Type == TypeDateTime {
		if s, ok := operand.(string); ok {
			if n, err := normalizeScalar(f, s); err == nil {
				return n
			}
		}
	}
	return operand
}
