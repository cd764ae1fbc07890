package engine

import "fmt"

type comparatorFunc func(a, b Record) int

// comparator compiles an orderBy argument (one object or a list of
// objects, each naming exactly one key) into a record comparator.
func (e *Engine) comparator(ent *Entity, orderBy any) (comparatorFunc, error) {
	clauses := toMapList(orderBy)
	cmps := make([]comparatorFunc, 0, len(clauses))
	for _, clause := range clauses {
		if err := e.validator.ValidateOrderBy(clause); err != nil {
			return nil, err
		}
		for field, direction := range clause {
			cmp, err := e.clauseComparator(ent, field, direction)
			if err != nil {
				return nil, err
			}
			cmps = append(cmps, cmp)
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

func (e *Engine) clauseComparator(ent *Entity, field string, direction any) (comparatorFunc, error) {
	f := ent.Field(field)
	if f == nil {
		return nil, &UnknownFieldError{Entity: ent.Name, Field: field, Available: ent.FieldNames()}
	}

	if !f.IsRelation() {
		desc, nullsFirst, err := parseDirection(field, direction)
		if err != nil {
			return nil, err
		}
		return func(a, b Record) int {
			return compareNullable(a[field], b[field], desc, nullsFirst)
		}, nil
	}

	spec, ok := toMap(direction)
	if !ok {
		return nil, &ValidationError{Field: "orderBy", Message: fmt.Sprintf("relation '%s' needs a nested orderBy object", field)}
	}

	if f.IsList {
		countDir, ok := spec["_count"]
		if !ok || len(spec) != 1 {
			return nil, &ValidationError{Field: "orderBy", Message: fmt.Sprintf("list relation '%s' can only be ordered by _count", field)}
		}
		desc, _, err := parseDirection(field, countDir)
		if err != nil {
			return nil, err
		}
		return func(a, b Record) int {
			ca := len(e.relatedRecords(ent, f, a))
			cb := len(e.relatedRecords(ent, f, b))
			return compareNullable(ca, cb, desc, false)
		}, nil
	}

	target := e.schema.GetEntity(f.Type)
	nested, err := e.comparator(target, map[string]any(spec))
	if err != nil {
		return nil, err
	}
	return func(a, b Record) int {
		ra := e.relatedRecords(ent, f, a)
		rb := e.relatedRecords(ent, f, b)
		switch {
		case len(ra) == 0 && len(rb) == 0:
			return 0
		case len(ra) == 0:
			return 1
		case len(rb) == 0:
			return -1
		}
		return nested(ra[0], rb[0])
	}, nil
}

// parseDirection accepts "asc", "desc" or {sort, nulls}. Without an
// explicit nulls placement, nulls sort last ascending and first
// descending.
func parseDirection(field string, direction any) (desc, nullsFirst bool, err error) {
	sortDir := direction
	var nulls any
	if m, ok := toMap(direction); ok {
		sortDir = m["sort"]
		nulls = m["nulls"]
	}

	switch sortDir {
	case "asc":
	case "desc":
		desc = true
	default:
		return false, false, &ValidationError{Field: "orderBy", Message: fmt.Sprintf("invalid sort direction %v for '%s'", sortDir, field)}
	}

	switch nulls {
	case nil:
		nullsFirst = desc
	case "first":
		nullsFirst = true
	case "last":
		nullsFirst = false
	default:
		return false, false, &ValidationError{Field: "orderBy", Message: fmt.Sprintf("invalid nulls placement %v for '%s'", nulls, field)}
	}
	return desc, nullsFirst, nil
}

func compareNullable(a, b any, desc, nullsFirst bool) int {
	aNull, bNull := isNullish(a) || a == JsonNull, isNullish(b) || b == JsonNull
	switch {
	case aNull && bNull:
		return 0
	case aNull:
		if nullsFirst {
			return -1
		}
		return 1
	case bNull:
		if nullsFirst {
			return 1
		}
		return -1
	}
	c := compareValues(a, b)
	if desc {
		return -c
	}
	return c
}
