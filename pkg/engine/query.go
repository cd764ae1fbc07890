package engine

import (
	"context"
	"fmt"
	"strings"
)

// FilterCondition is one Filter() call
type FilterCondition struct {
	Path  []string
	Op    string // "eq", "neq", "gt", etc.
	Value any
}

// OrderByClause is one OrderBy() call
type OrderByClause struct {
	Field     string
	Direction string // "asc", "desc"
}

// --- Query Builder ---

// QueryBuilder provides a chainable API over Delegate.FindMany
type QueryBuilder struct {
	engine *Engine
	entity string

	filters  []FilterCondition
	where    []M
	includes [][]string
	orderBy  []OrderByClause
	limit    *int
	offset   *int

	debugLevel *DebugLevel
}

// Query starts a new query for the given entity
func (e *Engine) Query(entity string) *QueryBuilder {
	return &QueryBuilder{
		engine: e,
		entity: entity,
	}
}

// Filter adds a filter condition
// field: "email" or "orders.total" (supports relation navigation)
// op: "eq", "neq", "gt", "gte", "lt", "lte", "like", "in", "contains",
// "startsWith", "endsWith"
func (qb *QueryBuilder) Filter(field string, op string, value any) *QueryBuilder {
	qb.filters = append(qb.filters, FilterCondition{
		Path:  splitPath(field),
		Op:    op,
		Value: value,
	})
	return qb
}

// Where adds a raw where clause, ANDed with the other filters
func (qb *QueryBuilder) Where(where M) *QueryBuilder {
	qb.where = append(qb.where, where)
	return qb
}

// Include adds eager loading for a relation
// Supports nested paths: "orders", "orders.items"
func (qb *QueryBuilder) Include(path string) *QueryBuilder {
	qb.includes = append(qb.includes, splitPath(path))
	return qb
}

// OrderBy adds a sort clause
// direction: "asc" or "desc"
func (qb *QueryBuilder) OrderBy(field string, direction string) *QueryBuilder {
	dir := "asc"
	if direction == "desc" {
		dir = "desc"
	}
	qb.orderBy = append(qb.orderBy, OrderByClause{
		Field:     field,
		Direction: dir,
	})
	return qb
}

// Limit sets the maximum number of results
func (qb *QueryBuilder) Limit(n int) *QueryBuilder {
	qb.limit = &n
	return qb
}

// Offset sets the number of results to skip
func (qb *QueryBuilder) Offset(n int) *QueryBuilder {
	qb.offset = &n
	return qb
}

// Debug logs this query's operations
func (qb *QueryBuilder) Debug() *QueryBuilder {
	level := DebugOps
	qb.debugLevel = &level
	return qb
}

// DebugTrace logs this query with a full trace
func (qb *QueryBuilder) DebugTrace() *QueryBuilder {
	level := DebugTrace
	qb.debugLevel = &level
	return qb
}

// Args builds the findMany arguments without executing
// Useful for debugging and testing
func (qb *QueryBuilder) Args() (M, error) {
	ent := qb.engine.schema.GetEntity(qb.entity)
	if ent == nil {
		return nil, &UnknownEntityError{Entity: qb.entity, Available: qb.engine.schema.EntityNames()}
	}

	args := M{}
	var clauses []any
	for _, fc := range qb.filters {
		clause, err := filterClause(qb.engine.schema, ent, fc.Path, fc.Op, fc.Value)
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, clause)
	}
	for _, w := range qb.where {
		clauses = append(clauses, map[string]any(w))
	}
	switch len(clauses) {
	case 0:
	case 1:
		args["where"] = clauses[0]
	default:
		args["where"] = M{"AND": clauses}
	}

	if len(qb.includes) > 0 {
		include := M{}
		for _, path := range qb.includes {
			mergeInclude(include, path)
		}
		args["include"] = include
	}

	if len(qb.orderBy) > 0 {
		order := make([]any, 0, len(qb.orderBy))
		for _, ob := range qb.orderBy {
			order = append(order, M{ob.Field: ob.Direction})
		}
		args["orderBy"] = order
	}
	if qb.limit != nil {
		args["take"] = *qb.limit
	}
	if qb.offset != nil {
		args["skip"] = *qb.offset
	}
	return args, nil
}

// Execute runs the query through the entity's Delegate
func (qb *QueryBuilder) Execute(ctx context.Context) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	args, err := qb.Args()
	if err != nil {
		return nil, err
	}
	d, err := qb.engine.LookupModel(qb.entity)
	if err != nil {
		return nil, err
	}

	previous := qb.engine.Debug
	qb.engine.Debug = qb.getDebugContext()
	defer func() { qb.engine.Debug = previous }()

	return d.FindMany(args)
}

// getDebugContext returns the query override, or the engine's context
func (qb *QueryBuilder) getDebugContext() *DebugContext {
	base := qb.engine.Debug
	if base == nil {
		base = DefaultDebugContext()
	}
	if qb.debugLevel == nil {
		return base
	}
	return &DebugContext{
		Level:        *qb.debugLevel,
		Writer:       base.Writer,
		EnableTiming: base.EnableTiming,
		ColorOutput:  base.ColorOutput,
	}
}

// --- Helpers ---

// filterClause turns a path and operator into a where object, nesting
// through relations: list relations use "some", singular ones "is".
func filterClause(schema *Schema, ent *Entity, path []string, op string, value any) (M, error) {
	if len(path) == 0 {
		return nil, &ValidationError{Field: "filter", Message: "empty field path"}
	}
	f := ent.Field(path[0])
	if f == nil {
		return nil, &UnknownFieldError{Entity: ent.Name, Field: path[0], Available: ent.FieldNames()}
	}

	if len(path) > 1 {
		if !f.IsRelation() {
			return nil, &ValidationError{Field: strings.Join(path, "."), Message: fmt.Sprintf("'%s' is not a relation", f.Name)}
		}
		inner, err := filterClause(schema, schema.GetEntity(f.Type), path[1:], op, value)
		if err != nil {
			return nil, err
		}
		if f.IsList {
			return M{f.Name: M{"some": inner}}, nil
		}
		return M{f.Name: M{"is": inner}}, nil
	}

	operator, operand, err := goOpToFilter(op, value)
	if err != nil {
		return nil, err
	}
	return M{f.Name: M{operator: operand}}, nil
}

func goOpToFilter(op string, value any) (string, any, error) {
	ops := map[string]string{
		"eq":         "equals",
		"neq":        "not",
		"gt":         "gt",
		"gte":        "gte",
		"lt":         "lt",
		"lte":        "lte",
		"in":         "in",
		"contains":   "contains",
		"startsWith": "startsWith",
		"endsWith":   "endsWith",
	}
	if op == "like" {
		pattern, ok := value.(string)
		if !ok {
			return "", nil, &ValidationError{Field: "like", Message: "pattern must be a string"}
		}
		return likeToFilter(pattern)
	}
	if filterOp, ok := ops[op]; ok {
		return filterOp, value, nil
	}
	return "", nil, &ValidationError{Field: "filter", Message: fmt.Sprintf("unsupported operator '%s'", op)}
}

// likeToFilter maps %x%, x% and %x patterns to contains/startsWith/endsWith
func likeToFilter(pattern string) (string, any, error) {
	leading := strings.HasPrefix(pattern, "%")
	trailing := strings.HasSuffix(pattern, "%") && len(pattern) > 1
	core := strings.TrimSuffix(strings.TrimPrefix(pattern, "%"), "%")
	if strings.ContainsAny(core, "%_") {
		return "", nil, &ValidationError{Field: "like", Message: fmt.Sprintf("unsupported pattern %q", pattern)}
	}
	switch {
	case leading && trailing:
		return "contains", core, nil
	case trailing:
		return "startsWith", core, nil
	case leading:
		return "endsWith", core, nil
	}
	return "equals", core, nil
}

func mergeInclude(include M, path []string) {
	if len(path) == 0 {
		return
	}
	head := path[0]
	if len(path) == 1 {
		if _, ok := include[head]; !ok {
			include[head] = true
		}
		return
	}
	nested, ok := toMap(include[head])
	if !ok {
		nested = M{}
	}
	inner, ok := toMap(nested["include"])
	if !ok {
		inner = M{}
	}
	mergeInclude(inner, path[1:])
	nested["include"] = inner
	include[head] = nested
}

func splitPath(path string) []string {
	segments := []string{}
	current := ""
	for _, ch := range path {
		if ch == '.' {
			if current != "" {
				segments = append(segments, current)
				current = ""
			}
		} else {
			current += string(ch)
		}
	}
	if current != "" {
		segments = append(segments, current)
	}
	return segments
}
