package engine

// IndexStore maps, per entity and indexed field, a value to the records
// holding it. Id and unique fields keep at most one record per bucket.
type IndexStore struct {
	schema  *Schema
	fields  map[string]map[string]bool // entity -> field -> unique
	buckets map[string]map[string]map[any][]Record
}

// NewIndexStore creates an empty index over the schema
func NewIndexStore(schema *Schema) *IndexStore {
	return &IndexStore{
		schema:  schema,
		fields:  make(map[string]map[string]bool),
		buckets: make(map[string]map[string]map[any][]Record),
	}
}

// registerSchema indexes every id, unique, primary-key and foreign-key
// field of every entity.
func (ix *IndexStore) registerSchema() {
	for _, ent := range ix.schema.Entities {
		pk := map[string]bool{}
		if ent.PrimaryKey != nil {
			for _, name := range ent.PrimaryKey.Fields {
				pk[name] = true
			}
		}
		for _, f := range ent.Fields {
			ix.AddIndexableField(ent.Name, f.Name, pk[f.Name])
		}
	}
}

// AddIndexableField registers a field if it is an id, unique, primary key
// component or a physical foreign key column. Reports whether it was
// registered.
func (ix *IndexStore) AddIndexableField(entity, field string, isPrimaryKeyComponent bool) bool {
	ent := ix.schema.GetEntity(entity)
	if ent == nil {
		return false
	}
	f := ent.Field(field)
	if f == nil || f.IsRelation() || f.IsList {
		return false
	}

	unique := f.IsID || f.IsUnique
	if isPrimaryKeyComponent && ent.PrimaryKey != nil && len(ent.PrimaryKey.Fields) == 1 {
		unique = true
	}
	indexable := unique || isPrimaryKeyComponent || isForeignKeyColumn(ent, field)
	if !indexable {
		return false
	}

	if ix.fields[entity] == nil {
		ix.fields[entity] = make(map[string]bool)
		ix.buckets[entity] = make(map[string]map[any][]Record)
	}
	ix.fields[entity][field] = unique
	if ix.buckets[entity][field] == nil {
		ix.buckets[entity][field] = make(map[any][]Record)
	}
	return true
}

func isForeignKeyColumn(ent *Entity, field string) bool {
	for _, f := range ent.Fields {
		if !f.HasForeignKey() {
			continue
		}
		for _, from := range f.Relation.FromFields {
			if from == field {
				return true
			}
		}
	}
	return false
}

// IsIndexed reports whether the field has an index
func (ix *IndexStore) IsIndexed(entity, field string) bool {
	_, ok := ix.fields[entity][field]
	return ok
}

// ─────────────────────────────────────────────────────────────
// Lookup
// ─────────────────────────────────────────────────────────────

// Lookup returns the candidate records for the first top-level key of
// where that names an indexed field. The second result is false when no
// index applies and the caller must scan.
func (ix *IndexStore) Lookup(entity string, where M, insensitive bool) ([]Record, bool) {
	return ix.lookup(entity, where, insensitive, true)
}

func (ix *IndexStore) lookup(entity string, where M, insensitive, descend bool) ([]Record, bool) {
	ent := ix.schema.GetEntity(entity)
	if ent == nil || len(where) == 0 {
		return nil, false
	}

	for _, key := range sortedKeys(where) {
		value := where[key]

		if key == "AND" {
			if !descend {
				continue
			}
			for _, sub := range toMapList(value) {
				if recs, ok := ix.lookup(entity, sub, insensitive, false); ok {
					return recs, true
				}
			}
			continue
		}

		if ix.IsIndexed(entity, key) {
			if recs, ok := ix.bucketFor(ent, key, value, insensitive); ok {
				return recs, true
			}
			continue
		}

		if f := ent.Field(key); f != nil {
			continue
		}
		if _, ok := ent.compositeKey(key); !ok {
			continue
		}
		inner, ok := toMap(value)
		if !ok {
			continue
		}
		for _, innerKey := range sortedKeys(inner) {
			if !ix.IsIndexed(entity, innerKey) {
				continue
			}
			if recs, ok := ix.bucketFor(ent, innerKey, inner[innerKey], insensitive); ok {
				return recs, true
			}
		}
	}
	return nil, false
}

func (ix *IndexStore) bucketFor(ent *Entity, field string, filter any, insensitive bool) ([]Record, bool) {
	value, ok := equalityOperand(filter)
	if !ok {
		return nil, false
	}
	if _, isString := value.(string); isString && insensitive {
		return nil, false
	}
	if f := ent.Field(field); f != nil {
		if n, err := normalizeScalar(f, value); err == nil {
			value = n
		}
	}
	key, ok := indexKey(value)
	if !ok {
		return nil, false
	}
	bucket := ix.buckets[ent.Name][field][key]
	out := make([]Record, len(bucket))
	copy(out, bucket)
	return out, true
}

// equalityOperand extracts v from a direct scalar filter or {equals: v}
func equalityOperand(filter any) (any, bool) {
	switch v := filter.(type) {
	case nil, NullSentinel:
		return nil, false
	case map[string]any:
		eq, ok := v["equals"]
		if !ok {
			return nil, false
		}
		for k, inner := range v {
			if k == "equals" {
				continue
			}
			if k == "mode" && inner == "default" {
				continue
			}
			return nil, false
		}
		return equalityOperand(eq)
	}
	if _, isList := toSlice(filter); isList {
		return nil, false
	}
	return filter, true
}

// ─────────────────────────────────────────────────────────────
// Maintenance
// ─────────────────────────────────────────────────────────────

// UpsertIndexEntry moves rec between buckets after a write. old is nil for
// inserts.
func (ix *IndexStore) UpsertIndexEntry(entity string, rec, old Record) {
	ent := ix.schema.GetEntity(entity)
	for field, unique := range ix.fields[entity] {
		newKey, hasNew := indexKey(rec[field])

		if old != nil {
			if oldKey, hasOld := indexKey(old[field]); hasOld && (!hasNew || oldKey != newKey) {
				ix.removeFromBucket(entity, field, oldKey, old)
			}
		}
		if !hasNew {
			continue
		}

		buckets := ix.buckets[entity][field]
		if unique {
			buckets[newKey] = []Record{rec}
			continue
		}

		bucket := buckets[newKey]
		replaced := false
		for i, r := range bucket {
			if sameRecord(r, rec) || (old != nil && sameRecord(r, old)) || samePrimaryKey(ent, r, rec) {
				bucket[i] = rec
				replaced = true
				break
			}
		}
		if !replaced {
			buckets[newKey] = append(bucket, rec)
		}
	}
}

// RemoveIndexEntry deletes rec from the bucket of its current field value
func (ix *IndexStore) RemoveIndexEntry(entity, field string, rec Record) {
	key, ok := indexKey(rec[field])
	if !ok {
		return
	}
	ix.removeFromBucket(entity, field, key, rec)
}

// RemoveRecord drops rec from every bucket of the entity
func (ix *IndexStore) RemoveRecord(entity string, rec Record) {
	for field := range ix.fields[entity] {
		ix.RemoveIndexEntry(entity, field, rec)
	}
}

func (ix *IndexStore) removeFromBucket(entity, field string, key any, rec Record) {
	buckets := ix.buckets[entity][field]
	bucket := buckets[key]
	kept := bucket[:0:0]
	for _, r := range bucket {
		if !sameRecord(r, rec) {
			kept = append(kept, r)
		}
	}
	if len(kept) == 0 {
		delete(buckets, key)
		return
	}
	buckets[key] = kept
}

// Rebuild discards every bucket and re-indexes the collections
func (ix *IndexStore) Rebuild(collections map[string][]Record) {
	for entity, fields := range ix.fields {
		for field := range fields {
			ix.buckets[entity][field] = make(map[any][]Record)
		}
	}
	for entity, coll := range collections {
		if _, ok := ix.fields[entity]; !ok {
			continue
		}
		for _, rec := range coll {
			ix.UpsertIndexEntry(entity, rec, nil)
		}
	}
}

func samePrimaryKey(ent *Entity, a, b Record) bool {
	if ent == nil {
		return false
	}
	fields := ent.PrimaryKeyFields()
	if len(fields) == 0 {
		return false
	}
	for _, f := range fields {
		if a[f] == nil || !valuesEqual(a[f], b[f]) {
			return false
		}
	}
	return true
}
