package engine

import (
	"reflect"
	"sort"
)

// Link is a many-to-many join record. A and B hold the primary key values
// of the two linked records.
type Link struct {
	A Record `json:"a" msgpack:"a"`
	B Record `json:"b" msgpack:"b"`
}

// State is a whole-store snapshot
type State struct {
	Entities map[string][]Record `json:"entities" msgpack:"entities"`
	Links    map[string][]Link   `json:"links,omitempty" msgpack:"links,omitempty"`
}

// Store owns every collection and the join side-table. All writes go
// through insert/replace/remove so the index can never be skipped.
type Store struct {
	schema      *Schema
	collections map[string][]Record
	links       map[string][]Link
	index       *IndexStore
}

func newStore(schema *Schema, index *IndexStore) *Store {
	s := &Store{
		schema:      schema,
		collections: make(map[string][]Record),
		links:       make(map[string][]Link),
		index:       index,
	}
	for _, ent := range schema.Entities {
		s.collections[ent.Name] = nil
	}
	return s
}

// records returns the live collection; callers must not mutate it
func (s *Store) records(entity string) []Record {
	return s.collections[entity]
}

func (s *Store) insert(entity string, rec Record) {
	s.collections[entity] = append(s.collections[entity], rec)
	if s.index != nil {
		s.index.UpsertIndexEntry(entity, rec, nil)
	}
}

// replace swaps old for updated in place, keeping the collection order
func (s *Store) replace(entity string, old, updated Record) {
	coll := s.collections[entity]
	for i, r := range coll {
		if sameRecord(r, old) {
			coll[i] = updated
			break
		}
	}
	if s.index != nil {
		s.index.UpsertIndexEntry(entity, updated, old)
	}
}

func (s *Store) remove(entity string, rec Record) bool {
	coll := s.collections[entity]
	for i, r := range coll {
		if sameRecord(r, rec) {
			s.collections[entity] = append(coll[:i:i], coll[i+1:]...)
			if s.index != nil {
				s.index.RemoveRecord(entity, rec)
			}
			return true
		}
	}
	return false
}

// inCollectionOrder sorts recs, a subset of the entity's records, into
// insertion order.
func (s *Store) inCollectionOrder(entity string, recs []Record) []Record {
	if len(recs) < 2 {
		return recs
	}
	pos := make(map[uintptr]int, len(s.collections[entity]))
	for i, r := range s.collections[entity] {
		pos[reflect.ValueOf(r).Pointer()] = i
	}
	sort.SliceStable(recs, func(i, j int) bool {
		return pos[reflect.ValueOf(recs[i]).Pointer()] < pos[reflect.ValueOf(recs[j]).Pointer()]
	})
	return recs
}

func (s *Store) contains(entity string, rec Record) bool {
	for _, r := range s.collections[entity] {
		if sameRecord(r, rec) {
			return true
		}
	}
	return false
}

// ─────────────────────────────────────────────────────────────
// Join side-table
// ─────────────────────────────────────────────────────────────

func (s *Store) addLink(relation string, link Link) {
	for _, l := range s.links[relation] {
		if valuesEqual(l.A, link.A) && valuesEqual(l.B, link.B) {
			return
		}
	}
	s.links[relation] = append(s.links[relation], link)
}

func (s *Store) removeLink(relation string, link Link) {
	kept := s.links[relation][:0:0]
	for _, l := range s.links[relation] {
		if valuesEqual(l.A, link.A) && valuesEqual(l.B, link.B) {
			continue
		}
		kept = append(kept, l)
	}
	s.links[relation] = kept
}

// removeLinksOf drops every link of the relation whose given side matches pk
func (s *Store) removeLinksOf(relation string, sideA bool, pk Record) {
	kept := s.links[relation][:0:0]
	for _, l := range s.links[relation] {
		side := l.B
		if sideA {
			side = l.A
		}
		if valuesEqual(side, pk) {
			continue
		}
		kept = append(kept, l)
	}
	s.links[relation] = kept
}

// linkedKeys returns the opposite-side keys of every link whose given side
// matches pk.
func (s *Store) linkedKeys(relation string, sideA bool, pk Record) []Record {
	var out []Record
	for _, l := range s.links[relation] {
		mine, other := l.B, l.A
		if sideA {
			mine, other = l.A, l.B
		}
		if valuesEqual(mine, pk) {
			out = append(out, other)
		}
	}
	return out
}

// ─────────────────────────────────────────────────────────────
// Snapshots
// ─────────────────────────────────────────────────────────────

func (s *Store) snapshot() State {
	st := State{
		Entities: make(map[string][]Record, len(s.collections)),
		Links:    make(map[string][]Link, len(s.links)),
	}
	for name, coll := range s.collections {
		out := make([]Record, len(coll))
		for i, r := range coll {
			out[i] = copyRecord(r)
		}
		st.Entities[name] = out
	}
	for name, links := range s.links {
		st.Links[name] = copyLinks(links)
	}
	return st
}

// restore replaces the whole store with a deep copy of st and rebuilds the
// index.
func (s *Store) restore(st State) {
	s.collections = make(map[string][]Record)
	for _, ent := range s.schema.Entities {
		s.collections[ent.Name] = nil
	}
	for name, coll := range st.Entities {
		out := make([]Record, len(coll))
		for i, r := range coll {
			out[i] = copyRecord(r)
		}
		s.collections[name] = out
	}
	s.links = make(map[string][]Link, len(st.Links))
	for name, links := range st.Links {
		s.links[name] = copyLinks(links)
	}
	if s.index != nil {
		s.index.Rebuild(s.collections)
	}
}

func copyLinks(links []Link) []Link {
	out := make([]Link, len(links))
	for i, l := range links {
		out[i] = Link{A: copyRecord(l.A), B: copyRecord(l.B)}
	}
	return out
}

// primaryKeyOf extracts the identifying values of rec
func primaryKeyOf(ent *Entity, rec Record) Record {
	fields := ent.PrimaryKeyFields()
	pk := make(Record, len(fields))
	for _, f := range fields {
		pk[f] = rec[f]
	}
	return pk
}
