package state

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"github.com/chameleon-db/chameleon-mock/pkg/engine"
	"github.com/vmihailenco/msgpack/v5"
)

// FormatVersion is written into every snapshot file
const FormatVersion = "1"

// sentinelKey wraps a NullSentinel, which msgpack would otherwise flatten
// into a plain string.
const sentinelKey = "$sentinel"

// Snapshot is a saved engine State plus the metadata needed to reload it
type Snapshot struct {
	Version    string                     `msgpack:"v"`
	Name       string                     `msgpack:"name"`
	CreatedAt  time.Time                  `msgpack:"created_at"`
	SchemaHash string                     `msgpack:"schema_hash"`
	Entities   map[string][]engine.Record `msgpack:"entities"`
	Links      map[string][]engine.Link   `msgpack:"links,omitempty"`
}

// NewSnapshot captures st. Records are encoded copies; st is not retained.
func NewSnapshot(name, schemaHash string, st engine.State) *Snapshot {
	snap := &Snapshot{
		Version:    FormatVersion,
		Name:       name,
		CreatedAt:  time.Now().UTC(),
		SchemaHash: schemaHash,
		Entities:   make(map[string][]engine.Record, len(st.Entities)),
	}
	for entity, recs := range st.Entities {
		out := make([]engine.Record, len(recs))
		for i, rec := range recs {
			out[i] = encodeRecord(rec)
		}
		snap.Entities[entity] = out
	}
	if len(st.Links) > 0 {
		snap.Links = make(map[string][]engine.Link, len(st.Links))
		for relation, links := range st.Links {
			out := make([]engine.Link, len(links))
			for i, l := range links {
				out[i] = engine.Link{A: encodeRecord(l.A), B: encodeRecord(l.B)}
			}
			snap.Links[relation] = out
		}
	}
	return snap
}

// State rebuilds the engine State. Pass it to engine.WithSeedState, which
// normalizes every field to its schema type.
func (s *Snapshot) State() engine.State {
	st := engine.State{
		Entities: make(map[string][]engine.Record, len(s.Entities)),
		Links:    make(map[string][]engine.Link, len(s.Links)),
	}
	for entity, recs := range s.Entities {
		out := make([]engine.Record, len(recs))
		for i, rec := range recs {
			out[i] = decodeRecord(rec)
		}
		st.Entities[entity] = out
	}
	for relation, links := range s.Links {
		out := make([]engine.Link, len(links))
		for i, l := range links {
			out[i] = engine.Link{A: decodeRecord(l.A), B: decodeRecord(l.B)}
		}
		st.Links[relation] = out
	}
	return st
}

// RecordCount returns the number of stored records across entities
func (s *Snapshot) RecordCount() int {
	n := 0
	for _, recs := range s.Entities {
		n += len(recs)
	}
	return n
}

// CheckSchema fails when the snapshot was taken against another schema
func (s *Snapshot) CheckSchema(schemaHash string) error {
	if s.SchemaHash == "" || s.SchemaHash == schemaHash {
		return nil
	}
	return fmt.Errorf("snapshot %q was taken against schema %s, current schema is %s",
		s.Name, shortHash(s.SchemaHash), shortHash(schemaHash))
}

// Encode writes snap as msgpack
func Encode(w io.Writer, snap *Snapshot) error {
	if err := msgpack.NewEncoder(w).Encode(snap); err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return nil
}

// Decode reads a msgpack snapshot
func Decode(r io.Reader) (*Snapshot, error) {
	var snap Snapshot
	if err := msgpack.NewDecoder(r).Decode(&snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	if snap.Version != FormatVersion {
		return nil, fmt.Errorf("unsupported snapshot version %q (expected %s)", snap.Version, FormatVersion)
	}
	snap.CreatedAt = snap.CreatedAt.UTC()
	return &snap, nil
}

// HashSchema computes SHA256 hash of a schema descriptor
func HashSchema(schema string) string {
	hash := sha256.Sum256([]byte(schema))
	return hex.EncodeToString(hash[:])
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}

// ============================================================
// VALUE CODEC
// ============================================================

func encodeRecord(rec engine.Record) engine.Record {
	out := make(engine.Record, len(rec))
	for k, v := range rec {
		out[k] = encodeValue(v)
	}
	return out
}

func encodeValue(v any) any {
	switch val := v.(type) {
	case engine.NullSentinel:
		return map[string]any{sentinelKey: string(val)}
	case map[string]any:
		return encodeRecord(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = encodeValue(item)
		}
		return out
	case time.Time:
		return val.UTC()
	}
	return v
}

func decodeRecord(rec engine.Record) engine.Record {
	out := make(engine.Record, len(rec))
	for k, v := range rec {
		out[k] = decodeValue(v)
	}
	return out
}

func decodeValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		if s, ok := val[sentinelKey].(string); ok && len(val) == 1 {
			return engine.NullSentinel(s)
		}
		return decodeRecord(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = decodeValue(item)
		}
		return out
	case time.Time:
		return val.UTC()
	case int8:
		return int(val)
	case int16:
		return int(val)
	case int32:
		return int(val)
	case uint8:
		return int(val)
	case uint16:
		return int(val)
	case uint32:
		return int64(val)
	case uint64:
		return int64(val)
	case float32:
		return float64(val)
	}
	return v
}
