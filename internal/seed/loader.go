package seed

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/chameleon-db/chameleon-mock/pkg/engine"
	"gopkg.in/yaml.v3"
)

// LinksKey holds join records in a seed file, keyed by relation name
const LinksKey = "_links"

// Format is a seed file encoding
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// FormatFromPath maps a file extension to its Format
func FormatFromPath(path string) (Format, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, true
	case ".yaml", ".yml":
		return FormatYAML, true
	case ".toml":
		return FormatTOML, true
	}
	return "", false
}

// Loader reads seed files. Each path is a file or a directory scanned
// (non-recursively) for json / yaml / toml files.
type Loader struct {
	paths []string
}

// NewLoader creates a seed loader
func NewLoader(paths []string) *Loader {
	return &Loader{paths: paths}
}

// LoadAll reads every seed file and merges them. Records for the same
// entity are appended in file order.
func (l *Loader) LoadAll() (engine.State, error) {
	st := engine.State{Entities: map[string][]engine.Record{}, Links: map[string][]engine.Link{}}

	for _, path := range l.paths {
		files, err := findSeedFiles(path)
		if err != nil {
			return engine.State{}, fmt.Errorf("failed to find seed files in %s: %w", path, err)
		}
		for _, file := range files {
			part, err := LoadFile(file)
			if err != nil {
				return engine.State{}, err
			}
			Merge(&st, part)
		}
	}

	return st, nil
}

// Merge appends src's records and links to dst
func Merge(dst *engine.State, src engine.State) {
	if dst.Entities == nil {
		dst.Entities = map[string][]engine.Record{}
	}
	if dst.Links == nil {
		dst.Links = map[string][]engine.Link{}
	}
	for name, recs := range src.Entities {
		dst.Entities[name] = append(dst.Entities[name], recs...)
	}
	for name, links := range src.Links {
		dst.Links[name] = append(dst.Links[name], links...)
	}
}

// LoadFile reads and decodes one seed file
func LoadFile(path string) (engine.State, error) {
	format, ok := FormatFromPath(path)
	if !ok {
		return engine.State{}, fmt.Errorf("unsupported seed file %s: expected .json, .yaml, .yml or .toml", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return engine.State{}, fmt.Errorf("failed to read seed file: %w", err)
	}
	st, err := Decode(format, data)
	if err != nil {
		return engine.State{}, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return st, nil
}

// Decode parses a seed document: a map of entity name to a list of
// records, plus an optional _links map of relation name to {a, b} pairs.
func Decode(format Format, data []byte) (engine.State, error) {
	doc := map[string]any{}
	var err error
	switch format {
	case FormatJSON:
		err = json.Unmarshal(data, &doc)
	case FormatYAML:
		err = yaml.Unmarshal(data, &doc)
	case FormatTOML:
		_, err = toml.Decode(string(data), &doc)
	default:
		return engine.State{}, fmt.Errorf("unknown seed format %q", format)
	}
	if err != nil {
		return engine.State{}, fmt.Errorf("failed to parse %s seed: %w", format, err)
	}

	st := engine.State{Entities: map[string][]engine.Record{}, Links: map[string][]engine.Link{}}
	for key, value := range doc {
		if key == LinksKey {
			links, err := decodeLinks(value)
			if err != nil {
				return engine.State{}, err
			}
			st.Links = links
			continue
		}
		recs, err := decodeRecords(value)
		if err != nil {
			return engine.State{}, fmt.Errorf("entity %s: %w", key, err)
		}
		st.Entities[key] = recs
	}
	return st, nil
}

func decodeRecords(value any) ([]engine.Record, error) {
	items, err := toList(value)
	if err != nil {
		return nil, err
	}
	recs := make([]engine.Record, 0, len(items))
	for i, item := range items {
		rec, ok := toRecord(item)
		if !ok {
			return nil, fmt.Errorf("record %d: expected an object, got %T", i, item)
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

func decodeLinks(value any) (map[string][]engine.Link, error) {
	byRelation, ok := toRecord(value)
	if !ok {
		return nil, fmt.Errorf("%s: expected a map of relation name to links, got %T", LinksKey, value)
	}
	out := make(map[string][]engine.Link, len(byRelation))
	for relation, raw := range byRelation {
		items, err := toList(raw)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", LinksKey, relation, err)
		}
		for i, item := range items {
			pair, ok := toRecord(item)
			if !ok {
				return nil, fmt.Errorf("%s.%s[%d]: expected an object", LinksKey, relation, i)
			}
			a, okA := toRecord(sideOf(pair, "a", "A"))
			b, okB := toRecord(sideOf(pair, "b", "B"))
			if !okA || !okB {
				return nil, fmt.Errorf("%s.%s[%d]: both a and b keys are required", LinksKey, relation, i)
			}
			out[relation] = append(out[relation], engine.Link{A: a, B: b})
		}
	}
	return out, nil
}

func sideOf(pair engine.Record, keys ...string) any {
	for _, k := range keys {
		if v, ok := pair[k]; ok {
			return v
		}
	}
	return nil
}

// toList accepts the slice shapes produced by the three decoders
func toList(value any) ([]any, error) {
	switch v := value.(type) {
	case []any:
		return v, nil
	case []map[string]any:
		out := make([]any, len(v))
		for i, m := range v {
			out[i] = m
		}
		return out, nil
	}
	return nil, fmt.Errorf("expected a list of records, got %T", value)
}

func toRecord(value any) (engine.Record, bool) {
	m, ok := value.(map[string]any)
	if !ok {
		return nil, false
	}
	return engine.Record(m), true
}

func findSeedFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if _, ok := FormatFromPath(entry.Name()); ok {
			files = append(files, filepath.Join(path, entry.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}
