package schema

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/chameleon-db/chameleon-mock/pkg/engine"
)

// Merger combines several descriptor files into one schema
type Merger interface {
	Merge(files []SourceFile) (*MergedSchemaResult, error)
}

// MergedSchemaResult holds the merged schema and where each entity came from
type MergedSchemaResult struct {
	Schema  *engine.Schema
	Sources map[string]string // entity name -> source file name
	JSON    string            // Indented merged descriptor
}

// Save writes the merged descriptor, creating parent directories
func (r *MergedSchemaResult) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(r.JSON+"\n"), 0644); err != nil {
		return fmt.Errorf("failed to write merged schema: %w", err)
	}
	return nil
}

// SimpleMerger validates each file against the descriptor JSON Schema,
// decodes it and concatenates the entities in file order.
type SimpleMerger struct{}

// NewSimpleMerger creates a new SimpleMerger
func NewSimpleMerger() *SimpleMerger {
	return &SimpleMerger{}
}

// Merge decodes and concatenates the files. An entity declared in more than
// one file is an error naming every file involved.
func (m *SimpleMerger) Merge(files []SourceFile) (*MergedSchemaResult, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("no schema files to merge")
	}

	merged := &engine.Schema{}
	declared := make(map[string][]string)

	for _, file := range files {
		if err := Validate(file); err != nil {
			return nil, err
		}
		s, err := engine.ParseSchemaJSON(file.Content)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", file.Name, err)
		}
		for _, ent := range s.Entities {
			declared[ent.Name] = append(declared[ent.Name], file.Name)
		}
		merged.Entities = append(merged.Entities, s.Entities...)
	}

	if err := checkDuplicates(declared); err != nil {
		return nil, err
	}

	// Round-trip so the merged schema carries its lookup tables
	out, err := merged.ToJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to encode merged schema: %w", err)
	}
	schema, err := engine.ParseSchemaJSON([]byte(out))
	if err != nil {
		return nil, err
	}

	sources := make(map[string]string, len(declared))
	for name, in := range declared {
		sources[name] = in[0]
	}

	return &MergedSchemaResult{
		Schema:  schema,
		Sources: sources,
		JSON:    out,
	}, nil
}

func checkDuplicates(declared map[string][]string) error {
	var duplicates []string
	for name, files := range declared {
		if len(files) > 1 {
			duplicates = append(duplicates, fmt.Sprintf("%s (%s)", name, strings.Join(files, ", ")))
		}
	}
	if len(duplicates) == 0 {
		return nil
	}
	sort.Strings(duplicates)
	return fmt.Errorf("duplicate entities found: %s\n\nEntity names must be unique across all schema files. "+
		"Define each entity only once.", strings.Join(duplicates, ", "))
}

// LoadSchema loads, validates and merges every descriptor under paths
func LoadSchema(paths []string) (*MergedSchemaResult, error) {
	files, err := NewFileLoader(paths).LoadAll()
	if err != nil {
		return nil, err
	}
	return NewSimpleMerger().Merge(files)
}
