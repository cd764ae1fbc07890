package schema

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// DescriptorExt is the extension of schema descriptor files
const DescriptorExt = ".json"

// SourceFile is one descriptor file read from disk
type SourceFile struct {
	Name    string // Base name, used in messages
	Path    string
	Content []byte
}

// Loader is the interface for loading schema descriptors
type Loader interface {
	// LoadAll loads every descriptor reachable from the configured paths
	LoadAll() ([]SourceFile, error)
	// Load loads one file
	Load(path string) (SourceFile, error)
}

// FileLoader loads descriptors from the filesystem. Each path is either a
// descriptor file or a directory scanned (non-recursively) for *.json.
type FileLoader struct {
	schemaPaths []string
}

// NewFileLoader creates a new FileLoader
func NewFileLoader(schemaPaths []string) *FileLoader {
	return &FileLoader{
		schemaPaths: schemaPaths,
	}
}

// LoadAll loads every descriptor, directories in name order
func (fl *FileLoader) LoadAll() ([]SourceFile, error) {
	var files []SourceFile

	for _, schemaPath := range fl.schemaPaths {
		paths, err := fl.findSchemaFiles(schemaPath)
		if err != nil {
			return nil, fmt.Errorf("failed to find schema files in %s: %w", schemaPath, err)
		}

		for _, path := range paths {
			file, err := fl.Load(path)
			if err != nil {
				return nil, fmt.Errorf("failed to load %s: %w", path, err)
			}
			files = append(files, file)
		}
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("no schema files found in %v", fl.schemaPaths)
	}

	return files, nil
}

// Load reads a single descriptor file
func (fl *FileLoader) Load(path string) (SourceFile, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return SourceFile{}, fmt.Errorf("failed to read schema file: %w", err)
	}
	return SourceFile{
		Name:    filepath.Base(path),
		Path:    path,
		Content: content,
	}, nil
}

// findSchemaFiles expands a path into the sorted descriptor files it names
func (fl *FileLoader) findSchemaFiles(path string) ([]string, error) {
	if !filepath.IsAbs(path) {
		wd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		path = filepath.Join(wd, path)
	}

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
		if !entry.IsDir() && filepath.Ext(entry.Name()) == DescriptorExt {
			files = append(files, filepath.Join(path, entry.Name()))
		}
	}
	sort.Strings(files)

	return files, nil
}
