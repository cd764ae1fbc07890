package schema

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed descriptor.schema.json
var descriptorSchema string

var (
	compileOnce sync.Once
	compiled    *gojsonschema.Schema
	compileErr  error
)

func descriptorValidator() (*gojsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiled, compileErr = gojsonschema.NewSchema(gojsonschema.NewStringLoader(descriptorSchema))
	})
	return compiled, compileErr
}

// DescriptorError lists the JSON Schema violations of one descriptor file
type DescriptorError struct {
	File   string
	Errors []string
}

func (e *DescriptorError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "invalid schema descriptor %s:", e.File)
	for _, msg := range e.Errors {
		b.WriteString("\n  - " + msg)
	}
	return b.String()
}

// Validate checks a descriptor file's shape before it is decoded. Semantic
// checks (relation targets, key fields) happen at engine construction.
func Validate(file SourceFile) error {
	validator, err := descriptorValidator()
	if err != nil {
		return fmt.Errorf("failed to compile descriptor schema: %w", err)
	}

	result, err := validator.Validate(gojsonschema.NewBytesLoader(file.Content))
	if err != nil {
		return &DescriptorError{File: file.Name, Errors: []string{err.Error()}}
	}
	if result.Valid() {
		return nil
	}

	descErr := &DescriptorError{File: file.Name}
	for _, desc := range result.Errors() {
		descErr.Errors = append(descErr.Errors, desc.String())
	}
	return descErr
}
