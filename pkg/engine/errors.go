package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fatih/color"
)

// ============================================================
// BASE ERROR INTERFACE
// ============================================================

// EngineError is implemented by every error kind the engine raises
type EngineError interface {
	error
	Code() string   // Error code for programmatic handling
	IsEngineError() // Marker method
}

// ============================================================
// DATA INTEGRITY ERRORS
// ============================================================

// UniqueConstraintError: a unique or id value already exists
type UniqueConstraintError struct {
	Entity string
	Fields []string
}

func (e *UniqueConstraintError) Error() string {
	return fmt.Sprintf(
		"UniqueConstraintError: Unique constraint failed on the fields: (%s)\n"+
			"  Entity: %s",
		strings.Join(e.Fields, ", "), e.Entity,
	)
}

func (e *UniqueConstraintError) Code() string   { return "UNIQUE_CONSTRAINT_VIOLATION" }
func (e *UniqueConstraintError) IsEngineError() {}

// Causes reported by NotFoundError
const (
	CauseUpdateNotFound  = "Record to update not found."
	CauseDeleteNotFound  = "Record to delete does not exist."
	CauseNoRecordFound   = "No record found."
	CauseConnectNotFound = "No record was found for a nested connect."
)

// NotFoundError: the target record of an operation doesn't exist
type NotFoundError struct {
	Entity string
	Cause  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf(
		"NotFoundError: An operation failed because it depends on one or more records that were required but not found\n"+
			"  Entity: %s\n"+
			"  Cause: %s",
		e.Entity, e.Cause,
	)
}

func (e *NotFoundError) Code() string   { return "NOT_FOUND" }
func (e *NotFoundError) IsEngineError() {}

// ============================================================
// ARGUMENT ERRORS
// ============================================================

// ValidationError: malformed arguments
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "ValidationError: " + e.Message
	}
	return fmt.Sprintf("ValidationError: Argument '%s' - %s", e.Field, e.Message)
}

func (e *ValidationError) Code() string   { return "VALIDATION_ERROR" }
func (e *ValidationError) IsEngineError() {}

// NotImplementedError: an operation the engine deliberately doesn't support
type NotImplementedError struct {
	Operation string
}

func (e *NotImplementedError) Error() string {
	return fmt.Sprintf("NotImplementedError: %s is not implemented", e.Operation)
}

func (e *NotImplementedError) Code() string   { return "NOT_IMPLEMENTED" }
func (e *NotImplementedError) IsEngineError() {}

// ============================================================
// SCHEMA ERRORS
// ============================================================

// SchemaError: the schema descriptor is inconsistent
type SchemaError struct {
	Entity  string
	Message string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("SchemaError: Entity '%s' - %s", e.Entity, e.Message)
}

func (e *SchemaError) Code() string   { return "SCHEMA_ERROR" }
func (e *SchemaError) IsEngineError() {}

// UnknownEntityError: Entity doesn't exist in schema
type UnknownEntityError struct {
	Entity    string
	Available []string
}

func (e *UnknownEntityError) Error() string {
	return fmt.Sprintf(
		"UnknownEntityError: Entity '%s' not found in schema\n"+
			"  Available entities: %v",
		e.Entity, e.Available,
	)
}

func (e *UnknownEntityError) Code() string   { return "UNKNOWN_ENTITY" }
func (e *UnknownEntityError) IsEngineError() {}

// UnknownFieldError: Field doesn't exist in schema
type UnknownFieldError struct {
	Entity    string
	Field     string
	Available []string
}

func (e *UnknownFieldError) Error() string {
	return fmt.Sprintf(
		"UnknownFieldError: Entity '%s' has no field '%s'\n"+
			"  Available fields: %v",
		e.Entity, e.Field, e.Available,
	)
}

func (e *UnknownFieldError) Code() string   { return "UNKNOWN_FIELD" }
func (e *UnknownFieldError) IsEngineError() {}

// ============================================================
// ADAPTER
// ============================================================

// ErrorAdapter maps engine errors to caller-defined error values before
// they leave a Delegate.
type ErrorAdapter interface {
	Adapt(err EngineError) error
}

// ErrorAdapterFunc lets an ordinary function act as an ErrorAdapter
type ErrorAdapterFunc func(err EngineError) error

func (f ErrorAdapterFunc) Adapt(err EngineError) error { return f(err) }

// ============================================================
// HELPER FUNCTIONS
// ============================================================

// IsEngineError checks if error is (or wraps) an engine error
func IsEngineError(err error) bool {
	var ee EngineError
	return errors.As(err, &ee)
}

// ErrorCode extracts the error code
func ErrorCode(err error) string {
	var ee EngineError
	if errors.As(err, &ee) {
		return ee.Code()
	}
	return "UNKNOWN_ERROR"
}

// IsUniqueConstraint checks if error is a unique constraint violation
func IsUniqueConstraint(err error) bool {
	var target *UniqueConstraintError
	return errors.As(err, &target)
}

// IsNotFound checks if error is a not-found error
func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

// FormatError renders an error for terminal output
func FormatError(err error) string {
	if err == nil {
		return ""
	}
	var b strings.Builder

	errorColor := color.New(color.FgRed, color.Bold)
	errorColor.Fprintf(&b, "Error: ")

	msg := err.Error()
	head, details, _ := strings.Cut(msg, "\n")
	fmt.Fprintf(&b, "%s\n", head)

	var ee EngineError
	if errors.As(err, &ee) {
		codeColor := color.New(color.FgCyan)
		codeColor.Fprintf(&b, "  --> ")
		fmt.Fprintf(&b, "%s\n", ee.Code())
	}

	if details != "" {
		b.WriteString(details)
		b.WriteString("\n")
	}

	var nf *NotFoundError
	if errors.As(err, &nf) {
		helpColor := color.New(color.FgYellow, color.Bold)
		helpColor.Fprintf(&b, "  Help: ")
		fmt.Fprintf(&b, "check the where clause targets an existing %s\n", nf.Entity)
	}

	return b.String()
}
