package mutation

import (
	"errors"
	"fmt"

	"github.com/chameleon-db/chameleon-mock/pkg/engine"
)

// ============================================================
// BASE ERROR INTERFACES
// ============================================================

// MutationError is the base interface for errors raised by the builders
// themselves. Errors from the delegates are engine.EngineError values.
type MutationError interface {
	error
	Code() string     // Error code for programmatic handling
	IsMutationError() // Marker method
}

// ============================================================
// SAFETY ERRORS
// ============================================================

// SafetyError: Safety guard prevented operation
type SafetyError struct {
	Operation  string // "delete_without_filter", "update_without_filter"
	Message    string
	Suggestion string
}

func (e *SafetyError) Error() string {
	return fmt.Sprintf(
		"SafetyError: Operation blocked by safety guard\n"+
			"  Operation: %s\n"+
			"  Message: %s\n"+
			"  Suggestion: %s",
		e.Operation, e.Message, e.Suggestion,
	)
}

func (e *SafetyError) Code() string     { return "SAFETY_VIOLATION" }
func (e *SafetyError) IsMutationError() {}

// ============================================================
// HELPER FUNCTIONS
// ============================================================

// IsMutationError checks if error is a mutation error
func IsMutationError(err error) bool {
	var me MutationError
	return errors.As(err, &me)
}

// ErrorCode extracts the error code from mutation and engine errors
func ErrorCode(err error) string {
	var me MutationError
	if errors.As(err, &me) {
		return me.Code()
	}
	return engine.ErrorCode(err)
}

// IsSafetyError checks if error is a safety violation
func IsSafetyError(err error) bool {
	var se *SafetyError
	return errors.As(err, &se)
}

// IsConstraintError checks if error is constraint-related
func IsConstraintError(err error) bool {
	return engine.IsUniqueConstraint(err)
}
