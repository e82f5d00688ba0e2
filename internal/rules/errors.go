package rules

import (
	"errors"
	"fmt"
	"strings"
)

// Message markers that callers match on. They are part of the engine
// contract and must not change.
const (
	CyclicMarker        = "Cyclic interaction"
	InvalidPluginMarker = "is not a valid plugin"
)

// EngineError is a failure reported by an engine operation.
//
// Error returns Message verbatim so that pattern-based classification sees
// exactly what the engine said. Op is kept for logs.
type EngineError struct {
	// Op names the failing operation: "sort", "load", "update" or "init".
	Op string

	// Message is the engine's own description of the failure.
	Message string

	// Err is an optional underlying cause.
	Err error
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// EngineMessage returns the innermost engine message carried by err.
// Errors that did not come from an engine yield err.Error().
func EngineMessage(err error) string {
	if err == nil {
		return ""
	}
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee.Message
	}
	return err.Error()
}

// NewCycleError reports a cycle among load-after rules. path starts and
// ends with the same plugin.
func NewCycleError(path []string) *EngineError {
	first, second := "", ""
	if len(path) > 0 {
		first = path[0]
		second = path[0]
	}
	if len(path) > 2 {
		second = path[1]
	}
	return &EngineError{
		Op:      "sort",
		Message: fmt.Sprintf("%s between %s and %s: %s", CyclicMarker, first, second, strings.Join(path, " -> ")),
	}
}

// NewInvalidPluginError reports that name cannot take part in sorting.
func NewInvalidPluginError(name string) *EngineError {
	return &EngineError{
		Op:      "sort",
		Message: fmt.Sprintf("%s %s", name, InvalidPluginMarker),
	}
}
