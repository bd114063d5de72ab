package schemas

import (
	"errors"
	"fmt"
)

// ErrorCode is a string type used for structured error reporting across the
// engine. Using a custom type ensures that only predefined constants can be
// used where an ErrorCode is expected.
type ErrorCode string

const (
	ErrCodeBackendUnavailable ErrorCode = "BACKEND_UNAVAILABLE"
	ErrCodeResolution         ErrorCode = "RESOLUTION_ERROR"
	ErrCodeExecution          ErrorCode = "EXECUTION_ERROR"
	ErrCodeOracle             ErrorCode = "ORACLE_ERROR"
	ErrCodeTimeout            ErrorCode = "TIMEOUT_ERROR"
	ErrCodeSchemaValidation   ErrorCode = "SCHEMA_VALIDATION_ERROR"
)

// ErrBackendUnavailable is returned by backend methods when no browser
// session is live. It signals that the whole task must fail without retry,
// since no later step can succeed either.
var ErrBackendUnavailable = &EngineError{
	Code:    ErrCodeBackendUnavailable,
	Message: "browser backend is not running",
}

// EngineError is the structured error carried through the engine. Code
// classifies the failure; Retryable tells the recovery controller whether
// re-attempting the same step can help.
type EngineError struct {
	Code      ErrorCode
	Message   string
	Retryable bool
	Cause     error
}

func (e *EngineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *EngineError) Unwrap() error { return e.Cause }

// Is matches two engine errors by code, so errors.Is(err,
// ErrBackendUnavailable) works without pointer identity.
func (e *EngineError) Is(target error) bool {
	var t *EngineError
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// NewResolutionError reports that no resolution strategy located the target
// element. Retryable: the element may attach or render on a later attempt.
func NewResolutionError(desc ElementDescriptor, cause error) *EngineError {
	return &EngineError{
		Code:      ErrCodeResolution,
		Message:   fmt.Sprintf("no strategy matched element (selector=%q text=%q)", desc.Selector, desc.Text),
		Retryable: true,
		Cause:     cause,
	}
}

// NewExecutionError reports a step that was dispatched to the backend but
// failed there. Retryable: the page may settle on a later attempt.
func NewExecutionError(action ActionType, cause error) *EngineError {
	return &EngineError{
		Code:      ErrCodeExecution,
		Message:   fmt.Sprintf("executing %s", action),
		Retryable: true,
		Cause:     cause,
	}
}

// NewOracleError reports a planning oracle failure: unreachable, or a
// response that does not parse into the plan schema.
func NewOracleError(message string, cause error) *EngineError {
	return &EngineError{
		Code:      ErrCodeOracle,
		Message:   message,
		Retryable: true,
		Cause:     cause,
	}
}

// NewTimeoutError reports a bounded wait that elapsed without its condition
// becoming true.
func NewTimeoutError(message string, cause error) *EngineError {
	return &EngineError{
		Code:      ErrCodeTimeout,
		Message:   message,
		Retryable: true,
		Cause:     cause,
	}
}

// NewSchemaValidationError reports data that failed validation against the
// action schema. Never retryable: the input itself is malformed.
func NewSchemaValidationError(action ActionType, field, detail string) *EngineError {
	msg := fmt.Sprintf("field %q: %s", field, detail)
	if action != "" {
		msg = fmt.Sprintf("action %q, %s", action, msg)
	}
	return &EngineError{
		Code:      ErrCodeSchemaValidation,
		Message:   msg,
		Retryable: false,
	}
}

// IsRetryable reports whether the recovery controller may re-attempt the
// operation that produced err.
func IsRetryable(err error) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// CodeOf extracts the structured code from err, or "" when err carries none.
func CodeOf(err error) ErrorCode {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
