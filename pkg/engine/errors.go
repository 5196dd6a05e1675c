package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/enactproject/enact/pkg/intent"
)

// ErrorClass represents the classification of an error by pipeline phase.
type ErrorClass string

const (
	// ErrorClassSchema indicates the document failed validation.
	// The run stops before any backend is contacted.
	ErrorClassSchema ErrorClass = "schema"

	// ErrorClassResolution indicates no execution plan could be built.
	// Examples: unsatisfiable intents, ambiguous backend selection,
	// conflicting intents, cyclic ordering constraints.
	ErrorClassResolution ErrorClass = "resolution"

	// ErrorClassBackend indicates a backend process could not be reached
	// or violated the protocol. During discovery this excludes the
	// backend; during execution it fails the step.
	ErrorClassBackend ErrorClass = "backend"

	// ErrorClassStep indicates a step failed during execution. Step
	// failures are recorded in the run report, never raised out of the
	// Executor.
	ErrorClassStep ErrorClass = "step"
)

// EngineError represents a classified error with context.
// nolint:revive // EngineError is intentionally named to distinguish from standard errors
type EngineError struct {
	// Class is the error classification by pipeline phase.
	Class ErrorClass `json:"class"`

	// Code is an optional error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Intent is the intent the error concerns, rendered as `kind "target"`.
	Intent string `json:"intent,omitempty"`

	// OtherIntent is the second party of a conflict, if applicable.
	OtherIntent string `json:"other_intent,omitempty"`

	// Backend is the backend name involved in the error, if applicable.
	Backend string `json:"backend,omitempty"`

	// Candidates lists the backends an ambiguous selection was torn
	// between, if applicable.
	Candidates []string `json:"candidates,omitempty"`

	// Kinds lists the intent kinds forming an ordering cycle, in cycle
	// order, if applicable.
	Kinds []string `json:"kinds,omitempty"`

	// Err is the underlying error that caused this error.
	Err error `json:"-"`

	// Details contains additional context-specific information.
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	var ctx []string
	if e.Intent != "" {
		ctx = append(ctx, "intent="+e.Intent)
	}
	if e.OtherIntent != "" {
		ctx = append(ctx, "other="+e.OtherIntent)
	}
	if e.Backend != "" {
		ctx = append(ctx, "backend="+e.Backend)
	}
	msg := fmt.Sprintf("[%s] %s", e.Class, e.Message)
	if len(ctx) > 0 {
		msg += " (" + strings.Join(ctx, ", ") + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error for error chain inspection.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// Is implements error equality checking for errors.Is.
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// NewSchemaInvalidError wraps a validation error from the schema registry
// so the pipeline can classify it alongside engine errors.
func NewSchemaInvalidError(err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassSchema,
		Code:    ErrCodeSchemaInvalid,
		Message: "document failed schema validation",
		Err:     err,
	}
}

// NewUnsatisfiableError reports an intent no available backend can serve.
func NewUnsatisfiableError(in intent.Intent) *EngineError {
	return &EngineError{
		Class:   ErrorClassResolution,
		Code:    ErrCodeUnsatisfiable,
		Message: fmt.Sprintf("no available backend declares a capability for kind %q", in.Kind),
		Intent:  in.Ref(),
	}
}

// NewAmbiguousBackendError reports an intent whose backend selection
// survived every tie-break rule.
func NewAmbiguousBackendError(in intent.Intent, candidates []string) *EngineError {
	return &EngineError{
		Class: ErrorClassResolution,
		Code:  ErrCodeAmbiguousBackend,
		Message: fmt.Sprintf("backend selection is ambiguous between %s; add a backend hint or configure a priority order",
			strings.Join(candidates, ", ")),
		Intent:     in.Ref(),
		Candidates: candidates,
	}
}

// NewConflictingIntentsError reports two intents a selected backend's
// conflict rules declare mutually exclusive.
func NewConflictingIntentsError(a, b intent.Intent, reason string) *EngineError {
	return &EngineError{
		Class:       ErrorClassResolution,
		Code:        ErrCodeConflictingIntents,
		Message:     fmt.Sprintf("conflicting intents: %s", reason),
		Intent:      a.Ref(),
		OtherIntent: b.Ref(),
	}
}

// NewOrderingCycleError reports ordering constraints that form a cycle
// over the given kinds.
func NewOrderingCycleError(kinds []string) *EngineError {
	return &EngineError{
		Class:   ErrorClassResolution,
		Code:    ErrCodeOrderingCycle,
		Message: fmt.Sprintf("ordering constraints form a cycle: %s", strings.Join(kinds, " -> ")),
		Kinds:   kinds,
	}
}

// NewResolutionError creates a generic resolution error.
func NewResolutionError(message string, err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassResolution,
		Message: message,
		Err:     err,
	}
}

// NewBackendError creates a new backend error.
func NewBackendError(message string, err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassBackend,
		Message: message,
		Err:     err,
	}
}

// NewStepError creates a new step error.
func NewStepError(message string, err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassStep,
		Message: message,
		Err:     err,
	}
}

// WithIntent adds intent context to an error.
func (e *EngineError) WithIntent(ref string) *EngineError {
	e.Intent = ref
	return e
}

// WithBackend adds backend context to an error.
func (e *EngineError) WithBackend(name string) *EngineError {
	e.Backend = name
	return e
}

// WithCode adds an error code to an error.
func (e *EngineError) WithCode(code string) *EngineError {
	e.Code = code
	return e
}

// WithDetail adds a detail field to the error context.
func (e *EngineError) WithDetail(key string, value interface{}) *EngineError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// hasClass reports whether err carries the given classification.
func hasClass(err error, class ErrorClass) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class == class
	}
	return false
}

// hasCode reports whether err carries the given error code.
func hasCode(err error, code string) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// IsSchemaError returns true if the error is classified as a schema error.
func IsSchemaError(err error) bool {
	return hasClass(err, ErrorClassSchema)
}

// IsResolutionError returns true if the error is classified as a
// resolution error.
func IsResolutionError(err error) bool {
	return hasClass(err, ErrorClassResolution)
}

// IsBackendError returns true if the error is classified as a backend error.
func IsBackendError(err error) bool {
	return hasClass(err, ErrorClassBackend)
}

// IsStepError returns true if the error is classified as a step error.
func IsStepError(err error) bool {
	return hasClass(err, ErrorClassStep)
}

// IsUnsatisfiable returns true if the error reports an intent no backend
// can serve.
func IsUnsatisfiable(err error) bool {
	return hasCode(err, ErrCodeUnsatisfiable)
}

// IsAmbiguousBackend returns true if the error reports an ambiguous
// backend selection.
func IsAmbiguousBackend(err error) bool {
	return hasCode(err, ErrCodeAmbiguousBackend)
}

// IsConflictingIntents returns true if the error reports mutually
// exclusive intents.
func IsConflictingIntents(err error) bool {
	return hasCode(err, ErrCodeConflictingIntents)
}

// IsOrderingCycle returns true if the error reports cyclic ordering
// constraints.
func IsOrderingCycle(err error) bool {
	return hasCode(err, ErrCodeOrderingCycle)
}

// Common error codes.
const (
	ErrCodeSchemaInvalid      = "SCHEMA_INVALID"
	ErrCodeUnsatisfiable      = "UNSATISFIABLE"
	ErrCodeAmbiguousBackend   = "AMBIGUOUS_BACKEND"
	ErrCodeConflictingIntents = "CONFLICTING_INTENTS"
	ErrCodeOrderingCycle      = "ORDERING_CYCLE"
	ErrCodeBackendUnavailable = "BACKEND_UNAVAILABLE"
	ErrCodeProtocolMismatch   = "PROTOCOL_MISMATCH"
	ErrCodeMalformedResponse  = "MALFORMED_RESPONSE"
	ErrCodeApplyFailed        = "APPLY_FAILED"
	ErrCodeApplyTimeout       = "APPLY_TIMEOUT"
	ErrCodeInternal           = "INTERNAL_ERROR"
)
