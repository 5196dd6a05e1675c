package schema

import (
	"fmt"
	"strings"
)

// UnknownVersionError reports a document declaring a schema version that
// was never released.
type UnknownVersionError struct {
	// Declared is the version string as it appeared in the document.
	Declared string

	// Known lists the released versions, ascending.
	Known []Version
}

func (e *UnknownVersionError) Error() string {
	known := make([]string, len(e.Known))
	for i, v := range e.Known {
		known[i] = v.String()
	}
	return fmt.Sprintf("unknown schema version %q (released versions: %s)",
		e.Declared, strings.Join(known, ", "))
}

// RemovedVersionError reports a document declaring a schema version whose
// sunset has passed. The notice explains what to migrate to.
type RemovedVersionError struct {
	// Version is the removed version the document declared.
	Version Version

	// SunsetNotice is the human-readable notice published with the removal.
	SunsetNotice string
}

func (e *RemovedVersionError) Error() string {
	return fmt.Sprintf("schema version %s has been removed: %s", e.Version, e.SunsetNotice)
}

// ShapeError reports a document or intent failing its validation ruleset:
// a missing required field, a wrong type, a value outside an enumerated
// set, an unknown parameter, or a duplicate (kind, target) pair.
type ShapeError struct {
	// Kind is the offending intent's kind. Empty for document-level
	// problems such as a malformed top-level shape.
	Kind string

	// Target is the offending intent's target, when known.
	Target string

	// Field names the field or parameter that failed.
	Field string

	// Reason explains the failure in one sentence.
	Reason string
}

func (e *ShapeError) Error() string {
	if e.Kind == "" {
		return fmt.Sprintf("document field %q: %s", e.Field, e.Reason)
	}
	if e.Target == "" {
		return fmt.Sprintf("intent kind %q, field %q: %s", e.Kind, e.Field, e.Reason)
	}
	return fmt.Sprintf("intent %s %q, field %q: %s", e.Kind, e.Target, e.Field, e.Reason)
}

func shapeErrorf(kind, target, field, format string, args ...any) *ShapeError {
	return &ShapeError{Kind: kind, Target: target, Field: field, Reason: fmt.Sprintf(format, args...)}
}
