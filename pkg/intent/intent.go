// Package intent holds the in-memory model of a validated configuration:
// typed Intents with parameters and optional per-backend hints. Instances
// are produced by the schema registry and consumed by the resolver; they
// live for the duration of one resolution.
package intent

import "fmt"

// Intent is a single declarative statement of desired state, agnostic of
// the backend that will satisfy it.
type Intent struct {
	// Kind is the semantic category, e.g. "package" or "service".
	Kind string `json:"kind"`

	// Target is the name, path, or identifier the intent concerns.
	Target string `json:"target"`

	// Parameters maps option names to typed values. After validation every
	// schema default is filled in.
	Parameters map[string]Value `json:"parameters,omitempty"`

	// Hints maps a backend name to override parameters applied only when
	// that backend is selected.
	Hints map[string]map[string]Value `json:"backend_hints,omitempty"`

	// DocIndex is the intent's position in the source document. It drives
	// the stable tie-break during plan ordering.
	DocIndex int `json:"doc_index"`
}

// Ref renders the intent as `kind "target"` for error messages and logs.
func (in Intent) Ref() string {
	return fmt.Sprintf("%s %q", in.Kind, in.Target)
}

// Param returns the named parameter and whether it is present.
func (in Intent) Param(name string) (Value, bool) {
	v, ok := in.Parameters[name]
	return v, ok
}

// StringParam returns the named parameter's string content. The second
// result is false when the parameter is absent or not a string.
func (in Intent) StringParam(name string) (string, bool) {
	v, ok := in.Parameters[name]
	if !ok {
		return "", false
	}
	return v.AsString()
}

// HintsFor returns the override parameters the document supplied for the
// given backend, or nil.
func (in Intent) HintsFor(backend string) map[string]Value {
	return in.Hints[backend]
}

// Set is a validated intent collection in document order.
type Set struct {
	// SchemaVersion is the declared schema version in "major.minor" form.
	SchemaVersion string `json:"schema_version"`

	// Intents are the validated intents, ordered as in the document.
	Intents []Intent `json:"intents"`
}

// Len returns the number of intents in the set.
func (s *Set) Len() int { return len(s.Intents) }

// Find returns the first intent with the given kind and target, or nil.
func (s *Set) Find(kind, target string) *Intent {
	for i := range s.Intents {
		if s.Intents[i].Kind == kind && s.Intents[i].Target == target {
			return &s.Intents[i]
		}
	}
	return nil
}
