package schema

import (
	"github.com/enactproject/enact/pkg/intent"
)

// ParamType enumerates the types a parameter rule can require.
type ParamType string

const (
	// ParamString accepts any string.
	ParamString ParamType = "string"

	// ParamBool accepts a boolean.
	ParamBool ParamType = "bool"

	// ParamInt accepts a 64-bit integer.
	ParamInt ParamType = "int"

	// ParamEnum accepts a string drawn from the rule's Enum set.
	ParamEnum ParamType = "enum"

	// ParamConstraint accepts a semantic version constraint string.
	ParamConstraint ParamType = "version-constraint"

	// ParamList accepts an ordered list whose elements all have the
	// rule's Elem type.
	ParamList ParamType = "list"
)

// ParamSpec is the validation rule for one parameter of one intent kind.
type ParamSpec struct {
	// Name is the parameter name as written in documents.
	Name string

	// Type is the required value type.
	Type ParamType

	// Elem is the element type when Type is ParamList. Only scalar element
	// types are supported.
	Elem ParamType

	// Enum lists the allowed values when Type is ParamEnum.
	Enum []string

	// Required marks parameters that must be present in the document.
	Required bool

	// Default is filled in when the parameter is absent. The zero Value
	// means no default.
	Default intent.Value
}

// KindSpec is the validation ruleset for one intent kind. Params are kept
// in declaration order so required-field checks and default filling are
// deterministic.
type KindSpec struct {
	// Kind is the intent kind this ruleset governs.
	Kind string

	// Params are the parameter rules in declaration order.
	Params []ParamSpec
}

// Param returns the named parameter rule, or nil.
func (ks *KindSpec) Param(name string) *ParamSpec {
	for i := range ks.Params {
		if ks.Params[i].Name == name {
			return &ks.Params[i]
		}
	}
	return nil
}

// VersionSpec is one released schema version: its ruleset plus its
// deprecation and removal state. Released rulesets are never mutated;
// schema evolution appends new VersionSpecs instead.
type VersionSpec struct {
	// Version is the released version.
	Version Version

	// Deprecated marks versions that still validate but emit a warning.
	Deprecated bool

	// SunsetNotice is the human-readable deprecation or removal notice.
	SunsetNotice string

	// Removed marks versions past their sunset. Validation fails with
	// RemovedVersionError and never falls back to another version.
	Removed bool

	kinds []KindSpec
}

// Kind returns the ruleset for the named intent kind, or nil when the
// version does not know the kind.
func (vs *VersionSpec) Kind(name string) *KindSpec {
	for i := range vs.kinds {
		if vs.kinds[i].Kind == name {
			return &vs.kinds[i]
		}
	}
	return nil
}

// Kinds returns the kind rulesets in declaration order.
func (vs *VersionSpec) Kinds() []KindSpec {
	return vs.kinds
}

// KindNames returns the known kind names in declaration order.
func (vs *VersionSpec) KindNames() []string {
	names := make([]string, len(vs.kinds))
	for i := range vs.kinds {
		names[i] = vs.kinds[i].Kind
	}
	return names
}
