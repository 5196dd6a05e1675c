package intent

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Type identifies the type of a parameter Value.
type Type string

const (
	// TypeString is a plain string (enum values are strings whose
	// membership was checked at validation time).
	TypeString Type = "string"

	// TypeBool is a boolean.
	TypeBool Type = "bool"

	// TypeInt is a 64-bit signed integer.
	TypeInt Type = "int"

	// TypeConstraint is a semantic version constraint such as ">=6.1 <6.7".
	TypeConstraint Type = "version-constraint"

	// TypeList is an ordered list of sub-values.
	TypeList Type = "list"
)

// Value is a typed parameter value attached to an Intent. Values are
// immutable once constructed.
type Value struct {
	typ        Type
	str        string
	boolean    bool
	integer    int64
	constraint *semver.Constraints
	items      []Value
}

// StringValue returns a string Value.
func StringValue(s string) Value { return Value{typ: TypeString, str: s} }

// BoolValue returns a boolean Value.
func BoolValue(b bool) Value { return Value{typ: TypeBool, boolean: b} }

// IntValue returns an integer Value.
func IntValue(i int64) Value { return Value{typ: TypeInt, integer: i} }

// ListValue returns a list Value holding the given items in order.
func ListValue(items ...Value) Value { return Value{typ: TypeList, items: items} }

// ConstraintValue parses a semantic version constraint and returns it as a
// Value. The original text is retained for rendering and transmission.
func ConstraintValue(raw string) (Value, error) {
	c, err := semver.NewConstraint(raw)
	if err != nil {
		return Value{}, fmt.Errorf("invalid version constraint %q: %w", raw, err)
	}
	return Value{typ: TypeConstraint, str: raw, constraint: c}, nil
}

// Type reports the value's type. The zero Value has an empty type.
func (v Value) Type() Type { return v.typ }

// IsZero reports whether v is the invalid zero Value.
func (v Value) IsZero() bool { return v.typ == "" }

// AsString returns the string content and true for string values.
func (v Value) AsString() (string, bool) {
	if v.typ != TypeString {
		return "", false
	}
	return v.str, true
}

// AsBool returns the boolean content and true for bool values.
func (v Value) AsBool() (bool, bool) {
	if v.typ != TypeBool {
		return false, false
	}
	return v.boolean, true
}

// AsInt returns the integer content and true for int values.
func (v Value) AsInt() (int64, bool) {
	if v.typ != TypeInt {
		return 0, false
	}
	return v.integer, true
}

// AsConstraint returns the parsed constraint and true for constraint values.
func (v Value) AsConstraint() (*semver.Constraints, bool) {
	if v.typ != TypeConstraint {
		return nil, false
	}
	return v.constraint, true
}

// ConstraintText returns the original constraint text for constraint values.
func (v Value) ConstraintText() (string, bool) {
	if v.typ != TypeConstraint {
		return "", false
	}
	return v.str, true
}

// Items returns the elements of a list Value, or nil for other types.
func (v Value) Items() []Value {
	if v.typ != TypeList {
		return nil
	}
	return v.items
}

// Equal reports whether two values have the same type and content.
// Constraint values compare by their original text.
func (v Value) Equal(o Value) bool {
	if v.typ != o.typ {
		return false
	}
	switch v.typ {
	case TypeString, TypeConstraint:
		return v.str == o.str
	case TypeBool:
		return v.boolean == o.boolean
	case TypeInt:
		return v.integer == o.integer
	case TypeList:
		if len(v.items) != len(o.items) {
			return false
		}
		for i := range v.items {
			if !v.items[i].Equal(o.items[i]) {
				return false
			}
		}
		return true
	default:
		return true
	}
}

// String renders the value for diagnostics and plan output.
func (v Value) String() string {
	switch v.typ {
	case TypeString:
		return strconv.Quote(v.str)
	case TypeConstraint:
		return v.str
	case TypeBool:
		return strconv.FormatBool(v.boolean)
	case TypeInt:
		return strconv.FormatInt(v.integer, 10)
	case TypeList:
		parts := make([]string, len(v.items))
		for i, item := range v.items {
			parts[i] = item.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return "<invalid>"
	}
}

// MarshalJSON renders the value in the form backends receive: strings,
// booleans, and integers as JSON scalars, constraints as their original
// text, lists as arrays.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.typ {
	case TypeString, TypeConstraint:
		return json.Marshal(v.str)
	case TypeBool:
		return json.Marshal(v.boolean)
	case TypeInt:
		return json.Marshal(v.integer)
	case TypeList:
		return json.Marshal(v.items)
	default:
		return nil, fmt.Errorf("cannot marshal value of type %q", string(v.typ))
	}
}
