// Package document defines the generic typed-value tree produced by the
// configuration loaders. The engine never parses configuration syntax
// itself; loaders hand it a Value tree and the schema registry takes it
// from there.
package document

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Kind identifies the type of a Value node.
type Kind int

const (
	// KindInvalid is the kind of the zero Value.
	KindInvalid Kind = iota

	// KindNull is an explicit null.
	KindNull

	// KindString is a UTF-8 string.
	KindString

	// KindBool is a boolean.
	KindBool

	// KindInt is a 64-bit signed integer.
	KindInt

	// KindList is an ordered sequence of Values.
	KindList

	// KindMap is a string-keyed mapping that preserves insertion order.
	KindMap
)

// String returns the lowercase name of the kind, as used in error messages.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	default:
		return "invalid"
	}
}

// Value is one node of a parsed configuration tree. The zero Value is
// invalid; use the constructors. Values are cheap to copy; map contents
// are shared between copies.
type Value struct {
	kind    Kind
	str     string
	boolean bool
	integer int64
	items   []Value
	fields  *fieldMap
}

type fieldMap struct {
	keys []string
	vals map[string]Value
}

// Null returns an explicit null Value.
func Null() Value { return Value{kind: KindNull} }

// String returns a string Value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Bool returns a boolean Value.
func Bool(b bool) Value { return Value{kind: KindBool, boolean: b} }

// Int returns an integer Value.
func Int(i int64) Value { return Value{kind: KindInt, integer: i} }

// List returns a list Value holding the given items in order.
func List(items ...Value) Value {
	return Value{kind: KindList, items: items}
}

// NewMap returns an empty map Value.
func NewMap() Value {
	return Value{kind: KindMap, fields: &fieldMap{vals: make(map[string]Value)}}
}

// Kind reports the kind of the value.
func (v Value) Kind() Kind { return v.kind }

// IsZero reports whether v is the invalid zero Value.
func (v Value) IsZero() bool { return v.kind == KindInvalid }

// AsString returns the string content and true when v is a string.
func (v Value) AsString() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.str, true
}

// AsBool returns the boolean content and true when v is a bool.
func (v Value) AsBool() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.boolean, true
}

// AsInt returns the integer content and true when v is an int.
func (v Value) AsInt() (int64, bool) {
	if v.kind != KindInt {
		return 0, false
	}
	return v.integer, true
}

// Items returns the elements of a list Value, or nil for other kinds.
func (v Value) Items() []Value {
	if v.kind != KindList {
		return nil
	}
	return v.items
}

// Len returns the number of list items or map fields.
func (v Value) Len() int {
	switch v.kind {
	case KindList:
		return len(v.items)
	case KindMap:
		return len(v.fields.keys)
	default:
		return 0
	}
}

// SetField sets a map field, appending the key to the iteration order on
// first insertion. It panics when v is not a map, which always indicates a
// loader bug.
func (v Value) SetField(key string, val Value) {
	if v.kind != KindMap {
		panic("document: SetField on non-map value")
	}
	if _, exists := v.fields.vals[key]; !exists {
		v.fields.keys = append(v.fields.keys, key)
	}
	v.fields.vals[key] = val
}

// Field returns the named map field and whether it is present.
func (v Value) Field(key string) (Value, bool) {
	if v.kind != KindMap {
		return Value{}, false
	}
	val, ok := v.fields.vals[key]
	return val, ok
}

// FieldKeys returns the map keys in insertion order. The returned slice
// must not be modified.
func (v Value) FieldKeys() []string {
	if v.kind != KindMap {
		return nil
	}
	return v.fields.keys
}

// Equal reports deep equality of two values. Map field order is not
// significant for equality.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindString:
		return v.str == o.str
	case KindBool:
		return v.boolean == o.boolean
	case KindInt:
		return v.integer == o.integer
	case KindList:
		if len(v.items) != len(o.items) {
			return false
		}
		for i := range v.items {
			if !v.items[i].Equal(o.items[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(v.fields.vals) != len(o.fields.vals) {
			return false
		}
		for key, val := range v.fields.vals {
			other, ok := o.fields.vals[key]
			if !ok || !val.Equal(other) {
				return false
			}
		}
		return true
	default:
		return true
	}
}

// String renders the value for diagnostics. Strings are quoted; maps and
// lists render their contents in order.
func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindString:
		return strconv.Quote(v.str)
	case KindBool:
		return strconv.FormatBool(v.boolean)
	case KindInt:
		return strconv.FormatInt(v.integer, 10)
	case KindList:
		parts := make([]string, len(v.items))
		for i, item := range v.items {
			parts[i] = item.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case KindMap:
		parts := make([]string, 0, len(v.fields.keys))
		for _, key := range v.fields.keys {
			parts = append(parts, fmt.Sprintf("%s: %s", key, v.fields.vals[key]))
		}
		return "{" + strings.Join(parts, ", ") + "}"
	default:
		return "<invalid>"
	}
}

// FromGo converts a plain Go value (as produced by generic decoders) into a
// Value tree. Supported inputs: nil, string, bool, int/int64/uint64, float64
// with an integral value, []any, map[string]any, and the Value type itself.
// Map keys are ordered lexically since the source mapping carries no order.
func FromGo(in any) (Value, error) {
	switch t := in.(type) {
	case nil:
		return Null(), nil
	case Value:
		return t, nil
	case string:
		return String(t), nil
	case bool:
		return Bool(t), nil
	case int:
		return Int(int64(t)), nil
	case int64:
		return Int(t), nil
	case uint64:
		if t > 1<<62 {
			return Value{}, fmt.Errorf("integer %d out of range", t)
		}
		return Int(int64(t)), nil
	case float64:
		i := int64(t)
		if float64(i) != t {
			return Value{}, fmt.Errorf("unsupported non-integral number %v", t)
		}
		return Int(i), nil
	case []any:
		items := make([]Value, 0, len(t))
		for i, elem := range t {
			v, err := FromGo(elem)
			if err != nil {
				return Value{}, fmt.Errorf("list index %d: %w", i, err)
			}
			items = append(items, v)
		}
		return List(items...), nil
	case map[string]any:
		keys := make([]string, 0, len(t))
		for key := range t {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		m := NewMap()
		for _, key := range keys {
			v, err := FromGo(t[key])
			if err != nil {
				return Value{}, fmt.Errorf("field %q: %w", key, err)
			}
			m.SetField(key, v)
		}
		return m, nil
	default:
		return Value{}, fmt.Errorf("unsupported value type %T", in)
	}
}
