package schema

import (
	"fmt"
	"strings"

	"github.com/enactproject/enact/pkg/document"
	"github.com/enactproject/enact/pkg/intent"
)

// Validate checks a raw document tree against the schema version it
// declares and returns the validated intent set with defaults filled in.
//
// Failure modes: UnknownVersionError for a version that was never
// released, RemovedVersionError for a version past its sunset, and
// ShapeError for anything wrong with the document or intent shapes.
// A deprecated version validates normally and adds a warning.
func (r *Registry) Validate(doc document.Value) (*intent.Set, []Warning, error) {
	if doc.Kind() != document.KindMap {
		return nil, nil, shapeErrorf("", "", "document", "expected a map at the top level, got %s", doc.Kind())
	}
	for _, key := range doc.FieldKeys() {
		if key != "schema_version" && key != "intents" {
			return nil, nil, shapeErrorf("", "", key, "unknown document field")
		}
	}

	rawVersion, ok := doc.Field("schema_version")
	if !ok {
		return nil, nil, shapeErrorf("", "", "schema_version", "required field missing")
	}
	versionText, ok := rawVersion.AsString()
	if !ok {
		return nil, nil, shapeErrorf("", "", "schema_version", "expected string, got %s", rawVersion.Kind())
	}
	declared, err := ParseVersion(versionText)
	if err != nil {
		return nil, nil, shapeErrorf("", "", "schema_version", "%v", err)
	}

	vs := r.Lookup(declared)
	if vs == nil {
		return nil, nil, &UnknownVersionError{Declared: versionText, Known: r.Versions()}
	}
	if vs.Removed {
		return nil, nil, &RemovedVersionError{Version: vs.Version, SunsetNotice: vs.SunsetNotice}
	}
	var warnings []Warning
	if vs.Deprecated {
		warnings = append(warnings, Warning{
			Code:    WarningDeprecatedVersion,
			Message: fmt.Sprintf("schema version %s is deprecated: %s", vs.Version, vs.SunsetNotice),
		})
	}

	rawIntents, ok := doc.Field("intents")
	if !ok {
		return nil, nil, shapeErrorf("", "", "intents", "required field missing")
	}
	if rawIntents.Kind() != document.KindList {
		return nil, nil, shapeErrorf("", "", "intents", "expected list, got %s", rawIntents.Kind())
	}

	set := &intent.Set{SchemaVersion: vs.Version.String()}
	seen := make(map[string]int)
	for i, item := range rawIntents.Items() {
		in, err := vs.validateIntent(i, item)
		if err != nil {
			return nil, nil, err
		}
		key := in.Kind + "\x00" + in.Target
		if prev, dup := seen[key]; dup {
			return nil, nil, shapeErrorf(in.Kind, in.Target, "target",
				"duplicate (kind, target): already declared by intent %d", prev)
		}
		seen[key] = i
		set.Intents = append(set.Intents, in)
	}

	return set, warnings, nil
}

func (vs *VersionSpec) validateIntent(index int, item document.Value) (intent.Intent, error) {
	var in intent.Intent
	if item.Kind() != document.KindMap {
		return in, shapeErrorf("", "", fmt.Sprintf("intents[%d]", index),
			"expected map, got %s", item.Kind())
	}
	for _, key := range item.FieldKeys() {
		switch key {
		case "kind", "target", "parameters", "backend_hints":
		default:
			return in, shapeErrorf("", "", fmt.Sprintf("intents[%d].%s", index, key), "unknown intent field")
		}
	}

	rawKind, ok := item.Field("kind")
	if !ok {
		return in, shapeErrorf("", "", fmt.Sprintf("intents[%d].kind", index), "required field missing")
	}
	kind, ok := rawKind.AsString()
	if !ok {
		return in, shapeErrorf("", "", fmt.Sprintf("intents[%d].kind", index),
			"expected string, got %s", rawKind.Kind())
	}
	ks := vs.Kind(kind)
	if ks == nil {
		return in, shapeErrorf(kind, "", "kind", "unknown intent kind for schema version %s (known kinds: %s)",
			vs.Version, strings.Join(vs.KindNames(), ", "))
	}

	rawTarget, ok := item.Field("target")
	if !ok {
		return in, shapeErrorf(kind, "", "target", "required field missing")
	}
	target, ok := rawTarget.AsString()
	if !ok {
		return in, shapeErrorf(kind, "", "target", "expected string, got %s", rawTarget.Kind())
	}
	if target == "" {
		return in, shapeErrorf(kind, "", "target", "must not be empty")
	}

	params, err := ks.validateParams(kind, target, item)
	if err != nil {
		return in, err
	}

	hints, err := validateHints(kind, target, item)
	if err != nil {
		return in, err
	}

	return intent.Intent{
		Kind:       kind,
		Target:     target,
		Parameters: params,
		Hints:      hints,
		DocIndex:   index,
	}, nil
}

func (ks *KindSpec) validateParams(kind, target string, item document.Value) (map[string]intent.Value, error) {
	params := make(map[string]intent.Value)

	if raw, ok := item.Field("parameters"); ok {
		if raw.Kind() != document.KindMap {
			return nil, shapeErrorf(kind, target, "parameters", "expected map, got %s", raw.Kind())
		}
		for _, name := range raw.FieldKeys() {
			ps := ks.Param(name)
			if ps == nil {
				return nil, shapeErrorf(kind, target, name, "unknown parameter for kind %q", kind)
			}
			val, _ := raw.Field(name)
			converted, reason := convertParam(ps, val)
			if reason != "" {
				return nil, shapeErrorf(kind, target, name, "%s", reason)
			}
			params[name] = converted
		}
	}

	// Required checks and default filling follow ruleset declaration
	// order, keeping the filled model deterministic for identical input.
	for i := range ks.Params {
		ps := &ks.Params[i]
		if _, present := params[ps.Name]; present {
			continue
		}
		if ps.Required {
			return nil, shapeErrorf(kind, target, ps.Name, "required parameter missing")
		}
		if !ps.Default.IsZero() {
			params[ps.Name] = ps.Default
		}
	}
	return params, nil
}

func convertParam(ps *ParamSpec, val document.Value) (intent.Value, string) {
	switch ps.Type {
	case ParamString:
		s, ok := val.AsString()
		if !ok {
			return intent.Value{}, fmt.Sprintf("expected string, got %s", val.Kind())
		}
		return intent.StringValue(s), ""
	case ParamBool:
		b, ok := val.AsBool()
		if !ok {
			return intent.Value{}, fmt.Sprintf("expected bool, got %s", val.Kind())
		}
		return intent.BoolValue(b), ""
	case ParamInt:
		i, ok := val.AsInt()
		if !ok {
			return intent.Value{}, fmt.Sprintf("expected int, got %s", val.Kind())
		}
		return intent.IntValue(i), ""
	case ParamEnum:
		s, ok := val.AsString()
		if !ok {
			return intent.Value{}, fmt.Sprintf("expected one of [%s], got %s", strings.Join(ps.Enum, ", "), val.Kind())
		}
		for _, allowed := range ps.Enum {
			if s == allowed {
				return intent.StringValue(s), ""
			}
		}
		return intent.Value{}, fmt.Sprintf("value %q is not one of [%s]", s, strings.Join(ps.Enum, ", "))
	case ParamConstraint:
		s, ok := val.AsString()
		if !ok {
			return intent.Value{}, fmt.Sprintf("expected version constraint string, got %s", val.Kind())
		}
		cv, err := intent.ConstraintValue(s)
		if err != nil {
			return intent.Value{}, err.Error()
		}
		return cv, ""
	case ParamList:
		if val.Kind() != document.KindList {
			return intent.Value{}, fmt.Sprintf("expected list, got %s", val.Kind())
		}
		elemSpec := &ParamSpec{Name: ps.Name, Type: ps.Elem, Enum: ps.Enum}
		items := make([]intent.Value, 0, val.Len())
		for i, elem := range val.Items() {
			converted, reason := convertParam(elemSpec, elem)
			if reason != "" {
				return intent.Value{}, fmt.Sprintf("element %d: %s", i, reason)
			}
			items = append(items, converted)
		}
		return intent.ListValue(items...), ""
	default:
		return intent.Value{}, fmt.Sprintf("unsupported parameter type %q in ruleset", string(ps.Type))
	}
}

// validateHints checks the backend_hints block. Hint parameter names are a
// backend-specific namespace, so only the value shapes are checked here:
// scalars and lists of scalars.
func validateHints(kind, target string, item document.Value) (map[string]map[string]intent.Value, error) {
	raw, ok := item.Field("backend_hints")
	if !ok {
		return nil, nil
	}
	if raw.Kind() != document.KindMap {
		return nil, shapeErrorf(kind, target, "backend_hints", "expected map, got %s", raw.Kind())
	}
	hints := make(map[string]map[string]intent.Value)
	for _, backend := range raw.FieldKeys() {
		block, _ := raw.Field(backend)
		if block.Kind() != document.KindMap {
			return nil, shapeErrorf(kind, target, "backend_hints."+backend,
				"expected map, got %s", block.Kind())
		}
		overrides := make(map[string]intent.Value)
		for _, name := range block.FieldKeys() {
			val, _ := block.Field(name)
			converted, reason := convertHintValue(val)
			if reason != "" {
				return nil, shapeErrorf(kind, target, "backend_hints."+backend+"."+name, "%s", reason)
			}
			overrides[name] = converted
		}
		hints[backend] = overrides
	}
	return hints, nil
}

func convertHintValue(val document.Value) (intent.Value, string) {
	switch val.Kind() {
	case document.KindString:
		s, _ := val.AsString()
		return intent.StringValue(s), ""
	case document.KindBool:
		b, _ := val.AsBool()
		return intent.BoolValue(b), ""
	case document.KindInt:
		i, _ := val.AsInt()
		return intent.IntValue(i), ""
	case document.KindList:
		items := make([]intent.Value, 0, val.Len())
		for i, elem := range val.Items() {
			converted, reason := convertHintValue(elem)
			if reason != "" {
				return intent.Value{}, fmt.Sprintf("element %d: %s", i, reason)
			}
			items = append(items, converted)
		}
		return intent.ListValue(items...), ""
	default:
		return intent.Value{}, fmt.Sprintf("hint values must be scalars or lists of scalars, got %s", val.Kind())
	}
}
