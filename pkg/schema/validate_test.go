package schema

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/enactproject/enact/pkg/document"
)

func buildDoc(version string, intents ...document.Value) document.Value {
	doc := document.NewMap()
	doc.SetField("schema_version", document.String(version))
	doc.SetField("intents", document.List(intents...))
	return doc
}

func buildIntent(kind, target string) document.Value {
	in := document.NewMap()
	in.SetField("kind", document.String(kind))
	in.SetField("target", document.String(target))
	return in
}

func withParams(in document.Value, set func(params document.Value)) document.Value {
	params := document.NewMap()
	set(params)
	in.SetField("parameters", params)
	return in
}

func TestRegistry_Validate_FillsDefaults(t *testing.T) {
	r := BuiltinRegistry()
	doc := buildDoc("1.2",
		buildIntent("package", "curl"),
		buildIntent("service", "cron"),
	)

	set, warnings, err := r.Validate(doc)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(warnings) != 0 {
		t.Errorf("Expected no warnings for the current version, got %v", warnings)
	}
	if set.SchemaVersion != "1.2" {
		t.Errorf("Expected schema version 1.2, got %q", set.SchemaVersion)
	}
	if set.Len() != 2 {
		t.Fatalf("Expected 2 intents, got %d", set.Len())
	}

	pkg := set.Intents[0]
	if got, _ := pkg.StringParam("state"); got != "present" {
		t.Errorf("Expected package state default \"present\", got %q", got)
	}
	if got, _ := pkg.StringParam(ParamOnFailure); got != "inherit" {
		t.Errorf("Expected %s default \"inherit\", got %q", ParamOnFailure, got)
	}
	if _, ok := pkg.Param("version"); ok {
		t.Error("Expected optional package.version to stay absent without a default")
	}
	if pkg.DocIndex != 0 {
		t.Errorf("Expected doc index 0, got %d", pkg.DocIndex)
	}

	svc := set.Intents[1]
	if got, _ := svc.StringParam("state"); got != "running" {
		t.Errorf("Expected service state default \"running\", got %q", got)
	}
	if v, ok := svc.Param("enabled"); !ok {
		t.Error("Expected service.enabled default to be filled")
	} else if b, _ := v.AsBool(); !b {
		t.Error("Expected service.enabled default true")
	}
}

func TestRegistry_Validate_Deterministic(t *testing.T) {
	r := BuiltinRegistry()
	build := func() document.Value {
		in := withParams(buildIntent("mount", "/var/data"), func(p document.Value) {
			p.SetField("device", document.String("/dev/vdb1"))
			p.SetField("fsck_order", document.Int(2))
		})
		return buildDoc("1.2", in, buildIntent("user", "deploy"))
	}

	first, _, err := r.Validate(build())
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	second, _, err := r.Validate(build())
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	a, err := json.Marshal(first)
	if err != nil {
		t.Fatalf("Expected marshal to work, got: %v", err)
	}
	b, err := json.Marshal(second)
	if err != nil {
		t.Fatalf("Expected marshal to work, got: %v", err)
	}
	if string(a) != string(b) {
		t.Errorf("Expected byte-identical validated sets, got:\n%s\n%s", a, b)
	}

	mount := first.Intents[0]
	opts, ok := mount.Param("options")
	if !ok {
		t.Fatal("Expected mount.options default")
	}
	items := opts.Items()
	if len(items) != 1 {
		t.Fatalf("Expected 1 default mount option, got %d", len(items))
	}
	if s, _ := items[0].AsString(); s != "defaults" {
		t.Errorf("Expected mount option \"defaults\", got %q", s)
	}
}

func TestRegistry_Validate_UnknownVersion(t *testing.T) {
	r := BuiltinRegistry()
	_, _, err := r.Validate(buildDoc("3.0"))
	var unknown *UnknownVersionError
	if !errors.As(err, &unknown) {
		t.Fatalf("Expected UnknownVersionError, got: %v", err)
	}
	if unknown.Declared != "3.0" {
		t.Errorf("Expected declared version 3.0 in the error, got %q", unknown.Declared)
	}
	if len(unknown.Known) != 4 {
		t.Errorf("Expected 4 known versions in the error, got %d", len(unknown.Known))
	}
}

func TestRegistry_Validate_RemovedVersionNeverFallsBack(t *testing.T) {
	r := BuiltinRegistry()
	// A document that would be perfectly valid under 1.x.
	doc := buildDoc("0.9", buildIntent("package", "curl"))

	set, _, err := r.Validate(doc)
	if set != nil {
		t.Error("Expected no intent set for a removed version")
	}
	var removed *RemovedVersionError
	if !errors.As(err, &removed) {
		t.Fatalf("Expected RemovedVersionError, got: %v", err)
	}
	if removed.Version != (Version{0, 9}) {
		t.Errorf("Expected version 0.9 in the error, got %s", removed.Version)
	}
	if !strings.Contains(removed.SunsetNotice, "2025-06-30") {
		t.Errorf("Expected the sunset notice text in the error, got %q", removed.SunsetNotice)
	}
}

func TestRegistry_Validate_DeprecatedVersionWarns(t *testing.T) {
	r := BuiltinRegistry()
	set, warnings, err := r.Validate(buildDoc("1.0", buildIntent("package", "curl")))
	if err != nil {
		t.Fatalf("Expected deprecated version to validate, got: %v", err)
	}
	if set.Len() != 1 {
		t.Fatalf("Expected 1 intent, got %d", set.Len())
	}
	if len(warnings) != 1 {
		t.Fatalf("Expected 1 warning, got %d", len(warnings))
	}
	if warnings[0].Code != WarningDeprecatedVersion {
		t.Errorf("Expected warning code %q, got %q", WarningDeprecatedVersion, warnings[0].Code)
	}
	if !strings.Contains(warnings[0].Message, "2026-12-31") {
		t.Errorf("Expected the sunset notice in the warning, got %q", warnings[0].Message)
	}

	// 1.0 predates the user kind.
	_, _, err = r.Validate(buildDoc("1.0", buildIntent("user", "deploy")))
	var shape *ShapeError
	if !errors.As(err, &shape) {
		t.Fatalf("Expected ShapeError for a kind unknown to 1.0, got: %v", err)
	}
}

func TestRegistry_Validate_ShapeErrors(t *testing.T) {
	r := BuiltinRegistry()

	cases := []struct {
		name      string
		doc       document.Value
		wantField string
	}{
		{
			name:      "missing schema_version",
			doc:       func() document.Value { d := document.NewMap(); d.SetField("intents", document.List()); return d }(),
			wantField: "schema_version",
		},
		{
			name: "missing intents",
			doc: func() document.Value {
				d := document.NewMap()
				d.SetField("schema_version", document.String("1.2"))
				return d
			}(),
			wantField: "intents",
		},
		{
			name:      "unknown top-level field",
			doc:       func() document.Value { d := buildDoc("1.2"); d.SetField("extra", document.Bool(true)); return d }(),
			wantField: "extra",
		},
		{
			name:      "missing target",
			doc:       buildDoc("1.2", func() document.Value { in := document.NewMap(); in.SetField("kind", document.String("package")); return in }()),
			wantField: "target",
		},
		{
			name:      "empty target",
			doc:       buildDoc("1.2", buildIntent("package", "")),
			wantField: "target",
		},
		{
			name:      "unknown kind",
			doc:       buildDoc("1.2", buildIntent("container", "nginx")),
			wantField: "kind",
		},
		{
			name: "unknown parameter",
			doc: buildDoc("1.2", withParams(buildIntent("package", "curl"), func(p document.Value) {
				p.SetField("color", document.String("red"))
			})),
			wantField: "color",
		},
		{
			name: "wrong parameter type",
			doc: buildDoc("1.2", withParams(buildIntent("package", "curl"), func(p document.Value) {
				p.SetField("state", document.Bool(true))
			})),
			wantField: "state",
		},
		{
			name: "enum value outside set",
			doc: buildDoc("1.2", withParams(buildIntent("package", "curl"), func(p document.Value) {
				p.SetField("state", document.String("sideways"))
			})),
			wantField: "state",
		},
		{
			name:      "missing required parameter",
			doc:       buildDoc("1.2", buildIntent("repository-source", "community")),
			wantField: "url",
		},
		{
			name: "unparsable version constraint",
			doc: buildDoc("1.2", withParams(buildIntent("kernel", "linux-lts"), func(p document.Value) {
				p.SetField("version", document.String("@@nope"))
			})),
			wantField: "version",
		},
		{
			name: "list element type mismatch",
			doc: buildDoc("1.2", withParams(buildIntent("user", "deploy"), func(p document.Value) {
				p.SetField("groups", document.List(document.String("wheel"), document.Int(3)))
			})),
			wantField: "groups",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := r.Validate(tc.doc)
			var shape *ShapeError
			if !errors.As(err, &shape) {
				t.Fatalf("Expected ShapeError, got: %v", err)
			}
			if !strings.Contains(shape.Field, tc.wantField) {
				t.Errorf("Expected field %q in the error, got %q (%v)", tc.wantField, shape.Field, shape)
			}
		})
	}
}

func TestRegistry_Validate_DuplicateKindTarget(t *testing.T) {
	r := BuiltinRegistry()
	doc := buildDoc("1.2",
		buildIntent("package", "curl"),
		buildIntent("service", "curl"),
		buildIntent("package", "curl"),
	)

	_, _, err := r.Validate(doc)
	var shape *ShapeError
	if !errors.As(err, &shape) {
		t.Fatalf("Expected ShapeError for a duplicate (kind, target), got: %v", err)
	}
	if shape.Kind != "package" || shape.Target != "curl" {
		t.Errorf("Expected the duplicate package \"curl\" to be named, got %v", shape)
	}
	if !strings.Contains(shape.Reason, "intent 0") {
		t.Errorf("Expected the first declaration index in the reason, got %q", shape.Reason)
	}
}

func TestRegistry_Validate_Hints(t *testing.T) {
	r := BuiltinRegistry()

	in := buildIntent("package", "curl")
	hints := document.NewMap()
	apk := document.NewMap()
	apk.SetField("repository", document.String("edge"))
	apk.SetField("no_cache", document.Bool(true))
	hints.SetField("apk", apk)
	in.SetField("backend_hints", hints)

	set, _, err := r.Validate(buildDoc("1.2", in))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	overrides := set.Intents[0].HintsFor("apk")
	if overrides == nil {
		t.Fatal("Expected apk hints to survive validation")
	}
	if v, ok := overrides["repository"]; !ok {
		t.Error("Expected repository hint")
	} else if s, _ := v.AsString(); s != "edge" {
		t.Errorf("Expected repository hint \"edge\", got %q", s)
	}

	// Map-valued hints are not representable as resolved parameters.
	bad := buildIntent("package", "wget")
	badHints := document.NewMap()
	badBlock := document.NewMap()
	badBlock.SetField("nested", document.NewMap())
	badHints.SetField("apk", badBlock)
	bad.SetField("backend_hints", badHints)

	_, _, err = r.Validate(buildDoc("1.2", bad))
	var shape *ShapeError
	if !errors.As(err, &shape) {
		t.Fatalf("Expected ShapeError for a map-valued hint, got: %v", err)
	}
}

func TestRegistry_Validate_EmptyIntentsIsValid(t *testing.T) {
	r := BuiltinRegistry()
	set, _, err := r.Validate(buildDoc("1.2"))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if set.Len() != 0 {
		t.Errorf("Expected an empty set, got %d intents", set.Len())
	}
}
