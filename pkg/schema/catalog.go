package schema

import (
	"github.com/enactproject/enact/pkg/intent"
)

// Shipped intent kinds.
const (
	KindPackage          = "package"
	KindRepositorySource = "repository-source"
	KindService          = "service"
	KindFile             = "file"
	KindUser             = "user"
	KindGroup            = "group"
	KindMount            = "mount"
	KindKernel           = "kernel"
)

// ParamOnFailure is the common per-intent failure policy override carried
// by every kind from schema 1.2 on.
const ParamOnFailure = "on_failure"

// BuiltinRegistry returns the registry of released schema versions.
//
// Timeline: 0.9 (removed), 1.0 (deprecated), 1.1, 1.2 (current). Each entry
// is a frozen ruleset; later versions re-declare their full kind set rather
// than patching earlier ones in place.
func BuiltinRegistry() *Registry {
	r := NewRegistry()
	mustRegister(r, &VersionSpec{
		Version:      Version{Major: 0, Minor: 9},
		Removed:      true,
		SunsetNotice: "the 0.9 preview schema was retired on 2025-06-30; migrate documents to schema_version 1.2",
	})
	mustRegister(r, &VersionSpec{
		Version:      Version{Major: 1, Minor: 0},
		Deprecated:   true,
		SunsetNotice: "schema 1.0 is deprecated; migrate documents to schema_version 1.2 before 2026-12-31",
		kinds:        kindsV10(),
	})
	mustRegister(r, &VersionSpec{
		Version: Version{Major: 1, Minor: 1},
		kinds:   kindsV11(),
	})
	mustRegister(r, &VersionSpec{
		Version: Version{Major: 1, Minor: 2},
		kinds:   kindsV12(),
	})
	return r
}

func mustRegister(r *Registry, vs *VersionSpec) {
	if err := r.Register(vs); err != nil {
		panic("schema: builtin catalog is broken: " + err.Error())
	}
}

func kindsV10() []KindSpec {
	return []KindSpec{
		{
			Kind: KindPackage,
			Params: []ParamSpec{
				{Name: "state", Type: ParamEnum, Enum: []string{"present", "absent", "latest"}, Default: intent.StringValue("present")},
				{Name: "repository", Type: ParamString},
			},
		},
		{
			Kind: KindRepositorySource,
			Params: []ParamSpec{
				{Name: "url", Type: ParamString, Required: true},
				{Name: "enabled", Type: ParamBool, Default: intent.BoolValue(true)},
				{Name: "priority", Type: ParamInt, Default: intent.IntValue(0)},
			},
		},
		{
			Kind: KindService,
			Params: []ParamSpec{
				{Name: "state", Type: ParamEnum, Enum: []string{"running", "stopped"}, Default: intent.StringValue("running")},
			},
		},
		{
			Kind: KindFile,
			Params: []ParamSpec{
				{Name: "state", Type: ParamEnum, Enum: []string{"present", "absent"}, Default: intent.StringValue("present")},
				{Name: "content", Type: ParamString, Default: intent.StringValue("")},
				{Name: "mode", Type: ParamString, Default: intent.StringValue("0644")},
				{Name: "owner", Type: ParamString, Default: intent.StringValue("root")},
				{Name: "group", Type: ParamString, Default: intent.StringValue("root")},
			},
		},
	}
}

func kindsV11() []KindSpec {
	kinds := kindsV10()
	for i := range kinds {
		switch kinds[i].Kind {
		case KindPackage:
			kinds[i].Params = append(kinds[i].Params,
				ParamSpec{Name: "version", Type: ParamConstraint})
		case KindService:
			kinds[i].Params = append(kinds[i].Params,
				ParamSpec{Name: "enabled", Type: ParamBool, Default: intent.BoolValue(true)})
		}
	}
	kinds = append(kinds,
		KindSpec{
			Kind: KindUser,
			Params: []ParamSpec{
				{Name: "state", Type: ParamEnum, Enum: []string{"present", "absent"}, Default: intent.StringValue("present")},
				{Name: "uid", Type: ParamInt},
				{Name: "shell", Type: ParamString, Default: intent.StringValue("/bin/sh")},
				{Name: "home", Type: ParamString},
				{Name: "groups", Type: ParamList, Elem: ParamString, Default: intent.ListValue()},
				{Name: "password_hash", Type: ParamString},
			},
		},
		KindSpec{
			Kind: KindGroup,
			Params: []ParamSpec{
				{Name: "state", Type: ParamEnum, Enum: []string{"present", "absent"}, Default: intent.StringValue("present")},
				{Name: "gid", Type: ParamInt},
				{Name: "members", Type: ParamList, Elem: ParamString, Default: intent.ListValue()},
			},
		},
	)
	return kinds
}

func kindsV12() []KindSpec {
	kinds := kindsV11()
	kinds = append(kinds,
		KindSpec{
			Kind: KindMount,
			Params: []ParamSpec{
				{Name: "device", Type: ParamString, Required: true},
				{Name: "fstype", Type: ParamString, Default: intent.StringValue("auto")},
				{Name: "options", Type: ParamList, Elem: ParamString, Default: intent.ListValue(intent.StringValue("defaults"))},
				{Name: "fsck_order", Type: ParamInt, Default: intent.IntValue(0)},
				{Name: "state", Type: ParamEnum, Enum: []string{"mounted", "unmounted", "absent"}, Default: intent.StringValue("mounted")},
			},
		},
		KindSpec{
			Kind: KindKernel,
			Params: []ParamSpec{
				{Name: "version", Type: ParamConstraint, Required: true},
				{Name: "flavor", Type: ParamString, Default: intent.StringValue("lts")},
			},
		},
	)
	for i := range kinds {
		kinds[i].Params = append(kinds[i].Params, ParamSpec{
			Name:    ParamOnFailure,
			Type:    ParamEnum,
			Enum:    []string{"inherit", "halt", "continue"},
			Default: intent.StringValue("inherit"),
		})
	}
	return kinds
}
