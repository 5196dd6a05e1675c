// Package schema implements the versioned schema registry for intent
// documents. The registry holds an append-only list of released schema
// versions, each with its own validation ruleset and deprecation state,
// and turns a raw document tree into a validated intent set with all
// schema defaults filled in. Validation is pure: it never touches the
// filesystem or the network.
package schema

import (
	"fmt"
)

// Warning is a non-fatal validation finding, such as a deprecated schema
// version.
type Warning struct {
	// Code identifies the warning category.
	Code string `json:"code"`

	// Message is the human-readable text, including any sunset notice.
	Message string `json:"message"`
}

// WarningDeprecatedVersion is emitted when a document declares a schema
// version that still validates but has a published sunset.
const WarningDeprecatedVersion = "deprecated_version"

// Registry holds the released schema versions in ascending order.
type Registry struct {
	versions []*VersionSpec
}

// NewRegistry returns an empty registry. Most callers want
// BuiltinRegistry instead.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register appends a released version. Versions must arrive in ascending
// order and are never modified afterwards; evolving a schema means
// registering a new version.
func (r *Registry) Register(vs *VersionSpec) error {
	if vs == nil {
		return fmt.Errorf("cannot register a nil version spec")
	}
	if n := len(r.versions); n > 0 {
		last := r.versions[n-1].Version
		if vs.Version.Compare(last) <= 0 {
			return fmt.Errorf("version %s must be registered after %s in ascending order", vs.Version, last)
		}
	}
	r.versions = append(r.versions, vs)
	return nil
}

// Versions returns the released versions, ascending, including removed
// ones.
func (r *Registry) Versions() []Version {
	out := make([]Version, len(r.versions))
	for i, vs := range r.versions {
		out[i] = vs.Version
	}
	return out
}

// Current returns the highest released version that is not removed. The
// second result is false when the registry is empty or fully removed.
func (r *Registry) Current() (Version, bool) {
	for i := len(r.versions) - 1; i >= 0; i-- {
		if !r.versions[i].Removed {
			return r.versions[i].Version, true
		}
	}
	return Version{}, false
}

// Lookup returns the spec for an exact version, or nil when the version
// was never released.
func (r *Registry) Lookup(v Version) *VersionSpec {
	for _, vs := range r.versions {
		if vs.Version == v {
			return vs
		}
	}
	return nil
}
