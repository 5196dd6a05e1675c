package schema

import (
	"fmt"
	"strconv"
	"strings"
)

// Version is a schema version as a (major, minor) pair. Documents declare
// the version they target in "major.minor" form.
type Version struct {
	Major int `json:"major"`
	Minor int `json:"minor"`
}

// ParseVersion parses a "major.minor" string such as "1.2".
func ParseVersion(s string) (Version, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 2 {
		return Version{}, fmt.Errorf("schema version %q is not in major.minor form", s)
	}
	major, err := strconv.Atoi(parts[0])
	if err != nil || major < 0 {
		return Version{}, fmt.Errorf("schema version %q has an invalid major component", s)
	}
	minor, err := strconv.Atoi(parts[1])
	if err != nil || minor < 0 {
		return Version{}, fmt.Errorf("schema version %q has an invalid minor component", s)
	}
	return Version{Major: major, Minor: minor}, nil
}

// String renders the version as "major.minor".
func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// Compare returns -1, 0, or 1 ordering v against o.
func (v Version) Compare(o Version) int {
	switch {
	case v.Major != o.Major:
		if v.Major < o.Major {
			return -1
		}
		return 1
	case v.Minor != o.Minor:
		if v.Minor < o.Minor {
			return -1
		}
		return 1
	default:
		return 0
	}
}
