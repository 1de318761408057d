// Package version provides semantic version handling and the three-level
// version resolver that pins a node's subgraph template and executor adapter
// to concrete registered versions before execution starts.
package version

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/mod/semver"
)

// Version is a major.minor.patch semantic version.
// Versions are totally ordered; two versions are compatible iff they share
// the same major component.
type Version struct {
	Major int `json:"major"`
	Minor int `json:"minor"`
	Patch int `json:"patch"`
}

// MustParse parses a version string and panics on failure.
// Intended for registry fixtures and tests.
func MustParse(s string) Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// Parse parses a "major.minor.patch" version string.
func Parse(s string) (Version, error) {
	canonical := "v" + strings.TrimPrefix(s, "v")
	if !semver.IsValid(canonical) || semver.Canonical(canonical) != canonical ||
		semver.Prerelease(canonical) != "" || semver.Build(canonical) != "" {
		return Version{}, fmt.Errorf("invalid semantic version '%s'", s)
	}
	parts := strings.SplitN(strings.TrimPrefix(canonical, "v"), ".", 3)
	major, _ := strconv.Atoi(parts[0])
	minor, _ := strconv.Atoi(parts[1])
	patch, _ := strconv.Atoi(parts[2])
	return Version{Major: major, Minor: minor, Patch: patch}, nil
}

// String renders the version as "major.minor.patch".
func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Compare returns -1, 0 or +1 when v is lower than, equal to, or higher than o.
func (v Version) Compare(o Version) int {
	return semver.Compare("v"+v.String(), "v"+o.String())
}

// CompatibleWith reports whether v and o share the same major component.
func (v Version) CompatibleWith(o Version) bool {
	return v.Major == o.Major
}

// IsZero reports whether v is the zero value.
func (v Version) IsZero() bool {
	return v == Version{}
}
