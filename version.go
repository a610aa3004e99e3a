package main

import (
	"fmt"
	"strings"

	hcversion "github.com/hashicorp/go-version"
)

// Version wraps hashicorp/go-version's total order (pre-releases sort below
// their base release) while keeping the three-component accessors the
// constraint algebra in constraint.go needs.
type Version struct {
	raw  string
	v    *hcversion.Version
}

// parseVersion trims whitespace, strips a leading "v", and pads missing
// components with zeros before delegating to go-version, per spec §4.A.
func parseVersion(text string) (Version, error) {
	s := strings.TrimSpace(text)
	s = strings.TrimPrefix(s, "v")
	padded := padComponents(s)
	parsed, err := hcversion.NewVersion(padded)
	if err != nil {
		return Version{}, fmt.Errorf("parse version %q: %w", text, err)
	}
	return Version{raw: text, v: parsed}, nil
}

// padComponents pads a dotted numeric prefix to three components, leaving
// any pre-release/metadata suffix (starting at '-' or '+') untouched.
func padComponents(s string) string {
	cut := len(s)
	for i, r := range s {
		if r == '-' || r == '+' {
			cut = i
			break
		}
	}
	core, suffix := s[:cut], s[cut:]
	parts := strings.Split(core, ".")
	for len(parts) < 3 {
		parts = append(parts, "0")
	}
	return strings.Join(parts, ".") + suffix
}

func mustVersion(text string) Version {
	v, err := parseVersion(text)
	if err != nil {
		panic(err)
	}
	return v
}

func (v Version) Major() int { return int(v.v.Segments64()[0]) }
func (v Version) Minor() int { return int(v.v.Segments64()[1]) }
func (v Version) Patch() int { return int(v.v.Segments64()[2]) }

func (v Version) String() string { return v.v.String() }

func (v Version) Equal(o Version) bool   { return v.v.Equal(o.v) }
func (v Version) LessThan(o Version) bool { return v.v.LessThan(o.v) }
func (v Version) GreaterThan(o Version) bool { return v.v.GreaterThan(o.v) }
func (v Version) LessOrEqual(o Version) bool {
	return v.LessThan(o) || v.Equal(o)
}
func (v Version) GreaterOrEqual(o Version) bool {
	return v.GreaterThan(o) || v.Equal(o)
}

// nextPatch returns major.minor.(patch+1), the successor used for strict
// lower bounds (">").
func (v Version) nextPatch() Version {
	return mustVersion(fmt.Sprintf("%d.%d.%d", v.Major(), v.Minor(), v.Patch()+1))
}

// prevPatch returns the predecessor used for strict upper bounds ("<"),
// floored at 0.0.0 per spec §4.A.
func (v Version) prevPatch() Version {
	maj, min, pat := v.Major(), v.Minor(), v.Patch()
	switch {
	case pat > 0:
		pat--
	case min > 0:
		min--
		pat = maxPatchSentinel
	case maj > 0:
		maj--
		min = maxPatchSentinel
		pat = maxPatchSentinel
	default:
		return mustVersion("0.0.0")
	}
	return mustVersion(fmt.Sprintf("%d.%d.%d", maj, min, pat))
}

// maxPatchSentinel stands in for the original spec's unbounded MAX when
// borrowing down through a zero component; large enough never to be reached
// by a real Terraform version while keeping arithmetic simple integers.
const maxPatchSentinel = 1<<31 - 1

// upperBoundOf computes the exclusive upper bound implied by a pessimistic
// atom's base version and component count, per spec §4.A.
func upperBoundOf(base Version, parts int) Version {
	switch parts {
	case 3:
		return mustVersion(fmt.Sprintf("%d.%d.0", base.Major(), base.Minor()+1))
	case 2:
		return mustVersion(fmt.Sprintf("%d.0.0", base.Major()+1))
	default:
		return Version{}
	}
}
