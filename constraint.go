package main

import (
	"fmt"
	"regexp"
	"strings"
)

// AtomKind distinguishes the seven RangeAtom shapes of spec §3.1.
type AtomKind int

const (
	AtomExact AtomKind = iota
	AtomGT
	AtomGE
	AtomLT
	AtomLE
	AtomNE
	AtomPessimistic
)

// RangeAtom is one parsed piece of a Constraint. Pessimistic.Parts records
// how many components were written (~> 1 vs ~> 1.0 vs ~> 1.0.0) because the
// upper bound depends on it; this field is kept as a first-class value per
// spec §9 even though the Version type itself delegates to go-version.
type RangeAtom struct {
	Kind  AtomKind
	Base  Version
	Parts int // only meaningful when Kind == AtomPessimistic
}

// Contains implements the per-atom semantics table in spec §4.A.
func (a RangeAtom) Contains(v Version) bool {
	switch a.Kind {
	case AtomExact:
		return v.Equal(a.Base)
	case AtomGT:
		return v.GreaterThan(a.Base)
	case AtomGE:
		return v.GreaterOrEqual(a.Base)
	case AtomLT:
		return v.LessThan(a.Base)
	case AtomLE:
		return v.LessOrEqual(a.Base)
	case AtomNE:
		return !v.Equal(a.Base)
	case AtomPessimistic:
		if v.LessThan(a.Base) {
			return false
		}
		if a.Parts == 1 {
			return true
		}
		upper := upperBoundOf(a.Base, a.Parts)
		return v.LessThan(upper)
	default:
		return false
	}
}

// ConstraintParseError is returned by parse; calling code records it as a
// scan warning and continues, per spec §4.A failure model.
type ConstraintParseError struct {
	Raw    string
	Reason string
}

func (e *ConstraintParseError) Error() string {
	return fmt.Sprintf("parse constraint %q: %s", e.Raw, e.Reason)
}

// Constraint is a conjunction (AND) of RangeAtoms parsed from one textual
// expression. Atoms are purely derived; Raw preserves the original text
// verbatim per Testable Property #1.
type Constraint struct {
	Raw   string
	Atoms []RangeAtom
}

var prefixOrder = []struct {
	prefix string
	kind   AtomKind
}{
	{"~>", AtomPessimistic},
	{"!=", AtomNE},
	{">=", AtomGE},
	{"<=", AtomLE},
	{">", AtomGT},
	{"<", AtomLT},
	{"=", AtomExact},
}

// parseConstraint splits on commas and recognises, in order, the prefixes
// ~> != >= <= > < =, otherwise treating the piece as an exact version. See
// spec §4.A.
func parseConstraint(text string) (Constraint, error) {
	c := Constraint{Raw: text}
	if strings.TrimSpace(text) == "" {
		return c, nil
	}
	pieces := strings.Split(text, ",")
	for _, piece := range pieces {
		trimmed := strings.TrimSpace(piece)
		if trimmed == "" {
			continue
		}
		if trimmed == "*" {
			// Unconstrained wildcard atom set: no atoms at all, matching
			// the "empty atom list means unconstrained" invariant; the
			// risky-pattern detector separately flags the raw text.
			continue
		}
		atom, err := parseAtom(trimmed)
		if err != nil {
			return Constraint{}, &ConstraintParseError{Raw: text, Reason: err.Error()}
		}
		c.Atoms = append(c.Atoms, atom)
	}
	return c, nil
}

func parseAtom(piece string) (RangeAtom, error) {
	for _, p := range prefixOrder {
		if strings.HasPrefix(piece, p.prefix) {
			versionText := strings.TrimSpace(piece[len(p.prefix):])
			base, err := parseVersion(versionText)
			if err != nil {
				return RangeAtom{}, err
			}
			if p.kind == AtomPessimistic {
				return RangeAtom{Kind: AtomPessimistic, Base: base, Parts: countParts(versionText)}, nil
			}
			return RangeAtom{Kind: p.kind, Base: base}, nil
		}
	}
	base, err := parseVersion(piece)
	if err != nil {
		return RangeAtom{}, err
	}
	return RangeAtom{Kind: AtomExact, Base: base}, nil
}

func countParts(versionText string) int {
	s := strings.TrimSpace(versionText)
	s = strings.TrimPrefix(s, "v")
	n := strings.Count(s, ".") + 1
	if n > 3 {
		n = 3
	}
	return n
}

// satisfies is true iff every atom in c contains v.
func satisfies(c Constraint, v Version) bool {
	for _, a := range c.Atoms {
		if !a.Contains(v) {
			return false
		}
	}
	return true
}

// isUnconstrained is true iff c.Atoms is empty.
func isUnconstrained(c Constraint) bool {
	return len(c.Atoms) == 0
}

// isOverlyBroad is true iff c.Atoms == [GE 0.0.0].
func isOverlyBroad(c Constraint) bool {
	if len(c.Atoms) != 1 {
		return false
	}
	a := c.Atoms[0]
	return a.Kind == AtomGE && a.Base.Major() == 0 && a.Base.Minor() == 0 && a.Base.Patch() == 0
}

// interval is the effective closed bound folded from a constraint's
// inequality atoms, per the overlap algorithm in spec §4.A.
type interval struct {
	min      Version
	max      Version
	hasMax   bool
	empty    bool
}

func foldInterval(c Constraint) interval {
	iv := interval{min: mustVersion("0.0.0")}
	for _, a := range c.Atoms {
		switch a.Kind {
		case AtomExact:
			iv.min = a.Base
			iv.max = a.Base
			iv.hasMax = true
		case AtomGE:
			if a.Base.GreaterThan(iv.min) {
				iv.min = a.Base
			}
		case AtomGT:
			succ := a.Base.nextPatch()
			if succ.GreaterThan(iv.min) {
				iv.min = succ
			}
		case AtomLE:
			if !iv.hasMax || a.Base.LessThan(iv.max) {
				iv.max = a.Base
				iv.hasMax = true
			}
		case AtomLT:
			pred := a.Base.prevPatch()
			if !iv.hasMax || pred.LessThan(iv.max) {
				iv.max = pred
				iv.hasMax = true
			}
		case AtomPessimistic:
			if a.Base.GreaterThan(iv.min) {
				iv.min = a.Base
			}
			if a.Parts != 1 {
				upper := upperBoundOf(a.Base, a.Parts).prevPatch()
				if !iv.hasMax || upper.LessThan(iv.max) {
					iv.max = upper
					iv.hasMax = true
				}
			}
		case AtomNE:
			// Folded into satisfaction checks only, not the interval.
		}
	}
	if iv.hasMax && iv.min.GreaterThan(iv.max) {
		iv.empty = true
	}
	return iv
}

// overlap is true iff there exists some semver v satisfying all atoms of a
// and all atoms of b simultaneously. The interval test from spec §4.A is
// tightened for NotEqual atoms per REDESIGN FLAGS #1 / Open Question #1: an
// NE atom on either side that excludes every point the other side's
// interval allows makes the two constraints conflict even though their
// intervals intersect.
func overlap(a, b Constraint) bool {
	ia, ib := foldInterval(a), foldInterval(b)
	if ia.empty || ib.empty {
		return false
	}
	if ia.min.GreaterThan(ib.max) && ib.hasMax {
		return false
	}
	if ib.min.GreaterThan(ia.max) && ia.hasMax {
		return false
	}
	if !intervalsIntersect(ia, ib) {
		return false
	}
	return !excludedByNotEqual(a, b, ia, ib)
}

func intervalsIntersect(ia, ib interval) bool {
	if ia.hasMax && ib.min.GreaterThan(ia.max) {
		return false
	}
	if ib.hasMax && ia.min.GreaterThan(ib.max) {
		return false
	}
	return true
}

// excludedByNotEqual reports whether the intersection of ia and ib is a
// single point that a NotEqual atom on either side rules out — the
// "= 1.0.0 vs != 1.0.0" case from spec §9 Open Question #1.
func excludedByNotEqual(a, b Constraint, ia, ib interval) bool {
	lower := ia.min
	if ib.min.GreaterThan(lower) {
		lower = ib.min
	}
	var upper Version
	hasUpper := false
	if ia.hasMax {
		upper, hasUpper = ia.max, true
	}
	if ib.hasMax && (!hasUpper || ib.max.LessThan(upper)) {
		upper, hasUpper = ib.max, true
	}
	if !hasUpper || !lower.Equal(upper) {
		return false
	}
	// The only candidate point is `lower`; if either side's NE atoms
	// exclude it, there is no real overlap.
	for _, a2 := range a.Atoms {
		if a2.Kind == AtomNE && a2.Base.Equal(lower) {
			return true
		}
	}
	for _, b2 := range b.Atoms {
		if b2.Kind == AtomNE && b2.Base.Equal(lower) {
			return true
		}
	}
	return false
}

// conflicts is defined as !overlap(a, b).
func conflicts(a, b Constraint) bool {
	return !overlap(a, b)
}

// RiskyTag names one risky-shape signal the detector can raise for a raw
// constraint text.
type RiskyTag string

const (
	RiskyWildcard     RiskyTag = "wildcard"
	RiskyPreRelease   RiskyTag = "pre_release"
	RiskyExactVersion RiskyTag = "exact_version"
	RiskyNoUpperBound RiskyTag = "no_upper_bound"
)

// RiskyPatternConfig toggles which checks the detector performs.
type RiskyPatternConfig struct {
	DisableWildcard     bool
	DisablePreRelease    bool
	DisableExactVersion  bool
	DisableNoUpperBound  bool
}

var (
	preReleasePattern = regexp.MustCompile(`-(alpha|beta|rc|dev|pre)\d*`)
	exactVersionPattern = regexp.MustCompile(`^=?\s*\d+\.\d+\.\d+$`)
)

// detectRiskyPatterns returns the set of tags raised for a raw constraint
// text, per spec §4.A.
func detectRiskyPatterns(raw string, cfg RiskyPatternConfig) []RiskyTag {
	var tags []RiskyTag
	trimmed := strings.TrimSpace(raw)
	if !cfg.DisableWildcard && trimmed == "*" {
		tags = append(tags, RiskyWildcard)
	}
	if !cfg.DisablePreRelease && preReleasePattern.MatchString(trimmed) {
		tags = append(tags, RiskyPreRelease)
	}
	if !cfg.DisableExactVersion && exactVersionPattern.MatchString(trimmed) {
		tags = append(tags, RiskyExactVersion)
	}
	if !cfg.DisableNoUpperBound && hasNoUpperBound(trimmed) {
		tags = append(tags, RiskyNoUpperBound)
	}
	return tags
}

func hasNoUpperBound(trimmed string) bool {
	hasGreater := strings.Contains(trimmed, ">")
	if !hasGreater {
		return false
	}
	if strings.Contains(trimmed, "<") || strings.Contains(trimmed, "~>") {
		return false
	}
	return true
}
