package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestParseConstraint(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantKind []AtomKind
	}{
		{"exact bare version", "1.2.3", []AtomKind{AtomExact}},
		{"explicit equals", "= 1.2.3", []AtomKind{AtomExact}},
		{"greater or equal", ">= 1.0.0", []AtomKind{AtomGE}},
		{"pessimistic", "~> 1.2", []AtomKind{AtomPessimistic}},
		{"not equal", "!= 1.0.0", []AtomKind{AtomNE}},
		{"wildcard is unconstrained", "*", nil},
		{"conjunction", ">= 1.0.0, < 2.0.0", []AtomKind{AtomGE, AtomLT}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c, err := parseConstraint(tc.input)
			require.NoError(t, err)
			require.Len(t, c.Atoms, len(tc.wantKind))
			for i, k := range tc.wantKind {
				assert.Equal(t, k, c.Atoms[i].Kind)
			}
			assert.Equal(t, tc.input, c.Raw)
		})
	}
}

func TestParseConstraintError(t *testing.T) {
	_, err := parseConstraint(">= not-a-version")
	require.Error(t, err)
	var parseErr *ConstraintParseError
	require.ErrorAs(t, err, &parseErr)
}

func TestPessimisticParts(t *testing.T) {
	tests := []struct {
		raw   string
		parts int
	}{
		{"~> 1", 1},
		{"~> 1.2", 2},
		{"~> 1.2.3", 3},
	}
	for _, tc := range tests {
		c, err := parseConstraint(tc.raw)
		require.NoError(t, err)
		require.Len(t, c.Atoms, 1)
		assert.Equal(t, tc.parts, c.Atoms[0].Parts)
	}
}

func TestRangeAtomContains(t *testing.T) {
	v := func(s string) Version { return mustVersion(s) }
	tests := []struct {
		name string
		atom RangeAtom
		in   Version
		want bool
	}{
		{"exact match", RangeAtom{Kind: AtomExact, Base: v("1.2.3")}, v("1.2.3"), true},
		{"exact mismatch", RangeAtom{Kind: AtomExact, Base: v("1.2.3")}, v("1.2.4"), false},
		{"ge boundary", RangeAtom{Kind: AtomGE, Base: v("1.0.0")}, v("1.0.0"), true},
		{"gt boundary excluded", RangeAtom{Kind: AtomGT, Base: v("1.0.0")}, v("1.0.0"), false},
		{"lt boundary excluded", RangeAtom{Kind: AtomLT, Base: v("2.0.0")}, v("2.0.0"), false},
		{"le boundary", RangeAtom{Kind: AtomLE, Base: v("2.0.0")}, v("2.0.0"), true},
		{"ne excludes", RangeAtom{Kind: AtomNE, Base: v("1.0.0")}, v("1.0.0"), false},
		{"pessimistic 2-part within", RangeAtom{Kind: AtomPessimistic, Base: v("1.2.0"), Parts: 2}, v("1.9.9"), true},
		{"pessimistic 2-part rolls major", RangeAtom{Kind: AtomPessimistic, Base: v("1.2.0"), Parts: 2}, v("2.0.0"), false},
		{"pessimistic 3-part within", RangeAtom{Kind: AtomPessimistic, Base: v("1.2.3"), Parts: 3}, v("1.2.9"), true},
		{"pessimistic 3-part rolls minor", RangeAtom{Kind: AtomPessimistic, Base: v("1.2.3"), Parts: 3}, v("1.3.0"), false},
		{"pessimistic below base excluded", RangeAtom{Kind: AtomPessimistic, Base: v("1.2.3"), Parts: 3}, v("1.2.2"), false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.atom.Contains(tc.in))
		})
	}
}

func TestIsOverlyBroad(t *testing.T) {
	broad, err := parseConstraint(">= 0.0.0")
	require.NoError(t, err)
	assert.True(t, isOverlyBroad(broad))

	narrow, err := parseConstraint(">= 1.0.0")
	require.NoError(t, err)
	assert.False(t, isOverlyBroad(narrow))
}

func TestIsUnconstrained(t *testing.T) {
	c, err := parseConstraint("*")
	require.NoError(t, err)
	assert.True(t, isUnconstrained(c))
}

// TestOverlapConflictCommutation is Testable Property #2 (spec §8): for any
// two constraints, conflicts(a,b) == !overlap(a,b) holds by construction,
// and both are symmetric.
func TestOverlapConflictCommutation(t *testing.T) {
	pairs := []struct{ a, b string }{
		{">= 1.0.0", "< 1.0.0"},
		{">= 1.0.0, < 2.0.0", ">= 1.5.0, < 3.0.0"},
		{"= 1.0.0", "!= 1.0.0"},
		{"~> 1.2", "~> 1.9"},
		{"~> 1.2", "~> 2.0"},
		{">= 1.0.0", ">= 1.0.0"},
	}
	for _, tc := range pairs {
		ca, err := parseConstraint(tc.a)
		require.NoError(t, err)
		cb, err := parseConstraint(tc.b)
		require.NoError(t, err)

		assert.Equal(t, conflicts(ca, cb), !overlap(ca, cb))
		assert.Equal(t, overlap(ca, cb), overlap(cb, ca), "overlap must be symmetric")
	}
}

// TestNotEqualOverlapBug is the Open Question #1 scenario: "= 1.0.0" and
// "!= 1.0.0" must be reported as conflicting even though their folded
// intervals are both the single point 1.0.0.
func TestNotEqualOverlapBug(t *testing.T) {
	exact, err := parseConstraint("= 1.0.0")
	require.NoError(t, err)
	ne, err := parseConstraint("!= 1.0.0")
	require.NoError(t, err)

	assert.False(t, overlap(exact, ne))
	assert.True(t, conflicts(exact, ne))
}

func TestNotEqualDoesNotFalselyConflictElsewhere(t *testing.T) {
	// "!= 1.0.0" alongside ">= 1.0.0, < 2.0.0" still overlaps at 1.0.1, etc.
	broad, err := parseConstraint(">= 1.0.0, < 2.0.0")
	require.NoError(t, err)
	ne, err := parseConstraint("!= 1.0.0")
	require.NoError(t, err)

	assert.True(t, overlap(broad, ne))
	assert.False(t, conflicts(broad, ne))
}

func TestDetectRiskyPatterns(t *testing.T) {
	tests := []struct {
		raw  string
		want RiskyTag
	}{
		{"*", RiskyWildcard},
		{"1.0.0-beta1", RiskyPreRelease},
		{"1.2.3", RiskyExactVersion},
		{"> 1.0.0", RiskyNoUpperBound},
	}
	for _, tc := range tests {
		t.Run(string(tc.want), func(t *testing.T) {
			tags := detectRiskyPatterns(tc.raw, RiskyPatternConfig{})
			assert.Contains(t, tags, tc.want)
		})
	}
}

func TestHasNoUpperBoundExcludesPessimistic(t *testing.T) {
	// "~>" contains ">" as a substring but must never be flagged as
	// "no upper bound" since it always implies one.
	assert.False(t, hasNoUpperBound("~> 1.2"))
	assert.True(t, hasNoUpperBound("> 1.2"))
}

// TestParseConstraintNeverPanics is a property test in the teacher's rapid
// idiom (analyzer_property_test.go): parsing arbitrary text must never
// panic and must be deterministic.
func TestParseConstraintNeverPanics(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		input := rapid.StringMatching(`[0-9a-zA-Z.,<>=~! \-]{0,30}`).Draw(t, "input")
		defer func() {
			if r := recover(); r != nil {
				t.Fatalf("parseConstraint panicked on %q: %v", input, r)
			}
		}()
		c1, err1 := parseConstraint(input)
		c2, err2 := parseConstraint(input)
		if (err1 == nil) != (err2 == nil) {
			t.Fatalf("parseConstraint is not deterministic for %q", input)
		}
		if err1 == nil {
			assert.Equal(t, len(c1.Atoms), len(c2.Atoms))
		}
	})
}
