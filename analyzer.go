package main

import (
	"sort"
	"time"
)

// DeprecationRule is one configured deprecation entry, matching the shape
// original_source/src/config.rs uses: a kind, a lookup key, an optional
// version-range string, and an optional Git-ref literal.
type DeprecationRule struct {
	Kind       string // "runtime" | "module" | "provider"
	Key        string
	VersionRaw string
	GitRef     string
	Severity   Severity
	Message    string
}

// DeprecationRuleSet groups configured rules by kind for fast lookup.
type DeprecationRuleSet struct {
	Runtime  []DeprecationRule
	Module   []DeprecationRule
	Provider []DeprecationRule
}

// analyse runs the unified pipeline of spec §4.E: conflict, missing, risky,
// broad, and deprecation passes, in order, over one merged batch of
// references. The two analyser variants present in the teacher corpus
// (conflict-oriented and best-practice-oriented) are unified here per
// Design Notes §9 Open Question #4.
func analyse(modules []ModuleRef, providers []ProviderRef, runtimes []RuntimeRef, cfg AnalyzerConfig) AnalysisResult {
	var findings []Finding

	findings = append(findings, moduleConflictPass(modules)...)
	findings = append(findings, providerConflictPass(providers)...)
	findings = append(findings, missingConstraintPass(modules, providers)...)
	findings = append(findings, riskyPatternPass(modules, providers, cfg.Risky)...)
	findings = append(findings, broadConstraintPass(modules, providers)...)

	deprecations := deprecationPass(modules, providers, runtimes, cfg.Deprecations)

	summary := newAnalysisSummary()
	for _, f := range findings {
		summary.record(f)
	}
	summary.UniqueModules = len(uniqueSources(modules))
	summary.UniqueProviders = len(uniqueProviderSources(providers))

	return AnalysisResult{
		Findings:     findings,
		Summary:      summary,
		Deprecations: deprecations,
		TimestampRFC: nowFunc().UTC().Format(time.RFC3339),
	}
}

// nowFunc is overridable in tests for deterministic timestamps.
var nowFunc = time.Now

func uniqueSources(modules []ModuleRef) map[string]bool {
	set := make(map[string]bool)
	for _, m := range modules {
		set[canonicalID(m.Source)] = true
	}
	return set
}

func uniqueProviderSources(providers []ProviderRef) map[string]bool {
	set := make(map[string]bool)
	for _, p := range providers {
		set[p.QualifiedSource] = true
	}
	return set
}

// moduleConflictPass groups modules by canonical source and emits DRIFT001
// for each conflicting ordered pair, per spec §4.E pass 1.
func moduleConflictPass(modules []ModuleRef) []Finding {
	var findings []Finding
	groups := groupModulesBySource(modules)
	for _, group := range groups {
		if len(group.Modules) < 2 {
			continue
		}
		mods := group.Modules
		for i := 0; i < len(mods); i++ {
			for j := i + 1; j < len(mods); j++ {
				a, b := mods[i], mods[j]
				if a.Constraint == nil || b.Constraint == nil {
					continue
				}
				if !conflicts(*a.Constraint, *b.Constraint) {
					continue
				}
				sev := SeverityWarning
				if a.Repository != "" && a.Repository == b.Repository {
					sev = SeverityError
				}
				findings = append(findings, Finding{
					Code:        CodeConstraintConflict,
					Severity:    sev,
					Category:    CategoryConstraintConflict,
					Message:     "conflicting version constraints " + a.Constraint.Raw + " and " + b.Constraint.Raw,
					Description: "module " + a.Name + " is constrained to " + a.Constraint.Raw + " while a sibling reference uses " + b.Constraint.Raw,
					Suggestion:  suggestAlignment(*a.Constraint, *b.Constraint),
					Primary:     Location{File: a.File, Line: a.Line, Repository: a.Repository},
					Related:     []Location{{File: b.File, Line: b.Line, Repository: b.Repository}},
				})
			}
		}
	}
	return findings
}

// providerConflictPass mirrors moduleConflictPass, grouped by qualified
// provider source, per spec §4.E pass 2.
func providerConflictPass(providers []ProviderRef) []Finding {
	var findings []Finding
	groups := make(map[string][]ProviderRef)
	var keys []string
	for _, p := range providers {
		if _, ok := groups[p.QualifiedSource]; !ok {
			keys = append(keys, p.QualifiedSource)
		}
		groups[p.QualifiedSource] = append(groups[p.QualifiedSource], p)
	}
	sort.Strings(keys)
	for _, key := range keys {
		group := groups[key]
		if len(group) < 2 {
			continue
		}
		for i := 0; i < len(group); i++ {
			for j := i + 1; j < len(group); j++ {
				a, b := group[i], group[j]
				if a.Constraint == nil || b.Constraint == nil {
					continue
				}
				if !conflicts(*a.Constraint, *b.Constraint) {
					continue
				}
				sev := SeverityWarning
				if a.Repository != "" && a.Repository == b.Repository {
					sev = SeverityError
				}
				findings = append(findings, Finding{
					Code:        CodeConstraintConflict,
					Severity:    sev,
					Category:    CategoryConstraintConflict,
					Message:     "conflicting provider constraints " + a.Constraint.Raw + " and " + b.Constraint.Raw,
					Description: "provider " + key + " is constrained to " + a.Constraint.Raw + " while a sibling reference uses " + b.Constraint.Raw,
					Suggestion:  suggestAlignment(*a.Constraint, *b.Constraint),
					Primary:     Location{File: a.File, Line: a.Line, Repository: a.Repository},
					Related:     []Location{{File: b.File, Line: b.Line, Repository: b.Repository}},
				})
			}
		}
	}
	return findings
}

// suggestAlignment compares parsed base versions, not raw text, to avoid
// the "~> 1.2" vs "~> 1.10" lexical bug a raw string compare would hit,
// per SPEC_FULL.md §12.
func suggestAlignment(a, b Constraint) string {
	if isPessimistic(a) && isPessimistic(b) {
		higher := a.Raw
		if pessimisticBase(b).GreaterThan(pessimisticBase(a)) {
			higher = b.Raw
		}
		return "align both constraints to the higher pessimistic bound " + higher
	}
	return "align both constraints to the same range"
}

func isPessimistic(c Constraint) bool {
	return len(c.Atoms) == 1 && c.Atoms[0].Kind == AtomPessimistic
}

func pessimisticBase(c Constraint) Version {
	return c.Atoms[0].Base
}

// missingConstraintPass emits DRIFT002 for each non-local module and each
// provider without a constraint, per spec §4.E pass 3. Local modules are
// exempt, per spec §8 Testable Property #6.
func missingConstraintPass(modules []ModuleRef, providers []ProviderRef) []Finding {
	var findings []Finding
	for _, m := range modules {
		if m.Source.Kind == SourceLocal {
			continue
		}
		if m.Constraint != nil {
			continue
		}
		findings = append(findings, Finding{
			Code: CodeMissingConstraint, Severity: SeverityWarning, Category: CategoryMissingConstraint,
			Message:     "module " + m.Name + " has no version constraint",
			Description: "module source " + canonicalID(m.Source) + " is referenced without a version constraint",
			Primary:     Location{File: m.File, Line: m.Line, Repository: m.Repository},
		})
	}
	for _, p := range providers {
		if p.Constraint != nil {
			continue
		}
		findings = append(findings, Finding{
			Code: CodeMissingConstraint, Severity: SeverityWarning, Category: CategoryMissingConstraint,
			Message:     "provider " + p.QualifiedSource + " has no version constraint",
			Description: "provider " + p.QualifiedSource + " is referenced without a version constraint",
			Primary:     Location{File: p.File, Line: p.Line, Repository: p.Repository},
		})
	}
	return findings
}

// riskyPatternPass maps detector tags to findings, per spec §4.E pass 4.
func riskyPatternPass(modules []ModuleRef, providers []ProviderRef, riskyCfg RiskyPatternConfig) []Finding {
	var findings []Finding
	emit := func(raw string, loc Location) {
		for _, tag := range detectRiskyPatterns(raw, riskyCfg) {
			switch tag {
			case RiskyWildcard:
				findings = append(findings, Finding{Code: CodeWildcard, Severity: SeverityWarning, Category: CategoryBestPractice, Message: "wildcard version constraint", Primary: loc})
			case RiskyPreRelease:
				findings = append(findings, Finding{Code: CodePreRelease, Severity: SeverityInfo, Category: CategoryBestPractice, Message: "pre-release version constraint", Primary: loc})
			case RiskyExactVersion:
				findings = append(findings, Finding{Code: CodeExactVersion, Severity: SeverityInfo, Category: CategoryBestPractice, Message: "pinned to an exact version", Primary: loc})
			case RiskyNoUpperBound:
				findings = append(findings, Finding{Code: CodeNoUpperBound, Severity: SeverityWarning, Category: CategoryBestPractice, Message: "no upper bound on version constraint", Primary: loc})
			}
		}
	}
	for _, m := range modules {
		if m.Constraint == nil {
			continue
		}
		emit(m.Constraint.Raw, Location{File: m.File, Line: m.Line, Repository: m.Repository})
	}
	for _, p := range providers {
		if p.Constraint == nil {
			continue
		}
		emit(p.Constraint.Raw, Location{File: p.File, Line: p.Line, Repository: p.Repository})
	}
	return findings
}

// broadConstraintPass emits DRIFT004 for every overly-broad constraint, per
// spec §4.E pass 5.
func broadConstraintPass(modules []ModuleRef, providers []ProviderRef) []Finding {
	var findings []Finding
	for _, m := range modules {
		if m.Constraint == nil || !isOverlyBroad(*m.Constraint) {
			continue
		}
		findings = append(findings, Finding{
			Code: CodeBroadConstraint, Severity: SeverityWarning, Category: CategoryBroadConstraint,
			Message: "overly broad version constraint " + m.Constraint.Raw,
			Primary: Location{File: m.File, Line: m.Line, Repository: m.Repository},
		})
	}
	for _, p := range providers {
		if p.Constraint == nil || !isOverlyBroad(*p.Constraint) {
			continue
		}
		findings = append(findings, Finding{
			Code: CodeBroadConstraint, Severity: SeverityWarning, Category: CategoryBroadConstraint,
			Message: "overly broad version constraint " + p.Constraint.Raw,
			Primary: Location{File: p.File, Line: p.Line, Repository: p.Repository},
		})
	}
	return findings
}

// deprecationPass matches references against configured rules keyed on
// runtime name, module key, and provider qualified source, per spec §4.E
// pass 6. A reference matches when either its constraint overlaps the
// rule's constraint or its Git ref equals the rule's git-ref literal.
func deprecationPass(modules []ModuleRef, providers []ProviderRef, runtimes []RuntimeRef, rules DeprecationRuleSet) Deprecations {
	var out Deprecations

	for _, r := range runtimes {
		for _, rule := range rules.Runtime {
			if rule.Key != "" && rule.Key != r.RuntimeName {
				continue
			}
			if matchesDeprecationRule(r.Constraint, "", rule) {
				out.Runtimes = append(out.Runtimes, DeprecationEntry{
					Key: r.RuntimeName, Constraint: r.Constraint, Rule: rule,
					Location: Location{File: r.File, Line: r.Line, Repository: r.Repository},
				})
			}
		}
	}

	for _, m := range modules {
		if m.Constraint == nil {
			continue
		}
		for _, key := range deprecationKeys(m.Source) {
			for _, rule := range rules.Module {
				if rule.Key != key {
					continue
				}
				if matchesDeprecationRule(*m.Constraint, m.Source.Ref, rule) {
					out.Modules = append(out.Modules, DeprecationEntry{
						Key: key, Constraint: *m.Constraint, Rule: rule,
						Location: Location{File: m.File, Line: m.Line, Repository: m.Repository},
					})
				}
			}
		}
	}

	for _, p := range providers {
		if p.Constraint == nil {
			continue
		}
		for _, rule := range rules.Provider {
			if rule.Key != p.QualifiedSource {
				continue
			}
			if matchesDeprecationRule(*p.Constraint, "", rule) {
				out.Providers = append(out.Providers, DeprecationEntry{
					Key: p.QualifiedSource, Constraint: *p.Constraint, Rule: rule,
					Location: Location{File: p.File, Line: p.Line, Repository: p.Repository},
				})
			}
		}
	}

	return out
}

func matchesDeprecationRule(c Constraint, gitRef string, rule DeprecationRule) bool {
	if rule.GitRef != "" && gitRef != "" && gitRef == rule.GitRef {
		return true
	}
	if rule.VersionRaw == "" {
		return false
	}
	ruleConstraint, err := parseConstraint(rule.VersionRaw)
	if err != nil {
		return false
	}
	return overlap(c, ruleConstraint)
}
