package main

import (
	"fmt"
	"strings"
)

// ErrorKind is a closed taxonomy of error categories, grounded on the kind
// list in original_source/src/error.rs and spec §7.
type ErrorKind int

const (
	ErrIO ErrorKind = iota
	ErrHCLParse
	ErrHCLStructure
	ErrSourceParse
	ErrVersionParse
	ErrConstraintParse
	ErrGit
	ErrGitAuth
	ErrGitClone
	ErrInvalidURL
	ErrUnsupportedProvider
	ErrConfigParse
	ErrConfigValue
	ErrConfigMissing
	ErrGraphBuild
	ErrCircularDependency
	ErrAnalysis
	ErrReport
	ErrTemplate
	ErrHTTP
	ErrTimeout
	ErrVCSAPI
	ErrInternal
	ErrMultiple
)

func (k ErrorKind) String() string {
	names := [...]string{
		"io", "hcl_parse", "hcl_structure", "source_parse", "version_parse",
		"constraint_parse", "git", "git_auth", "git_clone", "invalid_url",
		"unsupported_provider", "config_parse", "config_value", "config_missing",
		"graph_build", "circular_dependency", "analysis", "report", "template",
		"http", "timeout", "vcs_api", "internal", "multiple",
	}
	if int(k) < 0 || int(k) >= len(names) {
		return "unknown"
	}
	return names[k]
}

// recoverable reports whether an error of this kind should be recorded as a
// ScanWarning and allow the batch to proceed, per spec §7 propagation policy.
func (k ErrorKind) recoverable() bool {
	switch k {
	case ErrGitClone, ErrGitAuth, ErrInvalidURL, ErrHCLParse, ErrHCLStructure,
		ErrSourceParse, ErrVersionParse, ErrConstraintParse,
		ErrConfigParse, ErrConfigValue, ErrConfigMissing,
		ErrHTTP, ErrTimeout, ErrVCSAPI:
		return true
	default:
		return false
	}
}

// exitCode returns the stable small integer the CLI collaborator surfaces.
func (k ErrorKind) exitCode() int {
	switch k {
	case ErrIO:
		return 2
	case ErrHCLParse, ErrHCLStructure:
		return 10
	case ErrSourceParse:
		return 11
	case ErrVersionParse, ErrConstraintParse:
		return 12
	case ErrGit, ErrGitAuth, ErrGitClone:
		return 20
	case ErrInvalidURL, ErrUnsupportedProvider:
		return 21
	case ErrConfigParse, ErrConfigValue, ErrConfigMissing:
		return 30
	case ErrGraphBuild, ErrCircularDependency:
		return 40
	case ErrAnalysis:
		return 41
	case ErrReport, ErrTemplate:
		return 50
	case ErrHTTP, ErrTimeout, ErrVCSAPI:
		return 60
	case ErrMultiple:
		return 70
	default:
		return 1
	}
}

// DriftError is the closed sum type backing this module's error taxonomy.
// It carries the operation name plus optional path, repository and line
// context for diagnostics; it does not record the Go source file and line
// at which the error was constructed.
type DriftError struct {
	Kind    ErrorKind
	Op      string
	Path    string
	Repo    string
	Line    int
	err     error
}

func newDriftError(kind ErrorKind, op string, err error) *DriftError {
	return &DriftError{Kind: kind, Op: op, err: err}
}

func (e *DriftError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", e.Kind, e.Op)
	if e.Repo != "" {
		fmt.Fprintf(&b, " repo=%s", e.Repo)
	}
	if e.Path != "" {
		fmt.Fprintf(&b, " path=%s", e.Path)
	}
	if e.err != nil {
		fmt.Fprintf(&b, ": %v", e.err)
	}
	return b.String()
}

func (e *DriftError) Unwrap() error { return e.err }

func (e *DriftError) IsRecoverable() bool { return e.Kind.recoverable() }

func (e *DriftError) ExitCode() int { return e.Kind.exitCode() }

func (e *DriftError) WithPath(path string) *DriftError {
	e.Path = path
	return e
}

func (e *DriftError) WithRepo(repo string) *DriftError {
	e.Repo = repo
	return e
}

func (e *DriftError) WithLine(line int) *DriftError {
	e.Line = line
	return e
}

// MultiError aggregates recoverable errors accumulated in one operation into
// a single error carrying a count and the underlying list, per spec §7.
type MultiError struct {
	Errors []error
}

func (m *MultiError) Error() string {
	if len(m.Errors) == 1 {
		return m.Errors[0].Error()
	}
	parts := make([]string, len(m.Errors))
	for i, err := range m.Errors {
		parts[i] = err.Error()
	}
	return fmt.Sprintf("%d errors: %s", len(m.Errors), strings.Join(parts, "; "))
}

func (m *MultiError) Unwrap() []error { return m.Errors }

// consolidate wraps a slice of recoverable errors into the aggregate policy
// described in spec §7: a single error is returned unchanged, many are
// consolidated into a MultiError wrapped in ErrMultiple.
func consolidate(errs []error) error {
	switch len(errs) {
	case 0:
		return nil
	case 1:
		return errs[0]
	default:
		return newDriftError(ErrMultiple, "consolidate", &MultiError{Errors: errs})
	}
}
