package main

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorKindRecoverable(t *testing.T) {
	assert.True(t, ErrGitClone.recoverable())
	assert.True(t, ErrHCLParse.recoverable())
	assert.False(t, ErrInternal.recoverable())
	assert.False(t, ErrMultiple.recoverable())
}

func TestErrorKindExitCode(t *testing.T) {
	assert.Equal(t, 11, ErrSourceParse.exitCode())
	assert.Equal(t, 60, ErrVCSAPI.exitCode())
	assert.Equal(t, 1, ErrorKind(999).exitCode())
}

func TestDriftErrorWrapsUnderlyingError(t *testing.T) {
	underlying := errors.New("boom")
	de := newDriftError(ErrIO, "doThing", underlying)
	assert.Contains(t, de.Error(), "doThing")
	assert.Contains(t, de.Error(), "boom")
	assert.True(t, errors.Is(de, underlying))
}

func TestDriftErrorBuildersAttachContext(t *testing.T) {
	de := newDriftError(ErrGitClone, "clone", errors.New("fail")).WithRepo("org/repo").WithPath("/tmp/x").WithLine(7)
	assert.Equal(t, "org/repo", de.Repo)
	assert.Equal(t, "/tmp/x", de.Path)
	assert.Equal(t, 7, de.Line)
	assert.Contains(t, de.Error(), "org/repo")
	assert.Contains(t, de.Error(), "/tmp/x")
}

func TestDriftErrorIsRecoverableAndExitCode(t *testing.T) {
	de := newDriftError(ErrHTTP, "op", errors.New("x"))
	assert.True(t, de.IsRecoverable())
	assert.Equal(t, 60, de.ExitCode())
}

func TestConsolidateEmptyReturnsNil(t *testing.T) {
	assert.Nil(t, consolidate(nil))
}

func TestConsolidateSingleReturnsUnwrapped(t *testing.T) {
	only := errors.New("solo")
	assert.Equal(t, only, consolidate([]error{only}))
}

func TestConsolidateManyWrapsAsMultiError(t *testing.T) {
	errs := []error{errors.New("a"), errors.New("b"), errors.New("c")}
	consolidated := consolidate(errs)

	var de *DriftError
	require.ErrorAs(t, consolidated, &de)
	assert.Equal(t, ErrMultiple, de.Kind)

	var multi *MultiError
	require.ErrorAs(t, consolidated, &multi)
	assert.Len(t, multi.Errors, 3)
	assert.Contains(t, multi.Error(), "3 errors")
}

func TestMultiErrorUnwrapExposesAll(t *testing.T) {
	errs := []error{errors.New("a"), errors.New("b")}
	m := &MultiError{Errors: errs}
	assert.Equal(t, errs, m.Unwrap())
}
