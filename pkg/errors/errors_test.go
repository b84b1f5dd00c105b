package errors

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestExitCodes verifies the exit code constants stay stable for scripts.
func TestExitCodes(t *testing.T) {
	assert.Equal(t, 0, ExitSuccess)
	assert.Equal(t, 1, ExitTestsFailed)
	assert.Equal(t, 2, ExitConfigError)
	assert.Equal(t, 3, ExitSetupError)
}

// TestExitError tests the behavior of ExitError.Error and Unwrap.
func TestExitError(t *testing.T) {
	inner := errors.New("boom")

	tests := []struct {
		name     string
		err      *ExitError
		expected string
	}{
		{name: "message and err", err: &ExitError{Code: 2, Message: "load", Err: inner}, expected: "load: boom"},
		{name: "message only", err: &ExitError{Code: 2, Message: "load"}, expected: "load"},
		{name: "err only", err: &ExitError{Code: 2, Err: inner}, expected: "boom"},
		{name: "neither", err: &ExitError{Code: 3}, expected: "exit code 3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}

	wrapped := NewExitError(ExitSetupError, inner)
	assert.True(t, errors.Is(wrapped, inner))
	assert.Equal(t, "bad 7", NewExitErrorf(ExitConfigError, "bad %d", 7).Error())
}

// TestGetExitCode tests the behavior of GetExitCode.
func TestGetExitCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{name: "nil", err: nil, expected: ExitSuccess},
		{name: "exit error", err: NewExitError(ExitConfigError, nil), expected: ExitConfigError},
		{name: "wrapped exit error", err: fmt.Errorf("ctx: %w", NewExitError(ExitTestsFailed, nil)), expected: ExitTestsFailed},
		{name: "partial success", err: NewPartialSuccessError(2, 1, nil), expected: ExitTestsFailed},
		{name: "validation", err: NewConfigValidationError("tests", "missing"), expected: ExitConfigError},
		{name: "plain", err: errors.New("x"), expected: ExitSetupError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, GetExitCode(tt.err))
		})
	}
}

// TestIsHelpers tests IsExitError and IsPartialSuccess.
func TestIsHelpers(t *testing.T) {
	ee, ok := IsExitError(fmt.Errorf("w: %w", NewExitError(1, nil)))
	require.True(t, ok)
	assert.Equal(t, 1, ee.Code)

	_, ok = IsExitError(errors.New("plain"))
	assert.False(t, ok)

	pse, ok := IsPartialSuccess(NewPartialSuccessError(3, 1, nil))
	require.True(t, ok)
	assert.Equal(t, "3 passed, 1 failed", pse.Error())
}

// TestTestFailedError tests the behavior of TestFailedError.Error.
func TestTestFailedError(t *testing.T) {
	assert.Equal(t, "test a timed out", (&TestFailedError{Test: "a", TimedOut: true}).Error())
	assert.Equal(t, "test a failed", (&TestFailedError{Test: "a"}).Error())
	assert.Equal(t, "test a failed: r1", (&TestFailedError{Test: "a", Reasons: []string{"r1"}}).Error())
	assert.Equal(t, "test a failed: r1 (and 2 more)", (&TestFailedError{Test: "a", Reasons: []string{"r1", "r2", "r3"}}).Error())
}

// TestValidationError tests formatting of each validation category.
func TestValidationError(t *testing.T) {
	cfg := NewConfigValidationError("properties.minversion", "not a version")
	assert.Equal(t, "properties.minversion: not a version", cfg.Error())

	dep := NewDependencyError("sipp", "not found on PATH")
	assert.Equal(t, "unmet dependency sipp: not found on PATH", dep.Error())
	assert.Contains(t, dep.VerboseError(), "Hint: Install SIPp")

	cond := NewConditionError("thread-check", "unknown typename")
	assert.Equal(t, ValidationCategoryCondition, cond.Category)

	plain := &ValidationError{Message: "just text", Expected: "something"}
	assert.Equal(t, "just text", plain.Error())
	assert.Contains(t, plain.VerboseError(), "Expected: something")

	ve, ok := IsValidationError(fmt.Errorf("wrap: %w", cfg))
	require.True(t, ok)
	assert.Same(t, cfg, ve)
}

// TestValidationResult tests collection helpers on ValidationResult.
func TestValidationResult(t *testing.T) {
	r := NewValidationResult()
	assert.False(t, r.HasErrors())
	assert.NoError(t, r.Err())
	assert.Empty(t, r.ErrorMessage())

	r.AddWarning("careful")
	r.AddError(NewConfigValidationError("a", "b"))
	r.AddError(NewConfigValidationError("c", "d"))

	assert.True(t, r.HasWarnings())
	assert.True(t, r.HasErrors())
	assert.EqualError(t, r.Err(), "a: b")
	assert.Equal(t, "validation failed:\n  - a: b\n  - c: d", r.ErrorMessage())
}

// TestHints tests hint lookup.
func TestHints(t *testing.T) {
	assert.Empty(t, GetHint(nil))
	assert.Empty(t, GetHint(errors.New("nothing known")))
	assert.Contains(t, GetHint(errors.New("Unable to connect to remote asterisk (does /var/run/asterisk/asterisk.ctl exist?)")), "astrundir")

	assert.Contains(t, GetHint(errors.New("Asterisk core waitfullybooted for 127.0.0.1 failed")), "startup errors")

	assert.Equal(t, "", EnhanceErrorWithHint(nil))
	assert.Equal(t, "plain", EnhanceErrorWithHint(errors.New("plain")))
	assert.Contains(t, EnhanceErrorWithHint(errors.New("No such command 'sip show objects'")), "Hint:")
}

// TestPrintErrorWithHints tests the error display helper.
func TestPrintErrorWithHints(t *testing.T) {
	var buf bytes.Buffer
	PrintErrorWithHints(&buf, []error{
		nil,
		NewDependencyError("sipp", "missing"),
		NewPartialSuccessError(1, 1, []error{&TestFailedError{Test: "t1"}}),
		errors.New("core waitfullybooted for 127.0.0.1 failed"),
	}, true)

	out := buf.String()
	assert.Contains(t, out, "Error: unmet dependency sipp: missing")
	assert.Contains(t, out, "Hint: Install SIPp")
	assert.Contains(t, out, "Error: 1 passed, 1 failed")
	assert.Contains(t, out, "  - test t1 failed")
	assert.Contains(t, out, "Asterisk did not finish booting")
}
