package errors

import (
	"errors"
	"fmt"
)

// Exit codes for scripting integration.
const (
	// ExitSuccess indicates every selected test passed.
	ExitSuccess = 0

	// ExitTestsFailed indicates at least one test failed or timed out.
	ExitTestsFailed = 1

	// ExitConfigError indicates the suite or a test configuration was invalid.
	ExitConfigError = 2

	// ExitSetupError indicates the run could not be prepared.
	// This includes a missing asterisk binary or an unwritable run directory.
	ExitSetupError = 3
)

// ExitError represents a command termination with a specific exit code.
//
// Fields:
//   - Code: Exit code (use the Exit* constants)
//   - Message: Human-readable error message
//   - Err: Underlying error that caused this exit, may be nil
//
// Example:
//
//	return &ExitError{
//	    Code:    ExitConfigError,
//	    Message: "failed to load suite config",
//	    Err:     err,
//	}
type ExitError struct {
	Code    int
	Message string
	Err     error
}

// Error renders "Message: Err", falling back to whichever of the two is set
// and finally to the bare exit code.
func (e *ExitError) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return e.Message + ": " + e.Err.Error()
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return e.Err.Error()
	}
	return fmt.Sprintf("exit code %d", e.Code)
}

func (e *ExitError) Unwrap() error { return e.Err }

// NewExitError wraps err so that the process exits with code.
func NewExitError(code int, err error) *ExitError {
	return &ExitError{Code: code, Err: err}
}

// NewExitErrorf is NewExitError with a formatted message and no cause.
func NewExitErrorf(code int, format string, args ...any) *ExitError {
	return &ExitError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// as is errors.As returning the target.
func as[T error](err error) (T, bool) {
	var target T
	ok := errors.As(err, &target)
	return target, ok
}

// GetExitCode maps an error returned by a command to the process exit code.
//
// It performs the following operations:
//   - nil maps to ExitSuccess
//   - an ExitError anywhere in the chain supplies its own Code
//   - a PartialSuccessError maps to ExitTestsFailed
//   - a ValidationError maps to ExitConfigError
//   - anything else is treated as a setup problem (ExitSetupError)
//
// Parameters:
//   - err: error returned by a command, possibly wrapped
//
// Returns:
//   - int: exit code for the process
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	if e, ok := as[*ExitError](err); ok {
		return e.Code
	}
	if _, ok := as[*PartialSuccessError](err); ok {
		return ExitTestsFailed
	}
	if _, ok := as[*ValidationError](err); ok {
		return ExitConfigError
	}
	return ExitSetupError
}

// IsExitError returns the ExitError in err's chain, if any.
func IsExitError(err error) (*ExitError, bool) {
	return as[*ExitError](err)
}

// PartialSuccessError reports a suite run where some tests passed and others
// failed.
//
// Fields:
//   - Succeeded: Number of passed tests
//   - Failed: Number of failed tests
//   - Errors: One error per failed test
type PartialSuccessError struct {
	Succeeded int
	Failed    int
	Errors    []error
}

func (e *PartialSuccessError) Error() string {
	return fmt.Sprintf("%d passed, %d failed", e.Succeeded, e.Failed)
}

// NewPartialSuccessError records succeeded passes, failed failures and one
// error per failed test.
func NewPartialSuccessError(succeeded, failed int, errs []error) *PartialSuccessError {
	return &PartialSuccessError{Succeeded: succeeded, Failed: failed, Errors: errs}
}

// IsPartialSuccess returns the PartialSuccessError in err's chain, if any.
func IsPartialSuccess(err error) (*PartialSuccessError, bool) {
	return as[*PartialSuccessError](err)
}

// TestFailedError records why a single test did not pass.
//
// Fields:
//   - Test: Test name (its directory relative to the suite root)
//   - Reasons: Ordered failure reasons collected from conditions and the scenario
//   - TimedOut: True when the watchdog ended the test
type TestFailedError struct {
	Test     string
	Reasons  []string
	TimedOut bool
}

func (e *TestFailedError) Error() string {
	switch {
	case e.TimedOut:
		return fmt.Sprintf("test %s timed out", e.Test)
	case len(e.Reasons) == 0:
		return fmt.Sprintf("test %s failed", e.Test)
	case len(e.Reasons) == 1:
		return fmt.Sprintf("test %s failed: %s", e.Test, e.Reasons[0])
	default:
		return fmt.Sprintf("test %s failed: %s (and %d more)", e.Test, e.Reasons[0], len(e.Reasons)-1)
	}
}
