package suite

import (
	"fmt"
	"strings"
	"time"

	"github.com/ajxudir/asttest/pkg/constants"
	"github.com/ajxudir/asttest/pkg/testcase"
)

// TestResult represents the result of a single test.
type TestResult struct {
	// Name is the test path relative to the tests directory.
	Name string

	// Summary is testinfo.summary.
	Summary string

	// Status is one of the constants.Status* values.
	Status string

	// Passed is the final verdict after expected-result inversion.
	Passed bool

	// ExpectPass is false when the test is expected to fail.
	ExpectPass bool

	// TimedOut is set when the watchdog ended the test.
	TimedOut bool

	// StartedAt is when the test started running.
	StartedAt time.Time

	// Duration is how long the test took to execute.
	Duration time.Duration

	// Reasons explain a failure, skip or cannot-run status.
	Reasons []string

	// Conditions holds the verdict of every evaluated condition.
	Conditions []testcase.ConditionResult

	// Output contains the run-test output of legacy tests.
	Output string
}

// Ran reports whether the test was executed.
func (t TestResult) Ran() bool {
	return t.Status != constants.StatusSkipped && t.Status != constants.StatusCannotRun
}

// Reason joins the reasons on one line.
func (t TestResult) Reason() string {
	return strings.Join(t.Reasons, "; ")
}

// Result represents the aggregate result of a suite run.
type Result struct {
	// Tests contains results for each individual test.
	Tests []TestResult

	// TotalDuration is the total time for all tests.
	TotalDuration time.Duration
}

// Passed returns true if no executed test failed.
func (r *Result) Passed() bool {
	return r.FailedCount() == 0
}

// PassedCount returns the number of tests that ran and passed.
func (r *Result) PassedCount() int {
	return r.count(func(t TestResult) bool { return t.Ran() && t.Passed })
}

// FailedCount returns the number of tests that ran and failed.
func (r *Result) FailedCount() int {
	return r.count(func(t TestResult) bool { return t.Ran() && !t.Passed })
}

// SkippedCount returns the number of tests that were skipped or could not run.
func (r *Result) SkippedCount() int {
	return r.count(func(t TestResult) bool { return !t.Ran() })
}

// RanCount returns the number of executed tests.
func (r *Result) RanCount() int {
	return r.count(TestResult.Ran)
}

func (r *Result) count(match func(TestResult) bool) int {
	n := 0
	for _, t := range r.Tests {
		if match(t) {
			n++
		}
	}
	return n
}

// FailedTests returns all executed tests that failed.
func (r *Result) FailedTests() []TestResult {
	var failures []TestResult
	for _, t := range r.Tests {
		if t.Ran() && !t.Passed {
			failures = append(failures, t)
		}
	}
	return failures
}

// Summary returns a brief summary string of the results.
//
// Returns:
//   - string: One-line summary such as "All 5 tests passed" or
//     "3/5 tests passed (2 failed, 1 skipped)"
func (r *Result) Summary() string {
	ran := r.RanCount()
	failed := r.FailedCount()
	skipped := r.SkippedCount()

	var s string
	if failed == 0 {
		s = fmt.Sprintf("All %d tests passed", ran)
		if skipped > 0 {
			s += fmt.Sprintf(" (%d skipped)", skipped)
		}
		return s
	}
	s = fmt.Sprintf("%d/%d tests passed (%d failed", r.PassedCount(), ran, failed)
	if skipped > 0 {
		s += fmt.Sprintf(", %d skipped", skipped)
	}
	return s + ")"
}

// FormatFailures returns the failed tests with their reasons, or an empty
// string when nothing failed.
//
// It performs the following operations:
//   - Step 1: Write a header line
//   - Step 2: For each failed test write its name and duration
//   - Step 3: Write each reason, first line only, beneath it
func (r *Result) FormatFailures() string {
	failed := r.FailedTests()
	if len(failed) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("Failed tests\n")
	sb.WriteString(strings.Repeat("─", 60) + "\n")
	for _, t := range failed {
		sb.WriteString(fmt.Sprintf("  %s %-40s [%s]\n", constants.IconCross, t.Name, FormatDuration(t.Duration)))
		for _, reason := range t.Reasons {
			line := strings.SplitN(reason, "\n", 2)[0]
			sb.WriteString(fmt.Sprintf("    └─ %s\n", line))
		}
	}
	sb.WriteString(strings.Repeat("─", 60) + "\n")
	return sb.String()
}

// FormatDuration formats a duration for display in human-readable format.
//
// Parameters:
//   - d: Duration to format
//
// Returns:
//   - string: Milliseconds (e.g. "500ms") below one second, otherwise seconds (e.g. "2.5s")
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%.0fms", float64(d.Milliseconds()))
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}
