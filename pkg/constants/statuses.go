// Package constants provides centralized string constants used throughout the application.
// This eliminates magic strings and provides a single source of truth for status values.
package constants

// Condition status constants. A condition starts Inconclusive and moves to
// Passed or Failed; Failed is terminal.
const (
	// ConditionInconclusive indicates the condition has not reached a verdict.
	ConditionInconclusive = "Inconclusive"

	// ConditionPassed indicates the condition found nothing wrong.
	ConditionPassed = "Passed"

	// ConditionFailed indicates the condition found an inconsistent state.
	ConditionFailed = "Failed"
)

// Condition roles, as written in the YAML condition definitions.
const (
	// RolePre marks a condition evaluated before the scenario runs.
	RolePre = "PRE"

	// RolePost marks a condition evaluated after the scenario completes.
	RolePost = "POST"
)

// Test result status constants used by the suite runner and reports.
const (
	// StatusPassed indicates the test passed.
	StatusPassed = "Passed"

	// StatusFailed indicates the test failed.
	StatusFailed = "Failed"

	// StatusTimedOut indicates the watchdog ended the test.
	StatusTimedOut = "TimedOut"

	// StatusSkipped indicates the test was excluded (tag filter, skip, exclude-tests).
	StatusSkipped = "Skipped"

	// StatusCannotRun indicates an unmet version or dependency requirement.
	StatusCannotRun = "CannotRun"

	// StatusExpectedFailure indicates a test marked expected-result: fail that failed.
	StatusExpectedFailure = "ExpectedFailure"
)

// Markers in asterisk -rx output that mean the instance returned no usable data.
const (
	// MarkerNotConnected is printed when the remote console cannot reach the control socket.
	MarkerNotConnected = "Unable to connect to remote asterisk"

	// MarkerNoSuchCommand is printed when no loaded module provides the command.
	MarkerNoSuchCommand = "No such command"
)

// Placeholder values for display when data is not available.
const (
	// PlaceholderNA is used when a value is not available.
	PlaceholderNA = "#N/A"
)

// Icon constants for status display.
const (
	// IconSuccess indicates a passed test.
	IconSuccess = "🟢"

	// IconWarning indicates an expected failure or a timeout.
	IconWarning = "🟠"

	// IconError indicates a failed test.
	IconError = "❌"

	// IconSkipped indicates a skipped test.
	IconSkipped = "⚪"

	// IconBlocked indicates a test that cannot run on this build.
	IconBlocked = "⛔"

	// IconCheckmark indicates a passed condition.
	IconCheckmark = "✓"

	// IconCross indicates a failed condition.
	IconCross = "✗"
)

// StatusIcon returns the display icon for a test status.
func StatusIcon(status string) string {
	switch status {
	case StatusPassed:
		return IconSuccess
	case StatusFailed:
		return IconError
	case StatusTimedOut, StatusExpectedFailure:
		return IconWarning
	case StatusSkipped:
		return IconSkipped
	case StatusCannotRun:
		return IconBlocked
	default:
		return ""
	}
}
